package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel описывает транспорт уведомления.
type Channel string

const (
	// ChannelPush — push-уведомление в мобильное приложение.
	ChannelPush Channel = "push"
	// ChannelEmail — письмо на электронную почту.
	ChannelEmail Channel = "email"
	// ChannelSMS — SMS на телефон.
	ChannelSMS Channel = "sms"
)

// AllChannels перечисляет поддерживаемые каналы в порядке опроса.
var AllChannels = []Channel{ChannelPush, ChannelEmail, ChannelSMS}

// Valid сообщает, известен ли канал.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPush, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// FoodPolicy задаёт приём лекарства относительно еды.
type FoodPolicy string

const (
	FoodBefore FoodPolicy = "before"
	FoodAfter  FoodPolicy = "after"
	FoodWith   FoodPolicy = "with"
	FoodAny    FoodPolicy = "any"
)

// Instruction возвращает текст подсказки для уведомления.
func (p FoodPolicy) Instruction() string {
	switch p {
	case FoodBefore:
		return "Take before a meal"
	case FoodAfter:
		return "Take after a meal"
	case FoodWith:
		return "Take with food"
	default:
		return ""
	}
}

// Dosage описывает разовую дозу.
type Dosage struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// RecurrenceRule описывает расписание приёма.
//
// TimesOfDay содержит время в формате HH:MM в часовом поясе Timezone.
// Пустой DaysOfWeek означает ежедневный приём. Если задан RRule (RFC 5545),
// он используется как есть и привязывается к каждому времени из TimesOfDay.
type RecurrenceRule struct {
	TimesOfDay []string       `json:"times_of_day"`
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	Timezone   string         `json:"timezone,omitempty"`
	StartDate  time.Time      `json:"start_date"`
	EndDate    *time.Time     `json:"end_date,omitempty"`
	RRule      string         `json:"rrule,omitempty"`
}

// Occurrence — одно запланированное срабатывание напоминания.
type Occurrence struct {
	ID            uuid.UUID
	ScheduledTime time.Time
	Notified      bool
	NotifiedAt    *time.Time
}

// MarkNotified переводит срабатывание в состояние notified. Переход необратим.
func (o *Occurrence) MarkNotified(at time.Time) error {
	if o.Notified {
		return ErrAlreadyNotified
	}
	o.Notified = true
	ts := at.UTC()
	o.NotifiedAt = &ts
	return nil
}

// AdherenceStatus — исход приёма.
type AdherenceStatus string

const (
	StatusTaken   AdherenceStatus = "taken"
	StatusMissed  AdherenceStatus = "missed"
	StatusPending AdherenceStatus = "pending"
)

// AdherenceRecord фиксирует исход срабатывания после закрытия его окна.
type AdherenceRecord struct {
	ScheduledTime time.Time
	Status        AdherenceStatus
	ActualTime    *time.Time
}

// Reminder описывает напоминание о приёме лекарства.
type Reminder struct {
	ID              string
	OwnerID         string
	MedicineName    string
	Dosage          Dosage
	FoodPolicy      FoodPolicy
	Notes           string
	Rule            RecurrenceRule
	ChannelSettings []Channel
	Active          bool
	Occurrences     []Occurrence
	History         []AdherenceRecord
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Contact хранит контактные данные пользователя.
type Contact struct {
	Email     string
	Phone     string
	PushToken string
}

// NotificationPreferences хранит согласия пользователя. nil означает «включено».
type NotificationPreferences struct {
	Push             *bool `json:"push,omitempty"`
	Email            *bool `json:"email,omitempty"`
	SMS              *bool `json:"sms,omitempty"`
	AdherenceReports *bool `json:"adherence_reports,omitempty"`
}

// User — пользователь платформы, только для чтения.
type User struct {
	ID          string
	Name        string
	Contact     Contact
	Preferences NotificationPreferences
}

// NotificationPayload — содержимое одного уведомления, общее для всех каналов.
type NotificationPayload struct {
	OccurrenceID     uuid.UUID  `json:"occurrence_id"`
	ReminderID       string     `json:"reminder_id"`
	MedicineName     string     `json:"medicine_name"`
	Dosage           Dosage     `json:"dosage"`
	FoodPolicy       FoodPolicy `json:"food_policy"`
	FoodInstructions string     `json:"food_instructions,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	ScheduledTime    time.Time  `json:"scheduled_time"`
	Timezone         string     `json:"timezone,omitempty"`
}

// DueOccurrence — пара напоминание/срабатывание, найденная сканером.
type DueOccurrence struct {
	Reminder   Reminder
	Occurrence Occurrence
}
