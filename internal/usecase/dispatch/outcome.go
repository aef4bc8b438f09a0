package dispatch

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"med-reminder/internal/domain"
)

// Status — итог отправки в один канал.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	// StatusSkipped — канал не пытались использовать: нет контакта, согласия или отправителя.
	StatusSkipped Status = "skipped"
)

// ChannelResult описывает попытку отправки в канал.
type ChannelResult struct {
	Status   Status
	Reason   string
	Duration time.Duration
}

func skipped(reason string) ChannelResult {
	return ChannelResult{Status: StatusSkipped, Reason: reason}
}

// Outcome — результат рассылки одного срабатывания.
type Outcome struct {
	ReminderID    string
	OccurrenceID  uuid.UUID
	ScheduledTime time.Time
	Channels      map[domain.Channel]ChannelResult

	// Claimed — срабатывание захвачено этой репликой и захват не снят.
	Claimed bool
	// ClaimLost — срабатывание уже захвачено другой репликой, рассылка не выполнялась.
	ClaimLost bool
	// Marked — срабатывание переведено в notified этой рассылкой.
	Marked bool
	// AlreadyNotified — к моменту отметки срабатывание уже было notified.
	AlreadyNotified bool
	// Err — рассылка прервана до отметки или отметка не сохранилась.
	Err error
}

// Delivered возвращает каналы с успешной отправкой.
func (o Outcome) Delivered() []domain.Channel {
	return o.withStatus(StatusSuccess)
}

// Failed возвращает каналы с неудачной отправкой.
func (o Outcome) Failed() []domain.Channel {
	return o.withStatus(StatusFailure)
}

// Skipped возвращает пропущенные каналы.
func (o Outcome) Skipped() []domain.Channel {
	return o.withStatus(StatusSkipped)
}

func (o Outcome) withStatus(status Status) []domain.Channel {
	var out []domain.Channel
	for ch, res := range o.Channels {
		if res.Status == status {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Label возвращает метку итога для метрик и логов.
func (o Outcome) Label() string {
	switch {
	case o.ClaimLost:
		return "claim_lost"
	case o.Err != nil:
		return "aborted"
	case o.AlreadyNotified:
		return "already_notified"
	case len(o.Delivered()) > 0:
		return "delivered"
	case len(o.Failed()) > 0:
		return "failed"
	}
	return "no_channels"
}

// BuildPayload собирает содержимое уведомления, общее для всех каналов.
func BuildPayload(reminder domain.Reminder, occ domain.Occurrence) domain.NotificationPayload {
	return domain.NotificationPayload{
		OccurrenceID:     occ.ID,
		ReminderID:       reminder.ID,
		MedicineName:     reminder.MedicineName,
		Dosage:           reminder.Dosage,
		FoodPolicy:       reminder.FoodPolicy,
		FoodInstructions: reminder.FoodPolicy.Instruction(),
		Notes:            reminder.Notes,
		ScheduledTime:    occ.ScheduledTime,
		Timezone:         reminder.Rule.Timezone,
	}
}
