package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock отдаёт текущее время. Подменяется в тестах.
type Clock interface {
	Now() time.Time
}

// ReminderStore — долговременное хранилище напоминаний и их срабатываний.
type ReminderStore interface {
	Get(ctx context.Context, reminderID string) (Reminder, error)
	// FindDue возвращает неотправленные срабатывания активных напоминаний
	// с ScheduledTime в [windowStart, windowEnd].
	FindDue(ctx context.Context, windowStart, windowEnd time.Time) ([]DueOccurrence, error)
	// Save атомарно сохраняет напоминание целиком.
	Save(ctx context.Context, reminder Reminder) error
	// MarkNotified условно переводит срабатывание в notified и возвращает false,
	// если оно уже было отмечено ранее.
	MarkNotified(ctx context.Context, reminderID string, scheduled, at time.Time) (bool, error)
	ListActive(ctx context.Context) ([]Reminder, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]Reminder, error)
}

// UserDirectory отдаёт контакты и настройки пользователей.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (User, error)
	// ListReportRecipients возвращает пользователей, не отключивших отчёты о приёме.
	ListReportRecipients(ctx context.Context) ([]User, error)
}

// ChannelSender отправляет уведомление через один канал.
type ChannelSender interface {
	Channel() Channel
	Send(ctx context.Context, user User, payload NotificationPayload) error
}

// ReportDeliverer доставляет отчёт о приёме пользователю.
type ReportDeliverer interface {
	Deliver(ctx context.Context, user User, report AdherenceReport) error
}

// OccurrenceClaimer захватывает срабатывание перед отправкой, чтобы несколько
// реплик не отправили его одновременно.
type OccurrenceClaimer interface {
	Claim(ctx context.Context, occurrenceID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, occurrenceID uuid.UUID) error
}

// ErrorReporter передаёт ошибки во внешнюю систему мониторинга.
type ErrorReporter interface {
	Report(err error, tags map[string]string)
}
