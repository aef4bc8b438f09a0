package sender

import (
	"context"
	"encoding/json"
	"fmt"

	"med-reminder/internal/domain"
)

// Publisher публикует сообщение в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
}

// Email ставит письмо в очередь почтового сервиса платформы.
type Email struct {
	publisher  Publisher
	routingKey string
}

var _ domain.ChannelSender = (*Email)(nil)

// NewEmail создаёт отправителя.
func NewEmail(publisher Publisher, routingKey string) *Email {
	return &Email{publisher: publisher, routingKey: routingKey}
}

// EmailMessage — формат письма в очереди.
type EmailMessage struct {
	To           string `json:"to"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	OccurrenceID string `json:"occurrence_id,omitempty"`
}

// Channel реализует domain.ChannelSender.
func (e *Email) Channel() domain.Channel { return domain.ChannelEmail }

// Send реализует domain.ChannelSender.
func (e *Email) Send(ctx context.Context, user domain.User, payload domain.NotificationPayload) error {
	if user.Contact.Email == "" {
		return domain.ErrNoContact
	}
	subject, body := FormatReminder(payload)
	msg, err := json.Marshal(EmailMessage{
		To:           user.Contact.Email,
		Subject:      subject,
		Body:         body,
		OccurrenceID: payload.OccurrenceID.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	if err := e.publisher.Publish(ctx, e.routingKey, payload.OccurrenceID.String(), msg); err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}
