package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

// MessageWriter — часть *kafka.Writer, нужная отправителю.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPush публикует push-уведомления в топик шлюза мобильных push.
type KafkaPush struct {
	writer MessageWriter
	topic  string
}

var _ domain.ChannelSender = (*KafkaPush)(nil)

// NewKafkaWriter создаёт writer для брокеров и топика.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaPush создаёт отправителя.
func NewKafkaPush(writer MessageWriter, topic string) *KafkaPush {
	return &KafkaPush{writer: writer, topic: topic}
}

type pushMessage struct {
	Token   string                     `json:"token"`
	Title   string                     `json:"title"`
	Body    string                     `json:"body"`
	Payload domain.NotificationPayload `json:"data"`
}

// Channel реализует domain.ChannelSender.
func (k *KafkaPush) Channel() domain.Channel { return domain.ChannelPush }

// Send реализует domain.ChannelSender. Ключ сообщения — идентификатор срабатывания,
// поэтому повторы одного срабатывания попадают в одну партицию.
func (k *KafkaPush) Send(ctx context.Context, user domain.User, payload domain.NotificationPayload) error {
	if user.Contact.PushToken == "" {
		return domain.ErrNoContact
	}
	title, body := FormatReminder(payload)
	value, err := json.Marshal(pushMessage{Token: user.Contact.PushToken, Title: title, Body: body, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}
	start := time.Now()
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.OccurrenceID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "user_id", Value: []byte(user.ID)},
		},
	})
	metrics.ObserveNetworkRequest("kafka", "write_messages", k.topic, start, err)
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}
