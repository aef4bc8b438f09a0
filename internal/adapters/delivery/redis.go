package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"med-reminder/internal/adapters/sender"
	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

// Pusher — часть redis.Cmdable, нужная очереди отчётов.
type Pusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisReportQueue передаёт готовые отчёты почтовому сервису платформы через Redis list.
type RedisReportQueue struct {
	client Pusher
	key    string
}

var _ domain.ReportDeliverer = (*RedisReportQueue)(nil)

// NewRedisReportQueue создаёт доставщика отчётов.
func NewRedisReportQueue(client Pusher, key string) *RedisReportQueue {
	return &RedisReportQueue{client: client, key: key}
}

// ReportMessage — формат сообщения в очереди отчётов.
type ReportMessage struct {
	UserID string                 `json:"user_id"`
	Email  string                 `json:"email,omitempty"`
	Text   string                 `json:"text"`
	Report domain.AdherenceReport `json:"report"`
}

// Deliver реализует domain.ReportDeliverer.
func (q *RedisReportQueue) Deliver(ctx context.Context, user domain.User, report domain.AdherenceReport) error {
	payload, err := json.Marshal(ReportMessage{
		UserID: user.ID,
		Email:  user.Contact.Email,
		Text:   sender.FormatReport(report),
		Report: report,
	})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push report: %w", err)
	}
	return nil
}
