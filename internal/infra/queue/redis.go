package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

// RedisScheduleQueue реализует очередь задач пересчёта расписаний на базе Redis lists.
type RedisScheduleQueue struct {
	client *redis.Client
	key    string
}

var _ domain.ScheduleQueue = (*RedisScheduleQueue)(nil)

// NewRedisScheduleQueue создаёт очередь по указанному ключу.
func NewRedisScheduleQueue(client *redis.Client, key string) *RedisScheduleQueue {
	return &RedisScheduleQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisScheduleQueue) Enqueue(ctx context.Context, job domain.ScheduleJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisScheduleQueue) Pop(ctx context.Context) (domain.ScheduleJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ScheduleJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ScheduleJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ScheduleJob{}, err
		}
		if len(res) != 2 {
			return domain.ScheduleJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.ScheduleJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.ScheduleJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
