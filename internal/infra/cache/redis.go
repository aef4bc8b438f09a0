package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

const claimPrefix = "occurrence_claim:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer захватывает срабатывания через SET NX, чтобы реплики не рассылали одно и то же.
type RedisClaimer struct {
	client *redis.Client
	owner  string
}

var _ domain.OccurrenceClaimer = (*RedisClaimer)(nil)

// NewRedisClaimer создаёт захватчик. owner идентифицирует процесс в значении ключа.
func NewRedisClaimer(client *redis.Client, owner string) *RedisClaimer {
	if owner == "" {
		owner = uuid.NewString()
	}
	return &RedisClaimer{client: client, owner: owner}
}

// Claim реализует domain.OccurrenceClaimer.
func (c *RedisClaimer) Claim(ctx context.Context, occurrenceID uuid.UUID, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.client.SetNX(ctx, claimPrefix+occurrenceID.String(), c.owner, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "occurrence_claim", start, err)
	return ok, err
}

// Release снимает захват, только если он принадлежит этому процессу.
func (c *RedisClaimer) Release(ctx context.Context, occurrenceID uuid.UUID) error {
	start := time.Now()
	err := releaseScript.Run(ctx, c.client, []string{claimPrefix + occurrenceID.String()}, c.owner).Err()
	metrics.ObserveNetworkRequest("redis", "release", "occurrence_claim", start, err)
	return err
}
