package dispatch

import (
	"context"
	"time"

	"verify-orchestrator/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// CycleLimiter bounds how many dispatch cycles may hit the call provider at
// once across orchestrator instances. It protects the provider's rate limit;
// claim exclusivity is the store's job, not the limiter's.
type CycleLimiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

const cycleCapKey = "verify:dispatch:cycles"

// RedisCycleLimiter caps concurrent cycles with an atomic Redis counter.
// The TTL releases slots leaked by a crashed process.
type RedisCycleLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisCycleLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisCycleLimiter {
	if limit <= 0 {
		limit = 2
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCycleLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *RedisCycleLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, cycleCapKey, l.limit, l.ttl)
}

func (l *RedisCycleLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, cycleCapKey)
}
