package queuectrl

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pauseKey = "verify:queue:paused"

// RedisControl stores the pause flag in a single Redis key shared by all
// orchestrator instances. A missing key means not paused.
type RedisControl struct {
	rdb *redis.Client
}

func NewRedisControl(rdb *redis.Client) *RedisControl {
	return &RedisControl{rdb: rdb}
}

func (c *RedisControl) IsPaused(ctx context.Context) (bool, error) {
	if c.rdb == nil {
		return false, errors.New("queuectrl: redis client is nil")
	}
	v, err := c.rdb.Get(ctx, pauseKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		// Callers fail closed on read errors so a flapping Redis cannot
		// bypass an operator pause.
		return false, fmt.Errorf("queuectrl: pause flag read failed: %w", err)
	}
	return v == "1", nil
}

func (c *RedisControl) SetPaused(ctx context.Context, paused bool) error {
	if c.rdb == nil {
		return errors.New("queuectrl: redis client is nil")
	}
	if paused {
		return c.rdb.Set(ctx, pauseKey, "1", 0).Err()
	}
	return c.rdb.Del(ctx, pauseKey).Err()
}
