package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:"

// RedisFixedWindow enforces the same window semantics as [FixedWindow]
// against Redis counters, for deployments sharing a budget across processes.
type RedisFixedWindow struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedisFixedWindow creates a Redis-backed fixed-window limiter.
func NewRedisFixedWindow(client redis.UniversalClient, cfg Config) *RedisFixedWindow {
	return &RedisFixedWindow{
		client: client,
		cfg:    cfg,
	}
}

// CheckAndIncrement implements [Limiter]. The TTL is set only on the first
// hit in a window; Redis key expiry performs the lazy reset.
func (l *RedisFixedWindow) CheckAndIncrement(ctx context.Context, endpoint string) (Decision, error) {
	key := redisKeyPrefix + endpoint

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, key, l.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	d := Decision{Allowed: count <= int64(l.cfg.Max)}
	if remaining := int64(l.cfg.Max) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}

	ttl, err := l.client.PTTL(ctx, key).Result()
	if err == nil && ttl > 0 {
		d.ResetAt = time.Now().Add(ttl)
		if !d.Allowed {
			d.RetryAfter = ttl
		}
	}

	return d, nil
}
