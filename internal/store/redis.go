package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable reports a Redis transport failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	accessKeyPrefix  = "at:"
	refreshKeyPrefix = "rt:"
)

// Redis persists the active set in Redis so a restarted process (or a
// sibling process) observes the same session state. Access entries are keyed
// by SHA-256 fingerprint and carry the access-token TTL so expired tokens
// fall out of the active set on their own.
type Redis struct {
	client     redis.UniversalClient
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewRedis creates a Redis-backed token store.
func NewRedis(client redis.UniversalClient, accessTTL, refreshTTL time.Duration) *Redis {
	return &Redis{
		client:     client,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *Redis) Add(ctx context.Context, subject, accessToken, refreshToken string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, accessKeyPrefix+fingerprint(accessToken), subject, r.accessTTL)
	if refreshToken != "" {
		pipe.Set(ctx, refreshKeyPrefix+subject, refreshToken, r.refreshTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *Redis) Revoke(ctx context.Context, accessToken string) error {
	key := accessKeyPrefix + fingerprint(accessToken)

	subject, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := r.client.Del(ctx, key, refreshKeyPrefix+subject).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *Redis) MarkExpired(ctx context.Context, accessToken string) error {
	if err := r.client.Del(ctx, accessKeyPrefix+fingerprint(accessToken)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *Redis) IsActive(ctx context.Context, accessToken string) (bool, error) {
	n, err := r.client.Exists(ctx, accessKeyPrefix+fingerprint(accessToken)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

func (r *Redis) RefreshFor(ctx context.Context, subject string) (string, bool, error) {
	tok, err := r.client.Get(ctx, refreshKeyPrefix+subject).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return tok, true, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	for _, prefix := range []string{accessKeyPrefix, refreshKeyPrefix} {
		iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}
