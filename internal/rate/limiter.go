package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window attempt counter on Redis. Each Allow call counts
// as one attempt: INCR, with the window TTL set on the first hit only.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Limiter namespaced by prefix.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{redis: redisClient, prefix: prefix}
}

// Allow records one attempt under key and reports whether the caller is
// still within max attempts per window. Redis failures return an error so
// guarded operations can fail closed.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	full := l.prefix + ":" + key

	count, err := l.redis.Incr(ctx, full).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: the TTL starts with the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, full, window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count <= int64(max), nil
}

// Reset clears the window for key, forgiving prior attempts.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
