package authcore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/catequesis/authcore/internal/rate"
)

// redisRateLimiter adapts the internal fixed-window limiter to the public
// RateLimiter interface. It is the default when no limiter is injected.
type redisRateLimiter struct {
	limiter *rate.Limiter
}

// NewRedisRateLimiter returns the default Redis-backed rate limiter,
// namespaced by prefix. It satisfies RateLimiter.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) RateLimiter {
	return &redisRateLimiter{limiter: rate.New(client, prefix)}
}

func (r *redisRateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	ok, err := r.limiter.Allow(ctx, key, max, window)
	if err != nil {
		return false, backendErr(err)
	}
	return ok, nil
}
