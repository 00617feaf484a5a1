package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter is the slice of pkg/redis the limiter needs.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisLimiter counts hits per key in fixed windows shared by every replica.
type RedisLimiter struct {
	counter Counter
	limit   int
	window  time.Duration
	prefix  string
	now     func() time.Time
}

func NewRedisLimiter(counter Counter, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		prefix:  "ratelimit:pico:",
		now:     time.Now,
	}
}

// Allow increments the key's counter for the current window. Redis errors
// are returned so the caller can decide to fail open.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	n, err := l.counter.IncrWithExpiry(ctx, fmt.Sprintf("%s%s:%d", l.prefix, key, slot), l.window)
	if err != nil {
		return false, err
	}
	return n <= int64(l.limit), nil
}
