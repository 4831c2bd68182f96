package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Fixed window per IP and purpose.
	defaultLimit  = 10
	defaultWindow = 15 * time.Minute
)

// Limiter is a Redis-backed fixed-window IP rate limiter. Counters live in
// Redis so the limit holds across instances; a missing counter means the
// window expired and the client starts fresh.
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{
		client: client,
		limit:  defaultLimit,
		window: defaultWindow,
	}
}

func ipKey(ip, purpose string) string {
	return fmt.Sprintf("ratelimit:%s:%s", purpose, ip)
}

// CheckIPRateLimit reports whether the IP has exhausted its window for the
// given purpose.
func (l *Limiter) CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error) {
	count, err := l.client.Get(ctx, ipKey(ip, purpose)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return count >= l.limit, nil
}

// RecordIPRequest increments the IP's counter, starting the window on first use.
func (l *Limiter) RecordIPRequest(ctx context.Context, ip, purpose string) error {
	key := ipKey(ip, purpose)

	pipe := l.client.Pipeline()
	pipe.Incr(ctx, key)
	// NX keeps the original window; a plain EXPIRE would slide it on every hit.
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}
