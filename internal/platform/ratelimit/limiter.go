// Package ratelimit implements per-key request limits. RateLimiter keeps
// fixed-window counters in Redis so that limits hold across every instance of
// the service; MemoryLimiter enforces the same limits within one process when
// no Redis server is configured.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimitExceeded is returned when a key has used up its window.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Decision describes the state of a key's current window after a request.
type Decision struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per key in fixed windows.
// A nil RateLimiter, or one without a client, allows everything.
type RateLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter storing counters under prefix.
func NewRateLimiter(client *redis.Client, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, now: time.Now}
}

// NewClient connects to Redis at url and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Allow records one request for key against a limit per window.
//
// Returns:
//   - The window state after this request
//   - ErrLimitExceeded when the request is over the limit, or the Redis error
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if l == nil || l.client == nil || limit <= 0 {
		return Decision{Limit: limit, Remaining: limit}, nil
	}

	now := l.now().UTC()
	windowStart := now.Truncate(window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowStart.Unix())

	// INCR and EXPIRE run in one transaction so a counter never outlives
	// its window, even if an earlier expiry was lost.
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	cnt := incr.Val()

	decision := Decision{
		Limit:     limit,
		Remaining: max(0, limit-int(cnt)),
		ResetAt:   windowStart.Add(window),
	}
	if int(cnt) > limit {
		return decision, ErrLimitExceeded
	}
	return decision, nil
}
