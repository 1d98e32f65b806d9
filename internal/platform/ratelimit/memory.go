package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter enforces per-key limits inside one process with a token
// bucket per key: each bucket holds up to limit tokens and refills at limit
// per window. It has the same Allow contract as RateLimiter.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// NewMemoryLimiter creates an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket.
//
// Returns:
//   - The bucket state after this request; ResetAt is when the next token is available
//   - ErrLimitExceeded when the bucket is empty
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if l == nil || limit <= 0 || window <= 0 {
		return Decision{Limit: limit, Remaining: limit}, nil
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok || b.limit != limit || b.window != window {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			limit:   limit,
			window:  window,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	decision := Decision{
		Limit:     limit,
		Remaining: max(0, int(tokens)),
		ResetAt:   now,
	}
	if tokens < 1 {
		perToken := window / time.Duration(limit)
		decision.ResetAt = now.Add(time.Duration((1 - tokens) * float64(perToken)))
	}
	if !allowed {
		return decision, ErrLimitExceeded
	}
	return decision, nil
}

// sweep drops buckets idle for a full window; they would have refilled to
// capacity, which is the state of a new bucket. Runs at most once a minute.
// Callers hold l.mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= b.window {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
