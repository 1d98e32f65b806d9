package generation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry settings applied to provider calls.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialDelay   = 600 * time.Millisecond
	DefaultMultiplier     = 2.0
	DefaultJitterFraction = 0.2
)

// retryableStatuses lists the provider statuses treated as transient:
// request timeout, too many requests, bad gateway and service unavailable.
var retryableStatuses = map[int]struct{}{
	408: {},
	429: {},
	502: {},
	503: {},
}

// IsRetryableStatus reports whether a failure with the given status should be
// retried. A missing status (zero) is never retried.
func IsRetryableStatus(status int) bool {
	_, ok := retryableStatuses[status]
	return ok
}

// RetryPolicy holds the backoff parameters of a Retrier.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// Multiplier grows the delay between consecutive attempts.
	Multiplier float64
	// JitterFraction adds up to this fraction of the computed delay at random.
	JitterFraction float64
}

// DefaultRetryPolicy returns the policy used for provider calls: three
// attempts, starting at 600ms and doubling, with up to 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialDelay:   DefaultInitialDelay,
		Multiplier:     DefaultMultiplier,
		JitterFraction: DefaultJitterFraction,
	}
}

// Delay computes the wait after the given failed attempt (1-based).
//
// Parameters:
//   - attempt: the number of the attempt that just failed
//   - jitter: a random value in [0, 1)
//
// Returns:
//   - initialDelay * multiplier^(attempt-1), plus up to JitterFraction of that base
func (p RetryPolicy) Delay(attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	base := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	return time.Duration(base + base*p.JitterFraction*jitter)
}

// RetryHook is called each time a retry is scheduled.
type RetryHook func(attempt int, status int, delay time.Duration)

// Retrier re-runs an operation on transient provider failures.
type Retrier struct {
	policy  RetryPolicy
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	random  func() float64
	onRetry RetryHook
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithSleep replaces the wait between attempts. Tests use it to avoid real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) {
		r.sleep = sleep
	}
}

// WithJitterSource replaces the random source used for jitter.
func WithJitterSource(random func() float64) RetrierOption {
	return func(r *Retrier) {
		r.random = random
	}
}

// WithRetryHook registers a callback invoked before every scheduled retry.
func WithRetryHook(hook RetryHook) RetrierOption {
	return func(r *Retrier) {
		r.onRetry = hook
	}
}

// NewRetrier creates a Retrier with the given policy.
// A nil logger falls back to slog.Default().
func NewRetrier(policy RetryPolicy, logger *slog.Logger, opts ...RetrierOption) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retrier{
		policy: policy,
		logger: logger.With(slog.String("component", "retrier")),
		sleep:  sleepContext,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the policy the Retrier was built with.
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do runs op until it succeeds, fails with a non-retryable status, or the
// attempt budget is spent. The last failure is returned unchanged so callers
// can classify it. If ctx is cancelled while waiting, the context error is
// returned wrapped.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.DebugContext(ctx, "operation succeeded after retry",
					"attempt", attempt)
			}
			return nil
		}

		status, _ := StatusOf(err)
		if !IsRetryableStatus(status) {
			r.logger.DebugContext(ctx, "non-retryable failure, giving up",
				"attempt", attempt,
				"status", status)
			return err
		}
		if attempt == r.policy.MaxAttempts {
			r.logger.WarnContext(ctx, "maximum retry attempts reached",
				"attempt", attempt,
				"max_attempts", r.policy.MaxAttempts,
				"status", status)
			return err
		}

		delay := r.policy.Delay(attempt, r.random())
		r.logger.InfoContext(ctx, "retrying after transient failure",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"status", status,
			"delay_ms", delay.Milliseconds())
		if r.onRetry != nil {
			r.onRetry(attempt, status, delay)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry wait interrupted after attempt %d: %w", attempt, err)
		}
	}

	return ErrMaxRetries
}

// Retry runs op through the Retrier and returns its value.
func Retry[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
