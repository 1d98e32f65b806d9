package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/vertex-studio/internal/api/shared"
	"github.com/phrazzld/vertex-studio/internal/platform/logger"
	"github.com/phrazzld/vertex-studio/internal/platform/ratelimit"
)

// Limiter is the subset of *ratelimit.RateLimiter used by RateLimit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error)
}

// RateLimitRule configures one rate-limit scope.
type RateLimitRule struct {
	// Scope namespaces the counters, e.g. "global" or "generate".
	Scope string
	// PerMinute is the number of requests allowed per client per minute.
	// Zero or less disables the rule.
	PerMinute int
	// Skip exempts matching requests from the rule.
	Skip func(r *http.Request) bool
}

// SkipPathPrefixes returns a Skip func exempting requests whose path starts
// with any of the prefixes.
func SkipPathPrefixes(prefixes ...string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		for _, prefix := range prefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				return true
			}
		}
		return false
	}
}

// RateLimit returns middleware enforcing rule per client IP. Requests over the
// limit get 429 with a Retry-After header. Limiter failures are logged and the
// request is let through.
func RateLimit(limiter Limiter, rule RateLimitRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || rule.PerMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rule.Skip != nil && rule.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := rule.Scope + ":" + clientIP(r)
			decision, err := limiter.Allow(r.Context(), key, rule.PerMinute, time.Minute)
			switch {
			case errors.Is(err, ratelimit.ErrLimitExceeded):
				retryAfter := max(1, int(time.Until(decision.ResetAt).Seconds()+0.5))
				setRateLimitHeaders(w, decision)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
					fmt.Sprintf("Rate limit exceeded, retry in %d seconds", retryAfter), err)
				return
			case err != nil:
				logger.FromContext(r.Context()).Warn("rate limiter unavailable, allowing request",
					"scope", rule.Scope,
					"error", err)
			default:
				setRateLimitHeaders(w, decision)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, decision ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP middleware
// has already replaced with the forwarded client address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
