package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "github.com/Proton-105/devotion/internal/errors"
	"github.com/Proton-105/devotion/internal/ratelimit"
)

// RateLimitMiddleware enforces global, per-caller and per-operation limits.
// Limiter failures are logged and the request is let through.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	clock   clockwork.Clock
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, clock clockwork.Clock, log *slog.Logger) *RateLimitMiddleware {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		clock:   clock,
		log:     log,
	}
}

// Global limits all requests together.
func (m *RateLimitMiddleware) Global(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.rules == nil {
			next.ServeHTTP(w, r)
			return
		}

		limit, window, err := m.rules.GetGlobalLimit()
		if m.allow(w, r, "global", limit, window, err) {
			next.ServeHTTP(w, r)
		}
	})
}

// Operation limits a write operation per caller. It must run after RequireCaller.
func (m *RateLimitMiddleware) Operation(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if m.limiter == nil || m.rules == nil || !ok || m.rules.IsWhitelisted(caller.String()) {
				next.ServeHTTP(w, r)
				return
			}

			limit, window, err := m.rules.GetPerCallerLimit()
			if !m.allow(w, r, "caller:"+caller.String(), limit, window, err) {
				return
			}

			limit, window, err = m.rules.GetOperationLimit(operation)
			if !m.allow(w, r, "op:"+operation+":"+caller.String(), limit, window, err) {
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow checks one rule and writes a 429 when the key is over its limit.
func (m *RateLimitMiddleware) allow(w http.ResponseWriter, r *http.Request, key string, limit int, window time.Duration, ruleErr error) bool {
	if ruleErr != nil {
		if !errors.Is(ruleErr, ratelimit.ErrNoRule) {
			m.log.Error("invalid rate limit rule", slog.String("key", key), slog.Any("error", ruleErr))
		}
		return true
	}

	result, err := m.limiter.Check(r.Context(), key, limit, window)
	if err != nil {
		m.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if result.Allowed {
		return true
	}

	retryAfter := result.RetryAfter(m.clock.Now())
	m.log.Warn("rate limit exceeded", slog.String("key", key), slog.Int("retry_after", retryAfter))

	appErr := apperrors.NewRateLimitError(retryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteError(w, http.StatusTooManyRequests, appErr.Code, appErr.UserMessage)
	return false
}
