// Package ratelimit throttles ledger callers with sliding-window limits.
package ratelimit

import (
	"context"
	"time"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait, rounded up to whole seconds.
func (r *Result) RetryAfter(now time.Time) int {
	if r == nil || r.Allowed {
		return 0
	}
	wait := r.ResetAt.Sub(now)
	if wait <= 0 {
		return 1
	}
	return int((wait + time.Second - 1) / time.Second)
}

// Limiter describes a rate-limiting strategy interface. A rejected request is
// reported through Result.Allowed; errors mean the backend itself failed.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
