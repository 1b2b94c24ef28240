package errors

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how a retryable failure is re-run.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Zero retries until ctx is done.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy suits calls to remote dependencies.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    4,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	Multiplier:     2,
}

// ConflictRetryPolicy suits optimistic ledger transactions. A conflicting
// attempt only fails when another writer committed during it, so the attempt
// budget is the number of writers that may race on one key.
var ConflictRetryPolicy = RetryPolicy{
	MaxAttempts:    64,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     50 * time.Millisecond,
	Multiplier:     2,
}

// WithRetry runs fn under DefaultRetryPolicy.
func WithRetry(ctx context.Context, fn func() error) error {
	return DefaultRetryPolicy.Do(ctx, fn)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx is done. Waits are jittered.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return errors.Join(err, ctxErr)
			}
			return ctxErr
		}

		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return err
		}

		wait := p.backoff(attempt)
		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// backoff returns a wait in [d/2, d] where d grows exponentially with attempt
// and is capped at MaxBackoff.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	if d <= 0 {
		d = time.Millisecond
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * multiplier)
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}

	half := d / 2
	return half + rand.N(d-half+1)
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return false
}
