package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/devotion/internal/devotion"
)

func TestFromLedger(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{name: "invalid argument", err: devotion.ErrInvalidArgument, code: CodeValidation},
		{name: "not initialized", err: devotion.ErrNotInitialized, code: CodeNotInitialized},
		{name: "already initialized", err: devotion.ErrAlreadyInitialized, code: CodeAlreadyInitialized},
		{name: "not found", err: fmt.Errorf("%w: owner", devotion.ErrNotFound), code: CodeNotFound},
		{name: "account mismatch", err: devotion.ErrAccountMismatch, code: CodeUnauthorized},
		{name: "insufficient balance", err: devotion.ErrInsufficientBalance, code: CodeInsufficientBalance},
		{name: "overflow", err: devotion.ErrArithmeticOverflow, code: CodeOverflow},
		{name: "conflict passes through", err: NewConflictError(errors.New("watch failed")), code: CodeConflict, retryable: true},
		{name: "unknown failure", err: errors.New("connection reset"), code: CodeDatabase, retryable: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := FromLedger(tc.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.retryable, appErr.Retryable)
			assert.ErrorIs(t, appErr, tc.err)
		})
	}

	assert.Nil(t, FromLedger(nil))
}

func TestWithRetry_RetriesRetryableErrors(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return NewConflictError(errors.New("conflict"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		return devotion.ErrInsufficientBalance
	})

	assert.ErrorIs(t, err, devotion.ErrInsufficientBalance)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_StopsAtAttemptBudget(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Microsecond, MaxBackoff: time.Microsecond, Multiplier: 2}

	attempts := 0
	err := policy.Do(context.Background(), func() error {
		attempts++
		return NewConflictError(errors.New("conflict"))
	})

	assert.Equal(t, CodeConflict, FromLedger(err).Code)
	assert.Equal(t, 5, attempts)
}

func TestRetryPolicy_UnboundedUntilContextDone(t *testing.T) {
	policy := RetryPolicy{InitialBackoff: time.Microsecond, MaxBackoff: time.Microsecond, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	err := policy.Do(ctx, func() error {
		attempts++
		if attempts == 100 {
			cancel()
		}
		return NewConflictError(errors.New("conflict"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 100, attempts)
}

func TestRetryPolicy_CancelInterruptsBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, Multiplier: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := policy.Do(ctx, func() error {
		return NewConflictError(errors.New("conflict"))
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRetryPolicy_BackoffIsJitteredAndCapped(t *testing.T) {
	policy := RetryPolicy{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond, Multiplier: 2}

	testCases := []struct {
		attempt int
		max     time.Duration
	}{
		{attempt: 1, max: 10 * time.Millisecond},
		{attempt: 2, max: 20 * time.Millisecond},
		{attempt: 3, max: 40 * time.Millisecond},
		{attempt: 10, max: 40 * time.Millisecond},
	}

	for _, tc := range testCases {
		seen := make(map[time.Duration]struct{})
		for i := 0; i < 50; i++ {
			wait := policy.backoff(tc.attempt)
			assert.GreaterOrEqual(t, wait, tc.max/2)
			assert.LessOrEqual(t, wait, tc.max)
			seen[wait] = struct{}{}
		}
		assert.Greater(t, len(seen), 1, "attempt %d", tc.attempt)
	}
}

func TestCircuitBreaker_ForgetsOldCounts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker(nil)
	cb.clock = clock
	cb.windowStart = clock.Now()

	for i := 0; i < MinRequests*10; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}

	clock.Advance(CountingWindow)

	for i := 0; i < MinRequests; i++ {
		_ = cb.Call(func() error { return errors.New("redis down") })
	}
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(TimeoutDuration)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_IgnoresRejectedErrors(t *testing.T) {
	cb := NewCircuitBreaker(func(err error) bool {
		return err != nil && !devotion.IsRuleViolation(err)
	})

	for i := 0; i < MinRequests*2; i++ {
		err := cb.Call(func() error { return devotion.ErrInsufficientBalance })
		assert.ErrorIs(t, err, devotion.ErrInsufficientBalance)
	}
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < MinRequests*2; i++ {
		_ = cb.Call(func() error { return errors.New("redis down") })
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Call(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
