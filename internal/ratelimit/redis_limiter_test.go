package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client, mr
}

func limiterFactories(t *testing.T, clock clockwork.Clock) map[string]Limiter {
	client, _ := setupTestRedis(t)
	return map[string]Limiter{
		"redis":  NewRedisLimiter(client, clock, testLogger()),
		"memory": NewMemoryLimiter(clock, testLogger()),
	}
}

func TestLimiter_AllowsWithinLimit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	for name, limiter := range limiterFactories(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				result, err := limiter.Check(ctx, "test:allows", 5, time.Minute)
				require.NoError(t, err)
				assert.True(t, result.Allowed)
				assert.Equal(t, 4-i, result.Remaining)
			}
		})
	}
}

func TestLimiter_BlocksWhenExceeded(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	for name, limiter := range limiterFactories(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 4; i++ {
				result, err := limiter.Check(ctx, "test:blocks", 2, time.Minute)
				require.NoError(t, err)
				assert.Equal(t, i < 2, result.Allowed, "request %d", i)
			}

			result, err := limiter.Check(ctx, "test:blocks", 2, time.Minute)
			require.NoError(t, err)
			assert.False(t, result.Allowed)
			assert.Zero(t, result.Remaining)
			assert.Equal(t, 60, result.RetryAfter(clock.Now()))
		})
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	for name, limiter := range limiterFactories(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 2; i++ {
				result, err := limiter.Check(ctx, "test:window", 2, time.Second)
				require.NoError(t, err)
				assert.True(t, result.Allowed)
			}

			result, err := limiter.Check(ctx, "test:window", 2, time.Second)
			require.NoError(t, err)
			assert.False(t, result.Allowed)

			clock.Advance(1100 * time.Millisecond)

			result, err = limiter.Check(ctx, "test:window", 2, time.Second)
			require.NoError(t, err)
			assert.True(t, result.Allowed)
		})
	}
}

func TestRedisLimiter_ZeroLimitRejects(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, nil, testLogger())

	result, err := limiter.Check(context.Background(), "test:zero", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis: connection refused")
}

func TestAdaptiveLimiter_FallsBackAtHalfLimit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := NewAdaptiveLimiter(failingLimiter{}, NewMemoryLimiter(clock, testLogger()), testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "caller", 4, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "caller", 4, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestCleaner_DropsIdleBucketsAndStaleKeys(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	client, mr := setupTestRedis(t)
	memory := NewMemoryLimiter(clock, testLogger())
	ctx := context.Background()

	_, err := memory.Check(ctx, "idle", 1, time.Second)
	require.NoError(t, err)
	require.NoError(t, mr.Set(redisKeyPrefix+"legacy", "x"))
	_, err = NewRedisLimiter(client, clock, testLogger()).Check(ctx, "live", 5, time.Minute)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	NewCleaner(client, memory, clock, time.Minute, testLogger()).cleanup(ctx)

	assert.Empty(t, memory.buckets)
	assert.False(t, mr.Exists(redisKeyPrefix+"legacy"))
	assert.True(t, mr.Exists(redisKeyPrefix+"live"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
