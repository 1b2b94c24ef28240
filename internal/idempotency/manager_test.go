package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory struct {
	name string
	new  func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{name: "memory", new: func(t *testing.T) Store { return NewMemoryStore(nil) }},
		{name: "redis", new: func(t *testing.T) Store {
			client, _ := setupTestRedis(t)
			return NewRedisStore(client, 25*time.Hour, testLogger())
		}},
	}
}

func okResponse(body string) *Response {
	return &Response{StatusCode: http.StatusOK, Body: json.RawMessage(body)}
}

func TestManager_ReplaysCompletedResponse(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			m := NewManager(factory.new(t), time.Hour, time.Minute, testLogger())
			ctx := context.Background()
			key := GenerateKey("caller", "/v1/devote", "abc")
			fingerprint := Fingerprint([]byte(`{"amount":"5"}`))

			calls := 0
			op := func(context.Context) (*Response, error) {
				calls++
				return okResponse(`{"amount":"5"}`), nil
			}

			first, err := m.Execute(ctx, key, fingerprint, op)
			require.NoError(t, err)
			assert.False(t, first.FromCache)

			second, err := m.Execute(ctx, key, fingerprint, op)
			require.NoError(t, err)
			assert.True(t, second.FromCache)
			assert.Equal(t, http.StatusOK, second.Response.StatusCode)
			assert.JSONEq(t, `{"amount":"5"}`, string(second.Response.Body))
			assert.Equal(t, 1, calls)
		})
	}
}

func TestManager_RejectsKeyReuseWithDifferentBody(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			m := NewManager(factory.new(t), time.Hour, time.Minute, testLogger())
			ctx := context.Background()

			_, err := m.Execute(ctx, "k", Fingerprint([]byte("a")), func(context.Context) (*Response, error) {
				return okResponse(`{}`), nil
			})
			require.NoError(t, err)

			_, err = m.Execute(ctx, "k", Fingerprint([]byte("b")), func(context.Context) (*Response, error) {
				t.Fatal("operation must not run")
				return nil, nil
			})
			assert.ErrorIs(t, err, ErrKeyReused)
		})
	}
}

func TestManager_FailedOperationIsNotStored(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			m := NewManager(factory.new(t), time.Hour, time.Minute, testLogger())
			ctx := context.Background()
			errDown := errors.New("store down")

			_, err := m.Execute(ctx, "k", "fp", func(context.Context) (*Response, error) {
				return nil, errDown
			})
			assert.ErrorIs(t, err, errDown)

			result, err := m.Execute(ctx, "k", "fp", func(context.Context) (*Response, error) {
				return okResponse(`{"ok":true}`), nil
			})
			require.NoError(t, err)
			assert.False(t, result.FromCache)
		})
	}
}

func TestManager_InProgress(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.new(t)
			m := NewManager(store, time.Hour, time.Minute, testLogger())
			ctx := context.Background()

			locked, err := store.Lock(ctx, "busy", time.Minute)
			require.NoError(t, err)
			require.True(t, locked)

			_, err = m.Execute(ctx, "busy", "fp", func(context.Context) (*Response, error) {
				return okResponse(`{}`), nil
			})
			assert.ErrorIs(t, err, ErrRequestInProgress)
		})
	}
}

func TestMemoryStore_ExpiresRecordsAndLocks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	store := NewMemoryStore(clock)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", &Record{Status: StatusCompleted}, time.Minute))
	locked, err := store.Lock(ctx, "l", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	clock.Advance(2 * time.Minute)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	record, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRedisStore_SweepRemovesKeysWithoutExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, 25*time.Hour, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "fresh", &Record{Status: StatusCompleted}, time.Hour))
	require.NoError(t, mr.Set(recordKey("orphan"), "x"))

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.True(t, mr.Exists(recordKey("fresh")))
	assert.False(t, mr.Exists(recordKey("orphan")))
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
