package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type stubLedger struct {
	err error
}

func (s stubLedger) Config(context.Context) (*domain.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Config{}, nil
}

func TestChecker_Check(t *testing.T) {
	c := NewChecker(testLogger())
	c.AddCheck("ok", checkFunc(func(context.Context) error { return nil }))
	c.AddCheck("broken", checkFunc(func(context.Context) error { return errors.New("connection refused") }))
	c.AddCheck("", checkFunc(func(context.Context) error { return nil }))
	c.AddCheck("nil", nil)

	results := c.Check(context.Background())
	assert.Equal(t, map[string]string{"ok": StatusOK, "broken": "connection refused"}, results)
	assert.EqualError(t, c.Healthy(context.Background()), "broken: connection refused")
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, NewRedisChecker(client).HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, NewRedisChecker(client).HealthCheck(context.Background()))
	assert.Error(t, NewRedisChecker(nil).HealthCheck(context.Background()))
}

func TestLedgerChecker(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "initialized"},
		{name: "not initialized yet", err: fmt.Errorf("load: %w", devotion.ErrNotInitialized)},
		{name: "store down", err: errors.New("dial tcp: refused"), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewLedgerChecker(stubLedger{err: tc.err}, 0).HealthCheck(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.Error(t, NewLedgerChecker(nil, 0).HealthCheck(context.Background()))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
