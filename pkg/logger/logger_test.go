package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/devotion/pkg/config"
)

func TestMaskingHandler_MasksSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil))).
		With(slog.String("password", "hunter2"))

	log.Info("connecting",
		slog.String("dsn", "host=db password=x"),
		slog.Group("redis", slog.String("addr", "localhost:6379"), slog.String("Secret", "abc")),
		slog.String("owner", "7hDwC4DTSsUo3mEJDkqScizwf5kdxwYkbUoHnEvyBsCU"),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, maskedValue, entry["password"])
	assert.Equal(t, maskedValue, entry["dsn"])
	assert.Equal(t, "7hDwC4DTSsUo3mEJDkqScizwf5kdxwYkbUoHnEvyBsCU", entry["owner"])

	group, ok := entry["redis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "localhost:6379", group["addr"])
	assert.Equal(t, maskedValue, group["Secret"])
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { level.Set(slog.LevelInfo) })

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, slog.LevelDebug, Level())

	require.NoError(t, SetLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, Level())

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, slog.LevelWarn, Level())
}

func TestNew_RespectsConfiguredLevel(t *testing.T) {
	t.Cleanup(func() { level.Set(slog.LevelInfo) })

	log := New(config.Config{
		AppEnv: "test",
		Logger: config.LoggerConfig{Level: "error", Format: "json", Output: "stdout"},
	})

	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Enabled(context.Background(), slog.LevelError))

	require.NoError(t, SetLevel("debug"))
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))
}

func TestMiddleware_CorrelationID(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, supplied)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, supplied, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "not-a-uuid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "not-a-uuid", seen)
}
