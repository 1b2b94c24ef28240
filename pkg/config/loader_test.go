package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
logger:
  level: info
  format: json
ledger:
  program_id: 7hDwC4DTSsUo3mEJDkqScizwf5kdxwYkbUoHnEvyBsCU
  storage: redis
deposits:
  record: 10
  vault: 20
rate_limit:
  operations:
    devote:
      limit: 5
      window: 30s
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ReadsFileAndDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), baseConfig)

	cfg, v, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "redis", cfg.Ledger.Storage)
	assert.Equal(t, uint64(10), cfg.Deposits.Record)
	assert.Equal(t, uint64(20), cfg.Deposits.Vault)
	assert.Equal(t, 5, cfg.RateLimit.Operations.Devote.Limit)
	assert.Equal(t, "30s", cfg.RateLimit.Operations.Devote.Window)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, "stdout", cfg.Logger.Output)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), baseConfig)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("LEDGER_STORAGE", "postgres")
	t.Setenv("DATABASE_PASSWORD", "s3cret")

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.AppEnv)
	assert.Equal(t, "postgres", cfg.Ledger.Storage)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=s3cret")
}

func TestLoad_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{
			name: "unknown storage",
			body: "ledger:\n  program_id: abc\n  storage: sqlite\n",
		},
		{
			name: "missing program id",
			body: "ledger:\n  storage: memory\n",
		},
		{
			name: "sentry without dsn",
			body: "ledger:\n  program_id: abc\nsentry:\n  enabled: true\n",
		},
		{
			name: "bad log level",
			body: "ledger:\n  program_id: abc\nlogger:\n  level: loud\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tc.body)
			_, _, err := Load(path)
			assert.ErrorContains(t, err, "validate config")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestWatch_ReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig)

	_, v, err := Load(path)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		level string
	)
	Watch(v, slog.New(slog.NewTextHandler(io.Discard, nil)), func(cfg Config) {
		mu.Lock()
		defer mu.Unlock()
		level = cfg.Logger.Level
	})

	writeConfig(t, dir, strings.Replace(baseConfig, "level: info", "level: debug", 1))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return level == "debug"
	}, 5*time.Second, 50*time.Millisecond)
}
