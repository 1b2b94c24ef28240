package config

import (
	"fmt"
	"time"

	"github.com/Proton-105/devotion/pkg/redis"
)

// Config holds runtime configuration for the devotion ledger service.
type Config struct {
	AppEnv      string            `mapstructure:"app_env"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       redis.Config      `mapstructure:"redis"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Deposits    DepositsConfig    `mapstructure:"deposits"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
}

type LoggerConfig struct {
	Level  string     `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string     `mapstructure:"format" validate:"oneof=json text"`
	Output string     `mapstructure:"output" validate:"oneof=stdout file"`
	File   FileConfig `mapstructure:"file"`
}

// FileConfig controls the rotating log file used when Output is "file".
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns a lib/pq connection string built from the configured fields.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// LedgerConfig selects the program namespace and the storage backend.
type LedgerConfig struct {
	ProgramID string `mapstructure:"program_id" validate:"required"`
	Storage   string `mapstructure:"storage" validate:"oneof=memory redis postgres"`
	// ConflictRetries caps attempts of one optimistic transaction. Zero retries until the request deadline.
	ConflictRetries    int           `mapstructure:"conflict_retries" validate:"gte=0"`
	ConflictMaxBackoff time.Duration `mapstructure:"conflict_max_backoff"`
}

// DepositsConfig holds the storage deposits charged on first stake, in native base units.
type DepositsConfig struct {
	Record uint64 `mapstructure:"record"`
	Vault  uint64 `mapstructure:"vault"`
}

type RateLimitConfig struct {
	Enabled         bool            `mapstructure:"enabled"`
	Whitelist       []string        `mapstructure:"whitelist"`
	Global          RateLimitRule   `mapstructure:"global"`
	PerCaller       RateLimitRule   `mapstructure:"per_caller"`
	Operations      OperationLimits `mapstructure:"operations"`
	CleanupInterval time.Duration   `mapstructure:"cleanup_interval"`
}

// OperationLimits are per-caller limits for individual write operations.
type OperationLimits struct {
	Initialize RateLimitRule `mapstructure:"initialize"`
	Devote     RateLimitRule `mapstructure:"devote"`
	Waver      RateLimitRule `mapstructure:"waver"`
	Heresy     RateLimitRule `mapstructure:"heresy"`
}

type RateLimitRule struct {
	Limit  int    `mapstructure:"limit" validate:"gte=0"`
	Window string `mapstructure:"window"`
}

type IdempotencyConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type JobsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AuditCron   string `mapstructure:"audit_cron"`
	Concurrency int    `mapstructure:"concurrency" validate:"gte=0"`
}
