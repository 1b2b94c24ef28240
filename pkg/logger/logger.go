// Package logger builds the service's structured logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/devotion/pkg/config"
)

// level is shared by every logger built by New so a config reload can change verbosity.
var level = new(slog.LevelVar)

// New creates a slog.Logger from cfg. Records pass through MaskingHandler and,
// when Sentry is enabled, error records are also forwarded to Sentry.
func New(cfg config.Config) *slog.Logger {
	if err := SetLevel(cfg.Logger.Level); err != nil {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AppEnv != "production",
	}

	var handler slog.Handler
	out := writer(cfg.Logger)
	if strings.EqualFold(cfg.Logger.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	if cfg.Sentry.Enabled {
		handler = slogmulti.Fanout(
			handler,
			slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
		)
	}

	return slog.New(NewMaskingHandler(handler)).With(
		slog.String("service", "devotion"),
		slog.String("env", cfg.AppEnv),
	)
}

// SetLevel changes the level of every logger built by New.
func SetLevel(name string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("parse log level %q: %w", name, err)
	}
	level.Set(l)
	return nil
}

// Level returns the current level.
func Level() slog.Level {
	return level.Level()
}

func writer(cfg config.LoggerConfig) io.Writer {
	if cfg.Output != "file" || cfg.File.Path == "" {
		return os.Stdout
	}

	return &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSizeMB,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAgeDays,
		Compress:   cfg.File.Compress,
	}
}
