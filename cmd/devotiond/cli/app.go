package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/spf13/viper"

	"github.com/Proton-105/devotion/internal/devotion"
	apperrors "github.com/Proton-105/devotion/internal/errors"
	"github.com/Proton-105/devotion/internal/repository"
	"github.com/Proton-105/devotion/pkg/config"
	"github.com/Proton-105/devotion/pkg/logger"
	appredis "github.com/Proton-105/devotion/pkg/redis"

	_ "github.com/lib/pq"
)

// app holds the resources shared by every command.
type app struct {
	cfg    *config.Config
	viper  *viper.Viper
	log    *slog.Logger
	db     *sql.DB
	redis  *appredis.Client
	engine *devotion.Engine

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

type bootstrapOptions struct {
	// redis connects Redis even when the ledger is stored elsewhere.
	redis bool
	// database connects PostgreSQL even when the ledger is stored elsewhere.
	database bool
	// serving also connects Redis when rate limiting or jobs are enabled.
	serving bool
}

func bootstrap(ctx context.Context, root *rootOptions, opts bootstrapOptions) (*app, error) {
	cfg, v, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, viper: v, log: logger.New(*cfg)}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      sentryEnvironment(cfg),
			SampleRate:       cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		}); err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		a.onClose("sentry", func() error {
			sentry.Flush(2 * time.Second)
			return nil
		})
	}

	if err := a.connect(ctx, opts); err != nil {
		a.close()
		return nil, err
	}

	store, err := a.ledgerStore()
	if err != nil {
		a.close()
		return nil, err
	}

	programID, err := solana.PublicKeyFromBase58(cfg.Ledger.ProgramID)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("parse ledger.program_id: %w", err)
	}

	a.engine = devotion.NewEngine(store, programID, a.log,
		devotion.WithDeposits(devotion.Deposits{
			Record: cfg.Deposits.Record,
			Vault:  cfg.Deposits.Vault,
		}),
	)

	a.log.Info("devotion ledger ready",
		slog.String("env", cfg.AppEnv),
		slog.String("storage", cfg.Ledger.Storage),
		slog.String("program_id", programID.String()),
	)
	return a, nil
}

func (a *app) connect(ctx context.Context, opts bootstrapOptions) error {
	if opts.database || a.cfg.Ledger.Storage == "postgres" {
		db, err := openDatabase(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.db = db
		a.onClose("postgres", db.Close)
	}

	needRedis := opts.redis || a.cfg.Ledger.Storage == "redis" ||
		(opts.serving && (a.cfg.RateLimit.Enabled || a.cfg.Jobs.Enabled))
	if needRedis {
		client, err := appredis.New(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		a.redis = client
		a.onClose("redis", client.Close)
	}
	return nil
}

func (a *app) ledgerStore() (devotion.Store, error) {
	retry := repository.WithRetryPolicy(apperrors.RetryPolicy{
		MaxAttempts:    a.cfg.Ledger.ConflictRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     a.cfg.Ledger.ConflictMaxBackoff,
		Multiplier:     2,
	})

	switch a.cfg.Ledger.Storage {
	case "memory":
		a.log.Warn("ledger uses in-memory storage, state is lost on exit")
		return repository.NewMemoryStore(), nil
	case "redis":
		return repository.NewRedisStore(a.redis.Client, a.log, retry), nil
	case "postgres":
		return repository.NewPostgresStore(a.db, a.log, retry), nil
	default:
		return nil, fmt.Errorf("unknown ledger storage %q", a.cfg.Ledger.Storage)
	}
}

func (a *app) asynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}
}

func (a *app) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Error("close failed", slog.String("resource", c.name), slog.Any("error", err))
		}
	}
	a.closers = nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	err = apperrors.WithRetry(ctx, func() error {
		if err := db.PingContext(ctx); err != nil {
			return apperrors.NewUnavailableError("postgres", err)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("ping database: %w", err), db.Close())
	}
	return db, nil
}

func sentryEnvironment(cfg *config.Config) string {
	if cfg.Sentry.Environment != "" {
		return cfg.Sentry.Environment
	}
	return cfg.AppEnv
}
