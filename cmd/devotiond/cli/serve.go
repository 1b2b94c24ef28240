package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Proton-105/devotion/internal/api"
	apperrors "github.com/Proton-105/devotion/internal/errors"
	"github.com/Proton-105/devotion/internal/health"
	"github.com/Proton-105/devotion/internal/idempotency"
	"github.com/Proton-105/devotion/internal/jobs"
	"github.com/Proton-105/devotion/internal/jobs/handlers"
	"github.com/Proton-105/devotion/internal/lifecycle"
	"github.com/Proton-105/devotion/internal/middleware"
	"github.com/Proton-105/devotion/internal/ratelimit"
	"github.com/Proton-105/devotion/pkg/config"
	"github.com/Proton-105/devotion/pkg/graceful"
	"github.com/Proton-105/devotion/pkg/logger"
	"github.com/Proton-105/devotion/pkg/metrics"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, root, bootstrapOptions{serving: true})
			if err != nil {
				return err
			}
			defer a.close()

			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	log := a.log
	clock := clockwork.NewRealClock()
	shutdown := lifecycle.NewShutdown(log)

	config.Watch(a.viper, log, func(cfg config.Config) {
		if err := logger.SetLevel(cfg.Logger.Level); err != nil {
			log.Warn("ignoring log level change", slog.Any("error", err))
			return
		}
		log.Info("log level updated", slog.String("level", cfg.Logger.Level))
	})

	var redisClient *goredis.Client
	if a.redis != nil {
		redisClient = a.redis.Client
	}

	checker := health.NewChecker(log)
	checker.AddCheck("ledger", health.NewLedgerChecker(a.engine, 2*time.Second))
	if a.db != nil {
		checker.AddCheck("postgres", health.NewDBChecker(a.db))
	}
	if redisClient != nil {
		checker.AddCheck("redis", health.NewRedisChecker(redisClient))
	}
	probes := lifecycle.NewProbes(checker, log)

	background, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	shutdown.Register("background", func(context.Context) error {
		stopBackground()
		return nil
	})

	var limits *middleware.RateLimitMiddleware
	if a.cfg.RateLimit.Enabled {
		memory := ratelimit.NewMemoryLimiter(clock, log)
		var limiter ratelimit.Limiter = memory
		if redisClient != nil {
			limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(redisClient, clock, log), memory, log)
		}
		limits = middleware.NewRateLimitMiddleware(limiter, ratelimit.NewRules(a.cfg.RateLimit), clock, log)
		go ratelimit.NewCleaner(redisClient, memory, clock, a.cfg.RateLimit.CleanupInterval, log).Run(background)
	}

	var idemStore interface {
		idempotency.Store
		idempotency.Sweeper
	}
	if redisClient != nil {
		idemStore = idempotency.NewRedisStore(redisClient, a.cfg.Idempotency.TTL, log)
	} else {
		idemStore = idempotency.NewMemoryStore(clock)
	}
	go idempotency.NewCleaner(idemStore, log, a.cfg.Idempotency.CleanupInterval).Run(background)

	go metrics.NewLedgerCollector(a.engine, 15*time.Second, log).Run(background)

	if a.cfg.Jobs.Enabled && redisClient != nil {
		if err := startJobs(a, shutdown); err != nil {
			stopBackground()
			return err
		}
	}

	handler := api.NewServer(api.Deps{
		Ledger:       a.engine,
		Health:       checker,
		Probes:       probes,
		RateLimit:    limits,
		Idempotency:  idempotency.NewManager(idemStore, a.cfg.Idempotency.TTL, a.cfg.Idempotency.LockTTL, log),
		ErrorHandler: apperrors.NewHandler(log, a.cfg.Sentry.Enabled),
		Log:          log,
	})
	srv := graceful.NewServer(log, handler, a.cfg.Server)

	shutdown.RegisterPhase(lifecycle.PhaseDrain, "readiness", probes.Drain)
	shutdown.Register("http", srv.Shutdown)
	shutdown.RegisterPhase(lifecycle.PhaseRelease, "clients", func(context.Context) error {
		a.close()
		return nil
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(context.Background())
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func startJobs(a *app, shutdown *lifecycle.Shutdown) error {
	redisOpt := a.asynqRedisOpt()

	worker := jobs.NewWorker(redisOpt, jobs.Queues, a.cfg.Jobs.Concurrency, a.log)
	worker.RegisterHandler(jobs.TaskTypeLedgerAudit, handlers.NewLedgerAuditHandler(a.engine, a.log))
	if err := worker.Start(); err != nil {
		return err
	}
	shutdown.Register("jobs worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})

	scheduler := jobs.NewScheduler(redisOpt, a.cfg.Jobs, a.log)
	if err := scheduler.RegisterTasks(); err != nil {
		return err
	}
	scheduler.Run()
	shutdown.RegisterPhase(lifecycle.PhaseDrain, "jobs scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})
	return nil
}
