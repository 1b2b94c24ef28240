// Package api exposes the ledger over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
	apperrors "github.com/Proton-105/devotion/internal/errors"
	"github.com/Proton-105/devotion/internal/idempotency"
	"github.com/Proton-105/devotion/internal/lifecycle"
	"github.com/Proton-105/devotion/internal/middleware"
	"github.com/Proton-105/devotion/pkg/logger"
)

// Ledger is the subset of the devotion engine served over HTTP.
type Ledger interface {
	Initialize(ctx context.Context, params devotion.InitializeParams) (*domain.Config, error)
	Devote(ctx context.Context, caller solana.PublicKey, amount uint64, accounts devotion.Accounts) (*devotion.DevoteReceipt, error)
	Waver(ctx context.Context, caller solana.PublicKey, amount uint64, accounts devotion.Accounts) (*devotion.WaverReceipt, error)
	Heresy(ctx context.Context, caller solana.PublicKey, accounts devotion.Accounts) (*devotion.HeresyReceipt, error)
	CheckDevotion(ctx context.Context, owner solana.PublicKey) (uint64, error)
	Position(ctx context.Context, owner solana.PublicKey) (*devotion.Position, error)
	Config(ctx context.Context) (*domain.Config, error)
	Aggregate(ctx context.Context) (*domain.Aggregate, error)
}

// HealthReporter reports per-component health.
type HealthReporter interface {
	Check(ctx context.Context) map[string]string
}

// Deps wires the server. Only Ledger is required.
type Deps struct {
	Ledger       Ledger
	Health       HealthReporter
	Probes       lifecycle.HealthChecker
	RateLimit    *middleware.RateLimitMiddleware
	Idempotency  idempotency.Manager
	ErrorHandler *apperrors.Handler
	Log          *slog.Logger
}

// Server routes HTTP requests to the ledger.
type Server struct {
	router   *chi.Mux
	ledger   Ledger
	health   HealthReporter
	probes   lifecycle.HealthChecker
	limits   *middleware.RateLimitMiddleware
	idem     idempotency.Manager
	errs     *apperrors.Handler
	breaker  *apperrors.CircuitBreaker
	validate *validator.Validate
	log      *slog.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	errs := deps.ErrorHandler
	if errs == nil {
		errs = apperrors.NewHandler(log, false)
	}

	s := &Server{
		router:   chi.NewRouter(),
		ledger:   deps.Ledger,
		health:   deps.Health,
		probes:   deps.Probes,
		limits:   deps.RateLimit,
		idem:     deps.Idempotency,
		errs:     errs,
		breaker:  apperrors.NewCircuitBreaker(countsAgainstBreaker),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Use(chimw.Recoverer)
	s.router.Use(logger.Middleware)
	s.router.Use(middleware.Logging(s.log))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/livez", s.handleLiveness)
	s.router.Get("/readyz", s.handleReadiness)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		if s.limits != nil {
			r.Use(s.limits.Global)
		}

		r.Get("/config", s.handleConfig)
		r.Get("/aggregate", s.handleAggregate)
		r.Get("/devotion/{owner}", s.handlePosition)
		r.Get("/devotion/{owner}/score", s.handleScore)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCaller)

			r.With(s.write(devotion.OpInitialize)...).Post("/initialize", s.handleInitialize)
			r.With(s.write(devotion.OpDevote)...).Post("/devote", s.handleDevote)
			r.With(s.write(devotion.OpWaver)...).Post("/waver", s.handleWaver)
			r.With(s.write(devotion.OpHeresy)...).Post("/heresy", s.handleHeresy)
		})
	})
}

// write returns the middleware stack of a ledger write route.
func (s *Server) write(operation string) []func(http.Handler) http.Handler {
	var stack []func(http.Handler) http.Handler
	if s.limits != nil {
		stack = append(stack, s.limits.Operation(operation))
	}
	stack = append(stack, middleware.Idempotency(s.idem, s.log))
	return stack
}

// call runs fn through the circuit breaker guarding the ledger store.
func (s *Server) call(fn func() error) error {
	err := s.breaker.Call(fn)
	if errors.Is(err, apperrors.ErrCircuitOpen) {
		return apperrors.NewUnavailableError("ledger store", err)
	}
	return err
}

// countsAgainstBreaker ignores rule violations and cancelled requests.
func countsAgainstBreaker(err error) bool {
	if err == nil || devotion.IsRuleViolation(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.CodeValidation {
		return false
	}
	return true
}
