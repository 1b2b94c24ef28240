package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrDraining is reported by Readiness once shutdown has begun.
var ErrDraining = errors.New("service is shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Dependencies reports whether every backing component is reachable.
type Dependencies interface {
	Healthy(ctx context.Context) error
}

// Probes answers liveness unconditionally and readiness from the dependency checks.
type Probes struct {
	deps     Dependencies
	draining atomic.Bool
	log      *slog.Logger
}

var _ HealthChecker = (*Probes)(nil)

// NewProbes creates a new Probes instance. deps may be nil.
func NewProbes(deps Dependencies, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{deps: deps, log: log}
}

// Liveness reports that the process is running.
func (p *Probes) Liveness(ctx context.Context) error {
	p.log.Debug("liveness probe called")
	return nil
}

// Readiness fails while draining or when a dependency is unhealthy.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return ErrDraining
	}
	if p.deps == nil {
		return nil
	}
	return p.deps.Healthy(ctx)
}

// Drain marks the service as not ready. It is meant to be the first shutdown hook.
func (p *Probes) Drain(ctx context.Context) error {
	if !p.draining.Swap(true) {
		p.log.Info("readiness disabled for shutdown")
	}
	return nil
}
