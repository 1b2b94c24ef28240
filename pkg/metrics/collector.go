package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devotion_operations_total",
			Help: "Total number of ledger operations labeled by operation and status",
		},
		[]string{"operation", "status"},
	)
	operationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devotion_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	totalStaked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devotion_total_staked",
			Help: "Raw units currently held across all vaults",
		},
	)
	livePositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devotion_live_positions",
			Help: "Number of open devotion records seen by the last audit",
		},
	)
	auditRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devotion_audit_runs_total",
			Help: "Total number of ledger audits by result",
		},
		[]string{"result"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func init() {
	devotion.RegisterOperationRecorder(RecordOperation)
}

// RecordOperation increments operation counters and records duration.
func RecordOperation(operation, status string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	operationsTotal.WithLabelValues(operation, status).Inc()
	operationDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// RecordHTTPRequest tracks a served request. route is the matched pattern, not the raw path.
func RecordHTTPRequest(route, method string, code int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}

	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordAudit updates ledger gauges from a finished audit.
func RecordAudit(report *devotion.AuditReport) {
	if report == nil {
		auditRunsTotal.WithLabelValues("error").Inc()
		return
	}

	totalStaked.Set(float64(report.TotalStaked))
	livePositions.Set(float64(report.Positions))

	if report.Consistent() {
		auditRunsTotal.WithLabelValues("consistent").Inc()
	} else {
		auditRunsTotal.WithLabelValues("mismatch").Inc()
	}
}

// SetTotalStaked updates the total staked gauge.
func SetTotalStaked(raw uint64) {
	totalStaked.Set(float64(raw))
}

// AggregateSource reports global ledger totals.
type AggregateSource interface {
	Aggregate(ctx context.Context) (*domain.Aggregate, error)
}

// LedgerCollector periodically reads the ledger aggregate and emits gauge metrics.
type LedgerCollector struct {
	source   AggregateSource
	interval time.Duration
	log      *slog.Logger
}

// NewLedgerCollector builds a metrics collector bound to source.
func NewLedgerCollector(source AggregateSource, interval time.Duration, log *slog.Logger) *LedgerCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &LedgerCollector{source: source, interval: interval, log: log}
}

// Run polls the ledger every interval, updating gauges until ctx is cancelled.
func (c *LedgerCollector) Run(ctx context.Context) {
	if c == nil || c.source == nil {
		return
	}

	for {
		if err := c.collect(ctx); err != nil {
			c.log.Debug("ledger metrics collection failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *LedgerCollector) collect(ctx context.Context) error {
	agg, err := c.source.Aggregate(ctx)
	if err != nil {
		return err
	}

	SetTotalStaked(agg.TotalStaked)
	return nil
}
