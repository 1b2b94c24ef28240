package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
)

type stubSource struct {
	agg *domain.Aggregate
	err error
}

func (s stubSource) Aggregate(context.Context) (*domain.Aggregate, error) {
	return s.agg, s.err
}

func TestRecordOperation_DefaultsLabels(t *testing.T) {
	before := testutil.ToFloat64(operationsTotal.WithLabelValues("unknown", "unknown"))
	RecordOperation("", "", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(operationsTotal.WithLabelValues("unknown", "unknown")))
}

func TestRecordAudit(t *testing.T) {
	consistent := testutil.ToFloat64(auditRunsTotal.WithLabelValues("consistent"))
	mismatch := testutil.ToFloat64(auditRunsTotal.WithLabelValues("mismatch"))

	RecordAudit(&devotion.AuditReport{TotalStaked: 42, SumOfAmounts: 42, Positions: 3})
	assert.Equal(t, consistent+1, testutil.ToFloat64(auditRunsTotal.WithLabelValues("consistent")))
	assert.Equal(t, float64(42), testutil.ToFloat64(totalStaked))
	assert.Equal(t, float64(3), testutil.ToFloat64(livePositions))

	RecordAudit(&devotion.AuditReport{TotalStaked: 42, SumOfAmounts: 41, Positions: 3})
	assert.Equal(t, mismatch+1, testutil.ToFloat64(auditRunsTotal.WithLabelValues("mismatch")))
}

func TestLedgerCollector_Collect(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	c := NewLedgerCollector(stubSource{agg: &domain.Aggregate{TotalStaked: 7_000}}, time.Second, log)
	require.NoError(t, c.collect(context.Background()))
	assert.Equal(t, float64(7_000), testutil.ToFloat64(totalStaked))

	failing := NewLedgerCollector(stubSource{err: errors.New("down")}, time.Second, log)
	assert.Error(t, failing.collect(context.Background()))
}
