// Package handlers holds the asynq task handlers.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/jobs"
	"github.com/Proton-105/devotion/pkg/metrics"
)

// Auditor reconciles the ledger.
type Auditor interface {
	Audit(ctx context.Context) (*devotion.AuditReport, error)
}

type LedgerAuditHandler struct {
	auditor Auditor
	log     *slog.Logger
}

func NewLedgerAuditHandler(auditor Auditor, log *slog.Logger) *LedgerAuditHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LedgerAuditHandler{auditor: auditor, log: log}
}

// ProcessTask runs one audit. An uninitialized ledger is skipped, a store
// failure is retried.
func (h *LedgerAuditHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := jobs.ParseLedgerAuditPayload(t)
	if err != nil {
		h.log.ErrorContext(ctx, "ledger audit: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	report, err := h.auditor.Audit(ctx)
	if err != nil {
		if devotion.IsRuleViolation(err) {
			h.log.InfoContext(ctx, "ledger audit skipped", slog.String("reason", err.Error()))
			return nil
		}
		metrics.RecordAudit(nil)
		return fmt.Errorf("audit ledger: %w", err)
	}
	metrics.RecordAudit(report)

	args := []any{
		slog.String("requested_by", payload.RequestedBy),
		slog.Uint64("total_staked", report.TotalStaked),
		slog.Uint64("sum_of_amounts", report.SumOfAmounts),
		slog.Int("positions", report.Positions),
		slog.Int("vault_mismatches", len(report.VaultMismatches)),
	}

	if report.Consistent() {
		h.log.InfoContext(ctx, "ledger audit passed", args...)
		return nil
	}

	h.log.ErrorContext(ctx, "ledger audit found inconsistencies", args...)
	for _, m := range report.VaultMismatches {
		h.log.ErrorContext(ctx, "vault mismatch",
			slog.String("owner", m.Owner.String()),
			slog.String("vault", m.Vault.String()),
			slog.Uint64("amount", m.Amount),
			slog.Uint64("vault_balance", m.VaultBalance),
		)
	}

	if payload.FailOnMismatch {
		return fmt.Errorf("ledger inconsistent: %w", asynq.SkipRetry)
	}
	return nil
}
