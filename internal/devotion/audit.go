package devotion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/devotion/internal/fixedpoint"
)

// VaultMismatch reports a vault whose balance differs from its record amount.
type VaultMismatch struct {
	Owner        solana.PublicKey
	Vault        solana.PublicKey
	Amount       uint64
	VaultBalance uint64
}

// AuditReport is the result of reconciling records, vaults and the aggregate.
type AuditReport struct {
	TotalStaked     uint64
	SumOfAmounts    uint64
	Positions       int
	VaultMismatches []VaultMismatch
	CheckedAt       int64
}

// Consistent reports whether the aggregate equals the sum of amounts and every vault matches its record.
func (r *AuditReport) Consistent() bool {
	return r.TotalStaked == r.SumOfAmounts && len(r.VaultMismatches) == 0
}

// Audit reconciles the ledger inside a single read view.
func (e *Engine) Audit(ctx context.Context) (report *AuditReport, err error) {
	defer e.observe(OpAudit, e.clock.Now(), &err)

	err = e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := requireConfig(ctx, tx)
		if err != nil {
			return err
		}
		agg, err := requireAggregate(ctx, tx)
		if err != nil {
			return err
		}

		records, err := tx.ListDevotions(ctx)
		if err != nil {
			return fmt.Errorf("list devotions: %w", err)
		}

		report = &AuditReport{
			TotalStaked: agg.TotalStaked,
			Positions:   len(records),
			CheckedAt:   e.clock.Now().Unix(),
		}

		for _, rec := range records {
			if report.SumOfAmounts, err = fixedpoint.AddUint64(report.SumOfAmounts, rec.Amount); err != nil {
				return arithmetic(err)
			}

			keys, err := e.keysFor(rec.Owner, cfg.StakeMint)
			if err != nil {
				return err
			}
			balance, err := tx.Balance(ctx, keys.vault)
			if err != nil {
				return fmt.Errorf("load vault: %w", err)
			}
			if balance != rec.Amount {
				report.VaultMismatches = append(report.VaultMismatches, VaultMismatch{
					Owner:        rec.Owner,
					Vault:        keys.vault,
					Amount:       rec.Amount,
					VaultBalance: balance,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Consistent() {
		e.log.Warn("ledger audit found inconsistencies",
			slog.Uint64("total_staked", report.TotalStaked),
			slog.Uint64("sum_of_amounts", report.SumOfAmounts),
			slog.Int("vault_mismatches", len(report.VaultMismatches)),
		)
	}

	return report, nil
}
