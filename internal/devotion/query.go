package devotion

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/devotion/internal/domain"
)

// Position is a read model of one owner's stake.
type Position struct {
	Owner              solana.PublicKey
	DevotionAccount    solana.PublicKey
	VaultAccount       solana.PublicKey
	Amount             uint64
	VaultBalance       uint64
	ResidualDevotion   uint64
	Devotion           uint64
	MaxDevotion        uint64
	LastStakeTimestamp int64
	Decimals           uint8
	EvaluatedAt        int64
}

// Position loads owner's record together with its live and maximum score.
func (e *Engine) Position(ctx context.Context, owner solana.PublicKey) (*Position, error) {
	now := e.clock.Now().Unix()

	var pos *Position
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := requireConfig(ctx, tx)
		if err != nil {
			return err
		}

		rec, err := tx.Devotion(ctx, owner)
		if err != nil {
			return fmt.Errorf("load devotion: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("%w: no devotion for %s", ErrNotFound, owner)
		}

		keys, err := e.keysFor(owner, cfg.StakeMint)
		if err != nil {
			return err
		}
		vaultBalance, err := tx.Balance(ctx, keys.vault)
		if err != nil {
			return fmt.Errorf("load vault: %w", err)
		}

		score, err := CheckDevotion(*rec, *cfg, now)
		if err != nil {
			return err
		}
		maxScore, err := MaxDevotion(*rec, *cfg)
		if err != nil {
			return err
		}

		pos = &Position{
			Owner:              owner,
			DevotionAccount:    keys.devotion,
			VaultAccount:       keys.vault,
			Amount:             rec.Amount,
			VaultBalance:       vaultBalance,
			ResidualDevotion:   rec.ResidualDevotion,
			Devotion:           score,
			MaxDevotion:        maxScore,
			LastStakeTimestamp: rec.LastStakeTimestamp,
			Decimals:           cfg.Decimals,
			EvaluatedAt:        now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// Config returns the ledger configuration.
func (e *Engine) Config(ctx context.Context) (*domain.Config, error) {
	var cfg *domain.Config
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		cfg, err = requireConfig(ctx, tx)
		return err
	})
	return cfg, err
}

// Aggregate returns the global staking totals.
func (e *Engine) Aggregate(ctx context.Context) (*domain.Aggregate, error) {
	var agg *domain.Aggregate
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		agg, err = requireAggregate(ctx, tx)
		return err
	})
	return agg, err
}
