package devotion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/devotion/internal/domain"
)

// RegisterMint stores metadata for a stakeable asset. Existing metadata is replaced.
func (e *Engine) RegisterMint(ctx context.Context, mint domain.Mint) error {
	if mint.Address.IsZero() {
		return fmt.Errorf("%w: mint address is required", ErrInvalidArgument)
	}

	err := e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		return tx.PutMint(ctx, &mint)
	})
	if err != nil {
		return fmt.Errorf("store mint: %w", err)
	}

	e.log.Info("mint registered",
		slog.String("mint", mint.Address.String()),
		slog.Int("decimals", int(mint.Decimals)),
	)
	return nil
}

// Fund credits amount to the native balance of owner.
func (e *Engine) Fund(ctx context.Context, owner solana.PublicKey, amount uint64) (uint64, error) {
	return e.fund(ctx, owner, amount)
}

// FundTokens credits amount of mint to owner's associated token account.
func (e *Engine) FundTokens(ctx context.Context, owner, mint solana.PublicKey, amount uint64) (uint64, error) {
	ata, err := TokenAccount(owner, mint)
	if err != nil {
		return 0, err
	}
	return e.fund(ctx, ata, amount)
}

// TokenBalance returns the balance of owner's associated token account for mint.
func (e *Engine) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, err := TokenAccount(owner, mint)
	if err != nil {
		return 0, err
	}
	return e.Balance(ctx, ata)
}

// Balance returns the raw balance held at address.
func (e *Engine) Balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var balance uint64
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		balance, err = tx.Balance(ctx, address)
		return err
	})
	return balance, err
}

func (e *Engine) fund(ctx context.Context, address solana.PublicKey, amount uint64) (uint64, error) {
	var balance uint64
	err := e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		if err := credit(ctx, tx, address, amount); err != nil {
			return err
		}
		var err error
		balance, err = tx.Balance(ctx, address)
		return err
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("account funded",
		slog.String("address", address.String()),
		slog.Uint64("amount", amount),
		slog.Uint64("balance", balance),
	)
	return balance, nil
}
