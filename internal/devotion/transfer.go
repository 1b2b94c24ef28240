package devotion

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/devotion/internal/fixedpoint"
)

// transfer moves amount from one balance to another inside tx.
func transfer(ctx context.Context, tx Tx, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from.Equals(to) {
		return fmt.Errorf("%w: transfer to the same account", ErrInvalidArgument)
	}
	if err := debit(ctx, tx, from, amount); err != nil {
		return err
	}
	return credit(ctx, tx, to, amount)
}

func debit(ctx context.Context, tx Tx, address solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}

	balance, err := tx.Balance(ctx, address)
	if err != nil {
		return fmt.Errorf("load balance %s: %w", address, err)
	}
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, address, balance, amount)
	}
	if err := tx.SetBalance(ctx, address, balance-amount); err != nil {
		return fmt.Errorf("store balance %s: %w", address, err)
	}
	return nil
}

func credit(ctx context.Context, tx Tx, address solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}

	balance, err := tx.Balance(ctx, address)
	if err != nil {
		return fmt.Errorf("load balance %s: %w", address, err)
	}
	next, err := fixedpoint.AddUint64(balance, amount)
	if err != nil {
		return arithmetic(err)
	}
	if err := tx.SetBalance(ctx, address, next); err != nil {
		return fmt.Errorf("store balance %s: %w", address, err)
	}
	return nil
}
