package devotion

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/devotion/internal/domain"
)

// Store runs functions against ledger state. Writes made inside Update commit
// together or not at all.
type Store interface {
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of ledger state inside a Store function. Getters return a
// nil record and a nil error when the record does not exist.
type Tx interface {
	Config(ctx context.Context) (*domain.Config, error)
	PutConfig(ctx context.Context, cfg *domain.Config) error

	Aggregate(ctx context.Context) (*domain.Aggregate, error)
	PutAggregate(ctx context.Context, agg *domain.Aggregate) error

	Devotion(ctx context.Context, owner solana.PublicKey) (*domain.Devotion, error)
	PutDevotion(ctx context.Context, rec *domain.Devotion) error
	DeleteDevotion(ctx context.Context, owner solana.PublicKey) error
	ListDevotions(ctx context.Context) ([]domain.Devotion, error)

	Mint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error)
	PutMint(ctx context.Context, mint *domain.Mint) error

	// Balance returns the raw balance held at address, zero when unknown.
	Balance(ctx context.Context, address solana.PublicKey) (uint64, error)
	SetBalance(ctx context.Context, address solana.PublicKey, amount uint64) error
	DeleteBalance(ctx context.Context, address solana.PublicKey) error
}
