package repository

import (
	"bytes"
	"context"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
)

// snapshot reads committed state for a stagedTx. Missing records are returned as nil.
type snapshot interface {
	config(ctx context.Context) (*domain.Config, error)
	aggregate(ctx context.Context) (*domain.Aggregate, error)
	devotion(ctx context.Context, owner solana.PublicKey) (*domain.Devotion, error)
	devotionOwners(ctx context.Context) ([]solana.PublicKey, error)
	mint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error)
	balance(ctx context.Context, address solana.PublicKey) (uint64, error)
}

// stagedTx buffers writes over a snapshot. Reads observe buffered writes
// first. Each backend flushes the buffer in its own commit step.
type stagedTx struct {
	base     snapshot
	writable bool

	config       *domain.Config
	configSet    bool
	aggregate    *domain.Aggregate
	aggregateSet bool
	devotions    map[solana.PublicKey]*domain.Devotion
	mints        map[solana.PublicKey]*domain.Mint
	balances     map[solana.PublicKey]*uint64
}

var _ devotion.Tx = (*stagedTx)(nil)

func newStagedTx(base snapshot, writable bool) *stagedTx {
	return &stagedTx{
		base:      base,
		writable:  writable,
		devotions: make(map[solana.PublicKey]*domain.Devotion),
		mints:     make(map[solana.PublicKey]*domain.Mint),
		balances:  make(map[solana.PublicKey]*uint64),
	}
}

func (t *stagedTx) Config(ctx context.Context) (*domain.Config, error) {
	if t.configSet {
		c := *t.config
		return &c, nil
	}
	return t.base.config(ctx)
}

func (t *stagedTx) PutConfig(ctx context.Context, cfg *domain.Config) error {
	if !t.writable {
		return ErrReadOnly
	}
	c := *cfg
	t.config, t.configSet = &c, true
	return nil
}

func (t *stagedTx) Aggregate(ctx context.Context) (*domain.Aggregate, error) {
	if t.aggregateSet {
		a := *t.aggregate
		return &a, nil
	}
	return t.base.aggregate(ctx)
}

func (t *stagedTx) PutAggregate(ctx context.Context, agg *domain.Aggregate) error {
	if !t.writable {
		return ErrReadOnly
	}
	a := *agg
	t.aggregate, t.aggregateSet = &a, true
	return nil
}

func (t *stagedTx) Devotion(ctx context.Context, owner solana.PublicKey) (*domain.Devotion, error) {
	if staged, ok := t.devotions[owner]; ok {
		if staged == nil {
			return nil, nil
		}
		rec := *staged
		return &rec, nil
	}
	return t.base.devotion(ctx, owner)
}

func (t *stagedTx) PutDevotion(ctx context.Context, rec *domain.Devotion) error {
	if !t.writable {
		return ErrReadOnly
	}
	r := *rec
	t.devotions[rec.Owner] = &r
	return nil
}

func (t *stagedTx) DeleteDevotion(ctx context.Context, owner solana.PublicKey) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.devotions[owner] = nil
	return nil
}

func (t *stagedTx) ListDevotions(ctx context.Context) ([]domain.Devotion, error) {
	owners, err := t.base.devotionOwners(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[solana.PublicKey]struct{}, len(owners)+len(t.devotions))
	for _, owner := range owners {
		seen[owner] = struct{}{}
	}
	for owner := range t.devotions {
		seen[owner] = struct{}{}
	}

	out := make([]domain.Devotion, 0, len(seen))
	for _, owner := range sortedKeys(seen) {
		rec, err := t.Devotion(ctx, owner)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (t *stagedTx) Mint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error) {
	if staged, ok := t.mints[address]; ok {
		m := *staged
		return &m, nil
	}
	return t.base.mint(ctx, address)
}

func (t *stagedTx) PutMint(ctx context.Context, mint *domain.Mint) error {
	if !t.writable {
		return ErrReadOnly
	}
	m := *mint
	t.mints[mint.Address] = &m
	return nil
}

func (t *stagedTx) Balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	if staged, ok := t.balances[address]; ok {
		if staged == nil {
			return 0, nil
		}
		return *staged, nil
	}
	return t.base.balance(ctx, address)
}

func (t *stagedTx) SetBalance(ctx context.Context, address solana.PublicKey, amount uint64) error {
	if !t.writable {
		return ErrReadOnly
	}
	v := amount
	t.balances[address] = &v
	return nil
}

func (t *stagedTx) DeleteBalance(ctx context.Context, address solana.PublicKey) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.balances[address] = nil
	return nil
}

// changedDevotions returns staged devotion owners in key order. A nil record marks a delete.
func (t *stagedTx) changedDevotions() []solana.PublicKey {
	return sortedKeys(t.devotions)
}

func (t *stagedTx) changedMints() []solana.PublicKey {
	return sortedKeys(t.mints)
}

func (t *stagedTx) changedBalances() []solana.PublicKey {
	return sortedKeys(t.balances)
}

// sortedKeys orders keys so every backend writes rows in the same sequence.
func sortedKeys[V any](m map[solana.PublicKey]V) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	return keys
}
