package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
)

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = errors.New("write in read-only transaction")

// MemoryStore keeps ledger state in process memory. Update functions run one
// at a time and their writes become visible only when the function returns nil.
type MemoryStore struct {
	mu       sync.RWMutex
	cfg      *domain.Config
	agg      *domain.Aggregate
	records  map[solana.PublicKey]domain.Devotion
	assets   map[solana.PublicKey]domain.Mint
	holdings map[solana.PublicKey]uint64
}

var _ devotion.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[solana.PublicKey]domain.Devotion),
		assets:   make(map[solana.PublicKey]domain.Mint),
		holdings: make(map[solana.PublicKey]uint64),
	}
}

// Update runs fn with exclusive access and commits its writes when it succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(ctx context.Context, tx devotion.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newStagedTx(memorySnapshot{s}, true)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.apply(tx)
	return nil
}

// View runs fn against the committed state.
func (s *MemoryStore) View(ctx context.Context, fn func(ctx context.Context, tx devotion.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(ctx, newStagedTx(memorySnapshot{s}, false))
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) apply(tx *stagedTx) {
	if tx.configSet {
		s.cfg = tx.config
	}
	if tx.aggregateSet {
		s.agg = tx.aggregate
	}
	for _, owner := range tx.changedDevotions() {
		if rec := tx.devotions[owner]; rec != nil {
			s.records[owner] = *rec
			continue
		}
		delete(s.records, owner)
	}
	for _, address := range tx.changedMints() {
		s.assets[address] = *tx.mints[address]
	}
	for _, address := range tx.changedBalances() {
		if balance := tx.balances[address]; balance != nil {
			s.holdings[address] = *balance
			continue
		}
		delete(s.holdings, address)
	}
}

// memorySnapshot reads committed state. Callers hold the store lock.
type memorySnapshot struct {
	s *MemoryStore
}

func (m memorySnapshot) config(ctx context.Context) (*domain.Config, error) {
	if m.s.cfg == nil {
		return nil, nil
	}
	c := *m.s.cfg
	return &c, nil
}

func (m memorySnapshot) aggregate(ctx context.Context) (*domain.Aggregate, error) {
	if m.s.agg == nil {
		return nil, nil
	}
	a := *m.s.agg
	return &a, nil
}

func (m memorySnapshot) devotion(ctx context.Context, owner solana.PublicKey) (*domain.Devotion, error) {
	rec, ok := m.s.records[owner]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m memorySnapshot) devotionOwners(ctx context.Context) ([]solana.PublicKey, error) {
	return sortedKeys(m.s.records), nil
}

func (m memorySnapshot) mint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error) {
	mint, ok := m.s.assets[address]
	if !ok {
		return nil, nil
	}
	return &mint, nil
}

func (m memorySnapshot) balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	return m.s.holdings[address], nil
}
