// Package devotion implements the staking ledger: configuration, per-owner
// devotion records, vault custody and the time-weighted devotion score.
package devotion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/Proton-105/devotion/internal/domain"
	"github.com/Proton-105/devotion/internal/fixedpoint"
)

const (
	OpInitialize = "initialize"
	OpDevote     = "devote"
	OpWaver      = "waver"
	OpHeresy     = "heresy"
	OpCheck      = "check_devotion"
	OpAudit      = "audit"
)

var operationRecorder = func(op, status string, duration time.Duration) {}

// RegisterOperationRecorder allows external packages to observe ledger operations.
func RegisterOperationRecorder(recorder func(op, status string, duration time.Duration)) {
	if recorder == nil {
		operationRecorder = func(string, string, time.Duration) {}
		return
	}

	operationRecorder = recorder
}

// Deposits are the storage deposits charged when a devotion record and its
// vault are opened. They are refunded to the owner on heresy.
type Deposits struct {
	Record uint64
	Vault  uint64
}

// Total returns the combined deposit.
func (d Deposits) Total() (uint64, error) {
	return fixedpoint.AddUint64(d.Record, d.Vault)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithDeposits sets the storage deposits charged on first stake.
func WithDeposits(d Deposits) Option {
	return func(e *Engine) {
		e.deposits = d
	}
}

// Engine executes ledger operations against a Store.
type Engine struct {
	store     Store
	clock     clockwork.Clock
	programID solana.PublicKey
	deposits  Deposits
	log       *slog.Logger
}

// NewEngine builds an Engine over store. programID namespaces every derived account.
func NewEngine(store Store, programID solana.PublicKey, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		store:     store,
		clock:     clockwork.NewRealClock(),
		programID: programID,
		log:       log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProgramID returns the namespace used for derived accounts.
func (e *Engine) ProgramID() solana.PublicKey {
	return e.programID
}

// InitializeParams are the arguments of Initialize.
type InitializeParams struct {
	Admin             solana.PublicKey
	StakeMint         solana.PublicKey
	Interval          int64
	MaxDevotionCharge int64
}

// Initialize creates the ledger configuration and a zeroed aggregate. Decimals
// are taken from the stake mint record.
func (e *Engine) Initialize(ctx context.Context, params InitializeParams) (cfg *domain.Config, err error) {
	defer e.observe(OpInitialize, e.clock.Now(), &err)

	if params.Interval <= 0 || params.MaxDevotionCharge <= 0 {
		return nil, fmt.Errorf("%w: interval and max devotion charge must be positive", ErrInvalidArgument)
	}
	if params.Admin.IsZero() || params.StakeMint.IsZero() {
		return nil, fmt.Errorf("%w: admin and stake mint are required", ErrInvalidArgument)
	}

	_, bump, err := DeriveKey(e.programID, solana.PublicKey{}, RoleState)
	if err != nil {
		return nil, err
	}

	err = e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.Config(ctx)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if existing != nil {
			return ErrAlreadyInitialized
		}

		mint, err := tx.Mint(ctx, params.StakeMint)
		if err != nil {
			return fmt.Errorf("load mint: %w", err)
		}
		if mint == nil {
			return fmt.Errorf("%w: stake mint %s", ErrNotFound, params.StakeMint)
		}
		if _, err := fixedpoint.Scale(mint.Decimals); err != nil {
			return arithmetic(err)
		}

		cfg = &domain.Config{
			Admin:             params.Admin,
			StakeMint:         params.StakeMint,
			Decimals:          mint.Decimals,
			Interval:          params.Interval,
			MaxDevotionCharge: params.MaxDevotionCharge,
			Bump:              bump,
			CreatedAt:         e.clock.Now().Unix(),
		}
		if err := tx.PutConfig(ctx, cfg); err != nil {
			return fmt.Errorf("store config: %w", err)
		}
		if err := tx.PutAggregate(ctx, &domain.Aggregate{TotalStaked: 0}); err != nil {
			return fmt.Errorf("store aggregate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("ledger initialized",
		slog.String("admin", cfg.Admin.String()),
		slog.String("stake_mint", cfg.StakeMint.String()),
		slog.Int("decimals", int(cfg.Decimals)),
		slog.Int64("interval", cfg.Interval),
		slog.Int64("max_devotion_charge", cfg.MaxDevotionCharge),
	)

	return cfg, nil
}

// DevoteReceipt describes the outcome of Devote.
type DevoteReceipt struct {
	Owner              solana.PublicKey
	Deposited          uint64
	Amount             uint64
	ResidualDevotion   uint64
	LastStakeTimestamp int64
	Opened             bool
}

// Devote stakes amount from the caller's token account into the caller's vault.
// The devotion earned so far is frozen into the residual before the amount
// changes. A zero amount only refreshes that checkpoint.
func (e *Engine) Devote(ctx context.Context, caller solana.PublicKey, amount uint64, accounts Accounts) (receipt *DevoteReceipt, err error) {
	defer e.observe(OpDevote, e.clock.Now(), &err)

	now := e.clock.Now().Unix()

	err = e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := requireConfig(ctx, tx)
		if err != nil {
			return err
		}

		keys, err := e.keysFor(caller, cfg.StakeMint)
		if err != nil {
			return err
		}
		if err := accounts.verify(keys, cfg.StakeMint); err != nil {
			return err
		}

		rec, err := tx.Devotion(ctx, caller)
		if err != nil {
			return fmt.Errorf("load devotion: %w", err)
		}

		opened := false
		if rec == nil {
			deposit, err := e.deposits.Total()
			if err != nil {
				return arithmetic(err)
			}
			if err := debit(ctx, tx, caller, deposit); err != nil {
				return fmt.Errorf("charge deposit: %w", err)
			}
			if err := tx.SetBalance(ctx, keys.vault, 0); err != nil {
				return fmt.Errorf("open vault: %w", err)
			}

			rec = &domain.Devotion{
				Owner:              caller,
				LastStakeTimestamp: now,
				Deposit:            deposit,
				Bump:               keys.devotionBump,
			}
			opened = true
		}

		score, err := CheckDevotion(*rec, *cfg, now)
		if err != nil {
			return err
		}

		if err := transfer(ctx, tx, keys.tokenAccount, keys.vault, amount); err != nil {
			return err
		}

		newAmount, err := fixedpoint.AddUint64(rec.Amount, amount)
		if err != nil {
			return arithmetic(err)
		}

		agg, err := requireAggregate(ctx, tx)
		if err != nil {
			return err
		}
		if agg.TotalStaked, err = fixedpoint.AddUint64(agg.TotalStaked, amount); err != nil {
			return arithmetic(err)
		}

		rec.ResidualDevotion = score
		rec.Amount = newAmount
		rec.LastStakeTimestamp = max(now, rec.LastStakeTimestamp)

		if err := tx.PutDevotion(ctx, rec); err != nil {
			return fmt.Errorf("store devotion: %w", err)
		}
		if err := tx.PutAggregate(ctx, agg); err != nil {
			return fmt.Errorf("store aggregate: %w", err)
		}

		receipt = &DevoteReceipt{
			Owner:              caller,
			Deposited:          amount,
			Amount:             rec.Amount,
			ResidualDevotion:   rec.ResidualDevotion,
			LastStakeTimestamp: rec.LastStakeTimestamp,
			Opened:             opened,
		}
		return nil
	})
	if err != nil {
		e.log.Debug("devote rejected", slog.String("owner", caller.String()), slog.Any("error", err))
		return nil, err
	}

	e.log.Info("devoted",
		slog.String("owner", caller.String()),
		slog.Uint64("amount", amount),
		slog.Uint64("staked", receipt.Amount),
		slog.Uint64("residual_devotion", receipt.ResidualDevotion),
		slog.Bool("opened", receipt.Opened),
	)

	return receipt, nil
}

// WaverReceipt describes the outcome of Waver.
type WaverReceipt struct {
	Owner              solana.PublicKey
	Withdrawn          uint64
	Remaining          uint64
	ForfeitedDevotion  uint64
	LastStakeTimestamp int64
}

// Waver withdraws part of the caller's stake. All devotion accrued so far is
// forfeited and accrual restarts from now on the remaining amount.
func (e *Engine) Waver(ctx context.Context, caller solana.PublicKey, amount uint64, accounts Accounts) (receipt *WaverReceipt, err error) {
	defer e.observe(OpWaver, e.clock.Now(), &err)

	if amount == 0 {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidArgument)
	}

	now := e.clock.Now().Unix()

	err = e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := requireConfig(ctx, tx)
		if err != nil {
			return err
		}

		keys, err := e.keysFor(caller, cfg.StakeMint)
		if err != nil {
			return err
		}
		if err := accounts.verify(keys, cfg.StakeMint); err != nil {
			return err
		}

		rec, err := tx.Devotion(ctx, caller)
		if err != nil {
			return fmt.Errorf("load devotion: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("%w: no devotion for %s", ErrNotFound, caller)
		}
		if amount > rec.Amount {
			return fmt.Errorf("%w: staked %d, requested %d", ErrInsufficientBalance, rec.Amount, amount)
		}

		forfeited, err := CheckDevotion(*rec, *cfg, now)
		if err != nil {
			return err
		}

		if err := transfer(ctx, tx, keys.vault, keys.tokenAccount, amount); err != nil {
			return err
		}

		agg, err := requireAggregate(ctx, tx)
		if err != nil {
			return err
		}
		if agg.TotalStaked, err = fixedpoint.SubUint64(agg.TotalStaked, amount); err != nil {
			return arithmetic(err)
		}

		rec.Amount -= amount
		rec.LastStakeTimestamp = max(now, rec.LastStakeTimestamp)
		rec.ResidualDevotion = 0

		if err := tx.PutDevotion(ctx, rec); err != nil {
			return fmt.Errorf("store devotion: %w", err)
		}
		if err := tx.PutAggregate(ctx, agg); err != nil {
			return fmt.Errorf("store aggregate: %w", err)
		}

		receipt = &WaverReceipt{
			Owner:              caller,
			Withdrawn:          amount,
			Remaining:          rec.Amount,
			ForfeitedDevotion:  forfeited,
			LastStakeTimestamp: rec.LastStakeTimestamp,
		}
		return nil
	})
	if err != nil {
		e.log.Debug("waver rejected", slog.String("owner", caller.String()), slog.Any("error", err))
		return nil, err
	}

	e.log.Info("wavered",
		slog.String("owner", caller.String()),
		slog.Uint64("amount", amount),
		slog.Uint64("remaining", receipt.Remaining),
		slog.Uint64("forfeited_devotion", receipt.ForfeitedDevotion),
	)

	return receipt, nil
}

// HeresyReceipt describes the outcome of Heresy.
type HeresyReceipt struct {
	Owner             solana.PublicKey
	Returned          uint64
	Refunded          uint64
	ForfeitedDevotion uint64
}

// Heresy returns the caller's whole vault, closes the vault and the devotion
// record and refunds the storage deposit.
func (e *Engine) Heresy(ctx context.Context, caller solana.PublicKey, accounts Accounts) (receipt *HeresyReceipt, err error) {
	defer e.observe(OpHeresy, e.clock.Now(), &err)

	now := e.clock.Now().Unix()

	err = e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := requireConfig(ctx, tx)
		if err != nil {
			return err
		}

		keys, err := e.keysFor(caller, cfg.StakeMint)
		if err != nil {
			return err
		}
		if err := accounts.verify(keys, cfg.StakeMint); err != nil {
			return err
		}

		rec, err := tx.Devotion(ctx, caller)
		if err != nil {
			return fmt.Errorf("load devotion: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("%w: no devotion for %s", ErrNotFound, caller)
		}

		forfeited, err := CheckDevotion(*rec, *cfg, now)
		if err != nil {
			return err
		}

		vaultBalance, err := tx.Balance(ctx, keys.vault)
		if err != nil {
			return fmt.Errorf("load vault: %w", err)
		}
		if err := transfer(ctx, tx, keys.vault, keys.tokenAccount, vaultBalance); err != nil {
			return err
		}
		if err := tx.DeleteBalance(ctx, keys.vault); err != nil {
			return fmt.Errorf("close vault: %w", err)
		}

		agg, err := requireAggregate(ctx, tx)
		if err != nil {
			return err
		}
		if agg.TotalStaked, err = fixedpoint.SubUint64(agg.TotalStaked, rec.Amount); err != nil {
			return arithmetic(err)
		}
		if err := tx.PutAggregate(ctx, agg); err != nil {
			return fmt.Errorf("store aggregate: %w", err)
		}

		if err := tx.DeleteDevotion(ctx, caller); err != nil {
			return fmt.Errorf("close devotion: %w", err)
		}
		if err := credit(ctx, tx, caller, rec.Deposit); err != nil {
			return fmt.Errorf("refund deposit: %w", err)
		}

		receipt = &HeresyReceipt{
			Owner:             caller,
			Returned:          vaultBalance,
			Refunded:          rec.Deposit,
			ForfeitedDevotion: forfeited,
		}
		return nil
	})
	if err != nil {
		e.log.Debug("heresy rejected", slog.String("owner", caller.String()), slog.Any("error", err))
		return nil, err
	}

	e.log.Info("heresy",
		slog.String("owner", caller.String()),
		slog.Uint64("returned", receipt.Returned),
		slog.Uint64("refunded", receipt.Refunded),
		slog.Uint64("forfeited_devotion", receipt.ForfeitedDevotion),
	)

	return receipt, nil
}

// CheckDevotion returns the current devotion score of owner.
func (e *Engine) CheckDevotion(ctx context.Context, owner solana.PublicKey) (score uint64, err error) {
	defer e.observe(OpCheck, e.clock.Now(), &err)

	now := e.clock.Now().Unix()

	err = e.store.View(ctx, func(ctx context.Context, tx Tx) error {
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

		score, err = CheckDevotion(*rec, *cfg, now)
		return err
	})
	return score, err
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	var opErr error
	if err != nil {
		opErr = *err
	}
	operationRecorder(op, statusOf(opErr), e.clock.Since(start))
}

func requireConfig(ctx context.Context, tx Tx) (*domain.Config, error) {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func requireAggregate(ctx context.Context, tx Tx) (*domain.Aggregate, error) {
	agg, err := tx.Aggregate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aggregate: %w", err)
	}
	if agg == nil {
		return nil, ErrNotInitialized
	}
	return agg, nil
}
