package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/lib/pq"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
	apperrors "github.com/Proton-105/devotion/internal/errors"
)

// pq error codes that mean the transaction lost a race and can be re-run.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// PostgresStore keeps ledger state in PostgreSQL. Each call runs in a
// SERIALIZABLE transaction; writable calls lock the rows they read.
type PostgresStore struct {
	db    *sql.DB
	retry apperrors.RetryPolicy
	log   *slog.Logger
}

var _ devotion.Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed ledger store. The schema is
// expected to be migrated already.
func NewPostgresStore(db *sql.DB, log *slog.Logger, opts ...Option) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}

	return &PostgresStore{
		db:    db,
		retry: newStoreOptions(opts).retry,
		log:   log,
	}
}

// Update runs fn inside a read-write transaction, retrying serialization failures.
func (s *PostgresStore) Update(ctx context.Context, fn func(ctx context.Context, tx devotion.Tx) error) error {
	return s.run(ctx, false, fn)
}

// View runs fn inside a read-only transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(ctx context.Context, tx devotion.Tx) error) error {
	return s.run(ctx, true, fn)
}

// HealthCheck pings the database.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx devotion.Tx) error) error {
	return s.retry.Do(ctx, func() error {
		err := s.runOnce(ctx, readOnly, fn)
		if isConflict(err) {
			s.log.Debug("ledger transaction conflict, retrying", slog.Bool("read_only", readOnly))
			return apperrors.NewConflictError(err)
		}
		return err
	})
}

func (s *PostgresStore) runOnce(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx devotion.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Error("rollback ledger transaction", "error", rbErr)
			}
		}
	}()

	tx := newStagedTx(&pgSnapshot{tx: sqlTx, forUpdate: !readOnly}, !readOnly)
	if err = fn(ctx, tx); err != nil {
		return err
	}

	if !readOnly {
		if err = s.flush(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) flush(ctx context.Context, sqlTx *sql.Tx, tx *stagedTx) error {
	if tx.configSet {
		cfg := tx.config
		// The configuration is written once.
		res, err := sqlTx.ExecContext(ctx, `
			INSERT INTO ledger_config (id, admin, stake_mint, decimals, interval_seconds, max_devotion_charge, bump, created_at)
			VALUES (1, $1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			cfg.Admin.String(), cfg.StakeMint.String(), int16(cfg.Decimals), cfg.Interval, cfg.MaxDevotionCharge, int16(cfg.Bump), cfg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("write ledger config: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("write ledger config: %w", err)
		}
		if inserted == 0 {
			return fmt.Errorf("write ledger config: %w", devotion.ErrAlreadyInitialized)
		}
	}

	if tx.aggregateSet {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO ledger_aggregate (id, total_staked) VALUES (1, $1::numeric)
			ON CONFLICT (id) DO UPDATE SET total_staked = EXCLUDED.total_staked`,
			formatUint(tx.aggregate.TotalStaked),
		)
		if err != nil {
			return fmt.Errorf("write ledger aggregate: %w", err)
		}
	}

	for _, owner := range tx.changedDevotions() {
		rec := tx.devotions[owner]
		if rec == nil {
			if _, err := sqlTx.ExecContext(ctx, `DELETE FROM devotions WHERE owner = $1`, owner.String()); err != nil {
				return fmt.Errorf("delete devotion %s: %w", owner, err)
			}
			continue
		}

		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO devotions (owner, amount, residual_devotion, last_stake_timestamp, deposit, bump, updated_at)
			VALUES ($1, $2::numeric, $3::numeric, $4, $5::numeric, $6, NOW())
			ON CONFLICT (owner) DO UPDATE SET
				amount = EXCLUDED.amount,
				residual_devotion = EXCLUDED.residual_devotion,
				last_stake_timestamp = EXCLUDED.last_stake_timestamp,
				deposit = EXCLUDED.deposit,
				bump = EXCLUDED.bump,
				updated_at = NOW()`,
			owner.String(), formatUint(rec.Amount), formatUint(rec.ResidualDevotion), rec.LastStakeTimestamp, formatUint(rec.Deposit), int16(rec.Bump),
		)
		if err != nil {
			return fmt.Errorf("write devotion %s: %w", owner, err)
		}
	}

	for _, address := range tx.changedMints() {
		mint := tx.mints[address]
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO mints (address, decimals, supply) VALUES ($1, $2, $3::numeric)
			ON CONFLICT (address) DO UPDATE SET decimals = EXCLUDED.decimals, supply = EXCLUDED.supply`,
			address.String(), int16(mint.Decimals), formatUint(mint.Supply),
		)
		if err != nil {
			return fmt.Errorf("write mint %s: %w", address, err)
		}
	}

	for _, address := range tx.changedBalances() {
		balance := tx.balances[address]
		if balance == nil {
			if _, err := sqlTx.ExecContext(ctx, `DELETE FROM balances WHERE address = $1`, address.String()); err != nil {
				return fmt.Errorf("delete balance %s: %w", address, err)
			}
			continue
		}

		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO balances (address, amount, updated_at) VALUES ($1, $2::numeric, NOW())
			ON CONFLICT (address) DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`,
			address.String(), formatUint(*balance),
		)
		if err != nil {
			return fmt.Errorf("write balance %s: %w", address, err)
		}
	}

	return nil
}

func isConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	switch pqErr.Code {
	case pqSerializationFailure, pqDeadlockDetected, pqUniqueViolation:
		return true
	default:
		return false
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUint(column, raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s %q: %w", column, raw, err)
	}
	return v, nil
}

// pgSnapshot reads committed rows through an open transaction.
type pgSnapshot struct {
	tx        *sql.Tx
	forUpdate bool
}

func (p *pgSnapshot) lock() string {
	if p.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (p *pgSnapshot) config(ctx context.Context) (*domain.Config, error) {
	var (
		admin, stakeMint string
		decimals, bump   int16
		cfg              domain.Config
	)

	err := p.tx.QueryRowContext(ctx, `
		SELECT admin, stake_mint, decimals, interval_seconds, max_devotion_charge, bump, created_at
		FROM ledger_config WHERE id = 1`+p.lock(),
	).Scan(&admin, &stakeMint, &decimals, &cfg.Interval, &cfg.MaxDevotionCharge, &bump, &cfg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select ledger config: %w", err)
	}

	if cfg.Admin, err = solana.PublicKeyFromBase58(admin); err != nil {
		return nil, fmt.Errorf("decode admin: %w", err)
	}
	if cfg.StakeMint, err = solana.PublicKeyFromBase58(stakeMint); err != nil {
		return nil, fmt.Errorf("decode stake mint: %w", err)
	}
	cfg.Decimals = uint8(decimals)
	cfg.Bump = uint8(bump)
	return &cfg, nil
}

func (p *pgSnapshot) aggregate(ctx context.Context) (*domain.Aggregate, error) {
	var raw string
	err := p.tx.QueryRowContext(ctx, `SELECT total_staked::text FROM ledger_aggregate WHERE id = 1`+p.lock()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select ledger aggregate: %w", err)
	}

	total, err := parseUint("total_staked", raw)
	if err != nil {
		return nil, err
	}
	return &domain.Aggregate{TotalStaked: total}, nil
}

func (p *pgSnapshot) devotion(ctx context.Context, owner solana.PublicKey) (*domain.Devotion, error) {
	var (
		amount, residual, deposit string
		bump                      int16
		rec                       = domain.Devotion{Owner: owner}
	)

	err := p.tx.QueryRowContext(ctx, `
		SELECT amount::text, residual_devotion::text, last_stake_timestamp, deposit::text, bump
		FROM devotions WHERE owner = $1`+p.lock(),
		owner.String(),
	).Scan(&amount, &residual, &rec.LastStakeTimestamp, &deposit, &bump)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select devotion %s: %w", owner, err)
	}

	if rec.Amount, err = parseUint("amount", amount); err != nil {
		return nil, err
	}
	if rec.ResidualDevotion, err = parseUint("residual_devotion", residual); err != nil {
		return nil, err
	}
	if rec.Deposit, err = parseUint("deposit", deposit); err != nil {
		return nil, err
	}
	rec.Bump = uint8(bump)
	return &rec, nil
}

func (p *pgSnapshot) devotionOwners(ctx context.Context) ([]solana.PublicKey, error) {
	rows, err := p.tx.QueryContext(ctx, `SELECT owner FROM devotions ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("list devotion owners: %w", err)
	}
	defer rows.Close()

	var owners []solana.PublicKey
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan devotion owner: %w", err)
		}
		owner, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("decode owner %q: %w", raw, err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (p *pgSnapshot) mint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error) {
	var (
		decimals int16
		supply   string
	)

	err := p.tx.QueryRowContext(ctx, `SELECT decimals, supply::text FROM mints WHERE address = $1`+p.lock(), address.String()).Scan(&decimals, &supply)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select mint %s: %w", address, err)
	}

	total, err := parseUint("supply", supply)
	if err != nil {
		return nil, err
	}
	return &domain.Mint{Address: address, Decimals: uint8(decimals), Supply: total}, nil
}

func (p *pgSnapshot) balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var raw string
	err := p.tx.QueryRowContext(ctx, `SELECT amount::text FROM balances WHERE address = $1`+p.lock(), address.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select balance %s: %w", address, err)
	}
	return parseUint("amount", raw)
}
