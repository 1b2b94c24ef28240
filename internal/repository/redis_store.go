package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
	apperrors "github.com/Proton-105/devotion/internal/errors"
)

const redisKeyPrefix = "devotion:"

// RedisStore keeps ledger state in Redis. Every key read inside a function is
// WATCHed and buffered writes are applied in one MULTI/EXEC, so a concurrent
// change to anything read aborts the commit and the function is re-run.
type RedisStore struct {
	client *redis.Client
	retry  apperrors.RetryPolicy
	log    *slog.Logger
}

var _ devotion.Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed ledger store.
func NewRedisStore(client *redis.Client, log *slog.Logger, opts ...Option) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		retry:  newStoreOptions(opts).retry,
		log:    log,
	}
}

// Update runs fn and commits its writes atomically, retrying on conflicts.
func (s *RedisStore) Update(ctx context.Context, fn func(ctx context.Context, tx devotion.Tx) error) error {
	return s.run(ctx, true, fn)
}

// View runs fn against a snapshot that is validated at the end of the call.
func (s *RedisStore) View(ctx context.Context, fn func(ctx context.Context, tx devotion.Tx) error) error {
	return s.run(ctx, false, fn)
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) run(ctx context.Context, writable bool, fn func(ctx context.Context, tx devotion.Tx) error) error {
	return s.retry.Do(ctx, func() error {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := newStagedTx(&redisSnapshot{tx: rtx}, writable)
			if err := fn(ctx, tx); err != nil {
				return err
			}

			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if !writable {
					// EXEC of a non-empty MULTI validates the watched keys.
					pipe.Ping(ctx)
					return nil
				}
				return s.flush(ctx, pipe, tx)
			})
			return err
		})

		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug("ledger transaction conflict, retrying", slog.Bool("writable", writable))
			return apperrors.NewConflictError(err)
		}
		return err
	})
}

func (s *RedisStore) flush(ctx context.Context, pipe redis.Pipeliner, tx *stagedTx) error {
	if tx.configSet {
		if err := setJSON(ctx, pipe, configKey(), tx.config); err != nil {
			return err
		}
	}
	if tx.aggregateSet {
		if err := setJSON(ctx, pipe, aggregateKey(), tx.aggregate); err != nil {
			return err
		}
	}

	for _, owner := range tx.changedDevotions() {
		rec := tx.devotions[owner]
		if rec == nil {
			pipe.Del(ctx, devotionKey(owner))
			pipe.SRem(ctx, ownersKey(), owner.String())
			continue
		}
		if err := setJSON(ctx, pipe, devotionKey(owner), rec); err != nil {
			return err
		}
		pipe.SAdd(ctx, ownersKey(), owner.String())
	}

	for _, address := range tx.changedMints() {
		if err := setJSON(ctx, pipe, mintKey(address), tx.mints[address]); err != nil {
			return err
		}
	}

	for _, address := range tx.changedBalances() {
		balance := tx.balances[address]
		if balance == nil {
			pipe.Del(ctx, balanceKey(address))
			continue
		}
		pipe.Set(ctx, balanceKey(address), strconv.FormatUint(*balance, 10), 0)
	}

	return nil
}

func setJSON(ctx context.Context, pipe redis.Pipeliner, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	pipe.Set(ctx, key, data, 0)
	return nil
}

// redisSnapshot reads through a WATCHing transaction connection.
type redisSnapshot struct {
	tx *redis.Tx
}

func (r *redisSnapshot) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	if err := r.tx.Watch(ctx, key).Err(); err != nil {
		return false, fmt.Errorf("watch %s: %w", key, err)
	}

	data, err := r.tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *redisSnapshot) config(ctx context.Context) (*domain.Config, error) {
	var cfg domain.Config
	found, err := r.getJSON(ctx, configKey(), &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

func (r *redisSnapshot) aggregate(ctx context.Context) (*domain.Aggregate, error) {
	var agg domain.Aggregate
	found, err := r.getJSON(ctx, aggregateKey(), &agg)
	if err != nil || !found {
		return nil, err
	}
	return &agg, nil
}

func (r *redisSnapshot) devotion(ctx context.Context, owner solana.PublicKey) (*domain.Devotion, error) {
	var rec domain.Devotion
	found, err := r.getJSON(ctx, devotionKey(owner), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (r *redisSnapshot) devotionOwners(ctx context.Context) ([]solana.PublicKey, error) {
	if err := r.tx.Watch(ctx, ownersKey()).Err(); err != nil {
		return nil, fmt.Errorf("watch owners: %w", err)
	}

	members, err := r.tx.SMembers(ctx, ownersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}

	owners := make([]solana.PublicKey, 0, len(members))
	for _, member := range members {
		owner, err := solana.PublicKeyFromBase58(member)
		if err != nil {
			return nil, fmt.Errorf("decode owner %q: %w", member, err)
		}
		owners = append(owners, owner)
	}
	return owners, nil
}

func (r *redisSnapshot) mint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error) {
	var mint domain.Mint
	found, err := r.getJSON(ctx, mintKey(address), &mint)
	if err != nil || !found {
		return nil, err
	}
	return &mint, nil
}

func (r *redisSnapshot) balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	key := balanceKey(address)
	if err := r.tx.Watch(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("watch %s: %w", key, err)
	}

	balance, err := r.tx.Get(ctx, key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return balance, nil
}

func configKey() string {
	return redisKeyPrefix + "config"
}

func aggregateKey() string {
	return redisKeyPrefix + "aggregate"
}

func ownersKey() string {
	return redisKeyPrefix + "owners"
}

func devotionKey(owner solana.PublicKey) string {
	return fmt.Sprintf("%srecord:%s", redisKeyPrefix, owner)
}

func mintKey(address solana.PublicKey) string {
	return fmt.Sprintf("%smint:%s", redisKeyPrefix, address)
}

func balanceKey(address solana.PublicKey) string {
	return fmt.Sprintf("%sbalance:%s", redisKeyPrefix, address)
}
