// Package idempotency makes ledger write requests safe to retry: the first
// response stored under an idempotency key is replayed for every repeat.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrRequestInProgress is returned while another request holds the key.
	ErrRequestInProgress = errors.New("request with this key is already in progress")
	// ErrKeyReused is returned when a key is replayed with a different request body.
	ErrKeyReused = errors.New("idempotency key was used for a different request")
)

// Response is the replayable outcome of an operation.
type Response struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// Operation performs the guarded work. A returned error is not stored, so the
// request can be retried with the same key.
type Operation func(ctx context.Context) (*Response, error)

type Result struct {
	Response  *Response
	FromCache bool
}

type Manager interface {
	Execute(ctx context.Context, key, fingerprint string, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	ttl     time.Duration
	lockTTL time.Duration
	log     *slog.Logger
}

// NewManager builds a Manager. Completed responses live for ttl; a crashed
// holder's lock expires after lockTTL.
func NewManager(store Store, ttl, lockTTL time.Duration, log *slog.Logger) Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		ttl:     ttl,
		lockTTL: lockTTL,
		log:     log,
	}
}

func (m *manager) Execute(ctx context.Context, key, fingerprint string, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	if cached, err := m.replay(ctx, key, fingerprint); cached != nil || err != nil {
		return cached, err
	}

	locked, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		if cached, err := m.replay(ctx, key, fingerprint); cached != nil || err != nil {
			return cached, err
		}
		return nil, ErrRequestInProgress
	}
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	// The previous holder may have finished between the first lookup and Lock.
	if cached, err := m.replay(ctx, key, fingerprint); cached != nil || err != nil {
		return cached, err
	}

	resp, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	record := &Record{
		Status:      StatusCompleted,
		Fingerprint: fingerprint,
		Response:    *resp,
	}
	if err := m.store.Set(ctx, key, record, m.ttl); err != nil {
		m.log.Error("failed to store idempotent response", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	return &Result{Response: resp, FromCache: false}, nil
}

func (m *manager) replay(ctx context.Context, key, fingerprint string) (*Result, error) {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Status != StatusCompleted {
		return nil, nil
	}
	if record.Fingerprint != fingerprint {
		return nil, ErrKeyReused
	}

	resp := record.Response
	return &Result{Response: &resp, FromCache: true}, nil
}
