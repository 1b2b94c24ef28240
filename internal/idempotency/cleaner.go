package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes records that outlived their TTL.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Cleaner struct {
	store    Sweeper
	log      *slog.Logger
	interval time.Duration
}

func NewCleaner(store Sweeper, log *slog.Logger, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		store:    store,
		log:      log,
		interval: interval,
	}
}

func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.store == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := c.store.Sweep(ctx)
			if err != nil {
				c.log.Error("idempotency cleanup failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				c.log.Debug("idempotency keys cleaned", slog.Int("keys_removed", removed))
			}
		}
	}
}
