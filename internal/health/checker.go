package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
)

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// StatusOK is reported for a passing component.
const StatusOK = "OK"

// Checker aggregates health checks for multiple components.
type Checker struct {
	log    *slog.Logger
	checks map[string]Checkable
}

// NewChecker instantiates a Checker with the provided logger.
func NewChecker(log *slog.Logger) *Checker {
	return &Checker{
		log:    log,
		checks: make(map[string]Checkable),
	}
}

// AddCheck registers a checkable component by name.
func (c *Checker) AddCheck(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}
	c.checks[name] = check
}

// Check runs all registered health checks concurrently and returns their statuses.
func (c *Checker) Check(ctx context.Context) map[string]string {
	results := make(map[string]string, len(c.checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for name, check := range c.checks {
		wg.Add(1)
		go func(name string, check Checkable) {
			defer wg.Done()

			status := StatusOK
			if err := check.HealthCheck(ctx); err != nil {
				status = err.Error()
				if c.log != nil {
					c.log.Error("health check failed", slog.String("component", name), slog.Any("error", err))
				}
			}

			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return results
}

// Healthy runs every check and reports the first failure in component order.
func (c *Checker) Healthy(ctx context.Context) error {
	results := c.Check(ctx)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if results[name] != StatusOK {
			return fmt.Errorf("%s: %s", name, results[name])
		}
	}
	return nil
}

// DBChecker verifies connectivity to a PostgreSQL database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker constructs a DBChecker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database to ensure it is reachable.
func (c *DBChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return sql.ErrConnDone
	}
	return c.db.PingContext(ctx)
}

// Pinger abstracts the subset of redis.Client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker verifies connectivity to a Redis instance.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker constructs a RedisChecker.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

// HealthCheck issues a PING command against Redis.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return redis.ErrClosed
	}
	return c.pinger.Ping(ctx).Err()
}

// LedgerReader is the subset of the ledger engine used for health checks.
type LedgerReader interface {
	Config(ctx context.Context) (*domain.Config, error)
}

// LedgerChecker verifies that the ledger store is reachable. An uninitialized
// ledger still passes so that Initialize can be served.
type LedgerChecker struct {
	ledger  LedgerReader
	timeout time.Duration
}

// NewLedgerChecker constructs a LedgerChecker.
func NewLedgerChecker(ledger LedgerReader, timeout time.Duration) *LedgerChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &LedgerChecker{ledger: ledger, timeout: timeout}
}

// HealthCheck loads the ledger configuration.
func (c *LedgerChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.ledger == nil {
		return errors.New("ledger is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.ledger.Config(ctx)
	if errors.Is(err, devotion.ErrNotInitialized) {
		return nil
	}
	return err
}
