package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/pkg/config"
)

// ErrNoRule is returned for operations without a configured limit.
var ErrNoRule = errors.New("no rate limit rule")

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config    config.RateLimitConfig
	whitelist map[string]struct{}
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, caller := range cfg.Whitelist {
		whitelist[caller] = struct{}{}
	}
	return &Rules{config: cfg, whitelist: whitelist}
}

// IsWhitelisted returns true if the caller bypasses rate limits.
func (r *Rules) IsWhitelisted(caller string) bool {
	_, ok := r.whitelist[caller]
	return ok
}

// GetOperationLimit returns the limit and window for a ledger write operation.
func (r *Rules) GetOperationLimit(operation string) (int, time.Duration, error) {
	ops := r.config.Operations
	switch operation {
	case devotion.OpInitialize:
		return parseRule(ops.Initialize)
	case devotion.OpDevote:
		return parseRule(ops.Devote)
	case devotion.OpWaver:
		return parseRule(ops.Waver)
	case devotion.OpHeresy:
		return parseRule(ops.Heresy)
	default:
		return 0, 0, fmt.Errorf("%w for operation %q", ErrNoRule, operation)
	}
}

// GetGlobalLimit returns the global rate limiting rule.
func (r *Rules) GetGlobalLimit() (int, time.Duration, error) {
	return parseRule(r.config.Global)
}

// GetPerCallerLimit returns the per-caller rate limiting rule.
func (r *Rules) GetPerCallerLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerCaller)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, ErrNoRule
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	if window <= 0 {
		return 0, 0, fmt.Errorf("window must be positive, got %s", rule.Window)
	}
	return rule.Limit, window, nil
}
