package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/pkg/config"
)

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		Whitelist: []string{"7hDwC4DTSsUo3mEJDkqScizwf5kdxwYkbUoHnEvyBsCU"},
		Global:    config.RateLimitRule{Limit: 100, Window: "1m"},
		PerCaller: config.RateLimitRule{Limit: 10, Window: "10s"},
		Operations: config.OperationLimits{
			Devote: config.RateLimitRule{Limit: 3, Window: "30s"},
			Heresy: config.RateLimitRule{Limit: 1, Window: "bogus"},
		},
	})

	assert.True(t, rules.IsWhitelisted("7hDwC4DTSsUo3mEJDkqScizwf5kdxwYkbUoHnEvyBsCU"))
	assert.False(t, rules.IsWhitelisted("11111111111111111111111111111111"))

	limit, window, err := rules.GetOperationLimit(devotion.OpDevote)
	require.NoError(t, err)
	assert.Equal(t, 3, limit)
	assert.Equal(t, 30*time.Second, window)

	_, _, err = rules.GetOperationLimit(devotion.OpWaver)
	assert.ErrorIs(t, err, ErrNoRule)

	_, _, err = rules.GetOperationLimit(devotion.OpHeresy)
	assert.Error(t, err)

	_, _, err = rules.GetOperationLimit(devotion.OpCheck)
	assert.ErrorIs(t, err, ErrNoRule)

	limit, window, err = rules.GetPerCallerLimit()
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 10*time.Second, window)

	limit, _, err = rules.GetGlobalLimit()
	require.NoError(t, err)
	assert.Equal(t, 100, limit)
}
