package devotion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/devotion/internal/domain"
)

func testConfig() domain.Config {
	return domain.Config{
		Decimals:          6,
		Interval:          86_400,
		MaxDevotionCharge: 15_552_000,
	}
}

func TestCheckDevotion(t *testing.T) {
	const start = int64(1_700_000_000)

	testCases := []struct {
		name     string
		rec      domain.Devotion
		cfg      domain.Config
		now      int64
		expected uint64
	}{
		{
			name:     "no elapsed time returns residual",
			rec:      domain.Devotion{Amount: 600_000_000_000, ResidualDevotion: 42, LastStakeTimestamp: start},
			cfg:      testConfig(),
			now:      start,
			expected: 42,
		},
		{
			name:     "one interval accrues one point per token",
			rec:      domain.Devotion{Amount: 600_000_000_000, LastStakeTimestamp: start},
			cfg:      testConfig(),
			now:      start + 86_400,
			expected: 600_000,
		},
		{
			name:     "elapsed time is capped",
			rec:      domain.Devotion{Amount: 1_000_000, LastStakeTimestamp: start},
			cfg:      testConfig(),
			now:      start + 365*86_400,
			expected: 180,
		},
		{
			name:     "residual never lifts score above cap",
			rec:      domain.Devotion{Amount: 1_000_000, ResidualDevotion: 1_000_000, LastStakeTimestamp: start},
			cfg:      testConfig(),
			now:      start + 86_400,
			expected: 180,
		},
		{
			name:     "clock behind checkpoint accrues nothing",
			rec:      domain.Devotion{Amount: 5_000_000, ResidualDevotion: 7, LastStakeTimestamp: start},
			cfg:      testConfig(),
			now:      start - 86_400,
			expected: 7,
		},
		{
			name:     "products are formed before division",
			rec:      domain.Devotion{Amount: 3, LastStakeTimestamp: start},
			cfg:      domain.Config{Decimals: 0, Interval: 86_400, MaxDevotionCharge: 15_552_000},
			now:      start + 43_200,
			expected: 1,
		},
		{
			name:     "fractional accrual floors",
			rec:      domain.Devotion{Amount: 1_000_000, LastStakeTimestamp: start},
			cfg:      testConfig(),
			now:      start + 86_399,
			expected: 0,
		},
		{
			name:     "empty record scores zero",
			rec:      domain.Devotion{LastStakeTimestamp: start},
			cfg:      testConfig(),
			now:      start + 86_400,
			expected: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			score, err := CheckDevotion(tc.rec, tc.cfg, tc.now)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, score)
		})
	}
}

func TestCheckDevotion_Overflow(t *testing.T) {
	rec := domain.Devotion{Amount: math.MaxUint64, LastStakeTimestamp: 0}
	cfg := domain.Config{Decimals: 0, Interval: 1, MaxDevotionCharge: math.MaxInt64}

	_, err := CheckDevotion(rec, cfg, math.MaxInt64)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestCheckDevotion_InvalidConfig(t *testing.T) {
	_, err := CheckDevotion(domain.Devotion{}, domain.Config{Interval: 0, MaxDevotionCharge: 1}, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCheckDevotion_SaturatesElapsed(t *testing.T) {
	rec := domain.Devotion{Amount: 1_000_000, LastStakeTimestamp: math.MinInt64}

	score, err := CheckDevotion(rec, testConfig(), math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, uint64(180), score)
}

func TestMaxDevotion(t *testing.T) {
	score, err := MaxDevotion(domain.Devotion{Amount: 2_500_000, ResidualDevotion: 9}, testConfig())
	require.NoError(t, err)
	assert.Equal(t, uint64(450), score)
}
