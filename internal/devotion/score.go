package devotion

import (
	"fmt"
	"math"

	"github.com/Proton-105/devotion/internal/domain"
	"github.com/Proton-105/devotion/internal/fixedpoint"
)

// CheckDevotion returns the devotion score of rec at unix time now.
//
// Accrual is linear in staked amount and elapsed time, elapsed time is capped
// at cfg.MaxDevotionCharge and the result, residual included, never exceeds
// the score the current amount could earn over the full charge period.
// Every product is formed before any division.
func CheckDevotion(rec domain.Devotion, cfg domain.Config, now int64) (uint64, error) {
	if cfg.Interval <= 0 || cfg.MaxDevotionCharge <= 0 {
		return 0, fmt.Errorf("%w: interval and max devotion charge must be positive", ErrInvalidArgument)
	}

	capped := elapsedSince(rec.LastStakeTimestamp, now)
	if capped > cfg.MaxDevotionCharge {
		capped = cfg.MaxDevotionCharge
	}

	scale, err := fixedpoint.Scale(cfg.Decimals)
	if err != nil {
		return 0, arithmetic(err)
	}

	amount := fixedpoint.FromUint64(rec.Amount)
	interval, err := fixedpoint.FromInt64(cfg.Interval)
	if err != nil {
		return 0, arithmetic(err)
	}
	charge, err := fixedpoint.FromInt64(cfg.MaxDevotionCharge)
	if err != nil {
		return 0, arithmetic(err)
	}
	elapsed, err := fixedpoint.FromInt64(capped)
	if err != nil {
		return 0, arithmetic(err)
	}

	accrued, err := fixedpoint.MulQuo([]fixedpoint.Int{elapsed, amount}, scale, interval)
	if err != nil {
		return 0, arithmetic(err)
	}
	maxPossible, err := fixedpoint.MulQuo([]fixedpoint.Int{amount, charge}, scale, interval)
	if err != nil {
		return 0, arithmetic(err)
	}

	total, err := fixedpoint.Add(accrued, fixedpoint.FromUint64(rec.ResidualDevotion))
	if err != nil {
		return 0, arithmetic(err)
	}

	score, err := fixedpoint.ToUint64(fixedpoint.Min(total, maxPossible))
	if err != nil {
		return 0, arithmetic(err)
	}
	return score, nil
}

// MaxDevotion returns the score cap for rec under cfg.
func MaxDevotion(rec domain.Devotion, cfg domain.Config) (uint64, error) {
	return CheckDevotion(domain.Devotion{
		Amount:             rec.Amount,
		ResidualDevotion:   0,
		LastStakeTimestamp: 0,
	}, cfg, cfg.MaxDevotionCharge)
}

// elapsedSince returns now-since clamped at zero. A difference that does not
// fit in int64 saturates.
func elapsedSince(since, now int64) int64 {
	if now <= since {
		return 0
	}
	d := now - since
	if d < 0 {
		return math.MaxInt64
	}
	return d
}
