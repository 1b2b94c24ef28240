// Package fixedpoint implements the overflow-checked integer arithmetic used for token amounts.
//
// Amounts are raw integers scaled by 10^decimals. Intermediates are 256-bit
// signed integers, every operation reports overflow instead of wrapping, and
// all division truncates toward zero (floor for the non-negative values used here).
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

var (
	// ErrOverflow is returned when an intermediate or final value leaves its range.
	ErrOverflow = errors.New("fixedpoint: arithmetic overflow")
	// ErrDivideByZero is returned when a divisor is zero.
	ErrDivideByZero = errors.New("fixedpoint: division by zero")
	// ErrNegative is returned when a negative value is supplied where only non-negative values are valid.
	ErrNegative = errors.New("fixedpoint: negative value")
	// ErrPrecision is returned when a display amount has more fractional digits than the asset supports.
	ErrPrecision = errors.New("fixedpoint: too many fractional digits")
	// ErrTooLong is returned when a display amount exceeds MaxAmountLength characters.
	ErrTooLong = errors.New("fixedpoint: amount too long")
)

// MaxAmountLength bounds the textual form accepted by Parse.
const MaxAmountLength = 64

// maxExponent bounds the decimal exponent Parse accepts on either side of the asset's decimals.
// A uint64 has at most 20 digits.
const maxExponent = 30

// Int is the wide integer type used for intermediates.
type Int = sdkmath.Int

var ten = sdkmath.NewInt(10)

// FromUint64 widens a raw amount.
func FromUint64(v uint64) Int {
	return sdkmath.NewIntFromUint64(v)
}

// FromInt64 widens a non-negative signed value such as a duration in seconds.
func FromInt64(v int64) (Int, error) {
	if v < 0 {
		return Int{}, ErrNegative
	}
	return sdkmath.NewInt(v), nil
}

// ToUint64 narrows v back to a raw amount.
func ToUint64(v Int) (uint64, error) {
	if v.IsNegative() || !v.IsUint64() {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}

// Scale returns 10^decimals.
func Scale(decimals uint8) (Int, error) {
	scale := sdkmath.OneInt()
	for i := uint8(0); i < decimals; i++ {
		next, err := scale.SafeMul(ten)
		if err != nil {
			return Int{}, ErrOverflow
		}
		scale = next
	}
	return scale, nil
}

// Mul returns a*b.
func Mul(a, b Int) (Int, error) {
	res, err := a.SafeMul(b)
	if err != nil {
		return Int{}, ErrOverflow
	}
	return res, nil
}

// Add returns a+b.
func Add(a, b Int) (Int, error) {
	res, err := a.SafeAdd(b)
	if err != nil {
		return Int{}, ErrOverflow
	}
	return res, nil
}

// Quo returns a/b truncated.
func Quo(a, b Int) (Int, error) {
	if b.IsZero() {
		return Int{}, ErrDivideByZero
	}
	res, err := a.SafeQuo(b)
	if err != nil {
		return Int{}, ErrOverflow
	}
	return res, nil
}

// MulQuo computes floor(product(factors) / product(divisors)), multiplying
// every factor before dividing by each divisor in order.
func MulQuo(factors []Int, divisors ...Int) (Int, error) {
	acc := sdkmath.OneInt()
	for _, f := range factors {
		var err error
		if acc, err = Mul(acc, f); err != nil {
			return Int{}, err
		}
	}
	for _, d := range divisors {
		var err error
		if acc, err = Quo(acc, d); err != nil {
			return Int{}, err
		}
	}
	return acc, nil
}

// Min returns the smaller of a and b.
func Min(a, b Int) Int {
	return sdkmath.MinInt(a, b)
}

// AddUint64 adds two raw amounts and reports overflow of the uint64 range.
func AddUint64(a, b uint64) (uint64, error) {
	sum, err := Add(FromUint64(a), FromUint64(b))
	if err != nil {
		return 0, err
	}
	return ToUint64(sum)
}

// SubUint64 subtracts b from a and reports underflow as ErrOverflow.
func SubUint64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Format renders a raw amount as a decimal string with exactly decimals fractional digits.
func Format(raw uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
	return d.StringFixed(int32(decimals))
}

// Parse converts a display amount such as "12.5" into raw units for an asset with the given decimals.
func Parse(s string, decimals uint8) (uint64, error) {
	if len(s) > MaxAmountLength {
		return 0, fmt.Errorf("parse amount: %d characters: %w", len(s), ErrTooLong)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, ErrNegative
	}

	exp := d.Exponent()
	if exp > maxExponent {
		return 0, ErrOverflow
	}
	if exp < -int32(decimals)-maxExponent {
		return 0, ErrPrecision
	}

	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return 0, ErrPrecision
	}

	raw := shifted.BigInt()
	if !raw.IsUint64() {
		return 0, ErrOverflow
	}
	return raw.Uint64(), nil
}
