package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScale(t *testing.T) {
	testCases := []struct {
		name     string
		decimals uint8
		expected string
		err      error
	}{
		{name: "zero decimals", decimals: 0, expected: "1"},
		{name: "six decimals", decimals: 6, expected: "1000000"},
		{name: "nine decimals", decimals: 9, expected: "1000000000"},
		{name: "largest fitting exponent", decimals: 76, expected: "1" + zeros(76)},
		{name: "exponent beyond 256 bits", decimals: 78, err: ErrOverflow},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			scale, err := Scale(tc.decimals)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, scale.String())
		})
	}
}

func TestMulQuo_MultipliesBeforeDividing(t *testing.T) {
	// 3 * 7 / 2 / 5 truncated is 2; dividing first would give 0.
	res, err := MulQuo([]Int{FromUint64(3), FromUint64(7)}, FromUint64(2), FromUint64(5))
	require.NoError(t, err)
	assert.Equal(t, "2", res.String())
}

func TestMulQuo_WideIntermediate(t *testing.T) {
	res, err := MulQuo(
		[]Int{FromUint64(math.MaxUint64), FromUint64(math.MaxUint64)},
		FromUint64(math.MaxUint64),
	)
	require.NoError(t, err)

	v, err := ToUint64(res)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), v)
}

func TestMulQuo_Errors(t *testing.T) {
	_, err := MulQuo([]Int{FromUint64(1)}, FromUint64(0))
	assert.ErrorIs(t, err, ErrDivideByZero)

	huge, err := Scale(70)
	require.NoError(t, err)
	_, err = MulQuo([]Int{huge, huge})
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestUint64Helpers(t *testing.T) {
	sum, err := AddUint64(40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sum)

	_, err = AddUint64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	diff, err := SubUint64(42, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), diff)

	_, err = SubUint64(1, 2)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = FromInt64(-1)
	assert.ErrorIs(t, err, ErrNegative)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "600000.000000", Format(600_000_000_000, 6))
	assert.Equal(t, "0.000001", Format(1, 6))
	assert.Equal(t, "42", Format(42, 0))
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		decimals uint8
		expected uint64
		err      error
	}{
		{name: "whole amount", input: "600000", decimals: 6, expected: 600_000_000_000},
		{name: "fractional amount", input: "0.5", decimals: 6, expected: 500_000},
		{name: "too precise", input: "0.0000001", decimals: 6, err: ErrPrecision},
		{name: "negative", input: "-1", decimals: 6, err: ErrNegative},
		{name: "beyond uint64", input: "18446744073709551616", decimals: 0, err: ErrOverflow},
		{name: "scientific notation", input: "1.5e3", decimals: 6, expected: 1_500_000_000},
		{name: "trailing zeros", input: "2.500000000", decimals: 6, expected: 2_500_000},
		{name: "huge negative exponent", input: "0e-90000000", decimals: 6, err: ErrPrecision},
		{name: "huge positive exponent", input: "1e9000000", decimals: 6, err: ErrOverflow},
		{name: "zero with huge positive exponent", input: "0e9000000", decimals: 6, err: ErrOverflow},
		{name: "too long", input: "1" + zeros(MaxAmountLength), decimals: 0, err: ErrTooLong},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Parse(tc.input, tc.decimals)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, raw)
		})
	}

	_, err := Parse("abc", 6)
	assert.Error(t, err)
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
