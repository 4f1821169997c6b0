package math

import (
	"errors"
	stdmath "math"
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs. Everything in the accounting path shares one
	// 6-decimal scale so ratios of like-scaled values stay scale-free.
	BalanceConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 unit
	PriceConfig   = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 quote per unit
	RateConfig    = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // debit exchange rate
	RatioConfig   = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // collateral ratio, slippage
)

// One unit at the shared 6-decimal scale.
const Unit int64 = 1_000_000

var (
	ErrOverflow  = errors.New("fixed-point overflow")
	ErrUnderflow = errors.New("fixed-point underflow")
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	// Apply rounding
	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			// remainder > half: round up
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			// remainder == half and even denominator: round to even
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	case RoundDown:
		// DivMod floors already; any remainder is discarded.
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denominator through an int128 intermediate.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denominator, roundingMode)
	putInt128(num)
	return result
}

// MulRate scales a balance by a 6-decimal rate: balance * rate / Unit.
// Used for debit amount to debit value conversion.
func MulRate(balance, rate int64) int64 {
	return MulDiv(balance, rate, Unit, RoundHalfEven)
}

// MulPrice values a balance at a 6-decimal price: balance * price / Unit.
func MulPrice(balance, price int64) int64 {
	return MulDiv(balance, price, Unit, RoundHalfEven)
}

// Ratio returns numerator / denominator at 6-decimal scale.
// The inputs must share a scale; denominator must be positive.
func Ratio(numerator, denominator int64) int64 {
	return MulDiv(numerator, Unit, denominator, RoundHalfEven)
}

// CheckedAdd returns a + b, failing on int64 overflow in either direction.
func CheckedAdd(a, b int64) (int64, error) {
	if b > 0 && a > stdmath.MaxInt64-b {
		return 0, ErrOverflow
	}
	if b < 0 && a < stdmath.MinInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// ApplyDelta applies a signed delta to a non-negative magnitude.
// A delta that would drive the magnitude below zero is ErrUnderflow.
func ApplyDelta(magnitude, delta int64) (int64, error) {
	next, err := CheckedAdd(magnitude, delta)
	if err != nil {
		return 0, err
	}
	if next < 0 {
		return 0, ErrUnderflow
	}
	return next, nil
}

// SaturatingSub returns a - b floored at zero.
func SaturatingSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}
