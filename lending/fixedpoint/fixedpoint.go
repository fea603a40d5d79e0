// Package fixedpoint implements exact integer arithmetic across the mismatched
// decimal precisions used by lending markets. Every cross-asset quantity is
// rebased onto an 18-decimal common basis before it is combined with another
// asset's value.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Decimals is the precision of the common basis and of every protocol mantissa.
const Decimals = 18

// maxPower is the largest power of ten representable in 256 bits.
const maxPower = 77

var (
	// ErrOverflow is returned when an intermediate or final result does not fit
	// in 256 bits.
	ErrOverflow = errors.New("fixedpoint: result overflows 256 bits")
	// ErrDivisionByZero is returned instead of faulting on a zero divisor.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	// ErrDecimalsOutOfRange is returned for token precisions the price basis
	// convention cannot express.
	ErrDecimalsOutOfRange = errors.New("fixedpoint: decimals out of range")
)

var powersOfTen = buildPowers()

// One is the mantissa representation of 1.0 (1e18).
var One = Pow10Must(Decimals)

func buildPowers() [maxPower + 1]uint256.Int {
	var table [maxPower + 1]uint256.Int
	table[0].SetOne()
	ten := uint256.NewInt(10)
	for i := 1; i <= maxPower; i++ {
		table[i].Mul(&table[i-1], ten)
	}
	return table
}

// Pow10 returns 10^n as a fresh integer.
func Pow10(n uint) (*uint256.Int, error) {
	if n > maxPower {
		return nil, fmt.Errorf("%w: 10^%d", ErrOverflow, n)
	}
	return new(uint256.Int).Set(&powersOfTen[n]), nil
}

// Pow10Must is Pow10 for compile-time constants.
func Pow10Must(n uint) *uint256.Int {
	v, err := Pow10(n)
	if err != nil {
		panic(err)
	}
	return v
}

// ToCommonBasis rebases raw, expressed with nativeDecimals of precision, onto
// the 18-decimal common basis. Precisions above 18 lose their extra digits to
// truncating division.
func ToCommonBasis(raw *uint256.Int, nativeDecimals uint8) (*uint256.Int, error) {
	if raw == nil {
		return nil, errors.New("fixedpoint: nil amount")
	}
	switch {
	case nativeDecimals == Decimals:
		return new(uint256.Int).Set(raw), nil
	case nativeDecimals < Decimals:
		scale := &powersOfTen[Decimals-nativeDecimals]
		out, overflow := new(uint256.Int).MulOverflow(raw, scale)
		if overflow {
			return nil, ErrOverflow
		}
		return out, nil
	default:
		shift := uint(nativeDecimals - Decimals)
		if shift > maxPower {
			return new(uint256.Int), nil
		}
		return new(uint256.Int).Div(raw, &powersOfTen[shift]), nil
	}
}

// UnderlyingPriceBasis returns 10^(18 + (18 - nativeDecimals)), the divisor
// that turns a common-basis amount times an oracle price into an 18-decimal
// USD value. Oracles pre-scale prices by the asset's decimal deficit, so the
// basis depends on the underlying precision while the exchange-rate basis
// does not.
func UnderlyingPriceBasis(nativeDecimals uint8) (*uint256.Int, error) {
	if nativeDecimals > 2*Decimals {
		return nil, fmt.Errorf("%w: %d", ErrDecimalsOutOfRange, nativeDecimals)
	}
	return Pow10(uint(2*Decimals - int(nativeDecimals)))
}

// MulDiv computes x*y/d with a 512-bit intermediate product and truncating
// division.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if x == nil || y == nil || d == nil {
		return nil, errors.New("fixedpoint: nil operand")
	}
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulMantissa scales x by an 18-decimal mantissa: x*m/1e18.
func MulMantissa(x, m *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, m, One)
}

// Ratio returns num/den as an 18-decimal mantissa.
func Ratio(num, den *uint256.Int) (*uint256.Int, error) {
	return MulDiv(num, One, den)
}

// SubFloor returns x-y, or zero when y exceeds x.
func SubFloor(x, y *uint256.Int) *uint256.Int {
	out, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return new(uint256.Int)
	}
	return out
}
