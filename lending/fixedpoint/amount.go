package fixedpoint

import "github.com/holiman/uint256"

// Amount is an 18-decimal quantity that is either known or unavailable.
// Unavailable is distinct from zero: a zero balance is a real state, an
// unavailable one has not been loaded yet.
type Amount struct {
	value uint256.Int
	known bool
}

// Unavailable is the sentinel returned by accessors whose inputs are missing.
var Unavailable = Amount{}

// Known wraps v. A nil v yields Unavailable.
func Known(v *uint256.Int) Amount {
	if v == nil {
		return Unavailable
	}
	a := Amount{known: true}
	a.value.Set(v)
	return a
}

// Zero is a known zero amount.
func Zero() Amount {
	return Amount{known: true}
}

// Available reports whether the amount carries a value.
func (a Amount) Available() bool { return a.known }

// Int returns a copy of the value, or nil when unavailable.
func (a Amount) Int() *uint256.Int {
	if !a.known {
		return nil
	}
	return new(uint256.Int).Set(&a.value)
}

// IsZero reports a known zero.
func (a Amount) IsZero() bool { return a.known && a.value.IsZero() }

// Add sums two amounts. The result is unavailable if either side is, and on
// overflow.
func (a Amount) Add(b Amount) Amount {
	if !a.known || !b.known {
		return Unavailable
	}
	out := Amount{known: true}
	if _, overflow := out.value.AddOverflow(&a.value, &b.value); overflow {
		return Unavailable
	}
	return out
}

// String renders the amount with full 18-decimal precision.
func (a Amount) String() string {
	if !a.known {
		return "unavailable"
	}
	return Format(&a.value, Decimals, Decimals)
}
