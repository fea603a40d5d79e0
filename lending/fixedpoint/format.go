package fixedpoint

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimal converts a fixed-point integer into a decimal for display.
func Decimal(v *uint256.Int, decimals uint8) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals))
}

// Format renders v with the given number of places, truncating the rest.
// It is a display helper; totals must never be computed from its output.
func Format(v *uint256.Int, decimals uint8, places int32) string {
	return Decimal(v, decimals).Truncate(places).StringFixed(places)
}

// Float converts v to a float64 for display and APY weighting only.
func Float(v *uint256.Int, decimals uint8) float64 {
	return Decimal(v, decimals).InexactFloat64()
}
