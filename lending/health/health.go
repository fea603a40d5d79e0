// Package health derives the account health figures shown next to the
// borrow limit: how much of the limit is used, how much each borrow takes,
// and whether a collateral asset may be withdrawn from the limit.
package health

import (
	"github.com/holiman/uint256"

	"lendboard/lending/fixedpoint"
	"lendboard/lending/market"
	"lendboard/lending/portfolio"
)

// RatioState distinguishes a computed ratio from the zero-limit and
// missing-input cases.
type RatioState uint8

const (
	// RatioDefined carries a value.
	RatioDefined RatioState = iota
	// RatioUndefined is debt against a zero limit: over the limit with no
	// finite ratio.
	RatioUndefined
	// RatioUnavailable means an input has not been loaded.
	RatioUnavailable
)

func (s RatioState) String() string {
	switch s {
	case RatioDefined:
		return "defined"
	case RatioUndefined:
		return "over_limit_undefined"
	default:
		return "unavailable"
	}
}

// Ratio is an 18-decimal fraction tagged with its state.
type Ratio struct {
	State    RatioState
	mantissa uint256.Int
}

// Mantissa returns the 1e18 scaled value, or nil unless defined.
func (r Ratio) Mantissa() *uint256.Int {
	if r.State != RatioDefined {
		return nil
	}
	return new(uint256.Int).Set(&r.mantissa)
}

// Float returns the ratio as a float and whether it is defined.
func (r Ratio) Float() (float64, bool) {
	if r.State != RatioDefined {
		return 0, false
	}
	return fixedpoint.Float(&r.mantissa, fixedpoint.Decimals), true
}

// Percent returns the ratio scaled to a percentage.
func (r Ratio) Percent() (float64, bool) {
	f, ok := r.Float()
	return f * 100, ok
}

func (r Ratio) String() string {
	if r.State != RatioDefined {
		return r.State.String()
	}
	return fixedpoint.Format(&r.mantissa, fixedpoint.Decimals, fixedpoint.Decimals)
}

// ratio divides num by den with the zero-limit policy: 0/0 is zero and
// x/0 is undefined.
func ratio(num, den fixedpoint.Amount) Ratio {
	if !num.Available() || !den.Available() {
		return Ratio{State: RatioUnavailable}
	}
	if den.IsZero() {
		if num.IsZero() {
			return Ratio{State: RatioDefined}
		}
		return Ratio{State: RatioUndefined}
	}
	v, err := fixedpoint.Ratio(num.Int(), den.Int())
	if err != nil {
		return Ratio{State: RatioUnavailable}
	}
	out := Ratio{State: RatioDefined}
	out.mantissa.Set(v)
	return out
}

// AccountHealth is the presented health of one account.
type AccountHealth struct {
	Limit       fixedpoint.Amount
	BorrowValue fixedpoint.Amount
}

// Evaluate derives the account health from portfolio totals.
func Evaluate(totals portfolio.Totals) AccountHealth {
	return AccountHealth{Limit: totals.Limit, BorrowValue: totals.BorrowValue}
}

// UsedLimit is BorrowValue / Limit.
func (h AccountHealth) UsedLimit() Ratio {
	return ratio(h.BorrowValue, h.Limit)
}

// UsedLimitPercent is UsedLimit as a percentage; false when undefined.
func (h AccountHealth) UsedLimitPercent() (float64, bool) {
	return h.UsedLimit().Percent()
}

// ShareOfLimit is the asset's borrow value over the whole limit. It is
// computed per asset rather than derived from UsedLimit so shares stay
// consistent when rows are filtered or sorted.
func (h AccountHealth) ShareOfLimit(asset *market.Asset) Ratio {
	return ratio(asset.BorrowValueUSD(), h.Limit)
}

// PercentOfLimit is ShareOfLimit as a percentage; false when undefined.
func (h AccountHealth) PercentOfLimit(asset *market.Asset) (float64, bool) {
	return h.ShareOfLimit(asset).Percent()
}

// CanDisableCollateral reports whether the limit left after removing the
// asset's collateral weighted value still covers the outstanding borrow.
func (h AccountHealth) CanDisableCollateral(asset *market.Asset) bool {
	weighted := asset.CollateralWeightedValueUSD()
	if !weighted.Available() || !h.Limit.Available() || !h.BorrowValue.Available() {
		return false
	}
	remaining := fixedpoint.SubFloor(h.Limit.Int(), weighted.Int())
	return !remaining.Lt(h.BorrowValue.Int())
}

// AvailableToBorrow is the headroom left under the limit, floored at zero.
func (h AccountHealth) AvailableToBorrow() fixedpoint.Amount {
	if !h.Limit.Available() || !h.BorrowValue.Available() {
		return fixedpoint.Unavailable
	}
	return fixedpoint.Known(fixedpoint.SubFloor(h.Limit.Int(), h.BorrowValue.Int()))
}

// OverLimit reports a known borrow value above a known limit.
func (h AccountHealth) OverLimit() bool {
	if !h.Limit.Available() || !h.BorrowValue.Available() {
		return false
	}
	return h.BorrowValue.Int().Gt(h.Limit.Int())
}
