// Package rates annualizes per-block interest rates for display.
package rates

import (
	"errors"
	"math"

	"github.com/holiman/uint256"

	"lendboard/lending/fixedpoint"
)

// ErrInvalidSchedule is returned for a schedule that cannot compound.
var ErrInvalidSchedule = errors.New("rates: blocks per day and days per year must be positive")

// Annualizer holds the chain specific block schedule used to compound a
// per-block rate into an annual yield.
type Annualizer struct {
	BlocksPerDay uint64
	DaysPerYear  uint64
}

// Default is the Ethereum mainnet schedule: 15 second blocks, 365 days.
var Default = Annualizer{BlocksPerDay: 5760, DaysPerYear: 365}

// Validate checks that the schedule is usable.
func (a Annualizer) Validate() error {
	if a.BlocksPerDay == 0 || a.DaysPerYear == 0 {
		return ErrInvalidSchedule
	}
	return nil
}

// BlocksPerYear is the number of blocks mined in one schedule year.
func (a Annualizer) BlocksPerYear() uint64 {
	return a.BlocksPerDay * a.DaysPerYear
}

// APY compounds the 1e18 scaled per-block rate daily over one year and
// returns the yield as a percentage. The result is approximate and must only
// be used for display and yield weighting, never for money.
func (a Annualizer) APY(ratePerBlock *uint256.Int) float64 {
	if ratePerBlock == nil || ratePerBlock.IsZero() || a.Validate() != nil {
		return 0
	}
	daily := fixedpoint.Float(ratePerBlock, fixedpoint.Decimals) * float64(a.BlocksPerDay)
	return (math.Pow(daily+1, float64(a.DaysPerYear)) - 1) * 100
}

// APR is the simple, uncompounded annual rate as a percentage.
func (a Annualizer) APR(ratePerBlock *uint256.Int) float64 {
	if ratePerBlock == nil || ratePerBlock.IsZero() {
		return 0
	}
	return fixedpoint.Float(ratePerBlock, fixedpoint.Decimals) * float64(a.BlocksPerYear()) * 100
}
