// Package portfolio folds per-market entries into account-wide totals.
// Totals are recomputed from scratch on every call; nothing is cached.
package portfolio

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendboard/lending/fixedpoint"
	"lendboard/lending/market"
	"lendboard/lending/rates"
)

// Totals is the folded view of one account's portfolio. USD amounts are
// 18-decimal fixed point. NetAPY is a percentage and may be negative.
type Totals struct {
	SupplyValue    fixedpoint.Amount
	BorrowValue    fixedpoint.Amount
	Limit          fixedpoint.Amount
	MarketSize     fixedpoint.Amount
	LiquidityValue fixedpoint.Amount
	NetAPY         float64

	// Included counts Exists entries that were folded.
	Included int
	// Pending counts Loading entries.
	Pending int
	// Missing counts NotExists entries.
	Missing int
	// Invalid counts entries rejected by the builder.
	Invalid int
	// Unavailable counts Exists entries with at least one value that could
	// not be derived and was skipped.
	Unavailable int
}

// Complete reports whether every entry contributed all of its values.
func (t Totals) Complete() bool {
	return t.Pending == 0 && t.Unavailable == 0
}

// Dedupe keeps the first entry for every (chain, market address) pair and
// drops later duplicates. Entries without a market address have no identity
// to merge on and are always kept. Input order is preserved.
func Dedupe(entries []market.Entry) []market.Entry {
	seen := make(map[market.Key]struct{}, len(entries))
	out := make([]market.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Market.Address == (common.Address{}) {
			out = append(out, entry)
			continue
		}
		key := entry.Market.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// Aggregate folds the entries into Totals. Only StateExists entries
// contribute; the other states are counted. Values that cannot be derived
// are skipped rather than treated as zero.
func Aggregate(entries []market.Entry, annualizer rates.Annualizer) Totals {
	totals := Totals{
		SupplyValue:    fixedpoint.Zero(),
		BorrowValue:    fixedpoint.Zero(),
		Limit:          fixedpoint.Zero(),
		MarketSize:     fixedpoint.Zero(),
		LiquidityValue: fixedpoint.Zero(),
	}
	var earned, paid, supplyBase, borrowBase float64

	for _, entry := range entries {
		switch entry.State {
		case market.StateLoading:
			totals.Pending++
			continue
		case market.StateNotExists:
			totals.Missing++
			continue
		case market.StateInvalid:
			totals.Invalid++
			continue
		}
		asset := entry.Asset
		if asset == nil {
			totals.Invalid++
			continue
		}
		totals.Included++

		partial := false
		fold := func(dst *fixedpoint.Amount, v fixedpoint.Amount) bool {
			if !v.Available() {
				partial = true
				return false
			}
			*dst = dst.Add(v)
			return true
		}

		supply := asset.SupplyValueUSD()
		if fold(&totals.SupplyValue, supply) {
			usd := fixedpoint.Float(supply.Int(), fixedpoint.Decimals)
			supplyBase += usd
			earned += usd * annualizer.APY(asset.SupplyRatePerBlock)
		}
		borrow := asset.BorrowValueUSD()
		if fold(&totals.BorrowValue, borrow) {
			usd := fixedpoint.Float(borrow.Int(), fixedpoint.Decimals)
			borrowBase += usd
			paid += usd * annualizer.APY(asset.BorrowRatePerBlock)
		}
		if asset.CanBeCollateral {
			fold(&totals.Limit, asset.CollateralWeightedValueUSD())
		}
		fold(&totals.MarketSize, asset.MarketSizeUSD())
		fold(&totals.LiquidityValue, asset.LiquidityValueUSD())

		if partial {
			totals.Unavailable++
		}
	}

	totals.NetAPY = netAPY(earned-paid, supplyBase, borrowBase)
	return totals
}

// netAPY divides by the supply base while the account earns on net and by
// the borrow base while it pays on net.
func netAPY(net, supplyBase, borrowBase float64) float64 {
	switch {
	case net > 0 && supplyBase > 0:
		return net / supplyBase
	case net < 0 && borrowBase > 0:
		return net / borrowBase
	default:
		return 0
	}
}

// Markets groups Exists assets the way the dashboard tables list them.
type Markets struct {
	// Supplied holds assets with a positive supply balance.
	Supplied []*market.Asset
	// Supplyable holds assets the account neither supplies nor borrows.
	Supplyable []*market.Asset
	// Borrowed holds assets with a positive borrow balance.
	Borrowed []*market.Asset
	// Borrowable holds assets the account neither supplies nor borrows.
	Borrowable []*market.Asset
}

// Partition splits the Exists entries into supply and borrow tables.
// Unlisted markets are never offered as new positions.
func Partition(entries []market.Entry) Markets {
	var out Markets
	for _, entry := range entries {
		asset := entry.Asset
		if entry.State != market.StateExists || asset == nil {
			continue
		}
		supplied, borrowed := asset.HasSupply(), asset.HasBorrow()
		if supplied {
			out.Supplied = append(out.Supplied, asset)
		}
		if borrowed {
			out.Borrowed = append(out.Borrowed, asset)
		}
		if !supplied && !borrowed && asset.IsListed && known(asset.SupplyBalance, asset.BorrowBalance) {
			out.Supplyable = append(out.Supplyable, asset)
			out.Borrowable = append(out.Borrowable, asset)
		}
	}
	return out
}

func known(values ...*uint256.Int) bool {
	for _, v := range values {
		if v == nil {
			return false
		}
	}
	return true
}
