package health

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendboard/lending/fixedpoint"
	"lendboard/lending/market"
	"lendboard/lending/portfolio"
	"lendboard/lending/rates"
)

func dec(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return v
}

func usd(units uint64) fixedpoint.Amount {
	v := new(uint256.Int).Mul(uint256.NewInt(units), fixedpoint.One)
	return fixedpoint.Known(v)
}

// scenario is one USDC collateral position worth $1000 at an 80% factor and
// a $500 DAI borrow.
func scenario(t *testing.T) ([]market.Entry, portfolio.Totals) {
	t.Helper()
	usdc := market.Record{
		State:                    market.StateExists,
		Market:                   market.Token{ChainID: 1, Address: common.HexToAddress("0x39aa39c021dfbae8fac545936693ac917d5e7563"), Decimals: 8, Symbol: "cUSDC"},
		Underlying:               market.Token{ChainID: 1, Address: common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), Decimals: 6, Symbol: "USDC"},
		SupplyRatePerBlock:       dec("0"),
		BorrowRatePerBlock:       dec("0"),
		ExchangeRateMantissa:     dec("200000000000000"),
		UnderlyingPriceMantissa:  dec("1000000000000000000000000000000"),
		CollateralFactorMantissa: dec("800000000000000000"),
		SupplyBalance:            dec("5000000000000"),
		BorrowBalance:            dec("0"),
		TotalSupply:              dec("5000000000000"),
		Liquidity:                dec("0"),
		CanBeCollateral:          true,
		IsListed:                 true,
	}
	dai := market.Record{
		State:                    market.StateExists,
		Market:                   market.Token{ChainID: 1, Address: common.HexToAddress("0x5d3a536e4d6dbd6114cc1ead35777bab948e3643"), Decimals: 8, Symbol: "cDAI"},
		Underlying:               market.Token{ChainID: 1, Address: common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f"), Decimals: 18, Symbol: "DAI"},
		SupplyRatePerBlock:       dec("0"),
		BorrowRatePerBlock:       dec("0"),
		ExchangeRateMantissa:     dec("200000000000000000000000000"),
		UnderlyingPriceMantissa:  dec("1000000000000000000"),
		CollateralFactorMantissa: dec("750000000000000000"),
		SupplyBalance:            dec("0"),
		BorrowBalance:            dec("500000000000000000000"),
		TotalSupply:              dec("0"),
		Liquidity:                dec("0"),
		IsListed:                 true,
	}
	entries, err := market.Builder{Strict: true}.Build([]market.Record{usdc, dai})
	require.NoError(t, err)
	return entries, portfolio.Aggregate(portfolio.Dedupe(entries), rates.Default)
}

func TestEndToEndScenario(t *testing.T) {
	entries, totals := scenario(t)
	require.Equal(t, usd(1000).Int().Dec(), totals.SupplyValue.Int().Dec())
	require.Equal(t, usd(800).Int().Dec(), totals.Limit.Int().Dec())
	require.Equal(t, usd(500).Int().Dec(), totals.BorrowValue.Int().Dec())

	h := Evaluate(totals)
	used := h.UsedLimit()
	require.Equal(t, RatioDefined, used.State)
	require.Equal(t, "625000000000000000", used.Mantissa().Dec())
	pct, ok := h.UsedLimitPercent()
	require.True(t, ok)
	require.InDelta(t, 62.5, pct, 1e-9)

	usdc, dai := entries[0].Asset, entries[1].Asset
	require.False(t, h.CanDisableCollateral(usdc), "800 - 800 leaves nothing against a 500 borrow")
	require.True(t, h.CanDisableCollateral(dai))

	share, ok := h.PercentOfLimit(dai)
	require.True(t, ok)
	require.InDelta(t, 62.5, share, 1e-9)
	share, ok = h.PercentOfLimit(usdc)
	require.True(t, ok)
	require.Equal(t, 0.0, share)

	require.Equal(t, usd(300).Int().Dec(), h.AvailableToBorrow().Int().Dec())
	require.False(t, h.OverLimit())
}

func TestZeroLimit(t *testing.T) {
	empty := AccountHealth{Limit: fixedpoint.Zero(), BorrowValue: fixedpoint.Zero()}
	used := empty.UsedLimit()
	require.Equal(t, RatioDefined, used.State)
	require.True(t, used.Mantissa().IsZero())
	pct, ok := empty.UsedLimitPercent()
	require.True(t, ok)
	require.Equal(t, 0.0, pct)

	indebted := AccountHealth{Limit: fixedpoint.Zero(), BorrowValue: usd(100)}
	used = indebted.UsedLimit()
	require.Equal(t, RatioUndefined, used.State)
	require.Nil(t, used.Mantissa())
	_, ok = indebted.UsedLimitPercent()
	require.False(t, ok)
	require.Equal(t, "over_limit_undefined", used.String())
	require.True(t, indebted.OverLimit())
	require.True(t, indebted.AvailableToBorrow().IsZero())
}

func TestPercentOfLimitZeroLimit(t *testing.T) {
	entries, _ := scenario(t)
	h := AccountHealth{Limit: fixedpoint.Zero(), BorrowValue: usd(500)}
	require.Equal(t, RatioUndefined, h.ShareOfLimit(entries[1].Asset).State)
	require.Equal(t, RatioDefined, h.ShareOfLimit(entries[0].Asset).State)
}

func TestUnavailableInputs(t *testing.T) {
	h := AccountHealth{Limit: fixedpoint.Unavailable, BorrowValue: usd(1)}
	require.Equal(t, RatioUnavailable, h.UsedLimit().State)
	require.False(t, h.AvailableToBorrow().Available())
	require.False(t, h.OverLimit())

	entries, totals := scenario(t)
	partial := *entries[1].Asset
	partial.UnderlyingPriceMantissa = nil
	healthy := Evaluate(totals)
	require.False(t, healthy.CanDisableCollateral(&partial))
	require.Equal(t, RatioUnavailable, healthy.ShareOfLimit(&partial).State)
}

func TestCanDisableCollateralWithHeadroom(t *testing.T) {
	entries, _ := scenario(t)
	h := AccountHealth{Limit: usd(2000), BorrowValue: usd(500)}
	require.True(t, h.CanDisableCollateral(entries[0].Asset))

	exact := AccountHealth{Limit: usd(1300), BorrowValue: usd(500)}
	require.True(t, exact.CanDisableCollateral(entries[0].Asset), "remaining limit equal to the borrow is allowed")
}
