package market

import (
	"errors"

	"github.com/holiman/uint256"

	"lendboard/lending/fixedpoint"
)

var errFieldMissing = errors.New("market: field not loaded")

// Asset is the immutable per-market view for one account. A nil numeric
// field means the value has not been loaded; accessors then report
// fixedpoint.Unavailable rather than zero.
type Asset struct {
	Market     Token
	Underlying Token

	// Per-block interest rates, 1e18 scaled.
	SupplyRatePerBlock *uint256.Int
	BorrowRatePerBlock *uint256.Int
	// ExchangeRateMantissa converts market-token units into underlying units.
	ExchangeRateMantissa *uint256.Int
	// UnderlyingPriceMantissa is the oracle USD price, pre-scaled by
	// 10^(18-underlying decimals).
	UnderlyingPriceMantissa *uint256.Int
	// CollateralFactorMantissa lies in [0, 1e18].
	CollateralFactorMantissa *uint256.Int

	// SupplyBalance is held in market-token units.
	SupplyBalance *uint256.Int
	// BorrowBalance is held in underlying units.
	BorrowBalance *uint256.Int
	// BalanceUnderlying is the account's supply redeemed to underlying units
	// as reported by the market contract.
	BalanceUnderlying *uint256.Int
	// TotalSupply is the market-wide supply in market-token units.
	TotalSupply *uint256.Int
	// Liquidity is the market's available cash in underlying units.
	Liquidity *uint256.Int

	// CanBeCollateral is the account's membership flag for this market.
	CanBeCollateral bool
	IsListed        bool
}

// Equal reports whether both assets describe the same market on the same chain.
func (a *Asset) Equal(other *Asset) bool {
	if a == other {
		return true
	}
	if a == nil || other == nil {
		return false
	}
	return a.Market.Key() == other.Market.Key()
}

// SupplyBalanceInUnderlying converts the supplied market tokens into
// underlying units on the common basis.
func (a *Asset) SupplyBalanceInUnderlying() fixedpoint.Amount {
	return known(a.supplyUnderlying())
}

// BorrowBalanceInUnderlying rebases the outstanding borrow onto the common basis.
func (a *Asset) BorrowBalanceInUnderlying() fixedpoint.Amount {
	if a == nil {
		return fixedpoint.Unavailable
	}
	return known(a.common(a.BorrowBalance))
}

// SupplyValueUSD is the USD value of the account's supply.
func (a *Asset) SupplyValueUSD() fixedpoint.Amount {
	return known(a.supplyValue())
}

// BorrowValueUSD is the USD value of the account's outstanding borrow.
func (a *Asset) BorrowValueUSD() fixedpoint.Amount {
	return known(a.borrowValue())
}

// CollateralWeightedValueUSD is the borrowing power contributed by this
// asset. It is zero whenever the account has not entered the market as
// collateral, whatever the protocol-level factor.
func (a *Asset) CollateralWeightedValueUSD() fixedpoint.Amount {
	return known(a.collateralValue())
}

// MarketSizeUSD is the USD value of all supply in the market.
func (a *Asset) MarketSizeUSD() fixedpoint.Amount {
	return known(a.marketSize())
}

// LiquidityValueUSD is the USD value of cash available to borrowers.
func (a *Asset) LiquidityValueUSD() fixedpoint.Amount {
	if a == nil {
		return fixedpoint.Unavailable
	}
	return known(a.usdValue(a.Liquidity))
}

// HasSupply reports a known, positive supply balance.
func (a *Asset) HasSupply() bool {
	return a != nil && a.SupplyBalance != nil && !a.SupplyBalance.IsZero()
}

// HasBorrow reports a known, positive borrow balance.
func (a *Asset) HasBorrow() bool {
	return a != nil && a.BorrowBalance != nil && !a.BorrowBalance.IsZero()
}

func known(v *uint256.Int, err error) fixedpoint.Amount {
	if err != nil {
		return fixedpoint.Unavailable
	}
	return fixedpoint.Known(v)
}

func (a *Asset) common(raw *uint256.Int) (*uint256.Int, error) {
	if raw == nil {
		return nil, errFieldMissing
	}
	return fixedpoint.ToCommonBasis(raw, a.Underlying.Decimals)
}

func (a *Asset) usdValue(raw *uint256.Int) (*uint256.Int, error) {
	amount, err := a.common(raw)
	if err != nil {
		return nil, err
	}
	return a.priced(amount)
}

func (a *Asset) priced(commonAmount *uint256.Int) (*uint256.Int, error) {
	if a.UnderlyingPriceMantissa == nil {
		return nil, errFieldMissing
	}
	basis, err := fixedpoint.UnderlyingPriceBasis(a.Underlying.Decimals)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(commonAmount, a.UnderlyingPriceMantissa, basis)
}

func (a *Asset) redeemed(marketTokens *uint256.Int) (*uint256.Int, error) {
	if marketTokens == nil || a.ExchangeRateMantissa == nil {
		return nil, errFieldMissing
	}
	raw, err := fixedpoint.MulMantissa(marketTokens, a.ExchangeRateMantissa)
	if err != nil {
		return nil, err
	}
	return a.common(raw)
}

func (a *Asset) supplyUnderlying() (*uint256.Int, error) {
	if a == nil {
		return nil, errFieldMissing
	}
	return a.redeemed(a.SupplyBalance)
}

func (a *Asset) supplyValue() (*uint256.Int, error) {
	amount, err := a.supplyUnderlying()
	if err != nil {
		return nil, err
	}
	return a.priced(amount)
}

func (a *Asset) borrowValue() (*uint256.Int, error) {
	if a == nil {
		return nil, errFieldMissing
	}
	return a.usdValue(a.BorrowBalance)
}

func (a *Asset) collateralValue() (*uint256.Int, error) {
	if a == nil {
		return nil, errFieldMissing
	}
	if a.CollateralFactorMantissa == nil {
		return nil, errFieldMissing
	}
	value, err := a.supplyValue()
	if err != nil {
		return nil, err
	}
	if !a.CanBeCollateral {
		return new(uint256.Int), nil
	}
	return fixedpoint.MulMantissa(value, a.CollateralFactorMantissa)
}

func (a *Asset) marketSize() (*uint256.Int, error) {
	if a == nil {
		return nil, errFieldMissing
	}
	amount, err := a.redeemed(a.TotalSupply)
	if err != nil {
		return nil, err
	}
	return a.priced(amount)
}
