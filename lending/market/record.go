package market

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendboard/lending/fixedpoint"
)

var (
	// ErrNegativeBalance marks a balance read below zero, which no healthy
	// protocol can produce.
	ErrNegativeBalance = errors.New("market: negative balance")
	// ErrNegativeField marks a negative rate, mantissa or total supply.
	ErrNegativeField = errors.New("market: negative field")
	// ErrCollateralFactorRange marks a collateral factor outside [0, 1e18].
	ErrCollateralFactorRange = errors.New("market: collateral factor out of range")
	// ErrFieldOverflow marks a raw read that does not fit in 256 bits.
	ErrFieldOverflow = errors.New("market: field exceeds 256 bits")
	// ErrMissingField marks an Exists record lacking a required field.
	ErrMissingField = errors.New("market: required field missing")
	// ErrMissingIdentity marks a record without a market address.
	ErrMissingIdentity = errors.New("market: market address missing")
)

// Record is one raw per-market read delivered by the data source. Numeric
// fields are arbitrary precision so malformed reads can be detected before
// they are narrowed to 256 bits.
type Record struct {
	State      State
	Market     Token
	Underlying Token

	SupplyRatePerBlock       *big.Int
	BorrowRatePerBlock       *big.Int
	ExchangeRateMantissa     *big.Int
	UnderlyingPriceMantissa  *big.Int
	CollateralFactorMantissa *big.Int
	SupplyBalance            *big.Int
	BorrowBalance            *big.Int
	BalanceUnderlying        *big.Int
	TotalSupply              *big.Int
	Liquidity                *big.Int

	CanBeCollateral bool
	IsListed        bool
}

// Entry is the state-tagged result of building a record. Asset is non-nil
// only in StateExists; Err explains StateInvalid.
type Entry struct {
	State  State
	Market Token
	Asset  *Asset
	Err    error
}

// Builder turns raw records into entries. In strict mode a negative balance
// aborts the build instead of degrading the record to StateInvalid; test
// harnesses use it to halt on upstream bugs.
type Builder struct {
	Strict bool
}

// Build converts every record, preserving input order.
func (b Builder) Build(records []Record) ([]Entry, error) {
	entries := make([]Entry, 0, len(records))
	for i := range records {
		entry := b.BuildOne(records[i])
		if b.Strict && errors.Is(entry.Err, ErrNegativeBalance) {
			return nil, fmt.Errorf("record %d (%s): %w", i, records[i].Market.Address.Hex(), entry.Err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BuildOne converts a single record.
func (b Builder) BuildOne(rec Record) Entry {
	entry := Entry{State: rec.State, Market: rec.Market}
	if rec.Market.Address == (common.Address{}) {
		return invalid(entry, ErrMissingIdentity)
	}
	if rec.State != StateExists {
		return entry
	}
	asset, err := newAsset(rec)
	if err != nil {
		return invalid(entry, err)
	}
	if err := asset.validate(); err != nil {
		return invalid(entry, err)
	}
	entry.Asset = asset
	return entry
}

func invalid(entry Entry, err error) Entry {
	entry.State = StateInvalid
	entry.Asset = nil
	entry.Err = err
	return entry
}

func newAsset(rec Record) (*Asset, error) {
	asset := &Asset{
		Market:          rec.Market,
		Underlying:      rec.Underlying,
		CanBeCollateral: rec.CanBeCollateral,
		IsListed:        rec.IsListed,
	}
	fields := []struct {
		name     string
		src      *big.Int
		dst      **uint256.Int
		required bool
		balance  bool
	}{
		{"supplyRatePerBlock", rec.SupplyRatePerBlock, &asset.SupplyRatePerBlock, true, false},
		{"borrowRatePerBlock", rec.BorrowRatePerBlock, &asset.BorrowRatePerBlock, true, false},
		{"exchangeRateMantissa", rec.ExchangeRateMantissa, &asset.ExchangeRateMantissa, true, false},
		{"underlyingPriceMantissa", rec.UnderlyingPriceMantissa, &asset.UnderlyingPriceMantissa, true, false},
		{"collateralFactorMantissa", rec.CollateralFactorMantissa, &asset.CollateralFactorMantissa, true, false},
		{"supplyBalance", rec.SupplyBalance, &asset.SupplyBalance, true, true},
		{"borrowBalance", rec.BorrowBalance, &asset.BorrowBalance, true, true},
		{"balanceUnderlying", rec.BalanceUnderlying, &asset.BalanceUnderlying, false, true},
		{"totalSupply", rec.TotalSupply, &asset.TotalSupply, true, false},
		{"liquidity", rec.Liquidity, &asset.Liquidity, true, true},
	}
	for _, f := range fields {
		if f.src == nil {
			if f.required {
				return nil, fmt.Errorf("%w: %s", ErrMissingField, f.name)
			}
			continue
		}
		if f.src.Sign() < 0 {
			if f.balance {
				return nil, fmt.Errorf("%w: %s=%s", ErrNegativeBalance, f.name, f.src.String())
			}
			return nil, fmt.Errorf("%w: %s=%s", ErrNegativeField, f.name, f.src.String())
		}
		v, overflow := uint256.FromBig(f.src)
		if overflow {
			return nil, fmt.Errorf("%w: %s", ErrFieldOverflow, f.name)
		}
		*f.dst = v
	}
	return asset, nil
}

func (a *Asset) validate() error {
	if a.CollateralFactorMantissa.Gt(fixedpoint.One) {
		return fmt.Errorf("%w: %s", ErrCollateralFactorRange, a.CollateralFactorMantissa.Dec())
	}
	if _, err := fixedpoint.UnderlyingPriceBasis(a.Underlying.Decimals); err != nil {
		return err
	}
	checks := []func() (*uint256.Int, error){
		a.supplyValue,
		a.borrowValue,
		a.collateralValue,
		a.marketSize,
		func() (*uint256.Int, error) { return a.usdValue(a.Liquidity) },
	}
	for _, check := range checks {
		if _, err := check(); err != nil {
			return err
		}
	}
	return nil
}
