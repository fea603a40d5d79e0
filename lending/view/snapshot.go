// Package view converts wire snapshots into engine records and renders the
// derived totals and health back into a JSON friendly shape.
package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lendboard/lending/catalog"
	"lendboard/lending/market"
)

var (
	ErrAccount       = errors.New("view: invalid account address")
	ErrEmptySnapshot = errors.New("view: snapshot has no records")
)

// Snapshot is one delivery from the data source: every market read for an
// account at a point in time. Numeric fields are base-10 integer strings; an
// absent field has not been loaded.
type Snapshot struct {
	ChainID uint64        `json:"chainId"`
	Account string        `json:"account,omitempty"`
	Records []RecordInput `json:"records"`
}

// RecordInput is the wire form of market.Record. Token metadata comes from
// the catalog.
type RecordInput struct {
	State                    string  `json:"state"`
	Market                   string  `json:"market"`
	SupplyRatePerBlock       *string `json:"supplyRatePerBlock,omitempty"`
	BorrowRatePerBlock       *string `json:"borrowRatePerBlock,omitempty"`
	ExchangeRateMantissa     *string `json:"exchangeRateMantissa,omitempty"`
	UnderlyingPriceMantissa  *string `json:"underlyingPriceMantissa,omitempty"`
	CollateralFactorMantissa *string `json:"collateralFactorMantissa,omitempty"`
	SupplyBalance            *string `json:"supplyBalance,omitempty"`
	BorrowBalance            *string `json:"borrowBalance,omitempty"`
	BalanceUnderlying        *string `json:"balanceUnderlying,omitempty"`
	TotalSupply              *string `json:"totalSupply,omitempty"`
	Liquidity                *string `json:"liquidity,omitempty"`
	CanBeCollateral          bool    `json:"canBeCollateral"`
	IsListed                 bool    `json:"isListed"`
}

// Warning explains why a record was degraded during decoding.
type Warning struct {
	Index  int    `json:"index"`
	Market string `json:"market"`
	Reason string `json:"reason"`
}

// ReadSnapshot decodes a snapshot document, rejecting unknown fields.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// NormalizeAccount validates a hex account address and returns its checksum
// form.
func NormalizeAccount(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("%w: %q", ErrAccount, raw)
	}
	return common.HexToAddress(raw).Hex(), nil
}

// Resolve resolves every input against the catalog. Inputs that name an
// unknown market, carry an unknown state or a malformed number become
// StateInvalid records and produce a warning; they never fail the snapshot.
func (s Snapshot) Resolve(cat *catalog.Catalog) ([]market.Record, []Warning, error) {
	if len(s.Records) == 0 {
		return nil, nil, ErrEmptySnapshot
	}
	if _, err := cat.Chain(s.ChainID); err != nil {
		return nil, nil, err
	}
	records := make([]market.Record, 0, len(s.Records))
	var warnings []Warning
	for i, in := range s.Records {
		rec, err := in.record(cat, s.ChainID)
		if err != nil {
			warnings = append(warnings, Warning{Index: i, Market: in.Market, Reason: err.Error()})
			rec.State = market.StateInvalid
		}
		records = append(records, rec)
	}
	return records, warnings, nil
}

func (in RecordInput) record(cat *catalog.Catalog, chainID uint64) (market.Record, error) {
	rec := market.Record{
		State:           market.StateInvalid,
		CanBeCollateral: in.CanBeCollateral,
		IsListed:        in.IsListed,
	}
	if !common.IsHexAddress(in.Market) {
		return rec, fmt.Errorf("market address %q is not hex", in.Market)
	}
	addr := common.HexToAddress(in.Market)
	rec.Market = market.Token{ChainID: chainID, Address: addr, Decimals: market.MarketTokenDecimals}

	listing, err := cat.Lookup(chainID, addr)
	if err != nil {
		return rec, err
	}
	rec.Market = listing.Market
	rec.Underlying = listing.Underlying

	state, ok := market.ParseState(in.State)
	if !ok {
		return rec, fmt.Errorf("unknown state %q", in.State)
	}
	fields := []struct {
		name string
		src  *string
		dst  **big.Int
	}{
		{"supplyRatePerBlock", in.SupplyRatePerBlock, &rec.SupplyRatePerBlock},
		{"borrowRatePerBlock", in.BorrowRatePerBlock, &rec.BorrowRatePerBlock},
		{"exchangeRateMantissa", in.ExchangeRateMantissa, &rec.ExchangeRateMantissa},
		{"underlyingPriceMantissa", in.UnderlyingPriceMantissa, &rec.UnderlyingPriceMantissa},
		{"collateralFactorMantissa", in.CollateralFactorMantissa, &rec.CollateralFactorMantissa},
		{"supplyBalance", in.SupplyBalance, &rec.SupplyBalance},
		{"borrowBalance", in.BorrowBalance, &rec.BorrowBalance},
		{"balanceUnderlying", in.BalanceUnderlying, &rec.BalanceUnderlying},
		{"totalSupply", in.TotalSupply, &rec.TotalSupply},
		{"liquidity", in.Liquidity, &rec.Liquidity},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		v, ok := new(big.Int).SetString(strings.TrimSpace(*f.src), 10)
		if !ok {
			return rec, fmt.Errorf("%s: %q is not a base-10 integer", f.name, *f.src)
		}
		*f.dst = v
	}
	rec.State = state
	return rec, nil
}
