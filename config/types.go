package config

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lendboard/lending/market"
	"lendboard/lending/rates"
)

// Chain captures the block schedule of one deployment. Block times differ
// across chains so the schedule is never assumed.
type Chain struct {
	ChainID      uint64 `toml:"ChainID"`
	Name         string `toml:"Name"`
	BlocksPerDay uint64 `toml:"BlocksPerDay"`
	DaysPerYear  uint64 `toml:"DaysPerYear"`
}

// Annualizer returns the rate annualizer for the chain's schedule.
func (c Chain) Annualizer() rates.Annualizer {
	return rates.Annualizer{BlocksPerDay: c.BlocksPerDay, DaysPerYear: c.DaysPerYear}
}

// Underlying describes the asset a market token wraps.
type Underlying struct {
	Address  string `toml:"Address"`
	Decimals uint8  `toml:"Decimals"`
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
}

// Market lists one lending market of a chain.
type Market struct {
	ChainID    uint64     `toml:"ChainID"`
	Address    string     `toml:"Address"`
	Symbol     string     `toml:"Symbol"`
	Name       string     `toml:"Name"`
	Underlying Underlying `toml:"underlying"`
}

// Tokens converts the listing into market and underlying descriptors.
// Addresses must have been checked by Validate.
func (m Market) Tokens() (market.Token, market.Token) {
	mkt := market.Token{
		ChainID:  m.ChainID,
		Address:  common.HexToAddress(m.Address),
		Decimals: market.MarketTokenDecimals,
		Symbol:   m.Symbol,
		Name:     m.Name,
	}
	underlying := market.Token{
		ChainID:  m.ChainID,
		Decimals: m.Underlying.Decimals,
		Symbol:   m.Underlying.Symbol,
		Name:     m.Underlying.Name,
	}
	if addr := strings.TrimSpace(m.Underlying.Address); addr != "" {
		underlying.Address = common.HexToAddress(addr)
	}
	return mkt, underlying
}
