// Package market models one lending-market instrument: a market (wrapper)
// token, the underlying asset it represents, and the raw protocol fields read
// for a single account.
package market

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MarketTokenDecimals is the precision every market token uses.
const MarketTokenDecimals = 8

// State tags a per-market record. Numeric fields may only be read in
// StateExists.
type State uint8

const (
	StateLoading State = iota
	StateNotExists
	StateExists
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateNotExists:
		return "not_exists"
	case StateExists:
		return "exists"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ParseState accepts the lower-case names produced by String.
func ParseState(raw string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "loading":
		return StateLoading, true
	case "not_exists", "notexists":
		return StateNotExists, true
	case "exists":
		return StateExists, true
	case "invalid":
		return StateInvalid, true
	default:
		return StateInvalid, false
	}
}

// Token describes an ERC-20 style asset on a given chain.
type Token struct {
	ChainID  uint64
	Address  common.Address
	Decimals uint8
	Symbol   string
	Name     string
}

// Key identifies a market across chains.
type Key struct {
	ChainID uint64
	Address common.Address
}

// Key returns the chain scoped identity of the token.
func (t Token) Key() Key {
	return Key{ChainID: t.ChainID, Address: t.Address}
}

// IsNative reports whether the underlying is the chain's gas token.
func (t Token) IsNative() bool {
	return t.ChainID != 0 && strings.EqualFold(t.Symbol, "ETH")
}
