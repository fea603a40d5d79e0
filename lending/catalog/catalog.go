// Package catalog is the market memo table: listings keyed by chain and
// market address, and the block schedule of every chain. A Catalog is
// immutable once built and safe for concurrent use.
package catalog

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lendboard/config"
	"lendboard/lending/market"
	"lendboard/lending/rates"
)

var (
	ErrUnknownChain  = errors.New("catalog: unknown chain")
	ErrUnknownMarket = errors.New("catalog: unknown market")
)

// Listing pairs a market token with its underlying asset.
type Listing struct {
	Market     market.Token
	Underlying market.Token
}

type Catalog struct {
	defaultChain uint64
	chains       map[uint64]config.Chain
	listings     map[market.Key]Listing
	order        map[uint64][]market.Key
}

// New builds a catalog from a validated configuration.
func New(cfg *config.Config) (*Catalog, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	c := &Catalog{
		defaultChain: cfg.DefaultChain,
		chains:       make(map[uint64]config.Chain, len(cfg.Chains)),
		listings:     make(map[market.Key]Listing, len(cfg.Markets)),
		order:        make(map[uint64][]market.Key, len(cfg.Chains)),
	}
	for _, chain := range cfg.Chains {
		c.chains[chain.ChainID] = chain
	}
	for _, m := range cfg.Markets {
		mkt, underlying := m.Tokens()
		key := mkt.Key()
		c.listings[key] = Listing{Market: mkt, Underlying: underlying}
		c.order[key.ChainID] = append(c.order[key.ChainID], key)
	}
	return c, nil
}

// DefaultChain is the chain used when a caller does not name one.
func (c *Catalog) DefaultChain() uint64 { return c.defaultChain }

// Chain returns the configuration of chainID.
func (c *Catalog) Chain(chainID uint64) (config.Chain, error) {
	chain, ok := c.chains[chainID]
	if !ok {
		return config.Chain{}, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return chain, nil
}

// Annualizer returns the block schedule of chainID.
func (c *Catalog) Annualizer(chainID uint64) (rates.Annualizer, error) {
	chain, err := c.Chain(chainID)
	if err != nil {
		return rates.Annualizer{}, err
	}
	return chain.Annualizer(), nil
}

// Lookup resolves a market on a chain.
func (c *Catalog) Lookup(chainID uint64, addr common.Address) (Listing, error) {
	listing, ok := c.listings[market.Key{ChainID: chainID, Address: addr}]
	if !ok {
		return Listing{}, fmt.Errorf("%w: %d/%s", ErrUnknownMarket, chainID, addr.Hex())
	}
	return listing, nil
}

// Markets lists the chain's markets in configuration order.
func (c *Catalog) Markets(chainID uint64) ([]Listing, error) {
	if _, err := c.Chain(chainID); err != nil {
		return nil, err
	}
	keys := c.order[chainID]
	out := make([]Listing, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.listings[key])
	}
	return out, nil
}
