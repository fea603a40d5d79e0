// Package config loads the lendboard deployment: the chains served, their
// block schedules and the markets listed on each.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"lendboard/lending/rates"
)

// MainnetChainID identifies Ethereum mainnet.
const MainnetChainID = 1

type Config struct {
	DefaultChain uint64   `toml:"DefaultChain"`
	Chains       []Chain  `toml:"chains"`
	Markets      []Market `toml:"markets"`
}

// Load loads the configuration from the given path. A missing file is
// created with the mainnet defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Chains) == 0 {
		cfg.Chains = []Chain{mainnet()}
	}
	if cfg.DefaultChain == 0 {
		cfg.DefaultChain = cfg.Chains[0].ChainID
	}
	for i := range cfg.Chains {
		if cfg.Chains[i].DaysPerYear == 0 {
			cfg.Chains[i].DaysPerYear = rates.Default.DaysPerYear
		}
	}
	if cfg.Markets == nil {
		cfg.Markets = []Market{}
	}
}

func mainnet() Chain {
	return Chain{
		ChainID:      MainnetChainID,
		Name:         "mainnet",
		BlocksPerDay: rates.Default.BlocksPerDay,
		DaysPerYear:  rates.Default.DaysPerYear,
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DefaultChain: MainnetChainID,
		Chains:       []Chain{mainnet()},
		Markets: []Market{
			{
				ChainID: MainnetChainID,
				Address: "0x39AA39c021dfbaE8faC545936693aC917d5E7563",
				Symbol:  "cUSDC",
				Name:    "Compound USD Coin",
				Underlying: Underlying{
					Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
					Decimals: 6,
					Symbol:   "USDC",
					Name:     "USD Coin",
				},
			},
			{
				ChainID: MainnetChainID,
				Address: "0x5d3a536E4D6DbD6114cc1Ead35777bAB948E3643",
				Symbol:  "cDAI",
				Name:    "Compound Dai",
				Underlying: Underlying{
					Address:  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
					Decimals: 18,
					Symbol:   "DAI",
					Name:     "Dai Stablecoin",
				},
			},
			{
				ChainID: MainnetChainID,
				Address: "0x4Ddc2D193948926D02f9B1fE9e1daa0718270ED5",
				Symbol:  "cETH",
				Name:    "Compound Ether",
				Underlying: Underlying{
					Decimals: 18,
					Symbol:   "ETH",
					Name:     "Ether",
				},
			},
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
