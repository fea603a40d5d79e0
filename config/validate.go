package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxUnderlyingDecimals is the largest precision the oracle price basis can
// express.
const MaxUnderlyingDecimals = 36

var (
	ErrNoChains       = errors.New("config: at least one chain is required")
	ErrDuplicateChain = errors.New("config: duplicate chain")
	ErrSchedule       = errors.New("config: chain schedule must be positive")
	ErrUnknownChain   = errors.New("config: market references unknown chain")
	ErrMarketAddress  = errors.New("config: invalid market address")
	ErrDuplicateEntry = errors.New("config: duplicate market")
	ErrDecimals       = errors.New("config: underlying decimals out of range")
)

// Validate checks the deployment for internal consistency.
func Validate(cfg *Config) error {
	if cfg == nil || len(cfg.Chains) == 0 {
		return ErrNoChains
	}
	chains := make(map[uint64]struct{}, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		if _, dup := chains[chain.ChainID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateChain, chain.ChainID)
		}
		if chain.BlocksPerDay == 0 || chain.DaysPerYear == 0 {
			return fmt.Errorf("%w: chain %d", ErrSchedule, chain.ChainID)
		}
		chains[chain.ChainID] = struct{}{}
	}
	if _, ok := chains[cfg.DefaultChain]; !ok {
		return fmt.Errorf("%w: default chain %d", ErrUnknownChain, cfg.DefaultChain)
	}

	seen := make(map[string]struct{}, len(cfg.Markets))
	for _, m := range cfg.Markets {
		if _, ok := chains[m.ChainID]; !ok {
			return fmt.Errorf("%w: %s on chain %d", ErrUnknownChain, m.Symbol, m.ChainID)
		}
		if !common.IsHexAddress(m.Address) || common.HexToAddress(m.Address) == (common.Address{}) {
			return fmt.Errorf("%w: %q", ErrMarketAddress, m.Address)
		}
		if addr := strings.TrimSpace(m.Underlying.Address); addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: underlying %q", ErrMarketAddress, addr)
		}
		if m.Underlying.Decimals > MaxUnderlyingDecimals {
			return fmt.Errorf("%w: %s has %d", ErrDecimals, m.Symbol, m.Underlying.Decimals)
		}
		key := fmt.Sprintf("%d/%s", m.ChainID, strings.ToLower(common.HexToAddress(m.Address).Hex()))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
