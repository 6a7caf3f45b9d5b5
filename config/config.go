// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the deployment settings of a confidential pool:
// which evaluation backend to run, the contract addresses, and the
// client-side slippage default.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/luxfi/geth/common"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/fheswap/fhe"
	"github.com/luxfi/fheswap/registry"
)

// MaxSlippageBps is 100%.
const MaxSlippageBps uint64 = 10_000

var (
	ErrUnknownBackend  = errors.New("unknown evaluation backend")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrDuplicateToken  = errors.New("token0 and token1 share an address")
	ErrInvalidSlippage = errors.New("slippage exceeds 100%")
	ErrUnknownFormat   = errors.New("unsupported config file extension")
)

// TokenConfig describes one pooled confidential token.
type TokenConfig struct {
	Address string `json:"address" toml:"Address" yaml:"address"`
	Name    string `json:"name" toml:"Name" yaml:"name"`
	Symbol  string `json:"symbol" toml:"Symbol" yaml:"symbol"`
}

// Config is the runtime configuration of one pool deployment.
type Config struct {
	Backend     string      `json:"backend" toml:"Backend" yaml:"backend"`
	Owner       string      `json:"owner" toml:"Owner" yaml:"owner"`
	Pool        string      `json:"pool" toml:"Pool" yaml:"pool"`
	Token0      TokenConfig `json:"token0" toml:"token0" yaml:"token0"`
	Token1      TokenConfig `json:"token1" toml:"token1" yaml:"token1"`
	SlippageBps uint64      `json:"slippageBps" toml:"SlippageBps" yaml:"slippageBps"`
}

// Default returns a development configuration on the clear backend.
func Default() Config {
	d := registry.PoolDeployment(registry.ChainC)
	return Config{
		Backend: fhe.BackendClear,
		Owner:   "0x0000000000000000000000000000000000000001",
		Pool:    d.Pool.Hex(),
		Token0: TokenConfig{
			Address: d.Token0.Hex(),
			Name:    "Confidential Token A",
			Symbol:  "cTKA",
		},
		Token1: TokenConfig{
			Address: d.Token1.Hex(),
			Name:    "Confidential Token B",
			Symbol:  "cTKB",
		},
		SlippageBps: 100,
	}
}

// Load reads a .toml, .json or .yaml file over the defaults and verifies it.
func Load(path string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
	if err := cfg.Verify(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Verify checks that the configuration is usable.
func (c Config) Verify() error {
	switch c.Backend {
	case fhe.BackendClear, fhe.BackendTFHE:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	for name, addr := range map[string]string{
		"owner":  c.Owner,
		"pool":   c.Pool,
		"token0": c.Token0.Address,
		"token1": c.Token1.Address,
	} {
		if !common.IsHexAddress(addr) || common.HexToAddress(addr) == (common.Address{}) {
			return fmt.Errorf("%w: %s %q", ErrInvalidAddress, name, addr)
		}
	}
	if common.HexToAddress(c.Token0.Address) == common.HexToAddress(c.Token1.Address) {
		return ErrDuplicateToken
	}
	if c.SlippageBps > MaxSlippageBps {
		return fmt.Errorf("%w: %d bps", ErrInvalidSlippage, c.SlippageBps)
	}
	return nil
}

func (c Config) OwnerAddress() common.Address      { return common.HexToAddress(c.Owner) }
func (c Config) PoolAddress() common.Address       { return common.HexToAddress(c.Pool) }
func (t TokenConfig) TokenAddress() common.Address { return common.HexToAddress(t.Address) }
