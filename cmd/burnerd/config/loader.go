// Package config loads the daemon configuration: a compiled-in default
// config.yaml, overridable by a user file and BURNERD_* environment
// variables.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/burnerhq/burnerd/internal/constants"
	"github.com/burnerhq/burnerd/internal/registry"
)

//go:embed config.yaml
var embeddedConfigYAML []byte

type ServerSettings struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type ServiceSettings struct {
	IndexerURL string `mapstructure:"indexerUrl"`
	PasskeyURL string `mapstructure:"passkeyUrl"`
	EnsURL     string `mapstructure:"ensUrl"`
}

type ChainSettings struct {
	ChainID      uint64 `mapstructure:"chainId"`
	Name         string `mapstructure:"name"`
	EntryPoint   string `mapstructure:"entryPoint"`
	BundlerURL   string `mapstructure:"bundlerUrl"`
	PaymasterURL string `mapstructure:"paymasterUrl"`
}

type TokenSettings struct {
	Symbol     string            `mapstructure:"symbol"`
	Decimals   uint8             `mapstructure:"decimals"`
	Contracts  map[string]string `mapstructure:"contracts"`
	BridgeFees map[string]string `mapstructure:"bridgeFees"`
}

type Config struct {
	Server     ServerSettings    `mapstructure:"server"`
	Services   ServiceSettings   `mapstructure:"services"`
	Chains     []ChainSettings   `mapstructure:"chains"`
	Tokens     []TokenSettings   `mapstructure:"tokens"`
	SpokePools map[string]string `mapstructure:"spokePools"`
}

// Load reads the embedded defaults, then merges the user config file (if one
// exists) and BURNERD_* environment variables over them.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(embeddedConfigYAML)); err != nil {
		return nil, fmt.Errorf("embedded config: %w", err)
	}

	home, _ := os.UserHomeDir()
	for _, dir := range []string{
		filepath.Join(home, ".config", constants.AppName),
		".",
	} {
		path := filepath.Join(dir, constants.ConfigFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", path, err)
		}
		break
	}

	v.SetEnvPrefix(strings.ToUpper(constants.AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Registry converts the configured chains and tokens into the immutable
// runtime registry. Bridge fees are given in display units and parsed with
// each token's decimals.
func (c *Config) Registry() (*registry.Registry, error) {
	chains := make([]registry.ChainDescriptor, 0, len(c.Chains))
	for _, ch := range c.Chains {
		if !common.IsHexAddress(ch.EntryPoint) {
			return nil, fmt.Errorf("chain %d: invalid entryPoint %q", ch.ChainID, ch.EntryPoint)
		}
		chains = append(chains, registry.ChainDescriptor{
			ChainID:      ch.ChainID,
			Name:         ch.Name,
			EntryPoint:   common.HexToAddress(ch.EntryPoint),
			BundlerURL:   ch.BundlerURL,
			PaymasterURL: ch.PaymasterURL,
		})
	}

	tokens := make([]registry.TokenDescriptor, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		desc := registry.TokenDescriptor{
			Symbol:    t.Symbol,
			Decimals:  t.Decimals,
			Contracts: make(map[uint64]common.Address, len(t.Contracts)),
		}
		for rawChain, rawAddr := range t.Contracts {
			chainID, err := parseChainKey(rawChain)
			if err != nil {
				return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
			}
			if !common.IsHexAddress(rawAddr) {
				return nil, fmt.Errorf("token %s on chain %d: invalid contract %q", t.Symbol, chainID, rawAddr)
			}
			desc.Contracts[chainID] = common.HexToAddress(rawAddr)
		}
		if len(t.BridgeFees) > 0 {
			desc.BridgeFees = make(map[uint64]*big.Int, len(t.BridgeFees))
			for rawChain, rawFee := range t.BridgeFees {
				chainID, err := parseChainKey(rawChain)
				if err != nil {
					return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
				}
				fee, err := registry.ParseUnits(rawFee, t.Decimals)
				if err != nil {
					return nil, fmt.Errorf("token %s bridge fee on chain %d: %w", t.Symbol, chainID, err)
				}
				desc.BridgeFees[chainID] = fee
			}
		}
		tokens = append(tokens, desc)
	}

	spokePools := make(map[uint64]common.Address, len(c.SpokePools))
	for rawChain, rawAddr := range c.SpokePools {
		chainID, err := parseChainKey(rawChain)
		if err != nil {
			return nil, fmt.Errorf("spoke pool: %w", err)
		}
		if !common.IsHexAddress(rawAddr) {
			return nil, fmt.Errorf("spoke pool on chain %d: invalid address %q", chainID, rawAddr)
		}
		spokePools[chainID] = common.HexToAddress(rawAddr)
	}

	return registry.New(chains, tokens, spokePools)
}

func parseChainKey(raw string) (uint64, error) {
	chainID, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q", raw)
	}
	return chainID, nil
}
