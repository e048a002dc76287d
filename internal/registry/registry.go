// Package registry holds the static chain/token configuration: which chains
// are reachable, where their account-abstraction infrastructure lives, and
// which stablecoin contracts we track per chain. Lookups fail fast so that a
// misconfigured (chain, token) pair is rejected before any network call.
package registry

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnsupportedChain = errors.New("chain not configured")
	ErrUnsupportedToken = errors.New("token not configured")
)

// ChainDescriptor describes one configured chain and its AA infrastructure.
type ChainDescriptor struct {
	ChainID      uint64
	Name         string
	EntryPoint   common.Address
	BundlerURL   string
	PaymasterURL string
}

// TokenDescriptor describes one tracked stablecoin across all chains it is
// deployed on. BridgeFees carries the fixed per-chain bridge fee in raw token
// units; a chain missing from the map cannot be bridged from.
type TokenDescriptor struct {
	Symbol     string
	Decimals   uint8
	Contracts  map[uint64]common.Address
	BridgeFees map[uint64]*big.Int
}

// Registry is immutable after construction.
type Registry struct {
	chains     map[uint64]ChainDescriptor
	tokens     map[string]TokenDescriptor
	spokePools map[uint64]common.Address
	byContract map[uint64]map[common.Address]string
}

// New validates the given descriptors and builds the lookup indexes. Every
// token contract must reference a configured chain.
func New(chains []ChainDescriptor, tokens []TokenDescriptor, spokePools map[uint64]common.Address) (*Registry, error) {
	r := &Registry{
		chains:     make(map[uint64]ChainDescriptor, len(chains)),
		tokens:     make(map[string]TokenDescriptor, len(tokens)),
		spokePools: make(map[uint64]common.Address, len(spokePools)),
		byContract: make(map[uint64]map[common.Address]string),
	}

	for _, c := range chains {
		if c.ChainID == 0 {
			return nil, fmt.Errorf("chain %q: chainId is required", c.Name)
		}
		if _, dup := r.chains[c.ChainID]; dup {
			return nil, fmt.Errorf("duplicate chain %d", c.ChainID)
		}
		r.chains[c.ChainID] = c
	}

	for _, t := range tokens {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" {
			return nil, errors.New("token symbol is required")
		}
		if _, dup := r.tokens[sym]; dup {
			return nil, fmt.Errorf("duplicate token %s", sym)
		}
		if len(t.Contracts) == 0 {
			return nil, fmt.Errorf("token %s: no contracts configured", sym)
		}
		for chainID, addr := range t.Contracts {
			if _, ok := r.chains[chainID]; !ok {
				return nil, fmt.Errorf("token %s references unconfigured chain %d", sym, chainID)
			}
			idx := r.byContract[chainID]
			if idx == nil {
				idx = make(map[common.Address]string)
				r.byContract[chainID] = idx
			}
			idx[addr] = sym
		}
		t.Symbol = sym
		r.tokens[sym] = t
	}

	for chainID, addr := range spokePools {
		if _, ok := r.chains[chainID]; !ok {
			return nil, fmt.Errorf("spoke pool references unconfigured chain %d", chainID)
		}
		r.spokePools[chainID] = addr
	}

	return r, nil
}

// Chain returns the descriptor for chainID.
func (r *Registry) Chain(chainID uint64) (ChainDescriptor, error) {
	c, ok := r.chains[chainID]
	if !ok {
		return ChainDescriptor{}, fmt.Errorf("chain %d: %w", chainID, ErrUnsupportedChain)
	}
	return c, nil
}

// Token returns the descriptor for symbol (case-insensitive).
func (r *Registry) Token(symbol string) (TokenDescriptor, error) {
	t, ok := r.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return TokenDescriptor{}, fmt.Errorf("token %s: %w", symbol, ErrUnsupportedToken)
	}
	return t, nil
}

// TokenOn returns the contract address of symbol on chainID.
func (r *Registry) TokenOn(symbol string, chainID uint64) (common.Address, error) {
	if _, err := r.Chain(chainID); err != nil {
		return common.Address{}, err
	}
	t, err := r.Token(symbol)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := t.Contracts[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("token %s on chain %d: %w", t.Symbol, chainID, ErrUnsupportedToken)
	}
	return addr, nil
}

// BridgeFee returns the fixed bridge fee for symbol leaving chainID, in raw
// token units.
func (r *Registry) BridgeFee(symbol string, chainID uint64) (*big.Int, error) {
	t, err := r.Token(symbol)
	if err != nil {
		return nil, err
	}
	fee, ok := t.BridgeFees[chainID]
	if !ok {
		return nil, fmt.Errorf("token %s has no bridge fee on chain %d: %w", t.Symbol, chainID, ErrUnsupportedChain)
	}
	return new(big.Int).Set(fee), nil
}

// SpokePool returns the bridge deposit contract on chainID.
func (r *Registry) SpokePool(chainID uint64) (common.Address, error) {
	p, ok := r.spokePools[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("no spoke pool on chain %d: %w", chainID, ErrUnsupportedChain)
	}
	return p, nil
}

// TokenByContract resolves a contract address observed on chainID back to a
// tracked token symbol. The compare is case-insensitive: common.Address
// normalizes any hex casing on the way in.
func (r *Registry) TokenByContract(chainID uint64, contract common.Address) (TokenDescriptor, bool) {
	idx, ok := r.byContract[chainID]
	if !ok {
		return TokenDescriptor{}, false
	}
	sym, ok := idx[contract]
	if !ok {
		return TokenDescriptor{}, false
	}
	return r.tokens[sym], true
}

// Chains returns all configured chain IDs.
func (r *Registry) Chains() []uint64 {
	out := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		out = append(out, id)
	}
	return out
}

// Tokens returns all tracked token symbols.
func (r *Registry) Tokens() []string {
	out := make([]string, 0, len(r.tokens))
	for sym := range r.tokens {
		out = append(out, sym)
	}
	return out
}
