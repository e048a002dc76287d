package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EntryPoint v0.7, same address on every configured chain.
var entryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

const (
	ChainMainnet  uint64 = 1
	ChainOptimism uint64 = 10
	ChainBase     uint64 = 8453
	ChainArbitrum uint64 = 42161
)

// Default builds the registry shipped with the app: four chains and the
// tracked stablecoins. Bundler/paymaster URLs come from config at runtime;
// tests use this set as-is.
func Default() *Registry {
	// Fixed 0.1-token bridge fee on every bridgeable chain (6-decimal tokens).
	fee := big.NewInt(100_000)

	chains := []ChainDescriptor{
		{ChainID: ChainMainnet, Name: "mainnet", EntryPoint: entryPointV07},
		{ChainID: ChainOptimism, Name: "optimism", EntryPoint: entryPointV07},
		{ChainID: ChainBase, Name: "base", EntryPoint: entryPointV07},
		{ChainID: ChainArbitrum, Name: "arbitrum", EntryPoint: entryPointV07},
	}

	tokens := []TokenDescriptor{
		{
			Symbol:   "USDC",
			Decimals: 6,
			Contracts: map[uint64]common.Address{
				ChainMainnet:  common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
				ChainBase:     common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
				ChainOptimism: common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
				ChainArbitrum: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
			},
			BridgeFees: map[uint64]*big.Int{
				ChainBase:     fee,
				ChainOptimism: fee,
				ChainArbitrum: fee,
			},
		},
		{
			Symbol:   "USDT",
			Decimals: 6,
			Contracts: map[uint64]common.Address{
				ChainMainnet: common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7"),
			},
		},
		{
			Symbol:   "DAI",
			Decimals: 18,
			Contracts: map[uint64]common.Address{
				ChainMainnet: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			},
		},
		{
			Symbol:   "USDE",
			Decimals: 18,
			Contracts: map[uint64]common.Address{
				ChainMainnet: common.HexToAddress("0x4c9EDD5852cd905f086C759E8383e09bff1E68B3"),
			},
		},
	}

	spokePools := map[uint64]common.Address{
		ChainBase:     common.HexToAddress("0x09aea4b2242abc8bb4bb78d537a67a245a7bec64"),
		ChainOptimism: common.HexToAddress("0x6f26Bf09B1C792e3228e5467807a900A503c0281"),
		ChainArbitrum: common.HexToAddress("0xe35e9842fceaca96570b734083f4a58e8f7c5f2a"),
	}

	r, err := New(chains, tokens, spokePools)
	if err != nil {
		// Static data; a failure here is a programming error.
		panic(err)
	}
	return r
}
