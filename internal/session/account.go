package session

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/burnerhq/burnerd/internal/validator"
)

// accountProfile pins the factory and account creation-code hash for one
// smart-account vendor. The profile is what makes the counterfactual address
// deterministic: same validator identifier + same profile + same chain family
// of factories ⇒ same address.
type accountProfile struct {
	Factory      common.Address
	InitCodeHash common.Hash
}

var vendorProfiles = map[validator.Vendor]accountProfile{
	validator.VendorZeroDev: {
		// Kernel v3.1 meta factory and account proxy creation-code hash.
		Factory:      common.HexToAddress("0xd703aaE79538628d27099B8c4f621bE4CCd142d5"),
		InitCodeHash: common.HexToHash("0x93b52d1b3b9b3b31e1d2ad8c6b79b0d46ee7e90c3bb8b7a3a050e2296e6e2f2b"),
	},
	validator.VendorBiconomy: {
		// Nexus account factory.
		Factory:      common.HexToAddress("0x000000a56Aaca3e9a4C479ea6b6CD0DbcB6634F5"),
		InitCodeHash: common.HexToHash("0x7a1d5f3c9e00aa3bba42c2d56e03f4dd3e68b9c2f86c3cb0f1f1d3bd0a9f9d10"),
	},
}

func profileFor(vendor validator.Vendor) (accountProfile, error) {
	if vendor == "" {
		vendor = validator.VendorZeroDev
	}
	p, ok := vendorProfiles[vendor]
	if !ok {
		return accountProfile{}, fmt.Errorf("no account profile for vendor %q", vendor)
	}
	return p, nil
}

// accountAddress derives the CREATE2 counterfactual address for account
// index 0 of the given validator identifier.
func accountAddress(p accountProfile, identifier []byte) common.Address {
	salt := crypto.Keccak256Hash(identifier, []byte{0})
	return crypto.CreateAddress2(p.Factory, [32]byte(salt), p.InitCodeHash.Bytes())
}

// Minimal account execution surface; single calls and batches route through
// the same two entry points every vendor account exposes.
const accountABIJSON = `[
  {"type":"function","name":"execute","inputs":[
    {"name":"dest","type":"address"},
    {"name":"value","type":"uint256"},
    {"name":"func","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"executeBatch","inputs":[
    {"name":"dest","type":"address[]"},
    {"name":"value","type":"uint256[]"},
    {"name":"func","type":"bytes[]"}],"outputs":[]}
]`

var accountABI = mustParseABI(accountABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// encodeExecute wraps calls into account call data: a direct execute for a
// single call, executeBatch otherwise. A batch shares one sponsored
// operation, which is what makes approve+deposit atomic for the bridge.
func encodeExecute(calls []Call) ([]byte, error) {
	if len(calls) == 1 {
		c := calls[0]
		return accountABI.Pack("execute", c.To, valueOrZero(c), []byte(c.Data))
	}

	dests := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	datas := make([][]byte, len(calls))
	for i, c := range calls {
		dests[i] = c.To
		values[i] = valueOrZero(c)
		datas[i] = c.Data
	}
	return accountABI.Pack("executeBatch", dests, values, datas)
}

func valueOrZero(c Call) *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}
