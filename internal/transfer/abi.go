package transfer

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"type":"function","name":"transfer","inputs":[
    {"name":"to","type":"address"},
    {"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"approve","inputs":[
    {"name":"spender","type":"address"},
    {"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

// Across spoke pool deposit entry point.
const spokePoolABIJSON = `[
  {"type":"function","name":"depositV3","inputs":[
    {"name":"depositor","type":"address"},
    {"name":"recipient","type":"address"},
    {"name":"inputToken","type":"address"},
    {"name":"outputToken","type":"address"},
    {"name":"inputAmount","type":"uint256"},
    {"name":"outputAmount","type":"uint256"},
    {"name":"destinationChainId","type":"uint256"},
    {"name":"exclusiveRelayer","type":"address"},
    {"name":"quoteTimestamp","type":"uint32"},
    {"name":"fillDeadline","type":"uint32"},
    {"name":"exclusivityDeadline","type":"uint32"},
    {"name":"message","type":"bytes"}],
   "outputs":[]}
]`

var (
	erc20ABI     = mustParseABI(erc20ABIJSON)
	spokePoolABI = mustParseABI(spokePoolABIJSON)
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

func encodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	return data, nil
}

func encodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("encode approve: %w", err)
	}
	return data, nil
}

type depositArgs struct {
	Depositor          common.Address
	Recipient          common.Address
	InputToken         common.Address
	InputAmount        *big.Int
	OutputAmount       *big.Int
	DestinationChainID uint64
	FillDeadline       time.Duration
	Now                time.Time
}

func encodeDeposit(a depositArgs) ([]byte, error) {
	quoteTimestamp := uint32(a.Now.Unix())
	fillDeadline := uint32(a.Now.Add(a.FillDeadline).Unix())

	data, err := spokePoolABI.Pack("depositV3",
		a.Depositor,
		a.Recipient,
		a.InputToken,
		common.Address{}, // outputToken: zero address lets the bridge auto-resolve
		a.InputAmount,
		a.OutputAmount,
		new(big.Int).SetUint64(a.DestinationChainID),
		common.Address{}, // exclusiveRelayer: none
		quoteTimestamp,
		fillDeadline,
		uint32(0), // exclusivityDeadline
		[]byte{},  // message
	)
	if err != nil {
		return nil, fmt.Errorf("encode depositV3: %w", err)
	}
	return data, nil
}
