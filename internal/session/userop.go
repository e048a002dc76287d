package session

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is the EntryPoint v0.7 wire shape sent to bundlers and
// paymasters. Unset optional fields are omitted from the JSON payload.
type UserOperation struct {
	Sender               common.Address  `json:"sender"`
	Nonce                *hexutil.Big    `json:"nonce"`
	Factory              *common.Address `json:"factory,omitempty"`
	FactoryData          hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData             hexutil.Bytes   `json:"callData"`
	CallGasLimit         *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`

	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`

	Signature hexutil.Bytes `json:"signature"`
}

// Hash computes the digest the validator signs: the packed operation bound to
// the entrypoint and chain. Gas limits and fees are packed pairwise into
// single words (accountGasLimits, gasFees) the way EntryPoint v0.7 hashes the
// PackedUserOperation it receives on-chain.
func (op *UserOperation) Hash(entryPoint common.Address, chainID uint64) [32]byte {
	packed := crypto.Keccak256(
		common.LeftPadBytes(op.Sender.Bytes(), 32),
		common.LeftPadBytes(bigOrZero(op.Nonce).Bytes(), 32),
		crypto.Keccak256(op.initCode()),
		crypto.Keccak256(op.CallData),
		packPair(op.VerificationGasLimit, op.CallGasLimit),
		common.LeftPadBytes(bigOrZero(op.PreVerificationGas).Bytes(), 32),
		packPair(op.MaxPriorityFeePerGas, op.MaxFeePerGas),
		crypto.Keccak256(op.paymasterAndData()),
	)

	out := crypto.Keccak256(
		packed,
		common.LeftPadBytes(entryPoint.Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(chainID).Bytes(), 32),
	)

	var digest [32]byte
	copy(digest[:], out)
	return digest
}

func (op *UserOperation) initCode() []byte {
	if op.Factory == nil {
		return nil
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// paymasterAndData rebuilds the packed field: paymaster address, its two
// 16-byte gas limits, then the paymaster-specific data.
func (op *UserOperation) paymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	out := op.Paymaster.Bytes()
	out = append(out, common.LeftPadBytes(bigOrZero(op.PaymasterVerificationGasLimit).Bytes(), 16)...)
	out = append(out, common.LeftPadBytes(bigOrZero(op.PaymasterPostOpGasLimit).Bytes(), 16)...)
	return append(out, op.PaymasterData...)
}

// packPair joins two values into one 32-byte word, hi in the upper 16 bytes
// and lo in the lower 16.
func packPair(hi, lo *hexutil.Big) []byte {
	out := make([]byte, 32)
	copy(out[:16], common.LeftPadBytes(bigOrZero(hi).Bytes(), 16))
	copy(out[16:], common.LeftPadBytes(bigOrZero(lo).Bytes(), 16))
	return out
}

func bigOrZero(b *hexutil.Big) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b.ToInt()
}

func newBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(v)
}

func newBigUint(v uint64) *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(v))
}

// Receipt is the outcome of a submitted operation as reported by the bundler.
type Receipt struct {
	UserOpHash common.Hash
	TxHash     common.Hash
	Success    bool
	Reason     string
}

// OpHandle identifies a submitted operation while its receipt is pending.
// Once the bundler accepted it, the operation is irrevocable: abandoning the
// receipt wait does not stop it from landing on-chain.
type OpHandle struct {
	UserOpHash common.Hash
	Operation  *UserOperation
}
