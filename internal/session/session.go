// Package session binds a validator to one chain's account-abstraction
// infrastructure and drives user operations through it: encode, sponsor,
// submit, await receipt.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/burnerhq/burnerd/internal/constants"
	"github.com/burnerhq/burnerd/internal/registry"
	"github.com/burnerhq/burnerd/internal/validator"
)

var (
	ErrSponsorshipDenied  = errors.New("sponsorship denied")
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrConfirmationTimeout means the receipt wait expired. The operation
	// may still land on-chain; a later balance refresh is the source of
	// truth, not this error.
	ErrConfirmationTimeout = errors.New("confirmation timed out")
)

// Default operation gas limits; the paymaster response may override any of
// these during sponsorship.
const (
	defaultCallGasLimit         = 500_000
	defaultVerificationGasLimit = 750_000
	defaultPreVerificationGas   = 100_000
)

var (
	defaultMaxFeePerGas         = big.NewInt(1_500_000_000) // 1.5 gwei
	defaultMaxPriorityFeePerGas = big.NewInt(100_000_000)   // 0.1 gwei
)

// Call is one target invocation inside a user operation.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// RPC is the JSON-RPC seam; *rpc.Client satisfies it, tests inject fakes.
type RPC interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Dialer opens an RPC connection to url.
type Dialer func(ctx context.Context, url string) (RPC, error)

func defaultDial(ctx context.Context, url string) (RPC, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Builder constructs sessions from the registry's chain descriptors.
type Builder struct {
	reg            *registry.Registry
	log            *zap.SugaredLogger
	dial           Dialer
	receiptTimeout time.Duration
	pollInterval   time.Duration
}

type Option func(*Builder)

func WithDialer(d Dialer) Option {
	return func(b *Builder) { b.dial = d }
}

func WithReceiptTimeout(d time.Duration) Option {
	return func(b *Builder) { b.receiptTimeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(b *Builder) { b.pollInterval = d }
}

func NewBuilder(reg *registry.Registry, log *zap.SugaredLogger, opts ...Option) *Builder {
	b := &Builder{
		reg:            reg,
		log:            log,
		dial:           defaultDial,
		receiptTimeout: constants.DefaultReceiptTimeout,
		pollInterval:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build binds handle as the sole authority over its deterministic smart
// account on chainID. Same handle + same chain always yields the same
// account address.
func (b *Builder) Build(ctx context.Context, handle validator.Handle, vendor validator.Vendor, chainID uint64) (*Session, error) {
	chain, err := b.reg.Chain(chainID)
	if err != nil {
		return nil, err
	}
	profile, err := profileFor(vendor)
	if err != nil {
		return nil, err
	}

	account := accountAddress(profile, handle.Identifier())

	bundler, err := b.dial(ctx, chain.BundlerURL)
	if err != nil {
		return nil, fmt.Errorf("dial bundler for chain %d: %w", chainID, err)
	}
	paymaster, err := b.dial(ctx, chain.PaymasterURL)
	if err != nil {
		bundler.Close()
		return nil, fmt.Errorf("dial paymaster for chain %d: %w", chainID, err)
	}

	return &Session{
		chain:          chain,
		handle:         handle,
		account:        account,
		bundler:        bundler,
		paymaster:      paymaster,
		receiptTimeout: b.receiptTimeout,
		pollInterval:   b.pollInterval,
		log:            b.log,
	}, nil
}

// DeriveAccount computes the deterministic account address without dialing
// anything. The wallet store uses this at creation time.
func (b *Builder) DeriveAccount(handle validator.Handle, vendor validator.Vendor) (common.Address, error) {
	profile, err := profileFor(vendor)
	if err != nil {
		return common.Address{}, err
	}
	return accountAddress(profile, handle.Identifier()), nil
}

// Session is a smart-account handle bound to one chain.
type Session struct {
	chain          registry.ChainDescriptor
	handle         validator.Handle
	account        common.Address
	bundler        RPC
	paymaster      RPC
	receiptTimeout time.Duration
	pollInterval   time.Duration
	log            *zap.SugaredLogger
}

func (s *Session) Account() common.Address { return s.account }

func (s *Session) ChainID() uint64 { return s.chain.ChainID }

func (s *Session) Close() {
	s.bundler.Close()
	s.paymaster.Close()
}

// EncodeCall shapes one target invocation for Submit.
func (s *Session) EncodeCall(to common.Address, data []byte, value *big.Int) Call {
	return Call{To: to, Data: data, Value: value}
}

// Submit wraps calls into a single sponsored user operation, has the
// validator prove ownership over it, and hands it to the bundler. Once the
// bundler accepts, the operation is not cancellable.
func (s *Session) Submit(ctx context.Context, calls []Call) (*OpHandle, error) {
	if len(calls) == 0 {
		return nil, errors.New("no calls to submit")
	}

	callData, err := encodeExecute(calls)
	if err != nil {
		return nil, fmt.Errorf("encode call data: %w", err)
	}

	op := &UserOperation{
		Sender:               s.account,
		Nonce:                newBig(s.nonce(ctx)),
		CallData:             callData,
		CallGasLimit:         newBigUint(defaultCallGasLimit),
		VerificationGasLimit: newBigUint(defaultVerificationGasLimit),
		PreVerificationGas:   newBigUint(defaultPreVerificationGas),
		MaxFeePerGas:         newBig(defaultMaxFeePerGas),
		MaxPriorityFeePerGas: newBig(defaultMaxPriorityFeePerGas),
	}

	if err := s.Sponsor(ctx, op); err != nil {
		return nil, err
	}

	digest := op.Hash(s.chain.EntryPoint, s.chain.ChainID)
	sig, err := s.handle.ProveOwnership(ctx, digest)
	if err != nil {
		return nil, err
	}
	op.Signature = sig

	var opHash common.Hash
	if err := s.bundler.CallContext(ctx, &opHash, "eth_sendUserOperation", op, s.chain.EntryPoint); err != nil {
		return nil, fmt.Errorf("bundler rejected operation: %v: %w", err, ErrSubmissionRejected)
	}

	s.log.Infow("user operation submitted",
		"chain", s.chain.ChainID,
		"account", s.account.Hex(),
		"userOpHash", opHash.Hex(),
		"calls", len(calls),
	)
	return &OpHandle{UserOpHash: opHash, Operation: op}, nil
}

type sponsorResult struct {
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
}

// Sponsor asks the chain's paymaster to stamp op with gas sponsorship.
func (s *Session) Sponsor(ctx context.Context, op *UserOperation) error {
	var res sponsorResult
	if err := s.paymaster.CallContext(ctx, &res, "pm_sponsorUserOperation", op, s.chain.EntryPoint); err != nil {
		return fmt.Errorf("paymaster for chain %d: %v: %w", s.chain.ChainID, err, ErrSponsorshipDenied)
	}
	if res.Paymaster == nil {
		return fmt.Errorf("paymaster for chain %d returned no stamp: %w", s.chain.ChainID, ErrSponsorshipDenied)
	}

	op.Paymaster = res.Paymaster
	op.PaymasterData = res.PaymasterData
	op.PaymasterVerificationGasLimit = res.PaymasterVerificationGasLimit
	op.PaymasterPostOpGasLimit = res.PaymasterPostOpGasLimit
	if res.PreVerificationGas != nil {
		op.PreVerificationGas = res.PreVerificationGas
	}
	if res.VerificationGasLimit != nil {
		op.VerificationGasLimit = res.VerificationGasLimit
	}
	if res.CallGasLimit != nil {
		op.CallGasLimit = res.CallGasLimit
	}
	return nil
}

type receiptResult struct {
	UserOpHash common.Hash `json:"userOpHash"`
	Success    bool        `json:"success"`
	Reason     string      `json:"reason"`
	Receipt    struct {
		TransactionHash common.Hash `json:"transactionHash"`
	} `json:"receipt"`
}

// AwaitReceipt polls the bundler until the operation is included or the
// configured bound expires. Abandoning the wait does not stop the operation.
func (s *Session) AwaitReceipt(ctx context.Context, h *OpHandle) (*Receipt, error) {
	deadline := time.NewTimer(s.receiptTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(s.pollInterval)
	defer tick.Stop()

	for {
		var res *receiptResult
		err := s.bundler.CallContext(ctx, &res, "eth_getUserOperationReceipt", h.UserOpHash)
		if err == nil && res != nil {
			return &Receipt{
				UserOpHash: res.UserOpHash,
				TxHash:     res.Receipt.TransactionHash,
				Success:    res.Success,
				Reason:     res.Reason,
			}, nil
		}
		if err != nil {
			s.log.Debugw("receipt poll failed", "userOpHash", h.UserOpHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("operation %s: %w", h.UserOpHash.Hex(), ErrConfirmationTimeout)
		case <-tick.C:
		}
	}
}

// nonce queries the bundler for the account's operation count. Bundlers that
// do not expose the method fall back to zero, which is correct for
// yet-undeployed burner accounts.
func (s *Session) nonce(ctx context.Context) *big.Int {
	var n hexutil.Big
	if err := s.bundler.CallContext(ctx, &n, "eth_getUserOperationCount", s.account, s.chain.EntryPoint); err != nil {
		return new(big.Int)
	}
	return n.ToInt()
}
