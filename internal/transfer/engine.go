// Package transfer moves tracked tokens out of a burner account: plain
// same-chain transfers and cross-chain bridge deposits. All configuration
// lookups and amount arithmetic run before the first network call, so a bad
// request never dials anything.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/burnerhq/burnerd/internal/registry"
	"github.com/burnerhq/burnerd/internal/session"
	"github.com/burnerhq/burnerd/internal/validator"
)

var (
	ErrZeroAmount       = errors.New("amount must be positive")
	ErrMissingRecipient = errors.New("recipient address is required")
	ErrReverted         = errors.New("operation reverted on-chain")
)

// Step is a coarse progress marker surfaced to callers while an operation is
// in flight.
type Step string

const (
	// StepPreparing covers signer resolution and session setup.
	StepPreparing Step = "preparing"
	// StepConfirming covers sponsorship, signing and bundler submission.
	StepConfirming Step = "confirming"
)

// StepFunc receives progress markers. A nil StepFunc is valid.
type StepFunc func(Step)

func (f StepFunc) fire(s Step) {
	if f != nil {
		f(s)
	}
}

// Refresher re-reads balances for the given accounts after an operation
// settles.
type Refresher interface {
	Refresh(addrs []common.Address)
}

// Engine drives transfer and bridge operations end to end.
type Engine struct {
	reg      *registry.Registry
	resolver *validator.Resolver
	sessions *session.Builder
	balances Refresher
	log      *zap.SugaredLogger
}

func NewEngine(reg *registry.Registry, resolver *validator.Resolver, sessions *session.Builder, balances Refresher, log *zap.SugaredLogger) *Engine {
	return &Engine{
		reg:      reg,
		resolver: resolver,
		sessions: sessions,
		balances: balances,
		log:      log,
	}
}

// TransferRequest asks for a same-chain token transfer out of Wallet's
// account. Amount is a decimal string in token display units.
type TransferRequest struct {
	Wallet  validator.Wallet
	To      common.Address
	Token   string
	Amount  string
	ChainID uint64
}

// Result identifies the settled operation.
type Result struct {
	UserOpHash common.Hash
	TxHash     common.Hash
}

// Transfer sends req.Amount of req.Token to req.To on req.ChainID and blocks
// until the operation is included or the receipt wait expires. On success the
// balances of both sides are refreshed; the recipient is often another burner
// of the same user.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest, onStep StepFunc) (*Result, error) {
	tokenContract, err := e.reg.TokenOn(req.Token, req.ChainID)
	if err != nil {
		return nil, err
	}
	token, err := e.reg.Token(req.Token)
	if err != nil {
		return nil, err
	}
	amount, err := parsePositive(req.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}
	if req.To == (common.Address{}) {
		return nil, ErrMissingRecipient
	}

	onStep.fire(StepPreparing)

	handle, err := e.resolver.Resolve(ctx, req.Wallet)
	if err != nil {
		return nil, err
	}
	sess, err := e.sessions.Build(ctx, handle, req.Wallet.Vendor, req.ChainID)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	data, err := encodeTransfer(req.To, amount)
	if err != nil {
		return nil, err
	}

	onStep.fire(StepConfirming)

	h, err := sess.Submit(ctx, []session.Call{sess.EncodeCall(tokenContract, data, nil)})
	if err != nil {
		return nil, err
	}
	rec, err := sess.AwaitReceipt(ctx, h)
	if err != nil {
		return nil, err
	}
	if !rec.Success {
		return nil, fmt.Errorf("transfer %s: %s: %w", rec.UserOpHash.Hex(), rec.Reason, ErrReverted)
	}

	e.log.Infow("transfer settled",
		"chain", req.ChainID,
		"token", token.Symbol,
		"from", req.Wallet.Address.Hex(),
		"to", req.To.Hex(),
		"txHash", rec.TxHash.Hex(),
	)
	e.balances.Refresh([]common.Address{req.Wallet.Address, req.To})

	return &Result{UserOpHash: rec.UserOpHash, TxHash: rec.TxHash}, nil
}

func parsePositive(amount string, decimals uint8) (*big.Int, error) {
	v, err := registry.ParseUnits(amount, decimals)
	if err != nil {
		return nil, err
	}
	if v.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	return v, nil
}
