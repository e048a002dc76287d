package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/burnerhq/burnerd/internal/constants"
	"github.com/burnerhq/burnerd/internal/session"
	"github.com/burnerhq/burnerd/internal/validator"
)

var (
	ErrAmountTooSmallForBridge = errors.New("amount does not cover the bridge fee")
	ErrSameChain               = errors.New("source and destination chain are the same")
)

// BridgeRequest asks for a cross-chain move of req.Token from Wallet's
// account on SourceChainID to To on DestinationChainID. The fixed bridge fee
// is taken out of the input amount; the recipient receives input minus fee.
type BridgeRequest struct {
	Wallet             validator.Wallet
	To                 common.Address
	Token              string
	Amount             string
	SourceChainID      uint64
	DestinationChainID uint64
}

// ComputeOutput returns the amount the recipient receives on the destination
// chain: input minus the fixed fee. Anything that would leave zero or less is
// rejected outright rather than deposited at a loss.
func ComputeOutput(input, fee *big.Int) (*big.Int, error) {
	out := new(big.Int).Sub(input, fee)
	if out.Sign() <= 0 {
		return nil, fmt.Errorf("input %s, fee %s: %w", input, fee, ErrAmountTooSmallForBridge)
	}
	return out, nil
}

// Bridge deposits into the source chain's spoke pool and blocks until the
// deposit operation is included. The approve and the deposit share one
// sponsored operation, so a failed deposit never strands an allowance. Only
// the source account is refreshed afterwards; the destination side settles
// when a relayer fills, outside our view.
func (e *Engine) Bridge(ctx context.Context, req BridgeRequest, onStep StepFunc) (*Result, error) {
	if req.SourceChainID == req.DestinationChainID {
		return nil, ErrSameChain
	}
	inputToken, err := e.reg.TokenOn(req.Token, req.SourceChainID)
	if err != nil {
		return nil, err
	}
	// The token must exist on the destination too, or the fill can never
	// happen.
	if _, err := e.reg.TokenOn(req.Token, req.DestinationChainID); err != nil {
		return nil, err
	}
	spoke, err := e.reg.SpokePool(req.SourceChainID)
	if err != nil {
		return nil, err
	}
	token, err := e.reg.Token(req.Token)
	if err != nil {
		return nil, err
	}
	fee, err := e.reg.BridgeFee(req.Token, req.SourceChainID)
	if err != nil {
		return nil, err
	}
	input, err := parsePositive(req.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}
	output, err := ComputeOutput(input, fee)
	if err != nil {
		return nil, err
	}

	recipient := req.To
	if recipient == (common.Address{}) {
		recipient = req.Wallet.Address
	}

	onStep.fire(StepPreparing)

	handle, err := e.resolver.Resolve(ctx, req.Wallet)
	if err != nil {
		return nil, err
	}
	sess, err := e.sessions.Build(ctx, handle, req.Wallet.Vendor, req.SourceChainID)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	approve, err := encodeApprove(spoke, input)
	if err != nil {
		return nil, err
	}
	deposit, err := encodeDeposit(depositArgs{
		Depositor:          req.Wallet.Address,
		Recipient:          recipient,
		InputToken:         inputToken,
		InputAmount:        input,
		OutputAmount:       output,
		DestinationChainID: req.DestinationChainID,
		FillDeadline:       constants.BridgeFillDeadline,
		Now:                time.Now(),
	})
	if err != nil {
		return nil, err
	}

	onStep.fire(StepConfirming)

	h, err := sess.Submit(ctx, []session.Call{
		sess.EncodeCall(inputToken, approve, nil),
		sess.EncodeCall(spoke, deposit, nil),
	})
	if err != nil {
		return nil, err
	}
	rec, err := sess.AwaitReceipt(ctx, h)
	if err != nil {
		return nil, err
	}
	if !rec.Success {
		return nil, fmt.Errorf("bridge deposit %s: %s: %w", rec.UserOpHash.Hex(), rec.Reason, ErrReverted)
	}

	e.log.Infow("bridge deposit settled",
		"token", token.Symbol,
		"sourceChain", req.SourceChainID,
		"destinationChain", req.DestinationChainID,
		"input", input.String(),
		"output", output.String(),
		"txHash", rec.TxHash.Hex(),
	)
	e.balances.Refresh([]common.Address{req.Wallet.Address})

	return &Result{UserOpHash: rec.UserOpHash, TxHash: rec.TxHash}, nil
}
