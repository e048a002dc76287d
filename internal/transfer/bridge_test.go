package transfer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burnerhq/burnerd/internal/registry"
)

func TestComputeOutput(t *testing.T) {
	cases := []struct {
		name  string
		input int64
		fee   int64
		want  int64
		err   error
	}{
		{name: "fee taken from input", input: 1_000_000, fee: 100_000, want: 900_000},
		{name: "input below fee", input: 50_000, fee: 70_000, err: ErrAmountTooSmallForBridge},
		{name: "input equal to fee leaves nothing", input: 100_000, fee: 100_000, err: ErrAmountTooSmallForBridge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := ComputeOutput(big.NewInt(tc.input), big.NewInt(tc.fee))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Int64())
		})
	}
}

func TestBridgeHappyPath(t *testing.T) {
	fx := newEngineFixture(t)

	var steps []Step
	res, err := fx.engine.Bridge(context.Background(), BridgeRequest{
		Wallet:             fx.wallet,
		Token:              "USDC",
		Amount:             "25",
		SourceChainID:      registry.ChainBase,
		DestinationChainID: registry.ChainOptimism,
	}, func(s Step) { steps = append(steps, s) })
	require.NoError(t, err)

	assert.Equal(t, []Step{StepPreparing, StepConfirming}, steps)
	assert.NotEqual(t, common.Hash{}, res.TxHash)

	// Approve and deposit travel as one sponsored operation.
	assert.Equal(t, 1, fx.rpc.seen("pm_sponsorUserOperation"))
	assert.Equal(t, 1, fx.rpc.seen("eth_sendUserOperation"))

	// Only the source account refreshes; the destination settles when a
	// relayer fills.
	require.Len(t, fx.refresher.calls, 1)
	assert.Equal(t, []common.Address{fx.wallet.Address}, fx.refresher.calls[0])
}

func TestBridgeRejectsBeforeDialing(t *testing.T) {
	fx := newEngineFixture(t)

	cases := []struct {
		name    string
		req     BridgeRequest
		wantErr error
	}{
		{
			name: "amount below the fixed fee",
			req: BridgeRequest{
				Wallet: fx.wallet, Token: "USDC", Amount: "0.05",
				SourceChainID: registry.ChainBase, DestinationChainID: registry.ChainOptimism,
			},
			wantErr: ErrAmountTooSmallForBridge,
		},
		{
			name: "amount exactly the fee",
			req: BridgeRequest{
				Wallet: fx.wallet, Token: "USDC", Amount: "0.1",
				SourceChainID: registry.ChainBase, DestinationChainID: registry.ChainOptimism,
			},
			wantErr: ErrAmountTooSmallForBridge,
		},
		{
			name: "same chain both sides",
			req: BridgeRequest{
				Wallet: fx.wallet, Token: "USDC", Amount: "25",
				SourceChainID: registry.ChainBase, DestinationChainID: registry.ChainBase,
			},
			wantErr: ErrSameChain,
		},
		{
			name: "token absent on destination",
			req: BridgeRequest{
				Wallet: fx.wallet, Token: "DAI", Amount: "25",
				SourceChainID: registry.ChainMainnet, DestinationChainID: registry.ChainBase,
			},
			wantErr: registry.ErrUnsupportedToken,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var steps []Step
			_, err := fx.engine.Bridge(context.Background(), tc.req, func(s Step) { steps = append(steps, s) })
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, steps, "rejected requests must not report progress")
		})
	}

	assert.Zero(t, *fx.dials, "rejected requests must not open connections")
	assert.Empty(t, fx.refresher.calls)
}
