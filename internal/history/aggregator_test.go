package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/burnerhq/burnerd/internal/bus"
	"github.com/burnerhq/burnerd/internal/indexer"
	"github.com/burnerhq/burnerd/internal/registry"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	records map[common.Address][]indexer.HistoryRecord
	err     error
}

func (f *fakeSource) History(_ context.Context, addr common.Address) ([]indexer.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[addr], nil
}

func newAggregator(src Source, events *bus.Bus) *Aggregator {
	return New(registry.Default(), src, events, zap.NewNop().Sugar(),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)))
}

func usdcRecord(t *testing.T, timeMs int64, chainID uint64, amount string) indexer.HistoryRecord {
	t.Helper()
	contract, err := registry.Default().TokenOn("USDC", chainID)
	require.NoError(t, err)

	var rec indexer.HistoryRecord
	rec.TimeMs = timeMs
	rec.Details.TxHash = common.BigToHash(common.Big1)
	rec.Details.ChainID = chainID
	rec.Details.Type = "Transfer"
	rec.Details.Status = "completed"
	rec.Details.TokenActions = []indexer.TokenAction{{
		Contract: contract, Standard: "ERC20", Amount: amount, Direction: "Out",
	}}
	return rec
}

func junkRecord(timeMs int64, chainID uint64) indexer.HistoryRecord {
	var rec indexer.HistoryRecord
	rec.TimeMs = timeMs
	rec.Details.ChainID = chainID
	rec.Details.TokenActions = []indexer.TokenAction{{
		Contract: common.HexToAddress("0x0000000000000000000000000000000000001234"),
		Amount:   "1", Direction: "In",
	}}
	return rec
}

func TestRefreshFiltersAndSorts(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000F0")
	src := &fakeSource{records: map[common.Address][]indexer.HistoryRecord{
		addr: {
			usdcRecord(t, 100, registry.ChainBase, "1000000"),
			junkRecord(250, registry.ChainBase),
			usdcRecord(t, 300, registry.ChainOptimism, "2500000"),
			usdcRecord(t, 200, registry.ChainBase, "500000"),
		},
	}}
	events := bus.New()
	sub, cancel := events.Subscribe()
	defer cancel()

	a := newAggregator(src, events)
	a.RefreshSync(context.Background(), []common.Address{addr})

	entries, ok := a.GetLast(addr)
	require.True(t, ok)
	require.Len(t, entries, 3, "records without tracked actions must be dropped")

	times := []int64{entries[0].TimestampMs, entries[1].TimestampMs, entries[2].TimestampMs}
	assert.Equal(t, []int64{300, 200, 100}, times, "newest first")

	assert.Equal(t, "USDC", entries[0].Actions[0].Symbol)
	assert.Equal(t, "2.5", entries[0].Actions[0].Amount)

	select {
	case ev := <-sub:
		assert.Equal(t, bus.TopicHistory, ev.Topic)
		assert.Zero(t, ev.Failed)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestRefreshFailureCountsAndKeepsCache(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000F0")
	src := &fakeSource{records: map[common.Address][]indexer.HistoryRecord{
		addr: {usdcRecord(t, 100, registry.ChainBase, "1000000")},
	}}
	events := bus.New()
	a := newAggregator(src, events)

	a.RefreshSync(context.Background(), []common.Address{addr})
	_, ok := a.GetLast(addr)
	require.True(t, ok)

	src.err = errors.New("rate limited")
	sub, cancel := events.Subscribe()
	defer cancel()
	a.RefreshSync(context.Background(), []common.Address{addr})

	entries, ok := a.GetLast(addr)
	require.True(t, ok, "failed fetch must not evict the cache")
	assert.Len(t, entries, 1)

	ev := <-sub
	assert.Equal(t, 1, ev.Failed)
}

func TestRefreshWhileRunStarts(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000F0")
	src := &fakeSource{records: map[common.Address][]indexer.HistoryRecord{
		addr: {usdcRecord(t, 100, registry.ChainBase, "1000000")},
	}}
	a := newAggregator(src, bus.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, func() []common.Address { return nil })
		close(done)
	}()

	// A handler-triggered refresh while the safety loop is starting up must
	// be safe; the race detector covers the shared state here.
	a.Refresh([]common.Address{addr})

	require.Eventually(t, func() bool {
		_, ok := a.GetLast(addr)
		return ok
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestRefreshSequentialPerAddress(t *testing.T) {
	src := &fakeSource{records: map[common.Address][]indexer.HistoryRecord{}}
	a := newAggregator(src, bus.New())

	addrs := make([]common.Address, 3)
	for i := range addrs {
		addrs[i] = common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
	}
	a.RefreshSync(context.Background(), addrs)

	assert.Equal(t, 3, src.calls, "one index call per address")
}
