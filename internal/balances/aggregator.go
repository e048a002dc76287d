// Package balances maintains the per-wallet balance cache. Fetches go through
// the hosted index service one (address, chain) pair at a time behind a rate
// limiter, because the upstream provider throttles hard. At most one refresh
// runs at any moment; requests arriving while one is in flight are dropped,
// not queued — the running pass already reads fresher data than the caller
// has.
package balances

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/burnerhq/burnerd/internal/bus"
	"github.com/burnerhq/burnerd/internal/constants"
	"github.com/burnerhq/burnerd/internal/indexer"
	"github.com/burnerhq/burnerd/internal/registry"
)

// Balance is one tracked-token position on one chain. Raw is in token units,
// Display is the human-readable decimal string.
type Balance struct {
	Symbol   string         `json:"symbol"`
	Contract common.Address `json:"contract"`
	ChainID  uint64         `json:"chainId"`
	Raw      *big.Int       `json:"raw"`
	Display  string         `json:"display"`
}

// Source reads balances from the index service; *indexer.Client satisfies it.
type Source interface {
	Balances(ctx context.Context, addr common.Address, chainID uint64) ([]indexer.TokenBalance, error)
}

type Aggregator struct {
	reg     *registry.Registry
	src     Source
	events  *bus.Bus
	log     *zap.SugaredLogger
	limiter *rate.Limiter

	inFlight atomic.Bool
	baseCtx  context.Context

	mu   sync.RWMutex
	last map[common.Address][]Balance
}

type Option func(*Aggregator)

// WithLimiter replaces the indexer pacing; tests use an unthrottled one.
func WithLimiter(l *rate.Limiter) Option {
	return func(a *Aggregator) { a.limiter = l }
}

func New(reg *registry.Registry, src Source, events *bus.Bus, log *zap.SugaredLogger, opts ...Option) *Aggregator {
	a := &Aggregator{
		reg:     reg,
		src:     src,
		events:  events,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(constants.IndexerCallInterval), 1),
		baseCtx: context.Background(),
		last:    make(map[common.Address][]Balance),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Refresh schedules a balance fetch for addrs and returns immediately. If a
// fetch is already in flight the request is dropped.
func (a *Aggregator) Refresh(addrs []common.Address) {
	if len(addrs) == 0 {
		return
	}
	if !a.inFlight.CompareAndSwap(false, true) {
		a.log.Debugw("balance refresh already in flight, dropping", "addresses", len(addrs))
		return
	}
	ctx := a.rootCtx()
	go func() {
		defer a.inFlight.Store(false)
		a.fetch(ctx, addrs)
	}()
}

// RefreshSync runs a fetch on the caller's goroutine, still under the
// in-flight guard. Used by the safety loop and by tests.
func (a *Aggregator) RefreshSync(ctx context.Context, addrs []common.Address) {
	if len(addrs) == 0 {
		return
	}
	if !a.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer a.inFlight.Store(false)
	a.fetch(ctx, addrs)
}

func (a *Aggregator) fetch(ctx context.Context, addrs []common.Address) {
	chains := a.reg.Chains()
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	failed := 0
	for _, addr := range addrs {
		rows := make([]Balance, 0, 4)
		complete := true

		for _, chainID := range chains {
			if err := a.limiter.Wait(ctx); err != nil {
				return
			}
			list, err := a.src.Balances(ctx, addr, chainID)
			if err != nil {
				a.log.Warnw("balance fetch failed",
					"address", addr.Hex(), "chain", chainID, "error", err)
				failed++
				complete = false
				continue
			}
			for _, tb := range list {
				token, tracked := a.reg.TokenByContract(chainID, tb.Contract)
				if !tracked {
					continue
				}
				rows = append(rows, Balance{
					Symbol:   token.Symbol,
					Contract: tb.Contract,
					ChainID:  chainID,
					Raw:      tb.Balance,
					Display:  registry.FormatUnits(tb.Balance, token.Decimals),
				})
			}
		}

		// A partial read never supersedes a complete snapshot: a missing
		// chain would otherwise look like a drained balance.
		if complete {
			a.mu.Lock()
			a.last[addr] = rows
			a.mu.Unlock()
		}
	}

	a.events.Publish(bus.Event{Topic: bus.TopicBalances, Addresses: addrs, Failed: failed})
}

// GetLast returns the most recent complete snapshot for addr.
func (a *Aggregator) GetLast(addr common.Address) ([]Balance, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, ok := a.last[addr]
	if !ok {
		return nil, false
	}
	out := make([]Balance, len(rows))
	copy(out, rows)
	return out, true
}

// AllZero reports whether addr provably holds nothing: a complete snapshot
// exists and every tracked balance in it is zero. No snapshot means unknown,
// which counts as not-zero.
func (a *Aggregator) AllZero(addr common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, ok := a.last[addr]
	if !ok {
		return false
	}
	for _, b := range rows {
		if b.Raw.Sign() != 0 {
			return false
		}
	}
	return true
}

// rootCtx is the context background refresh goroutines run under; Run swaps
// it for its own so in-flight fetches stop with the daemon.
func (a *Aggregator) rootCtx() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.baseCtx
}

// Run periodically refreshes every address returned by list until ctx ends.
// It catches wallets whose balances changed outside our own operations, e.g.
// incoming deposits.
func (a *Aggregator) Run(ctx context.Context, list func() []common.Address) {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()
	ticker := time.NewTicker(constants.SafetyRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.RefreshSync(ctx, list())
		}
	}
}
