// Package history maintains the per-wallet activity cache. Like the balance
// cache it fetches through the rate-limited index service, one wallet at a
// time, with at most one refresh in flight. Records touching contracts we do
// not track are dropped before they reach a caller.
package history

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

// Action is one tracked-token movement inside an entry.
type Action struct {
	Symbol    string         `json:"symbol"`
	Contract  common.Address `json:"contract"`
	Amount    string         `json:"amount"`
	Direction string         `json:"direction"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
}

// Entry is one transaction in a wallet's activity feed.
type Entry struct {
	TxHash      common.Hash `json:"txHash"`
	ChainID     uint64      `json:"chainId"`
	TimestampMs int64       `json:"timestampMs"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	Actions     []Action    `json:"actions"`
}

// Source reads raw history from the index service; *indexer.Client satisfies
// it.
type Source interface {
	History(ctx context.Context, addr common.Address) ([]indexer.HistoryRecord, error)
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
	last map[common.Address][]Entry
}

type Option func(*Aggregator)

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
		last:    make(map[common.Address][]Entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Refresh schedules a history fetch for addrs and returns immediately. A
// request arriving while a fetch is in flight is dropped.
func (a *Aggregator) Refresh(addrs []common.Address) {
	if len(addrs) == 0 {
		return
	}
	if !a.inFlight.CompareAndSwap(false, true) {
		a.log.Debugw("history refresh already in flight, dropping", "addresses", len(addrs))
		return
	}
	ctx := a.rootCtx()
	go func() {
		defer a.inFlight.Store(false)
		a.fetch(ctx, addrs)
	}()
}

// RefreshSync runs a fetch on the caller's goroutine, still under the
// in-flight guard.
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
	failed := 0
	for _, addr := range addrs {
		if err := a.limiter.Wait(ctx); err != nil {
			return
		}
		records, err := a.src.History(ctx, addr)
		if err != nil {
			a.log.Warnw("history fetch failed", "address", addr.Hex(), "error", err)
			failed++
			continue
		}

		entries := a.convert(records)
		a.mu.Lock()
		a.last[addr] = entries
		a.mu.Unlock()
	}

	a.events.Publish(bus.Event{Topic: bus.TopicHistory, Addresses: addrs, Failed: failed})
}

// convert filters records down to tracked contracts and orders them newest
// first. A record survives if at least one of its token actions touches a
// tracked contract on the record's chain; untracked actions inside a
// surviving record are still dropped.
func (a *Aggregator) convert(records []indexer.HistoryRecord) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		actions := make([]Action, 0, len(rec.Details.TokenActions))
		for _, ta := range rec.Details.TokenActions {
			token, tracked := a.reg.TokenByContract(rec.Details.ChainID, ta.Contract)
			if !tracked {
				continue
			}
			amount := ta.Amount
			if raw, ok := newBigFromDecimal(ta.Amount); ok {
				amount = registry.FormatUnits(raw, token.Decimals)
			}
			actions = append(actions, Action{
				Symbol:    token.Symbol,
				Contract:  ta.Contract,
				Amount:    amount,
				Direction: ta.Direction,
				From:      ta.From,
				To:        ta.To,
			})
		}
		if len(actions) == 0 {
			continue
		}
		entries = append(entries, Entry{
			TxHash:      rec.Details.TxHash,
			ChainID:     rec.Details.ChainID,
			TimestampMs: rec.TimeMs,
			Type:        rec.Details.Type,
			Status:      rec.Details.Status,
			Actions:     actions,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TimestampMs > entries[j].TimestampMs
	})
	return entries
}

// newBigFromDecimal parses the raw integer amount the index service reports.
func newBigFromDecimal(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}

// GetLast returns the most recent activity feed for addr, newest first.
func (a *Aggregator) GetLast(addr common.Address) ([]Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries, ok := a.last[addr]
	if !ok {
		return nil, false
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, true
}

// rootCtx is the context background refresh goroutines run under; Run swaps
// it for its own so in-flight fetches stop with the daemon.
func (a *Aggregator) rootCtx() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.baseCtx
}

// Run periodically refreshes every address returned by list until ctx ends.
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
