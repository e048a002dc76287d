// Package bus is the cache-invalidation channel between the aggregators and
// their consumers: fire once, notify many. It is an owned object injected
// into consumers, not ambient global dispatch.
package bus

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type Topic string

const (
	TopicBalances Topic = "balances"
	TopicHistory  Topic = "history"
)

// Event announces that fresh data landed for a set of addresses. Failed
// counts the slices that degraded to empty during the refresh.
type Event struct {
	Topic     Topic
	Addresses []common.Address
	Failed    int
}

const subscriberBuffer = 8

type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and a cancel func. Cancel is safe to
// call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full misses the event; the coarse safety refresh covers
// that case.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
