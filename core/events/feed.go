package events

import (
	"sync"
	"sync/atomic"

	"energymarket/core/types"
	"energymarket/observability"
)

const defaultFeedBuffer = 64

// Feed fans committed receipts out to any number of subscribers. Slow
// subscribers lose receipts rather than blocking the publisher.
type Feed struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]chan *types.Receipt
	dropped atomic.Uint64
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan *types.Receipt)}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release it.
func (f *Feed) Subscribe(buffer int) (<-chan *types.Receipt, func()) {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	ch := make(chan *types.Receipt, buffer)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// HandleReceipt publishes a receipt to every subscriber.
func (f *Feed) HandleReceipt(receipt *types.Receipt) error {
	if f == nil || receipt == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- receipt.Clone():
		default:
			f.dropped.Add(1)
			observability.Events().AddDropped(1)
		}
	}
	return nil
}

// Dropped reports how many deliveries were skipped because a subscriber was
// not keeping up.
func (f *Feed) Dropped() uint64 { return f.dropped.Load() }

// Subscribers reports the number of active subscribers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
