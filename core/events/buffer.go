package events

import (
	"sync"

	"energymarket/core/types"
)

// Buffer collects events emitted during a single call so they can be
// published only once the call commits.
type Buffer struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements Emitter.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, payload.Clone())
	b.mu.Unlock()
}

// Drain returns the collected events and empties the buffer.
func (b *Buffer) Drain() []*types.Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Discard drops the collected events.
func (b *Buffer) Discard() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
