package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies the block height at which the next call executes.
type Clock interface {
	Height() uint64
}

// ManualClock is a Clock advanced explicitly. It never moves backwards.
type ManualClock struct {
	mu     sync.Mutex
	height uint64
}

// NewManualClock returns a clock positioned at height.
func NewManualClock(height uint64) *ManualClock {
	return &ManualClock{height: height}
}

func (c *ManualClock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Set moves the clock to height. Heights below the current one are ignored.
func (c *ManualClock) Set(height uint64) {
	c.mu.Lock()
	if height > c.height {
		c.height = height
	}
	c.mu.Unlock()
}

// Advance moves the clock forward by n blocks and returns the new height.
func (c *ManualClock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}

// BlockClock produces one block every interval while Run is active.
type BlockClock struct {
	height   atomic.Uint64
	interval time.Duration
}

// NewBlockClock returns a clock starting at start and ticking every interval.
func NewBlockClock(start uint64, interval time.Duration) *BlockClock {
	if interval <= 0 {
		interval = time.Second
	}
	c := &BlockClock{interval: interval}
	c.height.Store(start)
	return c
}

func (c *BlockClock) Height() uint64 { return c.height.Load() }

// Set raises the clock to height. Lower values are ignored.
func (c *BlockClock) Set(height uint64) {
	for {
		current := c.height.Load()
		if height <= current || c.height.CompareAndSwap(current, height) {
			return
		}
	}
}

// Run ticks the clock until ctx is cancelled.
func (c *BlockClock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.height.Add(1)
		}
	}
}
