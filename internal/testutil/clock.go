package testutil

import (
	"sync"
	"time"

	"github.com/roach88/reviewlog/internal/ir"
)

// DeterministicClock issues server timestamps 1s, 2s, 3s, ... for tests.
//
// Unlike store.ServerClock, DeterministicClock ignores the wall clock and
// can be reset for test reuse, so the same scenario always yields identical
// timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a new deterministic clock starting at 0.
//
// The first call to Next() returns {Seconds: 1}.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{seq: 0}
}

// Next advances the clock by one second and returns the new timestamp.
func (c *DeterministicClock) Next() ir.ServerTimestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return ir.ServerTimestamp{Seconds: c.seq}
}

// Now is Next as a time.Time, for store.WithClock.
func (c *DeterministicClock) Now() time.Time {
	ts := c.Next()
	return time.Unix(ts.Seconds, ts.Nanoseconds)
}

// Current returns the last issued timestamp without advancing.
func (c *DeterministicClock) Current() ir.ServerTimestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ir.ServerTimestamp{Seconds: c.seq}
}

// Observe moves the clock forward to ts if it is behind.
func (c *DeterministicClock) Observe(ts ir.ServerTimestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts.Seconds > c.seq {
		c.seq = ts.Seconds
	}
}

// Reset resets the clock to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
