package store

import (
	"sync"
	"time"

	"github.com/roach88/reviewlog/internal/ir"
)

// ServerClock issues strictly increasing server timestamps.
//
// Each timestamp is the wall-clock reading when that is later than the last
// issued value; otherwise it is the last value plus one nanosecond. Two
// logs accepted within the same second, or while the wall clock steps
// backwards, therefore still order deterministically.
//
// Thread-safety: ServerClock is safe for concurrent use.
type ServerClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last ir.ServerTimestamp
}

// NewServerClock creates a clock reading from now. A nil now uses time.Now.
func NewServerClock(now func() time.Time) *ServerClock {
	if now == nil {
		now = time.Now
	}
	return &ServerClock{now: now}
}

// Next returns a timestamp strictly greater than any previously issued or
// observed one.
func (c *ServerClock) Next() ir.ServerTimestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := ir.ServerTimestampFromTime(c.now())
	if !ts.After(c.last) {
		ts = c.last
		ts.Nanoseconds++
		if ts.Nanoseconds >= int64(time.Second) {
			ts.Seconds++
			ts.Nanoseconds = 0
		}
	}
	c.last = ts
	return ts
}

// Observe advances the clock past ts without issuing it. Used when a store
// is reopened, and when a record arrives with a pre-assigned timestamp.
func (c *ServerClock) Observe(ts ir.ServerTimestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts.After(c.last) {
		c.last = ts
	}
}

// Last returns the most recently issued or observed timestamp.
func (c *ServerClock) Last() ir.ServerTimestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
