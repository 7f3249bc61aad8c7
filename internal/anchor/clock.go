package anchor

import "sync/atomic"

// Clock is a monotonic host clock measured in ticks.
type Clock interface {
	// Now returns the current host time in ticks.
	Now() uint64
	// Frequency returns ticks per second.
	Frequency() uint64
}

// ManualClock is a Clock that only moves when told to. It is safe for
// concurrent use.
type ManualClock struct {
	now  atomic.Uint64
	freq uint64
}

// NewManualClock returns a clock at tick start running at freq ticks per
// second.
func NewManualClock(start, freq uint64) *ManualClock {
	c := &ManualClock{freq: freq}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Now() uint64       { return c.now.Load() }
func (c *ManualClock) Frequency() uint64 { return c.freq }

// Set moves the clock to t.
func (c *ManualClock) Set(t uint64) { c.now.Store(t) }

// Advance moves the clock forward by d ticks and returns the new time.
func (c *ManualClock) Advance(d uint64) uint64 { return c.now.Add(d) }
