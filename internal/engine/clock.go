package engine

import "sync/atomic"

// Clock counts scan cycles.
//
// The first cycle is numbered 1. Cycle numbers are the logical time used by
// traces and hooks; wall-clock time is never used for ordering.
//
// Thread-safety: Clock is safe for concurrent use, so monitors can read the
// current cycle while the engine goroutine advances it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next cycle number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current cycle number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
