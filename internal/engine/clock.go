package engine

import "sync/atomic"

// Clock hands out a strictly increasing sequence number to stamp each
// module analyzeOne processes, independent of wall-clock time, so a
// TimeoutSkipped finding's log/message can reference a module's
// position in the run without two workers racing on the same stamp.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the worker pool's one-call-per-module usage means contention
// is low.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
