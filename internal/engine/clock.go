package engine

import "sync/atomic"

// Clock is a monotonic logical clock that stamps rule firings.
//
// Every firing gets a strictly increasing seq. The clock is never reset by
// Run, so seqs stay unique across runs on the same engine; Clear resets it
// together with the firing history.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Reset rewinds the clock to 0.
func (c *Clock) Reset() {
	c.seq.Store(0)
}
