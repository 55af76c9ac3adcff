package engine

import "sync/atomic"

// Clock is the logical clock that stamps edit records. Seq values are
// strictly increasing; wall-clock time is never used for ordering.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first value is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observe moves the clock forward to seq if it is behind. Replayed records
// keep their own seq; later edits continue after the highest one seen.
func (c *Clock) Observe(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
