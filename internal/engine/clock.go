package engine

import "sync/atomic"

// Ticker numbers dispatches. *Clock is the production implementation.
type Ticker interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock. Stores number their dispatches with
// it and the journal stamps appended events with it; nothing in requex
// orders by wall-clock time.
//
// Clock is safe for concurrent use, although a Store only ever calls it from
// the goroutine that dispatches.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start, so the next value is
// start+1. Used to resume numbering after the last journaled seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
