package testutil

import (
	"slices"
	"sync"
)

// Clock is an engine.Ticker for scenarios. It starts at a chosen tick and
// records every tick it hands out, so a trace can be checked against the
// numbers a store actually used.
type Clock struct {
	mu    sync.Mutex
	start int64
	now   int64
	ticks []int64
}

// NewClock creates a clock positioned at start; the first Next returns
// start+1.
func NewClock(start int64) *Clock {
	return &Clock{start: start, now: start}
}

// Next advances the clock by one and returns the new tick.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	c.ticks = append(c.ticks, c.now)
	return c.now
}

// Current returns the last tick handed out, or the start tick.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Ticks returns a copy of the ticks handed out since creation or the last
// Reset, in order.
func (c *Clock) Ticks() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ticks)
}

// Reset rewinds the clock to its start tick and forgets the recorded ticks.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
	c.ticks = nil
}
