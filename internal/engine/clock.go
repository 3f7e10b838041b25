package engine

import "sync/atomic"

// ColorClock hands out color ids, one per generated plan.
//
// Each plan is stamped with the current color before the clock advances,
// so a later plan never aliases an earlier plan's generated kernel module.
//
// Thread-safety: ColorClock is safe for concurrent use (atomic operations).
type ColorClock struct {
	color atomic.Int64
}

// NewColorClock creates a clock whose first color is 0.
func NewColorClock() *ColorClock {
	return &ColorClock{}
}

// NewColorClockAt creates a clock whose first color is start.
// Used to continue numbering after plans already recorded in the catalog.
func NewColorClockAt(start int) *ColorClock {
	c := &ColorClock{}
	c.color.Store(int64(start))
	return c
}

// Next returns the current color and advances the clock.
func (c *ColorClock) Next() int {
	return int(c.color.Add(1) - 1)
}

// Current returns the color the next plan will receive.
func (c *ColorClock) Current() int {
	return int(c.color.Load())
}
