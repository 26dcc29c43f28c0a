package ssot

import (
	"sync"
	"time"
)

// Clock is the deterministic clock abstraction: evidence timestamps and
// audit entries may use wall clock time, but admission decisions and
// commit logic must never read it. Any code path that needs "now" takes
// a Clock explicitly instead of calling time.Now() directly.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// SteppedClock is a deterministic test double: each call to Now advances
// by a fixed step from a starting instant. Useful for coverage-estimator
// and limiter tests that assert behavior across many ticks without
// depending on real elapsed time.
type SteppedClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewSteppedClock returns a clock starting at start, advancing by step on
// every call to Now.
func NewSteppedClock(start time.Time, step time.Duration) *SteppedClock {
	return &SteppedClock{current: start, step: step}
}

// Now returns the current instant and advances the clock by its step.
func (c *SteppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Set pins the clock to an exact instant, bypassing the step advance.
func (c *SteppedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
