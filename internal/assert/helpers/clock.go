package helpers

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a controllable clock. Sleeping advances the clock instead
// of blocking, so spacing and backoff can be asserted exactly
type FakeClock struct {
	now    time.Time
	sleeps []time.Duration
	mu     sync.Mutex
}

// DefaultTestTime is the starting instant of every FakeClock
var DefaultTestTime = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

// NewFakeClock creates a clock starting at DefaultTestTime
func NewFakeClock() *FakeClock {
	return &FakeClock{now: DefaultTestTime}
}

// Now returns the clock's current time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records d and advances the clock by it
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the clock forward without recording a sleep
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Sleeps returns every recorded sleep, in order
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]time.Duration, len(c.sleeps))
	copy(res, c.sleeps)
	return res
}
