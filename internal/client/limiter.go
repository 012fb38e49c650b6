package client

import (
	"context"
	"sync"
	"time"
)

type (
	// Clock returns the current time
	Clock func() time.Time

	// Sleeper blocks for d or until ctx is done
	Sleeper func(ctx context.Context, d time.Duration) error

	// Limiter serializes one account's calls and spaces them by at least
	// delay. The slot is held across the wait, the call, and any retries
	Limiter struct {
		slot  chan struct{}
		now   Clock
		sleep Sleeper
		last  time.Time
		delay time.Duration
		mu    sync.Mutex
	}
)

// NewLimiter creates a limiter enforcing delay between consecutive calls
func NewLimiter(delay time.Duration, now Clock, sleep Sleeper) *Limiter {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return &Limiter{
		slot:  make(chan struct{}, 1),
		now:   now,
		sleep: sleep,
		delay: delay,
	}
}

// Lock takes the account's single in-flight slot
func (l *Limiter) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock frees the slot taken by Lock
func (l *Limiter) Unlock() {
	<-l.slot
}

// Wait blocks until at least delay has elapsed since the last call. The
// caller must hold the slot
func (l *Limiter) Wait(ctx context.Context) error {
	wait := l.Remaining()
	if wait <= 0 {
		return nil
	}
	return l.sleep(ctx, wait)
}

// Mark records that a call just completed
func (l *Limiter) Mark() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = l.now()
}

// Resume treats last as the most recent call when it is later than the
// one already recorded
func (l *Limiter) Resume(last time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last.After(l.last) {
		l.last = last
	}
}

// Remaining returns how long the next call must still wait
func (l *Limiter) Remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last.IsZero() {
		return 0
	}
	return l.delay - l.now().Sub(l.last)
}

// LastCall returns the time the most recent call completed
func (l *Limiter) LastCall() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Delay returns the configured spacing
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// SleepContext sleeps for d, returning early with ctx's error when ctx is
// done first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
