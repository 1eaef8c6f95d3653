// Package ratelimit bounds outbound API call rate with a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces at most calls requests per rolling period. Acquire blocks
// until a slot is free, so callers only ever wait, never get rejected.
type Limiter struct {
	mu     sync.Mutex
	calls  int
	period time.Duration
	times  []time.Time

	// now is swappable for tests.
	now func() time.Time
}

// New creates a limiter allowing calls requests per period.
func New(calls int, period time.Duration) *Limiter {
	return &Limiter{
		calls:  calls,
		period: period,
		now:    time.Now,
	}
}

// Acquire blocks until a request slot is available or ctx is done.
// On success the call is recorded in the window.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)

		if len(l.times) < l.calls {
			l.times = append(l.times, now)
			l.mu.Unlock()
			return nil
		}

		// Wait until the oldest call leaves the window, then re-check.
		wait := l.times[0].Add(l.period).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// InWindow reports how many calls are currently inside the window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.times)
}

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.period)
	i := 0
	for i < len(l.times) && !l.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.times = append(l.times[:0], l.times[i:]...)
	}
}
