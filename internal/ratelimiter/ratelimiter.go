// Package ratelimiter throttles opportunistic background work, such as the
// engine cleanup sweep, to at most one run per minimum interval.
package ratelimiter

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle admits at most one event per interval.
//
// This wraps golang.org/x/time/rate with a bucket of size one, so a burst
// of callers racing for the same slot sees exactly one winner and every
// other caller returns immediately.
//
// Thread safety:
// All methods are safe for concurrent use.
type Throttle struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New creates a Throttle admitting one event per interval.
//
// Special cases:
//   - interval <= 0: no throttling (every call is admitted)
//
// The first call is always admitted.
func New(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Allow reports whether the caller may run now. It never blocks.
func (t *Throttle) Allow() bool {
	return t.limiter.Allow()
}

// Interval returns the configured minimum interval.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}
