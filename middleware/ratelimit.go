package middleware

import (
	"sync"
	"time"

	"github.com/sieveio/sieve/sub"
)

// RateLimit limits the rate at which item events are delivered. Window
// events (match, timeout) and errors always pass.
type RateLimit struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewRateLimit creates a rate-limiting middleware that delivers at most one
// item event per the given interval.
func NewRateLimit(interval time.Duration) *RateLimit {
	return &RateLimit{
		interval: interval,
	}
}

// Wrap decorates the handler with rate limiting.
func (r *RateLimit) Wrap(next Handler) Handler {
	return func(ev sub.Event) *sub.Event {
		if ev.Kind != sub.EventItem {
			return next(ev)
		}
		r.mu.Lock()
		if time.Since(r.last) < r.interval {
			r.mu.Unlock()
			return nil // drop: rate limited
		}
		r.last = time.Now()
		r.mu.Unlock()

		return next(ev)
	}
}
