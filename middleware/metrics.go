package middleware

import (
	"sync/atomic"

	"github.com/sieveio/sieve/sub"
)

// Metrics collects basic counters for delivered events.
type Metrics struct {
	delivered atomic.Uint64
	dropped   atomic.Uint64
	matches   atomic.Uint64
	timeouts  atomic.Uint64
}

// NewMetrics creates a metrics collection middleware.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Wrap decorates the handler with metrics collection.
func (m *Metrics) Wrap(next Handler) Handler {
	return func(ev sub.Event) *sub.Event {
		result := next(ev)
		if result == nil {
			m.dropped.Add(1)
			return nil
		}
		m.delivered.Add(1)
		switch ev.Kind {
		case sub.EventMatch:
			m.matches.Add(1)
		case sub.EventTimeout:
			m.timeouts.Add(1)
		}
		return result
	}
}

// Delivered returns the number of events passed through.
func (m *Metrics) Delivered() uint64 { return m.delivered.Load() }

// Dropped returns the number of events dropped by inner middleware.
func (m *Metrics) Dropped() uint64 { return m.dropped.Load() }

// Matches returns the number of window matches observed.
func (m *Metrics) Matches() uint64 { return m.matches.Load() }

// Timeouts returns the number of window timeouts observed.
func (m *Metrics) Timeouts() uint64 { return m.timeouts.Load() }
