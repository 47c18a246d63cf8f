package sub

import (
	"sync"
	"sync/atomic"

	"github.com/sieveio/sieve/filter"
)

// Policy selects the backpressure behavior of a subscription's queue.
type Policy uint8

const (
	// Block stalls the dispatcher until the consumer drains the queue.
	// Nothing is lost; a slow consumer slows its producer.
	Block Policy = iota

	// DropOldest discards the oldest queued event to admit the new one.
	DropOldest
)

// Mode is the dispatch mode of a subscription.
type Mode uint8

const (
	ModeSubscribe Mode = iota
	ModeSubscribeAll
	ModeWatchWithin
)

// DefaultQueueSize bounds a subscription's outbound queue.
const DefaultQueueSize = 256

// Subscription is a live consumer handle. Dropping it (Close) tombstones
// the entry; the dispatcher skips tombstoned subscriptions and a background
// sweeper unlinks them.
type Subscription struct {
	id      uint64
	mode    Mode
	filters []*filter.Filter
	policy  Policy

	out  chan Event
	done chan struct{}

	win *window // ModeWatchWithin only

	tombstoned atomic.Bool
	closeOnce  sync.Once

	// closeMu serializes deliveries against the sweeper's channel close.
	closeMu sync.RWMutex
	closed  bool

	// release returns the subscription's demand to the orchestrator; set by
	// the engine, invoked exactly once when the sweeper unlinks the entry.
	release func()

	dropped atomic.Uint64
}

func newSubscription(id uint64, mode Mode, filters []*filter.Filter, policy Policy, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Subscription{
		id:      id,
		mode:    mode,
		filters: filters,
		policy:  policy,
		out:     make(chan Event, queueSize),
		done:    make(chan struct{}),
	}
}

// ID returns the subscription's registry id.
func (s *Subscription) ID() uint64 { return s.id }

// Mode returns the dispatch mode.
func (s *Subscription) Mode() Mode { return s.mode }

// Filters returns the subscription's filters in declaration order.
func (s *Subscription) Filters() []*filter.Filter { return s.filters }

// Events returns the output stream. The channel closes when the
// subscription ends; a terminal error arrives as EventError first.
func (s *Subscription) Events() <-chan Event { return s.out }

// Dropped returns the number of events discarded under DropOldest.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close tombstones the subscription. Delivery stops promptly (next
// dispatcher visit); the sweeper unlinks the entry and closes the stream.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.tombstoned.Store(true)
		if s.win != nil {
			s.win.cancel()
		}
		close(s.done)
	})
}

// SetRelease installs the demand-release hook invoked once when the
// sweeper unlinks the subscription.
func (s *Subscription) SetRelease(fn func()) {
	s.release = fn
}

// StartWindow arms the watch_within expiry timer. The timer fires exactly
// once: a window that never completed a match emits Timeout, then the
// subscription terminates either way. No-op for other modes.
func (s *Subscription) StartWindow() {
	if s.win == nil {
		return
	}
	s.win.arm(func() {
		if s.win.expire() {
			s.deliver(Event{Kind: EventTimeout})
		}
		s.Close()
	})
}

// deliver enqueues one event per the subscription's policy. Returns false
// when the subscription is tombstoned or its stream already closed.
func (s *Subscription) deliver(ev Event) bool {
	if s.tombstoned.Load() {
		return false
	}
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}

	switch s.policy {
	case DropOldest:
		for {
			select {
			case s.out <- ev:
				return true
			default:
			}
			select {
			case <-s.out:
				s.dropped.Add(1)
			default:
			}
		}
	default: // Block
		select {
		case s.out <- ev:
			return true
		case <-s.done:
			return false
		}
	}
}

// shut closes the output stream. Only the sweeper calls this, after the
// entry is unlinked from every shard.
func (s *Subscription) shut() {
	s.Close()
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
	if s.release != nil {
		s.release()
		s.release = nil
	}
}
