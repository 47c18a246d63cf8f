package sub

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sieveio/sieve/eval"
	"github.com/sieveio/sieve/item"
)

// Dispatcher routes ingested items to interested subscriptions. One Run
// loop per chain pipeline preserves the pipeline's per-kind ordering; the
// registry and subscription queues are safe for the resulting cross-chain
// concurrency.
type Dispatcher struct {
	reg  *Registry
	eval *eval.Evaluator
	log  *zap.Logger

	dispatched atomic.Uint64
	matched    atomic.Uint64

	// intercept, when set, runs before each delivery; returning nil drops
	// the event. Set once during engine construction, before Run starts.
	intercept func(Event) *Event
}

// SetInterceptor installs the delivery interceptor. Must be called before
// the dispatcher starts running.
func (d *Dispatcher) SetInterceptor(fn func(Event) *Event) {
	d.intercept = fn
}

// NewDispatcher creates a dispatcher over the given registry and evaluator.
func NewDispatcher(reg *Registry, ev *eval.Evaluator, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{reg: reg, eval: ev, log: log}
}

// Dispatched returns the number of items processed.
func (d *Dispatcher) Dispatched() uint64 { return d.dispatched.Load() }

// Matched returns the number of (subscription, item) matches delivered.
func (d *Dispatcher) Matched() uint64 { return d.matched.Load() }

// Run consumes one pipeline's output until the channel closes or the
// context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, items <-chan item.Item) {
	for {
		select {
		case <-ctx.Done():
			return
		case it, ok := <-items:
			if !ok {
				return
			}
			d.Dispatch(it)
		}
	}
}

// Dispatch fans one item out to its candidate subscriptions. The predicate
// index narrows the candidate set; the evaluator decides.
func (d *Dispatcher) Dispatch(it item.Item) {
	d.dispatched.Add(1)

	// Reorg markers bypass evaluation: every header subscription on the
	// chain observes them.
	if marker, ok := it.(*item.ReorgMarker); ok {
		seen := make(map[*Subscription]struct{})
		for _, e := range d.reg.KindEntries(marker.Chain, item.KindHeader) {
			if _, dup := seen[e.sub]; dup {
				continue
			}
			seen[e.sub] = struct{}{}
			d.send(e.sub, Event{Kind: EventItem, Item: marker, FilterIndex: e.fidx})
		}
		return
	}

	for _, e := range d.reg.Candidates(it) {
		if e.sub.tombstoned.Load() {
			continue
		}
		if !d.eval.Match(e.f, it) {
			continue
		}
		d.route(e, it)
	}
}

func (d *Dispatcher) route(e *entry, it item.Item) {
	s := e.sub
	switch s.mode {
	case ModeWatchWithin:
		items, complete := s.win.offer(e.fidx, it, time.Now())
		if complete {
			d.matched.Add(1)
			d.send(s, Event{Kind: EventMatch, Items: items})
		}
	default:
		d.matched.Add(1)
		d.send(s, Event{Kind: EventItem, Item: it, FilterIndex: e.fidx})
	}
}

func (d *Dispatcher) send(s *Subscription, ev Event) {
	if d.intercept != nil {
		out := d.intercept(ev)
		if out == nil {
			return
		}
		ev = *out
	}
	s.deliver(ev)
}

// RunSweeper periodically unlinks tombstoned subscriptions.
func (d *Dispatcher) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reg.Sweep()
		}
	}
}
