package sub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/item"
)

// Registry holds the live subscriptions, sharded by (chain, item kind) so
// the dispatcher only consults the shard an item can possibly match.
// Reads (dispatch) take a shard read lock; writes (subscribe, sweep) take
// the shard exclusively.
type Registry struct {
	mu     sync.RWMutex
	shards map[shardKey]*shard

	subsMu sync.Mutex
	subs   map[uint64]*Subscription

	nextID   atomic.Uint64
	dnfLimit int
}

type shardKey struct {
	chain chain.Chain
	kind  item.Kind
}

type shard struct {
	mu      sync.RWMutex
	entries map[uint64][]*entry // keyed by subscription id
	index   *predIndex
}

// NewRegistry creates an empty registry. dnfLimit caps the DNF expansion
// used for index mining; 0 uses the default.
func NewRegistry(dnfLimit int) *Registry {
	if dnfLimit <= 0 {
		dnfLimit = filter.DefaultDNFLimit
	}
	return &Registry{
		shards:   make(map[shardKey]*shard),
		subs:     make(map[uint64]*Subscription),
		dnfLimit: dnfLimit,
	}
}

// NewSubscription allocates a subscription with the next id. watch_within
// subscriptions get their correlation window; the caller arms the timer.
func (r *Registry) NewSubscription(mode Mode, filters []*filter.Filter, policy Policy, queueSize int, windowDur time.Duration) *Subscription {
	s := newSubscription(r.nextID.Add(1), mode, filters, policy, queueSize)
	if mode == ModeWatchWithin {
		s.win = newWindow(len(filters), windowDur)
	}
	return s
}

// Add links the subscription's filters into their shards.
func (r *Registry) Add(s *Subscription) {
	for i, f := range s.filters {
		e := &entry{sub: s, f: f, fidx: i}
		sh := r.shard(shardKey{chain: f.Chain(), kind: f.Kind()})
		sh.mu.Lock()
		sh.entries[s.id] = append(sh.entries[s.id], e)
		sh.index.add(e, r.dnfLimit)
		sh.mu.Unlock()
	}
	r.subsMu.Lock()
	r.subs[s.id] = s
	r.subsMu.Unlock()
}

func (r *Registry) shard(key shardKey) *shard {
	r.mu.RLock()
	sh := r.shards[key]
	r.mu.RUnlock()
	if sh != nil {
		return sh
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sh = r.shards[key]; sh != nil {
		return sh
	}
	sh = &shard{
		entries: make(map[uint64][]*entry),
		index:   newPredIndex(),
	}
	r.shards[key] = sh
	return sh
}

// Candidates returns the entries possibly matching the item: index hits
// plus the linear scan list of the item's shard.
func (r *Registry) Candidates(it item.Item) []*entry {
	r.mu.RLock()
	sh := r.shards[shardKey{chain: it.ItemChain(), kind: it.ItemKind()}]
	r.mu.RUnlock()
	if sh == nil {
		return nil
	}

	set := make(map[*entry]struct{})
	sh.mu.RLock()
	sh.index.candidates(it, set)
	sh.mu.RUnlock()

	out := make([]*entry, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	return out
}

// KindEntries returns every entry registered for (chain, kind); used to
// fan reorg markers out to header subscriptions without evaluation.
func (r *Registry) KindEntries(c chain.Chain, kind item.Kind) []*entry {
	r.mu.RLock()
	sh := r.shards[shardKey{chain: c, kind: kind}]
	r.mu.RUnlock()
	if sh == nil {
		return nil
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	var out []*entry
	for _, es := range sh.entries {
		out = append(out, es...)
	}
	return out
}

// Sweep unlinks tombstoned subscriptions and closes their streams. Shards
// that lost entries rebuild their index from the remaining live entries.
func (r *Registry) Sweep() {
	r.subsMu.Lock()
	var dead []*Subscription
	for id, s := range r.subs {
		if s.tombstoned.Load() {
			dead = append(dead, s)
			delete(r.subs, id)
		}
	}
	r.subsMu.Unlock()
	if len(dead) == 0 {
		return
	}

	touched := make(map[*shard]struct{})
	for _, s := range dead {
		for _, f := range s.filters {
			sh := r.shard(shardKey{chain: f.Chain(), kind: f.Kind()})
			sh.mu.Lock()
			delete(sh.entries, s.id)
			sh.mu.Unlock()
			touched[sh] = struct{}{}
		}
	}
	for sh := range touched {
		sh.mu.Lock()
		sh.index = newPredIndex()
		for _, es := range sh.entries {
			for _, e := range es {
				sh.index.add(e, r.dnfLimit)
			}
		}
		sh.mu.Unlock()
	}
	for _, s := range dead {
		s.shut()
	}
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	return len(r.subs)
}

// FailAll delivers a terminal error to every live subscription and closes
// it. Used when the engine shuts down on a fatal transport condition.
func (r *Registry) FailAll(err error) {
	r.subsMu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.subsMu.Unlock()
	for _, s := range subs {
		if err != nil {
			s.deliver(Event{Kind: EventError, Err: err})
		}
		s.Close()
	}
	r.Sweep()
}

// CloseAll closes every live subscription cleanly (end of stream, no error).
func (r *Registry) CloseAll() {
	r.FailAll(nil)
}
