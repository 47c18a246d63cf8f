// Package eval evaluates a frozen filter tree against a single item.
//
// Evaluation short-circuits (And stops at the first false child, Or at the
// first true one, Xor at the second true one) and runs to completion
// without yielding: it is pure CPU work. Field reads are cached in a
// per-evaluation scratchpad so a path referenced twice in one tree is
// resolved at most once; ABI decode results outlive the evaluation in a
// bounded per-chain cache.
package eval

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/decoder"
	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/item"
)

// Evaluator evaluates filters against items. It is safe for concurrent use.
type Evaluator struct {
	dec decoder.Decoder

	mu     sync.RWMutex
	caches map[chain.Chain]*decoder.Cache
	caps   map[chain.Chain]int

	decodeErrors atomic.Uint64
}

// New creates an evaluator. dec may be nil when no filter references
// decoded fields.
func New(dec decoder.Decoder) *Evaluator {
	return &Evaluator{
		dec:    dec,
		caches: make(map[chain.Chain]*decoder.Cache),
		caps:   make(map[chain.Chain]int),
	}
}

// SetCacheCapacity bounds the decode cache for one chain. Takes effect on
// the next cache creation for that chain.
func (e *Evaluator) SetCacheCapacity(c chain.Chain, capacity int) {
	e.mu.Lock()
	e.caps[c] = capacity
	e.mu.Unlock()
}

// CacheLen returns the number of decode-cache entries for a chain.
func (e *Evaluator) CacheLen(c chain.Chain) int {
	e.mu.RLock()
	cache := e.caches[c]
	e.mu.RUnlock()
	if cache == nil {
		return 0
	}
	return cache.Len()
}

// DecodeErrors returns the cumulative count of decode failures. Failures
// leave the affected fields absent; they never fail the evaluation.
func (e *Evaluator) DecodeErrors() uint64 { return e.decodeErrors.Load() }

// Match reports whether the item satisfies the filter. An item from a
// different chain or of a different kind than the filter's scope never
// matches.
func (e *Evaluator) Match(f *filter.Filter, it item.Item) bool {
	if f.Chain() != it.ItemChain() || f.Kind() != it.ItemKind() {
		return false
	}
	ctx := &evalCtx{
		eval:    e,
		item:    it,
		scratch: make(map[string]item.Value, 8),
	}
	return ctx.node(f.Root())
}

type evalCtx struct {
	eval    *Evaluator
	item    item.Item
	scratch map[string]item.Value
}

func (c *evalCtx) node(n *filter.Node) bool {
	switch n.Op {
	case filter.OpLeaf:
		return c.predicate(n.Pred)
	case filter.OpAnd:
		for _, child := range n.Children {
			if !c.node(child) {
				return false
			}
		}
		return true
	case filter.OpOr:
		for _, child := range n.Children {
			if c.node(child) {
				return true
			}
		}
		return false
	case filter.OpNot:
		return !c.node(n.Children[0])
	case filter.OpXor:
		count := 0
		for _, child := range n.Children {
			if c.node(child) {
				count++
				if count == 2 {
					return false
				}
			}
		}
		return count == 1
	default:
		return false
	}
}

func (c *evalCtx) predicate(p *filter.Predicate) bool {
	v := c.lookup(p)
	if v.IsAbsent() {
		return p.Op == filter.CmpNe
	}
	return compare(p, v)
}

// lookup resolves the predicate's field through the scratchpad.
func (c *evalCtx) lookup(p *filter.Predicate) item.Value {
	key := p.Path
	if p.Signature != "" {
		key = p.Signature + "|" + p.Path
	}
	if v, ok := c.scratch[key]; ok {
		return v
	}
	var v item.Value
	if item.DecodedPrefix(p.Path) {
		v = c.decoded(p)
	} else {
		v = item.Resolve(c.item, p.Path)
	}
	c.scratch[key] = v
	return v
}

// decoded resolves an ABI-decoded path through the decode cache.
func (c *evalCtx) decoded(p *filter.Predicate) item.Value {
	if c.eval.dec == nil {
		return item.Absent
	}
	var (
		payloadID string
		decode    func() (*decoder.Decoded, error)
	)
	switch it := c.item.(type) {
	case *item.ConfirmedTx:
		payloadID = it.Tx.Hash.Hex()
		input := it.Tx.Input
		decode = func() (*decoder.Decoded, error) { return c.eval.dec.DecodeCalldata(input) }
	case *item.PendingTx:
		payloadID = it.Tx.Hash.Hex()
		input := it.Tx.Input
		decode = func() (*decoder.Decoded, error) { return c.eval.dec.DecodeCalldata(input) }
	case *item.Log:
		payloadID = fmt.Sprintf("%s-%d", it.TxHash.Hex(), it.LogIndex)
		l := it
		decode = func() (*decoder.Decoded, error) { return c.eval.dec.DecodeLog(l) }
	default:
		return item.Absent
	}

	sig := p.Signature
	if sig == "" {
		sig = "_"
	}
	d, err := c.eval.cache(c.item.ItemChain()).Get(decoder.Key(payloadID, sig), decode)
	if err != nil {
		c.eval.decodeErrors.Add(1)
		return item.Absent
	}
	if p.Path == "input.method" {
		return item.String(d.Name)
	}
	name := p.Path
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	return d.Param(name)
}

func (e *Evaluator) cache(c chain.Chain) *decoder.Cache {
	e.mu.RLock()
	cache := e.caches[c]
	e.mu.RUnlock()
	if cache != nil {
		return cache
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cache = e.caches[c]; cache != nil {
		return cache
	}
	capacity := e.caps[c]
	if capacity <= 0 {
		capacity = chain.DefaultDecodeCacheCapacity
	}
	cache, err := decoder.NewCache(capacity)
	if err != nil {
		// Only reachable with a non-positive capacity, which the chain
		// config validation rejects.
		panic(err)
	}
	e.caches[c] = cache
	return cache
}
