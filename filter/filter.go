// Package filter provides the declarative filter DSL: an immutable logical
// expression tree over typed, chain-aware item fields, constructed through a
// fluent builder with scoped closures.
package filter

import (
	"github.com/cespare/xxhash/v2"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/item"
)

// LogicalOp is the node discriminator of the expression tree.
type LogicalOp uint8

const (
	OpLeaf LogicalOp = iota
	OpAnd
	OpOr
	OpNot
	OpXor
)

// String implements fmt.Stringer.
func (op LogicalOp) String() string {
	switch op {
	case OpLeaf:
		return "leaf"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	case OpXor:
		return "xor"
	default:
		return "unknown"
	}
}

// Node is one node of the expression tree: either an internal combinator
// with children, or a leaf predicate.
type Node struct {
	Op       LogicalOp
	Children []*Node
	Pred     *Predicate
}

// Scope identifies the item kind a filter's fields are drawn from.
type Scope uint8

const (
	ScopeTransaction Scope = iota
	ScopePool
	ScopeEvent
	ScopeBlockHeader
	ScopeChainSpecific
)

// String implements fmt.Stringer.
func (s Scope) String() string {
	switch s {
	case ScopeTransaction:
		return "transaction"
	case ScopePool:
		return "pool"
	case ScopeEvent:
		return "event"
	case ScopeBlockHeader:
		return "block_header"
	case ScopeChainSpecific:
		return "chain_specific"
	default:
		return "unknown"
	}
}

// Kind returns the item kind a scope's predicates evaluate against.
func (s Scope) Kind() item.Kind {
	switch s {
	case ScopePool:
		return item.KindPendingTx
	case ScopeEvent:
		return item.KindLog
	case ScopeBlockHeader:
		return item.KindHeader
	default:
		return item.KindConfirmedTx
	}
}

// Filter is a frozen expression tree. Filters are immutable after Build and
// safe for concurrent evaluation.
type Filter struct {
	chain chain.Chain
	scope Scope
	root  *Node
	id    uint64
}

// Chain returns the single chain tag the filter applies to.
func (f *Filter) Chain() chain.Chain { return f.chain }

// Scope returns the filter's scope.
func (f *Filter) Scope() Scope { return f.scope }

// Kind returns the item kind the filter is interested in.
func (f *Filter) Kind() item.Kind { return f.scope.Kind() }

// Root returns the root of the expression tree.
func (f *Filter) Root() *Node { return f.root }

// ID is a stable fingerprint of the tree, chain and scope.
func (f *Filter) ID() uint64 { return f.id }

// NeedsDecoding reports whether any predicate references an ABI-decoded
// field. Filters for which this is false never touch the decode cache.
func (f *Filter) NeedsDecoding() bool {
	return anyPred(f.root, func(p *Predicate) bool {
		return item.DecodedPrefix(p.Path)
	})
}

// NeedsReceipts reports whether any predicate references a receipt field,
// driving on-demand receipt fetching for the filter's chain.
func (f *Filter) NeedsReceipts() bool {
	return anyPred(f.root, func(p *Predicate) bool {
		return len(p.Path) > 8 && p.Path[:8] == "receipt."
	})
}

// Signatures returns the event/function signatures referenced by decoded
// predicates, for decoder registration.
func (f *Filter) Signatures() []string {
	seen := make(map[string]struct{})
	var sigs []string
	walk(f.root, func(n *Node) {
		if n.Pred != nil && n.Pred.Signature != "" {
			if _, ok := seen[n.Pred.Signature]; !ok {
				seen[n.Pred.Signature] = struct{}{}
				sigs = append(sigs, n.Pred.Signature)
			}
		}
	})
	return sigs
}

func anyPred(n *Node, fn func(*Predicate) bool) bool {
	if n == nil {
		return false
	}
	if n.Pred != nil && fn(n.Pred) {
		return true
	}
	for _, c := range n.Children {
		if anyPred(c, fn) {
			return true
		}
	}
	return false
}

func walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}

func fingerprint(c chain.Chain, s Scope, root *Node) uint64 {
	h := xxhash.New()
	h.WriteString(string(c))
	h.Write([]byte{byte(s)})
	data, err := marshalNode(root)
	if err == nil {
		h.Write(data)
	}
	return h.Sum64()
}
