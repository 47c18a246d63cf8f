package filter

import (
	"errors"
	"fmt"

	"github.com/sieveio/sieve/chain"
)

// Builder constructs a Filter through scoped closures. Conditions declared
// directly inside a scope combine with implicit AND; explicit combinators
// (Or, Xor, Not, ...) push a single combinator child. Build freezes the
// tree and reports every error accumulated along the way.
//
//	f, err := filter.New().
//		Chain(chain.Ethereum).
//		Transaction(func(tx *filter.TxScope) {
//			tx.Value().Gt(big.NewInt(1000))
//			tx.GasPrice().Lt(big.NewInt(50_000))
//		}).
//		Build()
type Builder struct {
	chain    chain.Chain
	scope    Scope
	scopeSet bool
	root     *group
	sink     *errSink
}

// New creates an empty filter builder. The chain defaults to Ethereum.
func New() *Builder {
	sink := &errSink{}
	return &Builder{
		chain: chain.Ethereum,
		sink:  sink,
	}
}

// Chain sets the single chain tag the filter applies to.
func (b *Builder) Chain(c chain.Chain) *Builder {
	if !c.Known() {
		b.sink.add(fmt.Errorf("filter: unknown chain %q", c))
		return b
	}
	b.chain = c
	return b
}

// Transaction opens a confirmed-transaction scope.
func (b *Builder) Transaction(fn func(*TxScope)) *Builder {
	g := b.enter(ScopeTransaction)
	if g != nil {
		fn(&TxScope{g: g})
	}
	return b
}

// Pool opens a pending-transaction (mempool) scope.
func (b *Builder) Pool(fn func(*PoolScope)) *Builder {
	g := b.enter(ScopePool)
	if g != nil {
		fn(&PoolScope{g: g})
	}
	return b
}

// Event opens an event-log scope.
func (b *Builder) Event(fn func(*EventScope)) *Builder {
	g := b.enter(ScopeEvent)
	if g != nil {
		fn(&EventScope{g: g})
	}
	return b
}

// BlockHeader opens a block-header scope.
func (b *Builder) BlockHeader(fn func(*HeaderScope)) *Builder {
	g := b.enter(ScopeBlockHeader)
	if g != nil {
		fn(&HeaderScope{g: g})
	}
	return b
}

// ChainSpecific opens a dynamic scope over transactions where every field
// is addressed by raw path, for chain-specific payloads (L2 metadata).
func (b *Builder) ChainSpecific(fn func(*DynScope)) *Builder {
	g := b.enter(ScopeChainSpecific)
	if g != nil {
		fn(&DynScope{g: g})
	}
	return b
}

func (b *Builder) enter(s Scope) *group {
	if b.scopeSet {
		b.sink.add(errors.New("filter: a filter has exactly one scope"))
		return nil
	}
	b.scope = s
	b.scopeSet = true
	b.root = &group{scope: s, sink: b.sink}
	return b.root
}

// Build freezes the tree. It returns an error if no scope was opened, the
// scope ended up empty, or any predicate or combinator was invalid.
func (b *Builder) Build() (*Filter, error) {
	if !b.scopeSet {
		b.sink.add(errors.New("filter: no scope declared"))
	} else if len(b.root.nodes) == 0 {
		b.sink.add(errors.New("filter: empty filter scope"))
	}
	if err := b.sink.join(); err != nil {
		return nil, err
	}
	root := b.root.finish()
	return &Filter{
		chain: b.chain,
		scope: b.scope,
		root:  root,
		id:    fingerprint(b.chain, b.scope, root),
	}, nil
}

type errSink struct {
	errs []error
}

func (s *errSink) add(err error) { s.errs = append(s.errs, err) }

func (s *errSink) join() error {
	if len(s.errs) == 0 {
		return nil
	}
	return errors.Join(s.errs...)
}

// group accumulates sibling nodes at one nesting level.
type group struct {
	scope Scope
	sink  *errSink
	nodes []*Node
}

func (g *group) add(p Predicate) {
	if err := p.validate(g.scope); err != nil {
		g.sink.add(err)
		return
	}
	pred := p
	g.nodes = append(g.nodes, &Node{Op: OpLeaf, Pred: &pred})
}

// combine runs build against a fresh child group and appends the resulting
// combinator node. Not with multiple children AND-combines them first.
func (g *group) combine(op LogicalOp, build func(*group)) {
	child := &group{scope: g.scope, sink: g.sink}
	build(child)
	if len(child.nodes) == 0 {
		g.sink.add(fmt.Errorf("filter: empty %s group", op))
		return
	}
	var n *Node
	if op == OpNot {
		n = &Node{Op: OpNot, Children: []*Node{child.finish()}}
	} else {
		n = &Node{Op: op, Children: child.nodes}
	}
	g.nodes = append(g.nodes, n)
}

// finish collapses the group's siblings into a single node (implicit AND).
func (g *group) finish() *Node {
	if len(g.nodes) == 1 {
		return g.nodes[0]
	}
	return &Node{Op: OpAnd, Children: g.nodes}
}
