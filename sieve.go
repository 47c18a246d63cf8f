// Package sieve is a real-time filtering and correlation engine for EVM
// chain event streams (Ethereum and OP-stack L2s).
//
// Sieve ingests block headers, confirmed transactions, pending transactions
// and event logs from multiple chains, evaluates declarative filters against
// the normalized stream, and emits matches to per-subscription channels.
// Time-bounded multi-filter subscriptions correlate matches across chains.
//
// Usage:
//
//	engine, err := sieve.Connect(ctx, []chain.Config{
//	    chain.New(chain.RPC("https://ethereum-rpc.publicnode.com")),
//	})
//
//	f, err := filter.New().Transaction(func(tx *filter.TxScope) {
//	    tx.Value().Gt(big.NewInt(1_000_000))
//	}).Build()
//
//	s, err := engine.Subscribe(f)
//	for ev := range s.Events() {
//	    fmt.Println("match:", ev.Item)
//	}
package sieve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/decoder"
	"github.com/sieveio/sieve/eval"
	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/internal/syncutil"
	"github.com/sieveio/sieve/item"
	"github.com/sieveio/sieve/middleware"
	"github.com/sieveio/sieve/orchestrator"
	"github.com/sieveio/sieve/sub"
)

// Engine is the public entry point: it owns the chain connections, the
// subscription registry and the dispatcher.
type Engine struct {
	config      Config
	log         *zap.Logger
	dec         decoder.Decoder
	middlewares []middleware.Middleware

	evaluator  *eval.Evaluator
	orch       *orchestrator.Orchestrator
	registry   *sub.Registry
	dispatcher *sub.Dispatcher
	group      *syncutil.Group

	mu       sync.Mutex
	shutdown bool

	fatalOnce sync.Once
}

// Connect validates the chain configs and returns a running engine.
// Connections open lazily when the first subscription demands a chain's
// data.
func Connect(ctx context.Context, chains []chain.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		config: DefaultConfig(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dec == nil {
		e.dec = decoder.NewABIDecoder()
	}

	orch, err := orchestrator.Connect(chains, e.config.Quiescence, e.log, e.fatal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	e.orch = orch

	e.evaluator = eval.New(e.dec)
	for _, cfg := range chains {
		e.evaluator.SetCacheCapacity(cfg.Chain, cfg.DecodeCacheCapacity)
	}

	e.registry = sub.NewRegistry(e.config.DNFLimit)
	e.dispatcher = sub.NewDispatcher(e.registry, e.evaluator, e.log)
	if len(e.middlewares) > 0 {
		handler := middleware.Chain(func(ev sub.Event) *sub.Event { return &ev }, e.middlewares...)
		e.dispatcher.SetInterceptor(handler)
	}

	e.group = syncutil.NewGroup(ctx)
	for _, p := range orch.Pipelines() {
		items := p.Items()
		e.group.Go(func(ctx context.Context) {
			e.dispatcher.Run(ctx, items)
		})
	}
	e.group.Go(func(ctx context.Context) {
		e.dispatcher.RunSweeper(ctx, e.config.SweepInterval)
	})

	return e, nil
}

// Subscribe delivers every item matching the filter as an Event.
func (e *Engine) Subscribe(f *filter.Filter, opts ...SubOption) (*Subscription, error) {
	if f == nil {
		return nil, ErrFilterBuild
	}
	return e.subscribe(sub.ModeSubscribe, []*filter.Filter{f}, 0, opts)
}

// SubscribeAll delivers matches of any of the independent filters, each
// event tagged with the index of the originating filter.
func (e *Engine) SubscribeAll(filters []*filter.Filter, opts ...SubOption) (*Subscription, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: no filters", ErrFilterBuild)
	}
	return e.subscribe(sub.ModeSubscribeAll, filters, 0, opts)
}

// WatchWithin correlates the filters inside a time window: when every
// filter has matched at least one item with timestamp spread within the
// window, the stream emits EventMatch with one item per filter; if the
// window expires without ever completing, it emits EventTimeout. The
// subscription terminates when the window timer fires.
func (e *Engine) WatchWithin(window time.Duration, filters []*filter.Filter, opts ...SubOption) (*Subscription, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: no filters", ErrFilterBuild)
	}
	s, err := e.subscribe(sub.ModeWatchWithin, filters, window, opts)
	if err != nil {
		return nil, err
	}
	s.StartWindow()
	return s, nil
}

func (e *Engine) subscribe(mode sub.Mode, filters []*filter.Filter, window time.Duration, opts []SubOption) (*Subscription, error) {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil, ErrShutdown
	}
	e.mu.Unlock()

	so := subOptions{policy: e.config.Policy, queueSize: e.config.QueueSize}
	for _, opt := range opts {
		opt(&so)
	}

	type demand struct {
		sup          *orchestrator.Supervisor
		kind         item.Kind
		wantReceipts bool
	}
	demands := make([]demand, 0, len(filters))
	for _, f := range filters {
		if f == nil {
			return nil, ErrFilterBuild
		}
		sup, ok := e.orch.Supervisor(f.Chain())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrChainNotConnected, f.Chain())
		}
		if err := e.registerSignatures(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFilterBuild, err)
		}
		demands = append(demands, demand{
			sup:          sup,
			kind:         f.Kind(),
			wantReceipts: f.NeedsReceipts(),
		})
	}

	s := e.registry.NewSubscription(mode, filters, so.policy, so.queueSize, window)
	for _, d := range demands {
		d.sup.Acquire(d.kind, d.wantReceipts)
	}
	ds := demands
	s.SetRelease(func() {
		for _, d := range ds {
			d.sup.Release(d.kind, d.wantReceipts)
		}
	})
	e.registry.Add(s)

	e.log.Debug("subscription created",
		zap.Uint64("sub_id", s.ID()),
		zap.Int("filters", len(filters)),
	)
	return s, nil
}

// registerSignatures registers the filter's decoded-field signatures with
// the decoder: event signatures for log scopes, function signatures for
// transaction scopes.
func (e *Engine) registerSignatures(f *filter.Filter) error {
	for _, sig := range f.Signatures() {
		var err error
		if f.Scope() == filter.ScopeEvent {
			err = e.dec.RegisterEvent(sig)
		} else {
			err = e.dec.RegisterFunction(sig)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvent registers an event signature with the engine's decoder.
// Example: engine.RegisterEvent("Transfer(address indexed from, address indexed to, uint256 value)")
func (e *Engine) RegisterEvent(signature string) error {
	return e.dec.RegisterEvent(signature)
}

// RegisterFunction registers a function signature with the engine's decoder.
// Example: engine.RegisterFunction("transfer(address to, uint256 value)")
func (e *Engine) RegisterFunction(signature string) error {
	return e.dec.RegisterFunction(signature)
}

// Chains returns the connected chain tags.
func (e *Engine) Chains() []chain.Chain {
	return e.orch.Chains()
}

// Subscriptions returns the number of live subscriptions.
func (e *Engine) Subscriptions() int {
	return e.registry.Len()
}

// Dispatched returns the number of items the dispatcher has processed.
func (e *Engine) Dispatched() uint64 {
	return e.dispatcher.Dispatched()
}

// IngestLag returns the cumulative count of fetcher stalls on full
// pipeline channels, summed over all chains.
func (e *Engine) IngestLag() uint64 {
	var total uint64
	for _, p := range e.orch.Pipelines() {
		total += p.Lag()
	}
	return total
}

// Shutdown stops ingestion, closes every subscription stream cleanly and
// waits for the dispatcher loops to drain, or for the context to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil
	}
	e.shutdown = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.orch.Close()
		e.registry.CloseAll()
		e.group.Stop()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fatal terminates the engine after a supervisor exhausted its restart
// budget: every stream receives a transport error and closes.
func (e *Engine) fatal(cause error) {
	e.fatalOnce.Do(func() {
		e.log.Error("fatal chain failure, closing engine", zap.Error(cause))
		e.mu.Lock()
		e.shutdown = true
		e.mu.Unlock()
		e.registry.FailAll(fmt.Errorf("%w: %v", ErrTransport, cause))
		e.orch.Close()
		e.group.Stop()
	})
}
