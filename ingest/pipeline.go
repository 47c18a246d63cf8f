// Package ingest runs the per-chain ingestion pipeline: fetchers pull raw
// payloads over RPC or WebSocket, normalization stamps them into the item
// schema, a per-kind dedup ring drops replays, and reorg markers are
// synthesized ahead of replacing headers. The pipeline's output channel is
// bounded; when the dispatcher falls behind, fetchers block and the stall
// is counted, never silently dropped.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/internal/syncutil"
	"github.com/sieveio/sieve/item"
	"github.com/sieveio/sieve/transport"
)

// outBuffer is the bound of the pipeline's fan-in channel.
const outBuffer = 1024

// recentHeaderWindow bounds the number-to-hash map used for reorg detection.
const recentHeaderWindow = 512

// fetcher units; item kinds map onto them depending on available transports.
type unit uint8

const (
	unitHeads unit = iota
	unitBlocks
	unitPending
	unitWSLogs
)

// Pipeline ingests one chain.
type Pipeline struct {
	cfg chain.Config
	rpc transport.Transport
	ws  transport.Transport
	log *zap.Logger

	out   chan item.Item
	dedup *dedup

	mu     sync.Mutex
	groups map[unit]*syncutil.Group
	refs   map[unit]int

	emitConfirmed  atomic.Bool
	receiptDemand  atomic.Bool
	receiptLogs    atomic.Bool
	preferRPC      atomic.Bool
	ingestLag      atomic.Uint64
	lastProgress   atomic.Int64
	receiptPermits chan struct{}

	// reorg tracking
	tipMu     sync.Mutex
	tipSet    bool
	tipNumber uint64
	recent    map[uint64]item.Hash

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pipeline for one chain. rpc is required for polling; ws is
// optional and enables push subscriptions.
func New(cfg chain.Config, rpc, ws transport.Transport, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:            cfg,
		rpc:            rpc,
		ws:             ws,
		log:            log.With(zap.String("chain", cfg.Chain.String())),
		out:            make(chan item.Item, outBuffer),
		dedup:          newDedup(cfg.DedupWindow),
		groups:         make(map[unit]*syncutil.Group),
		refs:           make(map[unit]int),
		receiptPermits: make(chan struct{}, 8),
		recent:         make(map[uint64]item.Hash),
		ctx:            ctx,
		cancel:         cancel,
	}
	p.lastProgress.Store(time.Now().UnixNano())
	return p
}

// Items returns the pipeline's bounded output stream.
func (p *Pipeline) Items() <-chan item.Item { return p.out }

// Chain returns the chain this pipeline ingests.
func (p *Pipeline) Chain() chain.Chain { return p.cfg.Chain }

// Lag returns the number of times a fetcher blocked on a full output channel.
func (p *Pipeline) Lag() uint64 { return p.ingestLag.Load() }

// LastProgress returns the time of the last successful emission or poll.
func (p *Pipeline) LastProgress() time.Time {
	return time.Unix(0, p.lastProgress.Load())
}

// SetReceiptDemand toggles on-demand receipt enrichment of confirmed
// transactions before dispatch.
func (p *Pipeline) SetReceiptDemand(on bool) { p.receiptDemand.Store(on) }

// SetPreferRPC steers source selection while the connection is degraded:
// polling fetchers are preferred over WS push.
func (p *Pipeline) SetPreferRPC(on bool) { p.preferRPC.Store(on) }

// StartKind ensures the fetchers feeding the given item kind are running.
// Fetcher units are refcounted: starting header and confirmed-tx demand
// shares the underlying block fetcher where possible.
func (p *Pipeline) StartKind(kind item.Kind) {
	for _, u := range p.unitsFor(kind) {
		p.startUnit(u)
	}
	switch kind {
	case item.KindConfirmedTx:
		p.emitConfirmed.Store(true)
	case item.KindLog:
		if !p.wsAvailable() {
			p.receiptLogs.Store(true)
		}
	}
}

// StopKind releases the fetchers for the given item kind.
func (p *Pipeline) StopKind(kind item.Kind) {
	switch kind {
	case item.KindConfirmedTx:
		p.emitConfirmed.Store(false)
	case item.KindLog:
		p.receiptLogs.Store(false)
	}
	for _, u := range p.unitsFor(kind) {
		p.stopUnit(u)
	}
}

// Close stops every fetcher and closes the output stream.
func (p *Pipeline) Close() {
	p.cancel()
	p.mu.Lock()
	groups := make([]*syncutil.Group, 0, len(p.groups))
	for _, g := range p.groups {
		groups = append(groups, g)
	}
	p.groups = make(map[unit]*syncutil.Group)
	p.refs = make(map[unit]int)
	p.mu.Unlock()
	for _, g := range groups {
		g.Stop()
	}
	close(p.out)
}

func (p *Pipeline) wsAvailable() bool {
	return p.ws != nil && !p.preferRPC.Load()
}

func (p *Pipeline) unitsFor(kind item.Kind) []unit {
	switch kind {
	case item.KindHeader:
		if p.wsAvailable() {
			return []unit{unitHeads}
		}
		return []unit{unitBlocks}
	case item.KindConfirmedTx:
		return []unit{unitBlocks}
	case item.KindPendingTx:
		return []unit{unitPending}
	case item.KindLog:
		if p.wsAvailable() {
			return []unit{unitWSLogs}
		}
		return []unit{unitBlocks}
	default:
		return nil
	}
}

func (p *Pipeline) startUnit(u unit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs[u]++
	if p.refs[u] > 1 {
		return
	}
	g := syncutil.NewGroup(p.ctx)
	p.groups[u] = g
	switch u {
	case unitHeads:
		g.Go(p.runWSHeads)
	case unitBlocks:
		g.Go(p.runBlockPoller)
	case unitPending:
		g.Go(p.runPendingPoller)
	case unitWSLogs:
		g.Go(p.runWSLogs)
	}
	p.log.Debug("fetcher started", zap.Uint8("unit", uint8(u)))
}

func (p *Pipeline) stopUnit(u unit) {
	p.mu.Lock()
	if p.refs[u] == 0 {
		p.mu.Unlock()
		return
	}
	p.refs[u]--
	if p.refs[u] > 0 {
		p.mu.Unlock()
		return
	}
	g := p.groups[u]
	delete(p.groups, u)
	p.mu.Unlock()
	if g != nil {
		g.Stop()
	}
	p.log.Debug("fetcher stopped", zap.Uint8("unit", uint8(u)))
}

// emit pushes one item downstream after dedup and reorg checks. Blocks when
// the output channel is full. Returns false once the pipeline is cancelled.
func (p *Pipeline) emit(ctx context.Context, it item.Item) bool {
	if p.dedup.seen(it) {
		return true
	}
	if h, ok := it.(*item.Header); ok {
		if marker := p.observeHeader(h); marker != nil {
			if !p.send(ctx, marker) {
				return false
			}
		}
	}
	return p.send(ctx, it)
}

func (p *Pipeline) send(ctx context.Context, it item.Item) bool {
	select {
	case p.out <- it:
	default:
		p.ingestLag.Add(1)
		select {
		case p.out <- it:
		case <-ctx.Done():
			return false
		}
	}
	p.progress()
	return true
}

func (p *Pipeline) progress() {
	p.lastProgress.Store(time.Now().UnixNano())
}

// observeHeader updates the reorg tracker and returns a marker when the
// canonical hash changed at or below the prior tip height.
func (p *Pipeline) observeHeader(h *item.Header) *item.ReorgMarker {
	p.tipMu.Lock()
	defer p.tipMu.Unlock()

	var marker *item.ReorgMarker
	if p.tipSet && h.Number <= p.tipNumber {
		if prev, ok := p.recent[h.Number]; ok && prev != h.Hash {
			marker = &item.ReorgMarker{
				Chain:      p.cfg.Chain,
				FromNumber: p.tipNumber,
				ToNumber:   h.Number,
			}
		}
	}
	p.recent[h.Number] = h.Hash
	if len(p.recent) > recentHeaderWindow {
		cutoff := h.Number
		for n := range p.recent {
			if n+recentHeaderWindow < cutoff {
				delete(p.recent, n)
			}
		}
	}
	if !p.tipSet || h.Number > p.tipNumber {
		p.tipNumber = h.Number
	}
	p.tipSet = true
	return marker
}
