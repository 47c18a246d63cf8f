// Package orchestrator manages per-chain connection lifecycle: it opens
// transports lazily on first demand, supervises their health with
// exponential backoff and full jitter, and drives fetcher startup and
// teardown through a per-chain demand table.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/ingest"
	"github.com/sieveio/sieve/internal/syncutil"
	"github.com/sieveio/sieve/item"
	"github.com/sieveio/sieve/retry"
	"github.com/sieveio/sieve/transport"
)

// ConnState is the lifecycle state of one chain's connection.
type ConnState int32

const (
	StateIdle ConnState = iota
	StateConnecting
	StateLive
	StateDegraded
	StateReconnecting
	StateClosed
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Fatal thresholds: a supervisor that restarts this often inside the window
// cannot make progress and takes the engine down.
const (
	maxRestarts      = 5
	maxRestartWindow = time.Minute
)

// Supervisor owns one chain's pipeline and connection health.
type Supervisor struct {
	cfg      chain.Config
	pipeline *ingest.Pipeline
	demand   *demandTable
	log      *zap.Logger

	state    atomic.Int32
	started  sync.Once
	group    *syncutil.Group
	breaker  *retry.CircuitBreaker
	onFatal  func(error)
	restarts []time.Time
	restMu   sync.Mutex
}

func newSupervisor(cfg chain.Config, quiescence time.Duration, log *zap.Logger, onFatal func(error)) *Supervisor {
	var rpc, ws transport.Transport
	if cfg.RPCURL != "" {
		rpc = transport.NewHTTP(cfg.RPCURL, cfg.RequestTimeout)
	}
	if cfg.WSURL != "" {
		ws = transport.NewWebSocket(cfg.WSURL, cfg.RequestTimeout)
	}
	p := ingest.New(cfg, rpc, ws, log)
	s := &Supervisor{
		cfg:      cfg,
		pipeline: p,
		log:      log.With(zap.String("chain", cfg.Chain.String())),
		breaker:  retry.NewCircuitBreaker(3, 10*time.Second),
		onFatal:  onFatal,
	}
	s.demand = newDemandTable(&supervisedSink{s: s}, quiescence)
	s.state.Store(int32(StateIdle))
	return s
}

// supervisedSink starts the health loop lazily with the first demand.
type supervisedSink struct {
	s *Supervisor
}

func (k *supervisedSink) StartKind(kind item.Kind) {
	k.s.ensureRunning()
	k.s.pipeline.StartKind(kind)
}

func (k *supervisedSink) StopKind(kind item.Kind)    { k.s.pipeline.StopKind(kind) }
func (k *supervisedSink) SetReceiptDemand(on bool)   { k.s.pipeline.SetReceiptDemand(on) }

// State returns the connection state.
func (s *Supervisor) State() ConnState { return ConnState(s.state.Load()) }

// Pipeline returns the supervised pipeline.
func (s *Supervisor) Pipeline() *ingest.Pipeline { return s.pipeline }

// Acquire registers subscription interest for an item kind.
func (s *Supervisor) Acquire(kind item.Kind, wantReceipts bool) {
	s.demand.acquire(kind, wantReceipts)
}

// Release drops subscription interest for an item kind.
func (s *Supervisor) Release(kind item.Kind, wantReceipts bool) {
	s.demand.release(kind, wantReceipts)
}

func (s *Supervisor) ensureRunning() {
	s.started.Do(func() {
		s.group = syncutil.NewGroup(context.Background())
		s.state.Store(int32(StateConnecting))
		s.group.Go(s.healthLoop)
	})
}

// healthLoop watches the pipeline's progress clock: a stall beyond the
// configured timeout degrades the connection (preferring RPC over WS) and
// hands recovery to the reconnect loop. Failure to recover inside the
// restart budget closes the supervisor and reports a fatal condition.
func (s *Supervisor) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.state.Store(int32(StateLive))

	for {
		select {
		case <-ctx.Done():
			s.state.Store(int32(StateClosed))
			return
		case <-ticker.C:
		}

		if !s.stalled() {
			continue
		}

		s.log.Warn("connection stalled, entering degraded state")
		s.state.Store(int32(StateDegraded))
		s.pipeline.SetPreferRPC(true)
		s.breaker.RecordFailure()

		if err := s.reconnect(ctx); err != nil {
			s.state.Store(int32(StateClosed))
			if ctx.Err() == nil && s.onFatal != nil {
				s.onFatal(fmt.Errorf("orchestrator: chain %s exceeded %d restarts in %s",
					s.cfg.Chain, maxRestarts, maxRestartWindow))
			}
			return
		}

		s.log.Info("connection recovered")
		s.state.Store(int32(StateLive))
		s.pipeline.SetPreferRPC(false)
		s.breaker.RecordSuccess()
	}
}

var errStillStalled = errors.New("orchestrator: connection still stalled")

// reconnect drives recovery probes through the connection backoff until the
// pipeline makes progress again. Each failed probe counts one restart
// toward the fatal cap; exhausting the budget cancels the probe loop.
func (s *Supervisor) reconnect(ctx context.Context) error {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	attempt := 0
	return retry.Do(probeCtx, retry.Connection(), func(context.Context) error {
		if !s.breaker.Allow() {
			return errStillStalled
		}
		attempt++
		s.state.Store(int32(StateReconnecting))
		s.log.Info("reconnecting", zap.Int("attempt", attempt))

		if !s.stalled() {
			return nil
		}
		if !s.recordRestart() {
			cancel()
			return errStillStalled
		}
		s.state.Store(int32(StateDegraded))
		return errStillStalled
	})
}

func (s *Supervisor) stalled() bool {
	return time.Since(s.pipeline.LastProgress()) > s.cfg.StallTimeout
}

// recordRestart reports false when the restart budget inside the window is
// exhausted.
func (s *Supervisor) recordRestart() bool {
	s.restMu.Lock()
	defer s.restMu.Unlock()
	now := time.Now()
	kept := s.restarts[:0]
	for _, t := range s.restarts {
		if now.Sub(t) < maxRestartWindow {
			kept = append(kept, t)
		}
	}
	s.restarts = append(kept, now)
	return len(s.restarts) <= maxRestarts
}

func (s *Supervisor) close() {
	s.demand.close()
	if s.group != nil {
		s.group.Stop()
	}
	s.state.Store(int32(StateClosed))
	s.pipeline.Close()
}

// Orchestrator holds the supervisors of all connected chains.
type Orchestrator struct {
	mu      sync.Mutex
	sups    map[chain.Chain]*Supervisor
	log     *zap.Logger
	onFatal func(error)
	closed  bool
}

// Connect validates the chain configs and creates one supervisor per chain.
// Transports open lazily on first demand. onFatal is invoked (once per
// failing chain) when a supervisor gives up.
func Connect(cfgs []chain.Config, quiescence time.Duration, log *zap.Logger, onFatal func(error)) (*Orchestrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("orchestrator: no chains configured")
	}
	o := &Orchestrator{
		sups:    make(map[chain.Chain]*Supervisor),
		log:     log,
		onFatal: onFatal,
	}
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := o.sups[cfg.Chain]; dup {
			return nil, fmt.Errorf("orchestrator: chain %s configured twice", cfg.Chain)
		}
		o.sups[cfg.Chain] = newSupervisor(cfg, quiescence, log, onFatal)
	}
	return o, nil
}

// Supervisor returns the supervisor for a chain.
func (o *Orchestrator) Supervisor(c chain.Chain) (*Supervisor, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sups[c]
	return s, ok
}

// Chains returns the connected chain tags.
func (o *Orchestrator) Chains() []chain.Chain {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]chain.Chain, 0, len(o.sups))
	for c := range o.sups {
		out = append(out, c)
	}
	return out
}

// Pipelines returns every chain's pipeline.
func (o *Orchestrator) Pipelines() []*ingest.Pipeline {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*ingest.Pipeline, 0, len(o.sups))
	for _, s := range o.sups {
		out = append(out, s.pipeline)
	}
	return out
}

// Close stops every supervisor and pipeline.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	sups := make([]*Supervisor, 0, len(o.sups))
	for _, s := range o.sups {
		sups = append(sups, s)
	}
	o.mu.Unlock()
	for _, s := range sups {
		s.close()
	}
}
