package sieve

import (
	"time"

	"go.uber.org/zap"

	"github.com/sieveio/sieve/decoder"
	"github.com/sieveio/sieve/middleware"
	"github.com/sieveio/sieve/sub"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithDecoder sets the ABI decoder used for decoded-field predicates.
func WithDecoder(d decoder.Decoder) Option {
	return func(e *Engine) {
		e.dec = d
	}
}

// WithMiddleware adds middleware to the event delivery pipeline.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(e *Engine) {
		e.middlewares = append(e.middlewares, mw...)
	}
}

// WithQueueSize overrides the per-subscription queue bound.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.config.QueueSize = n
		}
	}
}

// WithPolicy sets the default backpressure policy for new subscriptions.
func WithPolicy(p sub.Policy) Option {
	return func(e *Engine) {
		e.config.Policy = p
	}
}

// WithDNFLimit overrides the index-mining DNF expansion cap.
func WithDNFLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.config.DNFLimit = n
		}
	}
}

// WithQuiescence overrides how long fetchers outlive their last subscriber.
func WithQuiescence(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.config.Quiescence = d
		}
	}
}

// WithSweepInterval overrides the tombstone sweeper cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.config.SweepInterval = d
		}
	}
}

// SubOption configures a single subscription.
type SubOption func(*subOptions)

type subOptions struct {
	policy    sub.Policy
	queueSize int
}

// WithSubPolicy overrides the backpressure policy for this subscription.
func WithSubPolicy(p sub.Policy) SubOption {
	return func(o *subOptions) {
		o.policy = p
	}
}

// WithSubQueueSize overrides the queue bound for this subscription.
func WithSubQueueSize(n int) SubOption {
	return func(o *subOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}
