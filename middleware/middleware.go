// Package middleware provides interceptors for the event delivery pipeline.
package middleware

import (
	"github.com/sieveio/sieve/sub"
)

// Handler processes an event and returns a (possibly modified) event.
// Returning a nil pointer signals that the event should be dropped.
type Handler func(ev sub.Event) *sub.Event

// Middleware wraps a Handler, adding cross-cutting behavior (logging, metrics, etc.).
type Middleware interface {
	// Wrap returns a new Handler that decorates the given inner handler.
	Wrap(next Handler) Handler
}

// Chain composes multiple middlewares into a single Handler, applying them
// in the order provided (first middleware is outermost).
func Chain(handler Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i].Wrap(handler)
	}
	return handler
}
