package sieve

import "github.com/sieveio/sieve/sub"

// Event is one element of a subscription stream.
type Event = sub.Event

// EventKind discriminates delivered events.
type EventKind = sub.EventKind

// Event kinds.
const (
	EventItem    = sub.EventItem
	EventMatch   = sub.EventMatch
	EventTimeout = sub.EventTimeout
	EventError   = sub.EventError
)

// Subscription is a live consumer handle; read Events() and Close() when done.
type Subscription = sub.Subscription

// Backpressure policies.
const (
	Block      = sub.Block
	DropOldest = sub.DropOldest
)
