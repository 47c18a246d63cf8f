// Package sub implements the subscription runtime: a sharded registry of
// live filters, predicate indices mined from filter trees, the dispatcher
// that fans ingested items out to matching subscriptions, and the windowed
// cross-chain correlation behind watch_within.
package sub

import (
	"github.com/sieveio/sieve/item"
)

// EventKind discriminates delivered events.
type EventKind uint8

const (
	// EventItem carries one matching item.
	EventItem EventKind = iota

	// EventMatch carries the correlated item per filter of a completed
	// watch window.
	EventMatch

	// EventTimeout signals a watch window that expired without completing.
	EventTimeout

	// EventError carries a terminal engine error; the stream closes after it.
	EventError
)

// Event is one element of a subscription's output stream.
type Event struct {
	Kind EventKind

	// Item is set for EventItem.
	Item item.Item

	// FilterIndex is the index of the originating filter for EventItem
	// deliveries from multi-filter subscriptions.
	FilterIndex int

	// Items is set for EventMatch: one item per filter, in filter order.
	Items []item.Item

	// Err is set for EventError.
	Err error
}
