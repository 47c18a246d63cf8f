package sieve

import (
	"time"

	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/orchestrator"
	"github.com/sieveio/sieve/sub"
)

// Config holds the engine-level configuration.
type Config struct {
	// QueueSize bounds each subscription's outbound queue.
	QueueSize int

	// Policy is the default backpressure policy for new subscriptions.
	Policy sub.Policy

	// DNFLimit caps the DNF expansion used for predicate-index mining;
	// filters whose trees expand past it are scanned linearly.
	DNFLimit int

	// Quiescence is how long a fetcher outlives the last subscription
	// interested in its item kind.
	Quiescence time.Duration

	// SweepInterval is the cadence of the tombstone sweeper.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:     sub.DefaultQueueSize,
		Policy:        sub.Block,
		DNFLimit:      filter.DefaultDNFLimit,
		Quiescence:    orchestrator.DefaultQuiescence,
		SweepInterval: time.Second,
	}
}
