package chain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defaults. Timing values follow the polling cadence of public RPC
// endpoints; resource caps bound per-chain memory.
const (
	DefaultHeadPollInterval    = 2 * time.Second
	DefaultPendingPollInterval = 500 * time.Millisecond
	DefaultStallTimeout        = 30 * time.Second
	DefaultRequestTimeout      = 10 * time.Second
	DefaultDedupWindow         = 8192
	DefaultDecodeCacheCapacity = 10_000
)

// Config holds the connection settings for a single chain.
type Config struct {
	// Chain is the chain identity. Defaults to Ethereum.
	Chain Chain

	// RPCURL is the HTTP JSON-RPC endpoint. Required unless WSURL is set.
	RPCURL string

	// WSURL is the WebSocket endpoint for push subscriptions.
	WSURL string

	// GossipsubAddr is the local gossipsub bind multiaddr (v2; accepted
	// and validated, no ingress fetcher is started for it yet).
	GossipsubAddr string

	// BootstrapPeers are initial gossipsub peers in multiaddr format (v2).
	BootstrapPeers []string

	// HeadPollInterval is the cadence of latest-block polling.
	HeadPollInterval time.Duration

	// PendingPollInterval is the cadence of pending-tx filter polling.
	PendingPollInterval time.Duration

	// StallTimeout marks a connection Degraded when no poll or heartbeat
	// has advanced for this long.
	StallTimeout time.Duration

	// RequestTimeout bounds a single RPC round trip.
	RequestTimeout time.Duration

	// DedupWindow is the per-kind size of the recently-seen ring.
	DedupWindow int

	// DecodeCacheCapacity bounds the per-chain ABI decode cache.
	DecodeCacheCapacity int
}

// Option configures a chain Config.
type Option func(*Config)

// RPC sets the HTTP JSON-RPC endpoint.
func RPC(url string) Option {
	return func(c *Config) { c.RPCURL = url }
}

// WS sets the WebSocket endpoint.
func WS(url string) Option {
	return func(c *Config) { c.WSURL = url }
}

// Gossipsub sets the local gossipsub bind address (v2).
func Gossipsub(multiaddr string) Option {
	return func(c *Config) { c.GossipsubAddr = multiaddr }
}

// BootstrapPeers sets the initial gossipsub peers (v2).
func BootstrapPeers(peers ...string) Option {
	return func(c *Config) { c.BootstrapPeers = append(c.BootstrapPeers, peers...) }
}

// On sets the chain identity.
func On(chain Chain) Option {
	return func(c *Config) { c.Chain = chain }
}

// HeadPollInterval overrides the latest-block polling cadence.
func HeadPollInterval(d time.Duration) Option {
	return func(c *Config) { c.HeadPollInterval = d }
}

// PendingPollInterval overrides the pending-tx polling cadence.
func PendingPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PendingPollInterval = d }
}

// StallTimeout overrides the degraded-connection threshold.
func StallTimeout(d time.Duration) Option {
	return func(c *Config) { c.StallTimeout = d }
}

// RequestTimeout overrides the single-request deadline.
func RequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// DedupWindow overrides the recently-seen ring size.
func DedupWindow(n int) Option {
	return func(c *Config) { c.DedupWindow = n }
}

// DecodeCacheCapacity overrides the per-chain decode cache bound.
func DecodeCacheCapacity(n int) Option {
	return func(c *Config) { c.DecodeCacheCapacity = n }
}

// New builds a Config with defaults applied, then the given options.
func New(opts ...Option) Config {
	c := Config{
		Chain:               Ethereum,
		HeadPollInterval:    DefaultHeadPollInterval,
		PendingPollInterval: DefaultPendingPollInterval,
		StallTimeout:        DefaultStallTimeout,
		RequestTimeout:      DefaultRequestTimeout,
		DedupWindow:         DefaultDedupWindow,
		DecodeCacheCapacity: DefaultDecodeCacheCapacity,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks the config for missing or conflicting options.
func (c Config) Validate() error {
	if !c.Chain.Known() {
		return fmt.Errorf("chain: unknown chain %q", c.Chain)
	}
	if c.RPCURL == "" && c.WSURL == "" && c.GossipsubAddr == "" {
		return errors.New("chain: at least one of rpc, ws or gossipsub is required")
	}
	if c.RPCURL != "" && !strings.HasPrefix(c.RPCURL, "http://") && !strings.HasPrefix(c.RPCURL, "https://") {
		return fmt.Errorf("chain: rpc url %q is not http(s)", c.RPCURL)
	}
	if c.WSURL != "" && !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		return fmt.Errorf("chain: ws url %q is not ws(s)", c.WSURL)
	}
	if len(c.BootstrapPeers) > 0 && c.GossipsubAddr == "" {
		return errors.New("chain: bootstrap peers set without a gossipsub bind address")
	}
	if c.HeadPollInterval <= 0 || c.PendingPollInterval <= 0 {
		return errors.New("chain: poll intervals must be positive")
	}
	if c.DedupWindow <= 0 {
		return errors.New("chain: dedup window must be positive")
	}
	if c.DecodeCacheCapacity <= 0 {
		return errors.New("chain: decode cache capacity must be positive")
	}
	return nil
}
