// Package chain defines chain identities and per-chain connection configuration.
package chain

import "fmt"

// Chain identifies a supported blockchain. The tag determines the field
// schema used for dynamic lookups and is stamped on every ingested item.
type Chain string

const (
	// Ethereum mainnet / any Ethereum-compatible L1.
	Ethereum Chain = "ethereum"

	// Optimism is the OP-stack L2.
	Optimism Chain = "optimism"

	// Base is Coinbase's OP-stack L2.
	Base Chain = "base"
)

// Known reports whether c is one of the supported chain tags.
func (c Chain) Known() bool {
	switch c {
	case Ethereum, Optimism, Base:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (c Chain) String() string {
	return string(c)
}

// Parse converts a string into a Chain tag.
func Parse(s string) (Chain, error) {
	c := Chain(s)
	if !c.Known() {
		return "", fmt.Errorf("chain: unknown chain %q", s)
	}
	return c, nil
}
