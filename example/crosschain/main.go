package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/sieveio/sieve"
	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/filter"
)

// Correlate value transfers across an L1 and an L2 inside a time window.
func main() {
	ctx := context.Background()

	engine, err := sieve.Connect(ctx, []chain.Config{
		chain.New(
			chain.On(chain.Optimism),
			chain.RPC("https://optimism-sepolia-rpc.publicnode.com"),
			chain.WS("wss://optimism-sepolia-rpc.publicnode.com"),
		),
		chain.New(
			chain.On(chain.Ethereum),
			chain.RPC("https://ethereum-holesky-rpc.publicnode.com"),
			chain.WS("wss://ethereum-holesky-rpc.publicnode.com"),
		),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Shutdown(ctx)

	ethFilter, err := filter.New().
		Chain(chain.Ethereum).
		Transaction(func(tx *filter.TxScope) {
			tx.Value().Gt(big.NewInt(100))
		}).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	opFilter, err := filter.New().
		Chain(chain.Optimism).
		Transaction(func(tx *filter.TxScope) {
			tx.Value().Gt(big.NewInt(100))
		}).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	s, err := engine.WatchWithin(5*time.Hour, []*filter.Filter{ethFilter, opFilter})
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	for ev := range s.Events() {
		switch ev.Kind {
		case sieve.EventMatch:
			// Items arrive in filter order: [eth item, op item].
			fmt.Printf("matched within window: %+v\n", ev.Items)
		case sieve.EventTimeout:
			fmt.Println("window expired without finding all matches")
		}
	}
}
