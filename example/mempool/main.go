package main

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/sieveio/sieve"
	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/filter"
)

// Monitor the mempool for high-value pending transactions.
func main() {
	ctx := context.Background()

	engine, err := sieve.Connect(ctx, []chain.Config{
		chain.New(
			chain.RPC("https://ethereum-holesky-rpc.publicnode.com"),
			chain.WS("wss://ethereum-holesky-rpc.publicnode.com"),
		),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Shutdown(ctx)

	poolFilter, err := filter.New().Pool(func(p *filter.PoolScope) {
		p.AnyOf(func(p *filter.PoolScope) {
			p.Value().Gt(big.NewInt(100))
			p.From().StartsWith("0xdead")
			p.To().Exact("0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
		})
	}).Build()
	if err != nil {
		log.Fatal(err)
	}

	s, err := engine.Subscribe(poolFilter)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	for ev := range s.Events() {
		fmt.Printf("received event: %+v\n", ev)
	}
}
