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

// Filter OP-stack transactions by chain-specific fields addressed by raw
// payload path.
func main() {
	ctx := context.Background()

	engine, err := sieve.Connect(ctx, []chain.Config{
		chain.New(
			chain.On(chain.Optimism),
			chain.RPC("https://optimism-sepolia-rpc.publicnode.com"),
		),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Shutdown(ctx)

	opFilter, err := filter.New().
		Chain(chain.Optimism).
		Transaction(func(tx *filter.TxScope) {
			tx.Value().Gt(big.NewInt(1_000_000_000_000_000_000))

			tx.Field("l1BlockNumber").Gt(uint64(1_000_000))
			tx.Field("l1TxOrigin").StartsWith("0x")

			tx.AnyOf(func(tx *filter.TxScope) {
				tx.Field("sequenceNumber").Gt(uint64(500))
				tx.Field("queueIndex").Lt(uint64(100))
			})
		}).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	s, err := engine.Subscribe(opFilter)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	for ev := range s.Events() {
		fmt.Printf("l2 match: %+v\n", ev.Item)
	}
}
