package main

import (
	"fmt"
	"log"
	"math/big"

	"github.com/sieveio/sieve/filter"
)

// A tour of the filter DSL.
func main() {
	// Simple OR: any of the three conditions matches.
	simpleOr, err := filter.New().Transaction(func(f *filter.TxScope) {
		f.Or(func(tx *filter.TxScope) {
			tx.Value().Gt(big.NewInt(1000))
			tx.GasPrice().Lt(big.NewInt(50_000))
			tx.Nonce().Eq(5)
		})
	}).Build()
	must(err)
	fmt.Println("or filter:", simpleOr.ID())

	// Sibling conditions AND together; nested combinators form subtrees.
	pattern, err := filter.New().Transaction(func(f *filter.TxScope) {
		f.Value().Gt(big.NewInt(100))

		f.AllOf(func(tx *filter.TxScope) {
			tx.GasPrice().Between(big.NewInt(50), big.NewInt(150))
		})

		f.Or(func(tx *filter.TxScope) {
			tx.Gas().Gt(500_000)
			tx.Value().Eq(big.NewInt(100))
		})
	}).Build()
	must(err)
	fmt.Println("pattern filter:", pattern.ID())

	// Event scope with decoded parameters.
	events, err := filter.New().Event(func(f *filter.EventScope) {
		f.AnyOf(func(e *filter.EventScope) {
			e.Contract().Exact("0xdAC17F958D2ee523a2206206994597C13D831ec7")
			e.Topics().Contains("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
		})

		f.Signature("Transfer(address indexed from,address indexed to,uint256 value)").
			Param("value").
			Gt(big.NewInt(100))
	}).Build()
	must(err)
	fmt.Println("event filter:", events.ID())

	// Exclusion: everything except transactions from one sender.
	unless, err := filter.New().Transaction(func(f *filter.TxScope) {
		f.Value().Gt(big.NewInt(0))
		f.Unless(func(tx *filter.TxScope) {
			tx.From().Exact("0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
		})
	}).Build()
	must(err)
	fmt.Println("unless filter:", unless.ID())

	// Exactly-one-of semantics.
	xor, err := filter.New().BlockHeader(func(f *filter.HeaderScope) {
		f.Xor(func(h *filter.HeaderScope) {
			h.Number().Gt(1_000_000)
			h.GasUsed().Lt(100_000)
		})
	}).Build()
	must(err)
	fmt.Println("xor filter:", xor.ID())

	// Round-trip serialization.
	data, err := xor.MarshalJSON()
	must(err)
	restored, err := filter.Unmarshal(data)
	must(err)
	fmt.Println("round-trip stable:", restored.ID() == xor.ID())
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
