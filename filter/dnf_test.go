package filter

import (
	"math/big"
	"testing"
)

func TestDNFSimpleOr(t *testing.T) {
	f, err := New().Transaction(func(tx *TxScope) {
		tx.Or(func(tx *TxScope) {
			tx.Value().Gt(big.NewInt(1000))
			tx.Nonce().Eq(5)
		})
	}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	conjuncts, ok := DNF(f.Root(), 0)
	if !ok {
		t.Fatal("plain or should have a DNF")
	}
	if len(conjuncts) != 2 || len(conjuncts[0]) != 1 || len(conjuncts[1]) != 1 {
		t.Fatalf("conjuncts = %v", conjuncts)
	}
}

func TestDNFDistributesAndOverOr(t *testing.T) {
	// a AND (b OR c) -> (a AND b) OR (a AND c)
	f, err := New().Transaction(func(tx *TxScope) {
		tx.From().Eq("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		tx.Or(func(tx *TxScope) {
			tx.Value().Gt(big.NewInt(1))
			tx.Nonce().Eq(1)
		})
	}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	conjuncts, ok := DNF(f.Root(), 0)
	if !ok {
		t.Fatal("expected a DNF")
	}
	if len(conjuncts) != 2 {
		t.Fatalf("len = %d, want 2", len(conjuncts))
	}
	for _, c := range conjuncts {
		if len(c) != 2 {
			t.Fatalf("conjunct size = %d, want 2", len(c))
		}
		if c[0].Path != "from" {
			t.Fatalf("distributed literal missing, got %q", c[0].Path)
		}
	}
}

func TestDNFBailsOnNegation(t *testing.T) {
	f, err := New().Transaction(func(tx *TxScope) {
		tx.Not(func(tx *TxScope) {
			tx.Value().Gt(big.NewInt(1))
		})
	}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := DNF(f.Root(), 0); ok {
		t.Fatal("negation has no positive DNF")
	}
}

func TestDNFBlowupLimit(t *testing.T) {
	// Three OR-pairs AND-ed: 2^3 = 8 conjuncts; a limit of 4 must bail.
	f, err := New().Transaction(func(tx *TxScope) {
		for i := 0; i < 3; i++ {
			n := uint64(i)
			tx.Or(func(tx *TxScope) {
				tx.Nonce().Eq(n)
				tx.Gas().Eq(n)
			})
		}
	}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if conjuncts, ok := DNF(f.Root(), 8); !ok || len(conjuncts) != 8 {
		t.Fatalf("limit 8: ok=%v len=%d, want 8 conjuncts", ok, len(conjuncts))
	}
	if _, ok := DNF(f.Root(), 4); ok {
		t.Fatal("limit 4: expected bail-out")
	}
}
