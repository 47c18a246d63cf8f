package eval

import (
	"math/big"
	"testing"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/decoder"
	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/item"
)

func confirmedTx(value, gasPrice int64, nonce uint64) *item.ConfirmedTx {
	from := item.MustHexToAddress("0x3cf412d970474804623bb4e3a42de13f9bca5436")
	to := item.MustHexToAddress("0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45")
	return &item.ConfirmedTx{
		Chain:       chain.Ethereum,
		BlockNumber: 100,
		Index:       1,
		Tx: item.TxFields{
			Hash:     item.MustHexToHash("0x0e07d8b53ed3d91314c80e53cf25bcde02084939395845cbb625b029d568135c"),
			From:     from,
			To:       &to,
			Value:    big.NewInt(value),
			GasPrice: big.NewInt(gasPrice),
			Nonce:    nonce,
		},
	}
}

func header(number, gasUsed uint64) *item.Header {
	return &item.Header{
		Chain:   chain.Ethereum,
		Number:  number,
		Hash:    item.MustHexToHash("0x01"),
		GasUsed: gasUsed,
	}
}

func mustBuild(t *testing.T, b *filter.Builder) *filter.Filter {
	t.Helper()
	f, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return f
}

// Scenario: value > 1000 AND gas_price < 50000.
func TestAndShortCircuit(t *testing.T) {
	ev := New(nil)
	f := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Value().Gt(big.NewInt(1000))
		tx.GasPrice().Lt(big.NewInt(50_000))
	}))

	if !ev.Match(f, confirmedTx(1500, 20_000, 0)) {
		t.Fatal("1500/20000 should match")
	}
	if ev.Match(f, confirmedTx(1500, 60_000, 0)) {
		t.Fatal("1500/60000 should not match")
	}
	if ev.Match(f, confirmedTx(500, 20_000, 0)) {
		t.Fatal("500/20000 should not match")
	}
}

// Scenario: or { value > 1000; gas_price < 50000; nonce == 5 }.
func TestOrMatchesViaAnyBranch(t *testing.T) {
	ev := New(nil)
	f := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Or(func(tx *filter.TxScope) {
			tx.Value().Gt(big.NewInt(1000))
			tx.GasPrice().Lt(big.NewInt(50_000))
			tx.Nonce().Eq(5)
		})
	}))

	if !ev.Match(f, confirmedTx(10, 100_000, 5)) {
		t.Fatal("should match via nonce")
	}
	if ev.Match(f, confirmedTx(10, 100_000, 4)) {
		t.Fatal("no branch true, should not match")
	}
}

// Scenario: xor { number > 1_000_000; gas_used < 100_000 }.
func TestXorExactlyOne(t *testing.T) {
	ev := New(nil)
	f := mustBuild(t, filter.New().BlockHeader(func(h *filter.HeaderScope) {
		h.Xor(func(h *filter.HeaderScope) {
			h.Number().Gt(1_000_000)
			h.GasUsed().Lt(100_000)
		})
	}))

	if ev.Match(f, header(2_000_000, 50_000)) {
		t.Fatal("both true: xor should fail")
	}
	if !ev.Match(f, header(2_000_000, 200_000)) {
		t.Fatal("exactly one true: xor should match")
	}
	if ev.Match(f, header(500_000, 200_000)) {
		t.Fatal("none true: xor should fail")
	}
}

// Scenario: not { to == A }, absent to field matches.
func TestNotWithAbsentField(t *testing.T) {
	ev := New(nil)
	f := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Not(func(tx *filter.TxScope) {
			tx.To().Exact("0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45")
		})
	}))

	if ev.Match(f, confirmedTx(1, 1, 0)) {
		t.Fatal("to == operand: negation should fail")
	}

	other := confirmedTx(1, 1, 0)
	alt := item.MustHexToAddress("0x1111111111111111111111111111111111111111")
	other.Tx.To = &alt
	if !ev.Match(f, other) {
		t.Fatal("to != operand: negation should match")
	}

	creation := confirmedTx(1, 1, 0)
	creation.Tx.To = nil
	if !ev.Match(f, creation) {
		t.Fatal("absent to: inner predicate false, negation should match")
	}
}

func TestAbsentNePolicy(t *testing.T) {
	ev := New(nil)
	ne := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.To().Ne("0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45")
	}))
	eq := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.To().Eq("0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45")
	}))

	creation := confirmedTx(1, 1, 0)
	creation.Tx.To = nil
	if !ev.Match(ne, creation) {
		t.Fatal("absent field under ne evaluates true")
	}
	if ev.Match(eq, creation) {
		t.Fatal("absent field under eq evaluates false")
	}
}

// Boolean algebra laws over generated inputs.
func TestEvaluatorLaws(t *testing.T) {
	ev := New(nil)

	items := []item.Item{
		confirmedTx(1500, 20_000, 5),
		confirmedTx(10, 100_000, 5),
		confirmedTx(2000, 60_000, 0),
		confirmedTx(0, 0, 0),
	}

	a := func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(1000)) }
	b := func(tx *filter.TxScope) { tx.GasPrice().Lt(big.NewInt(50_000)) }

	notNotA := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Not(func(tx *filter.TxScope) { tx.Not(a) })
	}))
	plainA := mustBuild(t, filter.New().Transaction(a))

	andAB := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) { a(tx); b(tx) }))
	andBA := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) { b(tx); a(tx) }))

	orAB := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Or(func(tx *filter.TxScope) { a(tx); b(tx) })
	}))
	orBA := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Or(func(tx *filter.TxScope) { b(tx); a(tx) })
	}))

	// De Morgan: not(a AND b) == (not a) OR (not b)
	notAnd := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Not(func(tx *filter.TxScope) { a(tx); b(tx) })
	}))
	orNots := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Or(func(tx *filter.TxScope) {
			tx.Not(a)
			tx.Not(b)
		})
	}))

	for i, it := range items {
		if ev.Match(notNotA, it) != ev.Match(plainA, it) {
			t.Errorf("item %d: double negation violated", i)
		}
		if ev.Match(andAB, it) != ev.Match(andBA, it) {
			t.Errorf("item %d: and commutativity violated", i)
		}
		if ev.Match(orAB, it) != ev.Match(orBA, it) {
			t.Errorf("item %d: or commutativity violated", i)
		}
		if ev.Match(notAnd, it) != ev.Match(orNots, it) {
			t.Errorf("item %d: De Morgan violated", i)
		}
	}
}

func TestChainAndKindMismatch(t *testing.T) {
	ev := New(nil)
	f := mustBuild(t, filter.New().Chain(chain.Optimism).Transaction(func(tx *filter.TxScope) {
		tx.Value().Gt(big.NewInt(0))
	}))

	if ev.Match(f, confirmedTx(100, 1, 0)) {
		t.Fatal("ethereum item must not match an optimism filter")
	}

	ethF := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Value().Gt(big.NewInt(0))
	}))
	if ev.Match(ethF, header(1, 1)) {
		t.Fatal("header must not match a transaction filter")
	}
}

// Decode laziness: a filter with no decoded fields must never populate the
// decode cache.
func TestDecodeLaziness(t *testing.T) {
	dec := decoder.NewABIDecoder()
	if err := dec.RegisterFunction("transfer(address to,uint256 value)"); err != nil {
		t.Fatalf("register: %v", err)
	}
	ev := New(dec)

	f := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		tx.Value().Gt(big.NewInt(0))
	}))

	tx := confirmedTx(100, 1, 0)
	tx.Tx.Input = transferCalldata()
	if !ev.Match(f, tx) {
		t.Fatal("expected match")
	}
	if n := ev.CacheLen(chain.Ethereum); n != 0 {
		t.Fatalf("decode cache has %d entries for a raw-only filter", n)
	}
}

func TestDecodedCalldataPredicate(t *testing.T) {
	dec := decoder.NewABIDecoder()
	if err := dec.RegisterFunction("transfer(address to,uint256 value)"); err != nil {
		t.Fatalf("register: %v", err)
	}
	ev := New(dec)

	f := mustBuild(t, filter.New().Transaction(func(tx *filter.TxScope) {
		call := tx.Calldata("transfer(address to,uint256 value)")
		call.Method().Exact("transfer")
		call.Param("value").Gt(big.NewInt(500))
	}))

	tx := confirmedTx(0, 1, 0)
	tx.Tx.Input = transferCalldata()
	if !ev.Match(f, tx) {
		t.Fatal("decoded calldata should match")
	}
	if n := ev.CacheLen(chain.Ethereum); n == 0 {
		t.Fatal("decode result should be cached")
	}

	// Second evaluation hits the cache; the result is unchanged.
	if !ev.Match(f, tx) {
		t.Fatal("cached evaluation should match")
	}
}

func TestDecodedLogParameterPredicate(t *testing.T) {
	sig := "Transfer(address indexed from,address indexed to,uint256 value)"
	dec := decoder.NewABIDecoder()
	if err := dec.RegisterEvent(sig); err != nil {
		t.Fatalf("register: %v", err)
	}
	ev := New(dec)

	f := mustBuild(t, filter.New().Event(func(e *filter.EventScope) {
		e.Signature(sig).Param("value").Gt(big.NewInt(100))
	}))

	l := transferLog(big.NewInt(1000))
	if !ev.Match(f, l) {
		t.Fatal("log with value 1000 should match")
	}

	small := transferLog(big.NewInt(50))
	small.LogIndex = 7
	if ev.Match(f, small) {
		t.Fatal("log with value 50 should not match")
	}
}

// transferCalldata encodes transfer(0x68b3...fc45, 1000).
func transferCalldata() []byte {
	sel := decoder.Selector("transfer(address,uint256)")
	data := make([]byte, 4+64)
	copy(data[:4], sel[:])
	to := item.MustHexToAddress("0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45")
	copy(data[4+12:4+32], to[:])
	big.NewInt(1000).FillBytes(data[4+32 : 4+64])
	return data
}

func transferLog(value *big.Int) *item.Log {
	sig := decoder.SignatureHash("Transfer(address,address,uint256)")
	data := make([]byte, 32)
	value.FillBytes(data)
	return &item.Log{
		Chain:  chain.Ethereum,
		TxHash: item.MustHexToHash("0xaaaa"),
		Topics: []item.Hash{
			sig,
			item.MustHexToHash("0x0000000000000000000000003cf412d970474804623bb4e3a42de13f9bca5436"),
			item.MustHexToHash("0x00000000000000000000000068b3465833fb72a70ecdf485e0e4c7bd8665fc45"),
		},
		Data: data,
	}
}
