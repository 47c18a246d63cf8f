package item

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/sieveio/sieve/chain"
)

func testTx() *ConfirmedTx {
	to := MustHexToAddress("0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45")
	return &ConfirmedTx{
		Chain:       chain.Ethereum,
		BlockNumber: 14839405,
		BlockHash:   MustHexToHash("0x883f974b17ca7b28cb970798d1c80f4d4bb427473dc6d39b2a7fe24edc02902d"),
		Index:       173,
		Tx: TxFields{
			Hash:           MustHexToHash("0x0e07d8b53ed3d91314c80e53cf25bcde02084939395845cbb625b029d568135c"),
			From:           MustHexToAddress("0x3cf412d970474804623bb4e3a42de13f9bca5436"),
			To:             &to,
			Value:          big.NewInt(1500),
			Nonce:          365,
			Gas:            289_282,
			MaxFeePerGas:   big.NewInt(34_313_394_344),
			MaxPriorityFee: big.NewInt(1_500_000_000),
			Type:           2,
			ChainID:        1,
		},
	}
}

func TestResolveRawTxFields(t *testing.T) {
	tx := testTx()

	cases := []struct {
		path string
		want Value
	}{
		{"value", U256(big.NewInt(1500))},
		{"nonce", U64(365)},
		{"gas", U64(289_282)},
		{"type", U64(2)},
		{"chain_id", U64(1)},
		{"block_number", U64(14839405)},
		{"index", U64(173)},
	}
	for _, tc := range cases {
		got := Resolve(tx, tc.path)
		if !got.Equal(tc.want) {
			t.Errorf("Resolve(%q) = %+v, want %+v", tc.path, got, tc.want)
		}
	}

	from := Resolve(tx, "from")
	if from.Text() != "3cf412d970474804623bb4e3a42de13f9bca5436" {
		t.Errorf("from = %q", from.Text())
	}
}

func TestResolveDerivedEffectiveGasPrice(t *testing.T) {
	tx := testTx()

	// EIP-1559 tx without a legacy gas price: fee cap is the effective price.
	got := Resolve(tx, "effective_gas_price")
	if !got.Equal(U256(big.NewInt(34_313_394_344))) {
		t.Fatalf("effective_gas_price = %+v", got)
	}

	tx.Tx.GasPrice = big.NewInt(21_000_000_000)
	got = Resolve(tx, "effective_gas_price")
	if !got.Equal(U256(big.NewInt(21_000_000_000))) {
		t.Fatalf("effective_gas_price with legacy price = %+v", got)
	}
}

func TestResolveAbsentTo(t *testing.T) {
	tx := testTx()
	tx.Tx.To = nil

	if got := Resolve(tx, "to"); !got.IsAbsent() {
		t.Fatalf("to on a contract creation should be absent, got %+v", got)
	}
}

func TestResolveReceiptFields(t *testing.T) {
	tx := testTx()

	if got := Resolve(tx, "receipt.status"); !got.IsAbsent() {
		t.Fatalf("receipt.status without receipt should be absent, got %+v", got)
	}

	tx.Receipt = &Receipt{Status: 1, GasUsed: 21000, EffectiveGasPrice: big.NewInt(77)}
	if got := Resolve(tx, "receipt.status"); !got.Equal(U64(1)) {
		t.Fatalf("receipt.status = %+v", got)
	}
	if got := Resolve(tx, "receipt.gas_used"); !got.Equal(U64(21000)) {
		t.Fatalf("receipt.gas_used = %+v", got)
	}
}

func TestResolveTopics(t *testing.T) {
	l := &Log{
		Chain:   chain.Ethereum,
		Address: MustHexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		Topics: []Hash{
			MustHexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
			MustHexToHash("0x0000000000000000000000003cf412d970474804623bb4e3a42de13f9bca5436"),
		},
	}

	topic0 := Resolve(l, "topics[0]")
	if topic0.Text() != "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef" {
		t.Fatalf("topics[0] = %q", topic0.Text())
	}
	if got := Resolve(l, "topics[5]"); !got.IsAbsent() {
		t.Fatalf("out-of-range topic should be absent, got %+v", got)
	}
	if got := Resolve(l, "topics"); got.Type() != TypeList || len(got.Elems()) != 2 {
		t.Fatalf("topics = %+v", got)
	}
	// contract aliases address on the log schema
	if got := Resolve(l, "contract"); got.Text() != Resolve(l, "address").Text() {
		t.Fatal("contract and address should resolve identically")
	}
}

func TestResolveDynamicFallback(t *testing.T) {
	raw := json.RawMessage(`{
		"hash": "0xabc",
		"l1BlockNumber": "0xf4240",
		"l1TxOrigin": "0x3cf412d970474804623bb4e3a42de13f9bca5436",
		"queueIndex": "0x5",
		"batch": {"index": 42}
	}`)
	tx := &PendingTx{Chain: chain.Optimism, Tx: TxFields{Raw: raw}, FirstSeen: time.Unix(1700000000, 0)}

	// camelCase direct hit
	if got := Resolve(tx, "l1BlockNumber"); !got.Equal(U64(1_000_000)) {
		t.Fatalf("l1BlockNumber = %+v", got)
	}
	// snake_case resolved through its camelCase variant
	if got := Resolve(tx, "l1_block_number"); !got.Equal(U64(1_000_000)) {
		t.Fatalf("l1_block_number = %+v", got)
	}
	// dotted path into a nested object
	if got := Resolve(tx, "batch.index"); !got.Equal(U64(42)) {
		t.Fatalf("batch.index = %+v", got)
	}
	if got := Resolve(tx, "no_such_field"); !got.IsAbsent() {
		t.Fatalf("unknown dynamic field should be absent, got %+v", got)
	}
}

func TestFieldTypeSchema(t *testing.T) {
	cases := []struct {
		kind Kind
		path string
		want Type
		ok   bool
	}{
		{KindConfirmedTx, "value", TypeU256, true},
		{KindConfirmedTx, "nonce", TypeU64, true},
		{KindConfirmedTx, "from", TypeBytes, true},
		{KindConfirmedTx, "receipt.status", TypeU64, true},
		{KindPendingTx, "first_seen", TypeU64, true},
		{KindPendingTx, "block_number", TypeAbsent, false},
		{KindHeader, "gas_used", TypeU64, true},
		{KindHeader, "value", TypeAbsent, false},
		{KindLog, "topics[2]", TypeBytes, true},
		{KindLog, "topics", TypeList, true},
		{KindConfirmedTx, "l1BlockNumber", TypeAbsent, false},
	}
	for _, tc := range cases {
		got, ok := FieldType(tc.kind, tc.path)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("FieldType(%v, %q) = (%v, %v), want (%v, %v)", tc.kind, tc.path, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDedupKeys(t *testing.T) {
	tx := testTx()
	pending := &PendingTx{Chain: chain.Ethereum, Tx: tx.Tx}

	if tx.DedupKey() == pending.DedupKey() {
		t.Fatal("confirmed and pending keys share a hash but must not collide across kinds via the per-kind rings; keys should still differ")
	}

	// Re-inclusion after a reorg produces a new confirmed key.
	moved := *tx
	moved.BlockHash = MustHexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	if tx.DedupKey() == moved.DedupKey() {
		t.Fatal("re-included transaction should have a distinct dedup key")
	}
}
