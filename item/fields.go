package item

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/internal/hexutil"
)

// Field paths are dotted, lower snake_case: "value", "gas_price",
// "topics[0]", "receipt.status". Three accessor classes exist:
//
//   - raw: direct reads from the parsed payload (the tables below);
//   - derived: cheap arithmetic over raw ("effective_gas_price");
//   - decoded: ABI work ("input.method", "input.<param>", "params.<arg>"),
//     resolved by the evaluator through the decoder, never here.
//
// Paths not in the static tables fall back to a heuristic lookup over the
// item's raw JSON payload: exact name, camelCase, then the per-chain alias
// table. An unresolvable path yields Absent.

// DecodedPrefix reports whether the path requires ABI decoding.
func DecodedPrefix(path string) bool {
	return path == "input.method" ||
		strings.HasPrefix(path, "input.") ||
		strings.HasPrefix(path, "params.")
}

var headerFields = map[string]Type{
	"number":            TypeU64,
	"hash":              TypeBytes,
	"parent_hash":       TypeBytes,
	"timestamp":         TypeU64,
	"gas_used":          TypeU64,
	"gas_limit":         TypeU64,
	"base_fee":          TypeU256,
	"miner":             TypeBytes,
	"state_root":        TypeBytes,
	"receipts_root":     TypeBytes,
	"transactions_root": TypeBytes,
	"transaction_count": TypeU64,
	"size":              TypeU64,
}

var txFields = map[string]Type{
	"value":               TypeU256,
	"gas_price":           TypeU256,
	"max_fee_per_gas":     TypeU256,
	"max_priority_fee":    TypeU256,
	"effective_gas_price": TypeU256,
	"nonce":               TypeU64,
	"gas":                 TypeU64,
	"type":                TypeU64,
	"chain_id":            TypeU64,
	"from":                TypeBytes,
	"to":                  TypeBytes,
	"hash":                TypeBytes,
	"input":               TypeBytes,
	"access_list":         TypeList,
}

var confirmedTxFields = map[string]Type{
	"block_number":                TypeU64,
	"block_hash":                  TypeBytes,
	"index":                       TypeU64,
	"receipt.status":              TypeU64,
	"receipt.gas_used":            TypeU64,
	"receipt.effective_gas_price": TypeU256,
	"receipt.contract_address":    TypeBytes,
}

var pendingTxFields = map[string]Type{
	"first_seen": TypeU64,
}

var logFields = map[string]Type{
	"address":      TypeBytes,
	"contract":     TypeBytes,
	"topics":       TypeList,
	"data":         TypeBytes,
	"log_index":    TypeU64,
	"block_number": TypeU64,
	"block_hash":   TypeBytes,
	"tx_hash":      TypeBytes,
	"tx_index":     TypeU64,
}

// FieldType returns the declared type of a static path for the given kind.
// ok is false for decoded paths, "topics[i]" beyond the table, and paths
// only resolvable dynamically.
func FieldType(kind Kind, path string) (Type, bool) {
	if _, isTopic := topicIndex(path); isTopic {
		if kind == KindLog {
			return TypeBytes, true
		}
		return TypeAbsent, false
	}
	switch kind {
	case KindHeader:
		t, ok := headerFields[path]
		return t, ok
	case KindConfirmedTx:
		if t, ok := txFields[path]; ok {
			return t, ok
		}
		t, ok := confirmedTxFields[path]
		return t, ok
	case KindPendingTx:
		if t, ok := txFields[path]; ok {
			return t, ok
		}
		t, ok := pendingTxFields[path]
		return t, ok
	case KindLog:
		t, ok := logFields[path]
		return t, ok
	}
	return TypeAbsent, false
}

// Resolve reads a raw or derived field from the item. Decoded paths and
// unknown statics fall through to the dynamic JSON lookup; a miss there
// yields Absent.
func Resolve(it Item, path string) Value {
	if DecodedPrefix(path) {
		return Absent
	}
	switch v := it.(type) {
	case *Header:
		if val, ok := resolveHeader(v, path); ok {
			return val
		}
	case *ConfirmedTx:
		if val, ok := resolveTx(&v.Tx, path); ok {
			return val
		}
		if val, ok := resolveConfirmed(v, path); ok {
			return val
		}
	case *PendingTx:
		if val, ok := resolveTx(&v.Tx, path); ok {
			return val
		}
		if path == "first_seen" {
			return U64(uint64(v.FirstSeen.Unix()))
		}
	case *Log:
		if val, ok := resolveLog(v, path); ok {
			return val
		}
	case *ReorgMarker:
		switch path {
		case "from_number":
			return U64(v.FromNumber)
		case "to_number":
			return U64(v.ToNumber)
		}
		return Absent
	}
	return resolveDynamic(it, path)
}

func resolveHeader(h *Header, path string) (Value, bool) {
	switch path {
	case "number":
		return U64(h.Number), true
	case "hash":
		return Bytes(h.Hash[:]), true
	case "parent_hash":
		return Bytes(h.ParentHash[:]), true
	case "timestamp":
		return U64(h.Timestamp), true
	case "gas_used":
		return U64(h.GasUsed), true
	case "gas_limit":
		return U64(h.GasLimit), true
	case "base_fee":
		return U256(h.BaseFee), true
	case "miner":
		return Bytes(h.Miner[:]), true
	case "state_root":
		return Bytes(h.StateRoot[:]), true
	case "receipts_root":
		return Bytes(h.ReceiptsRoot[:]), true
	case "transactions_root":
		return Bytes(h.TransactionsRoot[:]), true
	case "transaction_count":
		return U64(h.TransactionCount), true
	case "size":
		return U64(h.Size), true
	}
	return Absent, false
}

func resolveTx(t *TxFields, path string) (Value, bool) {
	switch path {
	case "value":
		return U256(t.Value), true
	case "gas_price":
		return U256(t.GasPrice), true
	case "max_fee_per_gas":
		return U256(t.MaxFeePerGas), true
	case "max_priority_fee":
		return U256(t.MaxPriorityFee), true
	case "effective_gas_price":
		return U256(t.EffectiveGasPrice()), true
	case "nonce":
		return U64(t.Nonce), true
	case "gas":
		return U64(t.Gas), true
	case "type":
		return U64(uint64(t.Type)), true
	case "chain_id":
		return U64(t.ChainID), true
	case "from":
		return Bytes(t.From[:]), true
	case "to":
		if t.To == nil {
			return Absent, true
		}
		return Bytes(t.To[:]), true
	case "hash":
		return Bytes(t.Hash[:]), true
	case "input":
		return Bytes(t.Input), true
	case "access_list":
		elems := make([]Value, len(t.AccessList))
		for i, at := range t.AccessList {
			elems[i] = Bytes(at.Address[:])
		}
		return List(elems...), true
	}
	return Absent, false
}

func resolveConfirmed(t *ConfirmedTx, path string) (Value, bool) {
	switch path {
	case "block_number":
		return U64(t.BlockNumber), true
	case "block_hash":
		return Bytes(t.BlockHash[:]), true
	case "index":
		return U64(t.Index), true
	}
	if strings.HasPrefix(path, "receipt.") {
		if t.Receipt == nil {
			return Absent, true
		}
		switch path {
		case "receipt.status":
			return U64(t.Receipt.Status), true
		case "receipt.gas_used":
			return U64(t.Receipt.GasUsed), true
		case "receipt.effective_gas_price":
			return U256(t.Receipt.EffectiveGasPrice), true
		case "receipt.contract_address":
			if t.Receipt.ContractAddress == nil {
				return Absent, true
			}
			return Bytes(t.Receipt.ContractAddress[:]), true
		}
		return Absent, true
	}
	return Absent, false
}

func resolveLog(l *Log, path string) (Value, bool) {
	if idx, ok := topicIndex(path); ok {
		if idx < len(l.Topics) {
			return Bytes(l.Topics[idx][:]), true
		}
		return Absent, true
	}
	switch path {
	case "address", "contract":
		return Bytes(l.Address[:]), true
	case "topics":
		elems := make([]Value, len(l.Topics))
		for i, t := range l.Topics {
			elems[i] = Bytes(t[:])
		}
		return List(elems...), true
	case "data":
		return Bytes(l.Data), true
	case "log_index":
		return U64(l.LogIndex), true
	case "block_number":
		return U64(l.BlockNumber), true
	case "block_hash":
		return Bytes(l.BlockHash[:]), true
	case "tx_hash":
		return Bytes(l.TxHash[:]), true
	case "tx_index":
		return U64(l.TxIndex), true
	}
	return Absent, false
}

func topicIndex(path string) (int, bool) {
	if !strings.HasPrefix(path, "topics[") || !strings.HasSuffix(path, "]") {
		return 0, false
	}
	idx, err := strconv.Atoi(path[len("topics[") : len(path)-1])
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// chainAliases maps canonical dynamic field names to the JSON key a chain
// actually serves them under.
var chainAliases = map[chain.Chain]map[string]string{
	chain.Optimism: {
		"l1_block_number":     "l1BlockNumber",
		"l1_tx_origin":        "l1TxOrigin",
		"queue_index":         "queueIndex",
		"sequence_number":     "sequenceNumber",
		"prev_total_elements": "prevTotalElements",
	},
	chain.Base: {
		"l1_block_number": "l1BlockNumber",
		"l1_tx_origin":    "l1TxOrigin",
		"sequence_number": "sequenceNumber",
	},
}

// resolveDynamic walks the raw JSON payload by dotted path, trying the
// exact key, a camelCase variant and the per-chain alias at each level.
func resolveDynamic(it Item, path string) Value {
	raw := it.RawJSON()
	if len(raw) == 0 {
		return Absent
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return Absent
	}
	aliases := chainAliases[it.ItemChain()]

	current := root
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return Absent
		}
		next, ok := lookupKey(obj, part, aliases)
		if !ok {
			return Absent
		}
		current = next
	}
	return jsonValue(current)
}

func lookupKey(obj map[string]any, key string, aliases map[string]string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	if v, ok := obj[toCamel(key)]; ok {
		return v, true
	}
	if alias, ok := aliases[key]; ok {
		if v, ok := obj[alias]; ok {
			return v, true
		}
	}
	// The key may already be camelCase with a snake_case payload.
	if v, ok := obj[toSnake(key)]; ok {
		return v, true
	}
	return nil, false
}

func toCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func toSnake(s string) string {
	var b strings.Builder
	for i, c := range s {
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(c - 'A' + 'a')
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// jsonValue converts a decoded JSON scalar into a Value. Hex strings of at
// most 16 digits that parse as quantities become u64; longer hex strings
// become bytes and are never read as u256.
func jsonValue(v any) Value {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "0x") || strings.HasPrefix(val, "0X") {
			digits := val[2:]
			if len(digits) <= 16 {
				if n, err := hexutil.DecodeUint64(val); err == nil {
					return U64(n)
				}
			}
			if b, err := hexutil.Decode(val); err == nil {
				return Bytes(b)
			}
		}
		return String(val)
	case float64:
		if val >= 0 && val == float64(uint64(val)) {
			return U64(uint64(val))
		}
		return Absent
	case bool:
		if val {
			return String("true")
		}
		return String("false")
	case []any:
		elems := make([]Value, 0, len(val))
		for _, e := range val {
			elems = append(elems, jsonValue(e))
		}
		return List(elems...)
	default:
		return Absent
	}
}
