package filter

import (
	"fmt"
	"math/big"

	"github.com/sieveio/sieve/item"
)

// Field handles. Each wraps the owning group and appends a predicate when a
// comparison method is called; the declared field type fixes which
// comparison methods exist, so most type errors are impossible to write.

// U64Field is a 64-bit unsigned numeric field.
type U64Field struct {
	g    *group
	path string
}

func (f U64Field) Eq(v uint64)  { f.g.add(Predicate{Path: f.path, Op: CmpEq, Operand: item.U64(v)}) }
func (f U64Field) Ne(v uint64)  { f.g.add(Predicate{Path: f.path, Op: CmpNe, Operand: item.U64(v)}) }
func (f U64Field) Gt(v uint64)  { f.g.add(Predicate{Path: f.path, Op: CmpGt, Operand: item.U64(v)}) }
func (f U64Field) Gte(v uint64) { f.g.add(Predicate{Path: f.path, Op: CmpGe, Operand: item.U64(v)}) }
func (f U64Field) Lt(v uint64)  { f.g.add(Predicate{Path: f.path, Op: CmpLt, Operand: item.U64(v)}) }
func (f U64Field) Lte(v uint64) { f.g.add(Predicate{Path: f.path, Op: CmpLe, Operand: item.U64(v)}) }
func (f U64Field) Between(lo, hi uint64) {
	f.g.add(Predicate{Path: f.path, Op: CmpBetween, Operand: item.U64(lo), Hi: item.U64(hi)})
}

// U256Field is a 256-bit unsigned numeric field.
type U256Field struct {
	g    *group
	path string
}

func (f U256Field) Eq(v *big.Int)  { f.g.add(Predicate{Path: f.path, Op: CmpEq, Operand: item.U256(v)}) }
func (f U256Field) Ne(v *big.Int)  { f.g.add(Predicate{Path: f.path, Op: CmpNe, Operand: item.U256(v)}) }
func (f U256Field) Gt(v *big.Int)  { f.g.add(Predicate{Path: f.path, Op: CmpGt, Operand: item.U256(v)}) }
func (f U256Field) Gte(v *big.Int) { f.g.add(Predicate{Path: f.path, Op: CmpGe, Operand: item.U256(v)}) }
func (f U256Field) Lt(v *big.Int)  { f.g.add(Predicate{Path: f.path, Op: CmpLt, Operand: item.U256(v)}) }
func (f U256Field) Lte(v *big.Int) { f.g.add(Predicate{Path: f.path, Op: CmpLe, Operand: item.U256(v)}) }
func (f U256Field) Between(lo, hi *big.Int) {
	f.g.add(Predicate{Path: f.path, Op: CmpBetween, Operand: item.U256(lo), Hi: item.U256(hi)})
}

// TextField is an address, hash, byte-string or string field. Comparisons
// against byte values use the lower-cased unprefixed hex form.
type TextField struct {
	g    *group
	path string
	sig  string
}

func (f TextField) pred(op Cmp, v string) {
	f.g.add(Predicate{Path: f.path, Op: op, Operand: item.String(item.NormalizeText(v)), Signature: f.sig})
}

func (f TextField) Eq(v string)         { f.pred(CmpEq, v) }
func (f TextField) Ne(v string)         { f.pred(CmpNe, v) }
func (f TextField) Exact(v string)      { f.pred(CmpExact, v) }
func (f TextField) StartsWith(v string) { f.pred(CmpStartsWith, v) }
func (f TextField) EndsWith(v string)   { f.pred(CmpEndsWith, v) }
func (f TextField) Contains(v string)   { f.pred(CmpContains, v) }

// Matches adds a regular-expression predicate; the pattern is compiled at
// build time and an invalid pattern fails Build.
func (f TextField) Matches(pattern string) {
	f.g.add(Predicate{Path: f.path, Op: CmpMatches, Operand: item.String(pattern), Signature: f.sig})
}

// ListField is a list-valued field (topics, access list).
type ListField struct {
	g    *group
	path string
}

func (f ListField) Contains(v string) {
	f.g.add(Predicate{Path: f.path, Op: CmpContains, Operand: item.String(item.NormalizeText(v))})
}

func (f ListField) NotIn(vs ...string) {
	elems := make([]item.Value, len(vs))
	for i, v := range vs {
		elems[i] = item.String(item.NormalizeText(v))
	}
	f.g.add(Predicate{Path: f.path, Op: CmpNotIn, Operand: item.List(elems...)})
}

func (f ListField) Empty()    { f.g.add(Predicate{Path: f.path, Op: CmpEmpty}) }
func (f ListField) NotEmpty() { f.g.add(Predicate{Path: f.path, Op: CmpNotEmpty}) }

// DynField is a dynamically addressed field; the operand type is taken from
// the method used and checked against the payload at evaluation time.
type DynField struct {
	g    *group
	path string
	sig  string
}

func (f DynField) pred(op Cmp, v item.Value) {
	f.g.add(Predicate{Path: f.path, Op: op, Operand: v, Signature: f.sig})
}

func (f DynField) Eq(v any)  { f.pred(CmpEq, dynOperand(f.g, f.path, v)) }
func (f DynField) Ne(v any)  { f.pred(CmpNe, dynOperand(f.g, f.path, v)) }
func (f DynField) Gt(v any)  { f.pred(CmpGt, dynOperand(f.g, f.path, v)) }
func (f DynField) Gte(v any) { f.pred(CmpGe, dynOperand(f.g, f.path, v)) }
func (f DynField) Lt(v any)  { f.pred(CmpLt, dynOperand(f.g, f.path, v)) }
func (f DynField) Lte(v any) { f.pred(CmpLe, dynOperand(f.g, f.path, v)) }
func (f DynField) Between(lo, hi any) {
	f.g.add(Predicate{
		Path:      f.path,
		Op:        CmpBetween,
		Operand:   dynOperand(f.g, f.path, lo),
		Hi:        dynOperand(f.g, f.path, hi),
		Signature: f.sig,
	})
}
func (f DynField) Exact(v string)      { f.pred(CmpExact, item.String(item.NormalizeText(v))) }
func (f DynField) StartsWith(v string) { f.pred(CmpStartsWith, item.String(item.NormalizeText(v))) }
func (f DynField) EndsWith(v string)   { f.pred(CmpEndsWith, item.String(item.NormalizeText(v))) }
func (f DynField) Contains(v string)   { f.pred(CmpContains, item.String(item.NormalizeText(v))) }
func (f DynField) Matches(p string)    { f.pred(CmpMatches, item.String(p)) }

func dynOperand(g *group, path string, v any) item.Value {
	switch n := v.(type) {
	case uint64:
		return item.U64(n)
	case int:
		if n >= 0 {
			return item.U64(uint64(n))
		}
	case *big.Int:
		return item.U256(n)
	case string:
		return item.String(item.NormalizeText(n))
	}
	g.sink.add(fmt.Errorf("filter: unsupported operand %T for field %q", v, path))
	return item.Absent
}

// ===== Transaction scope =====

// TxScope declares conditions over confirmed transactions.
type TxScope struct {
	g *group
}

func (s *TxScope) Value() U256Field             { return U256Field{s.g, "value"} }
func (s *TxScope) GasPrice() U256Field          { return U256Field{s.g, "gas_price"} }
func (s *TxScope) MaxFeePerGas() U256Field      { return U256Field{s.g, "max_fee_per_gas"} }
func (s *TxScope) MaxPriorityFee() U256Field    { return U256Field{s.g, "max_priority_fee"} }
func (s *TxScope) EffectiveGasPrice() U256Field { return U256Field{s.g, "effective_gas_price"} }
func (s *TxScope) Nonce() U64Field              { return U64Field{s.g, "nonce"} }
func (s *TxScope) Gas() U64Field                { return U64Field{s.g, "gas"} }
func (s *TxScope) TxType() U64Field             { return U64Field{s.g, "type"} }
func (s *TxScope) ChainID() U64Field            { return U64Field{s.g, "chain_id"} }
func (s *TxScope) BlockNumber() U64Field        { return U64Field{s.g, "block_number"} }
func (s *TxScope) Index() U64Field              { return U64Field{s.g, "index"} }
func (s *TxScope) From() TextField              { return TextField{g: s.g, path: "from"} }
func (s *TxScope) To() TextField                { return TextField{g: s.g, path: "to"} }
func (s *TxScope) Hash() TextField              { return TextField{g: s.g, path: "hash"} }
func (s *TxScope) BlockHash() TextField         { return TextField{g: s.g, path: "block_hash"} }
func (s *TxScope) AccessList() ListField        { return ListField{s.g, "access_list"} }

// Field addresses a chain-specific or future field by raw path.
func (s *TxScope) Field(path string) DynField { return DynField{g: s.g, path: path} }

// Receipt opens the receipt fields; referencing any of them makes the
// pipeline fetch receipts on demand for this filter's chain.
func (s *TxScope) Receipt() ReceiptScope { return ReceiptScope{g: s.g} }

// Calldata scopes decoded calldata predicates under a function signature,
// e.g. "transfer(address to,uint256 value)".
func (s *TxScope) Calldata(signature string) CalldataScope {
	return CalldataScope{g: s.g, sig: signature}
}

func (s *TxScope) And(fn func(*TxScope))   { s.g.combine(OpAnd, func(g *group) { fn(&TxScope{g: g}) }) }
func (s *TxScope) AllOf(fn func(*TxScope)) { s.And(fn) }
func (s *TxScope) Or(fn func(*TxScope))    { s.g.combine(OpOr, func(g *group) { fn(&TxScope{g: g}) }) }
func (s *TxScope) AnyOf(fn func(*TxScope)) { s.Or(fn) }
func (s *TxScope) Not(fn func(*TxScope))   { s.g.combine(OpNot, func(g *group) { fn(&TxScope{g: g}) }) }
func (s *TxScope) Unless(fn func(*TxScope)) { s.Not(fn) }
func (s *TxScope) Xor(fn func(*TxScope))   { s.g.combine(OpXor, func(g *group) { fn(&TxScope{g: g}) }) }

// ReceiptScope declares conditions over the transaction receipt.
type ReceiptScope struct {
	g *group
}

func (s ReceiptScope) Status() U64Field             { return U64Field{s.g, "receipt.status"} }
func (s ReceiptScope) GasUsed() U64Field            { return U64Field{s.g, "receipt.gas_used"} }
func (s ReceiptScope) EffectiveGasPrice() U256Field { return U256Field{s.g, "receipt.effective_gas_price"} }
func (s ReceiptScope) ContractAddress() TextField   { return TextField{g: s.g, path: "receipt.contract_address"} }

// CalldataScope declares conditions over ABI-decoded calldata.
type CalldataScope struct {
	g   *group
	sig string
}

// Method matches the decoded function name.
func (s CalldataScope) Method() TextField {
	return TextField{g: s.g, path: "input.method", sig: s.sig}
}

// Param addresses a decoded calldata parameter by name.
func (s CalldataScope) Param(name string) DynField {
	return DynField{g: s.g, path: "input." + name, sig: s.sig}
}

// ===== Pool scope =====

// PoolScope declares conditions over pending (mempool) transactions.
type PoolScope struct {
	g *group
}

func (s *PoolScope) Value() U256Field          { return U256Field{s.g, "value"} }
func (s *PoolScope) GasPrice() U256Field       { return U256Field{s.g, "gas_price"} }
func (s *PoolScope) MaxFeePerGas() U256Field   { return U256Field{s.g, "max_fee_per_gas"} }
func (s *PoolScope) MaxPriorityFee() U256Field { return U256Field{s.g, "max_priority_fee"} }
func (s *PoolScope) Nonce() U64Field           { return U64Field{s.g, "nonce"} }
func (s *PoolScope) Gas() U64Field             { return U64Field{s.g, "gas"} }
func (s *PoolScope) FirstSeen() U64Field       { return U64Field{s.g, "first_seen"} }
func (s *PoolScope) From() TextField           { return TextField{g: s.g, path: "from"} }
func (s *PoolScope) To() TextField             { return TextField{g: s.g, path: "to"} }
func (s *PoolScope) Hash() TextField           { return TextField{g: s.g, path: "hash"} }

// Field addresses a chain-specific or future field by raw path.
func (s *PoolScope) Field(path string) DynField { return DynField{g: s.g, path: path} }

func (s *PoolScope) And(fn func(*PoolScope))    { s.g.combine(OpAnd, func(g *group) { fn(&PoolScope{g: g}) }) }
func (s *PoolScope) AllOf(fn func(*PoolScope))  { s.And(fn) }
func (s *PoolScope) Or(fn func(*PoolScope))     { s.g.combine(OpOr, func(g *group) { fn(&PoolScope{g: g}) }) }
func (s *PoolScope) AnyOf(fn func(*PoolScope))  { s.Or(fn) }
func (s *PoolScope) Not(fn func(*PoolScope))    { s.g.combine(OpNot, func(g *group) { fn(&PoolScope{g: g}) }) }
func (s *PoolScope) Unless(fn func(*PoolScope)) { s.Not(fn) }
func (s *PoolScope) Xor(fn func(*PoolScope))    { s.g.combine(OpXor, func(g *group) { fn(&PoolScope{g: g}) }) }

// ===== Event scope =====

// EventScope declares conditions over event logs.
type EventScope struct {
	g *group
}

func (s *EventScope) Contract() TextField   { return TextField{g: s.g, path: "contract"} }
func (s *EventScope) Topics() ListField     { return ListField{s.g, "topics"} }
func (s *EventScope) Topic(i int) TextField { return TextField{g: s.g, path: fmt.Sprintf("topics[%d]", i)} }
func (s *EventScope) Data() TextField       { return TextField{g: s.g, path: "data"} }
func (s *EventScope) LogIndex() U64Field    { return U64Field{s.g, "log_index"} }
func (s *EventScope) BlockNumber() U64Field { return U64Field{s.g, "block_number"} }
func (s *EventScope) TxIndex() U64Field     { return U64Field{s.g, "tx_index"} }
func (s *EventScope) TxHash() TextField     { return TextField{g: s.g, path: "tx_hash"} }
func (s *EventScope) BlockHash() TextField  { return TextField{g: s.g, path: "block_hash"} }

// Field addresses a chain-specific or future field by raw path.
func (s *EventScope) Field(path string) DynField { return DynField{g: s.g, path: path} }

// Signature scopes decoded event parameters under an event signature,
// e.g. "Transfer(address indexed from,address indexed to,uint256 value)".
func (s *EventScope) Signature(signature string) EventSigScope {
	return EventSigScope{g: s.g, sig: signature}
}

func (s *EventScope) And(fn func(*EventScope))    { s.g.combine(OpAnd, func(g *group) { fn(&EventScope{g: g}) }) }
func (s *EventScope) AllOf(fn func(*EventScope))  { s.And(fn) }
func (s *EventScope) Or(fn func(*EventScope))     { s.g.combine(OpOr, func(g *group) { fn(&EventScope{g: g}) }) }
func (s *EventScope) AnyOf(fn func(*EventScope))  { s.Or(fn) }
func (s *EventScope) Not(fn func(*EventScope))    { s.g.combine(OpNot, func(g *group) { fn(&EventScope{g: g}) }) }
func (s *EventScope) Unless(fn func(*EventScope)) { s.Not(fn) }
func (s *EventScope) Xor(fn func(*EventScope))    { s.g.combine(OpXor, func(g *group) { fn(&EventScope{g: g}) }) }

// EventSigScope declares conditions over ABI-decoded event parameters.
type EventSigScope struct {
	g   *group
	sig string
}

// Param addresses a decoded event argument by name.
func (s EventSigScope) Param(name string) DynField {
	return DynField{g: s.g, path: "params." + name, sig: s.sig}
}

// ===== Block header scope =====

// HeaderScope declares conditions over block headers.
type HeaderScope struct {
	g *group
}

func (s *HeaderScope) Number() U64Field            { return U64Field{s.g, "number"} }
func (s *HeaderScope) Timestamp() U64Field         { return U64Field{s.g, "timestamp"} }
func (s *HeaderScope) GasUsed() U64Field           { return U64Field{s.g, "gas_used"} }
func (s *HeaderScope) GasLimit() U64Field          { return U64Field{s.g, "gas_limit"} }
func (s *HeaderScope) BaseFee() U256Field          { return U256Field{s.g, "base_fee"} }
func (s *HeaderScope) TransactionCount() U64Field  { return U64Field{s.g, "transaction_count"} }
func (s *HeaderScope) Size() U64Field              { return U64Field{s.g, "size"} }
func (s *HeaderScope) Hash() TextField             { return TextField{g: s.g, path: "hash"} }
func (s *HeaderScope) ParentHash() TextField       { return TextField{g: s.g, path: "parent_hash"} }
func (s *HeaderScope) Miner() TextField            { return TextField{g: s.g, path: "miner"} }
func (s *HeaderScope) StateRoot() TextField        { return TextField{g: s.g, path: "state_root"} }
func (s *HeaderScope) ReceiptsRoot() TextField     { return TextField{g: s.g, path: "receipts_root"} }
func (s *HeaderScope) TransactionsRoot() TextField { return TextField{g: s.g, path: "transactions_root"} }

// Field addresses a chain-specific or future field by raw path.
func (s *HeaderScope) Field(path string) DynField { return DynField{g: s.g, path: path} }

func (s *HeaderScope) And(fn func(*HeaderScope))    { s.g.combine(OpAnd, func(g *group) { fn(&HeaderScope{g: g}) }) }
func (s *HeaderScope) AllOf(fn func(*HeaderScope))  { s.And(fn) }
func (s *HeaderScope) Or(fn func(*HeaderScope))     { s.g.combine(OpOr, func(g *group) { fn(&HeaderScope{g: g}) }) }
func (s *HeaderScope) AnyOf(fn func(*HeaderScope))  { s.Or(fn) }
func (s *HeaderScope) Not(fn func(*HeaderScope))    { s.g.combine(OpNot, func(g *group) { fn(&HeaderScope{g: g}) }) }
func (s *HeaderScope) Unless(fn func(*HeaderScope)) { s.Not(fn) }
func (s *HeaderScope) Xor(fn func(*HeaderScope))    { s.g.combine(OpXor, func(g *group) { fn(&HeaderScope{g: g}) }) }

// ===== Chain-specific scope =====

// DynScope declares conditions purely over dynamically addressed fields.
type DynScope struct {
	g *group
}

// Field addresses a field by raw path.
func (s *DynScope) Field(path string) DynField { return DynField{g: s.g, path: path} }

func (s *DynScope) And(fn func(*DynScope))    { s.g.combine(OpAnd, func(g *group) { fn(&DynScope{g: g}) }) }
func (s *DynScope) AllOf(fn func(*DynScope))  { s.And(fn) }
func (s *DynScope) Or(fn func(*DynScope))     { s.g.combine(OpOr, func(g *group) { fn(&DynScope{g: g}) }) }
func (s *DynScope) AnyOf(fn func(*DynScope))  { s.Or(fn) }
func (s *DynScope) Not(fn func(*DynScope))    { s.g.combine(OpNot, func(g *group) { fn(&DynScope{g: g}) }) }
func (s *DynScope) Unless(fn func(*DynScope)) { s.Not(fn) }
func (s *DynScope) Xor(fn func(*DynScope))    { s.g.combine(OpXor, func(g *group) { fn(&DynScope{g: g}) }) }
