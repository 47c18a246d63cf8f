// Package item defines the normalized data model for ingested chain data.
//
// Every unit flowing through the engine is one of the Item kinds below:
// a block header, a confirmed transaction, a pending (mempool) transaction,
// an event log, or a synthetic reorg marker. Items carry their chain tag and
// retain the raw JSON payload they were parsed from so that chain-specific
// fields can be resolved dynamically.
package item

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/sieveio/sieve/chain"
)

// Kind discriminates the item sum.
type Kind uint8

const (
	KindHeader Kind = iota
	KindConfirmedTx
	KindPendingTx
	KindLog
	KindReorg
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindConfirmedTx:
		return "confirmed_tx"
	case KindPendingTx:
		return "pending_tx"
	case KindLog:
		return "log"
	case KindReorg:
		return "reorg"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Item is one normalized unit from a chain.
type Item interface {
	// ItemKind returns the kind tag.
	ItemKind() Kind

	// ItemChain returns the chain the item was ingested from.
	ItemChain() chain.Chain

	// DedupKey returns the identity used by the recently-seen ring.
	DedupKey() string

	// Order returns the (block, index) pair items of one kind are ordered by.
	Order() (block uint64, index uint64)

	// RawJSON returns the raw RPC payload the item was parsed from, or nil.
	RawJSON() json.RawMessage
}

// Header is a block header.
type Header struct {
	Chain            chain.Chain
	Number           uint64
	Hash             Hash
	ParentHash       Hash
	Timestamp        uint64
	GasUsed          uint64
	GasLimit         uint64
	BaseFee          *big.Int // nil pre-EIP-1559
	Miner            Address
	StateRoot        Hash
	ReceiptsRoot     Hash
	TransactionsRoot Hash
	TransactionCount uint64
	Size             uint64
	Raw              json.RawMessage
}

func (h *Header) ItemKind() Kind               { return KindHeader }
func (h *Header) ItemChain() chain.Chain       { return h.Chain }
func (h *Header) DedupKey() string             { return fmt.Sprintf("%d-%s", h.Number, h.Hash.Hex()) }
func (h *Header) Order() (uint64, uint64)      { return h.Number, 0 }
func (h *Header) RawJSON() json.RawMessage     { return h.Raw }

// AccessTuple is one entry of an EIP-2930 access list.
type AccessTuple struct {
	Address     Address
	StorageKeys []Hash
}

// TxFields carries the fields shared by confirmed and pending transactions.
type TxFields struct {
	Hash           Hash
	From           Address
	To             *Address // nil for contract creation
	Value          *big.Int
	Nonce          uint64
	Gas            uint64
	GasPrice       *big.Int // legacy transactions
	MaxFeePerGas   *big.Int // EIP-1559
	MaxPriorityFee *big.Int // EIP-1559
	Type           uint8
	ChainID        uint64
	Input          []byte
	AccessList     []AccessTuple
	Raw            json.RawMessage
}

// EffectiveGasPrice returns the price actually used for fee accounting:
// the legacy gas price when present, otherwise the EIP-1559 fee cap.
func (t *TxFields) EffectiveGasPrice() *big.Int {
	if t.GasPrice != nil {
		return t.GasPrice
	}
	if t.MaxFeePerGas != nil {
		return t.MaxFeePerGas
	}
	return new(big.Int)
}

// Receipt is the execution receipt attached to a confirmed transaction on demand.
type Receipt struct {
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	ContractAddress   *Address
	Logs              []*Log
	Raw               json.RawMessage
}

// ConfirmedTx is a transaction included in a block.
type ConfirmedTx struct {
	Chain       chain.Chain
	BlockNumber uint64
	BlockHash   Hash
	Index       uint64
	Tx          TxFields
	Receipt     *Receipt // nil until fetched on demand
}

func (t *ConfirmedTx) ItemKind() Kind         { return KindConfirmedTx }
func (t *ConfirmedTx) ItemChain() chain.Chain { return t.Chain }

// DedupKey combines the tx hash with its inclusion point so the same
// transaction re-included after a reorg is emitted again.
func (t *ConfirmedTx) DedupKey() string {
	return fmt.Sprintf("%s@%s-%d", t.Tx.Hash.Hex(), t.BlockHash.Hex(), t.Index)
}

func (t *ConfirmedTx) Order() (uint64, uint64)  { return t.BlockNumber, t.Index }
func (t *ConfirmedTx) RawJSON() json.RawMessage { return t.Tx.Raw }

// PendingTx is a transaction observed in the mempool.
type PendingTx struct {
	Chain     chain.Chain
	Tx        TxFields
	FirstSeen time.Time
}

func (t *PendingTx) ItemKind() Kind           { return KindPendingTx }
func (t *PendingTx) ItemChain() chain.Chain   { return t.Chain }
func (t *PendingTx) DedupKey() string         { return t.Tx.Hash.Hex() }
func (t *PendingTx) Order() (uint64, uint64)  { return 0, 0 }
func (t *PendingTx) RawJSON() json.RawMessage { return t.Tx.Raw }

// Log is a single event log emitted by a contract.
type Log struct {
	Chain       chain.Chain
	BlockNumber uint64
	BlockHash   Hash
	TxHash      Hash
	TxIndex     uint64
	LogIndex    uint64
	Address     Address
	Topics      []Hash
	Data        []byte
	Removed     bool
	Raw         json.RawMessage
}

func (l *Log) ItemKind() Kind         { return KindLog }
func (l *Log) ItemChain() chain.Chain { return l.Chain }
func (l *Log) DedupKey() string {
	return fmt.Sprintf("%s-%d", l.TxHash.Hex(), l.LogIndex)
}
func (l *Log) Order() (uint64, uint64)  { return l.BlockNumber, l.LogIndex }
func (l *Log) RawJSON() json.RawMessage { return l.Raw }

// EventSignature returns topic0, or a zero hash if the log has no topics.
func (l *Log) EventSignature() Hash {
	if len(l.Topics) > 0 {
		return l.Topics[0]
	}
	return Hash{}
}

// ReorgMarker is a synthetic item indicating the canonical tip hash changed
// at or below the prior tip height. Emitted before the replacing header.
type ReorgMarker struct {
	Chain      chain.Chain
	FromNumber uint64
	ToNumber   uint64
}

func (r *ReorgMarker) ItemKind() Kind         { return KindReorg }
func (r *ReorgMarker) ItemChain() chain.Chain { return r.Chain }
func (r *ReorgMarker) DedupKey() string {
	return fmt.Sprintf("reorg-%d-%d", r.FromNumber, r.ToNumber)
}
func (r *ReorgMarker) Order() (uint64, uint64)  { return r.ToNumber, 0 }
func (r *ReorgMarker) RawJSON() json.RawMessage { return nil }
