package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/internal/hexutil"
	"github.com/sieveio/sieve/item"
)

// Raw JSON-RPC payload shapes. Only the fields the item schema needs are
// declared; the full payload is retained on the item for dynamic lookups.

type rpcBlock struct {
	Number           string            `json:"number"`
	Hash             string            `json:"hash"`
	ParentHash       string            `json:"parentHash"`
	Timestamp        string            `json:"timestamp"`
	GasUsed          string            `json:"gasUsed"`
	GasLimit         string            `json:"gasLimit"`
	BaseFeePerGas    string            `json:"baseFeePerGas"`
	Miner            string            `json:"miner"`
	StateRoot        string            `json:"stateRoot"`
	ReceiptsRoot     string            `json:"receiptsRoot"`
	TransactionsRoot string            `json:"transactionsRoot"`
	Size             string            `json:"size"`
	Transactions     []json.RawMessage `json:"transactions"`
}

type rpcTransaction struct {
	Hash                 string          `json:"hash"`
	From                 string          `json:"from"`
	To                   *string         `json:"to"`
	Value                string          `json:"value"`
	Nonce                string          `json:"nonce"`
	Gas                  string          `json:"gas"`
	GasPrice             string          `json:"gasPrice"`
	MaxFeePerGas         string          `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string          `json:"maxPriorityFeePerGas"`
	Type                 string          `json:"type"`
	ChainID              string          `json:"chainId"`
	Input                string          `json:"input"`
	AccessList           []rpcAccessItem `json:"accessList"`
	BlockNumber          string          `json:"blockNumber"`
	BlockHash            string          `json:"blockHash"`
	TransactionIndex     string          `json:"transactionIndex"`
}

type rpcAccessItem struct {
	Address     string   `json:"address"`
	StorageKeys []string `json:"storageKeys"`
}

type rpcReceipt struct {
	Status            string   `json:"status"`
	GasUsed           string   `json:"gasUsed"`
	EffectiveGasPrice string   `json:"effectiveGasPrice"`
	ContractAddress   *string  `json:"contractAddress"`
	Logs              []rpcLog `json:"logs"`
}

type rpcLog struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      string   `json:"blockNumber"`
	BlockHash        string   `json:"blockHash"`
	TransactionHash  string   `json:"transactionHash"`
	TransactionIndex string   `json:"transactionIndex"`
	LogIndex         string   `json:"logIndex"`
	Removed          bool     `json:"removed"`
}

// parseBlock converts a raw eth_getBlockByNumber payload into a Header item
// and the block's confirmed transactions (when the payload carries full
// transaction objects rather than hashes).
func parseBlock(c chain.Chain, raw json.RawMessage) (*item.Header, []*item.ConfirmedTx, error) {
	var rb rpcBlock
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, nil, fmt.Errorf("ingest: parse block: %w", err)
	}

	h := &item.Header{Chain: c, Raw: raw}
	var err error
	if h.Number, err = hexQuantity(rb.Number); err != nil {
		return nil, nil, fmt.Errorf("ingest: block number: %w", err)
	}
	if h.Hash, err = item.HexToHash(rb.Hash); err != nil {
		return nil, nil, fmt.Errorf("ingest: block hash: %w", err)
	}
	if h.ParentHash, err = item.HexToHash(rb.ParentHash); err != nil {
		return nil, nil, fmt.Errorf("ingest: parent hash: %w", err)
	}
	h.Timestamp, _ = hexQuantity(rb.Timestamp)
	h.GasUsed, _ = hexQuantity(rb.GasUsed)
	h.GasLimit, _ = hexQuantity(rb.GasLimit)
	h.Size, _ = hexQuantity(rb.Size)
	if rb.BaseFeePerGas != "" {
		h.BaseFee, _ = hexutil.DecodeBig(rb.BaseFeePerGas)
	}
	if rb.Miner != "" {
		h.Miner, _ = item.HexToAddress(rb.Miner)
	}
	if rb.StateRoot != "" {
		h.StateRoot, _ = item.HexToHash(rb.StateRoot)
	}
	if rb.ReceiptsRoot != "" {
		h.ReceiptsRoot, _ = item.HexToHash(rb.ReceiptsRoot)
	}
	if rb.TransactionsRoot != "" {
		h.TransactionsRoot, _ = item.HexToHash(rb.TransactionsRoot)
	}
	h.TransactionCount = uint64(len(rb.Transactions))

	txs := make([]*item.ConfirmedTx, 0, len(rb.Transactions))
	for i, rawTx := range rb.Transactions {
		// Hash-only payloads (hydration disabled) carry JSON strings.
		if len(rawTx) > 0 && rawTx[0] == '"' {
			continue
		}
		tx, err := parseConfirmedTx(c, rawTx)
		if err != nil {
			return nil, nil, fmt.Errorf("ingest: block tx %d: %w", i, err)
		}
		if tx.BlockNumber == 0 {
			tx.BlockNumber = h.Number
		}
		if tx.BlockHash.IsZero() {
			tx.BlockHash = h.Hash
		}
		if tx.Index == 0 {
			tx.Index = uint64(i)
		}
		txs = append(txs, tx)
	}
	return h, txs, nil
}

// parseConfirmedTx converts a raw transaction payload into a ConfirmedTx.
func parseConfirmedTx(c chain.Chain, raw json.RawMessage) (*item.ConfirmedTx, error) {
	var rt rpcTransaction
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, fmt.Errorf("parse tx: %w", err)
	}
	fields, err := txFields(rt, raw)
	if err != nil {
		return nil, err
	}
	tx := &item.ConfirmedTx{Chain: c, Tx: fields}
	tx.BlockNumber, _ = hexQuantity(rt.BlockNumber)
	if rt.BlockHash != "" {
		tx.BlockHash, _ = item.HexToHash(rt.BlockHash)
	}
	tx.Index, _ = hexQuantity(rt.TransactionIndex)
	return tx, nil
}

// parsePendingTx converts a raw transaction payload into a PendingTx.
func parsePendingTx(c chain.Chain, raw json.RawMessage, seen time.Time) (*item.PendingTx, error) {
	var rt rpcTransaction
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, fmt.Errorf("parse pending tx: %w", err)
	}
	fields, err := txFields(rt, raw)
	if err != nil {
		return nil, err
	}
	return &item.PendingTx{Chain: c, Tx: fields, FirstSeen: seen}, nil
}

func txFields(rt rpcTransaction, raw json.RawMessage) (item.TxFields, error) {
	var f item.TxFields
	var err error
	if f.Hash, err = item.HexToHash(rt.Hash); err != nil {
		return f, fmt.Errorf("tx hash: %w", err)
	}
	if f.From, err = item.HexToAddress(rt.From); err != nil {
		return f, fmt.Errorf("tx from: %w", err)
	}
	if rt.To != nil && *rt.To != "" {
		to, err := item.HexToAddress(*rt.To)
		if err != nil {
			return f, fmt.Errorf("tx to: %w", err)
		}
		f.To = &to
	}
	if rt.Value != "" {
		f.Value, _ = hexutil.DecodeBig(rt.Value)
	}
	f.Nonce, _ = hexQuantity(rt.Nonce)
	f.Gas, _ = hexQuantity(rt.Gas)
	if rt.GasPrice != "" {
		f.GasPrice, _ = hexutil.DecodeBig(rt.GasPrice)
	}
	if rt.MaxFeePerGas != "" {
		f.MaxFeePerGas, _ = hexutil.DecodeBig(rt.MaxFeePerGas)
	}
	if rt.MaxPriorityFeePerGas != "" {
		f.MaxPriorityFee, _ = hexutil.DecodeBig(rt.MaxPriorityFeePerGas)
	}
	if typ, err := hexQuantity(rt.Type); err == nil {
		f.Type = uint8(typ)
	}
	f.ChainID, _ = hexQuantity(rt.ChainID)
	if rt.Input != "" && rt.Input != "0x" {
		f.Input, _ = hexutil.Decode(rt.Input)
	}
	for _, al := range rt.AccessList {
		addr, err := item.HexToAddress(al.Address)
		if err != nil {
			continue
		}
		tuple := item.AccessTuple{Address: addr}
		for _, key := range al.StorageKeys {
			if h, err := item.HexToHash(key); err == nil {
				tuple.StorageKeys = append(tuple.StorageKeys, h)
			}
		}
		f.AccessList = append(f.AccessList, tuple)
	}
	f.Raw = raw
	return f, nil
}

// parseReceipt converts a raw eth_getTransactionReceipt payload.
func parseReceipt(c chain.Chain, raw json.RawMessage) (*item.Receipt, error) {
	var rr rpcReceipt
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("ingest: parse receipt: %w", err)
	}
	r := &item.Receipt{Raw: raw}
	r.Status, _ = hexQuantity(rr.Status)
	r.GasUsed, _ = hexQuantity(rr.GasUsed)
	if rr.EffectiveGasPrice != "" {
		r.EffectiveGasPrice, _ = hexutil.DecodeBig(rr.EffectiveGasPrice)
	}
	if rr.ContractAddress != nil && *rr.ContractAddress != "" {
		if addr, err := item.HexToAddress(*rr.ContractAddress); err == nil {
			r.ContractAddress = &addr
		}
	}
	for i := range rr.Logs {
		l, err := convertLog(c, rr.Logs[i], nil)
		if err != nil {
			continue
		}
		r.Logs = append(r.Logs, l)
	}
	return r, nil
}

// parseLog converts a raw log notification payload.
func parseLog(c chain.Chain, raw json.RawMessage) (*item.Log, error) {
	var rl rpcLog
	if err := json.Unmarshal(raw, &rl); err != nil {
		return nil, fmt.Errorf("ingest: parse log: %w", err)
	}
	return convertLog(c, rl, raw)
}

func convertLog(c chain.Chain, rl rpcLog, raw json.RawMessage) (*item.Log, error) {
	l := &item.Log{Chain: c, Removed: rl.Removed, Raw: raw}
	var err error
	if l.Address, err = item.HexToAddress(rl.Address); err != nil {
		return nil, fmt.Errorf("log address: %w", err)
	}
	l.Topics = make([]item.Hash, len(rl.Topics))
	for i, t := range rl.Topics {
		if l.Topics[i], err = item.HexToHash(t); err != nil {
			return nil, fmt.Errorf("log topic %d: %w", i, err)
		}
	}
	if rl.Data != "" && rl.Data != "0x" {
		if l.Data, err = hexutil.Decode(rl.Data); err != nil {
			return nil, fmt.Errorf("log data: %w", err)
		}
	}
	l.BlockNumber, _ = hexQuantity(rl.BlockNumber)
	if rl.BlockHash != "" {
		l.BlockHash, _ = item.HexToHash(rl.BlockHash)
	}
	if rl.TransactionHash != "" {
		l.TxHash, _ = item.HexToHash(rl.TransactionHash)
	}
	l.TxIndex, _ = hexQuantity(rl.TransactionIndex)
	l.LogIndex, _ = hexQuantity(rl.LogIndex)
	return l, nil
}

func hexQuantity(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	return hexutil.DecodeUint64(s)
}
