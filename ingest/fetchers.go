package ingest

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sieveio/sieve/item"
)

// runBlockPoller polls eth_getBlockByNumber("latest") with full transaction
// bodies. It always emits the header; confirmed transactions (and, without a
// WS log source, receipt-derived logs) are emitted only while demanded.
func (p *Pipeline) runBlockPoller(ctx context.Context) {
	if p.rpc == nil {
		p.log.Warn("block polling requires an rpc endpoint")
		return
	}
	ticker := time.NewTicker(p.cfg.HeadPollInterval)
	defer ticker.Stop()

	p.pollBlock(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollBlock(ctx)
		}
	}
}

func (p *Pipeline) pollBlock(ctx context.Context) {
	raw, err := p.rpc.Call(ctx, "eth_getBlockByNumber", "latest", true)
	if err != nil {
		p.log.Warn("head poll failed", zap.Error(err))
		return
	}
	header, txs, err := parseBlock(p.cfg.Chain, raw)
	if err != nil {
		p.log.Warn("head payload malformed", zap.Error(err))
		return
	}
	if !p.emit(ctx, header) {
		return
	}
	if !p.emitConfirmed.Load() && !p.receiptLogs.Load() {
		p.progress()
		return
	}

	wantReceipts := p.receiptDemand.Load() || p.receiptLogs.Load()
	if wantReceipts {
		p.attachReceipts(ctx, txs)
	}

	for _, tx := range txs {
		if p.emitConfirmed.Load() {
			if !p.emit(ctx, tx) {
				return
			}
		}
		if p.receiptLogs.Load() && tx.Receipt != nil {
			for _, l := range tx.Receipt.Logs {
				if !p.emit(ctx, l) {
					return
				}
			}
		}
	}
	p.progress()
}

// attachReceipts fetches receipts for the block's transactions with bounded
// concurrency, preserving transaction order for the subsequent emission.
func (p *Pipeline) attachReceipts(ctx context.Context, txs []*item.ConfirmedTx) {
	done := make(chan struct{}, len(txs))
	pending := 0
	for _, tx := range txs {
		if tx.Receipt != nil {
			continue
		}
		select {
		case p.receiptPermits <- struct{}{}:
		case <-ctx.Done():
			return
		}
		pending++
		go func(tx *item.ConfirmedTx) {
			defer func() {
				<-p.receiptPermits
				done <- struct{}{}
			}()
			receipt, err := p.fetchReceipt(ctx, tx.Tx.Hash)
			if err != nil {
				p.log.Debug("receipt fetch failed",
					zap.String("tx", tx.Tx.Hash.Hex()), zap.Error(err))
				return
			}
			tx.Receipt = receipt
		}(tx)
	}
	for i := 0; i < pending; i++ {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) fetchReceipt(ctx context.Context, hash item.Hash) (*item.Receipt, error) {
	raw, err := p.rpc.Call(ctx, "eth_getTransactionReceipt", hash.Hex())
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return parseReceipt(p.cfg.Chain, raw)
}

// runPendingPoller installs a pending-transaction filter and drains its
// changes, hydrating each hash into a full transaction. An expired filter
// is reinstalled on the next tick.
func (p *Pipeline) runPendingPoller(ctx context.Context) {
	if p.rpc == nil {
		p.log.Warn("pending polling requires an rpc endpoint")
		return
	}
	ticker := time.NewTicker(p.cfg.PendingPollInterval)
	defer ticker.Stop()

	var filterID string
	for {
		select {
		case <-ctx.Done():
			if filterID != "" {
				_, _ = p.rpc.Call(context.Background(), "eth_uninstallFilter", filterID)
			}
			return
		case <-ticker.C:
		}

		if filterID == "" {
			raw, err := p.rpc.Call(ctx, "eth_newPendingTransactionFilter")
			if err != nil {
				p.log.Warn("pending filter install failed", zap.Error(err))
				continue
			}
			if err := json.Unmarshal(raw, &filterID); err != nil {
				p.log.Warn("pending filter id malformed", zap.Error(err))
				continue
			}
		}

		raw, err := p.rpc.Call(ctx, "eth_getFilterChanges", filterID)
		if err != nil {
			p.log.Warn("pending poll failed", zap.Error(err))
			filterID = "" // reinstall; the remote may have expired it
			continue
		}
		var hashes []string
		if err := json.Unmarshal(raw, &hashes); err != nil {
			p.log.Warn("pending changes malformed", zap.Error(err))
			continue
		}
		seen := time.Now()
		for _, h := range hashes {
			if !p.hydratePending(ctx, h, seen) {
				return
			}
		}
		p.progress()
	}
}

func (p *Pipeline) hydratePending(ctx context.Context, hash string, seen time.Time) bool {
	raw, err := p.rpc.Call(ctx, "eth_getTransactionByHash", hash)
	if err != nil {
		p.log.Debug("pending hydration failed", zap.String("tx", hash), zap.Error(err))
		return true
	}
	if len(raw) == 0 || string(raw) == "null" {
		return true // already mined or evicted
	}
	tx, err := parsePendingTx(p.cfg.Chain, raw, seen)
	if err != nil {
		p.log.Debug("pending payload malformed", zap.Error(err))
		return true
	}
	return p.emit(ctx, tx)
}

// runWSHeads consumes the newHeads push subscription.
func (p *Pipeline) runWSHeads(ctx context.Context) {
	if p.ws == nil {
		return
	}
	ch, unsub, err := p.ws.Subscribe(ctx, "eth_subscribe", "newHeads")
	if err != nil {
		p.log.Warn("newHeads subscribe failed", zap.Error(err))
		return
	}
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			header, _, err := parseBlock(p.cfg.Chain, raw)
			if err != nil {
				p.log.Warn("newHeads payload malformed", zap.Error(err))
				continue
			}
			if !p.emit(ctx, header) {
				return
			}
		}
	}
}

// runWSLogs consumes the logs push subscription.
func (p *Pipeline) runWSLogs(ctx context.Context) {
	if p.ws == nil {
		return
	}
	ch, unsub, err := p.ws.Subscribe(ctx, "eth_subscribe", "logs", map[string]any{})
	if err != nil {
		p.log.Warn("logs subscribe failed", zap.Error(err))
		return
	}
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			l, err := parseLog(p.cfg.Chain, raw)
			if err != nil {
				p.log.Warn("log payload malformed", zap.Error(err))
				continue
			}
			if !p.emit(ctx, l) {
				return
			}
		}
	}
}
