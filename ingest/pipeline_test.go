package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/item"
)

func testTime() time.Time {
	return time.Unix(1_700_000_000, 0)
}

func testPipeline() *Pipeline {
	return New(chain.New(chain.RPC("http://localhost:1")), nil, nil, nil)
}

func headerItem(number uint64, hash string) *item.Header {
	return &item.Header{
		Chain:  chain.Ethereum,
		Number: number,
		Hash:   item.MustHexToHash(hash),
	}
}

func collect(t *testing.T, p *Pipeline, n int) []item.Item {
	t.Helper()
	out := make([]item.Item, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case it := <-p.Items():
			out = append(out, it)
		case <-timeout:
			t.Fatalf("timed out after %d items, want %d", len(out), n)
		}
	}
	return out
}

func TestPipelineDedupSuppressesReplay(t *testing.T) {
	p := testPipeline()
	ctx := context.Background()

	h := headerItem(100, "0xaa")
	if !p.emit(ctx, h) || !p.emit(ctx, h) {
		t.Fatal("emit should succeed")
	}

	items := collect(t, p, 1)
	if items[0] != item.Item(h) {
		t.Fatalf("got %+v", items[0])
	}
	select {
	case it := <-p.Items():
		t.Fatalf("duplicate emitted: %+v", it)
	default:
	}
}

func TestPipelinePendingThenConfirmedNotDeduped(t *testing.T) {
	p := testPipeline()
	ctx := context.Background()

	hash := item.MustHexToHash("0x0e07d8b53ed3d91314c80e53cf25bcde02084939395845cbb625b029d568135c")
	pending := &item.PendingTx{Chain: chain.Ethereum, Tx: item.TxFields{Hash: hash}, FirstSeen: testTime()}
	confirmed := &item.ConfirmedTx{
		Chain:       chain.Ethereum,
		BlockNumber: 10,
		BlockHash:   item.MustHexToHash("0xbb"),
		Tx:          item.TxFields{Hash: hash},
	}

	p.emit(ctx, pending)
	p.emit(ctx, confirmed)

	items := collect(t, p, 2)
	if items[0].ItemKind() != item.KindPendingTx || items[1].ItemKind() != item.KindConfirmedTx {
		t.Fatalf("kinds = %v, %v", items[0].ItemKind(), items[1].ItemKind())
	}
}

// Scenario: a replacing header at the same height emits a reorg marker
// first, then the new header.
func TestPipelineReorgMarker(t *testing.T) {
	p := testPipeline()
	ctx := context.Background()

	p.emit(ctx, headerItem(99, "0x99"))
	p.emit(ctx, headerItem(100, "0x01"))
	p.emit(ctx, headerItem(100, "0x02"))

	items := collect(t, p, 4)

	marker, ok := items[2].(*item.ReorgMarker)
	if !ok {
		t.Fatalf("item 2 = %T, want reorg marker", items[2])
	}
	if marker.FromNumber != 100 || marker.ToNumber != 100 {
		t.Fatalf("marker = %+v", marker)
	}
	replacement, ok := items[3].(*item.Header)
	if !ok || replacement.Hash != item.MustHexToHash("0x02") {
		t.Fatalf("item 3 = %+v, want the replacing header", items[3])
	}
}

func TestPipelineNoMarkerForAdvancingTip(t *testing.T) {
	p := testPipeline()
	ctx := context.Background()

	p.emit(ctx, headerItem(100, "0x01"))
	p.emit(ctx, headerItem(101, "0x02"))
	p.emit(ctx, headerItem(102, "0x03"))

	items := collect(t, p, 3)
	for _, it := range items {
		if _, isMarker := it.(*item.ReorgMarker); isMarker {
			t.Fatalf("unexpected marker in a clean chain: %+v", it)
		}
	}
}

func TestPipelineDeepReorgMarkerSpansHeights(t *testing.T) {
	p := testPipeline()
	ctx := context.Background()

	p.emit(ctx, headerItem(100, "0x01"))
	p.emit(ctx, headerItem(101, "0x02"))
	p.emit(ctx, headerItem(102, "0x03"))
	// The fork replaces height 101 while the tip is 102.
	p.emit(ctx, headerItem(101, "0x04"))

	items := collect(t, p, 5)
	marker, ok := items[3].(*item.ReorgMarker)
	if !ok {
		t.Fatalf("item 3 = %T, want marker", items[3])
	}
	if marker.FromNumber != 102 || marker.ToNumber != 101 {
		t.Fatalf("marker = %+v, want from=102 to=101", marker)
	}
}

func TestPipelineLagCountsBlockedSends(t *testing.T) {
	p := testPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fill the bounded channel without a consumer.
	for i := 0; i < outBuffer; i++ {
		p.emit(ctx, headerItem(uint64(i), "0x01"))
	}
	if p.Lag() != 0 {
		t.Fatalf("lag before overflow = %d", p.Lag())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.emit(ctx, headerItem(uint64(outBuffer), "0x01"))
	}()

	// The producer must be blocked, not dropping.
	select {
	case <-done:
		t.Fatal("emit should block on a full channel")
	case <-time.After(50 * time.Millisecond):
	}

	<-p.Items() // make room
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit should complete once the channel drains")
	}
	if p.Lag() == 0 {
		t.Fatal("blocked send should be counted as ingest lag")
	}
}

func TestPipelineStartStopKindRefcounts(t *testing.T) {
	p := testPipeline()
	defer p.Close()

	p.StartKind(item.KindHeader)
	p.StartKind(item.KindConfirmedTx)
	if p.refs[unitBlocks] != 2 {
		t.Fatalf("blocks refs = %d, want 2 (header and confirmed share the poller)", p.refs[unitBlocks])
	}

	p.StopKind(item.KindHeader)
	if p.refs[unitBlocks] != 1 {
		t.Fatalf("blocks refs after one stop = %d", p.refs[unitBlocks])
	}
	if !p.emitConfirmed.Load() {
		t.Fatal("confirmed demand should survive the header stop")
	}

	p.StopKind(item.KindConfirmedTx)
	if p.refs[unitBlocks] != 0 {
		t.Fatalf("blocks refs after both stops = %d", p.refs[unitBlocks])
	}
}
