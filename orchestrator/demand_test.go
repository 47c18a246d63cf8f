package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/sieveio/sieve/item"
)

type recordingSink struct {
	mu       sync.Mutex
	started  map[item.Kind]int
	stopped  map[item.Kind]int
	receipts bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		started: make(map[item.Kind]int),
		stopped: make(map[item.Kind]int),
	}
}

func (r *recordingSink) StartKind(kind item.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[kind]++
}

func (r *recordingSink) StopKind(kind item.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped[kind]++
}

func (r *recordingSink) SetReceiptDemand(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = on
}

func (r *recordingSink) counts(kind item.Kind) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started[kind], r.stopped[kind]
}

func TestDemandStartsFetcherOnFirstInterest(t *testing.T) {
	sink := newRecordingSink()
	d := newDemandTable(sink, time.Hour)

	d.acquire(item.KindHeader, false)
	d.acquire(item.KindHeader, false)

	if starts, _ := sink.counts(item.KindHeader); starts != 1 {
		t.Fatalf("starts = %d, want 1 for the 0->1 transition only", starts)
	}
	if d.count(item.KindHeader) != 2 {
		t.Fatalf("count = %d", d.count(item.KindHeader))
	}
}

func TestDemandStopsAfterQuiescence(t *testing.T) {
	sink := newRecordingSink()
	d := newDemandTable(sink, 20*time.Millisecond)

	d.acquire(item.KindPendingTx, false)
	d.release(item.KindPendingTx, false)

	if _, stops := sink.counts(item.KindPendingTx); stops != 0 {
		t.Fatal("stop must be deferred by the quiescence period")
	}

	time.Sleep(60 * time.Millisecond)
	if _, stops := sink.counts(item.KindPendingTx); stops != 1 {
		t.Fatalf("stops after quiescence = %d, want 1", stops)
	}
}

func TestDemandReacquireCancelsPendingStop(t *testing.T) {
	sink := newRecordingSink()
	d := newDemandTable(sink, 30*time.Millisecond)

	d.acquire(item.KindHeader, false)
	d.release(item.KindHeader, false)
	d.acquire(item.KindHeader, false) // interest returns inside quiescence

	time.Sleep(80 * time.Millisecond)
	if _, stops := sink.counts(item.KindHeader); stops != 0 {
		t.Fatal("re-acquired kind must not be stopped")
	}
	if starts, _ := sink.counts(item.KindHeader); starts != 1 {
		t.Fatalf("starts = %d, the running fetcher should be reused", starts)
	}
}

func TestDemandTracksReceipts(t *testing.T) {
	sink := newRecordingSink()
	d := newDemandTable(sink, time.Hour)

	d.acquire(item.KindConfirmedTx, true)
	sink.mu.Lock()
	on := sink.receipts
	sink.mu.Unlock()
	if !on {
		t.Fatal("receipt demand should switch on")
	}

	d.release(item.KindConfirmedTx, true)
	sink.mu.Lock()
	on = sink.receipts
	sink.mu.Unlock()
	if on {
		t.Fatal("receipt demand should switch off with the last interested subscription")
	}
}
