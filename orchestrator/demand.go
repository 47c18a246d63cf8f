package orchestrator

import (
	"sync"
	"time"

	"github.com/sieveio/sieve/item"
)

// DefaultQuiescence is how long a fetcher keeps running after its demand
// drops to zero, avoiding start/stop thrash around subscription churn.
const DefaultQuiescence = 30 * time.Second

// kindSink is the part of the pipeline the demand table drives.
type kindSink interface {
	StartKind(kind item.Kind)
	StopKind(kind item.Kind)
	SetReceiptDemand(on bool)
}

// demandTable counts live subscriptions per item kind and starts a fetcher
// on the 0 to 1 transition. On the drop back to zero the stop is deferred
// by the quiescence period and cancelled if interest returns.
type demandTable struct {
	mu         sync.Mutex
	counts     map[item.Kind]int
	receipts   int
	stops      map[item.Kind]*time.Timer
	sink       kindSink
	quiescence time.Duration
	closed     bool
}

func newDemandTable(sink kindSink, quiescence time.Duration) *demandTable {
	if quiescence <= 0 {
		quiescence = DefaultQuiescence
	}
	return &demandTable{
		counts:     make(map[item.Kind]int),
		stops:      make(map[item.Kind]*time.Timer),
		sink:       sink,
		quiescence: quiescence,
	}
}

// acquire registers interest in a kind, starting its fetcher when the count
// rises from zero, unless a pending quiescence stop is cancelled instead (the
// fetcher is then still running). wantReceipts additionally demands receipt
// enrichment.
func (d *demandTable) acquire(kind item.Kind, wantReceipts bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	stopCancelled := false
	if t, ok := d.stops[kind]; ok {
		t.Stop()
		delete(d.stops, kind)
		stopCancelled = true
	}
	d.counts[kind]++
	if d.counts[kind] == 1 && !stopCancelled {
		d.sink.StartKind(kind)
	}
	if wantReceipts {
		d.receipts++
		if d.receipts == 1 {
			d.sink.SetReceiptDemand(true)
		}
	}
}

// release drops interest in a kind, scheduling the fetcher stop after the
// quiescence period once the count reaches zero.
func (d *demandTable) release(kind item.Kind, wantReceipts bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.counts[kind] == 0 {
		return
	}
	d.counts[kind]--
	if d.counts[kind] == 0 {
		k := kind
		d.stops[k] = time.AfterFunc(d.quiescence, func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.closed || d.counts[k] > 0 {
				return
			}
			delete(d.stops, k)
			d.sink.StopKind(k)
		})
	}
	if wantReceipts && d.receipts > 0 {
		d.receipts--
		if d.receipts == 0 {
			d.sink.SetReceiptDemand(false)
		}
	}
}

// count returns the live interest in a kind.
func (d *demandTable) count(kind item.Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[kind]
}

func (d *demandTable) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for k, t := range d.stops {
		t.Stop()
		delete(d.stops, k)
	}
}
