package sub

import (
	"math/big"
	"testing"
	"time"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/eval"
	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/item"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Registry) {
	t.Helper()
	reg := NewRegistry(0)
	return NewDispatcher(reg, eval.New(nil), nil), reg
}

func drain(t *testing.T, s *Subscription, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("stream closed after %d events, want %d", len(out), n)
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestDispatchDeliversMatchExactlyOnce(t *testing.T) {
	d, reg := newTestDispatcher(t)

	f := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(1000)) })
	s := reg.NewSubscription(ModeSubscribe, []*filter.Filter{f}, Block, 8, 0)
	reg.Add(s)

	match := makeTx("0x1111111111111111111111111111111111111111", 1500)
	miss := makeTx("0x1111111111111111111111111111111111111111", 10)
	d.Dispatch(match)
	d.Dispatch(miss)

	events := drain(t, s, 1)
	if events[0].Kind != EventItem || events[0].Item != item.Item(match) {
		t.Fatalf("event = %+v", events[0])
	}
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected second event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchPreservesOrder(t *testing.T) {
	d, reg := newTestDispatcher(t)

	f := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(0)) })
	s := reg.NewSubscription(ModeSubscribe, []*filter.Filter{f}, Block, 64, 0)
	reg.Add(s)

	for i := 1; i <= 10; i++ {
		tx := makeTx("0x1111111111111111111111111111111111111111", int64(i))
		tx.BlockNumber = uint64(i)
		d.Dispatch(tx)
	}

	events := drain(t, s, 10)
	for i, ev := range events {
		if got := ev.Item.(*item.ConfirmedTx).BlockNumber; got != uint64(i+1) {
			t.Fatalf("event %d has block %d, want %d", i, got, i+1)
		}
	}
}

func TestDispatchSubscribeAllTagsFilterIndex(t *testing.T) {
	d, reg := newTestDispatcher(t)

	f0 := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(1000)) })
	f1 := buildTx(t, func(tx *filter.TxScope) { tx.Value().Lt(big.NewInt(100)) })
	s := reg.NewSubscription(ModeSubscribeAll, []*filter.Filter{f0, f1}, Block, 8, 0)
	reg.Add(s)

	d.Dispatch(makeTx("0x1111111111111111111111111111111111111111", 5000))
	d.Dispatch(makeTx("0x1111111111111111111111111111111111111111", 5))

	events := drain(t, s, 2)
	if events[0].FilterIndex != 0 || events[1].FilterIndex != 1 {
		t.Fatalf("filter indices = %d, %d", events[0].FilterIndex, events[1].FilterIndex)
	}
}

func TestDispatchWatchWithinEmitsMatch(t *testing.T) {
	d, reg := newTestDispatcher(t)

	ethF := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(1000)) })
	opF, err := filter.New().Chain(chain.Optimism).Transaction(func(tx *filter.TxScope) {
		tx.Value().Gt(big.NewInt(2000))
	}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	s := reg.NewSubscription(ModeWatchWithin, []*filter.Filter{ethF, opF}, Block, 8, time.Minute)
	reg.Add(s)
	s.StartWindow()

	ethTx := makeTx("0x1111111111111111111111111111111111111111", 1500)
	opTx := &item.ConfirmedTx{
		Chain: chain.Optimism,
		Tx: item.TxFields{
			Hash:  item.MustHexToHash("0x02"),
			Value: big.NewInt(2500),
		},
	}

	d.Dispatch(ethTx)
	d.Dispatch(opTx)

	events := drain(t, s, 1)
	if events[0].Kind != EventMatch {
		t.Fatalf("event = %+v, want a window match", events[0])
	}
	if len(events[0].Items) != 2 ||
		events[0].Items[0] != item.Item(ethTx) ||
		events[0].Items[1] != item.Item(opTx) {
		t.Fatalf("match items = %v, want [eth, op] in filter order", events[0].Items)
	}
	s.Close()
}

func TestDispatchWatchWithinTimeout(t *testing.T) {
	d, reg := newTestDispatcher(t)

	f0 := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(1000)) })
	f1 := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(1_000_000)) })
	s := reg.NewSubscription(ModeWatchWithin, []*filter.Filter{f0, f1}, Block, 8, 50*time.Millisecond)
	reg.Add(s)
	s.StartWindow()

	// Only filter 0 ever matches.
	d.Dispatch(makeTx("0x1111111111111111111111111111111111111111", 1500))

	events := drain(t, s, 1)
	if events[0].Kind != EventTimeout {
		t.Fatalf("event = %+v, want a timeout", events[0])
	}

	// The window fired: no further events, and the subscription tombstones.
	if !s.tombstoned.Load() {
		t.Fatal("timed-out watch should terminate")
	}
}

func TestDispatchReorgMarkerToHeaderSubs(t *testing.T) {
	d, reg := newTestDispatcher(t)

	headerF, err := filter.New().BlockHeader(func(h *filter.HeaderScope) {
		h.Number().Gt(1_000_000_000) // never matches ordinary headers
	}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	txF := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(0)) })

	hs := reg.NewSubscription(ModeSubscribe, []*filter.Filter{headerF}, Block, 8, 0)
	ts := reg.NewSubscription(ModeSubscribe, []*filter.Filter{txF}, Block, 8, 0)
	reg.Add(hs)
	reg.Add(ts)

	marker := &item.ReorgMarker{Chain: chain.Ethereum, FromNumber: 100, ToNumber: 100}
	d.Dispatch(marker)

	events := drain(t, hs, 1)
	if events[0].Item != item.Item(marker) {
		t.Fatalf("header sub got %+v", events[0])
	}
	select {
	case ev := <-ts.Events():
		t.Fatalf("transaction sub should not see reorg markers, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOldestPolicy(t *testing.T) {
	d, reg := newTestDispatcher(t)

	f := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(0)) })
	s := reg.NewSubscription(ModeSubscribe, []*filter.Filter{f}, DropOldest, 2, 0)
	reg.Add(s)

	for i := 1; i <= 5; i++ {
		tx := makeTx("0x1111111111111111111111111111111111111111", int64(i))
		tx.BlockNumber = uint64(i)
		d.Dispatch(tx)
	}

	if s.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", s.Dropped())
	}
	events := drain(t, s, 2)
	if events[0].Item.(*item.ConfirmedTx).BlockNumber != 4 ||
		events[1].Item.(*item.ConfirmedTx).BlockNumber != 5 {
		t.Fatalf("kept events = %d, %d, want the newest two",
			events[0].Item.(*item.ConfirmedTx).BlockNumber,
			events[1].Item.(*item.ConfirmedTx).BlockNumber)
	}
}

func TestTombstonedSubscriptionSkipped(t *testing.T) {
	d, reg := newTestDispatcher(t)

	f := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(0)) })
	s := reg.NewSubscription(ModeSubscribe, []*filter.Filter{f}, Block, 8, 0)
	reg.Add(s)

	s.Close()
	d.Dispatch(makeTx("0x1111111111111111111111111111111111111111", 5))

	reg.Sweep()
	for ev := range s.Events() {
		t.Fatalf("tombstoned subscription received %+v", ev)
	}
}

func TestInterceptorCanDropEvents(t *testing.T) {
	reg := NewRegistry(0)
	d := NewDispatcher(reg, eval.New(nil), nil)
	d.SetInterceptor(func(ev Event) *Event {
		if tx, ok := ev.Item.(*item.ConfirmedTx); ok && tx.Tx.Value.Int64() < 100 {
			return nil
		}
		return &ev
	})

	f := buildTx(t, func(tx *filter.TxScope) { tx.Value().Gt(big.NewInt(0)) })
	s := reg.NewSubscription(ModeSubscribe, []*filter.Filter{f}, Block, 8, 0)
	reg.Add(s)

	d.Dispatch(makeTx("0x1111111111111111111111111111111111111111", 50))
	d.Dispatch(makeTx("0x1111111111111111111111111111111111111111", 500))

	events := drain(t, s, 1)
	if events[0].Item.(*item.ConfirmedTx).Tx.Value.Int64() != 500 {
		t.Fatal("interceptor should have dropped the small transfer")
	}
}
