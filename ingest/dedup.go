package ingest

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sieveio/sieve/item"
)

// dedup suppresses re-emission of recently seen items. Each kind keeps its
// own sliding ring so a burst of one kind cannot evict another kind's
// history. A pending transaction later confirmed is not suppressed: pending
// and confirmed are distinct kinds with distinct rings.
type dedup struct {
	rings map[item.Kind]*lru.Cache[string, struct{}]
}

func newDedup(window int) *dedup {
	d := &dedup{rings: make(map[item.Kind]*lru.Cache[string, struct{}])}
	for _, kind := range []item.Kind{item.KindHeader, item.KindConfirmedTx, item.KindPendingTx, item.KindLog} {
		ring, err := lru.New[string, struct{}](window)
		if err != nil {
			panic(err) // window validated positive by chain config
		}
		d.rings[kind] = ring
	}
	return d
}

// seen records the item and reports whether it was already in the ring.
func (d *dedup) seen(it item.Item) bool {
	ring, ok := d.rings[it.ItemKind()]
	if !ok {
		return false // reorg markers are never deduplicated
	}
	key := it.DedupKey()
	if ring.Contains(key) {
		return true
	}
	ring.Add(key, struct{}{})
	return false
}
