package sub

import (
	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/item"
)

// entry is one (subscription, filter) pair registered in a shard.
type entry struct {
	sub  *Subscription
	f    *filter.Filter
	fidx int
}

// Indexable predicate classes. Equality on hot address/hash fields and
// numeric ranges on value and gas price cover the bulk of real filters;
// everything else scans linearly. The index is a pre-filter only — the
// evaluator stays authoritative, so indexing more or fewer fields can never
// change which items are delivered.
var eqIndexFields = map[string]struct{}{
	"from":      {},
	"to":        {},
	"contract":  {},
	"address":   {},
	"hash":      {},
	"tx_hash":   {},
	"topics[0]": {},
}

var rangeIndexFields = map[string]struct{}{
	"value":     {},
	"gas_price": {},
}

// rangeBuckets spans the bit lengths of 256-bit quantities (0..256).
const rangeBuckets = 257

// predIndex holds one shard's candidate pre-filter.
type predIndex struct {
	eq     map[string]map[string][]*entry
	ranges map[string]*[rangeBuckets][]*entry
	linear []*entry
}

func newPredIndex() *predIndex {
	return &predIndex{
		eq:     make(map[string]map[string][]*entry),
		ranges: make(map[string]*[rangeBuckets][]*entry),
	}
}

// add mines the entry's filter for index keys. A filter lands in the index
// only if every DNF conjunct carries at least one indexable predicate;
// otherwise a matching item could bypass the index and the pre-filter would
// be unsound.
func (x *predIndex) add(e *entry, dnfLimit int) {
	conjuncts, ok := filter.DNF(e.f.Root(), dnfLimit)
	if !ok {
		x.linear = append(x.linear, e)
		return
	}

	type key struct {
		field  string
		exact  string
		lo, hi int
	}
	keys := make([]key, 0, len(conjuncts))
	for _, conj := range conjuncts {
		k, ok := mineConjunct(conj)
		if !ok {
			x.linear = append(x.linear, e)
			return
		}
		keys = append(keys, key(k))
	}

	for _, k := range keys {
		if k.exact != "" || k.lo < 0 {
			byValue, ok := x.eq[k.field]
			if !ok {
				byValue = make(map[string][]*entry)
				x.eq[k.field] = byValue
			}
			byValue[k.exact] = append(byValue[k.exact], e)
			continue
		}
		buckets, ok := x.ranges[k.field]
		if !ok {
			buckets = new([rangeBuckets][]*entry)
			x.ranges[k.field] = buckets
		}
		for b := k.lo; b <= k.hi && b < rangeBuckets; b++ {
			buckets[b] = append(buckets[b], e)
		}
	}
}

type minedKey struct {
	field  string
	exact  string
	lo, hi int
}

// mineConjunct picks one indexable predicate of the conjunct: equality keys
// are preferred over range buckets.
func mineConjunct(conj filter.Conjunct) (minedKey, bool) {
	var rangeKey *minedKey
	for _, p := range conj {
		if _, ok := eqIndexFields[p.Path]; ok && (p.Op == filter.CmpEq || p.Op == filter.CmpExact) {
			return minedKey{field: p.Path, exact: p.Operand.Text(), lo: -1, hi: -1}, true
		}
		if _, ok := rangeIndexFields[p.Path]; ok && rangeKey == nil {
			if lo, hi, ok := bucketRange(p); ok {
				rangeKey = &minedKey{field: p.Path, lo: lo, hi: hi}
			}
		}
	}
	if rangeKey != nil {
		return *rangeKey, true
	}
	return minedKey{}, false
}

// bucketRange maps a numeric predicate to the bit-length buckets its
// matching values can occupy.
func bucketRange(p *filter.Predicate) (int, int, bool) {
	opBits := func(v item.Value) (int, bool) {
		b := v.BigInt()
		if b == nil {
			return 0, false
		}
		return b.BitLen(), true
	}
	switch p.Op {
	case filter.CmpEq:
		n, ok := opBits(p.Operand)
		return n, n, ok
	case filter.CmpGt, filter.CmpGe:
		n, ok := opBits(p.Operand)
		return n, rangeBuckets - 1, ok
	case filter.CmpLt, filter.CmpLe:
		n, ok := opBits(p.Operand)
		return 0, n, ok
	case filter.CmpBetween:
		lo, okLo := opBits(p.Operand)
		hi, okHi := opBits(p.Hi)
		return lo, hi, okLo && okHi
	default:
		return 0, 0, false
	}
}

// candidates collects the entries whose index keys the item hits, plus the
// linear scan list.
func (x *predIndex) candidates(it item.Item, out map[*entry]struct{}) {
	for field, byValue := range x.eq {
		v := item.Resolve(it, field)
		if v.IsAbsent() {
			continue
		}
		for _, e := range byValue[v.Text()] {
			out[e] = struct{}{}
		}
	}
	for field, buckets := range x.ranges {
		v := item.Resolve(it, field)
		b := v.BigInt()
		if b == nil {
			continue
		}
		for _, e := range buckets[b.BitLen()] {
			out[e] = struct{}{}
		}
	}
	for _, e := range x.linear {
		out[e] = struct{}{}
	}
}
