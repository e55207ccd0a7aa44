package proof

import "bytes"

// ItemKind selects one QueryItem's shape (spec.md §4.5).
type ItemKind uint8

const (
	Key ItemKind = iota
	Range
	RangeInclusive
	RangeFull
	RangeFrom
	RangeTo
	RangeToInclusive
	RangeAfter
	RangeAfterTo
	RangeAfterToInclusive
)

// Item is one disjoint query selector. Start/End are only meaningful per
// Kind: Key uses Start only; Range/RangeInclusive use both; RangeFrom/
// RangeAfter use Start only; RangeTo/RangeToInclusive use End only;
// RangeFull uses neither.
type Item struct {
	Kind  ItemKind
	Start []byte
	End   []byte
}

// Query is a sorted, disjoint list of Items plus optional limit/offset and
// traversal direction (spec.md §4.5).
type Query struct {
	Items       []Item
	Limit       *uint32
	Offset      *uint32
	LeftToRight bool
}

// NewQuery sorts items by lower bound. It does not merge overlapping items;
// callers are expected to pass already-disjoint selectors, matching how the
// grove layer builds one Query per path segment from a fixed QueryItem set.
func NewQuery(items []Item) *Query {
	q := &Query{Items: append([]Item(nil), items...), LeftToRight: true}
	sortItems(q.Items)
	return q
}

// bound is a canonical one-sided range endpoint: unbounded, or a key with
// an inclusive/exclusive flag.
type bound struct {
	key       []byte
	inclusive bool
	unbounded bool
}

// rangeItem is the canonical (lower, upper) bound pair every ItemKind
// reduces to, so split/containment logic is written once instead of once
// per Kind.
type rangeItem struct {
	lo, hi bound
}

func toRange(it Item) rangeItem {
	switch it.Kind {
	case Key:
		return rangeItem{lo: bound{key: it.Start, inclusive: true}, hi: bound{key: it.Start, inclusive: true}}
	case Range:
		return rangeItem{lo: bound{key: it.Start, inclusive: true}, hi: bound{key: it.End, inclusive: false}}
	case RangeInclusive:
		return rangeItem{lo: bound{key: it.Start, inclusive: true}, hi: bound{key: it.End, inclusive: true}}
	case RangeFull:
		return rangeItem{lo: bound{unbounded: true}, hi: bound{unbounded: true}}
	case RangeFrom:
		return rangeItem{lo: bound{key: it.Start, inclusive: true}, hi: bound{unbounded: true}}
	case RangeTo:
		return rangeItem{lo: bound{unbounded: true}, hi: bound{key: it.End, inclusive: false}}
	case RangeToInclusive:
		return rangeItem{lo: bound{unbounded: true}, hi: bound{key: it.End, inclusive: true}}
	case RangeAfter:
		return rangeItem{lo: bound{key: it.Start, inclusive: false}, hi: bound{unbounded: true}}
	case RangeAfterTo:
		return rangeItem{lo: bound{key: it.Start, inclusive: false}, hi: bound{key: it.End, inclusive: false}}
	case RangeAfterToInclusive:
		return rangeItem{lo: bound{key: it.Start, inclusive: false}, hi: bound{key: it.End, inclusive: true}}
	default:
		return rangeItem{}
	}
}

// lowerSortKey returns a key usable to sort rangeItems by lower bound; an
// unbounded lower bound sorts first.
func (r rangeItem) lowerSortKey() []byte {
	if r.lo.unbounded {
		return nil
	}
	return r.lo.key
}

func sortItems(items []Item) {
	ranges := make([]rangeItem, len(items))
	for i, it := range items {
		ranges[i] = toRange(it)
	}
	// simple insertion sort on the parallel slices; query item counts are
	// small (one Query per path segment) so O(n^2) is not a concern here.
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && lowerLess(ranges[j], ranges[j-1]) {
			items[j], items[j-1] = items[j-1], items[j]
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
			j--
		}
	}
}

func lowerLess(a, b rangeItem) bool {
	if a.lo.unbounded != b.lo.unbounded {
		return a.lo.unbounded
	}
	if a.lo.unbounded {
		return false
	}
	return bytes.Compare(a.lo.key, b.lo.key) < 0
}

// entirelyBelow reports whether every key in r is strictly below key (r's
// upper bound excludes key).
func (r rangeItem) entirelyBelow(key []byte) bool {
	if r.hi.unbounded {
		return false
	}
	c := bytes.Compare(r.hi.key, key)
	return c < 0 || (c == 0 && !r.hi.inclusive)
}

// entirelyAbove reports whether every key in r is strictly above key (r's
// lower bound excludes key).
func (r rangeItem) entirelyAbove(key []byte) bool {
	if r.lo.unbounded {
		return false
	}
	c := bytes.Compare(r.lo.key, key)
	return c > 0 || (c == 0 && !r.lo.inclusive)
}

// contains reports whether key falls inside r.
func (r rangeItem) contains(key []byte) bool {
	return !r.entirelyBelow(key) && !r.entirelyAbove(key)
}

// splitAt partitions canonical ranges against a node's key: ranges wholly
// below go left, wholly above go right, and any range straddling or
// touching key contributes clamped remainders to both sides plus marks the
// node itself as matched (spec.md §4.5 "split query subsets by binary-
// searching the node's key against the sorted query items").
func splitAt(ranges []rangeItem, key []byte) (left, right []rangeItem, matched bool) {
	for _, r := range ranges {
		switch {
		case r.entirelyBelow(key):
			left = append(left, r)
		case r.entirelyAbove(key):
			right = append(right, r)
		default:
			matched = true
			if r.lo.unbounded || bytes.Compare(r.lo.key, key) < 0 {
				left = append(left, rangeItem{lo: r.lo, hi: bound{key: key, inclusive: false}})
			}
			if r.hi.unbounded || bytes.Compare(r.hi.key, key) > 0 {
				right = append(right, rangeItem{lo: bound{key: key, inclusive: false}, hi: r.hi})
			}
		}
	}
	return left, right, matched
}

func rangesOf(items []Item) []rangeItem {
	out := make([]rangeItem, len(items))
	for i, it := range items {
		out[i] = toRange(it)
	}
	return out
}
