package proof

import (
	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/merk"
)

// Result is one (key, element) pair a proof reveals in full, together with
// the value_hash the Merk layer bound into that node's kv_hash (per-kind:
// see element.ValueHash), so a caller composing a multi-layer proof can
// check a revealed Tree/Reference element's binding without recomputing it
// from scratch against live storage.
type Result struct {
	Key       []byte
	Element   element.Element
	ValueHash hash.Hash
}

// Proved bundles the op stream produced for a query together with the
// results it revealed and the subtree's current root hash.
type Proved struct {
	Stream   *Stream
	Results  []Result
	RootHash hash.Hash
}

// budget tracks the remaining offset-to-skip and limit-to-return for one
// proof generation pass, consumed in traversal order (spec.md §4.5).
type budget struct {
	offset *uint32
	limit  *uint32
}

// take reports whether the node currently being visited should be revealed
// in full and counted against limit, consuming one unit of offset or limit
// as appropriate. Called only for nodes that fall inside the query.
func (b *budget) take() bool {
	if b.offset != nil && *b.offset > 0 {
		*b.offset--
		return false
	}
	if b.limit != nil {
		if *b.limit == 0 {
			return false
		}
		*b.limit--
	}
	return true
}

// Prove walks tree and builds a proof stream covering q, returning the
// matched results in the order the query traverses them (ascending key
// order when q.LeftToRight, descending otherwise).
func Prove(tree *merk.Tree, q *Query) (*Proved, error) {
	rootKey, err := tree.RootKey()
	if err != nil {
		return nil, err
	}
	root, err := tree.RootHash()
	if err != nil {
		return nil, err
	}

	p := &prover{tree: tree, ltr: q.LeftToRight, bud: &budget{offset: q.Offset, limit: q.Limit}}
	ops, err := p.walk(rootKey, rangesOf(q.Items))
	if err != nil {
		return nil, err
	}
	return &Proved{Stream: &Stream{Ops: ops}, Results: p.results, RootHash: root}, nil
}

type prover struct {
	tree    *merk.Tree
	ltr     bool
	bud     *budget
	results []Result
}

// side produces the proof ops for one child slot: nil if the child does
// not exist, a single opaque NodeHash push if the child exists but no
// query range reaches it, or a full recursive walk otherwise.
func (p *prover) side(child *merk.ChildView, ranges []rangeItem) ([]Op, bool, error) {
	if child == nil {
		return nil, false, nil
	}
	if len(ranges) == 0 {
		return []Op{{Kind: OpPush, Push: Node{Kind: NodeHash, Hash: child.Hash}}}, true, nil
	}
	ops, err := p.walk(child.Key, ranges)
	return ops, true, err
}

func (p *prover) walk(key []byte, ranges []rangeItem) ([]Op, error) {
	if key == nil || len(ranges) == 0 {
		return nil, nil
	}
	view, err := p.tree.View(key)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, nil
	}

	left, right, matched := splitAt(ranges, view.Key)

	firstRanges, secondRanges := left, right
	firstChild, secondChild := view.Left, view.Right
	parentKind, childKind := OpParent, OpChild
	if !p.ltr {
		firstRanges, secondRanges = right, left
		firstChild, secondChild = view.Right, view.Left
		parentKind, childKind = OpParentInverted, OpChildInverted
	}

	firstOps, firstPresent, err := p.side(firstChild, firstRanges)
	if err != nil {
		return nil, err
	}

	self := p.reveal(view, matched)

	var ops []Op
	if firstPresent {
		ops = append(ops, firstOps...)
	}
	ops = append(ops, Op{Kind: OpPush, Push: self})
	if firstPresent {
		ops = append(ops, Op{Kind: parentKind})
	}

	secondOps, secondPresent, err := p.side(secondChild, secondRanges)
	if err != nil {
		return nil, err
	}
	if secondPresent {
		ops = append(ops, secondOps...)
		ops = append(ops, Op{Kind: childKind})
	}

	return ops, nil
}

// reveal decides how much of view to expose: a full value when it falls
// inside the query and the offset/limit budget has room, a key-and-hash
// digest otherwise (still binding the node into the hash chain without
// handing back its value).
func (p *prover) reveal(v *merk.NodeView, matched bool) Node {
	provable := p.tree.Feature().Provable()
	if matched && p.bud.take() {
		p.results = append(p.results, Result{Key: v.Key, Element: v.Element, ValueHash: v.ValueHash})
		if provable {
			return Node{Kind: NodeKVCount, Key: v.Key, Value: element.Encode(v.Element), ValueHash: v.ValueHash, Aggregate: v.Aggregate}
		}
		return Node{Kind: NodeKVValueHash, Key: v.Key, Value: element.Encode(v.Element), ValueHash: v.ValueHash}
	}
	if provable {
		return Node{Kind: NodeKVDigestCount, Key: v.Key, ValueHash: v.ValueHash, Aggregate: v.Aggregate}
	}
	return Node{Kind: NodeKVDigest, Key: v.Key, ValueHash: v.ValueHash}
}
