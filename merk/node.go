// Package merk implements the authenticated, self-balancing AVL tree that
// backs every GroveDB subtree (spec.md §3.2, §4.2): nodes keyed by their
// element's key, each carrying a value_hash/kv_hash/node_hash chain and a
// per-feature aggregate folded bottom-up from its two children.
//
// The node shape and its discriminant-first, length-prefixed encoding
// (key excluded from the persisted payload, since storage already keys by
// it) follow indexnode.go's binary layout; the recursive build/merge
// shape follows merkle/builder.go's buildTree, generalized from a
// perfectly-balanced, build-once Bitcoin tree to a self-balancing tree
// that supports point insert, update, and delete.
package merk

import (
	"encoding/binary"
	"fmt"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
)

// link is a reference to a child node: enough to compute this node's hash
// and aggregate, and to decide AVL balance, without loading the child.
// Loading the full child (via Tree.loadNode) is only needed when a
// traversal must continue past it.
type link struct {
	Key       []byte
	Hash      hash.Hash
	Height    int32
	Aggregate feature.Aggregate
}

// node is one persisted AVL node. Key is carried in memory only; storage
// already addresses nodes by it, so Key is never part of Encode's output.
type node struct {
	Key       []byte
	Element   element.Element
	ValueHash hash.Hash
	Left      *link
	Right     *link

	kvHash    hash.Hash
	nodeHash  hash.Hash
	height    int32
	aggregate feature.Aggregate
}

func childHeight(l *link) int32 {
	if l == nil {
		return 0
	}
	return l.Height
}

func childHash(l *link) hash.Hash {
	if l == nil {
		return hash.Zero
	}
	return l.Hash
}

func childAggregate(l *link) feature.Aggregate {
	if l == nil {
		return feature.Aggregate{}
	}
	return l.Aggregate
}

func balanceFactor(n *node) int32 {
	return childHeight(n.Left) - childHeight(n.Right)
}

// ownContribution is the aggregate a node contributes on its own, before
// folding in its two AVL children (spec.md §3.2): for an Item-family
// element, its sum/count value; for a Tree-family portal, the nested
// subtree's own declared aggregate (it has no other path into the parent
// Merk's aggregate); for anything else (references, non-Merk portals),
// zero.
func ownContribution(f feature.Kind, el element.Element) feature.Aggregate {
	switch {
	case el.Kind.IsTree():
		return el.Aggregate
	case el.Kind == element.SumItem || el.Kind == element.ItemWithSumItem || el.Kind == element.SumItemWithBackwardsReferences:
		return feature.OwnContribution(f, el.SumValue, true)
	case el.Kind == element.Item || el.Kind == element.ItemWithBackwardsReferences:
		return feature.OwnContribution(f, 0, true)
	default:
		return feature.Aggregate{}
	}
}

// recompute fills in n's kvHash, nodeHash, height, and aggregate from its
// Element, ValueHash, and current Left/Right links. Callers must call this
// any time any of those inputs change, and before storing n.
func (n *node) recompute(f feature.Kind) error {
	n.kvHash = hash.KVHash(n.Key, n.ValueHash)
	plain := hash.NodeHash(n.kvHash, childHash(n.Left), childHash(n.Right))

	agg, err := feature.Combine(f, ownContribution(f, n.Element), childAggregate(n.Left), childAggregate(n.Right))
	if err != nil {
		return fmt.Errorf("merk: %x: %w", n.Key, err)
	}
	n.aggregate = agg

	if f.Provable() {
		n.nodeHash = hash.NodeHashWithCount(plain, agg.Count)
	} else {
		n.nodeHash = plain
	}

	h := childHeight(n.Left)
	if r := childHeight(n.Right); r > h {
		h = r
	}
	n.height = h + 1
	return nil
}

func (n *node) asLink() *link {
	return &link{Key: n.Key, Hash: n.nodeHash, Height: n.height, Aggregate: n.aggregate}
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func takeBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("merk: truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	if len(b) < n {
		return nil, nil, fmt.Errorf("merk: truncated field, want %d have %d", n, len(b))
	}
	return b[:n], b[n:], nil
}

func encodeLink(buf []byte, l *link, f feature.Kind) []byte {
	if l == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = appendBytes(buf, l.Key)
	buf = append(buf, l.Hash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(l.Height))
	buf = appendBytes(buf, feature.Encode(f, l.Aggregate))
	return buf
}

func decodeLink(b []byte, f feature.Kind) (*link, []byte, error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("merk: truncated link presence flag")
	}
	present := b[0]
	b = b[1:]
	if present == 0 {
		return nil, b, nil
	}
	l := &link{}
	var key []byte
	var err error
	key, b, err = takeBytes(b)
	if err != nil {
		return nil, nil, err
	}
	l.Key = append([]byte(nil), key...)

	if len(b) < hash.Size {
		return nil, nil, fmt.Errorf("merk: truncated link hash")
	}
	l.Hash = hash.FromBytes(b[:hash.Size])
	b = b[hash.Size:]

	if len(b) < 4 {
		return nil, nil, fmt.Errorf("merk: truncated link height")
	}
	l.Height = int32(binary.BigEndian.Uint32(b[:4]))
	b = b[4:]

	var aggBytes []byte
	aggBytes, b, err = takeBytes(b)
	if err != nil {
		return nil, nil, err
	}
	_, agg, _, err := feature.Decode(aggBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("merk: link aggregate: %w", err)
	}
	l.Aggregate = agg

	return l, b, nil
}

// encode serializes n's persisted fields: Element, ValueHash, Left, Right.
// kvHash/nodeHash/height/aggregate are recomputed on load rather than
// stored, since they are a pure function of those fields plus the
// subtree's feature kind.
func (n *node) encode(f feature.Kind) []byte {
	var buf []byte
	buf = appendBytes(buf, element.Encode(n.Element))
	buf = append(buf, n.ValueHash[:]...)
	buf = encodeLink(buf, n.Left, f)
	buf = encodeLink(buf, n.Right, f)
	return buf
}

// decodeNode parses a node previously produced by encode, then recomputes
// its derived fields.
func decodeNode(key, b []byte, f feature.Kind) (*node, error) {
	n := &node{Key: append([]byte(nil), key...)}

	elBytes, b, err := takeBytes(b)
	if err != nil {
		return nil, err
	}
	n.Element, err = element.Decode(elBytes)
	if err != nil {
		return nil, fmt.Errorf("merk: %x: element: %w", key, err)
	}

	if len(b) < hash.Size {
		return nil, fmt.Errorf("merk: %x: truncated value hash", key)
	}
	n.ValueHash = hash.FromBytes(b[:hash.Size])
	b = b[hash.Size:]

	n.Left, b, err = decodeLink(b, f)
	if err != nil {
		return nil, err
	}
	n.Right, b, err = decodeLink(b, f)
	if err != nil {
		return nil, err
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("merk: %x: %d trailing bytes", key, len(b))
	}

	if err := n.recompute(f); err != nil {
		return nil, err
	}
	return n, nil
}
