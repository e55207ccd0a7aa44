package merk

import (
	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
)

// ChildView is the read-only view of a child link a proof generator needs:
// enough to either recurse into it or bind it into a hash as an opaque
// sibling, without deciding which up front.
type ChildView struct {
	Key  []byte
	Hash hash.Hash
}

// NodeView is the read-only projection of a persisted node that the proof
// package (spec.md §4.5) walks to build a proof stream, without reaching
// into merk's unexported node/link types.
type NodeView struct {
	Key       []byte
	Element   element.Element
	ValueHash hash.Hash
	KVHash    hash.Hash
	NodeHash  hash.Hash
	Aggregate feature.Aggregate
	Left      *ChildView
	Right     *ChildView
}

func viewOf(n *node) *NodeView {
	v := &NodeView{
		Key:       n.Key,
		Element:   n.Element,
		ValueHash: n.ValueHash,
		KVHash:    n.kvHash,
		NodeHash:  n.nodeHash,
		Aggregate: n.aggregate,
	}
	if n.Left != nil {
		v.Left = &ChildView{Key: n.Left.Key, Hash: n.Left.Hash}
	}
	if n.Right != nil {
		v.Right = &ChildView{Key: n.Right.Key, Hash: n.Right.Hash}
	}
	return v
}

// View loads the node at key and returns a read-only projection of it, or
// nil if key is nil (the caller's signal for an empty subtree).
func (t *Tree) View(key []byte) (*NodeView, error) {
	if key == nil {
		return nil, nil
	}
	n, err := t.loadNode(key)
	if err != nil {
		return nil, err
	}
	return viewOf(n), nil
}
