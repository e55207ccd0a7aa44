package grove

import (
	"fmt"
	"sort"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/treecache"
)

// GroveOpKind is one cross-subtree batch operation (spec.md §4.4): the
// first seven variants mirror merk.OpKind exactly, carrying a resolved
// Element rather than merk.Op's pre-resolved value_hash (ApplyBatch
// resolves reference and nested-tree bindings itself, the same way Insert
// does for a single op); the remaining four append a value onto an
// existing non-Merk leaf engine (spec.md §3.7), which has no single-op
// equivalent in merk.Op.
type GroveOpKind uint8

const (
	OpPut GroveOpKind = iota
	OpPutCombinedReference
	OpReplace
	OpPatch
	OpDelete
	OpDeleteLayered
	OpDeleteMaybeSpecialized
	OpMmrAppend
	OpBulkAppend
	OpDenseInsert
	OpCommitmentAppend
)

func (k GroveOpKind) isAppend() bool {
	switch k {
	case OpMmrAppend, OpBulkAppend, OpDenseInsert, OpCommitmentAppend:
		return true
	default:
		return false
	}
}

func (k GroveOpKind) isWrite() bool {
	switch k {
	case OpPut, OpPutCombinedReference, OpReplace, OpPatch:
		return true
	default:
		return false
	}
}

func (k GroveOpKind) merkKind() merk.OpKind {
	switch k {
	case OpPut:
		return merk.OpPut
	case OpPutCombinedReference:
		return merk.OpPutCombinedReference
	case OpReplace:
		return merk.OpReplace
	case OpPatch:
		return merk.OpPatch
	case OpDelete:
		return merk.OpDelete
	case OpDeleteLayered:
		return merk.OpDeleteLayered
	case OpDeleteMaybeSpecialized:
		return merk.OpDeleteMaybeSpecialized
	default:
		panic("grove: merkKind called on an append op")
	}
}

// GroveOp is one entry of a cross-subtree batch (spec.md §4.4).
type GroveOp struct {
	Path    *path.Path
	Key     []byte
	Kind    GroveOpKind
	Element element.Element // Put/PutCombinedReference/Replace/Patch
	Value   []byte          // append ops
}

// BatchOptions configures ApplyBatch (spec.md §4.4, §3.5).
type BatchOptions struct {
	PropagateBackwardReferences bool
}

type subtreeGroup struct {
	path *path.Path
	ops  []GroveOp
}

// ApplyBatch applies ops atomically across however many subtrees they
// touch (spec.md §4.4, phases 1-4): operations are validated and grouped
// by subtree, non-Merk leaf appends are folded into a single portal update
// per (path, key), each subtree's Merk-level ops are applied in one
// traversal, every touched subtree's new root is propagated upward once,
// and the whole result is flushed in a single storage batch — so either
// every op lands or none do.
func (db *DB) ApplyBatch(tx *Txn, ops []GroveOp, opts BatchOptions) error {
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		if op.Path == nil {
			return fmt.Errorf("grove: %w: batch op has a nil path", ErrInvalidBatchOperation)
		}
		switch {
		case op.Kind.isAppend():
			if len(op.Value) == 0 {
				return fmt.Errorf("grove: %w: append op carries no value", ErrInvalidBatchOperation)
			}
		case op.Kind.isWrite():
			if op.Element.Kind.IsTree() && op.Element.RootKey != nil {
				return fmt.Errorf("grove: %w: batch-written tree elements must start empty", ErrInvalidBatchOperation)
			}
			if op.Kind == OpPutCombinedReference && !op.Element.Kind.IsReference() {
				return fmt.Errorf("grove: %w: PutCombinedReference requires a reference element", ErrInvalidBatchOperation)
			}
		}
	}
	appendKeys := map[string]bool{}
	for _, op := range ops {
		if op.Kind.isAppend() {
			appendKeys[visitKey(op.Path, op.Key)] = true
		}
	}
	for _, op := range ops {
		if !op.Kind.isAppend() && appendKeys[visitKey(op.Path, op.Key)] {
			return fmt.Errorf("grove: %w: append and merk op on the same key", ErrInvalidBatchOperation)
		}
	}

	return db.withTxn(tx, func(t *Txn) error {
		tc := db.newCache(t.txn)

		groups := map[string]*subtreeGroup{}
		var order []string
		for _, op := range ops {
			k := op.Path.String()
			g, ok := groups[k]
			if !ok {
				g = &subtreeGroup{path: op.Path}
				groups[k] = g
				order = append(order, k)
			}
			g.ops = append(g.ops, op)
		}
		sort.Strings(order)

		for _, k := range order {
			g := groups[k]
			tree, err := openSubtree(tc, g.path)
			if err != nil {
				return err
			}

			merged, err := mergeAppends(tc, g.path, g.ops)
			if err != nil {
				return err
			}

			merkOps := make([]merk.Op, 0, len(merged))
			for _, op := range merged {
				mop, err := toMerkOp(tc, g.path, op, opts)
				if err != nil {
					return err
				}
				merkOps = append(merkOps, mop)
			}
			if err := tree.ApplyBatch(merkOps); err != nil {
				return fmt.Errorf("grove: %w: %v", ErrInvalidBatchOperation, err)
			}
		}

		if err := propagateAll(tc); err != nil {
			return err
		}
		return flushBatch(t, tc)
	})
}

// mergeAppends folds every append op targeting the same (path, key) in g
// into the portal's final state, applied in the original slice order
// (spec.md §4.4: "multiple appends to the same non-Merk tree in a single
// batch are supported and ordered"), producing one OpPatch per distinct
// appended-to key in place of the individual append ops. Non-append ops
// pass through unchanged, in their original relative order.
func mergeAppends(tc *treecache.Cache, p *path.Path, ops []GroveOp) ([]GroveOp, error) {
	type pending struct {
		kind element.Kind
		eng  nonMerkEngine
	}
	byKey := map[string]*pending{}
	var keyOrder []string
	var out []GroveOp

	tree, err := openSubtree(tc, p)
	if err != nil {
		return nil, err
	}

	for _, op := range ops {
		if !op.Kind.isAppend() {
			out = append(out, op)
			continue
		}
		kstr := string(op.Key)
		pend, ok := byKey[kstr]
		if !ok {
			el, found, err := tree.Get(op.Key)
			if err != nil {
				return nil, err
			}
			if !found || !el.Kind.IsNonMerkLeaf() {
				return nil, fmt.Errorf("grove: %x: %w: not a non-merk leaf", op.Key, ErrWrongElementKind)
			}
			eng, err := loadNonMerkEngine(tc, p, op.Key, el.Kind, el.NonMerk)
			if err != nil {
				return nil, err
			}
			pend = &pending{kind: el.Kind, eng: eng}
			byKey[kstr] = pend
			keyOrder = append(keyOrder, kstr)
		}
		if err := applyNonMerkAppend(pend.eng, pend.kind, op.Value); err != nil {
			return nil, err
		}
	}

	for _, kstr := range keyOrder {
		key := []byte(kstr)
		pend := byKey[kstr]
		flushIfNeeded(pend.eng)
		if err := storeNonMerkEngine(tc, p, key, pend.eng); err != nil {
			return nil, err
		}

		existing, _, err := tree.Get(key)
		if err != nil {
			return nil, err
		}
		updated := existing
		updated.NonMerk.Count = engineCount(pend.eng)
		out = append(out, GroveOp{Path: p, Key: key, Kind: OpPatch, Element: updated})
	}
	return out, nil
}

// toMerkOp resolves op into a merk.Op: Reference-family elements need
// their value_hash computed against the state their target currently
// holds, the same binding Insert performs for a single op, and
// propagate_backward_references cascades run against whatever the key
// held before this op lands.
func toMerkOp(tc *treecache.Cache, p *path.Path, op GroveOp, opts BatchOptions) (merk.Op, error) {
	if op.Kind.isAppend() {
		return merk.Op{}, fmt.Errorf("grove: %w: append op escaped merging", ErrInvalidBatchOperation)
	}

	tree, err := openSubtree(tc, p)
	if err != nil {
		return merk.Op{}, err
	}

	if !op.Kind.isWrite() {
		if opts.PropagateBackwardReferences {
			existing, found, err := tree.Get(op.Key)
			if err != nil {
				return merk.Op{}, err
			}
			if found {
				if err := cascadeOnDelete(tc, p, op.Key, existing); err != nil {
					return merk.Op{}, err
				}
			}
		}
		return merk.Op{Kind: op.Kind.merkKind(), Key: op.Key}, nil
	}

	var before element.Element
	var found bool
	if opts.PropagateBackwardReferences {
		before, found, err = tree.Get(op.Key)
		if err != nil {
			return merk.Op{}, err
		}
	}

	vh, err := elementValueHash(tc, p, op.Key, op.Element)
	if err != nil {
		return merk.Op{}, err
	}

	if opts.PropagateBackwardReferences {
		if err := cascadeOnWrite(tc, p, op.Key, before, found, op.Element); err != nil {
			return merk.Op{}, err
		}
	}

	return merk.Op{Kind: op.Kind.merkKind(), Key: op.Key, Element: op.Element, ValueHash: vh}, nil
}
