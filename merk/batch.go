package merk

import (
	"errors"
	"sort"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/hash"
)

// OpKind is the Merk-level batch operation kind (spec.md §4.3): the subset
// of a GroveOp that ends up as a point mutation against one subtree's
// Merk, after the grove layer has resolved references and nested subtree
// roots into a concrete Element and value_hash.
type OpKind uint8

const (
	// OpPut inserts or unconditionally overwrites key.
	OpPut OpKind = iota
	// OpPutCombinedReference is OpPut restricted to reference-kind elements.
	OpPutCombinedReference
	// OpReplace overwrites an existing key; it fails if key is absent.
	OpReplace
	// OpPatch overwrites an existing key, requiring the new element to be
	// the same Kind as what is already stored (a partial update that
	// preserves the slot's shape).
	OpPatch
	// OpDelete removes key unconditionally (a no-op if already absent).
	OpDelete
	// OpDeleteLayered removes key, refusing to leave a non-empty nested
	// subtree dangling: deleting a Tree-family portal whose RootKey is
	// non-nil is rejected.
	OpDeleteLayered
	// OpDeleteMaybeSpecialized removes key, applying OpDeleteLayered's
	// non-empty-subtree safeguard only when the stored element happens to
	// be a Tree-family portal, and behaving as a plain OpDelete otherwise.
	OpDeleteMaybeSpecialized
)

// Op is one Merk-level batch operation.
type Op struct {
	Kind      OpKind
	Key       []byte
	Element   element.Element
	ValueHash hash.Hash
}

var (
	ErrKeyNotFound      = errors.New("merk: key not found")
	ErrKindMismatch     = errors.New("merk: element kind mismatch")
	ErrNotAReference    = errors.New("merk: element is not a reference")
	ErrSubtreeNotEmpty  = errors.New("merk: refusing to delete a non-empty nested subtree")
)

// ApplyBatch applies every op to the tree in deterministic (ascending key)
// order, matching spec.md §5's determinism requirement for per-subtree
// batch application. Ops are applied against the same Context this Tree
// was Opened with, so the caller controls whether they are buffered
// (transactional) or immediate.
func (t *Tree) ApplyBatch(ops []Op) error {
	sorted := append([]Op(nil), ops...)
	sort.Slice(sorted, func(i, j int) bool { return compareKeys(sorted[i].Key, sorted[j].Key) < 0 })

	for _, op := range sorted {
		if err := t.applyOne(op); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) applyOne(op Op) error {
	switch op.Kind {
	case OpPut:
		return t.Put(op.Key, op.Element, op.ValueHash)

	case OpPutCombinedReference:
		if !op.Element.Kind.IsReference() {
			return ErrNotAReference
		}
		return t.Put(op.Key, op.Element, op.ValueHash)

	case OpReplace:
		_, found, err := t.Get(op.Key)
		if err != nil {
			return err
		}
		if !found {
			return ErrKeyNotFound
		}
		return t.Put(op.Key, op.Element, op.ValueHash)

	case OpPatch:
		existing, found, err := t.Get(op.Key)
		if err != nil {
			return err
		}
		if !found {
			return ErrKeyNotFound
		}
		if existing.Kind != op.Element.Kind {
			return ErrKindMismatch
		}
		return t.Put(op.Key, op.Element, op.ValueHash)

	case OpDelete:
		return t.Delete(op.Key)

	case OpDeleteLayered:
		existing, found, err := t.Get(op.Key)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if existing.Kind.IsTree() && existing.RootKey != nil {
			return ErrSubtreeNotEmpty
		}
		return t.Delete(op.Key)

	case OpDeleteMaybeSpecialized:
		existing, found, err := t.Get(op.Key)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if existing.Kind.IsTree() && existing.RootKey != nil {
			return ErrSubtreeNotEmpty
		}
		return t.Delete(op.Key)

	default:
		return ErrKindMismatch
	}
}
