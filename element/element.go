// Package element implements the Element tagged union stored at every Merk
// key (spec.md §3.3): plain items, references, and subtree portals of every
// feature flavor, plus the non-Merk leaf portals. Encoding follows
// indexnode.go's discriminant-first, flags-and-optional-fields layout,
// generalized from a single index-entry shape to a closed set of element
// kinds with an append-only discriminant so old data always decodes.
package element

import (
	"encoding/binary"
	"fmt"

	"github.com/grovedb/grovedb/feature"
)

// Kind is the element discriminant, encoded as the first byte of every
// persisted element. New kinds are appended; existing values are never
// reused (spec.md §9).
type Kind uint8

const (
	Item Kind = iota
	Reference
	Tree
	SumItem
	SumTree
	BigSumTree
	CountTree
	CountSumTree
	ProvableCountTree
	ProvableCountSumTree
	ItemWithSumItem
	// CommitmentTree, MmrTree, BulkAppendTree, and DenseTree are portals to
	// non-Merk opaque leaf engines (spec.md §3.7): the subtree they name is
	// not a Merk at all, so they carry engine metadata instead of a Merk
	// root_key.
	CommitmentTree
	MmrTree
	BulkAppendTree
	DenseTree
	// BidirectionalReference, ItemWithBackwardsReferences, and
	// SumItemWithBackwardsReferences extend Reference/Item/SumItem with
	// backpointer bookkeeping (spec.md §3.5).
	BidirectionalReference
	ItemWithBackwardsReferences
	SumItemWithBackwardsReferences
)

func (k Kind) String() string {
	switch k {
	case Item:
		return "Item"
	case Reference:
		return "Reference"
	case Tree:
		return "Tree"
	case SumItem:
		return "SumItem"
	case SumTree:
		return "SumTree"
	case BigSumTree:
		return "BigSumTree"
	case CountTree:
		return "CountTree"
	case CountSumTree:
		return "CountSumTree"
	case ProvableCountTree:
		return "ProvableCountTree"
	case ProvableCountSumTree:
		return "ProvableCountSumTree"
	case ItemWithSumItem:
		return "ItemWithSumItem"
	case CommitmentTree:
		return "CommitmentTree"
	case MmrTree:
		return "MmrTree"
	case BulkAppendTree:
		return "BulkAppendTree"
	case DenseTree:
		return "DenseTree"
	case BidirectionalReference:
		return "BidirectionalReference"
	case ItemWithBackwardsReferences:
		return "ItemWithBackwardsReferences"
	case SumItemWithBackwardsReferences:
		return "SumItemWithBackwardsReferences"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IsTree reports whether this kind names a Merk subtree portal (as opposed
// to a leaf value or a non-Merk leaf portal).
func (k Kind) IsTree() bool {
	switch k {
	case Tree, SumTree, BigSumTree, CountTree, CountSumTree, ProvableCountTree, ProvableCountSumTree:
		return true
	default:
		return false
	}
}

// IsNonMerkLeaf reports whether this kind names a portal to an opaque
// non-Merk append structure (spec.md §3.7).
func (k Kind) IsNonMerkLeaf() bool {
	switch k {
	case CommitmentTree, MmrTree, BulkAppendTree, DenseTree:
		return true
	default:
		return false
	}
}

// IsReference reports whether this kind resolves through the reference
// machinery before use.
func (k Kind) IsReference() bool {
	return k == Reference || k == BidirectionalReference
}

// Feature returns the feature.Kind a tree-portal element kind maintains.
// Panics if k is not a tree kind; callers must check IsTree first.
func (k Kind) Feature() feature.Kind {
	switch k {
	case Tree:
		return feature.Basic
	case SumTree:
		return feature.Summed
	case BigSumTree:
		return feature.BigSummed
	case CountTree:
		return feature.Counted
	case CountSumTree:
		return feature.CountedSummed
	case ProvableCountTree:
		return feature.ProvableCounted
	case ProvableCountSumTree:
		return feature.ProvableCountedSummed
	default:
		panic(fmt.Sprintf("element: Feature() called on non-tree kind %v", k))
	}
}

// TreeKindForFeature returns the tree portal Kind that maintains the given
// feature flavor.
func TreeKindForFeature(f feature.Kind) Kind {
	switch f {
	case feature.Basic:
		return Tree
	case feature.Summed:
		return SumTree
	case feature.BigSummed:
		return BigSumTree
	case feature.Counted:
		return CountTree
	case feature.CountedSummed:
		return CountSumTree
	case feature.ProvableCounted:
		return ProvableCountTree
	case feature.ProvableCountedSummed:
		return ProvableCountSumTree
	default:
		panic(fmt.Sprintf("element: no tree kind for feature %v", f))
	}
}

// NonMerkMeta carries the small header an opaque leaf engine keeps on its
// portal element, mirroring indexnode.go's count/power/height header
// fields. Only the fields relevant to Kind are meaningful.
type NonMerkMeta struct {
	Count  uint64 // MmrTree leaf count, BulkAppendTree entry count
	Power  uint32 // CommitmentTree Sinsemilla generator power, if applicable
	Height uint32 // DenseTree fixed-size entry count per leaf page
}

// Element is the tagged union persisted at a Merk key. It is modeled as one
// struct with a discriminant and kind-specific optional fields, in the
// style of indexnode.go's single-struct, flag-gated record rather than a Go
// sum-type simulation: only the fields relevant to Kind are populated.
type Element struct {
	Kind Kind

	// Item, SumItem, ItemWithSumItem, ItemWithBackwardsReferences,
	// SumItemWithBackwardsReferences.
	Value    []byte
	SumValue int64

	// Reference, BidirectionalReference.
	Spec             PathSpec
	MaxHops          *uint32
	CascadeOnUpdate  bool // BidirectionalReference only: backward-ref cascade policy at the target

	// Tree-family portals: nil RootKey means an empty subtree.
	RootKey []byte
	// Aggregate is the portal's own declared aggregate contribution for
	// Sum/BigSum/Count tree kinds (spec.md §3.2 OwnContribution); zero for Tree.
	Aggregate feature.Aggregate

	// Non-Merk leaf portals.
	NonMerk NonMerkMeta

	Flags []byte
}

// NewItem builds a plain Item element.
func NewItem(value []byte) Element {
	return Element{Kind: Item, Value: value}
}

// NewSumItem builds a SumItem element.
func NewSumItem(sum int64) Element {
	return Element{Kind: SumItem, SumValue: sum}
}

// NewReference builds a Reference element with the given path spec and
// optional per-reference hop cap (nil defers to the process-wide default).
func NewReference(spec PathSpec, maxHops *uint32) Element {
	return Element{Kind: Reference, Spec: spec, MaxHops: maxHops}
}

// NewTree builds an empty subtree portal element for the given feature.
func NewTree(f feature.Kind) Element {
	return Element{Kind: TreeKindForFeature(f)}
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func takeBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("element: truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	if len(b) < n {
		return nil, nil, fmt.Errorf("element: truncated field, want %d bytes have %d", n, len(b))
	}
	return b[:n], b[n:], nil
}

func encodePathSpec(buf []byte, s PathSpec) []byte {
	buf = append(buf, byte(s.Kind))
	buf = binary.BigEndian.AppendUint32(buf, s.N)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.Segments)))
	for _, seg := range s.Segments {
		buf = appendBytes(buf, seg)
	}
	return buf
}

func decodePathSpec(b []byte) (PathSpec, []byte, error) {
	if len(b) < 9 {
		return PathSpec{}, nil, fmt.Errorf("element: truncated path spec header")
	}
	s := PathSpec{Kind: PathSpecKind(b[0])}
	s.N = binary.BigEndian.Uint32(b[1:5])
	count := binary.BigEndian.Uint32(b[5:9])
	b = b[9:]
	s.Segments = make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		var seg []byte
		var err error
		seg, b, err = takeBytes(b)
		if err != nil {
			return PathSpec{}, nil, err
		}
		s.Segments = append(s.Segments, append([]byte(nil), seg...))
	}
	return s, b, nil
}

// Encode serializes an element to its stable on-disk form: discriminant
// byte first, then kind-specific fields in fixed order, then trailing
// optional flags (spec.md §3.3, §9: discriminants and field order are
// append-only).
func Encode(e Element) []byte {
	buf := []byte{byte(e.Kind)}

	switch e.Kind {
	case Item, ItemWithSumItem, ItemWithBackwardsReferences, SumItemWithBackwardsReferences:
		buf = appendBytes(buf, e.Value)
		if e.Kind == ItemWithSumItem || e.Kind == SumItemWithBackwardsReferences {
			buf = binary.BigEndian.AppendUint64(buf, uint64(e.SumValue))
		}

	case SumItem:
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.SumValue))

	case Reference, BidirectionalReference:
		buf = encodePathSpec(buf, e.Spec)
		if e.MaxHops != nil {
			buf = append(buf, 1)
			buf = binary.BigEndian.AppendUint32(buf, *e.MaxHops)
		} else {
			buf = append(buf, 0)
		}
		if e.Kind == BidirectionalReference {
			if e.CascadeOnUpdate {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}

	case Tree, SumTree, BigSumTree, CountTree, CountSumTree, ProvableCountTree, ProvableCountSumTree:
		buf = appendBytes(buf, e.RootKey)
		buf = appendBytes(buf, feature.Encode(e.Kind.Feature(), e.Aggregate))

	case CommitmentTree, MmrTree, BulkAppendTree, DenseTree:
		buf = binary.BigEndian.AppendUint64(buf, e.NonMerk.Count)
		buf = binary.BigEndian.AppendUint32(buf, e.NonMerk.Power)
		buf = binary.BigEndian.AppendUint32(buf, e.NonMerk.Height)
	}

	buf = appendBytes(buf, e.Flags)
	return buf
}

// Decode parses an element previously produced by Encode.
func Decode(b []byte) (Element, error) {
	if len(b) < 1 {
		return Element{}, fmt.Errorf("element: empty encoding")
	}
	e := Element{Kind: Kind(b[0])}
	b = b[1:]
	var err error

	switch e.Kind {
	case Item, ItemWithSumItem, ItemWithBackwardsReferences, SumItemWithBackwardsReferences:
		var v []byte
		v, b, err = takeBytes(b)
		if err != nil {
			return Element{}, err
		}
		e.Value = append([]byte(nil), v...)
		if e.Kind == ItemWithSumItem || e.Kind == SumItemWithBackwardsReferences {
			if len(b) < 8 {
				return Element{}, fmt.Errorf("element: truncated sum value")
			}
			e.SumValue = int64(binary.BigEndian.Uint64(b[:8]))
			b = b[8:]
		}

	case SumItem:
		if len(b) < 8 {
			return Element{}, fmt.Errorf("element: truncated sum value")
		}
		e.SumValue = int64(binary.BigEndian.Uint64(b[:8]))
		b = b[8:]

	case Reference, BidirectionalReference:
		e.Spec, b, err = decodePathSpec(b)
		if err != nil {
			return Element{}, err
		}
		if len(b) < 1 {
			return Element{}, fmt.Errorf("element: truncated max-hops presence flag")
		}
		present := b[0]
		b = b[1:]
		if present == 1 {
			if len(b) < 4 {
				return Element{}, fmt.Errorf("element: truncated max hops")
			}
			n := binary.BigEndian.Uint32(b[:4])
			e.MaxHops = &n
			b = b[4:]
		}
		if e.Kind == BidirectionalReference {
			if len(b) < 1 {
				return Element{}, fmt.Errorf("element: truncated cascade flag")
			}
			e.CascadeOnUpdate = b[0] == 1
			b = b[1:]
		}

	case Tree, SumTree, BigSumTree, CountTree, CountSumTree, ProvableCountTree, ProvableCountSumTree:
		var rootKey, aggBytes []byte
		rootKey, b, err = takeBytes(b)
		if err != nil {
			return Element{}, err
		}
		if len(rootKey) > 0 {
			e.RootKey = append([]byte(nil), rootKey...)
		}
		aggBytes, b, err = takeBytes(b)
		if err != nil {
			return Element{}, err
		}
		_, agg, _, err := feature.Decode(aggBytes)
		if err != nil {
			return Element{}, fmt.Errorf("element: aggregate: %w", err)
		}
		e.Aggregate = agg

	case CommitmentTree, MmrTree, BulkAppendTree, DenseTree:
		if len(b) < 16 {
			return Element{}, fmt.Errorf("element: truncated non-merk meta")
		}
		e.NonMerk.Count = binary.BigEndian.Uint64(b[0:8])
		e.NonMerk.Power = binary.BigEndian.Uint32(b[8:12])
		e.NonMerk.Height = binary.BigEndian.Uint32(b[12:16])
		b = b[16:]

	default:
		return Element{}, fmt.Errorf("element: unknown kind %d", e.Kind)
	}

	var flags []byte
	flags, b, err = takeBytes(b)
	if err != nil {
		return Element{}, err
	}
	if len(flags) > 0 {
		e.Flags = append([]byte(nil), flags...)
	}
	if len(b) != 0 {
		return Element{}, fmt.Errorf("element: %d trailing bytes after decode", len(b))
	}
	return e, nil
}
