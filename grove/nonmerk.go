package grove

import (
	"fmt"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/nonmerk"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/storage"
	"github.com/grovedb/grovedb/treecache"
)

var nonMerkStateKey = []byte("state")

// nonMerkPrefix derives a non-Merk leaf's own storage namespace the same
// way a nested Merk subtree gets one: by treating (path, key) as if it were
// itself a subtree path (spec.md §3.1, §3.7). Its persisted state therefore
// lives alongside, not inside, the parent Merk that holds its portal
// element.
func nonMerkPrefix(p *path.Path, key []byte) [32]byte {
	return hash.Prefix(p.Child(key).Segments())
}

// nonMerkEngine is the common surface grove needs from any opaque leaf
// engine (spec.md §3.7): its current child hash and a byte form it
// persists as. Append has a different signature per engine (a raw value vs
// a leaf hash), so callers dispatch on the concrete type instead of going
// through the interface for that.
type nonMerkEngine interface {
	Root() hash.Hash
	Marshal() []byte
}

func newNonMerkEngine(kind element.Kind, meta element.NonMerkMeta) (nonMerkEngine, error) {
	switch kind {
	case element.MmrTree:
		return nonmerk.NewMMR(), nil
	case element.BulkAppendTree:
		return nonmerk.NewBulkAppendTree(0), nil
	case element.DenseTree:
		return nonmerk.NewDenseAppendOnlyFixedSizeTree(hash.Size, int(meta.Height)), nil
	case element.CommitmentTree:
		return nonmerk.NewCommitmentTree(meta.Power), nil
	default:
		return nil, fmt.Errorf("grove: %v: %w: not a non-merk leaf kind", kind, ErrWrongElementKind)
	}
}

func decodeNonMerkEngine(kind element.Kind, raw []byte) (nonMerkEngine, error) {
	switch kind {
	case element.MmrTree:
		return nonmerk.UnmarshalMMR(raw)
	case element.BulkAppendTree:
		return nonmerk.UnmarshalBulkAppendTree(raw)
	case element.DenseTree:
		return nonmerk.UnmarshalDenseAppendOnlyFixedSizeTree(raw)
	case element.CommitmentTree:
		return nonmerk.UnmarshalCommitmentTree(raw)
	default:
		return nil, fmt.Errorf("grove: %v: %w: not a non-merk leaf kind", kind, ErrWrongElementKind)
	}
}

func loadNonMerkEngine(tc *treecache.Cache, p *path.Path, key []byte, kind element.Kind, meta element.NonMerkMeta) (nonMerkEngine, error) {
	ctx := tc.StageContext(nonMerkPrefix(p, key))
	raw, err := ctx.Get(storage.CFMain, nonMerkStateKey)
	if err != nil {
		return nil, fmt.Errorf("grove: load non-merk leaf %x: %w", key, err)
	}
	if raw != nil {
		return decodeNonMerkEngine(kind, raw)
	}
	return newNonMerkEngine(kind, meta)
}

func storeNonMerkEngine(tc *treecache.Cache, p *path.Path, key []byte, eng nonMerkEngine) error {
	ctx := tc.StageContext(nonMerkPrefix(p, key))
	if err := ctx.Put(storage.CFMain, nonMerkStateKey, eng.Marshal()); err != nil {
		return fmt.Errorf("grove: store non-merk leaf %x: %w", key, err)
	}
	return nil
}

func deleteNonMerkEngineState(tc *treecache.Cache, p *path.Path, key []byte) error {
	ctx := tc.StageContext(nonMerkPrefix(p, key))
	if err := ctx.Delete(storage.CFMain, nonMerkStateKey); err != nil {
		return fmt.Errorf("grove: delete non-merk leaf %x: %w", key, err)
	}
	return nil
}

// applyNonMerkAppend appends value to eng, interpreted per kind: MmrTree and
// CommitmentTree hash the value into a leaf first (they only ever commit
// hashes); BulkAppendTree stores it verbatim; DenseTree requires it to
// already be hash.Size bytes.
func applyNonMerkAppend(eng nonMerkEngine, kind element.Kind, value []byte) error {
	switch e := eng.(type) {
	case *nonmerk.MMR:
		e.Append(hash.Of(value))
	case *nonmerk.BulkAppendTree:
		e.Append(value)
	case *nonmerk.DenseAppendOnlyFixedSizeTree:
		if len(value) != hash.Size {
			return fmt.Errorf("grove: %w: dense tree entries must be %d bytes, got %d", ErrInvalidBatchOperation, hash.Size, len(value))
		}
		e.Append(value)
	case *nonmerk.CommitmentTree:
		e.Append(hash.Of(value))
	default:
		return fmt.Errorf("grove: %v: %w: append not supported", kind, ErrInvalidBatchOperation)
	}
	return nil
}

type flushable interface{ Flush() }

// flushIfNeeded seals a partial page so Root reflects every appended entry:
// only BulkAppendTree and DenseAppendOnlyFixedSizeTree buffer an unsealed
// page between Flush calls.
func flushIfNeeded(eng nonMerkEngine) {
	if f, ok := eng.(flushable); ok {
		f.Flush()
	}
}

func engineCount(eng nonMerkEngine) uint64 {
	switch e := eng.(type) {
	case *nonmerk.MMR:
		return e.Count()
	case *nonmerk.BulkAppendTree:
		return e.Len()
	case *nonmerk.DenseAppendOnlyFixedSizeTree:
		return e.Len()
	case *nonmerk.CommitmentTree:
		return e.Count()
	default:
		return 0
	}
}
