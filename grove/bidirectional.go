package grove

import (
	"encoding/binary"
	"fmt"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/treecache"
)

// MaxBackwardReferences is the per-item cap on inbound bidirectional
// references (spec.md §3.5, §6).
const MaxBackwardReferences = 32

// MaxBidirectionalChain reuses DefaultMaxHops as the bound on a chain of
// bidirectional references pointing at each other (spec.md §3.5, §6): a
// BidirectionalReference is itself Kind.IsReference(), so resolveReference's
// existing hop bookkeeping already enforces it when following the chain; a
// bidirectional reference may additionally be the *target* of at most one
// other bidirectional reference, which registerBackref enforces directly.
const MaxBidirectionalChain = DefaultMaxHops

var backrefNamespace = []byte("backref\x00")

// backwardRef is one inbound pointer recorded against a backward-reference
// slot owner: the bidirectional reference's own location, and the cascade
// policy it was created with (spec.md §3.5's BackwardReference{inverted_path,
// cascade_on_update}).
type backwardRef struct {
	SourcePath [][]byte
	SourceKey  []byte
	Cascade    bool
}

func backrefMetaKey(p *path.Path, key []byte) []byte {
	buf := append([]byte(nil), backrefNamespace...)
	for _, seg := range p.Segments() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(seg)))
		buf = append(buf, seg...)
	}
	buf = append(buf, 0, 0, 0, 0) // zero-length sentinel segment ends the path
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	return buf
}

func encodeBackrefs(refs []backwardRef) []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(len(refs)))
	for _, r := range refs {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.SourcePath)))
		for _, seg := range r.SourcePath {
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(seg)))
			buf = append(buf, seg...)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.SourceKey)))
		buf = append(buf, r.SourceKey...)
		if r.Cascade {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func decodeBackrefs(b []byte) ([]backwardRef, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("grove: truncated backref record")
	}
	count := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	out := make([]backwardRef, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("grove: truncated backref path segment count")
		}
		segCount := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		segs := make([][]byte, 0, segCount)
		for s := uint32(0); s < segCount; s++ {
			if len(b) < 4 {
				return nil, fmt.Errorf("grove: truncated backref segment")
			}
			n := binary.BigEndian.Uint32(b[:4])
			b = b[4:]
			if uint32(len(b)) < n {
				return nil, fmt.Errorf("grove: truncated backref segment bytes")
			}
			segs = append(segs, append([]byte(nil), b[:n]...))
			b = b[n:]
		}
		if len(b) < 4 {
			return nil, fmt.Errorf("grove: truncated backref source key length")
		}
		n := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < n {
			return nil, fmt.Errorf("grove: truncated backref source key bytes")
		}
		key := append([]byte(nil), b[:n]...)
		b = b[n:]
		if len(b) < 1 {
			return nil, fmt.Errorf("grove: truncated backref cascade flag")
		}
		cascade := b[0] == 1
		b = b[1:]
		out = append(out, backwardRef{SourcePath: segs, SourceKey: key, Cascade: cascade})
	}
	return out, nil
}

func loadBackrefs(tc *treecache.Cache, p *path.Path, key []byte) ([]backwardRef, error) {
	raw, err := tc.StageMeta().Get(backrefMetaKey(p, key))
	if err != nil {
		return nil, fmt.Errorf("grove: load backrefs: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return decodeBackrefs(raw)
}

func storeBackrefs(tc *treecache.Cache, p *path.Path, key []byte, refs []backwardRef) error {
	if len(refs) == 0 {
		if err := tc.StageMeta().Delete(backrefMetaKey(p, key)); err != nil {
			return fmt.Errorf("grove: clear backrefs: %w", err)
		}
		return nil
	}
	if err := tc.StageMeta().Put(backrefMetaKey(p, key), encodeBackrefs(refs)); err != nil {
		return fmt.Errorf("grove: store backrefs: %w", err)
	}
	return nil
}

// hasBackwardRefSlot reports whether kind is a target an inbound
// bidirectional reference may point at (spec.md §3.5: only the backward-ref
// item family and bidirectional references themselves carry a slot).
func hasBackwardRefSlot(kind element.Kind) bool {
	switch kind {
	case element.ItemWithBackwardsReferences, element.SumItemWithBackwardsReferences, element.BidirectionalReference:
		return true
	default:
		return false
	}
}

// registerBackref records that (srcPath, srcKey) — a BidirectionalReference
// — now points at (targetPath, targetKey), enforcing the per-target slot cap
// and the bidirectional-reference single-inbound-chain-link rule.
func registerBackref(tc *treecache.Cache, srcPath *path.Path, srcKey []byte, targetKind element.Kind, targetPath *path.Path, targetKey []byte, cascade bool) error {
	if !hasBackwardRefSlot(targetKind) {
		return fmt.Errorf("grove: %x: %w: target does not accept backward references", targetKey, ErrWrongElementKind)
	}
	refs, err := loadBackrefs(tc, targetPath, targetKey)
	if err != nil {
		return err
	}
	if targetKind == element.BidirectionalReference && len(refs) >= 1 {
		return fmt.Errorf("grove: %x: %w", targetKey, ErrBackwardRefLimit)
	}
	if len(refs) >= MaxBackwardReferences {
		return fmt.Errorf("grove: %x: %w", targetKey, ErrBackwardRefLimit)
	}
	refs = append(refs, backwardRef{SourcePath: srcPath.Segments(), SourceKey: append([]byte(nil), srcKey...), Cascade: cascade})
	return storeBackrefs(tc, targetPath, targetKey, refs)
}

// unregisterBackref removes (srcPath, srcKey)'s backpointer from the refs
// recorded against (targetPath, targetKey), if present.
func unregisterBackref(tc *treecache.Cache, srcPath *path.Path, srcKey []byte, targetPath *path.Path, targetKey []byte) error {
	refs, err := loadBackrefs(tc, targetPath, targetKey)
	if err != nil || len(refs) == 0 {
		return err
	}
	out := refs[:0]
	for _, r := range refs {
		if samePath(r.SourcePath, srcPath.Segments()) && bytesEqual(r.SourceKey, srcKey) {
			continue
		}
		out = append(out, r)
	}
	return storeBackrefs(tc, targetPath, targetKey, out)
}

func samePath(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// cascadeOnWrite runs propagate_backward_references bookkeeping for a write
// at (p, key) that replaces prior (found, before) with after (spec.md §3.5):
// if before was a BidirectionalReference, its registration against its old
// target is dropped and re-established against after's target (a no-op move
// when the target didn't change); if before was itself a backward-ref
// target, every chain pointing at it is cascaded now that its hash changed.
func cascadeOnWrite(tc *treecache.Cache, p *path.Path, key []byte, before element.Element, found bool, after element.Element) error {
	if found && before.Kind == element.BidirectionalReference {
		oldTargetPath, oldTargetKey, _, _, err := resolveReference(tc, p, key, before)
		if err == nil {
			if err := unregisterBackref(tc, p, key, oldTargetPath, oldTargetKey); err != nil {
				return err
			}
		}
	}
	if after.Kind == element.BidirectionalReference {
		targetPath, targetKey, targetEl, _, err := resolveReference(tc, p, key, after)
		if err != nil {
			return err
		}
		if err := registerBackref(tc, p, key, targetEl.Kind, targetPath, targetKey, after.CascadeOnUpdate); err != nil {
			return err
		}
	}
	if found && hasBackwardRefSlot(before.Kind) {
		return refreshBackreferrer(tc, p, key)
	}
	return nil
}

// cascadeOnDelete runs propagate_backward_references bookkeeping for a
// delete of (p, key) which held before: a BidirectionalReference's
// registration against its target is dropped, and anything that held a
// backward-ref registration against this now-deleted item is either
// cascaded to delete too (cascade_on_update) or rejected.
func cascadeOnDelete(tc *treecache.Cache, p *path.Path, key []byte, before element.Element) error {
	if before.Kind == element.BidirectionalReference {
		targetPath, targetKey, _, _, err := resolveReference(tc, p, key, before)
		if err == nil {
			if err := unregisterBackref(tc, p, key, targetPath, targetKey); err != nil {
				return err
			}
		}
	}
	if hasBackwardRefSlot(before.Kind) {
		return deleteBackreferrer(tc, p, key)
	}
	return nil
}

// refreshBackreferrer re-binds every BidirectionalReference recorded against
// (p, key)'s new value: each referrer's stored value_hash depends on its
// target's value_hash (element.ValueHash's Reference-family XOR), so it must
// be rewritten even though the referrer's own Spec didn't change.
func refreshBackreferrer(tc *treecache.Cache, p *path.Path, key []byte) error {
	refs, err := loadBackrefs(tc, p, key)
	if err != nil {
		return err
	}
	for _, r := range refs {
		srcPath := path.New(r.SourcePath...)
		srcTree, err := openSubtree(tc, srcPath)
		if err != nil {
			return err
		}
		srcEl, found, err := srcTree.Get(r.SourceKey)
		if err != nil {
			return err
		}
		if !found || srcEl.Kind != element.BidirectionalReference {
			continue
		}
		vh, err := elementValueHash(tc, srcPath, r.SourceKey, srcEl)
		if err != nil {
			return err
		}
		if err := srcTree.Put(r.SourceKey, srcEl, vh); err != nil {
			return err
		}
	}
	return nil
}

// deleteBackreferrer handles every BidirectionalReference recorded against a
// just-deleted (p, key): cascade_on_update true means the referrer is
// deleted in turn (recursively cascading its own backrefs); otherwise the
// delete is rejected, since the referrer would be left dangling.
func deleteBackreferrer(tc *treecache.Cache, p *path.Path, key []byte) error {
	refs, err := loadBackrefs(tc, p, key)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if !r.Cascade {
			return fmt.Errorf("grove: %x: %w: backward referrer requires cascade_on_update to delete target", key, ErrBackwardRefLimit)
		}
		srcPath := path.New(r.SourcePath...)
		srcTree, err := openSubtree(tc, srcPath)
		if err != nil {
			return err
		}
		srcEl, found, err := srcTree.Get(r.SourceKey)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := cascadeOnDelete(tc, srcPath, r.SourceKey, srcEl); err != nil {
			return err
		}
		if err := srcTree.Delete(r.SourceKey); err != nil {
			return err
		}
	}
	return storeBackrefs(tc, p, key, nil)
}
