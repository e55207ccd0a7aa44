package grove

import (
	"fmt"

	"github.com/grovedb/grovedb/catalog"
	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/treecache"
)

// OverwritePolicy controls how Insert treats an already-occupied key
// (spec.md §4: insert's `overwrite` option).
type OverwritePolicy uint8

const (
	// InsertOnly fails with ErrAlreadyExists (which wraps
	// ErrInvalidBatchOperation) if key is already occupied.
	InsertOnly OverwritePolicy = iota
	// InsertOrReplace overwrites whatever is there, subject to
	// AllowTreeOverwrite for Tree-family targets.
	InsertOrReplace
	// Replace requires key to already be occupied and overwrites it.
	Replace
)

// InsertOptions configures Insert (spec.md §4).
type InsertOptions struct {
	Overwrite                  OverwritePolicy
	AllowTreeOverwrite         bool
	PropagateBackwardReferences bool
	VerifyReferencesOnInsert   bool
}

// DeleteOptions configures Delete (spec.md §4).
type DeleteOptions struct {
	PropagateBackwardReferences          bool
	AllowDeletingNonEmptySubtrees        bool
	DeletingNonEmptySubtreesReturnsError bool
}

// ClearSubtreeOptions configures ClearSubtree (spec.md §4).
type ClearSubtreeOptions struct {
	PropagateBackwardReferences bool
	// CheckForSubtrees makes ClearSubtree a no-op when the target is
	// already empty, instead of unconditionally re-writing it.
	CheckForSubtrees bool
}

var ErrAlreadyExists = fmt.Errorf("grove: %w: key already exists", ErrInvalidBatchOperation)

// elementValueHash computes the value_hash to bind into el's Merk node:
// Item-family and empty Tree portals hash directly; a non-Merk leaf portal
// binds its engine's current root, loaded from the engine's staged state; a
// Reference/BidirectionalReference resolves its target first, since its
// value_hash depends on what it currently points at.
func elementValueHash(tc *treecache.Cache, p *path.Path, key []byte, el element.Element) (hash.Hash, error) {
	if el.Kind.IsReference() {
		_, _, _, targetHash, err := resolveReference(tc, p, key, el)
		if err != nil {
			return hash.Hash{}, err
		}
		return element.ValueHash(el, &targetHash, nil)
	}
	if el.Kind.IsNonMerkLeaf() {
		eng, err := loadNonMerkEngine(tc, p, key, el.Kind, el.NonMerk)
		if err != nil {
			return hash.Hash{}, err
		}
		root := eng.Root()
		return element.ValueHash(el, nil, &root)
	}
	return element.ValueHash(el, nil, nil)
}

// Get reads the element stored at (p, key), resolving it through a
// reference chain's internal machinery is the caller's choice: Get itself
// returns the element as stored, reference or not, matching spec.md §4's
// "returns the element as stored; a Reference is not auto-dereferenced".
func (db *DB) Get(tx *Txn, p *path.Path, key []byte) (element.Element, error) {
	var out element.Element
	err := db.withTxn(tx, func(t *Txn) error {
		tc := db.newCache(t.txn)
		tree, err := openSubtree(tc, p)
		if err != nil {
			return err
		}
		el, found, err := tree.Get(key)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		out = el
		return nil
	})
	return out, err
}

// Insert writes el at (p, key), subject to opts.Overwrite, and propagates
// the resulting hash change up to the grove root (spec.md §4).
func (db *DB) Insert(tx *Txn, p *path.Path, key []byte, el element.Element, opts InsertOptions) error {
	if el.Kind.IsTree() && el.RootKey != nil {
		return fmt.Errorf("grove: %w: inserted tree elements must start empty", ErrInvalidBatchOperation)
	}

	return db.withTxn(tx, func(t *Txn) error {
		tc := db.newCache(t.txn)
		tree, err := openSubtree(tc, p)
		if err != nil {
			return err
		}

		existing, found, err := tree.Get(key)
		if err != nil {
			return err
		}
		switch opts.Overwrite {
		case InsertOnly:
			if found {
				return ErrAlreadyExists
			}
		case Replace:
			if !found {
				return fmt.Errorf("grove: %x: %w", key, ErrElementNotFound)
			}
		case InsertOrReplace:
			// always allowed, subject to the tree-overwrite check below.
		}
		if found && existing.Kind.IsTree() && existing.RootKey != nil && !opts.AllowTreeOverwrite {
			return fmt.Errorf("grove: %x: %w", key, ErrSubtreeNotEmpty)
		}

		if opts.VerifyReferencesOnInsert && el.Kind.IsReference() {
			if _, _, _, _, err := resolveReference(tc, p, key, el); err != nil {
				return err
			}
		}

		vh, err := elementValueHash(tc, p, key, el)
		if err != nil {
			return err
		}
		if err := tree.Put(key, el, vh); err != nil {
			return err
		}

		if opts.PropagateBackwardReferences {
			if err := cascadeOnWrite(tc, p, key, existing, found, el); err != nil {
				return err
			}
		}

		if el.Kind.IsTree() && (!found || !existing.Kind.IsTree()) {
			db.recordCatalogEvent(p, key, catalog.Created, el.Kind.Feature())
		}

		if err := propagateAll(tc); err != nil {
			return err
		}
		return flushBatch(t, tc)
	})
}

// Delete removes the element at (p, key) (spec.md §4). Deleting an absent
// key is a no-op.
func (db *DB) Delete(tx *Txn, p *path.Path, key []byte, opts DeleteOptions) error {
	return db.withTxn(tx, func(t *Txn) error {
		tc := db.newCache(t.txn)
		tree, err := openSubtree(tc, p)
		if err != nil {
			return err
		}

		existing, found, err := tree.Get(key)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		nonEmpty := existing.Kind.IsTree() && existing.RootKey != nil
		if nonEmpty && !opts.AllowDeletingNonEmptySubtrees {
			if opts.DeletingNonEmptySubtreesReturnsError {
				return fmt.Errorf("grove: %x: %w", key, ErrSubtreeNotEmpty)
			}
			return nil
		}

		if opts.PropagateBackwardReferences {
			if err := cascadeOnDelete(tc, p, key, existing); err != nil {
				return err
			}
		}

		if nonEmpty {
			if err := clearSubtreeContents(tc, p.Child(key)); err != nil {
				return err
			}
			tc.MarkDeleted(p.Child(key))
			db.recordCatalogEvent(p, key, catalog.Deleted, existing.Kind.Feature())
		}
		if existing.Kind.IsNonMerkLeaf() {
			if err := deleteNonMerkEngineState(tc, p, key); err != nil {
				return err
			}
		}

		if err := tree.Delete(key); err != nil {
			return err
		}
		if err := propagateAll(tc); err != nil {
			return err
		}
		return flushBatch(t, tc)
	})
}

// ClearSubtree empties the Tree-family element at (p, key) without removing
// the portal itself (spec.md §4): every entry it and its own nested
// subtrees hold is deleted, but the now-empty Tree element stays in place.
func (db *DB) ClearSubtree(tx *Txn, p *path.Path, key []byte, opts ClearSubtreeOptions) error {
	return db.withTxn(tx, func(t *Txn) error {
		tc := db.newCache(t.txn)
		tree, err := openSubtree(tc, p)
		if err != nil {
			return err
		}

		existing, found, err := tree.Get(key)
		if err != nil {
			return err
		}
		if !found || !existing.Kind.IsTree() {
			return fmt.Errorf("grove: %x: %w", key, ErrWrongElementKind)
		}
		if opts.CheckForSubtrees && existing.RootKey == nil {
			return nil
		}

		if existing.RootKey != nil {
			if err := clearSubtreeContents(tc, p.Child(key)); err != nil {
				return err
			}
			tc.MarkDeleted(p.Child(key))
		}

		updated := existing
		updated.RootKey = nil
		updated.Aggregate = element.Element{}.Aggregate
		vh, err := element.ValueHash(updated, nil, nil)
		if err != nil {
			return err
		}
		if err := tree.Put(key, updated, vh); err != nil {
			return err
		}

		if opts.PropagateBackwardReferences {
			if err := cascadeOnWrite(tc, p, key, existing, true, updated); err != nil {
				return err
			}
		}

		db.recordCatalogEvent(p, key, catalog.Cleared, existing.Kind.Feature())

		if err := propagateAll(tc); err != nil {
			return err
		}
		return flushBatch(t, tc)
	})
}

// clearSubtreeContents recursively removes every entry under p: nested
// Tree-family subtrees are cleared (depth first) before p's own Merk
// storage is wiped, and non-Merk leaf engines have their persisted state
// removed too.
func clearSubtreeContents(tc *treecache.Cache, p *path.Path) error {
	tree, err := openSubtree(tc, p)
	if err != nil {
		return err
	}

	type child struct {
		key []byte
		el  element.Element
	}
	var children []child
	if err := tree.Each(func(key []byte, el element.Element) (bool, error) {
		children = append(children, child{key: append([]byte(nil), key...), el: el})
		return true, nil
	}); err != nil {
		return err
	}

	for _, c := range children {
		switch {
		case c.el.Kind.IsTree():
			if err := clearSubtreeContents(tc, p.Child(c.key)); err != nil {
				return err
			}
			tc.MarkDeleted(p.Child(c.key))
		case c.el.Kind.IsNonMerkLeaf():
			if err := deleteNonMerkEngineState(tc, p, c.key); err != nil {
				return err
			}
		}
	}

	return tree.Clear()
}
