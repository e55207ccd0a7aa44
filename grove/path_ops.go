package grove

import (
	"fmt"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/treecache"
)

// openSubtree returns the Merk at p, opening every ancestor along the way
// (each lookup discovers its child's feature kind from the already-open
// parent's Tree-family element) and caching every level touched in tc, so a
// later openSubtree call for the same or a deeper path is effectively free.
func openSubtree(tc *treecache.Cache, p *path.Path) (*merk.Tree, error) {
	if tree, ok := tc.Tree(p); ok {
		return tree, nil
	}

	if p.IsRoot() {
		if _, err := tc.Get(path.Root, feature.Basic); err != nil {
			return nil, err
		}
		tree, _ := tc.Tree(path.Root)
		return tree, nil
	}

	parent, err := openSubtree(tc, p.Parent())
	if err != nil {
		return nil, err
	}
	seg := p.Last()
	el, found, err := parent.Get(seg)
	if err != nil {
		return nil, err
	}
	if !found || !el.Kind.IsTree() {
		return nil, fmt.Errorf("grove: %x: %w", seg, ErrWrongElementKind)
	}
	if _, err := tc.Get(p, el.Kind.Feature()); err != nil {
		return nil, err
	}
	tree, _ := tc.Tree(p)
	return tree, nil
}

// propagateAll re-binds every non-root Merk this operation touched into its
// parent's portal element, visiting tc.LivePaths() in its longest-path-first
// order so a subtree's own propagation has already landed before its parent
// is touched (spec.md §4.2 "upward propagation", §4.6).
func propagateAll(tc *treecache.Cache) error {
	for _, p := range tc.LivePaths() {
		if p.IsRoot() {
			continue
		}
		if err := propagateOneLevel(tc, p); err != nil {
			return err
		}
	}
	return nil
}

// propagateOneLevel re-derives the portal element for the Merk at p within
// p's parent, from p's own current root key/hash/aggregate.
func propagateOneLevel(tc *treecache.Cache, p *path.Path) error {
	tree, ok := tc.Tree(p)
	if !ok {
		return nil
	}
	parentTree, err := openSubtree(tc, p.Parent())
	if err != nil {
		return err
	}

	key := p.Last()
	el, found, err := parentTree.Get(key)
	if err != nil {
		return err
	}
	if !found || !el.Kind.IsTree() {
		return fmt.Errorf("grove: %x: %w", key, ErrWrongElementKind)
	}

	rootKey, err := tree.RootKey()
	if err != nil {
		return err
	}
	rootHash, err := tree.RootHash()
	if err != nil {
		return err
	}
	rootAgg, err := tree.RootAggregate()
	if err != nil {
		return err
	}

	updated := el
	updated.RootKey = rootKey
	updated.Aggregate = rootAgg
	vh, err := element.ValueHash(updated, nil, &rootHash)
	if err != nil {
		return err
	}
	return parentTree.Put(key, updated, vh)
}
