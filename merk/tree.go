package merk

import (
	"bytes"
	"fmt"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/storage"
)

// rootKeyEntry is the fixed CFRoots key every subtree's current Merk root node
// key is stored under. There is exactly one root per subtree, so no
// further namespacing is needed within a Context (subtree isolation is
// already handled by the Context's prefix).
var rootKeyEntry = []byte("root")

// NodeCache is the node-payload cache a Tree consults before going to its
// storage.Context (spec.md §9 "Cache layer"): Merk nodes are expensive to
// re-fetch across repeated point lookups within a hot subtree, so
// OpenCached lets a caller (treecache.Cache, via the nodecache package)
// share one bounded cache across every Tree it opens. The cache holds raw
// encoded payloads; a hit skips the storage read but is still decoded.
// Keys are the cache's own namespacing, opaque to Tree.
type NodeCache interface {
	Get(key []byte) ([]byte, bool)
	Put(key []byte, raw []byte)
	Delete(key []byte)
}

// Tree is one subtree's Merk: an authenticated AVL tree addressed through a
// storage.Context, maintaining aggregates per its feature kind.
type Tree struct {
	ctx         storage.Context
	feature     feature.Kind
	cache       NodeCache
	cachePrefix []byte
}

// Open returns a handle onto the Merk stored in ctx, maintaining
// aggregates per f. Every node already persisted in ctx must have been
// written under the same f; changing a subtree's feature kind after it has
// data is not supported (spec.md §3.2 treats feature as fixed at
// creation).
func Open(ctx storage.Context, f feature.Kind) *Tree {
	return &Tree{ctx: ctx, feature: f}
}

// OpenCached is Open plus a shared NodeCache: prefix namespaces this Tree's
// node keys within cache so two subtrees' identical node keys never
// collide (spec.md §3.1: node storage keys are not globally unique, only
// unique within their own subtree prefix).
func OpenCached(ctx storage.Context, f feature.Kind, cache NodeCache, prefix []byte) *Tree {
	return &Tree{ctx: ctx, feature: f, cache: cache, cachePrefix: prefix}
}

func (t *Tree) cacheKey(key []byte) []byte {
	return append(append([]byte(nil), t.cachePrefix...), key...)
}

// Feature returns the aggregate rule this Merk maintains.
func (t *Tree) Feature() feature.Kind {
	return t.feature
}

func (t *Tree) loadNode(key []byte) (*node, error) {
	if key == nil {
		return nil, nil
	}
	if t.cache != nil {
		if raw, ok := t.cache.Get(t.cacheKey(key)); ok {
			return decodeNode(key, raw, t.feature)
		}
	}
	raw, err := t.ctx.Get(storage.CFMain, key)
	if err != nil {
		return nil, fmt.Errorf("merk: load %x: %w", key, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("merk: dangling link to %x", key)
	}
	if t.cache != nil {
		t.cache.Put(t.cacheKey(key), raw)
	}
	return decodeNode(key, raw, t.feature)
}

func (t *Tree) storeNode(n *node) error {
	raw := n.encode(t.feature)
	if err := t.ctx.Put(storage.CFMain, n.Key, raw); err != nil {
		return fmt.Errorf("merk: store %x: %w", n.Key, err)
	}
	if t.cache != nil {
		t.cache.Put(t.cacheKey(n.Key), raw)
	}
	return nil
}

func (t *Tree) deleteNode(key []byte) error {
	if err := t.ctx.Delete(storage.CFMain, key); err != nil {
		return fmt.Errorf("merk: delete %x: %w", key, err)
	}
	if t.cache != nil {
		t.cache.Delete(t.cacheKey(key))
	}
	return nil
}

// RootKey returns the current root node's key, or nil if the subtree is
// empty.
func (t *Tree) RootKey() ([]byte, error) {
	raw, err := t.ctx.Get(storage.CFRoots, rootKeyEntry)
	if err != nil {
		return nil, fmt.Errorf("merk: read root: %w", err)
	}
	return raw, nil
}

func (t *Tree) setRootKey(key []byte) error {
	if key == nil {
		return t.ctx.Delete(storage.CFRoots, rootKeyEntry)
	}
	return t.ctx.Put(storage.CFRoots, rootKeyEntry, key)
}

// RootHash returns the current root node's node_hash, or the zero hash if
// the subtree is empty (spec.md §3.1).
func (t *Tree) RootHash() (hash.Hash, error) {
	key, err := t.RootKey()
	if err != nil {
		return hash.Hash{}, err
	}
	if key == nil {
		return hash.Zero, nil
	}
	n, err := t.loadNode(key)
	if err != nil {
		return hash.Hash{}, err
	}
	return n.nodeHash, nil
}

// RootAggregate returns the aggregate maintained at the current root, or a
// zero Aggregate if the subtree is empty.
func (t *Tree) RootAggregate() (feature.Aggregate, error) {
	key, err := t.RootKey()
	if err != nil {
		return feature.Aggregate{}, err
	}
	if key == nil {
		return feature.Aggregate{}, nil
	}
	n, err := t.loadNode(key)
	if err != nil {
		return feature.Aggregate{}, err
	}
	return n.aggregate, nil
}

// Get returns the element stored at key, and whether it was found.
func (t *Tree) Get(key []byte) (element.Element, bool, error) {
	rootKey, err := t.RootKey()
	if err != nil {
		return element.Element{}, false, err
	}
	cur := rootKey
	for cur != nil {
		n, err := t.loadNode(cur)
		if err != nil {
			return element.Element{}, false, err
		}
		switch c := compareKeys(key, n.Key); {
		case c == 0:
			return n.Element, true, nil
		case c < 0:
			cur = linkKey(n.Left)
		default:
			cur = linkKey(n.Right)
		}
	}
	return element.Element{}, false, nil
}

func linkKey(l *link) []byte {
	if l == nil {
		return nil
	}
	return l.Key
}

// compareKeys orders keys the way spec.md §4.1 requires iteration to run:
// lexicographically over raw key bytes, i.e. bytes.Compare. The AVL
// structure and every walk over it (insert, delete, batch, proof
// generation) depend on this matching bytes.Compare exactly.
func compareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Put inserts or updates the element at key, with its already-resolved
// value_hash (computed by the caller via element.ValueHash, since only the
// caller — the grove layer — knows reference targets and nested subtree
// roots). The tree rebalances as needed.
func (t *Tree) Put(key []byte, el element.Element, valueHash hash.Hash) error {
	rootKey, err := t.RootKey()
	if err != nil {
		return err
	}
	newRoot, err := t.insert(rootKey, key, el, valueHash)
	if err != nil {
		return err
	}
	return t.setRootKey(newRoot)
}

// Delete removes the element at key, if present. It is a no-op if key is
// absent.
func (t *Tree) Delete(key []byte) error {
	rootKey, err := t.RootKey()
	if err != nil {
		return err
	}
	if rootKey == nil {
		return nil
	}
	newRoot, found, err := t.delete(rootKey, key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return t.setRootKey(newRoot)
}
