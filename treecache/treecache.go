// Package treecache implements the Merk cache / TreeCache of spec.md §4.6:
// an ordered, longest-path-first table of open Merk handles that a single
// grove operation uses to keep a consistent uncommitted view across many
// subtree touches, deferring upward hash propagation to one pass at the
// end of the operation.
//
// The ownership pattern (a single owner handing out scoped handles, gating
// exclusive access behind a per-entry flag, invalidating everything at
// once on Finalize) is grounded on processor/processor.go's single-owner
// lifetime style, generalized from "one CancelFunc gates one goroutine" to
// "one borrow flag gates one Merk handle" per spec.md §9's "Ownership of
// self-referential caches" design note.
package treecache

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/storage"
)

// Sentinel errors (spec.md §4.6, §7 Concurrency errors).
var (
	ErrReentrantBorrow = errors.New("treecache: reentrant borrow of an already-open Merk")
	ErrSubtreeDeleted  = errors.New("treecache: subtree was deleted earlier in this operation")
	ErrFinalized       = errors.New("treecache: cache already finalized")
)

type state int

const (
	stateLive state = iota
	stateDeleted
)

type entry struct {
	path     *path.Path
	prefix   [32]byte
	state    state
	tree     *merk.Tree
	borrowed bool
}

// Handle addresses one cache entry. It is only valid until the owning
// Cache's Finalize is called; nothing enforces that at runtime beyond the
// cache itself refusing further Get/Borrow calls once finalized, mirroring
// spec.md §4.6's "invalidating all outstanding handles (enforced by
// lifetime/scope, not runtime checks)" for languages without borrow
// checking.
type Handle struct {
	e *entry
}

// Path returns the subtree path this handle was opened for.
func (h *Handle) Path() *path.Path { return h.e.path }

// Cache is one grove operation's open-Merk table, backed by a single
// staging storage.Batch that every opened Merk writes into (via
// storage.BatchContext) instead of the backing transaction directly, so a
// failed operation can discard batch without the caller's transaction ever
// seeing partial writes.
type Cache struct {
	txn       storage.Txn
	batch     *storage.Batch
	entries   map[string]*entry
	finalized bool
	nodeCache merk.NodeCache
}

// New returns an empty Cache reading through txn and staging all writes
// into a fresh storage.Batch.
func New(txn storage.Txn) *Cache {
	return &Cache{txn: txn, batch: storage.NewBatch(), entries: make(map[string]*entry)}
}

// NewWithNodeCache is New plus a shared merk.NodeCache (typically a
// *nodecache.Cache) that every Merk this Cache opens will consult before
// going to storage.Context, so repeated node lookups within one grove
// operation (and, if the caller reuses the same NodeCache across
// operations, across operations too) avoid re-fetching from storage; cached
// payloads are still decoded on each load.
func NewWithNodeCache(txn storage.Txn, nc merk.NodeCache) *Cache {
	c := New(txn)
	c.nodeCache = nc
	return c
}

func keyFor(p *path.Path) string {
	var buf []byte
	for _, seg := range p.Segments() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(seg)))
		buf = append(buf, seg...)
	}
	return string(buf)
}

// Get returns a handle onto the Merk at p, opening it (against the cache's
// staging batch layered over txn) if this is the first touch this
// operation. f is the feature kind the subtree was created with; it is
// only consulted the first time p is opened. Repeated Get calls for the
// same path are idempotent and return handles onto the same Merk.
func (c *Cache) Get(p *path.Path, f feature.Kind) (*Handle, error) {
	if c.finalized {
		return nil, ErrFinalized
	}
	k := keyFor(p)
	if e, ok := c.entries[k]; ok {
		if e.state == stateDeleted {
			return nil, ErrSubtreeDeleted
		}
		return &Handle{e: e}, nil
	}

	prefix := hash.Prefix(p.Segments())
	ctx := storage.BatchContext(c.txn.Context(prefix), c.batch, prefix)
	var tree *merk.Tree
	if c.nodeCache != nil {
		tree = merk.OpenCached(ctx, f, c.nodeCache, prefix[:])
	} else {
		tree = merk.Open(ctx, f)
	}
	e := &entry{path: p, prefix: prefix, state: stateLive, tree: tree}
	c.entries[k] = e
	return &Handle{e: e}, nil
}

// Borrow calls fn with exclusive access to h's Merk. A re-entrant borrow of
// the same Merk (fn itself calling back into Borrow on h, directly or
// through a cycle) is a programming error and returns ErrReentrantBorrow
// rather than deadlocking, since this cache has no concurrency of its own
// to block on (spec.md §5: one grove operation, one call stack).
func (c *Cache) Borrow(h *Handle, fn func(*merk.Tree) error) error {
	if h.e.state == stateDeleted {
		return ErrSubtreeDeleted
	}
	if h.e.borrowed {
		return ErrReentrantBorrow
	}
	h.e.borrowed = true
	defer func() { h.e.borrowed = false }()
	return fn(h.e.tree)
}

// MarkDeleted records that the subtree at p has been semantically removed
// within this operation. A later Get on p (or a descendant whose ancestor
// lookup crosses it) fails with ErrSubtreeDeleted until the caller
// re-examines the parent and decides the subtree has been legitimately
// re-created (at which point the caller should construct a fresh Cache
// scope or explicitly clear this entry before re-Get'ing — this cache does
// not auto-resurrect an entry once marked deleted).
func (c *Cache) MarkDeleted(p *path.Path) {
	k := keyFor(p)
	if e, ok := c.entries[k]; ok {
		e.state = stateDeleted
		e.tree = nil
		return
	}
	c.entries[k] = &entry{path: p, state: stateDeleted}
}

// LivePaths returns every subtree path currently open and live, ordered
// longest-path-first (spec.md §4.4 Phase 3: "ordered map of open Merks
// sorted longest-path first" so upward propagation visits deepest paths
// first and every ancestor sees already-propagated descendants before
// being touched itself).
func (c *Cache) LivePaths() []*path.Path {
	out := make([]*path.Path, 0, len(c.entries))
	for _, e := range c.entries {
		if e.state == stateLive {
			out = append(out, e.path)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Len() != out[j].Len() {
			return out[i].Len() > out[j].Len()
		}
		return out[i].String() > out[j].String()
	})
	return out
}

// Tree returns the already-open Merk at p without creating a Handle, or
// false if p was never opened (or was marked deleted) this operation.
func (c *Cache) Tree(p *path.Path) (*merk.Tree, bool) {
	e, ok := c.entries[keyFor(p)]
	if !ok || e.state != stateLive {
		return nil, false
	}
	return e.tree, true
}

// StageContext returns a Context over an arbitrary 32-byte prefix that reads
// through the cache's backing transaction but stages writes into the same
// batch every cached Merk writes into, so state that isn't itself a Merk
// node (a non-Merk leaf engine's persisted blob, spec.md §3.7) still
// participates in the operation's all-or-nothing commit.
func (c *Cache) StageContext(prefix [32]byte) storage.Context {
	return storage.BatchContext(c.txn.Context(prefix), c.batch, prefix)
}

// StageMeta is StageContext's CFMeta counterpart, for bookkeeping that lives
// in the unprefixed global namespace (bidirectional-reference backpointers,
// spec.md §3.5).
func (c *Cache) StageMeta() storage.MetaContext {
	return storage.BatchMetaContext(c.txn.Meta(), c.batch)
}

// Finalize consumes the cache, returning its accumulated staging batch and
// invalidating every outstanding handle: further Get/Borrow calls fail
// with ErrFinalized. The caller flushes the returned batch onto its
// backing transaction in one step (spec.md §4.4 Phase 4).
func (c *Cache) Finalize() *storage.Batch {
	b := c.batch
	c.finalized = true
	c.entries = nil
	return b
}
