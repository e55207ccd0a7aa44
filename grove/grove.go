// Package grove implements GroveDB's public surface (spec.md §4): a
// hierarchical, path-addressed store of Merk subtrees, with single-op and
// batched mutation, reference resolution, upward hash propagation, and
// multi-subtree proofs layered on top of merk, element, treecache, and
// storage.
//
// The DB/Txn wrapping here generalizes processor/processor.go's single-owner
// lifetime style: one *DB owns a storage.Store, and every public operation
// either runs inside a caller-supplied *Txn or opens and commits its own,
// exactly the way processor.go's indexer either participates in an ambient
// context or establishes one for the duration of a single unit of work.
package grove

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grovedb/grovedb/catalog"
	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/storage"
	"github.com/grovedb/grovedb/treecache"
)

// DefaultMaxHops is the process-wide reference resolution hop bound
// (spec.md §3.4), applied in addition to any narrower per-reference
// MaxHops.
const DefaultMaxHops = 10

// Sentinel errors (spec.md §7). Every public operation wraps one of these
// with %w so callers can errors.Is against the taxonomy regardless of the
// backing store.
var (
	ErrNotFound              = errors.New("grove: not found")
	ErrWrongElementKind      = errors.New("grove: element is the wrong kind for this operation")
	ErrSubtreeNotEmpty       = errors.New("grove: subtree is not empty")
	ErrElementNotFound       = errors.New("grove: element not found")
	ErrBrokenReference       = errors.New("grove: reference does not resolve")
	ErrMissingReference      = errors.New("grove: reference target does not exist")
	ErrCyclicReference       = errors.New("grove: reference cycle detected")
	ErrReferenceLimit        = errors.New("grove: reference hop limit exceeded")
	ErrInvalidBatchOperation = errors.New("grove: invalid batch operation")
	ErrBackwardRefLimit      = errors.New("grove: backward reference limit exceeded")
	ErrNotSupported          = errors.New("grove: operation not supported")
)

// DB is an open GroveDB instance over a single storage.Store.
type DB struct {
	store     storage.Store
	nodeCache merk.NodeCache
	catalog   catalog.Store
}

// Open wraps an already-opened storage.Store (storage/badger.Store for
// persistent use, storage/memory.Store for tests) as a DB.
func Open(store storage.Store) *DB {
	return &DB{store: store}
}

// OpenWithNodeCache is Open plus a shared merk.NodeCache (typically a
// *nodecache.Cache): every grove operation's treecache.Cache opens its
// Merks through it, so node lookups are served from memory across
// operations, not just within one.
func OpenWithNodeCache(store storage.Store, nc merk.NodeCache) *DB {
	return &DB{store: store, nodeCache: nc}
}

func (db *DB) newCache(txn storage.Txn) *treecache.Cache {
	if db.nodeCache != nil {
		return treecache.NewWithNodeCache(txn, db.nodeCache)
	}
	return treecache.New(txn)
}

// SetCatalog attaches a catalog.Store that records subtree lifecycle
// events (creation, clearing, deletion) as a side effect of Insert,
// ClearSubtree, and Delete. It is purely observational: a nil catalog (the
// default) disables recording with no change to grove semantics or hashes.
func (db *DB) SetCatalog(c catalog.Store) {
	db.catalog = c
}

// recordCatalogEvent is a no-op when db.catalog is nil, so every call site
// can call it unconditionally.
func (db *DB) recordCatalogEvent(p *path.Path, key []byte, kind catalog.EventKind, f feature.Kind) {
	if db.catalog == nil {
		return
	}
	err := db.catalog.RecordEvent(context.Background(), catalog.Event{
		Path:    p.Child(key).String(),
		Key:     key,
		Kind:    kind,
		Feature: f,
		AtUnix:  time.Now().Unix(),
	})
	if err != nil {
		slog.Warn("grove: catalog record failed", "kind", kind, "err", err)
	}
}

// Close releases the underlying store.
func (db *DB) Close() error {
	return db.store.Close()
}

// Txn is a caller-visible handle onto a backing transaction (spec.md §3.6):
// every public DB method either runs inside one the caller passed in, or
// opens and commits its own for the duration of the call.
type Txn struct {
	txn   storage.Txn
	owned bool
}

// Begin starts a new transaction the caller controls the lifetime of. The
// caller must Commit or Rollback it; passing it to later DB calls makes
// those calls participate in it instead of opening their own.
func (db *DB) Begin() (*Txn, error) {
	t, err := db.store.Begin()
	if err != nil {
		return nil, fmt.Errorf("grove: begin: %w", err)
	}
	return &Txn{txn: t}, nil
}

// Commit commits a caller-owned transaction.
func (t *Txn) Commit() error {
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("grove: commit: %w", err)
	}
	return nil
}

// Rollback discards a caller-owned transaction.
func (t *Txn) Rollback() error {
	if err := t.txn.Rollback(); err != nil {
		return fmt.Errorf("grove: rollback: %w", err)
	}
	return nil
}

// withTxn runs fn against tx if the caller supplied one, or opens a fresh
// transaction, runs fn, and commits it (rolling back on error) otherwise.
func (db *DB) withTxn(tx *Txn, fn func(*Txn) error) error {
	if tx != nil {
		return fn(tx)
	}
	owned, err := db.store.Begin()
	if err != nil {
		return fmt.Errorf("grove: begin: %w", err)
	}
	t := &Txn{txn: owned, owned: true}
	if err := fn(t); err != nil {
		_ = owned.Rollback()
		return err
	}
	if err := owned.Commit(); err != nil {
		return fmt.Errorf("grove: commit: %w", err)
	}
	return nil
}

func flushBatch(t *Txn, tc *treecache.Cache) error {
	batch := tc.Finalize()
	if err := batch.Flush(t.txn); err != nil {
		return fmt.Errorf("grove: flush: %w", err)
	}
	return nil
}

// RootHash returns the grove's top-level root hash: the node_hash of the
// root path's Merk, or the zero hash for an empty grove.
func (db *DB) RootHash(tx *Txn) (hash.Hash, error) {
	var out hash.Hash
	err := db.withTxn(tx, func(t *Txn) error {
		tc := db.newCache(t.txn)
		tree, err := openSubtree(tc, path.Root)
		if err != nil {
			return err
		}
		out, err = tree.RootHash()
		return err
	})
	return out, err
}
