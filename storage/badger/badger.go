// Package badger is a BadgerDB-backed storage.Store, the real backing
// engine for the Storage Context (spec.md §4.1). It generalizes
// kvstore/badger/badger.go's Open/Get/Put/Delete/Close shape from a flat
// Hash-keyed store into the column-family-aware, prefix-isolated, and
// transactional Storage Context contract.
package badger

import (
	"fmt"
	"sort"

	bg "github.com/dgraph-io/badger/v4"

	"github.com/grovedb/grovedb/storage"
)

// Config holds configuration for the BadgerDB-backed Store.
type Config struct {
	// DataDir is the directory for persistent data storage. Leave empty
	// and set InMemory to run entirely in memory (useful for short-lived
	// tooling and tests that still want real badger transaction semantics).
	DataDir  string
	InMemory bool
}

// Store is a BadgerDB-backed implementation of storage.Store.
type Store struct {
	db *bg.DB
}

// New opens (or creates) a BadgerDB-backed Store.
func New(cfg *Config) (*Store, error) {
	if cfg.DataDir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("storage/badger: DataDir is required unless InMemory is set")
	}

	opts := bg.DefaultOptions(cfg.DataDir)
	opts = opts.WithLogger(nil) // badger's verbose logging isn't GroveDB's concern
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	db, err := bg.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage/badger: failed to open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Context(prefix [32]byte) storage.Context {
	return &immediateContext{db: s.db, prefix: prefix[:]}
}

func (s *Store) Meta() storage.MetaContext {
	return &immediateMeta{db: s.db}
}

func (s *Store) Begin() (storage.Txn, error) {
	return &txn{db: s.db, badgerTxn: s.db.NewTransaction(true), pending: storage.NewBatch()}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunGC runs BadgerDB's value-log garbage collection; call periodically to
// reclaim space from deleted/updated entries.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == bg.ErrNoRewrite {
		return nil
	}
	return err
}

// --- immediate (direct) access ---

type immediateContext struct {
	db     *bg.DB
	prefix []byte
}

func (c *immediateContext) Get(cf storage.CF, key []byte) ([]byte, error) {
	var value []byte
	physKey := storage.EncodeKey(cf, c.prefix, key)

	err := c.db.View(func(t *bg.Txn) error {
		item, err := t.Get(physKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})
	if err == bg.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}
	return value, nil
}

func (c *immediateContext) Put(cf storage.CF, key, value []byte) error {
	physKey := storage.EncodeKey(cf, c.prefix, key)
	err := c.db.Update(func(t *bg.Txn) error {
		return t.Set(physKey, value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}
	return nil
}

func (c *immediateContext) Delete(cf storage.CF, key []byte) error {
	physKey := storage.EncodeKey(cf, c.prefix, key)
	err := c.db.Update(func(t *bg.Txn) error {
		return t.Delete(physKey)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}
	return nil
}

func (c *immediateContext) Iterate(cf storage.CF, fn func(key, value []byte) (bool, error)) error {
	physPrefix := storage.EncodeKey(cf, c.prefix, nil)

	return c.db.View(func(t *bg.Txn) error {
		opts := bg.DefaultIteratorOptions
		opts.Prefix = physPrefix
		it := t.NewIterator(opts)
		defer it.Close()

		for it.Seek(physPrefix); it.ValidForPrefix(physPrefix); it.Next() {
			item := it.Item()
			orig := item.KeyCopy(nil)[len(physPrefix):]
			var value []byte
			if err := item.Value(func(val []byte) error {
				value = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}
			cont, err := fn(orig, value)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

func (c *immediateContext) Prefix() [32]byte {
	var p [32]byte
	copy(p[:], c.prefix)
	return p
}

type immediateMeta struct {
	db *bg.DB
}

func (m *immediateMeta) Get(key []byte) ([]byte, error) {
	return (&immediateContext{db: m.db}).Get(storage.CFMeta, key)
}
func (m *immediateMeta) Put(key, value []byte) error {
	return (&immediateContext{db: m.db}).Put(storage.CFMeta, key, value)
}
func (m *immediateMeta) Delete(key []byte) error {
	return (&immediateContext{db: m.db}).Delete(storage.CFMeta, key)
}

// --- transactional (buffered) access ---

// txn wraps a badger.Txn. Direct Context writes and Batch.Flush both land
// in the same pending accumulator, which Commit applies onto the badger
// transaction in one pass right before calling badgerTxn.Commit.
type txn struct {
	db        *bg.DB
	badgerTxn *bg.Txn
	pending   *storage.Batch
}

func (t *txn) Context(prefix [32]byte) storage.Context {
	return &txnContext{txn: t, prefix: prefix[:]}
}

func (t *txn) Meta() storage.MetaContext {
	return &txnMeta{txn: t}
}

func (t *txn) NewBatch() *storage.Batch {
	return storage.NewBatch()
}

func (t *txn) Commit() error {
	if err := t.pending.Flush(rawTxn{t}); err != nil {
		return err
	}
	if err := t.badgerTxn.Commit(); err != nil {
		if err == bg.ErrConflict {
			return storage.ErrCommitConflict
		}
		return fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}
	return nil
}

func (t *txn) Rollback() error {
	t.badgerTxn.Discard()
	t.pending = storage.NewBatch()
	return nil
}

// rawTxn adapts txn to storage.Txn so Batch.Flush can write straight into
// the underlying badger.Txn without re-entering the pending accumulator.
type rawTxn struct{ t *txn }

func (r rawTxn) Context(prefix [32]byte) storage.Context { return &rawContext{txn: r.t, prefix: prefix[:]} }
func (r rawTxn) Meta() storage.MetaContext                { return &rawMeta{txn: r.t} }
func (r rawTxn) NewBatch() *storage.Batch                 { return storage.NewBatch() }
func (r rawTxn) Commit() error                            { return nil }
func (r rawTxn) Rollback() error                          { return nil }

type rawContext struct {
	txn    *txn
	prefix []byte
}

func (c *rawContext) Get(cf storage.CF, key []byte) ([]byte, error) {
	return (&txnContext{txn: c.txn, prefix: c.prefix}).readThrough(cf, key)
}
func (c *rawContext) Put(cf storage.CF, key, value []byte) error {
	physKey := storage.EncodeKey(cf, c.prefix, key)
	if err := c.txn.badgerTxn.Set(physKey, value); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}
	return nil
}
func (c *rawContext) Delete(cf storage.CF, key []byte) error {
	physKey := storage.EncodeKey(cf, c.prefix, key)
	if err := c.txn.badgerTxn.Delete(physKey); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}
	return nil
}
func (c *rawContext) Iterate(cf storage.CF, fn func(key, value []byte) (bool, error)) error {
	return (&txnContext{txn: c.txn, prefix: c.prefix}).Iterate(cf, fn)
}
func (c *rawContext) Prefix() [32]byte {
	var p [32]byte
	copy(p[:], c.prefix)
	return p
}

type rawMeta struct{ txn *txn }

func (m *rawMeta) Get(key []byte) ([]byte, error) { return (&rawContext{txn: m.txn}).Get(storage.CFMeta, key) }
func (m *rawMeta) Put(key, value []byte) error    { return (&rawContext{txn: m.txn}).Put(storage.CFMeta, key, value) }
func (m *rawMeta) Delete(key []byte) error        { return (&rawContext{txn: m.txn}).Delete(storage.CFMeta, key) }

type txnContext struct {
	txn    *txn
	prefix []byte
}

func (c *txnContext) readThrough(cf storage.CF, key []byte) ([]byte, error) {
	if v, deleted, ok := c.txn.pending.Get(cf, c.prefix, key); ok {
		if deleted {
			return nil, nil
		}
		return v, nil
	}

	physKey := storage.EncodeKey(cf, c.prefix, key)
	item, err := c.txn.badgerTxn.Get(physKey)
	if err == bg.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}
	var value []byte
	err = item.Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
	}
	return value, nil
}

func (c *txnContext) Get(cf storage.CF, key []byte) ([]byte, error) {
	return c.readThrough(cf, key)
}

func (c *txnContext) Put(cf storage.CF, key, value []byte) error {
	c.txn.pending.Put(cf, c.prefix, key, value)
	return nil
}

func (c *txnContext) Delete(cf storage.CF, key []byte) error {
	c.txn.pending.Delete(cf, c.prefix, key)
	return nil
}

// Iterate merges the transaction's snapshot view with any still-pending
// batch writes so a caller sees read-your-writes within one grove
// operation, matching the Storage Context contract in spec.md §4.1.
func (c *txnContext) Iterate(cf storage.CF, fn func(key, value []byte) (bool, error)) error {
	physPrefix := storage.EncodeKey(cf, c.prefix, nil)

	overlay := make(map[string][]byte)
	deleted := make(map[string]bool)
	for _, pk := range c.txn.pending.PhysicalKeys() {
		if len(pk) >= len(physPrefix) && pk[:len(physPrefix)] == string(physPrefix) {
			v, isDeleted, _ := c.txn.pending.RawGet(pk)
			if isDeleted {
				deleted[pk] = true
			} else {
				overlay[pk] = v
			}
		}
	}

	seen := make(map[string]bool)
	opts := bg.DefaultIteratorOptions
	opts.Prefix = physPrefix
	it := c.txn.badgerTxn.NewIterator(opts)
	defer it.Close()

	var merged []mergedKV

	for it.Seek(physPrefix); it.ValidForPrefix(physPrefix); it.Next() {
		item := it.Item()
		pk := string(item.KeyCopy(nil))
		seen[pk] = true
		if deleted[pk] {
			continue
		}
		if v, ok := overlay[pk]; ok {
			merged = append(merged, mergedKV{pk, v})
			continue
		}
		var value []byte
		if err := item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		}); err != nil {
			return err
		}
		merged = append(merged, mergedKV{pk, value})
	}
	for pk, v := range overlay {
		if !seen[pk] {
			merged = append(merged, mergedKV{pk, v})
		}
	}

	sortKV(merged)
	for _, e := range merged {
		orig := []byte(e.physKey)[len(physPrefix):]
		cont, err := fn(orig, e.value)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

type mergedKV struct {
	physKey string
	value   []byte
}

func sortKV(kvs []mergedKV) {
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].physKey < kvs[j].physKey })
}

func (c *txnContext) Prefix() [32]byte {
	var p [32]byte
	copy(p[:], c.prefix)
	return p
}

type txnMeta struct{ txn *txn }

func (m *txnMeta) Get(key []byte) ([]byte, error) {
	return (&txnContext{txn: m.txn}).Get(storage.CFMeta, key)
}
func (m *txnMeta) Put(key, value []byte) error {
	return (&txnContext{txn: m.txn}).Put(storage.CFMeta, key, value)
}
func (m *txnMeta) Delete(key []byte) error {
	return (&txnContext{txn: m.txn}).Delete(storage.CFMeta, key)
}
