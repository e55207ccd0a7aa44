// Package memory is an in-memory storage.Store, standing in for the real
// backing engine in tests exactly the role kvstore/memory/memory.go plays
// for kvstore/badger/badger.go in the teacher repo.
package memory

import (
	"sort"
	"sync"

	"github.com/grovedb/grovedb/storage"
)

// Store is an in-memory implementation of storage.Store. It has no real
// optimistic-concurrency-control: Commit always succeeds, which is fine for
// the single-writer unit tests it exists for, but it is not a substitute
// for the badger-backed Store's CommitConflict behavior.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte // physical key -> value
}

// New creates a new in-memory Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Context(prefix [32]byte) storage.Context {
	return &immediateContext{store: s, prefix: prefix[:]}
}

func (s *Store) Meta() storage.MetaContext {
	return &immediateMeta{store: s}
}

func (s *Store) Begin() (storage.Txn, error) {
	s.mu.RLock()
	snapshot := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	return &txn{store: s, snapshot: snapshot, pending: storage.NewBatch()}, nil
}

func (s *Store) Close() error {
	return nil
}

// --- immediate (direct, unbuffered) access ---

type immediateContext struct {
	store  *Store
	prefix []byte
}

func (c *immediateContext) Get(cf storage.CF, key []byte) ([]byte, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	v, ok := c.store.data[string(storage.EncodeKey(cf, c.prefix, key))]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (c *immediateContext) Put(cf storage.CF, key, value []byte) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.data[string(storage.EncodeKey(cf, c.prefix, key))] = append([]byte(nil), value...)
	return nil
}

func (c *immediateContext) Delete(cf storage.CF, key []byte) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	delete(c.store.data, string(storage.EncodeKey(cf, c.prefix, key)))
	return nil
}

func (c *immediateContext) Iterate(cf storage.CF, fn func(key, value []byte) (bool, error)) error {
	c.store.mu.RLock()
	physPrefix := storage.EncodeKey(cf, c.prefix, nil)
	keys := make([]string, 0)
	for k := range c.store.data {
		if len(k) >= len(physPrefix) && k[:len(physPrefix)] == string(physPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	type kv struct{ k, v []byte }
	ordered := make([]kv, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, kv{k: []byte(k), v: append([]byte(nil), c.store.data[k]...)})
	}
	c.store.mu.RUnlock()

	for _, e := range ordered {
		orig := e.k[len(physPrefix):]
		cont, err := fn(orig, e.v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (c *immediateContext) Prefix() [32]byte {
	var p [32]byte
	copy(p[:], c.prefix)
	return p
}

type immediateMeta struct {
	store *Store
}

func (m *immediateMeta) Get(key []byte) ([]byte, error) {
	return (&immediateContext{store: m.store}).Get(storage.CFMeta, key)
}
func (m *immediateMeta) Put(key, value []byte) error {
	return (&immediateContext{store: m.store}).Put(storage.CFMeta, key, value)
}
func (m *immediateMeta) Delete(key []byte) error {
	return (&immediateContext{store: m.store}).Delete(storage.CFMeta, key)
}

// --- transactional (buffered) access ---

type txn struct {
	store    *Store
	snapshot map[string][]byte
	pending  *storage.Batch
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
	return t.pending.Flush(&directTxn{store: t.store})
}

func (t *txn) Rollback() error {
	t.pending = storage.NewBatch()
	return nil
}

// directTxn applies a Batch straight onto the store's map, bypassing
// snapshot isolation; used only by Commit to materialize the final state.
type directTxn struct {
	store *Store
}

func (d *directTxn) Context(prefix [32]byte) storage.Context {
	return &immediateContext{store: d.store, prefix: prefix[:]}
}
func (d *directTxn) Meta() storage.MetaContext        { return &immediateMeta{store: d.store} }
func (d *directTxn) NewBatch() *storage.Batch         { return storage.NewBatch() }
func (d *directTxn) Commit() error                    { return nil }
func (d *directTxn) Rollback() error                  { return nil }

type txnContext struct {
	txn    *txn
	prefix []byte
}

func (c *txnContext) Get(cf storage.CF, key []byte) ([]byte, error) {
	if v, deleted, ok := c.txn.pending.Get(cf, c.prefix, key); ok {
		if deleted {
			return nil, nil
		}
		return v, nil
	}
	v, ok := c.txn.snapshot[string(storage.EncodeKey(cf, c.prefix, key))]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (c *txnContext) Put(cf storage.CF, key, value []byte) error {
	c.txn.pending.Put(cf, c.prefix, key, value)
	return nil
}

func (c *txnContext) Delete(cf storage.CF, key []byte) error {
	c.txn.pending.Delete(cf, c.prefix, key)
	return nil
}

func (c *txnContext) Iterate(cf storage.CF, fn func(key, value []byte) (bool, error)) error {
	physPrefix := storage.EncodeKey(cf, c.prefix, nil)

	merged := make(map[string][]byte)
	for k, v := range c.txn.snapshot {
		if hasPrefix(k, physPrefix) {
			merged[k] = v
		}
	}
	for _, pk := range pendingKeysWithPrefix(c.txn.pending, physPrefix) {
		v, deleted, _ := pendingRawGet(c.txn.pending, pk)
		if deleted {
			delete(merged, pk)
		} else {
			merged[pk] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		orig := []byte(k)[len(physPrefix):]
		cont, err := fn(orig, merged[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (c *txnContext) Prefix() [32]byte {
	var p [32]byte
	copy(p[:], c.prefix)
	return p
}

func hasPrefix(k string, prefix []byte) bool {
	return len(k) >= len(prefix) && k[:len(prefix)] == string(prefix)
}

// pendingKeysWithPrefix and pendingRawGet reach into the batch's physical
// key space through storage.Batch's PhysicalKeys and RawGet, so the
// in-memory double can merge snapshot + pending state for Iterate.
func pendingKeysWithPrefix(b *storage.Batch, prefix []byte) []string {
	var out []string
	for _, pk := range b.PhysicalKeys() {
		if hasPrefix(pk, prefix) {
			out = append(out, pk)
		}
	}
	return out
}

func pendingRawGet(b *storage.Batch, physicalKey string) (value []byte, deleted bool, ok bool) {
	return b.RawGet(physicalKey)
}

type txnMeta struct {
	txn *txn
}

func (m *txnMeta) Get(key []byte) ([]byte, error) {
	return (&txnContext{txn: m.txn}).Get(storage.CFMeta, key)
}
func (m *txnMeta) Put(key, value []byte) error {
	return (&txnContext{txn: m.txn}).Put(storage.CFMeta, key, value)
}
func (m *txnMeta) Delete(key []byte) error {
	return (&txnContext{txn: m.txn}).Delete(storage.CFMeta, key)
}
