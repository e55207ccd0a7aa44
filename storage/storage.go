// Package storage implements the Storage Context (spec.md §4.1): a
// per-subtree, column-family-aware KV facade over an ordered backing store,
// with immediate (direct) and transactional (buffered) flavors, plus the
// storage batch accumulator the batch engine flushes at commit time.
//
// The shape generalizes kvstore.KVStore from the teacher (a flat Hash-keyed
// get/put/delete interface) into a column-family-aware, prefix-isolated
// interface: four logical column families (main, roots, aux, meta) emulated
// as key-space prefixes over a single backing engine, since the backing
// engines in play here (BadgerDB, and the in-memory double used in tests)
// don't expose native column families the way an LSM engine with CF support
// would.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// CF identifies one of the four logical column families (spec.md §3.1, §6).
type CF uint8

const (
	// CFMain holds Merk nodes, prefixed by subtree.
	CFMain CF = iota
	// CFRoots holds each subtree's root node key, prefixed by subtree.
	CFRoots
	// CFAux holds application-defined metadata, prefixed by subtree.
	CFAux
	// CFMeta holds global, unprefixed metadata (version tag, feature flags).
	CFMeta
)

func (cf CF) tag() byte {
	switch cf {
	case CFMain:
		return 'm'
	case CFRoots:
		return 'r'
	case CFAux:
		return 'a'
	case CFMeta:
		return 'g'
	default:
		panic("storage: unknown column family")
	}
}

// Sentinel errors (spec.md §4.1 Failure, §7 Backend errors).
var (
	ErrNotFound      = errors.New("storage: key not found")
	ErrStorageFailure = errors.New("storage: backend failure")
	ErrCorruptedData  = errors.New("storage: corrupted data")
	ErrCommitConflict = errors.New("storage: optimistic commit conflict")
)

// EncodeKey builds the physical key for a CF entry: a one-byte CF tag,
// followed by the 32-byte subtree prefix for CFMain/CFRoots/CFAux (CFMeta
// carries no prefix, per spec.md §3.1), followed by the original key.
func EncodeKey(cf CF, prefix []byte, key []byte) []byte {
	if cf == CFMeta {
		out := make([]byte, 0, 1+len(key))
		out = append(out, cf.tag())
		out = append(out, key...)
		return out
	}
	out := make([]byte, 0, 1+len(prefix)+len(key))
	out = append(out, cf.tag())
	out = append(out, prefix...)
	out = append(out, key...)
	return out
}

// Store is the backing engine: something that can hand out immediate
// (unbuffered) contexts and begin backing transactions.
type Store interface {
	// Context returns an immediate, directly-backed context for the subtree
	// whose prefix is given, for reads outside any transaction.
	Context(prefix [32]byte) Context
	// Meta returns the immediate context over the global, unprefixed CFMeta
	// namespace.
	Meta() MetaContext
	// Begin starts a new backing transaction (spec.md §3.6): snapshot-
	// isolated reads, buffered writes.
	Begin() (Txn, error)
	// Close releases the underlying engine's resources.
	Close() error
}

// Context is a subtree-scoped, prefix-isolated view over CFMain/CFRoots/
// CFAux for one subtree.
type Context interface {
	Get(cf CF, key []byte) ([]byte, error)
	Put(cf CF, key, value []byte) error
	Delete(cf CF, key []byte) error
	// Iterate walks CFMain/CFRoots/CFAux entries for this subtree in
	// lexicographic order of the original (unprefixed) key, matching
	// spec.md §4.1's ordering contract. fn returning false stops iteration.
	Iterate(cf CF, fn func(key, value []byte) (bool, error)) error
	// Prefix returns the subtree's 32-byte prefix tag.
	Prefix() [32]byte
}

// MetaContext is the process-global, unprefixed CFMeta accessor.
type MetaContext interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Txn is a backing transaction: it owns a consistent snapshot for reads and
// either writes straight through or buffers writes in a Batch that is
// flushed in one step (spec.md §3.6, §4.4 Phase 4). GroveDB either wraps a
// caller-provided Txn or starts (and commits) its own; ownership is tracked
// by the caller, not by Txn itself, so a caller that owns a Txn retains
// control of when it commits.
type Txn interface {
	// Context returns a transactional context for the given subtree prefix:
	// reads see the transaction's buffer and snapshot; writes issued
	// directly through Context go straight into the transaction. Most
	// grove operations instead stage writes through a Batch (NewBatch) so
	// they can be discarded atomically on mid-operation failure.
	Context(prefix [32]byte) Context
	Meta() MetaContext
	// NewBatch returns a fresh accumulator of point-level KV operations
	// (spec.md §3.6). Flush applies it onto this Txn in one step.
	NewBatch() *Batch
	Commit() error
	Rollback() error
}

// op is one pending mutation recorded in a Batch.
type op struct {
	cf      CF
	prefix  []byte
	key     []byte
	value   []byte
	deleted bool
}

// Batch accumulates point-level KV operations across potentially many
// subtrees and column families, to be applied onto a Txn in a single step
// at the end of a grove operation (spec.md §3.6, §4.4 Phase 4). Writes of
// the same (cf, prefix, key) within one Batch collapse to the last one;
// deletes shadow earlier puts, matching the Storage Context contract in
// spec.md §4.1.
type Batch struct {
	entries map[string]*op
	order   []string
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{entries: make(map[string]*op)}
}

func physKey(cf CF, prefix, key []byte) string {
	return string(EncodeKey(cf, prefix, key))
}

// Put records a write, collapsing any earlier pending op on the same key.
func (b *Batch) Put(cf CF, prefix, key, value []byte) {
	pk := physKey(cf, prefix, key)
	if _, exists := b.entries[pk]; !exists {
		b.order = append(b.order, pk)
	}
	b.entries[pk] = &op{cf: cf, prefix: prefix, key: append([]byte(nil), key...), value: append([]byte(nil), value...)}
}

// Delete records a delete, shadowing any earlier pending write on the same
// key.
func (b *Batch) Delete(cf CF, prefix, key []byte) {
	pk := physKey(cf, prefix, key)
	if _, exists := b.entries[pk]; !exists {
		b.order = append(b.order, pk)
	}
	b.entries[pk] = &op{cf: cf, prefix: prefix, key: append([]byte(nil), key...), deleted: true}
}

// Get returns the pending value for a key, and whether the batch holds any
// pending op for it at all (a pending delete returns ok=true, value=nil,
// deleted=true).
func (b *Batch) Get(cf CF, prefix, key []byte) (value []byte, deleted bool, ok bool) {
	e, found := b.entries[physKey(cf, prefix, key)]
	if !found {
		return nil, false, false
	}
	return e.value, e.deleted, true
}

// Len reports the number of distinct pending keys.
func (b *Batch) Len() int {
	return len(b.entries)
}

// PhysicalKeys returns the physical (CF-tagged, prefixed) keys with a
// pending op, in no particular order. It exists for backends (the in-memory
// double) that need to merge pending writes into a prefix-scoped iteration
// without re-deriving physical keys themselves.
func (b *Batch) PhysicalKeys() []string {
	out := make([]string, 0, len(b.entries))
	for k := range b.entries {
		out = append(out, k)
	}
	return out
}

// RawGet looks up a pending op by its already-encoded physical key.
func (b *Batch) RawGet(physicalKey string) (value []byte, deleted bool, ok bool) {
	e, found := b.entries[physicalKey]
	if !found {
		return nil, false, false
	}
	return e.value, e.deleted, true
}

// Flush applies every pending op onto txn in deterministic (sorted
// physical-key) order and clears the batch. Determinism here matters
// because two replicas must arrive at byte-identical on-disk state from
// the same logical batch (spec.md §5).
func (b *Batch) Flush(txn Txn) error {
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, pk := range keys {
		e := b.entries[pk]
		var ctx Context
		var meta MetaContext
		if e.cf == CFMeta {
			meta = txn.Meta()
		} else {
			var prefix [32]byte
			copy(prefix[:], e.prefix)
			ctx = txn.Context(prefix)
		}

		var err error
		switch {
		case e.cf == CFMeta && e.deleted:
			err = meta.Delete(e.key)
		case e.cf == CFMeta:
			err = meta.Put(e.key, e.value)
		case e.deleted:
			err = ctx.Delete(e.cf, e.key)
		default:
			err = ctx.Put(e.cf, e.key, e.value)
		}
		if err != nil {
			return fmt.Errorf("storage: flush %x: %w", pk, err)
		}
	}
	b.entries = make(map[string]*op)
	b.order = nil
	return nil
}

// prefixRange returns [start, end) byte bounds for an iteration over all
// keys physically prefixed by p: end is p incremented as a big-endian
// integer, or nil if p is all 0xFF (meaning "to the end of the keyspace").
func prefixRange(p []byte) (start, end []byte) {
	start = append([]byte(nil), p...)
	end = append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return start, end[:i+1]
		}
	}
	return start, nil
}

// withinPrefix reports whether key falls in [start, end) (end == nil means
// unbounded above).
func withinPrefix(key, start, end []byte) bool {
	if bytes.Compare(key, start) < 0 {
		return false
	}
	return end == nil || bytes.Compare(key, end) < 0
}
