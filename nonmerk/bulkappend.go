package nonmerk

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/grovedb/grovedb/hash"
)

// BulkAppendTree is an append-only log of variable-length entries, batched
// into fixed-key binary-search pages the way indexnode.go's key_size>0,
// !has_data_section layout does (mode 1 in its header comment): entries
// within a page are keyed by their big-endian insertion index, so a page is
// a closed IndexNode-shaped block rather than a living structure.
//
// The tree's child hash is the root of an MMR over committed page hashes,
// so appending a new page never recomputes earlier page hashes.
type BulkAppendTree struct {
	pageSize int
	pages    *MMR
	sealed   [][]entry
	current  []entry
	total    uint64
}

type entry struct {
	index uint64
	value []byte
}

// NewBulkAppendTree returns an empty tree that flushes a page every
// pageSize entries.
func NewBulkAppendTree(pageSize int) *BulkAppendTree {
	if pageSize <= 0 {
		pageSize = 1024
	}
	return &BulkAppendTree{pageSize: pageSize, pages: NewMMR()}
}

// Append adds a value, returning its insertion index. Once pageSize entries
// have accumulated, they are sealed into a page and folded into the page
// MMR; callers that need the child hash to reflect a partial page must call
// Flush.
func (t *BulkAppendTree) Append(value []byte) uint64 {
	idx := t.total
	t.current = append(t.current, entry{index: idx, value: value})
	t.total++
	if len(t.current) >= t.pageSize {
		t.sealPage()
	}
	return idx
}

// Flush seals any partially-filled page so Root reflects every appended
// entry.
func (t *BulkAppendTree) Flush() {
	if len(t.current) > 0 {
		t.sealPage()
	}
}

func (t *BulkAppendTree) sealPage() {
	h := hashPage(t.current)
	t.pages.Append(h)
	t.sealed = append(t.sealed, t.current)
	t.current = nil
}

// Get returns the value at the given insertion index, searching sealed
// pages and the current unsealed page.
func (t *BulkAppendTree) Get(index uint64) ([]byte, error) {
	for _, page := range t.sealed {
		if v, ok := findInPage(page, index); ok {
			return v, nil
		}
	}
	if v, ok := findInPage(t.current, index); ok {
		return v, nil
	}
	return nil, ErrOutOfRange
}

func findInPage(page []entry, index uint64) ([]byte, bool) {
	for _, e := range page {
		if e.index == index {
			return e.value, true
		}
	}
	return nil, false
}

// hashPage computes the page hash the way indexnode.go's Marshal lays out a
// key/value entry list: entries sorted by key (here, insertion index),
// framed length-prefixed, hashed as one block.
func hashPage(entries []entry) hash.Hash {
	sorted := append([]entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].index < sorted[j].index })

	var buf []byte
	for _, e := range sorted {
		var keyBuf [8]byte
		binary.BigEndian.PutUint64(keyBuf[:], e.index)
		buf = append(buf, keyBuf[:]...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.value)))
		buf = append(buf, e.value...)
	}
	return hash.Of(buf)
}

// Root returns the tree's current child hash over all sealed pages. Call
// Flush first if the most recent entries must be included.
func (t *BulkAppendTree) Root() hash.Hash {
	return t.pages.Root()
}

// Len returns the total number of entries appended, including any not yet
// sealed into a page.
func (t *BulkAppendTree) Len() uint64 {
	return t.total
}

// PageCount returns the number of sealed pages.
func (t *BulkAppendTree) PageCount() uint64 {
	return t.pages.Count()
}

// ErrOutOfRange is returned by lookups past the end of the log.
var ErrOutOfRange = fmt.Errorf("nonmerk: index out of range")
