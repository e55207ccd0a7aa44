package nonmerk

import (
	"fmt"

	"github.com/grovedb/grovedb/hash"
)

// DenseAppendOnlyFixedSizeTree is an append-only array of fixed-width
// entries, grouped into fixed-height pages the way indexnode.go's
// key_size=0, !has_data_section layout supports array access by index
// (mode 5 in its header comment): a page is just a packed array of
// entrySize-byte values, looked up by position rather than by key.
//
// Fixed width lets every page be hashed as one contiguous block without a
// length table, unlike BulkAppendTree's variable-length entries.
type DenseAppendOnlyFixedSizeTree struct {
	entrySize int
	height    int // entries per page
	pages     *MMR
	sealed    [][]byte // one packed block per sealed page
	current   []byte
	total     uint64
}

// NewDenseAppendOnlyFixedSizeTree returns an empty tree whose entries are
// entrySize bytes each, sealing a page every height entries.
func NewDenseAppendOnlyFixedSizeTree(entrySize, height int) *DenseAppendOnlyFixedSizeTree {
	if height <= 0 {
		height = 256
	}
	return &DenseAppendOnlyFixedSizeTree{entrySize: entrySize, height: height, pages: NewMMR()}
}

// Append adds a fixed-size entry, returning its index. Panics if entry is
// not exactly entrySize bytes, matching indexnode.go's AddEntry validation.
func (t *DenseAppendOnlyFixedSizeTree) Append(entry []byte) uint64 {
	if len(entry) != t.entrySize {
		panic(fmt.Sprintf("nonmerk: entry size mismatch: expected %d, got %d", t.entrySize, len(entry)))
	}
	idx := t.total
	t.current = append(t.current, entry...)
	t.total++
	if len(t.current)/t.entrySize >= t.height {
		t.sealPage()
	}
	return idx
}

// Flush seals any partially-filled page so Root reflects every appended
// entry.
func (t *DenseAppendOnlyFixedSizeTree) Flush() {
	if len(t.current) > 0 {
		t.sealPage()
	}
}

func (t *DenseAppendOnlyFixedSizeTree) sealPage() {
	t.pages.Append(hash.Of(t.current))
	t.sealed = append(t.sealed, t.current)
	t.current = nil
}

// Root returns the tree's current child hash over all sealed pages.
func (t *DenseAppendOnlyFixedSizeTree) Root() hash.Hash {
	return t.pages.Root()
}

// Len returns the total number of entries appended.
func (t *DenseAppendOnlyFixedSizeTree) Len() uint64 {
	return t.total
}

// Get returns the entry at the given index by array position within its
// page, matching indexnode.go's GetByIndex.
func (t *DenseAppendOnlyFixedSizeTree) Get(index uint64) ([]byte, error) {
	perPage := uint64(t.height)
	pageIdx := index / perPage
	offset := int(index%perPage) * t.entrySize

	var page []byte
	switch {
	case pageIdx < uint64(len(t.sealed)):
		page = t.sealed[pageIdx]
	case pageIdx == uint64(len(t.sealed)):
		page = t.current
	default:
		return nil, ErrOutOfRange
	}
	if offset+t.entrySize > len(page) {
		return nil, ErrOutOfRange
	}
	return page[offset : offset+t.entrySize], nil
}
