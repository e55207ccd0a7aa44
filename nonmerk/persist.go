package nonmerk

import (
	"encoding/binary"
	"fmt"

	"github.com/grovedb/grovedb/hash"
)

// Marshal/Unmarshal round-trip each opaque leaf engine's in-memory state to
// bytes, the way element.go's Encode/Decode round-trip a Merk node: a small
// fixed header followed by length-prefixed variable sections, so the grove
// batch engine can persist engine state (in the leaf's own storage
// namespace, separate from its portal element) and reload it for the next
// operation that touches the same non-Merk leaf.

func appendBytesField(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func takeBytesField(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("nonmerk: truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	if len(b) < n {
		return nil, nil, fmt.Errorf("nonmerk: truncated field, want %d have %d", n, len(b))
	}
	return append([]byte(nil), b[:n]...), b[n:], nil
}

// Marshal serializes an MMR's peak forest.
func (m *MMR) Marshal() []byte {
	buf := binary.BigEndian.AppendUint64(nil, m.count)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.peaks)))
	for i, p := range m.peaks {
		buf = append(buf, p[:]...)
		buf = append(buf, m.heights[i])
	}
	return buf
}

// UnmarshalMMR parses an MMR previously produced by Marshal.
func UnmarshalMMR(b []byte) (*MMR, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("nonmerk: truncated MMR header")
	}
	m := &MMR{count: binary.BigEndian.Uint64(b[:8])}
	n := int(binary.BigEndian.Uint32(b[8:12]))
	b = b[12:]
	for i := 0; i < n; i++ {
		if len(b) < hash.Size+1 {
			return nil, fmt.Errorf("nonmerk: truncated MMR peak %d", i)
		}
		m.peaks = append(m.peaks, hash.FromBytes(b[:hash.Size]))
		m.heights = append(m.heights, b[hash.Size])
		b = b[hash.Size+1:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("nonmerk: %d trailing bytes after MMR", len(b))
	}
	return m, nil
}

// Marshal serializes a BulkAppendTree: its page MMR plus every sealed page
// and the current unsealed page, so Get still resolves any previously
// appended index after a round trip.
func (t *BulkAppendTree) Marshal() []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(t.pageSize))
	buf = binary.BigEndian.AppendUint64(buf, t.total)
	buf = appendBytesField(buf, t.pages.Marshal())
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(t.sealed)))
	for _, page := range t.sealed {
		buf = marshalEntries(buf, page)
	}
	buf = marshalEntries(buf, t.current)
	return buf
}

func marshalEntries(buf []byte, entries []entry) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint64(buf, e.index)
		buf = appendBytesField(buf, e.value)
	}
	return buf
}

func unmarshalEntries(b []byte) ([]entry, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("nonmerk: truncated entry count")
	}
	n := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	out := make([]entry, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < 8 {
			return nil, nil, fmt.Errorf("nonmerk: truncated entry index")
		}
		idx := binary.BigEndian.Uint64(b[:8])
		b = b[8:]
		var v []byte
		var err error
		v, b, err = takeBytesField(b)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, entry{index: idx, value: v})
	}
	return out, b, nil
}

// UnmarshalBulkAppendTree parses a BulkAppendTree previously produced by
// Marshal.
func UnmarshalBulkAppendTree(b []byte) (*BulkAppendTree, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("nonmerk: truncated BulkAppendTree header")
	}
	t := &BulkAppendTree{pageSize: int(binary.BigEndian.Uint32(b[:4])), total: binary.BigEndian.Uint64(b[4:12])}
	b = b[12:]

	var mmrBytes []byte
	var err error
	mmrBytes, b, err = takeBytesField(b)
	if err != nil {
		return nil, err
	}
	t.pages, err = UnmarshalMMR(mmrBytes)
	if err != nil {
		return nil, fmt.Errorf("nonmerk: BulkAppendTree pages: %w", err)
	}

	if len(b) < 4 {
		return nil, fmt.Errorf("nonmerk: truncated sealed page count")
	}
	pageCount := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	for i := 0; i < pageCount; i++ {
		var page []entry
		page, b, err = unmarshalEntries(b)
		if err != nil {
			return nil, fmt.Errorf("nonmerk: BulkAppendTree sealed page %d: %w", i, err)
		}
		t.sealed = append(t.sealed, page)
	}
	t.current, b, err = unmarshalEntries(b)
	if err != nil {
		return nil, fmt.Errorf("nonmerk: BulkAppendTree current page: %w", err)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("nonmerk: %d trailing bytes after BulkAppendTree", len(b))
	}
	return t, nil
}

// Marshal serializes a DenseAppendOnlyFixedSizeTree.
func (t *DenseAppendOnlyFixedSizeTree) Marshal() []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(t.entrySize))
	buf = binary.BigEndian.AppendUint32(buf, uint32(t.height))
	buf = binary.BigEndian.AppendUint64(buf, t.total)
	buf = appendBytesField(buf, t.pages.Marshal())
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(t.sealed)))
	for _, page := range t.sealed {
		buf = appendBytesField(buf, page)
	}
	buf = appendBytesField(buf, t.current)
	return buf
}

// UnmarshalDenseAppendOnlyFixedSizeTree parses a tree previously produced by
// Marshal.
func UnmarshalDenseAppendOnlyFixedSizeTree(b []byte) (*DenseAppendOnlyFixedSizeTree, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("nonmerk: truncated DenseAppendOnlyFixedSizeTree header")
	}
	t := &DenseAppendOnlyFixedSizeTree{
		entrySize: int(binary.BigEndian.Uint32(b[:4])),
		height:    int(binary.BigEndian.Uint32(b[4:8])),
		total:     binary.BigEndian.Uint64(b[8:16]),
	}
	b = b[16:]

	var mmrBytes []byte
	var err error
	mmrBytes, b, err = takeBytesField(b)
	if err != nil {
		return nil, err
	}
	t.pages, err = UnmarshalMMR(mmrBytes)
	if err != nil {
		return nil, fmt.Errorf("nonmerk: DenseAppendOnlyFixedSizeTree pages: %w", err)
	}

	if len(b) < 4 {
		return nil, fmt.Errorf("nonmerk: truncated sealed page count")
	}
	pageCount := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	for i := 0; i < pageCount; i++ {
		var page []byte
		page, b, err = takeBytesField(b)
		if err != nil {
			return nil, fmt.Errorf("nonmerk: DenseAppendOnlyFixedSizeTree sealed page %d: %w", i, err)
		}
		t.sealed = append(t.sealed, page)
	}
	t.current, b, err = takeBytesField(b)
	if err != nil {
		return nil, fmt.Errorf("nonmerk: DenseAppendOnlyFixedSizeTree current page: %w", err)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("nonmerk: %d trailing bytes after DenseAppendOnlyFixedSizeTree", len(b))
	}
	return t, nil
}

// Marshal serializes a CommitmentTree.
func (c *CommitmentTree) Marshal() []byte {
	buf := binary.BigEndian.AppendUint32(nil, c.power)
	buf = binary.BigEndian.AppendUint64(buf, c.count)
	buf = appendBytesField(buf, c.commits.Marshal())
	return buf
}

// UnmarshalCommitmentTree parses an accumulator previously produced by
// Marshal.
func UnmarshalCommitmentTree(b []byte) (*CommitmentTree, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("nonmerk: truncated CommitmentTree header")
	}
	c := &CommitmentTree{power: binary.BigEndian.Uint32(b[:4]), count: binary.BigEndian.Uint64(b[4:12])}
	b = b[12:]
	var mmrBytes []byte
	var err error
	mmrBytes, b, err = takeBytesField(b)
	if err != nil {
		return nil, err
	}
	c.commits, err = UnmarshalMMR(mmrBytes)
	if err != nil {
		return nil, fmt.Errorf("nonmerk: CommitmentTree commits: %w", err)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("nonmerk: %d trailing bytes after CommitmentTree", len(b))
	}
	return c, nil
}
