package nonmerk

import (
	"github.com/grovedb/grovedb/hash"
)

// MMR is an append-only Merkle Mountain Range: leaves are hashed in and
// combined into a forest of perfect binary "peaks", the way
// merkle/builder.go's buildTree combines Bitcoin leaf hashes in full
// levels — generalized here so the forest can grow one leaf at a time
// instead of requiring the full leaf set up front.
type MMR struct {
	// peaks holds one hash per set bit of len(leaves) in the classic MMR
	// peak decomposition, ordered from the largest (leftmost) peak to the
	// smallest. peaks[i] is the root of a perfect subtree of height
	// heights[i].
	peaks   []hash.Hash
	heights []uint8
	count   uint64
}

// NewMMR returns an empty range.
func NewMMR() *MMR {
	return &MMR{}
}

// Append adds a new leaf hash, merging it into the peak forest. Equal-height
// adjacent peaks are repeatedly combined via hash.Combine, mirroring
// hashPair's left||right combination in builder.go.
func (m *MMR) Append(leaf hash.Hash) {
	peak := leaf
	height := uint8(0)
	for len(m.heights) > 0 && m.heights[len(m.heights)-1] == height {
		top := m.peaks[len(m.peaks)-1]
		m.peaks = m.peaks[:len(m.peaks)-1]
		m.heights = m.heights[:len(m.heights)-1]
		peak = hash.Combine(top, peak)
		height++
	}
	m.peaks = append(m.peaks, peak)
	m.heights = append(m.heights, height)
	m.count++
}

// Root bags the current peaks into a single child hash: peaks are combined
// right-to-left so the bag is well-defined however many peaks exist. An
// empty MMR's root is the zero hash.
func (m *MMR) Root() hash.Hash {
	if len(m.peaks) == 0 {
		return hash.Zero
	}
	root := m.peaks[len(m.peaks)-1]
	for i := len(m.peaks) - 2; i >= 0; i-- {
		root = hash.Combine(m.peaks[i], root)
	}
	return root
}

// Count returns the number of leaves appended so far.
func (m *MMR) Count() uint64 {
	return m.count
}

// Peaks returns a defensive copy of the current peak hashes, largest first.
func (m *MMR) Peaks() []hash.Hash {
	out := make([]hash.Hash, len(m.peaks))
	copy(out, m.peaks)
	return out
}
