package nonmerk

import (
	"encoding/binary"

	"github.com/grovedb/grovedb/hash"
)

// CommitmentTree is a stand-in for a Sinsemilla-style incremental
// commitment accumulator (spec.md §3.7 names it among the opaque leaf
// variants without mandating the underlying scheme). Real Sinsemilla
// commitments depend on an elliptic-curve library the example pack never
// imports (see DESIGN.md); this engine reuses the same append+combine
// shape as MMR but folds in a per-leaf generator "power" the way a
// window-based Pedersen/Sinsemilla hash would, so callers exercising this
// leaf type see position-dependent commitments rather than a plain hash
// chain.
type CommitmentTree struct {
	power   uint32
	commits *MMR
	count   uint64
}

// NewCommitmentTree returns an empty accumulator using the given generator
// power (the number of bits folded per window; callers that don't care can
// pass 0).
func NewCommitmentTree(power uint32) *CommitmentTree {
	return &CommitmentTree{power: power, commits: NewMMR()}
}

// Append folds a new leaf commitment in at the current position.
func (c *CommitmentTree) Append(leaf hash.Hash) {
	var posBuf [4]byte
	binary.BigEndian.PutUint32(posBuf[:], uint32(c.count)+c.power)
	windowed := hash.Combine(leaf, hash.Of(posBuf[:]))
	c.commits.Append(windowed)
	c.count++
}

// Root returns the accumulator's current child hash.
func (c *CommitmentTree) Root() hash.Hash {
	return c.commits.Root()
}

// Count returns the number of commitments folded in.
func (c *CommitmentTree) Count() uint64 {
	return c.count
}

// Power returns the generator power this accumulator was constructed with.
func (c *CommitmentTree) Power() uint32 {
	return c.power
}
