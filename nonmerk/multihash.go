// Package nonmerk implements the opaque non-Merk leaf engines referenced
// from a Tree-family Element as an alternative to a nested Merk subtree
// (spec.md §3.7): a merkle mountain range, a paged bulk-append log, a
// dense fixed-size append log, and a commitment-accumulator stand-in. Each
// engine exposes nothing but an append/query API and a 32-byte child hash
// for the parent Merk to bind into its node hash; GroveDB never looks
// inside one.
package nonmerk

import (
	"bytes"
	"encoding/hex"
	"fmt"

	mh "github.com/multiformats/go-multihash"
	_ "github.com/multiformats/go-multihash/register/blake3"

	"github.com/grovedb/grovedb/hash"
)

// LeafHash wraps a 32-byte engine digest as a self-describing BLAKE3
// multihash, the way multihash.go wraps IPLD node hashes: the multihash
// header records the hash function so the digest can be verified (or
// rejected) without out-of-band knowledge of which engine produced it.
type LeafHash []byte

// Wrap encodes an already-computed digest as a multihash.
func Wrap(h hash.Hash) (LeafHash, error) {
	wrapped, err := mh.Encode(h.Bytes(), mh.BLAKE3)
	if err != nil {
		return nil, fmt.Errorf("nonmerk: wrap hash: %w", err)
	}
	return LeafHash(wrapped), nil
}

// Raw extracts the 32-byte digest from a wrapped LeafHash.
func (h LeafHash) Raw() (hash.Hash, error) {
	decoded, err := mh.Decode(mh.Multihash(h))
	if err != nil {
		return hash.Hash{}, fmt.Errorf("nonmerk: invalid multihash: %w", err)
	}
	if decoded.Code != mh.BLAKE3 {
		return hash.Hash{}, fmt.Errorf("nonmerk: expected BLAKE3, got 0x%x", decoded.Code)
	}
	if len(decoded.Digest) != hash.Size {
		return hash.Hash{}, fmt.Errorf("nonmerk: expected %d-byte digest, got %d", hash.Size, len(decoded.Digest))
	}
	return hash.FromBytes(decoded.Digest), nil
}

// Verify checks that h decodes to exactly want.
func (h LeafHash) Verify(want hash.Hash) error {
	raw, err := h.Raw()
	if err != nil {
		return err
	}
	if !bytes.Equal(raw.Bytes(), want.Bytes()) {
		return fmt.Errorf("nonmerk: hash mismatch")
	}
	return nil
}

// Bytes returns the raw multihash bytes. Engines' Root methods and the
// portal Element binding use the bare 32-byte hash, not this form.
func (h LeafHash) Bytes() []byte { return []byte(h) }

// Hex returns the hex-encoded multihash, useful for logging.
func (h LeafHash) Hex() string { return hex.EncodeToString(h) }
