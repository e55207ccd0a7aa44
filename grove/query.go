package grove

import (
	"encoding/binary"
	"fmt"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/proof"
	"github.com/grovedb/grovedb/treecache"
)

// PathQuery names one subtree and the selectors to run against it (spec.md
// §4.5): Path addresses the target Merk, Query the keys/ranges within it.
type PathQuery struct {
	Path  *path.Path
	Query *proof.Query
}

// QueryResult is one matched (key, element) pair.
type QueryResult struct {
	Key     []byte
	Element element.Element
}

// Query runs pq against the subtree it names and returns the matched
// elements in the query's traversal order. It reuses the proof engine to
// execute the query (spec.md §4.5 describes query execution and proof
// generation as the same tree walk), discarding the stream.
func (db *DB) Query(tx *Txn, pq PathQuery) ([]QueryResult, error) {
	var out []QueryResult
	err := db.withTxn(tx, func(t *Txn) error {
		tc := db.newCache(t.txn)
		tree, err := openSubtree(tc, pq.Path)
		if err != nil {
			return err
		}
		proved, err := proof.Prove(tree, pq.Query)
		if err != nil {
			return fmt.Errorf("grove: query: %w", err)
		}
		out = make([]QueryResult, len(proved.Results))
		for i, r := range proved.Results {
			out[i] = QueryResult{Key: r.Key, Element: r.Element}
		}
		return nil
	})
	return out, err
}

// Layer is one subtree's contribution to a MultiProof: the key its portal
// is stored under in its parent (empty for the grove root, which has none),
// and the Merk-level proof stream covering that subtree.
type Layer struct {
	Key    []byte
	Stream *proof.Stream
}

// MultiProof is a root-to-target chain of per-subtree proofs (spec.md
// §4.5's "cross-subtree proof"): one ancestor Layer per path segment,
// binding each subtree's root hash into its parent's portal element, plus a
// final Layer carrying the target subtree's own query proof.
type MultiProof struct {
	Layers []Layer
}

// ProveQuery builds a MultiProof for pq: a point proof of each ancestor
// portal down to pq.Path, followed by pq.Query's own proof against the
// target subtree (spec.md §4.5, §4.6).
func (db *DB) ProveQuery(tx *Txn, pq PathQuery) (*MultiProof, error) {
	var mp MultiProof
	err := db.withTxn(tx, func(t *Txn) error {
		tc := db.newCache(t.txn)
		segments := pq.Path.Segments()

		for i := 0; i < len(segments); i++ {
			ancestor := path.New(segments[:i]...)
			tree, err := openSubtree(tc, ancestor)
			if err != nil {
				return err
			}
			key := segments[i]
			q := proof.NewQuery([]proof.Item{{Kind: proof.Key, Start: key}})
			proved, err := proof.Prove(tree, q)
			if err != nil {
				return fmt.Errorf("grove: prove ancestor %x: %w", key, err)
			}
			mp.Layers = append(mp.Layers, Layer{Key: key, Stream: proved.Stream})
		}

		tree, err := openSubtree(tc, pq.Path)
		if err != nil {
			return err
		}
		proved, err := proof.Prove(tree, pq.Query)
		if err != nil {
			return fmt.Errorf("grove: prove target: %w", err)
		}
		mp.Layers = append(mp.Layers, Layer{Stream: proved.Stream})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &mp, nil
}

// VerifyProof checks mp against root (the grove's top-level root hash) and
// returns the final layer's revealed elements. Each layer is reconstructed
// independently (Reconstruct, not Verify, since only the grove root is
// known in advance); a layer's computed hash is then checked against
// either root (layer 0) or the value_hash the previous layer bound into
// its revealed portal element, walking root to target exactly as
// ProveQuery built it (spec.md §4.6).
func VerifyProof(mp *MultiProof, root hash.Hash) ([]QueryResult, error) {
	if len(mp.Layers) == 0 {
		return nil, fmt.Errorf("grove: empty proof")
	}

	expected := root
	for i, layer := range mp.Layers {
		got, results, err := proof.Reconstruct(layer.Stream)
		if err != nil {
			return nil, fmt.Errorf("grove: verify layer %d: %w", i, err)
		}
		if got != expected {
			return nil, fmt.Errorf("grove: verify layer %d: %w", i, ErrBrokenReference)
		}

		last := i == len(mp.Layers)-1
		if last {
			out := make([]QueryResult, len(results))
			for j, r := range results {
				out[j] = QueryResult{Key: r.Key, Element: r.Element}
			}
			return out, nil
		}

		var portal *proof.Result
		for j := range results {
			if string(results[j].Key) == string(layer.Key) {
				portal = &results[j]
				break
			}
		}
		if portal == nil {
			return nil, fmt.Errorf("grove: verify layer %d: %w: ancestor key not revealed", i, ErrBrokenReference)
		}
		if !portal.Element.Kind.IsTree() {
			return nil, fmt.Errorf("grove: verify layer %d: %w", i, ErrWrongElementKind)
		}

		childRoot := mp.Layers[i+1]
		expectedChildHash, _, err := proof.Reconstruct(childRoot.Stream)
		if err != nil {
			return nil, fmt.Errorf("grove: verify layer %d: %w", i+1, err)
		}
		boundHash, err := element.ValueHash(portal.Element, nil, &expectedChildHash)
		if err != nil {
			return nil, fmt.Errorf("grove: verify layer %d: %w", i, err)
		}
		if boundHash != portal.ValueHash {
			return nil, fmt.Errorf("grove: verify layer %d: %w: portal binding mismatch", i, ErrBrokenReference)
		}
		expected = expectedChildHash
	}
	return nil, fmt.Errorf("grove: empty proof")
}

const multiProofVersion = 0

// EncodeMultiProof serializes a MultiProof to its wire form: a version
// byte, then each layer as a length-prefixed key followed by a
// length-prefixed proof.Encode stream.
func EncodeMultiProof(mp *MultiProof) []byte {
	buf := []byte{multiProofVersion}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(mp.Layers)))
	for _, l := range mp.Layers {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(l.Key)))
		buf = append(buf, l.Key...)
		enc := proof.Encode(l.Stream)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(enc)))
		buf = append(buf, enc...)
	}
	return buf
}

// DecodeMultiProof parses a MultiProof previously produced by
// EncodeMultiProof.
func DecodeMultiProof(b []byte) (*MultiProof, error) {
	if len(b) < 1 || b[0] != multiProofVersion {
		return nil, fmt.Errorf("grove: unsupported multi-proof version")
	}
	b = b[1:]
	if len(b) < 4 {
		return nil, fmt.Errorf("grove: truncated multi-proof layer count")
	}
	count := binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	mp := &MultiProof{Layers: make([]Layer, 0, count)}
	for i := uint32(0); i < count; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("grove: truncated multi-proof key length")
		}
		klen := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < klen {
			return nil, fmt.Errorf("grove: truncated multi-proof key")
		}
		key := append([]byte(nil), b[:klen]...)
		b = b[klen:]

		if len(b) < 4 {
			return nil, fmt.Errorf("grove: truncated multi-proof stream length")
		}
		slen := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < slen {
			return nil, fmt.Errorf("grove: truncated multi-proof stream")
		}
		stream, err := proof.Decode(b[:slen])
		if err != nil {
			return nil, fmt.Errorf("grove: decode layer %d: %w", i, err)
		}
		b = b[slen:]

		var layerKey []byte
		if len(key) > 0 {
			layerKey = key
		}
		mp.Layers = append(mp.Layers, Layer{Key: layerKey, Stream: stream})
	}
	return mp, nil
}
