// Package proof implements the stack-machine Merk proof of spec.md §4.5: a
// flat instruction stream a verifier replays against an operand stack to
// reconstruct a single root hash, optionally recovering a bounded set of
// ascending (key, value) pairs along the way.
//
// Encoding follows element.go's discriminant-first, append-only-variant
// discipline: every Op and every Node variant is tagged by a leading byte,
// so old proof bytes always decode even as new variants are appended.
package proof

import (
	"encoding/binary"
	"fmt"

	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
)

// OpKind tags one instruction in a proof stream.
type OpKind uint8

const (
	OpPush OpKind = iota
	OpParent
	OpChild
	OpPushInverted
	OpParentInverted
	OpChildInverted
)

// NodeKind tags the shape of a Push operand: how much of a Merk node the
// prover chose to reveal.
type NodeKind uint8

const (
	// NodeHash reveals only the node's hash: an opaque sibling the verifier
	// must not interpret, used when neither the key nor any descendant of
	// this subtree was requested.
	NodeHash NodeKind = iota
	// NodeKVHash reveals kv_hash directly, binding a node into the hash
	// chain without revealing its value. Prove does not emit it: nodes
	// outside the query, including those flanking an absent key, are
	// revealed as NodeKVDigest.
	NodeKVHash
	// NodeKV reveals the literal key and value; the verifier recomputes
	// value_hash and kv_hash itself. This is the variant range queries
	// return key/value pairs through.
	NodeKV
	// NodeKVDigest reveals the key and the already-computed value_hash,
	// skipping re-hashing the value for nodes whose value is not requested
	// but whose key is needed to bound a range.
	NodeKVDigest
	// NodeKVValueHash reveals the key and value plus the node's own
	// value_hash, letting a verifier check a claimed value_hash binding
	// without recomputing it from the value bytes (reference targets).
	NodeKVValueHash
	// NodeKVValueHashFeatureType additionally reveals which feature kind
	// produced this node, for verifiers that need to recompute an
	// aggregate-bearing hash chain.
	NodeKVValueHashFeatureType
	// NodeKVRefValueHash reveals the key, value, and the resolved value
	// hash a reference element binds to its target (spec.md §3.4).
	NodeKVRefValueHash
	// NodeKVHashCount is NodeKVHash plus the node's own aggregate, for
	// Provable-counted features where the count is bound into the hash.
	NodeKVHashCount
	// NodeKVDigestCount is NodeKVDigest plus the node's own aggregate.
	NodeKVDigestCount
	// NodeKVRefValueHashCount is NodeKVRefValueHash plus the node's own
	// aggregate.
	NodeKVRefValueHashCount
	// NodeKVCount is NodeKV plus the node's own aggregate.
	NodeKVCount
)

// Node is one revealed operand of a Push instruction.
type Node struct {
	Kind NodeKind

	Hash      hash.Hash // NodeHash, NodeKVHash, NodeKVHashCount
	Key       []byte    // every variant except NodeHash
	Value     []byte    // NodeKV, NodeKVValueHash, NodeKVValueHashFeatureType, NodeKVRefValueHash, NodeKVCount, NodeKVRefValueHashCount
	ValueHash hash.Hash // NodeKVDigest, NodeKVValueHash, NodeKVValueHashFeatureType, NodeKVRefValueHash, NodeKVCount, and the Count variants of those
	RefHash   hash.Hash // NodeKVRefValueHash, NodeKVRefValueHashCount
	Feature   feature.Kind
	Aggregate feature.Aggregate // the *Count variants
}

// Op is one instruction in a proof stream.
type Op struct {
	Kind OpKind
	Push Node // only meaningful when Kind == OpPush or OpPushInverted
}

// Stream is a flat proof: a sequence of stack-machine instructions that
// reconstructs one Merk subtree's root hash (spec.md §4.5).
type Stream struct {
	Ops []Op
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func takeBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("proof: truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	if len(b) < n {
		return nil, nil, fmt.Errorf("proof: truncated field, want %d have %d", n, len(b))
	}
	return b[:n], b[n:], nil
}

func encodeNode(buf []byte, n Node) []byte {
	buf = append(buf, byte(n.Kind))
	switch n.Kind {
	case NodeHash:
		buf = append(buf, n.Hash[:]...)
	case NodeKVHash:
		buf = appendBytes(buf, n.Key)
		buf = append(buf, n.Hash[:]...)
	case NodeKV:
		buf = appendBytes(buf, n.Key)
		buf = appendBytes(buf, n.Value)
	case NodeKVDigest:
		buf = appendBytes(buf, n.Key)
		buf = append(buf, n.ValueHash[:]...)
	case NodeKVValueHash:
		buf = appendBytes(buf, n.Key)
		buf = appendBytes(buf, n.Value)
		buf = append(buf, n.ValueHash[:]...)
	case NodeKVValueHashFeatureType:
		buf = appendBytes(buf, n.Key)
		buf = appendBytes(buf, n.Value)
		buf = append(buf, n.ValueHash[:]...)
		buf = append(buf, byte(n.Feature))
	case NodeKVRefValueHash:
		buf = appendBytes(buf, n.Key)
		buf = appendBytes(buf, n.Value)
		buf = append(buf, n.ValueHash[:]...)
		buf = append(buf, n.RefHash[:]...)
	case NodeKVHashCount:
		buf = appendBytes(buf, n.Key)
		buf = append(buf, n.Hash[:]...)
		buf = encodeAggregate(buf, n.Aggregate)
	case NodeKVDigestCount:
		buf = appendBytes(buf, n.Key)
		buf = append(buf, n.ValueHash[:]...)
		buf = encodeAggregate(buf, n.Aggregate)
	case NodeKVRefValueHashCount:
		buf = appendBytes(buf, n.Key)
		buf = appendBytes(buf, n.Value)
		buf = append(buf, n.ValueHash[:]...)
		buf = append(buf, n.RefHash[:]...)
		buf = encodeAggregate(buf, n.Aggregate)
	case NodeKVCount:
		buf = appendBytes(buf, n.Key)
		buf = appendBytes(buf, n.Value)
		buf = append(buf, n.ValueHash[:]...)
		buf = encodeAggregate(buf, n.Aggregate)
	}
	return buf
}

func encodeAggregate(buf []byte, agg feature.Aggregate) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(agg.Sum))
	buf = binary.BigEndian.AppendUint64(buf, agg.Count)
	return buf
}

func decodeAggregate(b []byte) (feature.Aggregate, []byte, error) {
	if len(b) < 16 {
		return feature.Aggregate{}, nil, fmt.Errorf("proof: truncated aggregate")
	}
	var agg feature.Aggregate
	agg.Sum = int64(binary.BigEndian.Uint64(b[:8]))
	agg.Count = binary.BigEndian.Uint64(b[8:16])
	return agg, b[16:], nil
}

func decodeNode(b []byte) (Node, []byte, error) {
	if len(b) < 1 {
		return Node{}, nil, fmt.Errorf("proof: empty node")
	}
	n := Node{Kind: NodeKind(b[0])}
	b = b[1:]
	var err error

	switch n.Kind {
	case NodeHash:
		if len(b) < hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated hash")
		}
		n.Hash = hash.FromBytes(b[:hash.Size])
		b = b[hash.Size:]
	case NodeKVHash:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated hash")
		}
		n.Hash = hash.FromBytes(b[:hash.Size])
		b = b[hash.Size:]
	case NodeKV:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		n.Value, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
	case NodeKVDigest:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated value hash")
		}
		n.ValueHash = hash.FromBytes(b[:hash.Size])
		b = b[hash.Size:]
	case NodeKVValueHash:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		n.Value, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated value hash")
		}
		n.ValueHash = hash.FromBytes(b[:hash.Size])
		b = b[hash.Size:]
	case NodeKVValueHashFeatureType:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		n.Value, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < hash.Size+1 {
			return Node{}, nil, fmt.Errorf("proof: truncated value hash/feature")
		}
		n.ValueHash = hash.FromBytes(b[:hash.Size])
		n.Feature = feature.Kind(b[hash.Size])
		b = b[hash.Size+1:]
	case NodeKVRefValueHash:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		n.Value, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < 2*hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated value/ref hash")
		}
		n.ValueHash = hash.FromBytes(b[:hash.Size])
		n.RefHash = hash.FromBytes(b[hash.Size : 2*hash.Size])
		b = b[2*hash.Size:]
	case NodeKVHashCount:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated hash")
		}
		n.Hash = hash.FromBytes(b[:hash.Size])
		b = b[hash.Size:]
		n.Aggregate, b, err = decodeAggregate(b)
		if err != nil {
			return Node{}, nil, err
		}
	case NodeKVDigestCount:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated value hash")
		}
		n.ValueHash = hash.FromBytes(b[:hash.Size])
		b = b[hash.Size:]
		n.Aggregate, b, err = decodeAggregate(b)
		if err != nil {
			return Node{}, nil, err
		}
	case NodeKVRefValueHashCount:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		n.Value, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < 2*hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated value/ref hash")
		}
		n.ValueHash = hash.FromBytes(b[:hash.Size])
		n.RefHash = hash.FromBytes(b[hash.Size : 2*hash.Size])
		b = b[2*hash.Size:]
		n.Aggregate, b, err = decodeAggregate(b)
		if err != nil {
			return Node{}, nil, err
		}
	case NodeKVCount:
		n.Key, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		n.Value, b, err = takeBytes(b)
		if err != nil {
			return Node{}, nil, err
		}
		if len(b) < hash.Size {
			return Node{}, nil, fmt.Errorf("proof: truncated value hash")
		}
		n.ValueHash = hash.FromBytes(b[:hash.Size])
		b = b[hash.Size:]
		n.Aggregate, b, err = decodeAggregate(b)
		if err != nil {
			return Node{}, nil, err
		}
	default:
		return Node{}, nil, fmt.Errorf("proof: unknown node kind %d", n.Kind)
	}

	return n, b, nil
}

// version 0 is the flat single-Merk envelope (spec.md §4.5), the only
// version this package encodes or decodes. A multi-subtree query's proof is
// the grove package's MultiProof, which carries one of these streams per
// Merk layer under its own version byte.
const version0 = 0

// Encode serializes s to its stable on-disk form: a version byte, then one
// record per Op.
func Encode(s *Stream) []byte {
	buf := []byte{version0}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.Ops)))
	for _, op := range s.Ops {
		buf = append(buf, byte(op.Kind))
		if op.Kind == OpPush || op.Kind == OpPushInverted {
			buf = encodeNode(buf, op.Push)
		}
	}
	return buf
}

// Decode parses a Stream previously produced by Encode.
func Decode(b []byte) (*Stream, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("proof: empty stream")
	}
	if b[0] != version0 {
		return nil, fmt.Errorf("proof: unsupported version %d", b[0])
	}
	b = b[1:]
	if len(b) < 4 {
		return nil, fmt.Errorf("proof: truncated op count")
	}
	count := binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	s := &Stream{Ops: make([]Op, 0, count)}
	for i := uint32(0); i < count; i++ {
		if len(b) < 1 {
			return nil, fmt.Errorf("proof: truncated op kind")
		}
		kind := OpKind(b[0])
		b = b[1:]
		op := Op{Kind: kind}
		if kind == OpPush || kind == OpPushInverted {
			var err error
			op.Push, b, err = decodeNode(b)
			if err != nil {
				return nil, err
			}
		}
		s.Ops = append(s.Ops, op)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("proof: %d trailing bytes", len(b))
	}
	return s, nil
}
