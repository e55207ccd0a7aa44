package proof

import (
	"bytes"
	"fmt"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/hash"
)

// frame is one reconstructed node of the proof's implied tree shape: its
// own revealed payload plus whichever of its two real children the stream
// chose to attach (nil means that side does not exist, not merely that it
// was left opaque).
type frame struct {
	node        Node
	left, right *frame
}

func isCountKind(k NodeKind) bool {
	switch k {
	case NodeKVHashCount, NodeKVDigestCount, NodeKVRefValueHashCount, NodeKVCount:
		return true
	default:
		return false
	}
}

func hasValue(k NodeKind) bool {
	switch k {
	case NodeKV, NodeKVValueHash, NodeKVValueHashFeatureType, NodeKVRefValueHash, NodeKVRefValueHashCount, NodeKVCount:
		return true
	default:
		return false
	}
}

// valueHashOf returns the value_hash bound into n's kv_hash. Every variant
// except plain NodeKV already carries it directly (set by element.ValueHash
// at insertion time, per element/valuehash.go's per-kind rule); NodeKV is
// the one variant that omits it on the wire, relying on the plain-Item
// shortcut value_hash = hash.ValueHash(value) instead, so it is only a
// correct reveal for Item-family elements. The generator never currently
// emits NodeKV (it always prefers NodeKVValueHash/NodeKVCount, which carry
// ValueHash explicitly), so this shortcut is dead code on the generation
// side but kept for any future encoder that wants the smaller encoding for
// known-Item subtrees.
func valueHashOf(n Node) hash.Hash {
	if n.Kind == NodeKV {
		return hash.ValueHash(n.Value)
	}
	return n.ValueHash
}

// kvHash returns the node's own kv_hash, either revealed directly or
// recomputed from whatever fields the node's kind exposes.
func kvHash(n Node) hash.Hash {
	if n.Kind == NodeKVHash || n.Kind == NodeKVHashCount {
		return n.Hash
	}
	return hash.KVHash(n.Key, valueHashOf(n))
}

func computeHash(f *frame) hash.Hash {
	if f.node.Kind == NodeHash {
		return f.node.Hash
	}
	left, right := hash.Zero, hash.Zero
	if f.left != nil {
		left = computeHash(f.left)
	}
	if f.right != nil {
		right = computeHash(f.right)
	}
	plain := hash.NodeHash(kvHash(f.node), left, right)
	if isCountKind(f.node.Kind) {
		plain = hash.NodeHashWithCount(plain, f.node.Aggregate.Count)
	}
	return plain
}

// execute replays a proof stream's stack machine, returning the single
// root frame left on the stack.
func execute(ops []Op) (*frame, error) {
	var stack []*frame

	pop := func() (*frame, error) {
		if len(stack) == 0 {
			return nil, fmt.Errorf("proof: stack underflow")
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return f, nil
	}

	for _, op := range ops {
		switch op.Kind {
		case OpPush, OpPushInverted:
			stack = append(stack, &frame{node: op.Push})

		case OpParent:
			self, err := pop()
			if err != nil {
				return nil, err
			}
			child, err := pop()
			if err != nil {
				return nil, err
			}
			self.left = child
			stack = append(stack, self)

		case OpParentInverted:
			self, err := pop()
			if err != nil {
				return nil, err
			}
			child, err := pop()
			if err != nil {
				return nil, err
			}
			self.right = child
			stack = append(stack, self)

		case OpChild:
			child, err := pop()
			if err != nil {
				return nil, err
			}
			self, err := pop()
			if err != nil {
				return nil, err
			}
			self.right = child
			stack = append(stack, self)

		case OpChildInverted:
			child, err := pop()
			if err != nil {
				return nil, err
			}
			self, err := pop()
			if err != nil {
				return nil, err
			}
			self.left = child
			stack = append(stack, self)

		default:
			return nil, fmt.Errorf("proof: unknown op kind %d", op.Kind)
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("proof: stream left %d frames on stack, want 1", len(stack))
	}
	return stack[0], nil
}

// collect performs an in-order (true left-to-right-by-key) walk of the
// reconstructed tree, regardless of which direction the stream traversed
// it in, and returns every fully revealed (key, element) pair in ascending
// key order.
func collect(f *frame) ([]Result, error) {
	if f == nil {
		return nil, nil
	}
	var out []Result
	left, err := collect(f.left)
	if err != nil {
		return nil, err
	}
	out = append(out, left...)

	if hasValue(f.node.Kind) {
		el, err := element.Decode(f.node.Value)
		if err != nil {
			return nil, fmt.Errorf("proof: decoding revealed element for key %x: %w", f.node.Key, err)
		}
		out = append(out, Result{Key: f.node.Key, Element: el, ValueHash: valueHashOf(f.node)})
	}

	right, err := collect(f.right)
	if err != nil {
		return nil, err
	}
	out = append(out, right...)
	return out, nil
}

// Reconstruct replays stream and returns the root hash it implies together
// with the fully revealed results, without checking the hash against any
// expected root. Verify is this plus that comparison; a multi-subtree proof
// (grove) needs the unchecked hash so it can cross-check it against the
// parent layer's claimed child hash instead of an already-known root.
func Reconstruct(stream *Stream) (hash.Hash, []Result, error) {
	if len(stream.Ops) == 0 {
		return hash.Zero, nil, nil
	}

	f, err := execute(stream.Ops)
	if err != nil {
		return hash.Hash{}, nil, err
	}

	got := computeHash(f)
	results, err := collect(f)
	if err != nil {
		return hash.Hash{}, nil, err
	}
	for i := 1; i < len(results); i++ {
		if bytes.Compare(results[i-1].Key, results[i].Key) >= 0 {
			return hash.Hash{}, nil, fmt.Errorf("proof: revealed keys out of order")
		}
	}
	return got, results, nil
}

// Verify replays stream against the stack machine, recomputes the implied
// root hash, and checks it against root. It returns the fully revealed
// results in ascending key order.
//
// This checks the hash chain and that revealed keys are strictly
// increasing; it does not separately re-derive every QueryItem boundary
// against the flanking digest nodes, so a proof that is internally
// consistent but answers a different query than the caller intended would
// still verify here. Callers that need that stronger guarantee should
// additionally confirm every result key falls inside one of q's items and
// that len(results) matches what q's limit/offset imply.
func Verify(stream *Stream, root hash.Hash) ([]Result, error) {
	if len(stream.Ops) == 0 {
		if !root.IsZero() {
			return nil, fmt.Errorf("proof: empty stream does not match non-empty root")
		}
		return nil, nil
	}

	got, results, err := Reconstruct(stream)
	if err != nil {
		return nil, err
	}
	if got != root {
		return nil, fmt.Errorf("proof: root hash mismatch")
	}
	return results, nil
}
