package element

import (
	"fmt"

	"github.com/grovedb/grovedb/hash"
)

// ValueHash computes the value_hash bound into a Merk node's kv_hash, per
// the per-kind binding rules of spec.md §3.3/§3.6:
//
//   - Item-family elements (Item, SumItem, ItemWithSumItem, and their
//     backward-reference variants): the plain hash of the encoded element.
//   - Reference-family elements: H(H(encoded_elem) XOR H(resolved_value)),
//     binding both the reference's own shape and the value it currently
//     resolves to, so any change to either changes this node's hash.
//     resolvedValueHash must be the ValueHash of the element the reference
//     resolves to.
//   - Tree-family portals and non-Merk leaf portals: combine_hash(H(encoded
//     portal element), child_root_hash), binding the subtree pointer to
//     its child's current root.
func ValueHash(e Element, resolvedValueHash *hash.Hash, childRootHash *hash.Hash) (hash.Hash, error) {
	encHash := hash.ValueHash(Encode(e))

	switch {
	case e.Kind.IsReference():
		if resolvedValueHash == nil {
			return hash.Hash{}, fmt.Errorf("element: ValueHash for %v requires a resolved value hash", e.Kind)
		}
		xored := xorHash(encHash, *resolvedValueHash)
		return hash.Of(xored[:]), nil

	case e.Kind.IsTree(), e.Kind.IsNonMerkLeaf():
		child := hash.Zero
		if childRootHash != nil {
			child = *childRootHash
		}
		return hash.Combine(encHash, child), nil

	default:
		return encHash, nil
	}
}

func xorHash(a, b hash.Hash) hash.Hash {
	var out hash.Hash
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
