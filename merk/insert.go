package merk

import (
	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/hash"
)

// insert places (key, el, valueHash) into the subtree rooted at rootKey
// (nil for an empty subtree), returning the new subtree root's key.
// Standard recursive AVL insert: descend by key comparison, rebuild and
// rebalance each ancestor on the way back up.
func (t *Tree) insert(rootKey []byte, key []byte, el element.Element, valueHash hash.Hash) ([]byte, error) {
	if rootKey == nil {
		n := &node{Key: append([]byte(nil), key...), Element: el, ValueHash: valueHash}
		if err := n.recompute(t.feature); err != nil {
			return nil, err
		}
		if err := t.storeNode(n); err != nil {
			return nil, err
		}
		return n.Key, nil
	}

	root, err := t.loadNode(rootKey)
	if err != nil {
		return nil, err
	}

	switch c := compareKeys(key, root.Key); {
	case c == 0:
		root.Element = el
		root.ValueHash = valueHash
		if err := root.recompute(t.feature); err != nil {
			return nil, err
		}
		if err := t.storeNode(root); err != nil {
			return nil, err
		}
		return root.Key, nil

	case c < 0:
		newLeftKey, err := t.insert(linkKey(root.Left), key, el, valueHash)
		if err != nil {
			return nil, err
		}
		leftNode, err := t.loadNode(newLeftKey)
		if err != nil {
			return nil, err
		}
		root.Left = leftNode.asLink()

	default:
		newRightKey, err := t.insert(linkKey(root.Right), key, el, valueHash)
		if err != nil {
			return nil, err
		}
		rightNode, err := t.loadNode(newRightKey)
		if err != nil {
			return nil, err
		}
		root.Right = rightNode.asLink()
	}

	if err := root.recompute(t.feature); err != nil {
		return nil, err
	}
	if err := t.storeNode(root); err != nil {
		return nil, err
	}

	return t.rebalance(root.Key)
}

// rebalance loads the node at key, restores the AVL invariant if its
// balance factor has drifted past 1, and returns the (possibly different)
// key of the node now rooting this subtree.
func (t *Tree) rebalance(key []byte) ([]byte, error) {
	n, err := t.loadNode(key)
	if err != nil {
		return nil, err
	}

	switch bf := balanceFactor(n); {
	case bf > 1:
		left, err := t.loadNode(linkKey(n.Left))
		if err != nil {
			return nil, err
		}
		if balanceFactor(left) < 0 {
			if _, err := t.rotateLeft(left.Key); err != nil {
				return nil, err
			}
			n, err = t.loadNode(key)
			if err != nil {
				return nil, err
			}
		}
		return t.rotateRight(n.Key)

	case bf < -1:
		right, err := t.loadNode(linkKey(n.Right))
		if err != nil {
			return nil, err
		}
		if balanceFactor(right) > 0 {
			if _, err := t.rotateRight(right.Key); err != nil {
				return nil, err
			}
			n, err = t.loadNode(key)
			if err != nil {
				return nil, err
			}
		}
		return t.rotateLeft(n.Key)

	default:
		return key, nil
	}
}

// rotateRight promotes root's left child to root of this subtree. root
// becomes the new root's right child, with the promoted node's former
// right subtree reattached as root's new left subtree.
func (t *Tree) rotateRight(rootKey []byte) ([]byte, error) {
	root, err := t.loadNode(rootKey)
	if err != nil {
		return nil, err
	}
	pivot, err := t.loadNode(linkKey(root.Left))
	if err != nil {
		return nil, err
	}

	root.Left = pivot.Right
	if err := root.recompute(t.feature); err != nil {
		return nil, err
	}
	if err := t.storeNode(root); err != nil {
		return nil, err
	}

	pivot.Right = root.asLink()
	if err := pivot.recompute(t.feature); err != nil {
		return nil, err
	}
	if err := t.storeNode(pivot); err != nil {
		return nil, err
	}

	return pivot.Key, nil
}

// rotateLeft promotes root's right child to root of this subtree,
// symmetric to rotateRight.
func (t *Tree) rotateLeft(rootKey []byte) ([]byte, error) {
	root, err := t.loadNode(rootKey)
	if err != nil {
		return nil, err
	}
	pivot, err := t.loadNode(linkKey(root.Right))
	if err != nil {
		return nil, err
	}

	root.Right = pivot.Left
	if err := root.recompute(t.feature); err != nil {
		return nil, err
	}
	if err := t.storeNode(root); err != nil {
		return nil, err
	}

	pivot.Left = root.asLink()
	if err := pivot.recompute(t.feature); err != nil {
		return nil, err
	}
	if err := t.storeNode(pivot); err != nil {
		return nil, err
	}

	return pivot.Key, nil
}
