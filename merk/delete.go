package merk

// delete removes key from the subtree rooted at rootKey (non-nil),
// returning the new subtree root's key and whether key was found. Standard
// recursive AVL delete: locate the node, splice it out (replacing with its
// in-order successor when it has two children), then rebalance each
// ancestor on the way back up.
func (t *Tree) delete(rootKey []byte, key []byte) (newRoot []byte, found bool, err error) {
	root, err := t.loadNode(rootKey)
	if err != nil {
		return nil, false, err
	}

	switch c := compareKeys(key, root.Key); {
	case c < 0:
		if root.Left == nil {
			return rootKey, false, nil
		}
		newLeft, found, err := t.delete(linkKey(root.Left), key)
		if err != nil || !found {
			return rootKey, found, err
		}
		if newLeft == nil {
			root.Left = nil
		} else {
			leftNode, err := t.loadNode(newLeft)
			if err != nil {
				return nil, false, err
			}
			root.Left = leftNode.asLink()
		}

	case c > 0:
		if root.Right == nil {
			return rootKey, false, nil
		}
		newRight, found, err := t.delete(linkKey(root.Right), key)
		if err != nil || !found {
			return rootKey, found, err
		}
		if newRight == nil {
			root.Right = nil
		} else {
			rightNode, err := t.loadNode(newRight)
			if err != nil {
				return nil, false, err
			}
			root.Right = rightNode.asLink()
		}

	default:
		return t.spliceOut(root)
	}

	if err := root.recompute(t.feature); err != nil {
		return nil, false, err
	}
	if err := t.storeNode(root); err != nil {
		return nil, false, err
	}
	newKey, err := t.rebalance(root.Key)
	return newKey, true, err
}

// spliceOut removes root itself: a one-child (or no-child) node is
// replaced directly by its child; a two-child node is replaced by its
// in-order successor (the right subtree's minimum), which is then deleted
// from the right subtree in turn.
func (t *Tree) spliceOut(root *node) (newRoot []byte, found bool, err error) {
	switch {
	case root.Left == nil && root.Right == nil:
		if err := t.deleteNode(root.Key); err != nil {
			return nil, false, err
		}
		return nil, true, nil

	case root.Left == nil:
		if err := t.deleteNode(root.Key); err != nil {
			return nil, false, err
		}
		return root.Right.Key, true, nil

	case root.Right == nil:
		if err := t.deleteNode(root.Key); err != nil {
			return nil, false, err
		}
		return root.Left.Key, true, nil

	default:
		succ, err := t.minNode(root.Right.Key)
		if err != nil {
			return nil, false, err
		}
		newRightKey, _, err := t.delete(root.Right.Key, succ.Key)
		if err != nil {
			return nil, false, err
		}

		if err := t.deleteNode(root.Key); err != nil {
			return nil, false, err
		}

		succ.Left = root.Left
		if newRightKey == nil {
			succ.Right = nil
		} else {
			rightNode, err := t.loadNode(newRightKey)
			if err != nil {
				return nil, false, err
			}
			succ.Right = rightNode.asLink()
		}
		if err := succ.recompute(t.feature); err != nil {
			return nil, false, err
		}
		if err := t.storeNode(succ); err != nil {
			return nil, false, err
		}
		newKey, err := t.rebalance(succ.Key)
		return newKey, true, err
	}
}

func (t *Tree) minNode(key []byte) (*node, error) {
	n, err := t.loadNode(key)
	if err != nil {
		return nil, err
	}
	for n.Left != nil {
		n, err = t.loadNode(n.Left.Key)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}
