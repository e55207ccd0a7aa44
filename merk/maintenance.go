package merk

import (
	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/storage"
)

// Each visits every (key, element) pair in ascending key order: a plain
// in-order walk for callers (clear_subtree, a future catalog sync) that need
// to enumerate a subtree's full contents rather than look up one key. fn
// returning false stops the walk early.
func (t *Tree) Each(fn func(key []byte, el element.Element) (bool, error)) error {
	rootKey, err := t.RootKey()
	if err != nil {
		return err
	}
	_, err = t.eachFrom(rootKey, fn)
	return err
}

func (t *Tree) eachFrom(key []byte, fn func(key []byte, el element.Element) (bool, error)) (bool, error) {
	if key == nil {
		return true, nil
	}
	n, err := t.loadNode(key)
	if err != nil {
		return false, err
	}
	cont, err := t.eachFrom(linkKey(n.Left), fn)
	if err != nil || !cont {
		return cont, err
	}
	cont, err = fn(n.Key, n.Element)
	if err != nil || !cont {
		return cont, err
	}
	return t.eachFrom(linkKey(n.Right), fn)
}

// Clear removes every node this Merk has stored, across CFMain, CFRoots and
// CFAux, leaving an empty subtree. Used by clear_subtree and by deletion of
// a non-empty nested subtree (spec.md §4.3), after the caller has
// recursively cleared any nested subtrees of its own.
func (t *Tree) Clear() error {
	var mainKeys [][]byte
	if err := t.Each(func(key []byte, _ element.Element) (bool, error) {
		mainKeys = append(mainKeys, append([]byte(nil), key...))
		return true, nil
	}); err != nil {
		return err
	}
	for _, k := range mainKeys {
		if err := t.deleteNode(k); err != nil {
			return err
		}
	}
	if err := t.setRootKey(nil); err != nil {
		return err
	}

	var auxKeys [][]byte
	if err := t.ctx.Iterate(storage.CFAux, func(key, _ []byte) (bool, error) {
		auxKeys = append(auxKeys, append([]byte(nil), key...))
		return true, nil
	}); err != nil {
		return err
	}
	for _, k := range auxKeys {
		if err := t.ctx.Delete(storage.CFAux, k); err != nil {
			return err
		}
	}
	return nil
}
