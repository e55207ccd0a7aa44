package grove

import (
	"fmt"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/treecache"
)

// fullSegments is the reference element's own full location: at's segments
// with atKey appended as the final segment. resolveSpec's "current path"
// (spec.md §3.4) is this, except for SpecSibling/SpecCousin/
// SpecRemovedCousin, which name "the current path's parent" — a phrase that
// resolves to `at` under either reading, since at is exactly fullSegments
// with the key dropped.
func fullSegments(at *path.Path, atKey []byte) [][]byte {
	segs := at.Segments()
	out := make([][]byte, len(segs)+1)
	copy(out, segs)
	out[len(segs)] = atKey
	return out
}

func splitPath(segs [][]byte) (*path.Path, []byte, error) {
	if len(segs) == 0 {
		return nil, nil, fmt.Errorf("grove: path spec resolves to an empty path")
	}
	return path.New(segs[:len(segs)-1]...), segs[len(segs)-1], nil
}

// resolveSpec resolves one PathSpec hop to an absolute (path, key)
// destination, relative to the reference element's own location (spec.md
// §3.4). It does not follow further reference hops; resolveReference
// repeats this until it lands on a non-reference element.
func resolveSpec(at *path.Path, atKey []byte, spec element.PathSpec) (*path.Path, []byte, error) {
	switch spec.Kind {
	case element.SpecAbsolute:
		return splitPath(spec.Segments)

	case element.SpecKeepFirstN:
		full := fullSegments(at, atKey)
		if int(spec.N) > len(full) {
			return nil, nil, fmt.Errorf("grove: keep-first-%d exceeds current path depth %d", spec.N, len(full))
		}
		target := append(append([][]byte(nil), full[:spec.N]...), spec.Segments...)
		return splitPath(target)

	case element.SpecKeepFirstNAppendLast:
		full := fullSegments(at, atKey)
		if int(spec.N) > len(full) {
			return nil, nil, fmt.Errorf("grove: keep-first-%d exceeds current path depth %d", spec.N, len(full))
		}
		target := append(append([][]byte(nil), full[:spec.N]...), spec.Segments...)
		target = append(target, atKey)
		return splitPath(target)

	case element.SpecDropLastNThenAppend:
		full := fullSegments(at, atKey)
		if int(spec.N) > len(full) {
			return nil, nil, fmt.Errorf("grove: drop-last-%d exceeds current path depth %d", spec.N, len(full))
		}
		kept := full[:len(full)-int(spec.N)]
		target := append(append([][]byte(nil), kept...), spec.Segments...)
		return splitPath(target)

	case element.SpecSibling:
		if len(spec.Segments) == 0 {
			return nil, nil, fmt.Errorf("grove: sibling path spec has no key")
		}
		return at, spec.Segments[0], nil

	case element.SpecCousin:
		if len(spec.Segments) == 0 {
			return nil, nil, fmt.Errorf("grove: cousin path spec has no key")
		}
		return at.Parent().Child(spec.Segments[0]), atKey, nil

	case element.SpecRemovedCousin:
		return path.New(spec.Segments...), atKey, nil

	default:
		return nil, nil, fmt.Errorf("grove: unknown path spec kind %d", spec.Kind)
	}
}

func visitKey(p *path.Path, key []byte) string {
	return p.String() + "\x00" + string(key)
}

// resolveReference follows a Reference/BidirectionalReference chain to its
// first non-reference target, enforcing both the per-reference MaxHops and
// the process-wide DefaultMaxHops at every hop and rejecting a repeated
// (path, key) as a cycle (spec.md §3.4). It returns the target's absolute
// location, its element, and the value_hash already computed for it at
// insertion time (read directly off the target node via Tree.View, since a
// Merk node's storage key is always identical to its element key).
func resolveReference(tc *treecache.Cache, at *path.Path, atKey []byte, el element.Element) (*path.Path, []byte, element.Element, hash.Hash, error) {
	visited := map[string]bool{visitKey(at, atKey): true}

	curPath, curKey, curEl := at, atKey, el
	hops := 0
	for {
		bound := DefaultMaxHops
		if curEl.MaxHops != nil && int(*curEl.MaxHops) < bound {
			bound = int(*curEl.MaxHops)
		}
		if hops >= bound {
			return nil, nil, element.Element{}, hash.Hash{}, ErrReferenceLimit
		}

		targetPath, targetKey, err := resolveSpec(curPath, curKey, curEl.Spec)
		if err != nil {
			return nil, nil, element.Element{}, hash.Hash{}, fmt.Errorf("%w: %v", ErrBrokenReference, err)
		}

		vk := visitKey(targetPath, targetKey)
		if visited[vk] {
			return nil, nil, element.Element{}, hash.Hash{}, ErrCyclicReference
		}
		visited[vk] = true
		hops++

		targetTree, err := openSubtree(tc, targetPath)
		if err != nil {
			return nil, nil, element.Element{}, hash.Hash{}, fmt.Errorf("%w: %v", ErrBrokenReference, err)
		}
		nextEl, found, err := targetTree.Get(targetKey)
		if err != nil {
			return nil, nil, element.Element{}, hash.Hash{}, err
		}
		if !found {
			return nil, nil, element.Element{}, hash.Hash{}, ErrMissingReference
		}

		if !nextEl.Kind.IsReference() {
			view, err := targetTree.View(targetKey)
			if err != nil {
				return nil, nil, element.Element{}, hash.Hash{}, err
			}
			return targetPath, targetKey, nextEl, view.ValueHash, nil
		}

		curPath, curKey, curEl = targetPath, targetKey, nextEl
	}
}
