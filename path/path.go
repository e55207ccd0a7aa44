// Package path implements GroveDB's path representation (spec.md §3.1): an
// ordered sequence of byte-string segments identifying a subtree, with O(1)
// parent derivation (a view with the last segment removed) and O(1) child
// derivation (extend by one owned segment), independent of how the path was
// originally constructed.
package path

// Path is an immutable, structurally-shared sequence of path segments. The
// empty Path is the grove root. Paths form a persistent linked structure so
// that deriving a child from a shared parent never copies or mutates the
// parent's segments, mirroring how models.HeaderChain keeps the chain tip
// addressable independent of older entries.
type Path struct {
	// parent is nil only for Root (length 0). tail is the path's last
	// segment; earlier segments live in parent.
	parent *Path
	tail   []byte
	depth  int
}

// Root is the empty path (the grove root).
var Root = &Path{}

// New builds a Path from an ordered slice of segments, in either
// representation the caller already has on hand: a slice of slices, or
// nothing at all for the root.
func New(segments ...[]byte) *Path {
	p := Root
	for _, s := range segments {
		p = p.Child(s)
	}
	return p
}

// Child derives a path one level deeper by appending an owned copy of seg.
// This is O(1): it never touches the receiver's own segments.
func (p *Path) Child(seg []byte) *Path {
	owned := append([]byte(nil), seg...)
	return &Path{parent: p, tail: owned, depth: p.depth + 1}
}

// Parent derives the path with its last segment removed. Calling Parent on
// Root returns Root. This is O(1): it returns the existing parent pointer,
// never reallocating or touching earlier segments.
func (p *Path) Parent() *Path {
	if p.parent == nil {
		return Root
	}
	return p.parent
}

// Len returns the number of segments in the path.
func (p *Path) Len() int {
	return p.depth
}

// IsRoot reports whether the path is the empty grove root.
func (p *Path) IsRoot() bool {
	return p.depth == 0
}

// Last returns the final segment, or nil if the path is Root.
func (p *Path) Last() []byte {
	if p.parent == nil {
		return nil
	}
	return p.tail
}

// Segments materializes the path as an ordered (root-to-leaf) slice of
// slices. Each call allocates a fresh slice; Reverse walks the segments
// without allocating one.
func (p *Path) Segments() [][]byte {
	out := make([][]byte, p.depth)
	cur := p
	for i := p.depth - 1; i >= 0; i-- {
		out[i] = cur.tail
		cur = cur.parent
	}
	return out
}

// Reverse calls fn for each segment from leaf to root (the path's natural
// iteration order per spec.md §3.1), stopping early if fn returns false.
func (p *Path) Reverse(fn func(segment []byte) bool) {
	for cur := p; cur.parent != nil; cur = cur.parent {
		if !fn(cur.tail) {
			return
		}
	}
}

// Equal reports whether two paths have identical segments.
func (p *Path) Equal(other *Path) bool {
	if p.depth != other.depth {
		return false
	}
	a, b := p, other
	for a.parent != nil {
		if string(a.tail) != string(b.tail) {
			return false
		}
		a, b = a.parent, b.parent
	}
	return true
}

// String renders the path for logging/error messages as a slash-joined,
// best-effort readable form. It is not a serialization format.
func (p *Path) String() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return "/"
	}
	out := make([]byte, 0, 2*len(segs))
	for _, s := range segs {
		out = append(out, '/')
		out = append(out, s...)
	}
	return string(out)
}

// Key returns the canonical byte-string key for this path's subtree prefix
// input: the ordered list of segments, ready for hash.Prefix.
func (p *Path) Key() [][]byte {
	return p.Segments()
}
