package element

// PathSpecKind selects how a Reference's path spec resolves to an absolute
// path under the current subtree (spec.md §3.4).
type PathSpecKind uint8

const (
	// SpecAbsolute: Segments is the full absolute path.
	SpecAbsolute PathSpecKind = iota
	// SpecKeepFirstN: keep the first N segments of the current path.
	SpecKeepFirstN
	// SpecKeepFirstNAppendLast: keep the first N segments of the current
	// path, then append the current path's last segment.
	SpecKeepFirstNAppendLast
	// SpecDropLastNThenAppend: drop the last N segments of the current
	// path, then append Segments.
	SpecDropLastNThenAppend
	// SpecSibling: same parent as the current path, new key Segments[0].
	SpecSibling
	// SpecCousin: replace the current path's parent segment with
	// Segments[0], keep the current key.
	SpecCousin
	// SpecRemovedCousin: replace the current path's parent with the
	// multi-segment path Segments, keep the current key.
	SpecRemovedCousin
)

// PathSpec is the payload of a Reference element before resolution
// (spec.md §3.4). Exactly one of N/Segments is meaningful per Kind; see the
// constant comments above.
type PathSpec struct {
	Kind     PathSpecKind
	N        uint32
	Segments [][]byte
}
