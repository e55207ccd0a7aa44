package nonmerk

import (
	"testing"

	"github.com/grovedb/grovedb/hash"
)

func TestMMREmptyRootIsZero(t *testing.T) {
	m := NewMMR()
	if m.Root() != hash.Zero {
		t.Error("empty MMR should have zero root")
	}
}

func TestMMRRootChangesOnAppend(t *testing.T) {
	m := NewMMR()
	roots := map[hash.Hash]bool{m.Root(): true}
	for i := 0; i < 5; i++ {
		m.Append(hash.Of([]byte{byte(i)}))
		roots[m.Root()] = true
	}
	if len(roots) != 6 {
		t.Errorf("expected 6 distinct roots across appends, got %d", len(roots))
	}
	if m.Count() != 5 {
		t.Errorf("Count() = %d, want 5", m.Count())
	}
}

func TestMMRDeterministic(t *testing.T) {
	build := func() hash.Hash {
		m := NewMMR()
		for i := 0; i < 7; i++ {
			m.Append(hash.Of([]byte{byte(i)}))
		}
		return m.Root()
	}
	if build() != build() {
		t.Error("MMR root should be deterministic for the same append sequence")
	}
}

func TestMMRLeafOrderMatters(t *testing.T) {
	a := NewMMR()
	a.Append(hash.Of([]byte("x")))
	a.Append(hash.Of([]byte("y")))

	b := NewMMR()
	b.Append(hash.Of([]byte("y")))
	b.Append(hash.Of([]byte("x")))

	if a.Root() == b.Root() {
		t.Error("swapping leaf order should change the root")
	}
}

func TestBulkAppendTreeGetAndRoot(t *testing.T) {
	tr := NewBulkAppendTree(2)
	i0 := tr.Append([]byte("a"))
	i1 := tr.Append([]byte("bb"))
	i2 := tr.Append([]byte("ccc"))

	if tr.PageCount() != 1 {
		t.Fatalf("expected one sealed page after 2 entries with pageSize=2, got %d", tr.PageCount())
	}

	rootBeforeFlush := tr.Root()
	tr.Flush()
	if tr.Root() == rootBeforeFlush {
		t.Error("flushing a partial page should change the root")
	}

	for idx, want := range map[uint64]string{i0: "a", i1: "bb", i2: "ccc"} {
		v, err := tr.Get(idx)
		if err != nil || string(v) != want {
			t.Errorf("Get(%d) = %q, %v; want %q", idx, v, err, want)
		}
	}

	if _, err := tr.Get(99); err != ErrOutOfRange {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestDenseAppendOnlyFixedSizeTreePanicsOnSizeMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on entry size mismatch")
		}
	}()
	tr := NewDenseAppendOnlyFixedSizeTree(4, 8)
	tr.Append([]byte("toolong-entry"))
}

func TestDenseAppendOnlyFixedSizeTreeGetAcrossPages(t *testing.T) {
	tr := NewDenseAppendOnlyFixedSizeTree(4, 2)
	entries := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")}
	for _, e := range entries {
		tr.Append(e)
	}
	tr.Flush()

	for i, want := range entries {
		got, err := tr.Get(uint64(i))
		if err != nil || string(got) != string(want) {
			t.Errorf("Get(%d) = %q, %v; want %q", i, got, err, want)
		}
	}
	if _, err := tr.Get(100); err != ErrOutOfRange {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestCommitmentTreePositionDependent(t *testing.T) {
	a := NewCommitmentTree(1)
	a.Append(hash.Of([]byte("leaf")))
	a.Append(hash.Of([]byte("leaf")))

	b := NewCommitmentTree(1)
	b.Append(hash.Of([]byte("leaf")))

	if a.Root() == b.Root() {
		t.Error("appending the same leaf twice should not collapse to one commitment's root")
	}
	if a.Count() != 2 || b.Count() != 1 {
		t.Errorf("unexpected counts: a=%d b=%d", a.Count(), b.Count())
	}
}

func TestMMRMarshalRoundtrip(t *testing.T) {
	m := NewMMR()
	for i := 0; i < 9; i++ {
		m.Append(hash.Of([]byte{byte(i)}))
	}
	got, err := UnmarshalMMR(m.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got.Root() != m.Root() || got.Count() != m.Count() {
		t.Fatalf("roundtrip mismatch: root=%v count=%d, want root=%v count=%d", got.Root(), got.Count(), m.Root(), m.Count())
	}
}

func TestBulkAppendTreeMarshalRoundtrip(t *testing.T) {
	tr := NewBulkAppendTree(2)
	tr.Append([]byte("a"))
	tr.Append([]byte("bb"))
	i2 := tr.Append([]byte("ccc"))
	tr.Flush()

	got, err := UnmarshalBulkAppendTree(tr.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got.Root() != tr.Root() || got.Len() != tr.Len() {
		t.Fatalf("roundtrip mismatch: root=%v len=%d, want root=%v len=%d", got.Root(), got.Len(), tr.Root(), tr.Len())
	}
	v, err := got.Get(i2)
	if err != nil || string(v) != "ccc" {
		t.Fatalf("Get(%d) after roundtrip = %q, %v; want ccc", i2, v, err)
	}
}

func TestDenseAppendOnlyFixedSizeTreeMarshalRoundtrip(t *testing.T) {
	tr := NewDenseAppendOnlyFixedSizeTree(4, 2)
	for _, e := range [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc")} {
		tr.Append(e)
	}
	tr.Flush()

	got, err := UnmarshalDenseAppendOnlyFixedSizeTree(tr.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got.Root() != tr.Root() || got.Len() != tr.Len() {
		t.Fatalf("roundtrip mismatch: root=%v len=%d, want root=%v len=%d", got.Root(), got.Len(), tr.Root(), tr.Len())
	}
	v, err := got.Get(1)
	if err != nil || string(v) != "bbbb" {
		t.Fatalf("Get(1) after roundtrip = %q, %v; want bbbb", v, err)
	}
}

func TestCommitmentTreeMarshalRoundtrip(t *testing.T) {
	c := NewCommitmentTree(3)
	c.Append(hash.Of([]byte("x")))
	c.Append(hash.Of([]byte("y")))

	got, err := UnmarshalCommitmentTree(c.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got.Root() != c.Root() || got.Count() != c.Count() || got.Power() != c.Power() {
		t.Fatalf("roundtrip mismatch: got root=%v count=%d power=%d, want root=%v count=%d power=%d",
			got.Root(), got.Count(), got.Power(), c.Root(), c.Count(), c.Power())
	}
}

func TestLeafHashWrapRoundtrip(t *testing.T) {
	h := hash.Of([]byte("payload"))
	wrapped, err := Wrap(h)
	if err != nil {
		t.Fatal(err)
	}
	if err := wrapped.Verify(h); err != nil {
		t.Fatal(err)
	}
	raw, err := wrapped.Raw()
	if err != nil || raw != h {
		t.Fatalf("Raw() = %v, %v; want %v", raw, err, h)
	}
}
