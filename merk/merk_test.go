package merk

import (
	"fmt"
	"testing"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/storage/memory"
)

func newTestTree(t *testing.T, f feature.Kind) *Tree {
	t.Helper()
	store := memory.New()
	var prefix [32]byte
	copy(prefix[:], "subtree")
	return Open(store.Context(prefix), f)
}

func putItem(t *testing.T, tr *Tree, key, value string) {
	t.Helper()
	el := element.NewItem([]byte(value))
	vh, err := element.ValueHash(el, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Put([]byte(key), el, vh); err != nil {
		t.Fatal(err)
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	putItem(t, tr, "b", "v1")
	putItem(t, tr, "a", "v2")
	putItem(t, tr, "c", "v3")

	for k, want := range map[string]string{"a": "v2", "b": "v1", "c": "v3"} {
		el, found, err := tr.Get([]byte(k))
		if err != nil || !found || string(el.Value) != want {
			t.Errorf("Get(%q) = %+v, %v, %v; want %q", k, el, found, err, want)
		}
	}

	if _, found, _ := tr.Get([]byte("missing")); found {
		t.Error("expected missing key to not be found")
	}
}

func TestUpdateChangesValue(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	putItem(t, tr, "k", "v1")
	putItem(t, tr, "k", "v2")

	el, found, err := tr.Get([]byte("k"))
	if err != nil || !found || string(el.Value) != "v2" {
		t.Fatalf("Get after update = %+v, %v, %v; want v2", el, found, err)
	}
}

func TestRootHashChangesOnMutation(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	h0, err := tr.RootHash()
	if err != nil {
		t.Fatal(err)
	}
	if h0 != hash.Zero {
		t.Fatalf("empty tree root hash should be zero, got %v", h0)
	}

	putItem(t, tr, "a", "v1")
	h1, err := tr.RootHash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 == hash.Zero {
		t.Error("non-empty tree should have non-zero root hash")
	}

	putItem(t, tr, "b", "v2")
	h2, err := tr.RootHash()
	if err != nil {
		t.Fatal(err)
	}
	if h2 == h1 {
		t.Error("root hash should change after inserting a second key")
	}
}

func TestDeleteRemovesKeyAndShrinksTree(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	keys := []string{"d", "b", "f", "a", "c", "e", "g"}
	for _, k := range keys {
		putItem(t, tr, k, k)
	}

	if err := tr.Delete([]byte("b")); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := tr.Get([]byte("b")); found {
		t.Error("expected b to be deleted")
	}
	for _, k := range []string{"d", "f", "a", "c", "e", "g"} {
		if _, found, _ := tr.Get([]byte(k)); !found {
			t.Errorf("expected %q to survive deletion of sibling key", k)
		}
	}
}

func TestDeleteNonexistentKeyIsNoop(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	putItem(t, tr, "a", "v")
	if err := tr.Delete([]byte("missing")); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := tr.Get([]byte("a")); !found {
		t.Error("unrelated key should survive a no-op delete")
	}
}

func TestTreeStaysBalancedUnderSequentialInsert(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	n := 100
	for i := 0; i < n; i++ {
		putItem(t, tr, fmt.Sprintf("key-%04d", i), "v")
	}

	rootKey, err := tr.RootKey()
	if err != nil {
		t.Fatal(err)
	}
	root, err := tr.loadNode(rootKey)
	if err != nil {
		t.Fatal(err)
	}

	// AVL height is bounded by ~1.44*log2(n+2); allow generous slack.
	maxHeight := int32(2 * 8) // log2(100) ~ 6.6
	if root.height > maxHeight {
		t.Errorf("tree height %d exceeds AVL bound for n=%d sequential inserts", root.height, n)
	}
}

func TestCountedAggregateSumsLeaves(t *testing.T) {
	tr := newTestTree(t, feature.Counted)
	for _, k := range []string{"a", "b", "c", "d"} {
		putItem(t, tr, k, "v")
	}
	agg, err := tr.RootAggregate()
	if err != nil {
		t.Fatal(err)
	}
	if agg.Count != 4 {
		t.Errorf("Count = %d, want 4", agg.Count)
	}
}

func TestSummedAggregateAfterDelete(t *testing.T) {
	tr := newTestTree(t, feature.Summed)
	put := func(k string, sum int64) {
		el := element.NewSumItem(sum)
		vh, err := element.ValueHash(el, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := tr.Put([]byte(k), el, vh); err != nil {
			t.Fatal(err)
		}
	}
	put("a", 10)
	put("b", 20)
	put("c", 30)

	agg, err := tr.RootAggregate()
	if err != nil {
		t.Fatal(err)
	}
	if agg.Sum != 60 {
		t.Fatalf("Sum = %d, want 60", agg.Sum)
	}

	if err := tr.Delete([]byte("b")); err != nil {
		t.Fatal(err)
	}
	agg, err = tr.RootAggregate()
	if err != nil {
		t.Fatal(err)
	}
	if agg.Sum != 40 {
		t.Errorf("Sum after delete = %d, want 40", agg.Sum)
	}
}

func TestApplyBatchAppliesInKeyOrder(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	elA := element.NewItem([]byte("va"))
	vhA, _ := element.ValueHash(elA, nil, nil)
	elB := element.NewItem([]byte("vb"))
	vhB, _ := element.ValueHash(elB, nil, nil)

	ops := []Op{
		{Kind: OpPut, Key: []byte("z"), Element: elB, ValueHash: vhB},
		{Kind: OpPut, Key: []byte("a"), Element: elA, ValueHash: vhA},
	}
	if err := tr.ApplyBatch(ops); err != nil {
		t.Fatal(err)
	}

	for k, want := range map[string]string{"z": "vb", "a": "va"} {
		el, found, _ := tr.Get([]byte(k))
		if !found || string(el.Value) != want {
			t.Errorf("Get(%q) = %+v, want %q", k, el, want)
		}
	}
}

func TestApplyBatchReplaceRequiresExisting(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	el := element.NewItem([]byte("v"))
	vh, _ := element.ValueHash(el, nil, nil)

	err := tr.ApplyBatch([]Op{{Kind: OpReplace, Key: []byte("missing"), Element: el, ValueHash: vh}})
	if err != ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestApplyBatchPatchRequiresSameKind(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	putItem(t, tr, "k", "v1")

	sumEl := element.NewSumItem(5)
	vh, _ := element.ValueHash(sumEl, nil, nil)
	err := tr.ApplyBatch([]Op{{Kind: OpPatch, Key: []byte("k"), Element: sumEl, ValueHash: vh}})
	if err != ErrKindMismatch {
		t.Errorf("expected ErrKindMismatch, got %v", err)
	}
}

func TestApplyBatchDeleteLayeredRefusesNonEmptySubtree(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	treeEl := element.NewTree(feature.Basic)
	treeEl.RootKey = []byte("some-node")
	vh, _ := element.ValueHash(treeEl, nil, &hash.Zero)
	if err := tr.Put([]byte("subtree"), treeEl, vh); err != nil {
		t.Fatal(err)
	}

	err := tr.ApplyBatch([]Op{{Kind: OpDeleteLayered, Key: []byte("subtree")}})
	if err != ErrSubtreeNotEmpty {
		t.Errorf("expected ErrSubtreeNotEmpty, got %v", err)
	}
}

func TestApplyBatchPutCombinedReferenceRejectsNonReference(t *testing.T) {
	tr := newTestTree(t, feature.Basic)
	el := element.NewItem([]byte("v"))
	vh, _ := element.ValueHash(el, nil, nil)

	err := tr.ApplyBatch([]Op{{Kind: OpPutCombinedReference, Key: []byte("k"), Element: el, ValueHash: vh}})
	if err != ErrNotAReference {
		t.Errorf("expected ErrNotAReference, got %v", err)
	}
}
