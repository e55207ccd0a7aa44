package proof

import (
	"testing"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/storage/memory"
)

func buildTree(t *testing.T, keys []string) *merk.Tree {
	t.Helper()
	store := memory.New()
	var prefix [32]byte
	tree := merk.Open(store.Context(prefix), feature.Basic)
	for _, k := range keys {
		el := element.NewItem([]byte("v-" + k))
		vh, err := element.ValueHash(el, nil, nil)
		if err != nil {
			t.Fatalf("ValueHash(%s): %v", k, err)
		}
		if err := tree.Put([]byte(k), el, vh); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	return tree
}

func TestProveSingleKeyPresent(t *testing.T) {
	tree := buildTree(t, []string{"a", "b", "c", "d", "e"})

	q := NewQuery([]Item{{Kind: Key, Start: []byte("c")}})
	proved, err := Prove(tree, q)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(proved.Results) != 1 || string(proved.Results[0].Key) != "c" {
		t.Fatalf("unexpected results: %+v", proved.Results)
	}

	encoded := Encode(proved.Stream)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	results, err := Verify(decoded, proved.RootHash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(results) != 1 || string(results[0].Key) != "c" {
		t.Fatalf("verify results mismatch: %+v", results)
	}
}

// TestProveAbsentKey exercises an absence proof (spec.md S4): querying a key
// that does not exist still produces a stream whose recomputed root hash
// matches, with zero results.
func TestProveAbsentKey(t *testing.T) {
	tree := buildTree(t, []string{"a", "c", "e"})

	q := NewQuery([]Item{{Kind: Key, Start: []byte("b")}})
	proved, err := Prove(tree, q)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(proved.Results) != 0 {
		t.Fatalf("expected no results for absent key, got %+v", proved.Results)
	}

	results, err := Verify(proved.Stream, proved.RootHash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

// TestProveRangeWithLimit exercises a bounded range proof (spec.md S5).
func TestProveRangeWithLimit(t *testing.T) {
	tree := buildTree(t, []string{"a", "b", "c", "d", "e", "f", "g"})

	limit := uint32(2)
	q := &Query{
		Items:       []Item{{Kind: RangeFrom, Start: []byte("b")}},
		Limit:       &limit,
		LeftToRight: true,
	}
	proved, err := Prove(tree, q)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(proved.Results) != 2 {
		t.Fatalf("want 2 results, got %d: %+v", len(proved.Results), proved.Results)
	}
	if string(proved.Results[0].Key) != "b" || string(proved.Results[1].Key) != "c" {
		t.Fatalf("unexpected range results: %+v", proved.Results)
	}

	results, err := Verify(proved.Stream, proved.RootHash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("verify want 2 results, got %d", len(results))
	}
}

func TestProveTamperedValueFailsVerify(t *testing.T) {
	tree := buildTree(t, []string{"a", "b", "c"})

	q := NewQuery([]Item{{Kind: Key, Start: []byte("b")}})
	proved, err := Prove(tree, q)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	for i := range proved.Stream.Ops {
		if proved.Stream.Ops[i].Kind == OpPush && len(proved.Stream.Ops[i].Push.Value) > 0 {
			proved.Stream.Ops[i].Push.Value = []byte("tampered")
		}
	}

	if _, err := Verify(proved.Stream, proved.RootHash); err == nil {
		t.Fatalf("expected verify to fail on tampered value")
	}
}

func TestQuerySplitAt(t *testing.T) {
	ranges := []rangeItem{toRange(Item{Kind: RangeFull})}
	left, right, matched := splitAt(ranges, []byte("m"))
	if !matched {
		t.Fatalf("expected RangeFull to match every key")
	}
	if len(left) != 1 || len(right) != 1 {
		t.Fatalf("expected RangeFull to split into both sides, got left=%v right=%v", left, right)
	}
}
