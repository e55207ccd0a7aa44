package grove

import (
	"testing"

	"github.com/grovedb/grovedb/element"
	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/storage/memory"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	return Open(memory.New())
}

// S2: inserting a deeply nested value changes the root hash, and clearing
// the nested subtree it lives in leaves its portal with no root key.
func TestRootPropagation(t *testing.T) {
	db := openTestDB(t)

	before, err := db.RootHash(nil)
	if err != nil {
		t.Fatal(err)
	}

	balances := path.New([]byte("balances"))
	if err := db.Insert(nil, path.Root, []byte("balances"), element.NewTree(feature.Summed), InsertOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := db.Insert(nil, balances, []byte("alice"), element.NewSumItem(100), InsertOptions{}); err != nil {
		t.Fatal(err)
	}

	afterInsert, err := db.RootHash(nil)
	if err != nil {
		t.Fatal(err)
	}
	if afterInsert == before {
		t.Fatal("root hash did not change after nested insert")
	}

	if err := db.ClearSubtree(nil, path.Root, []byte("balances"), ClearSubtreeOptions{}); err != nil {
		t.Fatal(err)
	}
	el, err := db.Get(nil, path.Root, []byte("balances"))
	if err != nil {
		t.Fatal(err)
	}
	if el.RootKey != nil {
		t.Fatal("cleared subtree still has a root key")
	}
}

// S3: a reference to an existing target is accepted and Get returns it as
// stored, and re-pointing an existing key to close a two-hop cycle is
// rejected.
func TestReferenceResolutionAndCycles(t *testing.T) {
	db := openTestDB(t)

	if err := db.Insert(nil, path.Root, []byte("target"), element.NewItem([]byte("hello")), InsertOptions{}); err != nil {
		t.Fatal(err)
	}
	ref := element.NewReference(element.PathSpec{Kind: element.SpecSibling, Segments: [][]byte{[]byte("target")}}, nil)
	if err := db.Insert(nil, path.Root, []byte("ref"), ref, InsertOptions{VerifyReferencesOnInsert: true}); err != nil {
		t.Fatal(err)
	}

	el, err := db.Get(nil, path.Root, []byte("ref"))
	if err != nil {
		t.Fatal(err)
	}
	if el.Kind != element.Reference {
		t.Fatalf("Get should return the reference as stored, got %v", el.Kind)
	}

	if err := db.Insert(nil, path.Root, []byte("b"), element.NewItem([]byte("x")), InsertOptions{}); err != nil {
		t.Fatal(err)
	}
	a := element.NewReference(element.PathSpec{Kind: element.SpecSibling, Segments: [][]byte{[]byte("b")}}, nil)
	if err := db.Insert(nil, path.Root, []byte("a"), a, InsertOptions{}); err != nil {
		t.Fatal(err)
	}
	b := element.NewReference(element.PathSpec{Kind: element.SpecSibling, Segments: [][]byte{[]byte("a")}}, nil)
	if err := db.Insert(nil, path.Root, []byte("b"), b, InsertOptions{Overwrite: InsertOrReplace, VerifyReferencesOnInsert: true}); err == nil {
		t.Fatal("expected a cyclic reference to be rejected")
	}
}

// S6: a batch spanning three subtrees commits atomically, and a failing
// batch leaves no partial effects.
func TestAtomicMultiSubtreeBatch(t *testing.T) {
	db := openTestDB(t)

	if err := db.Insert(nil, path.Root, []byte("balances"), element.NewTree(feature.Summed), InsertOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := db.Insert(nil, path.Root, []byte("identities"), element.NewTree(feature.Basic), InsertOptions{}); err != nil {
		t.Fatal(err)
	}
	balances := path.New([]byte("balances"))
	identities := path.New([]byte("identities"))
	if err := db.Insert(nil, balances, []byte("alice"), element.NewSumItem(50), InsertOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := db.Insert(nil, identities, []byte("bob"), element.NewItem([]byte("rev1")), InsertOptions{}); err != nil {
		t.Fatal(err)
	}

	rootBefore, err := db.RootHash(nil)
	if err != nil {
		t.Fatal(err)
	}

	ops := []GroveOp{
		{Path: balances, Key: []byte("alice"), Kind: OpDelete},
		{Path: balances, Key: []byte("bob"), Kind: OpPut, Element: element.NewSumItem(100)},
		{Path: identities, Key: []byte("bob"), Kind: OpReplace, Element: element.NewItem([]byte("rev2"))},
	}
	if err := db.ApplyBatch(nil, ops, BatchOptions{}); err != nil {
		t.Fatal(err)
	}

	el, err := db.Get(nil, identities, []byte("bob"))
	if err != nil {
		t.Fatal(err)
	}
	if string(el.Value) != "rev2" {
		t.Fatalf("identities/bob not updated, got %q", el.Value)
	}
	if _, err := db.Get(nil, balances, []byte("alice")); err != ErrNotFound {
		t.Fatalf("expected alice to be deleted, got err=%v", err)
	}

	badOps := []GroveOp{
		{Path: balances, Key: []byte("bob"), Kind: OpDelete},
		{Path: identities, Key: []byte("missing"), Kind: OpReplace, Element: element.NewItem([]byte("x"))},
	}
	if err := db.ApplyBatch(nil, badOps, BatchOptions{}); err == nil {
		t.Fatal("expected batch with a failing op to be rejected")
	}

	rootAfter, err := db.RootHash(nil)
	if err != nil {
		t.Fatal(err)
	}
	if rootAfter == rootBefore {
		t.Fatal("root hash should reflect the successful batch, not the original state")
	}
	if _, err := db.Get(nil, balances, []byte("bob")); err != nil {
		t.Fatal("failed batch should not have deleted balances/bob")
	}
}

// Bidirectional references: deleting a target with cascade_on_update true
// deletes the referrer in turn.
func TestBidirectionalCascadeDelete(t *testing.T) {
	db := openTestDB(t)

	target := element.Element{Kind: element.ItemWithBackwardsReferences, Value: []byte("v1")}
	if err := db.Insert(nil, path.Root, []byte("target"), target, InsertOptions{}); err != nil {
		t.Fatal(err)
	}
	ref := element.Element{
		Kind:            element.BidirectionalReference,
		Spec:            element.PathSpec{Kind: element.SpecSibling, Segments: [][]byte{[]byte("target")}},
		CascadeOnUpdate: true,
	}
	if err := db.Insert(nil, path.Root, []byte("ref"), ref, InsertOptions{PropagateBackwardReferences: true}); err != nil {
		t.Fatal(err)
	}

	if err := db.Delete(nil, path.Root, []byte("target"), DeleteOptions{PropagateBackwardReferences: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get(nil, path.Root, []byte("ref")); err != ErrNotFound {
		t.Fatalf("expected cascading delete to remove the referrer, err=%v", err)
	}
}

func TestElementRoundTripHash(t *testing.T) {
	el := element.NewItem([]byte("x"))
	vh, err := element.ValueHash(el, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if vh == (hash.Hash{}) {
		t.Fatal("expected a non-zero value hash for a populated item")
	}
}
