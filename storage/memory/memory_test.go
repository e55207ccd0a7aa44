package memory

import (
	"testing"

	"github.com/grovedb/grovedb/storage"
)

func prefixOf(s string) [32]byte {
	var p [32]byte
	copy(p[:], s)
	return p
}

func TestImmediatePutGetDelete(t *testing.T) {
	store := New()
	ctx := store.Context(prefixOf("subtree-a"))

	if v, err := ctx.Get(storage.CFMain, []byte("k")); err != nil || v != nil {
		t.Fatalf("expected missing key, got %v, %v", v, err)
	}

	if err := ctx.Put(storage.CFMain, []byte("k"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	v, err := ctx.Get(storage.CFMain, []byte("k"))
	if err != nil || string(v) != "v1" {
		t.Fatalf("got %q, %v; want v1", v, err)
	}

	if err := ctx.Delete(storage.CFMain, []byte("k")); err != nil {
		t.Fatal(err)
	}
	if v, _ := ctx.Get(storage.CFMain, []byte("k")); v != nil {
		t.Errorf("expected nil after delete, got %q", v)
	}
}

func TestColumnFamilyIsolation(t *testing.T) {
	store := New()
	ctx := store.Context(prefixOf("subtree"))

	ctx.Put(storage.CFMain, []byte("k"), []byte("main-value"))
	ctx.Put(storage.CFAux, []byte("k"), []byte("aux-value"))

	main, _ := ctx.Get(storage.CFMain, []byte("k"))
	aux, _ := ctx.Get(storage.CFAux, []byte("k"))

	if string(main) != "main-value" || string(aux) != "aux-value" {
		t.Errorf("column families bled into each other: main=%q aux=%q", main, aux)
	}
}

func TestSubtreePrefixIsolation(t *testing.T) {
	store := New()
	a := store.Context(prefixOf("a"))
	b := store.Context(prefixOf("b"))

	a.Put(storage.CFMain, []byte("k"), []byte("from-a"))

	if v, _ := b.Get(storage.CFMain, []byte("k")); v != nil {
		t.Errorf("subtree b should not see subtree a's data, got %q", v)
	}
}

func TestMetaIsUnprefixedAndGlobal(t *testing.T) {
	store := New()
	meta := store.Meta()

	if err := meta.Put([]byte("version"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	v, err := meta.Get([]byte("version"))
	if err != nil || string(v) != "1" {
		t.Fatalf("got %q, %v; want 1", v, err)
	}
}

func TestIterationIsLexicographic(t *testing.T) {
	store := New()
	ctx := store.Context(prefixOf("s"))

	for _, k := range []string{"charlie", "alice", "bob"} {
		ctx.Put(storage.CFMain, []byte(k), []byte(k))
	}

	var order []string
	ctx.Iterate(storage.CFMain, func(key, value []byte) (bool, error) {
		order = append(order, string(key))
		return true, nil
	})

	want := []string{"alice", "bob", "charlie"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBatchCollapsesAndDeletesShadowPuts(t *testing.T) {
	b := storage.NewBatch()
	prefix := []byte("p")

	b.Put(storage.CFMain, prefix, []byte("k"), []byte("v1"))
	b.Put(storage.CFMain, prefix, []byte("k"), []byte("v2"))
	if b.Len() != 1 {
		t.Fatalf("expected collapsed single entry, got %d", b.Len())
	}
	v, deleted, ok := b.Get(storage.CFMain, prefix, []byte("k"))
	if !ok || deleted || string(v) != "v2" {
		t.Fatalf("expected last-write-wins v2, got %q deleted=%v ok=%v", v, deleted, ok)
	}

	b.Delete(storage.CFMain, prefix, []byte("k"))
	_, deleted, ok = b.Get(storage.CFMain, prefix, []byte("k"))
	if !ok || !deleted {
		t.Fatalf("expected delete to shadow the earlier put")
	}
}

func TestTransactionReadsYourWritesBeforeCommit(t *testing.T) {
	store := New()
	ctx := store.Context(prefixOf("s"))
	ctx.Put(storage.CFMain, []byte("k"), []byte("committed"))

	txn, err := store.Begin()
	if err != nil {
		t.Fatal(err)
	}
	txCtx := txn.Context(prefixOf("s"))

	if err := txCtx.Put(storage.CFMain, []byte("k"), []byte("uncommitted")); err != nil {
		t.Fatal(err)
	}

	// The transaction sees its own buffered write...
	v, _ := txCtx.Get(storage.CFMain, []byte("k"))
	if string(v) != "uncommitted" {
		t.Fatalf("txn should read its own write, got %q", v)
	}

	// ...but the store is untouched until commit.
	outside, _ := ctx.Get(storage.CFMain, []byte("k"))
	if string(outside) != "committed" {
		t.Fatalf("uncommitted write leaked outside the transaction: %q", outside)
	}

	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	after, _ := ctx.Get(storage.CFMain, []byte("k"))
	if string(after) != "uncommitted" {
		t.Fatalf("commit should have applied the buffered write, got %q", after)
	}
}

func TestRollbackDiscardsBufferedWrites(t *testing.T) {
	store := New()
	ctx := store.Context(prefixOf("s"))

	txn, _ := store.Begin()
	txCtx := txn.Context(prefixOf("s"))
	txCtx.Put(storage.CFMain, []byte("k"), []byte("v"))

	if err := txn.Rollback(); err != nil {
		t.Fatal(err)
	}

	if v, _ := ctx.Get(storage.CFMain, []byte("k")); v != nil {
		t.Errorf("rollback should discard buffered writes, got %q", v)
	}
}
