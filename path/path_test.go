package path

import (
	"reflect"
	"testing"
)

func TestRootIsEmpty(t *testing.T) {
	if !Root.IsRoot() {
		t.Error("Root should be a root path")
	}
	if Root.Len() != 0 {
		t.Errorf("Root.Len() = %d, want 0", Root.Len())
	}
}

func TestChildParentRoundtrip(t *testing.T) {
	identities := Root.Child([]byte("identities"))
	alice := identities.Child([]byte("alice"))

	if alice.Len() != 2 {
		t.Fatalf("alice.Len() = %d, want 2", alice.Len())
	}
	if string(alice.Last()) != "alice" {
		t.Errorf("alice.Last() = %q, want alice", alice.Last())
	}

	back := alice.Parent()
	if !back.Equal(identities) {
		t.Error("alice.Parent() should equal identities")
	}
	if !back.Parent().Equal(Root) {
		t.Error("identities.Parent() should equal Root")
	}
}

func TestParentDoesNotReallocateEarlierSegments(t *testing.T) {
	identities := Root.Child([]byte("identities"))
	alice := identities.Child([]byte("alice"))
	bob := identities.Child([]byte("bob"))

	// Two children of the same parent share the identical parent pointer.
	if alice.Parent() != bob.Parent() {
		t.Error("siblings should share the same parent pointer")
	}
}

func TestNewFromSegments(t *testing.T) {
	p := New([]byte("a"), []byte("b"), []byte("c"))
	want := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	if !reflect.DeepEqual(p.Segments(), want) {
		t.Errorf("Segments() = %v, want %v", p.Segments(), want)
	}
}

func TestReverseIteratesLeafToRoot(t *testing.T) {
	p := New([]byte("a"), []byte("b"), []byte("c"))

	var seen []string
	p.Reverse(func(seg []byte) bool {
		seen = append(seen, string(seg))
		return true
	})

	want := []string{"c", "b", "a"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("Reverse order = %v, want %v", seen, want)
	}
}

func TestReverseStopsEarly(t *testing.T) {
	p := New([]byte("a"), []byte("b"), []byte("c"))

	var seen []string
	p.Reverse(func(seg []byte) bool {
		seen = append(seen, string(seg))
		return len(seen) < 2
	})

	if len(seen) != 2 {
		t.Fatalf("expected early stop after 2 segments, got %d", len(seen))
	}
}

func TestEqualIndependentOfConstruction(t *testing.T) {
	fromChain := Root.Child([]byte("a")).Child([]byte("b"))
	fromSlice := New([]byte("a"), []byte("b"))

	if !fromChain.Equal(fromSlice) {
		t.Error("paths built differently but with the same segments should be Equal")
	}
}

func TestChildIsolatesCallerBuffer(t *testing.T) {
	seg := []byte("mutable")
	p := Root.Child(seg)
	seg[0] = 'X'

	if string(p.Last()) != "mutable" {
		t.Error("Child should copy the segment, not alias the caller's slice")
	}
}
