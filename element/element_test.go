package element

import (
	"bytes"
	"testing"

	"github.com/grovedb/grovedb/feature"
	"github.com/grovedb/grovedb/hash"
)

func TestItemRoundtrip(t *testing.T) {
	e := NewItem([]byte("hello"))
	e.Flags = []byte("f")

	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Value, e.Value) || !bytes.Equal(got.Flags, e.Flags) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, e)
	}
}

func TestItemWithSumItemRoundtrip(t *testing.T) {
	e := Element{Kind: ItemWithSumItem, Value: []byte("v"), SumValue: -7}

	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Value, e.Value) || got.SumValue != e.SumValue {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, e)
	}
}

func TestReferenceRoundtripWithMaxHops(t *testing.T) {
	hops := uint32(3)
	spec := PathSpec{Kind: SpecAbsolute, Segments: [][]byte{[]byte("a"), []byte("b")}}
	e := NewReference(spec, &hops)

	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxHops == nil || *got.MaxHops != hops {
		t.Fatalf("max hops mismatch: %+v", got.MaxHops)
	}
	if got.Spec.Kind != SpecAbsolute || len(got.Spec.Segments) != 2 {
		t.Errorf("path spec mismatch: %+v", got.Spec)
	}
}

func TestReferenceRoundtripWithoutMaxHops(t *testing.T) {
	spec := PathSpec{Kind: SpecSibling, Segments: [][]byte{[]byte("new-key")}}
	e := NewReference(spec, nil)

	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxHops != nil {
		t.Errorf("expected nil max hops, got %v", *got.MaxHops)
	}
}

func TestBidirectionalReferenceRoundtrip(t *testing.T) {
	spec := PathSpec{Kind: SpecCousin, Segments: [][]byte{[]byte("p2")}}
	e := Element{Kind: BidirectionalReference, Spec: spec, CascadeOnUpdate: true}

	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatal(err)
	}
	if !got.CascadeOnUpdate {
		t.Error("expected CascadeOnUpdate to survive roundtrip")
	}
}

func TestTreePortalRoundtrip(t *testing.T) {
	e := Element{
		Kind:      TreeKindForFeature(feature.CountedSummed),
		RootKey:   []byte("root-node-key"),
		Aggregate: feature.Aggregate{Sum: 42, Count: 5},
	}

	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.RootKey, e.RootKey) {
		t.Errorf("root key mismatch: %q vs %q", got.RootKey, e.RootKey)
	}
	if got.Aggregate.Sum != 42 || got.Aggregate.Count != 5 {
		t.Errorf("aggregate mismatch: %+v", got.Aggregate)
	}
	if got.Kind != CountSumTree {
		t.Errorf("kind mismatch: %v", got.Kind)
	}
}

func TestEmptyTreePortalRoundtrip(t *testing.T) {
	e := NewTree(feature.Basic)

	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatal(err)
	}
	if got.RootKey != nil {
		t.Errorf("expected nil root key for empty subtree, got %q", got.RootKey)
	}
	if got.Kind != Tree {
		t.Errorf("kind mismatch: %v", got.Kind)
	}
}

func TestNonMerkPortalRoundtrip(t *testing.T) {
	e := Element{Kind: MmrTree, NonMerk: NonMerkMeta{Count: 100, Power: 3, Height: 0}}

	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatal(err)
	}
	if got.NonMerk != e.NonMerk {
		t.Errorf("non-merk meta mismatch: %+v vs %+v", got.NonMerk, e.NonMerk)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc := append(Encode(NewItem([]byte("x"))), 0xff)
	if _, err := Decode(enc); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestTreeKindFeatureRoundtrip(t *testing.T) {
	for _, f := range []feature.Kind{
		feature.Basic, feature.Summed, feature.BigSummed, feature.Counted,
		feature.CountedSummed, feature.ProvableCounted, feature.ProvableCountedSummed,
	} {
		k := TreeKindForFeature(f)
		if !k.IsTree() {
			t.Errorf("TreeKindForFeature(%v) = %v is not a tree kind", f, k)
		}
		if k.Feature() != f {
			t.Errorf("Feature() roundtrip mismatch for %v: got %v", f, k.Feature())
		}
	}
}

func TestValueHashItemIsPlainEncodedHash(t *testing.T) {
	e := NewItem([]byte("value"))
	got, err := ValueHash(e, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := hash.ValueHash(Encode(e))
	if got != want {
		t.Errorf("ValueHash mismatch for Item")
	}
}

func TestValueHashReferenceRequiresResolvedHash(t *testing.T) {
	e := NewReference(PathSpec{Kind: SpecAbsolute}, nil)
	if _, err := ValueHash(e, nil, nil); err == nil {
		t.Error("expected error when resolved value hash is missing for a reference")
	}
}

func TestValueHashReferenceBindsResolvedValue(t *testing.T) {
	e := NewReference(PathSpec{Kind: SpecAbsolute}, nil)
	h1 := hash.Of([]byte("target-v1"))
	h2 := hash.Of([]byte("target-v2"))

	got1, err := ValueHash(e, &h1, nil)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := ValueHash(e, &h2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got1 == got2 {
		t.Error("ValueHash should change when the resolved target value changes")
	}
}

func TestValueHashTreeBindsChildRoot(t *testing.T) {
	e := NewTree(feature.Basic)
	childA := hash.Of([]byte("child-a"))
	childB := hash.Of([]byte("child-b"))

	gotA, err := ValueHash(e, nil, &childA)
	if err != nil {
		t.Fatal(err)
	}
	gotB, err := ValueHash(e, nil, &childB)
	if err != nil {
		t.Fatal(err)
	}
	if gotA == gotB {
		t.Error("ValueHash should change when the child root hash changes")
	}

	gotEmpty, err := ValueHash(e, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotEmpty == gotA {
		t.Error("nil child root hash should not coincide with a populated one")
	}
}
