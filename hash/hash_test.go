package hash

import "testing"

func TestOfDeterministic(t *testing.T) {
	data := []byte("grovedb node payload")

	a := Of(data)
	b := Of(data)

	if a != b {
		t.Error("Of should be deterministic for the same input")
	}

	if Of([]byte("different payload")) == a {
		t.Error("Of should differ for different inputs")
	}
}

func TestOfFramesLength(t *testing.T) {
	// An input and its one-byte extension must hash differently: the
	// length prefix makes the framing length-sensitive.
	h1 := Of([]byte("ab"))
	h2 := Of([]byte("abc"))
	if h1 == h2 {
		t.Error("Of must be length-sensitive")
	}
}

func TestCombine(t *testing.T) {
	a := Of([]byte("left"))
	b := Of([]byte("right"))

	c1 := Combine(a, b)
	c2 := Combine(a, b)
	if c1 != c2 {
		t.Error("Combine should be deterministic")
	}

	if Combine(b, a) == c1 {
		t.Error("Combine should not be commutative")
	}
}

func TestValueKVNodeHashChain(t *testing.T) {
	key := []byte("alice")
	value := []byte("Alice")

	vh := ValueHash(value)
	kv := KVHash(key, vh)
	node := NodeHash(kv, Zero, Zero)

	if node.IsZero() {
		t.Fatal("node hash should not be zero")
	}

	// Changing the value must change every hash derived from it.
	vh2 := ValueHash([]byte("ALICE"))
	if vh2 == vh {
		t.Fatal("value hash should differ for different values")
	}
	kv2 := KVHash(key, vh2)
	if kv2 == kv {
		t.Error("kv hash should change when value hash changes")
	}
	node2 := NodeHash(kv2, Zero, Zero)
	if node2 == node {
		t.Error("node hash should change when kv hash changes")
	}
}

func TestNodeHashBindsChildren(t *testing.T) {
	kv := KVHash([]byte("k"), ValueHash([]byte("v")))
	left := Of([]byte("left child"))
	right := Of([]byte("right child"))

	withoutChildren := NodeHash(kv, Zero, Zero)
	withLeft := NodeHash(kv, left, Zero)
	withBoth := NodeHash(kv, left, right)

	if withoutChildren == withLeft || withLeft == withBoth || withoutChildren == withBoth {
		t.Error("node hash must change whenever a child hash changes")
	}
}

func TestNodeHashWithCountBindsCount(t *testing.T) {
	plain := Of([]byte("node"))
	a := NodeHashWithCount(plain, 1)
	b := NodeHashWithCount(plain, 2)
	if a == b {
		t.Error("count-bound node hash must change with the count")
	}
}

func TestPrefixSegmentBoundary(t *testing.T) {
	p1 := Prefix([][]byte{[]byte("ab"), []byte("c")})
	p2 := Prefix([][]byte{[]byte("a"), []byte("bc")})
	if p1 == p2 {
		t.Error("Prefix must not collide across segment boundaries")
	}

	p3 := Prefix([][]byte{[]byte("ab"), []byte("c")})
	if p1 != p3 {
		t.Error("Prefix should be deterministic")
	}
}

func TestFromBytesRoundtrip(t *testing.T) {
	h := Of([]byte("roundtrip"))
	h2 := FromBytes(h.Bytes())
	if h != h2 {
		t.Error("FromBytes(h.Bytes()) should equal h")
	}
}
