package feature

import "testing"

func TestCombineBasicIsAlwaysZero(t *testing.T) {
	agg, err := Combine(Basic, Aggregate{}, Aggregate{}, Aggregate{})
	if err != nil {
		t.Fatal(err)
	}
	if agg.Sum != 0 || agg.Count != 0 {
		t.Errorf("Basic feature should carry no aggregate, got %+v", agg)
	}
}

func TestCombineCountedSumsContributions(t *testing.T) {
	own := Aggregate{Count: 1}
	left := Aggregate{Count: 3}
	right := Aggregate{Count: 4}

	agg, err := Combine(Counted, own, left, right)
	if err != nil {
		t.Fatal(err)
	}
	if agg.Count != 8 {
		t.Errorf("Count = %d, want 8", agg.Count)
	}
}

func TestCombineSummedHandlesNegatives(t *testing.T) {
	own := Aggregate{Sum: -50}
	left := Aggregate{Sum: 100}
	right := Aggregate{Sum: 25}

	agg, err := Combine(Summed, own, left, right)
	if err != nil {
		t.Fatal(err)
	}
	if agg.Sum != 75 {
		t.Errorf("Sum = %d, want 75", agg.Sum)
	}
}

func TestCombineSumOverflow(t *testing.T) {
	own := Aggregate{Sum: 1<<63 - 1}
	left := Aggregate{Sum: 1}

	if _, err := Combine(Summed, own, left, Aggregate{}); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestCombineCountOverflow(t *testing.T) {
	own := Aggregate{Count: ^uint64(0)}
	left := Aggregate{Count: 1}

	if _, err := Combine(Counted, own, left, Aggregate{}); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	agg := Aggregate{Sum: -42, Count: 7}
	enc := Encode(CountedSummed, agg)

	k, got, n, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(enc) {
		t.Errorf("Decode consumed %d bytes, want %d", n, len(enc))
	}
	if k != CountedSummed {
		t.Errorf("Kind = %v, want CountedSummed", k)
	}
	if got.Sum != agg.Sum || got.Count != agg.Count {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, agg)
	}
}

func TestEncodeDecodeBigSum(t *testing.T) {
	agg := Aggregate{}
	agg.BigSum.SetInt64(-123456789)
	enc := Encode(BigSummed, agg)

	_, got, _, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if got.BigSum.Cmp(&agg.BigSum) != 0 {
		t.Errorf("BigSum roundtrip mismatch: got %v, want %v", &got.BigSum, &agg.BigSum)
	}
}

func TestProvableAndHasCount(t *testing.T) {
	if !ProvableCounted.Provable() {
		t.Error("ProvableCounted should be Provable")
	}
	if Counted.Provable() {
		t.Error("Counted should not be Provable")
	}
	if !CountedSummed.HasCount() || !CountedSummed.HasSum() {
		t.Error("CountedSummed should carry both count and sum")
	}
}
