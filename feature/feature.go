// Package feature implements the Merk node feature tag (spec.md §3.2): a
// per-node variant, carried out-of-band from the hash, that selects the
// node's hashing and aggregation rule. Encoding follows the same
// discriminant-first, append-only-variant discipline as indexnode.go's
// header byte, generalized from a single flags byte to a closed tagged
// union with payloads.
package feature

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Kind is the feature discriminant. New kinds append; existing ones are
// never repurposed (spec.md §3.3, §9).
type Kind uint8

const (
	Basic Kind = iota
	Summed
	BigSummed
	Counted
	CountedSummed
	ProvableCounted
	ProvableCountedSummed
)

func (k Kind) String() string {
	switch k {
	case Basic:
		return "Basic"
	case Summed:
		return "Summed"
	case BigSummed:
		return "BigSummed"
	case Counted:
		return "Counted"
	case CountedSummed:
		return "CountedSummed"
	case ProvableCounted:
		return "ProvableCounted"
	case ProvableCountedSummed:
		return "ProvableCountedSummed"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Provable reports whether this feature binds its aggregate into the node
// hash (node_hash_with_count) rather than carrying it purely out-of-band.
func (k Kind) Provable() bool {
	return k == ProvableCounted || k == ProvableCountedSummed
}

// HasCount reports whether this feature maintains a count aggregate.
func (k Kind) HasCount() bool {
	switch k {
	case Counted, CountedSummed, ProvableCounted, ProvableCountedSummed:
		return true
	default:
		return false
	}
}

// HasSum reports whether this feature maintains a signed sum aggregate.
func (k Kind) HasSum() bool {
	switch k {
	case Summed, CountedSummed, ProvableCountedSummed:
		return true
	default:
		return false
	}
}

// HasBigSum reports whether this feature maintains a 128-bit sum aggregate.
func (k Kind) HasBigSum() bool {
	return k == BigSummed
}

// Aggregate is a node's running total: independently a signed 64-bit sum, a
// 128-bit big sum, and/or an unsigned count, combined per spec.md §3.2's
// invariant: stored aggregate = own contribution + left aggregate + right
// aggregate.
type Aggregate struct {
	Sum    int64
	BigSum big.Int
	Count  uint64
}

// ErrOverflow is returned when an aggregate combination over/underflows
// (spec.md §4.2 OverflowError).
var ErrOverflow = fmt.Errorf("feature: aggregate overflow")

// Combine folds a node's own contribution with its two children's
// aggregates, per kind. It never mutates its receivers' inputs.
func Combine(k Kind, own, left, right Aggregate) (Aggregate, error) {
	var out Aggregate

	if k.HasSum() {
		sum, err := addOverflow(own.Sum, left.Sum)
		if err != nil {
			return out, err
		}
		sum, err = addOverflow(sum, right.Sum)
		if err != nil {
			return out, err
		}
		out.Sum = sum
	}

	if k.HasBigSum() {
		out.BigSum.Add(&own.BigSum, &left.BigSum)
		out.BigSum.Add(&out.BigSum, &right.BigSum)
		if out.BigSum.BitLen() > 127 {
			return Aggregate{}, ErrOverflow
		}
	}

	if k.HasCount() {
		count := own.Count + left.Count + right.Count
		if count < own.Count || count < left.Count || count < right.Count {
			return Aggregate{}, ErrOverflow
		}
		out.Count = count
	}

	return out, nil
}

func addOverflow(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Encode serializes the feature kind and any aggregate fields it carries
// out-of-band on a persisted node (spec.md §3.2: "maintained on the node
// but not bound into the hash" for non-provable counts/sums).
func Encode(k Kind, agg Aggregate) []byte {
	buf := []byte{byte(k)}
	if k.HasSum() {
		buf = binary.BigEndian.AppendUint64(buf, uint64(agg.Sum))
	}
	if k.HasBigSum() {
		b := agg.BigSum.Bytes()
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(b)))
		neg := byte(0)
		if agg.BigSum.Sign() < 0 {
			neg = 1
		}
		buf = append(buf, neg)
		buf = append(buf, b...)
	}
	if k.HasCount() {
		buf = binary.BigEndian.AppendUint64(buf, agg.Count)
	}
	return buf
}

// Decode parses a feature tag plus aggregate fields previously produced by
// Encode.
func Decode(b []byte) (Kind, Aggregate, int, error) {
	if len(b) < 1 {
		return 0, Aggregate{}, 0, fmt.Errorf("feature: empty encoding")
	}
	k := Kind(b[0])
	pos := 1
	var agg Aggregate

	if k.HasSum() {
		if len(b) < pos+8 {
			return 0, Aggregate{}, 0, fmt.Errorf("feature: truncated sum")
		}
		agg.Sum = int64(binary.BigEndian.Uint64(b[pos : pos+8]))
		pos += 8
	}
	if k.HasBigSum() {
		if len(b) < pos+3 {
			return 0, Aggregate{}, 0, fmt.Errorf("feature: truncated big sum header")
		}
		n := int(binary.BigEndian.Uint16(b[pos : pos+2]))
		neg := b[pos+2]
		pos += 3
		if len(b) < pos+n {
			return 0, Aggregate{}, 0, fmt.Errorf("feature: truncated big sum")
		}
		agg.BigSum.SetBytes(b[pos : pos+n])
		if neg == 1 {
			agg.BigSum.Neg(&agg.BigSum)
		}
		pos += n
	}
	if k.HasCount() {
		if len(b) < pos+8 {
			return 0, Aggregate{}, 0, fmt.Errorf("feature: truncated count")
		}
		agg.Count = binary.BigEndian.Uint64(b[pos : pos+8])
		pos += 8
	}

	return k, agg, pos, nil
}

// OwnContribution returns the aggregate a single node of this feature kind
// contributes on its own (before folding in children), given whether the
// node's element is an Item-family leaf (contributes 1 to counts, its
// value to sums) or a Tree-family portal (contributes 0/Basic unless it is
// itself a Sum/Count tree root, in which case the grove layer passes the
// portal's own maintained aggregate here).
func OwnContribution(k Kind, sumValue int64, isLeafKind bool) Aggregate {
	var out Aggregate
	if k.HasSum() {
		out.Sum = sumValue
	}
	if k.HasBigSum() {
		out.BigSum.SetInt64(sumValue)
	}
	if k.HasCount() && isLeafKind {
		out.Count = 1
	}
	return out
}
