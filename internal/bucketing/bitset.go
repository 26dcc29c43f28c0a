package bucketing

import "math/bits"

// ThetaBucketBitset is a compact set of observed theta bucket indices,
// stored in the low 24 bits of a 32-bit word. The upper 8 bits must
// always read zero.
type ThetaBucketBitset uint32

const thetaBitsetMask ThetaBucketBitset = (1 << NumThetaBuckets) - 1

// Insert marks bucket idx (0..23) as observed.
func (b *ThetaBucketBitset) Insert(idx int) {
	if idx < 0 || idx >= NumThetaBuckets {
		return
	}
	*b = (*b | (1 << uint(idx))) & thetaBitsetMask
}

// Contains reports whether bucket idx has been observed.
func (b ThetaBucketBitset) Contains(idx int) bool {
	if idx < 0 || idx >= NumThetaBuckets {
		return false
	}
	return b&(1<<uint(idx)) != 0
}

// Count returns the number of distinct observed buckets (popcount).
func (b ThetaBucketBitset) Count() int {
	return bits.OnesCount32(uint32(b & thetaBitsetMask))
}

// Clear empties the set.
func (b *ThetaBucketBitset) Clear() { *b = 0 }

// Raw returns the raw 32-bit word with the upper 8 bits guaranteed zero.
func (b ThetaBucketBitset) Raw() uint32 { return uint32(b & thetaBitsetMask) }

// ThetaBucketBitsetFromRaw deserializes raw bits, masking off any invalid
// high bits rather than rejecting them.
func ThetaBucketBitsetFromRaw(raw uint32) ThetaBucketBitset {
	return ThetaBucketBitset(raw) & thetaBitsetMask
}

// Indices returns the observed bucket indices in ascending order.
func (b ThetaBucketBitset) Indices() []int {
	var out []int
	for i := 0; i < NumThetaBuckets; i++ {
		if b.Contains(i) {
			out = append(out, i)
		}
	}
	return out
}

// CircularSpan returns the circular span of the set: 24 - maxGap, where
// maxGap includes the wrap-around gap. Empty or singleton sets have span
// 0; a full bitset has span 24.
func (b ThetaBucketBitset) CircularSpan() int {
	idx := b.Indices()
	if len(idx) <= 1 {
		return 0
	}
	if len(idx) == NumThetaBuckets {
		return NumThetaBuckets
	}
	maxGap := 0
	for i := 1; i < len(idx); i++ {
		gap := idx[i] - idx[i-1] - 1
		if gap > maxGap {
			maxGap = gap
		}
	}
	wrapGap := (NumThetaBuckets - idx[len(idx)-1] - 1) + idx[0]
	if wrapGap > maxGap {
		maxGap = wrapGap
	}
	return NumThetaBuckets - maxGap
}

// PhiBucketBitset is a compact set of observed phi bucket indices, stored
// in the low 12 bits of a 16-bit word.
type PhiBucketBitset uint16

const phiBitsetMask PhiBucketBitset = (1 << NumPhiBuckets) - 1

// Insert marks bucket idx (0..11) as observed.
func (b *PhiBucketBitset) Insert(idx int) {
	if idx < 0 || idx >= NumPhiBuckets {
		return
	}
	*b = (*b | (1 << uint(idx))) & phiBitsetMask
}

// Contains reports whether bucket idx has been observed.
func (b PhiBucketBitset) Contains(idx int) bool {
	if idx < 0 || idx >= NumPhiBuckets {
		return false
	}
	return b&(1<<uint(idx)) != 0
}

// Count returns the number of distinct observed buckets (popcount).
func (b PhiBucketBitset) Count() int {
	return bits.OnesCount16(uint16(b & phiBitsetMask))
}

// Clear empties the set.
func (b *PhiBucketBitset) Clear() { *b = 0 }

// Raw returns the raw 16-bit word with the upper 4 bits guaranteed zero.
func (b PhiBucketBitset) Raw() uint16 { return uint16(b & phiBitsetMask) }

// PhiBucketBitsetFromRaw deserializes raw bits, masking off any invalid
// high bits rather than rejecting them.
func PhiBucketBitsetFromRaw(raw uint16) PhiBucketBitset {
	return PhiBucketBitset(raw) & phiBitsetMask
}

// Indices returns the observed bucket indices in ascending order.
func (b PhiBucketBitset) Indices() []int {
	var out []int
	for i := 0; i < NumPhiBuckets; i++ {
		if b.Contains(i) {
			out = append(out, i)
		}
	}
	return out
}

// LinearSpan returns last - first (not +1); zero for empty or singleton
// sets. Unlike the theta bitset, phi has no wrap-around.
func (b PhiBucketBitset) LinearSpan() int {
	idx := b.Indices()
	if len(idx) <= 1 {
		return 0
	}
	return idx[len(idx)-1] - idx[0]
}
