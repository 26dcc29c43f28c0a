package bucketing

import "testing"

func TestThetaBitsetUpperBitsZero(t *testing.T) {
	var b ThetaBucketBitset
	for i := 0; i < NumThetaBuckets; i++ {
		b.Insert(i)
	}
	if b.Raw()&0xFF000000 != 0 {
		t.Fatalf("upper 8 bits not zero: %#x", b.Raw())
	}
	if b.Count() != NumThetaBuckets {
		t.Fatalf("Count() = %d, want %d", b.Count(), NumThetaBuckets)
	}
}

func TestThetaBitsetFromRawMasksHighBits(t *testing.T) {
	b := ThetaBucketBitsetFromRaw(0xFFFFFFFF)
	if b.Raw() != uint32(thetaBitsetMask) {
		t.Fatalf("expected masked raw %#x, got %#x", thetaBitsetMask, b.Raw())
	}
}

func TestThetaCircularSpan(t *testing.T) {
	var empty, single, full ThetaBucketBitset
	single.Insert(5)
	for i := 0; i < NumThetaBuckets; i++ {
		full.Insert(i)
	}

	if got := empty.CircularSpan(); got != 0 {
		t.Errorf("empty span = %d, want 0", got)
	}
	if got := single.CircularSpan(); got != 0 {
		t.Errorf("singleton span = %d, want 0", got)
	}
	if got := full.CircularSpan(); got != NumThetaBuckets {
		t.Errorf("full span = %d, want %d", got, NumThetaBuckets)
	}

	var wrap ThetaBucketBitset
	wrap.Insert(22)
	wrap.Insert(23)
	wrap.Insert(0)
	wrap.Insert(1)
	// Filled: 22,23,0,1. Gaps: between 1 and 22 is 20 (2..21); wrap gap
	// from 23 to 0 is zero. maxGap=20, span=24-20=4.
	if got := wrap.CircularSpan(); got != 4 {
		t.Errorf("wrap span = %d, want 4", got)
	}
}

func TestPhiLinearSpan(t *testing.T) {
	var empty, single, spread PhiBucketBitset
	single.Insert(3)
	spread.Insert(1)
	spread.Insert(10)

	if got := empty.LinearSpan(); got != 0 {
		t.Errorf("empty span = %d, want 0", got)
	}
	if got := single.LinearSpan(); got != 0 {
		t.Errorf("singleton span = %d, want 0", got)
	}
	if got := spread.LinearSpan(); got != 9 {
		t.Errorf("spread span = %d, want 9", got)
	}
}

func TestPhiBitsetFromRawMasksHighBits(t *testing.T) {
	b := PhiBucketBitsetFromRaw(0xFFFF)
	if b.Raw() != uint16(phiBitsetMask) {
		t.Fatalf("expected masked raw %#x, got %#x", phiBitsetMask, b.Raw())
	}
}

func TestIndicesAscending(t *testing.T) {
	var b ThetaBucketBitset
	b.Insert(5)
	b.Insert(1)
	b.Insert(10)
	idx := b.Indices()
	for i := 1; i < len(idx); i++ {
		if idx[i] <= idx[i-1] {
			t.Fatalf("indices not ascending: %v", idx)
		}
	}
}
