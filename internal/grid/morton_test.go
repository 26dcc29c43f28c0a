package grid

import "testing"

func TestQuantizePositiveAndNegative(t *testing.T) {
	cases := []struct {
		v, cellSize float64
		want        int32
	}{
		{0.0, 0.05, 0},
		{0.049, 0.05, 0},
		{0.05, 0.05, 1},
		{-0.001, 0.05, -1},
		{-0.05, 0.05, -1},
		{-0.051, 0.05, -2},
	}
	for _, c := range cases {
		if got := Quantize(c.v, c.cellSize); got != c.want {
			t.Errorf("Quantize(%v, %v) = %d, want %d", c.v, c.cellSize, got, c.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][3]int32{
		{0, 0, 0},
		{1, 2, 3},
		{-1, -2, -3},
		{1000, -1000, 500},
		{-524288, 524287, 0}, // half the representable range (edge is ±1<<20)
	}
	for _, c := range cases {
		code := Encode(c[0], c[1], c[2])
		ix, iy, iz := Decode(code)
		if ix != c[0] || iy != c[1] || iz != c[2] {
			t.Errorf("round trip failed for %v: got (%d,%d,%d)", c, ix, iy, iz)
		}
	}
}

func TestEncodeDistinctForDistinctCoords(t *testing.T) {
	a := Encode(1, 2, 3)
	b := Encode(3, 2, 1)
	if a == b {
		t.Fatalf("expected distinct coordinates to produce distinct codes")
	}
}
