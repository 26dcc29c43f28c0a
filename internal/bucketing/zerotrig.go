// Package bucketing implements deterministic, zero-transcendental pose
// and direction bucketing. No function in this file calls math.Sin,
// math.Cos, math.Atan2, or math.Asin — that restriction is the whole
// point: bit-identical bucket indices across platforms and compilers.
// The banned-function comparison path lives in the sibling package
// internal/shadow, a shadow-vs-production divergence tracker.
package bucketing

import (
	"math"
	"sort"
)

// NumThetaBuckets and NumPhiBuckets split the full circle and half
// circle into fixed 15-degree buckets.
const (
	NumThetaBuckets = 24
	NumPhiBuckets   = 12
)

// phiSinBoundaries are the 13 sin-boundary constants splitting
// φ ∈ [-90°, +90°] into 12 buckets of 15° each: sin(-90 + 15*i) for
// i in [0, 12]. Precomputed once; never recomputed via asin at runtime.
var phiSinBoundaries = [13]float64{
	-1.0000000000000000, // sin(-90)
	-0.9659258262890683, // sin(-75)
	-0.8660254037844387, // sin(-60)
	-0.7071067811865476, // sin(-45)
	-0.5000000000000001, // sin(-30)
	-0.2588190451025208, // sin(-15)
	0.0000000000000000,  // sin(0)
	0.2588190451025207,  // sin(15)
	0.4999999999999998,  // sin(30)
	0.7071067811865475,  // sin(45)
	0.8660254037844386,  // sin(60)
	0.9659258262890682,  // sin(75)
	1.0000000000000000,  // sin(90)
}

// thetaUnitVectors are the 24 unit vectors u_k = (sin(k*15°), cos(k*15°))
// for k in [0, 23], precomputed once and never regenerated via sin/cos at
// runtime.
var thetaUnitVectors = [NumThetaBuckets][2]float64{
	{0.0000000000000000, 1.0000000000000000},
	{0.2588190451025207, 0.9659258262890683},
	{0.4999999999999998, 0.8660254037844387},
	{0.7071067811865475, 0.7071067811865476},
	{0.8660254037844386, 0.5000000000000001},
	{0.9659258262890682, 0.2588190451025209},
	{1.0000000000000000, 0.0000000000000001},
	{0.9659258262890683, -0.2588190451025205},
	{0.8660254037844388, -0.4999999999999998},
	{0.7071067811865477, -0.7071067811865475},
	{0.5000000000000003, -0.8660254037844385},
	{0.2588190451025212, -0.9659258262890682},
	{0.0000000000000002, -1.0000000000000000},
	{-0.2588190451025203, -0.9659258262890684},
	{-0.4999999999999996, -0.8660254037844389},
	{-0.7071067811865474, -0.7071067811865477},
	{-0.8660254037844384, -0.5000000000000004},
	{-0.9659258262890681, -0.2588190451025213},
	{-1.0000000000000000, -0.0000000000000003},
	{-0.9659258262890684, 0.2588190451025200},
	{-0.8660254037844390, 0.4999999999999993},
	{-0.7071067811865479, 0.7071067811865470},
	{-0.5000000000000006, 0.8660254037844383},
	{-0.2588190451025217, 0.9659258262890681},
}

// clamp constrains v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PhiBucket maps dy ∈ [-1,1] (clamped) to a phi bucket in [0, 11] via
// binary search over the precomputed sin boundaries — the largest i such
// that phiSinBoundaries[i] <= dy.
func PhiBucket(dy float64) int {
	dy = clamp(dy, -1.0, 1.0)
	// sort.Search finds the first index where boundaries[i] > dy; the
	// bucket is that index minus one, clamped into [0, 11].
	idx := sort.Search(len(phiSinBoundaries), func(i int) bool {
		return phiSinBoundaries[i] > dy
	})
	bucket := idx - 1
	if bucket < 0 {
		bucket = 0
	}
	if bucket > NumPhiBuckets-1 {
		bucket = NumPhiBuckets - 1
	}
	return bucket
}

// gimbalEpsilon is the minimum XZ-plane length below which theta falls
// back to the deterministic gimbal bucket 0.
const gimbalEpsilon = 1e-10

// ThetaBucket maps a direction's (dx, dz) XZ-plane components to a theta
// bucket in [0, 23] by normalizing and picking argmax_k(nx*u_k.x + nz*u_k.y)
// over all 24 precomputed unit vectors.
func ThetaBucket(dx, dz float64) int {
	length := math.Sqrt(dx*dx + dz*dz)
	if length < gimbalEpsilon {
		return 0
	}
	nx := dx / length
	nz := dz / length

	best := 0
	bestDot := nx*thetaUnitVectors[0][0] + nz*thetaUnitVectors[0][1]
	for k := 1; k < NumThetaBuckets; k++ {
		dot := nx*thetaUnitVectors[k][0] + nz*thetaUnitVectors[k][1]
		if dot > bestDot {
			bestDot = dot
			best = k
		}
	}
	return best
}

// ThetaBucketQuadrant is the optimized theta bucketing path: it first
// selects a quadrant by the signs of nx/nz (6 candidate buckets per
// quadrant), then scans those plus the bucket straddling the quadrant's
// far edge (7 candidates total) instead of all 24. Must agree with
// ThetaBucket on every input — this is checked as a property test.
//
// A quadrant's own 6 buckets span exactly 90 degrees, but the true
// argmax for an input near the far edge of that span can fall on the
// first bucket of the next quadrant (e.g. dx=sin(85 deg), dz=cos(85
// deg) sits in the nx>=0,nz>=0 quadrant yet is closer to bucket 6 than
// to bucket 5). Scanning one bucket past the quadrant's own window
// reaches that shared boundary bucket on both sides; the near-edge
// boundary is already the window's own start index, so extending the
// far end by one is sufficient.
func ThetaBucketQuadrant(dx, dz float64) int {
	length := math.Sqrt(dx*dx + dz*dz)
	if length < gimbalEpsilon {
		return 0
	}
	nx := dx / length
	nz := dz / length

	var start int
	switch {
	case nx >= 0 && nz >= 0:
		start = 0 // buckets 0..5 cover [0,90)
	case nx >= 0 && nz < 0:
		start = 6 // buckets 6..11
	case nx < 0 && nz < 0:
		start = 12 // buckets 12..17
	default:
		start = 18 // buckets 18..23
	}

	best := start
	bestDot := nx*thetaUnitVectors[start][0] + nz*thetaUnitVectors[start][1]
	for i := 1; i < 7; i++ {
		k := (start + i) % NumThetaBuckets
		dot := nx*thetaUnitVectors[k][0] + nz*thetaUnitVectors[k][1]
		if dot > bestDot {
			bestDot = dot
			best = k
		}
	}
	return best
}
