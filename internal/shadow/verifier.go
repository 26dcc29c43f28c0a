// Package shadow runs a banned-transcendental comparison path next to
// the zero-trig bucketing path and tracks divergence statistics: an
// experimental heuristic path running alongside the production one,
// logging every divergence. Here the "production" path is
// bucketing.PhiBucket/ThetaBucket and the "shadow" path deliberately
// calls math.Asin/math.Atan2 to prove the two agree.
//
// This package is wired into debug/test builds only — the canonical
// zero-trig path is authoritative in production regardless of what the
// shadow path computes.
package shadow

import (
	"fmt"
	"math"

	"github.com/patchcore/scanengine/internal/bucketing"
)

// Stats accumulates comparisons between the canonical and shadow paths.
type Stats struct {
	TotalComparisons int64
	PhiMismatches    int64
	ThetaMismatches  int64
}

// Verifier runs both bucketing paths and records divergence stats.
type Verifier struct {
	stats Stats
}

// NewVerifier returns a fresh verifier with zeroed stats.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Stats returns a copy of the accumulated divergence statistics.
func (v *Verifier) Stats() Stats {
	return v.stats
}

// trigPhiBucket recomputes the phi bucket using asin, the banned
// transcendental function the canonical path in internal/bucketing never
// calls. It exists solely so this package can assert the two paths agree.
func trigPhiBucket(dy float64) int {
	if dy < -1 {
		dy = -1
	}
	if dy > 1 {
		dy = 1
	}
	phiDeg := math.Asin(dy) * 180 / math.Pi // [-90, 90]
	bucket := int(math.Floor((phiDeg + 90) / 15))
	if bucket < 0 {
		bucket = 0
	}
	if bucket > bucketing.NumPhiBuckets-1 {
		bucket = bucketing.NumPhiBuckets - 1
	}
	return bucket
}

// trigThetaBucket recomputes the theta bucket using atan2, the banned
// transcendental function the canonical path never calls. Bucket k is
// centred on k*15°, so the angle is rounded to the nearest centre and
// angles within 7.5° below 360° wrap to bucket 0.
func trigThetaBucket(dx, dz float64) int {
	length := math.Sqrt(dx*dx + dz*dz)
	if length < 1e-10 {
		return 0
	}
	thetaDeg := math.Atan2(dx, dz) * 180 / math.Pi // (-180, 180]
	if thetaDeg < 0 {
		thetaDeg += 360
	}
	bucket := int(math.Floor((thetaDeg+7.5)/15)) % bucketing.NumThetaBuckets
	if bucket < 0 {
		bucket = 0
	}
	return bucket
}

// CheckPhi compares the canonical and shadow phi bucket for dy, recording
// a mismatch if they disagree and returning the canonical (authoritative)
// result regardless.
func (v *Verifier) CheckPhi(dy float64) int {
	canonical := bucketing.PhiBucket(dy)
	shadowResult := trigPhiBucket(dy)
	v.stats.TotalComparisons++
	if canonical != shadowResult {
		v.stats.PhiMismatches++
	}
	return canonical
}

// CheckTheta compares the canonical and shadow theta bucket for (dx, dz).
func (v *Verifier) CheckTheta(dx, dz float64) int {
	canonical := bucketing.ThetaBucket(dx, dz)
	shadowResult := trigThetaBucket(dx, dz)
	v.stats.TotalComparisons++
	if canonical != shadowResult {
		v.stats.ThetaMismatches++
	}
	return canonical
}

// AssertClean returns an error describing any accumulated mismatches. A
// non-zero mismatch count is a fatal test failure — callers in
// _test.go files should t.Fatal on a non-nil return.
func (v *Verifier) AssertClean() error {
	if v.stats.PhiMismatches == 0 && v.stats.ThetaMismatches == 0 {
		return nil
	}
	return fmt.Errorf("shadow: %d phi mismatches, %d theta mismatches out of %d comparisons",
		v.stats.PhiMismatches, v.stats.ThetaMismatches, v.stats.TotalComparisons)
}
