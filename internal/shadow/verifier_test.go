package shadow

import (
	"math"
	"testing"
)

// TestCanonicalAndShadowPathsAgreeOnPhi sweeps dy across the full valid
// range and asserts the zero-trig bucketing path and the asin-based
// shadow path always land on the same bucket.
func TestCanonicalAndShadowPathsAgreeOnPhi(t *testing.T) {
	v := NewVerifier()
	for i := -100; i <= 100; i++ {
		v.CheckPhi(float64(i) / 100.0)
	}
	if err := v.AssertClean(); err != nil {
		t.Fatalf("phi bucketing diverged: %v", err)
	}
}

// TestCanonicalAndShadowPathsAgreeOnTheta sweeps a ring of (dx, dz)
// directions and asserts the zero-trig path and the atan2-based shadow
// path always land on the same bucket.
func TestCanonicalAndShadowPathsAgreeOnTheta(t *testing.T) {
	v := NewVerifier()
	for i := 0; i < 360; i++ {
		rad := float64(i) * math.Pi / 180
		v.CheckTheta(math.Sin(rad), math.Cos(rad))
	}
	if err := v.AssertClean(); err != nil {
		t.Fatalf("theta bucketing diverged: %v", err)
	}
}
