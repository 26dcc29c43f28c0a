package duplicate

import (
	"testing"

	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/pkg/models"
)

func sampleCandidate() models.PatchCandidate {
	return models.PatchCandidate{
		ID:           models.NewPatchCandidateID(),
		Pose:         models.Vec3{X: 1.0001, Y: 2.0, Z: -3.5},
		Cell:         models.CoverageCell{U: 4, V: 5},
		Radiance:     models.Vec3{X: 0.5, Y: 0.25, Z: 0.75},
		ObservedAtMs: 1000,
	}
}

func TestSignatureDeterministic(t *testing.T) {
	d := NewDetector(ssot.Default())
	a := sampleCandidate()
	b := a
	b.ID = models.NewPatchCandidateID() // identity must not affect signature
	if d.Signature(a) != d.Signature(b) {
		t.Fatalf("signatures differ for candidates identical in pose/cell/radiance")
	}
}

func TestSignatureQuantizesSmallPoseNoise(t *testing.T) {
	c := ssot.Default()
	d := NewDetector(c)
	a := sampleCandidate()
	b := a
	b.Pose.X += c.PoseEps / 100 // well within one quantum
	if d.Signature(a) != d.Signature(b) {
		t.Fatalf("expected quantization to absorb sub-quantum pose noise")
	}
}

func TestSignatureDistinguishesDifferentCells(t *testing.T) {
	d := NewDetector(ssot.Default())
	a := sampleCandidate()
	b := a
	b.Cell.U = a.Cell.U + 1
	if d.Signature(a) == d.Signature(b) {
		t.Fatalf("expected different cells to produce different signatures")
	}
}

func TestObserveAndIsDuplicate(t *testing.T) {
	d := NewDetector(ssot.Default())
	cand := sampleCandidate()

	if d.IsDuplicate(cand) {
		t.Fatalf("fresh detector reported a duplicate before any Observe")
	}
	d.Observe(cand)
	if !d.IsDuplicate(cand) {
		t.Fatalf("expected candidate to be flagged duplicate after Observe")
	}
	if d.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", d.Count())
	}
}

func TestForgetRemovesSignature(t *testing.T) {
	d := NewDetector(ssot.Default())
	cand := sampleCandidate()
	sig := d.Observe(cand)
	d.Forget(sig)
	if d.IsDuplicate(cand) {
		t.Fatalf("expected IsDuplicate to be false after Forget")
	}
	if d.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after Forget", d.Count())
	}
}

func TestFallback64IsStableForSameSignature(t *testing.T) {
	d := NewDetector(ssot.Default())
	cand := sampleCandidate()
	sig1 := d.Signature(cand)
	sig2 := d.Signature(cand)
	if sig1.Fallback64() != sig2.Fallback64() {
		t.Fatalf("Fallback64 not stable across repeated calls")
	}
}
