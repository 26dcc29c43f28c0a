// Package duplicate implements the admission-time duplicate check: before a
// PatchCandidate is allowed to enter the commit pipeline, its pose, cell,
// and radiance are reduced to a stable signature and checked against
// recently admitted signatures: pipe-joined canonical fields hashed
// with crypto/sha256, used here for signature identity.
//
// Open question resolved (byte-stability requires an explicit rounding
// choice): pose and radiance are rounded with math.RoundToEven to the
// nearest quantum (ssot.Constants.PoseEps for position, 1/RadianceBinning
// for radiance) before formatting, i.e. round-half-to-even (banker's
// rounding) at the bin boundary rather than truncation. Truncation would make two candidates
// that straddle a bin edge by floating point noise collapse into
// different bins depending on sign; rounding to nearest is stable under
// small negative/positive perturbation around zero.
package duplicate

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/pkg/models"
)

// Signature is the 32-byte canonical identity of a candidate's pose, cell,
// and radiance, quantized to the configured bin sizes.
type Signature [32]byte

// Fallback64 returns a 64-bit truncation of the signature, for callers
// that need a compact map key (e.g. grid.EvidenceGrid residency checks)
// rather than full collision resistance.
func (s Signature) Fallback64() uint64 {
	return binary.BigEndian.Uint64(s[:8])
}

// Detector tracks recently admitted signatures and reports whether a new
// candidate duplicates one of them. It is not safe to read Signatures
// concurrently with Observe without holding the mutex; callers inside
// the single-writer PatchTracker already serialize access, but the
// detector defends itself anyway since it may be unit-tested standalone.
type Detector struct {
	mu   sync.Mutex
	seen map[Signature]struct{}
	c    ssot.Constants
}

// NewDetector returns a Detector quantizing pose and radiance according
// to c.
func NewDetector(c ssot.Constants) *Detector {
	return &Detector{
		seen: make(map[Signature]struct{}),
		c:    c,
	}
}

// roundTo rounds v to the nearest multiple of quantum, rounding half to
// even at the boundary.
func roundTo(v, quantum float64) float64 {
	if quantum <= 0 {
		return v
	}
	return math.RoundToEven(v/quantum) * quantum
}

// Signature computes the canonical duplicate-detection signature for a
// candidate's pose, cell, and radiance.
func (d *Detector) Signature(cand models.PatchCandidate) Signature {
	px := roundTo(cand.Pose.X, d.c.PoseEps)
	py := roundTo(cand.Pose.Y, d.c.PoseEps)
	pz := roundTo(cand.Pose.Z, d.c.PoseEps)

	radianceQuantum := 1.0 / d.c.RadianceBinning
	rr := roundTo(cand.Radiance.X, radianceQuantum)
	rg := roundTo(cand.Radiance.Y, radianceQuantum)
	rb := roundTo(cand.Radiance.Z, radianceQuantum)

	payload := fmt.Sprintf("%d|%d|%.6f|%.6f|%.6f|%.6f|%.6f|%.6f",
		cand.Cell.U, cand.Cell.V,
		px, py, pz, rr, rg, rb)
	return sha256.Sum256([]byte(payload))
}

// IsDuplicate reports whether cand's signature has already been observed.
func (d *Detector) IsDuplicate(cand models.PatchCandidate) bool {
	sig := d.Signature(cand)
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[sig]
	return ok
}

// Observe records cand's signature as admitted. Callers must call this
// only after the candidate has actually been committed, never
// speculatively, so a later rollback cannot leave a phantom signature
// behind.
func (d *Detector) Observe(cand models.PatchCandidate) Signature {
	sig := d.Signature(cand)
	d.mu.Lock()
	d.seen[sig] = struct{}{}
	d.mu.Unlock()
	return sig
}

// Count returns the number of distinct signatures currently tracked.
func (d *Detector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Forget removes a signature from the tracked set. Grid eviction does not
// call it; a signature stays tracked until Forget is called for it.
func (d *Detector) Forget(sig Signature) {
	d.mu.Lock()
	delete(d.seen, sig)
	d.mu.Unlock()
}
