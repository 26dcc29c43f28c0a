// Package pipeline wires every per-frame authority into the single
// ordered flow the rest of this module only specifies piecewise:
// Perception -> Decision -> Ledger. One struct owns every collaborator
// it needs, serializes its own state behind a mutex rather than relying
// on callers to order calls correctly, and exposes a small number of
// blocking entry points (Submit/Tick — internal/scanner.ChainScanner
// reuses that same pattern for provenance-chain replay). It turns each
// submitted candidate into grid/coverage/provenance side effects.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/patchcore/scanengine/internal/boundary"
	"github.com/patchcore/scanengine/internal/bucketing"
	"github.com/patchcore/scanengine/internal/coverage"
	"github.com/patchcore/scanengine/internal/dsfusion"
	"github.com/patchcore/scanengine/internal/duplicate"
	"github.com/patchcore/scanengine/internal/grid"
	"github.com/patchcore/scanengine/internal/provenance"
	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/internal/tracker"
	"github.com/patchcore/scanengine/pkg/models"
)

// Pipeline owns the full per-session authority graph: the tracker actor,
// the pure admission controller, the duplicate detector, the evidence
// grid, the coverage estimator, and the provenance chain. Submit and
// Tick are its only two entry points; everything else is an internal
// collaborator reached only through them.
type Pipeline struct {
	constants ssot.Constants
	clock     ssot.Clock

	detector  *duplicate.Detector
	admission *tracker.AdmissionController
	tracker   *tracker.Tracker
	commit    *tracker.CommitTransaction
	enforcer  *boundary.Enforcer

	mu        sync.Mutex
	grid      *grid.EvidenceGrid
	estimator *coverage.Estimator
	chain     *provenance.Chain
	lastBucket string
	policyDigest string
}

// New returns a Pipeline backed by constants c. calc scores information
// gain/novelty for the admission controller; flush is the tracker's
// best-effort async persistence hook (nil disables it); enforcer checks
// every cross-domain hop — pass boundary.New(boundary.PolicyWarn, nil)
// for a permissive default. policyDigest is recorded on every
// provenance entry so a chain can be tied back to the profile that
// produced it (see internal/ssot.Profile.Hash).
func New(c ssot.Constants, clock ssot.Clock, calc tracker.InformationGainCalculator, flush tracker.FlushHandler, enforcer *boundary.Enforcer, policyDigest string) *Pipeline {
	t := tracker.New(c, clock)
	return &Pipeline{
		constants:    c,
		clock:        clock,
		detector:     duplicate.NewDetector(c),
		admission:    tracker.NewAdmissionController(c, calc),
		tracker:      t,
		commit:       tracker.NewCommitTransaction(t, clock, flush),
		enforcer:     enforcer,
		grid:         grid.NewEvidenceGrid(c.MaxCells),
		estimator:    coverage.NewEstimator(c),
		chain:        provenance.NewChain(),
		lastBucket:   "INIT",
		policyDigest: policyDigest,
	}
}

// Close stops the tracker's actor loop. Callers must not Submit after
// Close.
func (p *Pipeline) Close() { p.tracker.Close() }

// Tracker exposes the underlying tracker for read-only snapshot queries
// (capacity metrics endpoints, tests). Callers must never reach through
// it to mutate state outside of Submit.
func (p *Pipeline) Tracker() *tracker.Tracker { return p.tracker }

// Grid exposes the underlying evidence grid for read-only iteration.
func (p *Pipeline) Grid() *grid.EvidenceGrid { return p.grid }

// Chain exposes the provenance chain's entries for audit/replay.
func (p *Pipeline) Chain() []provenance.Entry { return p.chain.Entries() }

// Submit runs one candidate through duplicate detection, admission, and
// commit, then — if accepted — fuses its evidence into the grid. It
// returns the AdmissionDecision a caller surfaces to the user; it never
// returns an error for a normal reject, only for a boundary hard-fail.
func (p *Pipeline) Submit(candidate models.PatchCandidate) (models.AdmissionDecision, error) {
	if p.enforcer != nil {
		if err := p.enforcer.Check(boundary.DomainPerception, boundary.DomainDecision); err != nil {
			return models.AdmissionDecision{}, fmt.Errorf("pipeline: %w", err)
		}
	}

	isDuplicate := p.detector.IsDuplicate(candidate)
	snapshot := p.tracker.DecisionSnapshot()
	metrics := p.tracker.Snapshot()

	p.mu.Lock()
	existingCoverage := p.estimator.Emitted()
	p.mu.Unlock()

	decision := p.admission.Decide(candidate, isDuplicate, snapshot, existingCoverage, metrics.PatchCountShadow)

	if p.enforcer != nil {
		if err := p.enforcer.Check(boundary.DomainDecision, boundary.DomainLedger); err != nil {
			return models.AdmissionDecision{}, fmt.Errorf("pipeline: %w", err)
		}
	}

	outcome := p.commit.Apply(decision)
	if !outcome.Rejected {
		p.detector.Observe(candidate)
		p.fuseIntoGrid(candidate)
	}
	return decision, nil
}

// directionBucketsFor derives the zero-trig theta/phi bucket pair this
// candidate's pose would be observed from. A PatchCandidate carries no
// separate view-direction vector in this data model, so the pose itself
// (normalized) stands in for the observation direction — a simplifying
// choice documented in DESIGN.md, not a spec requirement.
func directionBucketsFor(pose models.Vec3) (theta, phi int) {
	theta = bucketing.ThetaBucket(pose.X, pose.Z)
	phi = bucketing.PhiBucket(clamp(pose.Y, -1, 1))
	return
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// levelForObservationCount maps the number of distinct directions a cell
// has been observed from to an evidence-grid tier: L0 is reserved for
// "no confirmed evidence yet" (weight 0 per SSOT) and is never assigned
// by the pipeline itself; a first observation starts at L1 and each
// additional distinct direction promotes the cell by one level, capped
// at L6.
func levelForObservationCount(n int) models.Level {
	if n <= 0 {
		n = 1
	}
	if n > int(models.L6) {
		n = int(models.L6)
	}
	return models.Level(n)
}

// fuseIntoGrid folds an accepted candidate's evidence into whatever cell
// occupies its quantized position, escalating level as more distinct
// directions accumulate and combining Dempster-Shafer mass via
// internal/dsfusion rather than overwriting it.
func (p *Pipeline) fuseIntoGrid(candidate models.PatchCandidate) {
	ix := grid.Quantize(candidate.Pose.X, p.constants.CoverageCellSize)
	iy := grid.Quantize(candidate.Pose.Y, p.constants.CoverageCellSize)
	iz := grid.Quantize(candidate.Pose.Z, p.constants.CoverageCellSize)
	code := grid.Encode(ix, iy, iz)

	theta, _ := directionBucketsFor(candidate.Pose)

	p.mu.Lock()
	defer p.mu.Unlock()

	var existing models.GridCell
	var oldKey models.SpatialKey
	found := false
	for lvl := models.L0; lvl <= models.L6; lvl++ {
		key := models.SpatialKey{MortonCode: code, Level: lvl}
		if cell, ok := p.grid.Get(key); ok {
			existing, oldKey, found = cell, key, true
			break
		}
	}

	mask := models.DirectionalMask(0)
	if found {
		mask = existing.DirectionalMask
	}
	bucket := bucketing.ThetaBucketBitsetFromRaw(uint32(mask))
	bucket.Insert(theta)
	mask = models.DirectionalMask(bucket.Raw())

	newLevel := levelForObservationCount(bucket.Count())
	incoming := dsfusion.VerdictToMass(1.0)
	fused := incoming
	if found {
		fused = dsfusion.Combine(existing.DS, incoming, p.constants.DSEpsilon, p.constants.DSConflictSwitch)
	}

	cell := models.GridCell{
		PatchID:           candidate.ID,
		QuantizedX:        ix,
		QuantizedY:        iy,
		QuantizedZ:        iz,
		DS:                fused,
		Level:             newLevel,
		DirectionalMask:   mask,
		LastUpdatedMillis: p.clock.Now().UnixMilli(),
	}
	newKey := models.SpatialKey{MortonCode: code, Level: newLevel}

	batch := grid.NewDeltaBatch(2)
	if found && oldKey != newKey {
		batch.Evict(oldKey)
	}
	batch.Insert(newKey, cell)
	p.grid.Apply(batch)
}

// Tick advances the coverage estimator by deltaSeconds and appends a
// provenance entry whenever the emitted (buildMode, quantized-coverage)
// pair changes from the last tick's. It returns the freshly emitted
// coverage value.
func (p *Pipeline) Tick(deltaSeconds float64) float64 {
	p.mu.Lock()
	raw := p.estimator.Update(p.grid, deltaSeconds)
	cells := p.grid.AllActiveCells()
	p.mu.Unlock()

	buildMode := p.tracker.Snapshot().BuildMode
	quantized := int64(raw * 10000)
	bucket := fmt.Sprintf("%s:%d", buildMode, quantized/100) // 1% buckets

	if bucket == p.lastBucket {
		return raw
	}

	var breakdown [models.NumLevels]int64
	for _, c := range cells {
		if int(c.Level) < models.NumLevels {
			breakdown[c.Level]++
		}
	}

	entry := provenance.Entry{
		TimestampMillis:    p.clock.Now().UnixMilli(),
		FromState:          p.lastBucket,
		ToState:            bucket,
		CoverageQuantized:  quantized,
		LevelBreakdown:     breakdown,
		PIZCount:           0,
		PIZTotalAreaSqM:    0,
		PIZExcludedAreaSqM: 0,
		GridDigest:         gridDigest(cells),
		PolicyDigest:       p.policyDigest,
	}
	p.chain.Append(entry)
	p.lastBucket = bucket
	return raw
}

// gridDigest hashes a deterministic summary of the grid's active cells
// (already in ascending (mortonCode, level) order per
// EvidenceGrid.AllActiveCells) so a provenance entry can commit to
// "exactly this grid state" without embedding the whole grid.
func gridDigest(cells []models.GridCell) string {
	h := sha256.New()
	for _, c := range cells {
		fmt.Fprintf(h, "%d:%d:%d|%.6f,%.6f,%.6f|%d\n",
			c.QuantizedX, c.QuantizedY, c.QuantizedZ, c.DS.Occupied, c.DS.Free, c.DS.Unknown, c.Level)
	}
	return hex.EncodeToString(h.Sum(nil))
}
