// Package coverage computes the user-facing coverage percentage: raw
// occupied-mass fraction over the grid's configured budget, EMA-smoothed
// and rate-limited so the on-screen number never jumps. A small piece of
// stateful, single-writer math kept in its own file with plain field
// access and no atomics, since the estimator is itself a single-writer
// authority and never shared across goroutines.
package coverage

import (
	"github.com/patchcore/scanengine/internal/grid"
	"github.com/patchcore/scanengine/internal/ssot"
)

// Estimator holds the EMA and rate-limiter state for one coverage
// stream. Not safe for concurrent use; callers serialize access the same
// way every other authority in this system does.
type Estimator struct {
	c        ssot.Constants
	hasPrior bool
	smoothed float64
	emitted  float64
}

// NewEstimator returns a fresh estimator reading smoothing/rate-limit
// tunables from c.
func NewEstimator(c ssot.Constants) *Estimator {
	return &Estimator{c: c}
}

// rawCoverage computes Σ_cells(levelWeight(level) * occupied) / maxCells
// over the grid's active cells. maxCells, not the active count, is the
// denominator: coverage means "fraction of potential fill," so a
// half-empty grid reads as half covered rather than fully covered.
func rawCoverage(g *grid.EvidenceGrid, c ssot.Constants) float64 {
	if c.MaxCells <= 0 {
		return 0
	}
	var sum float64
	for _, cell := range g.AllActiveCells() {
		sum += c.LevelWeight(cell.Level) * cell.DS.Occupied
	}
	raw := sum / float64(c.MaxCells)
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	return raw
}

// Update advances the estimator by one tick: computes raw coverage from
// g, folds it into the EMA, clamps the result within
// maxCoverageDeltaPerSec*deltaSeconds of the last emitted value, and
// returns the newly emitted coverage, always within [0,1].
func (e *Estimator) Update(g *grid.EvidenceGrid, deltaSeconds float64) float64 {
	raw := rawCoverage(g, e.c)

	if !e.hasPrior {
		e.smoothed = raw
		e.emitted = raw
		e.hasPrior = true
		return e.emitted
	}

	alpha := e.c.CoverageEMAAlpha
	e.smoothed = alpha*raw + (1-alpha)*e.smoothed

	if deltaSeconds < 0 {
		deltaSeconds = 0
	}
	maxDelta := e.c.MaxCoverageDeltaPerSec * deltaSeconds
	diff := e.smoothed - e.emitted
	switch {
	case diff > maxDelta:
		e.emitted += maxDelta
	case diff < -maxDelta:
		e.emitted -= maxDelta
	default:
		e.emitted = e.smoothed
	}

	if e.emitted < 0 {
		e.emitted = 0
	}
	if e.emitted > 1 {
		e.emitted = 1
	}
	return e.emitted
}

// Emitted returns the most recently emitted coverage value without
// advancing the estimator, for callers (e.g. the pipeline's provenance
// hook) that need the current reading between ticks.
func (e *Estimator) Emitted() float64 {
	return e.emitted
}

// Reset clears both EMA and rate-limiter state, the same semantics as
// starting a fresh estimator.
func (e *Estimator) Reset() {
	e.hasPrior = false
	e.smoothed = 0
	e.emitted = 0
}
