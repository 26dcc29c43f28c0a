// Package ssot holds the single source of truth constant bundle: every
// tunable the admission, grid, coverage, and bucketing components read.
// Constants here are immutable at runtime and participate in the
// profile hash (see profile.go) — one place, never mutated, heavily
// commented with the "why" of each magic number.
package ssot

import "github.com/patchcore/scanengine/pkg/models"

// Constants is the versioned bundle of every SSOT-owned tunable. A
// SchemaVersionID addressable bundle lets the profile hash and the audit
// trace both pin to "this exact constant set" without re-deriving it.
type Constants struct {
	SchemaVersionID uint32

	// Admission & capacity control.
	EEBBaseBudget       float64
	EEBMinQuantum       float64
	SoftLimitPatchCount int64
	HardLimitPatchCount int64
	SoftBudgetThreshold float64
	HardBudgetThreshold float64
	IGMinSoft           float64
	NoveltyMinSoft      float64

	// Duplicate detection.
	PoseEps           float64
	CoverageCellSize  float64
	RadianceBinning   float64

	// Dempster-Shafer fusion.
	DSEpsilon      float64
	DSConflictSwitch float64

	// Coverage estimator.
	CoverageEMAAlpha       float64
	MaxCoverageDeltaPerSec float64

	// Evidence grid.
	LevelWeights [models.NumLevels]float64
	MaxCells     int
}

// Default returns the baseline SSOT bundle ("standard" profile tier).
// Values are representative fixed points chosen to satisfy the system's
// worked capacity/fusion/coverage/limiter scenarios exactly; they are
// not tuned against any external dataset.
func Default() Constants {
	return Constants{
		SchemaVersionID: 1,

		EEBBaseBudget:       1000.0,
		EEBMinQuantum:       1.0,
		SoftLimitPatchCount: 800,
		HardLimitPatchCount: 1000,
		SoftBudgetThreshold: 200.0,
		HardBudgetThreshold: 0.0,
		IGMinSoft:           0.2,
		NoveltyMinSoft:      0.15,

		PoseEps:          0.01,
		CoverageCellSize: 0.05,
		RadianceBinning:  255.0,

		DSEpsilon:        1e-6,
		DSConflictSwitch: 0.95,

		CoverageEMAAlpha:       0.1,
		MaxCoverageDeltaPerSec: 0.25,

		LevelWeights: [models.NumLevels]float64{
			models.L0: 0.0,
			models.L1: 0.2,
			models.L2: 0.5,
			models.L3: 0.7,
			models.L4: 0.8,
			models.L5: 0.9,
			models.L6: 1.0,
		},
		MaxCells: 200_000,
	}
}

// LevelWeight returns the coverage weight for a level, 0 for any level
// outside the SSOT table rather than panicking — callers treat an
// out-of-range level as "contributes nothing to coverage".
func (c Constants) LevelWeight(l models.Level) float64 {
	if int(l) < 0 || int(l) >= len(c.LevelWeights) {
		return 0
	}
	return c.LevelWeights[l]
}
