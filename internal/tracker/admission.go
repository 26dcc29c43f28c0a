package tracker

import (
	"github.com/patchcore/scanengine/internal/canon"
	"github.com/patchcore/scanengine/internal/duplicate"
	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/pkg/models"
)

// InformationGainCalculator scores a candidate's information gain and
// novelty, both in [0,1], given the existing coverage and patch
// snapshots. Implementations must be pure: no wall-clock reads, no
// frame counters, no thermal state — admission decisions must be
// reproducible from serialized inputs alone.
type InformationGainCalculator interface {
	InfoGain(candidate models.PatchCandidate, existingCoverage float64, existingPatches int64) float64
	Novelty(candidate models.PatchCandidate, existingCoverage float64, existingPatches int64) float64
	// Observe records an accepted candidate so later novelty queries are
	// scored against it. Called exactly once per ACCEPTED decision.
	Observe(candidate models.PatchCandidate)
}

// TrackerSnapshot is the subset of tracker state AdmissionController
// needs, read once per decision via Tracker.DecisionSnapshot so
// the controller itself stays a pure function of its inputs.
type TrackerSnapshot struct {
	HardFuseTrigger    models.HardFuseTrigger
	ShouldTriggerSoft  bool
	BuildMode          models.BuildMode
}

// AdmissionController makes the pure accept/reject decision. It never
// reads wall-clock time, frame counters, or thermal state — every input
// it needs arrives as an argument.
type AdmissionController struct {
	constants  ssot.Constants
	calculator InformationGainCalculator
}

// NewAdmissionController returns a controller reading thresholds from c
// and scoring candidates with calc.
func NewAdmissionController(c ssot.Constants, calc InformationGainCalculator) *AdmissionController {
	return &AdmissionController{constants: c, calculator: calc}
}

// Decide implements the strict 4-step priority order: duplicate check,
// hard cap, soft-limit gain/novelty gate, then accept.
func (a *AdmissionController) Decide(
	candidate models.PatchCandidate,
	isDuplicate bool,
	snapshot TrackerSnapshot,
	existingCoverage float64,
	existingPatches int64,
) models.AdmissionDecision {
	var decision models.AdmissionDecision
	decision.CandidateID = candidate.ID

	switch {
	case isDuplicate:
		// 1. Duplicate check always wins, before any capacity check.
		decision.Classification = models.ClassificationDuplicateRejected
		decision.Reason = models.RejectReasonDuplicate
		decision.EEBDelta = 0
		decision.BuildMode = snapshot.BuildMode

	case snapshot.HardFuseTrigger != models.HardFuseNone:
		// 2. Hard cap.
		decision.Classification = models.ClassificationRejected
		decision.Reason = models.RejectReasonHardCap
		decision.EEBDelta = 0
		decision.BuildMode = models.BuildModeSaturated
		decision.HardFuseTrigger = snapshot.HardFuseTrigger

	case snapshot.ShouldTriggerSoft:
		// 3. Soft limit: consult the information-gain/novelty calculator.
		infoGain := a.calculator.InfoGain(candidate, existingCoverage, existingPatches)
		novelty := a.calculator.Novelty(candidate, existingCoverage, existingPatches)

		switch {
		case infoGain < a.constants.IGMinSoft:
			decision.Classification = models.ClassificationRejected
			decision.Reason = models.RejectReasonLowGainSoft
			decision.EEBDelta = 0
			decision.BuildMode = models.BuildModeDamping
		case novelty < a.constants.NoveltyMinSoft:
			decision.Classification = models.ClassificationRejected
			decision.Reason = models.RejectReasonRedundantCoverage
			decision.EEBDelta = 0
			decision.BuildMode = models.BuildModeDamping
		default:
			decision.Classification = models.ClassificationAccepted
			decision.EEBDelta = a.constants.EEBMinQuantum
			decision.BuildMode = models.BuildModeDamping
			decision.GuidanceSignal = models.GuidanceDirectionalAffordance
		}

	default:
		// 4. Accept.
		decision.Classification = models.ClassificationAccepted
		decision.EEBDelta = a.constants.EEBMinQuantum
		decision.BuildMode = snapshot.BuildMode
		decision.GuidanceSignal = models.GuidanceNone
	}

	if decision.Classification == models.ClassificationAccepted {
		a.calculator.Observe(candidate)
	}

	decision.DecisionHash = canon.DecisionHashFields(decision)
	return decision
}

// DuplicateCheck runs the duplicate detector ahead of the admission
// decision, matching the requirement that the check run strictly
// before any SOFT/HARD limit check.
func DuplicateCheck(detector *duplicate.Detector, candidate models.PatchCandidate) bool {
	return detector.IsDuplicate(candidate)
}
