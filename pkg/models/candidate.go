// Package models holds the stable wire/domain types shared across the
// evidence admission core: candidates, decisions, capacity snapshots,
// grid cells, and audit trace records. Nothing in this package mutates
// state — these are plain data types only.
package models

import "github.com/google/uuid"

// Vec3 is a plain 3-vector used for pose and radiance. No behavior lives
// here; it is a carrier type only.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// CoverageCell is the 2D integer coverage bucket a candidate falls into.
type CoverageCell struct {
	U int32 `json:"u"`
	V int32 `json:"v"`
}

// PatchCandidate is immutable once constructed: identity, pose, coverage
// cell, and radiance. Nothing downstream may mutate a candidate in place.
type PatchCandidate struct {
	ID           string       `json:"id"`
	Pose         Vec3         `json:"pose"`
	Cell         CoverageCell `json:"cell"`
	Radiance     Vec3         `json:"radiance"`
	ObservedAtMs int64        `json:"observedAtMs"`
}

// NewPatchCandidateID mints a fresh candidate identity. Candidates never
// reuse an ID; the idempotency registry in PatchTracker relies on that.
func NewPatchCandidateID() string {
	return uuid.New().String()
}

// Classification is the admission outcome for a candidate.
type Classification string

const (
	ClassificationAccepted         Classification = "ACCEPTED"
	ClassificationRejected         Classification = "REJECTED"
	ClassificationDuplicateRejected Classification = "DUPLICATE_REJECTED"
)

// RejectReason enumerates why a candidate was not admitted.
type RejectReason string

const (
	RejectReasonNone                RejectReason = ""
	RejectReasonDuplicate           RejectReason = "DUPLICATE"
	RejectReasonHardCap             RejectReason = "HARD_CAP"
	RejectReasonLowGainSoft         RejectReason = "LOW_GAIN_SOFT"
	RejectReasonRedundantCoverage   RejectReason = "REDUNDANT_COVERAGE"
)

// BuildMode is the tracker's monotone capacity state.
type BuildMode string

const (
	BuildModeNormal    BuildMode = "NORMAL"
	BuildModeDamping   BuildMode = "DAMPING"
	BuildModeSaturated BuildMode = "SATURATED"
)

// GuidanceSignal is the user-facing hint attached to a decision.
type GuidanceSignal string

const (
	GuidanceNone                  GuidanceSignal = "NONE"
	GuidanceDirectionalAffordance GuidanceSignal = "DIRECTIONAL_AFFORDANCE"
)

// HardFuseTrigger names which hard limit tripped SATURATED.
type HardFuseTrigger string

const (
	HardFuseNone             HardFuseTrigger = ""
	HardFusePatchCountHard   HardFuseTrigger = "PATCHCOUNT_HARD"
	HardFuseEEBHard          HardFuseTrigger = "EEB_HARD"
)

// AdmissionDecision is the pure output of the admission pipeline for one
// candidate. decisionHash is derived deterministically from the canonical
// serialization of every preceding field — see internal/canon.
type AdmissionDecision struct {
	CandidateID      string          `json:"candidateId"`
	Classification   Classification  `json:"classification"`
	Reason           RejectReason    `json:"reason,omitempty"`
	EEBDelta         float64         `json:"eebDelta"`
	BuildMode        BuildMode       `json:"buildMode"`
	GuidanceSignal   GuidanceSignal  `json:"guidanceSignal"`
	HardFuseTrigger  HardFuseTrigger `json:"hardFuseTrigger,omitempty"`
	DecisionHash     string          `json:"decisionHash"`
}

// AcceptedEvidence is an append-only record of one accepted candidate.
// Once appended it is immutable and is never evicted from the tracker's
// evidence log.
type AcceptedEvidence struct {
	CandidateID  string `json:"candidateId"`
	TimestampMs  int64  `json:"timestampMs"`
	EEBDelta     float64 `json:"eebDelta"`
}

// CapacityMetrics is the snapshot emitted on every tracker commit.
type CapacityMetrics struct {
	PatchCountShadow         int64                  `json:"patchCountShadow"`
	EEBRemaining             float64                `json:"eebRemaining"`
	EEBDelta                 float64                `json:"eebDelta"`
	BuildMode                BuildMode              `json:"buildMode"`
	RejectReason             RejectReason           `json:"rejectReason,omitempty"`
	HardFuseTrigger          HardFuseTrigger        `json:"hardFuseTrigger,omitempty"`
	RejectReasonDistribution map[RejectReason]int64 `json:"rejectReasonDistribution"`
	InvariantViolationFlag   bool                   `json:"invariantViolationFlag"`
	SaturatedLatched         bool                   `json:"saturatedLatched"`
	SaturatedLatchedAtCount  int64                  `json:"saturatedLatchedAtPatchCount,omitempty"`
	SaturatedLatchedAtMs     int64                  `json:"saturatedLatchedAtTimestamp,omitempty"`
	SaturatedLatchedTrigger  HardFuseTrigger        `json:"saturatedLatchedTrigger,omitempty"`
	FlushFailure             bool                   `json:"flushFailure"`
	DecisionHash             string                 `json:"decisionHash"`
}
