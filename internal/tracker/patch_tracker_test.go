package tracker

import (
	"testing"
	"time"

	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/pkg/models"
)

func testConstants() ssot.Constants {
	c := ssot.Default()
	c.EEBBaseBudget = 10.0
	c.EEBMinQuantum = 1.0
	c.SoftLimitPatchCount = 6
	c.HardLimitPatchCount = 8
	c.SoftBudgetThreshold = 4.0
	c.HardBudgetThreshold = 0.0
	return c
}

func acceptedDecision(id string, eebDelta float64) models.AdmissionDecision {
	return models.AdmissionDecision{
		CandidateID:    id,
		Classification: models.ClassificationAccepted,
		EEBDelta:       eebDelta,
		BuildMode:      models.BuildModeNormal,
	}
}

func TestCommitAppliesEEBAndPatchCount(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	decision := acceptedDecision("c1", 1.0)
	result, err := tr.CommitAcceptedEvidence("c1", models.AcceptedEvidence{CandidateID: "c1", EEBDelta: 1.0}, 1.0, decision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlreadyCommitted {
		t.Fatalf("expected first commit to not be AlreadyCommitted")
	}
	if result.Metrics.PatchCountShadow != 1 {
		t.Fatalf("expected patchCountShadow 1, got %d", result.Metrics.PatchCountShadow)
	}
	if result.Metrics.EEBRemaining != 9.0 {
		t.Fatalf("expected eebRemaining 9.0, got %v", result.Metrics.EEBRemaining)
	}
}

func TestCommitIsIdempotentByCandidateID(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	decision := acceptedDecision("dup1", 1.0)
	_, err := tr.CommitAcceptedEvidence("dup1", models.AcceptedEvidence{CandidateID: "dup1", EEBDelta: 1.0}, 1.0, decision)
	if err != nil {
		t.Fatalf("unexpected error on first commit: %v", err)
	}

	result, err := tr.CommitAcceptedEvidence("dup1", models.AcceptedEvidence{CandidateID: "dup1", EEBDelta: 1.0}, 1.0, decision)
	if err != nil {
		t.Fatalf("unexpected error on replayed commit: %v", err)
	}
	if !result.AlreadyCommitted {
		t.Fatalf("expected second commit with same candidateId to be AlreadyCommitted")
	}
	if result.Metrics.PatchCountShadow != 1 {
		t.Fatalf("expected patchCountShadow to remain 1 after replay, got %d", result.Metrics.PatchCountShadow)
	}
}

func TestCommitRejectsEEBDeltaBelowMinQuantum(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	decision := acceptedDecision("c2", 0.1)
	_, err := tr.CommitAcceptedEvidence("c2", models.AcceptedEvidence{CandidateID: "c2", EEBDelta: 0.1}, 0.1, decision)
	if err == nil {
		t.Fatalf("expected error for eebDelta below EEB_MIN_QUANTUM")
	}

	snap := tr.Snapshot()
	if snap.PatchCountShadow != 0 {
		t.Fatalf("expected no mutation on precondition failure, got patchCountShadow=%d", snap.PatchCountShadow)
	}
}

func TestCommitRejectsProjectedEEBOutOfRange(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	decision := acceptedDecision("c3", 50.0)
	_, err := tr.CommitAcceptedEvidence("c3", models.AcceptedEvidence{CandidateID: "c3", EEBDelta: 50.0}, 50.0, decision)
	if err == nil {
		t.Fatalf("expected error for a commit that would drive eebRemaining negative")
	}
}

func TestHardFuseLatchesSaturatedOnce(t *testing.T) {
	c := testConstants()
	c.HardLimitPatchCount = 2
	tr := New(c, ssot.NewSteppedClock(time.Unix(100, 0), time.Second))
	defer tr.Close()

	for i := 0; i < 2; i++ {
		id := "p" + string(rune('a'+i))
		decision := acceptedDecision(id, 1.0)
		if _, err := tr.CommitAcceptedEvidence(id, models.AcceptedEvidence{CandidateID: id, EEBDelta: 1.0}, 1.0, decision); err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
	}

	snap := tr.Snapshot()
	if snap.BuildMode != models.BuildModeSaturated {
		t.Fatalf("expected SATURATED build mode after hitting hard patch count, got %v", snap.BuildMode)
	}
	if !snap.SaturatedLatched {
		t.Fatalf("expected saturatedLatched to be true")
	}
	firstLatchCount := snap.SaturatedLatchedAtCount
	firstLatchMs := snap.SaturatedLatchedAtMs

	// A further commit attempt (even one that would itself fail) must not
	// move the latch fields: they are one-shot, set only on the turn the
	// SATURATED state was first entered.
	decision := acceptedDecision("p-extra", 1.0)
	tr.CommitAcceptedEvidence("p-extra", models.AcceptedEvidence{CandidateID: "p-extra", EEBDelta: 1.0}, 1.0, decision)

	snap2 := tr.Snapshot()
	if snap2.SaturatedLatchedAtCount != firstLatchCount {
		t.Fatalf("expected latch count to stay at %d, got %d", firstLatchCount, snap2.SaturatedLatchedAtCount)
	}
	if snap2.SaturatedLatchedAtMs != firstLatchMs {
		t.Fatalf("expected latch timestamp to stay at %d, got %d", firstLatchMs, snap2.SaturatedLatchedAtMs)
	}
}

func TestBuildModeEntersDampingAtSoftLimit(t *testing.T) {
	c := testConstants()
	c.SoftLimitPatchCount = 1
	c.HardLimitPatchCount = 100
	c.SoftBudgetThreshold = 100.0
	tr := New(c, ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	decision := acceptedDecision("d1", 1.0)
	tr.CommitAcceptedEvidence("d1", models.AcceptedEvidence{CandidateID: "d1", EEBDelta: 1.0}, 1.0, decision)

	snap := tr.Snapshot()
	if snap.BuildMode != models.BuildModeDamping {
		t.Fatalf("expected DAMPING after crossing soft patch count, got %v", snap.BuildMode)
	}
}

func TestRecordRejectionUpdatesDistributionWithoutMutatingCounts(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	tr.RecordRejection(models.RejectReasonDuplicate)
	tr.RecordRejection(models.RejectReasonDuplicate)
	tr.RecordRejection(models.RejectReasonHardCap)

	snap := tr.Snapshot()
	if snap.PatchCountShadow != 0 {
		t.Fatalf("expected rejections to leave patchCountShadow at 0, got %d", snap.PatchCountShadow)
	}
	if snap.RejectReasonDistribution[models.RejectReasonDuplicate] != 2 {
		t.Fatalf("expected 2 duplicate rejections recorded, got %d", snap.RejectReasonDistribution[models.RejectReasonDuplicate])
	}
	if snap.RejectReasonDistribution[models.RejectReasonHardCap] != 1 {
		t.Fatalf("expected 1 hard-cap rejection recorded, got %d", snap.RejectReasonDistribution[models.RejectReasonHardCap])
	}
}

func TestReleaseSessionClearsOnlyIdempotencyRegistry(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	decision := acceptedDecision("r1", 1.0)
	tr.CommitAcceptedEvidence("r1", models.AcceptedEvidence{CandidateID: "r1", EEBDelta: 1.0}, 1.0, decision)
	beforeCount := tr.Snapshot().PatchCountShadow

	tr.ReleaseSession()

	after := tr.Snapshot()
	if after.PatchCountShadow != beforeCount {
		t.Fatalf("expected ReleaseSession to leave patchCountShadow at %d, got %d", beforeCount, after.PatchCountShadow)
	}

	// Replaying the same candidateId after release must commit again (not
	// be treated as AlreadyCommitted), proving only the registry was wiped.
	result, err := tr.CommitAcceptedEvidence("r1", models.AcceptedEvidence{CandidateID: "r1", EEBDelta: 1.0}, 1.0, decision)
	if err != nil {
		t.Fatalf("unexpected error re-committing after ReleaseSession: %v", err)
	}
	if result.AlreadyCommitted {
		t.Fatalf("expected re-commit after ReleaseSession to not be AlreadyCommitted")
	}
}

func TestDecisionSnapshotReflectsHardFuseAndSoftLimitTogether(t *testing.T) {
	c := testConstants()
	c.SoftLimitPatchCount = 1
	c.HardLimitPatchCount = 2
	tr := New(c, ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	snap0 := tr.DecisionSnapshot()
	if snap0.HardFuseTrigger != models.HardFuseNone || snap0.ShouldTriggerSoft {
		t.Fatalf("expected no triggers before any commit, got %+v", snap0)
	}

	decision := acceptedDecision("s1", 1.0)
	tr.CommitAcceptedEvidence("s1", models.AcceptedEvidence{CandidateID: "s1", EEBDelta: 1.0}, 1.0, decision)

	snap1 := tr.DecisionSnapshot()
	if snap1.HardFuseTrigger != models.HardFuseNone {
		t.Fatalf("expected no hard fuse yet, got %v", snap1.HardFuseTrigger)
	}
	if !snap1.ShouldTriggerSoft {
		t.Fatalf("expected soft limit to trigger after crossing SoftLimitPatchCount")
	}

	decision2 := acceptedDecision("s2", 1.0)
	tr.CommitAcceptedEvidence("s2", models.AcceptedEvidence{CandidateID: "s2", EEBDelta: 1.0}, 1.0, decision2)

	snap2 := tr.DecisionSnapshot()
	if snap2.HardFuseTrigger != models.HardFusePatchCountHard {
		t.Fatalf("expected hard patch-count fuse to trip, got %v", snap2.HardFuseTrigger)
	}
}
