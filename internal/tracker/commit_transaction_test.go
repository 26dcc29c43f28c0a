package tracker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/pkg/models"
)

func TestCommitTransactionRejectedDecisionSkipsCommit(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	ct := NewCommitTransaction(tr, ssot.NewSteppedClock(time.Unix(0, 0), time.Second), nil)
	decision := models.AdmissionDecision{
		CandidateID:    "reject1",
		Classification: models.ClassificationRejected,
		Reason:         models.RejectReasonHardCap,
	}

	outcome := ct.Apply(decision)
	if !outcome.Rejected {
		t.Fatalf("expected Rejected outcome for a REJECTED decision")
	}

	snap := tr.Snapshot()
	if snap.PatchCountShadow != 0 {
		t.Fatalf("expected no commit side effects for a rejected decision")
	}
	if snap.RejectReasonDistribution[models.RejectReasonHardCap] != 1 {
		t.Fatalf("expected the rejection to be recorded in the distribution")
	}
}

func TestCommitTransactionAcceptedDecisionCommitsAndFlushes(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	var mu sync.Mutex
	var flushed []models.AcceptedEvidence
	done := make(chan struct{}, 1)

	ct := NewCommitTransaction(tr, ssot.NewSteppedClock(time.Unix(0, 0), time.Second), func(e models.AcceptedEvidence) error {
		mu.Lock()
		flushed = append(flushed, e)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	decision := models.AdmissionDecision{
		CandidateID:    "acc1",
		Classification: models.ClassificationAccepted,
		EEBDelta:       1.0,
	}

	outcome := ct.Apply(decision)
	if outcome.Rejected {
		t.Fatalf("expected an accepted outcome")
	}
	if outcome.Result.Metrics.PatchCountShadow != 1 {
		t.Fatalf("expected patchCountShadow 1 after accepted commit, got %d", outcome.Result.Metrics.PatchCountShadow)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected async flush to run")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(flushed) != 1 || flushed[0].CandidateID != "acc1" {
		t.Fatalf("expected flush to be called once with candidate acc1, got %+v", flushed)
	}
}

func TestCommitTransactionFlushFailureMarksMetricsWithoutUnwindingCommit(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	done := make(chan struct{}, 1)
	ct := NewCommitTransaction(tr, ssot.NewSteppedClock(time.Unix(0, 0), time.Second), func(e models.AcceptedEvidence) error {
		done <- struct{}{}
		return errors.New("simulated flush failure")
	})

	decision := models.AdmissionDecision{
		CandidateID:    "flushfail1",
		Classification: models.ClassificationAccepted,
		EEBDelta:       1.0,
	}

	outcome := ct.Apply(decision)
	if outcome.Rejected {
		t.Fatalf("expected commit to succeed even though its flush will fail")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected async flush to run")
	}

	// Give the goroutine's MarkFlushFailure call a turn to land.
	time.Sleep(20 * time.Millisecond)

	snap := tr.Snapshot()
	if !snap.FlushFailure {
		t.Fatalf("expected flushFailure to be set after a failed async flush")
	}
	if snap.PatchCountShadow != 1 {
		t.Fatalf("expected the commit itself to remain intact despite flush failure, got patchCountShadow=%d", snap.PatchCountShadow)
	}
}

func TestCommitTransactionAlreadyCommittedSkipsFlush(t *testing.T) {
	tr := New(testConstants(), ssot.NewSteppedClock(time.Unix(0, 0), time.Second))
	defer tr.Close()

	var calls int
	var mu sync.Mutex
	ct := NewCommitTransaction(tr, ssot.NewSteppedClock(time.Unix(0, 0), time.Second), func(models.AcceptedEvidence) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	decision := models.AdmissionDecision{
		CandidateID:    "replay1",
		Classification: models.ClassificationAccepted,
		EEBDelta:       1.0,
	}

	ct.Apply(decision)
	time.Sleep(20 * time.Millisecond)
	ct.Apply(decision)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected flush to run exactly once across a replayed commit, got %d", calls)
	}
}
