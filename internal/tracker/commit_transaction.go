package tracker

import (
	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/pkg/models"
)

// FlushHandler persists a committed evidence record best-effort, outside
// the tracker's critical section. Its failure must never evict evidence,
// decrement counters, or refund EEB — CommitTransaction only folds the
// failure into CapacityMetrics.FlushFailure.
type FlushHandler func(models.AcceptedEvidence) error

// CommitOutcome is EvidenceCommitTransaction's result for a candidate.
type CommitOutcome struct {
	Rejected bool
	Decision models.AdmissionDecision
	Result   CommitResult
}

// CommitTransaction is the thin coordinator between an AdmissionController
// decision and the tracker's commit protocol.
type CommitTransaction struct {
	tracker *Tracker
	clock   ssot.Clock
	flush   FlushHandler
}

// NewCommitTransaction returns a coordinator writing through t, stamping
// evidence timestamps from clock, and best-effort flushing via flush
// (which may be nil to skip persistence entirely).
func NewCommitTransaction(t *Tracker, clock ssot.Clock, flush FlushHandler) *CommitTransaction {
	return &CommitTransaction{tracker: t, clock: clock, flush: flush}
}

// Apply processes decision: non-ACCEPTED decisions are recorded as
// rejections and returned as-is; ACCEPTED decisions are committed
// through the tracker and, on success, scheduled for an async flush
// without the caller awaiting it.
func (ct *CommitTransaction) Apply(decision models.AdmissionDecision) CommitOutcome {
	if decision.Classification != models.ClassificationAccepted {
		ct.tracker.RecordRejection(decision.Reason)
		return CommitOutcome{Rejected: true, Decision: decision}
	}

	evidence := models.AcceptedEvidence{
		CandidateID: decision.CandidateID,
		TimestampMs: ct.clock.Now().UnixMilli(),
		EEBDelta:    decision.EEBDelta,
	}

	result, err := ct.tracker.CommitAcceptedEvidence(decision.CandidateID, evidence, decision.EEBDelta, decision)
	if err != nil {
		// A commit precondition/validation failure on an ACCEPTED decision
		// is a programming error upstream (AdmissionController should never
		// produce an unpayable eebDelta); surfacing it as a rejection keeps
		// the caller's control flow uniform instead of panicking here.
		rejected := decision
		rejected.Classification = models.ClassificationRejected
		ct.tracker.RecordRejection(models.RejectReasonHardCap)
		return CommitOutcome{Rejected: true, Decision: rejected}
	}

	if ct.flush != nil && !result.AlreadyCommitted {
		go func() {
			if flushErr := ct.flush(evidence); flushErr != nil {
				ct.tracker.MarkFlushFailure()
			}
		}()
	}

	return CommitOutcome{Decision: decision, Result: result}
}
