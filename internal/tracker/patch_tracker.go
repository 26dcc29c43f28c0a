// Package tracker implements the single-writer admission and capacity
// authority: PatchTracker holds the session's counts, EEB, build mode,
// idempotency registry, and evidence log, and AdmissionController makes
// the pure accept/reject decision that feeds it. Plain struct fields
// plus atomic progress counters, a callback for side effects,
// everything serialized through one owner — but the tracker here goes
// further and serializes every mutation through a channel-based actor
// turn, since the commit must be a single uninterrupted critical
// section rather than merely atomic counters.
package tracker

import (
	"fmt"
	"math"
	"sync"

	"github.com/patchcore/scanengine/internal/canon"
	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/pkg/models"
)

// CommitResult is the outcome of a commit turn.
type CommitResult struct {
	AlreadyCommitted bool
	Metrics          models.CapacityMetrics
}

// Tracker is the single-writer capacity authority. All mutation happens
// inside run(), the actor's serialized turn; callers never touch fields
// directly. A Tracker is safe for concurrent use across goroutines
// precisely because every request is funneled through one channel.
type Tracker struct {
	constants ssot.Constants
	clock     ssot.Clock

	requests chan request
	done     chan struct{}
	once     sync.Once

	// Authority-owned state, touched only inside run().
	patchCountShadow int64
	eebRemaining     float64
	buildMode        models.BuildMode
	committed        map[string]models.CapacityMetrics
	evidence         []models.AcceptedEvidence
	rejectDist       map[models.RejectReason]int64
	invariantViol    bool

	saturatedLatched        bool
	saturatedLatchedAtCount int64
	saturatedLatchedAtMs    int64
	saturatedLatchedTrigger models.HardFuseTrigger

	flushFailure bool
}

type requestKind int

const (
	reqCommit requestKind = iota
	reqSnapshot
	reqReleaseSession
	reqRecordRejection
	reqDecisionSnapshot
	reqMarkFlushFailure
)

type request struct {
	kind       requestKind
	candidateID string
	evidence   models.AcceptedEvidence
	eebDelta   float64
	decision   models.AdmissionDecision
	reason     models.RejectReason
	reply      chan response
}

type response struct {
	result   CommitResult
	snapshot TrackerSnapshot
	err      error
}

// New starts a tracker actor with eebRemaining initialized once to
// constants.EEBBaseBudget.
func New(constants ssot.Constants, clock ssot.Clock) *Tracker {
	t := &Tracker{
		constants:    constants,
		clock:        clock,
		requests:     make(chan request),
		done:         make(chan struct{}),
		eebRemaining: constants.EEBBaseBudget,
		buildMode:    models.BuildModeNormal,
		committed:    make(map[string]models.CapacityMetrics),
		rejectDist:   make(map[models.RejectReason]int64),
	}
	go t.run()
	return t
}

// Close stops the actor loop. Callers must not issue further requests
// after Close.
func (t *Tracker) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *Tracker) run() {
	for {
		select {
		case req := <-t.requests:
			t.handle(req)
		case <-t.done:
			return
		}
	}
}

func (t *Tracker) handle(req request) {
	switch req.kind {
	case reqCommit:
		result, err := t.commitTurn(req.candidateID, req.evidence, req.eebDelta, req.decision)
		req.reply <- response{result: result, err: err}
	case reqSnapshot:
		req.reply <- response{result: CommitResult{Metrics: t.snapshotLocked()}}
	case reqReleaseSession:
		t.committed = make(map[string]models.CapacityMetrics)
		req.reply <- response{}
	case reqRecordRejection:
		t.rejectDist[req.reason]++
		req.reply <- response{}
	case reqDecisionSnapshot:
		req.reply <- response{snapshot: TrackerSnapshot{
			HardFuseTrigger:   t.hardFuseTrigger(),
			ShouldTriggerSoft: t.shouldTriggerSoftLimit(),
			BuildMode:         t.buildMode,
		}}
	case reqMarkFlushFailure:
		t.flushFailure = true
		req.reply <- response{}
	}
}

// hardFuseTrigger returns the hard-limit trigger currently in effect, if
// any, purely from current state (never from wall-clock or frame
// counters).
func (t *Tracker) hardFuseTrigger() models.HardFuseTrigger {
	if t.patchCountShadow >= t.constants.HardLimitPatchCount {
		return models.HardFusePatchCountHard
	}
	if t.eebRemaining <= t.constants.HardBudgetThreshold {
		return models.HardFuseEEBHard
	}
	return models.HardFuseNone
}

// shouldTriggerSoftLimit reports whether the soft thresholds have been
// crossed.
func (t *Tracker) shouldTriggerSoftLimit() bool {
	return t.patchCountShadow >= t.constants.SoftLimitPatchCount ||
		t.eebRemaining <= t.constants.SoftBudgetThreshold
}

// commitTurn is the 11-step commit protocol, executed entirely inside
// one actor turn.
func (t *Tracker) commitTurn(candidateID string, evidence models.AcceptedEvidence, eebDelta float64, decision models.AdmissionDecision) (CommitResult, error) {
	// 1. Idempotency check.
	if prior, ok := t.committed[candidateID]; ok {
		metrics := prior
		metrics.EEBDelta = 0
		return CommitResult{AlreadyCommitted: true, Metrics: metrics}, nil
	}

	// 2. Precondition.
	if eebDelta < t.constants.EEBMinQuantum {
		return CommitResult{}, fmt.Errorf("tracker: eebDelta %v below EEB_MIN_QUANTUM %v", eebDelta, t.constants.EEBMinQuantum)
	}

	// 3. Pre-validate.
	projected := t.eebRemaining - eebDelta
	if badFloat(projected) || projected < 0 || projected > t.constants.EEBBaseBudget {
		return CommitResult{}, fmt.Errorf("tracker: projected EEB %v out of range [0, %v]", projected, t.constants.EEBBaseBudget)
	}

	// 4. Append evidence.
	t.evidence = append(t.evidence, evidence)

	// 5. patchCountShadow += 1.
	t.patchCountShadow++

	// 6. Commit eebRemaining.
	t.eebRemaining = projected

	// 7. Post-validate invariants.
	t.checkInvariants()

	// 8. Update build mode latches.
	trigger := t.hardFuseTrigger()
	if trigger != models.HardFuseNone {
		t.buildMode = models.BuildModeSaturated
		if !t.saturatedLatched {
			t.saturatedLatched = true
			t.saturatedLatchedAtCount = t.patchCountShadow
			t.saturatedLatchedAtMs = t.clock.Now().UnixMilli()
			t.saturatedLatchedTrigger = trigger
		}
	} else if t.shouldTriggerSoftLimit() && t.buildMode == models.BuildModeNormal {
		t.buildMode = models.BuildModeDamping
	}

	// 9. Insert into committed set (metrics computed next, stored below).
	metrics := t.snapshotLocked()
	metrics.DecisionHash = decision.DecisionHash
	t.committed[candidateID] = metrics

	// 10/11. Return Committed(metrics).
	return CommitResult{Metrics: metrics}, nil
}

// badFloat reports NaN or Inf.
func badFloat(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// checkInvariants panics on violation, a defense-in-depth requirement.
// This runs inside the actor turn so a panic here is attributable to
// exactly the mutation that caused it.
func (t *Tracker) checkInvariants() {
	violated := false
	if badFloat(t.eebRemaining) {
		violated = true
	}
	if t.eebRemaining < 0 || t.eebRemaining > t.constants.EEBBaseBudget {
		violated = true
	}
	if t.patchCountShadow < 0 {
		violated = true
	}
	if t.saturatedLatched && t.buildMode != models.BuildModeSaturated {
		violated = true
	}
	if violated {
		t.invariantViol = true
		panic(fmt.Sprintf("tracker: invariant violation after commit (eebRemaining=%v patchCount=%d buildMode=%v saturatedLatched=%v)",
			t.eebRemaining, t.patchCountShadow, t.buildMode, t.saturatedLatched))
	}
}

func (t *Tracker) snapshotLocked() models.CapacityMetrics {
	dist := make(map[models.RejectReason]int64, len(t.rejectDist))
	for k, v := range t.rejectDist {
		dist[k] = v
	}
	m := models.CapacityMetrics{
		PatchCountShadow:         t.patchCountShadow,
		EEBRemaining:             t.eebRemaining,
		BuildMode:                t.buildMode,
		HardFuseTrigger:          t.hardFuseTrigger(),
		RejectReasonDistribution: dist,
		InvariantViolationFlag:   t.invariantViol,
		SaturatedLatched:         t.saturatedLatched,
		FlushFailure:             t.flushFailure,
	}
	if t.saturatedLatched {
		m.SaturatedLatchedAtCount = t.saturatedLatchedAtCount
		m.SaturatedLatchedAtMs = t.saturatedLatchedAtMs
		m.SaturatedLatchedTrigger = t.saturatedLatchedTrigger
	}
	return m
}

// CommitAcceptedEvidence runs the full commit protocol for an ACCEPTED
// decision, blocking until the actor turn completes.
func (t *Tracker) CommitAcceptedEvidence(candidateID string, evidence models.AcceptedEvidence, eebDelta float64, decision models.AdmissionDecision) (CommitResult, error) {
	reply := make(chan response, 1)
	t.requests <- request{
		kind:        reqCommit,
		candidateID: candidateID,
		evidence:    evidence,
		eebDelta:    eebDelta,
		decision:    decision,
		reply:       reply,
	}
	resp := <-reply
	return resp.result, resp.err
}

// Snapshot returns the current CapacityMetrics without mutating state.
func (t *Tracker) Snapshot() models.CapacityMetrics {
	reply := make(chan response, 1)
	t.requests <- request{kind: reqSnapshot, reply: reply}
	return (<-reply).result.Metrics
}

// RecordRejection increments the reject-reason distribution for reason.
// Rejections never mutate counts/EEB; this is purely for the capacity
// metrics' rejectReasonDistribution.
func (t *Tracker) RecordRejection(reason models.RejectReason) {
	reply := make(chan response, 1)
	t.requests <- request{kind: reqRecordRejection, reason: reason, reply: reply}
	<-reply
}

// ReleaseSession clears only the idempotency registry. Evidence,
// counters, and reject distribution remain for post-hoc audit.
func (t *Tracker) ReleaseSession() {
	reply := make(chan response, 1)
	t.requests <- request{kind: reqReleaseSession, reply: reply}
	<-reply
}

// DecisionSnapshot reads hardFuseTrigger, shouldTriggerSoftLimit, and
// buildMode atomically in one actor turn, the exact inputs
// AdmissionController needs before it can decide — taking them from one
// turn rather than two separate queries avoids a commit interleaving
// between reading the hard-fuse state and the soft-limit state.
func (t *Tracker) DecisionSnapshot() TrackerSnapshot {
	reply := make(chan response, 1)
	t.requests <- request{kind: reqDecisionSnapshot, reply: reply}
	return (<-reply).snapshot
}

// MarkFlushFailure records that a best-effort async persistence flush
// failed for some already-committed evidence. It never touches eebRemaining,
// patchCountShadow, or the idempotency registry — the commit that was
// flushed stays committed regardless.
func (t *Tracker) MarkFlushFailure() {
	reply := make(chan response, 1)
	t.requests <- request{kind: reqMarkFlushFailure, reply: reply}
	<-reply
}

// DecisionHashInputFor stamps a decision's DecisionHash field from its
// own fields, the canonical derivation internal/canon exposes.
func DecisionHashInputFor(d models.AdmissionDecision) string {
	return canon.DecisionHashFields(d)
}
