package audit

import (
	"fmt"
	"sync"

	"github.com/patchcore/scanengine/pkg/models"
)

// LifecycleState is one state of a trace's lifecycle: NotStarted ->
// Started -> (Stepping)* -> {Ended, Failed}. Ended and Failed are
// terminal.
type LifecycleState int

const (
	NotStarted LifecycleState = iota
	Started
	Ended
	Failed
)

func (s LifecycleState) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Started:
		return "Started"
	case Ended:
		return "Ended"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type traceState struct {
	lifecycle  LifecycleState
	traceID    string
	sceneID    string
	policyHash string
	lastIndex  int64
	haveIndex  bool
}

// SequenceValidator tracks per-trace lifecycle state and cross-event
// consistency (traceId/sceneId/policyHash pinned at trace_start,
// strictly increasing eventId indices). One validator instance is
// expected to serve every trace in a session; it is safe for concurrent
// use.
type SequenceValidator struct {
	mu     sync.Mutex
	traces map[string]*traceState
}

// NewSequenceValidator returns an empty validator.
func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{traces: make(map[string]*traceState)}
}

// Accept runs the full schema validation plus lifecycle/consistency
// checks for e, and if e is legal, records the new state. It returns an
// error describing the first violation found, without mutating state on
// failure.
func (v *SequenceValidator) Accept(e models.TraceEvent) error {
	if err := Validate(e); err != nil {
		return err
	}
	idx, err := EventIndex(e.EventID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	st, exists := v.traces[e.TraceID]

	switch e.EventType {
	case models.EventTraceStart:
		if exists {
			return fmt.Errorf("audit: duplicate trace_start for traceId %s", e.TraceID)
		}
		v.traces[e.TraceID] = &traceState{
			lifecycle:  Started,
			traceID:    e.TraceID,
			sceneID:    e.SceneID,
			policyHash: e.PolicyHash,
			lastIndex:  idx,
			haveIndex:  true,
		}
		return nil

	case models.EventTraceStep:
		if !exists {
			return fmt.Errorf("audit: trace_step before trace_start for traceId %s", e.TraceID)
		}
		if err := checkConsistency(st, e); err != nil {
			return err
		}
		if st.lifecycle != Started {
			return fmt.Errorf("audit: trace_step on a terminal trace (%s) for traceId %s", st.lifecycle, e.TraceID)
		}
		if err := checkIndexOrder(st, idx); err != nil {
			return err
		}
		st.lastIndex = idx
		return nil

	case models.EventTraceEnd:
		if !exists {
			return fmt.Errorf("audit: trace_end before trace_start for traceId %s", e.TraceID)
		}
		if err := checkConsistency(st, e); err != nil {
			return err
		}
		if st.lifecycle != Started {
			return fmt.Errorf("audit: trace_end on a terminal trace (%s) for traceId %s", st.lifecycle, e.TraceID)
		}
		if err := checkIndexOrder(st, idx); err != nil {
			return err
		}
		st.lastIndex = idx
		st.lifecycle = Ended
		return nil

	case models.EventTraceFail:
		if !exists {
			return fmt.Errorf("audit: trace_fail before trace_start for traceId %s", e.TraceID)
		}
		if err := checkConsistency(st, e); err != nil {
			return err
		}
		if st.lifecycle != Started {
			return fmt.Errorf("audit: trace_fail on a terminal trace (%s) for traceId %s", st.lifecycle, e.TraceID)
		}
		if err := checkIndexOrder(st, idx); err != nil {
			return err
		}
		st.lastIndex = idx
		st.lifecycle = Failed
		return nil

	default:
		return fmt.Errorf("audit: unknown eventType %q", e.EventType)
	}
}

func checkConsistency(st *traceState, e models.TraceEvent) error {
	if st.sceneID != e.SceneID {
		return fmt.Errorf("audit: sceneId mismatch for traceId %s: start had %s, event has %s", e.TraceID, st.sceneID, e.SceneID)
	}
	if st.policyHash != e.PolicyHash {
		return fmt.Errorf("audit: policyHash mismatch for traceId %s: start had %s, event has %s", e.TraceID, st.policyHash, e.PolicyHash)
	}
	return nil
}

func checkIndexOrder(st *traceState, idx int64) error {
	if st.haveIndex && idx <= st.lastIndex {
		return fmt.Errorf("audit: eventId index %d does not strictly increase past %d", idx, st.lastIndex)
	}
	return nil
}

// LifecycleOf returns the current lifecycle state for a traceId, or
// NotStarted if the validator has never seen it.
func (v *SequenceValidator) LifecycleOf(traceID string) LifecycleState {
	v.mu.Lock()
	defer v.mu.Unlock()
	if st, ok := v.traces[traceID]; ok {
		return st.lifecycle
	}
	return NotStarted
}
