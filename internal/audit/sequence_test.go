package audit

import (
	"testing"

	"github.com/patchcore/scanengine/pkg/models"
)

func baseEvent(eventType models.EventType, index int) models.TraceEvent {
	e := startEvent()
	e.EventType = eventType
	e.EventID = e.TraceID + ":" + itoa(index)
	if eventType != models.EventTraceStart {
		e.Inputs = nil
		e.ParamsSummary = nil
	}
	if eventType == models.EventTraceStep {
		e.ActionType = "commit"
	}
	if eventType == models.EventTraceEnd {
		e.Metrics = &models.TraceMetrics{Success: true}
	}
	if eventType == models.EventTraceFail {
		e.Metrics = &models.TraceMetrics{Success: false, ErrorCode: "E_X"}
	}
	return e
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	n := i
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestSequenceHappyPath(t *testing.T) {
	v := NewSequenceValidator()
	if err := v.Accept(baseEvent(models.EventTraceStart, 0)); err != nil {
		t.Fatalf("trace_start rejected: %v", err)
	}
	if err := v.Accept(baseEvent(models.EventTraceStep, 1)); err != nil {
		t.Fatalf("trace_step rejected: %v", err)
	}
	if err := v.Accept(baseEvent(models.EventTraceEnd, 2)); err != nil {
		t.Fatalf("trace_end rejected: %v", err)
	}
	if v.LifecycleOf(sampleHex) != Ended {
		t.Fatalf("expected lifecycle Ended, got %v", v.LifecycleOf(sampleHex))
	}
}

func TestSequenceRejectsDuplicateStart(t *testing.T) {
	v := NewSequenceValidator()
	_ = v.Accept(baseEvent(models.EventTraceStart, 0))
	if err := v.Accept(baseEvent(models.EventTraceStart, 1)); err == nil {
		t.Fatalf("expected duplicate trace_start to be rejected")
	}
}

func TestSequenceRejectsStepBeforeStart(t *testing.T) {
	v := NewSequenceValidator()
	if err := v.Accept(baseEvent(models.EventTraceStep, 0)); err == nil {
		t.Fatalf("expected trace_step before trace_start to be rejected")
	}
}

func TestSequenceRejectsEventsAfterTerminal(t *testing.T) {
	v := NewSequenceValidator()
	_ = v.Accept(baseEvent(models.EventTraceStart, 0))
	_ = v.Accept(baseEvent(models.EventTraceEnd, 1))
	if err := v.Accept(baseEvent(models.EventTraceStep, 2)); err == nil {
		t.Fatalf("expected trace_step after Ended to be rejected")
	}
	if err := v.Accept(baseEvent(models.EventTraceFail, 3)); err == nil {
		t.Fatalf("expected trace_fail after Ended to be rejected")
	}
}

func TestSequenceRejectsNonIncreasingIndex(t *testing.T) {
	v := NewSequenceValidator()
	_ = v.Accept(baseEvent(models.EventTraceStart, 0))
	e := baseEvent(models.EventTraceStep, 0) // same index as start
	if err := v.Accept(e); err == nil {
		t.Fatalf("expected non-increasing eventId index to be rejected")
	}
}

func TestSequenceRejectsSceneIDMismatch(t *testing.T) {
	v := NewSequenceValidator()
	_ = v.Accept(baseEvent(models.EventTraceStart, 0))
	e := baseEvent(models.EventTraceStep, 1)
	e.SceneID = "b1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	if err := v.Accept(e); err == nil {
		t.Fatalf("expected sceneId mismatch to be rejected")
	}
}
