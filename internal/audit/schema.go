// Package audit implements the schema-versioned audit trace contract:
// per-event-type field validation, the trace lifecycle sequencer, scene
// and trace ID derivation, and an AuditTraceEmitter writing signed
// NDJSON, extending hash-chained audit discipline into a full
// multi-event sequence contract.
package audit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/patchcore/scanengine/pkg/models"
)

// SchemaVersion is the only value schemaVersion may carry.
const SchemaVersion = 1

// MaxEventIndex is the inclusive upper bound on the numeric part of an
// eventId.
const MaxEventIndex = 1_000_000

var hex64Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
var eventIDPattern = regexp.MustCompile(`^[0-9a-f]{64}:(0|[1-9][0-9]*)$`)

// isHex64 reports whether s is exactly 64 lowercase hex characters.
func isHex64(s string) bool { return hex64Pattern.MatchString(s) }

// containsControlOrPipe reports whether s contains a control byte
// (0x00-0x1F or 0x7F) or a literal '|', both forbidden everywhere in the
// trace contract.
func containsControlOrPipe(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '|' || c <= 0x1F || c == 0x7F {
			return true
		}
	}
	return false
}

// ValidatePipelineVersion enforces non-empty, no '|', no control bytes.
func ValidatePipelineVersion(v string) error {
	if v == "" {
		return fmt.Errorf("audit: pipelineVersion must not be empty")
	}
	if containsControlOrPipe(v) {
		return fmt.Errorf("audit: pipelineVersion contains a forbidden control byte or '|'")
	}
	return nil
}

// ValidateEventID checks the `<traceId>:<index>` shape and that index is
// within [0, MaxEventIndex].
func ValidateEventID(eventID string) error {
	if !eventIDPattern.MatchString(eventID) {
		return fmt.Errorf("audit: eventId %q does not match required shape", eventID)
	}
	parts := strings.SplitN(eventID, ":", 2)
	idx, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("audit: eventId index not parseable: %w", err)
	}
	if idx > MaxEventIndex {
		return fmt.Errorf("audit: eventId index %d exceeds max %d", idx, MaxEventIndex)
	}
	return nil
}

// EventIndex extracts the numeric suffix of an eventId already known to
// be well-formed (callers should run ValidateEventID first).
func EventIndex(eventID string) (int64, error) {
	parts := strings.SplitN(eventID, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("audit: malformed eventId %q", eventID)
	}
	return strconv.ParseInt(parts[1], 10, 64)
}

// ValidateGlobal checks the constraints shared by every event type:
// schemaVersion, hex fields, pipelineVersion, eventId shape, and the
// blanket "no '|' anywhere" rule over every string field that can carry
// free text.
func ValidateGlobal(e models.TraceEvent) error {
	if e.SchemaVersion != SchemaVersion {
		return fmt.Errorf("audit: schemaVersion %d, want %d", e.SchemaVersion, SchemaVersion)
	}
	if !isHex64(e.TraceID) {
		return fmt.Errorf("audit: traceId %q is not 64 lowercase hex chars", e.TraceID)
	}
	if !isHex64(e.SceneID) {
		return fmt.Errorf("audit: sceneId %q is not 64 lowercase hex chars", e.SceneID)
	}
	if !isHex64(e.PolicyHash) {
		return fmt.Errorf("audit: policyHash %q is not 64 lowercase hex chars", e.PolicyHash)
	}
	if err := ValidatePipelineVersion(e.PipelineVersion); err != nil {
		return err
	}
	if err := ValidateEventID(e.EventID); err != nil {
		return err
	}
	if !strings.HasPrefix(e.EventID, e.TraceID+":") {
		return fmt.Errorf("audit: eventId %q does not reference traceId %q", e.EventID, e.TraceID)
	}
	for _, in := range e.Inputs {
		if containsControlOrPipe(in) {
			return fmt.Errorf("audit: input %q contains a forbidden byte", in)
		}
	}
	for k, v := range e.ParamsSummary {
		if containsControlOrPipe(k) || containsControlOrPipe(v) {
			return fmt.Errorf("audit: paramsSummary entry %q=%q contains a forbidden byte", k, v)
		}
	}
	if e.ArtifactRef != "" && containsControlOrPipe(e.ArtifactRef) {
		return fmt.Errorf("audit: artifactRef contains a forbidden byte")
	}
	if containsControlOrPipe(e.ActionType) {
		return fmt.Errorf("audit: actionType %q contains a forbidden byte", e.ActionType)
	}
	for k, v := range e.BuildMeta {
		if containsControlOrPipe(k) || containsControlOrPipe(v) {
			return fmt.Errorf("audit: buildMeta entry %q=%q contains a forbidden byte", k, v)
		}
	}
	if e.Metrics != nil && containsControlOrPipe(e.Metrics.ErrorCode) {
		return fmt.Errorf("audit: metrics.errorCode contains a forbidden byte")
	}
	return nil
}

// ValidatePerEventType enforces the required/forbidden field table for
// e's specific event type.
func ValidatePerEventType(e models.TraceEvent) error {
	switch e.EventType {
	case models.EventTraceStart:
		return validateStart(e)
	case models.EventTraceStep:
		return validateStep(e)
	case models.EventTraceEnd:
		return validateEnd(e)
	case models.EventTraceFail:
		return validateFail(e)
	default:
		return fmt.Errorf("audit: unknown eventType %q", e.EventType)
	}
}

func validateStart(e models.TraceEvent) error {
	if e.ActionType != "" {
		return fmt.Errorf("audit: trace_start forbids actionType")
	}
	if e.Metrics != nil {
		return fmt.Errorf("audit: trace_start forbids metrics")
	}
	if len(e.Inputs) == 0 {
		return fmt.Errorf("audit: trace_start requires a non-empty inputs list")
	}
	if len(e.ParamsSummary) == 0 {
		return fmt.Errorf("audit: trace_start requires a non-empty paramsSummary")
	}
	if e.ArtifactRef != "" {
		return fmt.Errorf("audit: trace_start forbids artifactRef")
	}
	return nil
}

func validateStep(e models.TraceEvent) error {
	if e.ActionType == "" {
		return fmt.Errorf("audit: trace_step requires actionType")
	}
	if e.Metrics != nil {
		return fmt.Errorf("audit: trace_step forbids metrics")
	}
	if len(e.ParamsSummary) != 0 {
		return fmt.Errorf("audit: trace_step requires an empty paramsSummary")
	}
	if e.ArtifactRef != "" {
		return fmt.Errorf("audit: trace_step forbids artifactRef")
	}
	return nil
}

func validateEnd(e models.TraceEvent) error {
	if e.ActionType != "" {
		return fmt.Errorf("audit: trace_end forbids actionType")
	}
	if e.Metrics == nil {
		return fmt.Errorf("audit: trace_end requires metrics")
	}
	if !e.Metrics.Success {
		return fmt.Errorf("audit: trace_end requires metrics.success = true")
	}
	if e.Metrics.ErrorCode != "" {
		return fmt.Errorf("audit: trace_end forbids metrics.errorCode")
	}
	if len(e.Inputs) != 0 {
		return fmt.Errorf("audit: trace_end requires an empty inputs list")
	}
	if len(e.ParamsSummary) != 0 {
		return fmt.Errorf("audit: trace_end requires an empty paramsSummary")
	}
	return nil
}

func validateFail(e models.TraceEvent) error {
	if e.ActionType != "" {
		return fmt.Errorf("audit: trace_fail forbids actionType")
	}
	if e.Metrics == nil {
		return fmt.Errorf("audit: trace_fail requires metrics")
	}
	if e.Metrics.Success {
		return fmt.Errorf("audit: trace_fail requires metrics.success = false")
	}
	if e.Metrics.ErrorCode == "" {
		return fmt.Errorf("audit: trace_fail requires metrics.errorCode")
	}
	if e.Metrics.QualityScore != nil {
		return fmt.Errorf("audit: trace_fail forbids metrics.qualityScore")
	}
	if len(e.Inputs) != 0 {
		return fmt.Errorf("audit: trace_fail requires an empty inputs list")
	}
	if len(e.ParamsSummary) != 0 {
		return fmt.Errorf("audit: trace_fail requires an empty paramsSummary")
	}
	if e.ArtifactRef != "" {
		return fmt.Errorf("audit: trace_fail forbids artifactRef")
	}
	return nil
}

// Validate runs both the global and per-event-type checks.
func Validate(e models.TraceEvent) error {
	if err := ValidateGlobal(e); err != nil {
		return err
	}
	return ValidatePerEventType(e)
}
