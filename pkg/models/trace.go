package models

// EventType names one of the four audit trace event kinds. A trace is an
// ordered sequence of events sharing a traceId.
type EventType string

const (
	EventTraceStart EventType = "trace_start"
	EventTraceStep  EventType = "trace_step"
	EventTraceEnd   EventType = "trace_end"
	EventTraceFail  EventType = "trace_fail"
)

// TraceMetrics is the required (on end/fail) or forbidden (on start/step)
// outcome block of a trace event.
type TraceMetrics struct {
	Success      bool     `json:"success"`
	ErrorCode    string   `json:"errorCode,omitempty"`
	QualityScore *float64 `json:"qualityScore,omitempty"`
}

// TraceEvent is one entry in the schema-versioned audit trace contract.
// schemaVersion is fixed at 1; eventId has the form "<traceId>:<index>".
type TraceEvent struct {
	SchemaVersion   int               `json:"schemaVersion"`
	EventType       EventType         `json:"eventType"`
	EntryType       string            `json:"entryType"`
	TraceID         string            `json:"traceId"`
	SceneID         string            `json:"sceneId"`
	EventID         string            `json:"eventId"`
	PolicyHash      string            `json:"policyHash"`
	PipelineVersion string            `json:"pipelineVersion"`
	ActionType      string            `json:"actionType,omitempty"`
	Inputs          []string          `json:"inputs"`
	ParamsSummary   map[string]string `json:"paramsSummary"`
	Metrics         *TraceMetrics     `json:"metrics,omitempty"`
	ArtifactRef     string            `json:"artifactRef,omitempty"`
	BuildMeta       map[string]string `json:"buildMeta"`
}

// TraceInput identifies one scene input path plus the content fields that
// feed traceId derivation (path + contentHash only — byteSize is carried
// for display but ignored by the hash per spec).
type TraceInput struct {
	Path        string `json:"path"`
	ContentHash string `json:"contentHash"`
	ByteSize    int64  `json:"byteSize"`
}
