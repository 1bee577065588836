// Package bus implements the Telemetry Bus (C1): an append-only, per-trace
// event log with concurrent live subscribers and durable replay-manifest
// export. It is grounded on a pkg/events/manager.go-style connection
// manager — same per-trace locking discipline and drop-on-saturation
// subscriber fan-out, generalized from websocket connections to TRACE
// events.
package bus

import "time"

// ActorType identifies who produced a trace event.
type ActorType string

const (
	ActorRuntime ActorType = "runtime"
	ActorAgent   ActorType = "agent"
	ActorUser    ActorType = "user"
	ActorTool    ActorType = "tool"
)

// Severity is the trace event's log level.
type Severity string

const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Actor names the event's producer.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// Trace identifies the span an event belongs to.
type Trace struct {
	TraceID      string  `json:"trace_id"`
	SpanID       string  `json:"span_id"`
	ParentSpanID *string `json:"parent_span_id,omitempty"`
}

// AtlasRef pins an event to the atlas that was active when it was emitted.
type AtlasRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// Artifact is a content-addressed attachment on a trace event.
type Artifact struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	SHA256      string `json:"sha256"`
	ContentType string `json:"content_type"`
}

// Event is one immutable TRACE entry. Once appended it is never altered or
// reordered within its trace.
type Event struct {
	TraceVersion string         `json:"trace_version"`
	EventType    string         `json:"event_type"`
	Time         time.Time      `json:"time"`
	Trace        Trace          `json:"trace"`
	SessionID    string         `json:"session_id"`
	Atlas        *AtlasRef      `json:"atlas,omitempty"`
	Actor        Actor          `json:"actor"`
	Severity     Severity       `json:"severity"`
	Payload      map[string]any `json:"payload,omitempty"`
	Artifacts    []Artifact     `json:"artifacts,omitempty"`
}

// EmitOptions carries the optional fields accepted by Bus.Emit, mirroring
// the emit(...) contract in spec §4.1.
type EmitOptions struct {
	SpanID       string
	ParentSpanID string
	Atlas        *AtlasRef
	Actor        *Actor
	Severity     Severity
	Artifacts    []Artifact
}

// Filters narrows a get_events query (spec §4.1).
type Filters struct {
	Severity        Severity
	EventTypePrefix string
}
