package api

import "time"

// healthResponse is the body of GET /v1/health.
type healthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	CARPVersion   string    `json:"carp_version"`
	TraceVersion  string    `json:"trace_version"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// createSessionResponse is the body of POST /v1/sessions.
type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	TraceID   string    `json:"trace_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// endSessionResponse is the body of POST /v1/sessions/{id}/end.
type endSessionResponse struct {
	SessionID    string      `json:"session_id"`
	EndedAt      time.Time   `json:"ended_at"`
	TraceSummary interface{} `json:"trace_summary"`
}

// approvalRecordResponse is the body returned by the approve/reject endpoints.
type approvalRecordResponse struct {
	GrantID  string `json:"grant_id"`
	Decision string `json:"decision"`
	By       string `json:"by"`
	Reason   string `json:"reason,omitempty"`
}

// pendingApprovalsResponse is the body of GET /v1/carp/actions/pending.
type pendingApprovalsResponse struct {
	Approvals []pendingApproval `json:"approvals"`
	Count     int               `json:"count"`
}

type pendingApproval struct {
	GrantID     string    `json:"grant_id"`
	SessionID   string    `json:"session_id"`
	Reason      string    `json:"reason"`
	RiskTier    string    `json:"risk_tier"`
	RequestedBy string    `json:"requested_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// executeResponse is the shape spec §6 expects from execute().
type executeResponse struct {
	ExecutionID string         `json:"execution_id"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       any            `json:"error,omitempty"`
	DurationMS  *int64         `json:"duration_ms,omitempty"`
	Trace       traceRefDTO    `json:"trace"`
}

type traceRefDTO struct {
	TraceID      string  `json:"trace_id"`
	SpanID       string  `json:"span_id"`
	ParentSpanID *string `json:"parent_span_id,omitempty"`
}

// traceEventsResponse is the body of GET /v1/traces/{trace_id}/events.
type traceEventsResponse struct {
	TraceID    string `json:"trace_id"`
	Events     []any  `json:"events"`
	TotalCount int    `json:"total_count"`
	HasMore    bool   `json:"has_more"`
}
