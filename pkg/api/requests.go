package api

// createSessionRequest is the body of POST /v1/sessions.
type createSessionRequest struct {
	Principal struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Org  string `json:"org"`
	} `json:"principal"`
	Scopes     []string `json:"scopes"`
	TTLSeconds int      `json:"ttl_seconds"`
}

// approveActionRequest is the body of POST /v1/carp/actions/{grant_id}/approve.
type approveActionRequest struct {
	GrantID    string `json:"grant_id"`
	SessionID  string `json:"session_id"`
	TraceID    string `json:"trace_id"`
	ApprovedBy string `json:"approved_by"`
}

// rejectActionRequest is the body of POST /v1/carp/actions/{grant_id}/reject.
type rejectActionRequest struct {
	GrantID    string `json:"grant_id"`
	SessionID  string `json:"session_id"`
	TraceID    string `json:"trace_id"`
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
}

// executeRequest is the body of POST /v1/carp/execute.
type executeRequest struct {
	SessionID    string         `json:"session_id"`
	ResolutionID string         `json:"resolution_id"`
	ActionID     string         `json:"action_id"`
	Parameters   map[string]any `json:"parameters"`
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id,omitempty"`
}
