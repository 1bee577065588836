// Package model holds the shared data-model types from spec §3 that more
// than one component produces or consumes: context blocks, allowed actions,
// deny rules, resolutions, grants, and executions. Session and trace-event
// types stay in pkg/session and pkg/bus respectively since each is owned
// exclusively by one component; these types cross component boundaries
// (Atlas Registry produces context blocks and allowed actions, the Resolver
// assembles them into a Resolution, the Executor turns allowed actions into
// grants and executions) so they live here to avoid import cycles.
package model

import "time"

// ActionKind is the kind of operation an allowed action performs.
type ActionKind string

const (
	ActionToolCall  ActionKind = "tool_call"
	ActionMCPCall   ActionKind = "mcp_call"
	ActionCLICommand ActionKind = "cli_command"
	ActionAgentTool ActionKind = "agent_tool"
)

// ContentType is the content type of a context block.
type ContentType string

const (
	ContentMarkdown ContentType = "markdown"
	ContentJSON     ContentType = "json"
	ContentPlain    ContentType = "plain"
	ContentPNG      ContentType = "png"
)

// SourceEvidence traces a context block back to the material it was built
// from.
type SourceEvidence struct {
	Type   string `json:"type"`
	Ref    string `json:"ref"`
	SHA256 string `json:"sha256,omitempty"`
}

// ContextBlock is a TTL-bounded unit of content returned to a caller.
type ContextBlock struct {
	BlockID        string         `json:"block_id"`
	Purpose        string         `json:"purpose"`
	TTLSeconds     int            `json:"ttl_seconds"`
	ContentType    ContentType    `json:"content_type"`
	Content        string         `json:"content"`
	Redactions     []string       `json:"redactions,omitempty"`
	SourceEvidence SourceEvidence `json:"source_evidence"`
}

// AllowedAction is one action a resolution grants the caller the ability to
// request execution of.
type AllowedAction struct {
	ActionID         string         `json:"action_id"`
	Kind             ActionKind     `json:"kind"`
	Adapter          string         `json:"adapter"`
	InputSchema      map[string]any `json:"input_schema"`
	Constraints      []string       `json:"constraints,omitempty"`
	RequiresApproval bool           `json:"requires_approval"`
	TimeoutMS        int            `json:"timeout_ms"`
}

// DenyRule is one denylist entry surfaced on a resolution.
type DenyRule struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
}

// ConflictPolicy governs how merge_rules resolve conflicting context.
type ConflictPolicy string

const (
	ConflictFail          ConflictPolicy = "fail"
	ConflictLastWriteWins ConflictPolicy = "last_write_wins"
	ConflictPriority      ConflictPolicy = "priority"
)

// MergeRules is the resolution's conflict-handling policy.
type MergeRules struct {
	Conflict ConflictPolicy `json:"conflict"`
}

// Resolution is the bounded bundle returned by the Resolver (spec §3/§4.5).
type Resolution struct {
	ResolutionID    string          `json:"resolution_id"`
	Confidence      float64         `json:"confidence"`
	ContextBlocks   []ContextBlock  `json:"context_blocks"`
	AllowedActions  []AllowedAction `json:"allowed_actions"`
	Denylist        []DenyRule      `json:"denylist"`
	MergeRules      MergeRules      `json:"merge_rules"`
	NextSteps       []string        `json:"next_steps"`
}

// Grant is an action permission materialized from a resolution, with its
// approval state.
type Grant struct {
	GrantID          string         `json:"grant_id"`
	ResolutionID     string         `json:"resolution_id"`
	ActionID         string         `json:"action_id"`
	Kind             ActionKind     `json:"kind"`
	Adapter          string         `json:"adapter"`
	Schema           map[string]any `json:"schema"`
	Constraints      []string       `json:"constraints,omitempty"`
	RequiresApproval bool           `json:"requires_approval"`
	Approved         bool           `json:"approved"`
	ApprovedBy       *string        `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`
	TimeoutMS        int            `json:"timeout_ms"`
	ExpiresAt        time.Time      `json:"expires_at"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ExecutionState is the linear DAG of states an execution passes through
// (spec §4.6).
type ExecutionState string

const (
	ExecPending   ExecutionState = "pending"
	ExecApproved  ExecutionState = "approved"
	ExecRunning   ExecutionState = "running"
	ExecCompleted ExecutionState = "completed"
	ExecFailed    ExecutionState = "failed"
	ExecCancelled ExecutionState = "cancelled"
	ExecRejected  ExecutionState = "rejected"
)

// ExecutionError is the classified error attached to a failed execution.
type ExecutionError struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"error_message"`
}

// Execution is one invocation record (spec §3).
type Execution struct {
	ExecutionID   string          `json:"execution_id"`
	GrantID       string          `json:"grant_id"`
	SessionID     string          `json:"session_id"`
	ActionID      string          `json:"action_id"`
	Parameters    map[string]any  `json:"parameters"`
	ParametersHash string         `json:"parameters_hash"`
	State         ExecutionState  `json:"state"`
	Result        map[string]any  `json:"result,omitempty"`
	ResultHash    string          `json:"result_hash,omitempty"`
	Error         *ExecutionError `json:"error,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	DurationMS    *int64          `json:"duration_ms,omitempty"`
	TraceID       string          `json:"trace_id"`
	SpanID        string          `json:"span_id"`
}
