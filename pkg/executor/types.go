// Package executor implements the Action Executor (C6): materializes grants
// from resolutions, tracks approval state, validates and dispatches
// invocations, and emits the invoke/complete/fail event triad. Grounded on
// this module's pkg/session (mutex-guarded map keyed by id, uuid.New
// identifiers) generalized from chat sessions to action grants/executions,
// and on a reference executor implementation for the
// pre-execution check ordering and state machine.
package executor

import "time"

// Handler performs one action invocation and returns its result, or an error
// classified by the executor into an ExecutionError.
type Handler func(actionID string, parameters map[string]any) (map[string]any, error)

// ApprovalRequest is the record created by request_approval (spec §4.6).
type ApprovalRequest struct {
	GrantID     string    `json:"grant_id"`
	SessionID   string    `json:"session_id"`
	Reason      string    `json:"reason"`
	RiskTier    string    `json:"risk_tier"`
	RequestedBy string    `json:"requested_by"`
	CreatedAt   time.Time `json:"created_at"`
}
