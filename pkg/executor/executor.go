package executor

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/governor/pkg/apperr"
	"github.com/codeready-toolchain/governor/pkg/bus"
	"github.com/codeready-toolchain/governor/pkg/carp"
	"github.com/codeready-toolchain/governor/pkg/model"
	"github.com/codeready-toolchain/governor/pkg/session"
)

// GrantRequest is the input to Grant. resolution_id/action_id identify what
// the grant authorizes; schema is the action's JSON-schema-shaped input
// contract snapshotted at grant time so later schema changes on the adapter
// don't retroactively affect an outstanding grant.
type GrantRequest struct {
	SessionID        string
	TraceID          string
	SpanID           string
	ParentSpanID     *string
	ResolutionID     string
	ActionID         string
	Kind             model.ActionKind
	Adapter          string
	Schema           map[string]any
	Constraints      []string
	RequiresApproval bool
	TTLSeconds       int
	TimeoutMS        int
}

// ExecuteRequest is the input to Execute (spec §4.6 Contract).
type ExecuteRequest struct {
	SessionID    string
	ResolutionID string
	ActionID     string
	Parameters   map[string]any
	TraceID      string
	SpanID       string
	ParentSpanID *string
}

// ExecuteResponse mirrors the execute() response shape from spec §6.
type ExecuteResponse struct {
	ExecutionID string
	Status      model.ExecutionState
	Result      map[string]any
	Error       *model.ExecutionError
	DurationMS  *int64
	TraceID     string
	SpanID      string
}

// grantRecord wraps a model.Grant with executor-private disposal state.
// Rejection isn't part of the spec's grant field list (spec §3), so it's
// tracked only inside the executor rather than leaking into the shared
// model type.
type grantRecord struct {
	grant    model.Grant
	rejected bool
}

// GrantStore durably mirrors grant creation. pkg/storage's in-memory and
// pgstore backends both satisfy this interface structurally.
type GrantStore interface {
	PutGrant(g model.Grant) error
}

// ExecutionStore durably mirrors execution records at every state change
// (pending, approved, running and the terminal state).
type ExecutionStore interface {
	PutExecution(e model.Execution) error
}

// Executor is the Action Executor (C6). It holds non-owning back-references
// to the bus and session manager, both owned by a single top-level Runtime
// (spec §9).
type Executor struct {
	mu         sync.Mutex
	grants     map[string]*grantRecord
	executions map[string]*model.Execution
	pending    map[string]*ApprovalRequest // keyed by grant_id
	grantLocks map[string]*sync.Mutex      // serializes invocations of the same grant
	handlers   map[string]Handler

	bus        *bus.Bus
	sessions   *session.Manager
	logger     *slog.Logger
	grantStore GrantStore
	execStore  ExecutionStore
}

// SetStores installs durable mirrors for grants and executions. Either
// argument may be nil to leave that mirror disabled.
func (e *Executor) SetStores(grants GrantStore, executions ExecutionStore) {
	e.grantStore = grants
	e.execStore = executions
}

// New constructs an Executor wired to b and sessions.
func New(b *bus.Bus, sessions *session.Manager, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		grants:     make(map[string]*grantRecord),
		executions: make(map[string]*model.Execution),
		pending:    make(map[string]*ApprovalRequest),
		grantLocks: make(map[string]*sync.Mutex),
		handlers:   make(map[string]Handler),
		bus:        b,
		sessions:   sessions,
		logger:     logger,
	}
}

// RegisterHandler installs the handler invoked for actionID. Unregistered
// actions fall back to passthroughHandler (spec §4.6 "Handler dispatch").
func (e *Executor) RegisterHandler(actionID string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[actionID] = h
}

// Grant materializes a grant from a resolution's allowed action.
func (e *Executor) Grant(req GrantRequest) (*model.Grant, error) {
	now := time.Now().UTC()
	g := model.Grant{
		GrantID:          uuid.New().String(),
		ResolutionID:     req.ResolutionID,
		ActionID:         req.ActionID,
		Kind:             req.Kind,
		Adapter:          req.Adapter,
		Schema:           req.Schema,
		Constraints:      append([]string(nil), req.Constraints...),
		RequiresApproval: req.RequiresApproval,
		TimeoutMS:        req.TimeoutMS,
		ExpiresAt:        now.Add(time.Duration(req.TTLSeconds) * time.Second),
		CreatedAt:        now,
	}

	e.mu.Lock()
	e.grants[g.GrantID] = &grantRecord{grant: g}
	e.grantLocks[g.GrantID] = &sync.Mutex{}
	e.mu.Unlock()

	if e.grantStore != nil {
		if err := e.grantStore.PutGrant(g); err != nil {
			e.logger.Error("executor: durable grant mirror write failed", "grant_id", g.GrantID, "error", err)
		}
	}

	e.emitGranted(req.TraceID, req.SessionID, req.SpanID, req.ParentSpanID, g, false, false)
	return &g, nil
}

// RequestApproval records an approval request for an outstanding grant.
func (e *Executor) RequestApproval(grantID, sessionID, traceID, reason, riskTier, requestedBy string) (*ApprovalRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.grants[grantID]; !ok {
		return nil, apperr.NotFound("grant", grantID)
	}
	ar := &ApprovalRequest{
		GrantID:     grantID,
		SessionID:   sessionID,
		Reason:      reason,
		RiskTier:    riskTier,
		RequestedBy: requestedBy,
		CreatedAt:   time.Now().UTC(),
	}
	e.pending[grantID] = ar
	return ar, nil
}

// Approve marks grantID approved. A rejected grant cannot be approved.
func (e *Executor) Approve(grantID, approver, sessionID, traceID string) error {
	e.mu.Lock()
	rec, ok := e.grants[grantID]
	if !ok {
		e.mu.Unlock()
		return apperr.NotFound("grant", grantID)
	}
	if rec.rejected {
		e.mu.Unlock()
		return apperr.New(apperr.KindForbidden, "grant was rejected: "+grantID)
	}
	now := time.Now().UTC()
	rec.grant.Approved = true
	rec.grant.ApprovedBy = &approver
	rec.grant.ApprovedAt = &now
	delete(e.pending, grantID)
	g := rec.grant
	e.mu.Unlock()

	e.emitGranted(traceID, sessionID, "", nil, g, true, false)
	return nil
}

// Reject marks grantID rejected; it can never be approved afterward.
func (e *Executor) Reject(grantID, rejecter, reason, sessionID, traceID string) error {
	e.mu.Lock()
	rec, ok := e.grants[grantID]
	if !ok {
		e.mu.Unlock()
		return apperr.NotFound("grant", grantID)
	}
	rec.rejected = true
	delete(e.pending, grantID)
	g := rec.grant
	e.mu.Unlock()

	e.emitGrantedWithReason(traceID, sessionID, "", nil, g, false, true, reason)
	return nil
}

// ListPendingApprovals returns every outstanding approval request, optionally
// narrowed to sessionID, ordered by creation time.
func (e *Executor) ListPendingApprovals(sessionID string) []*ApprovalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ApprovalRequest, 0, len(e.pending))
	for _, ar := range e.pending {
		if sessionID != "" && ar.SessionID != sessionID {
			continue
		}
		cp := *ar
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetExecution retrieves an execution record by id.
func (e *Executor) GetExecution(executionID string) (*model.Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executions[executionID]
	if !ok {
		return nil, apperr.NotFound("execution", executionID)
	}
	cp := *ex
	return &cp, nil
}

// Execute runs the pre-execution checks (spec §4.6) and, if they pass,
// dispatches to the registered handler (or the passthrough fallback),
// producing an addressable execution record regardless of outcome.
func (e *Executor) Execute(req ExecuteRequest) (*ExecuteResponse, error) {
	g, lock, err := e.lookupGrant(req.ResolutionID, req.ActionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if now.After(g.ExpiresAt) {
		return nil, apperr.Expired("grant", g.GrantID)
	}
	if g.RequiresApproval && !g.Approved {
		return nil, apperr.New(apperr.KindApproval, "action requires approval").WithRule(req.ActionID)
	}

	lock.Lock()
	defer lock.Unlock()

	paramsHash, err := carp.Hash(req.Parameters)
	if err != nil {
		return nil, err
	}

	execution := &model.Execution{
		ExecutionID:    uuid.New().String(),
		GrantID:        g.GrantID,
		SessionID:      req.SessionID,
		ActionID:       req.ActionID,
		Parameters:     req.Parameters,
		ParametersHash: paramsHash,
		State:          model.ExecPending,
		TraceID:        req.TraceID,
		SpanID:         req.SpanID,
	}
	e.storeExecution(execution)

	if err := validateParameters(req.ActionID, g.Schema, req.Parameters); err != nil {
		return e.failExecution(execution, "validation", err.Error(), req.TraceID, req.SessionID, req.SpanID, req.ParentSpanID, nil), nil
	}

	// Approval-gated grants pass through ExecApproved before running, so the
	// execution record itself reflects the Pending -> Approved -> Running
	// path (spec §4.6 DAG); ungated grants skip straight to Running since
	// there was never an approval state to record. By the time we reach
	// here g.Approved is already known true for gated grants (checked
	// above), so this is a record-keeping transition, not a new check.
	if g.RequiresApproval {
		execution.State = model.ExecApproved
		e.storeExecution(execution)
	}

	started := time.Now().UTC()
	execution.State = model.ExecRunning
	execution.StartedAt = &started
	e.storeExecution(execution)

	_, _ = e.bus.Emit("trace.action.invoked", req.TraceID, req.SessionID, map[string]any{
		"execution_id":    execution.ExecutionID,
		"grant_id":        g.GrantID,
		"action_id":       req.ActionID,
		"parameters_hash": paramsHash,
	}, spanOpts(req.SpanID, req.ParentSpanID))

	handler := e.handlerFor(req.ActionID)
	result, handlerErr := invokeHandlerWithTimeout(handler, req.ActionID, req.Parameters, g.TimeoutMS)
	if handlerErr != nil {
		return e.failExecution(execution, classifyError(handlerErr), handlerErr.Error(), req.TraceID, req.SessionID, req.SpanID, req.ParentSpanID, &started), nil
	}

	completed := time.Now().UTC()
	resultHash, err := carp.Hash(result)
	if err != nil {
		return e.failExecution(execution, "hashing", err.Error(), req.TraceID, req.SessionID, req.SpanID, req.ParentSpanID, &started), nil
	}
	durationMS := completed.Sub(started).Milliseconds()

	execution.State = model.ExecCompleted
	execution.Result = result
	execution.ResultHash = resultHash
	execution.CompletedAt = &completed
	execution.DurationMS = &durationMS
	e.storeExecution(execution)

	if e.sessions != nil {
		_ = e.sessions.IncrementActionCount(req.SessionID, false)
	}

	_, _ = e.bus.Emit("trace.action.completed", req.TraceID, req.SessionID, map[string]any{
		"execution_id": execution.ExecutionID,
		"duration_ms":  durationMS,
		"result_hash":  resultHash,
	}, spanOpts(req.SpanID, req.ParentSpanID))

	return &ExecuteResponse{
		ExecutionID: execution.ExecutionID,
		Status:      execution.State,
		Result:      result,
		DurationMS:  &durationMS,
		TraceID:     req.TraceID,
		SpanID:      req.SpanID,
	}, nil
}

// lookupGrant scans active grants for (resolutionID, actionID), picking the
// earliest-created non-expired match and logging a warning when more than
// one candidate exists (spec §4.6 "Grant lookup"). When every match has
// expired it reports Expired rather than NotFound.
func (e *Executor) lookupGrant(resolutionID, actionID string) (model.Grant, *sync.Mutex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	var candidates []*grantRecord
	var expired *grantRecord
	for _, rec := range e.grants {
		if rec.rejected {
			continue
		}
		if rec.grant.ResolutionID != resolutionID || rec.grant.ActionID != actionID {
			continue
		}
		if now.After(rec.grant.ExpiresAt) {
			expired = rec
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		if expired != nil {
			return model.Grant{}, nil, apperr.Expired("grant", expired.grant.GrantID)
		}
		return model.Grant{}, nil, apperr.NotFound("grant", resolutionID+"/"+actionID)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].grant.CreatedAt.Before(candidates[j].grant.CreatedAt)
	})
	if len(candidates) > 1 {
		e.logger.Warn("executor: multiple active grants for the same action, using earliest",
			"resolution_id", resolutionID, "action_id", actionID, "count", len(candidates))
	}
	chosen := candidates[0].grant
	return chosen, e.grantLocks[chosen.GrantID], nil
}

func (e *Executor) storeExecution(ex *model.Execution) {
	e.mu.Lock()
	cp := *ex
	e.executions[ex.ExecutionID] = &cp
	e.mu.Unlock()

	if e.execStore != nil {
		if err := e.execStore.PutExecution(cp); err != nil {
			e.logger.Error("executor: durable execution mirror write failed", "execution_id", ex.ExecutionID, "error", err)
		}
	}
}

func (e *Executor) failExecution(ex *model.Execution, errorType, message, traceID, sessionID, spanID string, parentSpanID *string, started *time.Time) *ExecuteResponse {
	completed := time.Now().UTC()
	ex.State = model.ExecFailed
	ex.Error = &model.ExecutionError{ErrorType: errorType, Message: message}
	ex.CompletedAt = &completed

	var durationMS *int64
	if started != nil {
		ex.StartedAt = started
		d := completed.Sub(*started).Milliseconds()
		ex.DurationMS = &d
		durationMS = &d
	}
	e.storeExecution(ex)

	if e.sessions != nil {
		_ = e.sessions.IncrementActionCount(sessionID, true)
	}

	_, _ = e.bus.Emit("trace.action.failed", traceID, sessionID, map[string]any{
		"execution_id": ex.ExecutionID,
		"error_type":   errorType,
		"error_message": message,
	}, spanOpts(spanID, parentSpanID))

	return &ExecuteResponse{
		ExecutionID: ex.ExecutionID,
		Status:      ex.State,
		Error:       ex.Error,
		DurationMS:  durationMS,
		TraceID:     traceID,
		SpanID:      spanID,
	}
}

func (e *Executor) handlerFor(actionID string) Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.handlers[actionID]; ok {
		return h
	}
	return passthroughHandler
}

func (e *Executor) emitGranted(traceID, sessionID, spanID string, parentSpanID *string, g model.Grant, approved, rejected bool) {
	e.emitGrantedWithReason(traceID, sessionID, spanID, parentSpanID, g, approved, rejected, "")
}

func (e *Executor) emitGrantedWithReason(traceID, sessionID, spanID string, parentSpanID *string, g model.Grant, approved, rejected bool, reason string) {
	payload := map[string]any{
		"grant_id":          g.GrantID,
		"resolution_id":     g.ResolutionID,
		"action_id":         g.ActionID,
		"requires_approval": g.RequiresApproval,
		"approved":          approved,
		"rejected":          rejected,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	_, _ = e.bus.Emit("trace.action.granted", traceID, sessionID, payload, spanOpts(spanID, parentSpanID))
}

func spanOpts(spanID string, parentSpanID *string) bus.EmitOptions {
	opts := bus.EmitOptions{SpanID: spanID}
	if parentSpanID != nil {
		opts.ParentSpanID = *parentSpanID
	}
	return opts
}

// passthroughHandler echoes parameters back as the result; intended for
// testing, per spec §4.6 "Handler dispatch".
func passthroughHandler(_ string, parameters map[string]any) (map[string]any, error) {
	return parameters, nil
}

// invokeHandler recovers from a handler panic and turns it into an error so
// a misbehaving handler can never take the executor down (spec §4.6 "Failure
// semantics").
func invokeHandler(h Handler, actionID string, parameters map[string]any) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &handlerPanic{value: r}
		}
	}()
	return h(actionID, parameters)
}

type handlerPanic struct{ value any }

func (p *handlerPanic) Error() string { return "handler panic" }

type handlerTimeout struct{ actionID string }

func (t *handlerTimeout) Error() string { return "handler timed out: " + t.actionID }

func classifyError(err error) string {
	switch err.(type) {
	case *handlerPanic:
		return "panic"
	case *handlerTimeout:
		return "timeout"
	default:
		return "handler_error"
	}
}

// invokeHandlerWithTimeout arms a timeout before dispatching the handler
// (spec §5 "Timeouts"): on timeout the execution fails with error_type
// "timeout" while the handler goroutine is left to finish in the
// background — no guarantee of interruption is made beyond cooperative
// cancellation, per spec §5 "Cancellation".
func invokeHandlerWithTimeout(h Handler, actionID string, parameters map[string]any, timeoutMS int) (map[string]any, error) {
	if timeoutMS <= 0 {
		return invokeHandler(h, actionID, parameters)
	}

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := invokeHandler(h, actionID, parameters)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-time.After(time.Duration(timeoutMS) * time.Millisecond):
		return nil, &handlerTimeout{actionID: actionID}
	}
}
