package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/governor/pkg/apperr"
	"github.com/codeready-toolchain/governor/pkg/carp"
	"github.com/codeready-toolchain/governor/pkg/executor"
	"github.com/codeready-toolchain/governor/pkg/resolver"
)

// defaultGrantTTLSeconds bounds how long a grant materialized from a
// resolution's allowed actions stays valid before execute() must be called.
// Spec §6 lists no standalone grant-creation endpoint even though grant()
// is a first-class C6 operation (spec §4.6); resolveHandler closes that gap
// by granting every allowed action as part of resolve(), so execute()'s
// (resolution_id, action_id) lookup always has a candidate to find.
const defaultGrantTTLSeconds = 3600

func (s *Server) resolveHandler(c *gin.Context) {
	var envelope carp.Envelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		writeError(c, apperr.Validation("malformed CARP envelope: "+err.Error()))
		return
	}

	payloadBytes, err := json.Marshal(envelope.Payload)
	if err != nil {
		writeError(c, apperr.Validation("malformed resolve payload: "+err.Error()))
		return
	}
	var payload carp.ResolveRequestPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		writeError(c, apperr.Validation("malformed resolve payload: "+err.Error()))
		return
	}

	resp, err := s.rt.Resolver.Resolve(resolver.Request{
		Session:     envelope.Session,
		Atlas:       envelope.Atlas,
		Task:        payload.Task,
		Environment: payload.Environment,
		Preferences: payload.Preferences,
		Trace:       envelope.Trace,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	for _, action := range resp.Resolution.AllowedActions {
		_, grantErr := s.rt.Executor.Grant(executor.GrantRequest{
			SessionID:        envelope.Session.SessionID,
			TraceID:          resp.Trace.TraceID,
			SpanID:           resp.Trace.SpanID,
			ParentSpanID:     resp.Trace.ParentSpanID,
			ResolutionID:     resp.Resolution.ResolutionID,
			ActionID:         action.ActionID,
			Kind:             action.Kind,
			Adapter:          action.Adapter,
			Schema:           action.InputSchema,
			Constraints:      action.Constraints,
			RequiresApproval: action.RequiresApproval,
			TTLSeconds:       defaultGrantTTLSeconds,
			TimeoutMS:        action.TimeoutMS,
		})
		if grantErr != nil {
			writeError(c, grantErr)
			return
		}
	}

	out := carp.NewResponse(envelope.ID, resp.Session, resp.Atlas, resp.Resolution, resp.Trace)
	c.JSON(http.StatusOK, out)
}

func (s *Server) executeHandler(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("malformed request body: "+err.Error()))
		return
	}

	resp, err := s.rt.Executor.Execute(executor.ExecuteRequest{
		SessionID:    req.SessionID,
		ResolutionID: req.ResolutionID,
		ActionID:     req.ActionID,
		Parameters:   req.Parameters,
		TraceID:      req.TraceID,
		SpanID:       req.SpanID,
		ParentSpanID: req.ParentSpanID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	body := executeResponse{
		ExecutionID: resp.ExecutionID,
		Status:      string(resp.Status),
		Result:      resp.Result,
		DurationMS:  resp.DurationMS,
		Trace: traceRefDTO{
			TraceID:      resp.TraceID,
			SpanID:       resp.SpanID,
			ParentSpanID: req.ParentSpanID,
		},
	}
	if resp.Error != nil {
		body.Error = resp.Error
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) approveHandler(c *gin.Context) {
	var req approveActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("malformed request body: "+err.Error()))
		return
	}
	grantID := c.Param("grant_id")

	if err := s.rt.Executor.Approve(grantID, req.ApprovedBy, req.SessionID, req.TraceID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, approvalRecordResponse{
		GrantID:  grantID,
		Decision: "approved",
		By:       req.ApprovedBy,
	})
}

func (s *Server) rejectHandler(c *gin.Context) {
	var req rejectActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("malformed request body: "+err.Error()))
		return
	}
	grantID := c.Param("grant_id")

	if err := s.rt.Executor.Reject(grantID, req.RejectedBy, req.Reason, req.SessionID, req.TraceID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, approvalRecordResponse{
		GrantID:  grantID,
		Decision: "rejected",
		By:       req.RejectedBy,
		Reason:   req.Reason,
	})
}

func (s *Server) pendingApprovalsHandler(c *gin.Context) {
	sessionID := c.Query("session_id")
	pending := s.rt.Executor.ListPendingApprovals(sessionID)

	out := make([]pendingApproval, 0, len(pending))
	for _, ar := range pending {
		out = append(out, pendingApproval{
			GrantID:     ar.GrantID,
			SessionID:   ar.SessionID,
			Reason:      ar.Reason,
			RiskTier:    ar.RiskTier,
			RequestedBy: ar.RequestedBy,
			CreatedAt:   ar.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, pendingApprovalsResponse{Approvals: out, Count: len(out)})
}

func (s *Server) getExecutionHandler(c *gin.Context) {
	ex, err := s.rt.Executor.GetExecution(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	body := executeResponse{
		ExecutionID: ex.ExecutionID,
		Status:      string(ex.State),
		Result:      ex.Result,
		DurationMS:  ex.DurationMS,
		Trace: traceRefDTO{
			TraceID: ex.TraceID,
			SpanID:  ex.SpanID,
		},
	}
	if ex.Error != nil {
		body.Error = ex.Error
	}
	c.JSON(http.StatusOK, body)
}
