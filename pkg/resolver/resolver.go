package resolver

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/governor/pkg/apperr"
	"github.com/codeready-toolchain/governor/pkg/atlas"
	"github.com/codeready-toolchain/governor/pkg/bus"
	"github.com/codeready-toolchain/governor/pkg/carp"
	"github.com/codeready-toolchain/governor/pkg/model"
	"github.com/codeready-toolchain/governor/pkg/policy"
	"github.com/codeready-toolchain/governor/pkg/redact"
	"github.com/codeready-toolchain/governor/pkg/session"
)

func jsonMarshal(v any) ([]byte, error) { return json.Marshal(v) }

// Resolver is the Resolver (C5). It holds non-owning back-references to the
// session manager, policy engine, atlas registry, and bus, all owned by a
// single top-level Runtime (spec §9).
type Resolver struct {
	Sessions *session.Manager
	Policies *policy.Engine
	Atlases  *atlas.Registry
	Bus      *bus.Bus
	Redactor *redact.Service
}

// New constructs a Resolver wired to the given subsystems. A redact.Service
// is installed by default so atlas-sourced context block content is scrubbed
// of secret-shaped values even if the caller forgets to set one; pass a
// Resolver{..., Redactor: nil} literal directly (not New) to opt out.
func New(sessions *session.Manager, policies *policy.Engine, atlases *atlas.Registry, b *bus.Bus) *Resolver {
	return &Resolver{Sessions: sessions, Policies: policies, Atlases: atlases, Bus: b, Redactor: redact.NewService()}
}

// Resolve implements spec §4.5's nine-step algorithm.
func (r *Resolver) Resolve(req Request) (*Response, error) {
	// Step 1: validate session. No events are emitted in this session's
	// trace when the session itself is invalid.
	sess, err := r.Sessions.Get(req.Session.SessionID)
	if err != nil {
		return nil, err
	}

	// Step 2: child span for this resolution.
	spanID := uuid.New().String()
	parent := req.Trace.SpanID
	if req.Trace.ParentSpanID != nil && *req.Trace.ParentSpanID != "" {
		parent = *req.Trace.ParentSpanID
	}
	traceID := sess.TraceID

	// Step 3.
	_, _ = r.Bus.Emit("trace.carp.resolve.requested", traceID, sess.SessionID, map[string]any{
		"goal":             req.Task.Goal,
		"risk_tier":        req.Task.RiskTier,
		"target_platforms": req.Task.TargetPlatforms,
	}, bus.EmitOptions{SpanID: spanID, ParentSpanID: parent})

	// Step 4.
	decision := r.Policies.Evaluate(policy.Context{
		SessionID: sess.SessionID,
		Principal: policy.Principal{Type: string(sess.Principal.Type), ID: sess.Principal.ID},
		Scopes:    sess.Scopes,
		RiskTier:  string(req.Task.RiskTier),
		Goal:      req.Task.Goal,
		Timestamp: time.Now().UTC(),
		Metadata:  req.Task.Constraints,
	})

	// Step 5.
	if decision.Effect == policy.EffectDeny {
		violationPayload := make([]map[string]any, 0, len(decision.Violations))
		for _, v := range decision.Violations {
			violationPayload = append(violationPayload, map[string]any{
				"rule_id": v.RuleID, "message": v.Message, "severity": v.Severity,
			})
		}
		_, _ = r.Bus.Emit("trace.carp.policy.denied", traceID, sess.SessionID, map[string]any{
			"rule_id":    decision.RuleID,
			"reason":     decision.Reason,
			"violations": violationPayload,
		}, bus.EmitOptions{SpanID: spanID, ParentSpanID: parent, Severity: bus.SeverityWarn})

		return nil, apperr.New(apperr.KindPolicyDenied, decision.Reason).WithRule(decision.RuleID)
	}

	// Step 6: assemble the resolution.
	var atlasModel *atlas.Atlas
	var capability string
	if req.Atlas != nil {
		atlasModel = r.Atlases.Get(req.Atlas.ID)
		if req.Atlas.Capability != nil {
			capability = *req.Atlas.Capability
		}
	}

	contextBlocks := r.buildContextBlocks(req, decision, atlasModel, capability)
	allowedActions := r.buildAllowedActions(atlasModel, capability, decision, req.Task.RiskTier)
	denylist := r.buildDenylist(atlasModel, decision)
	confidence := computeConfidence(decision, req.Task.RiskTier)

	var nextSteps []string
	if decision.RequiresApproval {
		nextSteps = []string{"request_approval", "poll_pending_approvals"}
	} else {
		nextSteps = []string{"execute"}
	}

	resolution := model.Resolution{
		ResolutionID:   uuid.New().String(),
		Confidence:     confidence,
		ContextBlocks:  contextBlocks,
		AllowedActions: allowedActions,
		Denylist:       denylist,
		MergeRules:     model.MergeRules{Conflict: model.ConflictLastWriteWins},
		NextSteps:      nextSteps,
	}

	// Step 7.
	if err := r.Sessions.IncrementResolutionCount(sess.SessionID); err != nil {
		return nil, err
	}

	// Step 8.
	_, _ = r.Bus.Emit("trace.carp.resolve.returned", traceID, sess.SessionID, map[string]any{
		"resolution_id":     resolution.ResolutionID,
		"confidence":        resolution.Confidence,
		"context_blocks":    len(resolution.ContextBlocks),
		"allowed_actions":   len(resolution.AllowedActions),
		"policy_effect":     decision.Effect,
		"requires_approval": decision.RequiresApproval,
	}, bus.EmitOptions{SpanID: spanID, ParentSpanID: parent})

	parentCopy := parent
	return &Response{
		Session:    req.Session,
		Atlas:      req.Atlas,
		Trace:      carp.TraceRef{TraceID: traceID, SpanID: spanID, ParentSpanID: &parentCopy},
		Resolution: resolution,
	}, nil
}

func (r *Resolver) buildContextBlocks(req Request, decision policy.Decision, a *atlas.Atlas, capability string) []model.ContextBlock {
	blocks := []model.ContextBlock{
		{
			BlockID:     "cra.agent-guidelines",
			Purpose:     "agent-guidelines",
			TTLSeconds:  3600,
			ContentType: model.ContentMarkdown,
			Content:     agentGuidelines(),
			SourceEvidence: model.SourceEvidence{Type: "builtin", Ref: "agent-guidelines"},
		},
		{
			BlockID:     "cra.task-context",
			Purpose:     "task-context",
			TTLSeconds:  1800,
			ContentType: model.ContentJSON,
			Content:     taskContextJSON(req.Task),
			SourceEvidence: model.SourceEvidence{Type: "request", Ref: "task"},
		},
	}

	if len(decision.Constraints) > 0 || len(decision.Redactions) > 0 || decision.RequiresApproval {
		blocks = append(blocks, model.ContextBlock{
			BlockID:     "cra.policy-context",
			Purpose:     "policy-context",
			TTLSeconds:  1800,
			ContentType: model.ContentJSON,
			Content:     policyContextJSON(decision),
			Redactions:  decision.Redactions,
			SourceEvidence: model.SourceEvidence{Type: "policy_decision", Ref: decision.RuleID},
		})
	}

	if a != nil {
		atlasBlocks := r.Atlases.ContextBlocksFor(a, capability)
		if r.Redactor != nil {
			for i := range atlasBlocks {
				atlasBlocks[i].Content = r.Redactor.Scrub(atlasBlocks[i].Content)
			}
		}
		blocks = append(blocks, atlasBlocks...)
	}

	return blocks
}

func (r *Resolver) buildAllowedActions(a *atlas.Atlas, capability string, decision policy.Decision, riskTier carp.RiskTier) []model.AllowedAction {
	if a == nil {
		return nil
	}
	actions := r.Atlases.AllowedActionsFor(a, capability)
	for i := range actions {
		actions[i].RequiresApproval = decision.RequiresApproval || riskTier == carp.RiskHigh || actions[i].RequiresApproval
	}
	return actions
}

func (r *Resolver) buildDenylist(a *atlas.Atlas, decision policy.Decision) []model.DenyRule {
	denylist := []model.DenyRule{
		{Pattern: "rm -rf *", Reason: "baseline: destructive filesystem operation"},
		{Pattern: "DROP TABLE*", Reason: "baseline: destructive schema operation"},
	}
	if a != nil {
		denylist = append(denylist, r.Atlases.DenyRulesFor(a)...)
	}
	for _, v := range decision.Violations {
		denylist = append(denylist, model.DenyRule{Pattern: v.RuleID, Reason: v.Message})
	}
	return denylist
}

// computeConfidence implements spec §4.5 step 6's confidence formula:
// starts at 0.85, multiplied by 0.9 if the policy added constraints, then
// capped by risk tier (medium ≤ 0.75, high ≤ 0.65), rounded to 2 decimals.
func computeConfidence(decision policy.Decision, riskTier carp.RiskTier) float64 {
	confidence := 0.85
	if len(decision.Constraints) > 0 {
		confidence *= 0.9
	}
	switch riskTier {
	case carp.RiskMedium:
		if confidence > 0.75 {
			confidence = 0.75
		}
	case carp.RiskHigh:
		if confidence > 0.65 {
			confidence = 0.65
		}
	}
	return math.Round(confidence*100) / 100
}

func agentGuidelines() string {
	return "# Agent Guidelines\n\nRequest only the actions your task requires. Respect every constraint attached to a granted action."
}

func taskContextJSON(t carp.Task) string {
	b, err := jsonMarshal(map[string]any{
		"goal":              t.Goal,
		"inputs":            t.Inputs,
		"constraints":       t.Constraints,
		"target_platforms":  t.TargetPlatforms,
		"risk_tier":         t.RiskTier,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}

func policyContextJSON(decision policy.Decision) string {
	b, err := jsonMarshal(map[string]any{
		"effect":            decision.Effect,
		"constraints":       decision.Constraints,
		"redactions":        decision.Redactions,
		"requires_approval": decision.RequiresApproval,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}
