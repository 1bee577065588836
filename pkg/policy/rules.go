package policy

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ScopeRule requires the caller to hold every scope in Required; otherwise
// it contributes a deny.
type ScopeRule struct {
	RuleID   string
	Required []string
}

func (r *ScopeRule) ID() string { return r.RuleID }

func (r *ScopeRule) Evaluate(ctx Context) *partial {
	have := make(map[string]bool, len(ctx.Scopes))
	for _, s := range ctx.Scopes {
		have[s] = true
	}
	var missing []string
	for _, need := range r.Required {
		if !have[need] {
			missing = append(missing, need)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	msg := fmt.Sprintf("missing required scopes: %v", missing)
	return &partial{
		effect: EffectDeny,
		ruleID: r.RuleID,
		reason: msg,
		violation: &Violation{RuleID: r.RuleID, Message: msg, Severity: "error"},
	}
}

// DenyPatternRule denies when the action id, resource, raw goal, or
// normalized goal matches any configured glob (spec §4.3 pattern matching).
type DenyPatternRule struct {
	RuleID string
	Globs  []string
	compiled []*compiledGlob
	once     sync.Once
	compileErr error
}

func (r *DenyPatternRule) ID() string { return r.RuleID }

func (r *DenyPatternRule) ensureCompiled() {
	r.once.Do(func() {
		r.compiled, r.compileErr = compileGlobs(r.Globs)
	})
}

func (r *DenyPatternRule) Evaluate(ctx Context) *partial {
	r.ensureCompiled()
	if r.compileErr != nil {
		panic(r.compileErr)
	}

	targets := []string{ctx.ActionID, ctx.Resource, ctx.Goal, normalizeGoal(ctx.Goal)}
	for _, cg := range r.compiled {
		for _, target := range targets {
			if target == "" {
				continue
			}
			if cg.matches(target) {
				msg := fmt.Sprintf("matched deny pattern %q", cg.source)
				return &partial{
					effect: EffectDeny,
					ruleID: r.RuleID,
					reason: msg,
					violation: &Violation{RuleID: r.RuleID, Message: msg, Severity: "error"},
				}
			}
		}
	}
	return nil
}

// RiskApprovalRule requires approval whenever the context's risk tier is in
// Tiers.
type RiskApprovalRule struct {
	RuleID string
	Tiers  map[string]bool
}

func (r *RiskApprovalRule) ID() string { return r.RuleID }

func (r *RiskApprovalRule) Evaluate(ctx Context) *partial {
	if !r.Tiers[ctx.RiskTier] {
		return nil
	}
	reason := fmt.Sprintf("risk tier %q requires approval", ctx.RiskTier)
	return &partial{
		effect:          EffectRequireApproval,
		ruleID:          r.RuleID,
		reason:          reason,
		requiresApproval: true,
		approvalReason:  reason,
	}
}

// RedactionRule flags every metadata key containing (case-insensitively) any
// of FieldPatterns as needing redaction.
type RedactionRule struct {
	RuleID        string
	FieldPatterns []string
}

func (r *RedactionRule) ID() string { return r.RuleID }

func (r *RedactionRule) Evaluate(ctx Context) *partial {
	var hits []string
	for key := range ctx.Metadata {
		lower := strings.ToLower(key)
		for _, pat := range r.FieldPatterns {
			if strings.Contains(lower, strings.ToLower(pat)) {
				hits = append(hits, key)
				break
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}
	return &partial{
		effect:     EffectAllowWithConstraints,
		ruleID:     r.RuleID,
		redactions: hits,
	}
}

// RateLimitRule enforces a sliding-window counter keyed by
// (principal_id, action_id or "any"). State is process-local (spec §9 open
// question resolution).
type RateLimitRule struct {
	RuleID       string
	Max          int
	WindowSeconds int

	mu    sync.Mutex
	hits  map[string][]time.Time
}

func (r *RateLimitRule) ID() string { return r.RuleID }

func (r *RateLimitRule) Evaluate(ctx Context) *partial {
	action := ctx.ActionID
	if action == "" {
		action = "any"
	}
	key := ctx.Principal.ID + "|" + action

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hits == nil {
		r.hits = make(map[string][]time.Time)
	}

	now := ctx.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	window := time.Duration(r.WindowSeconds) * time.Second
	cutoff := now.Add(-window)

	existing := r.hits[key]
	kept := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.Max {
		r.hits[key] = kept
		msg := fmt.Sprintf("rate limit exceeded for %s: %d/%d in %ds", key, len(kept), r.Max, r.WindowSeconds)
		return &partial{
			effect: EffectDeny,
			ruleID: r.RuleID,
			reason: msg,
			violation: &Violation{RuleID: r.RuleID, Message: msg, Severity: "error"},
		}
	}

	r.hits[key] = append(kept, now)
	return nil
}
