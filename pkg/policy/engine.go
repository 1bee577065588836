package policy

import "fmt"

// Engine evaluates a Context against an ordered rule set, folding partial
// decisions per spec §4.3's precedence algorithm.
type Engine struct {
	rules []Rule
}

// NewEngine constructs an Engine with the built-in default rules installed
// (spec §4.3 "Built-in default rules"), followed by any extra rules — e.g.
// ones mounted from an Atlas's policy files (spec §4.2).
func NewEngine(extra ...Rule) *Engine {
	e := &Engine{rules: DefaultRules()}
	e.rules = append(e.rules, extra...)
	return e
}

// Mount appends additional rules to the end of the evaluation order — used
// by pkg/runtime to mount an atlas's own policy-file rules "on
// demand" (spec §4.2).
func (e *Engine) Mount(rules ...Rule) {
	e.rules = append(e.rules, rules...)
}

// Evaluate runs every rule in insertion order and folds the result per
// spec §4.3:
//  1. any deny short-circuits immediately.
//  2. require_approval sets the running effect (can't be overridden by a
//     later allow_with_constraints, but a later deny still short-circuits).
//  3. allow_with_constraints only upgrades from allow; constraint maps merge
//     last-writer-wins, redaction sets union.
//  4. no partial decision at all ⇒ allow.
func (e *Engine) Evaluate(ctx Context) Decision {
	d := Decision{Effect: EffectAllow, Constraints: map[string]string{}}

	for _, rule := range e.rules {
		p := e.evaluateSafely(rule, ctx)
		if p == nil {
			continue
		}

		if p.violation != nil {
			d.Violations = append(d.Violations, *p.violation)
		}

		if p.effect == EffectDeny {
			d.Effect = EffectDeny
			d.RuleID = p.ruleID
			d.Reason = p.reason
			return d
		}

		if p.effect.rank() > d.Effect.rank() {
			// require_approval can upgrade from allow or
			// allow_with_constraints; allow_with_constraints can only
			// upgrade from allow (guaranteed by rank() ordering: rank 1
			// only beats rank 0).
			d.Effect = p.effect
			if p.ruleID != "" {
				d.RuleID = p.ruleID
			}
			if p.reason != "" {
				d.Reason = p.reason
			}
		}

		if p.requiresApproval {
			d.RequiresApproval = true
			if p.approvalReason != "" {
				d.ApprovalReason = p.approvalReason
			}
		}

		for k, v := range p.constraints {
			d.Constraints[k] = v // last-writer-wins
		}
		d.Redactions = unionStrings(d.Redactions, p.redactions)
	}

	return d
}

// evaluateSafely treats a panicking rule as a deny carrying that rule's id,
// per spec §4.3 failure semantics ("any exception inside a rule is treated
// as a deny with rule id = the throwing rule's id").
func (e *Engine) evaluateSafely(rule Rule, ctx Context) (result *partial) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%v", r)
			result = &partial{
				effect: EffectDeny,
				ruleID: rule.ID(),
				reason: msg,
				violation: &Violation{RuleID: rule.ID(), Message: msg, Severity: "error"},
			}
		}
	}()
	return rule.Evaluate(ctx)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
