package atlas

import (
	"fmt"

	"github.com/codeready-toolchain/governor/pkg/policy"
)

// RulesFromPolicyFile converts a PolicyFile's rule definitions into
// policy.Rule instances ready to be Mount()ed into a policy.Engine — this is
// the "policy rules inside an Atlas are treated as rule definitions to be
// mounted into the Policy Engine on demand" behavior from spec §4.2.
func RulesFromPolicyFile(pf PolicyFile) ([]policy.Rule, error) {
	rules := make([]policy.Rule, 0, len(pf.Rules))
	for _, def := range pf.Rules {
		r, err := ruleFromDef(def)
		if err != nil {
			return nil, fmt.Errorf("atlas: policy file %s: %w", pf.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func ruleFromDef(def RuleDef) (policy.Rule, error) {
	switch def.Kind {
	case "scope":
		return &policy.ScopeRule{RuleID: def.RuleID, Required: def.Required}, nil
	case "deny_pattern":
		return &policy.DenyPatternRule{RuleID: def.RuleID, Globs: def.Globs}, nil
	case "risk_approval":
		tiers := make(map[string]bool, len(def.Tiers))
		for _, t := range def.Tiers {
			tiers[t] = true
		}
		return &policy.RiskApprovalRule{RuleID: def.RuleID, Tiers: tiers}, nil
	case "rate_limit":
		return &policy.RateLimitRule{RuleID: def.RuleID, Max: def.Max, WindowSeconds: def.WindowSeconds}, nil
	case "redaction":
		return &policy.RedactionRule{RuleID: def.RuleID, FieldPatterns: def.FieldPatterns}, nil
	default:
		return nil, fmt.Errorf("unknown policy rule kind %q", def.Kind)
	}
}
