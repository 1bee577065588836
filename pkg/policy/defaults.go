package policy

// DefaultRules returns the built-in rules installed at engine construction
// (spec §4.3 "Built-in default rules"): a deny-pattern rule for obviously
// destructive globs, a risk-approval rule for risk_tier=="high", and a
// redaction rule for common secret-shaped metadata keys.
func DefaultRules() []Rule {
	return []Rule{
		&DenyPatternRule{
			RuleID: "builtin.deny.destructive",
			Globs: []string{
				"rm -rf *",
				"rm -rf /",
				"dd if=*",
				"mkfs.*",
				"*:(){:|:&};:*",
				"*.production.*",
				"DROP TABLE*",
				"DELETE FROM*",
			},
		},
		&RiskApprovalRule{
			RuleID: "builtin.approval.high_risk",
			Tiers:  map[string]bool{"high": true},
		},
		&RedactionRule{
			RuleID:        "builtin.redaction.secrets",
			FieldPatterns: []string{"password", "secret", "token", "api_key", "credential"},
		},
	}
}
