package redact

import "regexp"

// CompiledPattern holds a pre-compiled regex pattern with its replacement,
// grounded on a pkg/masking/pattern.go-style shape but trimmed to a fixed
// built-in set (no per-adapter custom pattern registry) since the governance
// runtime redacts by content shape, not by MCP server configuration.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns are the value-shaped secrets scrubbed from atlas context
// block content before it is handed to a caller,
// alongside the Policy Engine's key-name-based RedactionRule (spec §4.3).
func builtinPatterns() []*CompiledPattern {
	return []*CompiledPattern{
		{
			Name:        "aws_access_key",
			Regex:       regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			Replacement: "[MASKED_AWS_ACCESS_KEY]",
		},
		{
			Name:        "aws_secret_key",
			Regex:       regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`),
			Replacement: "aws_secret_access_key=[MASKED_AWS_SECRET_KEY]",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`),
			Replacement: "Bearer [MASKED_TOKEN]",
		},
		{
			Name:        "private_key_block",
			Regex:       regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
			Replacement: "[MASKED_PRIVATE_KEY]",
		},
		{
			Name:        "generic_api_key_field",
			Regex:       regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token|credential)"?\s*[:=]\s*"[^"]{4,}"`),
			Replacement: "$1=\"[MASKED]\"",
		},
	}
}
