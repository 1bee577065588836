// Package redact scrubs secret-shaped content out of text before it leaves
// the runtime; the Resolver applies it to atlas context-block content (tool-call
// results and trace event artifacts are not scrubbed). It is grounded on a pkg/masking-style package's two-phase
// "structural maskers then regex sweep" pipeline, generalized from
// per-MCP-server masking configuration to a fixed pipeline the governance
// runtime always applies, since content redaction here is a safety net
// alongside — not a replacement for — the Policy Engine's declarative
// RedactionRule (spec §4.3), which operates on metadata key names rather
// than on value content.
//
// No structural Masker ships built in: the governance runtime's tool-call
// results and context blocks are free-form text/JSON, not a manifest format
// with a fixed, parseable secret shape, so the regex sweep in pattern.go
// carries the whole content-redaction load. The Masker interface stays as
// the extension point a future adapter-specific structured secret shape
// would plug into.
package redact

// Masker is a structurally-aware scrubber: it inspects content before
// deciding whether to touch it (AppliesTo) and, when it applies, rewrites
// only the parts of the content that carry secrets (Mask), returning the
// input unchanged on any parse/processing error — never fail-open beyond
// "unchanged", and never panic.
type Masker interface {
	Name() string
	AppliesTo(content string) bool
	Mask(content string) string
}

// Service applies every registered Masker, then every built-in regex
// pattern, to a piece of content. The zero value is not usable; construct
// with NewService.
type Service struct {
	maskers  []Masker
	patterns []*CompiledPattern
}

// NewService constructs a Service with the built-in patterns installed and
// no structural maskers registered (see package doc).
func NewService() *Service {
	return &Service{
		patterns: builtinPatterns(),
	}
}

// Scrub applies structural maskers first (more specific, shape-aware), then
// the regex pattern sweep (general-purpose), returning the fully redacted
// content. Empty input is returned unchanged.
func (s *Service) Scrub(content string) string {
	if content == "" {
		return content
	}
	out := content
	for _, m := range s.maskers {
		if m.AppliesTo(out) {
			out = m.Mask(out)
		}
	}
	for _, p := range s.patterns {
		out = p.Regex.ReplaceAllString(out, p.Replacement)
	}
	return out
}
