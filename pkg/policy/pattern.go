package policy

import (
	"regexp"
	"strings"
)

// compiledGlob is a glob string compiled once to an anchored, case-insensitive
// regex — grounded on a pkg/masking/pattern.go-style CompiledPattern,
// generalized from secret-masking patterns to deny-pattern matching.
type compiledGlob struct {
	source string
	re     *regexp.Regexp
}

// compileGlob turns a shell-style glob (*, ?, literal chars) into an anchored
// case-insensitive regex, per spec §4.3: "*"→".*", "?"→".", other chars
// escaped.
func compileGlob(glob string) (*compiledGlob, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	return &compiledGlob{source: glob, re: re}, nil
}

// compileGlobs compiles a list of globs, deduplicating identical source
// patterns the way resolvePatterns() in a masking service dedupes
// via a "seen" set before compiling.
func compileGlobs(globs []string) ([]*compiledGlob, error) {
	seen := make(map[string]bool, len(globs))
	out := make([]*compiledGlob, 0, len(globs))
	for _, g := range globs {
		if seen[g] {
			continue
		}
		seen[g] = true
		cg, err := compileGlob(g)
		if err != nil {
			return nil, err
		}
		out = append(out, cg)
	}
	return out, nil
}

func (c *compiledGlob) matches(s string) bool {
	return c.re.MatchString(s)
}

// normalizeGoal lowercases free text and collapses every run of
// non-alphanumeric characters into a single '.', then trims leading/trailing
// dots — spec §4.3's normalization so patterns like "*.production.*" match
// "Deploy to production environment" (invariant #6, spec §8).
func normalizeGoal(goal string) string {
	var b strings.Builder
	lastWasDot := false
	for _, r := range strings.ToLower(goal) {
		if isAlphaNumeric(r) {
			b.WriteRune(r)
			lastWasDot = false
			continue
		}
		if !lastWasDot {
			b.WriteByte('.')
			lastWasDot = true
		}
	}
	return strings.Trim(b.String(), ".")
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
