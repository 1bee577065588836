package bus

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/codeready-toolchain/governor/pkg/apperr"
)

// RuleKind is one of the four nondeterminism-rule flavors (spec §4.1.4).
type RuleKind string

const (
	RuleIgnore    RuleKind = "ignore"
	RuleNormalize RuleKind = "normalize"
	RuleMask      RuleKind = "mask"
	RulePattern   RuleKind = "pattern"
)

// NondeterminismRule describes how one field should be treated before two
// event sequences are compared. Field is a dotted path with '*' as a
// single-segment wildcard (e.g. "*.time", "*.span_id").
type NondeterminismRule struct {
	Field string   `json:"field"`
	Rule  RuleKind `json:"rule"`
	Value string   `json:"value,omitempty"` // pattern: regex; mask: replacement pattern
}

// DefaultRules are the built-in nondeterminism rules applied unless the
// manifest overrides them, per spec §4.1.4.
func DefaultRules() []NondeterminismRule {
	return []NondeterminismRule{
		{Field: "time", Rule: RuleIgnore},
		{Field: "*.time", Rule: RuleIgnore},
		{Field: "*.span_id", Rule: RuleNormalize},
		{Field: "*.execution_id", Rule: RuleNormalize},
	}
}

// Manifest is the on-disk replay manifest format (spec §6).
type Manifest struct {
	ManifestVersion    string                `json:"manifest_version"`
	TraceID            string                `json:"trace_id"`
	Name               string                `json:"name,omitempty"`
	Description        string                `json:"description,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	Artifacts          []Artifact            `json:"artifacts,omitempty"`
	Nondeterminism     []NondeterminismRule  `json:"nondeterminism"`
	ExpectedEvents     []Event               `json:"expected_events"`
	ExpectedEventCount int                   `json:"expected_event_count"`
	Tags               []string              `json:"tags,omitempty"`
}

// ExportManifest snapshots traceID's current event log into a manifest and
// writes it to path as JSON.
func (b *Bus) ExportManifest(traceID, path, name, description string, tags []string) (*Manifest, error) {
	tl, ok := b.peekTrace(traceID)
	if !ok {
		return nil, apperr.NotFound("trace", traceID)
	}
	tl.mu.Lock()
	events := make([]Event, len(tl.events))
	copy(events, tl.events)
	tl.mu.Unlock()

	m := &Manifest{
		ManifestVersion:    "1.0",
		TraceID:            traceID,
		Name:               name,
		Description:        description,
		CreatedAt:          time.Now().UTC(),
		Nondeterminism:     DefaultRules(),
		ExpectedEvents:     events,
		ExpectedEventCount: len(events),
		Tags:               tags,
	}

	if path != "" {
		raw, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("bus: marshal manifest: %w", err)
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return nil, fmt.Errorf("bus: write manifest: %w", err)
		}
	}
	return m, nil
}

// LoadManifest reads a manifest back from disk. load_manifest(save_manifest(m))
// == m structurally (spec §8 round-trip law); this is a plain JSON
// unmarshal, so that law holds as long as the shapes above are stable.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bus: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("bus: unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Difference describes one mismatch found while comparing two event lists.
type Difference struct {
	EventIndex int    `json:"event_index"`
	FieldPath  string `json:"field_path"`
	Expected   any    `json:"expected"`
	Actual     any    `json:"actual"`
	Severity   string `json:"severity"`
}

// CompareResult is the outcome of comparing a manifest's expected events
// against an actual run.
type CompareResult struct {
	Success       bool         `json:"success"`
	MatchedEvents int          `json:"matched_events"`
	Differences   []Difference `json:"differences"`
}

// Compare replays actual against m.ExpectedEvents, applying m.Nondeterminism
// to both sides before a recursive structural diff — same shape as
// a reference trace-replay comparator's approach: each rule
// transforms the matching field in place rather than skipping the field
// entirely, so an ignore rule removes it from both sides and a normalize/mask
// rule replaces it with a stable placeholder on both sides.
func Compare(expected, actual []Event, rules []NondeterminismRule) CompareResult {
	expRaw := toGenericList(expected)
	actRaw := toGenericList(actual)

	for _, r := range rules {
		applyRule(expRaw, r)
		applyRule(actRaw, r)
	}

	var diffs []Difference
	n := len(expRaw)
	if len(actRaw) > n {
		n = len(actRaw)
	}
	matched := 0
	for i := 0; i < n; i++ {
		if i >= len(expRaw) {
			diffs = append(diffs, Difference{EventIndex: i, FieldPath: "$", Expected: nil, Actual: actRaw[i], Severity: "error"})
			continue
		}
		if i >= len(actRaw) {
			diffs = append(diffs, Difference{EventIndex: i, FieldPath: "$", Expected: expRaw[i], Actual: nil, Severity: "error"})
			continue
		}
		before := len(diffs)
		diffs = diffWalk(expRaw[i], actRaw[i], "$", i, diffs)
		if len(diffs) == before {
			matched++
		}
	}

	return CompareResult{
		Success:       len(diffs) == 0,
		MatchedEvents: matched,
		Differences:   diffs,
	}
}

func toGenericList(events []Event) []any {
	out := make([]any, len(events))
	for i, ev := range events {
		raw, _ := json.Marshal(ev)
		var v any
		_ = json.Unmarshal(raw, &v)
		out[i] = v
	}
	return out
}

// applyRule mutates each event in place according to r. Field selector
// segments are matched literally except for '*' which matches any single
// segment (e.g. "*.span_id" matches trace.span_id).
func applyRule(events []any, r NondeterminismRule) {
	segments := strings.Split(r.Field, ".")
	for _, ev := range events {
		obj, ok := ev.(map[string]any)
		if !ok {
			continue
		}
		applyRuleAt(obj, segments, r)
	}
}

func applyRuleAt(obj map[string]any, segments []string, r NondeterminismRule) {
	if len(segments) == 0 {
		return
	}
	seg := segments[0]
	if seg == "*" {
		// Wildcard at this level matches every key here: descend into each
		// child object with the remaining path (so "*.span_id" reaches
		// trace.span_id).
		for _, next := range obj {
			if child, ok := next.(map[string]any); ok {
				applyRuleAt(child, segments[1:], r)
			}
		}
		return
	}
	if len(segments) == 1 {
		if _, exists := obj[seg]; !exists {
			return
		}
		switch r.Rule {
		case RuleIgnore:
			delete(obj, seg)
		case RuleNormalize:
			obj[seg] = fmt.Sprintf("<normalized:%s>", seg)
		case RuleMask:
			obj[seg] = maskValue(fmt.Sprint(obj[seg]), r.Value)
		case RulePattern:
			if re, err := regexp.Compile(r.Value); err == nil {
				if s, ok := obj[seg].(string); ok {
					obj[seg] = re.ReplaceAllString(s, "<pattern>")
				}
			}
		}
		return
	}
	next, ok := obj[seg]
	if !ok {
		return
	}
	if child, ok := next.(map[string]any); ok {
		applyRuleAt(child, segments[1:], r)
	}
}

func maskValue(value, pattern string) string {
	if pattern == "" {
		return "****"
	}
	return pattern
}

// diffWalk recursively compares two decoded JSON values, reporting every
// leaf mismatch.
func diffWalk(expected, actual any, path string, eventIndex int, diffs []Difference) []Difference {
	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return append(diffs, Difference{EventIndex: eventIndex, FieldPath: path, Expected: expected, Actual: actual, Severity: "error"})
		}
		for k, ev := range e {
			diffs = diffWalk(ev, a[k], path+"."+k, eventIndex, diffs)
		}
		for k := range a {
			if _, ok := e[k]; !ok {
				diffs = append(diffs, Difference{EventIndex: eventIndex, FieldPath: path + "." + k, Expected: nil, Actual: a[k], Severity: "error"})
			}
		}
		return diffs
	case []any:
		a, ok := actual.([]any)
		if !ok {
			return append(diffs, Difference{EventIndex: eventIndex, FieldPath: path, Expected: expected, Actual: actual, Severity: "error"})
		}
		n := len(e)
		if len(a) > n {
			n = len(a)
		}
		for i := 0; i < n; i++ {
			var ev, av any
			if i < len(e) {
				ev = e[i]
			}
			if i < len(a) {
				av = a[i]
			}
			diffs = diffWalk(ev, av, fmt.Sprintf("%s[%d]", path, i), eventIndex, diffs)
		}
		return diffs
	default:
		if expected != actual {
			diffs = append(diffs, Difference{EventIndex: eventIndex, FieldPath: path, Expected: expected, Actual: actual, Severity: "warn"})
		}
		return diffs
	}
}
