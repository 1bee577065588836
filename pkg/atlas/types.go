// Package atlas implements the Atlas Registry (C2): loading, validating,
// and caching capability packages (manifest + context packs + policy files
// + adapter descriptors), grounded on a pkg/config/loader.go-style
// Initialize/load/validate pipeline — generalized from "load the whole
// application's YAML config tree" to "load one capability-package directory
// bundle", including its env-var expansion and its cache-by-path discipline.
package atlas

import "github.com/codeready-toolchain/governor/pkg/model"

// ContentType mirrors model.ContentType for a raw context pack file, before
// it is turned into a model.ContextBlock by the Resolver.
type ContentType = model.ContentType

// ContextPack is one raw context file attached to an atlas.
type ContextPack struct {
	Path        string      `yaml:"path"`
	ContentType ContentType `yaml:"-"`
	Content     string      `yaml:"-"`
}

// RuleDef is the on-disk representation of one policy rule, tagged by Kind.
// Parsed into a policy.Rule by RulesFromPolicyFile/ruleFromDef in policy.go.
type RuleDef struct {
	Kind          string   `yaml:"kind"`
	RuleID        string   `yaml:"rule_id"`
	Required      []string `yaml:"required,omitempty"`
	Globs         []string `yaml:"globs,omitempty"`
	Tiers         []string `yaml:"tiers,omitempty"`
	Max           int      `yaml:"max,omitempty"`
	WindowSeconds int      `yaml:"window_seconds,omitempty"`
	FieldPatterns []string `yaml:"field_patterns,omitempty"`
}

// PolicyFile is one policy-file entry inside an atlas manifest.
type PolicyFile struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Rules    []RuleDef         `yaml:"rules"`
	Defaults map[string]string `yaml:"defaults,omitempty"`
}

// AdapterAction is one action definition inside an adapter descriptor.
type AdapterAction struct {
	ActionID         string              `yaml:"action_id"`
	Kind             model.ActionKind    `yaml:"kind"`
	InputSchema      map[string]any      `yaml:"input_schema"`
	Constraints      []string            `yaml:"constraints,omitempty"`
	RequiresApproval bool                `yaml:"requires_approval"`
	TimeoutMS        int                 `yaml:"timeout_ms"`
	Capabilities     []string            `yaml:"capabilities,omitempty"`
}

// AdapterDescriptor maps an adapter's tool/function definitions to
// AllowedAction records (spec §4.5 step 6). Loaded as "opaque structured
// data" per spec §4.2 — the only field the registry itself interprets is
// Name/Actions; everything else round-trips through Raw.
type AdapterDescriptor struct {
	Name    string          `yaml:"name"`
	Actions []AdapterAction `yaml:"actions"`
	Raw     map[string]any  `yaml:"-"`
}

// Manifest is an atlas's top-level descriptor.
type Manifest struct {
	ID              string   `yaml:"id"`
	Version         string   `yaml:"version"`
	Name            string   `yaml:"name"`
	Capabilities    []string `yaml:"capabilities"`
	ContextPacks    []string `yaml:"context_packs"`
	PolicyFiles     []string `yaml:"policy_files"`
	Adapters        []string `yaml:"adapters"`
	Dependencies    []string `yaml:"dependencies,omitempty"`
	Certified       bool     `yaml:"certified,omitempty"`
}

// Atlas is a fully loaded, validated capability package.
type Atlas struct {
	Manifest     Manifest
	ContextPacks []ContextPack
	PolicyFiles  []PolicyFile
	Adapters     []AdapterDescriptor
	Dir          string
}

// HasCapability reports whether the atlas declares cap.
func (a *Atlas) HasCapability(cap string) bool {
	for _, c := range a.Manifest.Capabilities {
		if c == cap {
			return true
		}
	}
	return cap == ""
}
