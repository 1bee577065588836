// Package resolver implements the Resolver (C5): composes Atlas material,
// task, session, and policy decision into a Resolution (spec §4.5).
// Grounded algorithmically on a reference resolver implementation,
// generalized per spec §4.5's richer, policy-aware algorithm — spec.md notes
// the source carries two diverging resolver copies and "the richer,
// policy-aware variant is authoritative"; this package implements that
// variant directly from the spec's step-by-step description rather than
// translating the simpler Phase-0 Python file.
package resolver

import (
	"github.com/codeready-toolchain/governor/pkg/carp"
	"github.com/codeready-toolchain/governor/pkg/model"
)

// Request is the resolve() input envelope (spec §4.5 Contract).
type Request struct {
	Session carp.SessionRef
	Atlas   *carp.AtlasRef
	Task    carp.Task
	Environment map[string]any
	Preferences map[string]any
	Trace   carp.TraceRef
}

// Response is the resolve() output envelope.
type Response struct {
	Session    carp.SessionRef
	Atlas      *carp.AtlasRef
	Trace      carp.TraceRef
	Resolution model.Resolution
}
