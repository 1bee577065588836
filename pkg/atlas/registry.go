package atlas

import (
	"path/filepath"
	"strconv"
	"sync"

	"github.com/codeready-toolchain/governor/pkg/model"
)

// Registry is the Atlas Registry (C2). A coarse lock is acceptable here
// since loads are rare relative to reads (spec §5 Shared Resources table).
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Atlas
	byDir map[string]*Atlas
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Atlas),
		byDir: make(map[string]*Atlas),
	}
}

// Load loads the atlas bundle rooted at path. The cache key is the absolute
// resolved directory path; a repeated Load of the same path returns the
// cached instance without touching disk again (spec §4.2).
func (r *Registry) Load(path string) (*Atlas, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if cached, ok := r.byDir[abs]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	a, err := load(abs)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byDir[abs] = a
	r.byID[a.Manifest.ID] = a
	r.mu.Unlock()
	return a, nil
}

// Get looks up a previously loaded atlas by id.
func (r *Registry) Get(atlasID string) *Atlas {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[atlasID]
}

// Unregister removes an atlas from the registry by id.
func (r *Registry) Unregister(atlasID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[atlasID]
	if !ok {
		return
	}
	delete(r.byID, atlasID)
	delete(r.byDir, a.Dir)
}

// List returns every registered atlas.
func (r *Registry) List() []*Atlas {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Atlas, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	return out
}

// GetByCapability returns every registered atlas declaring cap.
func (r *Registry) GetByCapability(cap string) []*Atlas {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Atlas
	for _, a := range r.byID {
		if a.HasCapability(cap) {
			out = append(out, a)
		}
	}
	return out
}

// ContextBlocksFor builds model.ContextBlock records from an atlas's context
// packs; capability is accepted but does not filter them.
// Context packs carry no capability tag of their own, so when capability is
// non-empty every pack is still returned — capability filtering narrows
// allowed actions (AllowedActionsFor), not raw context content, matching
// spec §4.5 step 6(d) which filters Atlas context packs "by capability (when
// provided)" only as an optional refinement on top of the full set.
func (r *Registry) ContextBlocksFor(a *Atlas, capability string) []model.ContextBlock {
	if a == nil {
		return nil
	}
	blocks := make([]model.ContextBlock, 0, len(a.ContextPacks))
	for i, cp := range a.ContextPacks {
		blocks = append(blocks, model.ContextBlock{
			BlockID:     atlasBlockID(a.Manifest.ID, i),
			Purpose:     "atlas-context-pack",
			TTLSeconds:  1800,
			ContentType: cp.ContentType,
			Content:     cp.Content,
			SourceEvidence: model.SourceEvidence{
				Type: "atlas_context_pack",
				Ref:  cp.Path,
			},
		})
	}
	return blocks
}

// AllowedActionsFor builds model.AllowedAction records from an atlas's
// adapter descriptors, optionally filtered to actions tagged with
// capability.
func (r *Registry) AllowedActionsFor(a *Atlas, capability string) []model.AllowedAction {
	if a == nil {
		return nil
	}
	var out []model.AllowedAction
	for _, ad := range a.Adapters {
		for _, act := range ad.Actions {
			if capability != "" && len(act.Capabilities) > 0 && !containsStr(act.Capabilities, capability) {
				continue
			}
			out = append(out, model.AllowedAction{
				ActionID:         act.ActionID,
				Kind:             act.Kind,
				Adapter:          ad.Name,
				InputSchema:      act.InputSchema,
				Constraints:      act.Constraints,
				RequiresApproval: act.RequiresApproval,
				TimeoutMS:        act.TimeoutMS,
			})
		}
	}
	return out
}

// DenyRulesFor collects deny_pattern rule globs declared across an atlas's
// policy files, surfaced as denylist entries on a resolution.
func (r *Registry) DenyRulesFor(a *Atlas) []model.DenyRule {
	if a == nil {
		return nil
	}
	var out []model.DenyRule
	for _, pf := range a.PolicyFiles {
		for _, def := range pf.Rules {
			if def.Kind != "deny_pattern" {
				continue
			}
			for _, g := range def.Globs {
				out = append(out, model.DenyRule{Pattern: g, Reason: "atlas policy: " + pf.ID})
			}
		}
	}
	return out
}

func atlasBlockID(atlasID string, index int) string {
	return atlasID + ".context." + strconv.Itoa(index)
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
