package atlas

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/governor/pkg/apperr"
)

// loadYAML reads path, expands ${VAR}/$VAR environment references — atlas
// bundles use shell-style expansion rather than pkg/config's {{.VAR}}
// templating since they're authored independently of the server's own
// config tree — and unmarshals into out.
func loadYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("atlas file", path)
		}
		return fmt.Errorf("atlas: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid atlas YAML in "+path, err)
	}
	return nil
}

func inferContentType(path string) ContentType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "markdown"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "plain"
	}
}

// load reads and validates the manifest at dir/manifest.yaml, then resolves
// every context pack, policy file, and adapter descriptor it references.
// Per spec §4.2: "either the full bundle registers or nothing does" — any
// error here aborts before an Atlas value is returned.
func load(dir string) (*Atlas, error) {
	manifestPath := filepath.Join(dir, "manifest.yaml")
	var m Manifest
	if err := loadYAML(manifestPath, &m); err != nil {
		return nil, err
	}
	if err := validateManifest(m); err != nil {
		return nil, err
	}

	a := &Atlas{Manifest: m, Dir: dir}

	for _, rel := range m.ContextPacks {
		full := filepath.Join(dir, rel)
		raw, err := os.ReadFile(full)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "dangling context pack reference: "+rel, err)
		}
		a.ContextPacks = append(a.ContextPacks, ContextPack{
			Path:        rel,
			ContentType: inferContentType(rel),
			Content:     string(raw),
		})
	}

	for _, rel := range m.PolicyFiles {
		var pf PolicyFile
		if err := loadYAML(filepath.Join(dir, rel), &pf); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "invalid policy file: "+rel, err)
		}
		a.PolicyFiles = append(a.PolicyFiles, pf)
	}

	for _, rel := range m.Adapters {
		var ad AdapterDescriptor
		if err := loadYAML(filepath.Join(dir, rel), &ad); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "invalid adapter descriptor: "+rel, err)
		}
		if err := loadYAML(filepath.Join(dir, rel), &ad.Raw); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "invalid adapter descriptor: "+rel, err)
		}
		if ad.Name == "" {
			return nil, apperr.Validation("adapter descriptor missing name: " + rel)
		}
		a.Adapters = append(a.Adapters, ad)
	}

	return a, nil
}

func validateManifest(m Manifest) error {
	if m.ID == "" {
		return apperr.Validation("atlas manifest missing id")
	}
	if m.Version == "" {
		return apperr.Validation("atlas manifest missing version")
	}
	return nil
}
