// Package config loads and validates the governance runtime's server
// configuration: layered YAML with environment-variable expansion and
// dario.cat/mergo-based defaults merging, following a
// pkg/config/loader.go Initialize(ctx, configDir) -> load() -> validate()
// pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AuthConfig controls how the HTTP layer resolves a Principal from an
// inbound request (spec §6 Authentication): a bearer token or an
// X-API-Key header, each mapped to a static table of known tokens. An
// unrecognized or absent credential resolves to the anonymous principal
// rather than failing the request — the core gates by scope, not by
// identity.
type AuthConfig struct {
	BearerTokens map[string]TokenPrincipal `yaml:"bearer_tokens"`
	APIKeys      map[string]TokenPrincipal `yaml:"api_keys"`
}

// TokenPrincipal is the Principal a configured credential resolves to.
type TokenPrincipal struct {
	Type string   `yaml:"type"`
	ID   string   `yaml:"id"`
	Org  string   `yaml:"org"`
	Scopes []string `yaml:"scopes"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig selects and configures the durable mirror backend. When
// Driver is "memory" (the default), the Runtime runs with no durability
// beyond the in-process hot path; "postgres" wires pkg/storage/pgstore,
// consulting the GOVERNOR_DB_* environment variables pkg/storage/pgstore.LoadConfigFromEnv
// reads directly rather than duplicating connection fields here.
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// AtlasConfig lists the atlas bundle directories loaded at startup.
type AtlasConfig struct {
	Dirs []string `yaml:"dirs"`
}

// Config is the governance runtime's top-level server configuration.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Storage   StorageConfig     `yaml:"storage"`
	Atlas     AtlasConfig       `yaml:"atlas"`
	Auth      AuthConfig        `yaml:"auth"`
	Retention RetentionConfig   `yaml:"retention"`
}

// Default returns the built-in configuration used when no file overrides a
// given field.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Address: ":8080"},
		Storage: StorageConfig{Driver: "memory"},
		Atlas:   AtlasConfig{Dirs: nil},
		Auth:    AuthConfig{BearerTokens: map[string]TokenPrincipal{}, APIKeys: map[string]TokenPrincipal{}},
		Retention: *DefaultRetentionConfig(),
	}
}

// Load reads the YAML file at path, expands {{.VAR}} environment
// references, merges it over the built-in defaults, and validates the
// result. A missing file is not an error: Default() is returned as-is,
// matching a "config is optional, defaults always work"
// posture.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)

	var fromFile Config
	if err := yaml.Unmarshal(expanded, &fromFile); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergo.Merge(cfg, fromFile, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks Config for internal consistency (spec §4.4-adjacent
// server-level validation — TTL bounds themselves live in pkg/session).
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return NewValidationError("server", "address", "", fmt.Errorf("%w: must not be empty", ErrInvalidValue))
	}
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return NewValidationError("storage", c.Storage.Driver, "driver", fmt.Errorf("%w: must be 'memory' or 'postgres'", ErrInvalidValue))
	}
	for _, dir := range c.Atlas.Dirs {
		if dir == "" {
			return NewValidationError("atlas", dir, "dirs", fmt.Errorf("%w: empty atlas directory entry", ErrInvalidValue))
		}
	}
	return nil
}

// ResolveDir joins base with dir unless dir is already absolute, matching
// how relative config-adjacent paths are resolved.
func ResolveDir(base, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}
