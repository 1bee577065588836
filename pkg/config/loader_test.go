package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server:\n  address: \":9090\"\nstorage:\n  driver: postgres\natlas:\n  dirs:\n    - ./atlases/demo\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, []string{"./atlases/demo"}, cfg.Atlas.Dirs)
	assert.Equal(t, 365, cfg.Retention.SessionRetentionDays, "unset sections keep defaults")
}

func TestLoadExpandsEnvBeforeParsing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \"{{.GOVERNOR_ADDR}}\"\n"), 0o600))
	t.Setenv("GOVERNOR_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownStorageDriver(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "sqlite"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyAddress(t *testing.T) {
	cfg := Default()
	cfg.Server.Address = ""
	assert.Error(t, cfg.Validate())
}

func TestResolveDirKeepsAbsolutePath(t *testing.T) {
	assert.Equal(t, "/abs/path", ResolveDir("/base", "/abs/path"))
	assert.Equal(t, filepath.Join("/base", "rel"), ResolveDir("/base", "rel"))
}
