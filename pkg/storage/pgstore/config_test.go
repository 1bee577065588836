package pgstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("GOVERNOR_DB_PASSWORD", "secret")
	for _, key := range []string{
		"GOVERNOR_DB_HOST", "GOVERNOR_DB_PORT", "GOVERNOR_DB_USER", "GOVERNOR_DB_NAME",
		"GOVERNOR_DB_SSLMODE", "GOVERNOR_DB_MAX_OPEN_CONNS", "GOVERNOR_DB_MAX_IDLE_CONNS",
		"GOVERNOR_DB_CONN_MAX_LIFETIME", "GOVERNOR_DB_CONN_MAX_IDLE_TIME",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "governor", cfg.User)
	assert.Equal(t, "governor", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 15*time.Minute, cfg.ConnMaxIdleTime)
}

func TestLoadConfigFromEnvRequiresPassword(t *testing.T) {
	t.Setenv("GOVERNOR_DB_PASSWORD", "")
	_, err := LoadConfigFromEnv()
	assert.ErrorContains(t, err, "GOVERNOR_DB_PASSWORD")
}

func TestConfigValidateRejectsIdleExceedingOpen(t *testing.T) {
	cfg := Config{Password: "x", MaxOpenConns: 5, MaxIdleConns: 10}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "cannot exceed")
}

func TestConfigValidateRejectsNonPositiveMaxOpen(t *testing.T) {
	cfg := Config{Password: "x", MaxOpenConns: 0, MaxIdleConns: 0}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "at least 1")
}

func TestConfigDSNIncludesAllFields(t *testing.T) {
	cfg := Config{
		Host: "db.internal", Port: 5433, User: "gov", Password: "pw",
		Database: "governor_test", SSLMode: "require",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "port=5433")
	assert.Contains(t, dsn, "user=gov")
	assert.Contains(t, dsn, "dbname=governor_test")
	assert.Contains(t, dsn, "sslmode=require")
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	require.NotNil(t, nullIfEmpty("x"))
	assert.Equal(t, "x", *nullIfEmpty("x"))
}
