package pgstore

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the durable storage backend's connection settings: host,
// port, credentials, database name, SSL mode, and pool sizing, loaded from
// GOVERNOR_DB_* environment variables with sane local-dev defaults.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv loads Config from the process environment, matching
// pkg/database.LoadConfigFromEnv's defaults and validation.
func LoadConfigFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("GOVERNOR_DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid GOVERNOR_DB_PORT: %w", err)
	}

	maxOpen, _ := strconv.Atoi(getEnvOrDefault("GOVERNOR_DB_MAX_OPEN_CONNS", "25"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("GOVERNOR_DB_MAX_IDLE_CONNS", "10"))

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("GOVERNOR_DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid GOVERNOR_DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("GOVERNOR_DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid GOVERNOR_DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg := Config{
		Host:            getEnvOrDefault("GOVERNOR_DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("GOVERNOR_DB_USER", "governor"),
		Password:        os.Getenv("GOVERNOR_DB_PASSWORD"),
		Database:        getEnvOrDefault("GOVERNOR_DB_NAME", "governor"),
		SSLMode:         getEnvOrDefault("GOVERNOR_DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Password == "" {
		return fmt.Errorf("GOVERNOR_DB_PASSWORD is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("GOVERNOR_DB_MAX_IDLE_CONNS (%d) cannot exceed GOVERNOR_DB_MAX_OPEN_CONNS (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("GOVERNOR_DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("GOVERNOR_DB_MAX_IDLE_CONNS cannot be negative")
	}
	return nil
}

// DSN renders the pgx stdlib connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
