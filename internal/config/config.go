package config

import (
	"errors"
	"os"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	DatabaseURL string
	AuditDBPath string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: os.Getenv("APP_ENV"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AuditDBPath: os.Getenv("AUDIT_DB_PATH"),
	}

	if cfg.AuditDBPath == "" {
		cfg.AuditDBPath = "audit.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return errors.New("DATABASE_URL must be a postgres:// connection string")
	}

	return nil
}
