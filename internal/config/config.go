package config

import (
	"fmt"
	"time"
)

// Config holds server configuration
type Config struct {
	// Server settings
	Port int
	Host string

	// Definition settings
	DatasetDirectory string
	SchemaPath       string

	// Record source settings
	SourceType      string // "synthetic", "queryd", or "sqlite"
	QuerydURL       string
	SyntheticFixture string

	// Storage settings
	SQLitePath string

	// Ingestion settings
	WebhookSecret string

	// Operational settings
	GracefulShutdownTimeout time.Duration
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.DatasetDirectory == "" {
		return fmt.Errorf("dataset directory is required")
	}

	if c.SchemaPath == "" {
		return fmt.Errorf("schema path is required")
	}

	switch c.SourceType {
	case "synthetic", "queryd", "sqlite":
	default:
		return fmt.Errorf("source type must be 'synthetic', 'queryd', or 'sqlite'")
	}

	if c.SourceType == "queryd" && c.QuerydURL == "" {
		return fmt.Errorf("queryd URL required when source type is 'queryd'")
	}

	if c.SourceType == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("sqlite path required when source type is 'sqlite'")
	}

	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Port:                    8080,
		Host:                    "0.0.0.0",
		SchemaPath:              "schemas/dataset_v1.json",
		SourceType:              "synthetic",
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
