package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"appusage/internal/database"
	"appusage/internal/services"
)

// Config is the engine-level configuration: storage settings plus the sync
// and retention tuning knobs. It loads from an optional YAML file, then
// environment overrides.
type Config struct {
	Database  *database.Config          `json:"database" yaml:"database"`
	Sync      *services.SyncConfig      `json:"sync" yaml:"sync"`
	Retention *services.RetentionConfig `json:"retention" yaml:"retention"`
	// TopAppsLimit caps the default top-apps query size.
	TopAppsLimit int `json:"topAppsLimit" yaml:"top_apps_limit"`
}

// DefaultEngineConfig returns the standard engine configuration.
func DefaultEngineConfig() *Config {
	return &Config{
		Database:     database.DefaultConfig(),
		Sync:         services.DefaultSyncConfig(),
		Retention:    services.DefaultRetentionConfig(),
		TopAppsLimit: 10,
	}
}

// LoadConfig builds the engine configuration: defaults, then the YAML file at
// path when one is given, then environment variable overrides for the
// database section. A missing file at an explicitly given path is an error;
// an empty path just skips the file step.
func LoadConfig(path string) (*Config, error) {
	config := DefaultEngineConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Database.LoadFromEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks engine-level settings and the embedded database config.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}

	if c.Sync == nil {
		return fmt.Errorf("sync configuration is required")
	}
	if c.Sync.MinSessionDuration < 0 {
		return fmt.Errorf("minSessionDuration cannot be negative, got %d", c.Sync.MinSessionDuration)
	}
	if c.Sync.ProviderRetryBase < 0 {
		return fmt.Errorf("providerRetryBase cannot be negative, got %v", c.Sync.ProviderRetryBase)
	}

	if c.Retention == nil {
		return fmt.Errorf("retention configuration is required")
	}
	if c.Retention.RawEventDays <= 0 || c.Retention.HourlyStatDays <= 0 || c.Retention.TombstoneGraceDays <= 0 {
		return fmt.Errorf("retention windows must be positive")
	}

	if c.TopAppsLimit < 0 {
		return fmt.Errorf("topAppsLimit cannot be negative, got %d", c.TopAppsLimit)
	}
	return nil
}
