// Package config loads raivaus run configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration for a teardown run.
type Config struct {
	Version     string   `yaml:"version"`
	CleanupType string   `yaml:"cleanup_type"`
	Accounts    []string `yaml:"accounts"`
	Regions     []string `yaml:"regions"`
	// ResourceTypes limits the run to these types; empty means every
	// registered provider.
	ResourceTypes []string `yaml:"resource_types,omitempty"`

	Protection   Protection          `yaml:"protection,omitempty"`
	Converge     Converge            `yaml:"converge,omitempty"`
	FamilyTuning map[string]Converge `yaml:"family_tuning,omitempty"`

	ReportDir  string `yaml:"report_dir,omitempty"`
	ReportS3   string `yaml:"report_s3_bucket,omitempty"`
	WALDir     string `yaml:"wal_dir,omitempty"`
	HistoryDir string `yaml:"history_dir,omitempty"`
	PolicyDir  string `yaml:"policy_dir,omitempty"`

	OTEL OTELConfig `yaml:"otel,omitempty"`
}

// Protection is the declarative protection signal list consumed by the
// classifier. New protected-pattern rules are data, not code.
type Protection struct {
	NamePatterns        []string          `yaml:"name_patterns,omitempty"`
	DescriptionPatterns []string          `yaml:"description_patterns,omitempty"`
	TagKeyPrefixes      []string          `yaml:"tag_key_prefixes,omitempty"`
	TagMatches          map[string]string `yaml:"tag_matches,omitempty"`
}

// Converge tunes the convergence loop. The source of these constants
// varied per service with no stated rationale, so they are configuration
// with per-family overrides, not code.
type Converge struct {
	MaxPasses           int           `yaml:"max_passes,omitempty"`
	StagnationThreshold int           `yaml:"stagnation_threshold,omitempty"`
	InterPassDelay      time.Duration `yaml:"inter_pass_delay,omitempty"`
	SettleDelay         time.Duration `yaml:"settle_delay,omitempty"`
}

// OTELConfig configures the OTLP exporters.
type OTELConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
	Enabled  bool   `yaml:"enabled,omitempty"`
}

// DefaultConverge is used where the config leaves tuning unset.
var DefaultConverge = Converge{
	MaxPasses:           5,
	StagnationThreshold: 3,
	InterPassDelay:      10 * time.Second,
	SettleDelay:         3 * time.Second,
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate ensures config has required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	if c.Converge.MaxPasses < 1 {
		return fmt.Errorf("converge.max_passes must be positive")
	}
	if c.Converge.StagnationThreshold < 2 {
		return fmt.Errorf("converge.stagnation_threshold must be at least 2")
	}
	return nil
}

// ConvergeFor returns the tuning for a cascade family, falling back to the
// run-wide settings for any field a family override leaves unset.
func (c *Config) ConvergeFor(family string) Converge {
	base := c.Converge
	override, ok := c.FamilyTuning[family]
	if !ok {
		return base
	}
	if override.MaxPasses > 0 {
		base.MaxPasses = override.MaxPasses
	}
	if override.StagnationThreshold > 0 {
		base.StagnationThreshold = override.StagnationThreshold
	}
	if override.InterPassDelay > 0 {
		base.InterPassDelay = override.InterPassDelay
	}
	if override.SettleDelay > 0 {
		base.SettleDelay = override.SettleDelay
	}
	return base
}

func (c *Config) applyDefaults() {
	if c.CleanupType == "" {
		c.CleanupType = "ultra_cleanup"
	}
	if c.Converge.MaxPasses == 0 {
		c.Converge.MaxPasses = DefaultConverge.MaxPasses
	}
	if c.Converge.StagnationThreshold == 0 {
		c.Converge.StagnationThreshold = DefaultConverge.StagnationThreshold
	}
	if c.Converge.InterPassDelay == 0 {
		c.Converge.InterPassDelay = DefaultConverge.InterPassDelay
	}
	if c.Converge.SettleDelay == 0 {
		c.Converge.SettleDelay = DefaultConverge.SettleDelay
	}
	if c.ReportDir == "" {
		c.ReportDir = "reports"
	}
	if c.WALDir == "" {
		c.WALDir = "wal"
	}
	if c.HistoryDir == "" {
		c.HistoryDir = "history"
	}
}
