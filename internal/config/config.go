package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dependency resolution policies accepted by resolve.policy.
const (
	PolicyPrompt = "prompt"
	PolicyAll    = "all"
	PolicyNone   = "none"
)

// Config captures fetcher and pipeline settings for a modsync data directory.
type Config struct {
	Version int           `yaml:"version"`
	DataDir string        `yaml:"data_dir,omitempty"`
	Fetcher FetcherConfig `yaml:"fetcher"`
	Resolve ResolveConfig `yaml:"resolve"`
	Retry   RetryConfig   `yaml:"retry"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// FetcherConfig describes the external command-line fetcher (SteamCMD).
type FetcherConfig struct {
	Path      string   `yaml:"path"`
	Login     string   `yaml:"login"`
	ExtraArgs []string `yaml:"extra_args,omitempty"`
	// StageInCollection passes +force_install_dir so downloads land in the
	// collection's staging directory instead of the fetcher's own tree.
	StageInCollection bool `yaml:"stage_in_collection"`
}

// ResolveConfig controls how missing dependencies are handled.
type ResolveConfig struct {
	Policy string `yaml:"policy"`
}

// RetryConfig bounds re-submission of failed items. Zero means no limit;
// the CLI then asks before every retry.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version: 1,
		Fetcher: FetcherConfig{
			Login:             "anonymous",
			StageInCollection: true,
		},
		Resolve: ResolveConfig{
			Policy: PolicyPrompt,
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Save writes the configuration to path.
func Save(path string, cfg Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyDefaults ensures nested fields fall back to sensible defaults when the
// YAML omits them.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if strings.TrimSpace(c.Fetcher.Login) == "" {
		c.Fetcher.Login = defaults.Fetcher.Login
	}
	c.Resolve.Policy = strings.ToLower(strings.TrimSpace(c.Resolve.Policy))
	if c.Resolve.Policy == "" {
		c.Resolve.Policy = defaults.Resolve.Policy
	}
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
