package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding config key is unset.
const (
	DefaultConcurrency  = 4
	DefaultTimeout      = 10 * time.Second
	DefaultCacheTTL     = time.Hour
	DefaultPackagesFile = "livecheck.toml"
)

var (
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	ErrInvalidRetries     = errors.New("retries must not be negative")
)

// Config represents the application configuration
type Config struct {
	GitHub TokenConfig `yaml:"github"`
	GitLab TokenConfig `yaml:"gitlab"`
	Check  CheckConfig `yaml:"check"`
	HTTP   HTTPConfig  `yaml:"http,omitempty"`
}

// TokenConfig holds API credentials for a forge
type TokenConfig struct {
	Token string `yaml:"token"` // Personal access token for higher rate limits
}

// CheckConfig holds defaults for the check command
type CheckConfig struct {
	Packages    string `yaml:"packages,omitempty"`    // Path to the livecheck.toml file
	Concurrency int    `yaml:"concurrency,omitempty"` // Concurrent upstream fetches
	Timeout     string `yaml:"timeout,omitempty"`     // Per-fetch timeout, e.g. "10s"
	Retries     int    `yaml:"retries,omitempty"`     // Retries for transient fetch failures
	CacheTTL    string `yaml:"cache_ttl,omitempty"`   // Resolution cache TTL, "0" disables
	FailOnError bool   `yaml:"fail_on_error,omitempty"`
}

// HTTPConfig holds settings applied to every upstream request
type HTTPConfig struct {
	UserAgent string            `yaml:"user_agent,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// ConfigPaths returns all possible config file paths in priority order
// 1. $XDG_CONFIG_HOME/tapcheck/config.yaml (priority)
// 2. ~/.tapcheck/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	return []string{
		filepath.Join(xdg.ConfigHome, "tapcheck", "config.yaml"),
		filepath.Join(home, ".tapcheck", "config.yaml"),
	}, nil
}

// DefaultConfigPath returns the default config file path (XDG standard)
func DefaultConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// FindConfigPath returns the first existing config file path
// Returns the default path if no config file exists yet
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return paths[0], nil
}

// CacheDir returns the directory holding the resolution cache.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "tapcheck")
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Check: CheckConfig{
			Packages:    DefaultPackagesFile,
			Concurrency: DefaultConcurrency,
			Timeout:     DefaultTimeout.String(),
			CacheTTL:    DefaultCacheTTL.String(),
		},
	}
}

// Load reads configuration from the first available config file
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from a specific file path.
// A missing file is created with defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if saveErr := cfg.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes configuration to the default config file
func (c *Config) Save() error {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges and duration syntax.
func (c *Config) Validate() error {
	if c.Check.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	if c.Check.Retries < 0 {
		return ErrInvalidRetries
	}
	if _, err := c.GetTimeout(); err != nil {
		return err
	}
	if _, err := c.GetCacheTTL(); err != nil {
		return err
	}
	return nil
}

// GetConcurrency returns the configured concurrency or the default.
func (c *Config) GetConcurrency() int {
	if c.Check.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Check.Concurrency
}

// GetTimeout returns the per-fetch timeout or the default.
func (c *Config) GetTimeout() (time.Duration, error) {
	return parseDuration(c.Check.Timeout, DefaultTimeout)
}

// GetCacheTTL returns the cache TTL; zero disables caching.
func (c *Config) GetCacheTTL() (time.Duration, error) {
	return parseDuration(c.Check.CacheTTL, DefaultCacheTTL)
}

// GetPackagesFile returns the package configuration path or the default.
func (c *Config) GetPackagesFile() string {
	if c.Check.Packages == "" {
		return DefaultPackagesFile
	}
	return c.Check.Packages
}

// GitHubToken returns the configured token, falling back to $GITHUB_TOKEN.
func (c *Config) GitHubToken() string {
	return tokenOrEnv(c.GitHub.Token, "GITHUB_TOKEN")
}

// GitLabToken returns the configured token, falling back to $GITLAB_TOKEN.
func (c *Config) GitLabToken() string {
	return tokenOrEnv(c.GitLab.Token, "GITLAB_TOKEN")
}

func tokenOrEnv(token, envVar string) string {
	if token != "" {
		return os.ExpandEnv(token)
	}
	return os.Getenv(envVar)
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidDuration, value)
	}
	return d, nil
}
