// Package config loads layered configuration: hardcoded defaults, the
// user config file, the project config file, then environment variables,
// in increasing precedence. Credentials are read from the environment
// only and never from config files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load. The CODESWEEP_* family
// overrides file settings; the credential variables activate providers.
const (
	EnvLogLevel     = "CODESWEEP_LOG_LEVEL"
	EnvDBPath       = "CODESWEEP_DB_PATH"
	EnvCacheTTL     = "CODESWEEP_CACHE_TTL"
	EnvDefaultLimit = "CODESWEEP_DEFAULT_LIMIT"

	EnvGitHubToken         = "GITHUB_TOKEN"
	EnvSourcegraphToken    = "SRC_ACCESS_TOKEN"
	EnvSourcegraphEndpoint = "SRC_ENDPOINT"
)

// Config is the complete resolved configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// SearchConfig tunes query defaults applied when a request omits them.
type SearchConfig struct {
	// DefaultLimit is the result cap when a query has none. Default: 20.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// DefaultProviders are queried when a request names none.
	// Providers missing credentials are skipped at startup.
	DefaultProviders []string `yaml:"default_providers" json:"default_providers"`

	// ProviderTimeout bounds each provider invocation, e.g. "10s".
	ProviderTimeout string `yaml:"provider_timeout" json:"provider_timeout"`
}

// CacheConfig tunes the durable response cache.
type CacheConfig struct {
	// TTL is the default entry lifetime, e.g. "1h".
	TTL string `yaml:"ttl" json:"ttl"`

	// DBPath overrides the SQLite file location.
	// Defaults to ~/.codesweep/codesweep.db.
	DBPath string `yaml:"db_path" json:"db_path"`

	// HotSize is the in-process LRU entry count in front of SQLite.
	// 0 disables the hot tier.
	HotSize int `yaml:"hot_size" json:"hot_size"`
}

// ProvidersConfig holds per-provider settings. Tokens come from the
// environment and are excluded from YAML round-trips.
type ProvidersConfig struct {
	GitHub      GitHubConfig      `yaml:"github" json:"github"`
	Sourcegraph SourcegraphConfig `yaml:"sourcegraph" json:"sourcegraph"`
}

type GitHubConfig struct {
	// BaseURL overrides the API root, e.g. for GitHub Enterprise.
	BaseURL string `yaml:"base_url" json:"base_url"`
	Token   string `yaml:"-" json:"-"`
}

type SourcegraphConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Token    string `yaml:"-" json:"-"`
}

// LoggingConfig configures the structured log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			DefaultLimit:     20,
			DefaultProviders: []string{"github", "sourcegraph"},
			ProviderTimeout:  "10s",
		},
		Cache: CacheConfig{
			TTL:     "1h",
			HotSize: 128,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user config location, honoring
// XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codesweep", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codesweep", "config.yaml")
	}
	return filepath.Join(home, ".config", "codesweep", "config.yaml")
}

// Load resolves configuration for the given project directory.
// Precedence, lowest to highest: defaults, user config
// (~/.config/codesweep/config.yaml), project config (.codesweep.yaml),
// environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir loads .codesweep.yaml or .codesweep.yml from the project
// directory; a missing file means defaults apply.
func (c *Config) loadFromDir(dir string) error {
	yamlPath := filepath.Join(dir, ".codesweep.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".codesweep.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML parses a YAML file and merges non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if len(other.Search.DefaultProviders) > 0 {
		c.Search.DefaultProviders = other.Search.DefaultProviders
	}
	if other.Search.ProviderTimeout != "" {
		c.Search.ProviderTimeout = other.Search.ProviderTimeout
	}

	if other.Cache.TTL != "" {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Cache.DBPath != "" {
		c.Cache.DBPath = other.Cache.DBPath
	}
	if other.Cache.HotSize != 0 {
		c.Cache.HotSize = other.Cache.HotSize
	}

	if other.Providers.GitHub.BaseURL != "" {
		c.Providers.GitHub.BaseURL = other.Providers.GitHub.BaseURL
	}
	if other.Providers.Sourcegraph.Endpoint != "" {
		c.Providers.Sourcegraph.Endpoint = other.Providers.Sourcegraph.Endpoint
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies environment variables at highest precedence
// and pulls provider credentials.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Cache.DBPath = v
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		c.Cache.TTL = v
	}
	if v := os.Getenv(EnvDefaultLimit); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			c.Search.DefaultLimit = limit
		}
	}

	c.Providers.GitHub.Token = os.Getenv(EnvGitHubToken)
	c.Providers.Sourcegraph.Token = os.Getenv(EnvSourcegraphToken)
	if v := os.Getenv(EnvSourcegraphEndpoint); v != "" {
		c.Providers.Sourcegraph.Endpoint = v
	}
}

// Validate rejects configurations the rest of the system cannot honor.
func (c *Config) Validate() error {
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl %q is not a valid duration: %w", c.Cache.TTL, err)
	}
	if _, err := time.ParseDuration(c.Search.ProviderTimeout); err != nil {
		return fmt.Errorf("search.provider_timeout %q is not a valid duration: %w", c.Search.ProviderTimeout, err)
	}
	if c.Cache.HotSize < 0 {
		return fmt.Errorf("cache.hot_size must not be negative, got %d", c.Cache.HotSize)
	}
	return nil
}

// CacheTTL returns the parsed cache TTL. Call after Validate.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// ProviderTimeout returns the parsed per-provider timeout. Call after
// Validate.
func (c *Config) ProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Search.ProviderTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GitHubEnabled reports whether the GitHub provider has credentials.
func (c *Config) GitHubEnabled() bool {
	return c.Providers.GitHub.Token != ""
}

// SourcegraphEnabled reports whether the Sourcegraph provider is
// reachable: either an explicit endpoint or a token for the default one.
func (c *Config) SourcegraphEnabled() bool {
	return c.Providers.Sourcegraph.Endpoint != "" || c.Providers.Sourcegraph.Token != ""
}

// WriteYAML persists the configuration, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
