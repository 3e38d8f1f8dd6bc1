/*
Package config handles loading, validating, saving and watching the
lunar-mcp configuration.

Configuration is stored in ~/.lunar-mcp/config.yaml:

	cache:
	  ttl: 3600          # seconds
	  threshold: 0.85    # minimum cosine similarity for approximate hits
	  maxSize: 1000
	patterns:
	  maxHistory: 1000
	chains:
	  maxHistory: 100
	  stepLatencyMs: 0   # simulated step latency for tools without a server
	  stepTimeoutSeconds: 60
	tools:
	  - name: github:create_repository
	    category: github
	servers:
	  github:
	    command: npx
	    args: ["-y", "@modelcontextprotocol/server-github"]
	    env: {GITHUB_TOKEN: "..."}
	storage:
	  enabled: true
	  path: ~/.lunar-mcp/journal.db
	  retentionDays: 30
	logging:
	  level: info
	metrics:
	  addr: ""           # e.g. 127.0.0.1:9464 to serve /metrics

Every section is optional. Missing values take the defaults of NewConfig.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/khanglvm/lunar-mcp/internal/cache"
	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/registry"
)

const (
	DefaultCacheTTLSeconds      = 3600
	DefaultCacheThreshold       = 0.85
	DefaultCacheMaxSize         = 1000
	DefaultPatternMaxHistory    = 1000
	DefaultChainMaxHistory      = 100
	DefaultStepTimeoutSeconds   = 60
	DefaultStorageRetentionDays = 30
	DefaultLogLevel             = "info"
)

// Config represents the root configuration structure.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Patterns PatternsConfig `yaml:"patterns"`
	Chains   ChainsConfig   `yaml:"chains"`

	// Tools is the registry, in jump-code order. Empty selects the
	// built-in sample catalog.
	Tools []models.Tool `yaml:"tools,omitempty" validate:"omitempty,unique=Name"`

	// Servers maps a server name (the part of a tool name before ":") to
	// the MCP server process that implements it.
	Servers map[string]*ServerConfig `yaml:"servers,omitempty" validate:"omitempty,dive,required"`

	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CacheConfig configures the suggestion cache.
type CacheConfig struct {
	TTLSeconds int     `yaml:"ttl" validate:"gte=1"`
	Threshold  float64 `yaml:"threshold" validate:"gt=0,lte=1"`
	MaxSize    int     `yaml:"maxSize" validate:"gte=1"`
}

// PatternsConfig configures the pattern learner.
type PatternsConfig struct {
	MaxHistory int `yaml:"maxHistory" validate:"gte=1"`
}

// ChainsConfig configures chain execution.
type ChainsConfig struct {
	MaxHistory         int `yaml:"maxHistory" validate:"gte=1"`
	StepLatencyMs      int `yaml:"stepLatencyMs" validate:"gte=0"`
	StepTimeoutSeconds int `yaml:"stepTimeoutSeconds" validate:"gte=1"`
}

// ServerConfig represents a single MCP server process.
type ServerConfig struct {
	// Command is the executable to run (e.g., "npx", "/path/to/binary").
	Command string `yaml:"command" validate:"required"`

	// Args are the command-line arguments.
	Args []string `yaml:"args,omitempty"`

	// Env contains environment variables for the server.
	Env map[string]string `yaml:"env,omitempty"`
}

// StorageConfig configures the analysis journal.
type StorageConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path of the SQLite database. Empty selects ~/.lunar-mcp/journal.db.
	Path string `yaml:"path,omitempty"`

	// RetentionDays bounds the journal's age; 0 keeps everything.
	RetentionDays int `yaml:"retentionDays" validate:"gte=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint; empty disables it.
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

// NewConfig returns a configuration holding every default.
func NewConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			TTLSeconds: DefaultCacheTTLSeconds,
			Threshold:  DefaultCacheThreshold,
			MaxSize:    DefaultCacheMaxSize,
		},
		Patterns: PatternsConfig{MaxHistory: DefaultPatternMaxHistory},
		Chains: ChainsConfig{
			MaxHistory:         DefaultChainMaxHistory,
			StepTimeoutSeconds: DefaultStepTimeoutSeconds,
		},
		Servers: make(map[string]*ServerConfig),
		Storage: StorageConfig{
			Enabled:       true,
			RetentionDays: DefaultStorageRetentionDays,
		},
		Logging: LoggingConfig{Level: DefaultLogLevel},
	}
}

// GetDefaultConfigPath returns the path to ~/.lunar-mcp/config.yaml.
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".lunar-mcp", "config.yaml"), nil
}

// ApplyDefaults replaces missing or out-of-range values with their
// defaults, drops unusable tools and servers, and returns a description of
// every change it made.
func (c *Config) ApplyDefaults() []string {
	var fixed []string
	fix := func(field string, bad any, def any) {
		fixed = append(fixed, fmt.Sprintf("%s: %v replaced by default %v", field, bad, def))
	}

	if c.Cache.TTLSeconds < 1 {
		fix("cache.ttl", c.Cache.TTLSeconds, DefaultCacheTTLSeconds)
		c.Cache.TTLSeconds = DefaultCacheTTLSeconds
	}
	if c.Cache.Threshold <= 0 || c.Cache.Threshold > 1 {
		fix("cache.threshold", c.Cache.Threshold, DefaultCacheThreshold)
		c.Cache.Threshold = DefaultCacheThreshold
	}
	if c.Cache.MaxSize < 1 {
		fix("cache.maxSize", c.Cache.MaxSize, DefaultCacheMaxSize)
		c.Cache.MaxSize = DefaultCacheMaxSize
	}
	if c.Patterns.MaxHistory < 1 {
		fix("patterns.maxHistory", c.Patterns.MaxHistory, DefaultPatternMaxHistory)
		c.Patterns.MaxHistory = DefaultPatternMaxHistory
	}
	if c.Chains.MaxHistory < 1 {
		fix("chains.maxHistory", c.Chains.MaxHistory, DefaultChainMaxHistory)
		c.Chains.MaxHistory = DefaultChainMaxHistory
	}
	if c.Chains.StepLatencyMs < 0 {
		fix("chains.stepLatencyMs", c.Chains.StepLatencyMs, 0)
		c.Chains.StepLatencyMs = 0
	}
	if c.Chains.StepTimeoutSeconds < 1 {
		fix("chains.stepTimeoutSeconds", c.Chains.StepTimeoutSeconds, DefaultStepTimeoutSeconds)
		c.Chains.StepTimeoutSeconds = DefaultStepTimeoutSeconds
	}
	if c.Storage.RetentionDays < 0 {
		fix("storage.retentionDays", c.Storage.RetentionDays, DefaultStorageRetentionDays)
		c.Storage.RetentionDays = DefaultStorageRetentionDays
	}
	if err := validate.Var(c.Logging.Level, "omitempty,oneof=debug info warn warning error"); err != nil {
		fix("logging.level", c.Logging.Level, DefaultLogLevel)
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Metrics.Addr != "" {
		if err := validate.Var(c.Metrics.Addr, "hostname_port"); err != nil {
			fix("metrics.addr", c.Metrics.Addr, `""`)
			c.Metrics.Addr = ""
		}
	}

	seen := make(map[string]bool, len(c.Tools))
	tools := c.Tools[:0]
	for _, tool := range c.Tools {
		name := strings.TrimSpace(tool.Name)
		switch {
		case name == "":
			fixed = append(fixed, "tools: dropped entry without a name")
		case seen[name]:
			fixed = append(fixed, fmt.Sprintf("tools: dropped duplicate %q", name))
		default:
			seen[name] = true
			tool.Name = name
			tools = append(tools, tool)
		}
	}
	c.Tools = tools

	if c.Servers == nil {
		c.Servers = make(map[string]*ServerConfig)
	}
	for name, server := range c.Servers {
		if err := ValidateServer(name, server); err != nil {
			fixed = append(fixed, fmt.Sprintf("servers: dropped %s (%v)", name, err))
			delete(c.Servers, name)
		}
	}

	return fixed
}

// Registry builds the tool registry described by the configuration.
func (c *Config) Registry() *registry.Registry {
	if len(c.Tools) == 0 {
		return registry.New(registry.DefaultTools())
	}
	return registry.New(c.Tools)
}

// CacheOptions converts the cache section.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		TTL:                 time.Duration(c.Cache.TTLSeconds) * time.Second,
		SimilarityThreshold: c.Cache.Threshold,
		Capacity:            c.Cache.MaxSize,
	}
}

// StepLatency is the simulated latency of chain steps without a server.
func (c *Config) StepLatency() time.Duration {
	return time.Duration(c.Chains.StepLatencyMs) * time.Millisecond
}

// StepTimeout bounds a single chain step run on an MCP server.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Chains.StepTimeoutSeconds) * time.Second
}

// Retention is the journal retention window; 0 keeps everything.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

// StoragePath is the journal location with a leading "~/" expanded. Empty
// means the journal's default location.
func (c *Config) StoragePath() string {
	path := c.Storage.Path
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
