package config

import (
	"strings"
	"testing"
	"time"

	"github.com/khanglvm/lunar-mcp/internal/models"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Servers == nil {
		t.Error("NewConfig().Servers should not be nil")
	}
	if cfg.Cache.TTLSeconds != 3600 {
		t.Errorf("default cache ttl should be 3600, got %d", cfg.Cache.TTLSeconds)
	}
	if cfg.Cache.Threshold != 0.85 {
		t.Errorf("default threshold should be 0.85, got %v", cfg.Cache.Threshold)
	}
	if cfg.Cache.MaxSize != 1000 {
		t.Errorf("default cache size should be 1000, got %d", cfg.Cache.MaxSize)
	}
	if cfg.Patterns.MaxHistory != 1000 {
		t.Errorf("default pattern history should be 1000, got %d", cfg.Patterns.MaxHistory)
	}
	if cfg.Chains.MaxHistory != 100 {
		t.Errorf("default chain history should be 100, got %d", cfg.Chains.MaxHistory)
	}
	if !cfg.Storage.Enabled {
		t.Error("storage should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := NewConfig()
	cfg.Chains.StepLatencyMs = 25
	cfg.Storage.RetentionDays = 2

	opts := cfg.CacheOptions()
	if opts.TTL != time.Hour {
		t.Errorf("TTL = %v, want 1h", opts.TTL)
	}
	if opts.Capacity != 1000 || opts.SimilarityThreshold != 0.85 {
		t.Errorf("unexpected cache options: %+v", opts)
	}
	if cfg.StepLatency() != 25*time.Millisecond {
		t.Errorf("StepLatency = %v", cfg.StepLatency())
	}
	if cfg.StepTimeout() != time.Minute {
		t.Errorf("StepTimeout = %v", cfg.StepTimeout())
	}
	if cfg.Retention() != 48*time.Hour {
		t.Errorf("Retention = %v", cfg.Retention())
	}
}

func TestRegistry(t *testing.T) {
	cfg := NewConfig()
	if cfg.Registry().Len() != 5 {
		t.Errorf("empty tool list should select the sample catalog, got %d tools", cfg.Registry().Len())
	}

	cfg.Tools = []models.Tool{{Name: "slack:post", Category: "slack"}}
	reg := cfg.Registry()
	if reg.Len() != 1 {
		t.Fatalf("expected 1 tool, got %d", reg.Len())
	}
	if _, ok := reg.Lookup("slack:post"); !ok {
		t.Error("configured tool should be in the registry")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := NewConfig()
	cfg.Cache.TTLSeconds = 0
	cfg.Cache.Threshold = 1.5
	cfg.Cache.MaxSize = -1
	cfg.Chains.StepLatencyMs = -5
	cfg.Logging.Level = "loud"
	cfg.Metrics.Addr = "not an address"
	cfg.Tools = []models.Tool{{Name: "a"}, {Name: " "}, {Name: "a"}, {Name: "b"}}
	cfg.Servers["broken"] = &ServerConfig{}
	cfg.Servers["ok"] = &ServerConfig{Command: "node"}

	fixed := cfg.ApplyDefaults()
	if len(fixed) != 9 {
		t.Errorf("expected 9 fixes, got %d: %v", len(fixed), fixed)
	}

	if cfg.Cache.TTLSeconds != DefaultCacheTTLSeconds || cfg.Cache.Threshold != DefaultCacheThreshold || cfg.Cache.MaxSize != DefaultCacheMaxSize {
		t.Errorf("cache not repaired: %+v", cfg.Cache)
	}
	if cfg.Chains.StepLatencyMs != 0 {
		t.Errorf("latency not repaired: %d", cfg.Chains.StepLatencyMs)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("level not repaired: %q", cfg.Logging.Level)
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("metrics addr not cleared: %q", cfg.Metrics.Addr)
	}
	if len(cfg.Tools) != 2 || cfg.Tools[0].Name != "a" || cfg.Tools[1].Name != "b" {
		t.Errorf("tools not deduplicated: %+v", cfg.Tools)
	}
	if _, ok := cfg.Servers["broken"]; ok {
		t.Error("server without a command should be dropped")
	}
	if _, ok := cfg.Servers["ok"]; !ok {
		t.Error("valid server should be kept")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("repaired config should validate: %v", err)
	}
}

func TestValidateReportsFields(t *testing.T) {
	cfg := NewConfig()
	cfg.Cache.Threshold = 0
	cfg.Patterns.MaxHistory = 0
	cfg.Tools = []models.Tool{{Name: "dup"}, {Name: "dup"}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	invalid, ok := err.(*InvalidConfigError)
	if !ok {
		t.Fatalf("expected *InvalidConfigError, got %T", err)
	}

	joined := strings.Join(invalid.Fields, " ")
	for _, want := range []string{"cache.threshold", "patterns.maxHistory", "tools (unique)"} {
		if !strings.Contains(joined, want) {
			t.Errorf("fields %v should mention %s", invalid.Fields, want)
		}
	}
}

func TestStoragePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{"/var/lib/journal.db", "/var/lib/journal.db"},
		{"~/.lunar-mcp/journal.db", home + "/.lunar-mcp/journal.db"},
		{"~other/journal.db", "~other/journal.db"},
	}
	for _, tt := range tests {
		cfg := NewConfig()
		cfg.Storage.Path = tt.path
		if got := cfg.StoragePath(); got != tt.want {
			t.Errorf("StoragePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
