package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	hintRunInit   = "Run 'lunar-mcp init' to create configuration"
	hintRestore   = "Restore from the .bak file next to it, or run 'lunar-mcp init --force'"
	hintFixFields = "Fix the listed fields, or run 'lunar-mcp verify' for details"
)

// Load reads the config from the default path.
func Load() (*Config, error) {
	path, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads, parses and validates the config at path. Fields absent
// from the file keep the defaults of NewConfig.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigNotFoundError{Path: path, Hint: hintRunInit}
		}
		return nil, fmt.Errorf("failed to access config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &PermissionError{
				Path:    path,
				Op:      "read",
				Fix:     getReadPermissionFix(path),
				Details: getPermissionDetails(path),
			}
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		var invalid *InvalidConfigError
		if errors.As(err, &invalid) {
			invalid.Path = path
			return nil, invalid
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML onto the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &InvalidConfigError{
			Message: fmt.Sprintf("YAML parse error: %v", err),
			Hint:    hintRestore,
		}
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]*ServerConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the config at path and never fails: a missing file
// yields the defaults, an unreadable file or a YAML syntax error yields the
// defaults with a warning, and values of the wrong type or out of range are
// replaced field by field, each replacement logged as a warning.
func LoadOrDefault(path string, logger *zap.Logger) *Config {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("config file not found, using defaults", zap.String("path", path))
		} else {
			logger.Warn("config unreadable, using defaults", zap.String("path", path), zap.Error(err))
		}
		return NewConfig()
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		// A TypeError leaves every other field decoded.
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			logger.Warn("config does not parse, using defaults", zap.String("path", path), zap.Error(err))
			return NewConfig()
		}
		for _, msg := range typeErr.Errors {
			logger.Warn("config value ignored", zap.String("path", path), zap.String("error", msg))
		}
	}

	for _, fix := range cfg.ApplyDefaults() {
		logger.Warn("config value corrected", zap.String("path", path), zap.String("fix", fix))
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("config still invalid, using defaults", zap.String("path", path), zap.Error(err))
		return NewConfig()
	}
	return cfg
}

func getReadPermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s → Properties → Security → Edit permissions", path)
	default:
		return fmt.Sprintf("Run: chmod 644 %s", path)
	}
}

func getPermissionDetails(path string) string {
	if runtime.GOOS == "windows" {
		return ""
	}

	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Current permissions: %04o", info.Mode().Perm())
}
