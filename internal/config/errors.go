package config

import (
	"fmt"
	"strings"
)

// PermissionError reports a config file or directory lunar-mcp cannot
// read or write.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string
	Details string
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied (cannot %s config): %s\n", e.Op, e.Path)
	if e.Details != "" {
		msg += e.Details + "\n"
	}
	msg += "💡 Fix: " + e.Fix
	return msg
}

// ConfigNotFoundError reports a missing config file.
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s\n\n💡 %s", e.Path, e.Hint)
}

// InvalidConfigError reports a config that does not parse or does not
// pass validation. Fields names each offending field when known.
type InvalidConfigError struct {
	Path    string
	Message string
	Fields  []string
	Hint    string
}

func (e *InvalidConfigError) Error() string {
	msg := fmt.Sprintf("invalid config: %s\n", e.Path)
	if e.Message != "" {
		msg += e.Message + "\n"
	}
	if len(e.Fields) > 0 {
		msg += "Fields: " + strings.Join(e.Fields, ", ") + "\n"
	}
	if e.Hint != "" {
		msg += "💡 " + e.Hint
	}
	return msg
}

// LockError reports a config file held by another writer.
type LockError struct {
	Path string
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("config is locked by another process: %s (%v)\n💡 Retry once the other lunar-mcp command finishes", e.Path, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}
