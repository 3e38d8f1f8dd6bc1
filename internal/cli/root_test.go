package cli

import (
	"strings"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "lunar-mcp" {
		t.Errorf("Expected Use='lunar-mcp', got %q", cmd.Use)
	}

	for _, name := range []string{"serve", "analyze", "chain", "codes", "search", "history", "init", "add", "remove", "verify", "benchmark", "version"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	for _, flag := range []string{flagConfig, flagLogLevel} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag %q not registered", flag)
		}
	}
}

func TestRootHelp(t *testing.T) {
	out, _, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("Execute() with --help failed: %v", err)
	}

	for _, expected := range []string{"lunar-mcp", "[CHAIN:", "[TOOL:", "serve"} {
		if !strings.Contains(out, expected) {
			t.Errorf("Help output missing %q", expected)
		}
	}
}

func TestConfigFlag(t *testing.T) {
	defaultPath := setupHome(t)

	cmd := NewRootCmd()
	if err := cmd.ParseFlags([]string{"--config", "/tmp/custom.yaml"}); err != nil {
		t.Fatal(err)
	}
	path, err := configPath(cmd)
	if err != nil || path != "/tmp/custom.yaml" {
		t.Errorf("configPath() = %q, %v", path, err)
	}

	path, err = configPath(NewRootCmd())
	if err != nil || path != defaultPath {
		t.Errorf("default configPath() = %q, want %q", path, defaultPath)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	setupHome(t)

	_, _, err := execute(t, "--log-level", "loud", "codes")
	if err == nil {
		t.Error("expected an error for an unknown log level")
	}
}

func TestLevelOrDefault(t *testing.T) {
	if got := levelOrDefault(""); got != "info" {
		t.Errorf("levelOrDefault(\"\") = %q", got)
	}
	if got := levelOrDefault("debug"); got != "debug" {
		t.Errorf("levelOrDefault(\"debug\") = %q", got)
	}
}
