package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupHome points HOME at a temp dir, so the default config, journal and
// update cache live there, and returns the default config path.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return filepath.Join(home, ".lunar-mcp", "config.yaml")
}

// writeConfig writes a config file under HOME and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := setupHome(t)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and empty stdin.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeWithInput(t, strings.NewReader(""), args...)
}

func executeWithInput(t *testing.T, in io.Reader, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()

	var out, errOut bytes.Buffer
	cmd.SetIn(in)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
