package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/khanglvm/lunar-mcp/internal/metrics"
	"github.com/khanglvm/lunar-mcp/internal/storage"
	"github.com/khanglvm/lunar-mcp/internal/version"
)

func TestNewServeCmd(t *testing.T) {
	cmd := NewServeCmd()

	if cmd == nil {
		t.Fatal("NewServeCmd() returned nil")
	}
	if cmd.Use != "serve" {
		t.Errorf("Expected Use='serve', got %q", cmd.Use)
	}
	if cmd.Flags().Lookup("no-update-check") == nil {
		t.Error("Flag 'no-update-check' not registered")
	}
}

func TestServeCommandHelp(t *testing.T) {
	cmd := NewServeCmd()
	cmd.SetArgs([]string{"--help"})

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() with --help failed: %v", err)
	}

	output := buf.String()
	for _, expected := range []string{"serve", "Start", "MCP server", "stdio", "analyze_request", "hub_stats"} {
		if !strings.Contains(output, expected) {
			t.Errorf("Help output missing %q", expected)
		}
	}
}

func TestServeStdio(t *testing.T) {
	setupHome(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"analyze_request","arguments":{"request":"create a github repository"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"execute_chain","arguments":{"chain":"[CHAIN:github-1→docker-1]"}}}`,
	}, "\n") + "\n"

	out, stderr, err := executeWithInput(t, strings.NewReader(input), "serve", "--no-update-check")
	if err != nil {
		t.Fatalf("serve failed: %v\n%s", err, stderr)
	}

	var responses []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var resp map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, scanner.Text())
		}
		responses = append(responses, resp)
	}
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d:\n%s", len(responses), out)
	}

	if !strings.Contains(out, `"protocolVersion"`) {
		t.Error("initialize response missing protocolVersion")
	}
	if !strings.Contains(out, `github:create_repository`) {
		t.Error("analyze_request response missing the suggested tool")
	}
	if !strings.Contains(out, `\"status\": \"completed\"`) {
		t.Error("execute_chain response missing the completed status")
	}
	if !strings.Contains(stderr, "shutdown complete") {
		t.Errorf("expected a shutdown log, got:\n%s", stderr)
	}

	// The chain was journaled before shutdown.
	history, _, err := execute(t, "history", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(history, "[CHAIN:github-1→docker-1]") {
		t.Errorf("chain not journaled:\n%s", history)
	}
}

func TestServeFallsBackOnBadConfig(t *testing.T) {
	writeConfig(t, "cache: [not, a, map]\n")

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_all_tools","arguments":{}}}` + "\n"
	out, stderr, err := executeWithInput(t, strings.NewReader(input), "serve", "--no-update-check")
	if err != nil {
		t.Fatalf("serve should start on defaults: %v\n%s", err, stderr)
	}
	if !strings.Contains(out, `\"totalCount\": 5`) {
		t.Errorf("expected the default catalog, got:\n%s", out)
	}
	if !strings.Contains(stderr, "config value ignored") {
		t.Errorf("expected a config warning, got:\n%s", stderr)
	}
}

func TestServeMetrics(t *testing.T) {
	addr := freeAddr(t)
	m := metrics.New()
	m.ObserveCache("miss")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMetrics(ctx, addr, m.Handler(), zap.NewNop()) }()

	var body string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err == nil {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			body = string(data)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(body, "lunar_mcp_cache_lookups_total") {
		t.Errorf("metrics output missing cache lookups:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveMetrics returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveMetrics did not stop")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// countingStorage counts Cleanup calls.
type countingStorage struct {
	storage.Storage
	cleanups  atomic.Int32
	retention time.Duration
}

func (s *countingStorage) Cleanup(retention time.Duration) error {
	s.retention = retention
	if s.cleanups.Add(1) == 2 {
		return fmt.Errorf("disk full")
	}
	return nil
}

func TestRunRetention(t *testing.T) {
	store := &countingStorage{}
	core, logs := observer.New(zap.WarnLevel)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runRetention(ctx, store, 30*24*time.Hour, 5*time.Millisecond, zap.New(core))
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for store.cleanups.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if store.cleanups.Load() < 3 {
		t.Fatalf("expected repeated cleanups, got %d", store.cleanups.Load())
	}
	if store.retention != 30*24*time.Hour {
		t.Errorf("retention = %v", store.retention)
	}
	if logs.FilterMessage("journal cleanup failed").Len() != 1 {
		t.Error("expected the failed cleanup to be logged once")
	}
}

func TestCheckForUpdates(t *testing.T) {
	setupHome(t)
	fakeReleases(t, "v2.0.0")
	core, logs := observer.New(zap.InfoLevel)

	checkForUpdates(context.Background(), newUpdateChecker(), zap.New(core))

	entries := logs.FilterMessage("update available").All()
	if len(entries) != 1 {
		t.Fatalf("expected one update log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["latest"]; got != "2.0.0" {
		t.Errorf("latest = %v", got)
	}
	if got := entries[0].ContextMap()["current"]; got != version.Version {
		t.Errorf("current = %v", got)
	}
}
