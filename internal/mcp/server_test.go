package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/khanglvm/lunar-mcp/internal/clock"
	"github.com/khanglvm/lunar-mcp/internal/engine"
	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng := engine.New(registry.New(registry.DefaultTools()), engine.Options{
		Clock: clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	})
	t.Cleanup(func() { eng.Close() })
	return NewServer(eng, nil)
}

// call issues tools/call and returns the text content and the error flag.
func call(t *testing.T, s *Server, name string, args map[string]interface{}) (string, bool) {
	t.Helper()
	params, _ := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	req, _ := json.Marshal(MCPRequest{JSONRPC: "2.0", ID: 7, Method: "tools/call", Params: params})

	resp := s.HandleMessage(context.Background(), req)
	if resp == nil {
		t.Fatal("tools/call returned no response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected JSON-RPC error: %+v", resp.Error)
	}
	result, ok := resp.Result.(*ToolResult)
	if !ok {
		t.Fatalf("result is %T, want *ToolResult", resp.Result)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("unexpected content %+v", result.Content)
	}
	return result.Content[0].Text, result.IsError
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	if result["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]interface{})
	if info["name"] != "lunar-mcp" {
		t.Errorf("server name = %v", info["name"])
	}
}

func TestHandleToolsList(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":"a","method":"tools/list"}`))

	if resp.ID != "a" {
		t.Errorf("expected ID a, got %v", resp.ID)
	}
	tools := resp.Result.(map[string]interface{})["tools"].([]map[string]interface{})

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool["name"].(string)] = true
		if _, ok := tool["inputSchema"]; !ok {
			t.Errorf("tool %v has no input schema", tool["name"])
		}
	}
	for _, want := range []string{"analyze_request", "list_all_tools", "validate_chain", "execute_chain", "search_tools", "predict_next", "hub_stats"} {
		if !names[want] {
			t.Errorf("missing expected tool: %s", want)
		}
	}

	description := tools[0]["description"].(string)
	if !strings.Contains(description, "[TOOL:github-1] → github:create_repository") {
		t.Errorf("analyze_request description should list jump codes:\n%s", description)
	}
}

func TestAnalyzeRequest(t *testing.T) {
	s := newTestServer(t)

	text, isError := call(t, s, "analyze_request", map[string]interface{}{"request": "create a github repository"})
	if isError {
		t.Fatalf("unexpected error: %s", text)
	}

	var suggestion models.Suggestion
	if err := json.Unmarshal([]byte(text), &suggestion); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, text)
	}
	if suggestion.PrimaryTool != "github:create_repository" || suggestion.Confidence != 0.85 {
		t.Errorf("unexpected suggestion %+v", suggestion)
	}
	if !strings.Contains(text, "\n  \"primaryTool\"") {
		t.Errorf("result should be indented JSON:\n%s", text)
	}
}

func TestAnalyzeRequestJumpCode(t *testing.T) {
	s := newTestServer(t)

	text, _ := call(t, s, "analyze_request", map[string]interface{}{"request": "[TOOL:docker-1]"})
	var suggestion models.Suggestion
	if err := json.Unmarshal([]byte(text), &suggestion); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if suggestion.PrimaryTool != "docker-mcp:create-container" || suggestion.Confidence != 1.0 || suggestion.JumpCode != "docker-1" {
		t.Errorf("unexpected suggestion %+v", suggestion)
	}
}

func TestAnalyzeRequestChain(t *testing.T) {
	s := newTestServer(t)

	text, _ := call(t, s, "analyze_request", map[string]interface{}{"request": "[CHAIN:github-1→docker-1]"})
	var exec models.ChainExecution
	if err := json.Unmarshal([]byte(text), &exec); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if exec.Status != models.ChainCompleted || len(exec.Steps) != 2 {
		t.Errorf("unexpected execution %+v", exec)
	}
	if exec.Steps[1].ToolName != "docker-mcp:create-container" {
		t.Errorf("unexpected step %+v", exec.Steps[1])
	}
}

func TestChainTools(t *testing.T) {
	s := newTestServer(t)

	text, _ := call(t, s, "validate_chain", map[string]interface{}{"chain": "[CHAIN:github-1→nope]"})
	var validation models.ValidationResult
	if err := json.Unmarshal([]byte(text), &validation); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if validation.Valid || len(validation.Errors) != 1 {
		t.Errorf("unexpected validation %+v", validation)
	}

	text, _ = call(t, s, "execute_chain", map[string]interface{}{"chain": "[CHAIN:github-1→nope]"})
	var exec models.ChainExecution
	if err := json.Unmarshal([]byte(text), &exec); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if exec.Status != models.ChainFailed || exec.Error != "tool not found for step: nope" {
		t.Errorf("unexpected execution %+v", exec)
	}
}

func TestListAllTools(t *testing.T) {
	s := newTestServer(t)

	text, _ := call(t, s, "list_all_tools", nil)
	var catalog engine.Catalog
	if err := json.Unmarshal([]byte(text), &catalog); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if catalog.TotalCount != 5 || len(catalog.JumpCodes) != 5 {
		t.Errorf("unexpected catalog %+v", catalog)
	}
	if len(catalog.Categories["github"]) != 2 {
		t.Errorf("unexpected categories %+v", catalog.Categories)
	}
}

func TestSearchAndPredict(t *testing.T) {
	s := newTestServer(t)

	text, isError := call(t, s, "search_tools", map[string]interface{}{"query": "container", "limit": 2})
	if isError {
		t.Fatalf("search failed: %s", text)
	}
	if !strings.Contains(text, "docker-mcp:create-container") {
		t.Errorf("search should find the docker tool:\n%s", text)
	}

	call(t, s, "analyze_request", map[string]interface{}{"request": "create a github repository"})
	call(t, s, "analyze_request", map[string]interface{}{"request": "create a docker container"})

	text, _ = call(t, s, "predict_next", map[string]interface{}{"tool": "github:create_repository"})
	if !strings.Contains(text, "docker-mcp:create-container") {
		t.Errorf("prediction should follow observed usage:\n%s", text)
	}

	text, _ = call(t, s, "hub_stats", nil)
	var stats engine.Stats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if stats.Patterns.TotalUsage != 2 || stats.Tools != 5 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestToolErrorsAreTextContent(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
		want string
	}{
		{"unknown tool", "nope", nil, "Error: unknown tool: nope"},
		{"missing request", "analyze_request", nil, "Error: missing required argument: request"},
		{"blank chain", "execute_chain", map[string]interface{}{"chain": "  "}, "Error: missing required argument: chain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isError := call(t, s, tt.tool, tt.args)
			if !isError {
				t.Error("expected isError")
			}
			if text != tt.want {
				t.Errorf("got %q, want %q", text, tt.want)
			}
		})
	}
}

func TestJSONRPCErrorHandling(t *testing.T) {
	s := newTestServer(t)

	resp := s.HandleMessage(context.Background(), []byte(`{not json`))
	if resp == nil || resp.Error == nil || resp.Error.Code != codeParseError {
		t.Errorf("expected parse error, got %+v", resp)
	}

	resp = s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`))
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp)
	}

	resp = s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":"bad"}`))
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Errorf("expected invalid params, got %+v", resp)
	}

	if resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)); resp != nil {
		t.Errorf("notifications get no response, got %+v", resp)
	}
}

func TestRunOverStdio(t *testing.T) {
	s := newTestServer(t)

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"analyze_request","arguments":{"request":"[TOOL:file-1]"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	}, "\n"))
	var out bytes.Buffer

	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 responses, got %d:\n%s", len(lines), out.String())
	}

	var resp struct {
		ID     float64    `json:"id"`
		Result ToolResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &resp); err != nil {
		t.Fatalf("bad response line: %v", err)
	}
	if resp.ID != 2 || !strings.Contains(resp.Result.Content[0].Text, "filesystem:file_operation") {
		t.Errorf("unexpected response %s", lines[1])
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	reader, writer := io.Pipe()
	defer writer.Close()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, reader, &bytes.Buffer{}) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSetEngine(t *testing.T) {
	s := newTestServer(t)

	next := engine.New(registry.New([]models.Tool{{Name: "slack:post_message", Category: "slack"}}), engine.Options{})
	t.Cleanup(func() { next.Close() })
	previous := s.SetEngine(next)
	if previous == nil || previous == next {
		t.Fatal("SetEngine should return the previous engine")
	}

	text, _ := call(t, s, "analyze_request", map[string]interface{}{"request": "[TOOL:slack-1]"})
	if !strings.Contains(text, "slack:post_message") {
		t.Errorf("calls should use the new engine:\n%s", text)
	}
}

func TestNilEngine(t *testing.T) {
	s := NewServer(nil, nil)
	text, isError := call(t, s, "hub_stats", nil)
	if !isError || !strings.Contains(text, errNoEngine.Error()) {
		t.Errorf("unexpected result %q", text)
	}
}

func TestFormatResponse(t *testing.T) {
	result, err := FormatResponse("plain")
	if err != nil || result.Content[0].Text != "plain" {
		t.Errorf("strings should pass through, got %+v, %v", result, err)
	}

	if _, err := FormatResponse(make(chan int)); err == nil {
		t.Error("unencodable values should fail")
	}

	if got := FormatError(errors.New("boom")).Content[0].Text; got != "Error: boom" {
		t.Errorf("FormatError = %q", got)
	}
}
