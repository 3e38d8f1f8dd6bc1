/*
Package spawner runs chain steps on child MCP servers.

A tool named "<server>:<tool>" runs on the server configured under
<server>. The pool spawns each server lazily on its first step, keeps it
alive for later steps, and talks MCP JSON-RPC over its stdio. Tools whose
server is not configured go to a fallback invoker.
*/
package spawner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/chain"
	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/version"
)

// DefaultTimeout is the maximum time to wait for an MCP response.
// Set to 60s to handle npx package downloads on cold start.
const DefaultTimeout = 60 * time.Second

// DefaultMaxSize bounds the number of live server processes.
const DefaultMaxSize = 3

const protocolVersion = "2024-11-05"

// ErrServerNotConfigured is returned for a tool whose server has no entry
// in the config and no fallback is set.
var ErrServerNotConfigured = errors.New("server not configured")

// Tool represents a tool definition from a child MCP server.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

// Options configures a Pool.
type Options struct {
	MaxSize  int
	Timeout  time.Duration
	Fallback chain.Invoker
	Logger   *zap.Logger
}

// Pool manages child MCP server processes. It implements chain.Invoker.
type Pool struct {
	servers  map[string]*config.ServerConfig
	maxSize  int
	timeout  time.Duration
	fallback chain.Invoker
	logger   *zap.Logger

	mu        sync.Mutex
	processes map[string]*Process
}

var _ chain.Invoker = (*Pool)(nil)

// Process represents a running MCP server process.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	// reqID is a counter rather than a timestamp so ids stay within the
	// integer precision of JavaScript servers.
	reqID    int64
	lastUsed time.Time
	// cancel cancels the stderr draining goroutine on process termination
	cancel context.CancelFunc
}

// NewPool creates a pool over the configured servers.
func NewPool(servers map[string]*config.ServerConfig, opts Options) *Pool {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if servers == nil {
		servers = make(map[string]*config.ServerConfig)
	}

	return &Pool{
		servers:   servers,
		maxSize:   opts.MaxSize,
		timeout:   opts.Timeout,
		fallback:  opts.Fallback,
		logger:    opts.Logger,
		processes: make(map[string]*Process),
	}
}

// SplitToolName splits "<server>:<tool>". A name without ":" has no server.
func SplitToolName(name string) (server, tool string) {
	server, tool, ok := strings.Cut(name, ":")
	if !ok {
		return "", name
	}
	return server, tool
}

// Invoke runs tool on its server and returns the text content of the
// result. A result flagged isError becomes an error carrying that text.
func (p *Pool) Invoke(ctx context.Context, tool models.Tool, args map[string]any) (string, error) {
	server, remote := SplitToolName(tool.Name)
	cfg, ok := p.servers[server]
	if !ok {
		if p.fallback != nil {
			return p.fallback.Invoke(ctx, tool, args)
		}
		return "", fmt.Errorf("%w: %q (tool %s)", ErrServerNotConfigured, server, tool.Name)
	}
	return p.ExecuteTool(ctx, server, cfg, remote, args)
}

// Close terminates all spawned processes and cleans up resources.
// Implements graceful shutdown: closes stdin first, waits 2s, then force kills.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, proc := range p.processes {
		p.logger.Debug("terminating server", zap.String("server", name))
		if err := p.terminate(name, proc); err != nil {
			errs = append(errs, err)
		}
	}
	p.processes = make(map[string]*Process)

	return errors.Join(errs...)
}

// Len returns the number of live processes.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processes)
}

func (p *Pool) terminate(name string, proc *Process) error {
	if proc.stdin != nil {
		if err := proc.stdin.Close(); err != nil {
			p.logger.Warn("failed to close stdin", zap.String("server", name), zap.Error(err))
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.cmd.Wait()
	}()

	select {
	case err := <-done:
		proc.kill()
		if err != nil && !strings.Contains(err.Error(), "signal: killed") {
			return fmt.Errorf("%s: %w", name, err)
		}
	case <-time.After(2 * time.Second):
		p.logger.Warn("server did not exit gracefully, force killing", zap.String("server", name))
		proc.kill()
	}
	return nil
}

// GetTools spawns a server (if needed) and returns its tool list.
func (p *Pool) GetTools(ctx context.Context, name string, cfg *config.ServerConfig) ([]Tool, error) {
	proc, err := p.getOrSpawn(ctx, name, cfg)
	if err != nil {
		return nil, err
	}

	raw, err := p.request(ctx, name, proc, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool list: %w", err)
	}
	return result.Tools, nil
}

// callResult is the MCP tools/call result.
type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// ExecuteTool executes a tool on a child server.
func (p *Pool) ExecuteTool(ctx context.Context, name string, cfg *config.ServerConfig, toolName string, args map[string]any) (string, error) {
	proc, err := p.getOrSpawn(ctx, name, cfg)
	if err != nil {
		return "", err
	}

	if args == nil {
		args = map[string]any{}
	}
	raw, err := p.request(ctx, name, proc, "tools/call", map[string]any{
		"name":      toolName,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var result callResult
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Content) == 0 {
		return string(raw), nil
	}

	texts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		if c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	output := strings.Join(texts, "\n")
	if result.IsError {
		return "", fmt.Errorf("tool %s on %s failed: %s", toolName, name, output)
	}
	return output, nil
}

// request sends one request and drops the process when the exchange
// fails, since its stdout is no longer in step with our requests.
func (p *Pool) request(ctx context.Context, name string, proc *Process, method string, params any) (json.RawMessage, error) {
	raw, err := proc.sendRequest(ctx, method, params, p.timeout)
	if err == nil {
		return raw, nil
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		p.mu.Lock()
		if p.processes[name] == proc {
			delete(p.processes, name)
		}
		p.mu.Unlock()
		proc.kill()
		p.logger.Warn("dropped server after failed request", zap.String("server", name), zap.Error(err))
	}
	return nil, err
}

// getOrSpawn returns an existing process or spawns a new one, evicting the
// least recently used process when the pool is full.
func (p *Pool) getOrSpawn(ctx context.Context, name string, cfg *config.ServerConfig) (*Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if proc, exists := p.processes[name]; exists {
		proc.lastUsed = time.Now()
		return proc, nil
	}

	if err := config.ValidateServer(name, cfg); err != nil {
		return nil, err
	}

	if len(p.processes) >= p.maxSize {
		p.evictOldestLocked()
	}

	proc, err := p.spawn(cfg)
	if err != nil {
		return nil, err
	}

	if err := proc.initialize(ctx, p.timeout); err != nil {
		proc.kill()
		// EOF here usually means the npm package does not exist.
		if strings.Contains(err.Error(), "EOF") {
			if pkg := getNpmPackageFromConfig(cfg); pkg != "" {
				return nil, fmt.Errorf("MCP server failed to start. Package '%s' may not exist or failed to load. Verify with: npm view %s", pkg, pkg)
			}
		}
		return nil, fmt.Errorf("failed to initialize server %s: %w", name, err)
	}

	p.logger.Info("spawned server", zap.String("server", name), zap.String("command", cfg.Command))
	proc.lastUsed = time.Now()
	p.processes[name] = proc
	return proc, nil
}

func (p *Pool) evictOldestLocked() {
	var oldest string
	var oldestProc *Process
	for name, proc := range p.processes {
		if oldestProc == nil || proc.lastUsed.Before(oldestProc.lastUsed) {
			oldest, oldestProc = name, proc
		}
	}
	if oldestProc == nil {
		return
	}
	delete(p.processes, oldest)
	p.logger.Debug("evicting server", zap.String("server", oldest))
	go func() {
		if err := p.terminate(oldest, oldestProc); err != nil {
			p.logger.Warn("evicted server exited with error", zap.Error(err))
		}
	}()
}

// execCommand is a variable that allows tests to mock exec.Command
var execCommand = exec.Command

func (p *Pool) spawn(cfg *config.ServerConfig) (*Process, error) {
	cmd := execCommand(cfg.Command, cfg.Args...)

	cmd.Env = os.Environ()
	for key, value := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	// stderr must be drained: a server that fills the pipe buffer blocks
	// on its stdout too.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		io.Copy(io.Discard, stderr)
		select {
		case <-ctx.Done():
		default:
		}
	}()

	return &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		cancel: cancel,
	}, nil
}

// initialize sends the MCP initialize request and initialized notification.
func (proc *Process) initialize(ctx context.Context, timeout time.Duration) error {
	_, err := proc.sendRequest(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "lunar-mcp",
			"version": version.Version,
		},
	}, timeout)
	if err != nil {
		return err
	}

	notification, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	})
	if err != nil {
		return err
	}

	proc.mu.Lock()
	_, err = proc.stdin.Write(append(notification, '\n'))
	proc.mu.Unlock()
	return err
}

// RPCError is an error response from a child server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// sendRequest sends a JSON-RPC request and waits for its response until
// timeout or ctx is done.
func (proc *Process) sendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	proc.mu.Lock()
	defer proc.mu.Unlock()

	proc.reqID++
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      proc.reqID,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := proc.stdin.Write(append(reqBytes, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	responseChan := make(chan []byte, 1)
	errorChan := make(chan error, 1)
	go func() {
		line, err := proc.stdout.ReadBytes('\n')
		if err != nil {
			errorChan <- fmt.Errorf("failed to read response: %w", err)
			return
		}
		responseChan <- line
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-responseChan:
		var resp struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      any             `json:"id"`
			Result  json.RawMessage `json:"result"`
			Error   *RPCError       `json:"error"`
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil

	case err := <-errorChan:
		return nil, err

	case <-ctx.Done():
		return nil, ctx.Err()

	case <-timer.C:
		return nil, fmt.Errorf("timeout after %v waiting for MCP response", timeout)
	}
}

// kill terminates the process and cancels the stderr goroutine.
func (proc *Process) kill() {
	if proc.cancel != nil {
		proc.cancel()
	}
	if proc.cmd != nil && proc.cmd.Process != nil {
		proc.cmd.Process.Kill()
	}
}

// getNpmPackageFromConfig extracts npm package name from server config.
func getNpmPackageFromConfig(cfg *config.ServerConfig) string {
	if cfg.Command != "npx" {
		return ""
	}
	for _, arg := range cfg.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return ""
}
