/*
Package mcp implements the MCP server that exposes the analysis engine.

The server uses stdio transport (newline-delimited JSON-RPC 2.0) and
exposes 7 tools:
  - analyze_request: Suggest a tool for a request, resolve a jump code,
    or run a [CHAIN:...] notation
  - list_all_tools: The tool catalog with categories and jump codes
  - validate_chain: Resolve the steps of a chain without running it
  - execute_chain: Run a chain
  - search_tools: Rank tools for a free-text query
  - predict_next: Tools observed to follow a tool
  - hub_stats: Cache, learner and chain statistics

The engine can be swapped while serving (config reload); each call uses
the engine current when it starts.
*/
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/engine"
	"github.com/khanglvm/lunar-mcp/internal/version"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "lunar-mcp"

	// maxLineSize bounds a single request line.
	maxLineSize = 4 * 1024 * 1024
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Server represents the lunar-mcp MCP server.
type Server struct {
	engine atomic.Pointer[engine.Engine]
	logger *zap.Logger

	writeMu sync.Mutex
}

// NewServer creates a new MCP server backed by eng.
func NewServer(eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{logger: logger}
	s.engine.Store(eng)
	return s
}

// SetEngine replaces the engine used by subsequent calls and returns the
// previous one.
func (s *Server) SetEngine(eng *engine.Engine) *engine.Engine {
	return s.engine.Swap(eng)
}

// Engine returns the current engine.
func (s *Server) Engine() *engine.Engine {
	return s.engine.Load()
}

// Run serves requests read from in until in is exhausted or ctx is done.
// Responses are written to out, one JSON object per line.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			if resp := s.HandleMessage(ctx, line); resp != nil {
				if err := s.write(out, resp); err != nil {
					return fmt.Errorf("failed to write response: %w", err)
				}
			}
		}
	}
}

// MCPRequest represents an incoming MCP JSON-RPC request.
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing MCP JSON-RPC response.
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents an MCP error.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HandleMessage processes one JSON-RPC message. Notifications get no
// response.
func (s *Server) HandleMessage(ctx context.Context, data []byte) *MCPResponse {
	var req MCPRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(nil, codeParseError, fmt.Sprintf("invalid JSON-RPC request: %v", err))
	}
	if req.ID == nil {
		s.logger.Debug("notification", zap.String("method", req.Method))
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(&req)
	case "ping":
		return &MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return s.handleToolsList(&req)
	case "tools/call":
		return s.handleToolsCall(ctx, &req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "Method not found")
	}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": version.Version,
			},
		},
	}
}

func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": toolDefinitions(s.Engine()),
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}

	result, err := s.callTool(ctx, s.Engine(), params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug("tool call failed", zap.String("tool", params.Name), zap.Error(err))
		return &MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: FormatError(err)}
	}

	content, err := FormatResponse(result)
	if err != nil {
		return &MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: FormatError(err)}
	}
	return &MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: content}
}

func (s *Server) write(out io.Writer, resp *MCPResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = out.Write(append(data, '\n'))
	return err
}

func errorResponse(id interface{}, code int, message string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: message},
	}
}
