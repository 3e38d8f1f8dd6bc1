package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/khanglvm/lunar-mcp/internal/engine"
	"github.com/khanglvm/lunar-mcp/internal/learning"
	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/search"
)

// defaultSearchLimit applies when search_tools gets no limit.
const defaultSearchLimit = 5

var errNoEngine = errors.New("engine is not ready")

// toolDefinitions returns the tools/list entries. The analyze_request
// description carries the live jump-code catalog so clients can use codes
// without a list_all_tools round trip.
func toolDefinitions(eng *engine.Engine) []map[string]interface{} {
	return []map[string]interface{}{
		{
			"name": "analyze_request",
			"description": fmt.Sprintf(`Analyze a natural language request and suggest the tool that should handle it.

WHEN TO USE: Before picking a tool for a user request.

SHORTCUTS:
- Include [TOOL:<code>] to name a tool directly (confidence 1.0)
- Include [CHAIN:a→b→c] to run the listed steps in order

JUMP CODES:
%s
Returns: primaryTool, confidence, reason and alternative suggestions, or the chain execution trace.`, jumpCodeCatalog(eng)),
			"inputSchema": objectSchema(map[string]interface{}{
				"request": stringProperty("The natural language request to analyze"),
			}, "request"),
		},
		{
			"name":        "list_all_tools",
			"description": "List every tool with its category and jump code.",
			"inputSchema": objectSchema(map[string]interface{}{}),
		},
		{
			"name": "validate_chain",
			"description": `Check that every step of a chain notation resolves to a tool, without running it.

Example: validate_chain(chain="[CHAIN:github-1→docker-1]")`,
			"inputSchema": objectSchema(map[string]interface{}{
				"chain": stringProperty("Chain notation, e.g. [CHAIN:github-1→docker-1]"),
			}, "chain"),
		},
		{
			"name": "execute_chain",
			"description": `Run the steps of a chain notation in order. Execution stops at the first failing step.

Returns: the execution trace with per-step status and duration.`,
			"inputSchema": objectSchema(map[string]interface{}{
				"chain": stringProperty("Chain notation, e.g. [CHAIN:github-1→docker-1]"),
			}, "chain"),
		},
		{
			"name": "search_tools",
			"description": `Search the tool catalog with a free-text query.

Example queries: "create repository", "container", "run command"`,
			"inputSchema": objectSchema(map[string]interface{}{
				"query": stringProperty("What you want to do"),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (default 5)",
				},
			}, "query"),
		},
		{
			"name":        "predict_next",
			"description": "Predict which tools usually follow the given tool, from observed usage.",
			"inputSchema": objectSchema(map[string]interface{}{
				"tool": stringProperty("Full tool name, e.g. github:create_repository"),
			}, "tool"),
		},
		{
			"name":        "hub_stats",
			"description": "Report cache, learning and chain statistics.",
			"inputSchema": objectSchema(map[string]interface{}{}),
		},
	}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProperty(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func jumpCodeCatalog(eng *engine.Engine) string {
	if eng == nil {
		return ""
	}
	var b strings.Builder
	for _, code := range eng.ListJumpCodes() {
		fmt.Fprintf(&b, "  • %s → %s\n", code.Pattern, code.Tool)
	}
	return b.String()
}

// callTool dispatches one tools/call.
func (s *Server) callTool(ctx context.Context, eng *engine.Engine, name string, args map[string]interface{}) (interface{}, error) {
	if eng == nil {
		return nil, errNoEngine
	}

	switch name {
	case "analyze_request":
		request, err := stringArg(args, "request")
		if err != nil {
			return nil, err
		}
		analysis := eng.Analyze(ctx, request)
		if analysis.Kind == models.KindChain {
			return analysis.Chain, nil
		}
		return analysis.Suggestion, nil

	case "list_all_tools":
		return eng.Catalog(), nil

	case "validate_chain":
		notation, err := stringArg(args, "chain")
		if err != nil {
			return nil, err
		}
		return eng.ValidateChain(notation), nil

	case "execute_chain":
		notation, err := stringArg(args, "chain")
		if err != nil {
			return nil, err
		}
		return eng.ExecuteChain(ctx, notation), nil

	case "search_tools":
		query, err := stringArg(args, "query")
		if err != nil {
			return nil, err
		}
		limit := defaultSearchLimit
		if raw, ok := args["limit"].(float64); ok && raw >= 1 {
			limit = int(raw)
		}
		results, err := eng.SearchTools(query, limit)
		if err != nil {
			return nil, err
		}
		if results == nil {
			results = []search.SearchResult{}
		}
		return map[string]interface{}{"query": query, "results": results, "total": len(results)}, nil

	case "predict_next":
		tool, err := stringArg(args, "tool")
		if err != nil {
			return nil, err
		}
		predictions := eng.PredictNext(tool)
		if predictions == nil {
			predictions = []learning.Prediction{}
		}
		return map[string]interface{}{"tool": tool, "predictions": predictions}, nil

	case "hub_stats":
		return eng.Stats(), nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	value, ok := args[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	return value, nil
}
