package mcp

import (
	"encoding/json"
	"fmt"
)

// Content is one item of a tools/call result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the MCP tools/call result.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// FormatResponse wraps data as text content. Strings are passed through;
// anything else is rendered as indented JSON.
func FormatResponse(data interface{}) (*ToolResult, error) {
	if text, ok := data.(string); ok {
		return &ToolResult{Content: []Content{{Type: "text", Text: text}}}, nil
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &ToolResult{Content: []Content{{Type: "text", Text: string(encoded)}}}, nil
}

// FormatError renders err as "Error: <message>" text content.
func FormatError(err error) *ToolResult {
	return &ToolResult{
		Content: []Content{{Type: "text", Text: "Error: " + err.Error()}},
		IsError: true,
	}
}
