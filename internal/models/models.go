/*
Package models defines the data types shared by the analysis engine.

These types describe tools, jump codes, suggestions, usage records and
chain executions. They carry no behavior beyond small helpers.
*/
package models

import "time"

// Tool is a single entry in the tool registry.
type Tool struct {
	// Name uniquely identifies the tool (e.g., "github:create_repository").
	Name string `json:"name" yaml:"name"`

	// Category groups tools for jump-code assignment (e.g., "github").
	Category string `json:"category" yaml:"category"`
}

// JumpCode maps a short code such as "github-1" to a tool name.
type JumpCode struct {
	Code    string `json:"jumpCode"`
	Tool    string `json:"tool"`
	Pattern string `json:"pattern"`
}

// Suggestion is the outcome of analyzing a request.
// An empty PrimaryTool with zero confidence means no tool qualified.
type Suggestion struct {
	PrimaryTool string   `json:"primaryTool,omitempty"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason"`
	JumpCode    string   `json:"jumpCode,omitempty"`
	Suggestions []string `json:"suggestions"`

	// Similarity and MatchedQuery are set only when the suggestion was
	// served from an approximate cache match.
	Similarity   float64 `json:"similarity,omitempty"`
	MatchedQuery string  `json:"originalQuery,omitempty"`
}

// HasTool reports whether the suggestion names a primary tool.
func (s Suggestion) HasTool() bool {
	return s.PrimaryTool != ""
}

// Clone returns a copy that shares no slices with s.
func (s Suggestion) Clone() Suggestion {
	out := s
	out.Suggestions = append([]string{}, s.Suggestions...)
	return out
}

// UsageRecord is one logged tool usage.
type UsageRecord struct {
	Tool         string        `json:"tool"`
	Context      string        `json:"context"`
	Accepted     bool          `json:"accepted"`
	ResponseTime time.Duration `json:"responseTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// StepStatus is the lifecycle state of a chain step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ChainStatus is the terminal state of a chain execution.
type ChainStatus string

const (
	ChainCompleted ChainStatus = "completed"
	ChainFailed    ChainStatus = "failed"
)

// ChainStep records a single step of a chain execution.
type ChainStep struct {
	// Index is the 1-based position of the step in the chain.
	Index int `json:"step"`

	// Step is the identifier as written in the chain notation.
	Step string `json:"identifier"`

	// ToolName is the resolved tool, empty when resolution failed.
	ToolName string `json:"tool,omitempty"`

	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration,omitempty"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// ChainExecution is the audit record of one chain run.
// It is never modified after Status is set.
type ChainExecution struct {
	ID            string        `json:"id"`
	Notation      string        `json:"chain"`
	Steps         []ChainStep   `json:"steps"`
	Status        ChainStatus   `json:"status"`
	TotalDuration time.Duration `json:"totalDuration"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
}

// Clone returns a deep copy of the execution.
func (e ChainExecution) Clone() ChainExecution {
	out := e
	out.Steps = append([]ChainStep{}, e.Steps...)
	return out
}

// StepValidation is the pre-flight result for one chain step.
type StepValidation struct {
	Step  string `json:"step"`
	Tool  string `json:"tool,omitempty"`
	Valid bool   `json:"valid"`
}

// ValidationResult is the pre-flight result for a whole chain.
type ValidationResult struct {
	Valid  bool             `json:"valid"`
	Steps  []StepValidation `json:"steps"`
	Errors []string         `json:"errors"`
}

// AnalysisKind distinguishes the two terminal paths of request analysis.
type AnalysisKind string

const (
	KindSuggestion AnalysisKind = "suggestion"
	KindChain      AnalysisKind = "chain"
)

// Analysis is the result of analyzing a request: either a suggestion or
// a chain execution trace.
type Analysis struct {
	Kind       AnalysisKind    `json:"kind"`
	Suggestion *Suggestion     `json:"suggestion,omitempty"`
	Chain      *ChainExecution `json:"chain,omitempty"`
}
