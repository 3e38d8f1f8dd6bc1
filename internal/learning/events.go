/*
Package learning implements usage pattern learning and asynchronous
journaling.

PatternLearner keeps in-memory statistics (tool frequency, tool-to-tool
sequences and context-word associations) and ranks tools for a new
request. Tracker writes usage records, analysis outcomes and chain
executions to the storage journal in the background so that request
handling never waits on disk.
*/
package learning

import (
	"time"

	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/storage"
)

// EventKind selects which journal table an Event is written to.
type EventKind int

const (
	EventUsage EventKind = iota
	EventAnalysis
	EventChain
)

func (k EventKind) String() string {
	switch k {
	case EventUsage:
		return "usage"
	case EventAnalysis:
		return "analysis"
	case EventChain:
		return "chain"
	default:
		return "unknown"
	}
}

// Event is one queued journal write. Only the field matching Kind is set.
type Event struct {
	Kind     EventKind
	Usage    storage.UsageEvent
	Analysis storage.AnalysisRecord
	Chain    storage.ChainRecord
}

// NewUsageEvent converts a usage record. The context is stored hashed.
func NewUsageEvent(record models.UsageRecord) Event {
	return Event{
		Kind: EventUsage,
		Usage: storage.UsageEvent{
			Tool:         record.Tool,
			ContextHash:  storage.HashQuery(record.Context),
			Accepted:     record.Accepted,
			ResponseTime: record.ResponseTime,
			Timestamp:    record.Timestamp,
		},
	}
}

// NewAnalysisEvent converts an analysis outcome for request. The request
// is stored hashed.
func NewAnalysisEvent(request string, analysis models.Analysis, at time.Time) Event {
	record := storage.AnalysisRecord{
		RequestHash: storage.HashQuery(request),
		Kind:        analysis.Kind,
		Timestamp:   at,
	}

	switch {
	case analysis.Suggestion != nil:
		record.PrimaryTool = analysis.Suggestion.PrimaryTool
		record.Confidence = analysis.Suggestion.Confidence
		record.Reason = analysis.Suggestion.Reason
	case analysis.Chain != nil:
		record.Reason = string(analysis.Chain.Status)
		if analysis.Chain.Status == models.ChainCompleted {
			record.Confidence = 1
		}
	}

	return Event{Kind: EventAnalysis, Analysis: record}
}

// NewChainEvent converts a finished chain execution.
func NewChainEvent(exec models.ChainExecution) Event {
	return Event{Kind: EventChain, Chain: storage.ChainRecordFrom(exec)}
}

func (e Event) write(s storage.Storage) error {
	switch e.Kind {
	case EventAnalysis:
		return s.RecordAnalysis(e.Analysis)
	case EventChain:
		return s.RecordChain(e.Chain)
	default:
		return s.RecordUsage(e.Usage)
	}
}
