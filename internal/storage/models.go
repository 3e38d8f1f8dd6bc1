package storage

import (
	"time"

	"github.com/khanglvm/lunar-mcp/internal/models"
)

// UsageEvent is one journaled usage record.
type UsageEvent struct {
	// Tool is the tool that handled the request.
	Tool string `json:"tool"`

	// ContextHash is the SHA256 hash of the request text.
	ContextHash string `json:"contextHash"`

	Accepted     bool          `json:"accepted"`
	ResponseTime time.Duration `json:"responseTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// AnalysisRecord is one journaled analysis outcome.
type AnalysisRecord struct {
	RequestHash string              `json:"requestHash"`
	Kind        models.AnalysisKind `json:"kind"`
	PrimaryTool string              `json:"primaryTool,omitempty"`
	Confidence  float64             `json:"confidence"`
	Reason      string              `json:"reason,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// ChainRecord is one journaled chain execution.
type ChainRecord struct {
	ID            string             `json:"id"`
	Notation      string             `json:"chain"`
	Status        models.ChainStatus `json:"status"`
	Error         string             `json:"error,omitempty"`
	TotalDuration time.Duration      `json:"totalDuration"`
	Steps         []models.ChainStep `json:"steps"`
	StartedAt     time.Time          `json:"startedAt"`
}

// ChainRecordFrom converts a finished execution into its journal form.
func ChainRecordFrom(exec models.ChainExecution) ChainRecord {
	steps := make([]models.ChainStep, len(exec.Steps))
	copy(steps, exec.Steps)
	return ChainRecord{
		ID:            exec.ID,
		Notation:      exec.Notation,
		Status:        exec.Status,
		Error:         exec.Error,
		TotalDuration: exec.TotalDuration,
		Steps:         steps,
		StartedAt:     exec.StartedAt,
	}
}
