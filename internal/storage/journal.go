package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/models"
)

// RecordAnalysis appends an analysis outcome.
func (s *SQLiteStorage) RecordAnalysis(record AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	_, err := s.db.Exec(`
		INSERT INTO analysis_log (request_hash, kind, primary_tool, confidence, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		record.RequestHash,
		string(record.Kind),
		record.PrimaryTool,
		record.Confidence,
		record.Reason,
		formatTime(record.Timestamp),
	)
	if err != nil {
		s.logger.Warn("failed to record analysis", zap.Error(err))
	}

	return nil
}

// RecordChain appends a finished chain execution. Re-recording the same
// execution ID replaces the earlier row.
func (s *SQLiteStorage) RecordChain(record ChainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	stepsJSON, err := json.Marshal(record.Steps)
	if err != nil {
		s.logger.Warn("failed to marshal chain steps", zap.String("id", record.ID), zap.Error(err))
		stepsJSON = []byte("[]")
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO chain_executions (id, notation, status, error, total_ms, steps_json, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.Notation,
		string(record.Status),
		record.Error,
		record.TotalDuration.Milliseconds(),
		string(stepsJSON),
		formatTime(record.StartedAt),
	)
	if err != nil {
		s.logger.Warn("failed to record chain execution", zap.String("id", record.ID), zap.Error(err))
	}

	return nil
}

// RecentChains returns up to limit chain executions, newest first.
func (s *SQLiteStorage) RecentChains(limit int) ([]ChainRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return []ChainRecord{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT id, notation, status, error, total_ms, steps_json, started_at
		FROM chain_executions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		s.logger.Warn("failed to query chain executions", zap.Error(err))
		return []ChainRecord{}, nil
	}
	defer rows.Close()

	return s.scanChains(rows)
}

// scanChains reads chain_executions rows. Rows that do not scan are
// skipped; an iteration error returns the rows read so far with the error.
func (s *SQLiteStorage) scanChains(rows rowIterator) ([]ChainRecord, error) {
	records := []ChainRecord{}
	for rows.Next() {
		var record ChainRecord
		var status, errText, stepsJSON, startedAt string
		var totalMS int64

		if err := rows.Scan(&record.ID, &record.Notation, &status, &errText, &totalMS, &stepsJSON, &startedAt); err != nil {
			s.logger.Warn("failed to scan chain row", zap.Error(err))
			continue
		}

		var err error
		record.StartedAt, err = parseTime(startedAt)
		if err != nil {
			s.logger.Warn("failed to parse timestamp", zap.String("value", startedAt), zap.Error(err))
			continue
		}
		if err := json.Unmarshal([]byte(stepsJSON), &record.Steps); err != nil {
			s.logger.Warn("failed to parse chain steps", zap.String("id", record.ID), zap.Error(err))
		}
		record.Status = models.ChainStatus(status)
		record.Error = errText
		record.TotalDuration = time.Duration(totalMS) * time.Millisecond

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("chain executions read interrupted", zap.Int("read", len(records)), zap.Error(err))
		return records, fmt.Errorf("failed to read chain executions: %w", err)
	}

	return records, nil
}
