package storage

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RecordUsage appends a usage record.
func (s *SQLiteStorage) RecordUsage(event UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	accepted := 0
	if event.Accepted {
		accepted = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO usage_log (tool, context_hash, accepted, response_ms, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.Tool,
		event.ContextHash,
		accepted,
		event.ResponseTime.Milliseconds(),
		formatTime(event.Timestamp),
	)
	if err != nil {
		s.logger.Warn("failed to record usage", zap.String("tool", event.Tool), zap.Error(err))
	}

	return nil
}

// UsageSince returns usage records at or after since, newest first.
// A limit <= 0 returns every matching record.
func (s *SQLiteStorage) UsageSince(since time.Time, limit int) ([]UsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return []UsageEvent{}, nil
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT tool, context_hash, accepted, response_ms, timestamp
		FROM usage_log
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, formatTime(since), limit)
	if err != nil {
		s.logger.Warn("failed to query usage log", zap.Error(err))
		return []UsageEvent{}, nil
	}
	defer rows.Close()

	return s.scanUsage(rows)
}

// scanUsage reads usage rows. Rows that do not scan are skipped; an
// iteration error returns the rows read so far with the error.
func (s *SQLiteStorage) scanUsage(rows rowIterator) ([]UsageEvent, error) {
	events := []UsageEvent{}
	for rows.Next() {
		var event UsageEvent
		var accepted int
		var responseMS int64
		var timestamp string

		if err := rows.Scan(&event.Tool, &event.ContextHash, &accepted, &responseMS, &timestamp); err != nil {
			s.logger.Warn("failed to scan usage row", zap.Error(err))
			continue
		}

		var err error
		event.Timestamp, err = parseTime(timestamp)
		if err != nil {
			s.logger.Warn("failed to parse timestamp", zap.String("value", timestamp), zap.Error(err))
			continue
		}
		event.Accepted = accepted == 1
		event.ResponseTime = time.Duration(responseMS) * time.Millisecond

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("usage log read interrupted", zap.Int("read", len(events)), zap.Error(err))
		return events, fmt.Errorf("failed to read usage log: %w", err)
	}

	return events, nil
}

// Cleanup removes records older than retention and reclaims space.
func (s *SQLiteStorage) Cleanup(retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil || retention <= 0 {
		return nil
	}

	cutoff := formatTime(time.Now().Add(-retention))

	cleanups := []struct {
		table string
		query string
	}{
		{"usage_log", "DELETE FROM usage_log WHERE timestamp < ?"},
		{"analysis_log", "DELETE FROM analysis_log WHERE timestamp < ?"},
		{"chain_executions", "DELETE FROM chain_executions WHERE started_at < ?"},
	}
	for _, c := range cleanups {
		if _, err := s.db.Exec(c.query, cutoff); err != nil {
			s.logger.Warn("failed to clean up journal table", zap.String("table", c.table), zap.Error(err))
		}
	}

	if _, err := s.db.Exec("VACUUM"); err != nil {
		s.logger.Warn("failed to vacuum database", zap.Error(err))
	}

	return nil
}
