package storage

import (
	"fmt"

	"go.uber.org/zap"
)

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// runMigrations executes database schema migrations in order.
func (s *SQLiteStorage) runMigrations() error {
	if s.db == nil {
		return nil
	}

	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "usage_and_analysis", up: s.migration001UsageAndAnalysis},
		{version: 2, name: "chain_executions", up: s.migration002ChainExecutions},
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		s.logger.Debug("running migration", zap.Int("version", m.version), zap.String("name", m.name))
		if err := m.up(); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if err := s.setMigrationVersion(m.version, m.name); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStorage) createMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLiteStorage) setMigrationVersion(version int, name string) error {
	_, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", version, name)
	return err
}

// migration001UsageAndAnalysis creates the usage and analysis tables.
func (s *SQLiteStorage) migration001UsageAndAnalysis() error {
	statements := []struct {
		what string
		sql  string
	}{
		{"usage_log table", `
			CREATE TABLE IF NOT EXISTS usage_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tool TEXT NOT NULL,
				context_hash TEXT NOT NULL,
				accepted INTEGER NOT NULL,
				response_ms INTEGER NOT NULL,
				timestamp TEXT NOT NULL
			)`},
		{"usage_log tool index", `CREATE INDEX IF NOT EXISTS idx_usage_log_tool ON usage_log(tool)`},
		{"usage_log timestamp index", `CREATE INDEX IF NOT EXISTS idx_usage_log_timestamp ON usage_log(timestamp DESC)`},
		{"analysis_log table", `
			CREATE TABLE IF NOT EXISTS analysis_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				request_hash TEXT NOT NULL,
				kind TEXT NOT NULL,
				primary_tool TEXT,
				confidence REAL NOT NULL,
				reason TEXT,
				timestamp TEXT NOT NULL
			)`},
		{"analysis_log timestamp index", `CREATE INDEX IF NOT EXISTS idx_analysis_log_timestamp ON analysis_log(timestamp DESC)`},
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.what, err)
		}
	}
	return nil
}

// migration002ChainExecutions creates the chain execution table.
func (s *SQLiteStorage) migration002ChainExecutions() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chain_executions (
			id TEXT PRIMARY KEY,
			notation TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			total_ms INTEGER NOT NULL,
			steps_json TEXT NOT NULL,
			started_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create chain_executions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chain_executions_started
		ON chain_executions(started_at DESC)
	`); err != nil {
		return fmt.Errorf("failed to create chain_executions index: %w", err)
	}

	return nil
}
