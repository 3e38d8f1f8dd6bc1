/*
Package storage implements the analysis journal.

The journal is an append-mostly SQLite audit trail of usage records,
analysis outcomes and chain executions. It is read back only for reporting
(the history command); learned state is never rebuilt from it.

The database lives at ~/.lunar-mcp/journal.db by default and uses
modernc.org/sqlite (a pure Go, CGo-free implementation). If the database
cannot be opened the journal disables itself and every operation becomes a
no-op.
*/
package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Storage defines the journal operations.
type Storage interface {
	// Init opens the database and runs migrations.
	Init() error

	// RecordUsage appends a usage record.
	RecordUsage(event UsageEvent) error

	// UsageSince returns usage records at or after since, newest first.
	UsageSince(since time.Time, limit int) ([]UsageEvent, error)

	// RecordAnalysis appends an analysis outcome.
	RecordAnalysis(record AnalysisRecord) error

	// RecordChain appends a finished chain execution.
	RecordChain(record ChainRecord) error

	// RecentChains returns the latest chain executions, newest first.
	RecentChains(limit int) ([]ChainRecord, error)

	// Cleanup removes records older than the retention window.
	Cleanup(retention time.Duration) error

	// Close closes the database connection.
	Close() error
}

// rowIterator is the part of *sql.Rows the row readers use.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// SQLiteStorage implements Storage on SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	enabled  bool
	logger   *zap.Logger
	mu       sync.Mutex
	initOnce sync.Once
}

// DefaultPath returns ~/.lunar-mcp/journal.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".lunar-mcp", "journal.db"), nil
}

// NewStorage creates a journal at path, or at DefaultPath when path is
// empty. Nothing is opened until Init.
func NewStorage(path string, logger *zap.Logger) *SQLiteStorage {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			logger.Warn("journal disabled", zap.Error(err))
			return &SQLiteStorage{enabled: false, logger: logger}
		}
		path = defaultPath
	}

	return &SQLiteStorage{
		dbPath:  path,
		enabled: true,
		logger:  logger,
	}
}

// Path returns the database file location.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Enabled reports whether the journal accepts writes.
func (s *SQLiteStorage) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.db != nil
}

// Init opens the database and runs migrations.
//
// If initialization fails, the journal is disabled and subsequent
// operations become no-ops.
func (s *SQLiteStorage) Init() error {
	if !s.enabled {
		return nil
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	var initErr error
	s.initOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
			initErr = fmt.Errorf("failed to create db directory: %w", err)
			s.enabled = false
			return
		}

		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			s.enabled = false
			s.logger.Warn("journal disabled", zap.Error(initErr))
			return
		}
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		s.db = db

		if err := db.Ping(); err != nil {
			initErr = fmt.Errorf("failed to ping database: %w", err)
			s.disableLocked(db)
			s.logger.Warn("journal disabled", zap.Error(initErr))
			return
		}

		if err := s.runMigrations(); err != nil {
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			s.disableLocked(db)
			s.logger.Warn("journal disabled", zap.Error(initErr))
			return
		}
	})

	return initErr
}

func (s *SQLiteStorage) disableLocked(db *sql.DB) {
	_ = db.Close()
	s.db = nil
	s.enabled = false
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// HashQuery creates a SHA256 hash of a request or context for privacy.
// The empty string hashes to the empty string.
func HashQuery(query string) string {
	if query == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(query))
	return hex.EncodeToString(hash[:])
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
