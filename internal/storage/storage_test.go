package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/lunar-mcp/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s := NewStorage(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, s.Init())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStorageDefaultPath(t *testing.T) {
	s := NewStorage("", nil)
	require.NotNil(t, s)

	if s.Path() != "" {
		assert.Equal(t, "journal.db", filepath.Base(s.Path()))
		assert.Equal(t, ".lunar-mcp", filepath.Base(filepath.Dir(s.Path())))
	}
}

func TestInitCreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "journal.db")
	s := NewStorage(dbPath, nil)

	require.NoError(t, s.Init())
	defer s.Close()

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
	assert.True(t, s.Enabled())
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	first := NewStorage(dbPath, nil)
	require.NoError(t, first.Init())
	require.NoError(t, first.Close())

	second := NewStorage(dbPath, nil)
	require.NoError(t, second.Init())
	defer second.Close()

	version, err := second.getCurrentMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestRecordUsage(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	events := []UsageEvent{
		{Tool: "github:create_repository", ContextHash: HashQuery("create repo"), Accepted: true, ResponseTime: 12 * time.Millisecond, Timestamp: now.Add(-2 * time.Minute)},
		{Tool: "docker-mcp:create-container", ContextHash: HashQuery("deploy"), Accepted: false, ResponseTime: 3 * time.Millisecond, Timestamp: now.Add(-time.Minute)},
		{Tool: "old", Timestamp: now.Add(-48 * time.Hour)},
	}
	for _, event := range events {
		require.NoError(t, s.RecordUsage(event))
	}

	history, err := s.UsageSince(now.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// newest first
	assert.Equal(t, "docker-mcp:create-container", history[0].Tool)
	assert.False(t, history[0].Accepted)
	assert.Equal(t, "github:create_repository", history[1].Tool)
	assert.True(t, history[1].Accepted)
	assert.Equal(t, 12*time.Millisecond, history[1].ResponseTime)
	assert.Equal(t, HashQuery("create repo"), history[1].ContextHash)

	limited, err := s.UsageSince(now.Add(-time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordChainRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	failed := models.ChainExecution{
		ID:       "exec-1",
		Notation: "[CHAIN:git-create→nowhere]",
		Status:   models.ChainFailed,
		Error:    "tool not found for step: nowhere",
		Steps: []models.ChainStep{
			{Index: 1, Step: "git-create", ToolName: "git-create", Status: models.StepCompleted},
			{Index: 2, Step: "nowhere", Status: models.StepFailed, Error: "tool not found for step: nowhere"},
		},
		TotalDuration: 1500 * time.Millisecond,
		StartedAt:     start,
	}
	completed := models.ChainExecution{
		ID:        "exec-2",
		Notation:  "[CHAIN:git-create]",
		Status:    models.ChainCompleted,
		Steps:     []models.ChainStep{{Index: 1, Step: "git-create", ToolName: "git-create", Status: models.StepCompleted}},
		StartedAt: start.Add(time.Minute),
	}

	require.NoError(t, s.RecordChain(ChainRecordFrom(failed)))
	require.NoError(t, s.RecordChain(ChainRecordFrom(completed)))

	records, err := s.RecentChains(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "exec-2", records[0].ID)
	assert.Equal(t, models.ChainCompleted, records[0].Status)

	got := records[1]
	assert.Equal(t, "exec-1", got.ID)
	assert.Equal(t, models.ChainFailed, got.Status)
	assert.Equal(t, failed.Error, got.Error)
	assert.Equal(t, 1500*time.Millisecond, got.TotalDuration)
	assert.True(t, start.Equal(got.StartedAt))
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "nowhere", got.Steps[1].Step)
	assert.Equal(t, models.StepFailed, got.Steps[1].Status)

	records, err = s.RecentChains(1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordAnalysis(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.RecordAnalysis(AnalysisRecord{
		RequestHash: HashQuery("deploy the app"),
		Kind:        models.KindSuggestion,
		PrimaryTool: "docker-mcp:create-container",
		Confidence:  0.85,
		Reason:      "semantic and pattern analysis",
		Timestamp:   time.Now(),
	}))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM analysis_log").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCleanup(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	require.NoError(t, s.RecordUsage(UsageEvent{Tool: "old", Timestamp: now.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, s.RecordUsage(UsageEvent{Tool: "new", Timestamp: now}))
	require.NoError(t, s.RecordChain(ChainRecord{ID: "old", Status: models.ChainCompleted, StartedAt: now.Add(-40 * 24 * time.Hour)}))

	require.NoError(t, s.Cleanup(30*24*time.Hour))

	history, err := s.UsageSince(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "new", history[0].Tool)

	chains, err := s.RecentChains(10)
	require.NoError(t, err)
	assert.Empty(t, chains)
}

func TestHashQuery(t *testing.T) {
	hash := HashQuery("test query for hashing")
	assert.Equal(t, hash, HashQuery("test query for hashing"))
	assert.Len(t, hash, 64)
	assert.Equal(t, "", HashQuery(""))
}

func TestGracefulDegradation(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// The parent "directory" is a regular file, so Init must fail.
	s := NewStorage(filepath.Join(blocker, "journal.db"), nil)
	assert.Error(t, s.Init())
	assert.False(t, s.Enabled())

	assert.NoError(t, s.RecordUsage(UsageEvent{Tool: "test", Timestamp: time.Now()}))
	assert.NoError(t, s.RecordChain(ChainRecord{ID: "x"}))
	assert.NoError(t, s.RecordAnalysis(AnalysisRecord{}))

	history, err := s.UsageSince(time.Time{}, 0)
	assert.NoError(t, err)
	assert.Empty(t, history)

	chains, err := s.RecentChains(5)
	assert.NoError(t, err)
	assert.Empty(t, chains)

	assert.NoError(t, s.Cleanup(time.Hour))
	assert.NoError(t, s.Close())
}

// failingRows yields rows, then stops with err.
type failingRows struct {
	rows [][]any
	pos  int
	err  error
}

func (r *failingRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *failingRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *failingRows) Err() error { return r.err }

func TestRowIterationErrorsAreReported(t *testing.T) {
	s := NewStorage(filepath.Join(t.TempDir(), "journal.db"), nil)
	readErr := errors.New("disk I/O error")
	stamp := formatTime(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	t.Run("usage", func(t *testing.T) {
		rows := &failingRows{
			rows: [][]any{{"github:create_branch", "hash", 1, int64(12), stamp}},
			err:  readErr,
		}

		events, err := s.scanUsage(rows)
		require.ErrorIs(t, err, readErr)
		require.Len(t, events, 1)
		assert.Equal(t, "github:create_branch", events[0].Tool)
		assert.True(t, events[0].Accepted)
	})

	t.Run("chains", func(t *testing.T) {
		rows := &failingRows{
			rows: [][]any{{"id-1", "[CHAIN:github-1]", "completed", "", int64(5), "[]", stamp}},
			err:  readErr,
		}

		records, err := s.scanChains(rows)
		require.ErrorIs(t, err, readErr)
		require.Len(t, records, 1)
		assert.Equal(t, "[CHAIN:github-1]", records[0].Notation)
	})

	t.Run("clean end", func(t *testing.T) {
		records, err := s.scanChains(&failingRows{})
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
