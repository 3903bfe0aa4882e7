package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/index"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, started time.Time, status string) index.RunRecord {
	return index.RunRecord{
		RunID:      id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Status:     status,
		Added:      5,
		Updated:    2,
		Removed:    1,
		Unchanged:  10,
		Failed:     0,
		Chunks:     42,
		Duration:   3 * time.Second,
	}
}

func TestSaveAndRecentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)

	rec := record("run-0001", started, "complete")
	rec.Error = ""
	require.NoError(t, s.SaveRun(context.Background(), rec))

	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "run-0001", got[0].RunID)
	assert.Equal(t, started, got[0].StartedAt)
	assert.Equal(t, started.Add(3*time.Second), got[0].FinishedAt)
	assert.Equal(t, "complete", got[0].Status)
	assert.Equal(t, 5, got[0].Added)
	assert.Equal(t, 2, got[0].Updated)
	assert.Equal(t, 1, got[0].Removed)
	assert.Equal(t, 10, got[0].Unchanged)
	assert.Equal(t, 42, got[0].Chunks)
	assert.Equal(t, 3*time.Second, got[0].Duration)
	assert.Empty(t, got[0].Error)
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		rec := record(fmt.Sprintf("run-%04d", i), base.Add(time.Duration(i)*time.Hour), "complete")
		require.NoError(t, s.SaveRun(context.Background(), rec))
	}

	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "run-0003", got[0].RunID)
	assert.Equal(t, "run-0002", got[1].RunID)
	assert.Equal(t, "run-0001", got[2].RunID)
}

func TestRecentHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)

	for i := 1; i <= 12; i++ {
		rec := record(fmt.Sprintf("run-%04d", i), base.Add(time.Duration(i)*time.Minute), "complete")
		require.NoError(t, s.SaveRun(context.Background(), rec))
	}

	got, err := s.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Non-positive limit falls back to ten.
	got, err = s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestSaveRunReplacesSameID(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(context.Background(), record("run-0001", started, "incomplete")))

	rec := record("run-0001", started, "complete")
	rec.Added = 9
	require.NoError(t, s.SaveRun(context.Background(), rec))

	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "complete", got[0].Status)
	assert.Equal(t, 9, got[0].Added)
}

func TestSaveRunRequiresRunID(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveRun(context.Background(), index.RunRecord{Status: "complete"})
	assert.Error(t, err)
}

func TestSaveRunRecordsFailureText(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	rec := record("run-0001", started, "failed")
	rec.Error = "all 2 vector store backends exhausted"
	require.NoError(t, s.SaveRun(context.Background(), rec))

	got, err := s.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "failed", got[0].Status)
	assert.Contains(t, got[0].Error, "backends exhausted")
}

func TestSaveRunTrimsOldestPastCap(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	total := keepRuns + 5
	for i := 1; i <= total; i++ {
		rec := record(fmt.Sprintf("run-%04d", i), base.Add(time.Duration(i)*time.Minute), "complete")
		require.NoError(t, s.SaveRun(context.Background(), rec))
	}

	got, err := s.Recent(context.Background(), total)
	require.NoError(t, err)
	require.Len(t, got, keepRuns)

	// The newest rows survive, the oldest five are gone.
	assert.Equal(t, fmt.Sprintf("run-%04d", total), got[0].RunID)
	assert.Equal(t, fmt.Sprintf("run-%04d", 6), got[len(got)-1].RunID)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	started := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(context.Background(), record("run-0001", started, "complete")))
	require.NoError(t, s.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-0001", got[0].RunID)
}

func TestStoreWorksOverSharedHandle(t *testing.T) {
	// The store is driver-agnostic: the same schema and statements run
	// on the cgo driver over a caller-owned handle.
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s, err := NewStore(db, nil)
	require.NoError(t, err)

	started := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(context.Background(), record("run-0001", started, "complete")))

	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Close does not take down the shared handle.
	require.NoError(t, s.Close())
	assert.NoError(t, db.Ping())
}

func TestNewStoreRequiresHandle(t *testing.T) {
	_, err := NewStore(nil, nil)
	assert.ErrorContains(t, err, "database handle is required")
}
