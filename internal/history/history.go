// Package history persists run summaries and search metrics in a small
// SQLite database under the project data dir. The orchestrator writes
// one row per indexing run through the RunSink interface after finalize;
// search commands record a hashed query, latency, and result count per
// search. weft status reads both back. Everything here is best-effort
// diagnostics: a missing or broken history database never blocks
// indexing or searching, and query text is never stored.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	weftErrors "github.com/weftlabs/weft/internal/errors"
	"github.com/weftlabs/weft/internal/index"
)

// FileName is the history database's file name under the data dir.
const FileName = "history.db"

// keepRuns caps the table size; SaveRun trims the oldest rows past it.
const keepRuns = 100

// Store reads and writes run summaries. Safe for concurrent use; the
// database handle serializes access.
type Store struct {
	db     *sql.DB
	ownsDB bool
	logger *slog.Logger
}

var _ index.RunSink = (*Store)(nil)

// NewStore wraps an already-open database handle and ensures the schema
// exists. The caller keeps ownership of db; Close leaves it open.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, weftErrors.StorageError("initializing run history schema", err)
	}
	return s, nil
}

// Open opens (or creates) the history database at path with the pure Go
// driver. An empty path opens an in-memory database. Close releases the
// handle.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, weftErrors.StorageError("creating history directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, weftErrors.StorageError("opening run history database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA statements for modernc.org/sqlite; DSN
	// parameters are not honored.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, weftErrors.StorageError("configuring run history database", err)
		}
	}

	s, err := NewStore(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		status      TEXT NOT NULL,
		added       INTEGER NOT NULL DEFAULT 0,
		updated     INTEGER NOT NULL DEFAULT 0,
		removed     INTEGER NOT NULL DEFAULT 0,
		unchanged   INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		chunks      INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS searches (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		at         TEXT NOT NULL,
		query_hash TEXT NOT NULL,
		mode       TEXT NOT NULL,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		results    INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts or replaces one run summary, then trims the table to
// the most recent rows.
func (s *Store) SaveRun(ctx context.Context, rec index.RunRecord) error {
	if rec.RunID == "" {
		return weftErrors.ValidationError("run record has no run ID", nil)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, started_at, finished_at, status, added, updated,
			 removed, unchanged, failed, chunks, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.Status,
		rec.Added, rec.Updated, rec.Removed, rec.Unchanged, rec.Failed,
		rec.Chunks,
		rec.Duration.Milliseconds(),
		rec.Error,
	)
	if err != nil {
		return weftErrors.StorageError("saving run summary", err)
	}

	// Run IDs are UUIDv7, so the ID order matches creation order and
	// breaks same-timestamp ties.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE run_id NOT IN (
			SELECT run_id FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?
		)`, keepRuns)
	if err != nil {
		return weftErrors.StorageError("trimming run history", err)
	}
	return nil
}

// Recent returns up to limit run summaries, newest first. A non-positive
// limit returns ten.
func (s *Store) Recent(ctx context.Context, limit int) ([]index.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, status, added, updated,
		       removed, unchanged, failed, chunks, duration_ms, error
		FROM runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, weftErrors.StorageError("reading run history", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []index.RunRecord
	for rows.Next() {
		var (
			rec        index.RunRecord
			started    string
			finished   string
			durationMS int64
		)
		if err := rows.Scan(
			&rec.RunID, &started, &finished, &rec.Status,
			&rec.Added, &rec.Updated, &rec.Removed, &rec.Unchanged,
			&rec.Failed, &rec.Chunks, &durationMS, &rec.Error,
		); err != nil {
			return nil, weftErrors.StorageError("scanning run summary", err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, weftErrors.StorageError("parsing run start time", err)
		}
		if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, weftErrors.StorageError("parsing run finish time", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, weftErrors.StorageError("reading run history", err)
	}
	return recs, nil
}

// Close releases the database handle when this store opened it; a store
// wrapping a shared handle leaves it open.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
