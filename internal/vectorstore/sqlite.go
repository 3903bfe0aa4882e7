package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// sqliteSchemaVersion is bumped on incompatible schema changes.
const sqliteSchemaVersion = 1

// SQLiteBackend stores chunks in a SQLite table and answers searches by
// brute-force cosine scan. It is slower than HNSW but durable per
// transaction, which makes it the natural secondary: every confirmed
// upsert has already hit the WAL.
type SQLiteBackend struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Backend = (*SQLiteBackend)(nil)

// validateSQLiteIntegrity checks an existing database before opening it
// for real. A missing file is fine; a corrupt one is reported so the
// caller can clear it.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteBackend opens (or creates) the vector database at path. An
// empty path creates an in-memory database for tests.
//
// A corrupt database is cleared with a warning and recreated empty; the
// index is derived data and the next run repopulates it.
func NewSQLiteBackend(path string, logger *slog.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			logger.Warn("sqlite_vector_db_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("vector db corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			logger.Info("sqlite_vector_db_cleared", slog.String("path", path))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer connection prevents lock contention under the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA statements for modernc.org/sqlite; DSN
	// parameters are not honored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	b := &SQLiteBackend{db: db, path: path, logger: logger}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id         TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		language   TEXT NOT NULL DEFAULT '',
		start_line INTEGER NOT NULL DEFAULT 0,
		end_line   INTEGER NOT NULL DEFAULT 0,
		content    TEXT NOT NULL DEFAULT '',
		vector     BLOB NOT NULL,
		dims       INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
	`
	if _, err := b.db.Exec(schema); err != nil {
		return err
	}
	_, err := b.db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", sqliteSchemaVersion)
	return err
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

// Upsert writes all chunks in one transaction: either the whole batch is
// durable or none of it is.
func (b *SQLiteBackend) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(id, path, language, start_line, end_line, content, vector, dims, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return 0, ErrDimensionMismatch{}
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Path, c.Language, c.StartLine, c.EndLine, c.Content,
			encodeVector(c.Vector), len(c.Vector), now); err != nil {
			return 0, fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return len(chunks), nil
}

// Delete removes chunks by ID in one transaction. Absent IDs simply
// match no rows.
func (b *SQLiteBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Delete in slices to stay under SQLite's bound-parameter limit.
	const maxParams = 500
	for start := 0; start < len(ids); start += maxParams {
		end := start + maxParams
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := fmt.Sprintf("DELETE FROM chunks WHERE id IN (%s)", placeholders)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// Search scans every stored vector and returns the k highest cosine
// similarities. Linear, but a local project index is small enough that
// the scan stays in the low milliseconds.
func (b *SQLiteBackend) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT id, path, language, start_line, end_line, content, vector, dims FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	queryNorm := vectorNorm(query)
	var results []SearchResult

	for rows.Next() {
		var (
			r    SearchResult
			blob []byte
			dims int
		)
		if err := rows.Scan(&r.ID, &r.Path, &r.Language, &r.StartLine, &r.EndLine, &r.Content, &blob, &dims); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if dims != len(query) {
			return nil, ErrDimensionMismatch{Expected: dims, Got: len(query)}
		}

		vec := decodeVector(blob)
		r.Score = cosineSimilarity(query, queryNorm, vec)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

// AllIDs returns every stored chunk ID.
func (b *SQLiteBackend) AllIDs(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT id FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored chunks.
func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Health probes the database with a count query and folds the outcome
// into the normalized status.
func (b *SQLiteBackend) Health(ctx context.Context) BackendHealth {
	start := time.Now()
	h := BackendHealth{Backend: b.Name()}

	n, err := b.Count(ctx)
	h.Latency = time.Since(start)
	if err != nil {
		h.Status = StatusUnavailable
		h.Message = "count query failed"
		return h
	}

	h.Status = StatusHealthy
	h.Vectors = n
	return h
}

// Save forces a WAL checkpoint so the main database file is current.
// Committed transactions are already durable; this just compacts.
func (b *SQLiteBackend) Save() error {
	if b.path == "" {
		return nil
	}
	if _, err := b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint wal: %w", err)
	}
	return nil
}

// Load is a no-op: the database was opened (and validated) at
// construction.
func (b *SQLiteBackend) Load() error { return nil }

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	_ = b.Save()
	err := b.db.Close()
	b.db = nil
	return err
}

// encodeVector packs a float32 slice into a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian blob into a float32 slice.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// vectorNorm returns the L2 norm.
func vectorNorm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity returns similarity in [0, 1], clamping the usual
// [-1, 1] range into score space so both backends score identically.
func cosineSimilarity(query []float32, queryNorm float64, vec []float32) float32 {
	var dot, vecSum float64
	for i := range vec {
		dot += float64(query[i]) * float64(vec[i])
		vecSum += float64(vec[i]) * float64(vec[i])
	}
	vecNorm := math.Sqrt(vecSum)
	if queryNorm == 0 || vecNorm == 0 {
		return 0
	}
	cos := dot / (queryNorm * vecNorm)
	// cos in [-1,1]; fold into [0,1] the same way the HNSW backend folds
	// cosine distance.
	return float32((cos + 1.0) / 2.0)
}
