package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

// keepSearches caps the searches table; SaveSearch trims past it.
const keepSearches = 1000

// SearchRecord is one recorded search. Only a hash of the query is
// stored; the query text itself never leaves the process.
type SearchRecord struct {
	At        time.Time
	QueryHash string
	Mode      string
	LatencyMS int64
	Results   int
}

// HashQuery returns the stored form of a query: a short hex digest,
// enough to count repeats without keeping the text.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:8])
}

// SearchStats aggregates the recorded searches for weft status.
type SearchStats struct {
	Total        int            `json:"total"`
	ZeroResults  int            `json:"zero_results"`
	AvgLatencyMS int64          `json:"avg_latency_ms"`
	ByMode       map[string]int `json:"by_mode,omitempty"`
	// Latency counts latencies by bucket: <10ms, <50ms, <100ms,
	// <500ms, and everything slower.
	Latency map[string]int `json:"latency,omitempty"`
}

// latencyBucket buckets a latency the way weft status reports it.
func latencyBucket(ms int64) string {
	switch {
	case ms < 10:
		return "lt10ms"
	case ms < 50:
		return "lt50ms"
	case ms < 100:
		return "lt100ms"
	case ms < 500:
		return "lt500ms"
	default:
		return "gte500ms"
	}
}

// SaveSearch records one search, then trims the table to the most
// recent rows. Recording is diagnostics; callers treat errors as
// non-fatal.
func (s *Store) SaveSearch(ctx context.Context, rec SearchRecord) error {
	if rec.QueryHash == "" {
		return weftErrors.ValidationError("search record has no query hash", nil)
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO searches (at, query_hash, mode, latency_ms, results)
		VALUES (?, ?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano),
		rec.QueryHash,
		rec.Mode,
		rec.LatencyMS,
		rec.Results,
	)
	if err != nil {
		return weftErrors.StorageError("saving search record", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM searches WHERE id NOT IN (
			SELECT id FROM searches ORDER BY id DESC LIMIT ?
		)`, keepSearches)
	if err != nil {
		return weftErrors.StorageError("trimming search records", err)
	}
	return nil
}

// SearchStats aggregates every retained search record.
func (s *Store) SearchStats(ctx context.Context) (*SearchStats, error) {
	stats := &SearchStats{
		ByMode:  make(map[string]int),
		Latency: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, latency_ms, results FROM searches`)
	if err != nil {
		return nil, weftErrors.StorageError("reading search records", err)
	}
	defer func() { _ = rows.Close() }()

	var totalLatency int64
	for rows.Next() {
		var (
			mode    string
			latency int64
			results int
		)
		if err := rows.Scan(&mode, &latency, &results); err != nil {
			return nil, weftErrors.StorageError("scanning search record", err)
		}
		stats.Total++
		totalLatency += latency
		stats.ByMode[mode]++
		stats.Latency[latencyBucket(latency)]++
		if results == 0 {
			stats.ZeroResults++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, weftErrors.StorageError("reading search records", err)
	}

	if stats.Total > 0 {
		stats.AvgLatencyMS = totalLatency / int64(stats.Total)
	}
	return stats, nil
}
