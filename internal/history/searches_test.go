package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchRecord(mode string, latencyMS int64, results int) SearchRecord {
	return SearchRecord{
		At:        time.Date(2026, 8, 21, 14, 0, 0, 0, time.UTC),
		QueryHash: HashQuery("retry backoff"),
		Mode:      mode,
		LatencyMS: latencyMS,
		Results:   results,
	}
}

func TestHashQuery_StableAndShort(t *testing.T) {
	a := HashQuery("retry backoff")
	b := HashQuery("retry backoff")
	c := HashQuery("something else")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
	// The text itself never appears in the stored form.
	assert.NotContains(t, a, "retry")
}

func TestSaveSearchAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSearch(ctx, searchRecord("hybrid", 8, 5)))
	require.NoError(t, s.SaveSearch(ctx, searchRecord("hybrid", 42, 3)))
	require.NoError(t, s.SaveSearch(ctx, searchRecord("vector", 180, 0)))

	stats, err := s.SearchStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ZeroResults)
	assert.Equal(t, int64((8+42+180)/3), stats.AvgLatencyMS)
	assert.Equal(t, 2, stats.ByMode["hybrid"])
	assert.Equal(t, 1, stats.ByMode["vector"])
	assert.Equal(t, 1, stats.Latency["lt10ms"])
	assert.Equal(t, 1, stats.Latency["lt50ms"])
	assert.Equal(t, 1, stats.Latency["lt500ms"])
}

func TestSearchStats_EmptyTable(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.SearchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, int64(0), stats.AvgLatencyMS)
	assert.Empty(t, stats.ByMode)
}

func TestSaveSearchRequiresHash(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveSearch(context.Background(), SearchRecord{Mode: "hybrid"})
	assert.Error(t, err)
}

func TestSaveSearchTrimsOldestPastCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	total := keepSearches + 7
	for i := 0; i < total; i++ {
		rec := searchRecord("hybrid", int64(i%100), 1)
		rec.QueryHash = HashQuery(fmt.Sprintf("query %d", i))
		require.NoError(t, s.SaveSearch(ctx, rec))
	}

	stats, err := s.SearchStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, keepSearches, stats.Total)
}

func TestLatencyBucketBoundaries(t *testing.T) {
	cases := map[int64]string{
		0:    "lt10ms",
		9:    "lt10ms",
		10:   "lt50ms",
		49:   "lt50ms",
		50:   "lt100ms",
		99:   "lt100ms",
		100:  "lt500ms",
		499:  "lt500ms",
		500:  "gte500ms",
		2000: "gte500ms",
	}
	for ms, want := range cases {
		assert.Equal(t, want, latencyBucket(ms), "latency %dms", ms)
	}
}
