package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteUpsertAndCount(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	n, err := b.Upsert(ctx, []Chunk{
		chunk("aaa", "a.py", []float32{1, 0, 0}),
		chunk("bbb", "b.py", []float32{0, 1, 0}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteSearchRanksByCosine(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	_, err := b.Upsert(ctx, []Chunk{
		chunk("aaa", "a.py", []float32{1, 0, 0}),
		chunk("bbb", "b.py", []float32{0.7, 0.7, 0}),
		chunk("ccc", "c.py", []float32{0, 0, 1}),
	})
	require.NoError(t, err)

	results, err := b.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "aaa", results[0].ID)
	assert.Equal(t, "bbb", results[1].ID)
	assert.Equal(t, "ccc", results[2].ID)

	// Identical direction scores 1, orthogonal scores 0.5 after folding
	// cosine into [0, 1].
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-4)
	assert.InDelta(t, 0.5, float64(results[2].Score), 1e-4)

	top, err := b.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "aaa", top[0].ID)
}

func TestSQLiteSearchCarriesPayload(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	c := chunk("aaa", "src/util.py", []float32{1, 0})
	c.StartLine = 42
	c.EndLine = 60
	_, err := b.Upsert(ctx, []Chunk{c})
	require.NoError(t, err)

	results, err := b.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src/util.py", results[0].Path)
	assert.Equal(t, "python", results[0].Language)
	assert.Equal(t, 42, results[0].StartLine)
	assert.Equal(t, 60, results[0].EndLine)
	assert.Contains(t, results[0].Content, "def aaa")
}

func TestSQLiteUpsertReplacesExistingID(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	_, err := b.Upsert(ctx, []Chunk{chunk("aaa", "a.py", []float32{1, 0})})
	require.NoError(t, err)

	updated := chunk("aaa", "a.py", []float32{0, 1})
	updated.Content = "def aaa_v2(): pass"
	_, err = b.Upsert(ctx, []Chunk{updated})
	require.NoError(t, err)

	count, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := b.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "aaa_v2")
}

func TestSQLiteDeleteIsIdempotent(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	_, err := b.Upsert(ctx, []Chunk{
		chunk("aaa", "a.py", []float32{1, 0}),
		chunk("bbb", "b.py", []float32{0, 1}),
	})
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, []string{"aaa", "never-existed"}))
	require.NoError(t, b.Delete(ctx, []string{"aaa"}))

	ids, err := b.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbb"}, ids)
}

func TestSQLiteDeleteLargeBatch(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	_, err := b.Upsert(ctx, []Chunk{
		chunk("keep", "a.py", []float32{1, 0}),
		chunk("drop-1", "b.py", []float32{0, 1}),
		chunk("drop-2", "c.py", []float32{0, 1}),
	})
	require.NoError(t, err)

	// More IDs than fit in one parameter list, exercising the slicing.
	ids := make([]string, 0, 1200)
	for i := 0; i < 1198; i++ {
		ids = append(ids, fmt.Sprintf("ghost-%d", i))
	}
	ids = append(ids, "drop-1", "drop-2")

	require.NoError(t, b.Delete(ctx, ids))

	remaining, err := b.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, remaining)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.db")
	ctx := context.Background()

	b, err := NewSQLiteBackend(path, nil)
	require.NoError(t, err)
	_, err = b.Upsert(ctx, []Chunk{chunk("aaa", "a.py", []float32{1, 0})})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened, err := NewSQLiteBackend(path, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := reopened.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aaa", results[0].ID)
}

func TestSQLiteCorruptDatabaseCleared(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite file"), 0o644))

	b, err := NewSQLiteBackend(path, nil)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	count, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteSearchDimensionMismatch(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	_, err := b.Upsert(ctx, []Chunk{chunk("aaa", "a.py", []float32{1, 0, 0})})
	require.NoError(t, err)

	_, err = b.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)

	var dim ErrDimensionMismatch
	require.True(t, errors.As(err, &dim))
	assert.Equal(t, 3, dim.Expected)
	assert.Equal(t, 2, dim.Got)
}

func TestSQLiteRejectsEmptyVector(t *testing.T) {
	b := newTestSQLite(t)

	_, err := b.Upsert(context.Background(), []Chunk{chunk("aaa", "a.py", nil)})
	require.Error(t, err)

	var dim ErrDimensionMismatch
	assert.True(t, errors.As(err, &dim))

	count, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteHealth(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	_, err := b.Upsert(ctx, []Chunk{chunk("aaa", "a.py", []float32{1, 0})})
	require.NoError(t, err)

	health := b.Health(ctx)
	assert.Equal(t, "sqlite", health.Backend)
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, 1, health.Vectors)
}

func TestVectorBlobRoundTrip(t *testing.T) {
	original := []float32{0.25, -1.5, 3.14159, 0}
	decoded := decodeVector(encodeVector(original))
	assert.Equal(t, original, decoded)
}
