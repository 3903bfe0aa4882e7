package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/vectorstore"
)

func TestCheckerReportsConsistentIndex(t *testing.T) {
	e := newEnv(t)
	writeFile(t, e.root, "a.txt", "alpha\n")
	e.run(t, Options{})

	checker := NewChecker(e.deps.Manifests, e.deps.Store, e.lexical, nil)
	result, err := checker.Check(context.Background(), e.root)
	require.NoError(t, err)

	assert.True(t, result.Consistent())
	assert.Equal(t, 1, result.ChunksChecked)
}

func TestCheckerFindsOrphanVectors(t *testing.T) {
	e := newEnv(t)
	writeFile(t, e.root, "a.txt", "alpha\n")
	e.run(t, Options{})

	// A chunk the manifest does not know about.
	_, err := e.deps.Store.Upsert(context.Background(), []vectorstore.Chunk{
		{ID: "orphan-0001", Path: "ghost.txt", Content: "ghost", Vector: []float32{1}},
	})
	require.NoError(t, err)

	checker := NewChecker(e.deps.Manifests, e.deps.Store, nil, nil)
	result, err := checker.Check(context.Background(), e.root)
	require.NoError(t, err)

	assert.False(t, result.Consistent())
	assert.Equal(t, 1, result.Count(IssueOrphanVector))
	assert.Equal(t, 2, result.ChunksChecked)
}

func TestCheckerFindsMissingVectors(t *testing.T) {
	e := newEnv(t)
	writeFile(t, e.root, "a.txt", "alpha\n")
	e.run(t, Options{})

	ids := e.manifest(t).ChunkIDsFor("a.txt")
	require.NotEmpty(t, ids)
	require.NoError(t, e.deps.Store.Delete(context.Background(), ids))

	checker := NewChecker(e.deps.Manifests, e.deps.Store, nil, nil)
	result, err := checker.Check(context.Background(), e.root)
	require.NoError(t, err)

	assert.Equal(t, len(ids), result.Count(IssueMissingVector))
	for _, issue := range result.Issues {
		assert.Equal(t, "a.txt", issue.Path)
	}
}

func TestCheckerFindsDuplicateChunkIDs(t *testing.T) {
	e := newEnv(t)
	writeFile(t, e.root, "a.txt", "alpha\n")
	e.run(t, Options{})

	m, rev, err := e.deps.Manifests.Load(e.root)
	require.NoError(t, err)
	entry, ok := m.Entry("a.txt")
	require.True(t, ok)
	// The same chunk IDs referenced from a second path.
	m.AddFile("copy.txt", entry)
	_, err = e.deps.Manifests.Save(m, rev)
	require.NoError(t, err)

	checker := NewChecker(e.deps.Manifests, e.deps.Store, nil, nil)
	result, err := checker.Check(context.Background(), e.root)
	require.NoError(t, err)

	assert.Equal(t, len(entry.ChunkIDs), result.Count(IssueDuplicateChunkID))
}

func TestCheckerWithoutManifestTreatsStoreAsOrphans(t *testing.T) {
	e := newEnv(t)
	_, err := e.deps.Store.Upsert(context.Background(), []vectorstore.Chunk{
		{ID: "x-1", Vector: []float32{1}},
		{ID: "x-2", Vector: []float32{1}},
	})
	require.NoError(t, err)

	checker := NewChecker(e.deps.Manifests, e.deps.Store, nil, nil)
	result, err := checker.Check(context.Background(), e.root)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count(IssueOrphanVector))
}

func TestRepairDeletesOrphansAndClearsBrokenEntries(t *testing.T) {
	e := newEnv(t)
	writeFile(t, e.root, "a.txt", "alpha\n")
	writeFile(t, e.root, "b.txt", "beta\n")
	e.run(t, Options{})

	ctx := context.Background()

	// One orphan vector, plus a.txt's chunks deleted out from under the
	// manifest.
	_, err := e.deps.Store.Upsert(ctx, []vectorstore.Chunk{
		{ID: "orphan-0001", Vector: []float32{1}},
	})
	require.NoError(t, err)
	aIDs := e.manifest(t).ChunkIDsFor("a.txt")
	require.NoError(t, e.deps.Store.Delete(ctx, aIDs))

	checker := NewChecker(e.deps.Manifests, e.deps.Store, e.lexical, nil)
	result, err := checker.Check(ctx, e.root)
	require.NoError(t, err)
	require.False(t, result.Consistent())

	repair, err := checker.Repair(ctx, e.root, result)
	require.NoError(t, err)
	assert.Equal(t, 1, repair.OrphansDeleted)
	assert.Equal(t, 1, repair.FilesCleared)
	assert.False(t, e.backend.has("orphan-0001"))

	m := e.manifest(t)
	_, ok := m.Entry("a.txt")
	assert.False(t, ok)
	_, ok = m.Entry("b.txt")
	assert.True(t, ok)

	// The next run reindexes the cleared file, restoring consistency.
	res := e.run(t, Options{})
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Unchanged)

	again, err := checker.Check(ctx, e.root)
	require.NoError(t, err)
	assert.True(t, again.Consistent())
}

func TestRepairOnConsistentIndexIsNoop(t *testing.T) {
	e := newEnv(t)
	writeFile(t, e.root, "a.txt", "alpha\n")
	e.run(t, Options{})

	checker := NewChecker(e.deps.Manifests, e.deps.Store, nil, nil)
	result, err := checker.Check(context.Background(), e.root)
	require.NoError(t, err)

	repair, err := checker.Repair(context.Background(), e.root, result)
	require.NoError(t, err)
	assert.Zero(t, repair.OrphansDeleted)
	assert.Zero(t, repair.FilesCleared)
}
