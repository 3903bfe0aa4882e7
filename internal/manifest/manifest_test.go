package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(hash string, chunkIDs ...string) Entry {
	return Entry{
		Hash:      hash,
		Size:      int64(100 * len(chunkIDs)),
		ModTime:   time.Now(),
		ChunkIDs:  chunkIDs,
		IndexedAt: time.Now(),
	}
}

func TestNewManifest(t *testing.T) {
	m := New("/home/dev/proj", "settings-abc")

	assert.Equal(t, CurrentVersion, m.Version)
	assert.Equal(t, "/home/dev/proj", m.ProjectRoot)
	assert.Equal(t, PathDigest("/home/dev/proj"), m.ProjectID)
	assert.Equal(t, "settings-abc", m.SettingsHash)
	assert.Equal(t, 0, m.FileCount())
}

func TestAddRemoveLookup(t *testing.T) {
	m := New("/proj", "s")

	// When adding two files
	m.AddFile("a.py", entry("h1", "c1", "c2"))
	m.AddFile("b.py", entry("h2", "c3"))

	// Then both are visible
	assert.Equal(t, 2, m.FileCount())
	e, ok := m.Entry("a.py")
	require.True(t, ok)
	assert.Equal(t, "h1", e.Hash)
	assert.Equal(t, []string{"c1", "c2"}, m.ChunkIDsFor("a.py"))

	// When replacing an entry
	m.AddFile("a.py", entry("h1-new", "c9"))
	assert.Equal(t, 2, m.FileCount(), "replace does not grow the map")
	assert.Equal(t, []string{"c9"}, m.ChunkIDsFor("a.py"))

	// When removing, the entry comes back for vector cleanup
	removed, ok := m.RemoveFile("b.py")
	require.True(t, ok)
	assert.Equal(t, []string{"c3"}, removed.ChunkIDs)
	assert.Equal(t, 1, m.FileCount())
	_, ok = m.Entry("b.py")
	assert.False(t, ok)
	assert.Nil(t, m.ChunkIDsFor("b.py"))

	// Removing again reports absent
	_, ok = m.RemoveFile("b.py")
	assert.False(t, ok)
	assert.Equal(t, 1, m.FileCount())
}

func TestFileChanged(t *testing.T) {
	m := New("/proj", "s")
	m.AddFile("a.py", entry("hash-a", "c1"))

	assert.False(t, m.FileChanged("a.py", "hash-a"), "same hash means unchanged")
	assert.True(t, m.FileChanged("a.py", "hash-b"), "different hash means changed")
	assert.True(t, m.FileChanged("new.py", "anything"), "unknown path means changed")
}

func TestAggregatesAreRecomputed(t *testing.T) {
	m := New("/proj", "s")
	m.AddFile("a.py", Entry{Hash: "h1", Size: 10, ChunkIDs: []string{"c1", "c2"}})
	m.AddFile("b.py", Entry{Hash: "h2", Size: 30, ChunkIDs: []string{"c3"}})

	assert.Equal(t, 2, m.FileCount())
	assert.Equal(t, 3, m.ChunkCount())
	assert.Equal(t, int64(40), m.TotalSize())

	// Aggregates track mutations with no cached state to invalidate.
	m.RemoveFile("a.py")
	assert.Equal(t, 1, m.FileCount())
	assert.Equal(t, 1, m.ChunkCount())
	assert.Equal(t, int64(30), m.TotalSize())
}

func TestAllPathsSorted(t *testing.T) {
	m := New("/proj", "s")
	m.AddFile("zebra.go", entry("h1"))
	m.AddFile("alpha.go", entry("h2"))
	m.AddFile("middle.go", entry("h3"))

	assert.Equal(t, []string{"alpha.go", "middle.go", "zebra.go"}, m.AllPaths())
}

func TestAllChunkIDsOrdered(t *testing.T) {
	m := New("/proj", "s")
	m.AddFile("b.py", entry("h2", "b-0", "b-1"))
	m.AddFile("a.py", entry("h1", "a-0"))

	assert.Equal(t, []string{"a-0", "b-0", "b-1"}, m.AllChunkIDs())
}

func TestDuplicateChunkIDs(t *testing.T) {
	m := New("/proj", "s")
	m.AddFile("a.py", entry("h1", "c1", "c2"))
	m.AddFile("b.py", entry("h2", "c2", "c3"))

	assert.Equal(t, []string{"c2"}, m.DuplicateChunkIDs())

	m.RemoveFile("b.py")
	assert.Empty(t, m.DuplicateChunkIDs())
}

func TestCloneIsDeep(t *testing.T) {
	// Given a manifest with one file
	m := New("/proj", "s")
	m.AddFile("a.py", entry("h1", "c1"))

	// When cloning and mutating the clone
	cp := m.Clone()
	cp.AddFile("b.py", entry("h2", "c2"))
	cp.Files["a.py"].ChunkIDs[0] = "mutated"

	// Then the original is untouched
	assert.Equal(t, 1, m.FileCount())
	assert.Equal(t, []string{"c1"}, m.ChunkIDsFor("a.py"))
}

func TestChunkIDScheme(t *testing.T) {
	hashA := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	// Stable: same inputs always produce the same ID.
	assert.Equal(t, ChunkID("a.py", hashA, 0), ChunkID("a.py", hashA, 0))

	// Identical content in different files must produce distinct IDs.
	assert.NotEqual(t, ChunkID("a.py", hashA, 0), ChunkID("b.py", hashA, 0))

	// Ordinals separate chunks within one file.
	assert.NotEqual(t, ChunkID("a.py", hashA, 0), ChunkID("a.py", hashA, 1))

	// Changed content produces fresh IDs for the same file.
	hashB := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	assert.NotEqual(t, ChunkID("a.py", hashA, 0), ChunkID("a.py", hashB, 0))

	// Shape: pathDigest-hashPrefix-ordinal
	id := ChunkID("a.py", hashA, 3)
	assert.Equal(t, PathDigest("a.py")+"-"+hashA[:16]+"-0003", id)
}

func TestChunkIDShortHash(t *testing.T) {
	// Hashes shorter than the prefix width are used whole.
	id := ChunkID("a.py", "abc", 0)
	assert.Contains(t, id, "-abc-")
}

func TestPathDigest(t *testing.T) {
	assert.Len(t, PathDigest("some/path.go"), 16)
	assert.Equal(t, PathDigest("x"), PathDigest("x"))
	assert.NotEqual(t, PathDigest("x"), PathDigest("y"))
}
