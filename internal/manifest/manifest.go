// Package manifest tracks the indexed state of a project: one entry per
// file, with the content hash and the chunk IDs derived from it. The
// manifest is the source of truth for incremental runs; comparing it
// against a fresh scan yields the files to add, re-embed, or remove.
package manifest

import (
	"sort"
	"time"
)

// CurrentVersion is the manifest schema version written by this build.
const CurrentVersion = 1

// Entry records the indexed state of a single file.
type Entry struct {
	// Hash is the hex SHA-256 of the file content at index time.
	Hash string `json:"hash"`

	// Size is the file size in bytes at index time.
	Size int64 `json:"size"`

	// ModTime is the file modification time at index time. Informational;
	// change detection uses Hash, never ModTime.
	ModTime time.Time `json:"mod_time"`

	// ChunkIDs lists the vector store IDs derived from this file, in
	// chunk order. Removing the file from the index means deleting
	// exactly these IDs.
	ChunkIDs []string `json:"chunk_ids"`

	// IndexedAt is when this entry was last written.
	IndexedAt time.Time `json:"indexed_at"`
}

// Manifest maps relative file paths to their indexed state.
//
// Aggregate numbers (file count, chunk count) are always computed from the
// Files map, never stored, so a hand-edited or partially written manifest
// cannot report stale totals.
//
// Manifest is not safe for concurrent mutation; the orchestrator owns it
// from a single goroutine.
type Manifest struct {
	// Version is the schema version, checked at load time.
	Version int `json:"version"`

	// ProjectRoot is the absolute project root this manifest describes.
	ProjectRoot string `json:"project_root"`

	// ProjectID is a digest of ProjectRoot. Load refuses to hand out a
	// manifest whose ProjectID does not match the requesting project.
	ProjectID string `json:"project_id"`

	// SettingsHash fingerprints the embedder identity and chunking
	// geometry the index was built with. A different fingerprint means
	// the stored vectors are incompatible and the index must be rebuilt.
	SettingsHash string `json:"settings_hash"`

	// Revision increments on every successful save and backs the
	// conflict check in Store.Save.
	Revision int64 `json:"revision"`

	// UpdatedAt is the time of the last successful save.
	UpdatedAt time.Time `json:"updated_at"`

	// Files maps project-relative paths to their entries.
	Files map[string]Entry `json:"files"`
}

// New creates an empty manifest for a project root.
func New(projectRoot, settingsHash string) *Manifest {
	return &Manifest{
		Version:      CurrentVersion,
		ProjectRoot:  projectRoot,
		ProjectID:    PathDigest(projectRoot),
		SettingsHash: settingsHash,
		Files:        make(map[string]Entry),
	}
}

// AddFile inserts or replaces the entry for a path.
func (m *Manifest) AddFile(path string, e Entry) {
	if m.Files == nil {
		m.Files = make(map[string]Entry)
	}
	m.Files[path] = e
}

// RemoveFile deletes the entry for a path and returns it, so the caller
// can issue vector store deletions for its chunk IDs. Removing an absent
// path reports absent rather than erroring.
func (m *Manifest) RemoveFile(path string) (Entry, bool) {
	e, ok := m.Files[path]
	if ok {
		delete(m.Files, path)
	}
	return e, ok
}

// Entry returns the entry for a path.
func (m *Manifest) Entry(path string) (Entry, bool) {
	e, ok := m.Files[path]
	return e, ok
}

// FileChanged reports whether a path needs (re)indexing given the hash of
// its current content: true when the path is unknown or the stored hash
// differs.
func (m *Manifest) FileChanged(path, contentHash string) bool {
	e, ok := m.Files[path]
	if !ok {
		return true
	}
	return e.Hash != contentHash
}

// ChunkIDsFor returns the chunk IDs recorded for a path, or nil when the
// path is not indexed.
func (m *Manifest) ChunkIDsFor(path string) []string {
	return m.Files[path].ChunkIDs
}

// AllPaths returns every indexed path in sorted order.
func (m *Manifest) AllPaths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FileCount returns the number of indexed files.
func (m *Manifest) FileCount() int {
	return len(m.Files)
}

// ChunkCount returns the total number of chunks across all files.
func (m *Manifest) ChunkCount() int {
	n := 0
	for _, e := range m.Files {
		n += len(e.ChunkIDs)
	}
	return n
}

// TotalSize returns the summed size of all indexed files in bytes.
func (m *Manifest) TotalSize() int64 {
	var n int64
	for _, e := range m.Files {
		n += e.Size
	}
	return n
}

// AllChunkIDs returns every chunk ID in the manifest, ordered by path and
// then chunk order.
func (m *Manifest) AllChunkIDs() []string {
	ids := make([]string, 0, m.ChunkCount())
	for _, p := range m.AllPaths() {
		ids = append(ids, m.Files[p].ChunkIDs...)
	}
	return ids
}

// DuplicateChunkIDs returns chunk IDs that appear more than once across
// the manifest. A healthy manifest returns an empty slice; the verify
// command reports anything else as corruption.
func (m *Manifest) DuplicateChunkIDs() []string {
	seen := make(map[string]int, m.ChunkCount())
	for _, e := range m.Files {
		for _, id := range e.ChunkIDs {
			seen[id]++
		}
	}
	var dups []string
	for id, n := range seen {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups
}

// Clone returns a deep copy. The orchestrator mutates a clone per batch so
// a failed save never leaves the in-memory manifest ahead of disk.
func (m *Manifest) Clone() *Manifest {
	cp := *m
	cp.Files = make(map[string]Entry, len(m.Files))
	for p, e := range m.Files {
		ids := make([]string, len(e.ChunkIDs))
		copy(ids, e.ChunkIDs)
		e.ChunkIDs = ids
		cp.Files[p] = e
	}
	return &cp
}
