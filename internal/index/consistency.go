package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/weftlabs/weft/internal/manifest"
	"github.com/weftlabs/weft/internal/vectorstore"
)

// IssueType classifies one consistency finding.
type IssueType int

const (
	// IssueOrphanVector is a chunk the store holds but no manifest entry
	// references. Harmless for correctness, wasteful for space; usually
	// left by an interrupted stale-chunk delete.
	IssueOrphanVector IssueType = iota

	// IssueMissingVector is a chunk the manifest references but the
	// store lacks. The file's content is silently absent from search
	// until it is reindexed.
	IssueMissingVector

	// IssueDuplicateChunkID is a chunk ID referenced by more than one
	// manifest entry. IDs embed the path digest, so this indicates a
	// corrupted manifest.
	IssueDuplicateChunkID
)

// String returns the issue type name.
func (t IssueType) String() string {
	switch t {
	case IssueOrphanVector:
		return "orphan_vector"
	case IssueMissingVector:
		return "missing_vector"
	case IssueDuplicateChunkID:
		return "duplicate_chunk_id"
	default:
		return "unknown"
	}
}

// Issue is one inconsistency between the manifest and the vector store.
type Issue struct {
	Type    IssueType
	ChunkID string
	Path    string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	// ChunksChecked is the size of the union of manifest-referenced and
	// stored chunk IDs.
	ChunksChecked int
	Issues        []Issue
	Duration      time.Duration
}

// Consistent reports whether the check found nothing wrong.
func (r *CheckResult) Consistent() bool {
	return len(r.Issues) == 0
}

// Count returns how many issues of the given type were found.
func (r *CheckResult) Count(t IssueType) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Type == t {
			n++
		}
	}
	return n
}

// RepairResult is the outcome of a repair pass.
type RepairResult struct {
	// OrphansDeleted counts orphan vectors removed from the store.
	OrphansDeleted int

	// FilesCleared counts manifest entries dropped so the next run
	// reindexes their files.
	FilesCleared int
}

// Checker cross-checks the manifest against the vector store. Callers
// that repair must hold the project's run lock; checking alone is
// read-only.
type Checker struct {
	manifests *manifest.Store
	store     *vectorstore.Handle
	lexical   Lexical
	logger    *slog.Logger
}

// NewChecker creates a consistency checker. lexical may be nil.
func NewChecker(manifests *manifest.Store, store *vectorstore.Handle, lexical Lexical, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{manifests: manifests, store: store, lexical: lexical, logger: logger}
}

// Check compares the manifest's chunk IDs with the store's contents. A
// missing manifest is not an error: everything in the store is then an
// orphan.
func (c *Checker) Check(ctx context.Context, projectRoot string) (*CheckResult, error) {
	start := time.Now()

	m, _, err := c.manifests.Load(projectRoot)
	if err != nil {
		return nil, err
	}

	storeIDs, err := c.store.AllIDs(ctx)
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]string)
	if m != nil {
		for _, path := range m.AllPaths() {
			for _, id := range m.ChunkIDsFor(path) {
				referenced[id] = path
			}
		}
	}
	stored := make(map[string]struct{}, len(storeIDs))
	for _, id := range storeIDs {
		stored[id] = struct{}{}
	}

	result := &CheckResult{}

	for _, id := range storeIDs {
		if _, ok := referenced[id]; !ok {
			result.Issues = append(result.Issues, Issue{Type: IssueOrphanVector, ChunkID: id})
		}
	}
	for id, path := range referenced {
		if _, ok := stored[id]; !ok {
			result.Issues = append(result.Issues, Issue{Type: IssueMissingVector, ChunkID: id, Path: path})
		}
	}
	if m != nil {
		for _, id := range m.DuplicateChunkIDs() {
			result.Issues = append(result.Issues, Issue{Type: IssueDuplicateChunkID, ChunkID: id, Path: referenced[id]})
		}
	}

	checked := len(stored)
	for id := range referenced {
		if _, ok := stored[id]; !ok {
			checked++
		}
	}
	result.ChunksChecked = checked
	result.Duration = time.Since(start)

	c.logger.Info("consistency_check",
		slog.Int("chunks_checked", result.ChunksChecked),
		slog.Int("orphans", result.Count(IssueOrphanVector)),
		slog.Int("missing", result.Count(IssueMissingVector)),
		slog.Int("duplicates", result.Count(IssueDuplicateChunkID)),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// Repair fixes what Check found: orphan vectors are deleted from the
// store, and files with missing or duplicated chunk IDs lose their
// manifest entries so the next run reindexes them. The caller must hold
// the project's run lock.
func (c *Checker) Repair(ctx context.Context, projectRoot string, result *CheckResult) (*RepairResult, error) {
	repair := &RepairResult{}
	if result.Consistent() {
		return repair, nil
	}

	var orphanIDs []string
	clearPaths := make(map[string]struct{})
	for _, issue := range result.Issues {
		switch issue.Type {
		case IssueOrphanVector:
			orphanIDs = append(orphanIDs, issue.ChunkID)
		case IssueMissingVector, IssueDuplicateChunkID:
			if issue.Path != "" {
				clearPaths[issue.Path] = struct{}{}
			}
		}
	}

	if len(orphanIDs) > 0 {
		if err := c.store.Delete(ctx, orphanIDs); err != nil {
			return repair, err
		}
		if c.lexical != nil {
			if err := c.lexical.Delete(ctx, orphanIDs); err != nil {
				c.logger.Warn("lexical_delete_failed",
					slog.Int("chunks", len(orphanIDs)),
					slog.String("error", err.Error()))
			}
		}
		if err := c.store.Flush(); err != nil {
			return repair, err
		}
		repair.OrphansDeleted = len(orphanIDs)
	}

	if len(clearPaths) > 0 {
		m, revision, err := c.manifests.Load(projectRoot)
		if err != nil {
			return repair, err
		}
		if m != nil {
			for path := range clearPaths {
				if _, ok := m.RemoveFile(path); ok {
					repair.FilesCleared++
				}
			}
			if repair.FilesCleared > 0 {
				if _, err := c.manifests.Save(m, revision); err != nil {
					return repair, err
				}
			}
		}
	}

	c.logger.Info("consistency_repair",
		slog.Int("orphans_deleted", repair.OrphansDeleted),
		slog.Int("files_cleared", repair.FilesCleared))

	return repair, nil
}
