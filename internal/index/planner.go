// Package index drives indexing runs end to end: discover files, diff
// them against the manifest, embed and commit the difference in batches,
// and checkpoint progress so interrupted runs resume where they left
// off. One run holds the project's run lock for its whole duration.
package index

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weftlabs/weft/internal/manifest"
	"github.com/weftlabs/weft/internal/scanner"
)

// PlannedFile is one file the run will read, chunk, embed, and commit.
type PlannedFile struct {
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time

	// Hash is the content hash observed at planning time. The executor
	// re-hashes what it actually reads; this one only classified the file.
	Hash string

	// StaleChunkIDs carries the previous entry's chunk IDs on updates, so
	// the executor can delete them once the replacement chunks are
	// committed. Empty for adds.
	StaleChunkIDs []string
}

// Removal is one manifest entry whose file is gone from the project.
type Removal struct {
	Path     string
	ChunkIDs []string
}

// PlanFailure is a file the planner excluded from the run.
type PlanFailure struct {
	Path   string
	Reason string
}

// Plan is the work list for one indexing run.
type Plan struct {
	Adds      []PlannedFile
	Updates   []PlannedFile
	Removes   []Removal
	Unchanged int
	Failures  []PlanFailure
}

// FilesToEmbed counts the files the executor will read and embed.
func (p *Plan) FilesToEmbed() int {
	return len(p.Adds) + len(p.Updates)
}

// Empty reports whether the run has no work at all.
func (p *Plan) Empty() bool {
	return len(p.Adds) == 0 && len(p.Updates) == 0 && len(p.Removes) == 0
}

// Planner classifies discovered files against the manifest by content
// hash.
type Planner struct {
	hasher  manifest.Hasher
	workers int
	logger  *slog.Logger
}

// NewPlanner creates a planner. workers bounds concurrent hashing; zero
// or negative means 4.
func NewPlanner(hasher manifest.Hasher, workers int, logger *slog.Logger) *Planner {
	if hasher == nil {
		hasher = manifest.NewSHA256Hasher()
	}
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{hasher: hasher, workers: workers, logger: logger}
}

// Plan diffs discovered files against the manifest. m may be nil (first
// run or forced rebuild), in which case every file is an add. Manifest
// paths absent from discovery become removals; an empty discovery
// against a populated manifest is a legitimate full purge. Files whose
// content cannot be hashed are excluded with a warning and the run
// continues without them.
func (p *Planner) Plan(ctx context.Context, files []scanner.FileInfo, m *manifest.Manifest) (*Plan, error) {
	plan := &Plan{}

	discovered := make(map[string]struct{}, len(files))
	for _, f := range files {
		discovered[f.Path] = struct{}{}
	}

	// Removals are collected before any add or update is classified, so
	// every removal's chunk-ID set is fixed before the executor touches
	// overlapping path keys.
	if m != nil {
		for _, path := range m.AllPaths() {
			if _, ok := discovered[path]; ok {
				continue
			}
			plan.Removes = append(plan.Removes, Removal{
				Path:     path,
				ChunkIDs: append([]string(nil), m.ChunkIDsFor(path)...),
			})
		}
	}

	hashes := make([]string, len(files))
	hashErrs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := p.hasher.HashFile(f.AbsPath)
			if err != nil {
				hashErrs[i] = err
				return nil
			}
			hashes[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, f := range files {
		if err := hashErrs[i]; err != nil {
			p.logger.Warn("plan_hash_failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			plan.Failures = append(plan.Failures, PlanFailure{Path: f.Path, Reason: err.Error()})
			continue
		}

		pf := PlannedFile{
			Path:    f.Path,
			AbsPath: f.AbsPath,
			Size:    f.Size,
			ModTime: f.ModTime,
			Hash:    hashes[i],
		}
		if m == nil {
			plan.Adds = append(plan.Adds, pf)
			continue
		}
		entry, ok := m.Entry(f.Path)
		switch {
		case !ok:
			plan.Adds = append(plan.Adds, pf)
		case entry.Hash != pf.Hash:
			pf.StaleChunkIDs = append([]string(nil), entry.ChunkIDs...)
			plan.Updates = append(plan.Updates, pf)
		default:
			plan.Unchanged++
		}
	}

	p.logger.Debug("plan_ready",
		slog.Int("adds", len(plan.Adds)),
		slog.Int("updates", len(plan.Updates)),
		slog.Int("removes", len(plan.Removes)),
		slog.Int("unchanged", plan.Unchanged),
		slog.Int("failures", len(plan.Failures)))

	return plan, nil
}
