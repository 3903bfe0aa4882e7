package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/weftlabs/weft/internal/checkpoint"
	"github.com/weftlabs/weft/internal/chunk"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/embed"
	weftErrors "github.com/weftlabs/weft/internal/errors"
	"github.com/weftlabs/weft/internal/manifest"
	"github.com/weftlabs/weft/internal/scanner"
	"github.com/weftlabs/weft/internal/ui"
	"github.com/weftlabs/weft/internal/vectorstore"
)

// State is where the orchestrator is in its run lifecycle. Status
// surfaces (the MCP index_status tool, weft status) read it.
type State string

const (
	StateIdle       State = "idle"
	StatePlanning   State = "planning"
	StateExecuting  State = "executing"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Lexical receives chunk updates on the same batch boundaries as the
// vector store, for keyword search. Every call is best-effort: the
// orchestrator logs failures and keeps going, because the manifest's
// truth is the vector store, not the sidecar.
type Lexical interface {
	Index(ctx context.Context, chunks []vectorstore.Chunk) error
	Delete(ctx context.Context, ids []string) error
}

// RunRecord summarizes one finished run for the history store.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Added      int
	Updated    int
	Removed    int
	Unchanged  int
	Failed     int
	Chunks     int
	Duration   time.Duration
	Error      string
}

// RunSink persists run summaries after finalize.
type RunSink interface {
	SaveRun(ctx context.Context, rec RunRecord) error
}

// Timings breaks a run down by pipeline stage.
type Timings struct {
	Scan     time.Duration
	Plan     time.Duration
	Execute  time.Duration
	Finalize time.Duration
}

// Result is what one indexing run accomplished. Partial-failure runs
// still produce a Result; only run-fatal conditions return without one.
type Result struct {
	RunID string

	Added     int
	Updated   int
	Removed   int
	Unchanged int
	Failed    int

	ChunksUpserted int
	ChunksDeleted  int

	Duration time.Duration
	Timings  Timings
}

// Options modify a single run.
type Options struct {
	// Force rebuilds the index from scratch: the persisted manifest is
	// deleted before planning and the vector store is purged, so every
	// discovered file is an add.
	Force bool
}

// Deps are the orchestrator's collaborators. Config, Scanner, Chunker,
// Embedder, Store, Manifests, and Checkpoints are required. Hasher
// defaults to SHA-256, Renderer to ui.Discard; Lexical and History are
// optional. Retry overrides the backoff schedule for transient embed
// and store failures; nil uses the default schedule with the configured
// max retries.
type Deps struct {
	Config      *config.Config
	Scanner     *scanner.Scanner
	Chunker     chunk.Chunker
	Embedder    embed.Embedder
	Store       *vectorstore.Handle
	Manifests   *manifest.Store
	Checkpoints *checkpoint.Store
	Hasher      manifest.Hasher
	Lexical     Lexical
	History     RunSink
	Renderer    ui.Renderer
	Retry       *weftErrors.RetryConfig
	Logger      *slog.Logger
}

func (d *Deps) validate() error {
	if d.Config == nil {
		return fmt.Errorf("config is required")
	}
	if d.Scanner == nil {
		return fmt.Errorf("scanner is required")
	}
	if d.Chunker == nil {
		return fmt.Errorf("chunker is required")
	}
	if d.Embedder == nil {
		return fmt.Errorf("embedder is required")
	}
	if d.Store == nil {
		return fmt.Errorf("vector store handle is required")
	}
	if d.Manifests == nil {
		return fmt.Errorf("manifest store is required")
	}
	if d.Checkpoints == nil {
		return fmt.Errorf("checkpoint store is required")
	}
	if d.Hasher == nil {
		d.Hasher = manifest.NewSHA256Hasher()
	}
	if d.Renderer == nil {
		d.Renderer = ui.Discard
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return nil
}

// Orchestrator runs the indexing state machine: Planning (load manifest,
// scan, diff), Executing (removals, then add/update batches), Finalizing
// (final saves, summary). Per-file failures never fail a run; run-fatal
// conditions abort it with a failed checkpoint.
type Orchestrator struct {
	deps        Deps
	projectRoot string
	dataDir     string
	planner     *Planner
	retryCfg    weftErrors.RetryConfig
	logger      *slog.Logger

	mu    sync.Mutex
	state State
}

// New validates deps and builds an Orchestrator for the project root.
func New(projectRoot string, deps Deps) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	retryCfg := weftErrors.DefaultRetryConfig()
	if deps.Config.Indexing.MaxRetries > 0 {
		retryCfg.MaxRetries = deps.Config.Indexing.MaxRetries
	}
	if deps.Retry != nil {
		retryCfg = *deps.Retry
	}

	return &Orchestrator{
		deps:        deps,
		projectRoot: projectRoot,
		dataDir:     config.DataDir(projectRoot),
		planner:     NewPlanner(deps.Hasher, deps.Config.Indexing.Workers, deps.Logger),
		retryCfg:    retryCfg,
		logger:      deps.Logger,
		state:       StateIdle,
	}, nil
}

// State reports the current run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes one indexing run. It takes the project's run lock for the
// whole duration; a concurrent run is rejected with
// ErrCodeRunInProgress. Cancellation lets the in-flight batch finish,
// finalizes the checkpoint as incomplete, and returns the partial Result
// together with the context error.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	lock, err := AcquireLock(o.dataDir, o.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			o.logger.Warn("run_lock_release_failed", slog.String("error", rerr.Error()))
		}
	}()

	res, err := o.execute(ctx, opts)
	if err != nil && !isCancellation(err) {
		o.setState(StateFailed)
	} else {
		o.setState(StateDone)
	}
	return res, err
}

// run carries the mutable state of one run between stages. fresh means
// the manifest was rebuilt rather than loaded (first run, force, drift,
// identity mismatch); saved means at least one batch persisted it.
type run struct {
	o        *Orchestrator
	cp       *checkpoint.Checkpoint
	m        *manifest.Manifest
	revision int64
	fresh    bool
	saved    bool
	renderer ui.Renderer
	res      Result
}

func (o *Orchestrator) execute(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	cfg := o.deps.Config
	fingerprint := cfg.IndexFingerprint()

	renderer := o.deps.Renderer
	if err := renderer.Start(ctx); err != nil {
		o.logger.Warn("renderer_start_failed", slog.String("error", err.Error()))
		renderer = ui.Discard
	}
	defer func() {
		if err := renderer.Stop(); err != nil {
			o.logger.Warn("renderer_stop_failed", slog.String("error", err.Error()))
		}
	}()

	o.setState(StatePlanning)

	// Manifest presence is recorded before the force path deletes the
	// file, so the checkpoint reflects what the run actually found.
	hadManifest := o.deps.Manifests.Exists()

	var (
		m        *manifest.Manifest
		revision int64
		loadErr  error
	)
	if opts.Force {
		loadErr = o.deps.Manifests.Delete()
	} else {
		m, revision, loadErr = o.deps.Manifests.Load(o.projectRoot)
	}

	manifestFiles := 0
	if m != nil {
		manifestFiles = m.FileCount()
	}

	cp := checkpoint.New(hadManifest, manifestFiles, fingerprint)
	cp.Forced = opts.Force
	cp.SetStage("planning")

	if loadErr != nil {
		return nil, o.abort(cp, loadErr)
	}
	o.saveCheckpoint(cp)

	if !o.deps.Store.AnyServing(ctx) {
		err := weftErrors.New(weftErrors.ErrCodeBackendsExhausted,
			"no vector store backend is serving", nil).
			WithSuggestion("check backend health with 'weft status' and retry")
		return nil, o.abort(cp, err)
	}

	// A manifest written under different embedder or chunking settings
	// describes vectors this run cannot extend. The on-disk revision is
	// kept for the save guard; the contents are rebuilt from scratch.
	freshStart := m == nil
	if m != nil && m.SettingsHash != fingerprint {
		o.logger.Warn("settings_drift_fresh_manifest",
			slog.String("manifest_settings", m.SettingsHash),
			slog.String("current_settings", fingerprint))
		m = nil
		freshStart = true
	}
	purgeStore := opts.Force || (freshStart && hadManifest)
	if m == nil {
		m = manifest.New(o.projectRoot, fingerprint)
	}

	r := &run{o: o, cp: cp, m: m, revision: revision, fresh: freshStart, renderer: renderer}
	r.res.RunID = cp.RunID

	var timings Timings

	// Scan.
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "discovering files"})
	scanStart := time.Now()
	files, err := o.deps.Scanner.Scan(ctx)
	timings.Scan = time.Since(scanStart)
	if err != nil {
		if isCancellation(err) {
			return o.finalize(ctx, r, started, &timings, err)
		}
		return nil, o.abort(cp, err)
	}

	// Plan.
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StagePlanning,
		Message: fmt.Sprintf("%d files discovered", len(files)),
	})
	planStart := time.Now()
	plan, err := o.planner.Plan(ctx, files, m)
	timings.Plan = time.Since(planStart)
	if err != nil {
		if isCancellation(err) {
			return o.finalize(ctx, r, started, &timings, err)
		}
		return nil, o.abort(cp, err)
	}
	r.res.Unchanged = plan.Unchanged
	for _, f := range plan.Failures {
		cp.AddFailedFile(f.Path, f.Reason)
		renderer.AddError(ui.ErrorEvent{File: f.Path, Err: errors.New(f.Reason), IsWarn: true})
	}

	// Execute.
	o.setState(StateExecuting)
	cp.SetStage("executing")
	execStart := time.Now()
	totalFiles := plan.FilesToEmbed()
	cp.SetProgress(0, totalFiles, 0)
	o.saveCheckpoint(cp)

	if purgeStore {
		if err := r.purgeStore(ctx); err != nil {
			timings.Execute = time.Since(execStart)
			if isCancellation(err) {
				return o.finalize(ctx, r, started, &timings, err)
			}
			return nil, o.abort(cp, err)
		}
	}

	var runErr error
	if len(plan.Removes) > 0 {
		runErr = r.executeRemovals(ctx, plan.Removes)
	}
	if runErr == nil {
		runErr = r.executeBatches(ctx, plan, totalFiles)
	}
	timings.Execute = time.Since(execStart)
	if runErr != nil && !isCancellation(runErr) {
		return nil, o.abort(cp, runErr)
	}

	return o.finalize(ctx, r, started, &timings, runErr)
}

// finalize runs for every non-fatal outcome: clean completion and
// cancellation both end here. ctxErr is non-nil when the run was cut
// short; the checkpoint then records incomplete rather than complete,
// and ctxErr is returned alongside the partial Result.
func (o *Orchestrator) finalize(ctx context.Context, r *run, started time.Time, timings *Timings, ctxErr error) (*Result, error) {
	o.setState(StateFinalizing)
	r.cp.SetStage("finalizing")
	finalStart := time.Now()

	// A rebuilt manifest that saw no batch (empty project, or everything
	// failed) is still persisted, so the next run and the search command
	// know an index exists. Loaded manifests that saw no batch are
	// already right on disk; rewriting them would bump the revision for
	// nothing. Cancelled runs skip the save too: the batches already
	// persisted whatever they committed.
	if !r.saved && r.fresh && ctxErr == nil {
		newRev, err := o.deps.Manifests.Save(r.m, r.revision)
		if err != nil {
			timings.Finalize = time.Since(finalStart)
			return nil, o.abort(r.cp, err)
		}
		r.revision = newRev
		r.saved = true
	}

	if ctxErr != nil {
		r.cp.MarkIncomplete()
	} else {
		r.cp.MarkComplete()
	}
	o.saveCheckpoint(r.cp)

	timings.Finalize = time.Since(finalStart)
	r.res.Failed = len(r.cp.FailedFiles)
	r.res.Duration = time.Since(started)
	r.res.Timings = *timings

	o.recordHistory(ctx, r)

	r.renderer.Complete(ui.CompletionStats{
		FilesIndexed:   r.res.Added + r.res.Updated,
		FilesRemoved:   r.res.Removed,
		FilesUnchanged: r.res.Unchanged,
		FilesFailed:    r.res.Failed,
		Chunks:         r.res.ChunksUpserted,
		Duration:       r.res.Duration,
		Stages: ui.StageTimings{
			Scan:     timings.Scan,
			Plan:     timings.Plan,
			Execute:  timings.Execute,
			Finalize: timings.Finalize,
		},
		Embedder: ui.EmbedderInfo{
			Provider:   o.deps.Config.Embeddings.Provider,
			Model:      o.deps.Embedder.ModelName(),
			Dimensions: o.deps.Embedder.Dimensions(),
		},
	})

	o.logger.Info("index_complete",
		slog.String("run_id", r.res.RunID),
		slog.String("status", string(r.cp.Status)),
		slog.Int("added", r.res.Added),
		slog.Int("updated", r.res.Updated),
		slog.Int("removed", r.res.Removed),
		slog.Int("unchanged", r.res.Unchanged),
		slog.Int("failed", r.res.Failed),
		slog.Int("chunks_upserted", r.res.ChunksUpserted),
		slog.Int("chunks_deleted", r.res.ChunksDeleted),
		slog.Duration("duration", r.res.Duration))

	if ctxErr != nil {
		return &r.res, ctxErr
	}
	return &r.res, nil
}

func (o *Orchestrator) recordHistory(ctx context.Context, r *run) {
	if o.deps.History == nil {
		return
	}
	rec := RunRecord{
		RunID:      r.res.RunID,
		StartedAt:  r.cp.StartedAt,
		FinishedAt: time.Now(),
		Status:     string(r.cp.Status),
		Added:      r.res.Added,
		Updated:    r.res.Updated,
		Removed:    r.res.Removed,
		Unchanged:  r.res.Unchanged,
		Failed:     r.res.Failed,
		Chunks:     r.res.ChunksUpserted,
		Duration:   r.res.Duration,
		Error:      r.cp.LastError,
	}
	// The record must land even when the run context is already dead.
	if err := o.deps.History.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("run_history_save_failed",
			slog.String("run_id", rec.RunID),
			slog.String("error", err.Error()))
	}
}

// purgeStore empties the vector store before a rebuild. Old vectors may
// have a different width than the ones this run will write, so they
// cannot stay.
func (r *run) purgeStore(ctx context.Context) error {
	o := r.o
	ids, err := o.deps.Store.AllIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	o.logger.Info("store_purge", slog.Int("chunks", len(ids)))
	if err := weftErrors.Retry(ctx, o.retryCfg, func() error {
		return o.deps.Store.Delete(ctx, ids)
	}); err != nil {
		return err
	}
	r.res.ChunksDeleted += len(ids)
	r.lexicalDelete(ctx, ids)
	return nil
}

// executeRemovals deletes chunks of files that left the project, then
// drops their manifest entries. On retry exhaustion the entries stay so
// the next run plans the removals again.
func (r *run) executeRemovals(ctx context.Context, removes []Removal) error {
	o := r.o

	var ids []string
	for _, rm := range removes {
		ids = append(ids, rm.ChunkIDs...)
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageCommitting,
		Message: fmt.Sprintf("removing %d files", len(removes)),
	})

	if len(ids) > 0 {
		if err := weftErrors.Retry(ctx, o.retryCfg, func() error {
			return o.deps.Store.Delete(ctx, ids)
		}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			for _, rm := range removes {
				reason := fmt.Sprintf("deleting stale chunks: %v", err)
				r.cp.AddFailedFile(rm.Path, reason)
				r.renderer.AddError(ui.ErrorEvent{File: rm.Path, Err: err})
			}
			o.logger.Warn("removal_delete_failed",
				slog.Int("files", len(removes)),
				slog.String("error", err.Error()))
			return nil
		}
		r.res.ChunksDeleted += len(ids)
	}

	for _, rm := range removes {
		r.m.RemoveFile(rm.Path)
	}
	r.res.Removed = len(removes)

	r.lexicalDelete(ctx, ids)

	// The deletions must be durable before the manifest stops listing
	// these files, or a crash would revive their chunks as unreachable
	// leftovers the next load.
	if err := o.deps.Store.Flush(); err != nil {
		return weftErrors.StorageError("flushing vector store", err)
	}

	if err := r.commitManifest(); err != nil {
		return err
	}
	r.cp.SetProgress(r.cp.FilesDone, r.cp.FilesTotal, r.res.ChunksUpserted)
	o.saveCheckpoint(r.cp)
	return nil
}

// batchFile is a planned file tagged with whether it replaces an
// existing manifest entry.
type batchFile struct {
	PlannedFile
	update bool
}

// fileWork is one file's progress through a batch. retire marks updates
// whose new content produced no chunks: their old entry and chunks are
// dropped without a replacement.
type fileWork struct {
	file   batchFile
	hash   string
	size   int64
	chunks []vectorstore.Chunk
	retire bool
	failed bool
}

// executeBatches runs the add/update work in batches. Each batch is
// read, chunked, embedded, upserted, flushed, and only then recorded in
// the manifest and checkpoint. Cancellation is honored between batches;
// the batch in flight finishes first.
func (r *run) executeBatches(ctx context.Context, plan *Plan, totalFiles int) error {
	o := r.o

	work := make([]batchFile, 0, totalFiles)
	for _, pf := range plan.Adds {
		work = append(work, batchFile{PlannedFile: pf})
	}
	for _, pf := range plan.Updates {
		work = append(work, batchFile{PlannedFile: pf, update: true})
	}

	batchSize := o.deps.Config.Indexing.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	done := 0
	for start := 0; start < len(work); start += batchSize {
		select {
		case <-ctx.Done():
			o.logger.Info("run_cancelled_between_batches",
				slog.Int("files_done", done),
				slog.Int("files_total", totalFiles))
			return ctx.Err()
		default:
		}

		end := start + batchSize
		if end > len(work) {
			end = len(work)
		}
		if err := r.executeBatch(ctx, work[start:end], done, totalFiles); err != nil {
			return err
		}
		done += end - start

		r.cp.SetProgress(done, totalFiles, r.res.ChunksUpserted)
		o.saveCheckpoint(r.cp)
	}
	return nil
}

func (r *run) executeBatch(ctx context.Context, batch []batchFile, doneBefore, totalFiles int) error {
	o := r.o

	works := make([]fileWork, 0, len(batch))
	var texts []string

	for i, bf := range batch {
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageEmbedding,
			Current:     doneBefore + i,
			Total:       totalFiles,
			CurrentFile: bf.Path,
		})

		content, err := os.ReadFile(bf.AbsPath)
		if err != nil {
			r.failFile(bf.Path, weftErrors.New(weftErrors.ErrCodeFileUnreadable, "reading file", err), true)
			continue
		}

		chunks, err := o.deps.Chunker.Chunk(ctx, bf.Path, content)
		if err != nil {
			if isCancellation(err) {
				return err
			}
			r.failFile(bf.Path, fmt.Errorf("chunking: %w", err), true)
			continue
		}

		// The hash of what was actually read is authoritative: the file
		// may have changed since planning, and chunk IDs must match the
		// content that produced them.
		commitHash := o.deps.Hasher.HashBytes(content)

		if len(content) == 0 || len(chunks) == 0 {
			if len(content) > 0 {
				o.logger.Warn("file_produced_no_chunks", slog.String("path", bf.Path))
				r.renderer.AddError(ui.ErrorEvent{
					File:   bf.Path,
					Err:    errors.New("content produced no chunks"),
					IsWarn: true,
				})
			}
			// Nothing to index. An update still has to retire its old
			// entry; an add just stays out of the manifest.
			if bf.update {
				works = append(works, fileWork{file: bf, hash: commitHash, retire: true})
			}
			continue
		}

		vchunks := make([]vectorstore.Chunk, len(chunks))
		for ord, ck := range chunks {
			vchunks[ord] = vectorstore.Chunk{
				ID:        manifest.ChunkID(bf.Path, commitHash, ord),
				Path:      bf.Path,
				Language:  ck.Language,
				StartLine: ck.StartLine,
				EndLine:   ck.EndLine,
				Content:   ck.Content,
			}
			texts = append(texts, ck.Content)
		}
		works = append(works, fileWork{
			file:   bf,
			hash:   commitHash,
			size:   int64(len(content)),
			chunks: vchunks,
		})
	}

	// Embed everything the batch produced in one call; providers slice
	// it into requests themselves.
	if len(texts) > 0 {
		vectors, err := weftErrors.RetryWithResult(ctx, o.retryCfg, func() ([][]float32, error) {
			vs, err := o.deps.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return nil, err
			}
			if len(vs) != len(texts) {
				return nil, weftErrors.New(weftErrors.ErrCodeMalformedResponse,
					fmt.Sprintf("embedder returned %d vectors for %d texts", len(vs), len(texts)), nil)
			}
			return vs, nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Retries exhausted: the whole batch's embeddable files fail,
			// the run moves on. Retires don't need vectors and proceed.
			for i := range works {
				if len(works[i].chunks) > 0 {
					works[i].failed = true
					r.failFile(works[i].file.Path, fmt.Errorf("embedding: %w", err), false)
				}
			}
		} else {
			vi := 0
			for wi := range works {
				for ci := range works[wi].chunks {
					works[wi].chunks[ci].Vector = vectors[vi]
					vi++
				}
			}
		}
	}

	// Upsert the surviving chunks.
	var toUpsert []vectorstore.Chunk
	for _, w := range works {
		if !w.failed {
			toUpsert = append(toUpsert, w.chunks...)
		}
	}
	if len(toUpsert) > 0 {
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageCommitting,
			Current: doneBefore + len(batch),
			Total:   totalFiles,
			Message: fmt.Sprintf("%d chunks", len(toUpsert)),
		})

		confirmed, err := weftErrors.RetryWithResult(ctx, o.retryCfg, func() (int, error) {
			return o.deps.Store.Upsert(ctx, toUpsert)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			for i := range works {
				if !works[i].failed && len(works[i].chunks) > 0 {
					works[i].failed = true
					r.failFile(works[i].file.Path, fmt.Errorf("storing chunks: %w", err), false)
				}
			}
		} else {
			r.res.ChunksUpserted += confirmed
			r.lexicalIndex(ctx, toUpsert)
		}
	}

	// Old chunks of successfully replaced or retired files go away only
	// after the replacements are stored, so a crash in between leaves
	// orphans, never missing vectors.
	var staleIDs []string
	for _, w := range works {
		if w.failed {
			continue
		}
		if w.file.update || w.retire {
			staleIDs = append(staleIDs, w.file.StaleChunkIDs...)
		}
	}
	if len(staleIDs) > 0 {
		if err := weftErrors.Retry(ctx, o.retryCfg, func() error {
			return o.deps.Store.Delete(ctx, staleIDs)
		}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Orphaned vectors are harmless for search correctness and
			// reclaimed by verify --repair.
			o.logger.Warn("stale_chunk_delete_failed",
				slog.Int("chunks", len(staleIDs)),
				slog.String("error", err.Error()))
		} else {
			r.res.ChunksDeleted += len(staleIDs)
			r.lexicalDelete(ctx, staleIDs)
		}
	}

	// Store writes must be durable before the manifest records them.
	committed := false
	for _, w := range works {
		if !w.failed {
			committed = true
			break
		}
	}
	if !committed {
		return nil
	}
	if err := o.deps.Store.Flush(); err != nil {
		return weftErrors.StorageError("flushing vector store", err)
	}

	now := time.Now()
	for _, w := range works {
		if w.failed {
			continue
		}
		if w.retire {
			r.m.RemoveFile(w.file.Path)
			r.res.Updated++
			continue
		}
		ids := make([]string, len(w.chunks))
		for i, c := range w.chunks {
			ids[i] = c.ID
		}
		r.m.AddFile(w.file.Path, manifest.Entry{
			Hash:      w.hash,
			Size:      w.size,
			ModTime:   w.file.ModTime,
			ChunkIDs:  ids,
			IndexedAt: now,
		})
		if w.file.update {
			r.res.Updated++
		} else {
			r.res.Added++
		}
	}

	return r.commitManifest()
}

// commitManifest saves the manifest under the revision guard. Failure is
// run-fatal: continuing would let the store and the manifest drift.
func (r *run) commitManifest() error {
	newRev, err := r.o.deps.Manifests.Save(r.m, r.revision)
	if err != nil {
		return err
	}
	r.revision = newRev
	r.saved = true
	return nil
}

func (r *run) failFile(path string, err error, warn bool) {
	r.o.logger.Warn("file_failed",
		slog.String("path", path),
		slog.String("error", err.Error()))
	r.cp.AddFailedFile(path, err.Error())
	r.renderer.AddError(ui.ErrorEvent{File: path, Err: err, IsWarn: warn})
}

func (r *run) lexicalIndex(ctx context.Context, chunks []vectorstore.Chunk) {
	if r.o.deps.Lexical == nil {
		return
	}
	if err := r.o.deps.Lexical.Index(ctx, chunks); err != nil {
		r.o.logger.Warn("lexical_index_failed",
			slog.Int("chunks", len(chunks)),
			slog.String("error", err.Error()))
	}
}

func (r *run) lexicalDelete(ctx context.Context, ids []string) {
	if r.o.deps.Lexical == nil || len(ids) == 0 {
		return
	}
	if err := r.o.deps.Lexical.Delete(ctx, ids); err != nil {
		r.o.logger.Warn("lexical_delete_failed",
			slog.Int("chunks", len(ids)),
			slog.String("error", err.Error()))
	}
}

// abort marks the checkpoint failed and returns the run-fatal error. No
// manifest state is persisted past this point.
func (o *Orchestrator) abort(cp *checkpoint.Checkpoint, err error) error {
	o.logger.Error("run_failed",
		slog.String("run_id", cp.RunID),
		slog.String("error", err.Error()))
	cp.MarkFailed(err)
	o.saveCheckpoint(cp)
	return err
}

// saveCheckpoint persists the checkpoint. The checkpoint is advisory;
// failing to write it degrades diagnostics, not correctness.
func (o *Orchestrator) saveCheckpoint(cp *checkpoint.Checkpoint) {
	if err := o.deps.Checkpoints.Save(cp); err != nil {
		o.logger.Warn("checkpoint_save_failed",
			slog.String("run_id", cp.RunID),
			slog.String("error", err.Error()))
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
