// Package checkpoint records per-run indexing progress. The checkpoint is
// advisory: commands read it to report what the last run did and whether
// an index exists, but correctness of incremental indexing never depends
// on it. The manifest is the durable record; losing the checkpoint loses
// diagnostics, not data.
package checkpoint

import (
	"time"

	"github.com/google/uuid"
)

// Status describes where an indexing run ended up.
type Status string

const (
	// StatusRunning is set while a run is in flight.
	StatusRunning Status = "running"

	// StatusComplete means the run finished and the manifest matches the
	// project.
	StatusComplete Status = "complete"

	// StatusIncomplete means the run stopped early (cancellation or
	// partial failure) after committing some batches. Committed work is
	// durable; the next run picks up the remainder.
	StatusIncomplete Status = "incomplete"

	// StatusFailed means the run aborted before completing.
	StatusFailed Status = "failed"
)

// DefaultStaleAfter is how old a running checkpoint may be before it is
// considered abandoned rather than in flight.
const DefaultStaleAfter = 24 * time.Hour

// Checkpoint is the persisted progress record of one indexing run.
type Checkpoint struct {
	// RunID uniquely identifies the run. UUIDv7, so IDs sort by start
	// time.
	RunID string `json:"run_id"`

	// Status is the run outcome, StatusRunning while in flight.
	Status Status `json:"status"`

	// Stage is the pipeline stage last entered (planning, executing,
	// finalizing).
	Stage string `json:"stage"`

	// StartedAt and UpdatedAt are set at construction and on every
	// save respectively. StartedAt is per run, never shared state.
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// HasManifest records whether a manifest existed when the run
	// started. The search command uses this plus ManifestFiles to tell
	// "no index yet" apart from "index of an empty project".
	HasManifest bool `json:"has_manifest"`

	// ManifestFiles is the manifest's file count when the run started.
	ManifestFiles int `json:"manifest_files"`

	// FilesTotal and FilesDone track execution progress over the files
	// this run planned to touch.
	FilesTotal int `json:"files_total"`
	FilesDone  int `json:"files_done"`

	// ChunksWritten counts chunks confirmed written to the vector store.
	ChunksWritten int `json:"chunks_written"`

	// Forced records whether this was a forced full rebuild.
	Forced bool `json:"forced,omitempty"`

	// SettingsHash fingerprints the embedder and chunking settings the
	// run used. A checkpoint from different settings describes a
	// different index.
	SettingsHash string `json:"settings_hash"`

	// FailedFiles lists files that exhausted retries this run, with the
	// reason each one failed.
	FailedFiles []FileFailure `json:"failed_files,omitempty"`

	// LastError holds the run-fatal error message for failed runs.
	LastError string `json:"last_error,omitempty"`
}

// FileFailure records one file that could not be indexed this run.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// New creates a checkpoint for a starting run. Timestamps are taken here,
// at construction, so two runs never share a start time.
func New(hasManifest bool, manifestFiles int, settingsHash string) *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		RunID:         newRunID(),
		Status:        StatusRunning,
		StartedAt:     now,
		UpdatedAt:     now,
		HasManifest:   hasManifest,
		ManifestFiles: manifestFiles,
		SettingsHash:  settingsHash,
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SetStage records the pipeline stage last entered.
func (c *Checkpoint) SetStage(stage string) {
	c.Stage = stage
}

// SetProgress records execution progress.
func (c *Checkpoint) SetProgress(filesDone, filesTotal, chunksWritten int) {
	c.FilesDone = filesDone
	c.FilesTotal = filesTotal
	c.ChunksWritten = chunksWritten
}

// AddFailedFile records a file that exhausted its retries.
func (c *Checkpoint) AddFailedFile(path, reason string) {
	c.FailedFiles = append(c.FailedFiles, FileFailure{Path: path, Reason: reason})
}

// MarkComplete finalizes the checkpoint for a successful run.
func (c *Checkpoint) MarkComplete() {
	c.Status = StatusComplete
	c.Stage = "done"
}

// MarkIncomplete finalizes the checkpoint for a run that stopped early
// after committing some work.
func (c *Checkpoint) MarkIncomplete() {
	c.Status = StatusIncomplete
}

// MarkFailed finalizes the checkpoint for an aborted run.
func (c *Checkpoint) MarkFailed(err error) {
	c.Status = StatusFailed
	if err != nil {
		c.LastError = err.Error()
	}
}

// InFlight reports whether the checkpoint claims a run is still going.
func (c *Checkpoint) InFlight() bool {
	return c.Status == StatusRunning
}

// Stale reports whether a running checkpoint is old enough to be an
// abandoned run rather than one in flight.
func (c *Checkpoint) Stale(maxAge time.Duration) bool {
	return c.Status == StatusRunning && time.Since(c.UpdatedAt) > maxAge
}

// MatchesSettings reports whether the checkpoint was produced with the
// given settings fingerprint.
func (c *Checkpoint) MatchesSettings(settingsHash string) bool {
	return c.SettingsHash == settingsHash
}

// ManifestPresent reports whether a manifest exists as of this
// checkpoint. Search surfaces use it to tell "no index yet" apart from
// "index of a project with nothing to index". A completed run always
// leaves a manifest, and any committed batch saves one; short of that,
// presence falls back to what the run found at start, except for forced
// runs, which delete the prior manifest before rebuilding.
func (c *Checkpoint) ManifestPresent() bool {
	if c == nil {
		return false
	}
	if c.Status == StatusComplete || c.ChunksWritten > 0 {
		return true
	}
	if c.Forced {
		return false
	}
	return c.HasManifest
}

// Duration returns how long the run has been going (or took).
func (c *Checkpoint) Duration() time.Duration {
	return c.UpdatedAt.Sub(c.StartedAt)
}
