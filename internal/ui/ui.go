// Package ui renders indexing progress to the terminal. Interactive
// terminals get a bubbletea TUI; pipes, CI, and --no-tui get plain line
// output. The orchestrator talks to a Renderer and never knows which one
// it got.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one phase of an indexing run.
type Stage int

const (
	// StageScanning is file discovery.
	StageScanning Stage = iota
	// StagePlanning is hashing and manifest reconciliation.
	StagePlanning
	// StageEmbedding is chunking and embedding the current batch.
	StageEmbedding
	// StageCommitting is writing the batch to the vector store and
	// recording it in the manifest.
	StageCommitting
	// StageDone means the run has finished.
	StageDone
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StagePlanning:
		return "Planning"
	case StageEmbedding:
		return "Embedding"
	case StageCommitting:
		return "Committing"
	case StageDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag used in plain output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StagePlanning:
		return "PLAN"
	case StageEmbedding:
		return "EMBED"
	case StageCommitting:
		return "COMMIT"
	case StageDone:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update. Current and Total count files in
// the run's plan; Total of zero means the extent is not known yet.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a per-file problem surfaced during the run.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings breaks the run duration down by pipeline phase.
type StageTimings struct {
	Scan     time.Duration
	Plan     time.Duration
	Execute  time.Duration
	Finalize time.Duration
}

// EmbedderInfo identifies the embedding provider a run used.
type EmbedderInfo struct {
	Provider   string
	Model      string
	Dimensions int
}

// CompletionStats is the final run summary handed to Complete.
type CompletionStats struct {
	// FilesIndexed counts files added or re-embedded this run.
	FilesIndexed int

	// FilesRemoved counts files whose chunks were deleted.
	FilesRemoved int

	// FilesUnchanged counts files the plan skipped.
	FilesUnchanged int

	// FilesFailed counts files that exhausted retries or could not be
	// read.
	FilesFailed int

	// Chunks counts chunks confirmed written to the vector store.
	Chunks int

	Duration time.Duration
	Stages   StageTimings
	Embedder EmbedderInfo
}

// Renderer displays run progress. Implementations must tolerate events
// arriving before Start and after Complete.
type Renderer interface {
	// Start initializes the display.
	Start(ctx context.Context) error

	// UpdateProgress reports a progress change.
	UpdateProgress(event ProgressEvent)

	// AddError reports a per-file problem.
	AddError(event ErrorEvent)

	// Complete shows the final run summary.
	Complete(stats CompletionStats)

	// Stop tears the display down.
	Stop() error
}

// Discard is a Renderer that drops every event.
var Discard Renderer = discardRenderer{}

type discardRenderer struct{}

func (discardRenderer) Start(context.Context) error { return nil }
func (discardRenderer) UpdateProgress(ProgressEvent) {}
func (discardRenderer) AddError(ErrorEvent)          {}
func (discardRenderer) Complete(CompletionStats)     {}
func (discardRenderer) Stop() error                  { return nil }

// Config selects and parameterizes the renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	ProjectDir string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain line output even on a TTY.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables colored output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithProjectDir sets the project path shown in the TUI header.
func WithProjectDir(dir string) ConfigOption {
	return func(c *Config) {
		c.ProjectDir = dir
	}
}

// NewConfig builds a Config for the given output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks a renderer for the environment: the TUI on an
// interactive terminal, plain output for pipes, CI, and --no-tui.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether the writer is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

// DetectCI reports whether the process appears to run under CI.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if _, set := os.LookupEnv(v); set {
			return true
		}
	}
	return false
}
