package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// PlainRenderer writes line-oriented progress, one line per event. Used
// for pipes, CI, and --no-tui.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	stage    Stage
	errors   int
	warnings int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	return &PlainRenderer{out: out, stage: -1}
}

// Start implements Renderer. Plain output needs no setup.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress prints a line when the stage changes and progress lines
// while files are being processed.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.stage {
		r.stage = event.Stage
		fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Stage)
	}
	switch {
	case event.CurrentFile != "" && event.Total > 0:
		fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, event.CurrentFile)
	case event.Message != "":
		fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

// AddError prints the problem immediately.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warnings++
	} else {
		r.errors++
	}
	if event.File != "" {
		fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
		return
	}
	fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete prints the run summary.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "[DONE] indexed %d, removed %d, unchanged %d, failed %d\n",
		stats.FilesIndexed, stats.FilesRemoved, stats.FilesUnchanged, stats.FilesFailed)
	fmt.Fprintf(r.out, "[DONE] %d chunks in %s\n", stats.Chunks, formatDuration(stats.Duration))
	if stats.Embedder.Model != "" {
		fmt.Fprintf(r.out, "[DONE] embedder %s/%s (%dd)\n",
			stats.Embedder.Provider, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
	if r.errors > 0 || r.warnings > 0 {
		fmt.Fprintf(r.out, "[DONE] %d errors, %d warnings\n", r.errors, r.warnings)
	}
}

// Stop implements Renderer. Plain output needs no teardown.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
