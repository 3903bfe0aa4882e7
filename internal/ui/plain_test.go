package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRendererStageTransitions(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})
	require.NoError(t, r.Start(context.Background()))

	r.UpdateProgress(ProgressEvent{Stage: StageScanning})
	r.UpdateProgress(ProgressEvent{Stage: StagePlanning})
	// Same stage again must not print a second header.
	r.UpdateProgress(ProgressEvent{Stage: StagePlanning})

	out := buf.String()
	assert.Contains(t, out, "[SCAN] Scanning")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("[PLAN] Planning")))
	require.NoError(t, r.Stop())
}

func TestPlainRendererProgressLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.UpdateProgress(ProgressEvent{
		Stage:       StageEmbedding,
		Current:     3,
		Total:       10,
		CurrentFile: "internal/app/main.go",
	})

	assert.Contains(t, buf.String(), "[EMBED] 3/10 internal/app/main.go")
}

func TestPlainRendererMessageLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.UpdateProgress(ProgressEvent{Stage: StagePlanning, Message: "12 files to index"})

	assert.Contains(t, buf.String(), "[PLAN] 12 files to index")
}

func TestPlainRendererErrorsAndWarnings(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.AddError(ErrorEvent{File: "bad.go", Err: errors.New("unreadable")})
	r.AddError(ErrorEvent{File: "meh.go", Err: errors.New("no chunks"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("backend flaked"), IsWarn: true})

	out := buf.String()
	assert.Contains(t, out, "ERROR: bad.go: unreadable")
	assert.Contains(t, out, "WARN: meh.go: no chunks")
	assert.Contains(t, out, "WARN: backend flaked")
}

func TestPlainRendererComplete(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})
	r.AddError(ErrorEvent{File: "bad.go", Err: errors.New("unreadable")})

	r.Complete(CompletionStats{
		FilesIndexed:   5,
		FilesRemoved:   1,
		FilesUnchanged: 20,
		FilesFailed:    1,
		Chunks:         42,
		Duration:       3 * time.Second,
		Embedder:       EmbedderInfo{Provider: "ollama", Model: "nomic-embed-text", Dimensions: 768},
	})

	out := buf.String()
	assert.Contains(t, out, "indexed 5, removed 1, unchanged 20, failed 1")
	assert.Contains(t, out, "42 chunks")
	assert.Contains(t, out, "ollama/nomic-embed-text (768d)")
	assert.Contains(t, out, "1 errors, 0 warnings")
}

func TestPlainRendererNilOutput(t *testing.T) {
	r := NewPlainRenderer(Config{})
	assert.NotPanics(t, func() {
		r.UpdateProgress(ProgressEvent{Stage: StageScanning})
		r.Complete(CompletionStats{})
	})
}
