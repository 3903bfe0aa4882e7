package ui

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageString(t *testing.T) {
	assert.Equal(t, "Scanning", StageScanning.String())
	assert.Equal(t, "Planning", StagePlanning.String())
	assert.Equal(t, "Embedding", StageEmbedding.String())
	assert.Equal(t, "Committing", StageCommitting.String())
	assert.Equal(t, "Done", StageDone.String())
	assert.Equal(t, "Unknown", Stage(99).String())
}

func TestStageIcon(t *testing.T) {
	assert.Equal(t, "SCAN", StageScanning.Icon())
	assert.Equal(t, "DONE", StageDone.Icon())
	assert.Equal(t, "???", Stage(99).Icon())
}

func TestStageOrdering(t *testing.T) {
	// The TUI stage strip relies on pipeline order.
	assert.True(t, StageScanning < StagePlanning)
	assert.True(t, StagePlanning < StageEmbedding)
	assert.True(t, StageEmbedding < StageCommitting)
	assert.True(t, StageCommitting < StageDone)
}

func TestNewConfigOptions(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewConfig(&buf,
		WithForcePlain(true),
		WithNoColor(true),
		WithProjectDir("/tmp/proj"),
	)
	assert.Same(t, &buf, cfg.Output.(*bytes.Buffer))
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/tmp/proj", cfg.ProjectDir)
}

func TestNewRendererForcePlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(NewConfig(&buf, WithForcePlain(true)))
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewRendererNonTTYFallsBackToPlain(t *testing.T) {
	// A bytes.Buffer is never a terminal.
	var buf bytes.Buffer
	r := NewRenderer(NewConfig(&buf))
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIsTTYNonFile(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, IsTTY(&buf))
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDiscardRendererDropsEverything(t *testing.T) {
	r := Discard
	require.NoError(t, r.Start(context.Background()))
	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Current: 1, Total: 2})
	r.AddError(ErrorEvent{File: "a.go", Err: assert.AnError})
	r.Complete(CompletionStats{FilesIndexed: 3})
	require.NoError(t, r.Stop())
}
