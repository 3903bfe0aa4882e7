package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderSummaryCounts(t *testing.T) {
	out := renderSummary(NoColorStyles(), CompletionStats{
		FilesIndexed:   12,
		FilesRemoved:   2,
		FilesUnchanged: 30,
		Chunks:         150,
		Duration:       4 * time.Second,
		Embedder:       EmbedderInfo{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536},
	}, 0, 0)

	assert.Contains(t, out, "Indexing complete")
	assert.Contains(t, out, "12 files")
	assert.Contains(t, out, "2 files")
	assert.Contains(t, out, "30 files")
	assert.NotContains(t, out, "failed")
	assert.Contains(t, out, "150")
	assert.Contains(t, out, "openai/text-embedding-3-small (1536 dims)")
}

func TestRenderSummaryWithFailures(t *testing.T) {
	out := renderSummary(NoColorStyles(), CompletionStats{
		FilesIndexed: 3,
		FilesFailed:  2,
	}, 2, 1)

	assert.Contains(t, out, "finished with failures")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "2 errors · 1 warnings")
}

func TestRenderSummaryStageTimings(t *testing.T) {
	out := renderSummary(NoColorStyles(), CompletionStats{
		Stages: StageTimings{
			Scan:     200 * time.Millisecond,
			Plan:     100 * time.Millisecond,
			Execute:  3 * time.Second,
			Finalize: 50 * time.Millisecond,
		},
	}, 0, 0)

	assert.Contains(t, out, "scan 200ms")
	assert.Contains(t, out, "index 3s")
}

func TestStageStripMarksProgress(t *testing.T) {
	m := newIndexingModel(Config{NoColor: true})

	strip := m.renderStageStrip(StageEmbedding)
	assert.Contains(t, strip, "● Scanning")
	assert.Contains(t, strip, "● Planning")
	assert.Contains(t, strip, "○ Committing")
	assert.NotContains(t, strip, "○ Embedding")

	done := m.renderStageStrip(StageDone)
	assert.Equal(t, 4, strings.Count(done, "●"))
}

func TestModelViewEmptyAfterComplete(t *testing.T) {
	m := newIndexingModel(Config{NoColor: true})
	updated, _ := m.Update(completeMsg(CompletionStats{FilesIndexed: 1}))

	model, ok := updated.(indexingModel)
	assert.True(t, ok)
	assert.True(t, model.completed)
	assert.Empty(t, model.View())
}

func TestModelViewShowsProgress(t *testing.T) {
	m := newIndexingModel(Config{NoColor: true, ProjectDir: "/tmp/proj"})
	m.tracker.Update(ProgressEvent{
		Stage:       StageEmbedding,
		Current:     3,
		Total:       9,
		CurrentFile: "pkg/thing.go",
	})

	view := m.View()
	assert.Contains(t, view, "weft")
	assert.Contains(t, view, "3/9 files")
	assert.Contains(t, view, "pkg/thing.go")
}

func TestNewTUIRendererRequiresOutput(t *testing.T) {
	_, err := NewTUIRenderer(Config{})
	assert.Error(t, err)
}
