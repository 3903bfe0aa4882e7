package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerUpdateAndSnapshot(t *testing.T) {
	tr := NewProgressTracker()

	tr.Update(ProgressEvent{Stage: StageEmbedding, Current: 5, Total: 10, CurrentFile: "a.go"})
	snap := tr.Snapshot()

	assert.Equal(t, StageEmbedding, snap.Stage)
	assert.Equal(t, 5, snap.Current)
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, "a.go", snap.CurrentFile)
	assert.InDelta(t, 0.5, snap.Percent, 0.001)
}

func TestTrackerStageChangeResetsCounters(t *testing.T) {
	tr := NewProgressTracker()
	tr.Update(ProgressEvent{Stage: StageScanning, Current: 100, Total: 100})

	tr.SetStage(StageEmbedding)
	snap := tr.Snapshot()

	assert.Equal(t, StageEmbedding, snap.Stage)
	assert.Equal(t, 0, snap.Current)
	assert.Equal(t, 0, snap.Total)
	assert.Zero(t, snap.Percent)
}

func TestTrackerKeepsTotalWhenEventOmitsIt(t *testing.T) {
	tr := NewProgressTracker()
	tr.Update(ProgressEvent{Stage: StageEmbedding, Current: 1, Total: 50})
	tr.Update(ProgressEvent{Stage: StageEmbedding, Current: 2})

	snap := tr.Snapshot()
	assert.Equal(t, 50, snap.Total)
	assert.Equal(t, 2, snap.Current)
}

func TestTrackerErrorsSplitFromWarnings(t *testing.T) {
	tr := NewProgressTracker()
	tr.AddError(ErrorEvent{File: "a.go", Err: errors.New("boom")})
	tr.AddError(ErrorEvent{File: "b.go", Err: errors.New("meh"), IsWarn: true})
	tr.AddError(ErrorEvent{File: "c.go", Err: errors.New("meh2"), IsWarn: true})

	snap := tr.Snapshot()
	assert.Len(t, snap.Errors, 1)
	assert.Len(t, snap.Warnings, 2)
}

func TestTrackerETAZeroWithoutProgress(t *testing.T) {
	tr := NewProgressTracker()

	tr.Update(ProgressEvent{Stage: StageEmbedding, Current: 0, Total: 10})
	assert.Zero(t, tr.Snapshot().ETA)

	tr.Update(ProgressEvent{Stage: StageEmbedding, Current: 10, Total: 10})
	assert.Zero(t, tr.Snapshot().ETA)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500ms", formatDuration(500*time.Millisecond))
	assert.Equal(t, "2.5s", formatDuration(2500*time.Millisecond))
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m30s", formatDuration(150*time.Second))
	assert.Equal(t, "1h5m0s", formatDuration(65*time.Minute))
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short.go", truncatePath("short.go", 20))
	got := truncatePath("internal/very/deep/package/file.go", 12)
	assert.Equal(t, 12, len([]rune(got)))
	assert.Equal(t, "…", string([]rune(got)[0]))
	assert.Contains(t, got, "file.go")
}

func TestTailErrors(t *testing.T) {
	events := []ErrorEvent{
		{File: "a"}, {File: "b"}, {File: "c"}, {File: "d"},
	}
	tail := tailErrors(events, 2)
	assert.Len(t, tail, 2)
	assert.Equal(t, "c", tail[0].File)
	assert.Equal(t, "d", tail[1].File)

	assert.Len(t, tailErrors(events, 10), 4)
}
