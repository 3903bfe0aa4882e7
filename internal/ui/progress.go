package ui

import (
	"sync"
	"time"
)

const (
	// speedSampleInterval is how often throughput is resampled.
	speedSampleInterval = 500 * time.Millisecond

	// speedSmoothing is the exponential smoothing factor for throughput.
	speedSmoothing = 0.2

	// etaSmoothing is the exponential smoothing factor for the ETA, which
	// keeps the displayed estimate from jumping around between samples.
	etaSmoothing = 0.3
)

// ProgressTracker accumulates progress state for the TUI. Safe for
// concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent

	lastETA time.Duration

	lastCurrent   int
	lastSample    time.Time
	filesPerSec   float64
}

// NewProgressTracker creates a tracker with the clock started.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		startTime:  now,
		stageStart: now,
		lastSample: now,
	}
}

// SetStage moves to a new stage and resets per-stage counters.
func (t *ProgressTracker) SetStage(stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stage == t.stage {
		return
	}
	t.stage = stage
	t.current = 0
	t.total = 0
	t.currentFile = ""
	t.stageStart = time.Now()
	t.lastETA = 0
	t.lastCurrent = 0
	t.lastSample = time.Now()
	t.filesPerSec = 0
}

// Update records a progress event.
func (t *ProgressTracker) Update(event ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Stage != t.stage {
		t.stage = event.Stage
		t.stageStart = time.Now()
		t.lastETA = 0
		t.lastCurrent = 0
		t.lastSample = time.Now()
		t.filesPerSec = 0
	}
	t.current = event.Current
	if event.Total > 0 {
		t.total = event.Total
	}
	if event.CurrentFile != "" {
		t.currentFile = event.CurrentFile
	}

	now := time.Now()
	elapsed := now.Sub(t.lastSample)
	if elapsed >= speedSampleInterval {
		instant := float64(t.current-t.lastCurrent) / elapsed.Seconds()
		if t.filesPerSec == 0 {
			t.filesPerSec = instant
		} else {
			t.filesPerSec = speedSmoothing*instant + (1-speedSmoothing)*t.filesPerSec
		}
		t.lastCurrent = t.current
		t.lastSample = now
	}
}

// AddError records a per-file problem.
func (t *ProgressTracker) AddError(event ErrorEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.IsWarn {
		t.warnings = append(t.warnings, event)
		return
	}
	t.errors = append(t.errors, event)
}

// Stats is a point-in-time snapshot of tracker state.
type Stats struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Percent     float64
	Elapsed     time.Duration
	ETA         time.Duration
	FilesPerSec float64
	Errors      []ErrorEvent
	Warnings    []ErrorEvent
}

// Snapshot returns the current state. It takes the write lock because
// computing the ETA updates the smoothing state.
func (t *ProgressTracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Stage:       t.stage,
		Current:     t.current,
		Total:       t.total,
		CurrentFile: t.currentFile,
		Elapsed:     time.Since(t.startTime),
		FilesPerSec: t.filesPerSec,
		Errors:      append([]ErrorEvent(nil), t.errors...),
		Warnings:    append([]ErrorEvent(nil), t.warnings...),
	}
	if t.total > 0 {
		s.Percent = float64(t.current) / float64(t.total)
	}
	s.ETA = t.eta()
	return s
}

// eta estimates time remaining from the stage's observed rate, smoothed
// so consecutive snapshots do not whipsaw. Caller holds the write lock.
func (t *ProgressTracker) eta() time.Duration {
	if t.total <= 0 || t.current <= 0 || t.current >= t.total {
		return 0
	}
	elapsed := time.Since(t.stageStart)
	if elapsed < time.Second {
		return 0
	}
	perItem := elapsed / time.Duration(t.current)
	raw := perItem * time.Duration(t.total-t.current)
	if t.lastETA == 0 {
		t.lastETA = raw
		return raw
	}
	smoothed := time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(t.lastETA))
	t.lastETA = smoothed
	return smoothed
}

// formatDuration renders a duration compactly: 1.2s, 45s, 2m30s, 1h05m.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d < 10*time.Second:
		return d.Round(100 * time.Millisecond).String()
	case d < time.Minute:
		return d.Round(time.Second).String()
	case d < time.Hour:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Minute).String()
	}
}
