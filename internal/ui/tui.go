package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// stopTimeout caps how long Stop waits for the bubbletea program to
// exit before giving up.
const stopTimeout = 2 * time.Second

// TUIRenderer renders progress with a bubbletea program. The program
// runs in the alt screen; the final summary is printed to the normal
// screen after it exits so it survives in the scrollback.
type TUIRenderer struct {
	mu       sync.Mutex
	cfg      Config
	program  *tea.Program
	done     chan struct{}
	runErr   error
	started  bool
	stats    CompletionStats
	complete bool
	errors   int
	warnings int
}

// NewTUIRenderer creates a TUI renderer.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if cfg.Output == nil {
		return nil, fmt.Errorf("tui renderer requires an output writer")
	}
	model := newIndexingModel(cfg)
	program := tea.NewProgram(model,
		tea.WithOutput(cfg.Output),
		tea.WithAltScreen(),
	)
	return &TUIRenderer{
		cfg:     cfg,
		program: program,
		done:    make(chan struct{}),
	}, nil
}

// Start launches the bubbletea event loop in a goroutine.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	go func() {
		_, err := r.program.Run()
		r.mu.Lock()
		r.runErr = err
		r.mu.Unlock()
		close(r.done)
	}()
	return nil
}

// UpdateProgress forwards the event to the running program.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.program.Send(progressUpdateMsg(event))
}

// AddError forwards the problem to the running program.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	if event.IsWarn {
		r.warnings++
	} else {
		r.errors++
	}
	r.mu.Unlock()
	r.program.Send(errorMsg(event))
}

// Complete records the summary and tells the program to finish.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	r.stats = stats
	r.complete = true
	r.mu.Unlock()
	r.program.Send(completeMsg(stats))
}

// Stop shuts the program down and prints the final summary.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(stopTimeout):
		r.program.Kill()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		styles := GetStyles(r.cfg.NoColor)
		fmt.Fprintln(r.cfg.Output, renderSummary(styles, r.stats, r.errors, r.warnings))
	}
	return r.runErr
}

var _ Renderer = (*TUIRenderer)(nil)

type (
	progressUpdateMsg ProgressEvent
	errorMsg          ErrorEvent
	completeMsg       CompletionStats
	tickMsg           time.Time
)

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// pipelineStages is the display order of the stage strip.
var pipelineStages = []Stage{StageScanning, StagePlanning, StageEmbedding, StageCommitting}

type indexingModel struct {
	tracker    *ProgressTracker
	spinner    spinner.Model
	bar        progress.Model
	styles     Styles
	projectDir string
	width      int
	completed  bool
	stats      CompletionStats
	quitting   bool
}

func newIndexingModel(cfg Config) indexingModel {
	styles := GetStyles(cfg.NoColor)
	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(styles.StageRun),
	)
	bar := progress.New(
		progress.WithSolidFill("#875FFF"),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)
	return indexingModel{
		tracker:    NewProgressTracker(),
		spinner:    sp,
		bar:        bar,
		styles:     styles,
		projectDir: cfg.ProjectDir,
	}
}

func (m indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		barWidth := msg.Width - 20
		if barWidth > 60 {
			barWidth = 60
		}
		if barWidth >= 10 {
			m.bar.Width = barWidth
		}
		return m, nil

	case tickMsg:
		if m.completed || m.quitting {
			return m, nil
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressUpdateMsg:
		m.tracker.Update(ProgressEvent(msg))
		return m, nil

	case errorMsg:
		m.tracker.AddError(ErrorEvent(msg))
		return m, nil

	case completeMsg:
		m.completed = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	}
	return m, nil
}

func (m indexingModel) View() string {
	if m.quitting || m.completed {
		return ""
	}

	snap := m.tracker.Snapshot()
	var b strings.Builder

	title := m.styles.Title.Render("weft")
	if m.projectDir != "" {
		title += m.styles.Subtitle.Render(" · indexing " + m.projectDir)
	}
	b.WriteString(title + "\n\n")

	b.WriteString(m.renderStageStrip(snap.Stage) + "\n\n")

	if snap.Total > 0 {
		b.WriteString(m.bar.ViewAs(snap.Percent))
		b.WriteString(m.styles.Subtitle.Render(fmt.Sprintf("  %d/%d files", snap.Current, snap.Total)))
		b.WriteString("\n")
	}
	if snap.CurrentFile != "" {
		b.WriteString(m.styles.File.Render(truncatePath(snap.CurrentFile, 60)) + "\n")
	}
	b.WriteString("\n")

	status := fmt.Sprintf("elapsed %s", formatDuration(snap.Elapsed))
	if snap.ETA > 0 {
		status += fmt.Sprintf(" · eta %s", formatDuration(snap.ETA))
	}
	if snap.FilesPerSec > 0.01 {
		status += fmt.Sprintf(" · %.1f files/s", snap.FilesPerSec)
	}
	b.WriteString(m.styles.Subtitle.Render(status) + "\n")

	if len(snap.Errors) > 0 || len(snap.Warnings) > 0 {
		counts := fmt.Sprintf("%d errors · %d warnings", len(snap.Errors), len(snap.Warnings))
		style := m.styles.Warning
		if len(snap.Errors) > 0 {
			style = m.styles.Error
		}
		b.WriteString(style.Render(counts) + "\n")
		for _, e := range tailErrors(snap.Errors, 3) {
			b.WriteString(m.styles.Muted.Render(truncatePath(e.File, 40)+": "+e.Err.Error()) + "\n")
		}
	}

	b.WriteString("\n" + m.styles.Muted.Render("q quit"))
	return m.styles.Border.Render(b.String())
}

// renderStageStrip draws the pipeline as "● Scanning → ◌ Planning → ...".
func (m indexingModel) renderStageStrip(current Stage) string {
	parts := make([]string, 0, len(pipelineStages))
	for _, st := range pipelineStages {
		var s string
		switch {
		case current == StageDone || st < current:
			s = m.styles.StageDone.Render("● " + st.String())
		case st == current:
			s = m.styles.StageRun.Render(m.spinner.View() + st.String())
		default:
			s = m.styles.StageWait.Render("○ " + st.String())
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, m.styles.Muted.Render(" → "))
}

// renderSummary builds the post-run panel shared by the TUI teardown
// path and tests.
func renderSummary(styles Styles, stats CompletionStats, errors, warnings int) string {
	var b strings.Builder

	if stats.FilesFailed > 0 || errors > 0 {
		b.WriteString(styles.Warning.Render("Indexing finished with failures") + "\n")
	} else {
		b.WriteString(styles.Success.Render("Indexing complete") + "\n")
	}

	row := func(label string, value string) {
		b.WriteString(styles.StatLabel.Render(fmt.Sprintf("  %-10s", label)))
		b.WriteString(styles.Stat.Render(value) + "\n")
	}
	row("indexed", fmt.Sprintf("%d files", stats.FilesIndexed))
	row("removed", fmt.Sprintf("%d files", stats.FilesRemoved))
	row("unchanged", fmt.Sprintf("%d files", stats.FilesUnchanged))
	if stats.FilesFailed > 0 {
		row("failed", fmt.Sprintf("%d files", stats.FilesFailed))
	}
	row("chunks", fmt.Sprintf("%d", stats.Chunks))
	row("duration", formatDuration(stats.Duration))
	if stats.Embedder.Model != "" {
		row("embedder", fmt.Sprintf("%s/%s (%d dims)", stats.Embedder.Provider, stats.Embedder.Model, stats.Embedder.Dimensions))
	}
	if stats.Stages.Execute > 0 {
		row("stages", fmt.Sprintf("scan %s · plan %s · index %s · commit %s",
			formatDuration(stats.Stages.Scan),
			formatDuration(stats.Stages.Plan),
			formatDuration(stats.Stages.Execute),
			formatDuration(stats.Stages.Finalize)))
	}
	if errors > 0 || warnings > 0 {
		b.WriteString(styles.Warning.Render(fmt.Sprintf("  %d errors · %d warnings (see log file)", errors, warnings)) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncatePath shortens a path to max runes, keeping the tail.
func truncatePath(path string, max int) string {
	runes := []rune(path)
	if len(runes) <= max {
		return path
	}
	return "…" + string(runes[len(runes)-max+1:])
}

// tailErrors returns up to n of the most recent events.
func tailErrors(events []ErrorEvent, n int) []ErrorEvent {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}
