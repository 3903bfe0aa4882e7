package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	weftErrors "github.com/weftlabs/weft/internal/errors"
	"github.com/weftlabs/weft/internal/gitignore"
)

// dataDirName and configFileName are matched by name so the watcher
// stays decoupled from the config package. The data directory is never
// watched; the config file gets its own operation.
const (
	dataDirName    = ".weft"
	configFileName = ".weft.yaml"
)

// baseIgnorePatterns are filtered regardless of the tree's .gitignore
// files. The .git and data directories are handled by prefix checks
// before the matcher runs.
var baseIgnorePatterns = []string{
	"node_modules/",
}

// Watcher emits debounced batches of file events for one project tree.
// A Watcher is single-use: Start watches until the context is canceled
// or Stop is called, and a stopped Watcher cannot be restarted.
type Watcher struct {
	fsw     *fsnotify.Watcher
	deb     *debouncer
	batches chan []Event
	errs    chan error
	stopCh  chan struct{}
	extra   []string
	logger  *slog.Logger

	root string

	mu      sync.RWMutex
	ignore  *gitignore.Matcher
	stopped bool

	dropped atomic.Uint64
}

// New builds a Watcher. The underlying filesystem notification handle
// is created here so resource exhaustion surfaces before watch mode
// reports itself started.
func New(opts Options) (*Watcher, error) {
	opts = opts.withDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, weftErrors.InternalError("creating filesystem watcher", err)
	}

	return &Watcher{
		fsw:     fsw,
		deb:     newDebouncer(opts.Debounce, opts.Logger),
		batches: make(chan []Event, opts.BatchBuffer),
		errs:    make(chan error, 10),
		stopCh:  make(chan struct{}),
		extra:   opts.IgnorePatterns,
		logger:  opts.Logger,
		ignore:  gitignore.New(),
	}, nil
}

// Start watches root until the context is canceled or Stop is called.
// It blocks; run it in its own goroutine and consume Batches.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return weftErrors.ValidationError(
			fmt.Sprintf("cannot resolve watch root %s", root), err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return weftErrors.ValidationError(
			fmt.Sprintf("watch root %s is not a directory", abs), err)
	}
	w.root = abs

	w.reloadIgnoreRules()

	go w.forward(ctx)

	if err := w.addRecursive(abs); err != nil {
		_ = w.Stop()
		return weftErrors.InternalError("watching project tree", err).
			WithDetail("root", abs).
			WithSuggestion("on Linux, a full watch table means fs.inotify.max_user_watches needs raising")
	}

	w.logger.Info("watch_started",
		slog.String("root", abs),
		slog.Duration("debounce", w.deb.window))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleEvent filters and classifies one raw notification.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// Stat fails for removed paths; those are files as far as the
	// batch is concerned.
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.shouldIgnore(rel, isDir) {
		return
	}

	switch filepath.Base(ev.Name) {
	case ".gitignore":
		// Reload before emitting, so events arriving after this one
		// are already filtered by the new rules.
		w.reloadIgnoreRules()
		w.deb.add(Event{Path: rel, Op: OpIgnoreChange, At: time.Now()})
		return
	case configFileName:
		w.deb.add(Event{Path: rel, Op: OpConfigChange, At: time.Now()})
		return
	}

	var op Op
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			// A moved-in directory arrives as a single create; its
			// contents never notify on their own. Walk it so nested
			// directories are watched from here on.
			if err := w.addRecursive(ev.Name); err != nil {
				w.emitError(err)
			}
		}
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A rename notifies on the old name only; the new name shows
		// up as a separate create. Treating it as a removal keeps the
		// pair symmetric.
		op = OpRemove
	default:
		// Chmod and anything unrecognized.
		return
	}

	w.deb.add(Event{Path: rel, Op: op, IsDir: isDir, At: time.Now()})
}

// forward moves debounced batches onto the public channel.
func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.deb.output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			w.emitBatch(batch)
		}
	}
}

// addRecursive watches every non-ignored directory under dir.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(w.root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return w.fsw.Add(path)
		}
		if w.shouldIgnore(rel, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// shouldIgnore reports whether events for rel are filtered out. rel is
// slash-separated and relative to the root.
func (w *Watcher) shouldIgnore(rel string, isDir bool) bool {
	if rel == "." || rel == "" {
		return true
	}
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	// Prefix alone would also swallow the config file, which sorts
	// right next to the data directory.
	if rel == dataDirName || strings.HasPrefix(rel, dataDirName+"/") {
		return true
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ignore.Match(rel, isDir)
}

// reloadIgnoreRules rebuilds the filter from the base patterns, the
// configured extras, and every .gitignore in the tree. The new matcher
// is built off-lock and swapped in at the end.
func (w *Watcher) reloadIgnoreRules() {
	m := gitignore.New()
	for _, p := range baseIgnorePatterns {
		m.AddPattern(p)
	}
	for _, p := range w.extra {
		m.AddPattern(p)
	}

	rootIgnore := filepath.Join(w.root, ".gitignore")
	if err := m.AddFromFile(rootIgnore, ""); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("gitignore_unreadable",
			slog.String("path", rootIgnore),
			slog.String("error", err.Error()))
	}

	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", dataDirName, "node_modules":
				if path != w.root {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if d.Name() != ".gitignore" || path == rootIgnore {
			return nil
		}
		base, rerr := filepath.Rel(w.root, filepath.Dir(path))
		if rerr != nil {
			return nil
		}
		if err := m.AddFromFile(path, filepath.ToSlash(base)); err != nil {
			w.logger.Warn("gitignore_unreadable",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})

	w.mu.Lock()
	w.ignore = m
	w.mu.Unlock()

	w.logger.Debug("ignore_rules_reloaded", slog.Int("patterns", m.Len()))
}

// emitBatch hands a batch to the consumer without blocking the event
// loop. The read lock is held across the send so Stop cannot close the
// channel mid-emit.
func (w *Watcher) emitBatch(batch []Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.batches <- batch:
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("watch_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("dropped_total", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.errs <- err:
	default:
	}
}

// Batches is the channel of debounced event batches. It is closed by
// Stop.
func (w *Watcher) Batches() <-chan []Event {
	return w.batches
}

// Errors is the channel of watch errors. Errors here are advisory;
// the watcher keeps running.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// DroppedBatches is how many batches were discarded because the
// consumer fell behind.
func (w *Watcher) DroppedBatches() uint64 {
	return w.dropped.Load()
}

// Stop ends the watch and closes both channels. Safe to call more than
// once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true

	close(w.stopCh)
	w.deb.stop()
	err := w.fsw.Close()
	close(w.batches)
	close(w.errs)

	if err != nil {
		return weftErrors.InternalError("closing filesystem watcher", err)
	}
	w.logger.Debug("watch_stopped", slog.Uint64("dropped_batches", w.dropped.Load()))
	return nil
}
