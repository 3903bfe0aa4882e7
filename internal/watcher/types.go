// Package watcher turns raw filesystem notifications into debounced
// batches of project events. Watch mode consumes one batch per quiet
// window and starts an incremental indexing run; the scanner re-walks
// the tree on every run, so a batch only has to say that something
// changed, not capture every intermediate state.
package watcher

import (
	"log/slog"
	"time"
)

// Op classifies what happened to a path.
type Op uint8

const (
	// OpCreate is a new file or directory.
	OpCreate Op = iota

	// OpModify is a content change to an existing file.
	OpModify

	// OpRemove is a deleted path. Renames fold into this: the old name
	// is removed and the new name arrives as its own OpCreate.
	OpRemove

	// OpIgnoreChange is an edit to a .gitignore anywhere in the tree.
	// The watcher reloads its own filter before emitting it; consumers
	// invalidate any ignore-rule caches of their own.
	OpIgnoreChange

	// OpConfigChange is an edit to the project configuration file.
	// Watch mode does not reload configuration; consumers warn that a
	// restart is needed.
	OpConfigChange
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpRemove:
		return "remove"
	case OpIgnoreChange:
		return "ignore_change"
	case OpConfigChange:
		return "config_change"
	default:
		return "unknown"
	}
}

// Event is one coalesced change inside the watched tree.
type Event struct {
	// Path is project-relative and slash-separated, the same form the
	// scanner and manifest use.
	Path string

	Op    Op
	IsDir bool

	// At is when the last raw notification for this path arrived.
	At time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet window: a batch is emitted once this much
	// time passes without further events. Zero means defaultDebounce.
	Debounce time.Duration

	// BatchBuffer is the capacity of the batch channel. Watch mode
	// drains slowly while an indexing run is in flight; buffered
	// batches absorb that. Zero means defaultBatchBuffer.
	BatchBuffer int

	// IgnorePatterns are extra gitignore-style patterns filtered out on
	// top of the built-in exclusions and the tree's own .gitignore
	// files.
	IgnorePatterns []string

	// Logger receives watch lifecycle records. Nil means slog.Default().
	Logger *slog.Logger
}

const (
	defaultDebounce    = 500 * time.Millisecond
	defaultBatchBuffer = 16
)

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = defaultDebounce
	}
	if o.BatchBuffer <= 0 {
		o.BatchBuffer = defaultBatchBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
