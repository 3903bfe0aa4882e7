package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// debouncer coalesces rapid notifications into one batch per quiet
// window. Events for the same path merge pairwise:
//
//	create + modify = create  (still a new file)
//	create + remove = nothing (an editor temp file, never really there)
//	modify + remove = remove
//	remove + create = modify  (the file was replaced)
//
// The merge looks at the first operation seen for the path, so a
// create followed by any number of modifies and a final remove still
// cancels out.
type debouncer struct {
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	stopped bool

	out chan []Event
}

type pendingEvent struct {
	event   Event
	firstOp Op
}

func newDebouncer(window time.Duration, logger *slog.Logger) *debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &debouncer{
		window:  window,
		logger:  logger,
		pending: make(map[string]*pendingEvent),
		out:     make(chan []Event, 10),
	}
}

// add records an event and restarts the quiet window.
func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[ev.Path]; ok {
		merged, keep := coalesce(existing.firstOp, existing.event, ev)
		if keep {
			existing.event = merged
		} else {
			delete(d.pending, ev.Path)
		}
	} else {
		d.pending[ev.Path] = &pendingEvent{event: ev, firstOp: ev.Op}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new event into the pending one for the same path.
// keep is false when the pair cancels out.
func coalesce(firstOp Op, current, next Event) (merged Event, keep bool) {
	switch firstOp {
	case OpCreate:
		switch next.Op {
		case OpModify:
			return current, true
		case OpRemove:
			return Event{}, false
		default:
			return next, true
		}
	case OpRemove:
		if next.Op == OpCreate {
			next.Op = OpModify
			return next, true
		}
		return next, true
	default:
		return next, true
	}
}

// flush emits everything pending as one batch, sorted by path.
func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Event, 0, len(d.pending))
	for _, pe := range d.pending {
		batch = append(batch, pe.event)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.out <- batch:
	default:
		d.logger.Warn("debounce_output_full",
			slog.Int("batch_size", len(batch)))
	}
}

// output is the channel of debounced batches.
func (d *debouncer) output() <-chan []Event {
	return d.out
}

// stop discards pending events and closes the output channel. Safe to
// call more than once.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
