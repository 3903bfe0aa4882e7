package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

// Handle presents one logical vector store over an ordered list of
// backends. Operations try the primary first and fail over down the
// list; a backend that keeps failing trips its circuit breaker and is
// held out of rotation for a cool-down window. An operation fails only
// when every configured backend is exhausted.
//
// Callers must treat a write as committed only when Upsert returns a
// count without error; the manifest is updated strictly after that
// confirmation.
type Handle struct {
	backends []Backend
	breakers map[string]*weftErrors.CircuitBreaker
	logger   *slog.Logger

	mu    sync.Mutex
	dirty map[string]bool
}

// NewHandle wires backends in priority order, primary first. maxFailures
// and cooldown parameterize each backend's circuit breaker; zero values
// keep the breaker defaults.
func NewHandle(backends []Backend, maxFailures int, cooldown time.Duration, logger *slog.Logger) (*Handle, error) {
	if len(backends) == 0 {
		return nil, weftErrors.ConfigError("no vector store backends configured", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []weftErrors.CircuitBreakerOption
	if maxFailures > 0 {
		opts = append(opts, weftErrors.WithMaxFailures(maxFailures))
	}
	if cooldown > 0 {
		opts = append(opts, weftErrors.WithResetTimeout(cooldown))
	}

	breakers := make(map[string]*weftErrors.CircuitBreaker, len(backends))
	for _, b := range backends {
		if _, dup := breakers[b.Name()]; dup {
			return nil, weftErrors.ConfigError(fmt.Sprintf("duplicate vector store backend %q", b.Name()), nil)
		}
		breakers[b.Name()] = weftErrors.NewCircuitBreaker(b.Name(), opts...)
	}

	return &Handle{
		backends: backends,
		breakers: breakers,
		logger:   logger,
		dirty:    make(map[string]bool, len(backends)),
	}, nil
}

// Backends returns the wired backends in priority order.
func (h *Handle) Backends() []Backend {
	out := make([]Backend, len(h.backends))
	copy(out, h.backends)
	return out
}

// PrimaryName returns the name of the highest-priority backend.
func (h *Handle) PrimaryName() string {
	return h.backends[0].Name()
}

// failoverable reports whether trying another backend could help.
// Dimension mismatches and other validation errors would fail the same
// way everywhere, so they surface to the caller immediately.
func failoverable(err error) bool {
	var dim ErrDimensionMismatch
	if errors.As(err, &dim) {
		return false
	}
	return weftErrors.IsRetryable(err)
}

// Upsert writes the chunks through the first serving backend and
// returns its committed count. An error means nothing was committed
// anywhere.
func (h *Handle) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	var lastErr error
	skipped := 0
	for _, backend := range h.backends {
		name := backend.Name()
		cb := h.breakers[name]
		if !cb.Allow() {
			h.logger.Debug("backend_skipped_cooldown", slog.String("backend", name), slog.String("op", "upsert"))
			skipped++
			continue
		}

		n, err := backend.Upsert(ctx, chunks)
		if err == nil {
			cb.RecordSuccess()
			h.markDirty(name)
			return n, nil
		}
		if ctx.Err() != nil {
			// Cancellation is not a backend fault; do not fail over or
			// penalize the breaker.
			return 0, err
		}
		if !failoverable(err) {
			return 0, err
		}

		cb.RecordFailure()
		lastErr = err
		h.logger.Warn("backend_failed_over",
			slog.String("backend", name),
			slog.String("op", "upsert"),
			slog.String("error", err.Error()))
	}

	return 0, h.exhausted("upsert", skipped, lastErr)
}

// Delete removes the chunk IDs through the first serving backend, in
// the same failover order as Upsert. Deleting absent IDs is not an
// error.
func (h *Handle) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var lastErr error
	skipped := 0
	for _, backend := range h.backends {
		name := backend.Name()
		cb := h.breakers[name]
		if !cb.Allow() {
			h.logger.Debug("backend_skipped_cooldown", slog.String("backend", name), slog.String("op", "delete"))
			skipped++
			continue
		}

		err := backend.Delete(ctx, ids)
		if err == nil {
			cb.RecordSuccess()
			h.markDirty(name)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !failoverable(err) {
			return err
		}

		cb.RecordFailure()
		lastErr = err
		h.logger.Warn("backend_failed_over",
			slog.String("backend", name),
			slog.String("op", "delete"),
			slog.String("error", err.Error()))
	}

	return h.exhausted("delete", skipped, lastErr)
}

// Search queries the first serving backend.
func (h *Handle) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	var lastErr error
	skipped := 0
	for _, backend := range h.backends {
		name := backend.Name()
		cb := h.breakers[name]
		if !cb.Allow() {
			skipped++
			continue
		}

		results, err := backend.Search(ctx, query, k)
		if err == nil {
			cb.RecordSuccess()
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !failoverable(err) {
			return nil, err
		}

		cb.RecordFailure()
		lastErr = err
		h.logger.Warn("backend_failed_over",
			slog.String("backend", name),
			slog.String("op", "search"),
			slog.String("error", err.Error()))
	}

	return nil, h.exhausted("search", skipped, lastErr)
}

// AllIDs lists every chunk ID from the first serving backend.
func (h *Handle) AllIDs(ctx context.Context) ([]string, error) {
	var lastErr error
	skipped := 0
	for _, backend := range h.backends {
		cb := h.breakers[backend.Name()]
		if !cb.Allow() {
			skipped++
			continue
		}

		ids, err := backend.AllIDs(ctx)
		if err == nil {
			cb.RecordSuccess()
			return ids, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !failoverable(err) {
			return nil, err
		}

		cb.RecordFailure()
		lastErr = err
	}

	return nil, h.exhausted("list", skipped, lastErr)
}

// Count returns the vector count from the first serving backend.
func (h *Handle) Count(ctx context.Context) (int, error) {
	var lastErr error
	skipped := 0
	for _, backend := range h.backends {
		cb := h.breakers[backend.Name()]
		if !cb.Allow() {
			skipped++
			continue
		}

		n, err := backend.Count(ctx)
		if err == nil {
			cb.RecordSuccess()
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, err
		}
		if !failoverable(err) {
			return 0, err
		}

		cb.RecordFailure()
		lastErr = err
	}

	return 0, h.exhausted("count", skipped, lastErr)
}

// HealthCheck probes every backend and returns one normalized status
// per backend, in priority order. A backend held out by its breaker
// reports unavailable with the remaining cool-down instead of being
// probed; a probe reporting unavailable counts toward opening the
// breaker, so persistently down backends get skipped by subsequent
// operations.
func (h *Handle) HealthCheck(ctx context.Context) []BackendHealth {
	out := make([]BackendHealth, 0, len(h.backends))
	for _, backend := range h.backends {
		name := backend.Name()
		cb := h.breakers[name]

		if !cb.Allow() {
			out = append(out, BackendHealth{
				Backend: name,
				Status:  StatusUnavailable,
				Message: fmt.Sprintf("cooling down for %s after repeated failures", cb.Cooldown().Round(time.Second)),
			})
			continue
		}

		health := backend.Health(ctx)
		if health.Status == StatusUnavailable {
			cb.RecordFailure()
		} else {
			cb.RecordSuccess()
		}
		out = append(out, health)
	}
	return out
}

// AnyServing reports whether at least one backend is currently
// accepting operations.
func (h *Handle) AnyServing(ctx context.Context) bool {
	for _, health := range h.HealthCheck(ctx) {
		if health.Status != StatusUnavailable {
			return true
		}
	}
	return false
}

// Load restores every backend's persisted state. Backends store derived
// data, so a backend that cannot load starts empty with a breaker
// penalty; Load fails only when no backend loaded at all.
func (h *Handle) Load() error {
	var lastErr error
	loaded := 0
	for _, backend := range h.backends {
		if err := backend.Load(); err != nil {
			h.breakers[backend.Name()].RecordFailure()
			lastErr = err
			h.logger.Warn("backend_load_failed",
				slog.String("backend", backend.Name()),
				slog.String("error", err.Error()))
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return weftErrors.New(weftErrors.ErrCodeBackendsExhausted, "no vector store backend could load its index", lastErr)
	}
	return nil
}

// Flush persists every backend that has taken writes since its last
// save. The orchestrator calls this after a batch's writes are
// confirmed and before the manifest records them, so a crash never
// leaves the manifest ahead of the stored data.
func (h *Handle) Flush() error {
	for _, backend := range h.backends {
		name := backend.Name()
		if !h.isDirty(name) {
			continue
		}
		if err := backend.Save(); err != nil {
			return weftErrors.StorageError(fmt.Sprintf("failed to persist %s index", name), err)
		}
		h.clearDirty(name)
	}
	return nil
}

// Close flushes and closes all backends, returning the first error.
func (h *Handle) Close() error {
	var firstErr error
	if err := h.Flush(); err != nil {
		firstErr = err
	}
	for _, backend := range h.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handle) exhausted(op string, skipped int, lastErr error) error {
	msg := fmt.Sprintf("all %d vector store backends exhausted during %s", len(h.backends), op)
	if skipped > 0 {
		msg = fmt.Sprintf("%s (%d cooling down)", msg, skipped)
	}
	return weftErrors.New(weftErrors.ErrCodeBackendsExhausted, msg, lastErr).
		WithSuggestion("check backend health with 'weft status' and retry")
}

func (h *Handle) markDirty(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirty[name] = true
}

func (h *Handle) isDirty(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty[name]
}

func (h *Handle) clearDirty(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.dirty, name)
}
