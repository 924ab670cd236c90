// Package engine owns the transcoding engine used to cut audio files.
// It defines the Engine interface (port) for a command-style transcoder with
// a private working namespace, and the Handle that lazily loads the single
// engine instance shared by every split job in the process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Static errors for engine operations.
var (
	// ErrLoadFailed is returned when the engine could not be initialized.
	ErrLoadFailed = errors.New("engine: load failed")
	// ErrNotLoaded is returned when the engine is used before EnsureLoaded succeeded.
	ErrNotLoaded = errors.New("engine: not loaded")
	// ErrInvalidEntryName is returned for namespace names that are not plain file names.
	ErrInvalidEntryName = errors.New("engine: invalid namespace entry name")
	// ErrEntryNotFound is returned when reading a namespace entry that does not exist.
	ErrEntryNotFound = errors.New("engine: namespace entry not found")
	// ErrNamespaceLocked is returned when another process holds the working namespace.
	ErrNamespaceLocked = errors.New("engine: working namespace is locked by another process")
)

// Engine defines a command-style transcoder.
// Inputs and outputs are exchanged through the engine's working namespace:
// callers write entries, run commands that reference entries by name, read
// the results back and remove what they created.
type Engine interface {
	// Load prepares the engine for use. It is called at most once per
	// successful initialization by Handle.
	Load(ctx context.Context) error

	// WriteFile stores data in the working namespace under name.
	WriteFile(ctx context.Context, name string, data []byte) error

	// Run executes one engine command. Arguments reference namespace entries by name.
	Run(ctx context.Context, args ...string) error

	// ReadFile returns the content of a namespace entry.
	// Returns ErrEntryNotFound if the entry does not exist.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// Remove deletes a namespace entry. Removing a missing entry is not an error.
	Remove(ctx context.Context, name string) error
}

// Handle owns the process-wide engine instance and loads it on first use.
type Handle struct {
	mu       sync.Mutex
	engine   Engine
	loaded   bool
	attempts int
	logger   *slog.Logger
}

// NewHandle creates a Handle around an engine that has not been loaded yet.
func NewHandle(e Engine, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{engine: e, logger: logger}
}

// EnsureLoaded loads the engine if it is not loaded yet and returns immediately otherwise.
// A failed load leaves the handle unloaded so a later call retries.
func (h *Handle) EnsureLoaded(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loaded {
		return nil
	}

	h.attempts++
	start := time.Now()
	if err := h.engine.Load(ctx); err != nil {
		h.logger.Warn("engine load failed",
			slog.Int("attempt", h.attempts),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	h.loaded = true
	h.logger.Info("engine loaded",
		slog.Int("attempt", h.attempts),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Loaded reports whether the engine has been initialized.
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// Engine returns the loaded engine.
// Returns ErrNotLoaded if EnsureLoaded has not succeeded yet.
func (h *Handle) Engine() (Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loaded {
		return nil, ErrNotLoaded
	}
	return h.engine, nil
}

// Close releases the engine when the process shuts down.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		return nil
	}
	h.loaded = false
	if c, ok := h.engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
