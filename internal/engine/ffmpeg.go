package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

const (
	namespaceDirName = "engine"
	lockFileName     = ".engine.lock"
)

// FFmpegEngine implements Engine using the ffmpeg CLI.
// Its working namespace is a directory under baseDir that is locked for the
// lifetime of the process, so two processes sharing a temp dir never see each
// other's entries.
type FFmpegEngine struct {
	ffmpegPath string
	baseDir    string

	mu     sync.Mutex
	binary string
	dir    string
	lock   *flock.Flock
}

// DefaultBaseDir is the parent of the namespace when none is configured.
func DefaultBaseDir() string {
	return filepath.Join(os.TempDir(), "audiosplit")
}

// NewFFmpegEngine creates a new FFmpegEngine.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
// If baseDir is empty, an audiosplit directory under os.TempDir() is used;
// Load clears the namespace inside it.
func NewFFmpegEngine(ffmpegPath, baseDir string) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}
	return &FFmpegEngine{ffmpegPath: ffmpegPath, baseDir: baseDir}
}

// Load resolves the ffmpeg binary, checks that it runs and prepares the working namespace.
func (e *FFmpegEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	binary, err := exec.LookPath(e.ffmpegPath)
	if err != nil {
		return fmt.Errorf("locate ffmpeg: %w", err)
	}

	// #nosec G204 - binary is resolved from configuration, not user input
	cmd := exec.CommandContext(ctx, binary, "-hide_banner", "-version")
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("run ffmpeg -version: %w: %s", err, strings.TrimSpace(string(out)))
	}

	dir := filepath.Join(e.baseDir, namespaceDirName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create working namespace: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock working namespace: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrNamespaceLocked, dir)
	}

	// Entries left behind by a previous process that died mid-job.
	if err := clearNamespace(dir); err != nil {
		_ = lock.Unlock()
		return fmt.Errorf("clear working namespace: %w", err)
	}

	e.binary = binary
	e.dir = dir
	e.lock = lock
	return nil
}

// WriteFile stores data in the working namespace.
func (e *FFmpegEngine) WriteFile(ctx context.Context, name string, data []byte) error {
	path, err := e.entryPath(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

// Run executes ffmpeg inside the working namespace, so relative names in args
// resolve to namespace entries. Existing outputs are overwritten.
func (e *FFmpegEngine) Run(ctx context.Context, args ...string) error {
	e.mu.Lock()
	binary, dir := e.binary, e.dir
	e.mu.Unlock()
	if dir == "" {
		return ErrNotLoaded
	}

	fullArgs := append([]string{"-hide_banner", "-nostdin", "-y"}, args...)

	// #nosec G204 - binary is resolved from configuration, not user input
	cmd := exec.CommandContext(ctx, binary, fullArgs...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   fullArgs,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// ReadFile returns the content of a namespace entry.
func (e *FFmpegEngine) ReadFile(_ context.Context, name string) ([]byte, error) {
	path, err := e.entryPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 - path is confined to the namespace
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
		}
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	return data, nil
}

// Remove deletes a namespace entry. Missing entries are ignored.
func (e *FFmpegEngine) Remove(_ context.Context, name string) error {
	path, err := e.entryPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove entry %s: %w", name, err)
	}
	return nil
}

// Entries lists the names currently held in the working namespace.
func (e *FFmpegEngine) Entries() ([]string, error) {
	e.mu.Lock()
	dir := e.dir
	e.mu.Unlock()
	if dir == "" {
		return nil, ErrNotLoaded
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list working namespace: %w", err)
	}
	var names []string
	for _, item := range items {
		if item.Name() == lockFileName {
			continue
		}
		names = append(names, item.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Dir returns the working namespace directory, or "" before Load.
func (e *FFmpegEngine) Dir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// Close removes the working namespace and releases its lock.
func (e *FFmpegEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lock == nil {
		return nil
	}
	clearErr := clearNamespace(e.dir)
	unlockErr := e.lock.Unlock()
	e.lock = nil
	e.dir = ""
	return errors.Join(clearErr, unlockErr)
}

func (e *FFmpegEngine) entryPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name == lockFileName ||
		name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
	}

	e.mu.Lock()
	dir := e.dir
	e.mu.Unlock()
	if dir == "" {
		return "", ErrNotLoaded
	}
	return filepath.Join(dir, name), nil
}

// clearNamespace removes every entry in dir except the lock file.
func clearNamespace(dir string) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, item := range items {
		if item.Name() == lockFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, item.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Verify interface implementation at compile time.
var _ Engine = (*FFmpegEngine)(nil)
