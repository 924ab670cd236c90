package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

func loadTestEngine(t *testing.T) *FFmpegEngine {
	t.Helper()
	checkFFmpeg(t)

	e := NewFFmpegEngine("", t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, e.Load(ctx))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewFFmpegEngine_Defaults(t *testing.T) {
	e := NewFFmpegEngine("", "")
	assert.Equal(t, "ffmpeg", e.ffmpegPath)
	assert.Equal(t, filepath.Join(os.TempDir(), "audiosplit"), e.baseDir)
	assert.NotEqual(t, os.TempDir(), filepath.Dir(filepath.Join(e.baseDir, namespaceDirName)))
	assert.Empty(t, e.Dir())
}

func TestFFmpegEngine_Load_MissingBinary(t *testing.T) {
	e := NewFFmpegEngine("/nonexistent/ffmpeg-binary", t.TempDir())

	err := e.Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, e.Dir())
}

func TestFFmpegEngine_UseBeforeLoad(t *testing.T) {
	e := NewFFmpegEngine("", t.TempDir())
	ctx := context.Background()

	assert.ErrorIs(t, e.WriteFile(ctx, "in.m4a", []byte("x")), ErrNotLoaded)
	assert.ErrorIs(t, e.Run(ctx, "-version"), ErrNotLoaded)
	_, err := e.ReadFile(ctx, "in.m4a")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = e.Entries()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestFFmpegEngine_EntryNames(t *testing.T) {
	e := loadTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"", ".", "..", "../escape.m4a", "dir/file.m4a", lockFileName} {
		t.Run(name, func(t *testing.T) {
			err := e.WriteFile(ctx, name, []byte("data"))
			assert.ErrorIs(t, err, ErrInvalidEntryName)
		})
	}
}

func TestFFmpegEngine_NamespaceRoundTrip(t *testing.T) {
	e := loadTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.WriteFile(ctx, "song.m4a", []byte("audio bytes")))

	entries, err := e.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"song.m4a"}, entries)

	data, err := e.ReadFile(ctx, "song.m4a")
	require.NoError(t, err)
	assert.Equal(t, "audio bytes", string(data))

	require.NoError(t, e.Remove(ctx, "song.m4a"))
	// Removing twice is not an error
	require.NoError(t, e.Remove(ctx, "song.m4a"))

	_, err = e.ReadFile(ctx, "song.m4a")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	entries, err = e.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFFmpegEngine_Load_ClearsStaleEntries(t *testing.T) {
	checkFFmpeg(t)
	baseDir := t.TempDir()

	staleDir := filepath.Join(baseDir, namespaceDirName)
	require.NoError(t, os.MkdirAll(staleDir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(staleDir, "output1.m4a"), []byte("stale"), 0600))

	e := NewFFmpegEngine("", baseDir)
	require.NoError(t, e.Load(context.Background()))
	defer func() { _ = e.Close() }()

	entries, err := e.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFFmpegEngine_Load_NamespaceLocked(t *testing.T) {
	checkFFmpeg(t)
	baseDir := t.TempDir()
	ctx := context.Background()

	first := NewFFmpegEngine("", baseDir)
	require.NoError(t, first.Load(ctx))

	second := NewFFmpegEngine("", baseDir)
	err := second.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNamespaceLocked)

	require.NoError(t, first.Close())
	require.NoError(t, second.Load(ctx))
	require.NoError(t, second.Close())
}

func TestFFmpegEngine_Run_Error(t *testing.T) {
	e := loadTestEngine(t)

	err := e.Run(context.Background(), "-i", "missing.m4a", "-c", "copy", "out.m4a")
	require.Error(t, err)

	var ffErr *FFmpegError
	require.True(t, errors.As(err, &ffErr))
	assert.Contains(t, ffErr.Args, "missing.m4a")
	assert.NotEmpty(t, ffErr.Stderr)
}

func TestFFmpegEngine_Run_GeneratesIntoNamespace(t *testing.T) {
	e := loadTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := e.Run(ctx, "-f", "lavfi", "-i", "sine=frequency=440:duration=1", "-ar", "16000", "tone.wav")
	require.NoError(t, err)

	data, err := e.ReadFile(ctx, "tone.wav")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestFFmpegError(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &FFmpegError{Args: []string{"-i", "x"}, Stderr: "boom", Err: inner}

	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "exit status 1")
	assert.ErrorIs(t, err, inner)
}
