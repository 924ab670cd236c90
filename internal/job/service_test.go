package job

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/audiosplit-api/internal/artifact"
	"github.com/maauso/audiosplit-api/internal/audio"
	"github.com/maauso/audiosplit-api/internal/engine"
	"github.com/maauso/audiosplit-api/internal/media"
	"github.com/maauso/audiosplit-api/internal/status"
)

// fakeEngine is an in-memory engine.Engine. Run copies half of the input
// into the output entry, which is enough for the service to package parts.
type fakeEngine struct {
	mu       sync.Mutex
	loads    int
	loadErrs []error
	entries  map[string][]byte
	removed  []string
	// failFlag makes Run fail for commands containing this flag ("-t" or "-ss").
	failFlag string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{entries: map[string][]byte{}}
}

func (f *fakeEngine) Load(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if len(f.loadErrs) > 0 {
		err := f.loadErrs[0]
		f.loadErrs = f.loadErrs[1:]
		return err
	}
	return nil
}

func (f *fakeEngine) WriteFile(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[name] = data
	return nil
}

func (f *fakeEngine) Run(_ context.Context, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFlag != "" && slices.Contains(args, f.failFlag) {
		return errors.New("exit status 1")
	}
	in := f.entries[args[1]]
	half := len(in) / 2
	if slices.Contains(args, "-t") {
		f.entries[args[len(args)-1]] = in[:half]
	} else {
		f.entries[args[len(args)-1]] = in[half:]
	}
	return nil
}

func (f *fakeEngine) ReadFile(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.entries[name]
	if !ok {
		return nil, engine.ErrEntryNotFound
	}
	return data, nil
}

func (f *fakeEngine) Remove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	delete(f.entries, name)
	return nil
}

// fakeProber returns a fixed duration, or blocks until release is closed.
type fakeProber struct {
	mu       sync.Mutex
	calls    int
	duration float64
	err      error
	entered  chan struct{}
	release  chan struct{}
}

func (p *fakeProber) Probe(_ context.Context, _ []byte) (media.Metadata, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.release != nil {
		close(p.entered)
		<-p.release
	}
	if p.err != nil {
		return media.Metadata{}, p.err
	}
	return media.Metadata{DurationSeconds: p.duration, AudioCodec: "aac", AudioStreams: 1}, nil
}

func (p *fakeProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type testEnv struct {
	svc      *SplitService
	engine   *fakeEngine
	handle   *engine.Handle
	prober   *fakeProber
	registry *artifact.MemoryRegistry
	repo     *MemoryRepository
	bus      *EventBus
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		engine:   newFakeEngine(),
		prober:   &fakeProber{duration: 100},
		registry: artifact.NewMemoryRegistry(),
		repo:     NewMemoryRepository(0),
		bus:      NewEventBus(0),
	}
	env.handle = engine.NewHandle(env.engine, nil)
	opts = append([]Option{WithEventBus(env.bus)}, opts...)
	env.svc = NewSplitService(
		env.handle,
		env.prober,
		audio.NewFFmpegSplitter(nil),
		artifact.NewPackager(env.registry, nil),
		env.repo,
		nil,
		opts...,
	)
	return env
}

func m4a(data string) InputFile {
	return InputFile{Name: "voice.m4a", MediaType: "audio/mp4", Data: []byte(data)}
}

// statuses returns the status transitions published for jobID.
func (e *testEnv) statuses(jobID string) []Status {
	var out []Status
	for _, ev := range e.bus.Since(0) {
		if ev.JobID == jobID && ev.Type == EventTypeStatus {
			out = append(out, ev.Status)
		}
	}
	return out
}

func TestSplitService_Submit_Succeeds(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.Submit(context.Background(), m4a("0123456789"))
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, job.Status)
	assert.Equal(t, 100.0, job.DurationSeconds)
	assert.Equal(t, 50.0, job.SplitAt)
	assert.Equal(t, "The file was split successfully!", job.Message)
	assert.Empty(t, job.ErrorCode)

	require.Len(t, job.Artifacts, 2)
	assert.Equal(t, "part1.m4a", job.Artifacts[0].Name)
	assert.Equal(t, "part2.m4a", job.Artifacts[1].Name)
	assert.Equal(t, []byte("01234"), job.Artifacts[0].Data)
	assert.Equal(t, []byte("56789"), job.Artifacts[1].Data)
	assert.Equal(t, 2, env.registry.Len())

	assert.Equal(t,
		[]Status{StatusLoadingEngine, StatusProbing, StatusSplitting, StatusSucceeded},
		env.statuses(job.ID))

	// The working namespace holds nothing from this job.
	assert.Empty(t, env.engine.entries)
	assert.ElementsMatch(t, []string{"input.m4a", "output1.m4a", "output2.m4a"}, env.engine.removed)

	// Progress steps are published inside SPLITTING.
	var steps []string
	for _, ev := range env.bus.Since(0) {
		if ev.Type == EventTypeStep {
			steps = append(steps, ev.Step)
		}
	}
	assert.Equal(t, []string{"staging", "first_half", "second_half", "packaging"}, steps)
}

func TestSplitService_RejectsNonAudioBeforeEngine(t *testing.T) {
	for _, mediaType := range []string{"video/mp4", "application/octet-stream", "", "text/plain"} {
		t.Run(mediaType, func(t *testing.T) {
			env := newTestEnv(t)

			job, err := env.svc.Submit(context.Background(), InputFile{Name: "clip.mp4", MediaType: mediaType, Data: []byte("x")})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInputRejected))

			require.NotNil(t, job)
			assert.Equal(t, StatusFailed, job.Status)
			assert.Equal(t, CodeInputRejected, job.ErrorCode)
			assert.Equal(t, "This is not an audio file. Please choose an m4a file.", job.Message)

			assert.Zero(t, env.engine.loads, "engine must not be touched for rejected input")
			assert.False(t, env.handle.Loaded())
			assert.Zero(t, env.prober.Calls())
			assert.Equal(t, []Status{StatusFailed}, env.statuses(job.ID))
		})
	}
}

func TestSplitService_EngineLoadFails(t *testing.T) {
	env := newTestEnv(t)
	env.engine.loadErrs = []error{errors.New("ffmpeg not found")}

	job, err := env.svc.Submit(context.Background(), m4a("0123456789"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineInit))
	assert.True(t, errors.Is(err, engine.ErrLoadFailed))

	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, CodeEngineInit, job.ErrorCode)
	assert.Equal(t, "engine initialization failed", job.Error)
	assert.Equal(t, []Status{StatusLoadingEngine, StatusFailed}, env.statuses(job.ID))
	assert.Zero(t, env.prober.Calls())

	// A later job retries the load.
	require.NoError(t, env.svc.Reset(context.Background()))
	job, err = env.svc.Submit(context.Background(), m4a("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, job.Status)
	assert.Equal(t, 2, env.engine.loads)
}

func TestSplitService_EngineLoadedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.svc.Submit(ctx, m4a("abcdef"))
		require.NoError(t, err)
		require.NoError(t, env.svc.Reset(ctx))
	}
	assert.Equal(t, 1, env.engine.loads)
}

func TestSplitService_InvalidDuration(t *testing.T) {
	for _, d := range []float64{0, -3} {
		env := newTestEnv(t)
		env.prober.duration = d

		job, err := env.svc.Submit(context.Background(), m4a("0123456789"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDuration))
		assert.True(t, errors.Is(err, audio.ErrInvalidDuration))

		assert.Equal(t, StatusFailed, job.Status)
		assert.Equal(t, CodeInvalidDuration, job.ErrorCode)
		assert.Empty(t, job.Artifacts)
		assert.Zero(t, env.registry.Len())
		assert.Empty(t, env.engine.removed, "no namespace entries for an unsplittable file")
		assert.Equal(t, []Status{StatusLoadingEngine, StatusProbing, StatusFailed}, env.statuses(job.ID))
	}
}

func TestSplitService_DecodeError(t *testing.T) {
	env := newTestEnv(t)
	env.prober.err = media.ErrDecode

	job, err := env.svc.Submit(context.Background(), m4a("garbage"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Equal(t, CodeDecode, job.ErrorCode)
	assert.Equal(t, "Something went wrong. Please try the file again.", job.Message)
}

func TestSplitService_SecondExtractionFails(t *testing.T) {
	env := newTestEnv(t)
	env.engine.failFlag = "-ss"

	job, err := env.svc.Submit(context.Background(), m4a("0123456789"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.True(t, errors.Is(err, audio.ErrSecondExtraction))
	assert.False(t, errors.Is(err, audio.ErrFirstExtraction))

	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, CodeExecution, job.ErrorCode)
	assert.Empty(t, job.Artifacts)
	assert.Zero(t, env.registry.Len())

	// The first part was extracted and still cleaned up.
	assert.Contains(t, env.engine.removed, "output1.m4a")
	assert.Empty(t, env.engine.entries)
}

func TestSplitService_ResetRevokesArtifacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, m4a("0123456789"))
	require.NoError(t, err)
	h1, h2 := job.Artifacts[0].Handle, job.Artifacts[1].Handle

	_, err = env.registry.Open(ctx, h1)
	require.NoError(t, err)

	require.NoError(t, env.svc.Reset(ctx))

	_, err = env.registry.Open(ctx, h1)
	assert.ErrorIs(t, err, artifact.ErrArtifactNotFound)
	_, err = env.registry.Open(ctx, h2)
	assert.ErrorIs(t, err, artifact.ErrArtifactNotFound)

	assert.Equal(t, StatusIdle, env.svc.Current().Status)
	assert.Empty(t, env.svc.Current().ID)

	// History keeps the outcome without live handles.
	past, err := env.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, past.Status)
	assert.Empty(t, past.Artifacts)
	assert.False(t, past.ReleasedAt.IsZero())

	assert.Equal(t, StatusIdle, env.statuses(job.ID)[len(env.statuses(job.ID))-1])
}

func TestSplitService_ResetWhenIdle(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.svc.Reset(context.Background()))
}

func TestSplitService_RejectsWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	env.prober.entered = make(chan struct{})
	env.prober.release = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Submit(ctx, m4a("0123456789"))
		done <- err
	}()

	select {
	case <-env.prober.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("job never reached probing")
	}

	assert.Equal(t, StatusProbing, env.svc.Current().Status)

	_, err := env.svc.Submit(ctx, m4a("other"))
	assert.ErrorIs(t, err, ErrJobActive)
	assert.ErrorIs(t, env.svc.Reset(ctx), ErrJobActive)

	close(env.prober.release)
	require.NoError(t, <-done)
	assert.Equal(t, StatusSucceeded, env.svc.Current().Status)
}

func TestSplitService_RejectsUntilReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Submit(ctx, m4a("0123456789"))
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, m4a("again"))
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.Equal(t, first.ID, env.svc.Current().ID, "the finished job stays current")
	assert.Equal(t, 2, env.registry.Len())

	require.NoError(t, env.svc.Reset(ctx))
	_, err = env.svc.Submit(ctx, m4a("again"))
	assert.NoError(t, err)
}

func TestSplitService_EmptyInputFailsAndResets(t *testing.T) {
	for name, data := range map[string][]byte{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			job, err := env.svc.Submit(ctx, InputFile{Name: "voice.m4a", MediaType: "audio/mp4", Data: data})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
			require.NotNil(t, job)
			assert.Equal(t, StatusFailed, job.Status)
			assert.Equal(t, CodeDecode, job.ErrorCode)
			assert.Equal(t, StatusFailed, env.svc.Current().Status)
			assert.Zero(t, env.engine.loads)

			require.NoError(t, env.svc.Reset(ctx))
			assert.Equal(t, StatusIdle, env.svc.Current().Status)

			job, err = env.svc.Submit(ctx, m4a("0123456789"))
			require.NoError(t, err)
			assert.Equal(t, StatusSucceeded, job.Status)
		})
	}
}

func TestSplitService_DeleteJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	accepted, err := env.svc.Accept(ctx, m4a("0123456789"))
	require.NoError(t, err)
	assert.ErrorIs(t, env.svc.DeleteJob(ctx, accepted.ID), ErrJobActive)

	_, err = env.svc.Process(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, env.svc.DeleteJob(ctx, accepted.ID), ErrNotIdle)

	require.NoError(t, env.svc.Reset(ctx))
	require.NoError(t, env.svc.DeleteJob(ctx, accepted.ID))
	assert.ErrorIs(t, env.svc.DeleteJob(ctx, accepted.ID), ErrJobNotFound)

	_, err = env.svc.GetJob(ctx, accepted.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSplitService_ProcessWithoutAccept(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Process(context.Background())
	assert.ErrorIs(t, err, ErrNothingPending)
}

func TestSplitService_AcceptThenProcess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Accept(ctx, m4a("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, StatusLoadingEngine, job.Status)
	assert.Zero(t, env.engine.loads, "accept does no engine work")

	done, err := env.svc.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, done.ID)
	assert.Equal(t, StatusSucceeded, done.Status)

	// A second Process has nothing to run.
	_, err = env.svc.Process(ctx)
	assert.ErrorIs(t, err, ErrNothingPending)
}

func TestSplitService_PublishNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	in := m4a("0123456789")
	in.PushToS3 = true

	job, err := env.svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, artifact.ErrPublishUnavailable)
	assert.Nil(t, job)
	assert.Equal(t, StatusIdle, env.svc.Current().Status)
}

func TestSplitService_KoreanMessages(t *testing.T) {
	printer, err := status.NewPrinter("ko")
	require.NoError(t, err)
	env := newTestEnv(t, WithStatusPrinter(printer))

	job, err := env.svc.Submit(context.Background(), m4a("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "파일 분할이 완료되었습니다!", job.Message)
}

func TestSplitService_ListJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, m4a("0123456789"))
	require.NoError(t, err)
	require.NoError(t, env.svc.Reset(ctx))
	_, _ = env.svc.Submit(ctx, InputFile{Name: "x.txt", MediaType: "text/plain", Data: []byte("x")})

	jobs, err := env.svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	_, err = env.svc.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name      string
		mediaType string
		expected  string
	}{
		{"voice.m4a", "audio/mp4", "voice.m4a"},
		{"Voice.M4A", "audio/mp4", "Voice.m4a"},
		{"../../etc/passwd", "audio/mpeg", "passwd.mp3"},
		{`C:\music\song.flac`, "audio/flac", "song.flac"},
		{"", "audio/ogg", "input.ogg"},
		{"..", "audio/mp4", "input.m4a"},
		{"recording", "audio/x-unknown", "recording.m4a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.name, tt.mediaType))
		})
	}
}
