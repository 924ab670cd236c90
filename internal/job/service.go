package job

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/maauso/audiosplit-api/internal/artifact"
	"github.com/maauso/audiosplit-api/internal/audio"
	"github.com/maauso/audiosplit-api/internal/engine"
	"github.com/maauso/audiosplit-api/internal/media"
	"github.com/maauso/audiosplit-api/internal/status"
)

// EngineHandle is the lazily loaded transcoding engine shared by all jobs.
// *engine.Handle satisfies it.
type EngineHandle interface {
	EnsureLoaded(ctx context.Context) error
	Engine() (engine.Engine, error)
}

// Packager wraps split output as artifacts. *artifact.Packager satisfies it.
type Packager interface {
	Package(ctx context.Context, req artifact.Request) ([2]artifact.Artifact, error)
	Release(ctx context.Context, arts ...artifact.Artifact) error
	CanPublish() bool
}

// InputFile is one file submitted for splitting.
type InputFile struct {
	// Name is the display name, e.g. "voice.m4a".
	Name string
	// MediaType is the declared media type, e.g. "audio/mp4".
	MediaType string
	// Data is the raw file.
	Data []byte
	// PushToS3 publishes both parts to S3.
	PushToS3 bool
}

// SplitService runs split jobs one at a time.
//
// Dependencies:
//   - EngineHandle: the shared transcoding engine
//   - media.Prober: duration probing
//   - audio.Splitter: stream-copy extraction of both halves
//   - Packager: artifact handles and optional S3 publication
//   - Repository: job history
type SplitService struct {
	mu      sync.Mutex
	current *Job
	pending []byte
	// queued is set by Accept and cleared by Process or Reset.
	queued bool

	engine   EngineHandle
	prober   media.Prober
	splitter audio.Splitter
	packager Packager
	repo     Repository
	events   *EventBus
	printer  *status.Printer
	logger   *slog.Logger
}

// Option configures a SplitService.
type Option func(*SplitService)

// WithStatusPrinter sets the printer for status messages. Default: English.
func WithStatusPrinter(p *status.Printer) Option {
	return func(s *SplitService) {
		if p != nil {
			s.printer = p
		}
	}
}

// WithEventBus publishes job events to bus instead of a private one.
func WithEventBus(bus *EventBus) Option {
	return func(s *SplitService) {
		if bus != nil {
			s.events = bus
		}
	}
}

// NewSplitService creates a new SplitService in IDLE state.
func NewSplitService(
	eng EngineHandle,
	prober media.Prober,
	splitter audio.Splitter,
	packager Packager,
	repo Repository,
	logger *slog.Logger,
	opts ...Option,
) *SplitService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SplitService{
		engine:   eng,
		prober:   prober,
		splitter: splitter,
		packager: packager,
		repo:     repo,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = NewEventBus(0)
	}
	if s.printer == nil {
		// English is bundled, so this cannot fail.
		s.printer, _ = status.NewPrinter("en")
	}
	return s
}

// Submit accepts in and runs the job to SUCCEEDED or FAILED.
// The returned job reflects the terminal state; err carries the failure kind.
func (s *SplitService) Submit(ctx context.Context, in InputFile) (*Job, error) {
	if _, err := s.Accept(ctx, in); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.current != nil && (errors.Is(err, ErrInputRejected) || errors.Is(err, ErrDecode)) {
			return s.current.Clone(), err
		}
		return nil, err
	}
	return s.Process(ctx)
}

// Accept validates in and starts a job without doing any engine work.
//
// Returns ErrJobActive while a job runs and ErrNotIdle while a finished job
// has not been reset. Non-audio input moves the new job to FAILED and
// returns an error marked ErrInputRejected; empty input fails the same way
// marked ErrDecode. Otherwise the job is in
// LOADING_ENGINE and Process must be called to run it.
func (s *SplitService) Accept(ctx context.Context, in InputFile) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if s.current.IsRunning() {
			return nil, ErrJobActive
		}
		return nil, ErrNotIdle
	}
	if in.PushToS3 && !s.packager.CanPublish() {
		return nil, artifact.ErrPublishUnavailable
	}

	j := New(sanitizeName(in.Name, in.MediaType), strings.TrimSpace(in.MediaType), len(in.Data))
	j.PushToS3 = in.PushToS3
	s.current = j

	if !audio.IsAudioType(in.MediaType) {
		err := markFailure(errors.Newf("media type %q is not audio", in.MediaType), ErrInputRejected, "accept input")
		s.failLocked(ctx, j, err, status.KeyRejected)
		return j.Clone(), err
	}
	if len(in.Data) == 0 {
		err := markFailure(errors.Newf("input %q is empty", j.InputName), ErrDecode, "accept input")
		s.failLocked(ctx, j, err, status.KeyFailed)
		return j.Clone(), err
	}

	s.advanceLocked(ctx, j, StatusLoadingEngine, status.KeyLoadingEngine)
	s.pending = in.Data
	s.queued = true

	s.logger.Info("split job accepted",
		slog.String("job_id", j.ID),
		slog.String("input", j.InputName),
		slog.String("media_type", j.MediaType),
		slog.Int("bytes", j.InputSize),
		slog.Bool("push_to_s3", j.PushToS3),
	)
	return j.Clone(), nil
}

// Process runs the accepted job to SUCCEEDED or FAILED.
// It blocks until the job is finished and is not cancellable mid-command
// beyond what ctx gives the engine and prober.
func (s *SplitService) Process(ctx context.Context) (*Job, error) {
	s.mu.Lock()
	j, data, queued := s.current, s.pending, s.queued
	s.pending, s.queued = nil, false
	if j == nil || j.Status != StatusLoadingEngine || !queued {
		s.mu.Unlock()
		return nil, ErrNothingPending
	}
	s.mu.Unlock()

	start := time.Now()
	logger := s.logger.With(slog.String("job_id", j.ID))

	// 1. Engine
	if err := s.engine.EnsureLoaded(ctx); err != nil {
		return s.fail(ctx, j, markFailure(err, ErrEngineInit, "load engine"), status.KeyFailed)
	}
	ws, err := s.engine.Engine()
	if err != nil {
		return s.fail(ctx, j, markFailure(err, ErrEngineInit, "acquire engine"), status.KeyFailed)
	}

	// 2. Duration
	s.advance(ctx, j, StatusProbing, status.KeyProbing)
	meta, err := s.prober.Probe(ctx, data)
	if err != nil {
		return s.fail(ctx, j, markFailure(err, ErrDecode, "probe duration"), status.KeyFailed)
	}
	plan, err := audio.PlanSplit(meta.DurationSeconds)
	if err != nil {
		return s.fail(ctx, j, markFailure(errors.Wrapf(err, "duration %v", meta.DurationSeconds), ErrInvalidDuration, "plan split"), status.KeyFailed)
	}

	s.mu.Lock()
	j.DurationSeconds = plan.Duration
	j.SplitAt = plan.Mid
	s.mu.Unlock()
	logger.Info("split planned",
		slog.Float64("duration", plan.Duration),
		slog.Float64("mid", plan.Mid),
		slog.String("codec", meta.AudioCodec),
	)

	// 3. Extraction
	s.advance(ctx, j, StatusSplitting, status.KeyStaging)
	res, err := s.splitter.Split(ctx, ws, audio.Request{
		Input:     data,
		InputName: j.InputName,
		Plan:      plan,
		OnStep:    func(st audio.Step) { s.step(j, st) },
	})
	if err != nil {
		return s.fail(ctx, j, markFailure(err, ErrExecution, "split audio"), status.KeyFailed)
	}

	// 4. Artifacts
	s.step(j, stepPackaging)
	arts, err := s.packager.Package(ctx, artifact.Request{
		JobID:           j.ID,
		SourceName:      j.InputName,
		SourceMediaType: j.MediaType,
		First:           res.First,
		Second:          res.Second,
		Publish:         j.PushToS3,
	})
	if err != nil {
		return s.fail(ctx, j, markFailure(err, ErrExecution, "package artifacts"), status.KeyFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j.Artifacts = arts[:]
	s.advanceLocked(ctx, j, StatusSucceeded, status.KeySucceeded)
	s.events.Publish(Event{
		JobID:   j.ID,
		Type:    EventTypeResult,
		Status:  j.Status,
		Handles: []string{arts[0].Handle, arts[1].Handle},
	})

	logger.Info("split job succeeded",
		slog.Duration("duration", time.Since(start)),
		slog.Int("first_bytes", arts[0].Size),
		slog.Int("second_bytes", arts[1].Size),
	)
	return j.Clone(), nil
}

// Reset returns the service to IDLE and revokes the artifacts of the
// finished job. Resetting while idle is a no-op.
// Returns ErrJobActive while a job runs.
func (s *SplitService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.current
	if j == nil {
		return nil
	}
	if !canTransition(j.Status, StatusIdle) {
		return ErrJobActive
	}

	relErr := s.packager.Release(ctx, j.Artifacts...)
	if relErr != nil {
		s.logger.Warn("failed to release artifacts",
			slog.String("job_id", j.ID),
			slog.String("error", relErr.Error()),
		)
	}

	j.Artifacts = nil
	j.ReleasedAt = time.Now()
	s.saveLocked(ctx, j)

	s.current = nil
	s.pending, s.queued = nil, false
	s.events.Publish(Event{JobID: j.ID, Type: EventTypeStatus, Status: StatusIdle})
	s.logger.Info("split job reset", slog.String("job_id", j.ID))
	return relErr
}

// Current returns a snapshot of the current job, or an IDLE job without ID.
func (s *SplitService) Current() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return &Job{Status: StatusIdle}
	}
	return s.current.Clone()
}

// GetJob retrieves a job by ID, the current one or from history.
func (s *SplitService) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	if s.current != nil && s.current.ID == id {
		defer s.mu.Unlock()
		return s.current.Clone(), nil
	}
	s.mu.Unlock()
	return s.repo.FindByID(ctx, id)
}

// DeleteJob removes a finished job from history.
// The current job cannot be deleted: ErrJobActive while it runs, ErrNotIdle
// until it is reset.
func (s *SplitService) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.current != nil && s.current.ID == id {
		running := s.current.IsRunning()
		s.mu.Unlock()
		if running {
			return ErrJobActive
		}
		return ErrNotIdle
	}
	s.mu.Unlock()

	if s.repo == nil {
		return ErrJobNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("split job deleted from history", slog.String("job_id", id))
	return nil
}

// ListJobs returns the job history, newest first.
func (s *SplitService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Events returns job events with sequence greater than since.
func (s *SplitService) Events(since int64) []Event {
	return s.events.Since(since)
}

// stepPackaging extends audio steps with the packaging stage.
const stepPackaging audio.Step = -1

var stepKeys = map[audio.Step]status.Key{
	audio.StepStaging:    status.KeyStaging,
	audio.StepFirstHalf:  status.KeyCuttingFirst,
	audio.StepSecondHalf: status.KeyCuttingSecond,
	stepPackaging:        status.KeyPackaging,
}

// step records progress inside SPLITTING without changing the status.
func (s *SplitService) step(j *Job, st audio.Step) {
	key, ok := stepKeys[st]
	if !ok {
		return
	}
	name := st.String()
	if st == stepPackaging {
		name = "packaging"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j.Message = s.printer.Text(key)
	j.UpdatedAt = time.Now()
	s.events.Publish(Event{
		JobID:   j.ID,
		Type:    EventTypeStep,
		Status:  j.Status,
		Step:    name,
		Message: j.Message,
	})
}

func (s *SplitService) advance(ctx context.Context, j *Job, to Status, key status.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked(ctx, j, to, key)
}

func (s *SplitService) advanceLocked(ctx context.Context, j *Job, to Status, key status.Key) {
	from := j.Status
	if err := j.TransitionTo(to); err != nil {
		// Only reachable through a programming error in the stage order.
		s.logger.Error("invalid job transition",
			slog.String("job_id", j.ID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return
	}
	j.Message = s.printer.Text(key)
	s.saveLocked(ctx, j)
	s.events.Publish(Event{JobID: j.ID, Type: EventTypeStatus, Status: to, Message: j.Message})
	s.logger.Debug("job transition",
		slog.String("job_id", j.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (s *SplitService) fail(ctx context.Context, j *Job, err error, key status.Key) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(ctx, j, err, key)
	return j.Clone(), err
}

func (s *SplitService) failLocked(ctx context.Context, j *Job, err error, key status.Key) {
	code := CodeOf(err)
	summary := "internal error"
	if kind := KindOf(err); kind != nil {
		summary = kind.Error()
	}

	from := j.Status
	if tErr := j.Fail(code, summary); tErr != nil {
		s.logger.Error("invalid job transition",
			slog.String("job_id", j.ID),
			slog.String("from", string(from)),
			slog.String("to", string(StatusFailed)),
		)
		return
	}
	j.Message = s.printer.Text(key)
	s.saveLocked(ctx, j)

	s.events.Publish(Event{JobID: j.ID, Type: EventTypeStatus, Status: StatusFailed, Message: j.Message})
	s.events.Publish(Event{JobID: j.ID, Type: EventTypeError, Status: StatusFailed, Code: code, Message: summary})

	s.logger.Error("split job failed",
		slog.String("job_id", j.ID),
		slog.String("from", string(from)),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
}

func (s *SplitService) saveLocked(ctx context.Context, j *Job) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(context.WithoutCancel(ctx), j); err != nil {
		s.logger.Warn("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

// sanitizeName reduces name to a plain file name with a container extension.
func sanitizeName(name, mediaType string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		base = ""
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "input"
	}
	return stem + audio.ContainerExt(base, mediaType)
}
