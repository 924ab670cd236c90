package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
)

// Static errors for split execution.
var (
	// ErrStageInput is returned when the input cannot be written to the namespace.
	ErrStageInput = errors.New("audio: stage input")
	// ErrFirstExtraction is returned when cutting [0, mid) fails.
	ErrFirstExtraction = errors.New("audio: first extraction failed")
	// ErrSecondExtraction is returned when cutting [mid, end) fails.
	ErrSecondExtraction = errors.New("audio: second extraction failed")
	// ErrEmptyOutput is returned when an extraction reports success but produced no bytes.
	ErrEmptyOutput = errors.New("audio: extraction produced empty output")
)

// FFmpegSplitter implements Splitter with two stream-copy ffmpeg commands.
type FFmpegSplitter struct {
	logger *slog.Logger
}

// NewFFmpegSplitter creates a new FFmpegSplitter.
func NewFFmpegSplitter(logger *slog.Logger) *FFmpegSplitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegSplitter{logger: logger}
}

// entryNames returns the namespace names for a split of inputName.
// Only the container extension is taken from inputName; ffmpeg would read a
// "scheme:" prefix in the name as a protocol.
func entryNames(inputName string) (input, first, second string) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(inputName)))
	if _, ok := containers[ext]; !ok {
		ext = DefaultExtension
	}
	return "input" + ext, "output1" + ext, "output2" + ext
}

// formatSeconds renders a timestamp for ffmpeg at full precision.
func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', -1, 64)
}

// headArgs returns the command extracting [0, mid) from input.
func headArgs(input, output string, plan Plan) []string {
	return []string{
		"-i", input,
		"-t", formatSeconds(plan.Mid),
		"-c", "copy", // Copy without re-encoding
		output,
	}
}

// tailArgs returns the command extracting [mid, end) from input.
func tailArgs(input, output string, plan Plan) []string {
	return []string{
		"-i", input,
		"-ss", formatSeconds(plan.Mid),
		"-c", "copy",
		output,
	}
}

// Split implements Splitter.Split.
// The two extractions run sequentially because they share one namespace.
func (s *FFmpegSplitter) Split(ctx context.Context, ws Workspace, req Request) (Result, error) {
	input, first, second := entryNames(req.InputName)
	step := func(st Step) {
		if req.OnStep != nil {
			req.OnStep(st)
		}
	}

	var created []string
	defer func() {
		// Release entries even if ctx was cancelled.
		cleanupCtx := context.WithoutCancel(ctx)
		for _, name := range created {
			if rmErr := ws.Remove(cleanupCtx, name); rmErr != nil {
				s.logger.Warn("failed to remove namespace entry",
					slog.String("entry", name),
					slog.String("error", rmErr.Error()),
				)
			}
		}
	}()

	step(StepStaging)
	created = append(created, input)
	if err := ws.WriteFile(ctx, input, req.Input); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStageInput, err)
	}

	step(StepFirstHalf)
	created = append(created, first)
	if err := ws.Run(ctx, headArgs(input, first, req.Plan)...); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrFirstExtraction, err)
	}

	step(StepSecondHalf)
	created = append(created, second)
	if err := ws.Run(ctx, tailArgs(input, second, req.Plan)...); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSecondExtraction, err)
	}

	step(StepCollecting)
	firstData, err := s.collect(ctx, ws, first, ErrFirstExtraction)
	if err != nil {
		return Result{}, err
	}
	secondData, err := s.collect(ctx, ws, second, ErrSecondExtraction)
	if err != nil {
		return Result{}, err
	}

	s.logger.Debug("split extracted",
		slog.String("input", input),
		slog.Float64("mid", req.Plan.Mid),
		slog.Int("first_bytes", len(firstData)),
		slog.Int("second_bytes", len(secondData)),
	)

	return Result{First: firstData, Second: secondData}, nil
}

func (s *FFmpegSplitter) collect(ctx context.Context, ws Workspace, name string, kind error) ([]byte, error) {
	data, err := ws.ReadFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", kind, name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w: %s", kind, ErrEmptyOutput, name)
	}
	return data, nil
}

// Verify interface implementation at compile time.
var _ Splitter = (*FFmpegSplitter)(nil)
