// Package audio provides interfaces and implementations for splitting audio.
package audio

import (
	"context"
	"errors"
	"math"
)

// ErrInvalidDuration is returned when a duration cannot be split in two.
var ErrInvalidDuration = errors.New("audio: invalid duration")

// Range is a half-open time interval [Start, End) in seconds.
type Range struct {
	Start float64
	End   float64
}

// Duration returns the length of the range in seconds.
func (r Range) Duration() float64 {
	return r.End - r.Start
}

// Plan describes where an audio file is cut.
type Plan struct {
	// Duration is the total playable duration of the input.
	Duration float64
	// Mid is the split point, Duration / 2.
	Mid float64
	// First is [0, Mid).
	First Range
	// Second is [Mid, Duration).
	Second Range
}

// PlanSplit returns the midpoint split plan for duration.
// Returns ErrInvalidDuration for zero, negative, NaN or infinite durations.
func PlanSplit(duration float64) (Plan, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return Plan{}, ErrInvalidDuration
	}

	mid := duration / 2
	if !(mid > 0 && mid < duration) {
		// Subnormal durations whose half underflows.
		return Plan{}, ErrInvalidDuration
	}

	return Plan{
		Duration: duration,
		Mid:      mid,
		First:    Range{Start: 0, End: mid},
		Second:   Range{Start: mid, End: duration},
	}, nil
}

// Workspace is the part of the transcoding engine a split needs:
// a working namespace plus command execution.
type Workspace interface {
	WriteFile(ctx context.Context, name string, data []byte) error
	Run(ctx context.Context, args ...string) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	Remove(ctx context.Context, name string) error
}

// Step identifies a stage of a split, reported through Request.OnStep.
type Step int

// Split steps in execution order.
const (
	StepStaging Step = iota
	StepFirstHalf
	StepSecondHalf
	StepCollecting
)

// String returns a lowercase name for the step.
func (s Step) String() string {
	switch s {
	case StepStaging:
		return "staging"
	case StepFirstHalf:
		return "first_half"
	case StepSecondHalf:
		return "second_half"
	case StepCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// Request describes one split.
type Request struct {
	// Input is the raw audio file.
	Input []byte
	// InputName is the file name used in the engine namespace. Its extension
	// decides the container of both outputs.
	InputName string
	// Plan is the cut to perform.
	Plan Plan
	// OnStep, if set, is called before each step starts.
	OnStep func(Step)
}

// Result holds the two halves in order.
type Result struct {
	First  []byte
	Second []byte
}

// Splitter defines the interface for cutting audio in two without re-encoding.
type Splitter interface {
	// Split writes the input into ws, extracts both ranges of the plan with
	// stream copy and returns their bytes. Every namespace entry Split
	// creates is removed before it returns, on success or failure.
	Split(ctx context.Context, ws Workspace, req Request) (Result, error)
}
