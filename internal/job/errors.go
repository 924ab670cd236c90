package job

import (
	"github.com/cockroachdb/errors"
)

// Submission errors.
var (
	// ErrJobActive is returned when a job is submitted or reset while another runs.
	ErrJobActive = errors.New("a split job is already running")
	// ErrNotIdle is returned when a job is submitted before the previous one was reset.
	ErrNotIdle = errors.New("previous job must be reset before submitting")
	// ErrNothingPending is returned when Process is called without an accepted input.
	ErrNothingPending = errors.New("no accepted input to process")
)

// Failure kinds. Every failed job error is marked with exactly one of them.
var (
	ErrInputRejected   = errors.New("input rejected")
	ErrEngineInit      = errors.New("engine initialization failed")
	ErrDecode          = errors.New("audio could not be decoded")
	ErrInvalidDuration = errors.New("audio duration cannot be split")
	ErrExecution       = errors.New("split execution failed")
)

// Error codes reported in Job.ErrorCode.
const (
	CodeInputRejected   = "INPUT_REJECTED"
	CodeEngineInit      = "ENGINE_INIT_FAILED"
	CodeDecode          = "DECODE_FAILED"
	CodeInvalidDuration = "INVALID_DURATION"
	CodeExecution       = "EXECUTION_FAILED"
	CodeInternal        = "INTERNAL_ERROR"
)

var kinds = []struct {
	kind error
	code string
}{
	{ErrInputRejected, CodeInputRejected},
	{ErrEngineInit, CodeEngineInit},
	{ErrDecode, CodeDecode},
	{ErrInvalidDuration, CodeInvalidDuration},
	{ErrExecution, CodeExecution},
}

// markFailure tags err with a failure kind and adds context.
func markFailure(err, kind error, msg string) error {
	return errors.Wrap(errors.Mark(err, kind), msg)
}

// KindOf returns the failure kind err is marked with, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.kind
		}
	}
	return nil
}

// CodeOf returns the error code for err.
func CodeOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.code
		}
	}
	return CodeInternal
}
