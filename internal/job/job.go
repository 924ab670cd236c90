// Package job provides the split job aggregate and the SplitService that
// drives one job at a time from submission to two output artifacts.
// It includes the Job entity with its state machine and repository
// interfaces for job history.
package job

import (
	"errors"
	"time"

	"github.com/maauso/audiosplit-api/internal/artifact"
	"github.com/maauso/audiosplit-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusIdle indicates no job has been submitted.
	StatusIdle Status = "IDLE"
	// StatusLoadingEngine indicates the transcoding engine is being prepared.
	StatusLoadingEngine Status = "LOADING_ENGINE"
	// StatusProbing indicates the input duration is being determined.
	StatusProbing Status = "PROBING"
	// StatusSplitting indicates both halves are being extracted and packaged.
	StatusSplitting Status = "SPLITTING"
	// StatusSucceeded indicates two artifacts are available.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed indicates the job stopped without artifacts.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusIdle:          {StatusLoadingEngine, StatusFailed},
	StatusLoadingEngine: {StatusProbing, StatusFailed},
	StatusProbing:       {StatusSplitting, StatusFailed},
	StatusSplitting:     {StatusSucceeded, StatusFailed},
	StatusSucceeded:     {StatusIdle},
	StatusFailed:        {StatusIdle},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one submit-to-resolution cycle for a single input file.
// Job is not safe for concurrent use; SplitService serializes access.
type Job struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`
	// InputName is the sanitized display name of the input file.
	InputName string `json:"input_name"`
	// MediaType is the declared media type of the input.
	MediaType string `json:"media_type"`
	// InputSize is the input length in bytes.
	InputSize int `json:"input_size"`
	// PushToS3 indicates whether the parts are published to S3.
	PushToS3 bool `json:"push_to_s3"`
	// Status is the current job state.
	Status Status `json:"status"`
	// Message is the localized progress or result text.
	Message string `json:"message,omitempty"`
	// Error is a user-safe failure summary.
	Error string `json:"error,omitempty"`
	// ErrorCode classifies the failure, e.g. "DECODE_FAILED".
	ErrorCode string `json:"error_code,omitempty"`
	// DurationSeconds is the probed input duration.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	// SplitAt is the midpoint the input was cut at.
	SplitAt float64 `json:"split_at,omitempty"`
	// Artifacts holds the two parts after success, first half first.
	Artifacts []artifact.Artifact `json:"artifacts,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time `json:"updated_at"`
	// StartedAt is when the engine load started.
	StartedAt time.Time `json:"started_at,omitzero"`
	// CompletedAt is when the job reached SUCCEEDED or FAILED.
	CompletedAt time.Time `json:"completed_at,omitzero"`
	// ReleasedAt is when the job was reset and its artifacts revoked.
	ReleasedAt time.Time `json:"released_at,omitzero"`
}

// New creates a new Job with a generated ID in IDLE status.
func New(inputName, mediaType string, size int) *Job {
	j := NewWithID(id.Generate())
	j.InputName = inputName
	j.MediaType = mediaType
	j.InputSize = size
	return j
}

// NewWithID creates a new Job with the specified ID in IDLE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusLoadingEngine:
		j.StartedAt = j.UpdatedAt
	case StatusSucceeded, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Fail transitions the job to FAILED with a user-safe error summary.
func (j *Job) Fail(code, errMsg string) error {
	if err := j.TransitionTo(StatusFailed); err != nil {
		return err
	}
	j.ErrorCode = code
	j.Error = errMsg
	return nil
}

// IsTerminal returns true if the job is SUCCEEDED or FAILED.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// IsRunning returns true while the job is between submission and a terminal state.
func (j *Job) IsRunning() bool {
	return j.Status == StatusLoadingEngine ||
		j.Status == StatusProbing ||
		j.Status == StatusSplitting
}

// Clone creates a copy of the job for safe reads.
// Artifact bytes are shared and must be treated as read-only.
func (j *Job) Clone() *Job {
	c := *j
	if j.Artifacts != nil {
		c.Artifacts = make([]artifact.Artifact, len(j.Artifacts))
		copy(c.Artifacts, j.Artifacts)
	}
	return &c
}

// Snapshot returns a clone without artifact bytes, suitable for history.
func (j *Job) Snapshot() *Job {
	c := j.Clone()
	for i := range c.Artifacts {
		c.Artifacts[i] = c.Artifacts[i].Meta()
	}
	return c
}
