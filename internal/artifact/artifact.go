// Package artifact turns the raw halves of a split into named, downloadable
// artifacts. Each artifact is reachable through a revocable handle until the
// job that produced it is reset.
package artifact

import (
	"context"
	"errors"
)

// Static errors for artifact operations.
var (
	// ErrArtifactNotFound is returned for unknown or revoked handles.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrEmptyBuffer is returned when asked to package zero bytes.
	ErrEmptyBuffer = errors.New("artifact: empty buffer")
	// ErrPublishUnavailable is returned when publication is requested without a publisher.
	ErrPublishUnavailable = errors.New("artifact: publishing is not configured")
)

// Artifact is one output part of a split job.
type Artifact struct {
	// Handle is the revocable reference to this artifact.
	Handle string `json:"handle"`
	// Name is the suggested file name, e.g. "part1.m4a".
	Name string `json:"name"`
	// MediaType is the container media type, e.g. "audio/mp4".
	MediaType string `json:"media_type"`
	// Size is the length of Data in bytes.
	Size int `json:"size"`
	// Data holds the bytes. It is shared, not copied, and must not be modified.
	Data []byte `json:"-"`
	// URL is the public location when the artifact was published to S3.
	URL string `json:"url,omitempty"`
	// ObjectKey is the S3 key when the artifact was published.
	ObjectKey string `json:"-"`
}

// Meta returns a copy of a without its bytes.
func (a Artifact) Meta() Artifact {
	a.Data = nil
	return a
}

// Registry hands out revocable references to artifact bytes.
type Registry interface {
	// Register stores a and returns it with a new Handle.
	Register(ctx context.Context, a Artifact) (Artifact, error)

	// Open returns the artifact behind handle.
	// Returns ErrArtifactNotFound if the handle is unknown or was revoked.
	Open(ctx context.Context, handle string) (Artifact, error)

	// Revoke invalidates handle and drops the reference to its bytes.
	// Returns ErrArtifactNotFound if the handle is unknown or already revoked.
	Revoke(ctx context.Context, handle string) error
}
