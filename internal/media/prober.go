// Package media provides audio inspection for split jobs.
// It determines how long an audio file plays without producing any output,
// using a decode pass that is independent of the transcoding engine.
package media

import (
	"context"
	"io"
)

// Metadata describes an audio input. It is derived once per input and never mutated.
type Metadata struct {
	// DurationSeconds is the total playable duration.
	DurationSeconds float64
	// FormatName is the container format reported by the decoder (e.g. "mov,mp4,m4a,3gp,3g2,mj2").
	FormatName string
	// AudioCodec is the codec of the first audio stream (e.g. "aac").
	AudioCodec string
	// AudioStreams is the number of audio streams in the container.
	AudioStreams int
}

// Prober defines the interface for determining audio metadata.
type Prober interface {
	// Probe decodes data far enough to determine its duration.
	// Non-audio or corrupt input returns an error wrapping ErrDecode.
	// Any scratch resources used for decoding are released before Probe returns.
	Probe(ctx context.Context, data []byte) (Metadata, error)
}

// TempStore is the subset of storage used to stage probe input on disk.
type TempStore interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)
	CleanupTemp(ctx context.Context, paths []string) error
}
