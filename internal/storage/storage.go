// Package storage provides scratch files for probing and optional S3
// publication of split parts. It defines the Storage interface (port) and
// implementations for local disk and S3.
package storage

import (
	"context"
	"io"
	"time"
)

// Object is one split part to publish.
type Object struct {
	// Key is the object key, e.g. "audiosplit/<job>/part1.m4a".
	Key  string
	Body io.Reader
	// Size is the length of Body in bytes, or 0 if unknown.
	Size int64
	// MediaType is stored as the object's Content-Type.
	MediaType string
	// FileName is suggested to downloaders through Content-Disposition.
	FileName string
}

// Storage defines scratch file handling and object publication.
type Storage interface {
	// SaveTemp saves data to a scratch file and returns its path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CleanupTemp removes the specified scratch files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// SweepTemp removes scratch files older than maxAge left behind by
	// earlier processes and reports how many were removed.
	SweepTemp(ctx context.Context, maxAge time.Duration) (int, error)

	// Publish uploads obj and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, obj Object) (url string, err error)

	// Unpublish removes a previously published object.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Unpublish(ctx context.Context, key string) error
}
