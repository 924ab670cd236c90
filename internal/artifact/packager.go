package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/maauso/audiosplit-api/internal/audio"
	"github.com/maauso/audiosplit-api/internal/storage"
)

// Publisher uploads artifacts to object storage and removes them again.
// storage.Storage satisfies it.
type Publisher interface {
	Publish(ctx context.Context, obj storage.Object) (url string, err error)
	Unpublish(ctx context.Context, key string) error
}

// Request describes the two halves to package.
type Request struct {
	// JobID scopes the S3 object keys.
	JobID string
	// SourceName and SourceMediaType decide extension and media type of the parts.
	SourceName      string
	SourceMediaType string
	First           []byte
	Second          []byte
	// Publish uploads both parts to S3 in addition to registering them.
	Publish bool
}

// Packager wraps split output as named artifacts.
type Packager struct {
	registry  Registry
	publisher Publisher
	keyPrefix string
	logger    *slog.Logger
}

// PackagerOption configures a Packager.
type PackagerOption func(*Packager)

// WithPublisher enables S3 publication through pub.
func WithPublisher(pub Publisher) PackagerOption {
	return func(p *Packager) {
		p.publisher = pub
	}
}

// WithKeyPrefix sets the S3 key prefix. Default: "audiosplit".
func WithKeyPrefix(prefix string) PackagerOption {
	return func(p *Packager) {
		p.keyPrefix = prefix
	}
}

// NewPackager creates a Packager that registers artifacts in registry.
func NewPackager(registry Registry, logger *slog.Logger, opts ...PackagerOption) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Packager{
		registry:  registry,
		keyPrefix: "audiosplit",
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CanPublish reports whether a publisher is configured.
func (p *Packager) CanPublish() bool {
	return p.publisher != nil
}

// Package returns the two artifacts, first half first.
// Either both artifacts are registered or neither is.
func (p *Packager) Package(ctx context.Context, req Request) ([2]Artifact, error) {
	var out [2]Artifact

	if len(req.First) == 0 || len(req.Second) == 0 {
		return out, ErrEmptyBuffer
	}
	if req.Publish && p.publisher == nil {
		return out, ErrPublishUnavailable
	}

	ext := audio.ContainerExt(req.SourceName, req.SourceMediaType)
	mediaType := audio.MediaTypeForExt(ext)

	var made []Artifact
	for i, data := range [][]byte{req.First, req.Second} {
		a, err := p.build(ctx, req, fmt.Sprintf("part%d%s", i+1, ext), mediaType, data)
		if err != nil {
			if relErr := p.Release(context.WithoutCancel(ctx), made...); relErr != nil {
				p.logger.Warn("failed to release partial artifacts", slog.String("error", relErr.Error()))
			}
			return [2]Artifact{}, err
		}
		made = append(made, a)
		out[i] = a
	}

	p.logger.Info("artifacts packaged",
		slog.String("job_id", req.JobID),
		slog.String("first", out[0].Handle),
		slog.String("second", out[1].Handle),
		slog.Bool("published", req.Publish),
	)
	return out, nil
}

func (p *Packager) build(ctx context.Context, req Request, name, mediaType string, data []byte) (Artifact, error) {
	a := Artifact{Name: name, MediaType: mediaType, Data: data}

	if req.Publish {
		key := path.Join(p.keyPrefix, req.JobID, name)
		url, err := p.publisher.Publish(ctx, storage.Object{
			Key:       key,
			Body:      bytes.NewReader(data),
			Size:      int64(len(data)),
			MediaType: mediaType,
			FileName:  name,
		})
		if err != nil {
			return Artifact{}, fmt.Errorf("publish %s: %w", name, err)
		}
		a.URL = url
		a.ObjectKey = key
	}

	registered, err := p.registry.Register(ctx, a)
	if err != nil {
		if a.ObjectKey != "" {
			_ = p.publisher.Unpublish(context.WithoutCancel(ctx), a.ObjectKey)
		}
		return Artifact{}, fmt.Errorf("register %s: %w", name, err)
	}
	return registered, nil
}

// Release revokes the handles of arts and deletes their published objects.
// Already revoked handles are skipped. All artifacts are attempted.
func (p *Packager) Release(ctx context.Context, arts ...Artifact) error {
	var errs []error
	for _, a := range arts {
		if a.Handle != "" {
			if err := p.registry.Revoke(ctx, a.Handle); err != nil && !errors.Is(err, ErrArtifactNotFound) {
				errs = append(errs, fmt.Errorf("revoke %s: %w", a.Name, err))
			}
		}
		if a.ObjectKey != "" && p.publisher != nil {
			if err := p.publisher.Unpublish(ctx, a.ObjectKey); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", a.ObjectKey, err))
			}
		}
	}
	return errors.Join(errs...)
}
