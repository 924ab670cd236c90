// Package bootstrap wires the split service and its collaborators from configuration.
// It is shared by the HTTP server and the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/audiosplit-api/internal/artifact"
	"github.com/maauso/audiosplit-api/internal/audio"
	"github.com/maauso/audiosplit-api/internal/config"
	"github.com/maauso/audiosplit-api/internal/engine"
	"github.com/maauso/audiosplit-api/internal/job"
	"github.com/maauso/audiosplit-api/internal/media"
	"github.com/maauso/audiosplit-api/internal/status"
	"github.com/maauso/audiosplit-api/internal/storage"
)

// staleScratchAge is how old a scratch file must be before startup removes it.
const staleScratchAge = time.Hour

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	SplitService *job.SplitService
	Artifacts    artifact.Registry
	Engine       *engine.Handle
}

// Close releases the engine and its working namespace.
func (d *Dependencies) Close() error {
	return d.Engine.Close()
}

// NewDependencies creates and initializes all dependencies for the application.
// The engine is not loaded here; the first job loads it.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	if n, err := store.SweepTemp(context.Background(), staleScratchAge); err != nil {
		logger.Warn("failed to sweep scratch files", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("removed stale scratch files", slog.Int("count", n))
	}

	printer, err := status.NewPrinter(cfg.StatusLang)
	if err != nil {
		return nil, fmt.Errorf("create status printer: %w", err)
	}

	handle := engine.NewHandle(engine.NewFFmpegEngine(cfg.FFmpegPath, cfg.TempDir), logger)
	prober := media.NewFFprobeProber(cfg.FFprobePath, store)
	splitter := audio.NewFFmpegSplitter(logger)

	registry := artifact.NewMemoryRegistry()
	var packagerOpts []artifact.PackagerOption
	if cfg.S3Enabled() {
		packagerOpts = append(packagerOpts,
			artifact.WithPublisher(store),
			artifact.WithKeyPrefix(cfg.S3KeyPrefix),
		)
	}
	packager := artifact.NewPackager(registry, logger, packagerOpts...)

	svc := job.NewSplitService(
		handle,
		prober,
		splitter,
		packager,
		job.NewMemoryRepository(cfg.HistorySize),
		logger,
		job.WithStatusPrinter(printer),
		job.WithEventBus(job.NewEventBus(cfg.EventBuffer)),
	)

	return &Dependencies{
		SplitService: svc,
		Artifacts:    registry,
		Engine:       handle,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
