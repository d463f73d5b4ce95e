package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"valuepulse/internal/config"
	"valuepulse/internal/table"
)

// BucketCreator creates a bucket if it does not exist
type BucketCreator interface {
	EnsureBucket(ctx context.Context, bucket string) error
}

// Open builds the store selected by cfg.Storage.Backend and wraps it with
// logging. Callers should Close the result.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*LoggedStore, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Storage.Backend {
	case config.BackendFS, "":
		store = NewFSStore(cfg.Storage.LocalRoot)
	case config.BackendGCS:
		store, err = NewGCSStore(ctx, GCSOptions{
			Project:     cfg.GCP.Project,
			Credentials: cfg.GCP.Credentials,
			Endpoint:    cfg.GCP.Endpoint,
		})
	case config.BackendPostgres:
		store, err = NewPostgresStore(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewLoggedStore(store, cfg.Storage.Backend, logger), nil
}

// LoggedStore logs every storage call with its duration
type LoggedStore struct {
	Store
	backend string
	logger  *slog.Logger
}

// NewLoggedStore wraps store
func NewLoggedStore(store Store, backend string, logger *slog.Logger) *LoggedStore {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == "" {
		backend = config.BackendFS
	}
	return &LoggedStore{
		Store:   store,
		backend: backend,
		logger:  logger.With(slog.String("component", "storage"), slog.String("backend", backend)),
	}
}

// Backend names the wrapped backend
func (s *LoggedStore) Backend() string { return s.backend }

func (s *LoggedStore) Load(ctx context.Context, bucket, blob string) (*table.Table, error) {
	start := time.Now()
	t, err := s.Store.Load(ctx, bucket, blob)
	if err != nil {
		s.logger.ErrorContext(ctx, "load failed",
			slog.String("bucket", bucket), slog.String("blob", blob), slog.String("error", err.Error()))
		return nil, err
	}
	s.logger.DebugContext(ctx, "loaded table",
		slog.String("bucket", bucket), slog.String("blob", blob),
		slog.Int("rows", t.Len()), slog.Duration("duration", time.Since(start)))
	return t, nil
}

func (s *LoggedStore) Save(ctx context.Context, t *table.Table, bucket, blob string) error {
	start := time.Now()
	if err := s.Store.Save(ctx, t, bucket, blob); err != nil {
		s.logger.ErrorContext(ctx, "save failed",
			slog.String("bucket", bucket), slog.String("blob", blob), slog.String("error", err.Error()))
		return err
	}
	s.logger.InfoContext(ctx, "saved table",
		slog.String("bucket", bucket), slog.String("blob", blob),
		slog.Int("rows", t.Len()), slog.Duration("duration", time.Since(start)))
	return nil
}

func (s *LoggedStore) List(ctx context.Context, bucket string) ([]string, error) {
	names, err := s.Store.List(ctx, bucket)
	if err != nil {
		s.logger.ErrorContext(ctx, "list failed", slog.String("bucket", bucket), slog.String("error", err.Error()))
		return nil, err
	}
	return names, nil
}

// EnsureBucket creates bucket when the backend supports it
func (s *LoggedStore) EnsureBucket(ctx context.Context, bucket string) error {
	bc, ok := s.Store.(BucketCreator)
	if !ok {
		return fmt.Errorf("backend %s cannot create buckets", s.backend)
	}
	return bc.EnsureBucket(ctx, bucket)
}

// Close closes the wrapped store if it holds resources
func (s *LoggedStore) Close() error {
	if c, ok := s.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
