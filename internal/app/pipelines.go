package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"valuepulse/internal/cleaning"
	"valuepulse/internal/config"
	"valuepulse/internal/exporter"
	"valuepulse/internal/pipeline"
	"valuepulse/internal/processing"
	"valuepulse/internal/storage"
)

// Pipelines bundles the storage and environment catalog pipelines run
// against. The web server and the pipeline CLI share it.
type Pipelines struct {
	Catalog *pipeline.Catalog
	Env     *pipeline.Env
	Store   *storage.LoggedStore
	Paths   *config.Paths

	// publisher is only set when it is not Store itself
	publisher *storage.PostgresStore
}

// OpenPipelines opens the configured store and builds the pipeline
// environment. meter may be nil, in which case step metrics are skipped.
func OpenPipelines(ctx context.Context, cfg *config.Config, logger *slog.Logger, meter metric.Meter) (*Pipelines, error) {
	paths, err := config.NewPaths(cfg)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}
	paths.LogPathResolution(logger)

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	p := &Pipelines{Catalog: pipeline.NewCatalog(), Store: store, Paths: paths}

	registry := processing.NewRegistry()
	if err := cleaning.RegisterSteps(registry, cleaning.Resources{}); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to register cleaning steps: %w", err)
	}

	saver, err := exporter.NewSaver(exporter.FormatXLSX,
		exporter.NewCSVWriter(paths, logger),
		exporter.NewXLSXWriter(paths, logger))
	if err != nil {
		p.Close()
		return nil, err
	}
	saver.Summary = true

	opts := []processing.Option{processing.WithLogger(logger)}
	if meter != nil {
		stepMetrics, err := pipeline.NewStepMetrics(meter)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to create step metrics: %w", err)
		}
		opts = append(opts, processing.WithObserver(stepMetrics))
	}

	p.Env = &pipeline.Env{
		Store:         store,
		Exporter:      saver,
		PublishSchema: cfg.Database.Schema,
		PublishTable:  cfg.Database.Table,
		Registry:      registry,
		Definitions:   paths.DefinitionsDir,
		SplitSeason:   cfg.Pipeline.SplitSeason,
		Seed:          cfg.Pipeline.Seed,
		Concurrency:   cfg.Storage.Concurrency,
		Options:       opts,
		Logger:        logger,
	}
	if src := cfg.Pipeline.FIFACodesSource; src != "" {
		p.Env.FIFACodes = cachedFIFACodes(&http.Client{Timeout: config.DefaultHTTPTimeout}, src)
	}

	switch {
	case cfg.Storage.Backend == config.BackendPostgres:
		p.Env.Publisher = store
	case cfg.Database.DSN != "":
		pg, err := storage.NewPostgresStore(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open publish database: %w", err)
		}
		p.publisher = pg
		p.Env.Publisher = storage.NewLoggedStore(pg, config.BackendPostgres, logger)
	}
	return p, nil
}

// Close releases the store and the publish database
func (p *Pipelines) Close() error {
	var errs []error
	if p.publisher != nil {
		errs = append(errs, p.publisher.Close())
	}
	if p.Store != nil {
		errs = append(errs, p.Store.Close())
	}
	return errors.Join(errs...)
}

// cachedFIFACodes loads the code table once. Failures are not cached so a
// later run can retry.
func cachedFIFACodes(client *http.Client, source string) func(context.Context) (map[string]string, error) {
	var (
		mu    sync.Mutex
		codes map[string]string
	)
	return func(ctx context.Context) (map[string]string, error) {
		mu.Lock()
		defer mu.Unlock()
		if codes != nil {
			return codes, nil
		}
		loaded, err := cleaning.LoadFIFACodes(ctx, client, source)
		if err != nil {
			return nil, err
		}
		codes = loaded
		return codes, nil
	}
}
