package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"valuepulse/internal/processing"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

// Location addresses a blob
type Location struct {
	Bucket string
	Blob   string
}

// Set reports whether both parts are present
func (l Location) Set() bool { return l.Bucket != "" && l.Blob != "" }

func (l Location) String() string { return l.Bucket + "/" + l.Blob }

// DataProcessor loads a table, runs Processors over it and saves the
// result when Saver is set and the output location is complete.
type DataProcessor struct {
	Name       string
	Loader     storage.Loader
	Saver      storage.Saver
	Processors []processing.Processor
	Options    []processing.Option
	Logger     *slog.Logger
}

// Run processes src and writes to dst
func (p *DataProcessor) Run(ctx context.Context, src, dst Location) (*table.Table, error) {
	if p.Loader == nil {
		return nil, fmt.Errorf("data processor %s has no loader", p.Name)
	}
	logger := loggerOr(p.Logger).With(slog.String("pipeline", p.Name))

	logger.InfoContext(ctx, "loading table", slog.String("source", src.String()))
	t, err := p.Loader.Load(ctx, src.Bucket, src.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", src, err)
	}

	out, err := compose(ctx, p.Name, p.Processors, p.Options, t)
	if err != nil {
		return nil, err
	}

	if p.Saver != nil && dst.Set() {
		if err := p.Saver.Save(ctx, out, dst.Bucket, dst.Blob); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", dst, err)
		}
		logger.InfoContext(ctx, "saved table",
			slog.String("target", dst.String()), slog.Int("rows", out.Len()))
	}
	return out, nil
}

// compose runs processors as one named chain. No processors returns t.
func compose(ctx context.Context, name string, processors []processing.Processor, opts []processing.Option, t *table.Table) (*table.Table, error) {
	if len(processors) == 0 {
		return t, nil
	}
	return processing.NewComposer(name, processors, opts...).Transform(ctx, t)
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default().With(slog.String("component", "pipeline"))
	}
	return logger
}
