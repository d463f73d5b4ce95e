package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"valuepulse/internal/processing"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

// ErrNoBlobs is returned when a bucket join selects nothing
var ErrNoBlobs = errors.New("no blobs selected")

// JoinMethod combines several tables into one
type JoinMethod interface {
	Join(ctx context.Context, tables []*table.Table) (*table.Table, error)
}

// MultiJoin inner-merges the tables left to right on Keys. Overlapping
// columns take Suffixes; with DropOverlap the right-hand copies are dropped
// after each merge so later tables cannot collide with them.
type MultiJoin struct {
	Keys        []string
	Suffixes    [2]string
	DropOverlap bool
}

// Join implements JoinMethod
func (m MultiJoin) Join(ctx context.Context, tables []*table.Table) (*table.Table, error) {
	if len(tables) == 0 {
		return nil, table.ErrEmptyTable
	}
	if m.DropOverlap && m.Suffixes[1] == "" {
		return nil, fmt.Errorf("%w: dropping overlap needs a right suffix", processing.ErrInvalidParams)
	}
	acc := tables[0]
	for i, next := range tables[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		merged, err := m.merge(acc, next)
		if err != nil {
			return nil, fmt.Errorf("merge %d: %w", i+1, err)
		}
		acc = merged
	}
	return acc, nil
}

func (m MultiJoin) merge(left, right *table.Table) (*table.Table, error) {
	merged, err := table.Merge(left, right, table.MergeOptions{On: m.Keys, Suffixes: m.Suffixes})
	if err != nil {
		return nil, err
	}
	if !m.DropOverlap {
		return merged, nil
	}
	keys := make(map[string]bool, len(m.Keys))
	for _, k := range m.Keys {
		keys[k] = true
	}
	var drop []string
	for _, c := range right.Columns() {
		if !keys[c] && left.HasColumn(c) {
			drop = append(drop, c+m.Suffixes[1])
		}
	}
	out := merged.Drop(drop...)
	if m.Suffixes[0] != "" {
		// left copies keep their original names
		mapping := make(map[string]string, len(drop))
		for _, d := range drop {
			base := strings.TrimSuffix(d, m.Suffixes[1])
			mapping[base+m.Suffixes[0]] = base
		}
		return out.Rename(mapping)
	}
	return out, nil
}

// Concat stacks the tables, taking the union of their columns
type Concat struct{}

// Join implements JoinMethod
func (Concat) Join(_ context.Context, tables []*table.Table) (*table.Table, error) {
	if len(tables) == 0 {
		return nil, table.ErrEmptyTable
	}
	return table.Concat(tables...), nil
}

// BucketJoin loads the selected blobs of a bucket concurrently, joins them
// and runs Processors over the result.
type BucketJoin struct {
	Name       string
	Lister     storage.Lister
	Loader     storage.Loader
	Saver      storage.Saver
	Include    []string
	Exclude    []string
	Method     JoinMethod
	Processors []processing.Processor
	// Concurrency bounds parallel loads; zero or less loads one at a time
	Concurrency int
	Options     []processing.Option
	Logger      *slog.Logger
}

// Run joins bucket and saves to out when it names a blob. An empty
// out.Bucket saves back into the source bucket.
func (j *BucketJoin) Run(ctx context.Context, bucket string, out Location) (*table.Table, error) {
	if j.Method == nil {
		return nil, fmt.Errorf("bucket join %s has no join method", j.Name)
	}
	logger := loggerOr(j.Logger).With(slog.String("pipeline", j.Name))

	names, err := j.Lister.List(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	selected := storage.Filter(names, j.Include, j.Exclude)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoBlobs, bucket)
	}
	logger.InfoContext(ctx, "joining blobs",
		slog.String("bucket", bucket), slog.Int("blobs", len(selected)))

	tables, err := loadAll(ctx, j.Loader, bucket, selected, j.Concurrency)
	if err != nil {
		return nil, err
	}
	joined, err := j.Method.Join(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("failed to join %s: %w", bucket, err)
	}
	joined, err = compose(ctx, j.Name, j.Processors, j.Options, joined)
	if err != nil {
		return nil, err
	}

	if out.Bucket == "" {
		out.Bucket = bucket
	}
	if j.Saver != nil && out.Set() {
		if err := j.Saver.Save(ctx, joined, out.Bucket, out.Blob); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", out, err)
		}
		logger.InfoContext(ctx, "saved joined table",
			slog.String("target", out.String()), slog.Int("rows", joined.Len()))
	}
	return joined, nil
}

// loadAll loads blobs keeping their order
func loadAll(ctx context.Context, loader storage.Loader, bucket string, blobs []string, limit int) ([]*table.Table, error) {
	if limit <= 0 {
		limit = 1
	}
	tables := make([]*table.Table, len(blobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, blob := range blobs {
		g.Go(func() error {
			t, err := loader.Load(gctx, bucket, blob)
			if err != nil {
				return fmt.Errorf("failed to load %s/%s: %w", bucket, blob, err)
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

// Merge joins a stored table with another table, stored or given
type Merge struct {
	Name       string
	Loader     storage.Loader
	Saver      storage.Saver
	Method     JoinMethod
	Processors []processing.Processor
	Options    []processing.Option
}

// Run merges left with right. When rightTable is nil the right side is
// loaded from right.
func (m *Merge) Run(ctx context.Context, left Location, right Location, rightTable *table.Table, out Location) (*table.Table, error) {
	l, err := m.Loader.Load(ctx, left.Bucket, left.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", left, err)
	}
	r := rightTable
	if r == nil {
		if r, err = m.Loader.Load(ctx, right.Bucket, right.Blob); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", right, err)
		}
	}
	joined, err := m.Method.Join(ctx, []*table.Table{l, r})
	if err != nil {
		return nil, fmt.Errorf("failed to merge %s: %w", m.Name, err)
	}
	joined, err = compose(ctx, m.Name, m.Processors, m.Options, joined)
	if err != nil {
		return nil, err
	}
	if m.Saver != nil && out.Set() {
		if err := m.Saver.Save(ctx, joined, out.Bucket, out.Blob); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", out, err)
		}
	}
	return joined, nil
}
