package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"valuepulse/internal/table"
)

// FSStore keeps each bucket as a directory under Root and each blob as a
// CSV file inside it.
type FSStore struct {
	Root string
}

// NewFSStore returns a store rooted at root. The directory is created on
// first save.
func NewFSStore(root string) *FSStore {
	return &FSStore{Root: root}
}

func (s *FSStore) path(bucket, blob string) string {
	return filepath.Join(s.Root, bucket, filepath.FromSlash(blob))
}

// Load reads bucket/blob as CSV
func (s *FSStore) Load(ctx context.Context, bucket, blob string) (*table.Table, error) {
	if err := validate(bucket, blob); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(bucket, blob))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, blob)
		}
		return nil, fmt.Errorf("failed to open %s/%s: %w", bucket, blob, err)
	}
	defer f.Close()
	t, err := table.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, blob, err)
	}
	return t, nil
}

// Save writes t to bucket/blob. The file is written to a temporary name
// first and renamed into place, so readers never see a partial file.
func (s *FSStore) Save(ctx context.Context, t *table.Table, bucket, blob string) error {
	if err := validate(bucket, blob); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.path(bucket, blob)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := table.WriteCSV(tmp, t); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s/%s: %w", bucket, blob, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s/%s: %w", bucket, blob, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move %s/%s into place: %w", bucket, blob, err)
	}
	return nil
}

// List returns the CSV blob names in bucket, sorted. Temporary files and
// subdirectories are skipped.
func (s *FSStore) List(ctx context.Context, bucket string) ([]string, error) {
	if err := ValidateName("bucket", bucket); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.Root, bucket))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: bucket %s", ErrNotFound, bucket)
		}
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// EnsureBucket creates the bucket directory
func (s *FSStore) EnsureBucket(_ context.Context, bucket string) error {
	if err := ValidateName("bucket", bucket); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.Root, bucket), 0o755); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}
