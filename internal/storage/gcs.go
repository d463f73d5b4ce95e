package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"valuepulse/internal/table"
)

// GCSOptions configures the Cloud Storage client
type GCSOptions struct {
	Project     string
	Credentials string
	// Endpoint points the client at an emulator; authentication is
	// disabled when it is set.
	Endpoint string
}

// GCSStore reads and writes CSV objects where bucket is the Cloud Storage
// bucket and blob the object name.
type GCSStore struct {
	client  *gcs.Client
	project string
}

// NewGCSStore creates a Cloud Storage client. Close releases it.
func NewGCSStore(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	var clientOpts []option.ClientOption
	if opts.Credentials != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.Credentials))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, project: opts.Project}, nil
}

// Close closes the underlying client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Load downloads bucket/blob and parses it as CSV
func (s *GCSStore) Load(ctx context.Context, bucket, blob string) (*table.Table, error) {
	if err := validate(bucket, blob); err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(bucket).Object(blob).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, bucket, blob)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, blob, err)
	}
	defer r.Close()
	t, err := table.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, blob, err)
	}
	return t, nil
}

// Save uploads t as a CSV object. The object only becomes visible once the
// writer is closed without error.
func (s *GCSStore) Save(ctx context.Context, t *table.Table, bucket, blob string) error {
	if err := validate(bucket, blob); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(bucket).Object(blob).NewWriter(ctx)
	w.ContentType = "text/csv"
	if err := table.WriteCSV(w, t); err != nil {
		// cancelling before Close aborts the upload
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucket, blob, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload gs://%s/%s: %w", bucket, blob, err)
	}
	return nil
}

// List returns every object name in bucket, sorted
func (s *GCSStore) List(ctx context.Context, bucket string) ([]string, error) {
	if err := ValidateName("bucket", bucket); err != nil {
		return nil, err
	}
	it := s.client.Bucket(bucket).Objects(ctx, nil)
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			if errors.Is(err, gcs.ErrBucketNotExist) {
				return nil, fmt.Errorf("%w: bucket %s", ErrNotFound, bucket)
			}
			return nil, fmt.Errorf("failed to list gs://%s: %w", bucket, err)
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)
	return names, nil
}

// EnsureBucket creates bucket in the configured project. An existing
// bucket is not an error.
func (s *GCSStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := ValidateName("bucket", bucket); err != nil {
		return err
	}
	if s.project == "" {
		return fmt.Errorf("creating bucket %s needs a GCP project", bucket)
	}
	err := s.client.Bucket(bucket).Create(ctx, s.project, nil)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}
