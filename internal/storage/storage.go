// Package storage loads and saves tables by bucket and blob name.
//
// The same bucket/blob addressing works across backends: a directory tree
// on disk, Google Cloud Storage objects, or Postgres tables where the bucket
// is a schema and the blob a table.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"valuepulse/internal/table"
)

var (
	// ErrNotFound is returned when a bucket or blob does not exist
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidName is returned for bucket or blob names that escape
	// their namespace
	ErrInvalidName = errors.New("invalid bucket or blob name")
)

// Loader reads a table
type Loader interface {
	Load(ctx context.Context, bucket, blob string) (*table.Table, error)
}

// Saver writes a table
type Saver interface {
	Save(ctx context.Context, t *table.Table, bucket, blob string) error
}

// Lister lists blob names in a bucket, sorted
type Lister interface {
	List(ctx context.Context, bucket string) ([]string, error)
}

// Store combines every storage capability
type Store interface {
	Loader
	Saver
	Lister
}

// Bucket names used by the pipelines
const (
	BucketFbref                  = "fbref_db"
	BucketProcessedFbref         = "processed_fbref_db"
	BucketTransfermarkt          = "transfermarkt_db"
	BucketProcessedTransfermarkt = "processed_transfermarkt_db"
	BucketJoinedWagesValues      = "joined_wages_values"
	BucketWageValsStats          = "wage_vals_stats"
	BucketPredictions            = "values_predictions"
	BucketTraining               = "values_training_data"
	BucketValidation             = "values_validation_data"
	BucketTest                   = "values_test_data"
)

// Buckets lists every known bucket
var Buckets = []string{
	BucketFbref, BucketProcessedFbref, BucketTransfermarkt,
	BucketProcessedTransfermarkt, BucketJoinedWagesValues, BucketWageValsStats,
	BucketPredictions, BucketTraining, BucketValidation, BucketTest,
}

// ValidateName rejects empty names and path traversal
func ValidateName(kind, name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	case strings.Contains(name, ".."), strings.ContainsAny(name, `\`+"\x00"):
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	case strings.HasPrefix(name, "/"):
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	}
	return nil
}

func validate(bucket, blob string) error {
	if err := ValidateName("bucket", bucket); err != nil {
		return err
	}
	return ValidateName("blob", blob)
}

// Filter keeps names listed in include, or every name when include is
// empty, then removes names listed in exclude. Matching is exact.
func Filter(names, include, exclude []string) []string {
	in := toSet(include)
	ex := toSet(exclude)
	var out []string
	for _, n := range names {
		if len(in) > 0 && !in[n] {
			continue
		}
		if ex[n] {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Match keeps names containing contains, when set, and not containing
// notContains, when set.
func Match(names []string, contains, notContains string) []string {
	var out []string
	for _, n := range names {
		if contains != "" && !strings.Contains(n, contains) {
			continue
		}
		if notContains != "" && strings.Contains(n, notContains) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
