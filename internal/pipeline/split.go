package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

// DefaultSplitSeed seeds the validation/test shuffle
const DefaultSplitSeed = 42

// SplitOptions configures TrainValidTestSplit
type SplitOptions struct {
	Season     int
	StratifyBy string
	Seed       uint64
}

// Split holds the outputs of TrainValidTestSplit. ValidTest is the held
// out season before it is halved.
type Split struct {
	Train     *table.Table
	Valid     *table.Table
	Test      *table.Table
	ValidTest *table.Table
}

// TrainValidTestSplit trains on every season except opts.Season and splits
// that season in half between validation and test, stratified by
// opts.StratifyBy (position by default). Test receives the extra row of an
// odd sized season. Rows keep their input order within each output.
func TrainValidTestSplit(t *table.Table, opts SplitOptions) (*Split, error) {
	if t == nil || t.Empty() {
		return nil, fmt.Errorf("split: %w", table.ErrEmptyTable)
	}
	if opts.StratifyBy == "" {
		opts.StratifyBy = "position"
	}
	if err := t.Require("season", opts.StratifyBy); err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	season := float64(opts.Season)
	train := t.Filter(func(r table.Row) bool { return !table.Equal(r.Get("season"), season) })
	held := t.Filter(func(r table.Row) bool { return table.Equal(r.Get("season"), season) })
	if held.Empty() {
		return nil, fmt.Errorf("split: no rows for season %d", opts.Season)
	}

	strata := make(map[string][]int)
	for i := 0; i < held.Len(); i++ {
		k := table.ToString(held.Get(i, opts.StratifyBy))
		strata[k] = append(strata[k], i)
	}
	keys := make([]string, 0, len(strata))
	for k := range strata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// odd strata take turns giving their extra row to test until the test
	// half reaches ceil(n/2)
	testTotal := (held.Len() + 1) / 2
	allocated := 0
	quota := make(map[string]int, len(keys))
	for _, k := range keys {
		quota[k] = len(strata[k]) / 2
		allocated += quota[k]
	}
	for _, k := range keys {
		if allocated >= testTotal {
			break
		}
		if len(strata[k])%2 == 1 {
			quota[k]++
			allocated++
		}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	var validIdx, testIdx []int
	for _, k := range keys {
		idx := append([]int(nil), strata[k]...)
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		testIdx = append(testIdx, idx[:quota[k]]...)
		validIdx = append(validIdx, idx[quota[k]:]...)
	}
	sort.Ints(validIdx)
	sort.Ints(testIdx)

	return &Split{
		Train:     train,
		Valid:     held.Take(validIdx),
		Test:      held.Take(testIdx),
		ValidTest: held,
	}, nil
}

// SplitBlobs are the blob names a split is saved under
func SplitBlobs(season int) (train, valid, test, validTest string) {
	return fmt.Sprintf("train_set_2017_%d.csv", season-1),
		fmt.Sprintf("valid_set_%d.csv", season),
		fmt.Sprintf("test_set_%d.csv", season),
		fmt.Sprintf("valid_test_set_%d.csv", season)
}

// Save writes the split to the training, validation and test buckets
func (s *Split) Save(ctx context.Context, saver storage.Saver, season int) error {
	train, valid, test, validTest := SplitBlobs(season)
	outputs := []struct {
		t      *table.Table
		bucket string
		blob   string
	}{
		{s.Train, storage.BucketTraining, train},
		{s.Valid, storage.BucketValidation, valid},
		{s.Test, storage.BucketTest, test},
		{s.ValidTest, storage.BucketTest, validTest},
	}
	for _, o := range outputs {
		if err := saver.Save(ctx, o.t, o.bucket, o.blob); err != nil {
			return fmt.Errorf("failed to save %s/%s: %w", o.bucket, o.blob, err)
		}
	}
	return nil
}
