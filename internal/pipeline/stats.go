package pipeline

import (
	"context"
	"log/slog"

	"valuepulse/internal/processing"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

// Blob names produced by the joins
const (
	TopFiveBlob   = "top_5_league_values_wages.csv"
	ForwardsBlob  = "forwards.csv"
	StandardBlob  = "standard.csv"
	StandardStats = "processed_standard.csv"
)

// ForwardsStatsBlobs are the processed fbref tables describing attackers
var ForwardsStatsBlobs = []string{
	"processed_shooting.csv",
	"processed_gca.csv",
	"processed_passing.csv",
	"processed_passing_types.csv",
}

var statsKeys = []string{"player", "season", "squad"}

// JoinDeps are the shared dependencies of the stored joins
type JoinDeps struct {
	Store       storage.Store
	Concurrency int
	Options     []processing.Option
	Logger      *slog.Logger
}

// AllValuesWages stacks every league's joined wages and valuations into
// one table saved as TopFiveBlob.
func AllValuesWages(ctx context.Context, deps JoinDeps) (*table.Table, error) {
	join := &BucketJoin{
		Name:        "all_values_wages",
		Lister:      deps.Store,
		Loader:      deps.Store,
		Saver:       deps.Store,
		Exclude:     []string{TopFiveBlob},
		Method:      Concat{},
		Concurrency: deps.Concurrency,
		Options:     deps.Options,
		Logger:      deps.Logger,
	}
	return join.Run(ctx, storage.BucketJoinedWagesValues, Location{Blob: TopFiveBlob})
}

// ForwardsStats joins the attacking stat tables with the league wide wages
// and valuations and saves wage_vals_stats/forwards.csv. Columns present in
// more than one input are taken from the first table holding them.
func ForwardsStats(ctx context.Context, deps JoinDeps) (*table.Table, error) {
	method := MultiJoin{Keys: statsKeys, Suffixes: [2]string{"", "_x"}, DropOverlap: true}
	stats, err := (&BucketJoin{
		Name:        "forwards_stats",
		Lister:      deps.Store,
		Loader:      deps.Store,
		Include:     ForwardsStatsBlobs,
		Method:      method,
		Concurrency: deps.Concurrency,
		Options:     deps.Options,
		Logger:      deps.Logger,
	}).Run(ctx, storage.BucketProcessedFbref, Location{})
	if err != nil {
		return nil, err
	}
	merge := &Merge{Name: "forwards", Loader: deps.Store, Saver: deps.Store, Method: method, Options: deps.Options}
	return merge.Run(ctx,
		Location{Bucket: storage.BucketJoinedWagesValues, Blob: TopFiveBlob},
		Location{}, stats,
		Location{Bucket: storage.BucketWageValsStats, Blob: ForwardsBlob})
}

// StandardStatsJoin joins the standard stat table with the league wide wages
// and valuations and saves wage_vals_stats/standard.csv.
func StandardStatsJoin(ctx context.Context, deps JoinDeps) (*table.Table, error) {
	merge := &Merge{
		Name:       "standard",
		Loader:     deps.Store,
		Saver:      deps.Store,
		Method:     MultiJoin{Keys: statsKeys, Suffixes: [2]string{"", "_stats"}},
		Processors: []processing.Processor{processing.FilterColumns{NotLike: "_stats"}},
		Options:    deps.Options,
	}
	return merge.Run(ctx,
		Location{Bucket: storage.BucketJoinedWagesValues, Blob: TopFiveBlob},
		Location{Bucket: storage.BucketProcessedFbref, Blob: StandardStats}, nil,
		Location{Bucket: storage.BucketWageValsStats, Blob: StandardBlob})
}
