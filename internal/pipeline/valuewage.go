package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"valuepulse/internal/cleaning"
	"valuepulse/internal/processing"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

// LeaguePair names one league in the wages and the valuations datasets
type LeaguePair struct {
	Wage  string
	Value string
}

// LeaguePairs are the top five leagues
var LeaguePairs = []LeaguePair{
	{Wage: "Premier-League", Value: "premier_league"},
	{Wage: "Bundesliga", Value: "bundesliga"},
	{Wage: "La-Liga", Value: "la_liga"},
	{Wage: "Serie-A", Value: "serie_a"},
	{Wage: "Ligue-1", Value: "ligue_1"},
}

// WagesBlob is the processed wages blob of a league
func (p LeaguePair) WagesBlob() string { return "processed_" + p.Wage + "-wages.csv" }

// ValuesBlob is the processed valuations blob of a league
func (p LeaguePair) ValuesBlob() string { return "processed_" + p.Value + "_player_valuations.csv" }

// JoinedBlob is the joined output blob of a league
func (p LeaguePair) JoinedBlob() string { return p.Value + "_wages_values.csv" }

// FindLeaguePair looks a pair up by either name
func FindLeaguePair(name string) (LeaguePair, bool) {
	for _, p := range LeaguePairs {
		if p.Wage == name || p.Value == name {
			return p, true
		}
	}
	return LeaguePair{}, false
}

var (
	wageDropColumns  = []string{"nation", "pos", "notes", "rk", "general_pos", "country"}
	valueDropColumns = []string{"tm_id", "tm_name", "squad_num", "contract_expiry", "current_club", "signed_date"}
)

const (
	wageSuffix  = "_wage_df"
	valueSuffix = "_value_df"
)

// ValueWageJoin joins one league's wages with its player valuations
type ValueWageJoin struct {
	Loader  storage.Loader
	Saver   storage.Saver
	Options []processing.Option
	Logger  *slog.Logger
}

// Run joins every pair and saves each result to joined_wages_values
func (j *ValueWageJoin) Run(ctx context.Context, pairs []LeaguePair) (Result, error) {
	var res Result
	for _, pair := range pairs {
		joined, err := j.JoinPair(ctx, pair)
		if err != nil {
			return Result{}, err
		}
		loc := Location{Bucket: storage.BucketJoinedWagesValues, Blob: pair.JoinedBlob()}
		if err := j.Saver.Save(ctx, joined, loc.Bucket, loc.Blob); err != nil {
			return Result{}, fmt.Errorf("failed to save %s: %w", loc, err)
		}
		res.add(loc, joined.Len())
	}
	return res, nil
}

// JoinPair loads and joins one league
func (j *ValueWageJoin) JoinPair(ctx context.Context, pair LeaguePair) (*table.Table, error) {
	logger := loggerOr(j.Logger).With(slog.String("league", pair.Value))
	logger.InfoContext(ctx, "joining wages and valuations")

	wages, err := j.Loader.Load(ctx, storage.BucketProcessedFbref, pair.WagesBlob())
	if err != nil {
		return nil, fmt.Errorf("failed to load wages for %s: %w", pair.Wage, err)
	}
	values, err := j.Loader.Load(ctx, storage.BucketProcessedTransfermarkt, pair.ValuesBlob())
	if err != nil {
		return nil, fmt.Errorf("failed to load valuations for %s: %w", pair.Value, err)
	}
	joined, err := JoinWagesValues(ctx, wages, values, pair.Value, j.Options...)
	if err != nil {
		return nil, fmt.Errorf("league %s: %w", pair.Value, err)
	}
	logger.InfoContext(ctx, "joined wages and valuations",
		slog.Int("wages", wages.Len()), slog.Int("values", values.Len()), slog.Int("rows", joined.Len()))
	return joined, nil
}

// JoinWagesValues cleans both sides for league, maps valuation team names
// onto wage squad names and inner-joins on player, season and squad. The
// valuations side may carry its team as either team or squad.
func JoinWagesValues(ctx context.Context, wages, values *table.Table, league string, opts ...processing.Option) (*table.Table, error) {
	wages, err := processing.NewComposer("wages_"+league, []processing.Processor{
		cleaning.RenameFbrefTeams{League: league},
		cleaning.RedefineSeason{},
		processing.DropColumns{Columns: wageDropColumns},
	}, opts...).Transform(ctx, wages)
	if err != nil {
		return nil, err
	}

	if values.HasColumn("team") && !values.HasColumn("squad") {
		if values, err = values.Rename(map[string]string{"team": "squad"}); err != nil {
			return nil, err
		}
	}
	if !values.HasColumn("league") {
		values = values.Clone()
		values.AddColumn("league", league)
	}
	values, err = processing.NewComposer("values_"+league, []processing.Processor{
		cleaning.FilterTeams{},
		cleaning.RenameTransfermarktTeams{},
		processing.DropColumns{Columns: valueDropColumns},
	}, opts...).Transform(ctx, values)
	if err != nil {
		return nil, err
	}

	valueTeams, err := values.Column("squad")
	if err != nil {
		return nil, err
	}
	wageSquads, err := wages.Column("squad")
	if err != nil {
		return nil, err
	}
	teamMap, err := cleaning.BuildTeamMap(valueTeams, wageSquads)
	if err != nil {
		return nil, err
	}
	values, err = processing.NewComposer("map_teams_"+league, []processing.Processor{
		cleaning.MapTeamNames{Column: "squad", Mapping: teamMap},
		processing.Rename{Mapping: map[string]string{"squad": "team"}},
	}, opts...).Transform(ctx, values)
	if err != nil {
		return nil, err
	}

	joined, err := table.Merge(wages, values, table.MergeOptions{
		LeftOn:   []string{"player", "season", "squad"},
		RightOn:  []string{"player", "season", "team"},
		Suffixes: [2]string{wageSuffix, valueSuffix},
	})
	if err != nil {
		return nil, err
	}
	return processing.NewComposer("sort_joined_"+league, []processing.Processor{
		processing.FilterColumns{NotLike: valueSuffix},
		processing.StripSuffix{Suffix: wageSuffix},
		processing.DropColumns{Columns: []string{"team"}},
	}, opts...).Transform(ctx, joined)
}
