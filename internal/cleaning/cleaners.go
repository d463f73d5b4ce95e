// Package cleaning provides the source specific steps that turn raw fbref
// and transfermarkt exports into joinable player tables.
package cleaning

import (
	"errors"
	"fmt"

	"valuepulse/internal/processing"
)

// Source identifies a raw dataset family
type Source string

const (
	FbrefStats           Source = "fbref_stats"
	FbrefWages           Source = "fbref_wages"
	TransfermarktPlayers Source = "transfermarkt_players"
	TransfermarktTeams   Source = "transfermarkt_teams"
)

// Sources lists every supported source
var Sources = []Source{FbrefStats, FbrefWages, TransfermarktPlayers, TransfermarktTeams}

// ErrUnknownSource is returned for sources without a cleaning chain
var ErrUnknownSource = errors.New("unknown source")

// Resources are lookup tables some cleaners need. PlayerIDs is optional and
// adds player_id to fbref stats and transfermarkt players; FIFACodes is
// required for fbref stats.
type Resources struct {
	FIFACodes map[string]string
	PlayerIDs map[string]int
}

var transfermarktDropColumns = []string{
	"tm_id", "tm_name", "squad_num", "contract_expiry", "current_club", "signed_date",
}

// Steps returns the cleaning chain for a source. League selects team name
// fixes where they differ per league.
func Steps(source Source, league string, res Resources) ([]processing.Processor, error) {
	switch source {
	case FbrefStats:
		if len(res.FIFACodes) == 0 {
			return nil, fmt.Errorf("%w: fbref stats need FIFA codes", processing.ErrInvalidParams)
		}
		steps := []processing.Processor{
			GeneralPositionFeature(),
			AgeRangeFeature(),
			Country{Codes: res.FIFACodes},
			ContinentFeature(),
		}
		if len(res.PlayerIDs) > 0 {
			steps = append(steps, PlayerID{IDs: res.PlayerIDs})
		}
		return steps, nil
	case FbrefWages:
		return []processing.Processor{
			RenameFbrefTeams{League: league},
			RedefineSeason{},
		}, nil
	case TransfermarktPlayers:
		steps := []processing.Processor{
			SignedYearFeature(),
			processing.GroupbyImputer{
				Features: []string{"height"},
				GroupBy:  []string{"league"},
				Strategy: processing.StrategyMedian,
			},
		}
		if len(res.PlayerIDs) > 0 {
			steps = append(steps, PlayerID{IDs: res.PlayerIDs})
		}
		return append(steps,
			processing.Rename{Mapping: map[string]string{"team": "squad"}},
			FilterTeams{},
			RenameTransfermarktTeams{},
			processing.DropColumns{Columns: transfermarktDropColumns},
		), nil
	case TransfermarktTeams:
		return []processing.Processor{
			TeamSeasonFeature(),
			ForeignPctFeature(),
			processing.Rename{Mapping: map[string]string{"team": "squad"}},
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
}

// LeagueCleaners returns the composer cleaning one source for one league
func LeagueCleaners(source Source, league string, res Resources, opts ...processing.Option) (*processing.Composer, error) {
	steps, err := Steps(source, league, res)
	if err != nil {
		return nil, err
	}
	name := "clean_" + string(source)
	if league != "" {
		name += "_" + league
	}
	return processing.NewComposer(name, steps, opts...), nil
}

// RegisterSteps adds the source specific steps to a registry so YAML
// definitions can use them. Steps needing resources are only registered
// when the resource is present.
func RegisterSteps(reg *processing.Registry, res Resources) error {
	static := map[string]processing.Processor{
		"general_position":           GeneralPositionFeature(),
		"age_range":                  AgeRangeFeature(),
		"continent":                  ContinentFeature(),
		"redefine_season":            RedefineSeason{},
		"signed_year":                SignedYearFeature(),
		"filter_teams":               FilterTeams{},
		"rename_transfermarkt_teams": RenameTransfermarktTeams{},
		"foreign_pct":                ForeignPctFeature(),
		"team_season":                TeamSeasonFeature(),
	}
	for kind, p := range static {
		p := p
		if err := reg.Register(kind, func(processing.Params) (processing.Processor, error) { return p, nil }); err != nil {
			return err
		}
	}
	err := reg.Register("rename_fbref_teams", func(p processing.Params) (processing.Processor, error) {
		return RenameFbrefTeams{League: p.OptionalString("league")}, nil
	})
	if err != nil {
		return err
	}
	if len(res.FIFACodes) > 0 {
		if err := reg.Register("country", func(processing.Params) (processing.Processor, error) {
			return Country{Codes: res.FIFACodes}, nil
		}); err != nil {
			return err
		}
	}
	if len(res.PlayerIDs) > 0 {
		if err := reg.Register("player_id", func(processing.Params) (processing.Processor, error) {
			return PlayerID{IDs: res.PlayerIDs}, nil
		}); err != nil {
			return err
		}
	}
	return nil
}
