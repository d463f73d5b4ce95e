package cleaning

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"valuepulse/internal/processing"
	"valuepulse/internal/statistics"
	"valuepulse/internal/table"
)

// SignedYear extracts the year from a signed_date such as "Jul 1, 2019"
func SignedYear(r table.Row) any {
	v := r.Get("signed_date")
	if table.IsNull(v) {
		return nil
	}
	fields := strings.Split(table.ToString(v), " ")
	if len(fields) < 3 {
		return nil
	}
	year, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return nil
	}
	return float64(year)
}

// SignedYearFeature adds signed_year from signed_date
func SignedYearFeature() processing.Processor {
	return processing.Apply{Column: "signed_year", Fn: SignedYear}
}

// BuildPlayerIDs numbers players from 1 in first-seen order. Built from the
// fbref standard table, the ids are the key shared by fbref and
// transfermarkt tables.
func BuildPlayerIDs(players []any) map[string]int {
	ids := make(map[string]int)
	for _, p := range players {
		if table.IsNull(p) {
			continue
		}
		name := table.ToString(p)
		if _, ok := ids[name]; !ok {
			ids[name] = len(ids) + 1
		}
	}
	return ids
}

// PlayerID writes player_id from a name to id mapping. Unknown players get
// a null id.
type PlayerID struct {
	IDs map[string]int
}

func (p PlayerID) Name() string { return "player_id" }

func (p PlayerID) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	if err := t.Require("player"); err != nil {
		return nil, err
	}
	return processing.Apply{Column: "player_id", Fn: func(r table.Row) any {
		if id, ok := p.IDs[r.String("player")]; ok {
			return float64(id)
		}
		return nil
	}}.Transform(ctx, t)
}

// FilterTeams removes Hannover 96 from Bundesliga valuations, which has no
// matching wages data.
type FilterTeams struct{}

func (FilterTeams) Name() string { return "filter_teams" }

func (FilterTeams) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	if firstLeague(t) != "bundesliga" {
		return t.Clone(), nil
	}
	return processing.FilterRows{Column: "squad", Exclude: []any{"hannover-96"}}.Transform(ctx, t)
}

var transfermarktPrefixes = map[string]*regexp.Regexp{
	"premier_league": regexp.MustCompile(`^(a?fc)-`),
	"la_liga":        regexp.MustCompile(`^(fc|sd|rcd|ca|ud|cd|deportivo)-`),
	"bundesliga":     regexp.MustCompile(`^(1-fc|fc|1-fsv|sv|vfb|sc|vfl|spvgg|tsg-1899|borussia|bayer-04|fortuna)-`),
	"serie_a":        regexp.MustCompile(`^(ac|as|fc|ssc|us)-`),
	"ligue_1":        regexp.MustCompile(`^(fc-stade|stade|as|ogc|es|aj|ac|sm|ea|rc|fc-girondins|fc|sco|olympique|losc)-`),
}

// RenameTransfermarktTeams strips club-type prefixes ("fc-", "vfl-") from
// transfermarkt squad slugs. Leagues without a pattern use the ligue_1 one.
type RenameTransfermarktTeams struct{}

func (RenameTransfermarktTeams) Name() string { return "rename_transfermarkt_teams" }

func (RenameTransfermarktTeams) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if err := t.Require("squad"); err != nil {
		return nil, err
	}
	re, ok := transfermarktPrefixes[firstLeague(t)]
	if !ok {
		re = transfermarktPrefixes["ligue_1"]
	}
	out := t.Clone()
	for i := 0; i < out.Len(); i++ {
		v := out.Get(i, "squad")
		if s, ok := v.(string); ok {
			out.Set(i, "squad", re.ReplaceAllString(s, ""))
		}
	}
	return out, nil
}

// BuildTeamMap pairs the sorted unique valuation team names with the
// sorted unique wage squad names. Both sides must list the same number of
// teams.
func BuildTeamMap(valueTeams, wageSquads []any) (map[string]string, error) {
	from := sortedUnique(valueTeams)
	to := sortedUnique(wageSquads)
	if len(from) != len(to) {
		return nil, fmt.Errorf("%w: %d valuation teams vs %d wage squads",
			processing.ErrInvalidParams, len(from), len(to))
	}
	m := make(map[string]string, len(from))
	for i := range from {
		m[from[i]] = to[i]
	}
	return m, nil
}

func sortedUnique(values []any) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if table.IsNull(v) {
			continue
		}
		s := table.ToString(v)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// MapTeamNames rewrites Column through Mapping. Unmapped names become null.
type MapTeamNames struct {
	Column  string
	Mapping map[string]string
}

func (p MapTeamNames) Name() string { return "map_team_names" }

func (p MapTeamNames) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	col := p.Column
	if col == "" {
		col = "team"
	}
	if err := t.Require(col); err != nil {
		return nil, err
	}
	return processing.Apply{Column: col, Fn: func(r table.Row) any {
		if to, ok := p.Mapping[r.String(col)]; ok {
			return to
		}
		return nil
	}}.Transform(ctx, t)
}

// ForeignPct is the share of foreign players in the squad, as a percentage
// rounded to two decimals.
func ForeignPct(r table.Row) any {
	foreigners, ok := r.Float("squad_foreigners")
	if !ok {
		return nil
	}
	size, ok := r.Float("squad_size")
	if !ok || size == 0 {
		return nil
	}
	return statistics.Round(foreigners/size*100, 2)
}

// ForeignPctFeature adds foreigner_pct
func ForeignPctFeature() processing.Processor {
	return processing.Apply{Column: "foreigner_pct", Fn: ForeignPct}
}

// TeamSeason labels a row "team - season"
func TeamSeason(r table.Row) any {
	team, season := r.Get("team"), r.Get("season")
	if table.IsNull(team) || table.IsNull(season) {
		return nil
	}
	return table.ToString(team) + " - " + table.ToString(season)
}

// TeamSeasonFeature adds team_season
func TeamSeasonFeature() processing.Processor {
	return processing.Apply{Column: "team_season", Fn: TeamSeason}
}
