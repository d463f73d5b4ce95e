package cleaning

import (
	"context"
	"strings"

	"valuepulse/internal/processing"
	"valuepulse/internal/table"
)

// Unknown labels values that cannot be classified
const Unknown = "Unknown"

// GeneralPosition maps an fbref position code such as "DF" or "FW,MF" to
// its broad group using the first letter.
func GeneralPosition(r table.Row) any {
	pos := r.Get("pos")
	if table.IsNull(pos) {
		return Unknown
	}
	s, ok := pos.(string)
	if !ok || s == "" {
		return Unknown
	}
	switch s[0] {
	case 'D':
		return "Defender"
	case 'M':
		return "Midfielder"
	case 'F':
		return "Forward"
	case 'G':
		return "Goalkeeper"
	}
	return Unknown
}

// AgeRange buckets the player's age into five-year bands
func AgeRange(r table.Row) any {
	age, ok := r.Float("age")
	if !ok {
		return nil
	}
	switch {
	case age < 20:
		return "Under 20"
	case age < 25:
		return "20-24"
	case age < 30:
		return "25-29"
	case age < 35:
		return "30-34"
	case age < 40:
		return "35-39"
	}
	return "Over 40"
}

// Country maps the fbref nation code to a country name. fbref sometimes
// prefixes the code with a lowercase flag code ("eng ENG"); the last token
// is used.
type Country struct {
	Codes map[string]string
}

func (p Country) Name() string { return "country" }

func (p Country) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	if err := t.Require("nation"); err != nil {
		return nil, err
	}
	return processing.Apply{Column: "country", Fn: func(r table.Row) any {
		nation := r.Get("nation")
		if table.IsNull(nation) {
			return nil
		}
		fields := strings.Fields(table.ToString(nation))
		if len(fields) == 0 {
			return nil
		}
		if name, ok := p.Codes[fields[len(fields)-1]]; ok {
			return name
		}
		return nil
	}}.Transform(ctx, t)
}

// ContinentFeature adds continent from the country column
func ContinentFeature() processing.Processor {
	return processing.Apply{Column: "continent", Fn: func(r table.Row) any {
		return Continent(r.Get("country"))
	}}
}

// GeneralPositionFeature adds general_pos from pos
func GeneralPositionFeature() processing.Processor {
	return processing.Apply{Column: "general_pos", Fn: GeneralPosition}
}

// AgeRangeFeature adds age_range from age
func AgeRangeFeature() processing.Processor {
	return processing.Apply{Column: "age_range", Fn: AgeRange}
}

var fbrefTeamFixes = map[string]map[string]string{
	"la_liga": {
		"Betis":      "Real Betis",
		"Valladolid": "Real Valladolid",
		"Málaga":     "Malaga",
		"Cádiz":      "Cadiz",
	},
	"bundesliga": {
		"M'Gladbach": "Monchengladbach",
	},
}

// RenameFbrefTeams aligns fbref squad names with transfermarkt spelling.
// The league is read from the first row of the league column when League
// is empty.
type RenameFbrefTeams struct {
	League string
}

func (p RenameFbrefTeams) Name() string { return "rename_fbref_teams" }

func (p RenameFbrefTeams) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if err := t.Require("squad"); err != nil {
		return nil, err
	}
	league := p.League
	if league == "" {
		league = firstLeague(t)
	}
	fixes, ok := fbrefTeamFixes[league]
	out := t.Clone()
	if !ok {
		return out, nil
	}
	for i := 0; i < out.Len(); i++ {
		if to, ok := fixes[table.ToString(out.Get(i, "squad"))]; ok {
			out.Set(i, "squad", to)
		}
	}
	return out, nil
}

// RedefineSeason turns a wages season such as "2021-2022" into its
// starting year.
type RedefineSeason struct{}

func (RedefineSeason) Name() string { return "redefine_season" }

func (RedefineSeason) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	if err := t.Require("season"); err != nil {
		return nil, err
	}
	return processing.Apply{Column: "season", Fn: func(r table.Row) any {
		v := r.Get("season")
		if table.IsNull(v) {
			return nil
		}
		start, _, _ := strings.Cut(table.ToString(v), "-")
		return table.ParseCell(start)
	}}.Transform(ctx, t)
}

func firstLeague(t *table.Table) string {
	if t.Len() == 0 || !t.HasColumn("league") {
		return ""
	}
	return table.ToString(t.Get(0, "league"))
}
