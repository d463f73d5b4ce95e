package processing

import (
	"strings"

	"valuepulse/internal/table"
)

// OutsideTopFive labels signings from clubs outside the five big leagues
const OutsideTopFive = "outside_top_5"

// YouthSigning labels players who came through the club's own youth teams
const YouthSigning = "youth_signing"

// leagueClubs lists the fbref club names per league, checked in order
var leagueClubs = []struct {
	league string
	clubs  []string
}{
	{"premier_league", []string{
		"Arsenal", "Chelsea", "Manchester Utd", "Manchester City", "Southampton",
		"Liverpool", "West Brom", "Crystal Palace", "Everton", "West Ham",
		"Tottenham", "Leicester City", "Swansea City", "Watford", "Stoke City",
		"Bournemouth", "Huddersfield", "Burnley", "Newcastle Utd", "Brighton",
		"Fulham", "Wolves", "Cardiff City", "Aston Villa", "Sheffield Utd",
		"Norwich City", "Leeds United", "Brentford", "Nott'ham Forest",
	}},
	{"bundesliga", []string{
		"Bayern Munich", "Dortmund", "Wolfsburg", "Schalke 04", "Leverkusen",
		"Hoffenheim", "RB Leipzig", "Hamburger SV", "Werder Bremen", "Köln",
		"Hertha BSC", "Eint Frankfurt", "Stuttgart", "Augsburg", "Freiburg",
		"Mainz 05", "Düsseldorf", "Nürnberg", "Union Berlin", "Paderborn 07",
		"Arminia", "Bochum", "Greuther Fürth",
	}},
	{"la_liga", []string{
		"Barcelona", "Real Madrid", "Atlético Madrid", "Levante", "Sevilla",
		"Valencia", "Villarreal", "Athletic Club", "Las Palmas", "Espanyol",
		"Real Sociedad", "Celta Vigo", "Girona", "La Coruña", "Getafe", "Eibar",
		"Alavés", "Leganés", "Rayo Vallecano", "Huesca", "Granada", "Osasuna",
		"Mallorca", "Elche", "Almería",
	}},
	{"serie_a", []string{
		"Milan", "Juventus", "Inter", "Roma", "Napoli", "Lazio", "Genoa",
		"Bologna", "Atalanta", "Torino", "Benevento", "Fiorentina", "Cagliari",
		"Udinese", "Hellas Verona", "Chievo", "Crotone", "Parma", "Frosinone",
		"Empoli", "Brescia", "Lecce", "Spezia", "Venezia", "Sampdoria", "Monza",
		"Salernitana", "Cremonese",
	}},
	{"ligue_1", []string{
		"Paris S-G", "Monaco", "Marseille", "Saint-Étienne", "Amiens", "Lyon",
		"Toulouse", "Lille", "Rennes", "Dijon", "Bordeaux", "Nantes",
		"Strasbourg", "Metz", "Guingamp", "Montpellier", "Caen", "Angers",
		"Troyes", "Reims", "Brest", "Lens", "Lorient", "Nîmes", "Clermont Foot",
		"Auxerre", "Ajaccio",
	}},
}

// YouthPlayer returns "True" when the first word of the player's squad
// appears in the club they were signed from, "False" otherwise or when
// either is missing.
func YouthPlayer(r table.Row) any {
	squad, signedFrom := r.Get("squad"), r.Get("signed_from")
	if table.IsNull(squad) || table.IsNull(signedFrom) {
		return "False"
	}
	words := strings.Fields(table.ToString(squad))
	if len(words) == 0 {
		return "False"
	}
	if strings.Contains(table.ToString(signedFrom), words[0]) {
		return "True"
	}
	return "False"
}

// PenaltyTaker reports whether the player attempted a penalty
func PenaltyTaker(r table.Row) any {
	n, ok := r.Float("penalty_kicks_attempted")
	return ok && n > 0
}

// YearsSinceSigned is season minus signed_year, null when either is missing
func YearsSinceSigned(r table.Row) any {
	season, ok := r.Float("season")
	if !ok {
		return nil
	}
	signed, ok := r.Float("signed_year")
	if !ok {
		return nil
	}
	return season - signed
}

// LeagueSignedFrom names the top-five league of the selling club. Youth
// products get YouthSigning; clubs not listed get OutsideTopFive.
func LeagueSignedFrom(r table.Row) any {
	squad, signedFrom := r.Get("squad"), r.Get("signed_from")
	if table.IsNull(squad) || table.IsNull(signedFrom) {
		return "False"
	}
	if Truthy(r.Get("is_youth_player")) {
		return YouthSigning
	}
	from := strings.TrimSpace(table.ToString(signedFrom))
	for _, l := range leagueClubs {
		for _, club := range l.clubs {
			if from == club || strings.HasPrefix(from, club+" ") {
				return l.league
			}
		}
	}
	return OutsideTopFive
}

// YouthPlayerFeature adds is_youth_player
func YouthPlayerFeature() Processor { return Apply{Column: "is_youth_player", Fn: YouthPlayer} }

// PenaltyTakerFeature adds is_penalty_taker
func PenaltyTakerFeature() Processor { return Apply{Column: "is_penalty_taker", Fn: PenaltyTaker} }

// YearsSinceSignedFeature adds years_since_signed
func YearsSinceSignedFeature() Processor {
	return Apply{Column: "years_since_signed", Fn: YearsSinceSigned}
}

// LeagueSignedFromFeature adds league_signed_from
func LeagueSignedFromFeature() Processor {
	return Apply{Column: "league_signed_from", Fn: LeagueSignedFrom}
}
