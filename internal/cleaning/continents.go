package cleaning

import (
	"strings"

	"valuepulse/internal/table"
)

const (
	Africa       = "Africa"
	Asia         = "Asia"
	Europe       = "Europe"
	NorthAmerica = "North America"
	SouthAmerica = "South America"
	Oceania      = "Oceania"
)

// continentAliases catches names that vary between sources. Checked by
// substring before the exact lookup.
var continentAliases = []struct {
	fragment  string
	continent string
}{
	{"congo", Africa},
	{"ivory", Africa},
	{"côte d", Africa},
	{"ireland", Europe},
	{"verde", Africa},
	{"turkey", Asia},
	{"türkiye", Asia},
	{"korea", Asia},
	{"guinea", Africa},
}

var continents = map[string]string{
	// Europe
	"albania": Europe, "andorra": Europe, "austria": Europe, "belarus": Europe,
	"belgium": Europe, "bosnia and herzegovina": Europe, "bulgaria": Europe,
	"croatia": Europe, "czech republic": Europe, "czechia": Europe,
	"denmark": Europe, "england": Europe, "estonia": Europe,
	"faroe islands": Europe, "finland": Europe, "france": Europe,
	"germany": Europe, "gibraltar": Europe, "greece": Europe,
	"hungary": Europe, "iceland": Europe, "italy": Europe, "kosovo": Europe,
	"latvia": Europe, "liechtenstein": Europe, "lithuania": Europe,
	"luxembourg": Europe, "malta": Europe, "moldova": Europe,
	"montenegro": Europe, "netherlands": Europe, "north macedonia": Europe,
	"norway": Europe, "poland": Europe, "portugal": Europe,
	"romania": Europe, "russia": Europe, "san marino": Europe,
	"scotland": Europe, "serbia": Europe, "slovakia": Europe,
	"slovenia": Europe, "spain": Europe, "sweden": Europe,
	"switzerland": Europe, "ukraine": Europe, "wales": Europe,
	"united kingdom": Europe,

	// Asia, including the transcontinental states classed there
	"afghanistan": Asia, "armenia": Asia, "australia": Oceania,
	"azerbaijan": Asia, "bahrain": Asia, "bangladesh": Asia, "bhutan": Asia,
	"brunei": Asia, "cambodia": Asia, "china": Asia, "china pr": Asia,
	"cyprus": Asia, "georgia": Asia, "hong kong": Asia, "india": Asia,
	"indonesia": Asia, "iran": Asia, "iraq": Asia, "israel": Asia,
	"japan": Asia, "jordan": Asia, "kazakhstan": Asia, "kuwait": Asia,
	"kyrgyzstan": Asia, "laos": Asia, "lebanon": Asia, "macau": Asia,
	"malaysia": Asia, "maldives": Asia, "mongolia": Asia, "myanmar": Asia,
	"nepal": Asia, "oman": Asia, "pakistan": Asia, "palestine": Asia,
	"philippines": Asia, "qatar": Asia, "saudi arabia": Asia,
	"singapore": Asia, "sri lanka": Asia, "syria": Asia, "taiwan": Asia,
	"chinese taipei": Asia, "tajikistan": Asia, "thailand": Asia,
	"timor-leste": Asia, "turkmenistan": Asia, "united arab emirates": Asia,
	"uzbekistan": Asia, "vietnam": Asia, "yemen": Asia,

	// Africa
	"algeria": Africa, "angola": Africa, "benin": Africa, "botswana": Africa,
	"burkina faso": Africa, "burundi": Africa, "cameroon": Africa,
	"central african republic": Africa, "chad": Africa, "comoros": Africa,
	"djibouti": Africa, "egypt": Africa, "eritrea": Africa,
	"eswatini": Africa, "ethiopia": Africa, "gabon": Africa,
	"gambia": Africa, "ghana": Africa, "kenya": Africa, "lesotho": Africa,
	"liberia": Africa, "libya": Africa, "madagascar": Africa,
	"malawi": Africa, "mali": Africa, "mauritania": Africa,
	"mauritius": Africa, "morocco": Africa, "mozambique": Africa,
	"namibia": Africa, "niger": Africa, "nigeria": Africa, "rwanda": Africa,
	"senegal": Africa, "sierra leone": Africa, "somalia": Africa,
	"south africa": Africa, "south sudan": Africa, "sudan": Africa,
	"tanzania": Africa, "togo": Africa, "tunisia": Africa, "uganda": Africa,
	"zambia": Africa, "zimbabwe": Africa, "são tomé and príncipe": Africa,

	// North and Central America, Caribbean
	"antigua and barbuda": NorthAmerica, "bahamas": NorthAmerica,
	"barbados": NorthAmerica, "belize": NorthAmerica, "bermuda": NorthAmerica,
	"canada": NorthAmerica, "costa rica": NorthAmerica, "cuba": NorthAmerica,
	"curaçao": NorthAmerica, "dominica": NorthAmerica,
	"dominican republic": NorthAmerica, "el salvador": NorthAmerica,
	"grenada": NorthAmerica, "guadeloupe": NorthAmerica,
	"guatemala": NorthAmerica, "haiti": NorthAmerica,
	"honduras": NorthAmerica, "jamaica": NorthAmerica,
	"martinique": NorthAmerica, "mexico": NorthAmerica,
	"montserrat": NorthAmerica, "nicaragua": NorthAmerica,
	"panama": NorthAmerica, "puerto rico": NorthAmerica,
	"saint kitts and nevis": NorthAmerica, "saint lucia": NorthAmerica,
	"saint vincent and the grenadines": NorthAmerica, "usa": NorthAmerica,
	"trinidad and tobago": NorthAmerica, "united states": NorthAmerica,

	// South America
	"argentina": SouthAmerica, "bolivia": SouthAmerica, "brazil": SouthAmerica,
	"chile": SouthAmerica, "colombia": SouthAmerica, "ecuador": SouthAmerica,
	"french guiana": SouthAmerica, "guyana": SouthAmerica,
	"paraguay": SouthAmerica, "peru": SouthAmerica, "suriname": SouthAmerica,
	"uruguay": SouthAmerica, "venezuela": SouthAmerica,

	// Oceania
	"fiji": Oceania, "new caledonia": Oceania, "new zealand": Oceania,
	"papua new guinea": Oceania, "samoa": Oceania, "solomon islands": Oceania,
	"tahiti": Oceania, "tonga": Oceania, "vanuatu": Oceania,
}

// Continent names the continent of a country. Missing or unrecognised
// countries map to Unknown.
func Continent(country any) string {
	if table.IsNull(country) {
		return Unknown
	}
	name := strings.ToLower(strings.TrimSpace(table.ToString(country)))
	if c, ok := continents[name]; ok {
		return c
	}
	for _, a := range continentAliases {
		if strings.Contains(name, a.fragment) {
			return a.continent
		}
	}
	return Unknown
}
