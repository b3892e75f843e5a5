package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/dealer-scraper/internal/model"
)

var stateCodes = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true, "DE": true, "FL": true, "GA": true,
	"HI": true, "ID": true, "IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true,
	"MA": true, "MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true, "OR": true, "PA": true, "RI": true, "SC": true,
	"SD": true, "TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true, "WI": true, "WY": true,
	"DC": true, "PR": true, "VI": true, "GU": true, "AS": true, "MP": true,
}

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA", "colorado": "CO",
	"connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS", "kentucky": "KY", "louisiana": "LA",
	"maine": "ME", "maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY", "north carolina": "NC",
	"north dakota": "ND", "ohio": "OH", "oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA",
	"rhode island": "RI", "south carolina": "SC", "south dakota": "SD", "tennessee": "TN", "texas": "TX",
	"utah": "UT", "vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC", "puerto rico": "PR",
}

// StateCode converts "IL", "il" or "Illinois" to "IL". ok is false for
// anything else.
func StateCode(s string) (string, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if up := strings.ToUpper(s); stateCodes[up] {
		return up, true
	}
	code, ok := stateNames[strings.ToLower(s)]
	return code, ok
}

var (
	streetValidRe = regexp.MustCompile(`\d+.*[A-Za-z]+`)
	cityValidRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z\s\-.']+$`)
	zipValidRe    = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
)

// ValidStreet requires a number and some text.
func ValidStreet(s string) bool { return streetValidRe.MatchString(s) }

// ValidCity requires at least two letters and no digits.
func ValidCity(s string) bool {
	return len(strings.TrimSpace(s)) >= 2 && cityValidRe.MatchString(strings.TrimSpace(s))
}

// ValidState requires a two-letter state or territory code.
func ValidState(s string) bool { return len(s) == 2 && stateCodes[strings.ToUpper(s)] }

// ValidZip accepts ZIP and ZIP+4.
func ValidZip(s string) bool { return zipValidRe.MatchString(strings.TrimSpace(s)) }

// AddressComplete reports whether every component validates.
func AddressComplete(a model.Address) bool {
	return ValidStreet(a.Street) && ValidCity(a.City) && ValidState(a.State) && ValidZip(a.ZipCode)
}

var titleCaser = cases.Title(language.English)

// CleanAddress trims components, converts full state names, title-cases
// all-caps or all-lower city names and keeps the first five ZIP digits
// plus any +4.
func CleanAddress(a model.Address) model.Address {
	out := model.Address{
		Street:  collapseSpace(strings.TrimRight(a.Street, ", ")),
		City:    collapseSpace(strings.Trim(a.City, ", ")),
		ZipCode: strings.TrimSpace(a.ZipCode),
	}
	if code, ok := StateCode(a.State); ok {
		out.State = code
	} else {
		out.State = strings.TrimSpace(a.State)
	}
	if out.City == strings.ToUpper(out.City) || out.City == strings.ToLower(out.City) {
		out.City = titleCaser.String(strings.ToLower(out.City))
	}
	return out
}

const streetSuffix = `(?:Street|St|Avenue|Ave|Road|Rd|Drive|Dr|Boulevard|Blvd|Lane|Ln|Way|Court|Ct|Circle|Cir|Parkway|Pkwy|Place|Pl|Highway|Hwy|Pike|Expressway|Expy|Freeway|Fwy|Route|Rte|Trail|Trl|Terrace|Ter|Loop|Square|Sq|Plaza|Plz|Turnpike|Tpke)`

var (
	streetPart    = `(?i:\b\d{1,6}\s+(?:[NSEW]\.?\s+)?[A-Za-z0-9.'\- ]{1,40}?\b` + streetSuffix + `\b\.?(?:\s+(?:N|S|E|W|North|South|East|West)\b\.?)?(?:[\s,]+(?:Suite|Ste\.?|Unit|Bldg|#)\s*[\w\-]+)?)`
	fullAddressRe = regexp.MustCompile(`(` + streetPart + `)[\s,]+((?i:[A-Za-z][A-Za-z .'\-]{1,30}?))[\s,]+([A-Z]{2}|[A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\.?\s*,?\s+(\d{5}(?:-\d{4})?)\b`)
	streetOnlyRe  = regexp.MustCompile(streetPart)
	houseNumberRe = regexp.MustCompile(`\b\d{1,6}\s+`)
)

// ParseAddressText finds the first complete US address in free text.
// When only a street line is present, partial carries it and ok is false.
func ParseAddressText(text string) (addr model.Address, partial model.Address, ok bool) {
	flat := collapseSpace(strings.ReplaceAll(text, "\n", ", "))
	for _, m := range fullAddressRe.FindAllStringSubmatch(flat, -1) {
		state, valid := StateCode(m[3])
		if !valid {
			continue
		}
		a := CleanAddress(model.Address{Street: trimStreet(m[1]), City: m[2], State: state, ZipCode: m[4]})
		if AddressComplete(a) {
			return a, model.Address{}, true
		}
	}
	if s := streetOnlyRe.FindString(flat); s != "" {
		return model.Address{}, model.Address{Street: collapseSpace(trimStreet(s))}, false
	}
	return model.Address{}, model.Address{}, false
}

// trimStreet drops text captured before the last house number, e.g. the
// tail of a phone number or sentence preceding the street.
func trimStreet(s string) string {
	idx := houseNumberRe.FindAllStringIndex(s, -1)
	if len(idx) > 1 {
		return s[idx[len(idx)-1][0]:]
	}
	return s
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
