package normalize

import (
	"regexp"
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
)

// Regional county-equivalent labels.
const (
	LabelCounty          = "County"
	LabelParish          = "Parish"
	LabelBorough         = "Borough"
	LabelIndependentCity = "Independent City"
)

var vaIndependentCities = map[string]bool{
	"Alexandria": true, "Bristol": true, "Buena Vista": true, "Charlottesville": true, "Chesapeake": true,
	"Colonial Heights": true, "Covington": true, "Danville": true, "Emporia": true, "Fairfax": true,
	"Falls Church": true, "Franklin": true, "Fredericksburg": true, "Galax": true, "Hampton": true,
	"Harrisonburg": true, "Hopewell": true, "Lexington": true, "Lynchburg": true, "Manassas": true,
	"Manassas Park": true, "Martinsville": true, "Newport News": true, "Norfolk": true, "Norton": true,
	"Petersburg": true, "Poquoson": true, "Portsmouth": true, "Radford": true, "Richmond": true,
	"Roanoke": true, "Salem": true, "Staunton": true, "Suffolk": true, "Virginia Beach": true,
	"Waynesboro": true, "Williamsburg": true, "Winchester": true,
}

var countySuffixes = []string{" Independent City", " city", " City", " County", " Parish", " Borough", " Census Area", " Municipality"}

// StripCountySuffix removes a trailing county-equivalent label.
func StripCountySuffix(name string) string {
	name = strings.TrimSpace(name)
	for _, s := range countySuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSpace(strings.TrimSuffix(name, s))
		}
	}
	return name
}

// CountyLabel returns the label a county-equivalent carries in state:
// Parish in Louisiana, Borough in Alaska, Independent City for Virginia's
// independent cities, County elsewhere. name may carry its suffix; a
// Virginia name ending in "County" (Fairfax County) stays a county.
func CountyLabel(name, state string) string {
	name = strings.TrimSpace(name)
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "LA":
		return LabelParish
	case "AK":
		return LabelBorough
	case "VA":
		if strings.HasSuffix(name, " County") {
			return LabelCounty
		}
		if strings.HasSuffix(strings.ToLower(name), " city") || vaIndependentCities[name] {
			return LabelIndependentCity
		}
	}
	return LabelCounty
}

// County builds a County from a raw name such as "Cook County".
func County(raw, state, source string) model.County {
	return model.County{Name: StripCountySuffix(raw), Label: CountyLabel(raw, state), Source: source}
}

var countyTextRe = regexp.MustCompile(`\b((?:[A-Z][a-z]+\.?\s){0,2}[A-Z][a-z]+)\s+(County|Parish|Borough)\b`)

// countyStopWords precede "County" in page copy without being a county name.
var countyStopWords = map[string]bool{"The": true, "Our": true, "Your": true, "Serving": true, "In": true, "And": true, "Of": true}

// CountyFromText finds the first "<Name> County|Parish|Borough" mention.
func CountyFromText(text, state string) (model.County, bool) {
	for _, m := range countyTextRe.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		for len(words) > 0 && countyStopWords[words[0]] {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		name := strings.Join(words, " ")
		return model.County{Name: name, Label: CountyLabel(name, state), Source: "page text"}, true
	}
	return model.County{}, false
}
