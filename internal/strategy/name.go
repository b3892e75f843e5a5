package strategy

import (
	"regexp"
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
)

func nameStrategies() []Strategy {
	return []Strategy{
		{Name: "jsonld_name", Tier: 0, Fn: nameFromMarkup},
		{Name: "og_site_name", Tier: 0, Fn: nameFromOpenGraph},
		{Name: "title", Tier: 1, Fn: nameFromTitle},
	}
}

func nameFromMarkup(p *Pages) Outcome {
	for _, b := range p.Markup() {
		if b.Name != "" {
			return Match(b.Name, model.ConfidenceHigh, p.Root().URL(), "schema.org "+strings.Join(b.Types, "/")+" name")
		}
	}
	return NoMatchAt(p.Root().URL(), "no named business in structured markup")
}

func nameFromOpenGraph(p *Pages) Outcome {
	if v := p.Root().QueryAttribute(`meta[property="og:site_name"]`, "content"); v != "" {
		return Match(v, model.ConfidenceMedium, p.Root().URL(), "og:site_name")
	}
	return NoMatchAt(p.Root().URL(), "no og:site_name")
}

var (
	titleSepRe     = regexp.MustCompile(`\s+[|–—·:-]\s+|\s*\|\s*`)
	titleGenericRe = regexp.MustCompile(`(?i)\b(new|used|pre-owned|cars? for sale|home|homepage|welcome|inventory|dealer(ship)? (in|near)|serving|trucks?|suvs?)\b`)
	welcomeRe      = regexp.MustCompile(`(?i)^welcome to\s+`)
)

// nameFromTitle picks the title segment that is not generic marketing copy.
func nameFromTitle(p *Pages) Outcome {
	title := p.Root().Title()
	if title == "" {
		return NoMatchAt(p.Root().URL(), "page has no title")
	}
	for _, seg := range titleSepRe.Split(title, -1) {
		seg = strings.TrimSpace(welcomeRe.ReplaceAllString(strings.TrimSpace(seg), ""))
		if seg == "" || titleGenericRe.MatchString(seg) {
			continue
		}
		return Match(seg, model.ConfidenceMedium, p.Root().URL(), "page title "+quote(title))
	}
	return NoMatchAt(p.Root().URL(), "title "+quote(title)+" has no dealership name segment")
}

func quote(s string) string { return `"` + s + `"` }
