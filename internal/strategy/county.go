package strategy

import (
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

// Census lookups run in the pipeline before this table; these strategies
// read "<Name> County" mentions from the site.
func countyStrategies() []Strategy {
	return []Strategy{
		{Name: "rooftop_page_text", Tier: 0, Fn: func(p *Pages) Outcome { return countyFromPage(p, p.Root(), "rooftop page") }},
		{Name: "contact_page_text", Tier: 1, Fn: countyFromCandidate(PageContact)},
		{Name: "about_page_text", Tier: 2, Fn: countyFromCandidate(PageAbout)},
	}
}

func countyFromCandidate(kind PageKind) func(*Pages) Outcome {
	return func(p *Pages) Outcome {
		page, u := p.Candidate(kind)
		if page == nil {
			return NoMatchAt(u, string(kind)+" page unavailable")
		}
		return countyFromPage(p, page, string(kind)+" page")
	}
}

func countyFromPage(p *Pages, page pageview.PageView, where string) Outcome {
	state := ""
	if p.Address != nil {
		state = p.Address.State
	}
	c, ok := normalize.CountyFromText(page.QueryText("body"), state)
	if !ok {
		return NoMatchAt(page.URL(), "no county mention on "+where)
	}
	c.Source = where + " text"
	return Match(c, model.ConfidenceMedium, page.URL(), "county named on "+where)
}
