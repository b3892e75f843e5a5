// Package location detects the physical rooftops behind one input URL.
package location

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
	"github.com/sells-group/dealer-scraper/internal/strategy"
)

// DefaultMaxRooftops caps rooftops per WorkItem.
const DefaultMaxRooftops = 10

var (
	// locationPathRe matches one rooftop's page, e.g. /locations/north-side.
	locationPathRe = regexp.MustCompile(`(?i)^/(?:our-)?(?:locations?|stores?|dealerships?)/([a-z0-9][a-z0-9_\-]*)/?$`)
	// locationsPageRe matches a page listing rooftops.
	locationsPageRe = regexp.MustCompile(`(?i)^/(?:our-)?(?:locations|stores|dealerships)(?:\.html?|\.php)?/?$`)
)

// Expander turns a root page into RooftopContexts.
type Expander struct {
	MaxRooftops int
}

// Expansion is the result of expanding one WorkItem.
type Expansion struct {
	Rooftops []model.RooftopContext
	Signals  []string
	Evidence []model.Evidence
	Overflow int
}

// Multi reports whether more than one rooftop was found.
func (e Expansion) Multi() bool { return len(e.Rooftops) > 1 }

// LocationsPageURL returns the same-site locations/stores page linked from
// root, if any.
func LocationsPageURL(root pageview.PageView) (string, bool) {
	for _, l := range root.QueryLinks("a[href]") {
		if normalize.SameSite(l.Href, root.URL()) && locationsPageRe.MatchString(normalize.Path(l.Href)) {
			return l.Href, true
		}
	}
	return "", false
}

type candidate struct {
	url, label string
}

// Expand decides whether root represents one or several rooftops. The
// signals are OR-ed: a locations page link, two or more address-bearing
// markup blocks, or two or more location-identifier links. locations is
// the loaded locations page, or nil. With no separable secondary rooftop
// the result is exactly one context for the root.
func (x Expander) Expand(item model.WorkItem, root, locations pageview.PageView) Expansion {
	limit := x.MaxRooftops
	if limit <= 0 {
		limit = DefaultMaxRooftops
	}
	var exp Expansion
	rootURL := root.URL()

	locURL, hasLocPage := LocationsPageURL(root)
	if hasLocPage {
		exp.Signals = append(exp.Signals, "locations page")
	}

	links := locationLinks(root)
	if locations != nil {
		links = mergeLinks(links, locationLinks(locations))
	}
	if len(links) >= 2 {
		exp.Signals = append(exp.Signals, "location links")
	}

	markupPage := root
	blocks := addressBlocks(root)
	if len(blocks) < 2 && locations != nil {
		if lb := addressBlocks(locations); len(lb) >= 2 {
			markupPage, blocks = locations, lb
		}
	}
	if len(blocks) >= 2 {
		exp.Signals = append(exp.Signals, "multiple address markup blocks")
	}

	var rooftops []model.RooftopContext
	switch {
	case len(links) >= 2:
		for _, c := range links {
			rooftops = append(rooftops, model.RooftopContext{RootURL: c.url, Label: c.label, MarkupIndex: -1})
		}
	case len(blocks) >= 2:
		for _, b := range blocks {
			rc := model.RooftopContext{RootURL: markupPage.URL(), Label: b.business.Name, MarkupIndex: b.index}
			if u, ok := normalize.MapsURL(b.business.HasMap); ok {
				rc.ResolvedMapsURL = u
			}
			rooftops = append(rooftops, rc)
		}
	}

	if len(rooftops) < 2 {
		if hasLocPage {
			exp.Evidence = append(exp.Evidence, model.Evidence{
				Description: "locations page found but fewer than two rooftops could be separated; treating site as one rooftop",
				SourceURL:   locURL,
			})
		}
		rooftops = []model.RooftopContext{{RootURL: rootURL, MarkupIndex: -1}}
	}

	if len(rooftops) > limit {
		exp.Overflow = len(rooftops) - limit
		exp.Evidence = append(exp.Evidence, model.Evidence{
			Description: fmt.Sprintf("%d rooftops detected, kept first %d by link order, %d not processed", len(rooftops), limit, exp.Overflow),
			SourceURL:   rootURL,
		})
		rooftops = rooftops[:limit]
	}

	for i := range rooftops {
		rooftops[i].ParentID = item.ID
		rooftops[i].LocationIndex = i
	}
	if len(rooftops) > 1 {
		exp.Evidence = append(exp.Evidence, model.Evidence{
			Description: fmt.Sprintf("%d rooftops from signals: %s", len(rooftops), strings.Join(exp.Signals, ", ")),
			SourceURL:   rootURL,
		})
	}
	exp.Rooftops = rooftops
	return exp
}

// locationLinks returns same-site location-identifier links in page order,
// one per URL.
func locationLinks(page pageview.PageView) []candidate {
	var out []candidate
	seen := make(map[string]bool)
	for _, l := range page.QueryLinks("a[href]") {
		if !normalize.SameSite(l.Href, page.URL()) || !locationPathRe.MatchString(normalize.Path(l.Href)) {
			continue
		}
		u, err := normalize.URL(l.Href)
		if err != nil {
			continue
		}
		k := normalize.InputKey(u)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, candidate{url: u, label: l.Text})
	}
	return out
}

func mergeLinks(a, b []candidate) []candidate {
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[normalize.InputKey(c.url)] = true
	}
	for _, c := range b {
		if k := normalize.InputKey(c.url); !seen[k] {
			seen[k] = true
			a = append(a, c)
		}
	}
	return a
}

type block struct {
	index    int
	business strategy.Business
}

// addressBlocks returns markup businesses with distinct addresses, keeping
// each block's index on the page.
func addressBlocks(page pageview.PageView) []block {
	var out []block
	for i, b := range strategy.ParseBusinesses(page) {
		if b.Address == nil || b.Address.Street == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if o.business.Address.Equal(*b.Address) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, block{index: i, business: b})
		}
	}
	return out
}
