package strategy

import (
	"fmt"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

func addressStrategies() []Strategy {
	return []Strategy{
		{Name: "external_listing", Tier: 0, Fn: addressFromListing},
		{Name: "jsonld_address", Tier: 1, Fn: addressFromMarkup},
		{Name: "microdata", Tier: 1, Fn: addressFromMicrodata},
		{Name: "rooftop_page_text", Tier: 2, Fn: addressFromRooftopPage},
		{Name: "contact_page_text", Tier: 3, Fn: addressFromCandidate(PageContact)},
		{Name: "footer_text", Tier: 4, Fn: addressFromRegion("footer", "footer, #footer, .footer")},
		{Name: "header_text", Tier: 4, Fn: addressFromRegion("header", "header, #header, .header")},
		{Name: "about_page_text", Tier: 5, Fn: addressFromCandidate(PageAbout)},
		{Name: "locations_page_text", Tier: 5, Fn: addressFromCandidate(PageLocations)},
	}
}

// ListingURL returns the external map listing for the rooftop: the one the
// location expander resolved, a map link in the markup, or the first map
// link on the rooftop page.
func ListingURL(p *Pages) string {
	if u := p.Rooftop().ResolvedMapsURL; u != "" {
		return u
	}
	for _, b := range p.Markup() {
		if u, ok := normalize.MapsURL(b.HasMap); ok {
			return u
		}
	}
	for _, l := range p.Root().QueryLinks("a[href]") {
		if u, ok := normalize.MapsURL(l.Href); ok {
			return u
		}
	}
	return ""
}

// addressFromListing prefers the external business listing. An unavailable
// listing is a NoMatch with a caveat so the site-text strategies run.
func addressFromListing(p *Pages) Outcome {
	u := ListingURL(p)
	if u == "" {
		return NoMatchAt(p.Root().URL(), "no external map listing linked")
	}
	page, f := p.Load(u)
	if page == nil {
		return NoMatchAt(u, fmt.Sprintf("external listing unavailable (%v), falling back to site text", f.Err))
	}
	addr, _, ok := normalize.ParseAddressText(page.QueryText("body"))
	if !ok {
		return NoMatchAt(u, "external listing shows no complete address, falling back to site text")
	}
	return Match(addr, model.ConfidenceHigh, u, "external map listing")
}

func addressFromMarkup(p *Pages) Outcome {
	for _, b := range p.Markup() {
		if b.Address == nil {
			continue
		}
		a := normalize.CleanAddress(*b.Address)
		if normalize.AddressComplete(a) {
			return Match(a, model.ConfidenceHigh, p.Root().URL(), "schema.org PostalAddress")
		}
		return Match(a, model.ConfidenceLow, p.Root().URL(), "incomplete schema.org PostalAddress")
	}
	return NoMatchAt(p.Root().URL(), "no PostalAddress in structured markup")
}

func addressFromMicrodata(p *Pages) Outcome {
	page := p.Root()
	first := func(prop string) string {
		if v := page.QueryTexts(`[itemprop="` + prop + `"]`); len(v) > 0 {
			return v[0]
		}
		return page.QueryAttribute(`[itemprop="`+prop+`"]`, "content")
	}
	a := model.Address{
		Street:  first("streetAddress"),
		City:    first("addressLocality"),
		State:   first("addressRegion"),
		ZipCode: first("postalCode"),
	}
	if a.Street == "" || a.City == "" {
		return NoMatchAt(page.URL(), "no itemprop address")
	}
	a = normalize.CleanAddress(a)
	if !normalize.AddressComplete(a) {
		return Match(a, model.ConfidenceLow, page.URL(), "incomplete microdata address")
	}
	return Match(a, model.ConfidenceHigh, page.URL(), "microdata PostalAddress")
}

func addressFromRooftopPage(p *Pages) Outcome {
	switch {
	case p.Rooftop().MarkupIndex >= 0:
		return NoMatchAt(p.Root().URL(), "rooftop shares its page with other rooftops")
	case normalize.InputKey(p.Root().URL()) == normalize.InputKey(SiteRoot(p.Root().URL())):
		return NoMatchAt(p.Root().URL(), "rooftop page is the site home page")
	}
	return addressFromText(p.Root(), "main, article, body", "rooftop page")
}

func addressFromRegion(name, selector string) func(*Pages) Outcome {
	return func(p *Pages) Outcome {
		return addressFromText(p.Root(), selector, name)
	}
}

func addressFromCandidate(kind PageKind) func(*Pages) Outcome {
	return func(p *Pages) Outcome {
		page, u := p.Candidate(kind)
		if page == nil {
			return NoMatchAt(u, string(kind)+" page unavailable")
		}
		return addressFromText(page, "body", string(kind)+" page")
	}
}

// addressFromText grades a complete address Medium and a street-only
// partial Low.
func addressFromText(page pageview.PageView, selector, where string) Outcome {
	text := page.QueryText(selector)
	if text == "" {
		return NoMatchAt(page.URL(), "no "+where+" text")
	}
	addr, partial, ok := normalize.ParseAddressText(text)
	switch {
	case ok:
		return Match(addr, model.ConfidenceMedium, page.URL(), "address text in "+where)
	case partial.Street != "":
		return Match(partial, model.ConfidenceLow, page.URL(), "street only in "+where)
	}
	return NoMatchAt(page.URL(), "no address pattern in "+where)
}
