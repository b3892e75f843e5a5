package strategy

import (
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

func phoneStrategies() []Strategy {
	return []Strategy{
		{Name: "jsonld_telephone", Tier: 0, Fn: phoneFromMarkup},
		{Name: "header", Tier: 1, Fn: phoneFromRegion("header", "header, #header, .header")},
		{Name: "footer", Tier: 1, Fn: phoneFromRegion("footer", "footer, #footer, .footer")},
		{Name: "contact_page", Tier: 2, Fn: phoneFromContactPage},
	}
}

func phoneFromMarkup(p *Pages) Outcome {
	for _, b := range p.Markup() {
		if ph, ok := normalize.Phone(b.Telephone); ok && b.Telephone != "" {
			return Match(ph, model.ConfidenceHigh, p.Root().URL(), "schema.org telephone")
		}
	}
	return NoMatchAt(p.Root().URL(), "no telephone in structured markup")
}

func phoneFromRegion(name, selector string) func(*Pages) Outcome {
	return func(p *Pages) Outcome {
		ph, how, ok := salesPhone(p.Root(), selector)
		if !ok {
			return NoMatchAt(p.Root().URL(), "no phone number in "+name)
		}
		return Match(ph, model.ConfidenceMedium, p.Root().URL(), how+" in "+name)
	}
}

func phoneFromContactPage(p *Pages) Outcome {
	page, u := p.Candidate(PageContact)
	if page == nil {
		return NoMatchAt(u, "contact page unavailable")
	}
	ph, how, ok := salesPhone(page, "body")
	if !ok {
		return NoMatchAt(u, "no phone number on contact page")
	}
	return Match(ph, model.ConfidenceMedium, u, how+" on contact page")
}

// salesPhone picks the sales number within selector: a number on a line
// labelled "sales", else the first tel: link, else the first number in the
// text.
func salesPhone(page pageview.PageView, selector string) (model.Phone, string, bool) {
	text := page.QueryText(selector)
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), "sales") {
			if phones := normalize.FindPhones(line); len(phones) > 0 {
				return phones[0], "sales-labelled number", true
			}
		}
	}
	for _, href := range page.QueryAttributes(scoped(selector, `a[href^="tel:"]`), "href") {
		if phones := normalize.FindPhones(strings.TrimPrefix(href, "tel:")); len(phones) > 0 {
			return phones[0], "tel: link", true
		}
	}
	if phones := normalize.FindPhones(text); len(phones) > 0 {
		return phones[0], "phone number", true
	}
	return model.Phone{}, "", false
}

// scoped prefixes each comma-separated part of scope to sel.
func scoped(scope, sel string) string {
	parts := strings.Split(scope, ",")
	for i, s := range parts {
		parts[i] = strings.TrimSpace(s) + " " + sel
	}
	return strings.Join(parts, ", ")
}
