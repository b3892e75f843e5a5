package strategy

import (
	"strings"

	"github.com/sells-group/dealer-scraper/internal/fingerprint"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

// Provider signals, most reliable first.
const (
	SignalResource = "resource"
	SignalText     = "text"
	SignalMetadata = "metadata"
	SignalNetwork  = "network"
)

// providerStrategies builds the four-signal table over the page chosen by
// target, matched against the table chosen by pick.
func providerStrategies(target func(*Pages) (pageview.PageView, string), pick func(*fingerprint.Tables) *fingerprint.Table) []Strategy {
	return []Strategy{
		{Name: "resource_domains", Tier: 0, Fn: providerSignal(target, pick, SignalResource)},
		{Name: "page_text", Tier: 1, Fn: providerSignal(target, pick, SignalText)},
		{Name: "structural_metadata", Tier: 2, Fn: providerSignal(target, pick, SignalMetadata)},
		{Name: "network_requests", Tier: 3, Fn: providerSignal(target, pick, SignalNetwork)},
	}
}

func websiteTarget(p *Pages) (pageview.PageView, string) { return p.Root(), "" }

func creditTarget(p *Pages) (pageview.PageView, string) {
	if p.CreditAppURL == "" {
		return nil, "no credit application page found"
	}
	page, f := p.Load(p.CreditAppURL)
	if page == nil {
		return nil, "credit application page unavailable: " + errString(f)
	}
	return page, ""
}

func websiteTable(t *fingerprint.Tables) *fingerprint.Table { return &t.Website }
func creditTable(t *fingerprint.Tables) *fingerprint.Table  { return &t.Credit }

func providerSignal(target func(*Pages) (pageview.PageView, string), pick func(*fingerprint.Tables) *fingerprint.Table, signal string) func(*Pages) Outcome {
	return func(p *Pages) Outcome {
		page, reason := target(p)
		if page == nil {
			return NoMatchAt(p.CreditAppURL, reason)
		}
		if p.Fingerprints() == nil {
			return NoMatchAt(page.URL(), "no fingerprint tables loaded")
		}
		table := pick(p.Fingerprints())

		var hit fingerprint.Hit
		var ok bool
		conf := model.ConfidenceMedium
		switch signal {
		case SignalResource:
			hit, ok = table.MatchURLs(page.ListEmbeddedResourceURLs())
			conf = model.ConfidenceHigh
		case SignalText:
			if hit, ok = table.MatchText(page.QueryText("footer, #footer, .footer")); ok {
				conf = model.ConfidenceHigh
			} else {
				hit, ok = table.MatchText(page.QueryText("body"))
			}
		case SignalMetadata:
			meta := strings.Join(page.QueryAttributes("meta[content]", "content"), " ")
			meta += " " + strings.Join(page.QueryAttributes("meta[name]", "name"), " ")
			if hit, ok = table.MatchMeta(meta); !ok {
				hit, ok = matchPaths(table, page)
			}
		case SignalNetwork:
			hit, ok = table.MatchURLs(page.ListObservedNetworkRequests())
		}
		if !ok {
			return NoMatchAt(page.URL(), "no "+string(table.Kind)+" fingerprint in "+signal+" signals")
		}
		m := model.ProviderMatch{
			ID:          hit.Provider.ID,
			DisplayName: hit.Provider.DisplayName,
			Signal:      signal,
			Evidence:    hit.Subject,
		}
		return Match(m, conf, page.URL(), signal+" "+quote(hit.Subject)+" matches "+quote(hit.Signature))
	}
}

// matchPaths checks path signatures on same-page links and resources.
func matchPaths(table *fingerprint.Table, page pageview.PageView) (fingerprint.Hit, bool) {
	var urls []string
	for _, l := range page.QueryLinks("a[href]") {
		urls = append(urls, l.Href)
	}
	urls = append(urls, page.ListEmbeddedResourceURLs()...)
	for _, u := range urls {
		for i := range table.Providers {
			pr := &table.Providers[i]
			for _, s := range pr.Paths {
				if strings.Contains(strings.ToLower(u), s) {
					return fingerprint.Hit{Provider: pr, Signature: s, Subject: u}, true
				}
			}
		}
	}
	return fingerprint.Hit{}, false
}

func errString(f *pageview.Fetch) string {
	if f == nil || f.Err == nil {
		return "unknown error"
	}
	return f.Err.Error()
}
