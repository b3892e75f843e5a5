package strategy

import (
	"context"
	"strings"

	"github.com/sells-group/dealer-scraper/internal/fingerprint"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

// PageKind names a candidate page a strategy may consult.
type PageKind string

const (
	PageHours     PageKind = "hours"
	PageContact   PageKind = "contact"
	PageLocations PageKind = "locations"
	PageAbout     PageKind = "about"
)

type candidate struct {
	keywords []string
	fallback string
}

// candidates maps each kind to the link keywords looked for on the rooftop
// page and the path tried when no link matches.
var candidates = map[PageKind]candidate{
	PageHours:     {keywords: []string{"hours"}, fallback: "/hours"},
	PageContact:   {keywords: []string{"contact"}, fallback: "/contact"},
	PageLocations: {keywords: []string{"locations", "our-stores", "stores", "dealerships"}, fallback: "/locations"},
	PageAbout:     {keywords: []string{"about"}, fallback: "/about"},
}

// Pages is everything the strategies of one rooftop can see: the rooftop
// page, the site's structured markup, and candidate pages loaded on demand
// through a memoizing cache, so every strategy sees the same page for a URL.
// A Pages belongs to one worker.
type Pages struct {
	ctx          context.Context
	cache        *pageview.Cache
	rooftop      model.RooftopContext
	root         pageview.PageView
	fingerprints *fingerprint.Tables
	markup       []Business

	// CreditAppURL is the resolved credit-application page, set before
	// the credit provider is resolved.
	CreditAppURL string
	// Address is the resolved address, set before the county is resolved.
	Address *model.Address

	touched []string
}

// NewPages creates the page set for a rooftop whose page is root.
func NewPages(ctx context.Context, cache *pageview.Cache, rooftop model.RooftopContext, root pageview.PageView, fp *fingerprint.Tables) *Pages {
	p := &Pages{ctx: ctx, cache: cache, rooftop: rooftop, root: root, fingerprints: fp}
	p.markup = ParseBusinesses(root)
	return p
}

// Rooftop returns the rooftop being resolved.
func (p *Pages) Rooftop() model.RooftopContext { return p.rooftop }

// Root returns the rooftop page.
func (p *Pages) Root() pageview.PageView { return p.root }

// Fingerprints returns the provider tables.
func (p *Pages) Fingerprints() *fingerprint.Tables { return p.fingerprints }

// Markup returns the structured-markup businesses that describe this
// rooftop: the selected block when the rooftop was split from a shared
// page, otherwise every business block on the page.
func (p *Pages) Markup() []Business {
	if i := p.rooftop.MarkupIndex; i >= 0 && i < len(p.markup) {
		return p.markup[i : i+1]
	}
	return p.markup
}

// Load returns the page at url, loading it at most once per WorkItem.
// Failed loads return nil and the failure is reported in the evidence of
// the field being resolved.
func (p *Pages) Load(url string) (pageview.PageView, *pageview.Fetch) {
	p.touched = append(p.touched, url)
	f := p.cache.Get(p.ctx, url)
	if !f.OK() {
		return nil, f
	}
	return f.Page, f
}

// Candidate loads the page of the given kind: the first same-site link on
// the rooftop page whose path names it, else the conventional path on the
// site root. The URL is returned even when loading fails.
func (p *Pages) Candidate(kind PageKind) (pageview.PageView, string) {
	u := p.CandidateURL(kind)
	if u == "" {
		return nil, ""
	}
	page, _ := p.Load(u)
	return page, u
}

// CandidateURL finds the URL of a candidate page without loading it.
func (p *Pages) CandidateURL(kind PageKind) string {
	c, ok := candidates[kind]
	if !ok {
		return ""
	}
	base := p.root.URL()
	for _, href := range p.root.QueryAttributes("a[href]", "href") {
		abs, ok := normalize.Resolve(base, href)
		if !ok || !normalize.SameSite(abs, base) {
			continue
		}
		path := strings.ToLower(normalize.Path(abs))
		for _, kw := range c.keywords {
			if strings.Contains(path, kw) && normalize.InputKey(abs) != normalize.InputKey(base) {
				return abs
			}
		}
	}
	return normalize.JoinPath(SiteRoot(base), c.fallback)
}

// SiteRoot returns the scheme and host of u with a trailing slash.
func SiteRoot(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		if j := strings.Index(u[i+3:], "/"); j >= 0 {
			return u[:i+3+j] + "/"
		}
		return u + "/"
	}
	return u
}

func (p *Pages) mark() int { return len(p.touched) }

// fetchEvidence returns the retry and failure trail of every page touched
// since mark, once per URL.
func (p *Pages) fetchEvidence(mark int) []model.Evidence {
	var out []model.Evidence
	seen := make(map[string]bool)
	for _, u := range p.touched[mark:] {
		k := normalize.InputKey(u)
		if seen[k] {
			continue
		}
		seen[k] = true
		if f, ok := p.cache.Peek(u); ok {
			out = append(out, f.Evidence...)
		}
	}
	return out
}
