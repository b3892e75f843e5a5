package strategy

import (
	"regexp"
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
)

// linkTarget describes a page found by link pattern, link text or a list
// of conventional paths.
type linkTarget struct {
	what     string
	hrefRe   *regexp.Regexp
	textRe   *regexp.Regexp
	fallback []string
}

var (
	serviceTarget = linkTarget{
		what:     "service scheduler",
		hrefRe:   regexp.MustCompile(`(?i)/(?:service[-_]?(?:appointment|scheduler?|booking)|schedule[-_]?(?:service|appointment)|book[-_]?(?:service|appointment))`),
		textRe:   regexp.MustCompile(`(?i)\b(?:schedule|book|request)\s+(?:a\s+|your\s+)?(?:service|appointment)|service\s+appointment\b`),
		fallback: []string{"/service-appointment", "/schedule-service", "/service/schedule", "/book-service"},
	}
	creditTargetLinks = linkTarget{
		what:     "credit application",
		hrefRe:   regexp.MustCompile(`(?i)/(?:finance/apply|apply[-_]?(?:for[-_])?financ(?:e|ing)|credit[-_]?app(?:lication)?|finance[-_]?application|get[-_]?pre[-_]?approved)`),
		textRe:   regexp.MustCompile(`(?i)\b(?:apply\s+(?:for\s+)?(?:financing|credit|online|now)|credit\s+app(?:lication)?|finance\s+application|get\s+(?:pre-?)?approved)\b`),
		fallback: []string{"/finance/apply-for-financing", "/finance/apply", "/apply-for-financing", "/credit-application"},
	}
)

func urlStrategies(t linkTarget) []Strategy {
	return []Strategy{
		{Name: "link_pattern", Tier: 0, Fn: func(p *Pages) Outcome { return findLink(p, t, true) }},
		{Name: "link_text", Tier: 0, Fn: func(p *Pages) Outcome { return findLink(p, t, false) }},
		{Name: "common_paths", Tier: 1, Fn: func(p *Pages) Outcome { return probePaths(p, t) }},
	}
}

// findLink returns the first same-site link on the rooftop page whose href
// (byHref) or text matches.
func findLink(p *Pages, t linkTarget, byHref bool) Outcome {
	root := p.Root().URL()
	for _, l := range p.Root().QueryLinks("a[href]") {
		if !normalize.SameSite(l.Href, root) {
			continue
		}
		var hit bool
		if byHref {
			hit = t.hrefRe.MatchString(normalize.Path(l.Href))
		} else {
			hit = t.textRe.MatchString(l.Text)
		}
		if !hit {
			continue
		}
		u, err := normalize.URL(l.Href)
		if err != nil {
			continue
		}
		how := "link path"
		conf := model.ConfidenceHigh
		if !byHref {
			how = "link text " + quote(l.Text)
			conf = model.ConfidenceMedium
		}
		return Match(u, conf, root, t.what+" "+how)
	}
	if byHref {
		return NoMatchAt(root, "no same-site link path looks like a "+t.what)
	}
	return NoMatchAt(root, "no same-site link text names a "+t.what)
}

// probePaths tries conventional paths; a path counts when it loads and is
// not redirected off-site or back to the home page.
func probePaths(p *Pages, t linkTarget) Outcome {
	site := SiteRoot(p.Root().URL())
	for _, path := range t.fallback {
		candidate := normalize.JoinPath(site, path)
		page, _ := p.Load(candidate)
		if page == nil {
			continue
		}
		final := page.URL()
		if !normalize.SameSite(final, site) || normalize.InputKey(final) == normalize.InputKey(site) {
			continue
		}
		u, err := normalize.URL(final)
		if err != nil {
			continue
		}
		return Match(u, model.ConfidenceMedium, candidate, t.what+" at conventional path "+path)
	}
	return NoMatchAt(site, "no conventional "+t.what+" path loaded")
}

func facebookStrategies() []Strategy {
	return []Strategy{
		{Name: "facebook_link", Tier: 0, Fn: facebookFromLinks},
		{Name: "jsonld_same_as", Tier: 1, Fn: facebookFromMarkup},
	}
}

// facebookFromLinks checks anchors pointing at facebook.com, then anchors
// styled as Facebook icons.
func facebookFromLinks(p *Pages) Outcome {
	links := p.Root().QueryLinks("a[href]")
	for _, l := range links {
		if fb, ok := facebook(l.Href, p.Root().URL()); ok {
			return Match(fb, model.ConfidenceHigh, p.Root().URL(), "link to "+fb.URL)
		}
	}
	for _, l := range p.Root().QueryLinks(`a[class*="facebook"], a[class*="fa-facebook"], a:has(i[class*="facebook"]), a:has(svg[class*="facebook"])`) {
		if fb, ok := facebook(l.Href, p.Root().URL()); ok {
			return Match(fb, model.ConfidenceHigh, p.Root().URL(), "icon link to "+fb.URL)
		}
	}
	return NoMatchAt(p.Root().URL(), "no Facebook page link")
}

func facebookFromMarkup(p *Pages) Outcome {
	for _, b := range p.Markup() {
		for _, s := range b.SameAs {
			if fb, ok := facebook(s, p.Root().URL()); ok {
				return Match(fb, model.ConfidenceHigh, p.Root().URL(), "schema.org sameAs")
			}
		}
	}
	return NoMatchAt(p.Root().URL(), "no Facebook sameAs in structured markup")
}

func facebook(raw, start string) (model.Facebook, bool) {
	if !strings.Contains(strings.ToLower(raw), "facebook.com") && !strings.Contains(strings.ToLower(raw), "fb.com") {
		return model.Facebook{}, false
	}
	u, ok := normalize.Facebook(raw)
	if !ok {
		return model.Facebook{}, false
	}
	id, _ := normalize.FacebookPageID(u)
	return model.Facebook{URL: u, PageID: id, Start: start}, true
}
