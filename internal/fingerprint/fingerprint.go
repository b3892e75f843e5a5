// Package fingerprint holds the read-only provider signature tables used to
// identify website platforms and embedded credit-application vendors.
package fingerprint

import (
	_ "embed"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultTables []byte

// Kind names a table.
type Kind string

const (
	KindWebsite Kind = "website"
	KindCredit  Kind = "credit"
)

// Provider is one vendor signature. All substrings match case-insensitively.
type Provider struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Domains     []string `yaml:"domains"`
	Paths       []string `yaml:"paths"`
	Texts       []string `yaml:"texts"`
	Meta        []string `yaml:"meta"`
}

// Table is an ordered provider list. Earlier providers win ties.
type Table struct {
	Kind      Kind
	Providers []Provider
}

// Tables is the loaded pair of lookup tables.
type Tables struct {
	Website Table
	Credit  Table
}

type file struct {
	Website []Provider `yaml:"website_providers"`
	Credit  []Provider `yaml:"credit_providers"`
}

// Default returns the embedded tables.
func Default() (*Tables, error) {
	return Parse(defaultTables)
}

// Load reads tables from path, or the embedded defaults when path is empty.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fingerprint: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a fingerprint YAML document.
func Parse(data []byte) (*Tables, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "fingerprint: parse")
	}
	t := &Tables{
		Website: Table{Kind: KindWebsite, Providers: f.Website},
		Credit:  Table{Kind: KindCredit, Providers: f.Credit},
	}
	for _, tbl := range []*Table{&t.Website, &t.Credit} {
		seen := make(map[string]bool)
		for i := range tbl.Providers {
			p := &tbl.Providers[i]
			if p.ID == "" {
				return nil, eris.Errorf("fingerprint: %s provider %d has no id", tbl.Kind, i)
			}
			if seen[p.ID] {
				return nil, eris.Errorf("fingerprint: duplicate %s provider %q", tbl.Kind, p.ID)
			}
			seen[p.ID] = true
			if p.DisplayName == "" {
				p.DisplayName = p.ID
			}
			p.Domains = lowerAll(p.Domains)
			p.Paths = lowerAll(p.Paths)
			p.Texts = lowerAll(p.Texts)
			p.Meta = lowerAll(p.Meta)
		}
	}
	return t, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Hit is a successful match: the provider and the signature that matched.
type Hit struct {
	Provider  *Provider
	Signature string
	Subject   string
}

// MatchURL checks a resource or request URL. Domain signatures with a dot
// match the host exactly or as a suffix ("cdn.dealeron.com" matches
// "dealeron.com"), signatures with a slash also require the path, and bare
// tokens match anywhere in the host. Path signatures are tried last.
func (t *Table) MatchURL(raw string) (Hit, bool) {
	lower := strings.ToLower(raw)
	u, err := url.Parse(lower)
	if err != nil || u.Host == "" {
		return Hit{}, false
	}
	host := u.Hostname()
	for i := range t.Providers {
		p := &t.Providers[i]
		for _, d := range p.Domains {
			if matchDomain(host, u.EscapedPath(), d) {
				return Hit{Provider: p, Signature: d, Subject: raw}, true
			}
		}
	}
	for i := range t.Providers {
		p := &t.Providers[i]
		for _, s := range p.Paths {
			if strings.Contains(u.EscapedPath(), s) {
				return Hit{Provider: p, Signature: s, Subject: raw}, true
			}
		}
	}
	return Hit{}, false
}

func matchDomain(host, path, sig string) bool {
	if d, p, ok := strings.Cut(sig, "/"); ok {
		return hostMatches(host, d) && strings.HasPrefix(strings.TrimPrefix(path, "/"), p)
	}
	if strings.Contains(sig, ".") {
		return hostMatches(host, sig)
	}
	return strings.Contains(host, sig)
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// MatchURLs returns the first hit over urls, in order.
func (t *Table) MatchURLs(urls []string) (Hit, bool) {
	for _, u := range urls {
		if h, ok := t.MatchURL(u); ok {
			return h, true
		}
	}
	return Hit{}, false
}

// MatchText checks visible page text against text signatures.
func (t *Table) MatchText(text string) (Hit, bool) {
	return t.matchField(text, func(p *Provider) []string { return p.Texts })
}

// MatchMeta checks structural metadata (generator tags, meta content)
// against meta signatures.
func (t *Table) MatchMeta(text string) (Hit, bool) {
	return t.matchField(text, func(p *Provider) []string { return p.Meta })
}

func (t *Table) matchField(text string, sigs func(*Provider) []string) (Hit, bool) {
	if text == "" {
		return Hit{}, false
	}
	lower := strings.ToLower(text)
	for i := range t.Providers {
		p := &t.Providers[i]
		for _, s := range sigs(p) {
			if strings.Contains(lower, s) {
				return Hit{Provider: p, Signature: s, Subject: snippet(lower, s)}, true
			}
		}
	}
	return Hit{}, false
}

// snippet returns up to 40 characters of context around sig.
func snippet(text, sig string) string {
	i := strings.Index(text, sig)
	if i < 0 {
		return sig
	}
	start, end := max(0, i-40), min(len(text), i+len(sig)+40)
	return strings.Join(strings.Fields(text[start:end]), " ")
}

// Get returns the provider with id.
func (t *Table) Get(id string) (*Provider, bool) {
	for i := range t.Providers {
		if t.Providers[i].ID == id {
			return &t.Providers[i], true
		}
	}
	return nil, false
}
