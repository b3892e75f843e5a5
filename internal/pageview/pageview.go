// Package pageview exposes loaded pages to the extraction engine through a
// read-only query capability, and loads them over HTTP.
package pageview

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/dealer-scraper/internal/normalize"
)

// PageView is a read-only view of one loaded page. Selector hints are CSS
// selectors; a selector matching nothing yields empty results.
type PageView interface {
	URL() string
	Title() string
	// QueryText returns the text of every match, block elements on
	// separate lines.
	QueryText(selector string) string
	// QueryTexts returns the text of each match separately.
	QueryTexts(selector string) []string
	// QueryAttribute returns attr of the first match that has it.
	QueryAttribute(selector, attr string) string
	// QueryAttributes returns attr of every match that has it.
	QueryAttributes(selector, attr string) []string
	// QueryLinks returns the anchors matching selector that carry an href,
	// resolved against the page URL.
	QueryLinks(selector string) []Link
	// ListEmbeddedResourceURLs returns absolute script, iframe, image,
	// stylesheet and embed sources in document order.
	ListEmbeddedResourceURLs() []string
	// ListObservedNetworkRequests returns absolute URLs the page requested
	// or announced: redirects, preconnect hints and URLs in inline scripts.
	ListObservedNetworkRequests() []string
}

// Link is one anchor: its absolute href, visible text and class attribute.
type Link struct {
	Href  string
	Text  string
	Class string
}

// Document is the goquery-backed PageView.
type Document struct {
	url       string
	doc       *goquery.Document
	redirects []string
}

var _ PageView = (*Document)(nil)

// NewDocument parses HTML loaded from pageURL. redirects lists any URLs
// visited before the final one.
func NewDocument(pageURL string, r io.Reader, redirects ...string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrapf(err, "pageview: parse %s", pageURL)
	}
	return &Document{url: pageURL, doc: doc, redirects: redirects}, nil
}

// FromHTML parses an HTML string. Used by fixtures and tests.
func FromHTML(pageURL, body string) (*Document, error) {
	return NewDocument(pageURL, bytes.NewBufferString(body))
}

func (d *Document) URL() string { return d.url }

func (d *Document) Title() string {
	return collapse(d.doc.Find("title").First().Text())
}

func (d *Document) QueryText(selector string) string {
	return strings.Join(d.QueryTexts(selector), "\n")
}

func (d *Document) QueryTexts(selector string) []string {
	var out []string
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := renderText(s.Nodes[0]); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func (d *Document) QueryAttribute(selector, attr string) string {
	var val string
	d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			val = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return val
}

func (d *Document) QueryAttributes(selector, attr string) []string {
	var out []string
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}

func (d *Document) QueryLinks(selector string) []Link {
	var out []Link
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := normalize.Resolve(d.url, href)
		if !ok {
			return
		}
		class, _ := s.Attr("class")
		label := collapse(s.Text())
		if label == "" {
			label, _ = s.Attr("aria-label")
			if label == "" {
				label, _ = s.Attr("title")
			}
		}
		out = append(out, Link{Href: abs, Text: strings.TrimSpace(label), Class: class})
	})
	return out
}

type resourceAttr struct {
	match cascadia.Selector
	attr  string
}

// resourceAttrs lists the elements whose sources count as embedded resources.
var resourceAttrs = []resourceAttr{
	{cascadia.MustCompile("script[src]"), "src"},
	{cascadia.MustCompile("iframe[src]"), "src"},
	{cascadia.MustCompile("iframe[data-src]"), "data-src"},
	{cascadia.MustCompile("img[src]"), "src"},
	{cascadia.MustCompile("link[href]:not([rel~=preconnect]):not([rel~=dns-prefetch]):not([rel=canonical]):not([rel=alternate])"), "href"},
	{cascadia.MustCompile("source[src]"), "src"},
	{cascadia.MustCompile("embed[src]"), "src"},
	{cascadia.MustCompile("object[data]"), "data"},
}

func (d *Document) ListEmbeddedResourceURLs() []string {
	var out []string
	seen := make(map[string]bool)
	// Walk the tree once so results keep document order across element types.
	d.doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, ra := range resourceAttrs {
			if !s.IsMatcher(ra.match) {
				continue
			}
			v, _ := s.Attr(ra.attr)
			if abs, ok := normalize.Resolve(d.url, v); ok && !seen[abs] {
				seen[abs] = true
				out = append(out, abs)
			}
		}
	})
	return out
}

var inlineURLRe = regexp.MustCompile(`https?://[^\s"'<>\\)\]}]+`)

func (d *Document) ListObservedNetworkRequests() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimRight(u, ".,;")
		if abs, ok := normalize.Resolve(d.url, u); ok && !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	for _, r := range d.redirects {
		add(r)
	}
	for _, h := range d.QueryAttributes("link[rel~=preconnect], link[rel~=dns-prefetch]", "href") {
		add(h)
	}
	d.doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		for _, u := range inlineURLRe.FindAllString(s.Text(), -1) {
			add(u)
		}
	})
	return out
}

var skipTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Svg: true,
}

var blockTags = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true, atom.Dd: true,
	atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Footer: true, atom.Form: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Section: true,
	atom.Table: true, atom.Tr: true, atom.Ul: true, atom.Td: true, atom.Th: true,
}

// renderText flattens n to text with block elements on their own lines. A
// script or style node selected directly returns its raw content.
func renderText(n *html.Node) string {
	if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return strings.TrimSpace(b.String())
	}
	var b strings.Builder
	walk(&b, n)
	return cleanLines(b.String())
}

func walk(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipTags[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Br {
			b.WriteByte('\n')
			return
		}
		// Table cells stay on their row's line.
		if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
			b.WriteByte(' ')
		} else if blockTags[n.DataAtom] {
			b.WriteByte('\n')
		}
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(b, c)
	}
	if n.Type == html.ElementNode && blockTags[n.DataAtom] && n.DataAtom != atom.Td && n.DataAtom != atom.Th {
		b.WriteByte('\n')
	}
}

func cleanLines(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = collapse(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
