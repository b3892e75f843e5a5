package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are query parameters removed from every URL.
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true, "utm_term": true, "utm_content": true,
	"gclid": true, "fbclid": true, "mc_cid": true, "mc_eid": true, "_ga": true, "_gl": true,
	"_gac": true, "msclkid": true, "twclid": true, "_kx": true,
}

// facebookParams are Facebook share/referral parameters.
var facebookParams = map[string]bool{
	"ref": true, "fref": true, "hc_location": true, "__tn__": true, "__cft__": true, "__xts__": true,
}

// URL normalizes an absolute URL: https scheme, lower-case host, tracking
// parameters removed, fragment dropped, empty path becomes "/".
func URL(raw string) (string, error) {
	u, err := parse(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = cleanQuery(u.Query(), nil)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// InputKey returns the dedupe and id key for an input URL: the normalized
// URL lower-cased with any trailing slash removed.
func InputKey(raw string) string {
	n, err := URL(raw)
	if err != nil {
		n = strings.TrimSpace(raw)
	}
	return strings.TrimRight(strings.ToLower(n), "/")
}

// Resolve turns href into an absolute URL relative to base. ok is false for
// non-http links (mailto:, tel:, javascript:).
func Resolve(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	r, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := b.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

// Domain returns the host of u without a leading "www.".
func Domain(u string) string {
	p, err := parse(u)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(p.Hostname()), "www.")
}

// SameSite reports whether a and b share a host, ignoring "www.".
func SameSite(a, b string) bool {
	da, db := Domain(a), Domain(b)
	return da != "" && da == db
}

// JoinPath returns root with path appended ("https://x.com/" + "/contact").
func JoinPath(root, path string) string {
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(path, "/")
}

// Path returns the path of u, or "" when it does not parse.
func Path(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return p.Path
}

var facebookHostRe = regexp.MustCompile(`(?i)^(?:[a-z]+\.)?(?:facebook|fb)\.com$`)

// facebookReserved are first path segments that are not pages.
var facebookReserved = map[string]bool{
	"sharer": true, "sharer.php": true, "share": true, "share.php": true, "dialog": true,
	"plugins": true, "tr": true, "login": true, "login.php": true, "help": true, "policies": true,
	"privacy": true, "events": true, "groups": true, "watch": true, "hashtag": true,
}

// Facebook cleans a Facebook page URL. ok is false for non-Facebook URLs and
// for share, plugin and tracking endpoints.
func Facebook(raw string) (string, bool) {
	u, err := parse(raw)
	if err != nil || !facebookHostRe.MatchString(u.Hostname()) {
		return "", false
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" || facebookReserved[strings.ToLower(segs[0])] {
		return "", false
	}
	q := u.Query()
	keep := url.Values{}
	if segs[0] == "profile.php" {
		if id := q.Get("id"); id != "" {
			keep.Set("id", id)
		} else {
			return "", false
		}
	}
	out := url.URL{
		Scheme:   "https",
		Host:     "www.facebook.com",
		Path:     "/" + strings.Join(segs, "/"),
		RawQuery: cleanQuery(keep, facebookParams),
	}
	return out.String(), true
}

var facebookIDRe = regexp.MustCompile(`^\d{5,}$`)
var facebookSlugIDRe = regexp.MustCompile(`-(\d{8,})$`)

// FacebookPageID extracts a numeric page id from a cleaned Facebook URL
// (profile.php?id=, /pages/<name>/<id>, /people/<name>/<id>, or a slug
// ending in -<id>).
func FacebookPageID(fbURL string) (string, bool) {
	u, err := url.Parse(fbURL)
	if err != nil {
		return "", false
	}
	if id := u.Query().Get("id"); facebookIDRe.MatchString(id) {
		return id, true
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for _, s := range segs[1:] {
		if facebookIDRe.MatchString(s) {
			return s, true
		}
	}
	if len(segs) == 1 {
		if facebookIDRe.MatchString(segs[0]) {
			return segs[0], true
		}
		if m := facebookSlugIDRe.FindStringSubmatch(segs[0]); m != nil {
			return m[1], true
		}
	}
	return "", false
}

var mapsRe = regexp.MustCompile(`(?i)^https?://(?:www\.)?(?:google\.[a-z.]+/maps|maps\.google\.[a-z.]+|goo\.gl/maps|maps\.app\.goo\.gl)`)

// mapsParams are the Google Maps parameters that identify a place.
var mapsParams = map[string]bool{"cid": true, "place_id": true, "q": true, "ll": true, "z": true, "query": true, "query_place_id": true, "daddr": true, "api": true}

// IsMapsURL reports whether u points at Google Maps.
func IsMapsURL(u string) bool {
	return mapsRe.MatchString(strings.TrimSpace(u))
}

// MapsURL cleans a Google Maps URL down to its identifying parameters.
func MapsURL(raw string) (string, bool) {
	if !IsMapsURL(raw) {
		return "", false
	}
	u, err := parse(raw)
	if err != nil {
		return "", false
	}
	keep := url.Values{}
	for k, v := range u.Query() {
		if mapsParams[k] {
			keep[k] = v
		}
	}
	u.Scheme = "https"
	u.Fragment = ""
	u.RawQuery = keep.Encode()
	return u.String(), true
}

// MapsQuery returns the free-text place query of a Maps URL (q, query or
// daddr parameter, or the /place/<name> path segment).
func MapsQuery(mapsURL string) string {
	u, err := url.Parse(mapsURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, k := range []string{"q", "query", "daddr"} {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	segs := strings.Split(u.Path, "/")
	for i, s := range segs {
		if s == "place" && i+1 < len(segs) {
			v, _ := url.PathUnescape(strings.ReplaceAll(segs[i+1], "+", " "))
			return v
		}
	}
	return ""
}

func parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("normalize: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: parse url %q", raw)
	}
	if u.Host == "" {
		return nil, eris.Errorf("normalize: url %q has no host", raw)
	}
	return u, nil
}

func cleanQuery(q url.Values, extra map[string]bool) string {
	for k := range q {
		if trackingParams[strings.ToLower(k)] || extra[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	return q.Encode()
}
