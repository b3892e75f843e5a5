package pageview

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `<!doctype html>
<html><head>
<title> Example Motors | New &amp; Used Cars </title>
<meta name="generator" content="DealerOn">
<link rel="stylesheet" href="/css/site.css">
<link rel="preconnect" href="https://cdn.dealeron.com">
<link rel="canonical" href="https://www.examplemotors.com/">
<script type="application/ld+json">{"@type":"AutoDealer","name":"Example Motors"}</script>
<script src="https://static.dealeron.com/js/app.js"></script>
<script>window.dataLayer=[];fetch("https://api.routeone.net/ping");</script>
</head>
<body>
<header><div class="phone">Sales: <a href="tel:2175551234">(217) 555-1234</a></div></header>
<main>
<h2>Sales Hours</h2>
<ul><li>Mon-Fri: 9:00 AM - 6:00 PM</li><li>Saturday: 9am-5pm</li></ul>
<iframe src="//apply.routeone.net/credit?dealer=1"></iframe>
<img src="logo.png">
</main>
<footer><p>123 Main St<br>Springfield, IL 62701</p><p>Website by DealerOn</p></footer>
<style>.x{color:red}</style>
</body></html>`

func fixtureDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := FromHTML("https://www.examplemotors.com/", fixture)
	require.NoError(t, err)
	return doc
}

func TestDocument_TextQueries(t *testing.T) {
	doc := fixtureDoc(t)
	assert.Equal(t, "https://www.examplemotors.com/", doc.URL())
	assert.Equal(t, "Example Motors | New & Used Cars", doc.Title())
	assert.Equal(t, "123 Main St\nSpringfield, IL 62701\nWebsite by DealerOn", doc.QueryText("footer"))
	assert.Equal(t, "Mon-Fri: 9:00 AM - 6:00 PM\nSaturday: 9am-5pm", doc.QueryText("main ul"))
	assert.Equal(t, []string{"Mon-Fri: 9:00 AM - 6:00 PM", "Saturday: 9am-5pm"}, doc.QueryTexts("li"))
	assert.Empty(t, doc.QueryText("aside"))
	assert.NotContains(t, doc.QueryText("body"), "color:red")

	ld := doc.QueryTexts(`script[type="application/ld+json"]`)
	require.Len(t, ld, 1)
	assert.Contains(t, ld[0], `"AutoDealer"`)
}

func TestDocument_Attributes(t *testing.T) {
	doc := fixtureDoc(t)
	assert.Equal(t, "DealerOn", doc.QueryAttribute(`meta[name="generator"]`, "content"))
	assert.Equal(t, []string{"tel:2175551234"}, doc.QueryAttributes(`a[href^="tel:"]`, "href"))
	assert.Empty(t, doc.QueryAttribute("a", "data-missing"))
}

func TestDocument_QueryLinks(t *testing.T) {
	doc, err := FromHTML("https://www.examplemotors.com/service/", `<nav>
<a href="schedule">Schedule  Service</a>
<a class="social fb" href="https://facebook.com/examplemotors" aria-label="Facebook"><i class="fa fa-facebook"></i></a>
<a href="#top">Top</a>
<a>no href</a>
<a href="mailto:sales@examplemotors.com">Email</a>
</nav>`)
	require.NoError(t, err)
	assert.Equal(t, []Link{
		{Href: "https://www.examplemotors.com/service/schedule", Text: "Schedule Service"},
		{Href: "https://facebook.com/examplemotors", Text: "Facebook", Class: "social fb"},
	}, doc.QueryLinks("a[href]"))
}

func TestDocument_EmbeddedResources(t *testing.T) {
	doc := fixtureDoc(t)
	assert.Equal(t, []string{
		"https://www.examplemotors.com/css/site.css",
		"https://static.dealeron.com/js/app.js",
		"https://apply.routeone.net/credit?dealer=1",
		"https://www.examplemotors.com/logo.png",
	}, doc.ListEmbeddedResourceURLs())
}

func TestDocument_ObservedRequests(t *testing.T) {
	doc, err := NewDocument("https://www.examplemotors.com/", strings.NewReader(fixture), "http://examplemotors.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://examplemotors.com/",
		"https://cdn.dealeron.com",
		"https://api.routeone.net/ping",
	}, doc.ListObservedNetworkRequests())
}

func TestDocument_TableRowsStayOnOneLine(t *testing.T) {
	doc, err := FromHTML("https://d.example/", `<table><tr><td>Monday</td><td>9:00 AM - 6:00 PM</td></tr><tr><th>Sunday</th><td>Closed</td></tr></table>`)
	require.NoError(t, err)
	assert.Equal(t, "Monday 9:00 AM - 6:00 PM\nSunday Closed", doc.QueryText("table"))
}

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		want   BlockType
	}{
		{"ok page", 200, nil, "<html><body>Welcome</body></html>", BlockNone},
		{"cloudflare header", 403, map[string]string{"cf-ray": "abc"}, "", BlockCloudflare},
		{"cloudflare body", 200, nil, "<p>Checking your browser before accessing</p>", BlockCloudflare},
		{"captcha interstitial", 200, nil, "<div class=captcha>Please verify you are a human</div>", BlockCaptcha},
		{"lead form captcha on big page", 200, nil, "<div class=g-recaptcha></div> verify you are" + strings.Repeat("x", 9000), BlockNone},
		{"js shell", 200, nil, "<noscript>Please enable JavaScript</noscript>", BlockJSShell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			for k, v := range tt.header {
				resp.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, DetectBlock(resp, []byte(tt.body)))
		})
	}
	assert.Equal(t, BlockNone, DetectBlock(nil, nil))
}
