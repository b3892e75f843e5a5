package pageview

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealer-scraper/internal/config"
	"github.com/sells-group/dealer-scraper/internal/resilience"
)

// Loader loads a page by URL.
type Loader interface {
	Load(ctx context.Context, url string) (PageView, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, url string) (PageView, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, url string) (PageView, error) { return f(ctx, url) }

var (
	// ErrNotFound is returned for 404 and 410 responses.
	ErrNotFound = eris.New("pageview: page not found")
	// ErrBlocked is returned when an anti-bot interstitial replaced the page.
	ErrBlocked = eris.New("pageview: blocked")
	// ErrNotHTML is returned for non-HTML responses.
	ErrNotHTML = eris.New("pageview: not html")
)

// HTTPLoader fetches pages over net/http and parses them into Documents.
type HTTPLoader struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewHTTPLoader creates an HTTPLoader from fetch settings.
func NewHTTPLoader(cfg config.FetchConfig) *HTTPLoader {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; dealer-scraper/1.0)"
	}
	return &HTTPLoader{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
		userAgent: ua,
		maxBody:   maxBody,
	}
}

// WithClient replaces the HTTP client. Used by tests.
func (l *HTTPLoader) WithClient(c *http.Client) *HTTPLoader {
	l.client = c
	return l
}

// Load fetches targetURL. Timeouts, transport failures, 408, 429 and 5xx are
// returned as resilience.TransientError so the caller can retry them.
func (l *HTTPLoader) Load(ctx context.Context, targetURL string) (PageView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pageview: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	var redirects []string
	client := *l.client
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return eris.New("pageview: too many redirects")
		}
		redirects = append(redirects, via[len(via)-1].URL.String())
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "pageview: fetch cancelled")
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "pageview: fetch %s", targetURL), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "pageview: read body %s", targetURL), resp.StatusCode)
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		return nil, eris.Wrapf(ErrBlocked, "%s (%s)", targetURL, bt)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, eris.Wrapf(ErrNotFound, "%s: status %d", targetURL, resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(eris.Errorf("pageview: %s: status %d", targetURL, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, eris.Errorf("pageview: %s: status %d", targetURL, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		if mt != "" && mt != "text/html" && mt != "application/xhtml+xml" && !strings.HasPrefix(mt, "text/") {
			return nil, eris.Wrapf(ErrNotHTML, "%s: %s", targetURL, mt)
		}
	}

	doc, err := NewDocument(resp.Request.URL.String(), bytes.NewReader(body), redirects...)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
