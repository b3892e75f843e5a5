// Package robots answers robots.txt questions for the scheduler.
package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Policy decides whether a URL may be fetched and how long to wait between
// fetches on its host.
type Policy interface {
	IsAllowed(ctx context.Context, rawURL string) bool
	CrawlDelay(ctx context.Context, rawURL string) time.Duration
}

// Disabled allows everything with no crawl delay.
type Disabled struct{}

func (Disabled) IsAllowed(context.Context, string) bool           { return true }
func (Disabled) CrawlDelay(context.Context, string) time.Duration { return 0 }

// Checker fetches /robots.txt once per scheme+host and caches the parsed
// rules. A missing or unreadable robots file allows everything. It is safe
// for concurrent use.
type Checker struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	hosts map[string]*hostEntry
}

type hostEntry struct {
	once  sync.Once
	group *robotstxt.Group
}

var _ Policy = (*Checker)(nil)

// NewChecker creates a Checker. A nil client uses a 10 second timeout.
func NewChecker(client *http.Client, userAgent string) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Checker{client: client, userAgent: userAgent, hosts: make(map[string]*hostEntry)}
}

// IsAllowed reports whether the agent may fetch rawURL.
func (c *Checker) IsAllowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	g := c.group(ctx, u)
	if g == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return g.Test(path)
}

// CrawlDelay returns the host's Crawl-delay for the agent, or zero.
func (c *Checker) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	if g := c.group(ctx, u); g != nil {
		return g.CrawlDelay
	}
	return 0
}

func (c *Checker) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	if u.Host == "" {
		return nil
	}
	key := strings.ToLower(u.Scheme + "://" + u.Host)

	c.mu.Lock()
	e, ok := c.hosts[key]
	if !ok {
		e = &hostEntry{}
		c.hosts[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.group = c.fetch(ctx, key)
	})
	return e.group
}

func (c *Checker) fetch(ctx context.Context, origin string) *robotstxt.Group {
	robotsURL := origin + "/robots.txt"
	log := zap.L().With(zap.String("url", robotsURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug("robots: fetch failed, allowing", zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Debug("robots: no robots file, allowing", zap.Int("status", resp.StatusCode))
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		log.Debug("robots: parse failed, allowing", zap.Error(err))
		return nil
	}
	return data.FindGroup(c.userAgent)
}
