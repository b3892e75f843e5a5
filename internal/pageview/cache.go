package pageview

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/resilience"
)

// Fetch is the memoized result of loading one URL, with the retry trail.
type Fetch struct {
	URL      string
	Page     PageView
	Err      error
	Evidence []model.Evidence
}

// OK reports whether the page loaded.
func (f *Fetch) OK() bool { return f != nil && f.Err == nil && f.Page != nil }

// Cache loads each URL at most once per WorkItem and remembers failures, so
// every field that needs a candidate page sees the same outcome. It is
// owned by one worker and not safe for concurrent use.
type Cache struct {
	loader  Loader
	retry   resilience.RetryConfig
	entries map[string]*Fetch
	order   []string
}

// NewCache creates a Cache loading through loader with the retry policy.
func NewCache(loader Loader, retry resilience.RetryConfig) *Cache {
	return &Cache{loader: loader, retry: retry, entries: make(map[string]*Fetch)}
}

// Get returns the page at url, loading it on first use.
func (c *Cache) Get(ctx context.Context, url string) *Fetch {
	key := normalize.InputKey(url)
	if f, ok := c.entries[key]; ok {
		return f
	}

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("pageview", url)
	page, attempts, err := resilience.Run(ctx, retry, func(ctx context.Context) (PageView, error) {
		return c.loader.Load(ctx, url)
	})

	f := &Fetch{URL: url, Page: page, Err: err}
	switch {
	case err == nil && len(attempts) > 0:
		for _, a := range attempts {
			f.Evidence = append(f.Evidence, model.Evidence{Description: "fetch " + a.String(), SourceURL: url})
		}
	case err != nil && len(attempts) == 1 && !resilience.IsTransient(err):
		f.Evidence = []model.Evidence{{Description: fmt.Sprintf("fetch failed: %v", err), SourceURL: url}}
	case err != nil:
		for _, a := range attempts {
			f.Evidence = append(f.Evidence, model.Evidence{Description: "fetch " + a.String(), SourceURL: url})
		}
	}
	if err != nil {
		zap.L().Debug("pageview: load failed", zap.String("url", url), zap.Int("attempts", len(attempts)), zap.Error(err))
	}

	c.entries[key] = f
	c.order = append(c.order, key)
	return f
}

// Peek returns a memoized fetch without loading.
func (c *Cache) Peek(url string) (*Fetch, bool) {
	f, ok := c.entries[normalize.InputKey(url)]
	return f, ok
}

// Failures returns every failed fetch in load order.
func (c *Cache) Failures() []*Fetch {
	var out []*Fetch
	for _, k := range c.order {
		if f := c.entries[k]; f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}
