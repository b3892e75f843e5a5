package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
	"github.com/sells-group/dealer-scraper/internal/robots"
)

// ErrDisallowed is returned for URLs robots.txt does not allow.
var ErrDisallowed = eris.New("scheduler: disallowed by robots.txt")

// domainLimiters hands out one limiter per host, paced by the host's
// robots crawl delay, shared by every worker.
type domainLimiters struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func newDomainLimiters() *domainLimiters {
	return &domainLimiters{m: make(map[string]*rate.Limiter)}
}

func (d *domainLimiters) get(host string, delay time.Duration) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.m[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		l = rate.NewLimiter(rate.Every(delay), 1)
	}
	d.m[host] = l
	return l
}

// politeLoader wraps a worker's loader: robots check, per-domain crawl
// pacing, and a random pause in [min, max] between successive fetches of
// the same worker. The robots crawl delay is a floor on that pause. One
// politeLoader belongs to one worker.
type politeLoader struct {
	next     pageview.Loader
	robots   robots.Policy
	limiters *domainLimiters
	min, max time.Duration
	rng      *rand.Rand
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time

	last time.Time
}

func (p *politeLoader) Load(ctx context.Context, url string) (pageview.PageView, error) {
	if !p.robots.IsAllowed(ctx, url) {
		return nil, eris.Wrapf(ErrDisallowed, "%s", url)
	}
	crawlDelay := p.robots.CrawlDelay(ctx, url)

	if !p.last.IsZero() {
		wait := max(p.pause(), crawlDelay) - p.now().Sub(p.last)
		if wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	if err := p.limiters.get(normalize.Domain(url), crawlDelay).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scheduler: crawl delay")
	}

	p.last = p.now()
	return p.next.Load(ctx, url)
}

func (p *politeLoader) pause() time.Duration {
	if p.max <= p.min {
		return p.min
	}
	return p.min + time.Duration(p.rng.Int64N(int64(p.max-p.min)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
