// Package pageviewtest provides an in-memory page loader for tests.
package pageviewtest

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

// Site is an in-memory set of pages keyed by URL. Unknown URLs return
// pageview.ErrNotFound. It is safe for concurrent use.
type Site struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string][]error
	calls  map[string]int
	onLoad func(url string)
}

// NewSite creates a Site from url -> HTML.
func NewSite(pages map[string]string) *Site {
	s := &Site{pages: make(map[string]string), errs: make(map[string][]error), calls: make(map[string]int)}
	for u, body := range pages {
		s.pages[normalize.InputKey(u)] = body
	}
	return s
}

// Add registers another page.
func (s *Site) Add(url, body string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[normalize.InputKey(url)] = body
	return s
}

// FailWith makes the next loads of url return errs in order before the
// page (if any) is served.
func (s *Site) FailWith(url string, errs ...error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := normalize.InputKey(url)
	s.errs[k] = append(s.errs[k], errs...)
	return s
}

// OnLoad registers a hook called at the start of every load.
func (s *Site) OnLoad(fn func(url string)) *Site {
	s.onLoad = fn
	return s
}

// Calls returns how many times url was loaded.
func (s *Site) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[normalize.InputKey(url)]
}

// Load implements pageview.Loader.
func (s *Site) Load(ctx context.Context, url string) (pageview.PageView, error) {
	if s.onLoad != nil {
		s.onLoad(url)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := normalize.InputKey(url)
	s.mu.Lock()
	s.calls[k]++
	if q := s.errs[k]; len(q) > 0 {
		err := q[0]
		s.errs[k] = q[1:]
		s.mu.Unlock()
		return nil, err
	}
	body, ok := s.pages[k]
	s.mu.Unlock()
	if !ok {
		return nil, eris.Wrapf(pageview.ErrNotFound, "%s", url)
	}
	doc, err := pageview.FromHTML(url, body)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
