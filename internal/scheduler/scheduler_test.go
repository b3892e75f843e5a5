package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealer-scraper/internal/checkpoint"
	"github.com/sells-group/dealer-scraper/internal/fingerprint"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/output"
	"github.com/sells-group/dealer-scraper/internal/pageview"
	"github.com/sells-group/dealer-scraper/internal/pageview/pageviewtest"
	"github.com/sells-group/dealer-scraper/internal/pipeline"
	"github.com/sells-group/dealer-scraper/internal/resilience"
)

var (
	t0       = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fixedNow = func() time.Time { return t0 }
	noSleep  = func(context.Context, time.Duration) error { return nil }
)

// procFunc adapts a function to Processor and counts calls per URL.
type procFunc struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, item model.WorkItem, loader pageview.Loader) ([]model.DealerRecord, error)
}

func newProc(fn func(ctx context.Context, item model.WorkItem, loader pageview.Loader) ([]model.DealerRecord, error)) *procFunc {
	return &procFunc{calls: make(map[string]int), fn: fn}
}

func (p *procFunc) Process(ctx context.Context, item model.WorkItem, loader pageview.Loader) ([]model.DealerRecord, error) {
	p.mu.Lock()
	p.calls[item.URL]++
	p.mu.Unlock()
	return p.fn(ctx, item, loader)
}

func (p *procFunc) Calls() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.calls))
	for k, v := range p.calls {
		out[k] = v
	}
	return out
}

func one(_ context.Context, item model.WorkItem, _ pageview.Loader) ([]model.DealerRecord, error) {
	return []model.DealerRecord{{Name: item.URL, InputIndex: item.InputIndex, CapturedAt: t0}}, nil
}

func workItems(urls ...string) []model.WorkItem {
	out := make([]model.WorkItem, len(urls))
	for i, u := range urls {
		out[i] = model.NewWorkItem(u, u, i)
	}
	return out
}

func allIDs(its []model.WorkItem) []string {
	var out []string
	for _, it := range its {
		out = append(out, it.ID)
	}
	return out
}

func begin(t *testing.T, st checkpoint.Store, its []model.WorkItem) *model.Checkpoint {
	t.Helper()
	cp := model.NewCheckpoint("session", t0, its)
	require.NoError(t, st.Begin(context.Background(), cp))
	return cp
}

func TestRun_CompletesAndFails(t *testing.T) {
	st := checkpoint.NewFileStore(afero.NewMemMapFs(), "/cp")
	its := workItems("https://a.example/", "https://bad.example/", "https://c.example/")
	cp := begin(t, st, its)

	proc := newProc(func(ctx context.Context, item model.WorkItem, l pageview.Loader) ([]model.DealerRecord, error) {
		if item.InputIndex == 1 {
			return nil, resilience.Fatal(errors.New("connection refused"), "root page unreachable")
		}
		return one(ctx, item, l)
	})
	agg := output.NewAggregator()
	s := New(Options{Workers: 2, Store: st, Sink: agg, Processor: proc, Sleep: noSleep, Now: fixedNow})

	sum, err := s.Run(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Pending)
	assert.False(t, sum.Cancelled)

	final, err := st.LoadSession(context.Background(), "session")
	require.NoError(t, err)
	require.NoError(t, final.Validate(allIDs(its)))
	assert.Contains(t, final.Failed[its[1].ID].Error, "connection refused")
	assert.Equal(t, 2, agg.Len())
}

func TestRun_CancelDowngradesInFlightToPending(t *testing.T) {
	st := checkpoint.NewFileStore(afero.NewMemMapFs(), "/cp")
	its := workItems("https://a.example/", "https://b.example/", "https://c.example/", "https://d.example/", "https://e.example/")
	cp := begin(t, st, its)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := newProc(func(ctx context.Context, item model.WorkItem, l pageview.Loader) ([]model.DealerRecord, error) {
		if item.InputIndex == 2 {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return one(ctx, item, l)
	})
	s := New(Options{Workers: 2, Store: st, Processor: proc, Sleep: noSleep, Now: fixedNow})

	sum, err := s.Run(ctx, cp)
	require.NoError(t, err)
	assert.True(t, sum.Cancelled)
	assert.Zero(t, sum.Failed)
	assert.Equal(t, 5, sum.Completed+sum.Pending)

	final, err := st.LoadSession(context.Background(), "session")
	require.NoError(t, err)
	require.NoError(t, final.Validate(allIDs(its)))
	assert.Contains(t, final.Pending, its[2].ID)
	assert.Contains(t, final.Completed, its[0].ID)
}

type stubRobots struct {
	disallow map[string]bool
	delay    map[string]time.Duration
}

func (r stubRobots) IsAllowed(_ context.Context, url string) bool { return !r.disallow[url] }
func (r stubRobots) CrawlDelay(_ context.Context, url string) time.Duration {
	return r.delay[url]
}

func TestRun_RobotsDisallowedRootFails(t *testing.T) {
	st := checkpoint.NewFileStore(afero.NewMemMapFs(), "/cp")
	its := workItems("https://private.example/")
	cp := begin(t, st, its)

	site := pageviewtest.NewSite(map[string]string{"https://private.example/": "<html></html>"})
	s := New(Options{
		Workers:   1,
		Store:     st,
		Loader:    site,
		Robots:    stubRobots{disallow: map[string]bool{"https://private.example/": true}},
		Processor: newPipeline(t),
		Sleep:     noSleep,
		Now:       fixedNow,
	})

	sum, err := s.Run(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Zero(t, site.Calls("https://private.example/"))

	final, err := st.LoadSession(context.Background(), "session")
	require.NoError(t, err)
	assert.Contains(t, final.Failed[its[0].ID].Error, "robots.txt")
}

func TestPoliteLoader_DelayBetweenFetches(t *testing.T) {
	var slept []time.Duration
	site := pageviewtest.NewSite(map[string]string{
		"https://a.example/":  "<html></html>",
		"https://a.example/x": "<html></html>",
		"https://b.example/":  "<html></html>",
	})
	l := &politeLoader{
		next:     site,
		robots:   stubRobots{delay: map[string]time.Duration{"https://b.example/": 5 * time.Second}},
		limiters: newDomainLimiters(),
		min:      time.Second,
		max:      time.Second,
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
		now: fixedNow,
	}
	ctx := context.Background()

	for _, u := range []string{"https://a.example/", "https://a.example/x", "https://b.example/"} {
		_, err := l.Load(ctx, u)
		require.NoError(t, err)
	}
	// No pause before the first fetch; the crawl delay of b raises the floor.
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, slept)
}

func TestPoliteLoader_PauseWithinWindow(t *testing.T) {
	l := &politeLoader{min: time.Second, max: 3 * time.Second, rng: rand.New(rand.NewPCG(3, 0))}
	for range 50 {
		d := l.pause()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestRequeueFailed(t *testing.T) {
	ctx := context.Background()
	st := checkpoint.NewFileStore(afero.NewMemMapFs(), "/cp")
	its := workItems("https://a.example/", "https://b.example/")
	cp := begin(t, st, its)
	require.NoError(t, st.RecordOutcome(ctx, "session", its[1].ID, model.Outcome{Status: model.StatusFailed, URL: its[1].URL, InputIndex: 1, Error: "x"}))
	cp, err := st.LoadSession(ctx, "session")
	require.NoError(t, err)

	next, n, err := RequeueFailed(ctx, st, cp)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, next.Failed)
	assert.Len(t, next.Pending, 2)
}

const (
	pageA = `<html><head><script type="application/ld+json">{"@type":"AutoDealer","name":"Alpha Auto"}</script></head><body><header>Sales (217) 544-0100</header></body></html>`
	pageB = `<html><head><title>Beta Group</title></head><body>
<a href="/locations/north">Beta North</a><a href="/locations/south">Beta South</a></body></html>`
	pageC = `<html><head><title>Gamma Cars</title></head><body></body></html>`
)

func rooftop(name string) string {
	return `<html><head><script type="application/ld+json">{"@type":"AutoDealer","name":"` + name + `"}</script></head><body></body></html>`
}

func scenarioSite() *pageviewtest.Site {
	return pageviewtest.NewSite(map[string]string{
		"https://sitea.example/":                pageA,
		"https://siteb.example/":                pageB,
		"https://siteb.example/locations/north": rooftop("Beta North"),
		"https://siteb.example/locations/south": rooftop("Beta South"),
		"https://sitec.example/":                pageC,
	})
}

func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	fp, err := fingerprint.Default()
	require.NoError(t, err)
	retry := resilience.DefaultRetryConfig()
	retry.Sleep = noSleep
	return pipeline.New(pipeline.Options{Fingerprints: fp, MinConfidence: model.ConfidenceMedium, Retry: retry, Now: fixedNow})
}

func render(agg *output.Aggregator) string {
	return output.Renderer{Header: true, StartedAt: t0}.Render(agg.Records())
}

func TestRun_ScenarioThreeBlocksInOrder(t *testing.T) {
	st := checkpoint.NewFileStore(afero.NewMemMapFs(), "/cp")
	its := workItems("https://sitea.example/", "https://siteb.example/")
	cp := begin(t, st, its)
	agg := output.NewAggregator()
	s := New(Options{Workers: 2, Store: st, Sink: agg, Loader: scenarioSite(), Processor: newPipeline(t), Sleep: noSleep, Now: fixedNow})

	_, err := s.Run(context.Background(), cp)
	require.NoError(t, err)

	var got []string
	for _, r := range agg.Records() {
		got = append(got, fmt.Sprintf("%d/%d %s", r.InputIndex, r.Rooftop.LocationIndex, r.Name))
	}
	assert.Equal(t, []string{"0/0 Alpha Auto", "1/0 Beta North", "1/1 Beta South"}, got)
}

// A run interrupted after some items and then resumed publishes the same
// document as an uninterrupted run, and the resumed run only processes
// what was pending.
func TestRun_ResumeRoundTrip(t *testing.T) {
	urls := []string{"https://sitea.example/", "https://siteb.example/", "https://sitec.example/"}
	its := workItems(urls...)

	fullStore := checkpoint.NewFileStore(afero.NewMemMapFs(), "/cp")
	fullAgg := output.NewAggregator()
	full := New(Options{Workers: 3, Store: fullStore, Sink: fullAgg, Loader: scenarioSite(), Processor: newPipeline(t), Sleep: noSleep, Now: fixedNow})
	_, err := full.Run(context.Background(), begin(t, fullStore, its))
	require.NoError(t, err)
	want := render(fullAgg)

	dir := t.TempDir()
	store, err := checkpoint.NewSQLite(filepath.Join(dir, "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck
	require.NoError(t, store.Migrate(context.Background()))
	cp := begin(t, store, its)

	p := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	interrupting := newProc(func(ctx context.Context, item model.WorkItem, l pageview.Loader) ([]model.DealerRecord, error) {
		if item.InputIndex == 1 {
			cancel()
		}
		return p.Process(ctx, item, l)
	})
	first := New(Options{Workers: 1, Store: store, Sink: output.NewAggregator(), Loader: scenarioSite(), Processor: interrupting, Sleep: noSleep, Now: fixedNow})
	sum, err := first.Run(ctx, cp)
	require.NoError(t, err)
	require.True(t, sum.Cancelled)
	require.Equal(t, 1, sum.Completed)

	resumed, err := store.LoadSession(context.Background(), cp.SessionID)
	require.NoError(t, err)
	agg := output.NewAggregator()
	agg.Seed(resumed)
	counting := newProc(p.Process)
	second := New(Options{Workers: 2, Store: store, Sink: agg, Loader: scenarioSite(), Processor: counting, Sleep: noSleep, Now: fixedNow})
	sum, err = second.Run(context.Background(), resumed)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Completed)

	var processed []string
	for u := range counting.Calls() {
		processed = append(processed, u)
	}
	sort.Strings(processed)
	assert.Equal(t, []string{"https://siteb.example/", "https://sitec.example/"}, processed)
	assert.Equal(t, want, render(agg))
}
