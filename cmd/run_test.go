package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealer-scraper/internal/config"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/scheduler"
)

func init() {
	color.NoColor = true
}

func dealerPage(name string) string {
	return `<html><head><title>` + name + `</title>
<script type="application/ld+json">{"@type":"AutoDealer","name":"` + name + `","telephone":"(309) 555-0142"}</script>
</head><body><h1>` + name + `</h1></body></html>`
}

// dealerServer serves two dealer sites under /alpha/ and /beta/. /gamma/
// returns 404 until gammaUp is set.
func dealerServer(t *testing.T, gammaUp *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/alpha/":
			_, _ = w.Write([]byte(dealerPage("Alpha Motors")))
		case "/beta/":
			_, _ = w.Write([]byte(dealerPage("Beta Motors")))
		case "/gamma/":
			if gammaUp != nil && gammaUp.Load() {
				_, _ = w.Write([]byte(dealerPage("Gamma Motors")))
				return
			}
			http.NotFound(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Scheduler:  config.SchedulerConfig{Workers: 2},
		Fetch:      config.FetchConfig{TimeoutSecs: 5, UserAgent: "dealer-scraper-test"},
		Retry:      config.RetryConfig{MaxAttempts: 1, InitialBackoffMs: 1, MaxBackoffMs: 1, Multiplier: 2},
		Extract:    config.ExtractConfig{MinConfidence: "medium", MaxRooftops: 10},
		Checkpoint: config.CheckpointConfig{Driver: "file", Dir: filepath.Join(dir, "checkpoints"), Keep: 5},
		Output:     config.OutputConfig{Path: filepath.Join(dir, "out", "dealers.md"), Timezone: "UTC", Header: true},
		Input:      config.InputConfig{CSVColumn: "url"},
		Log:        config.LogConfig{Level: "error", Format: "console"},
	}
}

func readReport(t *testing.T, c *config.Config) string {
	t.Helper()
	data, err := os.ReadFile(c.Output.Path)
	require.NoError(t, err)
	return string(data)
}

func TestExecuteRun_WritesReportInInputOrder(t *testing.T) {
	srv := dealerServer(t, nil)
	c := testConfig(t)
	var out bytes.Buffer

	sum, err := executeRun(context.Background(), c, runOptions{urls: []string{srv.URL + "/beta/", srv.URL + "/alpha/"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Completed)
	assert.Zero(t, sum.Failed)
	assert.Contains(t, out.String(), "loaded 2 unique url(s) from 1 source(s): flag")
	assert.Contains(t, out.String(), "Completed: 2")

	doc := readReport(t, c)
	assert.True(t, strings.HasPrefix(doc, "# Dealership Data + URL Discovery — Run started at "))
	beta, alpha := strings.Index(doc, "Beta Motors"), strings.Index(doc, "Alpha Motors")
	require.Positive(t, beta)
	require.Positive(t, alpha)
	assert.Less(t, beta, alpha)
	assert.Contains(t, doc, "Phone: (309) 555-0142")
	assert.Contains(t, doc, "Phone (no dashes): 3095550142")
}

func TestExecuteRun_ResumeOfFinishedSessionReproducesReport(t *testing.T) {
	srv := dealerServer(t, nil)
	c := testConfig(t)

	_, err := executeRun(context.Background(), c, runOptions{urls: []string{srv.URL + "/alpha/", srv.URL + "/beta/"}}, &bytes.Buffer{})
	require.NoError(t, err)
	first := readReport(t, c)
	require.NoError(t, os.Remove(c.Output.Path))

	var out bytes.Buffer
	sum, err := executeRun(context.Background(), c, runOptions{resume: true}, &out)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
	assert.Contains(t, out.String(), "resuming session")
	assert.Equal(t, first, readReport(t, c))
}

func TestExecuteRun_RetryFailed(t *testing.T) {
	var gammaUp atomic.Bool
	srv := dealerServer(t, &gammaUp)
	c := testConfig(t)

	var out bytes.Buffer
	sum, err := executeRun(context.Background(), c, runOptions{urls: []string{srv.URL + "/alpha/", srv.URL + "/gamma/"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 1, sum.Failed)
	assert.Contains(t, out.String(), "--retry-failed")
	assert.NotContains(t, readReport(t, c), "Gamma Motors")

	gammaUp.Store(true)
	out.Reset()
	sum, err = executeRun(context.Background(), c, runOptions{resume: true, retryFailed: true}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "requeued 1 failed item(s)")
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 2, sum.Completed)

	doc := readReport(t, c)
	assert.Less(t, strings.Index(doc, "Alpha Motors"), strings.Index(doc, "Gamma Motors"))
}

func TestExecuteRun_CancelledBeforeStartLeavesResumableSession(t *testing.T) {
	srv := dealerServer(t, nil)
	c := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	sum, err := executeRun(ctx, c, runOptions{urls: []string{srv.URL + "/alpha/"}}, &out)
	require.NoError(t, err)
	assert.True(t, sum.Cancelled)
	assert.Zero(t, sum.Completed)
	assert.Equal(t, 1, sum.Pending)
	assert.Contains(t, out.String(), "continue with: dealer-scraper run --resume")

	sum, err = executeRun(context.Background(), c, runOptions{resume: true}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)
	assert.Contains(t, readReport(t, c), "Alpha Motors")
}

func TestExecuteRun_Errors(t *testing.T) {
	c := testConfig(t)
	_, err := executeRun(context.Background(), c, runOptions{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no URLs provided")

	_, err = executeRun(context.Background(), c, runOptions{resume: true}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no checkpointed session")
}

func TestApplyRunOverrides(t *testing.T) {
	c := testConfig(t)
	c.Robots.Respect = true
	applyRunOverrides(c, runOptions{output: "x.md", timezone: "America/Chicago", workers: 7, noRobots: true, csvColumn: "website"})
	assert.Equal(t, "x.md", c.Output.Path)
	assert.Equal(t, "America/Chicago", c.Output.Timezone)
	assert.Equal(t, 7, c.Scheduler.Workers)
	assert.False(t, c.Robots.Respect)
	assert.Equal(t, "website", c.Input.CSVColumn)

	applyRunOverrides(c, runOptions{})
	assert.Equal(t, 7, c.Scheduler.Workers)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "sessions", "status"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
	assert.Equal(t, "dealer-scraper", rootCmd.Use)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"url", "url-file", "csv-file", "csv-column", "output", "resume", "session", "retry-failed", "workers", "no-robots"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
}

func TestFormatStatus(t *testing.T) {
	items := []model.WorkItem{
		model.NewWorkItem("https://a.example/", "https://a.example", 0),
		model.NewWorkItem("https://b.example/", "https://b.example", 1),
		model.NewWorkItem("https://c.example/", "https://c.example", 2),
	}
	cp := model.NewCheckpoint("s1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), items)
	require.NoError(t, cp.Apply(items[0].ID, model.Outcome{Status: model.StatusCompleted, URL: items[0].URL, InputIndex: 0}))
	require.NoError(t, cp.Apply(items[2].ID, model.Outcome{Status: model.StatusFailed, URL: items[2].URL, InputIndex: 2, Error: "root page unreachable"}))

	var buf bytes.Buffer
	formatStatus(&buf, cp)
	out := buf.String()
	assert.Contains(t, out, "Session s1")
	assert.Contains(t, out, "Completed: 1")
	assert.Contains(t, out, "  #2 https://c.example/: root page unreachable")
	assert.Contains(t, out, "Pending items:\n  #1 https://b.example/")
}

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	printRunSummary(&buf, scheduler.Summary{SessionID: "s1", Processed: 2, Completed: 1, Pending: 1, Cancelled: true}, "dealers.md")
	assert.Contains(t, buf.String(), "run --resume")
	assert.Contains(t, buf.String(), "Report:    dealers.md")
}
