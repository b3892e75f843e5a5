package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealer-scraper/internal/census"
	"github.com/sells-group/dealer-scraper/internal/checkpoint"
	"github.com/sells-group/dealer-scraper/internal/config"
	"github.com/sells-group/dealer-scraper/internal/fingerprint"
	"github.com/sells-group/dealer-scraper/internal/input"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/output"
	"github.com/sells-group/dealer-scraper/internal/pageview"
	"github.com/sells-group/dealer-scraper/internal/pipeline"
	"github.com/sells-group/dealer-scraper/internal/resilience"
	"github.com/sells-group/dealer-scraper/internal/robots"
	"github.com/sells-group/dealer-scraper/internal/scheduler"
)

// runOptions are the run command's flags. Zero values leave the config
// untouched.
type runOptions struct {
	urls        []string
	urlFiles    []string
	csvFiles    []string
	csvColumn   string
	output      string
	timezone    string
	workers     int
	noRobots    bool
	resume      bool
	session     string
	retryFailed bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract dealership data for a list of URLs",
	Long: `Processes every input URL, writes one block per rooftop to the output
report and checkpoints each item as it finishes. Interrupt with Ctrl-C and
continue later with --resume.

Examples:
  dealer-scraper run --url https://dealer.example
  dealer-scraper run --url-file dealers.txt
  dealer-scraper run --csv-file dealers.csv --csv-column website
  dealer-scraper run --resume --retry-failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRunOverrides(cfg, runOpts)
		_, err := executeRun(ctx, cfg, runOpts, os.Stdout)
		return err
	},
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVar(&runOpts.urls, "url", nil, "dealership URL (repeatable; a value may hold several space-separated URLs)")
	f.StringArrayVar(&runOpts.urlFiles, "url-file", nil, "text file with one URL per line (# starts a comment)")
	f.StringArrayVar(&runOpts.csvFiles, "csv-file", nil, "CSV or TSV file with a header row")
	f.StringVar(&runOpts.csvColumn, "csv-column", "", "CSV column holding the URL (default from config, \"url\")")
	f.StringVar(&runOpts.output, "output", "", "report path (overrides output.path)")
	f.StringVar(&runOpts.timezone, "timezone", "", "timezone for captured timestamps (overrides output.timezone)")
	f.IntVar(&runOpts.workers, "workers", 0, "concurrent workers (overrides scheduler.workers)")
	f.BoolVar(&runOpts.noRobots, "no-robots", false, "do not consult robots.txt")
	f.BoolVar(&runOpts.resume, "resume", false, "continue the latest (or --session) checkpointed session")
	f.StringVar(&runOpts.session, "session", "", "session id to resume")
	f.BoolVar(&runOpts.retryFailed, "retry-failed", false, "with --resume, move failed items back to pending first")
	rootCmd.AddCommand(runCmd)
}

func applyRunOverrides(c *config.Config, o runOptions) {
	if o.output != "" {
		c.Output.Path = o.output
	}
	if o.timezone != "" {
		c.Output.Timezone = o.timezone
	}
	if o.workers > 0 {
		c.Scheduler.Workers = o.workers
	}
	if o.noRobots {
		c.Robots.Respect = false
	}
	if o.csvColumn != "" {
		c.Input.CSVColumn = o.csvColumn
	}
}

// executeRun opens or resumes a session, runs it to completion or
// cancellation and publishes the report. Cancellation is not an error; the
// session stays resumable.
func executeRun(ctx context.Context, c *config.Config, o runOptions, out io.Writer) (scheduler.Summary, error) {
	store, err := checkpoint.Open(c.Checkpoint)
	if err != nil {
		return scheduler.Summary{}, eris.Wrap(err, "open checkpoint store")
	}
	defer store.Close() //nolint:errcheck

	cp, fresh, err := openSession(ctx, store, c, o, out)
	if err != nil {
		return scheduler.Summary{}, err
	}
	if o.retryFailed && len(cp.Failed) > 0 {
		var n int
		cp, n, err = scheduler.RequeueFailed(ctx, store, cp)
		if err != nil {
			return scheduler.Summary{}, eris.Wrap(err, "requeue failed items")
		}
		_, _ = fmt.Fprintf(out, "requeued %d failed item(s)\n", n)
	}

	agg := output.NewAggregator()
	seeded := agg.Seed(cp)

	proc, err := buildPipeline(c)
	if err != nil {
		return scheduler.Summary{}, err
	}
	var policy robots.Policy = robots.Disabled{}
	if c.Robots.Respect {
		policy = robots.NewChecker(nil, c.Fetch.UserAgent)
	}

	sched := scheduler.New(scheduler.Options{
		Workers:   c.Scheduler.Workers,
		MinDelay:  c.Scheduler.MinDelay(),
		MaxDelay:  c.Scheduler.MaxDelay(),
		Robots:    policy,
		Loader:    pageview.NewHTTPLoader(c.Fetch),
		Store:     store,
		Sink:      agg,
		Processor: proc,
	})

	zap.L().Info("run: starting",
		zap.String("session", cp.SessionID),
		zap.Bool("resumed", !fresh),
		zap.Int("pending", len(cp.Pending)),
		zap.Int("seeded_items", seeded),
	)
	sum, runErr := sched.Run(ctx, cp)

	// Publish whatever is complete, even when the store failed mid-run.
	r := output.Renderer{Location: c.Output.Location(), Header: c.Output.Header, StartedAt: cp.StartedAt}
	if err := agg.Flush(afero.NewOsFs(), c.Output.Path, r); err != nil {
		return sum, eris.Wrap(err, "write report")
	}
	if runErr != nil {
		return sum, eris.Wrap(runErr, "run session")
	}

	if fresh && !sum.Cancelled && c.Checkpoint.Keep > 0 {
		if n, err := store.Prune(context.WithoutCancel(ctx), c.Checkpoint.Keep); err != nil {
			zap.L().Warn("run: prune sessions", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("run: pruned old sessions", zap.Int("removed", n))
		}
	}

	printRunSummary(out, sum, c.Output.Path)
	return sum, nil
}

// openSession resumes a stored session or begins a new one from the input
// sources. fresh is true for a new session.
func openSession(ctx context.Context, store checkpoint.Store, c *config.Config, o runOptions, out io.Writer) (cp *model.Checkpoint, fresh bool, err error) {
	if o.resume {
		if o.session != "" {
			cp, err = store.LoadSession(ctx, o.session)
		} else {
			cp, err = store.Latest(ctx)
		}
		if errors.Is(err, checkpoint.ErrNoSession) {
			return nil, false, eris.New("no checkpointed session to resume; start one without --resume")
		}
		if err != nil {
			return nil, false, eris.Wrap(err, "load session")
		}
		_, _ = fmt.Fprintf(out, "resuming session %s: %d completed, %d failed, %d pending\n",
			cp.SessionID, len(cp.Completed), len(cp.Failed), len(cp.Pending))
		return cp, false, nil
	}

	opts := input.Options{URLs: o.urls, URLFiles: o.urlFiles, CSVFiles: o.csvFiles, CSVColumn: c.Input.CSVColumn}
	if opts.Empty() {
		opts = input.FromConfig(c.Input)
	}
	res, err := input.Load(ctx, afero.NewOsFs(), opts)
	if errors.Is(err, input.ErrNoURLs) {
		return nil, false, eris.New("no URLs provided; use --url, --url-file, --csv-file or input.* in config.yaml")
	}
	if err != nil {
		return nil, false, err
	}
	_, _ = fmt.Fprintln(out, res.Summary())
	for _, rj := range res.Rejected {
		_, _ = fmt.Fprintf(out, "  skipped %q (%s): %s\n", rj.Value, rj.Source, rj.Reason)
	}

	cp = model.NewCheckpoint(checkpoint.NewSessionID(), timeNow().UTC(), res.Items)
	if err := store.Begin(ctx, cp); err != nil {
		return nil, false, eris.Wrap(err, "begin session")
	}
	return cp, true, nil
}

func buildPipeline(c *config.Config) (*pipeline.Pipeline, error) {
	fp, err := fingerprint.Load(c.Fingerprints.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load provider fingerprints")
	}
	opts := pipeline.Options{
		MinConfidence: model.ParseConfidence(c.Extract.MinConfidence),
		MaxRooftops:   c.Extract.MaxRooftops,
		Fingerprints:  fp,
		Retry:         resilience.FromRetryConfig(c.Retry),
	}
	// A nil *census.Client must not become a non-nil Lookup.
	if cc := census.FromConfig(c.Census); cc != nil {
		opts.Census = cc
	}
	return pipeline.New(opts), nil
}
