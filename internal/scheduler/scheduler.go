// Package scheduler runs WorkItems on a fixed pool of workers, records each
// outcome in the checkpoint store and hands completed records to a sink.
package scheduler

import (
	"context"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dealer-scraper/internal/checkpoint"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/pageview"
	"github.com/sells-group/dealer-scraper/internal/robots"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 5

// recordTimeout bounds a checkpoint write made after cancellation.
const recordTimeout = 30 * time.Second

// Processor extracts the records of one WorkItem.
type Processor interface {
	Process(ctx context.Context, item model.WorkItem, loader pageview.Loader) ([]model.DealerRecord, error)
}

// Sink receives the records of completed items. Submit is called from
// several workers at once.
type Sink interface {
	Submit(inputIndex int, records []model.DealerRecord)
}

// Options configures a Scheduler.
type Options struct {
	Workers   int
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Robots    robots.Policy
	Loader    pageview.Loader
	Store     checkpoint.Store
	Sink      Sink
	Processor Processor

	// Sleep and Now are replaced in tests.
	Sleep func(context.Context, time.Duration) error
	Now   func() time.Time
	Seed  uint64
}

// Summary reports a run.
type Summary struct {
	SessionID string
	Processed int
	Completed int
	Failed    int
	Pending   int
	Cancelled bool
	Duration  time.Duration
}

// Scheduler owns the worker pool.
type Scheduler struct {
	opts     Options
	limiters *domainLimiters
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Robots == nil {
		opts.Robots = robots.Disabled{}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	return &Scheduler{opts: opts, limiters: newDomainLimiters()}
}

// Run processes every pending item of cp, lowest input index first.
// In-progress state lives only in memory: on cancellation each in-flight
// item is written back as pending before its worker exits, and Run
// returns once every worker has joined. The error is non-nil only when the
// checkpoint store fails.
func (s *Scheduler) Run(ctx context.Context, cp *model.Checkpoint) (Summary, error) {
	start := s.opts.Now()
	queue := pendingItems(cp)
	log := zap.L().With(zap.String("session", cp.SessionID))
	log.Info("scheduler: starting",
		zap.Int("pending", len(queue)),
		zap.Int("completed", len(cp.Completed)),
		zap.Int("failed", len(cp.Failed)),
		zap.Int("workers", s.opts.Workers),
	)

	ch := make(chan model.WorkItem, len(queue))
	for _, it := range queue {
		ch <- it
	}
	close(ch)

	processed := make(chan struct{}, len(queue))
	g, gctx := errgroup.WithContext(ctx)
	for w := range s.opts.Workers {
		loader := &politeLoader{
			next:     s.opts.Loader,
			robots:   s.opts.Robots,
			limiters: s.limiters,
			min:      s.opts.MinDelay,
			max:      s.opts.MaxDelay,
			rng:      rand.New(rand.NewPCG(s.opts.Seed, uint64(w))),
			sleep:    s.opts.Sleep,
			now:      s.opts.Now,
		}
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}
				it, ok := <-ch
				if !ok {
					return nil
				}
				if err := s.work(gctx, cp.SessionID, it, loader); err != nil {
					return err
				}
				processed <- struct{}{}
			}
		})
	}
	runErr := g.Wait()
	close(processed)

	sum := Summary{SessionID: cp.SessionID, Processed: len(processed), Cancelled: ctx.Err() != nil}
	final, err := s.opts.Store.LoadSession(context.WithoutCancel(ctx), cp.SessionID)
	if err != nil {
		return sum, eris.Wrap(err, "scheduler: reload session")
	}
	sum.Completed, sum.Failed, sum.Pending = len(final.Completed), len(final.Failed), len(final.Pending)
	sum.Duration = s.opts.Now().Sub(start)

	log.Info("scheduler: finished",
		zap.Int("processed", sum.Processed),
		zap.Int("completed", sum.Completed),
		zap.Int("failed", sum.Failed),
		zap.Int("pending", sum.Pending),
		zap.Bool("cancelled", sum.Cancelled),
		zap.Duration("duration", sum.Duration),
	)
	return sum, runErr
}

// work runs one item through InProgress to its outcome and records it.
func (s *Scheduler) work(ctx context.Context, sessionID string, item model.WorkItem, loader pageview.Loader) error {
	log := zap.L().With(zap.String("item", item.ID), zap.String("url", item.URL), zap.Int("index", item.InputIndex))
	if err := item.Transition(model.StatusInProgress); err != nil {
		return err
	}

	records, procErr := s.opts.Processor.Process(ctx, item, loader)
	out := model.Outcome{URL: item.URL, InputIndex: item.InputIndex, At: s.opts.Now().UTC()}
	var next model.WorkStatus
	switch {
	case procErr == nil:
		next = model.StatusCompleted
		out.Records = records
		out.Rooftops = len(records)
	case ctx.Err() != nil:
		next = model.StatusPending
		log.Info("scheduler: cancelled, returning item to pending")
	default:
		next = model.StatusFailed
		out.Error = procErr.Error()
		log.Warn("scheduler: item failed", zap.Error(procErr))
	}
	if err := item.Transition(next); err != nil {
		return err
	}
	out.Status = item.Status

	// The write must land even when the run is being cancelled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.opts.Store.RecordOutcome(wctx, sessionID, item.ID, out); err != nil {
		return eris.Wrapf(err, "scheduler: record outcome of %s", item.ID)
	}

	if next == model.StatusCompleted {
		if s.opts.Sink != nil {
			s.opts.Sink.Submit(item.InputIndex, records)
		}
		log.Info("scheduler: item completed", zap.Int("rooftops", len(records)))
	}
	return nil
}

// RequeueFailed moves every failed item of the session back to pending.
// Nothing in a run calls it; it is the operator's explicit retry.
func RequeueFailed(ctx context.Context, store checkpoint.Store, cp *model.Checkpoint) (*model.Checkpoint, int, error) {
	var failed []model.Entry
	for _, e := range cp.Failed {
		failed = append(failed, e)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].InputIndex < failed[j].InputIndex })

	for _, e := range failed {
		item := model.WorkItem{ID: e.ID, URL: e.URL, InputIndex: e.InputIndex, Status: model.StatusFailed}
		if err := item.Requeue(); err != nil {
			return nil, 0, err
		}
		out := model.Outcome{Status: item.Status, URL: e.URL, InputIndex: e.InputIndex}
		if err := store.RecordOutcome(ctx, cp.SessionID, e.ID, out); err != nil {
			return nil, 0, eris.Wrapf(err, "scheduler: requeue %s", e.ID)
		}
	}
	next, err := store.LoadSession(ctx, cp.SessionID)
	if err != nil {
		return nil, 0, err
	}
	return next, len(failed), nil
}

// pendingItems returns the pending entries of cp as WorkItems in input
// order.
func pendingItems(cp *model.Checkpoint) []model.WorkItem {
	out := make([]model.WorkItem, 0, len(cp.Pending))
	for id, e := range cp.Pending {
		out = append(out, model.WorkItem{ID: id, URL: e.URL, InputIndex: e.InputIndex, Status: model.StatusPending})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InputIndex < out[j].InputIndex })
	return out
}
