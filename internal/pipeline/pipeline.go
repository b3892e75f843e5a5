// Package pipeline runs the extraction of one WorkItem end to end: load the
// root page, expand rooftops, resolve every field and assemble the records.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/dealer-scraper/internal/assemble"
	"github.com/sells-group/dealer-scraper/internal/census"
	"github.com/sells-group/dealer-scraper/internal/fingerprint"
	"github.com/sells-group/dealer-scraper/internal/location"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
	"github.com/sells-group/dealer-scraper/internal/resilience"
	"github.com/sells-group/dealer-scraper/internal/strategy"
)

// resolveOrder is the order fields are resolved in. Address precedes county
// and the credit-application URL precedes its provider.
var resolveOrder = []model.FieldName{
	model.FieldDealerName,
	model.FieldAddress,
	model.FieldPhone,
	model.FieldProvider,
	model.FieldSalesHours,
	model.FieldServiceHours,
	model.FieldPartsHours,
	model.FieldServiceURL,
	model.FieldCreditAppURL,
	model.FieldCreditProvider,
	model.FieldFacebook,
	model.FieldCounty,
}

// Options configures a Pipeline.
type Options struct {
	Tables        strategy.Tables
	MinConfidence model.Confidence
	MaxRooftops   int
	Fingerprints  *fingerprint.Tables
	// Census is optional; nil skips the lookup.
	Census census.Lookup
	Retry  resilience.RetryConfig
	Now    func() time.Time
}

// Pipeline processes WorkItems. It holds no per-item state and is safe for
// concurrent use by several workers.
type Pipeline struct {
	tables       strategy.Tables
	resolver     strategy.Resolver
	expander     location.Expander
	fingerprints *fingerprint.Tables
	census       census.Lookup
	retry        resilience.RetryConfig
	now          func() time.Time
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Tables == nil {
		opts.Tables = strategy.DefaultTables()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		tables:       opts.Tables,
		resolver:     strategy.NewResolver(opts.MinConfidence),
		expander:     location.Expander{MaxRooftops: opts.MaxRooftops},
		fingerprints: opts.Fingerprints,
		census:       opts.Census,
		retry:        opts.Retry,
		now:          opts.Now,
	}
}

// Process extracts every rooftop of item. Pages are loaded through loader
// and memoized for the item. The error is Fatal when the root page cannot
// be loaded, or the context's error when the run was cancelled; any other
// failure degrades to Unsure fields.
func (p *Pipeline) Process(ctx context.Context, item model.WorkItem, loader pageview.Loader) ([]model.DealerRecord, error) {
	log := zap.L().With(zap.String("item", item.ID), zap.String("url", item.URL))
	start := time.Now()
	cache := pageview.NewCache(loader, p.retry)

	rootFetch := cache.Get(ctx, item.URL)
	if !rootFetch.OK() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.Fatal(rootFetch.Err, "pipeline: root page unreachable")
	}
	root := rootFetch.Page

	var locations pageview.PageView
	if u, ok := location.LocationsPageURL(root); ok {
		if f := cache.Get(ctx, u); f.OK() {
			locations = f.Page
		}
	}

	exp := p.expander.Expand(item, root, locations)
	if exp.Multi() {
		log.Info("pipeline: multiple rooftops",
			zap.Int("rooftops", len(exp.Rooftops)),
			zap.Strings("signals", exp.Signals),
			zap.Int("overflow", exp.Overflow),
		)
	}

	records := make([]model.DealerRecord, 0, len(exp.Rooftops))
	for _, rc := range exp.Rooftops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var notes []model.Evidence
		if rc.LocationIndex == 0 {
			notes = exp.Evidence
		}
		rec := p.processRooftop(ctx, item, rc, root, cache, notes)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	log.Info("pipeline: item complete",
		zap.Int("rooftops", len(records)),
		zap.Int("failed_fetches", len(cache.Failures())),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return records, nil
}

func (p *Pipeline) processRooftop(ctx context.Context, item model.WorkItem, rc model.RooftopContext, root pageview.PageView, cache *pageview.Cache, notes []model.Evidence) model.DealerRecord {
	log := zap.L().With(zap.String("item", item.ID), zap.Int("location", rc.LocationIndex), zap.String("rooftop", rc.RootURL))
	start := time.Now()

	page := root
	if normalize.InputKey(rc.RootURL) != normalize.InputKey(root.URL()) {
		f := cache.Get(ctx, rc.RootURL)
		if !f.OK() {
			log.Warn("pipeline: rooftop page unavailable", zap.Error(f.Err))
			reason := fmt.Sprintf("rooftop page unavailable: %v", f.Err)
			rec := assemble.Placeholder(rc, item.InputIndex, reason, p.now())
			ev := append([]model.Evidence(nil), notes...)
			rec.Evidence = append(append(ev, rec.Evidence...), f.Evidence...)
			return rec
		}
		page = f.Page
	}

	pages := strategy.NewPages(ctx, cache, rc, page, p.fingerprints)
	results := make(assemble.Results, len(resolveOrder))
	for _, field := range resolveOrder {
		var r model.FieldResult
		if field == model.FieldCounty {
			r = p.resolveCounty(ctx, pages)
		} else {
			r = p.resolver.Resolve(field, p.tables.Table(field), pages)
		}
		results[field] = r

		switch field {
		case model.FieldAddress:
			if a, ok := r.Value().(model.Address); ok {
				pages.Address = &a
			}
		case model.FieldCreditAppURL:
			if u, ok := r.Value().(string); ok {
				pages.CreditAppURL = u
			}
		}
	}

	rec := assemble.Assemble(rc, item.InputIndex, results, notes, p.now())
	var unsure int
	for _, r := range results {
		if r.IsUnsure() {
			unsure++
		}
	}
	log.Debug("pipeline: rooftop resolved",
		zap.Int("unsure_fields", unsure),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return rec
}

// resolveCounty asks the Census geocoder for the resolved address first and
// falls back to county mentions in the site's text.
func (p *Pipeline) resolveCounty(ctx context.Context, pages *strategy.Pages) model.FieldResult {
	var ev []model.Evidence
	switch {
	case p.census == nil:
	case pages.Address == nil:
		ev = append(ev, model.Evidence{Description: "census lookup skipped: no resolved address"})
	default:
		c, err := p.census.LookupCounty(ctx, *pages.Address)
		switch {
		case err != nil:
			zap.L().Debug("pipeline: census lookup failed", zap.Error(err))
			ev = append(ev, model.Evidence{Description: fmt.Sprintf("census lookup failed: %v", err)})
		case c == nil:
			ev = append(ev, model.Evidence{Description: "census lookup: no match for " + pages.Address.Full()})
		default:
			return model.NewFieldResult(model.FieldCounty, *c, model.ConfidenceHigh, "census", []model.Evidence{{
				Description: fmt.Sprintf("county via census: %s for %s", c.FullName(), pages.Address.Full()),
				SourceURL:   c.VerificationURL,
			}})
		}
	}

	r := p.resolver.Resolve(model.FieldCounty, p.tables.Table(model.FieldCounty), pages)
	if len(ev) == 0 {
		return r
	}
	return model.NewFieldResult(r.Field(), r.Value(), r.Confidence(), r.Strategy(), append(ev, r.Evidence()...))
}
