// Package assemble builds DealerRecords from resolved field results.
package assemble

import (
	"strings"
	"time"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
)

// Results maps each field to its resolution.
type Results map[model.FieldName]model.FieldResult

// Assemble builds the record for one rooftop. notes are rooftop-level
// entries (expansion signals, caps) listed before field evidence. Evidence
// follows the fixed field order, once per field. A field
// missing from results is Unsure.
func Assemble(rooftop model.RooftopContext, inputIndex int, results Results, notes []model.Evidence, capturedAt time.Time) model.DealerRecord {
	rec := model.DealerRecord{
		Rooftop:    rooftop,
		InputIndex: inputIndex,
		Website:    website(rooftop.RootURL),
		CapturedAt: capturedAt,
	}

	ev := newEvidence()
	ev.add("", notes)

	for _, f := range model.AllFields() {
		r, ok := results[f]
		if !ok {
			ev.add(f, []model.Evidence{{Description: "not resolved"}})
			continue
		}
		ev.add(f, r.Evidence())
		if r.IsUnsure() {
			continue
		}
		set(&rec, f, r.Value())
	}
	rec.Evidence = ev.list
	return rec
}

// Placeholder is the record of a rooftop that could not be processed: every
// field Unsure and reason as its evidence.
func Placeholder(rooftop model.RooftopContext, inputIndex int, reason string, capturedAt time.Time) model.DealerRecord {
	return model.DealerRecord{
		Rooftop:    rooftop,
		InputIndex: inputIndex,
		Website:    website(rooftop.RootURL),
		Evidence:   []model.Evidence{{Description: reason, SourceURL: rooftop.RootURL}},
		CapturedAt: capturedAt,
	}
}

func set(rec *model.DealerRecord, f model.FieldName, v any) {
	switch f {
	case model.FieldDealerName:
		if s, ok := v.(string); ok {
			rec.Name = s
		}
	case model.FieldAddress:
		if a, ok := v.(model.Address); ok {
			rec.Address = &a
		}
	case model.FieldCounty:
		if c, ok := v.(model.County); ok {
			rec.County = &c
		}
	case model.FieldPhone:
		if p, ok := v.(model.Phone); ok {
			rec.Phone = &p
		}
	case model.FieldProvider:
		if p, ok := v.(model.ProviderMatch); ok {
			rec.Provider = &p
		}
	case model.FieldSalesHours:
		rec.Hours.Sales, _ = v.(model.HoursTable)
	case model.FieldServiceHours:
		rec.Hours.Service, _ = v.(model.HoursTable)
	case model.FieldPartsHours:
		rec.Hours.Parts, _ = v.(model.HoursTable)
	case model.FieldServiceURL:
		rec.ServiceSchedulerURL, _ = v.(string)
	case model.FieldCreditAppURL:
		rec.CreditAppURL, _ = v.(string)
	case model.FieldCreditProvider:
		if p, ok := v.(model.ProviderMatch); ok {
			rec.CreditProvider = &p
		}
	case model.FieldFacebook:
		if fb, ok := v.(model.Facebook); ok {
			rec.Facebook = &fb
		}
	}
}

func website(root string) string {
	if u, err := normalize.URL(root); err == nil {
		return u
	}
	return root
}

// evidence accumulates entries per field. Each field lists its own attempt
// trail; a page-fetch failure shared by several fields is listed once, under
// the first of them.
type evidence struct {
	seen map[model.Evidence]bool
	list []model.Evidence
}

func newEvidence() *evidence {
	return &evidence{seen: make(map[model.Evidence]bool)}
}

func (e *evidence) add(f model.FieldName, entries []model.Evidence) {
	for _, en := range entries {
		raw := en
		if f != "" && !strings.HasPrefix(en.Description, string(f)+" ") {
			en.Description = string(f) + ": " + en.Description
		}
		key := en
		if strings.HasPrefix(raw.Description, "fetch ") {
			key = raw
		}
		if e.seen[key] {
			continue
		}
		e.seen[key] = true
		e.list = append(e.list, en)
	}
}
