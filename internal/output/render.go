package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/dealer-scraper/internal/model"
)

const unsure = "Unsure"

// Renderer formats records as fenced markdown blocks.
type Renderer struct {
	// Location is the timezone of timestamps. Nil means UTC.
	Location *time.Location
	// Header adds a run header stamped with StartedAt.
	Header    bool
	StartedAt time.Time
}

// Render returns the whole document.
func (r Renderer) Render(records []model.DealerRecord) string {
	var b strings.Builder
	if r.Header {
		fmt.Fprintf(&b, "# Dealership Data + URL Discovery — Run started at %s\n\n", r.stamp(r.StartedAt))
	}
	for _, rec := range records {
		b.WriteString(r.Block(rec))
		b.WriteString("\n\n")
	}
	return b.String()
}

// Block renders one record.
func (r Renderer) Block(rec model.DealerRecord) string {
	var lines []string
	add := func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) }

	add("%s", or(rec.Name))
	if rec.Address != nil {
		add("%s", rec.Address.Full())
	} else {
		add(unsure)
	}
	if rec.County != nil {
		add("County: %s", rec.County.FullName())
	} else {
		add("County: %s", unsure)
	}
	if rec.Phone != nil {
		add("Phone: %s", rec.Phone.Pretty)
		add("Phone (no dashes): %s", rec.Phone.Digits)
	} else {
		add("Phone: %s", unsure)
		add("Phone (no dashes): %s", unsure)
	}
	add("Website: %s", or(rec.Website))
	add("Provider: %s", providerName(rec.Provider))
	add("")

	for _, sec := range []struct {
		title string
		table model.HoursTable
	}{
		{"Sales Hours", rec.Hours.Sales},
		{"Service Hours", rec.Hours.Service},
		{"Parts Hours", rec.Hours.Parts},
	} {
		add("%s", sec.title)
		for i, day := range model.Weekdays {
			add("%s: %s", day, sec.table.Get(i))
		}
		add("")
	}

	add("Schedule Service: %s", or(rec.ServiceSchedulerURL))
	add("Credit App: %s", or(rec.CreditAppURL))
	if rec.CreditProvider != nil {
		add("  • Embedded provider (if any): %s", rec.CreditProvider.DisplayName)
	} else {
		add("  • Embedded provider (if any):")
	}
	if rec.Facebook != nil {
		add("Facebook: %s", rec.Facebook.URL)
		add("Facebook Page ID: %s", or(rec.Facebook.PageID))
	} else {
		add("Facebook: %s", unsure)
		add("Facebook Page ID: %s", unsure)
	}
	add("")

	add("Evidence")
	for _, e := range rec.Evidence {
		if e.SourceURL != "" {
			add("- %s: %s", e.Description, e.SourceURL)
		} else {
			add("- %s", e.Description)
		}
	}
	add("- Captured: %s", r.stamp(rec.CapturedAt))

	return "```markdown\n" + strings.Join(lines, "\n") + "\n```"
}

func (r Renderer) stamp(t time.Time) string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%s (%s)", t.In(loc).Format("2006-01-02 15:04"), loc.String())
}

func or(s string) string {
	if strings.TrimSpace(s) == "" {
		return unsure
	}
	return s
}

func providerName(p *model.ProviderMatch) string {
	if p == nil || p.DisplayName == "" {
		return unsure
	}
	return p.DisplayName
}
