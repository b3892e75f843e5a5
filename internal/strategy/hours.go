package strategy

import (
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

// Department keywords, each paired with "hour" when locating a block.
var departmentKeywords = map[model.FieldName][]string{
	model.FieldSalesHours:   {"sales", "showroom"},
	model.FieldServiceHours: {"service", "repair"},
	model.FieldPartsHours:   {"parts", "accessories"},
}

// maxBlockLines bounds how far past a heading an hours block may run.
const maxBlockLines = 16

// hoursPages is the page order searched for every department.
var hoursPages = []PageKind{PageHours, PageContact, PageLocations, PageAbout}

func hoursStrategies(field model.FieldName) []Strategy {
	var out []Strategy
	for i, kind := range hoursPages {
		out = append(out, Strategy{Name: string(kind) + "_page", Tier: i, Fn: hoursFromCandidate(field, kind)})
	}
	out = append(out,
		Strategy{Name: "rooftop_page", Tier: len(hoursPages), Fn: func(p *Pages) Outcome {
			return hoursFromPage(field, p.Root(), "rooftop page")
		}},
		Strategy{Name: "closed_marker", Tier: len(hoursPages) + 1, Fn: closedMarker(field)},
	)
	return out
}

func hoursFromCandidate(field model.FieldName, kind PageKind) func(*Pages) Outcome {
	return func(p *Pages) Outcome {
		page, u := p.Candidate(kind)
		if page == nil {
			return NoMatchAt(u, string(kind)+" page unavailable")
		}
		return hoursFromPage(field, page, string(kind)+" page")
	}
}

func hoursFromPage(field model.FieldName, page pageview.PageView, where string) Outcome {
	lines := pageLines(page)
	dept := departmentName(field)
	if blocks := departmentBlocks(lines, field); len(blocks) > 0 {
		for _, block := range blocks {
			if hp := normalize.ParseHours(block); hp.Days > 0 {
				return Match(hp.Table, model.ConfidenceMedium, page.URL(), dept+" hours block on "+where)
			}
		}
		return NoMatchAt(page.URL(), dept+" hours block on "+where+" has no day entries")
	}
	if hasDepartmentLabels(lines) {
		return NoMatchAt(page.URL(), "no "+dept+" hours block on "+where)
	}
	if block, ok := generalBlock(lines); ok {
		if hp := normalize.ParseHours(block); hp.Days > 0 {
			return Match(hp.Table, model.ConfidenceMedium, page.URL(), "general hours block on "+where+" (no department labels)")
		}
	}
	return NoMatchAt(page.URL(), "no hours on "+where)
}

// closedMarker resolves a department whose block on some candidate page
// says "closed" without listing days. Without such a marker the field stays
// Unsure.
func closedMarker(field model.FieldName) func(*Pages) Outcome {
	return func(p *Pages) Outcome {
		var pages []pageview.PageView
		for _, kind := range hoursPages {
			if f, ok := p.cache.Peek(p.CandidateURL(kind)); ok && f.OK() {
				pages = append(pages, f.Page)
			}
		}
		pages = append(pages, p.Root())
		for _, page := range pages {
			for _, block := range departmentBlocks(pageLines(page), field) {
				if hp := normalize.ParseHours(block); hp.Days == 0 && hp.ClosedMarker {
					var t model.HoursTable
					for i := range t {
						t[i] = model.HoursClosed
					}
					return Match(t, model.ConfidenceMedium, page.URL(), "explicit closed marker for "+departmentName(field))
				}
			}
		}
		return NoMatch("no explicit closed marker for " + departmentName(field))
	}
}

func pageLines(page pageview.PageView) []string {
	return strings.Split(page.QueryText("body"), "\n")
}

func departmentName(field model.FieldName) string {
	return departmentKeywords[field][0]
}

func isHeading(line string, keywords []string) bool {
	l := strings.ToLower(line)
	if !strings.Contains(l, "hour") {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(l, kw) {
			return true
		}
	}
	return false
}

// headingFor returns the departments a line is a heading for.
func headingFor(line string) []model.FieldName {
	var out []model.FieldName
	for _, f := range []model.FieldName{model.FieldSalesHours, model.FieldServiceHours, model.FieldPartsHours} {
		if isHeading(line, departmentKeywords[f]) {
			out = append(out, f)
		}
	}
	return out
}

func hasDepartmentLabels(lines []string) bool {
	for _, l := range lines {
		if len(headingFor(l)) > 0 {
			return true
		}
	}
	return false
}

// departmentBlocks returns, for each heading naming the department, the
// text from the heading up to the next heading of any department.
func departmentBlocks(lines []string, field model.FieldName) []string {
	var out []string
	for i, l := range lines {
		if !isHeading(l, departmentKeywords[field]) {
			continue
		}
		block := []string{l}
		for _, next := range lines[i+1:] {
			if len(headingFor(next)) > 0 || len(block) > maxBlockLines {
				break
			}
			block = append(block, next)
		}
		out = append(out, strings.Join(block, "\n"))
	}
	return out
}

// generalBlock returns the text following the first "hours" line.
func generalBlock(lines []string) (string, bool) {
	for i, l := range lines {
		if strings.Contains(strings.ToLower(l), "hour") {
			end := min(len(lines), i+1+maxBlockLines)
			return strings.Join(lines[i:end], "\n"), true
		}
	}
	return "", false
}
