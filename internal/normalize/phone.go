// Package normalize converts raw strategy output into canonical field values.
// Everything here is pure.
package normalize

import (
	"fmt"
	"regexp"

	"github.com/sells-group/dealer-scraper/internal/model"
)

var (
	phoneRe = regexp.MustCompile(`^\D*1?\D*(\d{3})\D*(\d{3})\D*(\d{4})`)
	// phoneScanRe finds NANP numbers inside running text.
	phoneScanRe = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?(\d{3})\)?[\s.\-]?(\d{3})[\s.\-]?(\d{4})\b`)
)

// fillerAreaCodes are placeholder area codes seen in templates and demos.
var fillerAreaCodes = map[string]bool{"000": true, "111": true, "555": true}

// Phone normalizes a single phone string. ok is false when ten digits
// cannot be found.
func Phone(raw string) (model.Phone, bool) {
	m := phoneRe.FindStringSubmatch(raw)
	if m == nil {
		return model.Phone{}, false
	}
	return newPhone(raw, m[1], m[2], m[3]), true
}

// FindPhones scans text for phone numbers in order of appearance, skipping
// filler area codes and duplicates.
func FindPhones(text string) []model.Phone {
	var out []model.Phone
	seen := make(map[string]bool)
	for _, m := range phoneScanRe.FindAllStringSubmatch(text, -1) {
		if fillerAreaCodes[m[1]] {
			continue
		}
		p := newPhone(m[0], m[1], m[2], m[3])
		if seen[p.Digits] {
			continue
		}
		seen[p.Digits] = true
		out = append(out, p)
	}
	return out
}

func newPhone(raw, area, exchange, line string) model.Phone {
	return model.Phone{
		Raw:    raw,
		Pretty: fmt.Sprintf("(%s) %s-%s", area, exchange, line),
		Digits: area + exchange + line,
	}
}
