package strategy

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

// Business is one schema.org business block from a page's JSON-LD.
type Business struct {
	Types     []string
	Name      string
	Telephone string
	Address   *model.Address
	URL       string
	SameAs    []string
	HasMap    string
}

var businessTypes = map[string]bool{
	"autodealer": true, "automotivebusiness": true, "localbusiness": true, "organization": true,
	"autorepair": true, "autopartsstore": true, "motorcycledealer": true, "store": true,
	"autobodyshop": true, "corporation": true,
}

// ParseBusinesses returns the business blocks in the page's JSON-LD that
// carry a name or an address, in document order. Malformed scripts are
// skipped.
func ParseBusinesses(page pageview.PageView) []Business {
	if page == nil {
		return nil
	}
	var out []Business
	for _, raw := range page.QueryTexts(`script[type="application/ld+json"]`) {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue
		}
		collect(v, &out)
	}
	return out
}

func collect(v any, out *[]Business) {
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			collect(e, out)
		}
	case map[string]any:
		if g, ok := x["@graph"]; ok {
			collect(g, out)
		}
		types := stringsOf(x["@type"])
		if !isBusiness(types) {
			return
		}
		b := Business{
			Types:     types,
			Name:      str(x["name"]),
			Telephone: str(x["telephone"]),
			URL:       str(x["url"]),
			SameAs:    stringsOf(x["sameAs"]),
			HasMap:    str(x["hasMap"]),
			Address:   postalAddress(x["address"]),
		}
		if b.Name != "" || b.Address != nil {
			*out = append(*out, b)
		}
	}
}

func isBusiness(types []string) bool {
	for _, t := range types {
		if businessTypes[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

func postalAddress(v any) *model.Address {
	switch x := v.(type) {
	case []any:
		if len(x) > 0 {
			return postalAddress(x[0])
		}
	case map[string]any:
		a := model.Address{
			Street:  str(x["streetAddress"]),
			City:    str(x["addressLocality"]),
			State:   str(x["addressRegion"]),
			ZipCode: str(x["postalCode"]),
		}
		if a != (model.Address{}) {
			return &a
		}
	}
	return nil
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		// ZIP codes are sometimes written as numbers.
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func stringsOf(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []any:
		var out []string
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
