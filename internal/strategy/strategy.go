// Package strategy resolves dealer fields by running ordered tables of
// extraction strategies against a rooftop's pages.
package strategy

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/sells-group/dealer-scraper/internal/model"
)

// Outcome is what one strategy returns: a value with its confidence and
// source, or NoMatch with a reason.
type Outcome struct {
	Value      any
	Confidence model.Confidence
	Source     string
	Note       string
	matched    bool
}

// Match builds a matching Outcome.
func Match(value any, confidence model.Confidence, source, note string) Outcome {
	return Outcome{Value: value, Confidence: confidence, Source: source, Note: note, matched: true}
}

// NoMatch builds a non-matching Outcome.
func NoMatch(reason string) Outcome {
	return Outcome{Note: reason}
}

// NoMatchAt builds a non-matching Outcome that still names the page examined.
func NoMatchAt(source, reason string) Outcome {
	return Outcome{Source: source, Note: reason}
}

// Matched reports whether the strategy produced a value.
func (o Outcome) Matched() bool { return o.matched && !model.IsUnsure(o.Value) }

// Strategy is one named extraction method. Strategies sharing a Tier are
// equally reliable; a later one in the same tier is consulted only to detect
// conflicts with the winner.
type Strategy struct {
	Name string
	Tier int
	Fn   func(*Pages) Outcome
}

// Resolver runs strategy tables.
type Resolver struct {
	MinConfidence model.Confidence
}

// NewResolver creates a Resolver with the given acceptance threshold.
func NewResolver(min model.Confidence) Resolver {
	return Resolver{MinConfidence: min}
}

// Resolve evaluates strategies in order. The first outcome at or above the
// threshold wins; remaining strategies in the winner's tier are evaluated
// only to record conflicting values. Exhaustion yields Unsure at Low
// confidence with one evidence entry per attempted strategy. Fetch failures
// for pages the strategies asked for are appended to the evidence.
func (r Resolver) Resolve(field model.FieldName, strategies []Strategy, pages *Pages) model.FieldResult {
	mark := pages.mark()
	var evidence []model.Evidence
	var winner *Strategy
	var won Outcome

	for i := range strategies {
		s := &strategies[i]
		if winner != nil && s.Tier != winner.Tier {
			break
		}
		out := s.Fn(pages)

		if winner != nil {
			if out.Matched() && out.Confidence.AtLeast(r.MinConfidence) && !sameValue(out.Value, won.Value) {
				evidence = append(evidence, model.Evidence{
					Description: fmt.Sprintf("conflict: %s found %s, discarded in favor of %s", s.Name, describe(out.Value), winner.Name),
					SourceURL:   out.Source,
				})
			}
			continue
		}

		switch {
		case !out.Matched():
			evidence = append(evidence, model.Evidence{
				Description: fmt.Sprintf("strategy %s attempted, no match: %s", s.Name, out.Note),
				SourceURL:   out.Source,
			})
		case !out.Confidence.AtLeast(r.MinConfidence):
			evidence = append(evidence, model.Evidence{
				Description: fmt.Sprintf("strategy %s found %s at %s confidence, below %s threshold", s.Name, describe(out.Value), out.Confidence, r.MinConfidence),
				SourceURL:   out.Source,
			})
		default:
			winner, won = s, out
			desc := fmt.Sprintf("%s via %s", field, s.Name)
			if out.Note != "" {
				desc += ": " + out.Note
			}
			evidence = append(evidence, model.Evidence{Description: desc, SourceURL: out.Source})
		}
	}

	evidence = append(evidence, pages.fetchEvidence(mark)...)
	if winner == nil {
		return model.UnsureResult(field, evidence)
	}
	return model.NewFieldResult(field, won.Value, won.Confidence, winner.Name, evidence)
}

// sameValue compares two field values the way a reader would: addresses
// ignoring case, providers by id, strings case-insensitively.
func sameValue(a, b any) bool {
	switch x := a.(type) {
	case model.Address:
		y, ok := b.(model.Address)
		return ok && x.Equal(y)
	case model.ProviderMatch:
		y, ok := b.(model.ProviderMatch)
		return ok && x.ID == y.ID
	case model.Phone:
		y, ok := b.(model.Phone)
		return ok && x.Digits == y.Digits
	case model.County:
		y, ok := b.(model.County)
		return ok && strings.EqualFold(x.FullName(), y.FullName())
	case model.Facebook:
		y, ok := b.(model.Facebook)
		return ok && strings.EqualFold(x.URL, y.URL)
	case string:
		y, ok := b.(string)
		return ok && strings.EqualFold(strings.TrimSpace(x), strings.TrimSpace(y))
	}
	return reflect.DeepEqual(a, b)
}

func describe(v any) string {
	switch x := v.(type) {
	case model.Address:
		return fmt.Sprintf("%q", x.Full())
	case model.ProviderMatch:
		return x.DisplayName
	case model.Phone:
		return x.Pretty
	case model.County:
		return x.FullName()
	case model.Facebook:
		return x.URL
	case model.HoursTable:
		var parts []string
		for i, d := range x {
			if d != "" {
				parts = append(parts, model.Weekdays[i][:3]+" "+d)
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return fmt.Sprintf("%q", x)
	}
	return fmt.Sprintf("%v", v)
}
