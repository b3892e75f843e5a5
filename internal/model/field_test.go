package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidence(t *testing.T) {
	assert.True(t, ConfidenceHigh.AtLeast(ConfidenceMedium))
	assert.True(t, ConfidenceMedium.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceLow.AtLeast(ConfidenceMedium))
	assert.Equal(t, ConfidenceHigh, ParseConfidence(" HIGH "))
	assert.Equal(t, ConfidenceLow, ParseConfidence("low"))
	assert.Equal(t, ConfidenceMedium, ParseConfidence("bogus"))
	assert.Equal(t, "medium", ConfidenceMedium.String())
}

func TestFieldResult_Immutable(t *testing.T) {
	ev := []Evidence{{Description: "found in footer", SourceURL: "https://a.com/"}}
	r := NewFieldResult(FieldPhone, "2175551234", ConfidenceMedium, "footer", ev)

	ev[0].Description = "mutated"
	assert.Equal(t, "found in footer", r.Evidence()[0].Description)

	got := r.Evidence()
	got[0].Description = "mutated again"
	assert.Equal(t, "found in footer", r.Evidence()[0].Description)

	r2 := r.WithEvidence(Evidence{Description: "extra"})
	assert.Len(t, r.Evidence(), 1)
	assert.Len(t, r2.Evidence(), 2)
}

func TestUnsureResult(t *testing.T) {
	r := UnsureResult(FieldAddress, []Evidence{{Description: "json-ld: no match"}})
	assert.True(t, r.IsUnsure())
	assert.Equal(t, ConfidenceLow, r.Confidence())
	assert.Equal(t, "Unsure", Unsure.String())

	assert.True(t, NewFieldResult(FieldAddress, nil, ConfidenceHigh, "x", nil).IsUnsure())
	assert.True(t, IsUnsure(nil))
	assert.False(t, IsUnsure("x"))
}
