package model

import "strings"

// FieldName identifies an extracted field.
type FieldName string

const (
	FieldDealerName     FieldName = "name"
	FieldPhone          FieldName = "phone"
	FieldAddress        FieldName = "address"
	FieldCounty         FieldName = "county"
	FieldSalesHours     FieldName = "sales_hours"
	FieldServiceHours   FieldName = "service_hours"
	FieldPartsHours     FieldName = "parts_hours"
	FieldProvider       FieldName = "website_provider"
	FieldServiceURL     FieldName = "service_scheduler_url"
	FieldCreditAppURL   FieldName = "credit_app_url"
	FieldCreditProvider FieldName = "credit_provider"
	FieldFacebook       FieldName = "facebook"
)

// AllFields returns every field in record order.
func AllFields() []FieldName {
	return []FieldName{
		FieldDealerName,
		FieldAddress,
		FieldCounty,
		FieldPhone,
		FieldProvider,
		FieldSalesHours,
		FieldServiceHours,
		FieldPartsHours,
		FieldServiceURL,
		FieldCreditAppURL,
		FieldCreditProvider,
		FieldFacebook,
	}
}

// Confidence grades a field result. The zero value is Low.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseConfidence parses "high", "medium" or "low" (case-insensitive).
// Unknown values map to Medium.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "low":
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// AtLeast reports whether c meets the threshold.
func (c Confidence) AtLeast(threshold Confidence) bool {
	return c >= threshold
}

// UnsureValue is the sentinel value of a field that could not be resolved.
type UnsureValue struct{}

func (UnsureValue) String() string { return "Unsure" }

// Unsure is the single UnsureValue instance.
var Unsure = UnsureValue{}

// IsUnsure reports whether v is the Unsure sentinel (or nil).
func IsUnsure(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(UnsureValue)
	return ok
}

// Evidence is one entry in the audit trail behind a field value.
type Evidence struct {
	Description string `json:"description"`
	SourceURL   string `json:"source_url,omitempty"`
}

// FieldResult is the output of resolving one field. It is immutable: the
// evidence slice is copied on construction and on read.
type FieldResult struct {
	field      FieldName
	value      any
	confidence Confidence
	strategy   string
	evidence   []Evidence
}

// NewFieldResult creates a FieldResult.
func NewFieldResult(field FieldName, value any, confidence Confidence, strategy string, evidence []Evidence) FieldResult {
	if value == nil {
		value = Unsure
	}
	return FieldResult{
		field:      field,
		value:      value,
		confidence: confidence,
		strategy:   strategy,
		evidence:   append([]Evidence(nil), evidence...),
	}
}

// UnsureResult creates the Low-confidence Unsure result for a field.
func UnsureResult(field FieldName, evidence []Evidence) FieldResult {
	return NewFieldResult(field, Unsure, ConfidenceLow, "", evidence)
}

func (r FieldResult) Field() FieldName       { return r.field }
func (r FieldResult) Value() any             { return r.value }
func (r FieldResult) Confidence() Confidence { return r.confidence }
func (r FieldResult) Strategy() string       { return r.strategy }
func (r FieldResult) IsUnsure() bool         { return IsUnsure(r.value) }
func (r FieldResult) Evidence() []Evidence   { return append([]Evidence(nil), r.evidence...) }

// WithEvidence returns a copy of r with extra evidence appended.
func (r FieldResult) WithEvidence(extra ...Evidence) FieldResult {
	out := r
	out.evidence = append(append([]Evidence(nil), r.evidence...), extra...)
	return out
}
