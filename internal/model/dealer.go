package model

import (
	"strings"
	"time"
)

// RooftopContext is one physical location derived from a WorkItem.
type RooftopContext struct {
	ParentID        string `json:"parent_id"`
	LocationIndex   int    `json:"location_index"`
	RootURL         string `json:"root_url"`
	ResolvedMapsURL string `json:"resolved_maps_url,omitempty"`
	Label           string `json:"label,omitempty"`
	// MarkupIndex selects one structured-markup block on the root page when
	// several rooftops share it. -1 means no specific block.
	MarkupIndex int `json:"markup_index"`
}

// Address holds structured address components.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
}

// Full renders "street, city, ST zip".
func (a Address) Full() string {
	var b strings.Builder
	b.WriteString(a.Street)
	if a.City != "" {
		b.WriteString(", ")
		b.WriteString(a.City)
	}
	if a.State != "" {
		b.WriteString(", ")
		b.WriteString(a.State)
	}
	if a.ZipCode != "" {
		b.WriteString(" ")
		b.WriteString(a.ZipCode)
	}
	return b.String()
}

// Equal compares addresses ignoring case and surrounding whitespace.
func (a Address) Equal(o Address) bool {
	eq := func(x, y string) bool { return strings.EqualFold(strings.TrimSpace(x), strings.TrimSpace(y)) }
	return eq(a.Street, o.Street) && eq(a.City, o.City) && eq(a.State, o.State) && eq(a.ZipCode, o.ZipCode)
}

// Phone holds a normalized ten-digit phone number.
type Phone struct {
	Raw    string `json:"raw"`
	Pretty string `json:"pretty"`
	Digits string `json:"digits"`
}

// County holds a county-equivalent name with its regional label.
type County struct {
	Name            string `json:"name"`
	Label           string `json:"label"` // County, Parish, Borough, Independent City
	Source          string `json:"source"`
	VerificationURL string `json:"verification_url,omitempty"`
}

// FullName renders "Cook County".
func (c County) FullName() string {
	if c.Label == "" {
		return c.Name
	}
	return c.Name + " " + c.Label
}

// Weekdays lists the days of an hours table in output order.
var Weekdays = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Special hours values.
const (
	HoursClosed = "Closed"
	HoursAllDay = "Open 24 hours"
	HoursUnsure = "Unsure"
)

// HoursTable is a Monday-first 7-day table. Empty entries mean Unsure.
type HoursTable [7]string

// Get returns the value for day i, or Unsure when unset.
func (h HoursTable) Get(i int) string {
	if h[i] == "" {
		return HoursUnsure
	}
	return h[i]
}

// IsEmpty reports whether no day has a value.
func (h HoursTable) IsEmpty() bool {
	for _, v := range h {
		if v != "" {
			return false
		}
	}
	return true
}

// DepartmentHours holds the per-department tables.
type DepartmentHours struct {
	Sales   HoursTable `json:"sales"`
	Service HoursTable `json:"service"`
	Parts   HoursTable `json:"parts"`
}

// ProviderMatch identifies a detected platform or embedded provider.
type ProviderMatch struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Signal      string `json:"signal"`   // resource, text, metadata, network
	Evidence    string `json:"evidence"` // the matching URL or text
}

// Facebook holds a cleaned Facebook page URL and its numeric id when known.
type Facebook struct {
	URL    string `json:"url"`
	PageID string `json:"page_id,omitempty"`
	Start  string `json:"start,omitempty"`
}

// DealerRecord is the final normalized entity for one rooftop. Nil or empty
// fields are unresolved and render as Unsure.
type DealerRecord struct {
	Rooftop             RooftopContext  `json:"rooftop"`
	InputIndex          int             `json:"input_index"`
	Name                string          `json:"name,omitempty"`
	Address             *Address        `json:"address,omitempty"`
	County              *County         `json:"county,omitempty"`
	Phone               *Phone          `json:"phone,omitempty"`
	Website             string          `json:"website"`
	Provider            *ProviderMatch  `json:"provider,omitempty"`
	Hours               DepartmentHours `json:"hours"`
	ServiceSchedulerURL string          `json:"service_scheduler_url,omitempty"`
	CreditAppURL        string          `json:"credit_app_url,omitempty"`
	CreditProvider      *ProviderMatch  `json:"credit_provider,omitempty"`
	Facebook            *Facebook       `json:"facebook,omitempty"`
	Evidence            []Evidence      `json:"evidence"`
	CapturedAt          time.Time       `json:"captured_at"`
}
