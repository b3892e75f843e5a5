package assemble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealer-scraper/internal/model"
)

var (
	rooftop = model.RooftopContext{ParentID: "abc", RootURL: "https://D.example?utm_source=x", MarkupIndex: -1}
	at      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func TestAssemble_SetsTypedFields(t *testing.T) {
	hours := model.HoursTable{"9:00 AM – 6:00 PM"}
	results := Results{
		model.FieldDealerName: model.NewFieldResult(model.FieldDealerName, "Smith Motors", model.ConfidenceHigh, "jsonld_name",
			[]model.Evidence{{Description: "name via jsonld_name", SourceURL: "https://d.example/"}}),
		model.FieldAddress:        model.NewFieldResult(model.FieldAddress, model.Address{Street: "1 Main St", City: "X", State: "IL", ZipCode: "60601"}, model.ConfidenceHigh, "jsonld_address", nil),
		model.FieldPhone:          model.NewFieldResult(model.FieldPhone, model.Phone{Pretty: "(217) 544-1234", Digits: "2175441234"}, model.ConfidenceMedium, "footer", nil),
		model.FieldSalesHours:     model.NewFieldResult(model.FieldSalesHours, hours, model.ConfidenceMedium, "hours_page", nil),
		model.FieldCreditProvider: model.NewFieldResult(model.FieldCreditProvider, model.ProviderMatch{ID: "routeone", DisplayName: "RouteOne"}, model.ConfidenceHigh, "resource_domains", nil),
		model.FieldFacebook:       model.NewFieldResult(model.FieldFacebook, model.Facebook{URL: "https://www.facebook.com/smith"}, model.ConfidenceHigh, "facebook_link", nil),
		model.FieldServiceURL:     model.UnsureResult(model.FieldServiceURL, []model.Evidence{{Description: "strategy link_pattern attempted, no match: none"}}),
	}

	rec := Assemble(rooftop, 4, results, nil, at)
	assert.Equal(t, "Smith Motors", rec.Name)
	require.NotNil(t, rec.Address)
	assert.Equal(t, "1 Main St", rec.Address.Street)
	assert.Equal(t, "2175441234", rec.Phone.Digits)
	assert.Equal(t, hours, rec.Hours.Sales)
	assert.True(t, rec.Hours.Service.IsEmpty())
	assert.Equal(t, "routeone", rec.CreditProvider.ID)
	assert.Equal(t, "https://www.facebook.com/smith", rec.Facebook.URL)
	assert.Empty(t, rec.ServiceSchedulerURL)
	assert.Nil(t, rec.County)
	assert.Equal(t, "https://d.example/", rec.Website)
	assert.Equal(t, 4, rec.InputIndex)
	assert.Equal(t, at, rec.CapturedAt)
}

func TestAssemble_EvidenceOrderAndDedupe(t *testing.T) {
	shared := model.Evidence{Description: "fetch attempt 1 failed", SourceURL: "https://d.example/hours"}
	results := Results{
		model.FieldFacebook:     model.UnsureResult(model.FieldFacebook, []model.Evidence{{Description: "strategy facebook_link attempted, no match: none"}}),
		model.FieldSalesHours:   model.UnsureResult(model.FieldSalesHours, []model.Evidence{shared}),
		model.FieldServiceHours: model.UnsureResult(model.FieldServiceHours, []model.Evidence{shared}),
		model.FieldDealerName:   model.NewFieldResult(model.FieldDealerName, "X", model.ConfidenceHigh, "jsonld_name", []model.Evidence{{Description: "name via jsonld_name"}}),
	}
	notes := []model.Evidence{{Description: "2 rooftops from signals: location links"}}

	rec := Assemble(rooftop, 0, results, notes, at)
	var descs []string
	for _, e := range rec.Evidence {
		descs = append(descs, e.Description)
	}
	assert.Equal(t, "2 rooftops from signals: location links", descs[0])
	assert.Equal(t, "name via jsonld_name", descs[1])
	assert.Contains(t, descs, "sales_hours: fetch attempt 1 failed")
	assert.NotContains(t, descs, "service_hours: fetch attempt 1 failed")
	assert.Equal(t, "facebook: strategy facebook_link attempted, no match: none", descs[len(descs)-1])

	// Every missing field is explained.
	assert.Contains(t, descs, "phone: not resolved")
	assert.Contains(t, descs, "address: not resolved")
}

func TestAssemble_SameAttemptListedPerField(t *testing.T) {
	attempt := model.Evidence{Description: "strategy hours_page attempted, no match: none", SourceURL: "https://d.example/hours"}
	results := Results{
		model.FieldSalesHours:   model.UnsureResult(model.FieldSalesHours, []model.Evidence{attempt}),
		model.FieldServiceHours: model.UnsureResult(model.FieldServiceHours, []model.Evidence{attempt}),
		model.FieldPartsHours:   model.UnsureResult(model.FieldPartsHours, []model.Evidence{attempt, attempt}),
	}

	rec := Assemble(rooftop, 0, results, nil, at)
	count := make(map[string]int)
	for _, e := range rec.Evidence {
		count[e.Description]++
	}
	for _, f := range []model.FieldName{model.FieldSalesHours, model.FieldServiceHours, model.FieldPartsHours} {
		assert.Equal(t, 1, count[string(f)+": "+attempt.Description], "field %s", f)
	}
}

func TestPlaceholder(t *testing.T) {
	rec := Placeholder(rooftop, 2, "rooftop page unavailable", at)
	assert.Empty(t, rec.Name)
	assert.Nil(t, rec.Address)
	assert.True(t, rec.Hours.Sales.IsEmpty())
	require.Len(t, rec.Evidence, 1)
	assert.Equal(t, "rooftop page unavailable", rec.Evidence[0].Description)
	assert.Equal(t, 2, rec.InputIndex)
}
