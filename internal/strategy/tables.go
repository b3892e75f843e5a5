package strategy

import (
	"github.com/sells-group/dealer-scraper/internal/model"
)

// Tables holds the strategy list of every field, built once at start-up.
type Tables map[model.FieldName][]Strategy

// DefaultTables returns the fixed strategy order for every field.
func DefaultTables() Tables {
	return Tables{
		model.FieldDealerName:     nameStrategies(),
		model.FieldPhone:          phoneStrategies(),
		model.FieldAddress:        addressStrategies(),
		model.FieldCounty:         countyStrategies(),
		model.FieldSalesHours:     hoursStrategies(model.FieldSalesHours),
		model.FieldServiceHours:   hoursStrategies(model.FieldServiceHours),
		model.FieldPartsHours:     hoursStrategies(model.FieldPartsHours),
		model.FieldProvider:       providerStrategies(websiteTarget, websiteTable),
		model.FieldServiceURL:     urlStrategies(serviceTarget),
		model.FieldCreditAppURL:   urlStrategies(creditTargetLinks),
		model.FieldCreditProvider: providerStrategies(creditTarget, creditTable),
		model.FieldFacebook:       facebookStrategies(),
	}
}

// Table returns the strategies for field in priority order.
func (t Tables) Table(field model.FieldName) []Strategy {
	return t[field]
}

// Names lists the strategy names for field, for logging and docs.
func (t Tables) Names(field model.FieldName) []string {
	var out []string
	for _, s := range t[field] {
		out = append(out, s.Name)
	}
	return out
}
