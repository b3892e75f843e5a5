package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	tables, err := Default()
	require.NoError(t, err)
	assert.Equal(t, KindWebsite, tables.Website.Kind)
	assert.Equal(t, KindCredit, tables.Credit.Kind)
	assert.NotEmpty(t, tables.Website.Providers)
	assert.NotEmpty(t, tables.Credit.Providers)

	p, ok := tables.Website.Get("dealeron")
	require.True(t, ok)
	assert.Equal(t, "DealerOn", p.DisplayName)
}

func TestLoad(t *testing.T) {
	doc := `
website_providers:
  - id: acme
    domains: [AcmeSites.com]
    texts: ["Website by Acme"]
credit_providers:
  - id: lender
    display_name: Lender Co
    domains: [lender.io]
`
	path := filepath.Join(t.TempDir(), "fp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	tables, err := Load(path)
	require.NoError(t, err)
	require.Len(t, tables.Website.Providers, 1)
	acme := tables.Website.Providers[0]
	assert.Equal(t, "acme", acme.DisplayName)
	assert.Equal(t, []string{"acmesites.com"}, acme.Domains)
	assert.Equal(t, []string{"website by acme"}, acme.Texts)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("website_providers:\n  - display_name: x\n"))
	assert.ErrorContains(t, err, "no id")

	_, err = Parse([]byte("credit_providers:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte("website_providers: [unclosed"))
	assert.Error(t, err)
}

func TestTable_MatchURL(t *testing.T) {
	tables, err := Default()
	require.NoError(t, err)
	web := tables.Website

	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.dealeron.com/js/app.js", "dealeron"},
		{"https://dealeron.com/", "dealeron"},
		{"https://di-uploads-pod3.dealerinspire.com/img.png", "dealer_inspire"},
		{"https://www.smithdealer.com/static/site.js", ""},
		{"https://www.example.com/wp-content/plugins/dealerinspire/x.js", "dealer_inspire"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			h, ok := web.MatchURL(tt.url)
			if tt.want == "" {
				assert.False(t, ok, "unexpected hit %+v", h)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, h.Provider.ID)
			assert.Equal(t, tt.url, h.Subject)
		})
	}

	h, ok := tables.Credit.MatchURL("https://www.capitalone.com/cars/prequalify?dealer=9")
	require.True(t, ok)
	assert.Equal(t, "capital_one_navigator", h.Provider.ID)
	_, ok = tables.Credit.MatchURL("https://www.capitalone.com/credit-cards")
	assert.False(t, ok)
}

func TestTable_MatchURLs_FirstWins(t *testing.T) {
	tables, err := Default()
	require.NoError(t, err)
	h, ok := tables.Credit.MatchURLs([]string{
		"https://www.dealer.example/site.css",
		"https://apply.routeone.net/form",
		"https://www.dealertrack.com/x",
	})
	require.True(t, ok)
	assert.Equal(t, "routeone", h.Provider.ID)
}

func TestTable_MatchTextAndMeta(t *testing.T) {
	tables, err := Default()
	require.NoError(t, err)

	h, ok := tables.Website.MatchText("© 2026 Smith Motors. Website by DealerOn. Privacy")
	require.True(t, ok)
	assert.Equal(t, "dealeron", h.Provider.ID)
	assert.Contains(t, h.Subject, "website by dealeron")

	_, ok = tables.Website.MatchText("")
	assert.False(t, ok)
	_, ok = tables.Website.MatchText("Visit smithdealer.com today")
	assert.False(t, ok)

	h, ok = tables.Website.MatchMeta("Dealer Inspire WordPress")
	require.True(t, ok)
	assert.Equal(t, "dealer_inspire", h.Provider.ID)
}
