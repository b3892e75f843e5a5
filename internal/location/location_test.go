package location

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/pageview"
)

func page(t *testing.T, url, body string) pageview.PageView {
	t.Helper()
	doc, err := pageview.FromHTML(url, body)
	require.NoError(t, err)
	return doc
}

var item = model.NewWorkItem("https://group.example", "https://group.example/", 3)

func TestExpand_SingleRooftop(t *testing.T) {
	root := page(t, "https://solo.example/", `<html><body><a href="/inventory">Inventory</a><a href="/locations/">Directions</a></body></html>`)
	exp := Expander{}.Expand(item, root, nil)
	require.Len(t, exp.Rooftops, 1)
	assert.False(t, exp.Multi())
	assert.Equal(t, model.RooftopContext{ParentID: item.ID, LocationIndex: 0, RootURL: "https://solo.example/", MarkupIndex: -1}, exp.Rooftops[0])
	assert.Equal(t, []string{"locations page"}, exp.Signals)
	require.Len(t, exp.Evidence, 1)
	assert.Contains(t, exp.Evidence[0].Description, "fewer than two rooftops")
}

func TestExpand_NoSignals(t *testing.T) {
	root := page(t, "https://solo.example/", `<html><body><p>One store</p></body></html>`)
	exp := Expander{}.Expand(item, root, nil)
	require.Len(t, exp.Rooftops, 1)
	assert.Empty(t, exp.Signals)
	assert.Empty(t, exp.Evidence)
}

func TestExpand_LocationLinks(t *testing.T) {
	root := page(t, "https://group.example/", `<html><body>
<a href="/locations">All Locations</a>
<a href="/locations/north">North Store</a>
<a href="https://group.example/locations/north/">North again</a>
<a href="https://other.example/locations/x">Partner</a>
</body></html>`)
	locs := page(t, "https://group.example/locations", `<html><body>
<a href="/locations/north">North</a>
<a href="/locations/south?utm_source=nav">South</a>
</body></html>`)

	exp := Expander{MaxRooftops: 5}.Expand(item, root, locs)
	require.Len(t, exp.Rooftops, 2)
	assert.Equal(t, "https://group.example/locations/north", exp.Rooftops[0].RootURL)
	assert.Equal(t, "North Store", exp.Rooftops[0].Label)
	assert.Equal(t, "https://group.example/locations/south", exp.Rooftops[1].RootURL)
	assert.Equal(t, 1, exp.Rooftops[1].LocationIndex)
	assert.Equal(t, item.ID, exp.Rooftops[1].ParentID)
	assert.Equal(t, -1, exp.Rooftops[1].MarkupIndex)
	assert.Contains(t, exp.Signals, "location links")

	u, ok := LocationsPageURL(root)
	require.True(t, ok)
	assert.Equal(t, "https://group.example/locations", u)
}

func TestExpand_MarkupBlocks(t *testing.T) {
	root := page(t, "https://duo.example/", `<html><head>
<script type="application/ld+json">{"@type":"WebSite","name":"Duo"}</script>
<script type="application/ld+json">[
 {"@type":"AutoDealer","name":"Duo Ford","hasMap":"https://maps.google.com/?cid=1&utm_source=x","address":{"streetAddress":"1 A St","addressLocality":"X","addressRegion":"IL","postalCode":"60601"}},
 {"@type":"AutoDealer","name":"Duo Ford Dup","address":{"streetAddress":"1 a st","addressLocality":"x","addressRegion":"IL","postalCode":"60601"}},
 {"@type":"AutoDealer","name":"Duo Kia","address":{"streetAddress":"2 B St","addressLocality":"X","addressRegion":"IL","postalCode":"60601"}}
]</script></head><body></body></html>`)

	exp := Expander{}.Expand(item, root, nil)
	require.Len(t, exp.Rooftops, 2)
	assert.Equal(t, 0, exp.Rooftops[0].MarkupIndex)
	assert.Equal(t, "https://maps.google.com/?cid=1", exp.Rooftops[0].ResolvedMapsURL)
	assert.Equal(t, "Duo Kia", exp.Rooftops[1].Label)
	assert.Equal(t, 2, exp.Rooftops[1].MarkupIndex)
	assert.Equal(t, "https://duo.example/", exp.Rooftops[1].RootURL)
	assert.Equal(t, []string{"multiple address markup blocks"}, exp.Signals)
}

func TestExpand_Cap(t *testing.T) {
	var b strings.Builder
	for i := range 13 {
		fmt.Fprintf(&b, `<a href="/stores/store-%02d">Store %d</a>`, i, i)
	}
	root := page(t, "https://big.example/", "<html><body>"+b.String()+"</body></html>")

	exp := Expander{MaxRooftops: 10}.Expand(item, root, nil)
	require.Len(t, exp.Rooftops, 10)
	assert.Equal(t, 3, exp.Overflow)
	assert.Equal(t, "https://big.example/stores/store-09", exp.Rooftops[9].RootURL)

	var capNote bool
	for _, e := range exp.Evidence {
		if strings.Contains(e.Description, "13 rooftops detected, kept first 10") && strings.Contains(e.Description, "3 not processed") {
			capNote = true
		}
	}
	assert.True(t, capNote)
}
