package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountyLabel(t *testing.T) {
	assert.Equal(t, LabelParish, CountyLabel("Orleans", "LA"))
	assert.Equal(t, LabelBorough, CountyLabel("Anchorage", "ak"))
	assert.Equal(t, LabelIndependentCity, CountyLabel("Richmond", "VA"))
	assert.Equal(t, LabelIndependentCity, CountyLabel("Fairfax city", "VA"))
	assert.Equal(t, LabelCounty, CountyLabel("Fairfax County", "VA"))
	assert.Equal(t, LabelCounty, CountyLabel("Cook", "IL"))
	assert.Equal(t, LabelCounty, CountyLabel("Cook", ""))
}

func TestCounty(t *testing.T) {
	c := County("Cook County", "IL", "census")
	assert.Equal(t, "Cook", c.Name)
	assert.Equal(t, "Cook County", c.FullName())

	c = County("Orleans Parish", "LA", "census")
	assert.Equal(t, "Orleans Parish", c.FullName())

	c = County("Richmond city", "VA", "census")
	assert.Equal(t, "Richmond Independent City", c.FullName())
}

func TestCountyFromText(t *testing.T) {
	c, ok := CountyFromText("Proudly serving Cook County since 1950", "IL")
	require.True(t, ok)
	assert.Equal(t, "Cook", c.Name)
	assert.Equal(t, "County", c.Label)

	c, ok = CountyFromText("Serving St. Tammany Parish drivers", "LA")
	require.True(t, ok)
	assert.Equal(t, "St. Tammany", c.Name)
	assert.Equal(t, "Parish", c.Label)

	_, ok = CountyFromText("No location here", "IL")
	assert.False(t, ok)
}
