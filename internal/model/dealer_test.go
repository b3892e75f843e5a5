package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress(t *testing.T) {
	a := Address{Street: "123 Main St", City: "Springfield", State: "IL", ZipCode: "62701"}
	assert.Equal(t, "123 Main St, Springfield, IL 62701", a.Full())
	assert.True(t, a.Equal(Address{Street: "123 main st ", City: "SPRINGFIELD", State: "il", ZipCode: "62701"}))
	assert.False(t, a.Equal(Address{Street: "124 Main St", City: "Springfield", State: "IL", ZipCode: "62701"}))
}

func TestHoursTable(t *testing.T) {
	var h HoursTable
	assert.True(t, h.IsEmpty())
	assert.Equal(t, HoursUnsure, h.Get(0))
	h[6] = HoursClosed
	assert.False(t, h.IsEmpty())
	assert.Equal(t, "Closed", h.Get(6))
}

func TestCountyFullName(t *testing.T) {
	assert.Equal(t, "Cook County", County{Name: "Cook", Label: "County"}.FullName())
	assert.Equal(t, "Cook", County{Name: "Cook"}.FullName())
}
