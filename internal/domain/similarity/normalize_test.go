package similarity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVendor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"punctuation collapsed", "Uber Technologies!!", "uber technologies"},
		{"already normal", "uber technologies", "uber technologies"},
		{"surrounding whitespace", "   Starbucks   ", "starbucks"},
		{"mixed separators", "Tim--Hortons,  Inc.", "tim hortons inc"},
		{"digits kept", "7-Eleven #123", "7 eleven 123"},
		{"unicode letters kept", "Café Déjà-Vu", "café déjà vu"},
		{"full-width lowercased only", "ＵＢＥＲ Eats", "ｕｂｅｒ eats"},
		{"only symbols", "!!! ---", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVendor(tt.input))
		})
	}
}

func TestNormalizeVendor_NoCompatibilityFolding(t *testing.T) {
	assert.NotEqual(t, NormalizeVendor("uber"), NormalizeVendor("Ｕｂｅｒ"))
	assert.NotEqual(t, NormalizeVendor("finance"), NormalizeVendor("ﬁnance"))
	assert.Equal(t, NormalizeVendor("Uber"), NormalizeVendor("  UBER!! "))
}

func TestNormalizeVendor_Idempotent(t *testing.T) {
	inputs := []string{"Uber Technologies!!", "  A&B  Co. ", "İstanbul Kebap", "Ünïcödé—Vendor", "", "___"}
	for _, in := range inputs {
		once := NormalizeVendor(in)
		assert.Equal(t, once, NormalizeVendor(once), "input %q", in)
	}
}

func TestNormalizeInvoiceID(t *testing.T) {
	assert.Equal(t, "inv001", NormalizeInvoiceID("INV-001"))
	assert.Equal(t, "inv001", NormalizeInvoiceID("inv 001"))
	assert.Equal(t, "ab12", NormalizeInvoiceID("  #AB/12 "))
	assert.Equal(t, "", NormalizeInvoiceID(" -- "))

	for _, in := range []string{"INV-001", "x_y_z", " 42 "} {
		once := NormalizeInvoiceID(in)
		assert.Equal(t, once, NormalizeInvoiceID(once))
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{100, 100},
		{100.004, 100},
		{100.005, 100.01},
		{1.005, 1.01},
		{2.675, 2.68},
		{99.999, 100},
		{0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAmount(tt.input), "input %v", tt.input)
	}

	assert.True(t, AmountsEqual(100.00, 100))
	assert.False(t, AmountsEqual(100.00, 100.01))
}

func TestNormalizeAmount_NonFinite(t *testing.T) {
	assert.NotPanics(t, func() { NormalizeAmount(math.NaN()) })
	assert.True(t, math.IsNaN(NormalizeAmount(math.NaN())))
	assert.True(t, math.IsInf(NormalizeAmount(math.Inf(1)), 1))
	assert.True(t, math.IsInf(NormalizeAmount(math.Inf(-1)), -1))
	assert.False(t, AmountsEqual(math.NaN(), math.NaN()))
}

func TestDayBounds(t *testing.T) {
	date := time.Date(2024, 3, 15, 17, 45, 0, 0, time.UTC)
	start, end := DayBounds(date)

	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC), end)

	assert.True(t, InWindow(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), start, end))
	assert.True(t, InWindow(time.Date(2024, 3, 16, 23, 59, 59, 0, time.UTC), start, end))
	assert.False(t, InWindow(end, start, end), "end is exclusive")
	assert.False(t, InWindow(time.Date(2024, 3, 13, 23, 59, 0, 0, time.UTC), start, end))
	assert.False(t, InWindow(time.Time{}, start, end))
}

func TestDayBounds_UsesUTCCalendarDay(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	// 01:00 IST on the 15th is still the 14th in UTC
	date := time.Date(2024, 3, 15, 1, 0, 0, 0, ist)
	start, end := DayBounds(date)

	assert.Equal(t, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), end)
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("2024-03-15")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)

	got, ok = ParseDate("2024-03-15T10:30:00+05:30")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 5, 0, 0, 0, time.UTC), got)

	_, ok = ParseDate("not a date")
	assert.False(t, ok)

	_, ok = ParseDate("")
	assert.False(t, ok)
}
