// Package similarity turns free-text expense fields into canonical forms that can be compared
// byte-for-byte. Every function here is pure and total.
package similarity

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	lower = cases.Lower(language.Und)
	half  = decimal.New(5, -1)
)

// dateLayouts are tried in order by ParseDate
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
}

// NormalizeVendor lowercases s and collapses every run of non-letter, non-digit runes into one space.
// No compatibility folding is applied: full-width and ligature spellings stay distinct.
func NormalizeVendor(s string) string {
	s = lower.String(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	inGap := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if inGap && b.Len() > 0 {
				b.WriteByte(' ')
			}
			inGap = false
			b.WriteRune(r)
			continue
		}
		inGap = true
	}
	return b.String()
}

// NormalizeAmount rounds n to cents, half-up. NaN and infinities come back unchanged.
func NormalizeAmount(n float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return n
	}
	d := decimal.NewFromFloat(n).Shift(2).Add(half).Floor().Shift(-2)
	return d.InexactFloat64()
}

// AmountsEqual compares two amounts after normalisation, without any tolerance band
func AmountsEqual(a, b float64) bool {
	return NormalizeAmount(a) == NormalizeAmount(b)
}

// NormalizeInvoiceID lowercases s and strips everything that is not a letter or digit.
// An empty result means the invoice id is absent.
func NormalizeInvoiceID(s string) string {
	s = lower.String(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DayBounds returns the half-open UTC window [date-1d 00:00, date+2d 00:00)
func DayBounds(date time.Time) (time.Time, time.Time) {
	u := date.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day()-1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 3)
}

// InWindow reports whether t falls inside [start, end)
func InWindow(t, start, end time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(start) && t.Before(end)
}

// ParseDate accepts the date layouts clients and the receipt parser produce
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
