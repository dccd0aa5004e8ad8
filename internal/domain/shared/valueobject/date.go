package valueobject

import (
	"math"
	"time"
)

// DateOf truncates t to midnight UTC of its calendar date (in t's own location)
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of days from a to b, rounded up.
// Partial days count as a full day; a negative span yields a negative count.
func DaysBetween(a, b time.Time) int {
	return int(math.Ceil(b.Sub(a).Hours() / 24))
}

// WithinInclusive reports whether t lies in [from, to]; a nil bound is open
func WithinInclusive(t time.Time, from *time.Time, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}
