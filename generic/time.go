package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// REFERENCE DATE - Which day's prices apply
// =============================================================================

// NeutralHour is the UTC time-of-day used for date-only reference dates.
// Midday keeps the calendar day stable for every server timezone.
const NeutralHour = 12

// DateLayout is the calendar date format accepted on the wire.
const DateLayout = "2006-01-02"

// ReferenceDateHeader is the side channel consulted when a request body
// omits the reference date.
const ReferenceDateHeader = "X-Reference-Date"

// NeutralDay pins a calendar date to NeutralHour UTC.
func NeutralDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, NeutralHour, 0, 0, 0, time.UTC)
}

// NeutralToday returns today's UTC calendar date at NeutralHour.
func NeutralToday(now time.Time) time.Time {
	u := now.UTC()
	return NeutralDay(u.Year(), u.Month(), u.Day())
}

// ParseReferenceDate accepts "2006-01-02" (pinned to NeutralHour UTC) or an
// RFC 3339 timestamp (converted to UTC).
func ParseReferenceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return NeutralDay(t.Year(), t.Month(), t.Day()), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q (use YYYY-MM-DD or RFC 3339)", s)
}

// ResolveReferenceDate applies the precedence explicit field > header >
// neutral today. Empty strings count as absent.
func ResolveReferenceDate(field, header string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(field) != "" {
		t, err := ParseReferenceDate(field)
		if err != nil {
			return time.Time{}, &ValidationError{Field: "reference_date", Message: err.Error()}
		}
		return t, nil
	}
	if strings.TrimSpace(header) != "" {
		t, err := ParseReferenceDate(header)
		if err != nil {
			return time.Time{}, &ValidationError{Field: ReferenceDateHeader, Message: err.Error()}
		}
		return t, nil
	}
	return NeutralToday(now), nil
}
