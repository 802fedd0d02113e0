package transform

import (
	"fmt"
	"strings"
	"time"
)

// CanonicalDateLayout is the one inter-stage date contract: the cleaner emits
// invoice dates in this exact textual form and the loader's time-dimension
// parser consumes it. Change both together or the staging/dim_time join breaks.
const CanonicalDateLayout = "02/01/2006 03:04:05 PM"

// DateKeyLayout is the day-precision form used as the dim_time natural key.
const DateKeyLayout = "2006-01-02"

// sourceDateLayouts are tried in order when coercing raw invoice dates.
// Canonical (day-first, 12-hour) comes first so reprocessing a cleaned
// artifact round-trips; the meridiem suffix keeps it from ever matching the
// month-first 24-hour forms the upstream export uses.
var sourceDateLayouts = []string{
	CanonicalDateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
}

// ParseInvoiceDate coerces a raw invoice date string to a time.Time.
// Unparseable input returns ok=false; the caller turns that into a missing
// value so the row falls out in null filtering instead of surviving as
// garbage text.
func ParseInvoiceDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range sourceDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CanonicalInvoiceDate renders t in the staging/loading contract format.
func CanonicalInvoiceDate(t time.Time) string {
	return t.Format(CanonicalDateLayout)
}

// Calendar holds the derived attributes for one dim_time row.
type Calendar struct {
	Date      string // DateKeyLayout, the natural key
	DayOfWeek string // e.g. "Saturday"
	Month     string // e.g. "March"
	Year      int64
	Quarter   string // "Q1".."Q4"
}

// CalendarFor derives the time-dimension attributes for a calendar date.
func CalendarFor(t time.Time) Calendar {
	return Calendar{
		Date:      t.Format(DateKeyLayout),
		DayOfWeek: t.Weekday().String(),
		Month:     t.Month().String(),
		Year:      int64(t.Year()),
		Quarter:   fmt.Sprintf("Q%d", (int(t.Month())-1)/3+1),
	}
}
