package ledger

import "time"

// =============================================================================
// INTERVAL - Half-open [Start, End)
// =============================================================================

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: a lesson ending at 15:00 does not
// collide with one starting at 15:00.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// WeeklyOccurrences returns count start times, each exactly 7 days after the
// previous one. AddDate keeps the wall-clock hour across DST changes.
func WeeklyOccurrences(start time.Time, count int) []time.Time {
	out := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, start.AddDate(0, 0, 7*i))
	}
	return out
}

// =============================================================================
// CALENDAR UTILITIES
// =============================================================================

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

func (c Clock) Now() time.Time {
	if c == nil {
		return SystemClock()
	}
	return c()
}
