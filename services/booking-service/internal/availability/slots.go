package availability

import "time"

// Business hours: every appointment must fit entirely inside 09:00-17:00 on
// its calendar day. Candidate starts are tried on whole-hour boundaries only,
// never at arbitrary booking boundaries; all bookings are hour-aligned by
// construction, so the coarser grid cannot miss a real gap today. Revisit if
// sub-hour durations are ever introduced.
const (
	OpenHour  = 9
	CloseHour = 17

	step = time.Hour
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// FindStart returns the earliest whole-hour start on day's calendar date where
// a booking of length duration fits inside business hours without overlapping
// any busy interval. The time-of-day component of day is ignored. The second
// return is false when no slot fits; callers must treat that as a normal
// outcome, not a failure.
//
// All times are expected to be in the same location (timezone).
func FindStart(busy []Interval, day time.Time, duration time.Duration) (time.Time, bool) {
	slots := Openings(busy, day, duration)
	if len(slots) == 0 {
		return time.Time{}, false
	}
	return slots[0], true
}

// Openings returns every whole-hour start on day's calendar date where a
// booking of length duration fits, earliest first.
func Openings(busy []Interval, day time.Time, duration time.Duration) []time.Time {
	if duration <= 0 {
		return nil
	}

	open := time.Date(day.Year(), day.Month(), day.Day(), OpenHour, 0, 0, 0, day.Location())
	close := time.Date(day.Year(), day.Month(), day.Day(), CloseHour, 0, 0, 0, day.Location())

	var slots []time.Time
	for t := open; !t.Add(duration).After(close); t = t.Add(step) {
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
