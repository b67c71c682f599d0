// Package timewindow provides day-granularity time arithmetic shared by the
// journal analyzers: recency filtering, elapsed days and silence gaps.
//
// All calendar arithmetic is done in UTC so that gap measurements do not
// shift with the server's local zone.
package timewindow

import (
	"sort"
	"time"
)

// Day is the length of one calendar day used for elapsed-time arithmetic.
const Day = 24 * time.Hour

// Clock supplies the current time. Analyzers take a Clock so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Fixed returns a Clock pinned to t.
func Fixed(t time.Time) Clock { return FixedClock(t) }

// TruncateDay returns midnight UTC of the day containing t.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
// Both instants are truncated to their UTC day first, so two entries on the
// same day are zero days apart regardless of their hour.
func DaysBetween(a, b time.Time) int {
	return int(TruncateDay(b).Sub(TruncateDay(a)) / Day)
}

// ElapsedDays returns floor((now - t) / 24h). It is negative for future t.
func ElapsedDays(t, now time.Time) int {
	return floorDays(now.Sub(t))
}

// WindowStart returns the instant windowDays before now.
func WindowStart(now time.Time, windowDays int) time.Time {
	return now.Add(-time.Duration(windowDays) * Day)
}

// Within reports whether t falls inside the trailing window of windowDays
// ending at now (inclusive of the window start).
func Within(t time.Time, windowDays int, now time.Time) bool {
	return !t.Before(WindowStart(now, windowDays))
}

// InRange reports whether start <= t <= end.
func InRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// ActivityDays collapses timestamps to their distinct UTC days, ascending.
func ActivityDays(times []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(times))
	days := make([]time.Time, 0, len(times))
	for _, t := range times {
		day := TruncateDay(t)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// LongestGap returns the longest run of days without activity inside the
// trailing window ending at now. It considers the edge from the window start
// to the first activity day, the spans between consecutive activity days and
// the edge from the last activity day to now. An empty input is a fully
// silent window and yields windowDays.
func LongestGap(times []time.Time, windowDays int, now time.Time) int {
	if len(times) == 0 {
		return windowDays
	}

	days := ActivityDays(times)
	maxGap := 0

	// Window start to first entry
	if first := floorDays(days[0].Sub(WindowStart(now, windowDays))); first > maxGap {
		maxGap = first
	}

	for i := 1; i < len(days); i++ {
		if gap := floorDays(days[i].Sub(days[i-1])); gap > maxGap {
			maxGap = gap
		}
	}

	// Last entry to now
	if last := floorDays(now.Sub(days[len(days)-1])); last > maxGap {
		maxGap = last
	}

	return maxGap
}

// Latest returns the most recent instant in times and false if times is empty.
func Latest(times []time.Time) (time.Time, bool) {
	if len(times) == 0 {
		return time.Time{}, false
	}
	latest := times[0]
	for _, t := range times[1:] {
		if t.After(latest) {
			latest = t
		}
	}
	return latest, true
}

func floorDays(d time.Duration) int {
	days := int(d / Day)
	if d < 0 && d%Day != 0 {
		days--
	}
	return days
}
