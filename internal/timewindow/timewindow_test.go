package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 3, 20, 15, 30, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * Day)
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same instant", now, now, 0},
		{"same day different hours", time.Date(2025, 3, 20, 0, 5, 0, 0, time.UTC), time.Date(2025, 3, 20, 23, 55, 0, 0, time.UTC), 0},
		{"late night to early morning", time.Date(2025, 3, 19, 23, 59, 0, 0, time.UTC), time.Date(2025, 3, 20, 0, 1, 0, 0, time.UTC), 1},
		{"one week", daysAgo(7), now, 7},
		{"reversed", now, daysAgo(3), -3},
		{"non-UTC input", time.Date(2025, 3, 20, 1, 0, 0, 0, time.FixedZone("PDT", -7*3600)), now, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.a, tt.b))
		})
	}
}

func TestElapsedDays(t *testing.T) {
	assert.Equal(t, 0, ElapsedDays(now.Add(-23*time.Hour), now))
	assert.Equal(t, 1, ElapsedDays(now.Add(-25*time.Hour), now))
	assert.Equal(t, 31, ElapsedDays(daysAgo(31), now))
	assert.Equal(t, -1, ElapsedDays(now.Add(time.Hour), now))
}

func TestWithin(t *testing.T) {
	assert.True(t, Within(now, 14, now))
	assert.True(t, Within(daysAgo(14), 14, now), "window start is inclusive")
	assert.False(t, Within(daysAgo(14).Add(-time.Second), 14, now))
}

func TestInRange(t *testing.T) {
	start, end := daysAgo(7), now
	assert.True(t, InRange(start, start, end))
	assert.True(t, InRange(end, start, end))
	assert.False(t, InRange(end.Add(time.Nanosecond), start, end))
}

func TestActivityDays_Dedupes(t *testing.T) {
	days := ActivityDays([]time.Time{
		now,
		now.Add(-time.Hour),
		daysAgo(3),
		daysAgo(3).Add(2 * time.Hour),
	})

	assert.Len(t, days, 2)
	assert.True(t, days[0].Before(days[1]))
	assert.Equal(t, TruncateDay(daysAgo(3)), days[0])
}

func TestLongestGap(t *testing.T) {
	t.Run("empty input returns window", func(t *testing.T) {
		for _, window := range []int{1, 7, 14, 30} {
			assert.Equal(t, window, LongestGap(nil, window, now))
		}
	})

	t.Run("activity today only measures gap from window start", func(t *testing.T) {
		assert.Equal(t, 13, LongestGap([]time.Time{now}, 14, now))
	})

	t.Run("daily activity", func(t *testing.T) {
		var times []time.Time
		for i := 0; i <= 14; i++ {
			times = append(times, daysAgo(i))
		}
		assert.Equal(t, 1, LongestGap(times, 14, now))
	})

	t.Run("gap between entries", func(t *testing.T) {
		times := []time.Time{daysAgo(13), daysAgo(12), daysAgo(4), daysAgo(0)}
		assert.Equal(t, 8, LongestGap(times, 14, now))
	})

	t.Run("trailing silence", func(t *testing.T) {
		times := []time.Time{daysAgo(13), daysAgo(12), daysAgo(11), daysAgo(9)}
		assert.Equal(t, 9, LongestGap(times, 14, now))
	})

	t.Run("same-day duplicates count once", func(t *testing.T) {
		one := LongestGap([]time.Time{daysAgo(5)}, 14, now)
		many := LongestGap([]time.Time{daysAgo(5), daysAgo(5).Add(time.Minute), daysAgo(5).Add(time.Hour)}, 14, now)
		assert.Equal(t, one, many)
	})
}

func TestLatest(t *testing.T) {
	_, ok := Latest(nil)
	assert.False(t, ok)

	latest, ok := Latest([]time.Time{daysAgo(3), now, daysAgo(1)})
	assert.True(t, ok)
	assert.Equal(t, now, latest)
}

func TestFixedClock(t *testing.T) {
	c := Fixed(now)
	assert.Equal(t, now, c.Now())
	assert.Equal(t, now, c.Now())
}
