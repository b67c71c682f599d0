package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

// Sunday.
var now = time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)

func ago(days int) time.Time {
	return now.Add(-time.Duration(days) * timewindow.Day)
}

func newTestManager() *Manager {
	return NewManager(timewindow.Fixed(now), WithIDFunc(func() string { return "n-1" }))
}

func TestShouldCreate(t *testing.T) {
	m := newTestManager()
	settings := journal.DefaultSettings()

	t.Run("unknown type", func(t *testing.T) {
		assert.False(t, m.ShouldCreate("fireworks", nil, settings))
	})

	t.Run("settings toggles", func(t *testing.T) {
		assert.True(t, m.ShouldCreate(journal.NotifySilenceNudge, nil, settings))
		assert.False(t, m.ShouldCreate(journal.NotifyCaptureReminder, nil, settings))

		off := settings
		off.SilenceNudgesEnabled = false
		off.WeeklyReflectionsEnabled = false
		assert.False(t, m.ShouldCreate(journal.NotifySilenceNudge, nil, off))
		assert.False(t, m.ShouldCreate(journal.NotifyWeeklyReflectionReady, nil, off))
		assert.True(t, m.ShouldCreate(journal.NotifyPerspectiveCard, nil, off))
	})

	t.Run("weekly cap", func(t *testing.T) {
		read := journal.Notification{Type: journal.NotifySilenceNudge, Read: true, CreatedAt: ago(3)}
		assert.False(t, m.ShouldCreate(journal.NotifySilenceNudge, []journal.Notification{read}, settings))

		old := read
		old.CreatedAt = ago(8)
		assert.True(t, m.ShouldCreate(journal.NotifySilenceNudge, []journal.Notification{old}, settings))

		cards := []journal.Notification{
			{Type: journal.NotifyPerspectiveCard, Read: true, CreatedAt: ago(1)},
			{Type: journal.NotifyPerspectiveCard, Dismissed: true, CreatedAt: ago(2)},
		}
		assert.True(t, m.ShouldCreate(journal.NotifyPerspectiveCard, cards, settings))
		cards = append(cards, journal.Notification{Type: journal.NotifyPerspectiveCard, Read: true, CreatedAt: ago(6)})
		assert.False(t, m.ShouldCreate(journal.NotifyPerspectiveCard, cards, settings))
	})

	t.Run("unread duplicate blocks even when old", func(t *testing.T) {
		unread := journal.Notification{Type: journal.NotifyPerspectiveCard, CreatedAt: ago(30)}
		assert.False(t, m.ShouldCreate(journal.NotifyPerspectiveCard, []journal.Notification{unread}, settings))
	})
}

func TestCreate(t *testing.T) {
	m := newTestManager()

	n, err := m.Create("u1", journal.NotifyWeeklyReflectionReady, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "n-1", n.ID)
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, "Weekly reflection", n.Title)
	assert.Equal(t, journal.PriorityMedium, n.Priority)
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, now.AddDate(0, 0, 3), *n.ExpiresAt)
	assert.NotNil(t, n.Metadata)
	assert.Equal(t, "Your weekly reflection is ready to view.", FormatMessage(n))

	n, err = m.Create("u1", journal.NotifySilenceNudge, CreateOptions{Title: "Hi", Message: "Custom", Metadata: map[string]any{"days": 6}})
	require.NoError(t, err)
	assert.Equal(t, "Hi", n.Title)
	assert.Equal(t, "Custom", FormatMessage(n))
	assert.Equal(t, 6, n.Metadata["days"])

	_, err = m.Create("u1", "fireworks", CreateOptions{})
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestActive(t *testing.T) {
	m := newTestManager()
	expired := ago(1)
	later := now.Add(time.Hour)
	notifications := []journal.Notification{
		{ID: "low-old", Priority: journal.PriorityLow, CreatedAt: ago(3)},
		{ID: "low-new", Priority: journal.PriorityLow, CreatedAt: ago(1), Read: true},
		{ID: "medium", Priority: journal.PriorityMedium, CreatedAt: ago(5), ExpiresAt: &later},
		{ID: "high", Priority: journal.PriorityHigh, CreatedAt: ago(6)},
		{ID: "dismissed", Priority: journal.PriorityHigh, CreatedAt: ago(1), Dismissed: true},
		{ID: "expired", Priority: journal.PriorityHigh, CreatedAt: ago(4), ExpiresAt: &expired},
	}

	active := m.Active(notifications)
	ids := make([]string, 0, len(active))
	for _, n := range active {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"high", "medium", "low-new", "low-old"}, ids)
	assert.Equal(t, 3, m.UnreadCount(notifications))
}

func TestIsWeeklyReflectionTime(t *testing.T) {
	settings := journal.DefaultSettings()

	assert.True(t, IsWeeklyReflectionTime(settings, now))
	assert.True(t, IsWeeklyReflectionTime(settings, time.Date(2025, 6, 15, 20, 59, 0, 0, time.UTC)))
	assert.False(t, IsWeeklyReflectionTime(settings, time.Date(2025, 6, 15, 21, 0, 0, 0, time.UTC)))
	assert.False(t, IsWeeklyReflectionTime(settings, time.Date(2025, 6, 15, 17, 59, 0, 0, time.UTC)))
	assert.False(t, IsWeeklyReflectionTime(settings, time.Date(2025, 6, 16, 18, 30, 0, 0, time.UTC)))

	off := settings
	off.WeeklyReflectionsEnabled = false
	assert.False(t, IsWeeklyReflectionTime(off, now))

	monday := settings
	monday.ReflectionDay = 1
	monday.ReflectionHour = 9
	assert.True(t, IsWeeklyReflectionTime(monday, time.Date(2025, 6, 16, 11, 0, 0, 0, time.UTC)))
}

func TestFormatMessage_UnknownType(t *testing.T) {
	assert.Equal(t, "", FormatMessage(journal.Notification{Type: "other"}))
	assert.Equal(t, "x", FormatMessage(journal.Notification{Type: "other", Message: "x"}))
}
