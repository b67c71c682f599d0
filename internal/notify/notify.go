// Package notify decides when in-app notifications are created and which
// ones are still worth showing. Delivery is left to the client.
package notify

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

// ErrUnknownType is returned for a notification type outside Types.
var ErrUnknownType = errors.New("unknown notification type")

// TypeConfig is the per-type policy.
type TypeConfig struct {
	Title            string
	Priority         journal.Priority
	DismissAfterDays int
	MaxPerWeek       int
	DefaultMessage   string
}

// Types lists every notification type the manager can create.
var Types = map[string]TypeConfig{
	journal.NotifySilenceNudge: {
		Title:            "Quiet period",
		Priority:         journal.PriorityLow,
		DismissAfterDays: 7,
		MaxPerWeek:       1,
		DefaultMessage:   "It's been quiet. When you're ready, there's space here.",
	},
	journal.NotifyWeeklyReflectionReady: {
		Title:            "Weekly reflection",
		Priority:         journal.PriorityMedium,
		DismissAfterDays: 3,
		MaxPerWeek:       1,
		DefaultMessage:   "Your weekly reflection is ready to view.",
	},
	journal.NotifyCaptureReminder: {
		Title:            "Gentle reminder",
		Priority:         journal.PriorityLow,
		DismissAfterDays: 1,
		MaxPerWeek:       2,
		DefaultMessage:   "A gentle nudge to capture what matters.",
	},
	journal.NotifyPerspectiveCard: {
		Title:            "Something to consider",
		Priority:         journal.PriorityLow,
		DismissAfterDays: 7,
		MaxPerWeek:       3,
		DefaultMessage:   "Something worth considering.",
	},
}

// ValidType reports whether t is a known notification type.
func ValidType(t string) bool {
	_, ok := Types[t]
	return ok
}

var priorityRank = map[journal.Priority]int{
	journal.PriorityHigh:   0,
	journal.PriorityMedium: 1,
	journal.PriorityLow:    2,
}

func rank(p journal.Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[journal.PriorityLow]
}

// CreateOptions override the per-type defaults.
type CreateOptions struct {
	Title    string
	Message  string
	Metadata map[string]any
}

// Manager applies the notification policy relative to a clock.
type Manager struct {
	clock timewindow.Clock
	newID func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDFunc overrides notification id generation.
func WithIDFunc(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a Manager. A nil clock uses the system clock.
func NewManager(clock timewindow.Clock, opts ...Option) *Manager {
	if clock == nil {
		clock = timewindow.SystemClock{}
	}
	m := &Manager{
		clock: clock,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func enabled(notificationType string, settings journal.UserSettings) bool {
	switch notificationType {
	case journal.NotifySilenceNudge:
		return settings.SilenceNudgesEnabled
	case journal.NotifyWeeklyReflectionReady:
		return settings.WeeklyReflectionsEnabled
	case journal.NotifyCaptureReminder:
		return settings.CaptureRemindersEnabled
	default:
		return true
	}
}

// ShouldCreate reports whether a notification of the given type may be
// created now. It is refused when the type is switched off in settings,
// when the weekly cap for the type is reached, or while an unread,
// undismissed notification of the same type exists.
func (m *Manager) ShouldCreate(notificationType string, existing []journal.Notification, settings journal.UserSettings) bool {
	cfg, ok := Types[notificationType]
	if !ok || !enabled(notificationType, settings) {
		return false
	}

	oneWeekAgo := m.clock.Now().Add(-7 * timewindow.Day)
	recent := 0
	for _, n := range existing {
		if n.Type != notificationType {
			continue
		}
		if !n.Read && !n.Dismissed {
			return false
		}
		if n.CreatedAt.After(oneWeekAgo) {
			recent++
		}
	}
	return recent < cfg.MaxPerWeek
}

// Create builds a notification of the given type for userID.
func (m *Manager) Create(userID, notificationType string, opts CreateOptions) (journal.Notification, error) {
	cfg, ok := Types[notificationType]
	if !ok {
		return journal.Notification{}, fmt.Errorf("%w: %q", ErrUnknownType, notificationType)
	}

	now := m.clock.Now()
	expires := now.AddDate(0, 0, cfg.DismissAfterDays)
	n := journal.Notification{
		ID:        m.newID(),
		UserID:    userID,
		Type:      notificationType,
		Title:     cfg.Title,
		Message:   opts.Message,
		Priority:  cfg.Priority,
		CreatedAt: now,
		ExpiresAt: &expires,
		Metadata:  opts.Metadata,
	}
	if opts.Title != "" {
		n.Title = opts.Title
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	return n, nil
}

// Active returns undismissed, unexpired notifications, highest priority
// first and newest first within a priority.
func (m *Manager) Active(notifications []journal.Notification) []journal.Notification {
	now := m.clock.Now()
	out := make([]journal.Notification, 0, len(notifications))
	for _, n := range notifications {
		if n.Dismissed {
			continue
		}
		if n.ExpiresAt != nil && n.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Priority), rank(out[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UnreadCount counts active notifications not yet read.
func (m *Manager) UnreadCount(notifications []journal.Notification) int {
	count := 0
	for _, n := range m.Active(notifications) {
		if !n.Read {
			count++
		}
	}
	return count
}

// IsWeeklyReflectionTime reports whether now falls on the configured
// reflection day within the two hours after the reflection hour.
func IsWeeklyReflectionTime(settings journal.UserSettings, now time.Time) bool {
	if !settings.WeeklyReflectionsEnabled {
		return false
	}
	if int(now.Weekday()) != settings.ReflectionDay {
		return false
	}
	h := now.Hour()
	return h >= settings.ReflectionHour && h <= settings.ReflectionHour+2
}

// FormatMessage returns the notification message, or the type's default
// when the message is empty.
func FormatMessage(n journal.Notification) string {
	if n.Message != "" {
		return n.Message
	}
	if cfg, ok := Types[n.Type]; ok {
		return cfg.DefaultMessage
	}
	return n.Message
}
