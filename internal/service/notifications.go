package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/contextlog/internal/events"
	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/metrics"
	"github.com/fyrsmithlabs/contextlog/internal/notify"
	"github.com/fyrsmithlabs/contextlog/internal/store"
)

// NotificationList is the active notification feed.
type NotificationList struct {
	Notifications []journal.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
}

// Notifications returns the active notifications among the most recent
// undismissed ones. Empty messages are filled with the type's default.
func (s *Service) Notifications(ctx context.Context, userID string) (NotificationList, error) {
	recent, err := s.store.ListNotifications(ctx, userID, store.NotificationFilter{Limit: notificationLimit})
	if err != nil {
		return NotificationList{}, fmt.Errorf("listing notifications: %w", err)
	}
	active := s.notifier.Active(recent)
	for i := range active {
		active[i].Message = notify.FormatMessage(active[i])
	}
	return NotificationList{
		Notifications: active,
		UnreadCount:   s.notifier.UnreadCount(recent),
	}, nil
}

// CreateNotification stores a notification of a known type. It does not
// apply rate limits; see Notify for the gated variant.
func (s *Service) CreateNotification(ctx context.Context, userID, notificationType string, opts notify.CreateOptions) (journal.Notification, error) {
	if err := requireUser(userID); err != nil {
		return journal.Notification{}, err
	}
	n, err := s.notifier.Create(userID, notificationType, opts)
	if errors.Is(err, notify.ErrUnknownType) {
		return journal.Notification{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err != nil {
		return journal.Notification{}, err
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return journal.Notification{}, fmt.Errorf("storing notification: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()
	s.publish(ctx, events.NotificationCreated, userID, map[string]string{
		"notification_id": n.ID,
		"type":            n.Type,
	})
	return n, nil
}

// Notify creates a notification only when the user's settings, the weekly
// cap and the pending duplicate rule allow it. It reports whether one was
// created.
func (s *Service) Notify(ctx context.Context, userID, notificationType string, opts notify.CreateOptions) (bool, error) {
	p, err := s.profile(ctx, userID)
	if err != nil {
		return false, err
	}
	existing, err := s.store.ListNotifications(ctx, userID, store.NotificationFilter{
		IncludeDismissed: true,
		Type:             notificationType,
	})
	if err != nil {
		return false, fmt.Errorf("listing notifications: %w", err)
	}
	if !s.notifier.ShouldCreate(notificationType, existing, p.UserSettings) {
		return false, nil
	}
	if _, err := s.CreateNotification(ctx, userID, notificationType, opts); err != nil {
		return false, err
	}
	return true, nil
}

// MarkNotificationRead marks a notification read.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return s.store.MarkNotificationRead(ctx, userID, id, s.clock.Now())
}

// DismissNotification hides a notification.
func (s *Service) DismissNotification(ctx context.Context, userID, id string) error {
	return s.store.DismissNotification(ctx, userID, id, s.clock.Now())
}

// NotifySilence creates a silence-nudge notification when the user is in a
// silence episode that has not been nudged or dismissed yet.
func (s *Service) NotifySilence(ctx context.Context, userID string) (bool, error) {
	status, err := s.ReflectionStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	prompt := status.Silence.Prompt
	if prompt == nil {
		return false, nil
	}
	return s.Notify(ctx, userID, journal.NotifySilenceNudge, notify.CreateOptions{
		Title:   prompt.Title,
		Message: prompt.Message,
		Metadata: map[string]any{
			"days_since_activity": prompt.DaysSinceActivity,
		},
	})
}

// WeeklyReflectionDue reports whether it is the user's weekly reflection
// time.
func (s *Service) WeeklyReflectionDue(ctx context.Context, userID string) (bool, error) {
	p, err := s.profile(ctx, userID)
	if err != nil {
		return false, err
	}
	return notify.IsWeeklyReflectionTime(p.UserSettings, s.clock.Now()), nil
}

// NotifyWeeklyReflection creates a weekly-reflection-ready notification when
// it is the user's reflection time.
func (s *Service) NotifyWeeklyReflection(ctx context.Context, userID string) (bool, error) {
	due, err := s.WeeklyReflectionDue(ctx, userID)
	if err != nil || !due {
		return false, err
	}
	return s.Notify(ctx, userID, journal.NotifyWeeklyReflectionReady, notify.CreateOptions{})
}
