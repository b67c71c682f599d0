package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
)

const notificationColumns = `id, user_id, type, title, message, priority, read, read_at, dismissed,
	dismissed_at, metadata, created_at, expires_at`

// NotificationFilter narrows ListNotifications.
type NotificationFilter struct {
	IncludeDismissed bool

	// Type restricts to one notification type when set.
	Type string

	Limit int
}

// CreateNotification inserts a notification.
func (s *Store) CreateNotification(ctx context.Context, n journal.Notification) error {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_events (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, string(n.Priority), boolInt(n.Read), nullTime(n.ReadAt),
		boolInt(n.Dismissed), nullTime(n.DismissedAt), string(data), formatTime(n.CreatedAt), nullTime(n.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]journal.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notification_events WHERE user_id = ?`
	args := []any{userID}
	if !f.IncludeDismissed {
		query += ` AND dismissed = 0`
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	defer rows.Close()

	out := []journal.Notification{}
	for rows.Next() {
		var (
			n                          journal.Notification
			priority, metadata         string
			read, dismissed            int
			readAt, dismissedAt, expAt sql.NullString
			createdAt                  string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &priority, &read, &readAt,
			&dismissed, &dismissedAt, &metadata, &createdAt, &expAt); err != nil {
			return nil, fmt.Errorf("store: scan notification: %w", err)
		}
		n.Priority = journal.Priority(priority)
		n.Read = read != 0
		n.Dismissed = dismissed != 0
		if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode metadata: %w", err)
		}
		if n.ReadAt, err = parseNullTime(readAt); err != nil {
			return nil, err
		}
		if n.DismissedAt, err = parseNullTime(dismissedAt); err != nil {
			return nil, err
		}
		if n.ExpiresAt, err = parseNullTime(expAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags a notification read.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_events SET read = 1, read_at = COALESCE(read_at, ?)
		WHERE user_id = ? AND id = ?`,
		formatTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("store: mark notification read: %w", err)
	}
	return requireAffected(res)
}

// DismissNotification flags a notification dismissed.
func (s *Store) DismissNotification(ctx context.Context, userID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_events SET dismissed = 1, dismissed_at = COALESCE(dismissed_at, ?)
		WHERE user_id = ? AND id = ?`,
		formatTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("store: dismiss notification: %w", err)
	}
	return requireAffected(res)
}

const reflectionColumns = `id, user_id, period_start, period_end, summary, reflection_question,
	suggested_action, tone, user_notes, viewed, viewed_at, created_at`

// SaveReflection inserts a saved weekly reflection.
func (s *Store) SaveReflection(ctx context.Context, r journal.SavedReflection) error {
	summary := string(r.Summary)
	if summary == "" {
		summary = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weekly_reflections (`+reflectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, formatTime(r.PeriodStart), formatTime(r.PeriodEnd), summary, r.ReflectionQuestion,
		r.SuggestedAction, r.Tone, r.UserNotes, boolInt(r.Viewed), nullTime(r.ViewedAt), formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert reflection: %w", err)
	}
	return nil
}

// LatestReflectionSince returns the newest reflection saved at or after
// since, or ErrNotFound.
func (s *Store) LatestReflectionSince(ctx context.Context, userID string, since time.Time) (journal.SavedReflection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reflectionColumns+` FROM weekly_reflections
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1`,
		userID, formatTime(since))
	r, err := scanReflection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.SavedReflection{}, ErrNotFound
	}
	if err != nil {
		return journal.SavedReflection{}, fmt.Errorf("store: latest reflection: %w", err)
	}
	return r, nil
}

// ListReflections returns up to limit saved reflections, newest first.
func (s *Store) ListReflections(ctx context.Context, userID string, limit int) ([]journal.SavedReflection, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reflectionColumns+` FROM weekly_reflections
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list reflections: %w", err)
	}
	defer rows.Close()

	out := []journal.SavedReflection{}
	for rows.Next() {
		r, err := scanReflection(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan reflection: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReflection(row scanner) (journal.SavedReflection, error) {
	var (
		r                   journal.SavedReflection
		start, end, created string
		summary             string
		viewed              int
		viewedAt            sql.NullString
	)
	if err := row.Scan(&r.ID, &r.UserID, &start, &end, &summary, &r.ReflectionQuestion,
		&r.SuggestedAction, &r.Tone, &r.UserNotes, &viewed, &viewedAt, &created); err != nil {
		return r, err
	}

	var err error
	r.Summary = json.RawMessage(summary)
	r.Viewed = viewed != 0
	if r.PeriodStart, err = parseTime(start); err != nil {
		return r, err
	}
	if r.PeriodEnd, err = parseTime(end); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return r, err
	}
	if r.ViewedAt, err = parseNullTime(viewedAt); err != nil {
		return r, err
	}
	return r, nil
}

// GetProfile returns the user's profile, or ErrNotFound when none was saved.
func (s *Store) GetProfile(ctx context.Context, userID string) (journal.Profile, error) {
	var (
		p              journal.Profile
		settings       string
		lastSilence    sql.NullString
		lastReflection sql.NullString
		updatedAt      string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, settings, last_silence_prompt_at, last_weekly_reflection_at, updated_at
		FROM profiles WHERE id = ?`, userID).
		Scan(&p.UserID, &p.FullName, &settings, &lastSilence, &lastReflection, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.Profile{}, ErrNotFound
	}
	if err != nil {
		return journal.Profile{}, fmt.Errorf("store: get profile: %w", err)
	}

	// Settings saved before a field existed fall back to its default.
	p.UserSettings = journal.DefaultSettings()
	if err := json.Unmarshal([]byte(settings), &p.UserSettings); err != nil {
		return journal.Profile{}, fmt.Errorf("store: decode settings: %w", err)
	}
	p.UserSettings = p.UserSettings.Normalized()
	if p.LastSilencePromptAt, err = parseNullTime(lastSilence); err != nil {
		return journal.Profile{}, err
	}
	if p.LastWeeklyReflectionAt, err = parseNullTime(lastReflection); err != nil {
		return journal.Profile{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return journal.Profile{}, err
	}
	return p, nil
}

// UpsertProfile creates or replaces the user's profile.
func (s *Store) UpsertProfile(ctx context.Context, p journal.Profile) error {
	settings, err := json.Marshal(p.UserSettings)
	if err != nil {
		return fmt.Errorf("store: encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, settings, last_silence_prompt_at, last_weekly_reflection_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			settings = excluded.settings,
			last_silence_prompt_at = excluded.last_silence_prompt_at,
			last_weekly_reflection_at = excluded.last_weekly_reflection_at,
			updated_at = excluded.updated_at`,
		p.UserID, p.FullName, string(settings), nullTime(p.LastSilencePromptAt),
		nullTime(p.LastWeeklyReflectionAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: upsert profile: %w", err)
	}
	return nil
}
