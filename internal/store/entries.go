package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
)

// EntryFilter narrows receipt and moment listings. Zero values match all.
type EntryFilter struct {
	Tag          string
	DecisionType string
	Category     string
	Since        time.Time
}

const receiptColumns = `id, user_id, title, decision_type, context, assumptions, constraints,
	emotions, confidence, change_mind, tags, link_url, location_label, created_at, updated_at`

// CreateReceipt inserts a receipt.
func (s *Store) CreateReceipt(ctx context.Context, r journal.Receipt) error {
	emotions, err := encodeStrings(r.Emotions)
	if err != nil {
		return fmt.Errorf("store: encode emotions: %w", err)
	}
	tags, err := encodeStrings(r.Tags)
	if err != nil {
		return fmt.Errorf("store: encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Title, r.DecisionType, r.Context, r.Assumptions, r.Constraints,
		emotions, nullInt(r.Confidence), r.ChangeMind, tags, r.LinkURL, r.LocationLabel,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert receipt: %w", err)
	}
	return nil
}

// GetReceipt returns one receipt owned by userID.
func (s *Store) GetReceipt(ctx context.Context, userID, id string) (journal.Receipt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE user_id = ? AND id = ?`, userID, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.Receipt{}, ErrNotFound
	}
	if err != nil {
		return journal.Receipt{}, fmt.Errorf("store: get receipt: %w", err)
	}
	return r, nil
}

// UpdateReceipt overwrites the editable fields of a receipt.
func (s *Store) UpdateReceipt(ctx context.Context, r journal.Receipt) error {
	emotions, err := encodeStrings(r.Emotions)
	if err != nil {
		return fmt.Errorf("store: encode emotions: %w", err)
	}
	tags, err := encodeStrings(r.Tags)
	if err != nil {
		return fmt.Errorf("store: encode tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE receipts SET
			title = ?, decision_type = ?, context = ?, assumptions = ?, constraints = ?,
			emotions = ?, confidence = ?, change_mind = ?, tags = ?, link_url = ?,
			location_label = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		r.Title, r.DecisionType, r.Context, r.Assumptions, r.Constraints,
		emotions, nullInt(r.Confidence), r.ChangeMind, tags, r.LinkURL,
		r.LocationLabel, formatTime(r.UpdatedAt),
		r.UserID, r.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update receipt: %w", err)
	}
	return requireAffected(res)
}

// DeleteReceipt removes a receipt. Outcome checks referring to it are kept.
func (s *Store) DeleteReceipt(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM receipts WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("store: delete receipt: %w", err)
	}
	return requireAffected(res)
}

// ListReceipts returns the user's receipts, newest first.
func (s *Store) ListReceipts(ctx context.Context, userID string, f EntryFilter) ([]journal.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE user_id = ?`
	args := []any{userID}
	if f.Tag != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(receipts.tags) WHERE value = ?)`
		args = append(args, f.Tag)
	}
	if f.DecisionType != "" {
		query += ` AND decision_type = ?`
		args = append(args, f.DecisionType)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(f.Since))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list receipts: %w", err)
	}
	defer rows.Close()

	receipts := []journal.Receipt{}
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func scanReceipt(row scanner) (journal.Receipt, error) {
	var (
		r                    journal.Receipt
		emotions, tags       string
		confidence           sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Title, &r.DecisionType, &r.Context, &r.Assumptions,
		&r.Constraints, &emotions, &confidence, &r.ChangeMind, &tags, &r.LinkURL,
		&r.LocationLabel, &createdAt, &updatedAt); err != nil {
		return r, err
	}

	var err error
	if r.Emotions, err = decodeStrings(emotions); err != nil {
		return r, err
	}
	if r.Tags, err = decodeStrings(tags); err != nil {
		return r, err
	}
	r.Confidence = intPtr(confidence)
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, err
	}
	return r, nil
}

const momentColumns = `id, user_id, title, category, note, why_mattered, tags, created_at, updated_at`

// CreateMoment inserts a moment.
func (s *Store) CreateMoment(ctx context.Context, m journal.Moment) error {
	tags, err := encodeStrings(m.Tags)
	if err != nil {
		return fmt.Errorf("store: encode tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO moments (`+momentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Title, m.Category, m.Note, m.WhyMattered, tags,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert moment: %w", err)
	}
	return nil
}

// GetMoment returns one moment owned by userID.
func (s *Store) GetMoment(ctx context.Context, userID, id string) (journal.Moment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+momentColumns+` FROM moments WHERE user_id = ? AND id = ?`, userID, id)
	m, err := scanMoment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.Moment{}, ErrNotFound
	}
	if err != nil {
		return journal.Moment{}, fmt.Errorf("store: get moment: %w", err)
	}
	return m, nil
}

// UpdateMoment overwrites the editable fields of a moment.
func (s *Store) UpdateMoment(ctx context.Context, m journal.Moment) error {
	tags, err := encodeStrings(m.Tags)
	if err != nil {
		return fmt.Errorf("store: encode tags: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE moments SET title = ?, category = ?, note = ?, why_mattered = ?, tags = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		m.Title, m.Category, m.Note, m.WhyMattered, tags, formatTime(m.UpdatedAt),
		m.UserID, m.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update moment: %w", err)
	}
	return requireAffected(res)
}

// DeleteMoment removes a moment.
func (s *Store) DeleteMoment(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM moments WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("store: delete moment: %w", err)
	}
	return requireAffected(res)
}

// ListMoments returns the user's moments, newest first.
func (s *Store) ListMoments(ctx context.Context, userID string, f EntryFilter) ([]journal.Moment, error) {
	var where strings.Builder
	args := []any{userID}
	if f.Tag != "" {
		where.WriteString(` AND EXISTS (SELECT 1 FROM json_each(moments.tags) WHERE value = ?)`)
		args = append(args, f.Tag)
	}
	if f.Category != "" {
		where.WriteString(` AND category = ?`)
		args = append(args, f.Category)
	}
	if !f.Since.IsZero() {
		where.WriteString(` AND created_at >= ?`)
		args = append(args, formatTime(f.Since))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+momentColumns+` FROM moments WHERE user_id = ?`+where.String()+` ORDER BY created_at DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("store: list moments: %w", err)
	}
	defer rows.Close()

	moments := []journal.Moment{}
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan moment: %w", err)
		}
		moments = append(moments, m)
	}
	return moments, rows.Err()
}

func scanMoment(row scanner) (journal.Moment, error) {
	var (
		m                    journal.Moment
		tags                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Category, &m.Note, &m.WhyMattered,
		&tags, &createdAt, &updatedAt); err != nil {
		return m, err
	}

	var err error
	if m.Tags, err = decodeStrings(tags); err != nil {
		return m, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return m, err
	}
	return m, nil
}
