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

const cardColumns = `id, user_id, type, title, message, related_type, related_id, dedup_key,
	dismissed, dismissed_at, created_at`

// InsertCards persists cards in one transaction and returns the ones
// actually written. A card whose dedup key is already stored for the user
// is skipped.
func (s *Store) InsertCards(ctx context.Context, cards []journal.PerspectiveCard) ([]journal.PerspectiveCard, error) {
	if len(cards) == 0 {
		return []journal.PerspectiveCard{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO perspective_cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, dedup_key) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("store: prepare card insert: %w", err)
	}
	defer stmt.Close()

	inserted := make([]journal.PerspectiveCard, 0, len(cards))
	for _, c := range cards {
		res, err := stmt.ExecContext(ctx,
			c.ID, c.UserID, string(c.Type), c.Title, c.Message, c.RelatedType, c.RelatedID, c.DedupKey,
			boolInt(c.Dismissed), nullTime(c.DismissedAt), formatTime(c.CreatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("store: insert card: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, c)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit cards: %w", err)
	}
	return inserted, nil
}

// ListCards returns the user's cards, newest first.
func (s *Store) ListCards(ctx context.Context, userID string, includeDismissed bool) ([]journal.PerspectiveCard, error) {
	query := `SELECT ` + cardColumns + ` FROM perspective_cards WHERE user_id = ?`
	if !includeDismissed {
		query += ` AND dismissed = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list cards: %w", err)
	}
	defer rows.Close()

	cards := []journal.PerspectiveCard{}
	for rows.Next() {
		var (
			c           journal.PerspectiveCard
			cardType    string
			dismissed   int
			dismissedAt sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &cardType, &c.Title, &c.Message, &c.RelatedType,
			&c.RelatedID, &c.DedupKey, &dismissed, &dismissedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan card: %w", err)
		}
		c.Type = journal.CardType(cardType)
		c.Dismissed = dismissed != 0
		if c.DismissedAt, err = parseNullTime(dismissedAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// DismissCard flags a card dismissed. Dismissing twice keeps the first
// timestamp.
func (s *Store) DismissCard(ctx context.Context, userID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE perspective_cards
		SET dismissed = 1, dismissed_at = COALESCE(dismissed_at, ?)
		WHERE user_id = ? AND id = ?`,
		formatTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("store: dismiss card: %w", err)
	}
	return requireAffected(res)
}

const outcomeColumns = `id, user_id, receipt_id, scheduled_at, original_confidence, original_emotions,
	decision_type, prompted, prompted_at, outcome, assumption_delta, completed_at, created_at`

// CreateOutcomeCheck inserts a check. A receipt has at most one check, so a
// second insert for the same receipt returns ErrConflict.
func (s *Store) CreateOutcomeCheck(ctx context.Context, c journal.OutcomeCheck) error {
	emotions, err := encodeStrings(c.OriginalEmotions)
	if err != nil {
		return fmt.Errorf("store: encode emotions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO outcome_checks (`+outcomeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, receipt_id) DO NOTHING`,
		c.ID, c.UserID, c.ReceiptID, formatTime(c.ScheduledAt), nullInt(c.OriginalConfidence), emotions,
		c.DecisionType, boolInt(c.Prompted), nullTime(c.PromptedAt), c.Outcome, c.AssumptionDelta,
		nullTime(c.CompletedAt), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert outcome check: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// GetOutcomeCheck returns one check owned by userID.
func (s *Store) GetOutcomeCheck(ctx context.Context, userID, id string) (journal.OutcomeCheck, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outcomeColumns+` FROM outcome_checks WHERE user_id = ? AND id = ?`, userID, id)
	c, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.OutcomeCheck{}, ErrNotFound
	}
	if err != nil {
		return journal.OutcomeCheck{}, fmt.Errorf("store: get outcome check: %w", err)
	}
	return c, nil
}

// GetOutcomeCheckByReceipt returns the check bound to a receipt.
func (s *Store) GetOutcomeCheckByReceipt(ctx context.Context, userID, receiptID string) (journal.OutcomeCheck, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outcomeColumns+` FROM outcome_checks WHERE user_id = ? AND receipt_id = ?`, userID, receiptID)
	c, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.OutcomeCheck{}, ErrNotFound
	}
	if err != nil {
		return journal.OutcomeCheck{}, fmt.Errorf("store: get outcome check: %w", err)
	}
	return c, nil
}

// UpdateOutcomeCheck writes the mutable lifecycle fields of a check. The
// snapshot fields never change after creation.
func (s *Store) UpdateOutcomeCheck(ctx context.Context, c journal.OutcomeCheck) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outcome_checks SET
			prompted = ?, prompted_at = ?, outcome = ?, assumption_delta = ?, completed_at = ?
		WHERE user_id = ? AND id = ?`,
		boolInt(c.Prompted), nullTime(c.PromptedAt), c.Outcome, c.AssumptionDelta, nullTime(c.CompletedAt),
		c.UserID, c.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update outcome check: %w", err)
	}
	return requireAffected(res)
}

// ListOutcomeChecks returns the user's checks, most recently scheduled first.
func (s *Store) ListOutcomeChecks(ctx context.Context, userID string) ([]journal.OutcomeCheck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outcomeColumns+` FROM outcome_checks WHERE user_id = ? ORDER BY scheduled_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list outcome checks: %w", err)
	}
	defer rows.Close()

	checks := []journal.OutcomeCheck{}
	for rows.Next() {
		c, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan outcome check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

func scanOutcome(row scanner) (journal.OutcomeCheck, error) {
	var (
		c                       journal.OutcomeCheck
		scheduledAt, createdAt  string
		confidence              sql.NullInt64
		emotions                string
		prompted                int
		promptedAt, completedAt sql.NullString
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.ReceiptID, &scheduledAt, &confidence, &emotions,
		&c.DecisionType, &prompted, &promptedAt, &c.Outcome, &c.AssumptionDelta, &completedAt,
		&createdAt); err != nil {
		return c, err
	}

	var err error
	c.OriginalConfidence = intPtr(confidence)
	c.Prompted = prompted != 0
	if c.OriginalEmotions, err = decodeStrings(emotions); err != nil {
		return c, err
	}
	if c.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, err
	}
	if c.PromptedAt, err = parseNullTime(promptedAt); err != nil {
		return c, err
	}
	if c.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return c, err
	}
	return c, nil
}

const insightColumns = `id, user_id, insight_type, pattern_key, pattern_data, sample_size,
	signal_strength, message, surfaced, surfaced_at, dismissed, created_at`

// InsertInsight persists an insight unless one with the same pattern key
// already exists. It reports whether a row was written.
func (s *Store) InsertInsight(ctx context.Context, ev journal.InsightEvent) (bool, error) {
	data, err := json.Marshal(ev.PatternData)
	if err != nil {
		return false, fmt.Errorf("store: encode pattern data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO insight_events (`+insightColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, pattern_key) DO NOTHING`,
		ev.ID, ev.UserID, ev.InsightType, ev.PatternKey, string(data), ev.SampleSize,
		ev.SignalStrength, ev.Message, boolInt(ev.Surfaced), nullTime(ev.SurfacedAt),
		boolInt(ev.Dismissed), formatTime(ev.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("store: insert insight: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert insight: %w", err)
	}
	return n > 0, nil
}

// ListInsights returns the user's insights, strongest first.
func (s *Store) ListInsights(ctx context.Context, userID string) ([]journal.InsightEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+insightColumns+` FROM insight_events WHERE user_id = ?
		ORDER BY signal_strength DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list insights: %w", err)
	}
	defer rows.Close()

	events := []journal.InsightEvent{}
	for rows.Next() {
		var (
			ev                  journal.InsightEvent
			data                string
			surfaced, dismissed int
			surfacedAt          sql.NullString
			createdAt           string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.InsightType, &ev.PatternKey, &data, &ev.SampleSize,
			&ev.SignalStrength, &ev.Message, &surfaced, &surfacedAt, &dismissed, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan insight: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &ev.PatternData); err != nil {
			return nil, fmt.Errorf("store: decode pattern data: %w", err)
		}
		ev.Surfaced = surfaced != 0
		ev.Dismissed = dismissed != 0
		if ev.SurfacedAt, err = parseNullTime(surfacedAt); err != nil {
			return nil, err
		}
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkInsightSurfaced records that an insight was shown.
func (s *Store) MarkInsightSurfaced(ctx context.Context, userID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE insight_events SET surfaced = 1, surfaced_at = COALESCE(surfaced_at, ?)
		WHERE user_id = ? AND id = ?`,
		formatTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("store: surface insight: %w", err)
	}
	return requireAffected(res)
}

// DismissInsight flags an insight dismissed.
func (s *Store) DismissInsight(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE insight_events SET dismissed = 1 WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("store: dismiss insight: %w", err)
	}
	return requireAffected(res)
}
