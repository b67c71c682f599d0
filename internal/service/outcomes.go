package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextlog/internal/events"
	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/logging"
	"github.com/fyrsmithlabs/contextlog/internal/memoryloop"
	"github.com/fyrsmithlabs/contextlog/internal/metrics"
	"github.com/fyrsmithlabs/contextlog/internal/store"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

// DueOutcomeCheck returns the single receipt awaiting a follow-up, or nil.
// An unanswered check that is already due or prompted stays the answer
// until it is completed or dismissed.
func (s *Service) DueOutcomeCheck(ctx context.Context, userID string) (*memoryloop.DueCheck, error) {
	due, _, err := s.nextOutcomeCheck(ctx, userID)
	return due, err
}

// nextOutcomeCheck returns the follow-up to offer and, when it already has
// a stored check, that check.
func (s *Service) nextOutcomeCheck(ctx context.Context, userID string) (*memoryloop.DueCheck, *journal.OutcomeCheck, error) {
	p, err := s.profile(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !p.OutcomeChecksEnabled {
		return nil, nil, nil
	}
	receipts, err := s.store.ListReceipts(ctx, userID, store.EntryFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("listing receipts: %w", err)
	}
	existing, err := s.store.ListOutcomeChecks(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing outcome checks: %w", err)
	}

	if open, r := openCheck(existing, receipts, s.clock.Now()); open != nil {
		emotions := open.OriginalEmotions
		if emotions == nil {
			emotions = []string{}
		}
		return &memoryloop.DueCheck{
			ReceiptID:           r.ID,
			ReceiptTitle:        r.Title,
			ReceiptDecisionType: open.DecisionType,
			ReceiptConfidence:   open.OriginalConfidence,
			ReceiptEmotions:     emotions,
			ReceiptCreatedAt:    r.CreatedAt,
			ScheduledAt:         open.ScheduledAt,
			DaysSince:           timewindow.ElapsedDays(r.CreatedAt, s.clock.Now()),
		}, open, nil
	}

	due := s.memoryLoop.FindDueOutcomeChecks(receipts, existing, p.UserSettings)
	if len(due) == 0 {
		return nil, nil, nil
	}
	return &due[0], nil, nil
}

// openCheck returns the earliest scheduled check that is pending or
// prompted, with its receipt. Checks whose receipt was deleted are ignored.
func openCheck(checks []journal.OutcomeCheck, receipts []journal.Receipt, now time.Time) (*journal.OutcomeCheck, journal.Receipt) {
	byID := make(map[string]journal.Receipt, len(receipts))
	for _, r := range receipts {
		byID[r.ID] = r
	}

	var open *journal.OutcomeCheck
	for i := range checks {
		c := &checks[i]
		if st := c.State(now); st != journal.CheckPending && st != journal.CheckPrompted {
			continue
		}
		if _, ok := byID[c.ReceiptID]; !ok {
			continue
		}
		if open == nil || c.ScheduledAt.Before(open.ScheduledAt) {
			open = c
		}
	}
	if open == nil {
		return nil, journal.Receipt{}
	}
	return open, byID[open.ReceiptID]
}

// PromptDueOutcome marks the due follow-up as prompted so it is not offered
// twice. It returns nil when nothing new was prompted, which includes the
// time an earlier prompt is still waiting for its answer.
func (s *Service) PromptDueOutcome(ctx context.Context, userID string) (*journal.OutcomeCheck, error) {
	due, open, err := s.nextOutcomeCheck(ctx, userID)
	if err != nil || due == nil {
		return nil, err
	}
	if open != nil {
		if open.Prompted {
			return nil, nil
		}
		c, err := s.memoryLoop.MarkPrompted(*open)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateOutcomeCheck(ctx, c); err != nil {
			return nil, fmt.Errorf("storing outcome check: %w", err)
		}
		return &c, nil
	}

	p, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetReceipt(ctx, userID, due.ReceiptID)
	if err != nil {
		return nil, fmt.Errorf("loading receipt: %w", err)
	}

	c, err := s.memoryLoop.MarkPrompted(s.memoryLoop.CreateOutcomeCheck(r, p.UserSettings))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateOutcomeCheck(ctx, c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another sweep got there first.
			return nil, nil
		}
		return nil, fmt.Errorf("storing outcome check: %w", err)
	}
	return &c, nil
}

// RecordOutcome records the outcome of a receipt's follow-up. The check is
// created on the fly when the user answers before one was scheduled.
func (s *Service) RecordOutcome(ctx context.Context, userID, receiptID, outcome, assumptionDelta string) (journal.OutcomeCheck, error) {
	ctx, span := s.tracer.Start(ctx, "service.record_outcome")
	defer span.End()
	span.SetAttributes(
		attribute.String("receipt_id", receiptID),
		attribute.String("outcome", outcome),
	)

	c, err := s.recordOutcome(ctx, userID, receiptID, outcome, assumptionDelta)
	if err != nil {
		return c, fail(span, err)
	}

	if _, _, err := s.AnalyzeInsights(ctx, userID); err != nil {
		s.logger.Warn("insight analysis after outcome failed",
			append(logging.ContextFields(ctx),
				zap.String("user_id", userID),
				zap.Error(err))...)
	}
	return c, nil
}

func (s *Service) recordOutcome(ctx context.Context, userID, receiptID, outcome, assumptionDelta string) (journal.OutcomeCheck, error) {
	c, err := s.store.GetOutcomeCheckByReceipt(ctx, userID, receiptID)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		p, perr := s.profile(ctx, userID)
		if perr != nil {
			return journal.OutcomeCheck{}, perr
		}
		r, rerr := s.store.GetReceipt(ctx, userID, receiptID)
		if rerr != nil {
			return journal.OutcomeCheck{}, rerr
		}
		c, err = s.memoryLoop.CreateOutcomeCheck(r, p.UserSettings), nil
		created = true
	}
	if err != nil {
		return journal.OutcomeCheck{}, fmt.Errorf("loading outcome check: %w", err)
	}

	c, err = s.memoryLoop.RecordOutcome(c, outcome, assumptionDelta)
	switch {
	case errors.Is(err, memoryloop.ErrInvalidOutcome):
		return journal.OutcomeCheck{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	case err != nil:
		return journal.OutcomeCheck{}, err
	}

	if created {
		err = s.store.CreateOutcomeCheck(ctx, c)
	} else {
		err = s.store.UpdateOutcomeCheck(ctx, c)
	}
	if err != nil {
		return journal.OutcomeCheck{}, fmt.Errorf("storing outcome check: %w", err)
	}

	metrics.OutcomesRecorded.WithLabelValues(c.Outcome).Inc()
	s.publish(ctx, events.OutcomeRecorded, userID, map[string]string{
		"receipt_id": c.ReceiptID,
		"outcome":    c.Outcome,
	})
	return c, nil
}

// ListOutcomeChecks returns every outcome check of the user.
func (s *Service) ListOutcomeChecks(ctx context.Context, userID string) ([]journal.OutcomeCheck, error) {
	return s.store.ListOutcomeChecks(ctx, userID)
}

// AnalyzeInsights computes outcome patterns and persists the ones not seen
// before. It returns the analysis and the newly stored insights.
func (s *Service) AnalyzeInsights(ctx context.Context, userID string) (memoryloop.Analysis, []journal.InsightEvent, error) {
	ctx, span := s.tracer.Start(ctx, "service.analyze_insights")
	defer span.End()

	outcomes, err := s.store.ListOutcomeChecks(ctx, userID)
	if err != nil {
		return memoryloop.Analysis{}, nil, fail(span, fmt.Errorf("listing outcome checks: %w", err))
	}
	receipts, err := s.store.ListReceipts(ctx, userID, store.EntryFilter{})
	if err != nil {
		return memoryloop.Analysis{}, nil, fail(span, fmt.Errorf("listing receipts: %w", err))
	}

	analysis := memoryloop.AnalyzeOutcomePatterns(outcomes, receipts)
	span.SetAttributes(attribute.Int("patterns", len(analysis.Patterns)))
	var created []journal.InsightEvent
	for _, p := range analysis.Patterns {
		ev := s.memoryLoop.CreateInsightEvent(p, userID)
		inserted, err := s.store.InsertInsight(ctx, ev)
		if err != nil {
			return analysis, created, fail(span, fmt.Errorf("storing insight: %w", err))
		}
		if !inserted {
			continue
		}
		created = append(created, ev)
		metrics.InsightsCreated.WithLabelValues(ev.InsightType).Inc()
		s.publish(ctx, events.InsightCreated, userID, map[string]string{
			"insight_id":  ev.ID,
			"pattern_key": ev.PatternKey,
		})
	}
	return analysis, created, nil
}

// Insights returns the stored insight events, strongest first.
func (s *Service) Insights(ctx context.Context, userID string) ([]journal.InsightEvent, error) {
	return s.store.ListInsights(ctx, userID)
}

// TopInsight returns the strongest stored insight that was never surfaced or
// dismissed, or nil.
func (s *Service) TopInsight(ctx context.Context, userID string) (*journal.InsightEvent, error) {
	analysis, _, err := s.AnalyzeInsights(ctx, userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListInsights(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing insights: %w", err)
	}

	top := memoryloop.GetTopInsight(analysis.Patterns, existing)
	if top == nil {
		return nil, nil
	}
	for i := range existing {
		if existing[i].PatternKey == top.Key {
			return &existing[i], nil
		}
	}
	return nil, nil
}

// SurfaceInsight marks an insight as shown to the user.
func (s *Service) SurfaceInsight(ctx context.Context, userID, id string) error {
	return s.store.MarkInsightSurfaced(ctx, userID, id, s.clock.Now())
}

// DismissInsight suppresses an insight permanently.
func (s *Service) DismissInsight(ctx context.Context, userID, id string) error {
	return s.store.DismissInsight(ctx, userID, id)
}

// WeeklyLearning summarizes outcomes completed in the trailing week.
func (s *Service) WeeklyLearning(ctx context.Context, userID string) (memoryloop.WeeklyLearning, error) {
	outcomes, err := s.store.ListOutcomeChecks(ctx, userID)
	if err != nil {
		return memoryloop.WeeklyLearning{}, fmt.Errorf("listing outcome checks: %w", err)
	}
	now := s.clock.Now()
	return memoryloop.GenerateWeeklyLearning(outcomes, now.AddDate(0, 0, -reflectionReuse), now), nil
}
