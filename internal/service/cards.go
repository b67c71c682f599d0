package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextlog/internal/deadzone"
	"github.com/fyrsmithlabs/contextlog/internal/events"
	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/logging"
	"github.com/fyrsmithlabs/contextlog/internal/metrics"
)

// DeadZone computes dead-zone flags over the configured window.
func (s *Service) DeadZone(ctx context.Context, userID string) (deadzone.Result, error) {
	receipts, moments, err := s.entries(ctx, userID)
	if err != nil {
		return deadzone.Result{}, err
	}
	result := s.deadzone.Compute(receipts, moments, s.deadZoneWindow)
	for _, f := range result.Flags {
		metrics.DeadZoneFlags.WithLabelValues(string(f.Type)).Inc()
	}
	return result, nil
}

// PerspectiveCards generates any new cards for the user, persists them and
// returns every undismissed card, newest first.
func (s *Service) PerspectiveCards(ctx context.Context, userID string) ([]journal.PerspectiveCard, error) {
	if _, err := s.GenerateCards(ctx, userID); err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	return cards, nil
}

// GenerateCards runs the card generator and persists what it produces. The
// returned slice holds only the cards that were actually inserted; a card
// whose dedup key was taken by a concurrent request is dropped.
func (s *Service) GenerateCards(ctx context.Context, userID string) ([]journal.PerspectiveCard, error) {
	ctx, span := s.tracer.Start(ctx, "service.generate_cards")
	defer span.End()

	p, err := s.profile(ctx, userID)
	if err != nil {
		return nil, fail(span, err)
	}
	receipts, moments, err := s.entries(ctx, userID)
	if err != nil {
		return nil, fail(span, err)
	}
	existing, err := s.store.ListCards(ctx, userID, true)
	if err != nil {
		return nil, fail(span, fmt.Errorf("listing cards: %w", err))
	}
	span.SetAttributes(
		attribute.Int("receipts", len(receipts)),
		attribute.Int("moments", len(moments)),
		attribute.String("intensity", string(p.PerspectiveIntensity)),
	)

	generated := s.cards.Generate(receipts, moments, existing, p.PerspectiveIntensity)
	if len(generated) == 0 {
		return nil, nil
	}
	for i := range generated {
		generated[i].UserID = userID
	}

	inserted, err := s.store.InsertCards(ctx, generated)
	if err != nil {
		return nil, fail(span, fmt.Errorf("storing cards: %w", err))
	}
	span.SetAttributes(attribute.Int("cards.created", len(inserted)))
	if dropped := len(generated) - len(inserted); dropped > 0 {
		s.logger.Debug("dropped duplicate perspective cards",
			append(logging.ContextFields(ctx),
				zap.String("user_id", userID),
				zap.Int("dropped", dropped))...)
	}
	for _, c := range inserted {
		metrics.PerspectiveCardsGenerated.WithLabelValues(string(c.Type)).Inc()
		s.publish(ctx, events.CardCreated, userID, map[string]string{
			"card_id":   c.ID,
			"card_type": string(c.Type),
		})
	}
	return inserted, nil
}

// DismissCard hides a card permanently.
func (s *Service) DismissCard(ctx context.Context, userID, id string) error {
	return s.store.DismissCard(ctx, userID, id, s.clock.Now())
}
