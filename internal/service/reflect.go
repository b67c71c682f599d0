package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/contextlog/internal/events"
	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/notify"
	"github.com/fyrsmithlabs/contextlog/internal/reflection"
	"github.com/fyrsmithlabs/contextlog/internal/store"
)

// SilenceStatus is the silence part of ReflectionStatus.
type SilenceStatus struct {
	reflection.SilenceInfo
	Prompt *reflection.SilencePrompt `json:"prompt"`
}

// WeeklyStatus reports whether a weekly reflection should be offered now.
type WeeklyStatus struct {
	Due     bool `json:"due"`
	Enabled bool `json:"enabled"`
}

// CardStatus summarizes the undismissed perspective cards for the dashboard.
type CardStatus struct {
	Count      int                      `json:"count"`
	ShouldShow bool                     `json:"should_show"`
	Selected   *journal.PerspectiveCard `json:"selected"`
}

// StatusSettings echoes the settings the status was computed with.
type StatusSettings struct {
	Tone             journal.Tone `json:"tone"`
	SilenceThreshold int          `json:"silence_threshold"`
}

// ReflectionStatus is what the dashboard polls.
type ReflectionStatus struct {
	Silence          SilenceStatus  `json:"silence"`
	WeeklyReflection WeeklyStatus   `json:"weekly_reflection"`
	PerspectiveCards CardStatus     `json:"perspective_cards"`
	Settings         StatusSettings `json:"settings"`
}

// ReflectionStatus combines silence detection, weekly reflection timing and
// the dashboard card choice.
func (s *Service) ReflectionStatus(ctx context.Context, userID string) (ReflectionStatus, error) {
	p, err := s.profile(ctx, userID)
	if err != nil {
		return ReflectionStatus{}, err
	}
	receipts, moments, err := s.entries(ctx, userID)
	if err != nil {
		return ReflectionStatus{}, err
	}
	// The newest nudge decides whether this silence episode was nudged.
	nudges, err := s.store.ListNotifications(ctx, userID, store.NotificationFilter{
		IncludeDismissed: true,
		Type:             journal.NotifySilenceNudge,
		Limit:            1,
	})
	if err != nil {
		return ReflectionStatus{}, fmt.Errorf("listing notifications: %w", err)
	}
	cards, err := s.store.ListCards(ctx, userID, false)
	if err != nil {
		return ReflectionStatus{}, fmt.Errorf("listing cards: %w", err)
	}

	settings := p.UserSettings
	info := s.reflection.DetectSilence(receipts, moments, settings)
	var prompt *reflection.SilencePrompt
	if info.InSilence && settings.SilenceNudgesEnabled && !silenceDismissed(p, info) {
		prompt = s.reflection.GenerateSilencePrompt(info, settings, nudges)
	}

	return ReflectionStatus{
		Silence: SilenceStatus{SilenceInfo: info, Prompt: prompt},
		WeeklyReflection: WeeklyStatus{
			Due:     notify.IsWeeklyReflectionTime(settings, s.clock.Now()),
			Enabled: settings.WeeklyReflectionsEnabled,
		},
		PerspectiveCards: CardStatus{
			Count:      len(cards),
			ShouldShow: s.reflection.ShouldShowPerspectiveCard(reflection.ContextDashboard, cards, settings),
			Selected:   reflection.SelectPerspectiveCard(cards, reflection.ContextDashboard),
		},
		Settings: StatusSettings{
			Tone:             settings.ReflectionTone,
			SilenceThreshold: settings.SilenceThresholdDays,
		},
	}, nil
}

// silenceDismissed reports whether the user dismissed the prompt during the
// current silence episode. A new entry starts a new episode.
func silenceDismissed(p journal.Profile, info reflection.SilenceInfo) bool {
	if p.LastSilencePromptAt == nil {
		return false
	}
	if info.LastActivityDate == nil {
		return true
	}
	return p.LastSilencePromptAt.After(*info.LastActivityDate)
}

// DismissSilencePrompt records that the user dismissed the silence prompt.
func (s *Service) DismissSilencePrompt(ctx context.Context, userID string) error {
	p, err := s.profile(ctx, userID)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	p.LastSilencePromptAt = &now
	p.UpdatedAt = now
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("storing profile: %w", err)
	}
	return nil
}

// WeeklyResult is either a reflection saved in the last week or a freshly
// generated, unsaved one.
type WeeklyResult struct {
	Saved     *journal.SavedReflection     `json:"saved,omitempty"`
	Generated *reflection.WeeklyReflection `json:"generated,omitempty"`
	IsNew     bool                         `json:"is_new"`
}

// WeeklyReflection returns the reflection saved within the last seven days,
// or generates a new one without saving it.
func (s *Service) WeeklyReflection(ctx context.Context, userID string) (WeeklyResult, error) {
	since := s.clock.Now().AddDate(0, 0, -reflectionReuse)
	saved, err := s.store.LatestReflectionSince(ctx, userID, since)
	switch {
	case err == nil:
		return WeeklyResult{Saved: &saved}, nil
	case !errors.Is(err, store.ErrNotFound):
		return WeeklyResult{}, fmt.Errorf("loading saved reflection: %w", err)
	}

	generated, err := s.GenerateWeeklyReflection(ctx, userID)
	if err != nil {
		return WeeklyResult{}, err
	}
	return WeeklyResult{Generated: &generated, IsNew: true}, nil
}

// GenerateWeeklyReflection builds the reflection for the trailing week.
func (s *Service) GenerateWeeklyReflection(ctx context.Context, userID string) (reflection.WeeklyReflection, error) {
	ctx, span := s.tracer.Start(ctx, "service.generate_weekly_reflection")
	defer span.End()

	p, err := s.profile(ctx, userID)
	if err != nil {
		return reflection.WeeklyReflection{}, fail(span, err)
	}
	receipts, moments, err := s.entries(ctx, userID)
	if err != nil {
		return reflection.WeeklyReflection{}, fail(span, err)
	}
	r := s.reflection.GenerateWeeklyReflection(receipts, moments, receipts, p.UserSettings)
	span.SetAttributes(
		attribute.String("tone", string(r.Tone)),
		attribute.Int("entries", r.Summary.TotalEntries),
	)
	return r, nil
}

// SaveReflectionInput is a reflection the user chose to keep. Missing fields
// default to the trailing week and an empty summary.
type SaveReflectionInput struct {
	Period     *reflection.Period `json:"period"`
	Summary    json.RawMessage    `json:"summary"`
	Reflection *reflection.Prompt `json:"reflection"`
	Tone       journal.Tone       `json:"tone"`
	UserNotes  string             `json:"user_notes"`
}

// InputFromReflection converts a generated reflection for saving.
func InputFromReflection(r reflection.WeeklyReflection) (SaveReflectionInput, error) {
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return SaveReflectionInput{}, fmt.Errorf("encoding summary: %w", err)
	}
	period := r.Period
	prompt := r.Reflection
	return SaveReflectionInput{Period: &period, Summary: summary, Reflection: &prompt, Tone: r.Tone}, nil
}

// SaveReflection stores a viewed reflection and stamps the profile.
func (s *Service) SaveReflection(ctx context.Context, userID string, in SaveReflectionInput) (journal.SavedReflection, error) {
	if err := requireUser(userID); err != nil {
		return journal.SavedReflection{}, err
	}
	now := s.clock.Now()
	r := journal.SavedReflection{
		ID:          s.newID(),
		UserID:      userID,
		PeriodStart: now.AddDate(0, 0, -reflectionReuse),
		PeriodEnd:   now,
		Summary:     json.RawMessage(`{}`),
		Tone:        string(journal.ToneGentle),
		UserNotes:   in.UserNotes,
		Viewed:      true,
		ViewedAt:    &now,
		CreatedAt:   now,
	}
	if in.Period != nil {
		if !in.Period.Start.IsZero() {
			r.PeriodStart = in.Period.Start
		}
		if !in.Period.End.IsZero() {
			r.PeriodEnd = in.Period.End
		}
	}
	if len(in.Summary) > 0 {
		if !json.Valid(in.Summary) {
			return journal.SavedReflection{}, fmt.Errorf("%w: summary is not valid JSON", ErrInvalid)
		}
		r.Summary = in.Summary
	}
	if in.Reflection != nil {
		r.ReflectionQuestion = in.Reflection.Question
		r.SuggestedAction = in.Reflection.SuggestedAction
	}
	if in.Tone != "" {
		r.Tone = string(in.Tone)
	}

	if err := s.store.SaveReflection(ctx, r); err != nil {
		return journal.SavedReflection{}, fmt.Errorf("saving reflection: %w", err)
	}

	p, err := s.profile(ctx, userID)
	if err != nil {
		return journal.SavedReflection{}, err
	}
	p.LastWeeklyReflectionAt = &now
	p.UpdatedAt = now
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return journal.SavedReflection{}, fmt.Errorf("storing profile: %w", err)
	}

	s.publish(ctx, events.ReflectionSaved, userID, map[string]string{"reflection_id": r.ID})
	return r, nil
}

// ReflectionHistory returns the most recent saved reflections.
func (s *Service) ReflectionHistory(ctx context.Context, userID string) ([]journal.SavedReflection, error) {
	return s.store.ListReflections(ctx, userID, historyLimit)
}
