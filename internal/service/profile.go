package service

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
)

// Profile returns the user's profile, with default settings when none was
// saved.
func (s *Service) Profile(ctx context.Context, userID string) (journal.Profile, error) {
	return s.profile(ctx, userID)
}

// UpdateProfile applies a partial update and stores the result, creating the
// profile when it does not exist.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch journal.ProfilePatch) (journal.Profile, error) {
	if err := requireUser(userID); err != nil {
		return journal.Profile{}, err
	}
	if err := validateSettings(patch.SettingsPatch); err != nil {
		return journal.Profile{}, err
	}
	p, err := s.profile(ctx, userID)
	if err != nil {
		return journal.Profile{}, err
	}
	p = patch.Apply(p)
	p.UpdatedAt = s.clock.Now()
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return journal.Profile{}, fmt.Errorf("storing profile: %w", err)
	}
	return p, nil
}

// Settings returns the user's settings.
func (s *Service) Settings(ctx context.Context, userID string) (journal.UserSettings, error) {
	p, err := s.profile(ctx, userID)
	if err != nil {
		return journal.UserSettings{}, err
	}
	return p.UserSettings, nil
}

// UpdateSettings applies a partial settings update.
func (s *Service) UpdateSettings(ctx context.Context, userID string, patch journal.SettingsPatch) (journal.UserSettings, error) {
	p, err := s.UpdateProfile(ctx, userID, journal.ProfilePatch{SettingsPatch: patch})
	if err != nil {
		return journal.UserSettings{}, err
	}
	return p.UserSettings, nil
}

// validateSettings rejects values a client can only send by mistake. Zero
// values are left to Normalized, which maps them to defaults.
func validateSettings(p journal.SettingsPatch) error {
	if p.ReflectionDay != nil && (*p.ReflectionDay < 0 || *p.ReflectionDay > 6) {
		return fmt.Errorf("%w: reflection_day must be between 0 and 6", ErrInvalid)
	}
	if p.ReflectionHour != nil && (*p.ReflectionHour < 0 || *p.ReflectionHour > 23) {
		return fmt.Errorf("%w: reflection_hour must be between 0 and 23", ErrInvalid)
	}
	if p.SilenceThresholdDays != nil && *p.SilenceThresholdDays < 0 {
		return fmt.Errorf("%w: silence_threshold_days cannot be negative", ErrInvalid)
	}
	if p.OutcomeDelayDays != nil && *p.OutcomeDelayDays < 0 {
		return fmt.Errorf("%w: outcome_delay_days cannot be negative", ErrInvalid)
	}
	return nil
}
