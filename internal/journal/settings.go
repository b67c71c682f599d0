package journal

import "time"

// Tone selects the register of reflection messages.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneGentle  Tone = "gentle"
	ToneDirect  Tone = "direct"
)

// Intensity scales how eagerly perspective cards fire.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// UserSettings holds per-user thresholds and toggles.
type UserSettings struct {
	SilenceThresholdDays     int       `json:"silence_threshold_days"`
	ReflectionTone           Tone      `json:"reflection_tone"`
	PerspectiveIntensity     Intensity `json:"perspective_intensity"`
	OutcomeDelayDays         int       `json:"outcome_delay_days"`
	OutcomeChecksEnabled     bool      `json:"outcome_checks_enabled"`
	WeeklyReflectionsEnabled bool      `json:"weekly_reflections_enabled"`
	SilenceNudgesEnabled     bool      `json:"silence_nudges_enabled"`
	CaptureRemindersEnabled  bool      `json:"capture_reminders_enabled"`
	ReflectionDay            int       `json:"reflection_day"`
	ReflectionHour           int       `json:"reflection_hour"`
}

// DefaultSettings returns the settings applied to users who never saved any.
func DefaultSettings() UserSettings {
	return UserSettings{
		SilenceThresholdDays:     5,
		ReflectionTone:           ToneGentle,
		PerspectiveIntensity:     IntensityMedium,
		OutcomeDelayDays:         7,
		OutcomeChecksEnabled:     true,
		WeeklyReflectionsEnabled: true,
		SilenceNudgesEnabled:     true,
		CaptureRemindersEnabled:  false,
		ReflectionDay:            0, // Sunday
		ReflectionHour:           18,
	}
}

// Normalized replaces zero or out-of-range values with defaults. The zero
// UserSettings was never loaded from a profile and becomes the defaults,
// toggles included.
func (s UserSettings) Normalized() UserSettings {
	d := DefaultSettings()
	if s == (UserSettings{}) {
		return d
	}
	if s.SilenceThresholdDays <= 0 {
		s.SilenceThresholdDays = d.SilenceThresholdDays
	}
	if s.OutcomeDelayDays <= 0 {
		s.OutcomeDelayDays = d.OutcomeDelayDays
	}
	if s.ReflectionTone == "" {
		s.ReflectionTone = d.ReflectionTone
	}
	if s.PerspectiveIntensity == "" {
		s.PerspectiveIntensity = d.PerspectiveIntensity
	}
	if s.ReflectionDay < 0 || s.ReflectionDay > 6 {
		s.ReflectionDay = d.ReflectionDay
	}
	if s.ReflectionHour < 0 || s.ReflectionHour > 23 {
		s.ReflectionHour = d.ReflectionHour
	}
	return s
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	SilenceThresholdDays     *int       `json:"silence_threshold_days,omitempty"`
	ReflectionTone           *Tone      `json:"reflection_tone,omitempty"`
	PerspectiveIntensity     *Intensity `json:"perspective_intensity,omitempty"`
	OutcomeDelayDays         *int       `json:"outcome_delay_days,omitempty"`
	OutcomeChecksEnabled     *bool      `json:"outcome_checks_enabled,omitempty"`
	WeeklyReflectionsEnabled *bool      `json:"weekly_reflections_enabled,omitempty"`
	SilenceNudgesEnabled     *bool      `json:"silence_nudges_enabled,omitempty"`
	CaptureRemindersEnabled  *bool      `json:"capture_reminders_enabled,omitempty"`
	ReflectionDay            *int       `json:"reflection_day,omitempty"`
	ReflectionHour           *int       `json:"reflection_hour,omitempty"`
}

// Apply returns s with every non-nil patch field applied, normalized.
func (p SettingsPatch) Apply(s UserSettings) UserSettings {
	if p.SilenceThresholdDays != nil {
		s.SilenceThresholdDays = *p.SilenceThresholdDays
	}
	if p.ReflectionTone != nil {
		s.ReflectionTone = *p.ReflectionTone
	}
	if p.PerspectiveIntensity != nil {
		s.PerspectiveIntensity = *p.PerspectiveIntensity
	}
	if p.OutcomeDelayDays != nil {
		s.OutcomeDelayDays = *p.OutcomeDelayDays
	}
	if p.OutcomeChecksEnabled != nil {
		s.OutcomeChecksEnabled = *p.OutcomeChecksEnabled
	}
	if p.WeeklyReflectionsEnabled != nil {
		s.WeeklyReflectionsEnabled = *p.WeeklyReflectionsEnabled
	}
	if p.SilenceNudgesEnabled != nil {
		s.SilenceNudgesEnabled = *p.SilenceNudgesEnabled
	}
	if p.CaptureRemindersEnabled != nil {
		s.CaptureRemindersEnabled = *p.CaptureRemindersEnabled
	}
	if p.ReflectionDay != nil {
		s.ReflectionDay = *p.ReflectionDay
	}
	if p.ReflectionHour != nil {
		s.ReflectionHour = *p.ReflectionHour
	}
	return s.Normalized()
}

// Profile is the per-user record carrying display name and settings.
type Profile struct {
	UserID   string `json:"id"`
	FullName string `json:"full_name"`
	UserSettings
	LastSilencePromptAt    *time.Time `json:"last_silence_prompt_at,omitempty"`
	LastWeeklyReflectionAt *time.Time `json:"last_weekly_reflection_at,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// NewProfile returns a profile with default settings.
func NewProfile(userID string) Profile {
	return Profile{UserID: userID, UserSettings: DefaultSettings()}
}

// ProfilePatch is a partial profile update.
type ProfilePatch struct {
	FullName *string `json:"full_name,omitempty"`
	SettingsPatch
}

// Apply returns p with the patch applied.
func (pp ProfilePatch) Apply(p Profile) Profile {
	if pp.FullName != nil {
		p.FullName = *pp.FullName
	}
	p.UserSettings = pp.SettingsPatch.Apply(p.UserSettings)
	return p
}
