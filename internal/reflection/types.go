package reflection

import (
	"time"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
)

// NoActivityDays is reported as days since activity when the user has never
// logged anything.
const NoActivityDays = 999

// Silence reasons.
const (
	ReasonNoActivityEver    = "no-activity-ever"
	ReasonThresholdExceeded = "silence-threshold-exceeded"
)

// SilenceInfo describes how long the user has been quiet.
type SilenceInfo struct {
	InSilence         bool       `json:"in_silence"`
	DaysSinceActivity int        `json:"days_since_activity"`
	LastActivityDate  *time.Time `json:"last_activity_date,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

// SilencePrompt is a nudge shown during a silence episode.
type SilencePrompt struct {
	Type              string       `json:"type"`
	Title             string       `json:"title"`
	Message           string       `json:"message"`
	DaysSinceActivity int          `json:"days_since_activity"`
	Dismissible       bool         `json:"dismissible"`
	Tone              journal.Tone `json:"tone"`
}

// Period is an inclusive time range.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Counts tallies entries by kind.
type Counts struct {
	Receipts int `json:"receipts"`
	Moments  int `json:"moments"`
	Total    int `json:"total"`
}

// EmotionCount is an emotion and how often it was logged.
type EmotionCount struct {
	Emotion string `json:"emotion"`
	Count   int    `json:"count"`
}

// TagCount is a tag and how often it was used.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// AssumptionNote pairs a receipt title with the assumptions logged on it.
type AssumptionNote struct {
	Title       string `json:"title"`
	Assumptions string `json:"assumptions"`
}

// WeeklySummary is the raw statistics for one week.
type WeeklySummary struct {
	Period            Period           `json:"period"`
	Counts            Counts           `json:"counts"`
	DominantEmotions  []EmotionCount   `json:"dominant_emotions"`
	EmotionTotal      int              `json:"emotion_total"`
	AverageConfidence *int             `json:"average_confidence"`
	ConfidenceSamples int              `json:"confidence_samples"`
	DecisionTypes     map[string]int   `json:"decision_types"`
	MomentCategories  map[string]int   `json:"moment_categories"`
	RepeatingTags     []TagCount       `json:"repeating_tags"`
	AssumptionsLogged int              `json:"assumptions_logged"`
	Assumptions       []AssumptionNote `json:"assumptions,omitempty"`

	// Entries inside the period.
	Receipts []journal.Receipt `json:"-"`
	Moments  []journal.Moment  `json:"-"`
}

// Trend is the direction of confidence against the baseline.
type Trend string

const (
	TrendRising           Trend = "rising"
	TrendFalling          Trend = "falling"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient-data"
)

// ConfidenceTrend compares this week's average confidence to the baseline.
// The numeric fields are nil when Trend is TrendInsufficientData.
type ConfidenceTrend struct {
	Trend    Trend `json:"trend"`
	Baseline *int  `json:"baseline"`
	Current  *int  `json:"current"`
	Delta    *int  `json:"delta"`
}

// ReflectionSummary is the summary embedded in a weekly reflection.
type ReflectionSummary struct {
	ReceiptsCount     int             `json:"receipts_count"`
	MomentsCount      int             `json:"moments_count"`
	TotalEntries      int             `json:"total_entries"`
	DominantEmotions  []EmotionCount  `json:"dominant_emotions"`
	AverageConfidence *int            `json:"average_confidence"`
	ConfidenceTrend   ConfidenceTrend `json:"confidence_trend"`
	DecisionTypes     map[string]int  `json:"decision_types"`
	MomentCategories  map[string]int  `json:"moment_categories"`
	RepeatingTags     []TagCount      `json:"repeating_tags"`
}

// Prompt is the question and action offered at the end of a reflection.
type Prompt struct {
	Question        string `json:"question"`
	SuggestedAction string `json:"suggested_action"`
}

// WeeklyReflection is the composed reflection for the trailing week.
type WeeklyReflection struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Period      Period            `json:"period"`
	Summary     ReflectionSummary `json:"summary"`
	Reflection  Prompt            `json:"reflection"`
	Tone        journal.Tone      `json:"tone"`
}

// CardContext is where the UI wants to show a perspective card.
type CardContext string

const (
	ContextAfterSave        CardContext = "after-save"
	ContextWeeklyReflection CardContext = "weekly-reflection"
	ContextSilenceDetection CardContext = "silence-detection"
	ContextDashboard        CardContext = "dashboard"
)
