package journal

import (
	"encoding/json"
	"time"
)

// CardType classifies a perspective card.
type CardType string

const (
	CardLowConfidence     CardType = "low-confidence"
	CardAssumptionExpired CardType = "assumption-expired"
	CardGap               CardType = "gap"
	CardCategoryLock      CardType = "category-lock"
	CardAnniversary       CardType = "anniversary"
	CardDeadZone          CardType = "deadzone"
)

// RelatedReceipt is the related_type value for cards bound to a receipt.
const RelatedReceipt = "receipt"

// PerspectiveCard is a dismissible prompt. Cards are never deleted, only
// flagged dismissed.
type PerspectiveCard struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        CardType   `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	RelatedType string     `json:"related_type,omitempty"`
	RelatedID   string     `json:"related_id,omitempty"`
	DedupKey    string     `json:"dedup_key"`
	Dismissed   bool       `json:"dismissed"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Outcome values recorded on an outcome check.
const (
	OutcomeBetter    = "better"
	OutcomeExpected  = "expected"
	OutcomeWorse     = "worse"
	OutcomeUnsure    = "unsure"
	OutcomeDismissed = "dismissed"
)

// OutcomeLabels are display strings for each outcome.
var OutcomeLabels = map[string]string{
	OutcomeBetter:    "Better than expected",
	OutcomeExpected:  "As expected",
	OutcomeWorse:     "Worse than expected",
	OutcomeUnsure:    "Not sure yet",
	OutcomeDismissed: "Dismissed",
}

// ValidOutcome reports whether o is one of the recordable outcomes.
func ValidOutcome(o string) bool {
	_, ok := OutcomeLabels[o]
	return ok
}

// CheckState is the lifecycle state of an outcome check.
type CheckState string

const (
	CheckScheduled CheckState = "scheduled"
	CheckPending   CheckState = "pending"
	CheckPrompted  CheckState = "prompted"
	CheckCompleted CheckState = "completed"
	CheckDismissed CheckState = "dismissed"
)

// OutcomeCheck follows up on a receipt after a delay. The Original* fields
// and DecisionType are copies taken when the check is scheduled; later edits
// to the receipt do not reach them.
type OutcomeCheck struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	ReceiptID          string     `json:"receipt_id"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	OriginalConfidence *int       `json:"original_confidence"`
	OriginalEmotions   []string   `json:"original_emotions"`
	DecisionType       string     `json:"decision_type"`
	Prompted           bool       `json:"prompted"`
	PromptedAt         *time.Time `json:"prompted_at,omitempty"`
	Outcome            string     `json:"outcome,omitempty"`
	AssumptionDelta    string     `json:"assumption_delta,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// State derives the lifecycle state at now.
func (c OutcomeCheck) State(now time.Time) CheckState {
	switch {
	case c.Outcome == OutcomeDismissed:
		return CheckDismissed
	case c.Outcome != "":
		return CheckCompleted
	case c.Prompted:
		return CheckPrompted
	case now.Before(c.ScheduledAt):
		return CheckScheduled
	default:
		return CheckPending
	}
}

// Final reports whether the check is in a terminal state.
func (c OutcomeCheck) Final() bool {
	return c.Outcome != ""
}

// PatternData describes the dimension an insight was computed over.
type PatternData struct {
	Direction       string  `json:"direction"`
	Rate            float64 `json:"rate"`
	Emotion         string  `json:"emotion,omitempty"`
	DecisionType    string  `json:"decisionType,omitempty"`
	ConfidenceRange string  `json:"confidenceRange,omitempty"`
}

// InsightEvent is a persisted pattern. PatternKey is unique per user.
type InsightEvent struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	InsightType    string      `json:"insight_type"`
	PatternKey     string      `json:"pattern_key"`
	PatternData    PatternData `json:"pattern_data"`
	SampleSize     int         `json:"sample_size"`
	SignalStrength float64     `json:"signal_strength"`
	Message        string      `json:"message"`
	Surfaced       bool        `json:"surfaced"`
	SurfacedAt     *time.Time  `json:"surfaced_at,omitempty"`
	Dismissed      bool        `json:"dismissed"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Priority orders notifications.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Notification types.
const (
	NotifySilenceNudge          = "silence-nudge"
	NotifyWeeklyReflectionReady = "weekly-reflection-ready"
	NotifyCaptureReminder       = "capture-reminder"
	NotifyPerspectiveCard       = "perspective-card"
)

// Notification is an in-app notification event.
type Notification struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Priority    Priority       `json:"priority"`
	Read        bool           `json:"read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	Dismissed   bool           `json:"dismissed"`
	DismissedAt *time.Time     `json:"dismissed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SavedReflection is a weekly reflection the user has viewed and kept.
// Summary holds the serialized reflection summary.
type SavedReflection struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	Summary            json.RawMessage `json:"summary"`
	ReflectionQuestion string          `json:"reflection_question,omitempty"`
	SuggestedAction    string          `json:"suggested_action,omitempty"`
	Tone               string          `json:"tone"`
	UserNotes          string          `json:"user_notes,omitempty"`
	Viewed             bool            `json:"viewed"`
	ViewedAt           *time.Time      `json:"viewed_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}
