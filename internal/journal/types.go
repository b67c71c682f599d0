// Package journal defines the records shared by the contextlog analyzers,
// store and API: receipts, moments and the derived records computed from
// them.
//
// Enum-like fields (decision types, categories, card types) are plain
// strings. Unknown values are carried through as opaque labels rather than
// rejected.
package journal

import (
	"strings"
	"time"
)

// Known decision types offered by the capture form.
const (
	DecisionCareer       = "Career"
	DecisionMoney        = "Money"
	DecisionRelationship = "Relationship"
	DecisionHealth       = "Health"
	DecisionProject      = "Project"
	DecisionOther        = "Other"
)

// Known moment categories offered by the capture form.
const (
	CategoryPeople  = "People"
	CategoryPlace   = "Place"
	CategoryRoutine = "Routine"
	CategoryWork    = "Work"
	CategoryFamily  = "Family"
	CategoryOther   = "Other"
)

// DefaultConfidence is applied to receipts captured without a confidence.
const DefaultConfidence = 50

// Receipt is a logged decision.
type Receipt struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	DecisionType  string    `json:"decision_type"`
	Context       string    `json:"context,omitempty"`
	Assumptions   string    `json:"assumptions,omitempty"`
	Constraints   string    `json:"constraints,omitempty"`
	Emotions      []string  `json:"emotions"`
	Confidence    *int      `json:"confidence"`
	ChangeMind    string    `json:"change_mind,omitempty"`
	Tags          []string  `json:"tags"`
	LinkURL       string    `json:"link_url,omitempty"`
	LocationLabel string    `json:"location_label,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasAssumptions reports whether the receipt carries non-blank assumptions.
func (r Receipt) HasAssumptions() bool {
	return strings.TrimSpace(r.Assumptions) != ""
}

// Moment is a lightweight memory record.
type Moment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Note        string    `json:"note,omitempty"`
	WhyMattered string    `json:"why_mattered,omitempty"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActivityTimes returns the creation time of every receipt and moment.
func ActivityTimes(receipts []Receipt, moments []Moment) []time.Time {
	times := make([]time.Time, 0, len(receipts)+len(moments))
	for _, r := range receipts {
		times = append(times, r.CreatedAt)
	}
	for _, m := range moments {
		times = append(times, m.CreatedAt)
	}
	return times
}

// Intn returns a pointer to v. Used for optional integer fields.
func Intn(v int) *int { return &v }

// ClampConfidence bounds a confidence value into [0, 100].
func ClampConfidence(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
