// Package memoryloop closes the loop between decisions and outcomes: it
// schedules follow-up checks on past receipts, records how they turned out
// and mines completed outcomes for patterns worth surfacing as insights.
//
// Patterns are gated twice: a bucket needs MinSampleSize outcomes before a
// rate is computed, and only patterns whose signal strength reaches
// SignalThreshold are returned.
package memoryloop

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

const (
	// MinSampleSize is the fewest outcomes a pattern may be computed from.
	MinSampleSize = 5

	// SignalThreshold is the minimum signal strength of a returned pattern.
	SignalThreshold = 0.6
)

// Confidence buckets and rate thresholds.
const (
	lowConfidenceMax    = 40
	highConfidenceMin   = 70
	bucketRateThreshold = 0.6
	lowConfidenceRate   = 0.5
	overconfidenceRate  = 0.4
	overconfidenceBoost = 0.1
)

// Pattern types.
const (
	PatternEmotionOutcome    = "emotion-outcome"
	PatternConfidenceOutcome = "confidence-outcome"
	PatternTypeOutcome       = "type-outcome"
)

var (
	// ErrOutcomeFinal is returned when changing a completed or dismissed check.
	ErrOutcomeFinal = errors.New("outcome check already has a final outcome")

	// ErrInvalidOutcome is returned for an outcome outside the known set.
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// DueCheck is a receipt whose outcome check is due.
type DueCheck struct {
	ReceiptID           string    `json:"receipt_id"`
	ReceiptTitle        string    `json:"receipt_title"`
	ReceiptDecisionType string    `json:"receipt_decision_type"`
	ReceiptConfidence   *int      `json:"receipt_confidence"`
	ReceiptEmotions     []string  `json:"receipt_emotions"`
	ReceiptCreatedAt    time.Time `json:"receipt_created_at"`
	ScheduledAt         time.Time `json:"scheduled_at"`
	DaysSince           int       `json:"days_since"`
}

// Pattern is a correlation between a decision attribute and its outcomes.
type Pattern struct {
	Type            string  `json:"type"`
	Key             string  `json:"key"`
	Emotion         string  `json:"emotion,omitempty"`
	DecisionType    string  `json:"decision_type,omitempty"`
	ConfidenceRange string  `json:"confidence_range,omitempty"`
	Direction       string  `json:"direction"`
	Rate            float64 `json:"rate"`
	SampleSize      int     `json:"sample_size"`
	SignalStrength  float64 `json:"signal_strength"`
	Message         string  `json:"message"`
}

// Analysis is the result of AnalyzeOutcomePatterns.
type Analysis struct {
	Patterns         []Pattern `json:"patterns"`
	InsufficientData bool      `json:"insufficient_data"`
	SampleSize       int       `json:"sample_size"`
}

// OutcomeCounts tallies the directional outcomes of a week.
type OutcomeCounts struct {
	Better   int `json:"better"`
	Expected int `json:"expected"`
	Worse    int `json:"worse"`
}

// WeeklyLearning is the "one thing learned this week" statement.
type WeeklyLearning struct {
	Learning      string        `json:"learning,omitempty"`
	OutcomesCount int           `json:"outcomes_count"`
	HasDeltas     bool          `json:"has_deltas"`
	OutcomeCounts OutcomeCounts `json:"outcome_counts"`
}

// Engine runs the memory loop relative to its clock.
type Engine struct {
	clock timewindow.Clock
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDFunc overrides id generation for checks and insights.
func WithIDFunc(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates a memory loop engine. A nil clock uses the system clock.
func NewEngine(clock timewindow.Clock, opts ...Option) *Engine {
	if clock == nil {
		clock = timewindow.SystemClock{}
	}
	e := &Engine{
		clock: clock,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func delayDays(settings journal.UserSettings) int {
	if settings.OutcomeDelayDays > 0 {
		return settings.OutcomeDelayDays
	}
	return journal.DefaultSettings().OutcomeDelayDays
}

// ScheduledAt returns when the outcome check for r becomes due.
func ScheduledAt(r journal.Receipt, settings journal.UserSettings) time.Time {
	return r.CreatedAt.AddDate(0, 0, delayDays(settings))
}

// FindDueOutcomeChecks returns at most one due check: the receipt without
// an outcome record whose scheduled date is earliest. Only one follow-up is
// ever prompted at a time. Settings are normalized first, so the zero value
// means the defaults rather than checks turned off.
func (e *Engine) FindDueOutcomeChecks(receipts []journal.Receipt, existing []journal.OutcomeCheck, settings journal.UserSettings) []DueCheck {
	settings = settings.Normalized()
	if !settings.OutcomeChecksEnabled {
		return []DueCheck{}
	}

	now := e.clock.Now()
	checked := make(map[string]bool, len(existing))
	for _, c := range existing {
		checked[c.ReceiptID] = true
	}

	var due *DueCheck
	for _, r := range receipts {
		if checked[r.ID] {
			continue
		}
		scheduled := ScheduledAt(r, settings)
		if now.Before(scheduled) {
			continue
		}
		if due != nil && !scheduled.Before(due.ScheduledAt) {
			continue
		}
		due = &DueCheck{
			ReceiptID:           r.ID,
			ReceiptTitle:        r.Title,
			ReceiptDecisionType: r.DecisionType,
			ReceiptConfidence:   r.Confidence,
			ReceiptEmotions:     nonNil(r.Emotions),
			ReceiptCreatedAt:    r.CreatedAt,
			ScheduledAt:         scheduled,
			DaysSince:           timewindow.ElapsedDays(r.CreatedAt, now),
		}
	}

	if due == nil {
		return []DueCheck{}
	}
	return []DueCheck{*due}
}

// CreateOutcomeCheck schedules a check for r. Confidence, emotions and
// decision type are copied so later edits to the receipt leave the check
// untouched.
func (e *Engine) CreateOutcomeCheck(r journal.Receipt, settings journal.UserSettings) journal.OutcomeCheck {
	var confidence *int
	if r.Confidence != nil {
		confidence = journal.Intn(*r.Confidence)
	}
	return journal.OutcomeCheck{
		ID:                 e.newID(),
		UserID:             r.UserID,
		ReceiptID:          r.ID,
		ScheduledAt:        ScheduledAt(r, settings),
		OriginalConfidence: confidence,
		OriginalEmotions:   nonNil(slices.Clone(r.Emotions)),
		DecisionType:       r.DecisionType,
		CreatedAt:          e.clock.Now(),
	}
}

// MarkPrompted moves a pending check to prompted.
func (e *Engine) MarkPrompted(c journal.OutcomeCheck) (journal.OutcomeCheck, error) {
	if c.Final() {
		return c, ErrOutcomeFinal
	}
	if c.Prompted {
		return c, nil
	}
	now := e.clock.Now()
	c.Prompted = true
	c.PromptedAt = &now
	return c, nil
}

// RecordOutcome completes or dismisses a check. Terminal checks cannot change.
func (e *Engine) RecordOutcome(c journal.OutcomeCheck, outcome, assumptionDelta string) (journal.OutcomeCheck, error) {
	if c.Final() {
		return c, ErrOutcomeFinal
	}
	if !journal.ValidOutcome(outcome) {
		return c, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	now := e.clock.Now()
	if !c.Prompted {
		c.Prompted = true
		c.PromptedAt = &now
	}
	c.Outcome = outcome
	c.AssumptionDelta = strings.TrimSpace(assumptionDelta)
	c.CompletedAt = &now
	return c, nil
}

// stats counts outcomes within one bucket.
type stats struct {
	better, worse, total int
}

func (s *stats) add(outcome string) {
	switch outcome {
	case journal.OutcomeBetter:
		s.better++
	case journal.OutcomeWorse:
		s.worse++
	}
	s.total++
}

func (s stats) rates() (worse, better float64) {
	return float64(s.worse) / float64(s.total), float64(s.better) / float64(s.total)
}

// AnalyzeOutcomePatterns correlates completed outcomes with the emotions,
// confidence and decision type captured when each check was scheduled.
// Dismissed and unsure outcomes are ignored.
func AnalyzeOutcomePatterns(outcomes []journal.OutcomeCheck, receipts []journal.Receipt) Analysis {
	var completed []journal.OutcomeCheck
	for _, o := range outcomes {
		if o.Outcome == "" || o.Outcome == journal.OutcomeDismissed || o.Outcome == journal.OutcomeUnsure || o.CompletedAt == nil {
			continue
		}
		completed = append(completed, o)
	}

	if len(completed) < MinSampleSize {
		return Analysis{Patterns: []Pattern{}, InsufficientData: true, SampleSize: len(completed)}
	}

	// Outcomes whose receipt was deleted drop out of the analysis.
	known := make(map[string]bool, len(receipts))
	for _, r := range receipts {
		known[r.ID] = true
	}
	enriched := completed[:0:0]
	for _, o := range completed {
		if known[o.ReceiptID] {
			enriched = append(enriched, o)
		}
	}

	var patterns []Pattern
	patterns = append(patterns, emotionPatterns(enriched)...)
	patterns = append(patterns, confidencePatterns(enriched)...)
	patterns = append(patterns, typePatterns(enriched)...)

	strong := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.SignalStrength >= SignalThreshold {
			strong = append(strong, p)
		}
	}
	return Analysis{Patterns: strong, SampleSize: len(completed)}
}

func emotionPatterns(outcomes []journal.OutcomeCheck) []Pattern {
	byEmotion := make(map[string]*stats)
	var order []string
	for _, o := range outcomes {
		for _, emotion := range o.OriginalEmotions {
			s, ok := byEmotion[emotion]
			if !ok {
				s = &stats{}
				byEmotion[emotion] = s
				order = append(order, emotion)
			}
			s.add(o.Outcome)
		}
	}

	var patterns []Pattern
	for _, emotion := range order {
		s := byEmotion[emotion]
		if s.total < MinSampleSize {
			continue
		}
		worse, better := s.rates()
		if worse >= bucketRateThreshold {
			patterns = append(patterns, Pattern{
				Type:           PatternEmotionOutcome,
				Key:            emotion + "-worse",
				Emotion:        emotion,
				Direction:      journal.OutcomeWorse,
				Rate:           worse,
				SampleSize:     s.total,
				SignalStrength: worse,
				Message:        fmt.Sprintf("Decisions made while feeling %s have gone worse than expected %d%% of the time.", emotion, percent(worse)),
			})
		}
		if better >= bucketRateThreshold {
			patterns = append(patterns, Pattern{
				Type:           PatternEmotionOutcome,
				Key:            emotion + "-better",
				Emotion:        emotion,
				Direction:      journal.OutcomeBetter,
				Rate:           better,
				SampleSize:     s.total,
				SignalStrength: better,
				Message:        fmt.Sprintf("Decisions made while feeling %s have gone better than expected %d%% of the time.", emotion, percent(better)),
			})
		}
	}
	return patterns
}

func confidencePatterns(outcomes []journal.OutcomeCheck) []Pattern {
	var low, high stats
	for _, o := range outcomes {
		if o.OriginalConfidence == nil {
			continue
		}
		switch c := *o.OriginalConfidence; {
		case c <= lowConfidenceMax:
			low.add(o.Outcome)
		case c >= highConfidenceMin:
			high.add(o.Outcome)
		}
	}

	var patterns []Pattern
	if low.total >= MinSampleSize {
		worse, better := low.rates()
		if worse >= lowConfidenceRate {
			patterns = append(patterns, Pattern{
				Type:            PatternConfidenceOutcome,
				Key:             "low-confidence-worse",
				ConfidenceRange: "low",
				Direction:       journal.OutcomeWorse,
				Rate:            worse,
				SampleSize:      low.total,
				SignalStrength:  worse,
				Message:         fmt.Sprintf("Low-confidence decisions have gone worse than expected %d%% of the time.", percent(worse)),
			})
		}
		if better >= lowConfidenceRate {
			patterns = append(patterns, Pattern{
				Type:            PatternConfidenceOutcome,
				Key:             "low-confidence-better",
				ConfidenceRange: "low",
				Direction:       journal.OutcomeBetter,
				Rate:            better,
				SampleSize:      low.total,
				SignalStrength:  better,
				Message:         fmt.Sprintf("Low-confidence decisions have gone better than expected %d%% of the time. Your doubts may be miscalibrated.", percent(better)),
			})
		}
	}

	if high.total >= MinSampleSize {
		// Overconfidence is boosted so a 50% miss rate surfaces.
		worse, _ := high.rates()
		if worse >= overconfidenceRate {
			patterns = append(patterns, Pattern{
				Type:            PatternConfidenceOutcome,
				Key:             "high-confidence-worse",
				ConfidenceRange: "high",
				Direction:       journal.OutcomeWorse,
				Rate:            worse,
				SampleSize:      high.total,
				SignalStrength:  worse + overconfidenceBoost,
				Message:         fmt.Sprintf("High-confidence decisions have gone worse than expected %d%% of the time. There may be overconfidence at play.", percent(worse)),
			})
		}
	}
	return patterns
}

func typePatterns(outcomes []journal.OutcomeCheck) []Pattern {
	byType := make(map[string]*stats)
	var order []string
	for _, o := range outcomes {
		if o.DecisionType == "" {
			continue
		}
		s, ok := byType[o.DecisionType]
		if !ok {
			s = &stats{}
			byType[o.DecisionType] = s
			order = append(order, o.DecisionType)
		}
		s.add(o.Outcome)
	}

	var patterns []Pattern
	for _, decisionType := range order {
		s := byType[decisionType]
		if s.total < MinSampleSize {
			continue
		}
		worse, better := s.rates()
		if worse >= bucketRateThreshold {
			patterns = append(patterns, Pattern{
				Type:           PatternTypeOutcome,
				Key:            decisionType + "-worse",
				DecisionType:   decisionType,
				Direction:      journal.OutcomeWorse,
				Rate:           worse,
				SampleSize:     s.total,
				SignalStrength: worse,
				Message:        fmt.Sprintf("%s decisions have gone worse than expected %d%% of the time.", decisionType, percent(worse)),
			})
		}
		if better >= bucketRateThreshold {
			patterns = append(patterns, Pattern{
				Type:           PatternTypeOutcome,
				Key:            decisionType + "-better",
				DecisionType:   decisionType,
				Direction:      journal.OutcomeBetter,
				Rate:           better,
				SampleSize:     s.total,
				SignalStrength: better,
				Message:        fmt.Sprintf("%s decisions have gone better than expected %d%% of the time.", decisionType, percent(better)),
			})
		}
	}
	return patterns
}

// GenerateWeeklyLearning summarizes outcomes completed in [start, end]. The
// most recently completed assumption delta wins; otherwise the statement is
// built from the balance of worse and better outcomes.
func GenerateWeeklyLearning(outcomes []journal.OutcomeCheck, start, end time.Time) WeeklyLearning {
	var week []journal.OutcomeCheck
	for _, o := range outcomes {
		if o.CompletedAt != nil && timewindow.InRange(*o.CompletedAt, start, end) {
			week = append(week, o)
		}
	}
	if len(week) == 0 {
		return WeeklyLearning{}
	}

	var counts OutcomeCounts
	var latestDelta *journal.OutcomeCheck
	for i := range week {
		o := &week[i]
		switch o.Outcome {
		case journal.OutcomeBetter:
			counts.Better++
		case journal.OutcomeExpected:
			counts.Expected++
		case journal.OutcomeWorse:
			counts.Worse++
		}
		if strings.TrimSpace(o.AssumptionDelta) == "" {
			continue
		}
		if latestDelta == nil || !o.CompletedAt.Before(*latestDelta.CompletedAt) {
			latestDelta = o
		}
	}

	l := WeeklyLearning{
		OutcomesCount: len(week),
		HasDeltas:     latestDelta != nil,
		OutcomeCounts: counts,
	}
	switch {
	case latestDelta != nil:
		l.Learning = fmt.Sprintf("From a recent decision: \"%s\"", latestDelta.AssumptionDelta)
	case counts.Worse > counts.Better:
		l.Learning = fmt.Sprintf("%d decision(s) went worse than expected this week. What was different from what you assumed?", counts.Worse)
	case counts.Better > counts.Worse:
		l.Learning = fmt.Sprintf("%d decision(s) went better than expected. What worked that you didn't anticipate?", counts.Better)
	default:
		l.Learning = fmt.Sprintf("%d decision outcome(s) recorded this week.", len(week))
	}
	return l
}

// CreateInsightEvent wraps a pattern into a persistable insight.
func (e *Engine) CreateInsightEvent(p Pattern, userID string) journal.InsightEvent {
	return journal.InsightEvent{
		ID:          e.newID(),
		UserID:      userID,
		InsightType: p.Type,
		PatternKey:  p.Key,
		PatternData: journal.PatternData{
			Direction:       p.Direction,
			Rate:            p.Rate,
			Emotion:         p.Emotion,
			DecisionType:    p.DecisionType,
			ConfidenceRange: p.ConfidenceRange,
		},
		SampleSize:     p.SampleSize,
		SignalStrength: p.SignalStrength,
		Message:        p.Message,
		CreatedAt:      e.clock.Now(),
	}
}

// ShouldSurfaceInsight reports whether p has never been surfaced or
// dismissed. Suppression is permanent per pattern key.
func ShouldSurfaceInsight(p Pattern, existing []journal.InsightEvent) bool {
	for _, i := range existing {
		if i.PatternKey == p.Key && (i.Surfaced || i.Dismissed) {
			return false
		}
	}
	return true
}

// GetTopInsight returns the strongest pattern that may still be surfaced,
// or nil.
func GetTopInsight(patterns []Pattern, existing []journal.InsightEvent) *Pattern {
	var candidates []Pattern
	for _, p := range patterns {
		if ShouldSurfaceInsight(p, existing) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SignalStrength > candidates[j].SignalStrength
	})
	return &candidates[0]
}

// percent renders a rate as a whole percentage, rounding half up.
func percent(rate float64) int {
	return int(math.Floor(rate*100 + 0.5))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
