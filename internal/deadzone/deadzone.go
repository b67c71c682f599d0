// Package deadzone detects stale zones in a user's journal: stretches with
// little signal, long silences, narrowing focus and repeated themes.
//
// Every rule is a simple threshold over the trailing window. Flags are
// recomputed on each call and never stored.
package deadzone

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

// DefaultWindowDays is the lookback used when the caller passes no window.
const DefaultWindowDays = 14

// Thresholds for the individual rules.
const (
	lowSignalMinItems        = 2
	silenceGapMediumDays     = 5
	silenceGapHighDays       = 7
	categoryLockMinMoments   = 3
	categoryLockSharePercent = 70
	tagRepetitionMinCount    = 3
	decisionAvoidanceMoments = 5
)

// Severity grades a flag.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FlagType names the rule that produced a flag.
type FlagType string

const (
	FlagLowSignal         FlagType = "low-signal"
	FlagSilenceGap        FlagType = "silence-gap"
	FlagCategoryLock      FlagType = "category-lock"
	FlagTagRepetition     FlagType = "tag-repetition"
	FlagDecisionAvoidance FlagType = "decision-avoidance"
)

// Flag is one detected dead-zone signal. The optional payload fields are set
// by the rules that have something to report.
type Flag struct {
	Type       FlagType `json:"type"`
	Severity   Severity `json:"severity"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	GapDays    int      `json:"gap_days,omitempty"`
	Category   string   `json:"category,omitempty"`
	Percentage int      `json:"percentage,omitempty"`
	Tag        string   `json:"tag,omitempty"`
	Count      int      `json:"count,omitempty"`
}

// Summary aggregates the window the flags were computed over.
type Summary struct {
	WindowDays     int        `json:"window_days"`
	TotalReceipts  int        `json:"total_receipts"`
	TotalMoments   int        `json:"total_moments"`
	TotalItems     int        `json:"total_items"`
	SilenceGapDays int        `json:"silence_gap_days"`
	UniqueTags     int        `json:"unique_tags"`
	FlagCount      int        `json:"flag_count"`
	LastActivity   *time.Time `json:"last_activity"`
}

// Result is the outcome of one analysis.
type Result struct {
	Flags   []Flag  `json:"flags"`
	Summary Summary `json:"summary"`
}

// HasFlag reports whether a flag of type t was raised.
func (r Result) HasFlag(t FlagType) bool {
	_, ok := r.Flag(t)
	return ok
}

// Flag returns the flag of type t, if raised.
func (r Result) Flag(t FlagType) (Flag, bool) {
	for _, f := range r.Flags {
		if f.Type == t {
			return f, true
		}
	}
	return Flag{}, false
}

// Analyzer computes dead-zone flags relative to its clock.
type Analyzer struct {
	clock timewindow.Clock
}

// NewAnalyzer creates an analyzer. A nil clock uses the system clock.
func NewAnalyzer(clock timewindow.Clock) *Analyzer {
	if clock == nil {
		clock = timewindow.SystemClock{}
	}
	return &Analyzer{clock: clock}
}

// Compute evaluates every rule over the trailing windowDays. A non-positive
// window uses DefaultWindowDays. Empty inputs are valid and produce the
// low-signal and full-window silence flags.
func (a *Analyzer) Compute(receipts []journal.Receipt, moments []journal.Moment, windowDays int) Result {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	now := a.clock.Now()

	var recentReceipts []journal.Receipt
	for _, r := range receipts {
		if timewindow.Within(r.CreatedAt, windowDays, now) {
			recentReceipts = append(recentReceipts, r)
		}
	}
	var recentMoments []journal.Moment
	for _, m := range moments {
		if timewindow.Within(m.CreatedAt, windowDays, now) {
			recentMoments = append(recentMoments, m)
		}
	}

	totalItems := len(recentReceipts) + len(recentMoments)
	flags := make([]Flag, 0, 5)

	// Low signal
	if totalItems < lowSignalMinItems {
		flags = append(flags, Flag{
			Type:     FlagLowSignal,
			Severity: SeverityHigh,
			Title:    "Low Signal Zone",
			Message:  fmt.Sprintf("Only %d entries in the last %d days. Your context is fading.", totalItems, windowDays),
		})
	}

	// Silence gap
	activity := journal.ActivityTimes(recentReceipts, recentMoments)
	gap := timewindow.LongestGap(activity, windowDays, now)
	if gap >= silenceGapMediumDays {
		severity := SeverityMedium
		if gap >= silenceGapHighDays {
			severity = SeverityHigh
		}
		flags = append(flags, Flag{
			Type:     FlagSilenceGap,
			Severity: severity,
			Title:    "Silence Gap Detected",
			Message:  fmt.Sprintf("%d days without any entries. What's been happening?", gap),
			GapDays:  gap,
		})
	}

	// Category lock
	if len(recentMoments) >= categoryLockMinMoments {
		if category, count, ok := dominantCategory(recentMoments); ok {
			pct := roundPercent(count, len(recentMoments))
			flags = append(flags, Flag{
				Type:       FlagCategoryLock,
				Severity:   SeverityMedium,
				Title:      "Single Focus Zone",
				Message:    fmt.Sprintf("%d%% of your moments are about %s. Life might be narrowing.", pct, category),
				Category:   category,
				Percentage: pct,
				Count:      count,
			})
		}
	}

	// Tag repetition
	tags := pooledTags(recentReceipts, recentMoments)
	if tag, count, ok := topTag(tags); ok && count >= tagRepetitionMinCount {
		flags = append(flags, Flag{
			Type:     FlagTagRepetition,
			Severity: SeverityLow,
			Title:    "Pattern Detected",
			Message:  fmt.Sprintf("\"%s\" appears frequently. Is this a rut or a rhythm?", tag),
			Tag:      tag,
			Count:    count,
		})
	}

	// Decision avoidance
	if len(recentMoments) >= decisionAvoidanceMoments && len(recentReceipts) == 0 {
		flags = append(flags, Flag{
			Type:     FlagDecisionAvoidance,
			Severity: SeverityMedium,
			Title:    "Decision Drought",
			Message:  "Lots of moments captured, but no decisions logged. Are you avoiding something?",
		})
	}

	summary := Summary{
		WindowDays:     windowDays,
		TotalReceipts:  len(recentReceipts),
		TotalMoments:   len(recentMoments),
		TotalItems:     totalItems,
		SilenceGapDays: gap,
		UniqueTags:     uniqueCount(tags),
		FlagCount:      len(flags),
	}
	if last, ok := timewindow.Latest(activity); ok {
		summary.LastActivity = &last
	}

	return Result{Flags: flags, Summary: summary}
}

// dominantCategory returns the first category whose share of moments is
// strictly above categoryLockSharePercent. Moments without a category are
// counted in the total but never reported.
func dominantCategory(moments []journal.Moment) (string, int, bool) {
	counts := make(map[string]int)
	var order []string
	for _, m := range moments {
		if _, seen := counts[m.Category]; !seen {
			order = append(order, m.Category)
		}
		counts[m.Category]++
	}

	total := len(moments)
	for _, category := range order {
		if category == "" {
			continue
		}
		count := counts[category]
		// Integer comparison keeps 7/10 from drifting over the line.
		if count*100 > categoryLockSharePercent*total {
			return category, count, true
		}
	}
	return "", 0, false
}

// roundPercent returns count/total as a percentage rounded half-up.
func roundPercent(count, total int) int {
	if total == 0 {
		return 0
	}
	return (count*200 + total) / (2 * total)
}

func pooledTags(receipts []journal.Receipt, moments []journal.Moment) []string {
	var tags []string
	for _, r := range receipts {
		tags = append(tags, r.Tags...)
	}
	for _, m := range moments {
		tags = append(tags, m.Tags...)
	}
	return tags
}

// topTag returns the most frequent tag. Ties go to the tag seen first.
func topTag(tags []string) (string, int, bool) {
	counts := make(map[string]int)
	var order []string
	for _, t := range tags {
		if _, seen := counts[t]; !seen {
			order = append(order, t)
		}
		counts[t]++
	}

	best, bestCount := "", 0
	for _, t := range order {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	return best, bestCount, bestCount > 0
}

func uniqueCount(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
