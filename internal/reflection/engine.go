package reflection

import (
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/pick"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

// Trend thresholds, in confidence points.
const (
	risingDelta  = 10
	fallingDelta = -10
)

const (
	topEmotions      = 3
	topRepeatingTags = 5
	minTagRepeats    = 2
	weekDays         = 7
)

// Engine computes reflections relative to its clock and picks messages with
// its picker. It holds no per-user state and is safe for concurrent use when
// the picker is.
type Engine struct {
	clock  timewindow.Clock
	picker pick.Picker
}

// NewEngine creates a reflection engine. A nil clock uses the system clock
// and a nil picker always picks the first message.
func NewEngine(clock timewindow.Clock, picker pick.Picker) *Engine {
	if clock == nil {
		clock = timewindow.SystemClock{}
	}
	if picker == nil {
		picker = pick.First()
	}
	return &Engine{clock: clock, picker: picker}
}

func silenceThreshold(settings journal.UserSettings) int {
	if settings.SilenceThresholdDays > 0 {
		return settings.SilenceThresholdDays
	}
	return journal.DefaultSettings().SilenceThresholdDays
}

// DetectSilence reports whether the user has been quiet for at least their
// silence threshold. A user with no entries at all is always in silence.
func (e *Engine) DetectSilence(receipts []journal.Receipt, moments []journal.Moment, settings journal.UserSettings) SilenceInfo {
	last, ok := timewindow.Latest(journal.ActivityTimes(receipts, moments))
	if !ok {
		return SilenceInfo{
			InSilence:         true,
			DaysSinceActivity: NoActivityDays,
			Reason:            ReasonNoActivityEver,
		}
	}

	days := timewindow.ElapsedDays(last, e.clock.Now())
	info := SilenceInfo{
		InSilence:         days >= silenceThreshold(settings),
		DaysSinceActivity: days,
		LastActivityDate:  &last,
	}
	if info.InSilence {
		info.Reason = ReasonThresholdExceeded
	}
	return info
}

// GenerateSilencePrompt returns a toned nudge for the current silence
// episode, or nil when the user is not silent or a silence-nudge
// notification was already created since activity stopped.
func (e *Engine) GenerateSilencePrompt(info SilenceInfo, settings journal.UserSettings, existing []journal.Notification) *SilencePrompt {
	if !info.InSilence {
		return nil
	}

	windowStart := e.clock.Now().AddDate(0, 0, -info.DaysSinceActivity)
	for _, n := range existing {
		if n.Type == journal.NotifySilenceNudge && !n.CreatedAt.Before(windowStart) {
			return nil
		}
	}

	tone := resolveTone(settings.ReflectionTone)
	return &SilencePrompt{
		Type:              journal.NotifySilenceNudge,
		Title:             "A quiet moment",
		Message:           pick.String(e.picker, Tones[tone].SilencePrompts),
		DaysSinceActivity: info.DaysSinceActivity,
		Dismissible:       true,
		Tone:              tone,
	}
}

// ComputeWeeklySummary aggregates the entries created in [start, end].
func ComputeWeeklySummary(receipts []journal.Receipt, moments []journal.Moment, start, end time.Time) WeeklySummary {
	s := WeeklySummary{
		Period:           Period{Start: start, End: end},
		DecisionTypes:    make(map[string]int),
		MomentCategories: make(map[string]int),
		DominantEmotions: []EmotionCount{},
		RepeatingTags:    []TagCount{},
	}

	for _, r := range receipts {
		if timewindow.InRange(r.CreatedAt, start, end) {
			s.Receipts = append(s.Receipts, r)
		}
	}
	for _, m := range moments {
		if timewindow.InRange(m.CreatedAt, start, end) {
			s.Moments = append(s.Moments, m)
		}
	}
	s.Counts = Counts{
		Receipts: len(s.Receipts),
		Moments:  len(s.Moments),
		Total:    len(s.Receipts) + len(s.Moments),
	}

	emotions := newCounter()
	tags := newCounter()
	var confidences []int
	for _, r := range s.Receipts {
		for _, e := range r.Emotions {
			emotions.add(e)
		}
		for _, t := range r.Tags {
			tags.add(t)
		}
		if r.Confidence != nil {
			confidences = append(confidences, *r.Confidence)
		}
		s.DecisionTypes[r.DecisionType]++
		if r.HasAssumptions() {
			s.Assumptions = append(s.Assumptions, AssumptionNote{Title: r.Title, Assumptions: r.Assumptions})
		}
	}
	for _, m := range s.Moments {
		for _, t := range m.Tags {
			tags.add(t)
		}
		s.MomentCategories[m.Category]++
	}

	for _, kv := range emotions.top(topEmotions, 1) {
		s.DominantEmotions = append(s.DominantEmotions, EmotionCount{Emotion: kv.key, Count: kv.count})
	}
	s.EmotionTotal = emotions.total
	for _, kv := range tags.top(topRepeatingTags, minTagRepeats) {
		s.RepeatingTags = append(s.RepeatingTags, TagCount{Tag: kv.key, Count: kv.count})
	}

	s.ConfidenceSamples = len(confidences)
	s.AverageConfidence = roundedMean(confidences)
	s.AssumptionsLogged = len(s.Assumptions)
	return s
}

// CalculateConfidenceTrend compares the week's average confidence to the
// average of every other receipt. Receipts without a confidence are ignored.
func CalculateConfidenceTrend(all, week []journal.Receipt) ConfidenceTrend {
	inWeek := make(map[string]bool, len(week))
	for _, r := range week {
		inWeek[r.ID] = true
	}

	var baseline, current []int
	for _, r := range all {
		if !inWeek[r.ID] && r.Confidence != nil {
			baseline = append(baseline, *r.Confidence)
		}
	}
	for _, r := range week {
		if r.Confidence != nil {
			current = append(current, *r.Confidence)
		}
	}

	if len(baseline) == 0 || len(current) == 0 {
		return ConfidenceTrend{Trend: TrendInsufficientData}
	}

	b, c := roundedMean(baseline), roundedMean(current)
	delta := *c - *b

	trend := TrendStable
	switch {
	case delta >= risingDelta:
		trend = TrendRising
	case delta <= fallingDelta:
		trend = TrendFalling
	}
	return ConfidenceTrend{Trend: trend, Baseline: b, Current: c, Delta: &delta}
}

// GenerateReflectionQuestion picks a question for the week. Context
// triggers contribute targeted questions; without any the tone's generic
// questions are used.
func (e *Engine) GenerateReflectionQuestion(s WeeklySummary, trend ConfidenceTrend, settings journal.UserSettings) string {
	var candidates []string

	if s.Counts.Total == 0 {
		candidates = append(candidates,
			"What kept you from logging this week?",
			"Was it a quiet week, or just undocumented?",
		)
	}

	if trend.Trend == TrendFalling {
		candidates = append(candidates,
			"Your confidence seems lower than usual. What's creating uncertainty?",
			"What would help you feel more certain about recent decisions?",
		)
	}

	for _, ec := range s.DominantEmotions {
		if anxiousEmotions[ec.Emotion] {
			candidates = append(candidates,
				"There's some tension in your recent entries. What's driving it?",
				"What would need to change for you to feel calmer about things?",
			)
			break
		}
	}

	if len(s.DecisionTypes) == 1 && s.Counts.Receipts >= 2 {
		for decisionType := range s.DecisionTypes {
			candidates = append(candidates,
				fmt.Sprintf("All your decisions this week were %s-related. Is that where your focus should be?", decisionType))
		}
	}

	if len(candidates) == 0 {
		return pick.String(e.picker, toneConfig(settings.ReflectionTone).ReflectionQuestions)
	}
	return pick.String(e.picker, candidates)
}

// GenerateSuggestedAction picks a suggested action for the week.
func (e *Engine) GenerateSuggestedAction(s WeeklySummary, settings journal.UserSettings) string {
	var candidates []string

	if s.Counts.Receipts == 0 && s.Counts.Moments > 0 {
		candidates = append(candidates, "You captured moments but no decisions. Were there choices you didn't log?")
	}
	if s.Counts.Moments == 0 && s.Counts.Receipts > 0 {
		candidates = append(candidates, "All decisions, no moments. What small things might be worth remembering?")
	}
	if s.AssumptionsLogged > 0 {
		candidates = append(candidates, "You logged assumptions this week. Consider marking a reminder to check them later.")
	}
	if len(s.RepeatingTags) > 0 {
		candidates = append(candidates,
			fmt.Sprintf("\"%s\" keeps appearing. Is that a theme worth exploring?", s.RepeatingTags[0].Tag))
	}

	if len(candidates) == 0 {
		return pick.String(e.picker, toneConfig(settings.ReflectionTone).SuggestedActions)
	}
	return pick.String(e.picker, candidates)
}

// GenerateWeeklyReflection composes the reflection for the seven days ending
// now. receipts and moments may be pre-filtered; allReceipts is the full
// history used for the confidence baseline.
func (e *Engine) GenerateWeeklyReflection(receipts []journal.Receipt, moments []journal.Moment, allReceipts []journal.Receipt, settings journal.UserSettings) WeeklyReflection {
	now := e.clock.Now()
	start := now.AddDate(0, 0, -weekDays)

	summary := ComputeWeeklySummary(receipts, moments, start, now)
	trend := CalculateConfidenceTrend(allReceipts, summary.Receipts)

	return WeeklyReflection{
		GeneratedAt: now,
		Period:      summary.Period,
		Summary: ReflectionSummary{
			ReceiptsCount:     summary.Counts.Receipts,
			MomentsCount:      summary.Counts.Moments,
			TotalEntries:      summary.Counts.Total,
			DominantEmotions:  summary.DominantEmotions,
			AverageConfidence: summary.AverageConfidence,
			ConfidenceTrend:   trend,
			DecisionTypes:     summary.DecisionTypes,
			MomentCategories:  summary.MomentCategories,
			RepeatingTags:     summary.RepeatingTags,
		},
		Reflection: Prompt{
			Question:        e.GenerateReflectionQuestion(summary, trend, settings),
			SuggestedAction: e.GenerateSuggestedAction(summary, settings),
		},
		Tone: resolveTone(settings.ReflectionTone),
	}
}

// roundedMean returns the mean of values rounded half-up, or nil when empty.
// Values are confidences and never negative.
func roundedMean(values []int) *int {
	if len(values) == 0 {
		return nil
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	n := len(values)
	mean := (2*sum + n) / (2 * n)
	return &mean
}

type keyCount struct {
	key   string
	count int
}

// counter counts keys and remembers first-seen order for stable ties.
type counter struct {
	counts map[string]int
	order  []string
	total  int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
	c.total++
}

// top returns up to limit keys with count >= minCount, most frequent first.
func (c *counter) top(limit, minCount int) []keyCount {
	out := make([]keyCount, 0, len(c.order))
	for _, k := range c.order {
		if c.counts[k] >= minCount {
			out = append(out, keyCount{key: k, count: c.counts[k]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
