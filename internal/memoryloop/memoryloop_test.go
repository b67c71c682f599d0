package memoryloop

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func ago(days int) time.Time {
	return now.Add(-time.Duration(days) * timewindow.Day)
}

func newTestEngine() *Engine {
	n := 0
	return NewEngine(timewindow.Fixed(now), WithIDFunc(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
}

// completed builds a finished check bound to receipt rid.
func completed(rid, outcome string, confidence *int, decisionType string, emotions ...string) journal.OutcomeCheck {
	at := ago(1)
	return journal.OutcomeCheck{
		ID:                 "c-" + rid,
		ReceiptID:          rid,
		OriginalConfidence: confidence,
		OriginalEmotions:   emotions,
		DecisionType:       decisionType,
		Prompted:           true,
		Outcome:            outcome,
		CompletedAt:        &at,
	}
}

func receiptsFor(checks []journal.OutcomeCheck) []journal.Receipt {
	out := make([]journal.Receipt, 0, len(checks))
	for _, c := range checks {
		out = append(out, journal.Receipt{ID: c.ReceiptID})
	}
	return out
}

func findPattern(patterns []Pattern, key string) *Pattern {
	for i := range patterns {
		if patterns[i].Key == key {
			return &patterns[i]
		}
	}
	return nil
}

func TestFindDueOutcomeChecks(t *testing.T) {
	e := newTestEngine()
	settings := journal.DefaultSettings()
	receipts := []journal.Receipt{
		{ID: "recent", Title: "Recent", CreatedAt: ago(3)},
		{ID: "newer", Title: "Newer", CreatedAt: ago(8)},
		{ID: "oldest", Title: "Oldest", DecisionType: journal.DecisionCareer, Confidence: journal.Intn(30), CreatedAt: ago(10)},
	}

	t.Run("earliest due receipt only", func(t *testing.T) {
		due := e.FindDueOutcomeChecks(receipts, nil, settings)
		require.Len(t, due, 1)
		assert.Equal(t, "oldest", due[0].ReceiptID)
		assert.Equal(t, 10, due[0].DaysSince)
		assert.Equal(t, ago(3), due[0].ScheduledAt)
		assert.Equal(t, 30, *due[0].ReceiptConfidence)
		assert.NotNil(t, due[0].ReceiptEmotions)
	})

	t.Run("receipts with a check are skipped", func(t *testing.T) {
		existing := []journal.OutcomeCheck{{ReceiptID: "oldest", Outcome: journal.OutcomeDismissed}}
		due := e.FindDueOutcomeChecks(receipts, existing, settings)
		require.Len(t, due, 1)
		assert.Equal(t, "newer", due[0].ReceiptID)
	})

	t.Run("nothing due yet", func(t *testing.T) {
		due := e.FindDueOutcomeChecks(receipts[:1], nil, settings)
		assert.Empty(t, due)
		assert.NotNil(t, due)
	})

	t.Run("disabled", func(t *testing.T) {
		off := settings
		off.OutcomeChecksEnabled = false
		assert.Empty(t, e.FindDueOutcomeChecks(receipts, nil, off))
	})

	t.Run("zero settings use defaults", func(t *testing.T) {
		due := e.FindDueOutcomeChecks(receipts, nil, journal.UserSettings{})
		require.Len(t, due, 1)
		assert.Equal(t, "oldest", due[0].ReceiptID)
	})

	t.Run("custom delay", func(t *testing.T) {
		long := settings
		long.OutcomeDelayDays = 14
		assert.Empty(t, e.FindDueOutcomeChecks(receipts, nil, long))
	})
}

func TestCreateOutcomeCheck_SnapshotsReceipt(t *testing.T) {
	e := newTestEngine()
	r := journal.Receipt{
		ID:           "r1",
		UserID:       "u1",
		DecisionType: journal.DecisionMoney,
		Confidence:   journal.Intn(65),
		Emotions:     []string{"anxious", "hopeful"},
		CreatedAt:    ago(2),
	}

	c := e.CreateOutcomeCheck(r, journal.DefaultSettings())
	assert.Equal(t, "id-1", c.ID)
	assert.Equal(t, "u1", c.UserID)
	assert.Equal(t, ago(2).AddDate(0, 0, 7), c.ScheduledAt)
	assert.Equal(t, journal.CheckScheduled, c.State(now))

	// Later edits to the receipt must not reach the check.
	r.Emotions[0] = "calm"
	*r.Confidence = 10
	r.DecisionType = journal.DecisionHealth

	assert.Equal(t, []string{"anxious", "hopeful"}, c.OriginalEmotions)
	assert.Equal(t, 65, *c.OriginalConfidence)
	assert.Equal(t, journal.DecisionMoney, c.DecisionType)
}

func TestOutcomeLifecycle(t *testing.T) {
	e := newTestEngine()
	c := journal.OutcomeCheck{ID: "c1", ReceiptID: "r1", ScheduledAt: ago(1)}
	assert.Equal(t, journal.CheckPending, c.State(now))

	c, err := e.MarkPrompted(c)
	require.NoError(t, err)
	assert.Equal(t, journal.CheckPrompted, c.State(now))
	require.NotNil(t, c.PromptedAt)

	_, err = e.RecordOutcome(c, "meh", "")
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	c, err = e.RecordOutcome(c, journal.OutcomeWorse, "  I assumed the budget was fixed.  ")
	require.NoError(t, err)
	assert.Equal(t, journal.CheckCompleted, c.State(now))
	assert.Equal(t, "I assumed the budget was fixed.", c.AssumptionDelta)
	require.NotNil(t, c.CompletedAt)
	assert.Equal(t, now, *c.CompletedAt)

	_, err = e.RecordOutcome(c, journal.OutcomeBetter, "")
	assert.ErrorIs(t, err, ErrOutcomeFinal)
	_, err = e.MarkPrompted(c)
	assert.ErrorIs(t, err, ErrOutcomeFinal)
}

func TestOutcomeLifecycle_DismissWithoutPrompt(t *testing.T) {
	e := newTestEngine()
	c := journal.OutcomeCheck{ID: "c1", ReceiptID: "r1", ScheduledAt: ago(1)}

	c, err := e.RecordOutcome(c, journal.OutcomeDismissed, "")
	require.NoError(t, err)
	assert.Equal(t, journal.CheckDismissed, c.State(now))
	assert.True(t, c.Prompted)

	_, err = e.RecordOutcome(c, journal.OutcomeExpected, "")
	assert.ErrorIs(t, err, ErrOutcomeFinal)
}

func TestAnalyzeOutcomePatterns_InsufficientData(t *testing.T) {
	var checks []journal.OutcomeCheck
	for i := 0; i < 4; i++ {
		checks = append(checks, completed(fmt.Sprintf("r%d", i), journal.OutcomeWorse, nil, journal.DecisionCareer, "anxious"))
	}
	// Unsure and dismissed outcomes do not count toward the sample.
	checks = append(checks,
		completed("u", journal.OutcomeUnsure, nil, journal.DecisionCareer),
		completed("d", journal.OutcomeDismissed, nil, journal.DecisionCareer),
		journal.OutcomeCheck{ReceiptID: "open", DecisionType: journal.DecisionCareer},
	)

	a := AnalyzeOutcomePatterns(checks, receiptsFor(checks))
	assert.True(t, a.InsufficientData)
	assert.Equal(t, 4, a.SampleSize)
	assert.Empty(t, a.Patterns)
}

func TestAnalyzeOutcomePatterns_AllExpected(t *testing.T) {
	var checks []journal.OutcomeCheck
	for i := 0; i < 6; i++ {
		checks = append(checks, completed(fmt.Sprintf("r%d", i), journal.OutcomeExpected, journal.Intn(50), journal.DecisionCareer, "calm"))
	}

	a := AnalyzeOutcomePatterns(checks, receiptsFor(checks))
	assert.False(t, a.InsufficientData)
	assert.Equal(t, 6, a.SampleSize)
	assert.Empty(t, a.Patterns)
}

func TestAnalyzeOutcomePatterns_EmotionAtThreshold(t *testing.T) {
	checks := []journal.OutcomeCheck{
		completed("r1", journal.OutcomeWorse, nil, "", "anxious"),
		completed("r2", journal.OutcomeWorse, nil, "", "anxious"),
		completed("r3", journal.OutcomeWorse, nil, "", "anxious"),
		completed("r4", journal.OutcomeExpected, nil, "", "anxious"),
		completed("r5", journal.OutcomeBetter, nil, "", "anxious"),
	}

	a := AnalyzeOutcomePatterns(checks, receiptsFor(checks))
	require.Len(t, a.Patterns, 1)
	p := a.Patterns[0]
	assert.Equal(t, PatternEmotionOutcome, p.Type)
	assert.Equal(t, "anxious-worse", p.Key)
	assert.Equal(t, "anxious", p.Emotion)
	assert.Equal(t, journal.OutcomeWorse, p.Direction)
	assert.InDelta(t, 0.6, p.SignalStrength, 1e-9)
	assert.Equal(t, 5, p.SampleSize)
	assert.Equal(t, "Decisions made while feeling anxious have gone worse than expected 60% of the time.", p.Message)
}

func TestAnalyzeOutcomePatterns_DecisionType(t *testing.T) {
	var checks []journal.OutcomeCheck
	outcomes := []string{journal.OutcomeBetter, journal.OutcomeBetter, journal.OutcomeBetter, journal.OutcomeBetter, journal.OutcomeWorse}
	for i, o := range outcomes {
		checks = append(checks, completed(fmt.Sprintf("r%d", i), o, nil, journal.DecisionProject))
	}

	a := AnalyzeOutcomePatterns(checks, receiptsFor(checks))
	require.Len(t, a.Patterns, 1)
	p := a.Patterns[0]
	assert.Equal(t, PatternTypeOutcome, p.Type)
	assert.Equal(t, "Project-better", p.Key)
	assert.Equal(t, journal.DecisionProject, p.DecisionType)
	assert.Equal(t, "Project decisions have gone better than expected 80% of the time.", p.Message)
}

func TestAnalyzeOutcomePatterns_Confidence(t *testing.T) {
	t.Run("overconfidence is boosted", func(t *testing.T) {
		outcomes := []string{journal.OutcomeWorse, journal.OutcomeWorse, journal.OutcomeWorse, journal.OutcomeExpected, journal.OutcomeExpected}
		var checks []journal.OutcomeCheck
		for i, o := range outcomes {
			checks = append(checks, completed(fmt.Sprintf("r%d", i), o, journal.Intn(85), ""))
		}

		a := AnalyzeOutcomePatterns(checks, receiptsFor(checks))
		p := findPattern(a.Patterns, "high-confidence-worse")
		require.NotNil(t, p)
		assert.InDelta(t, 0.6, p.Rate, 1e-9)
		assert.InDelta(t, 0.7, p.SignalStrength, 1e-9)
		assert.Equal(t, "high", p.ConfidenceRange)
		assert.Contains(t, p.Message, "There may be overconfidence at play.")
	})

	t.Run("boosted signal below threshold is dropped", func(t *testing.T) {
		outcomes := []string{journal.OutcomeWorse, journal.OutcomeWorse, journal.OutcomeExpected, journal.OutcomeExpected, journal.OutcomeExpected}
		var checks []journal.OutcomeCheck
		for i, o := range outcomes {
			checks = append(checks, completed(fmt.Sprintf("r%d", i), o, journal.Intn(70), ""))
		}

		a := AnalyzeOutcomePatterns(checks, receiptsFor(checks))
		assert.Nil(t, findPattern(a.Patterns, "high-confidence-worse"))
	})

	t.Run("low confidence going better", func(t *testing.T) {
		outcomes := []string{journal.OutcomeBetter, journal.OutcomeBetter, journal.OutcomeBetter, journal.OutcomeWorse, journal.OutcomeExpected}
		var checks []journal.OutcomeCheck
		for i, o := range outcomes {
			checks = append(checks, completed(fmt.Sprintf("r%d", i), o, journal.Intn(40), ""))
		}

		a := AnalyzeOutcomePatterns(checks, receiptsFor(checks))
		p := findPattern(a.Patterns, "low-confidence-better")
		require.NotNil(t, p)
		assert.Equal(t, "Low-confidence decisions have gone better than expected 60% of the time. Your doubts may be miscalibrated.", p.Message)
	})

	t.Run("unknown confidence is ignored", func(t *testing.T) {
		var checks []journal.OutcomeCheck
		for i := 0; i < 5; i++ {
			checks = append(checks, completed(fmt.Sprintf("r%d", i), journal.OutcomeWorse, nil, ""))
		}
		a := AnalyzeOutcomePatterns(checks, receiptsFor(checks))
		assert.Empty(t, a.Patterns)
	})
}

func TestAnalyzeOutcomePatterns_DeletedReceiptsDropOut(t *testing.T) {
	var checks []journal.OutcomeCheck
	for i := 0; i < 5; i++ {
		checks = append(checks, completed(fmt.Sprintf("r%d", i), journal.OutcomeWorse, nil, "", "scared"))
	}

	a := AnalyzeOutcomePatterns(checks, receiptsFor(checks[:4]))
	assert.False(t, a.InsufficientData)
	assert.Equal(t, 5, a.SampleSize)
	assert.Empty(t, a.Patterns)
}

func TestGenerateWeeklyLearning(t *testing.T) {
	start, end := ago(7), now
	at := func(days int, outcome, delta string) journal.OutcomeCheck {
		ts := ago(days)
		return journal.OutcomeCheck{Outcome: outcome, AssumptionDelta: delta, CompletedAt: &ts}
	}

	t.Run("no outcomes", func(t *testing.T) {
		l := GenerateWeeklyLearning([]journal.OutcomeCheck{at(9, journal.OutcomeWorse, "")}, start, end)
		assert.Empty(t, l.Learning)
		assert.Zero(t, l.OutcomesCount)
	})

	t.Run("latest delta wins", func(t *testing.T) {
		l := GenerateWeeklyLearning([]journal.OutcomeCheck{
			at(2, journal.OutcomeWorse, "Newer lesson"),
			at(5, journal.OutcomeWorse, "Older lesson"),
			at(1, journal.OutcomeBetter, ""),
		}, start, end)
		assert.Equal(t, "From a recent decision: \"Newer lesson\"", l.Learning)
		assert.True(t, l.HasDeltas)
		assert.Equal(t, 3, l.OutcomesCount)
		assert.Equal(t, OutcomeCounts{Better: 1, Worse: 2}, l.OutcomeCounts)
	})

	t.Run("more worse", func(t *testing.T) {
		l := GenerateWeeklyLearning([]journal.OutcomeCheck{
			at(2, journal.OutcomeWorse, ""),
			at(3, journal.OutcomeWorse, ""),
			at(4, journal.OutcomeBetter, ""),
		}, start, end)
		assert.Equal(t, "2 decision(s) went worse than expected this week. What was different from what you assumed?", l.Learning)
		assert.False(t, l.HasDeltas)
	})

	t.Run("more better", func(t *testing.T) {
		l := GenerateWeeklyLearning([]journal.OutcomeCheck{at(2, journal.OutcomeBetter, "")}, start, end)
		assert.Equal(t, "1 decision(s) went better than expected. What worked that you didn't anticipate?", l.Learning)
	})

	t.Run("balanced", func(t *testing.T) {
		l := GenerateWeeklyLearning([]journal.OutcomeCheck{
			at(2, journal.OutcomeExpected, ""),
			at(3, journal.OutcomeExpected, ""),
		}, start, end)
		assert.Equal(t, "2 decision outcome(s) recorded this week.", l.Learning)
	})
}

func TestInsights(t *testing.T) {
	e := newTestEngine()
	weak := Pattern{Type: PatternTypeOutcome, Key: "Money-worse", SignalStrength: 0.6}
	strong := Pattern{Type: PatternEmotionOutcome, Key: "anxious-worse", Emotion: "anxious", Direction: journal.OutcomeWorse, Rate: 0.8, SampleSize: 5, SignalStrength: 0.8, Message: "m"}

	ev := e.CreateInsightEvent(strong, "u1")
	assert.Equal(t, "id-1", ev.ID)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "anxious-worse", ev.PatternKey)
	assert.Equal(t, "anxious", ev.PatternData.Emotion)
	assert.Equal(t, now, ev.CreatedAt)
	assert.False(t, ev.Surfaced)

	t.Run("strongest first", func(t *testing.T) {
		top := GetTopInsight([]Pattern{weak, strong}, nil)
		require.NotNil(t, top)
		assert.Equal(t, "anxious-worse", top.Key)
	})

	t.Run("unsurfaced event does not suppress", func(t *testing.T) {
		assert.True(t, ShouldSurfaceInsight(strong, []journal.InsightEvent{ev}))
	})

	t.Run("surfaced or dismissed suppresses", func(t *testing.T) {
		surfaced := ev
		surfaced.Surfaced = true
		assert.False(t, ShouldSurfaceInsight(strong, []journal.InsightEvent{surfaced}))

		top := GetTopInsight([]Pattern{weak, strong}, []journal.InsightEvent{surfaced})
		require.NotNil(t, top)
		assert.Equal(t, "Money-worse", top.Key)

		dismissed := journal.InsightEvent{PatternKey: "Money-worse", Dismissed: true}
		assert.Nil(t, GetTopInsight([]Pattern{weak, strong}, []journal.InsightEvent{surfaced, dismissed}))
	})
}
