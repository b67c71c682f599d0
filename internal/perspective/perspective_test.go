package perspective

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

func newTestGenerator() *Generator {
	n := 0
	return NewGenerator(timewindow.Fixed(now), WithIDFunc(func() string {
		n++
		return fmt.Sprintf("card-%d", n)
	}))
}

func ofType(cards []journal.PerspectiveCard, t journal.CardType) []journal.PerspectiveCard {
	var out []journal.PerspectiveCard
	for _, c := range cards {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// active keeps the generator's gap rule quiet so tests can focus on one rule.
func active() []journal.Moment {
	return []journal.Moment{{ID: "today", Category: journal.CategoryOther, CreatedAt: now}}
}

func TestThresholdsFor(t *testing.T) {
	assert.Equal(t, Thresholds{7, 8, 45, 90}, ThresholdsFor(journal.IntensityLow))
	assert.Equal(t, Thresholds{5, 6, 30, 60}, ThresholdsFor(journal.IntensityMedium))
	assert.Equal(t, Thresholds{3, 4, 14, 30}, ThresholdsFor(journal.IntensityHigh))
	assert.Equal(t, ThresholdsFor(journal.IntensityMedium), ThresholdsFor("extreme"))
	assert.Equal(t, ThresholdsFor(journal.IntensityMedium), ThresholdsFor(""))
}

func TestGenerate_GapOnEmptyHistory(t *testing.T) {
	cards := newTestGenerator().Generate(nil, nil, nil, journal.IntensityMedium)

	require.Len(t, cards, 1)
	c := cards[0]
	assert.Equal(t, journal.CardGap, c.Type)
	assert.Equal(t, "Silence in the record", c.Title)
	assert.Equal(t, "gap:2025-06-15", c.DedupKey)
	assert.Empty(t, c.RelatedID)
	assert.False(t, c.Dismissed)
	assert.Equal(t, now, c.CreatedAt)
	assert.Equal(t, "card-1", c.ID)
}

func TestGenerate_GapThreshold(t *testing.T) {
	g := newTestGenerator()

	quiet := []journal.Receipt{{ID: "r", CreatedAt: ago(5)}}
	assert.Len(t, ofType(g.Generate(quiet, nil, nil, journal.IntensityMedium), journal.CardGap), 1)

	recent := []journal.Receipt{{ID: "r", CreatedAt: ago(4)}}
	assert.Empty(t, ofType(g.Generate(recent, nil, nil, journal.IntensityMedium), journal.CardGap))

	// Low intensity waits a week.
	assert.Empty(t, ofType(g.Generate(quiet, nil, nil, journal.IntensityLow), journal.CardGap))
	assert.Len(t, ofType(g.Generate(quiet, nil, nil, journal.IntensityHigh), journal.CardGap), 1)
}

func TestGenerate_GapDedup(t *testing.T) {
	g := newTestGenerator()

	t.Run("undismissed gap card blocks", func(t *testing.T) {
		existing := []journal.PerspectiveCard{{Type: journal.CardGap, DedupKey: "gap:2025-06-01"}}
		assert.Empty(t, ofType(g.Generate(nil, nil, existing, ""), journal.CardGap))
	})

	t.Run("dismissed today blocks until tomorrow", func(t *testing.T) {
		existing := []journal.PerspectiveCard{{Type: journal.CardGap, DedupKey: "gap:2025-06-15", Dismissed: true}}
		assert.Empty(t, ofType(g.Generate(nil, nil, existing, ""), journal.CardGap))
	})

	t.Run("dismissed yesterday allows a new one", func(t *testing.T) {
		existing := []journal.PerspectiveCard{{Type: journal.CardGap, DedupKey: "gap:2025-06-14", Dismissed: true}}
		assert.Len(t, ofType(g.Generate(nil, nil, existing, ""), journal.CardGap), 1)
	})
}

func TestGenerate_CategoryLock(t *testing.T) {
	var moments []journal.Moment
	for i := 0; i < 6; i++ {
		moments = append(moments, journal.Moment{ID: fmt.Sprint(i), Category: journal.CategoryWork, CreatedAt: ago(i)})
	}
	moments = append(moments, journal.Moment{ID: "old", Category: journal.CategoryFamily, CreatedAt: ago(20)})

	g := newTestGenerator()
	cards := ofType(g.Generate(nil, moments, nil, journal.IntensityMedium), journal.CardCategoryLock)
	require.Len(t, cards, 1)
	assert.Equal(t, "Living inside Work", cards[0].Title)
	assert.Equal(t, "You've been living inside Work. If this is one of the last weeks like this, what matters most?", cards[0].Message)
	assert.Equal(t, "category-lock:Work", cards[0].DedupKey)

	// Low intensity needs eight.
	assert.Empty(t, ofType(g.Generate(nil, moments, nil, journal.IntensityLow), journal.CardCategoryLock))

	// Dedup is by category key, not message text.
	unrelated := []journal.PerspectiveCard{{
		Type:     journal.CardCategoryLock,
		Message:  "Work appears here by coincidence",
		DedupKey: "category-lock:Family",
	}}
	assert.Len(t, ofType(g.Generate(nil, moments, unrelated, journal.IntensityMedium), journal.CardCategoryLock), 1)
	assert.Empty(t, ofType(g.Generate(nil, moments, cards, journal.IntensityMedium), journal.CardCategoryLock))
}

func TestGenerate_LowConfidenceScenario(t *testing.T) {
	r := journal.Receipt{ID: "r1", Title: "Take the offer", Confidence: journal.Intn(35), CreatedAt: ago(31)}
	g := newTestGenerator()

	cards := ofType(g.Generate([]journal.Receipt{r}, active(), nil, journal.IntensityMedium), journal.CardLowConfidence)
	require.Len(t, cards, 1)
	assert.Equal(t, "r1", cards[0].RelatedID)
	assert.Equal(t, journal.RelatedReceipt, cards[0].RelatedType)
	assert.Equal(t, `You made a low-confidence decision "Take the offer" 31 days ago. Is the original context still true?`, cards[0].Message)

	dismissed := cards[0]
	dismissed.Dismissed = true
	for _, days := range []int{31, 90, 400} {
		r.CreatedAt = ago(days)
		again := g.Generate([]journal.Receipt{r}, active(), []journal.PerspectiveCard{dismissed}, journal.IntensityMedium)
		assert.Empty(t, ofType(again, journal.CardLowConfidence), "age %d", days)
		assert.Empty(t, ofType(again, journal.CardAnniversary), "dismissal silences every receipt-bound rule")
	}
}

func TestGenerate_LowConfidenceRules(t *testing.T) {
	g := newTestGenerator()
	receipts := []journal.Receipt{
		{ID: "boundary", Confidence: journal.Intn(40), CreatedAt: ago(30)},
		{ID: "confident", Confidence: journal.Intn(41), CreatedAt: ago(40)},
		{ID: "young", Confidence: journal.Intn(10), CreatedAt: ago(29)},
		{ID: "unknown", Confidence: nil, CreatedAt: ago(40)},
	}

	cards := ofType(g.Generate(receipts, active(), nil, journal.IntensityMedium), journal.CardLowConfidence)
	require.Len(t, cards, 1)
	assert.Equal(t, "boundary", cards[0].RelatedID)
}

func TestGenerate_AssumptionExpired(t *testing.T) {
	g := newTestGenerator()
	receipts := []journal.Receipt{
		{ID: "a", Title: "Move cities", Assumptions: "rent stays low", CreatedAt: ago(61)},
		{ID: "blank", Assumptions: "   ", CreatedAt: ago(100)},
		{ID: "young", Assumptions: "x", CreatedAt: ago(59)},
	}

	cards := ofType(g.Generate(receipts, active(), nil, journal.IntensityMedium), journal.CardAssumptionExpired)
	require.Len(t, cards, 1)
	assert.Equal(t, "a", cards[0].RelatedID)
	assert.Equal(t, `Old assumption check for "Move cities": are those assumptions still valid after 61 days?`, cards[0].Message)
	assert.Equal(t, "assumption-expired:a", cards[0].DedupKey)
}

func TestGenerate_Anniversary(t *testing.T) {
	g := newTestGenerator()

	for _, tt := range []struct {
		age  int
		want int
	}{
		{29, 0}, {30, 1}, {32, 1}, {33, 0}, {90, 1}, {92, 1}, {93, 0}, {365, 1}, {367, 1}, {368, 0},
	} {
		r := journal.Receipt{ID: "r", Title: "Quit", Confidence: journal.Intn(80), CreatedAt: ago(tt.age)}
		cards := ofType(g.Generate([]journal.Receipt{r}, active(), nil, journal.IntensityMedium), journal.CardAnniversary)
		assert.Len(t, cards, tt.want, "age %d", tt.age)
	}

	r := journal.Receipt{ID: "r", Title: "Quit", CreatedAt: ago(90)}
	thirty := journal.PerspectiveCard{Type: journal.CardAnniversary, RelatedID: "r", DedupKey: AnniversaryKey("r", 30)}
	cards := ofType(g.Generate([]journal.Receipt{r}, active(), []journal.PerspectiveCard{thirty}, journal.IntensityMedium), journal.CardAnniversary)
	require.Len(t, cards, 1, "an earlier milestone does not suppress a later one")
	assert.Equal(t, "90 days since", cards[0].Title)
	assert.Equal(t, `90 days since "Quit". How does that decision look now?`, cards[0].Message)
}

func TestGenerate_Idempotent(t *testing.T) {
	var moments []journal.Moment
	for i := 0; i < 6; i++ {
		moments = append(moments, journal.Moment{ID: fmt.Sprint(i), Category: journal.CategoryFamily, CreatedAt: ago(6 + i%3)})
	}
	receipts := []journal.Receipt{
		{ID: "r1", Title: "a", Confidence: journal.Intn(20), Assumptions: "b", CreatedAt: ago(90)},
		{ID: "r2", Title: "c", Confidence: journal.Intn(30), CreatedAt: ago(35)},
	}

	g := newTestGenerator()
	first := g.Generate(receipts, moments, nil, journal.IntensityMedium)
	require.NotEmpty(t, first)
	assert.Len(t, ofType(first, journal.CardGap), 1)
	assert.Len(t, ofType(first, journal.CardCategoryLock), 1)
	assert.Len(t, ofType(first, journal.CardLowConfidence), 2)
	assert.Len(t, ofType(first, journal.CardAssumptionExpired), 1)
	assert.Len(t, ofType(first, journal.CardAnniversary), 1)

	second := g.Generate(receipts, moments, first, journal.IntensityMedium)
	assert.Empty(t, second)

	keys := make(map[string]bool)
	for _, c := range first {
		assert.False(t, keys[c.DedupKey], "duplicate key %s", c.DedupKey)
		keys[c.DedupKey] = true
	}
}
