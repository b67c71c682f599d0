// Package perspective generates perspective cards: short, dismissible
// prompts that ask the user to look again at a quiet stretch, a narrowing
// focus or an old decision.
//
// Generation is rule based and side-effect free. The caller persists the
// returned cards and passes every known card back in on the next call.
package perspective

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

// RecentWindowDays bounds the gap and category rules.
const RecentWindowDays = 14

// LowConfidenceMax is the highest confidence treated as a low-confidence decision.
const LowConfidenceMax = 40

// Milestones are the receipt ages, in days, that trigger anniversary cards.
var Milestones = []int{30, 90, 365}

// anniversaryWindowDays is how long after a milestone the card may still fire.
const anniversaryWindowDays = 2

// Thresholds is the per-intensity rule configuration.
type Thresholds struct {
	SilenceGapDays      int
	CategoryRepeatCount int
	LowConfidenceAge    int
	AssumptionAge       int
}

// IntensityThresholds maps each intensity to its thresholds. Higher
// intensity lowers every threshold.
var IntensityThresholds = map[journal.Intensity]Thresholds{
	journal.IntensityLow:    {SilenceGapDays: 7, CategoryRepeatCount: 8, LowConfidenceAge: 45, AssumptionAge: 90},
	journal.IntensityMedium: {SilenceGapDays: 5, CategoryRepeatCount: 6, LowConfidenceAge: 30, AssumptionAge: 60},
	journal.IntensityHigh:   {SilenceGapDays: 3, CategoryRepeatCount: 4, LowConfidenceAge: 14, AssumptionAge: 30},
}

// ThresholdsFor returns the thresholds for intensity, falling back to medium.
func ThresholdsFor(intensity journal.Intensity) Thresholds {
	if t, ok := IntensityThresholds[intensity]; ok {
		return t
	}
	return IntensityThresholds[journal.IntensityMedium]
}

// Dedup keys identify the subject of a card independently of its wording.

// GapKey is the per-day key of a gap card.
func GapKey(day string) string { return "gap:" + day }

// CategoryKey is the key of a category-lock card.
func CategoryKey(category string) string { return "category-lock:" + category }

// ReceiptKey is the key of a receipt-bound card.
func ReceiptKey(t journal.CardType, receiptID string) string {
	return string(t) + ":" + receiptID
}

// AnniversaryKey is the key of an anniversary card for one milestone.
func AnniversaryKey(receiptID string, milestone int) string {
	return fmt.Sprintf("%s:%s:%d", journal.CardAnniversary, receiptID, milestone)
}

// Generator applies the card rules relative to its clock.
type Generator struct {
	clock timewindow.Clock
	newID func() string
}

// Option configures a Generator.
type Option func(*Generator)

// WithIDFunc overrides card id generation.
func WithIDFunc(fn func() string) Option {
	return func(g *Generator) { g.newID = fn }
}

// NewGenerator creates a card generator. A nil clock uses the system clock.
func NewGenerator(clock timewindow.Clock, opts ...Option) *Generator {
	if clock == nil {
		clock = timewindow.SystemClock{}
	}
	g := &Generator{
		clock: clock,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the cards that should exist but are not in existing.
// Calling it again with its own output added to existing yields nothing new.
func (g *Generator) Generate(receipts []journal.Receipt, moments []journal.Moment, existing []journal.PerspectiveCard, intensity journal.Intensity) []journal.PerspectiveCard {
	now := g.clock.Now()
	cfg := ThresholdsFor(intensity)
	idx := indexCards(existing)

	var cards []journal.PerspectiveCard
	emit := func(c journal.PerspectiveCard) {
		c.ID = g.newID()
		c.CreatedAt = now
		cards = append(cards, c)
		idx.add(c)
	}

	// Gap
	var recent []journal.Receipt
	for _, r := range receipts {
		if timewindow.Within(r.CreatedAt, RecentWindowDays, now) {
			recent = append(recent, r)
		}
	}
	var recentMoments []journal.Moment
	for _, m := range moments {
		if timewindow.Within(m.CreatedAt, RecentWindowDays, now) {
			recentMoments = append(recentMoments, m)
		}
	}
	last, hasRecent := timewindow.Latest(journal.ActivityTimes(recent, recentMoments))
	if !hasRecent || timewindow.ElapsedDays(last, now) >= cfg.SilenceGapDays {
		key := GapKey(timewindow.TruncateDay(now).Format("2006-01-02"))
		if !idx.activeGap && !idx.keys[key] {
			emit(journal.PerspectiveCard{
				Type:     journal.CardGap,
				Title:    "Silence in the record",
				Message:  "You haven't captured context in a while. If this season ends suddenly, what would you wish you recorded?",
				DedupKey: key,
			})
		}
	}

	// Category lock
	counts := make(map[string]int)
	var order []string
	for _, m := range recentMoments {
		if m.Category == "" {
			continue
		}
		if _, seen := counts[m.Category]; !seen {
			order = append(order, m.Category)
		}
		counts[m.Category]++
	}
	for _, category := range order {
		if counts[category] < cfg.CategoryRepeatCount {
			continue
		}
		key := CategoryKey(category)
		if idx.keys[key] {
			continue
		}
		emit(journal.PerspectiveCard{
			Type:     journal.CardCategoryLock,
			Title:    fmt.Sprintf("Living inside %s", category),
			Message:  fmt.Sprintf("You've been living inside %s. If this is one of the last weeks like this, what matters most?", category),
			DedupKey: key,
		})
	}

	// Receipt-bound rules. A dismissed card pointing at a receipt silences
	// every receipt-bound rule for that receipt for good, not only for the
	// current window. Do not turn this into a time-boxed check.
	for _, r := range receipts {
		if idx.dismissedSubjects[r.ID] {
			continue
		}
		age := timewindow.ElapsedDays(r.CreatedAt, now)

		// Low confidence
		if r.Confidence != nil && *r.Confidence <= LowConfidenceMax && age >= cfg.LowConfidenceAge &&
			!idx.hasReceiptCard(journal.CardLowConfidence, r.ID) {
			emit(journal.PerspectiveCard{
				Type:        journal.CardLowConfidence,
				Title:       "Uncertain decision revisit",
				Message:     fmt.Sprintf("You made a low-confidence decision \"%s\" %d days ago. Is the original context still true?", r.Title, age),
				RelatedType: journal.RelatedReceipt,
				RelatedID:   r.ID,
				DedupKey:    ReceiptKey(journal.CardLowConfidence, r.ID),
			})
		}

		// Assumption expiry
		if r.HasAssumptions() && age >= cfg.AssumptionAge &&
			!idx.hasReceiptCard(journal.CardAssumptionExpired, r.ID) {
			emit(journal.PerspectiveCard{
				Type:        journal.CardAssumptionExpired,
				Title:       "Assumption check",
				Message:     fmt.Sprintf("Old assumption check for \"%s\": are those assumptions still valid after %d days?", r.Title, age),
				RelatedType: journal.RelatedReceipt,
				RelatedID:   r.ID,
				DedupKey:    ReceiptKey(journal.CardAssumptionExpired, r.ID),
			})
		}

		// Anniversary
		for _, milestone := range Milestones {
			if age < milestone || age > milestone+anniversaryWindowDays {
				continue
			}
			key := AnniversaryKey(r.ID, milestone)
			if idx.keys[key] {
				continue
			}
			emit(journal.PerspectiveCard{
				Type:        journal.CardAnniversary,
				Title:       fmt.Sprintf("%d days since", milestone),
				Message:     fmt.Sprintf("%d days since \"%s\". How does that decision look now?", milestone, r.Title),
				RelatedType: journal.RelatedReceipt,
				RelatedID:   r.ID,
				DedupKey:    key,
			})
		}
	}

	return cards
}

// cardIndex is a lookup view over existing cards.
type cardIndex struct {
	keys              map[string]bool
	receiptCards      map[string]bool
	dismissedSubjects map[string]bool
	activeGap         bool
}

func indexCards(cards []journal.PerspectiveCard) *cardIndex {
	idx := &cardIndex{
		keys:              make(map[string]bool, len(cards)),
		receiptCards:      make(map[string]bool),
		dismissedSubjects: make(map[string]bool),
	}
	for _, c := range cards {
		idx.add(c)
	}
	return idx
}

func (i *cardIndex) add(c journal.PerspectiveCard) {
	if c.DedupKey != "" {
		i.keys[c.DedupKey] = true
	}
	if c.RelatedID != "" {
		i.receiptCards[ReceiptKey(c.Type, c.RelatedID)] = true
		if c.Dismissed {
			i.dismissedSubjects[c.RelatedID] = true
		}
	}
	if c.Type == journal.CardGap && !c.Dismissed {
		i.activeGap = true
	}
}

func (i *cardIndex) hasReceiptCard(t journal.CardType, receiptID string) bool {
	return i.receiptCards[ReceiptKey(t, receiptID)]
}
