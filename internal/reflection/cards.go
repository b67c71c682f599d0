package reflection

import (
	"time"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
)

// DismissCooldown is how long any card dismissal holds back the next card.
const DismissCooldown = time.Hour

// cardContexts are the contexts that may surface a card. Dashboard is
// deliberately absent: it is queried by the UI but never passes this gate.
// Whether dashboard should be a trigger context is an open product question.
var cardContexts = map[CardContext]bool{
	ContextAfterSave:        true,
	ContextWeeklyReflection: true,
	ContextSilenceDetection: true,
}

// CardPriority is the preferred card type order per context.
var CardPriority = map[CardContext][]journal.CardType{
	ContextAfterSave:        {journal.CardLowConfidence, journal.CardAssumptionExpired, journal.CardAnniversary},
	ContextWeeklyReflection: {journal.CardCategoryLock, journal.CardGap, journal.CardAssumptionExpired},
	ContextSilenceDetection: {journal.CardGap, journal.CardDeadZone},
}

// ShouldShowPerspectiveCard reports whether a card may be shown in ctx.
// It requires a valid context, at least one undismissed card and no card
// dismissed within DismissCooldown. The cooldown is global across cards.
func (e *Engine) ShouldShowPerspectiveCard(ctx CardContext, cards []journal.PerspectiveCard, _ journal.UserSettings) bool {
	if !cardContexts[ctx] {
		return false
	}

	hasActive := false
	for _, c := range cards {
		if !c.Dismissed {
			hasActive = true
			break
		}
	}
	if !hasActive {
		return false
	}

	cutoff := e.clock.Now().Add(-DismissCooldown)
	for _, c := range cards {
		if !c.Dismissed {
			continue
		}
		at := c.CreatedAt
		if c.DismissedAt != nil {
			at = *c.DismissedAt
		}
		if at.After(cutoff) {
			return false
		}
	}
	return true
}

// SelectPerspectiveCard returns the undismissed card to show in ctx: the
// first card matching the context's priority order, else the most recent.
// It returns nil when every card is dismissed.
func SelectPerspectiveCard(cards []journal.PerspectiveCard, ctx CardContext) *journal.PerspectiveCard {
	var active []journal.PerspectiveCard
	for _, c := range cards {
		if !c.Dismissed {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return nil
	}

	for _, t := range CardPriority[ctx] {
		for i := range active {
			if active[i].Type == t {
				return &active[i]
			}
		}
	}

	latest := &active[0]
	for i := range active[1:] {
		if active[i+1].CreatedAt.After(latest.CreatedAt) {
			latest = &active[i+1]
		}
	}
	return latest
}
