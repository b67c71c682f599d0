package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
)

var base = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{Path: filepath.Join(t.TempDir(), "data", "journal.db")}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func receipt(id, user string, created time.Time) journal.Receipt {
	return journal.Receipt{
		ID:           id,
		UserID:       user,
		Title:        "Decision " + id,
		DecisionType: journal.DecisionCareer,
		Emotions:     []string{"hopeful"},
		Confidence:   journal.Intn(60),
		Tags:         []string{"work"},
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestNew_InMemory(t *testing.T) {
	s, err := New(context.Background(), Config{Path: MemoryPath}, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
}

func TestReceipts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r1 := receipt("r1", "u1", base.Add(-48*time.Hour))
	r2 := receipt("r2", "u1", base.Add(-time.Hour))
	r2.DecisionType = journal.DecisionMoney
	r2.Tags = []string{"budget"}
	r2.Confidence = nil
	other := receipt("r3", "u2", base)

	for _, r := range []journal.Receipt{r1, r2, other} {
		require.NoError(t, s.CreateReceipt(ctx, r))
	}

	t.Run("get round trips fields", func(t *testing.T) {
		got, err := s.GetReceipt(ctx, "u1", "r1")
		require.NoError(t, err)
		assert.Equal(t, r1.Title, got.Title)
		assert.Equal(t, []string{"hopeful"}, got.Emotions)
		require.NotNil(t, got.Confidence)
		assert.Equal(t, 60, *got.Confidence)
		assert.True(t, r1.CreatedAt.Equal(got.CreatedAt))

		got, err = s.GetReceipt(ctx, "u1", "r2")
		require.NoError(t, err)
		assert.Nil(t, got.Confidence)
	})

	t.Run("scoped by user", func(t *testing.T) {
		_, err := s.GetReceipt(ctx, "u1", "r3")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list newest first with filters", func(t *testing.T) {
		all, err := s.ListReceipts(ctx, "u1", EntryFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "r2", all[0].ID)

		byTag, err := s.ListReceipts(ctx, "u1", EntryFilter{Tag: "work"})
		require.NoError(t, err)
		require.Len(t, byTag, 1)
		assert.Equal(t, "r1", byTag[0].ID)

		byType, err := s.ListReceipts(ctx, "u1", EntryFilter{DecisionType: journal.DecisionMoney})
		require.NoError(t, err)
		require.Len(t, byType, 1)
		assert.Equal(t, "r2", byType[0].ID)

		recent, err := s.ListReceipts(ctx, "u1", EntryFilter{Since: base.Add(-24 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "r2", recent[0].ID)
	})

	t.Run("update and delete", func(t *testing.T) {
		r1.Title = "Renamed"
		r1.Emotions = []string{"calm", "confident"}
		r1.UpdatedAt = base
		require.NoError(t, s.UpdateReceipt(ctx, r1))

		got, err := s.GetReceipt(ctx, "u1", "r1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, []string{"calm", "confident"}, got.Emotions)

		missing := r1
		missing.ID = "nope"
		assert.ErrorIs(t, s.UpdateReceipt(ctx, missing), ErrNotFound)

		require.NoError(t, s.DeleteReceipt(ctx, "u1", "r1"))
		assert.ErrorIs(t, s.DeleteReceipt(ctx, "u1", "r1"), ErrNotFound)
	})
}

func TestMoments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1 := journal.Moment{ID: "m1", UserID: "u1", Title: "Walk", Category: journal.CategoryPlace, Tags: []string{"park"}, CreatedAt: base.Add(-time.Hour), UpdatedAt: base}
	m2 := journal.Moment{ID: "m2", UserID: "u1", Title: "Call", Category: journal.CategoryFamily, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.CreateMoment(ctx, m1))
	require.NoError(t, s.CreateMoment(ctx, m2))

	all, err := s.ListMoments(ctx, "u1", EntryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "m2", all[0].ID)
	assert.Equal(t, []string{}, all[0].Tags)

	byCategory, err := s.ListMoments(ctx, "u1", EntryFilter{Category: journal.CategoryPlace, Tag: "park"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "m1", byCategory[0].ID)

	m1.Note = "Sunny"
	require.NoError(t, s.UpdateMoment(ctx, m1))
	got, err := s.GetMoment(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "Sunny", got.Note)

	require.NoError(t, s.DeleteMoment(ctx, "u1", "m2"))
	_, err = s.GetMoment(ctx, "u1", "m2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertCards_DedupKeyIsUniquePerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	card := func(id, user, key string) journal.PerspectiveCard {
		return journal.PerspectiveCard{ID: id, UserID: user, Type: journal.CardGap, Title: "t", Message: "m", DedupKey: key, CreatedAt: base}
	}

	inserted, err := s.InsertCards(ctx, []journal.PerspectiveCard{card("c1", "u1", "gap:2025-06-15"), card("c2", "u1", "category-lock:Work")})
	require.NoError(t, err)
	assert.Len(t, inserted, 2)

	inserted, err = s.InsertCards(ctx, []journal.PerspectiveCard{card("c3", "u1", "gap:2025-06-15"), card("c4", "u2", "gap:2025-06-15")})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "c4", inserted[0].ID)

	inserted, err = s.InsertCards(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, inserted)

	require.NoError(t, s.DismissCard(ctx, "u1", "c1", base.Add(time.Hour)))
	assert.ErrorIs(t, s.DismissCard(ctx, "u2", "c1", base), ErrNotFound)

	active, err := s.ListCards(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "c2", active[0].ID)

	all, err := s.ListCards(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, c := range all {
		if c.ID == "c1" {
			assert.True(t, c.Dismissed)
			require.NotNil(t, c.DismissedAt)
			assert.True(t, base.Add(time.Hour).Equal(*c.DismissedAt))
		}
	}
}

func TestOutcomeChecks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	check := journal.OutcomeCheck{
		ID:                 "o1",
		UserID:             "u1",
		ReceiptID:          "r1",
		ScheduledAt:        base,
		OriginalConfidence: journal.Intn(35),
		OriginalEmotions:   []string{"anxious"},
		DecisionType:       journal.DecisionHealth,
		CreatedAt:          base.Add(-7 * 24 * time.Hour),
	}
	require.NoError(t, s.CreateOutcomeCheck(ctx, check))

	dup := check
	dup.ID = "o2"
	assert.ErrorIs(t, s.CreateOutcomeCheck(ctx, dup), ErrConflict)

	completed := base.Add(time.Hour)
	check.Prompted = true
	check.PromptedAt = &completed
	check.Outcome = journal.OutcomeWorse
	check.AssumptionDelta = "Took longer"
	check.CompletedAt = &completed
	require.NoError(t, s.UpdateOutcomeCheck(ctx, check))

	got, err := s.GetOutcomeCheckByReceipt(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)
	assert.Equal(t, journal.OutcomeWorse, got.Outcome)
	assert.Equal(t, []string{"anxious"}, got.OriginalEmotions)
	assert.Equal(t, 35, *got.OriginalConfidence)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, journal.CheckCompleted, got.State(base))

	_, err = s.GetOutcomeCheck(ctx, "u2", "o1")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListOutcomeChecks(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInsights(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev := journal.InsightEvent{
		ID:             "i1",
		UserID:         "u1",
		InsightType:    "emotion-outcome",
		PatternKey:     "anxious-worse",
		PatternData:    journal.PatternData{Direction: "worse", Rate: 0.8, Emotion: "anxious"},
		SampleSize:     5,
		SignalStrength: 0.8,
		Message:        "m",
		CreatedAt:      base,
	}
	ok, err := s.InsertInsight(ctx, ev)
	require.NoError(t, err)
	assert.True(t, ok)

	ev.ID = "i2"
	ok, err = s.InsertInsight(ctx, ev)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkInsightSurfaced(ctx, "u1", "i1", base))
	require.NoError(t, s.DismissInsight(ctx, "u1", "i1"))
	assert.ErrorIs(t, s.DismissInsight(ctx, "u1", "i2"), ErrNotFound)

	list, err := s.ListInsights(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Surfaced)
	assert.True(t, list[0].Dismissed)
	assert.Equal(t, "anxious", list[0].PatternData.Emotion)
	assert.InDelta(t, 0.8, list[0].PatternData.Rate, 1e-9)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	expires := base.Add(72 * time.Hour)
	n1 := journal.Notification{ID: "n1", UserID: "u1", Type: journal.NotifySilenceNudge, Title: "Quiet period", Priority: journal.PriorityLow, CreatedAt: base.Add(-time.Hour), Metadata: map[string]any{"days": 6}}
	n2 := journal.Notification{ID: "n2", UserID: "u1", Type: journal.NotifyWeeklyReflectionReady, Title: "Weekly reflection", Priority: journal.PriorityMedium, CreatedAt: base, ExpiresAt: &expires}
	require.NoError(t, s.CreateNotification(ctx, n1))
	require.NoError(t, s.CreateNotification(ctx, n2))

	require.NoError(t, s.MarkNotificationRead(ctx, "u1", "n1", base))
	require.NoError(t, s.DismissNotification(ctx, "u1", "n2", base))
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "u1", "missing", base), ErrNotFound)

	active, err := s.ListNotifications(ctx, "u1", NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "n1", active[0].ID)
	assert.True(t, active[0].Read)
	assert.Equal(t, float64(6), active[0].Metadata["days"])

	all, err := s.ListNotifications(ctx, "u1", NotificationFilter{IncludeDismissed: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "n2", all[0].ID)
	require.NotNil(t, all[0].ExpiresAt)

	typed, err := s.ListNotifications(ctx, "u1", NotificationFilter{IncludeDismissed: true, Type: journal.NotifySilenceNudge})
	require.NoError(t, err)
	require.Len(t, typed, 1)
}

func TestReflections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		created := base.Add(-time.Duration(i) * 5 * 24 * time.Hour)
		require.NoError(t, s.SaveReflection(ctx, journal.SavedReflection{
			ID:          "w" + string(rune('a'+i)),
			UserID:      "u1",
			PeriodStart: created.Add(-7 * 24 * time.Hour),
			PeriodEnd:   created,
			Summary:     json.RawMessage(`{"receipts_count":2}`),
			Tone:        string(journal.ToneGentle),
			Viewed:      true,
			ViewedAt:    &created,
			CreatedAt:   created,
		}))
	}

	latest, err := s.LatestReflectionSince(ctx, "u1", base.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "wa", latest.ID)
	assert.JSONEq(t, `{"receipts_count":2}`, string(latest.Summary))

	_, err = s.LatestReflectionSince(ctx, "u2", base.Add(-7*24*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := s.ListReflections(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "wb", history[1].ID)

	unlimited, err := s.ListReflections(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, unlimited, 3)
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	p := journal.NewProfile("u1")
	p.FullName = "Ada"
	p.ReflectionTone = journal.ToneDirect
	p.UpdatedAt = base
	require.NoError(t, s.UpsertProfile(ctx, p))

	silenced := base.Add(time.Hour)
	p.LastSilencePromptAt = &silenced
	p.CaptureRemindersEnabled = true
	require.NoError(t, s.UpsertProfile(ctx, p))

	got, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FullName)
	assert.Equal(t, journal.ToneDirect, got.ReflectionTone)
	assert.True(t, got.CaptureRemindersEnabled)
	assert.True(t, got.OutcomeChecksEnabled)
	require.NotNil(t, got.LastSilencePromptAt)
	assert.True(t, silenced.Equal(*got.LastSilencePromptAt))
	assert.Nil(t, got.LastWeeklyReflectionAt)
}

func TestUserIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateReceipt(ctx, receipt("r1", "bob", base)))
	require.NoError(t, s.CreateReceipt(ctx, receipt("r2", "bob", base)))
	require.NoError(t, s.CreateMoment(ctx, journal.Moment{ID: "m1", UserID: "amy", Title: "x", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, s.UpsertProfile(ctx, journal.Profile{UserID: "cat", UserSettings: journal.DefaultSettings(), UpdatedAt: base}))

	ids, err := s.UserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy", "bob", "cat"}, ids)
}
