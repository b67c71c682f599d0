package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/metrics"
	"github.com/fyrsmithlabs/contextlog/internal/pick"
	"github.com/fyrsmithlabs/contextlog/internal/service"
	"github.com/fyrsmithlabs/contextlog/internal/store"
	"github.com/fyrsmithlabs/contextlog/internal/telemetry"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

type fakeSweeper struct {
	mu        sync.Mutex
	users     []string
	usersErr  error
	failUser  string
	silence   map[string]bool
	weekly    map[string]bool
	outcome   map[string]bool
	calls     []string
	sweepsRun atomic.Int32
}

func (f *fakeSweeper) UserIDs(context.Context) ([]string, error) {
	f.sweepsRun.Add(1)
	return f.users, f.usersErr
}

func (f *fakeSweeper) record(call, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call+":"+userID)
}

func (f *fakeSweeper) NotifySilence(_ context.Context, userID string) (bool, error) {
	f.record("silence", userID)
	if userID == f.failUser {
		return false, errors.New("store unavailable")
	}
	return f.silence[userID], nil
}

func (f *fakeSweeper) NotifyWeeklyReflection(_ context.Context, userID string) (bool, error) {
	f.record("weekly", userID)
	return f.weekly[userID], nil
}

func (f *fakeSweeper) PromptDueOutcome(_ context.Context, userID string) (*journal.OutcomeCheck, error) {
	f.record("outcome", userID)
	if f.outcome[userID] {
		return &journal.OutcomeCheck{ReceiptID: "r-" + userID}, nil
	}
	return nil, nil
}

func TestNew(t *testing.T) {
	s, err := New(&fakeSweeper{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.interval)
	assert.False(t, s.Running())

	_, err = New(nil, zap.NewNop())
	assert.ErrorContains(t, err, "sweeper cannot be nil")

	_, err = New(&fakeSweeper{}, nil)
	assert.ErrorContains(t, err, "logger cannot be nil")

	_, err = New(&fakeSweeper{}, zap.NewNop(), WithInterval(0))
	assert.Error(t, err)
}

func TestSweep_CountsPerUser(t *testing.T) {
	f := &fakeSweeper{
		users:   []string{"a", "b", "c"},
		silence: map[string]bool{"a": true},
		weekly:  map[string]bool{"a": true, "b": true},
		outcome: map[string]bool{"c": true},
	}
	s, err := New(f, zaptest.NewLogger(t), WithUserRate(0))
	require.NoError(t, err)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Users)
	assert.Equal(t, 1, res.SilenceNudges)
	assert.Equal(t, 2, res.WeeklyReady)
	assert.Equal(t, 1, res.OutcomePrompts)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{
		"silence:a", "weekly:a", "outcome:a",
		"silence:b", "weekly:b", "outcome:b",
		"silence:c", "weekly:c", "outcome:c",
	}, f.calls)
}

func TestSweep_UserFailureDoesNotStopSweep(t *testing.T) {
	f := &fakeSweeper{users: []string{"a", "b"}, failUser: "a", weekly: map[string]bool{"b": true}}
	s, err := New(f, zaptest.NewLogger(t), WithUserRate(0))
	require.NoError(t, err)

	failedBefore := testutil.ToFloat64(metrics.SchedulerSweeps.WithLabelValues("error"))
	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.WeeklyReady)
	assert.Contains(t, f.calls, "outcome:a", "remaining steps still run for the failing user")
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(metrics.SchedulerSweeps.WithLabelValues("error")))
}

func TestSweep_UserListError(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	f := &fakeSweeper{usersErr: errors.New("db closed")}
	s, err := New(f, zaptest.NewLogger(t), WithTracer(tel.Tracer(instrumentationName)))
	require.NoError(t, err)

	_, err = s.Sweep(context.Background())
	assert.ErrorContains(t, err, "db closed")
	tel.AssertSpanExists(t, "scheduler.sweep")
}

func TestSweep_CancelledContext(t *testing.T) {
	f := &fakeSweeper{users: []string{"a", "b"}}
	s, err := New(f, zaptest.NewLogger(t), WithUserRate(0.001))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sweep(ctx)
	assert.Error(t, err)
	assert.Empty(t, f.calls)
}

func TestSweep_SpanAttributes(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	f := &fakeSweeper{users: []string{"a"}, outcome: map[string]bool{"a": true}}
	s, err := New(f, zaptest.NewLogger(t), WithUserRate(0), WithTracer(tel.Tracer(instrumentationName)))
	require.NoError(t, err)

	_, err = s.Sweep(context.Background())
	require.NoError(t, err)
	tel.AssertSpanAttribute(t, "scheduler.sweep", "users", int64(1))
	tel.AssertSpanAttribute(t, "scheduler.sweep", "outcome_prompts", int64(1))
}

func TestStartStop(t *testing.T) {
	f := &fakeSweeper{users: []string{"a"}}
	s, err := New(f, zaptest.NewLogger(t), WithInterval(5*time.Millisecond), WithUserRate(0))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)

	require.Eventually(t, func() bool { return f.sweepsRun.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	s.Stop()

	// Restartable after a stop.
	require.NoError(t, s.Start())
	s.Stop()
}

func TestSweep_WithJournalService(t *testing.T) {
	ctx := context.Background()
	// Sunday 18:30, the default weekly reflection time.
	now := time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)

	st, err := store.New(ctx, store.Config{Path: filepath.Join(t.TempDir(), "journal.db")}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for i, days := range []int{12, 9} {
		created := now.AddDate(0, 0, -days)
		require.NoError(t, st.CreateReceipt(ctx, journal.Receipt{
			ID:           fmt.Sprintf("r%d", i),
			UserID:       "u-1",
			Title:        "Took the offer",
			DecisionType: journal.DecisionCareer,
			Confidence:   journal.Intn(60),
			CreatedAt:    created,
			UpdatedAt:    created,
		}))
	}

	svc, err := service.New(st, service.WithClock(timewindow.Fixed(now)), service.WithPicker(pick.First()))
	require.NoError(t, err)
	s, err := New(svc, zaptest.NewLogger(t), WithUserRate(0))
	require.NoError(t, err)

	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Users)
	assert.Equal(t, 1, res.WeeklyReady)
	assert.Equal(t, 1, res.OutcomePrompts)
	assert.Equal(t, 1, res.SilenceNudges, "nine quiet days is a silence episode")

	again, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.WeeklyReady, "an unread notice of the same type blocks a duplicate")
	assert.Zero(t, again.SilenceNudges)
	assert.Zero(t, again.OutcomePrompts, "the first prompt is still unanswered")

	_, err = svc.RecordOutcome(ctx, "u-1", "r0", journal.OutcomeExpected, "")
	require.NoError(t, err)
	third, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, third.OutcomePrompts, "the second receipt is due once the first is answered")

	list, err := svc.Notifications(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, list.Notifications, 2)
}
