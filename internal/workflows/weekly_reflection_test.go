package workflows

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/pick"
	"github.com/fyrsmithlabs/contextlog/internal/service"
	"github.com/fyrsmithlabs/contextlog/internal/store"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

// Sunday 18:30, inside the default reflection window.
var now = time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)

func newJournal(t *testing.T) (*service.Service, *store.Store) {
	t.Helper()
	st, err := store.New(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "journal.db")}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := service.New(st,
		service.WithClock(timewindow.Fixed(now)),
		service.WithPicker(pick.First()),
		service.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return svc, st
}

func TestWeeklyReflectionWorkflow(t *testing.T) {
	t.Run("builds saves and notifies", func(t *testing.T) {
		svc, st := newJournal(t)
		created := now.AddDate(0, 0, -2)
		require.NoError(t, st.CreateReceipt(context.Background(), journal.Receipt{
			ID: "r1", UserID: "u-1", Title: "Moved teams", DecisionType: journal.DecisionCareer,
			Confidence: journal.Intn(70), CreatedAt: created, UpdatedAt: created,
		}))

		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(WeeklyReflectionWorkflow)
		env.RegisterActivity(&Activities{Journal: svc})

		env.ExecuteWorkflow(WeeklyReflectionWorkflow, WeeklyReflectionInput{UserID: "u-1"})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result WeeklyReflectionResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.False(t, result.Skipped)
		assert.False(t, result.Reused)
		assert.True(t, result.Notified)
		assert.NotEmpty(t, result.ReflectionID)
		assert.Empty(t, result.Errors)

		history, err := svc.ReflectionHistory(context.Background(), "u-1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, result.ReflectionID, history[0].ID)

		list, err := svc.Notifications(context.Background(), "u-1")
		require.NoError(t, err)
		require.Len(t, list.Notifications, 1)
		assert.Equal(t, journal.NotifyWeeklyReflectionReady, list.Notifications[0].Type)
	})

	t.Run("second run reuses the saved reflection", func(t *testing.T) {
		svc, _ := newJournal(t)
		saved, err := svc.SaveReflection(context.Background(), "u-1", service.SaveReflectionInput{})
		require.NoError(t, err)

		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(WeeklyReflectionWorkflow)
		env.RegisterActivity(&Activities{Journal: svc})

		env.ExecuteWorkflow(WeeklyReflectionWorkflow, WeeklyReflectionInput{UserID: "u-1"})
		require.NoError(t, env.GetWorkflowError())

		var result WeeklyReflectionResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.True(t, result.Reused)
		assert.Equal(t, saved.ID, result.ReflectionID)

		history, err := svc.ReflectionHistory(context.Background(), "u-1")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("skips when weekly reflections are disabled", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(WeeklyReflectionWorkflow)

		var a *Activities
		env.RegisterActivity(&Activities{})
		off := journal.DefaultSettings()
		off.WeeklyReflectionsEnabled = false
		env.OnActivity(a.LoadSettings, mock.Anything, "u-1").Return(off, nil)

		env.ExecuteWorkflow(WeeklyReflectionWorkflow, WeeklyReflectionInput{UserID: "u-1"})
		require.NoError(t, env.GetWorkflowError())

		var result WeeklyReflectionResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.True(t, result.Skipped)
		assert.Empty(t, result.ReflectionID)
	})

	t.Run("notification failure does not fail the run", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(WeeklyReflectionWorkflow)

		var a *Activities
		env.RegisterActivity(&Activities{})
		env.OnActivity(a.LoadSettings, mock.Anything, "u-1").Return(journal.DefaultSettings(), nil)
		env.OnActivity(a.BuildWeeklyReflection, mock.Anything, "u-1").Return(BuiltReflection{}, nil)
		env.OnActivity(a.SaveReflection, mock.Anything, mock.Anything).Return("refl-1", nil)
		env.OnActivity(a.NotifyReflectionReady, mock.Anything, NotifyInput{UserID: "u-1", ReflectionID: "refl-1"}).
			Return(false, errors.New("store unavailable"))

		env.ExecuteWorkflow(WeeklyReflectionWorkflow, WeeklyReflectionInput{UserID: "u-1"})
		require.NoError(t, env.GetWorkflowError())

		var result WeeklyReflectionResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, "refl-1", result.ReflectionID)
		assert.False(t, result.Notified)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "notify failed")
	})

	t.Run("save failure fails the run", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(WeeklyReflectionWorkflow)

		var a *Activities
		env.RegisterActivity(&Activities{})
		env.OnActivity(a.LoadSettings, mock.Anything, "u-1").Return(journal.DefaultSettings(), nil)
		env.OnActivity(a.BuildWeeklyReflection, mock.Anything, "u-1").Return(BuiltReflection{}, nil)
		env.OnActivity(a.SaveReflection, mock.Anything, mock.Anything).Return("", errors.New("disk full"))

		env.ExecuteWorkflow(WeeklyReflectionWorkflow, WeeklyReflectionInput{UserID: "u-1"})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "save reflection failed")
	})
}
