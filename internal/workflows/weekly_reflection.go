// Package workflows holds the Temporal workflow that prepares a user's
// weekly reflection, for deployments that run a Temporal worker.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
)

// WeeklyReflectionInput starts WeeklyReflectionWorkflow.
type WeeklyReflectionInput struct {
	UserID string `json:"user_id"`
}

// WeeklyReflectionResult reports what the workflow did.
type WeeklyReflectionResult struct {
	UserID       string   `json:"user_id"`
	Skipped      bool     `json:"skipped"`
	ReflectionID string   `json:"reflection_id,omitempty"`
	Reused       bool     `json:"reused"`
	Notified     bool     `json:"notified"`
	Errors       []string `json:"errors,omitempty"`
}

// WeeklyReflectionWorkflow builds, saves and announces the weekly
// reflection:
//  1. load the user's settings and stop when weekly reflections are off
//  2. build the reflection, or reuse one saved in the last seven days
//  3. save it
//  4. create the weekly-reflection-ready notification
func WeeklyReflectionWorkflow(ctx workflow.Context, in WeeklyReflectionInput) (*WeeklyReflectionResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting weekly reflection", "user_id", in.UserID)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})

	var a *Activities
	result := &WeeklyReflectionResult{UserID: in.UserID}

	var settings journal.UserSettings
	if err := workflow.ExecuteActivity(ctx, a.LoadSettings, in.UserID).Get(ctx, &settings); err != nil {
		return result, stepFailed(result, "load settings", ErrorSeverityCritical, err)
	}
	if !settings.WeeklyReflectionsEnabled {
		logger.Info("Weekly reflections disabled, skipping", "user_id", in.UserID)
		result.Skipped = true
		return result, nil
	}

	var built BuiltReflection
	if err := workflow.ExecuteActivity(ctx, a.BuildWeeklyReflection, in.UserID).Get(ctx, &built); err != nil {
		return result, stepFailed(result, "build reflection", ErrorSeverityCritical, err)
	}

	if built.SavedID != "" {
		result.ReflectionID = built.SavedID
		result.Reused = true
	} else {
		err := workflow.ExecuteActivity(ctx, a.SaveReflection, SaveInput{UserID: in.UserID, Input: built.Input}).
			Get(ctx, &result.ReflectionID)
		if err != nil {
			return result, stepFailed(result, "save reflection", ErrorSeverityCritical, err)
		}
	}

	err := workflow.ExecuteActivity(ctx, a.NotifyReflectionReady, NotifyInput{
		UserID:       in.UserID,
		ReflectionID: result.ReflectionID,
	}).Get(ctx, &result.Notified)
	if err != nil {
		logger.Error("Failed to create notification", "error", err)
		if werr := stepFailed(result, "notify", ErrorSeverityHigh, err); werr != nil {
			return result, werr
		}
	}

	logger.Info("Weekly reflection complete",
		"reflection_id", result.ReflectionID,
		"reused", result.Reused,
		"notified", result.Notified)
	return result, nil
}
