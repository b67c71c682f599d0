package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/notify"
	"github.com/fyrsmithlabs/contextlog/internal/service"
)

// Journal is the part of the journal service the activities call.
type Journal interface {
	Settings(ctx context.Context, userID string) (journal.UserSettings, error)
	WeeklyReflection(ctx context.Context, userID string) (service.WeeklyResult, error)
	SaveReflection(ctx context.Context, userID string, in service.SaveReflectionInput) (journal.SavedReflection, error)
	Notify(ctx context.Context, userID, notificationType string, opts notify.CreateOptions) (bool, error)
}

// Activities are the weekly reflection activities. Register a value with the
// worker; the workflow refers to the methods through a nil pointer.
type Activities struct {
	Journal Journal
}

// BuiltReflection is the output of BuildWeeklyReflection. When a reflection
// was already saved this week, SavedID is set and Input is empty.
type BuiltReflection struct {
	SavedID string                      `json:"saved_id,omitempty"`
	Input   service.SaveReflectionInput `json:"input"`
}

// SaveInput is the input of SaveReflection.
type SaveInput struct {
	UserID string                      `json:"user_id"`
	Input  service.SaveReflectionInput `json:"input"`
}

// NotifyInput is the input of NotifyReflectionReady.
type NotifyInput struct {
	UserID       string `json:"user_id"`
	ReflectionID string `json:"reflection_id"`
}

// LoadSettings returns the user's settings, defaults included.
func (a *Activities) LoadSettings(ctx context.Context, userID string) (s journal.UserSettings, err error) {
	defer func(start time.Time) { observe(ctx, "load_settings", start, err) }(time.Now())
	return a.Journal.Settings(ctx, userID)
}

// BuildWeeklyReflection generates the trailing week's reflection. A retried
// run finds the reflection the previous attempt saved and reuses it.
func (a *Activities) BuildWeeklyReflection(ctx context.Context, userID string) (out BuiltReflection, err error) {
	defer func(start time.Time) { observe(ctx, "build_weekly_reflection", start, err) }(time.Now())

	res, err := a.Journal.WeeklyReflection(ctx, userID)
	if err != nil {
		return BuiltReflection{}, fmt.Errorf("failed to build weekly reflection: %w", err)
	}
	if res.Saved != nil {
		return BuiltReflection{SavedID: res.Saved.ID}, nil
	}
	if res.Generated == nil {
		return BuiltReflection{}, fmt.Errorf("failed to build weekly reflection: nothing generated")
	}
	in, err := service.InputFromReflection(*res.Generated)
	if err != nil {
		return BuiltReflection{}, err
	}
	return BuiltReflection{Input: in}, nil
}

// SaveReflection stores the reflection and returns its id.
func (a *Activities) SaveReflection(ctx context.Context, in SaveInput) (id string, err error) {
	defer func(start time.Time) { observe(ctx, "save_reflection", start, err) }(time.Now())

	saved, err := a.Journal.SaveReflection(ctx, in.UserID, in.Input)
	if err != nil {
		return "", fmt.Errorf("failed to save reflection: %w", err)
	}
	reflectionsSaved.Add(ctx, 1)
	return saved.ID, nil
}

// NotifyReflectionReady creates the weekly-reflection-ready notification,
// subject to the usual notification limits.
func (a *Activities) NotifyReflectionReady(ctx context.Context, in NotifyInput) (created bool, err error) {
	defer func(start time.Time) { observe(ctx, "notify_reflection_ready", start, err) }(time.Now())

	return a.Journal.Notify(ctx, in.UserID, journal.NotifyWeeklyReflectionReady, notify.CreateOptions{
		Metadata: map[string]any{"reflection_id": in.ReflectionID},
	})
}
