package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	enums "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextlog/internal/scheduler"
)

// DefaultTaskQueue is the task queue the worker polls.
const DefaultTaskQueue = "contextlog-reflections"

// NewWorker creates a worker with the weekly reflection workflow and its
// activities registered. The caller runs and stops it.
func NewWorker(c client.Client, taskQueue string, j Journal) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(WeeklyReflectionWorkflow)
	w.RegisterActivity(&Activities{Journal: j})
	return w
}

// Starter starts workflow executions. client.Client satisfies it.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// DueChecker reports whether a user's weekly reflection is due.
type DueChecker interface {
	WeeklyReflectionDue(ctx context.Context, userID string) (bool, error)
}

// Dispatcher starts one WeeklyReflectionWorkflow per user per day when the
// reflection is due.
type Dispatcher struct {
	starter   Starter
	due       DueChecker
	taskQueue string
	now       func() time.Time
	logger    *zap.Logger
}

// NewDispatcher creates a Dispatcher. now supplies the date used in
// workflow ids.
func NewDispatcher(starter Starter, due DueChecker, taskQueue string, now func() time.Time, logger *zap.Logger) *Dispatcher {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{starter: starter, due: due, taskQueue: taskQueue, now: now, logger: logger}
}

// WorkflowID is the id of userID's weekly reflection run on day.
func WorkflowID(userID string, day time.Time) string {
	return fmt.Sprintf("weekly-reflection-%s-%s", userID, day.UTC().Format("2006-01-02"))
}

// Dispatch starts the workflow when the reflection is due. It reports
// whether a new execution was started; a run already started today is not
// an error.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string) (bool, error) {
	due, err := d.due.WeeklyReflectionDue(ctx, userID)
	if err != nil || !due {
		return false, err
	}

	opts := client.StartWorkflowOptions{
		ID:                    WorkflowID(userID, d.now()),
		TaskQueue:             d.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	run, err := d.starter.ExecuteWorkflow(startCtx, opts, WeeklyReflectionWorkflow, WeeklyReflectionInput{UserID: userID})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return false, nil
		}
		return false, fmt.Errorf("failed to start workflow: %w", err)
	}

	d.logger.Info("workflow started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.String("user_id", userID))
	return true, nil
}

// Sweeper returns base with its weekly step replaced by Dispatch, so the
// scheduler hands weekly reflections to Temporal.
func (d *Dispatcher) Sweeper(base scheduler.Sweeper) scheduler.Sweeper {
	return dispatchingSweeper{Sweeper: base, d: d}
}

type dispatchingSweeper struct {
	scheduler.Sweeper
	d *Dispatcher
}

func (s dispatchingSweeper) NotifyWeeklyReflection(ctx context.Context, userID string) (bool, error) {
	return s.d.Dispatch(ctx, userID)
}
