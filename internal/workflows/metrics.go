package workflows

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/contextlog/internal/workflows"

var (
	activityDuration     metric.Float64Histogram
	activityErrorCounter metric.Int64Counter
	reflectionsSaved     metric.Int64Counter
)

// initMetrics creates the activity instruments on the global meter
// provider. Activities run in worker goroutines, never in workflow code.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error
	activityDuration, err = meter.Float64Histogram(
		"contextlog.workflows.activity.duration",
		metric.WithDescription("Duration of workflow activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"contextlog.workflows.activity.errors",
		metric.WithDescription("Number of activity execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}

	reflectionsSaved, err = meter.Int64Counter(
		"contextlog.workflows.reflections.saved",
		metric.WithDescription("Weekly reflections saved by the workflow"),
		metric.WithUnit("{reflection}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create reflections counter: %v", err))
	}
}

func init() {
	initMetrics()
}

// observe records an activity's duration and, on failure, its error.
func observe(ctx context.Context, activity string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("activity", activity))
	activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		activityErrorCounter.Add(ctx, 1, attrs)
	}
}
