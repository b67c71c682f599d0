// Package metrics provides Prometheus collectors for the journal analyzers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeadZoneFlags counts raised dead-zone flags.
	// Labels: type (low-signal, silence-gap, category-lock, tag-repetition, decision-avoidance)
	DeadZoneFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextlog",
			Name:      "deadzone_flags_total",
			Help:      "Total number of dead-zone flags raised by analysis",
		},
		[]string{"type"},
	)

	// PerspectiveCardsGenerated counts persisted perspective cards.
	// Labels: type (low-confidence, assumption-expired, gap, category-lock, anniversary)
	PerspectiveCardsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextlog",
			Name:      "perspective_cards_generated_total",
			Help:      "Total number of perspective cards generated and stored",
		},
		[]string{"type"},
	)

	// InsightsCreated counts newly persisted insight events.
	// Labels: type (emotion-outcome, confidence-outcome, type-outcome)
	InsightsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextlog",
			Name:      "insights_created_total",
			Help:      "Total number of insight events created from outcome patterns",
		},
		[]string{"type"},
	)

	// NotificationsCreated counts created notifications.
	// Labels: type (silence-nudge, weekly-reflection-ready, capture-reminder, perspective-card)
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextlog",
			Name:      "notifications_created_total",
			Help:      "Total number of in-app notifications created",
		},
		[]string{"type"},
	)

	// OutcomesRecorded counts completed or dismissed outcome checks.
	// Labels: outcome (better, expected, worse, unsure, dismissed)
	OutcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextlog",
			Name:      "outcomes_recorded_total",
			Help:      "Total number of outcome checks given a final outcome",
		},
		[]string{"outcome"},
	)

	// SchedulerSweeps counts scheduler sweeps.
	// Labels: result (success, error)
	SchedulerSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextlog",
			Name:      "scheduler_sweeps_total",
			Help:      "Total number of scheduler sweeps over known users",
		},
		[]string{"result"},
	)

	// SchedulerSweepDuration tracks how long a sweep takes.
	SchedulerSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "contextlog",
			Name:      "scheduler_sweep_duration_seconds",
			Help:      "Duration of scheduler sweeps in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// RecordSweepResult records the outcome of a scheduler sweep.
func RecordSweepResult(success bool, seconds float64) {
	if success {
		SchedulerSweeps.WithLabelValues("success").Inc()
	} else {
		SchedulerSweeps.WithLabelValues("error").Inc()
	}
	SchedulerSweepDuration.Observe(seconds)
}
