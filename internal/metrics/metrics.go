package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "progression_engine"

var (
	levelUps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progression",
		Name:      "level_ups_total",
		Help:      "Levels gained across all profile writes.",
	})
	rankUps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progression",
		Name:      "rank_ups_total",
		Help:      "Rank promotions by the tier reached.",
	}, []string{"rank"})
	workoutsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progression",
		Name:      "workouts_completed_total",
		Help:      "Workout completions committed to profiles.",
	})
	versionConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "version_conflicts_total",
		Help:      "Compare-and-set writes rejected because the profile changed.",
	}, []string{"operation"})
	estimatorFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workout",
		Name:      "estimator_fallbacks_total",
		Help:      "Exercises estimated with the 60 second fallback.",
	})
	settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "challenge",
		Name:      "settlements_total",
		Help:      "Challenge settlements by outcome.",
	}, []string{"outcome"})
	settlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "challenge",
		Name:      "settlement_duration_seconds",
		Help:      "Time from lock acquisition to committed settlement.",
		Buckets:   prometheus.DefBuckets,
	})
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Events handed to a sink.",
	}, []string{"sink"})
	eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events dropped because a subscriber was too slow.",
	})
)

func init() {
	prometheus.MustRegister(
		levelUps,
		rankUps,
		workoutsCompleted,
		versionConflicts,
		estimatorFallbacks,
		settlements,
		settlementDuration,
		eventsPublished,
		eventsDropped,
	)
}

// Settlement outcomes
const (
	OutcomeSettled     = "settled"
	OutcomeNoQualifier = "no_qualifier"
	OutcomeFailed      = "failed"
)

// RecordLevelUps adds n levels gained
func RecordLevelUps(n int) {
	if n > 0 {
		levelUps.Add(float64(n))
	}
}

// RecordRankUp counts a promotion to rank
func RecordRankUp(rank string) {
	rankUps.WithLabelValues(rank).Inc()
}

// RecordWorkoutCompleted counts a committed workout
func RecordWorkoutCompleted() {
	workoutsCompleted.Inc()
}

// RecordVersionConflict counts a rejected compare-and-set for operation
func RecordVersionConflict(operation string) {
	versionConflicts.WithLabelValues(operation).Inc()
}

// RecordEstimatorFallbacks adds n fallback estimates
func RecordEstimatorFallbacks(n int) {
	if n > 0 {
		estimatorFallbacks.Add(float64(n))
	}
}

// RecordSettlement counts a settlement attempt and, on success, its duration
func RecordSettlement(outcome string, started time.Time) {
	settlements.WithLabelValues(outcome).Inc()
	if outcome != OutcomeFailed {
		settlementDuration.Observe(time.Since(started).Seconds())
	}
}

// RecordEventsPublished adds n events delivered to sink
func RecordEventsPublished(sink string, n int) {
	if n > 0 {
		eventsPublished.WithLabelValues(sink).Add(float64(n))
	}
}

// RecordEventDropped counts an event a subscriber missed
func RecordEventDropped() {
	eventsDropped.Inc()
}
