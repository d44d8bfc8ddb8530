// Package metrics exposes pipeline instrumentation: per-stage latency and
// the behavioral counters the caregiver dashboard graphs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageLatency tracks per-turn latency of each pipeline stage:
	// transcribe, mood, generate, synthesize.
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "petal_stage_latency_seconds",
			Help:    "Latency of each conversation pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"stage"},
	)

	TurnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petal_turns_total",
			Help: "Total completed conversation turns",
		},
	)

	BargeInsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petal_barge_ins_total",
			Help: "Total user interruptions of agent speech or generation",
		},
	)

	DifficultyChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petal_difficulty_changes_total",
			Help: "Total difficulty adjustments by direction",
		},
		[]string{"direction"},
	)

	MoodTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petal_mood_transitions_total",
			Help: "Total held-mood transitions by resulting mood",
		},
		[]string{"mood"},
	)

	EngineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petal_engine_failures_total",
			Help: "Total external engine failures by engine",
		},
		[]string{"engine"},
	)
)

// ObserveStage records one stage duration.
func ObserveStage(stage string, d time.Duration) {
	StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// Timer measures a stage from start to Done.
func Timer(stage string) func() {
	start := time.Now()
	return func() { ObserveStage(stage, time.Since(start)) }
}
