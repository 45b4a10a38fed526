// Package metrics holds the Prometheus collectors for the companion service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "companion"

var (
	// BackendCalls counts model backend calls by call class and outcome (ok|error).
	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Model backend calls by call class and outcome.",
		},
		[]string{"class", "outcome"},
	)

	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_seconds",
			Help:      "Model backend call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"class"},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by final verdict.",
		},
		[]string{"verdict"},
	)

	TurnFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_failures_total",
			Help:      "Turns aborted by an upstream or storage failure.",
		},
	)

	TurnAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_attempts",
			Help:      "Draft generations per turn.",
			Buckets:   []float64{1, 2, 3},
		},
	)

	JudgeVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_verdicts_total",
			Help:      "Raw judge verdicts per evaluation, before normalisation.",
		},
		[]string{"verdict"},
	)

	SummaryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_writes_total",
			Help:      "Session summary writes by source (model|fallback|emergency).",
		},
		[]string{"source"},
	)

	MemoryUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_upserts_total",
			Help:      "Memory items written by the pipeline, by scope.",
		},
		[]string{"scope"},
	)

	ToolEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_events_total",
			Help:      "Tool events emitted by tool id and kind.",
		},
		[]string{"tool", "kind"},
	)

	// ComponentUp is 1 while the named dependency answers its health probe.
	ComponentUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_up",
			Help:      "Last health probe result per dependency (1 up, 0 down).",
		},
		[]string{"component"},
	)
)
