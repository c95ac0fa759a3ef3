package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Oracle call metrics
	OracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fractal_oracle_calls_total",
			Help: "Total number of reasoning oracle calls",
		},
		[]string{"kind", "status"}, // kind: decide, synthesize, reconcile
	)

	OracleCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fractal_oracle_call_duration_seconds",
			Help:    "Reasoning oracle call latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	OracleCallsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fractal_oracle_calls_in_flight",
			Help: "Number of reasoning oracle calls currently holding a limiter slot",
		},
	)

	// Tree metrics
	AgentsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fractal_agents_executed_total",
			Help: "Total number of agents that produced a response",
		},
		[]string{"role", "outcome"}, // outcome: direct, delegated, error
	)

	DelegationTruncations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fractal_delegation_truncations_total",
			Help: "Total number of delegations that proposed more subtasks than allowed",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fractal_runs_total",
			Help: "Total number of executed queries",
		},
		[]string{"mode"}, // mode: single, quantum
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fractal_run_duration_seconds",
			Help:    "End-to-end query latency in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fractal_events_dropped_total",
			Help: "Total number of live events dropped because the subscriber was slow",
		},
	)
)

// recordOracleCall records one oracle call outcome.
func recordOracleCall(kind string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OracleCallsTotal.WithLabelValues(kind, status).Inc()
	OracleCallDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
