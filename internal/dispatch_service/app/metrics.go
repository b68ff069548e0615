package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdispatch",
			Name:      "jobs_processed_total",
			Help:      "Total dispatch jobs reaching a terminal state.",
		},
		[]string{"status", "reason"},
	)

	runsFinishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdispatch",
			Name:      "runs_finished_total",
			Help:      "Total bulk runs reaching a terminal state.",
		},
		[]string{"status"},
	)

	activeRunsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docdispatch",
			Name:      "runs_active",
			Help:      "Bulk runs currently executing.",
		},
	)

	pacingDelayHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docdispatch",
			Name:      "pacing_delay_seconds",
			Help:      "Randomized delay inserted between dispatch jobs.",
			Buckets:   []float64{5, 10, 15, 20, 25, 30, 35, 40, 45, 50},
		},
	)
)
