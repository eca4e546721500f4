// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loi_runs_total",
		Help: "Total number of LOI runs by final status",
	}, []string{"status"})

	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loi_runs_active",
		Help: "Number of LOI runs currently executing",
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loi_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"stage", "status"})

	stageItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loi_stage_items_total",
		Help: "Items read and produced by pipeline stages",
	}, []string{"stage", "direction"})

	invalidRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loi_invalid_rows_total",
		Help: "Event rows skipped because their coordinates could not be used",
	})

	locationsFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loi_locations_per_run",
		Help:    "Number of locations of interest produced per run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// RunStarted marks a run as executing
func RunStarted() {
	runsActive.Inc()
}

// RunFinished records the outcome of a run started with RunStarted
func RunFinished(status string, locations, skippedRows int) {
	runsActive.Dec()
	runsTotal.WithLabelValues(status).Inc()
	if skippedRows > 0 {
		invalidRows.Add(float64(skippedRows))
	}
	if locations >= 0 {
		locationsFound.Observe(float64(locations))
	}
}

// StageObserved records the duration and item counts of one stage
func StageObserved(stage, status string, input, output int, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage, status).Observe(elapsed.Seconds())
	stageItems.WithLabelValues(stage, "in").Add(float64(input))
	stageItems.WithLabelValues(stage, "out").Add(float64(output))
}
