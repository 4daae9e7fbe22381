package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hruclean_runs_total",
			Help: "Total consolidation runs",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hruclean_run_duration_seconds",
			Help:    "Consolidation run duration in seconds, including table I/O",
			Buckets: prometheus.DefBuckets,
		},
	)

	HRUsIn = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hruclean_hrus_in_total",
			Help: "Total HRUs read from input tables",
		},
	)

	HRUsOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hruclean_hrus_out_total",
			Help: "Total HRUs written after consolidation",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hruclean_events_total",
			Help: "Consolidation events by kind (merge, drop, no_target, unknown_exemption)",
		},
		[]string{"kind"},
	)

	AreaRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hruclean_area_removed_km2_total",
			Help: "Total HRU area discarded by drop-mode runs",
		},
	)

	SubBasinsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hruclean_subbasins_processed_total",
			Help: "Total sub-basins consolidated",
		},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hruclean_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last successful run",
		},
	)
)

// RecordRun updates the run counters. status is "success" or "error".
func RecordRun(status string, elapsed time.Duration) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(elapsed.Seconds())
	if status == "success" {
		LastRunTimestamp.SetToCurrentTime()
	}
}

// WriteTextfile writes the default registry in the node-exporter textfile
// format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
