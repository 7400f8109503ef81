// Package metrics holds the Prometheus collectors of one pipeline run. Runs
// are batch jobs, so collectors live in a per-run registry that is written
// to a node-exporter textfile at the end instead of being scraped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Run groups the collectors updated during a run.
type Run struct {
	Registry *prometheus.Registry

	Chunks      *prometheus.CounterVec // metering_point, outcome
	Readings    *prometheus.CounterVec // metering_point
	Checkpoints *prometheus.CounterVec // metering_point, outcome
	Points      *prometheus.CounterVec // outcome
	Prices      *prometheus.CounterVec // price_area
	LastSuccess prometheus.Gauge
	Duration    prometheus.Gauge
}

// New creates a Run with its collectors registered on a fresh registry.
func New() *Run {
	r := &Run{
		Registry: prometheus.NewRegistry(),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerview_chunks_total",
			Help: "Date-range chunks processed by outcome.",
		}, []string{"metering_point", "outcome"}),
		Readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerview_readings_written_total",
			Help: "Normalized readings written to the partitioned store.",
		}, []string{"metering_point"}),
		Checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerview_checkpoint_updates_total",
			Help: "Checkpoint updates by outcome.",
		}, []string{"metering_point", "outcome"}),
		Points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerview_metering_points_total",
			Help: "Metering points processed by outcome.",
		}, []string{"outcome"}),
		Prices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerview_spot_prices_written_total",
			Help: "Spot prices written to the partitioned store.",
		}, []string{"price_area"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powerview_last_success_timestamp_seconds",
			Help: "Unix time of the last run that stored data.",
		}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powerview_last_run_duration_seconds",
			Help: "Wall-clock duration of the last run.",
		}),
	}
	r.Registry.MustRegister(r.Chunks, r.Readings, r.Checkpoints, r.Points, r.Prices, r.LastSuccess, r.Duration)
	return r
}

// WriteTextfile writes the registry in the text exposition format. An empty
// path is a no-op.
func (r *Run) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.Registry)
}
