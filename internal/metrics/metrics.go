// Package metrics records acquisition pipeline counters in a Prometheus
// registry and exports them to a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modsync"

// Recorder holds the pipeline metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	itemsTotal    *prometheus.CounterVec
	resolveTotal  *prometheus.CounterVec
	lastRunStatus *prometheus.GaugeVec
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisition_runs_total",
			Help:      "Fetcher runs by collection and result (completed, cancelled, fatal).",
		}, []string{"collection", "result"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquisition_run_duration_seconds",
			Help:      "Wall time of fetcher runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"collection"}),
		itemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_reconciled_total",
			Help:      "Reconciled items by collection and outcome (installed or the failure reason).",
		}, []string{"collection", "outcome"}),
		resolveTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Dependency resolutions by collection and result (resolved, cancelled, error).",
		}, []string{"collection", "result"}),
		lastRunStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failed_items",
			Help:      "Number of items left failed by the most recent download per collection.",
		}, []string{"collection"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRun records one fetcher run.
func (r *Recorder) ObserveRun(collection, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(collection, result).Inc()
	r.runDuration.WithLabelValues(collection).Observe(elapsed.Seconds())
}

// ObserveItems adds n items with the given outcome.
func (r *Recorder) ObserveItems(collection, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.itemsTotal.WithLabelValues(collection, outcome).Add(float64(n))
}

// ObserveResolution records one dependency resolution.
func (r *Recorder) ObserveResolution(collection, result string) {
	if r == nil {
		return
	}
	r.resolveTotal.WithLabelValues(collection, result).Inc()
}

// SetFailedItems records how many items the last download left failed.
func (r *Recorder) SetFailedItems(collection string, n int) {
	if r == nil {
		return
	}
	r.lastRunStatus.WithLabelValues(collection).Set(float64(n))
}

// WriteTextfile writes the current metrics in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
