// Package metrics records scenario and action outcomes in a private
// Prometheus registry that can be exported as a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "modulista_e2e"

// Metrics holds the run's collectors. It satisfies runner.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	scenariosTotal   *prometheus.CounterVec
	actionsTotal     *prometheus.CounterVec
	scenarioDuration prometheus.Histogram
	lastRun          *prometheus.GaugeVec
}

// New creates the collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		scenariosTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scenarios_total",
			Help:      "Count of scenarios run, by result",
		}, []string{"result"}),
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "actions_total",
			Help:      "Count of actions executed, by kind and result",
		}, []string{"kind", "result"}),
		scenarioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall time per scenario",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}, []string{"run_id"}),
	}
}

func (m *Metrics) ObserveAction(kind, result string) {
	m.actionsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveScenario(result string, d time.Duration) {
	m.scenariosTotal.WithLabelValues(result).Inc()
	m.scenarioDuration.Observe(d.Seconds())
}

// MarkRunFinished stamps the run's completion time. Only the latest run keeps
// a series; earlier run IDs are dropped.
func (m *Metrics) MarkRunFinished(runID string, at time.Time) {
	m.lastRun.Reset()
	m.lastRun.WithLabelValues(runID).Set(float64(at.Unix()))
}

// Registry exposes the underlying registry, e.g. for tests or an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every collector in text exposition format to path,
// atomically replacing any previous file.
func (m *Metrics) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
