package prove

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a runner.
//
// Metrics:
//   - prove_check_duration_seconds{check,category} - check execution time
//   - prove_check_results_total{check,status} - results by pass/fail/timeout/panic
//   - prove_run_ok - 1 when the last run passed, else 0
type Metrics struct {
	registry *prometheus.Registry

	CheckDuration *prometheus.HistogramVec
	CheckResults  *prometheus.CounterVec
	RunOK         prometheus.Gauge
}

// NewMetrics creates collectors on a fresh registry, so several runners in
// one process never collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "prove",
				Subsystem: "check",
				Name:      "duration_seconds",
				Help:      "Duration of check execution in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"check", "category"},
		),
		CheckResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prove",
				Subsystem: "check",
				Name:      "results_total",
				Help:      "Total number of check results by status",
			},
			[]string{"check", "status"},
		),
		RunOK: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "prove",
				Name:      "run_ok",
				Help:      "Whether the last run passed (1) or failed (0)",
			},
		),
	}
}

// WriteTextfile writes the current values in the node-exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
