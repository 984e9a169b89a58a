package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "firerisk"

// Metrics holds the Prometheus gauges describing one pipeline run. Each
// Metrics owns its registry so a run can be exported as a textfile without
// touching the default registry.
type Metrics struct {
	Registry *prometheus.Registry

	StepDuration *prometheus.GaugeVec // labels: step
	StepRowsIn   *prometheus.GaugeVec // labels: step
	StepRowsOut  *prometheus.GaugeVec // labels: step
	StepFailures *prometheus.CounterVec

	RunSuccess      prometheus.Gauge
	RunDuration     prometheus.Gauge
	RunLastFinished prometheus.Gauge
	MeshCells       prometheus.Gauge
	OutputRows      prometheus.Gauge
}

// NewMetrics creates the run metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		StepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of a pipeline node in the last run.",
		}, []string{"step"}),
		StepRowsIn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_rows_in",
			Help:      "Rows consumed by a pipeline node in the last run.",
		}, []string{"step"}),
		StepRowsOut: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_rows_out",
			Help:      "Rows produced by a pipeline node in the last run.",
		}, []string{"step"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Pipeline nodes that returned an error.",
		}, []string{"step"}),
		RunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if the last run completed, 0 if it failed.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		RunLastFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_last_finished_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		MeshCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mesh_cells",
			Help:      "Cells in the clipped square mesh.",
		}),
		OutputRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_table_rows",
			Help:      "Rows in the final input table.",
		}),
	}

	m.Registry.MustRegister(
		m.StepDuration,
		m.StepRowsIn,
		m.StepRowsOut,
		m.StepFailures,
		m.RunSuccess,
		m.RunDuration,
		m.RunLastFinished,
		m.MeshCells,
		m.OutputRows,
	)
	return m
}

// ObserveStep records a finished node.
func (m *Metrics) ObserveStep(step string, d time.Duration, rowsIn, rowsOut int, err error) {
	m.StepDuration.WithLabelValues(step).Set(d.Seconds())
	m.StepRowsIn.WithLabelValues(step).Set(float64(rowsIn))
	m.StepRowsOut.WithLabelValues(step).Set(float64(rowsOut))
	if err != nil {
		m.StepFailures.WithLabelValues(step).Inc()
	}
}

// ObserveRun records the outcome of the whole run.
func (m *Metrics) ObserveRun(ok bool, d time.Duration, finished time.Time) {
	if ok {
		m.RunSuccess.Set(1)
	} else {
		m.RunSuccess.Set(0)
	}
	m.RunDuration.Set(d.Seconds())
	m.RunLastFinished.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the text exposition format for the
// node-exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
