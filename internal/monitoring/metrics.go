// Package monitoring exposes Prometheus metrics for estimation runs.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/fer004/Sensores/internal/estimate"
	"github.com/fer004/Sensores/internal/model"
)

// Metrics bundles the run collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	Runs        *prometheus.CounterVec
	LastRun     prometheus.Gauge
	Regions     *prometheus.GaugeVec
	Skipped     prometheus.Gauge
	Sensors     prometheus.Gauge
	Singular    prometheus.Gauge
	RunDuration prometheus.Histogram
}

// NewMetrics registers run metrics against reg, defaulting to the global
// registry when nil. Registering twice returns the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sensores_runs_total",
		Help: "Estimation runs, labeled by outcome (ok, error).",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	lastRun, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensores_last_run_timestamp_seconds",
		Help: "Unix time of the last successful run.",
	}))
	if err != nil {
		return nil, err
	}
	regions, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sensores_regions",
		Help: "Regions in the last run, labeled by estimation method.",
	}, []string{"method"}))
	if err != nil {
		return nil, err
	}
	skipped, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensores_regions_skipped",
		Help: "Regions skipped for invalid geometry in the last run.",
	}))
	if err != nil {
		return nil, err
	}
	sensors, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensores_sensors_used",
		Help: "Sensors with a reading for the selected pollutant in the last run.",
	}))
	if err != nil {
		return nil, err
	}
	singular, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensores_singular_triangles",
		Help: "Interpolation attempts that hit a degenerate triangle in the last run.",
	}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sensores_run_duration_seconds",
		Help:    "Wall time of a full run.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:    gatherer,
		Runs:        runs,
		LastRun:     lastRun,
		Regions:     regions,
		Skipped:     skipped,
		Sensors:     sensors,
		Singular:    singular,
		RunDuration: duration,
	}, nil
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(run *model.Run, stats estimate.Stats) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues("ok").Inc()
	m.LastRun.Set(float64(run.StartedAt.Unix()))
	m.Regions.WithLabelValues(string(model.MethodContainment)).Set(float64(stats.Containment))
	m.Regions.WithLabelValues(string(model.MethodInterpolation)).Set(float64(stats.Interpolated))
	m.Regions.WithLabelValues(string(model.MethodNone)).Set(float64(stats.NoData))
	m.Skipped.Set(float64(stats.Skipped))
	m.Sensors.Set(float64(stats.Sensors))
	m.Singular.Set(float64(stats.Singular))
	m.RunDuration.Observe(float64(run.DurationMs) / 1000)
}

// ObserveFailure counts a run that aborted before producing records.
func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues("error").Inc()
}

// Handler exposes the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	gatherer := m.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, eris.Wrap(err, "monitoring: register collector")
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return c, eris.New("monitoring: collector already registered with incompatible type")
		}
		return existing, nil
	}
	return c, nil
}
