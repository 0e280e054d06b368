package report

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartcampus/daymax/internal/model"
	"github.com/smartcampus/daymax/internal/runner"
)

const MetricsPrefix = "daymax_"

const (
	backendLabel  = "backend"
	strategyLabel = "strategy"
	sensorLabel   = "sensor"
	resultLabel   = "result"
)

// Metrics records benchmark timings for one backend in its own registry,
// so a run can be written out as a node exporter textfile.
type Metrics struct {
	backend  string
	registry *prometheus.Registry

	queryDuration *prometheus.HistogramVec
	runDuration   *prometheus.GaugeVec
	spans         *prometheus.CounterVec
	loadDuration  prometheus.Gauge
	recordsLoaded prometheus.Gauge
}

func NewMetrics(backend string) *Metrics {
	runLabels := []string{backendLabel, strategyLabel, sensorLabel}
	m := &Metrics{
		backend:  backend,
		registry: prometheus.NewRegistry(),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricsPrefix + "query_duration_seconds",
				Help:    "Duration of one strategy call: a single day, or the whole range for bucketed strategies.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 20),
			},
			runLabels,
		),
		runDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricsPrefix + "run_duration_seconds",
				Help: "Time spent in the strategy over a whole run.",
			},
			runLabels,
		),
		spans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricsPrefix + "spans_total",
				Help: "Days processed, by whether a maximum was found.",
			},
			append(runLabels, resultLabel),
		),
		loadDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        MetricsPrefix + "load_duration_seconds",
			Help:        "Time taken to load the generated records.",
			ConstLabels: prometheus.Labels{backendLabel: backend},
		}),
		recordsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        MetricsPrefix + "records_loaded",
			Help:        "Number of archive records loaded.",
			ConstLabels: prometheus.Labels{backendLabel: backend},
		}),
	}
	m.registry.MustRegister(m.queryDuration, m.runDuration, m.spans, m.loadDuration, m.recordsLoaded)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveLoad(records int, took time.Duration) {
	m.recordsLoaded.Set(float64(records))
	m.loadDuration.Set(took.Seconds())
}

func (m *Metrics) labels(info runner.RunInfo) []string {
	return []string{m.backend, string(info.Kind), string(info.Sensor)}
}

func (m *Metrics) RunStarted(runner.RunInfo) {}

func (m *Metrics) SpanCompleted(info runner.RunInfo, _ int, _ model.DaySpan, result model.Extremum, _ time.Duration) {
	outcome := "value"
	if !result.Valid {
		outcome = "empty"
	}
	m.spans.WithLabelValues(append(m.labels(info), outcome)...).Inc()
}

// RunCompleted observes every strategy call. Per-day durations are taken
// from the result rather than SpanCompleted, which reports zero for days
// answered by a whole-range query.
func (m *Metrics) RunCompleted(info runner.RunInfo, result *runner.Result) {
	histogram := m.queryDuration.WithLabelValues(m.labels(info)...)
	for _, d := range result.QueryDurations {
		histogram.Observe(d.Seconds())
	}
	m.runDuration.WithLabelValues(m.labels(info)...).Set(result.Elapsed.Seconds())
}

// WriteToTextfile writes the registry atomically in the text exposition
// format.
func (m *Metrics) WriteToTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "writing metrics to %s", path)
}
