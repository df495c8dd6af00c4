package telemetry

import (
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metrics provides Prometheus metrics for sampling and execution. A Metrics
// built from a disabled config records nothing.
type Metrics struct {
	config MetricsConfig

	// Sampling metrics
	samplesCompleted *prometheus.CounterVec
	sampleDuration   prometheus.Histogram
	sampleModules    prometheus.Histogram
	assignments      *prometheus.CounterVec
	substitutions    *prometheus.CounterVec

	// Execution metrics
	runsCompleted   *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	modulesExecuted *prometheus.CounterVec
	moduleDuration  *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		samplesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_total",
				Help:      "Total number of architectures sampled from a search space",
			},
			[]string{"status"},
		),
		sampleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sample_duration_seconds",
				Help:      "Time to build, specify and finalize one architecture",
				Buckets:   buckets,
			},
		),
		sampleModules: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sample_modules",
				Help:      "Number of modules in a finalized architecture",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hyperparameter_assignments_total",
				Help:      "Total number of hyperparameter values assigned",
			},
			[]string{"hyperparameter"},
		),
		substitutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "substitutions_total",
				Help:      "Total number of substitution modules rewritten",
			},
			[]string{"kind"},
		),

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of graph executions",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of graph execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		modulesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "modules_forwarded_total",
				Help:      "Total number of module forward calls",
			},
			[]string{"kind", "status"},
		),
		moduleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "module_forward_duration_seconds",
				Help:      "Duration of module forward calls in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by code",
			},
			[]string{"code"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Number of graph executions in progress",
			},
		),
	}

	registry.MustRegister(
		m.samplesCompleted,
		m.sampleDuration,
		m.sampleModules,
		m.assignments,
		m.substitutions,
		m.runsCompleted,
		m.runDuration,
		m.modulesExecuted,
		m.moduleDuration,
		m.errorsByClass,
		m.errorsByCode,
		m.activeRuns,
	)

	return m, nil
}

// Enabled reports whether the collector records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// RecordSample records a finished sampling attempt.
func (m *Metrics) RecordSample(status string, modules int, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.samplesCompleted.WithLabelValues(status).Inc()
	m.sampleDuration.Observe(duration.Seconds())
	if modules > 0 {
		m.sampleModules.Observe(float64(modules))
	}
}

// RecordAssignment counts one hyperparameter assignment. The label is the
// hyperparameter's base name so cardinality stays bounded.
func (m *Metrics) RecordAssignment(hyperparameter string) {
	if !m.Enabled() {
		return
	}
	m.assignments.WithLabelValues(hyperparameter).Inc()
}

// RecordSubstitution counts one substitution by module kind.
func (m *Metrics) RecordSubstitution(kind string) {
	if !m.Enabled() {
		return
	}
	m.substitutions.WithLabelValues(kind).Inc()
}

// RecordRunStarted marks an execution as in progress.
func (m *Metrics) RecordRunStarted() {
	if !m.Enabled() {
		return
	}
	m.activeRuns.Inc()
}

// RecordRunCompleted records a finished execution.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.activeRuns.Dec()
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordModuleForward records one module forward call.
func (m *Metrics) RecordModuleForward(kind, status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.modulesExecuted.WithLabelValues(kind, status).Inc()
	m.moduleDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if !m.Enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer measures elapsed time for a histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather returns the current metric families, sorted by name.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	if !m.Enabled() {
		return nil, nil
	}
	return m.registry.Gather()
}

// WriteText writes every collected metric family to w in the Prometheus text
// exposition format. Disabled collectors write nothing.
func (m *Metrics) WriteText(w io.Writer) error {
	if !m.Enabled() {
		return nil
	}
	families, err := m.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
