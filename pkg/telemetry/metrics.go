package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for differential operations. A
// disabled configuration yields a no-op instance; every record method
// tolerates it.
type Metrics struct {
	config MetricsConfig

	operationsStarted   *prometheus.CounterVec
	operationsCompleted *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec

	stepDuration *prometheus.HistogramVec

	diffObjects      *prometheus.CounterVec
	validationErrors *prometheus.CounterVec

	applyFailures      prometheus.Counter
	verificationDrift  *prometheus.CounterVec
	filteredObjects    prometheus.Counter
	activeOperations   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
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

		operationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Total number of differential operations started",
			},
			[]string{"target"},
		),
		operationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_completed_total",
				Help:      "Total number of differential operations completed",
			},
			[]string{"status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of differential operations in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of workflow steps in seconds",
				Buckets:   buckets,
			},
			[]string{"step"},
		),

		diffObjects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diff_objects_total",
				Help:      "Total diff outcomes by action and resource type",
			},
			[]string{"action", "resource_type"},
		),
		validationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_errors_total",
				Help:      "Total objects excluded from comparison by schema validation",
			},
			[]string{"resource_type"},
		),

		applyFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apply_failures_total",
				Help:      "Total remote apply failures",
			},
		),
		verificationDrift: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_results_total",
				Help:      "Total post-apply verification results by outcome",
			},
			[]string{"outcome"},
		),
		filteredObjects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "filtered_objects_total",
				Help:      "Total system objects removed before comparison",
			},
		),
		activeOperations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_operations",
				Help:      "Current number of in-flight differential operations",
			},
		),
	}

	registry.MustRegister(
		m.operationsStarted,
		m.operationsCompleted,
		m.operationDuration,
		m.stepDuration,
		m.diffObjects,
		m.validationErrors,
		m.applyFailures,
		m.verificationDrift,
		m.filteredObjects,
		m.activeOperations,
	)

	return m, nil
}

// RecordOperationStarted increments the started counter for a target.
func (m *Metrics) RecordOperationStarted(target string) {
	if m.operationsStarted == nil {
		return
	}
	m.operationsStarted.WithLabelValues(target).Inc()
	m.activeOperations.Inc()
}

// RecordOperationCompleted records a finished operation with its terminal
// status and duration.
func (m *Metrics) RecordOperationCompleted(status string, duration time.Duration) {
	if m.operationsCompleted == nil {
		return
	}
	m.operationsCompleted.WithLabelValues(status).Inc()
	m.operationDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeOperations.Dec()
}

// RecordStepDuration records the duration of one workflow step.
func (m *Metrics) RecordStepDuration(step string, duration time.Duration) {
	if m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordDiffObject counts one diff outcome (create, update, delete,
// unchanged) for a resource type.
func (m *Metrics) RecordDiffObject(action, resourceType string) {
	if m.diffObjects == nil {
		return
	}
	m.diffObjects.WithLabelValues(action, resourceType).Inc()
}

// RecordValidationError counts an object excluded by schema validation.
func (m *Metrics) RecordValidationError(resourceType string) {
	if m.validationErrors == nil {
		return
	}
	m.validationErrors.WithLabelValues(resourceType).Inc()
}

// RecordApplyFailure counts a remote apply failure.
func (m *Metrics) RecordApplyFailure() {
	if m.applyFailures == nil {
		return
	}
	m.applyFailures.Inc()
}

// RecordVerificationResult counts a post-apply verification outcome
// (match, mismatch, not_found).
func (m *Metrics) RecordVerificationResult(outcome string) {
	if m.verificationDrift == nil {
		return
	}
	m.verificationDrift.WithLabelValues(outcome).Inc()
}

// RecordFilteredObject counts a system object removed before comparison.
func (m *Metrics) RecordFilteredObject() {
	if m.filteredObjects == nil {
		return
	}
	m.filteredObjects.Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
// Server errors are logged, never fatal.
func (m *Metrics) StartMetricsServer(logger zerolog.Logger) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}
