package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for odoodrift.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Operation metrics
	operationsExecuted *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec

	// Record metrics
	recordsManaged *prometheus.GaugeVec
	recordState    *prometheus.GaugeVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcErrors   *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Drift detection metrics
	driftDetections *prometheus.CounterVec

	// System metrics
	activeRuns       prometheus.Gauge
	queuedOperations prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Run metrics
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"user"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Operation metrics
		operationsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_executed_total",
				Help:      "Total number of plan operations executed",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of plan operation execution in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "record_model"},
		),

		// Record metrics
		recordsManaged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records_managed",
				Help:      "Current number of managed records",
			},
			[]string{"model", "status"},
		),
		recordState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "record_state",
				Help:      "Current state of records (1=ready, 0=not ready)",
			},
			[]string{"record_id", "model"},
		),

		// RPC metrics
		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "Total number of JSON-RPC calls made to the Odoo server",
			},
			[]string{"method", "operation"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_call_duration_seconds",
				Help:      "Duration of JSON-RPC calls in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "operation"},
		),
		rpcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_errors_total",
				Help:      "Total number of JSON-RPC call errors",
			},
			[]string{"method", "operation"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// Drift detection metrics
		driftDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_detections_total",
				Help:      "Total number of drift detections",
			},
			[]string{"model", "status"},
		),

		// System metrics
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active plan/apply runs",
			},
		),
		queuedOperations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_operations",
				Help:      "Current number of operations queued for execution",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.operationsExecuted,
		m.operationDuration,
		m.recordsManaged,
		m.recordState,
		m.rpcCalls,
		m.rpcDuration,
		m.rpcErrors,
		m.errorsByClass,
		m.errorsByCode,
		m.driftDetections,
		m.activeRuns,
		m.queuedOperations,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(user string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(user).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Operation Metrics

// RecordOperationExecution records the execution of a single plan operation.
func (m *Metrics) RecordOperationExecution(operation, status string, duration time.Duration, recordModel string) {
	if m.operationsExecuted == nil {
		return
	}
	m.operationsExecuted.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation, recordModel).Observe(duration.Seconds())
}

// Record Metrics

// SetRecordCount sets the current count of managed records for a model.
func (m *Metrics) SetRecordCount(recordModel, status string, count float64) {
	if m.recordsManaged == nil {
		return
	}
	m.recordsManaged.WithLabelValues(recordModel, status).Set(count)
}

// SetRecordState sets the state of a specific record.
func (m *Metrics) SetRecordState(recordID, recordModel string, ready bool) {
	if m.recordState == nil {
		return
	}
	value := 0.0
	if ready {
		value = 1.0
	}
	m.recordState.WithLabelValues(recordID, recordModel).Set(value)
}

// RPC Metrics

// RecordRPCCall records a JSON-RPC call and its duration.
func (m *Metrics) RecordRPCCall(method, operation string, duration time.Duration) {
	if m.rpcCalls == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, operation).Inc()
	m.rpcDuration.WithLabelValues(method, operation).Observe(duration.Seconds())
}

// RecordRPCError records a JSON-RPC call error.
func (m *Metrics) RecordRPCError(method, operation string) {
	if m.rpcErrors == nil {
		return
	}
	m.rpcErrors.WithLabelValues(method, operation).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Drift Metrics

// RecordDriftDetection records a drift detection event.
func (m *Metrics) RecordDriftDetection(recordModel, status string) {
	if m.driftDetections == nil {
		return
	}
	m.driftDetections.WithLabelValues(recordModel, status).Inc()
}

// System Metrics

// SetActiveRuns sets the current number of active runs.
func (m *Metrics) SetActiveRuns(count float64) {
	if m.activeRuns == nil {
		return
	}
	m.activeRuns.Set(count)
}

// SetQueuedOperations sets the current number of operations queued for execution.
func (m *Metrics) SetQueuedOperations(count float64) {
	if m.queuedOperations == nil {
		return
	}
	m.queuedOperations.Set(count)
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

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
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

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
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
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
