// Package metrics exposes the orchestrator's Prometheus registry
// (spec.md §6 GET /metrics). Unlike the teacher's hand-rolled
// exposition writer, this package registers real collectors against
// github.com/prometheus/client_golang — the corpus (cklxx-elephant.ai,
// jordigilh-kubernaut) already pulls that library, so there is no
// reason to reinvent counter/gauge/histogram bookkeeping by hand.
package metrics

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the orchestrator records against.
// A nil *Metrics is valid and every method on it is a no-op, so
// callers can unconditionally call e.g. m.TaskTransitioned(...) without
// checking Enabled() first (mirrors the teacher's nil-receiver
// Counter/Gauge methods).
type Metrics struct {
	reg *prometheus.Registry

	tasksTotal       *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	stageAttempts    *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	circuitState     *prometheus.GaugeVec
	circuitTrips     *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	workerInvocation *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	staticViolations *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Enabled reports whether METRICS_ENABLED opts the process into
// collecting and serving metrics at all.
func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return true
	}
	switch strings.ToLower(v) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// Init builds the singleton registry. Safe to call from multiple
// goroutines; only the first call constructs anything.
func Init() *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()
		instance = &Metrics{
			reg: reg,
			tasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "orch_tasks_total",
				Help: "Task status transitions, by resulting status.",
			}, []string{"status"}),
			taskDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
				Name:    "orch_task_duration_seconds",
				Help:    "Wall-clock time from task claim to terminal status.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			}, []string{"status"}),
			stageAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "orch_stage_attempts_total",
				Help: "Pipeline stage attempts, by stage and outcome.",
			}, []string{"stage", "outcome"}),
			stageDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
				Name:    "orch_stage_duration_seconds",
				Help:    "Pipeline stage execution time in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			}, []string{"stage"}),
			circuitState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
				Name: "orch_circuit_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open), by scope and identifier.",
			}, []string{"scope", "identifier"}),
			circuitTrips: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "orch_circuit_trips_total",
				Help: "Circuit breaker open transitions, by scope and identifier.",
			}, []string{"scope", "identifier"}),
			queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
				Name: "orch_queue_depth",
				Help: "Tasks currently claimable (pending, dependencies satisfied).",
			}),
			workerInvocation: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "orch_worker_invocations_total",
				Help: "Worker claim-and-run cycles, by worker id.",
			}, []string{"worker_id"}),
			runsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "orch_runs_total",
				Help: "Completed runs, by terminal status.",
			}, []string{"status"}),
			staticViolations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "orch_static_review_violations_total",
				Help: "Static code review violations, by severity.",
			}, []string{"severity"}),
			httpRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "orch_http_requests_total",
				Help: "HTTP requests served, by method/route/status.",
			}, []string{"method", "route", "status"}),
			httpDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
				Name:    "orch_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds, by method/route/status.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route", "status"}),
		}
	})
	return instance
}

// Current returns the process-wide singleton, or nil if Init was
// never called (or metrics are disabled).
func Current() *Metrics {
	return instance
}

// Registry exposes the underlying registry for promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) TaskTransitioned(status string) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) TaskDuration(status string, seconds float64) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) StageAttempt(stage, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.stageAttempts.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// Gauge values CircuitStateChanged records for domain.CircuitState's
// closed, open and half_open states.
const (
	CircuitClosed   = 0
	CircuitOpen     = 1
	CircuitHalfOpen = 2
)

func (m *Metrics) CircuitStateChanged(scope, identifier string, state float64) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(scope, identifier).Set(state)
	if state == CircuitOpen {
		m.circuitTrips.WithLabelValues(scope, identifier).Inc()
	}
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) WorkerInvocation(workerID string) {
	if m == nil {
		return
	}
	m.workerInvocation.WithLabelValues(workerID).Inc()
}

func (m *Metrics) RunCompleted(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) StaticReviewViolation(severity string) {
	if m == nil {
		return
	}
	m.staticViolations.WithLabelValues(severity).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route, status).Observe(seconds)
}

// ParseBoolEnv mirrors the teacher's permissive boolean env parsing
// (internal/observability.parseBoolEnv).
func ParseBoolEnv(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// ParseIntEnv mirrors the teacher's scrapeInterval-style integer env
// parsing with a fallback.
func ParseIntEnv(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
