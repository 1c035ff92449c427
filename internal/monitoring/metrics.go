package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the decision core.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration prometheus.Histogram
	VetoesTotal      *prometheus.CounterVec
	EvaluatorErrors  *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec

	// Rate limiter metrics
	LimiterBlocked *prometheus.CounterVec
	LimiterWait    prometheus.Histogram

	// Cache metrics
	CacheHitRate *prometheus.GaugeVec

	// Health metrics
	SystemHealth prometheus.Gauge
	SafeMode     prometheus.Gauge

	// Venue metrics
	VenueCalls    *prometheus.CounterVec
	VenueDuration *prometheus.HistogramVec

	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector registered on the default
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradegate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_decisions_total",
				Help: "Total decision cycles by outcome",
			},
			[]string{"outcome"},
		),
		DecisionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradegate_decision_duration_seconds",
				Help:    "Full decision cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		VetoesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_vetoes_total",
				Help: "Total vetoes by evaluator",
			},
			[]string{"evaluator"},
		),
		EvaluatorErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_evaluator_errors_total",
				Help: "Evaluator failures converted to automatic vetoes",
			},
			[]string{"evaluator"},
		),

		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradegate_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"dependency"},
		),
		BreakerTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"dependency", "from", "to"},
		),
		BreakerRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_breaker_rejections_total",
				Help: "Calls rejected while the breaker was open",
			},
			[]string{"dependency"},
		),

		LimiterBlocked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_ratelimit_blocked_total",
				Help: "Acquire attempts blocked by a rate limit",
			},
			[]string{"limit"},
		),
		LimiterWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradegate_ratelimit_wait_seconds",
				Help:    "Time spent waiting for rate limit admission",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		CacheHitRate: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradegate_cache_hit_rate",
				Help: "Cache hit rate percentage by cache name",
			},
			[]string{"cache"},
		),

		SystemHealth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradegate_system_health",
				Help: "Aggregate module health score (0-100)",
			},
		),
		SafeMode: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradegate_safe_mode",
				Help: "1 while safe mode is active",
			},
		),

		VenueCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_venue_calls_total",
				Help: "Outbound venue calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		VenueDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradegate_venue_call_duration_seconds",
				Help:    "Outbound venue call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradegate_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	m.SystemHealth.Set(100)
	return m
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDecision records one completed decision cycle.
func (m *Metrics) RecordDecision(outcome string, duration time.Duration) {
	m.DecisionsTotal.WithLabelValues(outcome).Inc()
	m.DecisionDuration.Observe(duration.Seconds())
}

// RecordVeto records one evaluator veto.
func (m *Metrics) RecordVeto(evaluator string) {
	m.VetoesTotal.WithLabelValues(evaluator).Inc()
}

// RecordEvaluatorError records an evaluator failure.
func (m *Metrics) RecordEvaluatorError(evaluator string) {
	m.EvaluatorErrors.WithLabelValues(evaluator).Inc()
}

// RecordBreakerState updates the state gauge for a dependency.
func (m *Metrics) RecordBreakerState(dependency string, state float64) {
	m.BreakerState.WithLabelValues(dependency).Set(state)
}

// RecordBreakerTransition records a breaker state change.
func (m *Metrics) RecordBreakerTransition(dependency, from, to string) {
	m.BreakerTransitions.WithLabelValues(dependency, from, to).Inc()
}

// RecordVenueCall records one outbound venue call.
func (m *Metrics) RecordVenueCall(operation, status string, duration time.Duration) {
	m.VenueCalls.WithLabelValues(operation, status).Inc()
	m.VenueDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHealth updates the health gauges.
func (m *Metrics) RecordHealth(systemHealth float64, safeMode bool) {
	m.SystemHealth.Set(systemHealth)
	if safeMode {
		m.SafeMode.Set(1)
	} else {
		m.SafeMode.Set(0)
	}
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
