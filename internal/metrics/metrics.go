package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the proctor service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec

	// Proctoring metrics
	Violations  *prometheus.CounterVec
	Warnings    prometheus.Counter
	Submissions *prometheus.CounterVec

	// Gateway metrics
	GatewayCalls    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Audit trail metrics
	EventsPersisted *prometheus.CounterVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "proctor_sessions_active",
				Help: "Number of exam sessions currently running",
			},
		),
		SessionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_sessions_total",
				Help: "Total number of exam sessions started",
			},
			[]string{"subject"},
		),
		Violations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_violations_total",
				Help: "Total number of integrity violations accepted by the policy",
			},
			[]string{"reason"},
		),
		Warnings: f.NewCounter(
			prometheus.CounterOpts{
				Name: "proctor_warnings_total",
				Help: "Total number of warnings shown to examinees",
			},
		),
		Submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_submissions_total",
				Help: "Total number of final submissions",
			},
			[]string{"reason", "delivered"},
		),
		GatewayCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_gateway_calls_total",
				Help: "Total number of evaluation gateway calls",
			},
			[]string{"method", "status"},
		),
		GatewayDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proctor_gateway_duration_seconds",
				Help:    "Evaluation gateway call duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method"},
		),
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "proctor_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
		EventsPersisted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_events_persisted_total",
				Help: "Total number of proctor events handled by the persistence worker",
			},
			[]string{"result"},
		),
	}
}

// SessionStarted records an exam entering the running state.
func (m *Metrics) SessionStarted(subject string) {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues(subject).Inc()
}

// SessionFinished records a running exam leaving the running state.
func (m *Metrics) SessionFinished() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordViolation counts an accepted violation and whether it warned.
func (m *Metrics) RecordViolation(reason string, warned bool) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(reason).Inc()
	if warned {
		m.Warnings.Inc()
	}
}

// RecordSubmission counts a final submission.
func (m *Metrics) RecordSubmission(reason string, delivered bool) {
	if m == nil {
		return
	}
	d := "false"
	if delivered {
		d = "true"
	}
	m.Submissions.WithLabelValues(reason, d).Inc()
}

// RecordGatewayCall records one gateway round trip.
func (m *Metrics) RecordGatewayCall(method string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GatewayCalls.WithLabelValues(method, status).Inc()
	m.GatewayDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordWSMessage counts a WebSocket frame. direction is "in" or "out".
func (m *Metrics) RecordWSMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, kind).Inc()
}

// WSConnected adjusts the connection gauge by delta.
func (m *Metrics) WSConnected(delta int) {
	if m == nil {
		return
	}
	m.WSConnections.Add(float64(delta))
}

// RecordPersisted counts n proctor events with result "copied", "inserted",
// "requeued" or "dropped".
func (m *Metrics) RecordPersisted(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsPersisted.WithLabelValues(result).Add(float64(n))
}
