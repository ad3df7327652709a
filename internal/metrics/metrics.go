package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus collectors of the emergency protocol.
// Methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	ActivationsCreated   *prometheus.CounterVec
	ActivationsFinalized *prometheus.CounterVec
	GuardianResponses    *prometheus.CounterVec
	Notifications        *prometheus.CounterVec
	MonitorPasses        *prometheus.CounterVec
	CleanupRemoved       *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActivationsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "family_shield_activations_created_total",
				Help: "Emergency activations opened, by trigger type",
			},
			[]string{"trigger_type"},
		),
		ActivationsFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "family_shield_activations_finalized_total",
				Help: "Emergency activations that left pending, by final status",
			},
			[]string{"status"},
		),
		GuardianResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "family_shield_guardian_responses_total",
				Help: "Guardian responses recorded",
			},
			[]string{"response"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "family_shield_notifications_total",
				Help: "Guardian notifications by kind and delivery outcome",
			},
			[]string{"kind", "outcome"},
		),
		MonitorPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "family_shield_monitor_passes_total",
				Help: "Per-user monitor passes by result",
			},
			[]string{"result"},
		),
		CleanupRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "family_shield_cleanup_removed_total",
				Help: "Rows expired or removed by the maintenance sweep",
			},
			[]string{"step"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
	}
	reg.MustRegister(
		m.ActivationsCreated,
		m.ActivationsFinalized,
		m.GuardianResponses,
		m.Notifications,
		m.MonitorPasses,
		m.CleanupRemoved,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

func (m *Metrics) ActivationCreated(triggerType string) {
	if m == nil {
		return
	}
	m.ActivationsCreated.WithLabelValues(triggerType).Inc()
}

func (m *Metrics) ActivationFinalized(status string, n int) {
	if m == nil {
		return
	}
	m.ActivationsFinalized.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) GuardianResponded(response string) {
	if m == nil {
		return
	}
	m.GuardianResponses.WithLabelValues(response).Inc()
}

// NotificationsSent records a batch; failed may be zero
func (m *Metrics) NotificationsSent(kind string, sent, failed int) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind, "sent").Add(float64(sent))
	m.Notifications.WithLabelValues(kind, "failed").Add(float64(failed))
}

func (m *Metrics) MonitorPass(result string) {
	if m == nil {
		return
	}
	m.MonitorPasses.WithLabelValues(result).Inc()
}

func (m *Metrics) Cleaned(step string, n int) {
	if m == nil {
		return
	}
	m.CleanupRemoved.WithLabelValues(step).Add(float64(n))
}

// InstrumentHandler wraps an HTTP handler with request count and latency
func (m *Metrics) InstrumentHandler(name string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.httpRequestDuration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(name, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
