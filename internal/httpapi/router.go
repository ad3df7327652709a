package httpapi

import (
	"net/http"

	"family-shield/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers every route. gatherer and m may be nil, in which case
// /metrics is not served and handlers are not instrumented.
func NewRouter(h *EmergencyHandler, m *metrics.Metrics, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()

	route := func(path, name, method string, fn http.HandlerFunc) {
		r.Handle(path, m.InstrumentHandler(name, fn)).Methods(method)
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok("healthy"))
	}).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// guardian verification link: {baseUrl}/emergency/verify/{token}
	route("/emergency/verify/{token}", "dashboard", http.MethodGet, h.GetDashboard)
	route("/emergency/verify/{token}", "guardian_response", http.MethodPost, h.RespondToActivation)
	route("/survivor/{token}", "survivor", http.MethodGet, h.GetSurvivor)

	api := "/api/v1"
	route(api+"/users/{user_id}/shield", "initialize", http.MethodPost, h.Initialize)
	route(api+"/users/{user_id}/shield", "shield_status", http.MethodGet, h.GetStatus)
	route(api+"/users/{user_id}/shield/monitor", "monitor", http.MethodPost, h.Monitor)
	route(api+"/users/{user_id}/shield/evaluation", "evaluation", http.MethodGet, h.Evaluate)
	route(api+"/users/{user_id}/health-checks", "health_check", http.MethodPost, h.RecordHealthCheck)
	route(api+"/users/{user_id}/activations", "trigger", http.MethodPost, h.Trigger)
	route(api+"/users/{user_id}/activations/export", "export", http.MethodGet, h.ExportActivations)
	route(api+"/activations/{activation_id}/reminders", "reminders", http.MethodPost, h.SendReminders)
	route(api+"/notifications/{notification_id}/read", "mark_read", http.MethodPost, h.MarkRead)

	route("/admin/api/v1/cleanup", "cleanup", http.MethodPost, h.Cleanup)
	route("/admin/api/v1/status", "system_status", http.MethodGet, h.SystemStatus)

	return r
}
