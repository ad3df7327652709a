package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"family-shield/internal/detection"
	"family-shield/internal/models"
	"family-shield/internal/report"
	"family-shield/internal/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// EmergencyHandler HTTP surface of the emergency protocol
type EmergencyHandler struct {
	svc    *service.EmergencyService
	logger *zap.Logger
}

// NewEmergencyHandler creates the handler
func NewEmergencyHandler(svc *service.EmergencyService, logger *zap.Logger) *EmergencyHandler {
	return &EmergencyHandler{svc: svc, logger: logger}
}

// ============================================
// guardian verification
// ============================================

// GetDashboard GET /emergency/verify/{token}?guardian_id=
func (h *EmergencyHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	guardianID := strings.TrimSpace(r.URL.Query().Get("guardian_id"))

	dashboard, err := h.svc.GetEmergencyDashboard(r.Context(), token, guardianID)
	if err != nil {
		h.writeError(w, "GetEmergencyDashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(dashboard))
}

// RespondToActivation POST /emergency/verify/{token}
func (h *EmergencyHandler) RespondToActivation(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var req GuardianResponseRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, "ProcessGuardianResponse", err)
		return
	}

	result, err := h.svc.ProcessGuardianResponse(r.Context(), token, req.GuardianID, models.ActivationStatus(req.Response), req.Notes)
	if err != nil {
		h.writeError(w, "ProcessGuardianResponse", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// GetSurvivor GET /survivor/{token}?public=true
func (h *EmergencyHandler) GetSurvivor(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	isPublic := parseBool(r.URL.Query().Get("public"), false)

	view, err := h.svc.GetSurvivorInterface(r.Context(), token, isPublic)
	if err != nil {
		h.writeError(w, "GetSurvivorInterface", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

// ============================================
// per-user shield operations
// ============================================

// Initialize POST /api/v1/users/{user_id}/shield
func (h *EmergencyHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.InitializeForUser(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		h.writeError(w, "InitializeForUser", err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, Ok(result))
}

// GetStatus GET /api/v1/users/{user_id}/shield
func (h *EmergencyHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.GetActivationStatus(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		h.writeError(w, "GetActivationStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}

// Monitor POST /api/v1/users/{user_id}/shield/monitor
// Always 200: failures are carried in the result's errors list.
func (h *EmergencyHandler) Monitor(w http.ResponseWriter, r *http.Request) {
	result := h.svc.MonitorUserActivity(r.Context(), mux.Vars(r)["user_id"])
	writeJSON(w, http.StatusOK, Ok(result))
}

// Evaluate GET /api/v1/users/{user_id}/shield/evaluation
func (h *EmergencyHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	evaluation, err := h.svc.EvaluateEmergencyTriggers(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		h.writeError(w, "EvaluateEmergencyTriggers", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(evaluation))
}

// RecordHealthCheck POST /api/v1/users/{user_id}/health-checks
func (h *EmergencyHandler) RecordHealthCheck(w http.ResponseWriter, r *http.Request) {
	var req HealthCheckRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, "RecordHealthCheck", err)
		return
	}
	userID := mux.Vars(r)["user_id"]
	if err := h.svc.RecordHealthCheck(r.Context(), userID, models.HealthCheckType(req.CheckType), *req.Responded); err != nil {
		h.writeError(w, "RecordHealthCheck", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"user_id": userID, "recorded": true}))
}

// Trigger POST /api/v1/users/{user_id}/activations
func (h *EmergencyHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, "ManualTrigger", err)
		return
	}

	result, err := h.svc.ManualTrigger(r.Context(), detection.TriggerRequest{
		UserID:      mux.Vars(r)["user_id"],
		TriggerType: models.TriggerType(req.TriggerType),
		GuardianID:  req.GuardianID,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeError(w, "ManualTrigger", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(result))
}

// ExportActivations GET /api/v1/users/{user_id}/activations/export
func (h *EmergencyHandler) ExportActivations(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	data, err := h.svc.ExportActivations(r.Context(), userID)
	if err != nil {
		h.writeError(w, "ExportActivations", err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=activations-%s.xlsx", userID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ============================================
// notifications
// ============================================

// SendReminders POST /api/v1/activations/{activation_id}/reminders
func (h *EmergencyHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	var req ReminderRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, "SendReminderNotifications", err)
		return
	}
	result := h.svc.SendReminderNotifications(r.Context(), mux.Vars(r)["activation_id"], models.ReminderType(req.ReminderType))
	writeJSON(w, http.StatusOK, Ok(result))
}

// MarkRead POST /api/v1/notifications/{notification_id}/read
func (h *EmergencyHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, "MarkNotificationAsRead", err)
		return
	}
	id := mux.Vars(r)["notification_id"]
	if err := h.svc.MarkNotificationAsRead(r.Context(), id, req.GuardianID); err != nil {
		h.writeError(w, "MarkNotificationAsRead", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"notification_id": id, "read": true}))
}

// ============================================
// operations
// ============================================

// Cleanup POST /admin/api/v1/cleanup
func (h *EmergencyHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.svc.CleanupExpiredData(r.Context())))
}

// SystemStatus GET /admin/api/v1/status
func (h *EmergencyHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := h.svc.GetSystemStatus(r.Context())
	code := http.StatusOK
	if !status.IsHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, Ok(status))
}
