package httpapi

import (
	"errors"
	"net/http"

	"family-shield/internal/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// statusFor maps a service error onto an HTTP status and client message
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, models.ErrTokenExpired):
		return http.StatusGone, "request expired"
	case errors.Is(err, models.ErrInvalidToken), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, models.ErrActivationNotPending),
		errors.Is(err, models.ErrActivationAlreadyPending),
		errors.Is(err, models.ErrShieldDisabled),
		errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *EmergencyHandler) writeError(w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
	} else {
		h.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, Fail(msg))
}
