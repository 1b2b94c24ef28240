package api

import (
	"net/http"

	apperrors "github.com/Proton-105/devotion/internal/errors"
	"github.com/Proton-105/devotion/internal/middleware"
)

var statusByCode = map[string]int{
	apperrors.CodeValidation:          http.StatusBadRequest,
	apperrors.CodeDatabase:            http.StatusInternalServerError,
	apperrors.CodeConflict:            http.StatusConflict,
	apperrors.CodeUnavailable:         http.StatusServiceUnavailable,
	apperrors.CodeNotInitialized:      http.StatusConflict,
	apperrors.CodeRateLimit:           http.StatusTooManyRequests,
	apperrors.CodeAlreadyInitialized:  http.StatusConflict,
	apperrors.CodeNotFound:            http.StatusNotFound,
	apperrors.CodeUnauthorized:        http.StatusForbidden,
	apperrors.CodeInsufficientBalance: http.StatusUnprocessableEntity,
	apperrors.CodeOverflow:            http.StatusUnprocessableEntity,
	apperrors.CodeInProgress:          http.StatusConflict,
}

func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// fail logs err and renders it. Client errors carry their detail; server
// errors only carry the user-facing message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.FromLedger(err)
	userMessage, _ := s.errs.Handle(r.Context(), appErr)

	status := statusFor(appErr.Code)
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		message = userMessage
	}

	middleware.WriteError(w, status, appErr.Code, message)
}
