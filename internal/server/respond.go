package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/teemow/lifeassist/internal/assistant"
	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/logging"
	"github.com/teemow/lifeassist/internal/session"
)

// ValidationError is a malformed request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to the HTTP status and the message shown to the
// client. Internal details of store and upstream failures are not exposed.
func statusFor(err error) (int, string) {
	var verr *ValidationError
	var serr *credential.StoreError
	var rerr *session.RemoteServiceError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.Is(err, assistant.ErrNoUserMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrNoIdentity):
		return http.StatusUnauthorized, "You must be signed in to use this API."
	case errors.Is(err, session.ErrSessionExpired):
		return http.StatusUnauthorized, "Your session has expired. Please sign in again."
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "No session found. Please sign in."
	case errors.As(err, &serr):
		return http.StatusServiceUnavailable, "Session storage is unavailable. Please try again."
	case errors.As(err, &rerr):
		return http.StatusBadGateway, rerr.Service + " request failed. Please try again."
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		attrs := []any{
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			logging.Err(err),
		}
		if traceID := instrumentation.GetTraceID(r.Context()); traceID != "" {
			attrs = append(attrs, slog.String("trace_id", traceID))
		}
		logger.ErrorContext(r.Context(), "Request failed", attrs...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			logging.Err(err),
		)
	}
	writeJSON(w, status, errorResponse{Success: false, Message: msg})
}
