package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"balance-ledger/pkg/dispatch"
	"balance-ledger/pkg/ledger"

	"go.uber.org/zap"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	Violations []string `json:"violations,omitempty"`
}

// statusFor maps the ledger error taxonomy to HTTP.
func statusFor(err error) int {
	switch {
	case ledger.IsValidation(err), errors.Is(err, ledger.ErrInvalidKind):
		return http.StatusUnprocessableEntity
	case ledger.IsInsufficientFunds(err):
		return http.StatusUnprocessableEntity
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsAlreadyExists(err):
		return http.StatusConflict
	case ledger.IsContention(err):
		return http.StatusConflict
	case ledger.IsStorageFault(err),
		errors.Is(err, dispatch.ErrQueueFull),
		errors.Is(err, dispatch.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, dispatch.ErrQueueClosed):
		return "queue_closed"
	}
	return ledger.ClassifyError(err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{
		Error:   classify(err),
		Message: err.Error(),
	}
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		body.Violations = ve.Violations
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	if status == http.StatusServiceUnavailable || ledger.IsContention(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

// badRequest answers 400 for malformed input that never reached the ledger.
func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
