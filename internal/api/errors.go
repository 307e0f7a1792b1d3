package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/circlesync/internal/engine"
	"github.com/roach88/circlesync/internal/logging"
	"github.com/roach88/circlesync/internal/schema"
)

// Error codes of the HTTP error body.
const (
	codeInvalidInput = "INVALID_INPUT"
	codeValidation   = "VALIDATION_ERROR"
	codeUnauthorized = "UNAUTHORIZED"
	codeInvalidToken = "INVALID_TOKEN"
	codeTokenExpired = "TOKEN_EXPIRED"
	codeForbidden    = "FORBIDDEN"
	codeNotFound     = "NOT_FOUND"
	codeInternal     = "INTERNAL_ERROR"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"requestId,omitempty"`
}

// ErrorDetail carries the machine code, a message and, for schema
// failures, every violation found.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Issues  []schema.Issue `json:"issues,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorBody{
		Error:     ErrorDetail{Code: code, Message: message},
		RequestID: logging.RequestID(r.Context()),
	})
}

func writeSchemaError(w http.ResponseWriter, r *http.Request, verr *schema.ValidationError) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{
		Error: ErrorDetail{
			Code:    codeValidation,
			Message: verr.Error(),
			Issues:  verr.Issues,
		},
		RequestID: logging.RequestID(r.Context()),
	})
}

// writeEngineError maps request-level engine failures to HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var se *engine.SyncError
	switch {
	case engine.IsBatchTooLarge(err):
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
	case engine.IsValidationError(err) && errors.As(err, &se):
		writeError(w, r, http.StatusBadRequest, codeValidation, se.Message)
	case engine.IsForbidden(err):
		writeError(w, r, http.StatusForbidden, codeForbidden, "not a member of this circle")
	case engine.IsNotFound(err) && errors.As(err, &se):
		writeError(w, r, http.StatusNotFound, codeNotFound, se.Message)
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.WithContext(r.Context(), s.logger).Error("request failed", "error", err)
	writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error")
}
