// Package api provides the HTTP surface of the telemetry ingestion service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/telemetry-run/telemetryd/internal/api/middleware"
)

// ErrorResponse is the wire shape for a simple error (§6): {"detail": "..."}.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ValidationErrorResponse is the wire shape for a request-validation failure
// (§6): {"detail": [{"loc": [...], "msg": "...", "type": "..."}]}.
type ValidationErrorResponse struct {
	Detail []ValidationError `json:"detail"`
}

// ValidationError describes a single invalid field, FastAPI-style: Loc walks
// from the request part ("body", "query", ...) down to the offending field.
type ValidationError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// WriteError writes {"detail": detail} with the given status code.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, detail string) {
	writeJSON(w, r, logger, status, ErrorResponse{Detail: detail})
}

// WriteValidationError writes a 422 response carrying one or more field-level
// validation failures.
func WriteValidationError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, errs []ValidationError) {
	writeJSON(w, r, logger, http.StatusUnprocessableEntity, ValidationErrorResponse{Detail: errs})
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		correlationID := middleware.GetCorrelationID(r.Context())

		logger.Error("failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Any("encode_error", err),
			slog.Int("status", status),
		)

		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Common error constructors for frequently used cases.

func BadRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger, detail string) {
	WriteError(w, r, logger, http.StatusBadRequest, detail)
}

func NotFound(w http.ResponseWriter, r *http.Request, logger *slog.Logger, detail string) {
	WriteError(w, r, logger, http.StatusNotFound, detail)
}

func Conflict(w http.ResponseWriter, r *http.Request, logger *slog.Logger, detail string) {
	WriteError(w, r, logger, http.StatusConflict, detail)
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request, logger *slog.Logger, detail string) {
	WriteError(w, r, logger, http.StatusMethodNotAllowed, detail)
}

func InternalServerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, detail string) {
	WriteError(w, r, logger, http.StatusInternalServerError, detail)
}

func ServiceUnavailable(w http.ResponseWriter, r *http.Request, logger *slog.Logger, detail string) {
	WriteError(w, r, logger, http.StatusServiceUnavailable, detail)
}
