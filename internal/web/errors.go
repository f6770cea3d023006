package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, status), or fail(w, r, err) to derive
//     the status from the error
//  3. Error is mapped via core.MapError to get a user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. The user message is written as JSON

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/logging"
)

var errRateLimited = errors.New("rate limit exceeded")

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusByCode maps user-facing error codes to HTTP statuses.
var statusByCode = map[string]int{
	"SHT001":  http.StatusNotFound,
	"SHT002":  http.StatusUnprocessableEntity,
	"SHT003":  http.StatusNotFound,
	"FILE001": http.StatusRequestEntityTooLarge,
	"FILE002": http.StatusBadRequest,
	"FILE003": http.StatusUnprocessableEntity,
	"FILE004": http.StatusBadRequest,
	"FILE005": http.StatusBadRequest,
	"FILE006": http.StatusNotFound,
	"DB001":   http.StatusServiceUnavailable,
	"DB002":   http.StatusServiceUnavailable,
	"DB003":   http.StatusGatewayTimeout,
	"DB004":   http.StatusBadRequest,
	"DB006":   http.StatusBadRequest,
	"UPL001":  http.StatusServiceUnavailable,
	"UPL002":  http.StatusBadRequest,
	"UPL003":  http.StatusGatewayTimeout,
	"UPL004":  http.StatusBadRequest,
	"RATE001": http.StatusTooManyRequests,
}

// statusFor returns the HTTP status for err, 500 when unmapped.
func statusFor(err error) int {
	if status, ok := statusByCode[core.MapError(err).Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// fail responds with the status derived from err.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, err, statusFor(err))
}

// respondError logs the technical error server-side and writes the mapped
// user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
