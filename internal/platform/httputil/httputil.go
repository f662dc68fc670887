// Package httputil holds the shared request/response helpers for the HTTP
// surface: JSON encoding, error rendering, and request decoding.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	dErrors "shopstream/pkg/domain-errors"
)

// ErrorResponse is the wire shape of every error the API returns.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError renders a domain error with its mapped HTTP status. Unknown
// errors come out as opaque 500s so internals never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	status := dErrors.HTTPStatus(err)

	var dErr *dErrors.Error
	if !errors.As(err, &dErr) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Code:    string(dErrors.CodeInternal),
			Message: "internal error",
		})
		return
	}
	if dErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(dErr.RetryAfter))
	}
	WriteJSON(w, status, ErrorResponse{
		Code:    string(dErr.Code),
		Message: dErr.Message,
		Details: dErr.Details,
	})
}

// Decode parses a JSON request body into T. A malformed body writes the
// error response itself and returns false.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "malformed request body",
			"path", r.URL.Path, "error", err)
		WriteError(w, dErrors.New(dErrors.CodeValidation, "malformed request body"))
		var zero T
		return zero, false
	}
	return req, true
}
