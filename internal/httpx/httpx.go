package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ukydev/fleet-rental/internal/apperr"
)

// maxBodyBytes bounds request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Reason string            `json:"reason,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// DecodeJSON decodes the request body into dest.
func DecodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest("request body is empty")
		}
		return apperr.BadRequest("invalid JSON")
	}

	if decoder.More() {
		return apperr.BadRequest("unexpected data after JSON payload")
	}

	return nil
}

// WriteJSON serializes v as JSON with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a structured error response.
func Error(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteError translates err into a structured error response.
// Internal failures are reported without their cause.
func WriteError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	resp := ErrorResponse{Error: http.StatusText(status)}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		resp.Reason = appErr.Reason
		resp.Fields = appErr.Fields
		if status < http.StatusInternalServerError && appErr.Message != "" {
			resp.Error = appErr.Message
		}
		if appErr.Retryable() {
			resp.Reason = string(appErr.Kind)
		}
	}

	WriteJSON(w, status, resp)
}
