package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned by the status listener.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeInternal       = "internal_error"
)

// codeStatus maps each error code to its HTTP status.
var codeStatus = map[string]int{
	ErrCodeBadRequest:     http.StatusBadRequest,
	ErrCodeNotFound:       http.StatusNotFound,
	ErrCodeMethodNotAllow: http.StatusMethodNotAllowed,
	ErrCodeInternal:       http.StatusInternalServerError,
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // the client may already be gone
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error for code. Unknown codes are
// reported as internal errors.
func writeError(w http.ResponseWriter, code, message string) {
	status, ok := codeStatus[code]
	if !ok {
		code, status = ErrCodeInternal, http.StatusInternalServerError
	}
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}
