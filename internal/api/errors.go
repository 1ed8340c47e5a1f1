package api

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in error responses.
const (
	ErrCodeNotFound       = "not_found"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeInternal       = "internal_error"
)

// errorBody is the JSON body of every error response:
//
//	{"error":{"code":"not_found","message":"...","request_id":"..."}}
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON encodes v before touching the response so an encoding failure
// can still become a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"internal_error","message":"encoding response"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // connection may already be gone
	w.Write(append(body, '\n'))
}

// writeError writes an error body tagged with the request id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	}})
}
