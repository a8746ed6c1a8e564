package security

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error envelope for the HTTP API. Error is a
// stable machine-readable code; Message and Details are for humans.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, code string) {
	WriteJSONErrorDetails(w, r, status, code, "", nil)
}

// WriteJSONErrorDetails writes the error envelope with an optional message
// and structured details (validation issues, conflicting ids).
func WriteJSONErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	cid := CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(CorrelationIDHeader, cid)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:         code,
		Message:       message,
		Details:       details,
		CorrelationID: cid,
	})
}
