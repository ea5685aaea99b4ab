package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"receipt-drop/internal/logging"
	"receipt-drop/internal/receipts"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, message, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Field: field})
}

// writeError maps err onto its status and public message. Details of server
// side failures are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := receipts.HTTPStatus(err)
	kind := receipts.KindOf(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "code", kind, "error", err)
	}

	var field string
	var ve *receipts.ValidationError
	if errors.As(err, &ve) {
		field = ve.Field
	}
	writeJSONError(w, status, receipts.PublicMessage(err), string(kind), field)
}
