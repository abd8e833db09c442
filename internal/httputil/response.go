package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/R3E-Network/launch_layer/internal/errors"
)

// ErrorBody is the JSON shape of every failed API response.
type ErrorBody struct {
	Success bool                   `json:"success"`
	Code    string                 `json:"code"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its service error and writes it.
func WriteError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("internal error", err)
	}
	WriteJSON(w, se.HTTPStatus, ErrorBody{
		Success: false,
		Code:    string(se.Code),
		Error:   se.Message,
		Details: se.Details,
	})
}
