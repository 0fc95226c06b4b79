// Package httpx holds small HTTP response helpers shared by the broker and
// runner APIs, grounded on the teacher's writeAPIError convention
// (agent-deck internal/web/handlers_ws.go, server_test.go).
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/cloudide/cloudide/internal/apierr"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a JSON error body with the status implied by kind.
func WriteError(w http.ResponseWriter, kind apierr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(errorBody{Code: string(kind), Message: message})
}

// WriteAPIErr writes the response for an *apierr.Error, falling back to
// INTERNAL_ERROR for any other error type.
func WriteAPIErr(w http.ResponseWriter, err error) {
	e := apierr.AsError(err)
	WriteError(w, e.Kind, e.Message)
}

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
