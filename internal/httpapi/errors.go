package httpapi

import (
	"net/http"

	json "github.com/goccy/go-json"

	"nanochatd/internal/streaming"
	"nanochatd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes an OpenAI-style error object.
func writeJSONError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: types.ErrorDetail{Message: msg, Type: typ, Code: status}})
}

// writeServiceError maps a service error to its status and error object.
// It returns the status written.
func writeServiceError(w http.ResponseWriter, err error) int {
	status := streaming.StatusOf(err)
	payload := streaming.ErrorPayload(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
	return status
}
