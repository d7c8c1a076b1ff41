package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxRequestBodySize limits JSON request bodies on the admin API (1 MB).
const maxRequestBodySize = 1 << 20

// envelope is the standard API response wrapper.
// All admin JSON responses use this format: { "data": ..., "error": ... }
// Webhook responses are raw instructions, not enveloped; the telephony
// provider defines their shape.
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// readJSON decodes a single JSON object from the request body into dst.
// Returns an error message suitable for the client, empty string if OK.
func readJSON(r *http.Request, dst any) string {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return "invalid request body"
	}

	if dec.More() {
		return "request body must contain a single json object"
	}

	return ""
}
