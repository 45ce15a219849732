package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache marks the response as uncacheable. Required for anything carrying
// tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// WriteError writes the standard error body used across the API.
func WriteError(w http.ResponseWriter, code int, errCode, description string) {
	NoCache(w)
	WriteJSON(w, code, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}
