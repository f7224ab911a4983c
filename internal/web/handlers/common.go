// Package handlers contains the HTTP handlers of the attendance service API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/facegate/facegate/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondSessionError maps session lifecycle errors onto HTTP statuses.
// Returns false if err was not a session error.
func respondSessionError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, database.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, database.ErrSessionExpired):
		respondError(w, http.StatusGone, "session expired")
	case errors.Is(err, database.ErrSessionClosed):
		respondError(w, http.StatusGone, "session closed")
	default:
		return false
	}
	return true
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
