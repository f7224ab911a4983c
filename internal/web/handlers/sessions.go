package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/session"
	"github.com/facegate/facegate/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// SessionsHandler handles attendance session management.
type SessionsHandler struct {
	registry  *session.Registry
	publicURL string
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(registry *session.Registry, publicURL string) *SessionsHandler {
	return &SessionsHandler{registry: registry, publicURL: publicURL}
}

// sessionResponse is the public view of a session.
type sessionResponse struct {
	Token        string    `json:"session_token"`
	Status       string    `json:"status"`
	ShareableURI string    `json:"shareable_uri"`
	ExpiresAt    time.Time `json:"expires_at"`
	CheckinCount int       `json:"checkin_count"`
}

func (h *SessionsHandler) shareableURI(token string) string {
	return fmt.Sprintf("%s/api/v1/verify/%s", h.publicURL, token)
}

func (h *SessionsHandler) toResponse(s *database.Session, status database.SessionStatus) sessionResponse {
	return sessionResponse{
		Token:        s.Token,
		Status:       string(status),
		ShareableURI: h.shareableURI(s.Token),
		ExpiresAt:    s.ExpiresAt,
		CheckinCount: s.CheckinCount,
	}
}

// Create mints a new session on behalf of the authenticated operator.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	issuer := "unknown"
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		issuer = claims.Username
	}

	created, err := h.registry.Create(r.Context(), issuer)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	respondJSON(w, http.StatusCreated, h.toResponse(created, database.SessionOpen))
}

// Get resolves a session token. Unknown tokens yield 404, expired or closed
// sessions yield 410.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	resolved, err := h.registry.Resolve(r.Context(), token)
	if err != nil {
		if respondSessionError(w, err) {
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(resolved, database.SessionOpen))
}

// QR renders the session's shareable link as a PNG QR code.
func (h *SessionsHandler) QR(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	resolved, err := h.registry.Resolve(r.Context(), token)
	if err != nil {
		if respondSessionError(w, err) {
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}

	png, err := qrcode.Encode(h.shareableURI(resolved.Token), qrcode.Medium, qrImageSize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// Close marks a session closed. Further check-ins are rejected; the ledger
// keeps its records.
func (h *SessionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if err := h.registry.Close(r.Context(), token); err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to close session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"session_token": token,
		"status":        string(database.SessionClosed),
	})
}
