package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/database"
)

// AuthHandler handles operator authentication endpoints.
type AuthHandler struct {
	store  database.OperatorStore
	issuer *auth.TokenIssuer
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(store database.OperatorStore, issuer *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{store: store, issuer: issuer}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a login response.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Register creates a new operator account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	op := &database.Operator{Username: req.Username, PasswordHash: hash}
	if err := h.store.SaveOperator(r.Context(), op); err != nil {
		if errors.Is(err, database.ErrDuplicateOperator) {
			respondError(w, http.StatusConflict, "username already taken")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create operator")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"username": op.Username})
}

// Login authenticates an operator and mints a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	op, err := h.store.GetOperator(r.Context(), req.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to look up operator")
		return
	}
	if op == nil || !auth.VerifyPassword(op.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.issuer.Mint(op.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to mint token")
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{Token: token, Username: op.Username})
}
