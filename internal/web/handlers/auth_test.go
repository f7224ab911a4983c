package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/database/memory"
)

func newAuthFixture() (*AuthHandler, *auth.TokenIssuer) {
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	return NewAuthHandler(memory.NewStore(), issuer), issuer
}

func postJSON(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRegisterAndLogin(t *testing.T) {
	handler, issuer := newAuthFixture()

	rec := postJSON(handler.Register, "/api/v1/auth/register", `{"username":"admin","password":"s3cret"}`)
	assertStatusCode(t, rec, http.StatusCreated)

	rec = postJSON(handler.Login, "/api/v1/auth/login", `{"username":"admin","password":"s3cret"}`)
	assertStatusCode(t, rec, http.StatusOK)

	var resp LoginResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := issuer.Parse(resp.Token)
	if err != nil {
		t.Fatalf("minted token failed to parse: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("expected claims for admin, got %s", claims.Username)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	handler, _ := newAuthFixture()

	rec := postJSON(handler.Register, "/api/v1/auth/register", `{"username":"admin","password":"a"}`)
	assertStatusCode(t, rec, http.StatusCreated)

	rec = postJSON(handler.Register, "/api/v1/auth/register", `{"username":"admin","password":"b"}`)
	assertStatusCode(t, rec, http.StatusConflict)
}

func TestLoginWrongPassword(t *testing.T) {
	handler, _ := newAuthFixture()

	rec := postJSON(handler.Register, "/api/v1/auth/register", `{"username":"admin","password":"s3cret"}`)
	assertStatusCode(t, rec, http.StatusCreated)

	rec = postJSON(handler.Login, "/api/v1/auth/login", `{"username":"admin","password":"wrong"}`)
	assertStatusCode(t, rec, http.StatusUnauthorized)
	assertJSONError(t, rec, "invalid credentials")
}

func TestLoginUnknownUser(t *testing.T) {
	handler, _ := newAuthFixture()

	rec := postJSON(handler.Login, "/api/v1/auth/login", `{"username":"ghost","password":"x"}`)
	assertStatusCode(t, rec, http.StatusUnauthorized)
}

func TestAuthBadRequests(t *testing.T) {
	handler, _ := newAuthFixture()

	rec := postJSON(handler.Login, "/api/v1/auth/login", `not json`)
	assertStatusCode(t, rec, http.StatusBadRequest)

	rec = postJSON(handler.Register, "/api/v1/auth/register", `{"username":"","password":""}`)
	assertStatusCode(t, rec, http.StatusBadRequest)
}
