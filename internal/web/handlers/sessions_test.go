package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/facegate/facegate/internal/database/memory"
	"github.com/facegate/facegate/internal/session"
)

func newSessionsFixture() (*SessionsHandler, *session.Registry) {
	store := memory.NewStore()
	registry := newTestRegistry(store)
	return NewSessionsHandler(registry, "http://attendance.example.com"), registry
}

func TestCreateSession(t *testing.T) {
	handler, _ := newSessionsFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	handler.Create(rec, req)
	assertStatusCode(t, rec, http.StatusCreated)

	var resp sessionResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("expected non-empty session token")
	}
	if resp.Status != "open" {
		t.Errorf("expected open status, got %s", resp.Status)
	}
	if !strings.HasPrefix(resp.ShareableURI, "http://attendance.example.com/api/v1/verify/") {
		t.Errorf("unexpected shareable URI: %s", resp.ShareableURI)
	}
	if !strings.HasSuffix(resp.ShareableURI, resp.Token) {
		t.Errorf("shareable URI must embed the token: %s", resp.ShareableURI)
	}
}

func TestGetSession(t *testing.T) {
	handler, registry := newSessionsFixture()
	token := seedSession(t, registry)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+token, nil)
	req = requestWithChiParams(req, map[string]string{"token": token})
	rec := httptest.NewRecorder()
	handler.Get(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	var resp sessionResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Token != token || resp.Status != "open" {
		t.Errorf("unexpected session response: %+v", resp)
	}
}

func TestGetUnknownSession(t *testing.T) {
	handler, _ := newSessionsFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/ghost", nil)
	req = requestWithChiParams(req, map[string]string{"token": "ghost"})
	rec := httptest.NewRecorder()
	handler.Get(rec, req)
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestGetClosedSessionGone(t *testing.T) {
	handler, registry := newSessionsFixture()
	token := seedSession(t, registry)
	if err := registry.Close(context.Background(), token); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+token, nil)
	req = requestWithChiParams(req, map[string]string{"token": token})
	rec := httptest.NewRecorder()
	handler.Get(rec, req)
	assertStatusCode(t, rec, http.StatusGone)
}

func TestCloseSession(t *testing.T) {
	handler, registry := newSessionsFixture()
	token := seedSession(t, registry)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+token+"/close", nil)
	req = requestWithChiParams(req, map[string]string{"token": token})
	rec := httptest.NewRecorder()
	handler.Close(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	var resp map[string]string
	parseJSONResponse(t, rec, &resp)
	if resp["status"] != "closed" {
		t.Errorf("expected closed status, got %s", resp["status"])
	}
}

func TestCloseUnknownSession(t *testing.T) {
	handler, _ := newSessionsFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/ghost/close", nil)
	req = requestWithChiParams(req, map[string]string{"token": "ghost"})
	rec := httptest.NewRecorder()
	handler.Close(rec, req)
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestSessionQR(t *testing.T) {
	handler, registry := newSessionsFixture()
	token := seedSession(t, registry)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+token+"/qr", nil)
	req = requestWithChiParams(req, map[string]string{"token": token})
	rec := httptest.NewRecorder()
	handler.QR(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	if !bytes.HasPrefix(rec.Body.Bytes(), pngMagic) {
		t.Error("expected PNG payload")
	}
}
