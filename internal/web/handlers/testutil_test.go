package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/facegate/facegate/internal/capture"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/memory"
	"github.com/facegate/facegate/internal/session"
	"github.com/facegate/facegate/internal/verify"
	"github.com/go-chi/chi/v5"
)

// stubEmbedder returns canned embeddings keyed by frame content.
type stubEmbedder struct {
	vectors map[string][]float32
	errs    map[string]error
}

func (s *stubEmbedder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	key := string(image)
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	if vec, ok := s.vectors[key]; ok {
		return vec, nil
	}
	return nil, errors.New("unknown frame")
}

func testPolicy() verify.Policy {
	return verify.Policy{
		Threshold:       0.70,
		MaxFrames:       5,
		MaxEmbedRetries: 3,
		FrameTimeout:    time.Second,
	}
}

func newTestRegistry(store *memory.Store) *session.Registry {
	return session.NewRegistry(store, time.Hour)
}

// seedSubject stores a subject with the given embedding.
func seedSubject(t *testing.T, store *memory.Store, id string, embedding []float32) {
	t.Helper()
	err := store.Save(context.Background(), &database.Subject{
		ID:        id,
		Name:      "Test Subject " + id,
		Embedding: embedding,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to seed subject: %v", err)
	}
}

// seedSession mints an open session and returns its token.
func seedSession(t *testing.T, registry *session.Registry) string {
	t.Helper()
	created, err := registry.Create(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return created.Token
}

// multipartFrames builds a multipart body with one "frame" part per frame.
func multipartFrames(t *testing.T, frames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, frame := range frames {
		part, err := w.CreateFormFile("frame", "frame.jpg")
		if err != nil {
			t.Fatalf("failed to create frame part: %v", err)
		}
		if _, err := part.Write([]byte(frame)); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// multipartRegistration builds a registration form with fields and a photo.
func multipartRegistration(t *testing.T, fields map[string]string, photo string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if photo != "" {
		part, err := w.CreateFormFile("photo", "photo.jpg")
		if err != nil {
			t.Fatalf("failed to create photo part: %v", err)
		}
		if _, err := part.Write([]byte(photo)); err != nil {
			t.Fatalf("failed to write photo: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// newVerifyFixture wires a verify handler over an in-memory store.
func newVerifyFixture(t *testing.T, embedder verify.Embedder) (*VerifyHandler, *memory.Store, *session.Registry) {
	t.Helper()
	store := memory.NewStore()
	registry := newTestRegistry(store)
	engine := verify.NewEngine(embedder, testPolicy())
	handler := NewVerifyHandler(registry, store, engine, capture.NewGuard(), nil)
	return handler, store, registry
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message.
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
