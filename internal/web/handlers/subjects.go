package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/embedding"
	"github.com/facegate/facegate/internal/identify"
	"github.com/facegate/facegate/internal/verify"
	"github.com/go-chi/chi/v5"
)

// maxRegistrationUpload bounds the multipart form size of a registration.
const maxRegistrationUpload = 16 << 20

// SubjectsHandler handles subject registration and lookup.
type SubjectsHandler struct {
	store    database.SubjectWriter
	embedder verify.Embedder
	index    *identify.Index
	dim      int
}

// NewSubjectsHandler creates a new subjects handler. dim is the required
// embedding dimension; vectors of any other length are rejected at
// registration so every stored reference stays comparable. Zero disables
// the check.
func NewSubjectsHandler(store database.SubjectWriter, embedder verify.Embedder, index *identify.Index, dim int) *SubjectsHandler {
	return &SubjectsHandler{store: store, embedder: embedder, index: index, dim: dim}
}

// subjectResponse is the public view of a subject. The embedding never
// leaves the service.
type subjectResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSubjectResponse(s *database.Subject) subjectResponse {
	return subjectResponse{
		ID:         s.ID,
		Name:       s.Name,
		Department: s.Department,
		CreatedAt:  s.CreatedAt,
	}
}

// Create registers a new subject from a multipart form with "id", "name",
// optional "department" and "credential" fields and a "photo" file. The photo
// is embedded exactly once; the stored vector is immutable afterwards.
func (h *SubjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxRegistrationUpload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	id := r.FormValue("id")
	name := r.FormValue("name")
	if id == "" || name == "" {
		respondError(w, http.StatusBadRequest, "id and name are required")
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read photo")
		return
	}

	vector, err := h.embedder.Embed(r.Context(), image)
	if err != nil {
		switch {
		case errors.Is(err, embedding.ErrNoFace):
			respondError(w, http.StatusUnprocessableEntity, "no face detected in photo")
		case errors.Is(err, embedding.ErrMultipleFaces):
			respondError(w, http.StatusUnprocessableEntity, "photo must contain exactly one face")
		default:
			respondError(w, http.StatusBadGateway, "embedding service unavailable")
		}
		return
	}

	if h.dim > 0 && len(vector) != h.dim {
		respondError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("embedding model returned %d dimensions, expected %d", len(vector), h.dim))
		return
	}

	subject := &database.Subject{
		ID:         id,
		Name:       name,
		Department: r.FormValue("department"),
		Embedding:  vector,
		CreatedAt:  time.Now(),
	}
	if credential := r.FormValue("credential"); credential != "" {
		hash, err := auth.HashPassword(credential)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to hash credential")
			return
		}
		subject.CredentialHash = hash
	}
	if err := h.store.Save(r.Context(), subject); err != nil {
		if errors.Is(err, database.ErrDuplicateSubject) {
			respondError(w, http.StatusConflict, "subject already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to save subject")
		return
	}

	if h.index != nil {
		h.index.Add(subject)
	}

	respondJSON(w, http.StatusCreated, toSubjectResponse(subject))
}

// List returns registered subjects, optionally filtered by a name fragment
// via the q query parameter. Matching is diacritics-insensitive.
func (h *SubjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subjects")
		return
	}

	result := make([]subjectResponse, 0, len(subjects))
	for i := range subjects {
		result = append(result, toSubjectResponse(&subjects[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"subjects": result,
		"count":    len(result),
	})
}

// Get returns a single subject by ID.
func (h *SubjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	subject, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subject")
		return
	}
	if subject == nil {
		respondError(w, http.StatusNotFound, "subject not found")
		return
	}
	respondJSON(w, http.StatusOK, toSubjectResponse(subject))
}
