package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/facegate/facegate/internal/capture"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/identify"
	"github.com/facegate/facegate/internal/session"
	"github.com/facegate/facegate/internal/verify"
	"github.com/go-chi/chi/v5"
)

const defaultDeviceID = "default"

// VerifyHandler runs face verification attempts against a session token.
type VerifyHandler struct {
	registry *session.Registry
	subjects database.SubjectReader
	engine   *verify.Engine
	guard    *capture.Guard
	index    *identify.Index
}

// NewVerifyHandler creates a new verify handler.
func NewVerifyHandler(
	registry *session.Registry,
	subjects database.SubjectReader,
	engine *verify.Engine,
	guard *capture.Guard,
	index *identify.Index,
) *VerifyHandler {
	return &VerifyHandler{
		registry: registry,
		subjects: subjects,
		engine:   engine,
		guard:    guard,
		index:    index,
	}
}

// verifyResponse reports the outcome of one verification attempt.
type verifyResponse struct {
	Outcome          string  `json:"outcome"`
	SubjectID        string  `json:"subject_id,omitempty"`
	FramesTried      int     `json:"frames_tried"`
	BestScore        float64 `json:"best_score"`
	AlreadyCheckedIn bool    `json:"already_checked_in,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Verify runs a 1:1 verification attempt: the subject named by subject_id is
// matched against the streamed frames. The body is a multipart stream of
// "frame" parts. Only one attempt per capture device runs at a time.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	subjectID := r.URL.Query().Get("subject_id")
	if subjectID == "" {
		respondError(w, http.StatusBadRequest, "subject_id is required")
		return
	}

	release, err := h.acquireDevice(r)
	if err != nil {
		respondError(w, http.StatusConflict, "capture device busy")
		return
	}
	defer release()

	if _, err := h.registry.Resolve(r.Context(), token); err != nil {
		if respondSessionError(w, err) {
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}

	subject, err := h.subjects.Get(r.Context(), subjectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subject")
		return
	}
	if subject == nil {
		respondError(w, http.StatusNotFound, "subject not found")
		return
	}

	src, err := h.frameSource(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "request body must be a multipart frame stream")
		return
	}

	attempt := h.engine.Verify(r.Context(), subject.Embedding, src)
	h.respondAttempt(w, r, token, subject.ID, attempt)
}

// Identify runs a 1:N attempt: the first usable frame embedding is matched
// against the whole roster through the nearest-neighbor index.
func (h *VerifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	release, err := h.acquireDevice(r)
	if err != nil {
		respondError(w, http.StatusConflict, "capture device busy")
		return
	}
	defer release()

	if _, err := h.registry.Resolve(r.Context(), token); err != nil {
		if respondSessionError(w, err) {
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}

	src, err := h.frameSource(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "request body must be a multipart frame stream")
		return
	}

	probe, framesTried, err := h.engine.Probe(r.Context(), src)
	if err != nil {
		h.respondProbeError(w, framesTried, err)
		return
	}

	// No registered candidates is a regular no_match, not a failure.
	if h.index == nil || h.index.Len() == 0 {
		respondJSON(w, http.StatusOK, verifyResponse{
			Outcome:     verify.OutcomeNoMatch.String(),
			FramesTried: framesTried,
		})
		return
	}

	candidates, err := h.index.Nearest(probe, 1)
	if err != nil && !errors.Is(err, identify.ErrEmptyIndex) {
		respondError(w, http.StatusInternalServerError, "identification lookup failed")
		return
	}
	if len(candidates) == 0 {
		respondJSON(w, http.StatusOK, verifyResponse{
			Outcome:     verify.OutcomeNoMatch.String(),
			FramesTried: framesTried,
		})
		return
	}

	best := candidates[0]
	if best.Score < h.engine.Policy().Threshold {
		respondJSON(w, http.StatusOK, verifyResponse{
			Outcome:     verify.OutcomeNoMatch.String(),
			FramesTried: framesTried,
			BestScore:   best.Score,
		})
		return
	}

	attempt := verify.Attempt{
		Outcome:     verify.OutcomeMatched,
		FramesTried: framesTried,
		BestScore:   best.Score,
	}
	h.respondAttempt(w, r, token, best.SubjectID, attempt)
}

// acquireDevice claims the capture device named by the device_id query
// parameter for the duration of the attempt.
func (h *VerifyHandler) acquireDevice(r *http.Request) (func(), error) {
	device := r.URL.Query().Get("device_id")
	if device == "" {
		device = defaultDeviceID
	}
	return h.guard.Acquire(device)
}

// frameSource wraps the request body's multipart stream as a frame source.
func (h *VerifyHandler) frameSource(r *http.Request) (capture.FrameSource, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	return capture.NewMultipartSource(reader), nil
}

// respondAttempt records a successful match in the ledger and writes the
// attempt outcome. A duplicate check-in still reports a match, flagged with
// already_checked_in, so retries after a lost response stay idempotent.
func (h *VerifyHandler) respondAttempt(w http.ResponseWriter, r *http.Request, token, subjectID string, attempt verify.Attempt) {
	resp := verifyResponse{
		Outcome:     attempt.Outcome.String(),
		FramesTried: attempt.FramesTried,
		BestScore:   attempt.BestScore,
	}

	switch attempt.Outcome {
	case verify.OutcomeMatched:
		resp.SubjectID = subjectID
		if err := h.registry.Checkin(r.Context(), token, subjectID); err != nil {
			if errors.Is(err, database.ErrAlreadyCheckedIn) {
				resp.AlreadyCheckedIn = true
			} else if respondSessionError(w, err) {
				return
			} else {
				respondError(w, http.StatusInternalServerError, "failed to record check-in")
				return
			}
		}
		respondJSON(w, http.StatusOK, resp)

	case verify.OutcomeError:
		if attempt.Err != nil {
			resp.Error = attempt.Err.Error()
		}
		respondJSON(w, http.StatusBadGateway, resp)

	default:
		respondJSON(w, http.StatusOK, resp)
	}
}

// respondProbeError maps a failed probe extraction onto the attempt vocabulary.
func (h *VerifyHandler) respondProbeError(w http.ResponseWriter, framesTried int, err error) {
	resp := verifyResponse{FramesTried: framesTried}
	switch {
	case errors.Is(err, verify.ErrNoUsableFrame):
		resp.Outcome = verify.OutcomeNoMatch.String()
		respondJSON(w, http.StatusOK, resp)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		resp.Outcome = verify.OutcomeCancelled.String()
		respondJSON(w, http.StatusOK, resp)
	default:
		resp.Outcome = verify.OutcomeError.String()
		resp.Error = err.Error()
		respondJSON(w, http.StatusBadGateway, resp)
	}
}
