package handlers

import (
	"net/http"
	"time"

	"github.com/facegate/facegate/internal/database"
)

// AttendanceHandler serves the attendance ledger.
type AttendanceHandler struct {
	ledger database.LedgerReader
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(ledger database.LedgerReader) *AttendanceHandler {
	return &AttendanceHandler{ledger: ledger}
}

// attendanceRecordResponse is the public view of one ledger record.
type attendanceRecordResponse struct {
	SubjectID    string    `json:"subject_id"`
	SessionToken string    `json:"session_token"`
	CheckedInAt  time.Time `json:"checked_in_at"`
}

// List returns ledger records filtered by session_token or subject_id.
// Exactly one filter is required; records come back ordered by check-in
// time ascending.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionToken := r.URL.Query().Get("session_token")
	subjectID := r.URL.Query().Get("subject_id")

	var (
		records []database.AttendanceRecord
		err     error
	)
	switch {
	case sessionToken != "" && subjectID != "":
		respondError(w, http.StatusBadRequest, "use either session_token or subject_id, not both")
		return
	case sessionToken != "":
		records, err = h.ledger.ListBySession(r.Context(), sessionToken)
	case subjectID != "":
		records, err = h.ledger.ListBySubject(r.Context(), subjectID)
	default:
		respondError(w, http.StatusBadRequest, "session_token or subject_id is required")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance records")
		return
	}

	result := make([]attendanceRecordResponse, 0, len(records))
	for _, rec := range records {
		result = append(result, attendanceRecordResponse{
			SubjectID:    rec.SubjectID,
			SessionToken: rec.SessionToken,
			CheckedInAt:  rec.CheckedInAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"records": result,
		"count":   len(result),
	})
}
