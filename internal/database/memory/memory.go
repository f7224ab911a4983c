// Package memory provides an in-memory database.Store. It backs tests and
// DB-less deployments; state lives for the process lifetime only.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/facegate/facegate/internal/database"
)

// sessionState couples session metadata with its roster set.
type sessionState struct {
	session database.Session
	roster  map[string]struct{}
}

// Store is a mutex-guarded in-memory implementation of database.Store.
type Store struct {
	mu        sync.RWMutex
	subjects  map[string]database.Subject
	sessions  map[string]*sessionState
	records   []database.AttendanceRecord
	operators map[string]database.Operator
	nextOpID  int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		subjects:  make(map[string]database.Subject),
		sessions:  make(map[string]*sessionState),
		operators: make(map[string]database.Operator),
		nextOpID:  1,
	}
}

// Get retrieves a subject by ID, returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*database.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subject, ok := s.subjects[id]
	if !ok {
		return nil, nil
	}
	return &subject, nil
}

// List returns subjects matching the normalized name query, ordered by ID.
func (s *Store) List(ctx context.Context, query string) ([]database.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := database.NormalizeName(query)
	var result []database.Subject
	for _, subject := range s.subjects {
		if normalized != "" && !strings.Contains(database.NormalizeName(subject.Name), normalized) {
			continue
		}
		result = append(result, subject)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Count returns the number of registered subjects.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subjects), nil
}

// Save stores a new subject, rejecting duplicates.
func (s *Store) Save(ctx context.Context, subject *database.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subjects[subject.ID]; exists {
		return database.ErrDuplicateSubject
	}
	stored := *subject
	stored.Embedding = append([]float32(nil), subject.Embedding...)
	s.subjects[subject.ID] = stored
	return nil
}

// CreateSession stores a freshly minted session.
func (s *Store) CreateSession(ctx context.Context, session *database.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Token] = &sessionState{
		session: *session,
		roster:  make(map[string]struct{}),
	}
	return nil
}

// GetSession retrieves a session by token, returns nil if unknown.
func (s *Store) GetSession(ctx context.Context, token string) (*database.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	session := state.session
	session.CheckinCount = len(state.roster)
	return &session, nil
}

// CloseSession marks a session closed.
func (s *Store) CloseSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[token]
	if !ok {
		return database.ErrSessionNotFound
	}
	state.session.Closed = true
	return nil
}

// RecordCheckin validates the session state and appends the roster entry and
// ledger record under one lock section, mirroring the SQL transaction of the
// Postgres backend.
func (s *Store) RecordCheckin(ctx context.Context, token, subjectID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[token]
	if !ok {
		return database.ErrSessionNotFound
	}
	switch state.session.Status(at) {
	case database.SessionClosed:
		return database.ErrSessionClosed
	case database.SessionExpired:
		return database.ErrSessionExpired
	}
	if _, present := state.roster[subjectID]; present {
		return database.ErrAlreadyCheckedIn
	}

	state.roster[subjectID] = struct{}{}
	s.records = append(s.records, database.AttendanceRecord{
		SubjectID:    subjectID,
		SessionToken: token,
		CheckedInAt:  at,
	})
	return nil
}

// DeleteExpired removes expired sessions with an empty roster.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for token, state := range s.sessions {
		if state.session.Status(now) == database.SessionExpired && len(state.roster) == 0 {
			delete(s.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

// ListBySession returns the session's records ordered by check-in time ascending.
func (s *Store) ListBySession(ctx context.Context, token string) ([]database.AttendanceRecord, error) {
	return s.listRecords(func(r *database.AttendanceRecord) bool {
		return r.SessionToken == token
	}), nil
}

// ListBySubject returns the subject's records ordered by check-in time ascending.
func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]database.AttendanceRecord, error) {
	return s.listRecords(func(r *database.AttendanceRecord) bool {
		return r.SubjectID == subjectID
	}), nil
}

func (s *Store) listRecords(keep func(*database.AttendanceRecord) bool) []database.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]database.AttendanceRecord, 0)
	for i := range s.records {
		if keep(&s.records[i]) {
			result = append(result, s.records[i])
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CheckedInAt.Before(result[j].CheckedInAt)
	})
	return result
}

// GetOperator retrieves an operator by username, returns nil if not found.
func (s *Store) GetOperator(ctx context.Context, username string) (*database.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operators[username]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

// SaveOperator stores a new operator, rejecting duplicate usernames.
func (s *Store) SaveOperator(ctx context.Context, op *database.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operators[op.Username]; exists {
		return database.ErrDuplicateOperator
	}
	op.ID = s.nextOpID
	s.nextOpID++
	s.operators[op.Username] = *op
	return nil
}
