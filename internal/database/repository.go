package database

import (
	"context"
	"time"
)

// SubjectReader provides read-only access to registered subjects.
type SubjectReader interface {
	// Get retrieves a subject by ID, returns nil if not found.
	Get(ctx context.Context, id string) (*Subject, error)
	// List returns subjects whose name matches the query fragment
	// (diacritics-insensitive; empty query returns everyone).
	List(ctx context.Context, query string) ([]Subject, error)
	// Count returns the total number of registered subjects.
	Count(ctx context.Context) (int, error)
}

// SubjectWriter provides write access to subjects.
type SubjectWriter interface {
	SubjectReader

	// Save stores a new subject. Returns ErrDuplicateSubject if the ID is taken.
	// The stored embedding is immutable; there is no update path.
	Save(ctx context.Context, subject *Subject) error
}

// SessionStore persists attendance sessions and their check-in rosters.
// Implementations must make RecordCheckin atomic: the roster insert and the
// ledger append either both commit or neither does.
type SessionStore interface {
	// CreateSession stores a freshly minted session.
	CreateSession(ctx context.Context, session *Session) error
	// GetSession retrieves a session by token, returns nil if unknown.
	GetSession(ctx context.Context, token string) (*Session, error)
	// CloseSession marks a session closed. Returns ErrSessionNotFound for
	// unknown tokens.
	CloseSession(ctx context.Context, token string) error
	// RecordCheckin adds the subject to the session roster and appends the
	// attendance record in one atomic unit. Returns ErrSessionNotFound,
	// ErrSessionClosed, ErrSessionExpired, or ErrAlreadyCheckedIn.
	RecordCheckin(ctx context.Context, token, subjectID string, at time.Time) error
	// DeleteExpired removes expired sessions that have no check-ins and
	// returns the count deleted. Sessions referenced by the ledger survive.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// LedgerReader provides read access to the attendance ledger. Results are
// ordered by check-in time ascending.
type LedgerReader interface {
	ListBySession(ctx context.Context, token string) ([]AttendanceRecord, error)
	ListBySubject(ctx context.Context, subjectID string) ([]AttendanceRecord, error)
}

// OperatorStore persists operator accounts.
type OperatorStore interface {
	// GetOperator retrieves an operator by username, returns nil if not found.
	GetOperator(ctx context.Context, username string) (*Operator, error)
	// SaveOperator stores a new operator. Returns ErrDuplicateOperator if the
	// username is taken.
	SaveOperator(ctx context.Context, op *Operator) error
}

// Store is the full persistence surface the service needs. Both the Postgres
// and the in-memory backend implement it, so persistence is a deployment
// choice rather than part of the core.
type Store interface {
	SubjectWriter
	SessionStore
	LedgerReader
	OperatorStore
}
