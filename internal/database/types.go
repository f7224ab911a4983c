package database

import (
	"time"
)

// Subject is a registered participant with a stored face embedding reference.
type Subject struct {
	ID             string // stable external identifier (e.g. student number)
	Name           string
	Department     string
	Embedding      []float32 // immutable once set
	CredentialHash string    // bcrypt hash, never the raw credential
	CreatedAt      time.Time
}

// Session is an attendance session minted by an operator. The token is the
// sole admission credential and is distributed out of band (QR link).
type Session struct {
	Token        string
	IssuerID     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Closed       bool
	CheckinCount int
}

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionExpired SessionStatus = "expired"
	SessionClosed  SessionStatus = "closed"
)

// Status reports the session lifecycle state at the given instant.
func (s *Session) Status(now time.Time) SessionStatus {
	if s.Closed {
		return SessionClosed
	}
	if now.After(s.ExpiresAt) {
		return SessionExpired
	}
	return SessionOpen
}

// AttendanceRecord is one verified check-in. Records are append-only and
// unique per (subject, session).
type AttendanceRecord struct {
	SubjectID    string
	SessionToken string
	CheckedInAt  time.Time
}

// Operator is an account allowed to mint sessions and manage subjects.
type Operator struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
