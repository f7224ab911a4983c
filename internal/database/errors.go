package database

import "errors"

// Sentinel errors returned by stores. HTTP handlers map these to status codes
// with errors.Is; none of them is retryable without changed input.
var (
	ErrDuplicateSubject  = errors.New("subject already registered")
	ErrSubjectNotFound   = errors.New("subject not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrSessionClosed     = errors.New("session closed")
	ErrAlreadyCheckedIn  = errors.New("subject already checked in for session")
	ErrDuplicateCheckin  = errors.New("duplicate attendance record")
	ErrOperatorNotFound  = errors.New("operator not found")
	ErrDuplicateOperator = errors.New("operator already exists")
)
