package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/facegate/facegate/internal/database"
)

// CreateSession stores a freshly minted session.
func (s *Store) CreateSession(ctx context.Context, session *database.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (token, issuer_id, created_at, expires_at, closed)
		VALUES ($1, $2, $3, $4, $5)
	`, session.Token, session.IssuerID, session.CreatedAt, session.ExpiresAt, session.Closed)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by token, returns nil if unknown.
func (s *Store) GetSession(ctx context.Context, token string) (*database.Session, error) {
	var session database.Session
	err := s.pool.QueryRow(ctx, `
		SELECT token, issuer_id, created_at, expires_at, closed,
		       (SELECT COUNT(*) FROM session_checkins c WHERE c.session_token = sessions.token)
		FROM sessions
		WHERE token = $1
	`, token).Scan(
		&session.Token,
		&session.IssuerID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.Closed,
		&session.CheckinCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &session, nil
}

// CloseSession marks a session closed.
func (s *Store) CloseSession(ctx context.Context, token string) error {
	result, err := s.pool.Exec(ctx, "UPDATE sessions SET closed = TRUE WHERE token = $1", token)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrSessionNotFound
	}
	return nil
}

// RecordCheckin adds the subject to the session roster and appends the
// attendance record in one transaction. The session row is locked for the
// duration, so concurrent attempts for the same subject serialize and the
// loser hits the roster primary key.
func (s *Store) RecordCheckin(ctx context.Context, token, subjectID string, at time.Time) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var session database.Session
	err = tx.QueryRowContext(ctx, `
		SELECT token, expires_at, closed
		FROM sessions
		WHERE token = $1
		FOR UPDATE
	`, token).Scan(&session.Token, &session.ExpiresAt, &session.Closed)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	switch session.Status(at) {
	case database.SessionClosed:
		return database.ErrSessionClosed
	case database.SessionExpired:
		return database.ErrSessionExpired
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_checkins (session_token, subject_id)
		VALUES ($1, $2)
	`, token, subjectID)
	if isUniqueViolation(err) {
		return database.ErrAlreadyCheckedIn
	}
	if err != nil {
		return fmt.Errorf("insert checkin: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (subject_id, session_token, checked_in_at)
		VALUES ($1, $2, $3)
	`, subjectID, token, at)
	if isUniqueViolation(err) {
		return database.ErrAlreadyCheckedIn
	}
	if err != nil {
		return fmt.Errorf("insert attendance record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkin: %w", err)
	}
	return nil
}

// DeleteExpired removes expired sessions with no check-ins. Sessions that
// appear in the roster survive so the ledger keeps resolvable tokens.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE closed = FALSE
		  AND expires_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM session_checkins c WHERE c.session_token = sessions.token
		  )
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleted rows affected: %w", err)
	}
	return deleted, nil
}

// ListBySession returns the session's ledger ordered by check-in time ascending.
func (s *Store) ListBySession(ctx context.Context, token string) ([]database.AttendanceRecord, error) {
	return s.listRecords(ctx, `
		SELECT subject_id, session_token, checked_in_at
		FROM attendance_records
		WHERE session_token = $1
		ORDER BY checked_in_at, id
	`, token)
}

// ListBySubject returns the subject's ledger ordered by check-in time ascending.
func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]database.AttendanceRecord, error) {
	return s.listRecords(ctx, `
		SELECT subject_id, session_token, checked_in_at
		FROM attendance_records
		WHERE subject_id = $1
		ORDER BY checked_in_at, id
	`, subjectID)
}

func (s *Store) listRecords(ctx context.Context, query string, arg any) ([]database.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	records := make([]database.AttendanceRecord, 0)
	for rows.Next() {
		var r database.AttendanceRecord
		if err := rows.Scan(&r.SubjectID, &r.SessionToken, &r.CheckedInAt); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}
