// Package session manages attendance-session tokens: minting, resolution
// with an explicit Open/Expired/Closed lifecycle, and atomic check-ins.
// Storage is pluggable so persistence is a deployment choice.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/facegate/facegate/internal/database"
	"github.com/google/uuid"
)

// Registry manages attendance sessions on top of a database.SessionStore.
type Registry struct {
	store database.SessionStore
	ttl   time.Duration
	now   func() time.Time // test hook
}

// NewRegistry creates a registry. ttl is the validity window of new sessions.
func NewRegistry(store database.SessionStore, ttl time.Duration) *Registry {
	return &Registry{store: store, ttl: ttl, now: time.Now}
}

// Create mints a new session for the issuer. The token is a UUIDv4: it is
// embedded in a shareable QR link and is the sole admission credential for
// the session, so it must not be guessable.
func (r *Registry) Create(ctx context.Context, issuerID string) (*database.Session, error) {
	now := r.now()
	session := &database.Session{
		Token:     uuid.NewString(),
		IssuerID:  issuerID,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	if err := r.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return session, nil
}

// Resolve looks up a session and checks its lifecycle state. Returns
// ErrSessionNotFound, ErrSessionExpired, or ErrSessionClosed.
func (r *Registry) Resolve(ctx context.Context, token string) (*database.Session, error) {
	session, err := r.store.GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	if session == nil {
		return nil, database.ErrSessionNotFound
	}
	switch session.Status(r.now()) {
	case database.SessionClosed:
		return nil, database.ErrSessionClosed
	case database.SessionExpired:
		return nil, database.ErrSessionExpired
	}
	return session, nil
}

// Checkin records the subject's attendance under the token. The roster insert
// and the ledger append are one atomic unit in the store, so two concurrent
// attempts for the same (subject, session) cannot both succeed: the loser
// gets ErrAlreadyCheckedIn.
func (r *Registry) Checkin(ctx context.Context, token, subjectID string) error {
	return r.store.RecordCheckin(ctx, token, subjectID, r.now())
}

// Close marks the session closed. Closed sessions reject further check-ins
// but stay resolvable through the ledger.
func (r *Registry) Close(ctx context.Context, token string) error {
	return r.store.CloseSession(ctx, token)
}

// PurgeExpired deletes expired sessions that nothing references. Called
// periodically by the serve command's cron job.
func (r *Registry) PurgeExpired(ctx context.Context) (int64, error) {
	return r.store.DeleteExpired(ctx, r.now())
}
