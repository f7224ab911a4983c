package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facegate/facegate/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Store implements database.Store on top of a connection pool.
type Store struct {
	pool *Pool
}

// NewStore creates a PostgreSQL-backed store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Get retrieves a subject by ID, returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*database.Subject, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, department, embedding, credential_hash, created_at
		FROM subjects
		WHERE id = $1
	`, id)

	subject, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return subject, nil
}

// List returns subjects matching the normalized name query, ordered by ID.
// Normalization matches database.NormalizeName: lowercase, no diacritics,
// dashes replaced with spaces.
func (s *Store) List(ctx context.Context, query string) ([]database.Subject, error) {
	normalized := database.NormalizeName(query)

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, department, embedding, credential_hash, created_at
		FROM subjects
		WHERE $1 = '' OR LOWER(REPLACE(unaccent(name), '-', ' ')) LIKE '%' || $1 || '%'
		ORDER BY id
	`, normalized)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []database.Subject
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, *subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}

// Count returns the total number of registered subjects.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM subjects").Scan(&count); err != nil {
		return 0, fmt.Errorf("count subjects: %w", err)
	}
	return count, nil
}

// Save stores a new subject. Returns ErrDuplicateSubject if the ID is taken.
func (s *Store) Save(ctx context.Context, subject *database.Subject) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subjects (id, name, department, embedding, credential_hash, created_at)
		VALUES ($1, $2, $3, $4::vector, $5, $6)
	`,
		subject.ID,
		subject.Name,
		subject.Department,
		pgvector.NewVector(subject.Embedding),
		subject.CredentialHash,
		subject.CreatedAt,
	)
	if isUniqueViolation(err) {
		return database.ErrDuplicateSubject
	}
	if err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

// scanSubject scans a single subject row.
func scanSubject(scanner interface{ Scan(...any) error }) (*database.Subject, error) {
	var subject database.Subject
	var vec pgvector.Vector

	err := scanner.Scan(
		&subject.ID,
		&subject.Name,
		&subject.Department,
		&vec,
		&subject.CredentialHash,
		&subject.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan subject: %w", err)
	}

	subject.Embedding = vec.Slice()
	return &subject, nil
}

// Verify interface compliance.
var _ database.Store = (*Store)(nil)
