package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facegate/facegate/internal/database"
)

// GetOperator retrieves an operator by username, returns nil if not found.
func (s *Store) GetOperator(ctx context.Context, username string) (*database.Operator, error) {
	var op database.Operator
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM operators
		WHERE username = $1
	`, username).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query operator: %w", err)
	}
	return &op, nil
}

// SaveOperator stores a new operator. Returns ErrDuplicateOperator if the
// username is taken.
func (s *Store) SaveOperator(ctx context.Context, op *database.Operator) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO operators (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, op.Username, op.PasswordHash).Scan(&op.ID, &op.CreatedAt)
	if isUniqueViolation(err) {
		return database.ErrDuplicateOperator
	}
	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}
	return nil
}
