package postgres

import (
	"context"
	"fmt"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

// ApprovalStore implements storage.ApprovalStore using PostgreSQL.
type ApprovalStore struct {
	pool *Pool
}

// NewApprovalStore creates a new ApprovalStore.
func NewApprovalStore(pool *Pool) *ApprovalStore {
	return &ApprovalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ApprovalStore = (*ApprovalStore)(nil)

// Set records whether operator may transfer on behalf of owner.
func (s *ApprovalStore) Set(ctx context.Context, owner, operator domain.Address, approved bool) error {
	if owner.IsZero() || operator.IsZero() {
		return storage.ErrInvalidInput
	}

	if approved {
		query := `
			INSERT INTO operator_approvals (owner, operator)
			VALUES ($1, $2)
			ON CONFLICT (owner, operator) DO NOTHING
		`
		if _, err := s.pool.Exec(ctx, query, string(owner), string(operator)); err != nil {
			return fmt.Errorf("set approval: %w", err)
		}
		return nil
	}

	query := `DELETE FROM operator_approvals WHERE owner = $1 AND operator = $2`
	if _, err := s.pool.Exec(ctx, query, string(owner), string(operator)); err != nil {
		return fmt.Errorf("clear approval: %w", err)
	}
	return nil
}

// IsApproved reports whether operator may transfer on behalf of owner.
func (s *ApprovalStore) IsApproved(ctx context.Context, owner, operator domain.Address) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM operator_approvals WHERE owner = $1 AND operator = $2
		)
	`

	var approved bool
	if err := s.pool.QueryRow(ctx, query, string(owner), string(operator)).Scan(&approved); err != nil {
		return false, fmt.Errorf("check approval: %w", err)
	}
	return approved, nil
}
