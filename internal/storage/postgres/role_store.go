package postgres

import (
	"context"
	"fmt"
	"time"

	"token-forge/internal/domain"
	"token-forge/internal/roles"
	"token-forge/internal/storage"
)

// RoleStore implements storage.RoleStore using PostgreSQL.
type RoleStore struct {
	pool *Pool
}

// NewRoleStore creates a new RoleStore.
func NewRoleStore(pool *Pool) *RoleStore {
	return &RoleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RoleStore = (*RoleStore)(nil)

// Grant adds member to role. Idempotent.
func (s *RoleStore) Grant(ctx context.Context, role roles.ID, member domain.Address) error {
	if role == "" || member.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO role_members (role_id, member, granted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, member) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query, string(role), string(member), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// Revoke removes member from role. Revoking an unheld role is a no-op.
func (s *RoleStore) Revoke(ctx context.Context, role roles.ID, member domain.Address) error {
	if role == "" || member.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `DELETE FROM role_members WHERE role_id = $1 AND member = $2`

	if _, err := s.pool.Exec(ctx, query, string(role), string(member)); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

// Has reports whether member holds role.
func (s *RoleStore) Has(ctx context.Context, role roles.ID, member domain.Address) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM role_members WHERE role_id = $1 AND member = $2
		)
	`

	var held bool
	if err := s.pool.QueryRow(ctx, query, string(role), string(member)).Scan(&held); err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return held, nil
}

// Members retrieves all members of a role, ordered by address ASC.
func (s *RoleStore) Members(ctx context.Context, role roles.ID) ([]domain.Address, error) {
	query := `
		SELECT member
		FROM role_members
		WHERE role_id = $1
		ORDER BY member ASC
	`

	rows, err := s.pool.Query(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("list role members: %w", err)
	}
	defer rows.Close()

	var result []domain.Address
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("scan role member: %w", err)
		}
		result = append(result, domain.Address(member))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role members: %w", err)
	}

	return result, nil
}
