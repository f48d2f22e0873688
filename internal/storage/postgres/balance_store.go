package postgres

import (
	"context"
	"fmt"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

// BalanceStore implements storage.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *Pool
}

// NewBalanceStore creates a new BalanceStore.
func NewBalanceStore(pool *Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BalanceStore = (*BalanceStore)(nil)

// Get returns the holder's quantity of tokenID. Absent entries read as 0.
func (s *BalanceStore) Get(ctx context.Context, tokenID uint64, holder domain.Address) (uint64, error) {
	if holder.IsZero() {
		return 0, storage.ErrInvalidInput
	}

	query := `
		SELECT quantity
		FROM balances
		WHERE token_id = $1 AND holder = $2
	`

	var qty int64
	err := s.pool.QueryRow(ctx, query, int64(tokenID), string(holder)).Scan(&qty)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return uint64(qty), nil
}

// Add increments the holder's quantity of tokenID by qty.
func (s *BalanceStore) Add(ctx context.Context, tokenID uint64, holder domain.Address, qty uint64) error {
	if holder.IsZero() || qty == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO balances (token_id, holder, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_id, holder)
		DO UPDATE SET quantity = balances.quantity + EXCLUDED.quantity
	`

	if _, err := s.pool.Exec(ctx, query, int64(tokenID), string(holder), int64(qty)); err != nil {
		return fmt.Errorf("add balance: %w", err)
	}
	return nil
}

// Sub decrements the holder's quantity of tokenID by qty, removing the entry
// when it reaches zero. Returns ErrInsufficientBalance on shortfall.
func (s *BalanceStore) Sub(ctx context.Context, tokenID uint64, holder domain.Address, qty uint64) error {
	if holder.IsZero() || qty == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE balances
		SET quantity = quantity - $3
		WHERE token_id = $1 AND holder = $2 AND quantity >= $3
		RETURNING quantity
	`

	var remaining int64
	err := s.pool.QueryRow(ctx, query, int64(tokenID), string(holder), int64(qty)).Scan(&remaining)
	if err != nil {
		if isNotFoundError(err) || isCheckViolationError(err) {
			return storage.ErrInsufficientBalance
		}
		return fmt.Errorf("sub balance: %w", err)
	}

	if remaining == 0 {
		deleteQuery := `DELETE FROM balances WHERE token_id = $1 AND holder = $2 AND quantity = 0`
		if _, err := s.pool.Exec(ctx, deleteQuery, int64(tokenID), string(holder)); err != nil {
			return fmt.Errorf("remove drained balance entry: %w", err)
		}
	}
	return nil
}

// TotalSupply returns the sum of all balance entries for tokenID.
func (s *BalanceStore) TotalSupply(ctx context.Context, tokenID uint64) (uint64, error) {
	query := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM balances
		WHERE token_id = $1
	`

	var total int64
	if err := s.pool.QueryRow(ctx, query, int64(tokenID)).Scan(&total); err != nil {
		return 0, fmt.Errorf("total supply: %w", err)
	}
	return uint64(total), nil
}

// ListByHolder retrieves all entries for a holder, ordered by token id ASC.
func (s *BalanceStore) ListByHolder(ctx context.Context, holder domain.Address) ([]*domain.BalanceEntry, error) {
	if holder.IsZero() {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT token_id, holder, quantity
		FROM balances
		WHERE holder = $1
		ORDER BY token_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(holder))
	if err != nil {
		return nil, fmt.Errorf("list balances by holder: %w", err)
	}
	defer rows.Close()

	var result []*domain.BalanceEntry
	for rows.Next() {
		var (
			tokenID int64
			h       string
			qty     int64
		)
		if err := rows.Scan(&tokenID, &h, &qty); err != nil {
			return nil, fmt.Errorf("scan balance entry: %w", err)
		}
		result = append(result, &domain.BalanceEntry{
			TokenID:  uint64(tokenID),
			Holder:   domain.Address(h),
			Quantity: uint64(qty),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance entries: %w", err)
	}

	return result, nil
}
