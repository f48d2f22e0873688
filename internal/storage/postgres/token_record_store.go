package postgres

import (
	"context"
	"fmt"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

// TokenRecordStore implements storage.TokenRecordStore using PostgreSQL.
type TokenRecordStore struct {
	pool *Pool
}

// NewTokenRecordStore creates a new TokenRecordStore.
func NewTokenRecordStore(pool *Pool) *TokenRecordStore {
	return &TokenRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenRecordStore = (*TokenRecordStore)(nil)

// NextID allocates and returns the next token id.
func (s *TokenRecordStore) NextID(ctx context.Context) (uint64, error) {
	query := `
		UPDATE token_counter
		SET next_id = next_id + 1
		WHERE singleton
		RETURNING next_id - 1
	`

	var id int64
	if err := s.pool.QueryRow(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate token id: %w", err)
	}
	return uint64(id), nil
}

// CurrentID returns the next id that NextID would allocate.
func (s *TokenRecordStore) CurrentID(ctx context.Context) (uint64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT next_id FROM token_counter WHERE singleton`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read token counter: %w", err)
	}
	return uint64(id), nil
}

// Insert adds a new record. Returns ErrDuplicateKey if the id exists.
func (s *TokenRecordStore) Insert(ctx context.Context, r *domain.TokenRecord) error {
	if r == nil || r.ContentRef == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_records (
			id, content_ref, threshold_asset, threshold_amount, expiry, created_at
		) VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)
	`

	var asset *string
	if r.ThresholdAsset != nil {
		str := string(*r.ThresholdAsset)
		asset = &str
	}

	_, err := s.pool.Exec(ctx, query,
		int64(r.ID),
		r.ContentRef,
		asset,
		amountParam(r.ThresholdAmount),
		r.Expiry,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by token id. Returns ErrNotFound if not exists.
func (s *TokenRecordStore) GetByID(ctx context.Context, tokenID uint64) (*domain.TokenRecord, error) {
	query := `
		SELECT id, content_ref, threshold_asset, threshold_amount::TEXT, expiry, created_at
		FROM token_records
		WHERE id = $1
	`

	var (
		r      domain.TokenRecord
		id     int64
		asset  *string
		amount string
	)
	err := s.pool.QueryRow(ctx, query, int64(tokenID)).Scan(
		&id,
		&r.ContentRef,
		&asset,
		&amount,
		&r.Expiry,
		&r.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token record by id: %w", err)
	}

	r.ID = uint64(id)
	if asset != nil {
		a := domain.Address(*asset)
		r.ThresholdAsset = &a
	}
	if r.ThresholdAmount, err = scanAmount(amount); err != nil {
		return nil, fmt.Errorf("get token record by id: %w", err)
	}

	return &r, nil
}
