package memory

import (
	"context"
	"sync"

	"github.com/holiman/uint256"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

// TokenRecordStore is an in-memory implementation of storage.TokenRecordStore.
type TokenRecordStore struct {
	mu     sync.RWMutex
	nextID uint64
	data   map[uint64]*domain.TokenRecord // keyed by token id
}

// NewTokenRecordStore creates a new in-memory token record store.
func NewTokenRecordStore() *TokenRecordStore {
	return &TokenRecordStore{
		data: make(map[uint64]*domain.TokenRecord),
	}
}

// NextID allocates and returns the next token id.
func (s *TokenRecordStore) NextID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	return id, nil
}

// CurrentID returns the next id that NextID would allocate.
func (s *TokenRecordStore) CurrentID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.nextID, nil
}

// Insert adds a new record. Returns ErrDuplicateKey if the id exists.
func (s *TokenRecordStore) Insert(_ context.Context, r *domain.TokenRecord) error {
	if r == nil || r.ContentRef == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ID] = copyRecord(r)
	return nil
}

// GetByID retrieves a record by token id. Returns ErrNotFound if not exists.
func (s *TokenRecordStore) GetByID(_ context.Context, tokenID uint64) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return copyRecord(r), nil
}

// copyRecord deep-copies a record so callers never alias store state.
func copyRecord(r *domain.TokenRecord) *domain.TokenRecord {
	out := *r
	if r.ThresholdAsset != nil {
		asset := *r.ThresholdAsset
		out.ThresholdAsset = &asset
	}
	if r.ThresholdAmount != nil {
		out.ThresholdAmount = new(uint256.Int).Set(r.ThresholdAmount)
	}
	return &out
}

var _ storage.TokenRecordStore = (*TokenRecordStore)(nil)
