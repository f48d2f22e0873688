package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

// BalanceStore is an in-memory implementation of storage.BalanceStore.
type BalanceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BalanceEntry // keyed by composite key
}

// NewBalanceStore creates a new in-memory balance store.
func NewBalanceStore() *BalanceStore {
	return &BalanceStore{
		data: make(map[string]*domain.BalanceEntry),
	}
}

// balanceKey generates a unique key for a ledger entry.
func balanceKey(tokenID uint64, holder domain.Address) string {
	return fmt.Sprintf("%d|%s", tokenID, holder)
}

// Get returns the holder's quantity of tokenID. Absent entries read as 0.
func (s *BalanceStore) Get(_ context.Context, tokenID uint64, holder domain.Address) (uint64, error) {
	if holder.IsZero() {
		return 0, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.data[balanceKey(tokenID, holder)]
	if !exists {
		return 0, nil
	}
	return entry.Quantity, nil
}

// Add increments the holder's quantity of tokenID by qty.
func (s *BalanceStore) Add(_ context.Context, tokenID uint64, holder domain.Address, qty uint64) error {
	if holder.IsZero() || qty == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := balanceKey(tokenID, holder)
	if entry, exists := s.data[key]; exists {
		entry.Quantity += qty
		return nil
	}

	s.data[key] = &domain.BalanceEntry{TokenID: tokenID, Holder: holder, Quantity: qty}
	return nil
}

// Sub decrements the holder's quantity of tokenID by qty, removing the entry
// when it reaches zero. Returns ErrInsufficientBalance on shortfall.
func (s *BalanceStore) Sub(_ context.Context, tokenID uint64, holder domain.Address, qty uint64) error {
	if holder.IsZero() || qty == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := balanceKey(tokenID, holder)
	entry, exists := s.data[key]
	if !exists || entry.Quantity < qty {
		return storage.ErrInsufficientBalance
	}

	entry.Quantity -= qty
	if entry.Quantity == 0 {
		delete(s.data, key)
	}
	return nil
}

// TotalSupply returns the sum of all balance entries for tokenID.
func (s *BalanceStore) TotalSupply(_ context.Context, tokenID uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for _, entry := range s.data {
		if entry.TokenID == tokenID {
			total += entry.Quantity
		}
	}
	return total, nil
}

// ListByHolder retrieves all entries for a holder, ordered by token id ASC.
func (s *BalanceStore) ListByHolder(_ context.Context, holder domain.Address) ([]*domain.BalanceEntry, error) {
	if holder.IsZero() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalanceEntry
	for _, entry := range s.data {
		if entry.Holder == holder {
			entryCopy := *entry
			result = append(result, &entryCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TokenID < result[j].TokenID
	})

	return result, nil
}

var _ storage.BalanceStore = (*BalanceStore)(nil)
