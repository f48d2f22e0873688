package memory

import (
	"context"
	"fmt"
	"sync"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

// ApprovalStore is an in-memory implementation of storage.ApprovalStore.
type ApprovalStore struct {
	mu   sync.RWMutex
	data map[string]struct{} // keyed by owner|operator, present = approved
}

// NewApprovalStore creates a new in-memory approval store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{
		data: make(map[string]struct{}),
	}
}

// approvalKey generates a unique key for an (owner, operator) pair.
func approvalKey(owner, operator domain.Address) string {
	return fmt.Sprintf("%s|%s", owner, operator)
}

// Set records whether operator may transfer on behalf of owner.
func (s *ApprovalStore) Set(_ context.Context, owner, operator domain.Address, approved bool) error {
	if owner.IsZero() || operator.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := approvalKey(owner, operator)
	if approved {
		s.data[key] = struct{}{}
	} else {
		delete(s.data, key)
	}
	return nil
}

// IsApproved reports whether operator may transfer on behalf of owner.
func (s *ApprovalStore) IsApproved(_ context.Context, owner, operator domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, approved := s.data[approvalKey(owner, operator)]
	return approved, nil
}

var _ storage.ApprovalStore = (*ApprovalStore)(nil)
