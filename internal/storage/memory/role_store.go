package memory

import (
	"context"
	"sort"
	"sync"

	"token-forge/internal/domain"
	"token-forge/internal/roles"
	"token-forge/internal/storage"
)

// RoleStore is an in-memory implementation of storage.RoleStore.
type RoleStore struct {
	mu   sync.RWMutex
	data map[roles.ID]map[domain.Address]struct{}
}

// NewRoleStore creates a new in-memory role store.
func NewRoleStore() *RoleStore {
	return &RoleStore{
		data: make(map[roles.ID]map[domain.Address]struct{}),
	}
}

// Grant adds member to role. Idempotent.
func (s *RoleStore) Grant(_ context.Context, role roles.ID, member domain.Address) error {
	if role == "" || member.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members, exists := s.data[role]
	if !exists {
		members = make(map[domain.Address]struct{})
		s.data[role] = members
	}
	members[member] = struct{}{}
	return nil
}

// Revoke removes member from role. Revoking an unheld role is a no-op.
func (s *RoleStore) Revoke(_ context.Context, role roles.ID, member domain.Address) error {
	if role == "" || member.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if members, exists := s.data[role]; exists {
		delete(members, member)
	}
	return nil
}

// Has reports whether member holds role.
func (s *RoleStore) Has(_ context.Context, role roles.ID, member domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, exists := s.data[role]
	if !exists {
		return false, nil
	}
	_, held := members[member]
	return held, nil
}

// Members retrieves all members of a role, ordered by address ASC.
func (s *RoleStore) Members(_ context.Context, role roles.ID) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Address
	for member := range s.data[role] {
		result = append(result, member)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})

	return result, nil
}

var _ storage.RoleStore = (*RoleStore)(nil)
