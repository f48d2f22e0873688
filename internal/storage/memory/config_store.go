package memory

import (
	"context"
	"sync"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

// ConfigStore is an in-memory implementation of storage.ConfigStore.
type ConfigStore struct {
	mu          sync.RWMutex
	fees        *domain.FeeConfig
	contractURI string
}

// NewConfigStore creates a new in-memory config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

// GetFees retrieves the fee configuration. Returns ErrNotFound if never set.
func (s *ConfigStore) GetFees(_ context.Context) (*domain.FeeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.fees == nil {
		return nil, storage.ErrNotFound
	}
	return s.fees.Clone(), nil
}

// SetFees stores the fee configuration, replacing any previous one.
func (s *ConfigStore) SetFees(_ context.Context, cfg *domain.FeeConfig) error {
	if cfg == nil || cfg.NativeFee == nil || cfg.FungibleFee == nil || cfg.FeeRecipient.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fees = cfg.Clone()
	return nil
}

// ContractURI retrieves the contract-level metadata URI ("" if unset).
func (s *ConfigStore) ContractURI(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.contractURI, nil
}

// SetContractURI stores the contract-level metadata URI.
func (s *ConfigStore) SetContractURI(_ context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contractURI = uri
	return nil
}

var _ storage.ConfigStore = (*ConfigStore)(nil)
