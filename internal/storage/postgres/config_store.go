package postgres

import (
	"context"
	"fmt"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

// ConfigStore implements storage.ConfigStore using PostgreSQL.
type ConfigStore struct {
	pool *Pool
}

// NewConfigStore creates a new ConfigStore.
func NewConfigStore(pool *Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ConfigStore = (*ConfigStore)(nil)

// GetFees retrieves the fee configuration. Returns ErrNotFound if never set.
func (s *ConfigStore) GetFees(ctx context.Context) (*domain.FeeConfig, error) {
	query := `
		SELECT native_fee::TEXT, fungible_fee::TEXT, fee_recipient, updated_at
		FROM fee_config
		WHERE singleton
	`

	var (
		cfg         domain.FeeConfig
		nativeFee   string
		fungibleFee string
		recipient   string
	)
	err := s.pool.QueryRow(ctx, query).Scan(&nativeFee, &fungibleFee, &recipient, &cfg.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fee config: %w", err)
	}

	if cfg.NativeFee, err = scanAmount(nativeFee); err != nil {
		return nil, fmt.Errorf("get fee config: %w", err)
	}
	if cfg.FungibleFee, err = scanAmount(fungibleFee); err != nil {
		return nil, fmt.Errorf("get fee config: %w", err)
	}
	cfg.FeeRecipient = domain.Address(recipient)

	return &cfg, nil
}

// SetFees stores the fee configuration, replacing any previous one.
func (s *ConfigStore) SetFees(ctx context.Context, cfg *domain.FeeConfig) error {
	if cfg == nil || cfg.NativeFee == nil || cfg.FungibleFee == nil || cfg.FeeRecipient.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO fee_config (singleton, native_fee, fungible_fee, fee_recipient, updated_at)
		VALUES (TRUE, $1::NUMERIC, $2::NUMERIC, $3, $4)
		ON CONFLICT (singleton)
		DO UPDATE SET
			native_fee = EXCLUDED.native_fee,
			fungible_fee = EXCLUDED.fungible_fee,
			fee_recipient = EXCLUDED.fee_recipient,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		amountParam(cfg.NativeFee),
		amountParam(cfg.FungibleFee),
		string(cfg.FeeRecipient),
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set fee config: %w", err)
	}
	return nil
}

// ContractURI retrieves the contract-level metadata URI ("" if unset).
func (s *ConfigStore) ContractURI(ctx context.Context) (string, error) {
	var uri string
	err := s.pool.QueryRow(ctx, `SELECT contract_uri FROM contract_settings WHERE singleton`).Scan(&uri)
	if err != nil {
		if isNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("get contract uri: %w", err)
	}
	return uri, nil
}

// SetContractURI stores the contract-level metadata URI.
func (s *ConfigStore) SetContractURI(ctx context.Context, uri string) error {
	query := `
		INSERT INTO contract_settings (singleton, contract_uri)
		VALUES (TRUE, $1)
		ON CONFLICT (singleton)
		DO UPDATE SET contract_uri = EXCLUDED.contract_uri
	`

	if _, err := s.pool.Exec(ctx, query, uri); err != nil {
		return fmt.Errorf("set contract uri: %w", err)
	}
	return nil
}
