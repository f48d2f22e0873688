package storage

import (
	"context"

	"token-forge/internal/domain"
	"token-forge/internal/roles"
)

// TokenRecordStore provides access to token_records storage.
// Records are immutable once inserted; ids are allocated strictly
// increasing from 0 and never reused.
type TokenRecordStore interface {
	// NextID allocates and returns the next token id.
	NextID(ctx context.Context) (uint64, error)

	// CurrentID returns the next id that NextID would allocate (0 on a fresh store).
	CurrentID(ctx context.Context) (uint64, error)

	// Insert adds a new record. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, r *domain.TokenRecord) error

	// GetByID retrieves a record by token id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tokenID uint64) (*domain.TokenRecord, error)
}

// BalanceStore provides access to the (tokenID, holder) → quantity ledger.
type BalanceStore interface {
	// Get returns the holder's quantity of tokenID. Absent entries read as 0.
	Get(ctx context.Context, tokenID uint64, holder domain.Address) (uint64, error)

	// Add increments the holder's quantity of tokenID by qty, creating the entry
	// if needed.
	Add(ctx context.Context, tokenID uint64, holder domain.Address, qty uint64) error

	// Sub decrements the holder's quantity of tokenID by qty, removing the entry
	// when it reaches zero. Returns ErrInsufficientBalance if qty exceeds the
	// current quantity.
	Sub(ctx context.Context, tokenID uint64, holder domain.Address, qty uint64) error

	// TotalSupply returns the sum of all balance entries for tokenID.
	TotalSupply(ctx context.Context, tokenID uint64) (uint64, error)

	// ListByHolder retrieves all entries for a holder, ordered by token id ASC.
	ListByHolder(ctx context.Context, holder domain.Address) ([]*domain.BalanceEntry, error)
}

// RoleStore provides access to role membership storage.
type RoleStore interface {
	// Grant adds member to role. Idempotent.
	Grant(ctx context.Context, role roles.ID, member domain.Address) error

	// Revoke removes member from role. Revoking an unheld role is a no-op.
	Revoke(ctx context.Context, role roles.ID, member domain.Address) error

	// Has reports whether member holds role.
	Has(ctx context.Context, role roles.ID, member domain.Address) (bool, error)

	// Members retrieves all members of a role, ordered by address ASC.
	Members(ctx context.Context, role roles.ID) ([]domain.Address, error)
}

// ConfigStore provides access to the fee configuration and contract settings.
type ConfigStore interface {
	// GetFees retrieves the fee configuration. Returns ErrNotFound if never set.
	GetFees(ctx context.Context) (*domain.FeeConfig, error)

	// SetFees stores the fee configuration, replacing any previous one.
	SetFees(ctx context.Context, cfg *domain.FeeConfig) error

	// ContractURI retrieves the contract-level metadata URI ("" if unset).
	ContractURI(ctx context.Context) (string, error)

	// SetContractURI stores the contract-level metadata URI.
	SetContractURI(ctx context.Context, uri string) error
}

// ApprovalStore provides access to (owner, operator) transfer approvals.
type ApprovalStore interface {
	// Set records whether operator may transfer on behalf of owner.
	Set(ctx context.Context, owner, operator domain.Address, approved bool) error

	// IsApproved reports whether operator may transfer on behalf of owner.
	IsApproved(ctx context.Context, owner, operator domain.Address) (bool, error)
}
