// Package asset models the external payment collaborators: the fungible
// payment/threshold token and the native payment channel. The engine only
// depends on the interfaces; the in-memory implementations back tests and
// the dev server.
package asset

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"token-forge/internal/domain"
)

// Asset errors.
var (
	// ErrInsufficientFunds is returned when a transfer exceeds the sender's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientAllowance is returned when a transferFrom exceeds the
	// spender's approved allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Fungible is the conventional fungible-token surface the engine consumes:
// a balance oracle plus pull-payment via allowances.
type Fungible interface {
	// BalanceOf returns holder's balance.
	BalanceOf(ctx context.Context, holder domain.Address) (*uint256.Int, error)

	// Allowance returns how much spender may pull from owner.
	Allowance(ctx context.Context, owner, spender domain.Address) (*uint256.Int, error)

	// Approve sets spender's allowance over owner's balance.
	Approve(ctx context.Context, owner, spender domain.Address, amount *uint256.Int) error

	// Transfer moves amount from the caller to another holder.
	Transfer(ctx context.Context, from, to domain.Address, amount *uint256.Int) error

	// TransferFrom moves amount from; spends spender's allowance.
	// Returns ErrInsufficientAllowance or ErrInsufficientFunds on shortfall.
	TransferFrom(ctx context.Context, spender, from, to domain.Address, amount *uint256.Int) error
}

// NativeBank is the native payment channel: value attached to a purchase call
// is debited from the buyer and forwarded synchronously to the payee.
type NativeBank interface {
	// BalanceOf returns holder's native balance.
	BalanceOf(ctx context.Context, holder domain.Address) (*uint256.Int, error)

	// Transfer moves amount between accounts.
	// Returns ErrInsufficientFunds on shortfall.
	Transfer(ctx context.Context, from, to domain.Address, amount *uint256.Int) error
}
