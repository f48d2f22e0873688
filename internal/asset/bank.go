package asset

import (
	"context"
	"sync"

	"github.com/holiman/uint256"

	"token-forge/internal/domain"
)

// Bank is an in-memory native-asset account book.
type Bank struct {
	mu       sync.RWMutex
	balances map[domain.Address]*uint256.Int
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[domain.Address]*uint256.Int),
	}
}

// Deposit credits amount to holder.
func (b *Bank) Deposit(_ context.Context, holder domain.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bal, ok := b.balances[holder]; ok {
		bal.Add(bal, amount)
		return nil
	}
	b.balances[holder] = new(uint256.Int).Set(amount)
	return nil
}

// BalanceOf returns holder's native balance.
func (b *Bank) BalanceOf(_ context.Context, holder domain.Address) (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if bal, ok := b.balances[holder]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return uint256.NewInt(0), nil
}

// Transfer moves amount between accounts.
func (b *Bank) Transfer(_ context.Context, from, to domain.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, ok := b.balances[from]
	if !ok || bal.Lt(amount) {
		return ErrInsufficientFunds
	}

	bal.Sub(bal, amount)
	if toBal, exists := b.balances[to]; exists {
		toBal.Add(toBal, amount)
	} else {
		b.balances[to] = new(uint256.Int).Set(amount)
	}
	return nil
}

var _ NativeBank = (*Bank)(nil)
