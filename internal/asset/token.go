package asset

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"token-forge/internal/domain"
)

// Token is an in-memory fungible token with standard
// transfer/approve/transferFrom semantics.
type Token struct {
	symbol string

	mu         sync.RWMutex
	balances   map[domain.Address]*uint256.Int
	allowances map[string]*uint256.Int // keyed by owner|spender
}

// NewToken creates a token with zero supply.
func NewToken(symbol string) *Token {
	return &Token{
		symbol:     symbol,
		balances:   make(map[domain.Address]*uint256.Int),
		allowances: make(map[string]*uint256.Int),
	}
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string {
	return t.symbol
}

// allowanceKey generates a unique key for an (owner, spender) pair.
func allowanceKey(owner, spender domain.Address) string {
	return fmt.Sprintf("%s|%s", owner, spender)
}

// Mint credits amount to holder, growing total supply.
func (t *Token) Mint(_ context.Context, holder domain.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(holder, amount)
	return nil
}

// BalanceOf returns holder's balance.
func (t *Token) BalanceOf(_ context.Context, holder domain.Address) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if bal, ok := t.balances[holder]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return uint256.NewInt(0), nil
}

// Allowance returns how much spender may pull from owner.
func (t *Token) Allowance(_ context.Context, owner, spender domain.Address) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if a, ok := t.allowances[allowanceKey(owner, spender)]; ok {
		return new(uint256.Int).Set(a), nil
	}
	return uint256.NewInt(0), nil
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(_ context.Context, owner, spender domain.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allowances[allowanceKey(owner, spender)] = new(uint256.Int).Set(amount)
	return nil
}

// Transfer moves amount from the caller to another holder.
func (t *Token) Transfer(_ context.Context, from, to domain.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.move(from, to, amount)
}

// TransferFrom moves amount spending spender's allowance over from's balance.
func (t *Token) TransferFrom(_ context.Context, spender, from, to domain.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey(from, spender)
	allowance, ok := t.allowances[key]
	if !ok || allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}

	if err := t.move(from, to, amount); err != nil {
		return err
	}

	allowance.Sub(allowance, amount)
	return nil
}

// move transfers balance between accounts. Caller holds the lock.
func (t *Token) move(from, to domain.Address, amount *uint256.Int) error {
	bal, ok := t.balances[from]
	if !ok || bal.Lt(amount) {
		return ErrInsufficientFunds
	}

	bal.Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

// credit adds amount to holder's balance. Caller holds the lock.
func (t *Token) credit(holder domain.Address, amount *uint256.Int) {
	if bal, ok := t.balances[holder]; ok {
		bal.Add(bal, amount)
		return
	}
	t.balances[holder] = new(uint256.Int).Set(amount)
}

var _ Fungible = (*Token)(nil)
