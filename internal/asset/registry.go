package asset

import (
	"context"
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"token-forge/internal/domain"
)

// ErrUnknownAsset is returned when a balance query names an unregistered asset.
var ErrUnknownAsset = errors.New("unknown asset")

// Registry maps asset addresses to fungible tokens and answers balance
// queries for arbitrary threshold assets.
type Registry struct {
	mu     sync.RWMutex
	assets map[domain.Address]Fungible
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[domain.Address]Fungible),
	}
}

// Register binds addr to a fungible token, replacing any previous binding.
func (r *Registry) Register(addr domain.Address, token Fungible) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.assets[addr] = token
}

// Lookup returns the token registered at addr.
func (r *Registry) Lookup(addr domain.Address) (Fungible, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.assets[addr]
	return token, ok
}

// BalanceOf returns holder's balance of the asset at assetAddr.
func (r *Registry) BalanceOf(ctx context.Context, assetAddr, holder domain.Address) (*uint256.Int, error) {
	token, ok := r.Lookup(assetAddr)
	if !ok {
		return nil, ErrUnknownAsset
	}
	return token.BalanceOf(ctx, holder)
}
