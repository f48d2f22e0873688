package domain

import "github.com/holiman/uint256"

// FeeConfig holds the per-unit purchase prices and the payee.
// Set at construction, mutated only through admin-gated engine calls.
type FeeConfig struct {
	NativeFee    *uint256.Int // per-unit price for native-asset purchases
	FungibleFee  *uint256.Int // per-unit price for fungible-token purchases
	FeeRecipient Address      // receives all purchase payments
	UpdatedAt    int64        // last mutation timestamp (ms)
}

// Clone returns a deep copy so callers cannot alias engine state.
func (c *FeeConfig) Clone() *FeeConfig {
	if c == nil {
		return nil
	}
	out := &FeeConfig{
		FeeRecipient: c.FeeRecipient,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.NativeFee != nil {
		out.NativeFee = new(uint256.Int).Set(c.NativeFee)
	}
	if c.FungibleFee != nil {
		out.FungibleFee = new(uint256.Int).Set(c.FungibleFee)
	}
	return out
}
