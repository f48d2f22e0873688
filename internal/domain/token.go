package domain

import "github.com/holiman/uint256"

// TokenRecord describes one minted batch of the semi-fungible token.
// Corresponds to token_records table in PostgreSQL. Immutable once created.
type TokenRecord struct {
	ID              uint64       // monotonically increasing, starts at 0
	ContentRef      string       // opaque content-addressed reference, stored verbatim
	ThresholdAsset  *Address     // fungible asset checked for burn exemption (nil = no check)
	ThresholdAmount *uint256.Int // minimum balance that keeps the holder burn-exempt
	Expiry          int64        // unix ms; time lock satisfied once now >= Expiry
	CreatedAt       int64        // record creation timestamp (ms)
}

// HasThreshold reports whether the record carries a fungible-balance gate.
func (r *TokenRecord) HasThreshold() bool {
	return r.ThresholdAsset != nil && *r.ThresholdAsset != ""
}

// BalanceEntry is one (holder, tokenID) row of the multi-token ledger.
type BalanceEntry struct {
	TokenID  uint64
	Holder   Address
	Quantity uint64 // always > 0 for a stored entry; zero entries are removed
}
