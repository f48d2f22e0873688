package forge

import "errors"

// Engine errors. Every rejection is synchronous and non-retryable; a failed
// call leaves ledger state unchanged.
var (
	// ErrInsufficientPayment is returned when the native amount attached to a
	// purchase is below quantity × native fee.
	ErrInsufficientPayment = errors.New("insufficient payment")

	// ErrInsufficientAllowance is returned when the buyer has not approved
	// enough of the payment token to cover quantity × fungible fee.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrUnknownToken is returned when no record exists for a token id.
	ErrUnknownToken = errors.New("unknown token")

	// ErrNotYetEligible is returned when a burn is attempted before the
	// token's eligibility conditions hold.
	ErrNotYetEligible = errors.New("token not yet eligible for burning")

	// ErrUnauthorized is returned when the caller lacks the role a privileged
	// operation requires. Always checked before business-rule failures.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidQuantity is returned for zero quantities and mismatched
	// batch argument lengths.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInsufficientBalance is returned when a transfer or burn exceeds the
	// holder's balance of the token id.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrZeroAddress is returned when a transfer names the zero address as
	// sender or recipient. Units leave circulation only through burns.
	ErrZeroAddress = errors.New("zero address")
)
