package domain

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// Address identifies an account. Opaque to the engine; the execution host
// decides what it actually is (the dev harness uses base58-encoded random keys).
type Address string

// ZeroAddress is the absent/unset address.
const ZeroAddress Address = ""

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// GenerateAddress returns a fresh random base58-encoded 32-byte address.
// Used by the dev server and test fixtures.
func GenerateAddress() (Address, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ZeroAddress, fmt.Errorf("generate address: %w", err)
	}
	return Address(base58.Encode(buf[:])), nil
}

// MustGenerateAddress is GenerateAddress for fixtures where failure is fatal.
func MustGenerateAddress() Address {
	addr, err := GenerateAddress()
	if err != nil {
		panic(err)
	}
	return addr
}
