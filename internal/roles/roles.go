// Package roles derives deterministic role identifiers from human-readable
// role names. An ID is computed once and treated as an opaque comparable key.
package roles

import (
	"crypto/sha256"
	"encoding/hex"
)

// ID is a role identifier: hex-encoded SHA-256 of the role name (64 characters).
type ID string

// ComputeID computes the deterministic identifier for a role name.
func ComputeID(name string) ID {
	hash := sha256.Sum256([]byte(name))
	return ID(hex.EncodeToString(hash[:]))
}

// Role names.
const (
	AdminRoleName  = "ADMIN_ROLE"
	BurnerRoleName = "BURNER_ROLE"
)

// Precomputed identifiers for the built-in roles.
var (
	Admin  = ComputeID(AdminRoleName)
	Burner = ComputeID(BurnerRoleName)
)
