package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Token records are immutable.
	ErrDuplicateKey = errors.New("duplicate key: records are append-only")

	// ErrInsufficientBalance is returned when a balance decrement would
	// take a (tokenID, holder) entry below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
