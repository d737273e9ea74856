package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyLedger is returned by any operation that needs a genesis block
	// before Genesis has run.
	ErrEmptyLedger = errors.New("ledger has no genesis block")

	// ErrGenesisExists is returned by a second call to Genesis.
	ErrGenesisExists = errors.New("genesis block already exists")

	// ErrNotFound is returned when no block exists at the requested index or hash.
	ErrNotFound = errors.New("block not found")

	// ErrInvalidPayload is returned by Append for payloads that cannot be stored.
	ErrInvalidPayload = errors.New("invalid block payload")

	// ErrIntegrityViolation marks a ledger whose hash chain no longer verifies.
	ErrIntegrityViolation = errors.New("ledger integrity violation")
)

var (
	errInvalidUTF8 = errors.New("is not valid UTF-8")
	errNUL         = errors.New("contains a NUL character")
)

// IntegrityError reports the earliest block at which the chain fails to verify.
type IntegrityError struct {
	Index  int
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger tampered at index %d: %s", e.Index, e.Reason)
}

// Unwrap lets errors.Is match ErrIntegrityViolation.
func (e *IntegrityError) Unwrap() error { return ErrIntegrityViolation }
