package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmerrifield20/agriledger/internal/ledger"
)

var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("invalid submission")

	// ErrStageOutOfOrder is wrapped by every *OrderError.
	ErrStageOutOfOrder = errors.New("stage out of order")

	// ErrNotFound is returned for a batch ID that has no blocks.
	ErrNotFound = errors.New("batch not found")

	// ErrBatchExists is returned when CreateBatch is given a batch ID already in use.
	ErrBatchExists = errors.New("batch already exists")
)

// ValidationError reports the first field of a submission that failed its schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// OrderError reports an action that is not the legal next step for a batch.
// Current is empty when the batch has no blocks yet.
type OrderError struct {
	BatchID  string
	Current  ledger.Stage
	Action   ledger.Action
	Expected []ledger.Action
}

func (e *OrderError) Error() string {
	current := string(e.Current)
	if current == "" {
		current = "absent"
	}
	if len(e.Expected) == 0 {
		return fmt.Sprintf("batch %s is %s: no further actions accepted, got %s", e.BatchID, current, e.Action)
	}
	want := make([]string, len(e.Expected))
	for i, a := range e.Expected {
		want[i] = string(a)
	}
	return fmt.Sprintf("batch %s is %s: expected %s, got %s",
		e.BatchID, current, strings.Join(want, " or "), e.Action)
}

func (e *OrderError) Unwrap() error { return ErrStageOutOfOrder }
