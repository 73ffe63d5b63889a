/*
errors.go - Centralized error types for order tracking

ERROR CATEGORIES:
  1. Validation errors - Bad or duplicate order numbers, surfaced to callers of Add
  2. Persistence errors - Unreadable snapshots, swallowed on load

Resolution errors live in the resolver package; they never travel past a
single order's check.

USAGE:
  if errors.Is(err, tracker.ErrDuplicateOrder) {
      // already tracked
  }
*/
package tracker

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidOrderNumber is returned when an order number is empty or not all digits.
	ErrInvalidOrderNumber = errors.New("invalid order number")

	// ErrDuplicateOrder is returned when the order is already tracked.
	ErrDuplicateOrder = errors.New("order already tracked")

	// ErrOrderNotFound is returned when a referenced order is not tracked.
	ErrOrderNotFound = errors.New("order not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a rejected order number.
type ValidationError struct {
	OrderNumber string
	Err         error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.OrderNumber)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceReadError reports a snapshot that could not be read or decoded.
type PersistenceReadError struct {
	Key   string
	Cause error
}

func (e *PersistenceReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Key, e.Cause)
}

func (e *PersistenceReadError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidationError returns true if the error is due to invalid client input.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound returns true if the error indicates a missing order.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}
