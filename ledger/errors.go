/*
errors.go - Error types for the ledger core

PURPOSE:
  Every failure a ledger operation can report, in one place. Callers match on
  the sentinels with errors.Is and read details from the structured types with
  errors.As.

ERROR CATEGORIES:
  1. Validation - bad input or a business rule violation (overpayment)
  2. Authentication - write attempted without an acting user
  3. State - invoice is cancelled, or its version moved under us
  4. Store - persistence failures, not found, uniqueness

  Cash mirror failures are deliberately absent: they are logged, never
  returned (see cash.go).

SEE ALSO:
  - api/handlers.go: maps these to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input and rejected amounts.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated is returned when a write has no acting user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned when a referenced row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned on a uniqueness violation (invoice number, id).
	ErrDuplicate = errors.New("duplicate")

	// ErrInvalidState is returned when an operation is not allowed in the
	// invoice's current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrConcurrentModification is returned when an invoice version check fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStore is returned for any other persistence failure.
	ErrStore = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OverpaymentError is a validation failure where a payment exceeds what is
// still owed. Its message is shown to users as is.
type OverpaymentError struct {
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding balance %s",
		e.Requested.StringFixed(2), e.Remaining.StringFixed(2))
}

func (e *OverpaymentError) Unwrap() error { return ErrValidation }

type AuthError struct {
	Op string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: no authenticated user", e.Op)
}

func (e *AuthError) Unwrap() error { return ErrUnauthenticated }

// InvalidStateError reports an operation rejected by invoice status.
type InvalidStateError struct {
	InvoiceID string
	Status    InvoiceStatus
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invoice %s is %s", e.Op, e.InvoiceID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// StoreError wraps a persistence failure. It matches ErrStore and anything
// the wrapped error matches, so errors.Is(err, ErrNotFound) still works
// through it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// storeErr wraps err unless it is nil or already a StoreError.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
