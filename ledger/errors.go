/*
errors.go - Error types for the nursery ledger

ERROR CATEGORIES:
  1. NotFound - A referenced tree type, location or lot does not exist
  2. InsufficientStock - A transfer or sale asked for more than is available
  3. InvalidInput - Non-positive quantity, negative price, bad date
  4. StoreFailure - The persistence layer failed (constraint, I/O, driver)

NotFound and InsufficientStock are expected outcomes: the operation did
not apply and nothing changed. Callers check them with errors.Is / errors.As
and report them to the user. StoreFailure aborts the command.

USAGE:
  _, err := l.RecordSale(ctx, in)
  var short *ledger.InsufficientStockError
  if errors.As(err, &short) {
      fmt.Printf("only %d available\n", short.Available)
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when a move or sale exceeds what is available.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidInput is returned for malformed or out-of-range input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreFailure wraps persistence failures.
	ErrStoreFailure = errors.New("store failure")

	// ErrDuplicateName is returned when a tree type or location name is taken.
	ErrDuplicateName = errors.New("name already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Entity kinds used in NotFoundError.
const (
	KindTreeType    = "tree type"
	KindLocation    = "location"
	KindStock       = "stock"
	KindTransaction = "transaction"
)

// NotFoundError names the missing row.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InsufficientStockError describes a shortage.
// StockID is set for transfers (single lot), zero for sales (all lots of a type).
type InsufficientStockError struct {
	TreeTypeID TreeTypeID
	StockID    StockID
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Error() string {
	if e.StockID != 0 {
		return fmt.Sprintf("insufficient stock in lot %d: available %d, requested %d",
			e.StockID, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock of tree type %d: available %d, requested %d, shortfall %d",
		e.TreeTypeID, e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// StoreError wraps a driver error with the operation that failed.
// It matches both ErrStoreFailure and the underlying error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreFailure, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// NewStoreError wraps err unless it is nil or already a ledger error.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || errors.Is(err, ErrStoreFailure) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to the request, not the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicateName)
}

func invalid(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}
