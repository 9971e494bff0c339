/*
errors.go - Centralized error taxonomy for the stock engine

PURPOSE:
  Every rejection the engine can produce lives here, as a sentinel for
  errors.Is() plus a structured type carrying the numbers the caller needs
  to explain the rejection. Document packages (waybill, checkout) reuse
  these rather than inventing their own.

ERROR CATEGORIES:
  1. Stock errors      - insufficient stock, invalid quantities
  2. Document errors   - duplicate asset lines, bad lifecycle transitions
  3. Lookup errors     - unknown asset/document ids
  4. Internal errors   - partition invariant violations (always a bug)

FAILURE SEMANTICS:
  All of these are local and non-retryable: stock does not become valid by
  waiting, so there is no retry machinery. A failed operation aborts its
  transaction and leaves every counter untouched. Quantities are never
  silently clamped - the caller always gets the specific reason.

SEE ALSO:
  - ledger.go: Produces stock and invariant errors
  - waybill/machine.go: Produces document errors
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
	// ErrInsufficientStock is returned when a reservation or allocation
	// exceeds the pool it draws from.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidQuantity is returned for non-positive quantities or a return
	// exceeding the outstanding amount.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrDuplicateAsset is returned when one document lists the same asset
	// twice.
	ErrDuplicateAsset = errors.New("duplicate asset in document")

	// ErrInvalidTransition is returned when an operation is attempted on a
	// document in the wrong status (e.g. editing a sent-to-site waybill).
	ErrInvalidTransition = errors.New("invalid document transition")

	// ErrNotFound is returned for unknown asset or document ids.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation is returned when the partition check fails after
	// a mutation. It aborts the transaction and indicates a ledger bug,
	// never bad user input.
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrStoreCapability is returned when a store does not implement an
	// interface an operation needs (e.g. document persistence inside a
	// ledger transaction).
	ErrStoreCapability = errors.New("store does not support required capability")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the numbers behind the rejection
// =============================================================================

// InsufficientStockError reports a reservation/allocation that exceeds its
// source pool.
type InsufficientStockError struct {
	AssetID   AssetID
	Pool      Bucket // which pool was short
	SiteID    SiteID // set when Pool == BucketSite
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	if e.Pool == BucketSite {
		return fmt.Sprintf("insufficient stock for asset %s at site %s: requested %d, allocated %d",
			e.AssetID, e.SiteID, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for asset %s: requested %d, %s %d",
		e.AssetID, e.Requested, e.Pool, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidQuantityError reports a non-positive or over-remaining quantity.
type InvalidQuantityError struct {
	AssetID   AssetID
	Requested int64
	Remaining int64 // outstanding amount for return validation, -1 when n/a
	Reason    string
}

func (e *InvalidQuantityError) Error() string {
	if e.Remaining >= 0 {
		return fmt.Sprintf("invalid quantity %d for asset %s: %s (remaining %d)",
			e.Requested, e.AssetID, e.Reason, e.Remaining)
	}
	return fmt.Sprintf("invalid quantity %d for asset %s: %s", e.Requested, e.AssetID, e.Reason)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// DuplicateAssetError reports the same asset listed twice in one document.
type DuplicateAssetError struct {
	AssetID AssetID
}

func (e *DuplicateAssetError) Error() string {
	return fmt.Sprintf("asset %s listed more than once in document", e.AssetID)
}

func (e *DuplicateAssetError) Unwrap() error { return ErrDuplicateAsset }

// TransitionError reports an operation attempted in the wrong document status.
type TransitionError struct {
	DocumentID DocumentID
	Operation  string
	Status     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s document %s in status %q", e.Operation, e.DocumentID, e.Status)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError reports an unknown id. Kind is "asset", "waybill",
// "checkout" or "site".
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvariantViolationError carries the full partition at the moment the
// defensive check failed.
type InvariantViolationError struct {
	AssetID   AssetID
	Quantity  int64
	Available int64
	Reserved  int64
	SiteTotal int64
	Missing   int64
	Damaged   int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("partition invariant violated for asset %s: quantity %d != available %d + reserved %d + site %d + missing %d + damaged %d",
		e.AssetID, e.Quantity, e.Available, e.Reserved, e.SiteTotal, e.Missing, e.Damaged)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true when the error is an explicit rejection of the
// request rather than an engine failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrDuplicateAsset) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true for unknown-id errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
