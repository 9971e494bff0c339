/*
Package checkout implements the fast path for handing single assets to
employees without drafting a waybill.

PURPOSE:
  A quick checkout is the "grab a drill for the afternoon" flow. It skips
  the waybill lifecycle entirely: stock never moves to a site bucket, it
  sits in the reserved pool under the employee's name until it comes back.

LIFECYCLE:
  checkout          available -> reserved, status outstanding
  return (good)     reserved -> available, status return_completed
  return (damaged)  reserved -> damagedCount, status damaged
  return (missing)  reserved -> missingCount, status lost

KEY DIFFERENCES FROM WAYBILLS:
  1. One asset per document, no line items
  2. No editing: a checkout is created and then returned, nothing else
  3. Returns may still be partial - three drills out, two come back today
  4. A due date, so the registry can report overdue checkouts

SEE ALSO:
  - registry.go: the operations
  - waybill/: the full document lifecycle for site deliveries
*/
package checkout

import (
	"context"
	"time"

	"github.com/depot/stock-engine/ledger"
)

// =============================================================================
// QUICK CHECKOUT
// =============================================================================

// Status tracks a checkout from hand-out to resolution.
type Status string

const (
	StatusOutstanding     Status = "outstanding"
	StatusReturnCompleted Status = "return_completed"
	StatusLost            Status = "lost"    // entire quantity reported missing
	StatusDamaged         Status = "damaged" // entire quantity came back damaged
)

// QuickCheckout is a single-asset hand-out to an employee.
type QuickCheckout struct {
	ID               ledger.DocumentID
	AssetID          ledger.AssetID
	Quantity         int64
	ReturnedQuantity int64
	MissingQuantity  int64
	DamagedQuantity  int64
	Employee         string
	Status           Status
	DueAt            *time.Time
	CheckedOutAt     time.Time
	ReturnedAt       *time.Time
}

// Remaining is the quantity still out with the employee.
func (c *QuickCheckout) Remaining() int64 {
	return c.Quantity - c.ReturnedQuantity - c.MissingQuantity - c.DamagedQuantity
}

// Overdue reports whether the checkout is past its due date and still open.
func (c *QuickCheckout) Overdue(now time.Time) bool {
	return c.Status == StatusOutstanding && c.DueAt != nil && now.After(*c.DueAt)
}

// =============================================================================
// STORE CAPABILITY
// =============================================================================

// Store is the persistence capability for checkouts. Transaction-scoped
// ledger stores are asserted to this interface, the same way the waybill
// package reaches its documents.
type Store interface {
	GetCheckout(ctx context.Context, id ledger.DocumentID) (*QuickCheckout, error)
	SaveCheckout(ctx context.Context, c *QuickCheckout) error
	ListCheckouts(ctx context.Context) ([]QuickCheckout, error)
}
