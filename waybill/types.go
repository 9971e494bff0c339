/*
Package waybill implements the delivery-document lifecycle.

PURPOSE:
  A waybill authorizes asset quantities to move between the warehouse and a
  construction site. The state machine in machine.go drives every
  transition through the asset ledger so the stock partition stays exact;
  returns.go applies per-item condition outcomes coming back from the field.

TWO DOCUMENT TYPES, ONE MODEL:
  TypeWaybill  warehouse -> site. Creation reserves warehouse stock,
               send-to-site allocates it to the site, returns bring it
               back from the site.
  TypeReturn   site -> warehouse. Creation pulls stock from the site into
               the reserved pool (in transit back); processing its items
               as good releases reserved stock to available. There is no
               send step.

  A ReturnBill is not a third lifecycle: it is the receipt record written
  whenever returned items are processed against either document type. It
  references the waybill and never mutates counters itself.

SEE ALSO:
  - machine.go: create / edit / send / delete transitions
  - returns.go: condition routing and ReturnBill records
*/
package waybill

import (
	"context"
	"time"

	"github.com/depot/stock-engine/ledger"
)

// =============================================================================
// STATUSES
// =============================================================================

// Type distinguishes outbound waybills from site-to-warehouse returns.
type Type string

const (
	TypeWaybill Type = "waybill"
	TypeReturn  Type = "return"
)

// Status is the document lifecycle state.
// TypeWaybill:  outstanding -> sent_to_site -> partial_returned -> return_completed
// TypeReturn:   outstanding -> partial_returned -> return_completed
type Status string

const (
	StatusOutstanding     Status = "outstanding"
	StatusSentToSite      Status = "sent_to_site"
	StatusPartialReturned Status = "partial_returned"
	StatusReturnCompleted Status = "return_completed"
)

// ItemStatus tracks one line of the document.
type ItemStatus string

const (
	ItemOutstanding     ItemStatus = "outstanding"
	ItemPartialReturned ItemStatus = "partial_returned"
	ItemReturnCompleted ItemStatus = "return_completed"
	ItemLost            ItemStatus = "lost"    // entire quantity came back missing
	ItemDamaged         ItemStatus = "damaged" // entire quantity came back damaged
)

// =============================================================================
// DOCUMENTS
// =============================================================================

// ReturnBreakdown accumulates how returned quantity split by condition.
type ReturnBreakdown struct {
	Good    int64
	Damaged int64
	Missing int64
}

func (b ReturnBreakdown) Total() int64 { return b.Good + b.Damaged + b.Missing }

// Item is one line of a waybill. Items belong to exactly one waybill and
// never outlive it.
type Item struct {
	AssetID          ledger.AssetID
	Quantity         int64
	ReturnedQuantity int64
	Status           ItemStatus
	Breakdown        ReturnBreakdown
}

// Remaining is the quantity still out.
func (it *Item) Remaining() int64 { return it.Quantity - it.ReturnedQuantity }

// Waybill is the delivery document. The item order is the order lines were
// entered on the form and is preserved by the store.
type Waybill struct {
	ID     ledger.DocumentID
	Type   Type
	SiteID ledger.SiteID
	Status Status
	Items  []Item

	IssuedBy  string
	SentAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item returns a pointer to the line for an asset, or nil.
func (w *Waybill) Item(id ledger.AssetID) *Item {
	for i := range w.Items {
		if w.Items[i].AssetID == id {
			return &w.Items[i]
		}
	}
	return nil
}

// refreshStatus recomputes document status from item statuses: completed
// when every item is fully returned, partial while any item has started.
func (w *Waybill) refreshStatus() {
	complete := true
	started := false
	for i := range w.Items {
		if w.Items[i].Remaining() > 0 {
			complete = false
		}
		if w.Items[i].ReturnedQuantity > 0 {
			started = true
		}
	}
	switch {
	case complete:
		w.Status = StatusReturnCompleted
	case started:
		w.Status = StatusPartialReturned
	}
	// Otherwise keep outstanding/sent_to_site as-is.
}

// =============================================================================
// RETURN BILLS - Receipt records
// =============================================================================

// ReturnItem is one received line: quantity of an asset in a condition.
type ReturnItem struct {
	AssetID   ledger.AssetID
	Quantity  int64
	Condition ledger.Condition
}

// ReturnBill records one processed return against a waybill. Written by
// the ReturnProcessor in the same transaction as the counter updates;
// purely an audit document.
type ReturnBill struct {
	ID         ledger.DocumentID
	WaybillID  ledger.DocumentID
	Items      []ReturnItem
	ReceivedBy string
	CreatedAt  time.Time
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// Store is the document persistence the state machine needs. Both the
// SQLite store and the in-memory store satisfy it; the machine asserts for
// it on the transaction-scoped ledger.Store.
type Store interface {
	GetWaybill(ctx context.Context, id ledger.DocumentID) (*Waybill, error)
	SaveWaybill(ctx context.Context, w *Waybill) error
	DeleteWaybill(ctx context.Context, id ledger.DocumentID) error
	ListWaybills(ctx context.Context) ([]Waybill, error)

	SaveReturnBill(ctx context.Context, rb *ReturnBill) error
	ReturnBillsByWaybill(ctx context.Context, id ledger.DocumentID) ([]ReturnBill, error)
}
