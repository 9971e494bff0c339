/*
registry.go - Quick checkout operations

PURPOSE:
  Creates checkouts and processes their returns. Every operation runs in a
  single ledger transaction so the document and the stock counters commit
  together.
*/
package checkout

import (
	"context"
	"time"

	"github.com/depot/stock-engine/ledger"
)

// Registry runs the quick checkout flow on top of the asset ledger.
type Registry struct {
	ledger *ledger.AssetLedger
	store  ledger.TxStore
}

func NewRegistry(l *ledger.AssetLedger) *Registry {
	return &Registry{ledger: l, store: l.Store()}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Request describes a new checkout.
type Request struct {
	AssetID  ledger.AssetID
	Quantity int64
	Employee string
	DueAt    *time.Time
}

// Checkout reserves stock under the employee's name. Fails when the
// available pool cannot cover the quantity.
func (r *Registry) Checkout(ctx context.Context, req Request) (*QuickCheckout, error) {
	if req.Employee == "" {
		return nil, &ledger.InvalidQuantityError{AssetID: req.AssetID, Requested: req.Quantity, Remaining: -1,
			Reason: "checkout requires an employee"}
	}
	c := &QuickCheckout{
		ID:           ledger.NewDocumentID(),
		AssetID:      req.AssetID,
		Quantity:     req.Quantity,
		Employee:     req.Employee,
		Status:       StatusOutstanding,
		DueAt:        req.DueAt,
		CheckedOutAt: time.Now().UTC(),
	}
	err := r.store.WithTx(ctx, func(s ledger.Store) error {
		docs, ok := s.(Store)
		if !ok {
			return ledger.ErrStoreCapability
		}
		if err := r.ledger.ReserveTx(ctx, s, c.AssetID, c.Quantity, c.ID); err != nil {
			return err
		}
		return docs.SaveCheckout(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Return brings quantity back in the given condition. Partial returns
// leave the checkout outstanding; the final return resolves the status
// from what actually came back.
func (r *Registry) Return(ctx context.Context, id ledger.DocumentID, qty int64, cond ledger.Condition) (*QuickCheckout, error) {
	var out *QuickCheckout
	err := r.store.WithTx(ctx, func(s ledger.Store) error {
		docs, ok := s.(Store)
		if !ok {
			return ledger.ErrStoreCapability
		}
		c, err := docs.GetCheckout(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return &ledger.NotFoundError{Kind: "checkout", ID: string(id)}
		}
		if c.Status != StatusOutstanding {
			return &ledger.TransitionError{DocumentID: c.ID, Operation: "return checkout", Status: string(c.Status)}
		}
		if !cond.Valid() {
			return &ledger.InvalidQuantityError{AssetID: c.AssetID, Requested: qty, Remaining: -1,
				Reason: "unknown condition " + string(cond)}
		}
		if qty <= 0 || qty > c.Remaining() {
			return &ledger.InvalidQuantityError{AssetID: c.AssetID, Requested: qty,
				Remaining: c.Remaining(), Reason: "return exceeds outstanding quantity"}
		}

		switch cond {
		case ledger.ConditionGood:
			if err := r.ledger.ReleaseTx(ctx, s, c.AssetID, qty, c.ID); err != nil {
				return err
			}
			c.ReturnedQuantity += qty
		case ledger.ConditionDamaged:
			if err := r.ledger.RecordLossTx(ctx, s, c.AssetID, ledger.BucketReserved, "", qty, ledger.LossDamaged, c.ID); err != nil {
				return err
			}
			c.DamagedQuantity += qty
		case ledger.ConditionMissing:
			if err := r.ledger.RecordLossTx(ctx, s, c.AssetID, ledger.BucketReserved, "", qty, ledger.LossMissing, c.ID); err != nil {
				return err
			}
			c.MissingQuantity += qty
		}

		if c.Remaining() == 0 {
			now := time.Now().UTC()
			c.ReturnedAt = &now
			c.Status = resolution(c)
		}
		if err := docs.SaveCheckout(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches a checkout by ID.
func (r *Registry) Get(ctx context.Context, id ledger.DocumentID) (*QuickCheckout, error) {
	docs, ok := r.store.(Store)
	if !ok {
		return nil, ledger.ErrStoreCapability
	}
	c, err := docs.GetCheckout(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &ledger.NotFoundError{Kind: "checkout", ID: string(id)}
	}
	return c, nil
}

// List returns all checkouts.
func (r *Registry) List(ctx context.Context) ([]QuickCheckout, error) {
	docs, ok := r.store.(Store)
	if !ok {
		return nil, ledger.ErrStoreCapability
	}
	return docs.ListCheckouts(ctx)
}

// Overdue lists outstanding checkouts past their due date.
func (r *Registry) Overdue(ctx context.Context, now time.Time) ([]QuickCheckout, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []QuickCheckout
	for _, c := range all {
		if c.Overdue(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// resolution derives the terminal status once nothing remains out.
func resolution(c *QuickCheckout) Status {
	switch {
	case c.MissingQuantity == c.Quantity:
		return StatusLost
	case c.DamagedQuantity == c.Quantity:
		return StatusDamaged
	}
	return StatusReturnCompleted
}
