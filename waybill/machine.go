/*
machine.go - Waybill lifecycle state machine

PURPOSE:
  Drives every quantity-affecting waybill transition through the asset
  ledger inside one store transaction, so the document and the partition
  counters commit together or not at all.

TRANSITIONS:

  create            reserve every line (TypeWaybill: from available;
                    TypeReturn: pulled off the site into reserved).
                    Any line failing aborts the whole creation.
  edit              outstanding only. Per-line delta: reserve the increase,
                    release the decrease; added lines reserve, removed
                    lines release in full. One failing delta aborts all.
  send_to_site      TypeWaybill, outstanding only. Allocates every line to
                    the site; status -> sent_to_site.
  delete            outstanding only. Releases every line in full (TypeReturn:
                    puts the stock back on the site) and removes the document.
  returns           delegated to ReturnProcessor (returns.go).

VALIDATION:
  Lines must have positive quantities and distinct assets. All stock checks
  happen in the ledger against stored counters - a stale client cannot
  oversell by racing another submission.

SEE ALSO:
  - returns.go: partial_returned / return_completed transitions
*/
package waybill

import (
	"context"
	"time"

	"github.com/depot/stock-engine/ledger"
)

// =============================================================================
// DRAFTS - What the (external) form submits
// =============================================================================

// DraftItem is one requested line.
type DraftItem struct {
	AssetID  ledger.AssetID
	Quantity int64
}

// Draft is a creation request. For TypeReturn, SiteID is the site the
// stock is coming back from.
type Draft struct {
	Type     Type
	SiteID   ledger.SiteID
	Items    []DraftItem
	IssuedBy string
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// StateMachine owns waybill transitions. All mutations go through the
// ledger; nothing here touches asset counters directly.
type StateMachine struct {
	ledger *ledger.AssetLedger
	store  ledger.TxStore
}

func NewStateMachine(l *ledger.AssetLedger) *StateMachine {
	return &StateMachine{ledger: l, store: l.Store()}
}

// Create reserves stock for every line and persists the document. No
// partial reservation: the first failing line rolls everything back.
func (m *StateMachine) Create(ctx context.Context, draft Draft) (*Waybill, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	w := &Waybill{
		ID:        ledger.NewDocumentID(),
		Type:      draft.Type,
		SiteID:    draft.SiteID,
		Status:    StatusOutstanding,
		IssuedBy:  draft.IssuedBy,
		CreatedAt: time.Now().UTC(),
	}
	w.UpdatedAt = w.CreatedAt
	for _, di := range draft.Items {
		w.Items = append(w.Items, Item{
			AssetID:  di.AssetID,
			Quantity: di.Quantity,
			Status:   ItemOutstanding,
		})
	}

	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		docs, ok := s.(Store)
		if !ok {
			return ledger.ErrStoreCapability
		}
		for _, it := range w.Items {
			if err := m.reserveLine(ctx, s, w, it.AssetID, it.Quantity); err != nil {
				return err
			}
		}
		return docs.SaveWaybill(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Edit replaces the item list of an outstanding waybill, reserving or
// releasing each line's delta. A quantity increase beyond current
// availability fails the whole edit and leaves the document unchanged.
func (m *StateMachine) Edit(ctx context.Context, id ledger.DocumentID, items []DraftItem) (*Waybill, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	var out *Waybill
	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		docs, ok := s.(Store)
		if !ok {
			return ledger.ErrStoreCapability
		}
		w, err := m.loadWaybill(ctx, docs, id)
		if err != nil {
			return err
		}
		if w.Status != StatusOutstanding {
			return &ledger.TransitionError{DocumentID: id, Operation: "edit", Status: string(w.Status)}
		}

		old := make(map[ledger.AssetID]int64, len(w.Items))
		for _, it := range w.Items {
			old[it.AssetID] = it.Quantity
		}

		// Reserve increases and new lines, release decreases.
		for _, di := range items {
			delta := di.Quantity - old[di.AssetID]
			switch {
			case delta > 0:
				if err := m.reserveLine(ctx, s, w, di.AssetID, delta); err != nil {
					return err
				}
			case delta < 0:
				if err := m.releaseLine(ctx, s, w, di.AssetID, -delta); err != nil {
					return err
				}
			}
			delete(old, di.AssetID)
		}
		// Whatever is left was removed entirely.
		for assetID, qty := range old {
			if err := m.releaseLine(ctx, s, w, assetID, qty); err != nil {
				return err
			}
		}

		w.Items = w.Items[:0]
		for _, di := range items {
			w.Items = append(w.Items, Item{
				AssetID:  di.AssetID,
				Quantity: di.Quantity,
				Status:   ItemOutstanding,
			})
		}
		w.UpdatedAt = time.Now().UTC()
		if err := docs.SaveWaybill(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendToSite allocates every line to the document's site and marks the
// waybill sent. Only outbound waybills have a send step.
func (m *StateMachine) SendToSite(ctx context.Context, id ledger.DocumentID, date time.Time) (*Waybill, error) {
	var out *Waybill
	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		docs, ok := s.(Store)
		if !ok {
			return ledger.ErrStoreCapability
		}
		w, err := m.loadWaybill(ctx, docs, id)
		if err != nil {
			return err
		}
		if w.Type != TypeWaybill {
			return &ledger.TransitionError{DocumentID: id, Operation: "send to site", Status: string(w.Type)}
		}
		if w.Status != StatusOutstanding {
			return &ledger.TransitionError{DocumentID: id, Operation: "send to site", Status: string(w.Status)}
		}

		for _, it := range w.Items {
			if err := m.ledger.AllocateToSiteTx(ctx, s, it.AssetID, w.SiteID, it.Quantity, w.ID); err != nil {
				return err
			}
		}

		w.Status = StatusSentToSite
		sent := date.UTC()
		w.SentAt = &sent
		w.UpdatedAt = time.Now().UTC()
		if err := docs.SaveWaybill(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete releases every line's full reservation and removes the document.
// Only outstanding waybills can be deleted.
func (m *StateMachine) Delete(ctx context.Context, id ledger.DocumentID) error {
	return m.store.WithTx(ctx, func(s ledger.Store) error {
		docs, ok := s.(Store)
		if !ok {
			return ledger.ErrStoreCapability
		}
		w, err := m.loadWaybill(ctx, docs, id)
		if err != nil {
			return err
		}
		if w.Status != StatusOutstanding {
			return &ledger.TransitionError{DocumentID: id, Operation: "delete", Status: string(w.Status)}
		}
		for _, it := range w.Items {
			if err := m.releaseLine(ctx, s, w, it.AssetID, it.Quantity); err != nil {
				return err
			}
		}
		return docs.DeleteWaybill(ctx, id)
	})
}

// Get returns a waybill by id.
func (m *StateMachine) Get(ctx context.Context, id ledger.DocumentID) (*Waybill, error) {
	docs, ok := m.store.(Store)
	if !ok {
		return nil, ledger.ErrStoreCapability
	}
	return m.loadWaybill(ctx, docs, id)
}

// List returns all waybills.
func (m *StateMachine) List(ctx context.Context) ([]Waybill, error) {
	docs, ok := m.store.(Store)
	if !ok {
		return nil, ledger.ErrStoreCapability
	}
	return docs.ListWaybills(ctx)
}

// =============================================================================
// INTERNALS
// =============================================================================

// reserveLine commits stock to the document: outbound waybills draw from
// the warehouse pool, return waybills pull it off the site.
func (m *StateMachine) reserveLine(ctx context.Context, s ledger.Store, w *Waybill, assetID ledger.AssetID, qty int64) error {
	if w.Type == TypeReturn {
		return m.ledger.DeallocateFromSiteTx(ctx, s, assetID, w.SiteID, qty, ledger.BucketReserved, w.ID)
	}
	return m.ledger.ReserveTx(ctx, s, assetID, qty, w.ID)
}

// releaseLine is the exact inverse of reserveLine.
func (m *StateMachine) releaseLine(ctx context.Context, s ledger.Store, w *Waybill, assetID ledger.AssetID, qty int64) error {
	if w.Type == TypeReturn {
		return m.ledger.AllocateToSiteTx(ctx, s, assetID, w.SiteID, qty, w.ID)
	}
	return m.ledger.ReleaseTx(ctx, s, assetID, qty, w.ID)
}

func (m *StateMachine) loadWaybill(ctx context.Context, docs Store, id ledger.DocumentID) (*Waybill, error) {
	w, err := docs.GetWaybill(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &ledger.NotFoundError{Kind: "waybill", ID: string(id)}
	}
	return w, nil
}

func validateDraft(d Draft) error {
	if d.Type != TypeWaybill && d.Type != TypeReturn {
		return &ledger.InvalidQuantityError{Requested: 0, Remaining: -1, Reason: "unknown waybill type " + string(d.Type)}
	}
	if d.SiteID == "" {
		return &ledger.NotFoundError{Kind: "site", ID: ""}
	}
	return validateItems(d.Items)
}

// validateItems rejects empty documents, non-positive quantities and
// duplicate asset lines before any counter is touched.
func validateItems(items []DraftItem) error {
	if len(items) == 0 {
		return &ledger.InvalidQuantityError{Requested: 0, Remaining: -1, Reason: "document has no items"}
	}
	seen := make(map[ledger.AssetID]bool, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return &ledger.InvalidQuantityError{AssetID: it.AssetID, Requested: it.Quantity, Remaining: -1, Reason: "quantity must be positive"}
		}
		if seen[it.AssetID] {
			return &ledger.DuplicateAssetError{AssetID: it.AssetID}
		}
		seen[it.AssetID] = true
	}
	return nil
}
