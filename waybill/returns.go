/*
returns.go - Processing returned stock against a waybill

PURPOSE:
  Applies per-item condition outcomes back into the ledger and updates the
  waybill. The whole return is validated first and applied atomically: one
  bad line rejects everything, nothing is partially written, and quantities
  are never clamped.

CONDITION ROUTING:
  TypeWaybill (stock is at the site):
    good     site -> available
    damaged  site -> damagedCount
    missing  site -> missingCount
  TypeReturn (stock is in the reserved pool, in transit back):
    good     reserved -> available
    damaged  reserved -> damagedCount
    missing  reserved -> missingCount

  Every processed return also writes a ReturnBill receipt in the same
  transaction.

SEE ALSO:
  - machine.go: the transitions that put stock out in the first place
*/
package waybill

import (
	"context"
	"time"

	"github.com/depot/stock-engine/ledger"
)

// ReturnLine is one line of a return request.
type ReturnLine struct {
	AssetID   ledger.AssetID
	Quantity  int64
	Condition ledger.Condition
}

// ReturnProcessor applies returns. Like the state machine it never touches
// counters directly - everything routes through the ledger.
type ReturnProcessor struct {
	ledger *ledger.AssetLedger
	store  ledger.TxStore
}

func NewReturnProcessor(l *ledger.AssetLedger) *ReturnProcessor {
	return &ReturnProcessor{ledger: l, store: l.Store()}
}

// Process validates and applies a return against the waybill. An item may
// appear on several lines, one per condition. Lines with zero quantity are
// permitted and skipped; a negative line, or lines totaling more than an
// item's remaining quantity, rejects the whole return. Returns the updated
// waybill.
func (p *ReturnProcessor) Process(ctx context.Context, waybillID ledger.DocumentID, lines []ReturnLine, receivedBy string) (*Waybill, error) {
	var out *Waybill
	err := p.store.WithTx(ctx, func(s ledger.Store) error {
		docs, ok := s.(Store)
		if !ok {
			return ledger.ErrStoreCapability
		}
		w, err := docs.GetWaybill(ctx, waybillID)
		if err != nil {
			return err
		}
		if w == nil {
			return &ledger.NotFoundError{Kind: "waybill", ID: string(waybillID)}
		}
		if err := returnableStatus(w); err != nil {
			return err
		}
		if err := validateLines(w, lines); err != nil {
			return err
		}

		rb := &ReturnBill{
			ID:         ledger.NewDocumentID(),
			WaybillID:  w.ID,
			ReceivedBy: receivedBy,
			CreatedAt:  time.Now().UTC(),
		}

		for _, line := range lines {
			if line.Quantity == 0 {
				continue
			}
			if err := p.applyLine(ctx, s, w, line); err != nil {
				return err
			}
			rb.Items = append(rb.Items, ReturnItem(line))
		}
		if len(rb.Items) == 0 {
			return &ledger.InvalidQuantityError{Requested: 0, Remaining: -1, Reason: "return has no quantities"}
		}

		w.refreshStatus()
		w.UpdatedAt = rb.CreatedAt
		if err := docs.SaveWaybill(ctx, w); err != nil {
			return err
		}
		if err := docs.SaveReturnBill(ctx, rb); err != nil {
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

// ReturnAll processes the remaining outstanding quantity of every item in
// good condition. Convenience path only - it runs the exact same
// validation and routing as Process.
func (p *ReturnProcessor) ReturnAll(ctx context.Context, waybillID ledger.DocumentID, receivedBy string) (*Waybill, error) {
	w, err := p.getWaybill(ctx, waybillID)
	if err != nil {
		return nil, err
	}
	var lines []ReturnLine
	for _, it := range w.Items {
		lines = append(lines, ReturnLine{
			AssetID:   it.AssetID,
			Quantity:  it.Remaining(),
			Condition: ledger.ConditionGood,
		})
	}
	return p.Process(ctx, waybillID, lines, receivedBy)
}

// History returns the ReturnBill receipts recorded against a waybill.
func (p *ReturnProcessor) History(ctx context.Context, waybillID ledger.DocumentID) ([]ReturnBill, error) {
	docs, ok := p.store.(Store)
	if !ok {
		return nil, ledger.ErrStoreCapability
	}
	if _, err := p.getWaybill(ctx, waybillID); err != nil {
		return nil, err
	}
	return docs.ReturnBillsByWaybill(ctx, waybillID)
}

// =============================================================================
// INTERNALS
// =============================================================================

// applyLine routes one validated line through the ledger and updates the
// waybill item in memory.
func (p *ReturnProcessor) applyLine(ctx context.Context, s ledger.Store, w *Waybill, line ReturnLine) error {
	item := w.Item(line.AssetID)

	switch {
	case line.Condition == ledger.ConditionGood && w.Type == TypeWaybill:
		if err := p.ledger.DeallocateFromSiteTx(ctx, s, line.AssetID, w.SiteID, line.Quantity, ledger.BucketAvailable, w.ID); err != nil {
			return err
		}
	case line.Condition == ledger.ConditionGood:
		if err := p.ledger.ReleaseTx(ctx, s, line.AssetID, line.Quantity, w.ID); err != nil {
			return err
		}
	case w.Type == TypeWaybill:
		if err := p.ledger.RecordLossTx(ctx, s, line.AssetID, ledger.BucketSite, w.SiteID, line.Quantity, ledger.LossOf(line.Condition), w.ID); err != nil {
			return err
		}
	default:
		if err := p.ledger.RecordLossTx(ctx, s, line.AssetID, ledger.BucketReserved, "", line.Quantity, ledger.LossOf(line.Condition), w.ID); err != nil {
			return err
		}
	}

	item.ReturnedQuantity += line.Quantity
	switch line.Condition {
	case ledger.ConditionGood:
		item.Breakdown.Good += line.Quantity
	case ledger.ConditionDamaged:
		item.Breakdown.Damaged += line.Quantity
	case ledger.ConditionMissing:
		item.Breakdown.Missing += line.Quantity
	}
	item.Status = itemStatusAfterReturn(item)
	return nil
}

// itemStatusAfterReturn derives the line status from the accumulated
// breakdown: fully-missing lines read lost, fully-damaged read damaged,
// otherwise completed/partial by remaining quantity.
func itemStatusAfterReturn(it *Item) ItemStatus {
	if it.Remaining() > 0 {
		if it.ReturnedQuantity > 0 {
			return ItemPartialReturned
		}
		return ItemOutstanding
	}
	switch {
	case it.Breakdown.Missing == it.Quantity:
		return ItemLost
	case it.Breakdown.Damaged == it.Quantity:
		return ItemDamaged
	}
	return ItemReturnCompleted
}

// returnableStatus rejects returns on documents that have nothing out in
// the field yet (or anymore).
func returnableStatus(w *Waybill) error {
	switch w.Type {
	case TypeWaybill:
		if w.Status == StatusSentToSite || w.Status == StatusPartialReturned {
			return nil
		}
	case TypeReturn:
		if w.Status == StatusOutstanding || w.Status == StatusPartialReturned {
			return nil
		}
	}
	return &ledger.TransitionError{DocumentID: w.ID, Operation: "process return", Status: string(w.Status)}
}

// validateLines checks every line before anything is applied: the asset
// must be on the waybill, appear at most once per condition, and the
// per-asset total must satisfy 0 <= sum <= remaining. A mixed-condition
// return lists the same asset on several lines, one per condition. Any
// violation rejects the whole return.
func validateLines(w *Waybill, lines []ReturnLine) error {
	if len(lines) == 0 {
		return &ledger.InvalidQuantityError{Requested: 0, Remaining: -1, Reason: "return has no items"}
	}
	type assetCondition struct {
		asset     ledger.AssetID
		condition ledger.Condition
	}
	seen := make(map[assetCondition]bool, len(lines))
	totals := make(map[ledger.AssetID]int64, len(lines))
	for _, line := range lines {
		item := w.Item(line.AssetID)
		if item == nil {
			return &ledger.NotFoundError{Kind: "asset", ID: string(line.AssetID)}
		}
		if !line.Condition.Valid() {
			return &ledger.InvalidQuantityError{AssetID: line.AssetID, Requested: line.Quantity, Remaining: -1,
				Reason: "unknown condition " + string(line.Condition)}
		}
		key := assetCondition{line.AssetID, line.Condition}
		if seen[key] {
			return &ledger.DuplicateAssetError{AssetID: line.AssetID}
		}
		seen[key] = true
		if line.Quantity < 0 {
			return &ledger.InvalidQuantityError{AssetID: line.AssetID, Requested: line.Quantity,
				Remaining: item.Remaining(), Reason: "negative return quantity"}
		}
		totals[line.AssetID] += line.Quantity
		if totals[line.AssetID] > item.Remaining() {
			return &ledger.InvalidQuantityError{AssetID: line.AssetID, Requested: totals[line.AssetID],
				Remaining: item.Remaining(), Reason: "return exceeds outstanding quantity"}
		}
	}
	return nil
}

func (p *ReturnProcessor) getWaybill(ctx context.Context, id ledger.DocumentID) (*Waybill, error) {
	docs, ok := p.store.(Store)
	if !ok {
		return nil, ledger.ErrStoreCapability
	}
	w, err := docs.GetWaybill(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &ledger.NotFoundError{Kind: "waybill", ID: string(id)}
	}
	return w, nil
}
