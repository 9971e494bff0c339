/*
ledger.go - Atomic mutation primitives for the stock partition

PURPOSE:
  AssetLedger is the ONLY component allowed to mutate a partitioned asset.
  Each primitive runs as one store transaction: load the asset, validate,
  move quantity between buckets, re-check the partition invariant, persist
  the asset and a journal movement together.

MUTATION FLOW:

  caller ──▶ Reserve(asset, qty)
                │ WithTx
                ▼
        ┌─────────────────────────────┐
        │ load asset (row copy)       │
        │ validate + mutate partition │
        │ CheckPartition (defensive)  │
        │ SaveAsset + AppendMovement  │
        └─────────────────────────────┘
                │
        commit, or roll back leaving every counter untouched

TWO CALL SHAPES:
  Reserve(ctx, ...)            own transaction - for single-step callers
  ReserveTx(ctx, store, ...)   caller's transaction - document state
                               machines persist the document in the same
                               transaction as the counter updates

  The Tx variants are the real primitives; the plain variants are thin
  WithTx wrappers around them.

VALIDATION AUTHORITY:
  UI-side max-quantity checks are advisory only. Every mutation re-validates
  here against the stored counters inside the transaction, so double
  submissions and stale clients cannot oversell stock.

SEE ALSO:
  - asset.go: The bucket arithmetic these primitives wrap
  - validator.go: Rebuilding derived counters after import/restore
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ASSET LEDGER
// =============================================================================

// AssetLedger performs all quantity-affecting mutations. It is safe for
// concurrent use; the store's WithTx serializes mutations.
type AssetLedger struct {
	store TxStore
}

func New(store TxStore) *AssetLedger {
	return &AssetLedger{store: store}
}

// Store exposes the underlying TxStore for callers that orchestrate
// document writes in the same transaction.
func (l *AssetLedger) Store() TxStore { return l.store }

// =============================================================================
// PRIMITIVES - own-transaction variants
// =============================================================================

// Reserve moves qty from available to reserved against an open document.
func (l *AssetLedger) Reserve(ctx context.Context, id AssetID, qty int64, ref DocumentID) error {
	return l.store.WithTx(ctx, func(s Store) error {
		return l.ReserveTx(ctx, s, id, qty, ref)
	})
}

// Release moves qty from reserved back to available (document edited,
// deleted, or returned in good condition before leaving the warehouse).
func (l *AssetLedger) Release(ctx context.Context, id AssetID, qty int64, ref DocumentID) error {
	return l.store.WithTx(ctx, func(s Store) error {
		return l.ReleaseTx(ctx, s, id, qty, ref)
	})
}

// AllocateToSite moves qty from reserved to the site allocation when a
// waybill is marked sent-to-site.
func (l *AssetLedger) AllocateToSite(ctx context.Context, id AssetID, site SiteID, qty int64, ref DocumentID) error {
	return l.store.WithTx(ctx, func(s Store) error {
		return l.AllocateToSiteTx(ctx, s, id, site, qty, ref)
	})
}

// DeallocateFromSite brings good-condition stock back from a site into
// dest (available for completed returns, reserved for return waybills in
// transit). Damaged or missing stock goes through RecordLoss instead.
func (l *AssetLedger) DeallocateFromSite(ctx context.Context, id AssetID, site SiteID, qty int64, dest Bucket, ref DocumentID) error {
	return l.store.WithTx(ctx, func(s Store) error {
		return l.DeallocateFromSiteTx(ctx, s, id, site, qty, dest, ref)
	})
}

// RecordLoss removes qty from origin and adds it to the missing or damaged
// counter. The only path that permanently shrinks usable stock while
// leaving total quantity unchanged.
func (l *AssetLedger) RecordLoss(ctx context.Context, id AssetID, origin Bucket, site SiteID, qty int64, kind LossKind, ref DocumentID) error {
	return l.store.WithTx(ctx, func(s Store) error {
		return l.RecordLossTx(ctx, s, id, origin, site, qty, kind, ref)
	})
}

// Restock adds newly purchased stock and folds unitCost into the moving
// average. Independent of reservation state.
func (l *AssetLedger) Restock(ctx context.Context, id AssetID, qty int64, unitCost decimal.Decimal) error {
	return l.store.WithTx(ctx, func(s Store) error {
		return l.RestockTx(ctx, s, id, qty, unitCost)
	})
}

// =============================================================================
// PRIMITIVES - caller-transaction variants
// =============================================================================

// ReserveTx is Reserve inside the caller's transaction.
func (l *AssetLedger) ReserveTx(ctx context.Context, s Store, id AssetID, qty int64, ref DocumentID) error {
	a, err := l.loadAsset(ctx, s, id)
	if err != nil {
		return err
	}
	if err := a.reserve(qty); err != nil {
		return err
	}
	return l.commit(ctx, s, a, Movement{
		AssetID: id, Kind: MovementReserve, Quantity: qty,
		From: BucketAvailable, To: BucketReserved, DocumentID: ref,
	})
}

// ReleaseTx is Release inside the caller's transaction.
func (l *AssetLedger) ReleaseTx(ctx context.Context, s Store, id AssetID, qty int64, ref DocumentID) error {
	a, err := l.loadAsset(ctx, s, id)
	if err != nil {
		return err
	}
	if err := a.release(qty); err != nil {
		return err
	}
	return l.commit(ctx, s, a, Movement{
		AssetID: id, Kind: MovementRelease, Quantity: qty,
		From: BucketReserved, To: BucketAvailable, DocumentID: ref,
	})
}

// AllocateToSiteTx is AllocateToSite inside the caller's transaction.
func (l *AssetLedger) AllocateToSiteTx(ctx context.Context, s Store, id AssetID, site SiteID, qty int64, ref DocumentID) error {
	a, err := l.loadAsset(ctx, s, id)
	if err != nil {
		return err
	}
	if err := a.allocateToSite(site, qty); err != nil {
		return err
	}
	return l.commit(ctx, s, a, Movement{
		AssetID: id, Kind: MovementAllocate, Quantity: qty,
		From: BucketReserved, To: BucketSite, SiteID: site, DocumentID: ref,
	})
}

// DeallocateFromSiteTx is DeallocateFromSite inside the caller's transaction.
func (l *AssetLedger) DeallocateFromSiteTx(ctx context.Context, s Store, id AssetID, site SiteID, qty int64, dest Bucket, ref DocumentID) error {
	a, err := l.loadAsset(ctx, s, id)
	if err != nil {
		return err
	}
	if err := a.deallocateFromSite(site, qty, dest); err != nil {
		return err
	}
	kind := MovementDeallocate
	if dest == BucketReserved {
		kind = MovementTransfer
	}
	return l.commit(ctx, s, a, Movement{
		AssetID: id, Kind: kind, Quantity: qty,
		From: BucketSite, To: dest, SiteID: site, DocumentID: ref,
	})
}

// RecordLossTx is RecordLoss inside the caller's transaction.
func (l *AssetLedger) RecordLossTx(ctx context.Context, s Store, id AssetID, origin Bucket, site SiteID, qty int64, kind LossKind, ref DocumentID) error {
	a, err := l.loadAsset(ctx, s, id)
	if err != nil {
		return err
	}
	if err := a.recordLoss(origin, site, qty, kind); err != nil {
		return err
	}
	to := BucketMissing
	if kind == LossDamaged {
		to = BucketDamaged
	}
	m := Movement{
		AssetID: id, Kind: MovementLoss, Quantity: qty,
		From: origin, To: to, DocumentID: ref,
	}
	if origin == BucketSite {
		m.SiteID = site
	}
	return l.commit(ctx, s, a, m)
}

// RestockTx is Restock inside the caller's transaction.
func (l *AssetLedger) RestockTx(ctx context.Context, s Store, id AssetID, qty int64, unitCost decimal.Decimal) error {
	a, err := l.loadAsset(ctx, s, id)
	if err != nil {
		return err
	}
	if err := a.restock(qty, unitCost); err != nil {
		return err
	}
	return l.commit(ctx, s, a, Movement{
		AssetID: id, Kind: MovementRestock, Quantity: qty,
		To: BucketAvailable, Note: "restock at unit cost " + unitCost.StringFixed(2),
	})
}

// =============================================================================
// INTERNALS
// =============================================================================

func (l *AssetLedger) loadAsset(ctx context.Context, s Store, id AssetID) (*Asset, error) {
	a, err := s.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &NotFoundError{Kind: "asset", ID: string(id)}
	}
	return a, nil
}

// commit runs the defensive invariant check, persists the asset and
// journals the movement. Any failure aborts the surrounding transaction.
func (l *AssetLedger) commit(ctx context.Context, s Store, a *Asset, m Movement) error {
	if err := a.CheckPartition(); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	if err := s.SaveAsset(ctx, a); err != nil {
		return err
	}
	m.ID = NewMovementID()
	m.CreatedAt = a.UpdatedAt
	return s.AppendMovement(ctx, m)
}
