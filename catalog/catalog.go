/*
catalog.go - Catalog operations: registration, restocking, reporting

PURPOSE:
  The write path for master data (register new assets, receive restock
  shipments) and the read-side reports the front desk runs: low-stock
  lists and total stock valuation.
*/
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/depot/stock-engine/ledger"
)

// Service registers and reports on catalog assets.
type Service struct {
	ledger  *ledger.AssetLedger
	store   ledger.TxStore
	factory *AssetFactory
}

func NewService(l *ledger.AssetLedger) *Service {
	return &Service{ledger: l, store: l.Store(), factory: NewAssetFactory()}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register creates a new asset from its definition. Registering an ID that
// already exists fails; restocking is a separate operation.
func (s *Service) Register(ctx context.Context, def AssetJSON) (*ledger.Asset, error) {
	a, err := s.factory.FromJSON(def)
	if err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(tx ledger.Store) error {
		existing, err := tx.GetAsset(ctx, a.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ledger.DuplicateAssetError{AssetID: a.ID}
		}
		if err := tx.SaveAsset(ctx, a); err != nil {
			return err
		}
		if a.Quantity == 0 {
			return nil
		}
		m := ledger.Movement{
			ID:       ledger.NewMovementID(),
			AssetID:  a.ID,
			Kind:     ledger.MovementRestock,
			Quantity: a.Quantity,
			To:       ledger.BucketAvailable,
			Note:     "initial registration",
		}
		m.CreatedAt = a.CreatedAt
		return tx.AppendMovement(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Restock receives a shipment into the available pool and folds the
// shipment cost into the moving average unit cost.
func (s *Service) Restock(ctx context.Context, id ledger.AssetID, qty int64, unitCost decimal.Decimal) error {
	return s.ledger.Restock(ctx, id, qty, unitCost)
}

// UpdateThreshold changes the low-stock threshold without touching counters.
func (s *Service) UpdateThreshold(ctx context.Context, id ledger.AssetID, min int64) (*ledger.Asset, error) {
	if min < 0 {
		return nil, &ledger.InvalidQuantityError{AssetID: id, Requested: min, Remaining: -1,
			Reason: "threshold cannot be negative"}
	}
	var out *ledger.Asset
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		a, err := tx.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return &ledger.NotFoundError{Kind: "asset", ID: string(id)}
		}
		a.MinQuantity = min
		a.UpdatedAt = time.Now().UTC()
		if err := tx.SaveAsset(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// REPORTS
// =============================================================================

// LowStock lists assets at or under their threshold, most depleted first.
func (s *Service) LowStock(ctx context.Context) ([]ledger.Asset, error) {
	all, err := s.store.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	var out []ledger.Asset
	for _, a := range all {
		if a.BelowThreshold() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di := out[i].MinQuantity - out[i].AvailableQuantity
		dj := out[j].MinQuantity - out[j].AvailableQuantity
		if di != dj {
			return di > dj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Valuation sums StockValue over the whole catalog.
func (s *Service) Valuation(ctx context.Context) (decimal.Decimal, error) {
	all, err := s.store.ListAssets(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range all {
		total = total.Add(a.StockValue())
	}
	return total, nil
}
