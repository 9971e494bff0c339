/*
asset.go - Pure partition mutations on a single Asset

PURPOSE:
  Each method validates its source pool and moves quantity between two
  buckets of the partition, touching nothing else. They mutate an in-memory
  Asset only - AssetLedger (ledger.go) is responsible for wrapping them in a
  store transaction, re-checking the invariant, and journaling a Movement.

  Keeping the bucket arithmetic on the type makes the primitives testable
  without a store and keeps every rule ("reserve never exceeds available")
  in exactly one place.

SEE ALSO:
  - ledger.go: Transactional wrapper around these mutations
*/
package ledger

import "github.com/shopspring/decimal"

// reserve moves qty from available to reserved.
// Fails with InsufficientStockError when qty exceeds available, and with
// InvalidQuantityError when qty is not positive.
func (a *Asset) reserve(qty int64) error {
	if qty <= 0 {
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1, Reason: "quantity must be positive"}
	}
	if qty > a.AvailableQuantity {
		return &InsufficientStockError{AssetID: a.ID, Pool: BucketAvailable, Requested: qty, Available: a.AvailableQuantity}
	}
	a.AvailableQuantity -= qty
	a.ReservedQuantity += qty
	return nil
}

// release moves qty from reserved back to available.
func (a *Asset) release(qty int64) error {
	if qty <= 0 {
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1, Reason: "quantity must be positive"}
	}
	if qty > a.ReservedQuantity {
		return &InsufficientStockError{AssetID: a.ID, Pool: BucketReserved, Requested: qty, Available: a.ReservedQuantity}
	}
	a.ReservedQuantity -= qty
	a.AvailableQuantity += qty
	return nil
}

// allocateToSite moves qty from reserved to the site's allocation,
// creating the site entry if absent.
func (a *Asset) allocateToSite(site SiteID, qty int64) error {
	if qty <= 0 {
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1, Reason: "quantity must be positive"}
	}
	if qty > a.ReservedQuantity {
		return &InsufficientStockError{AssetID: a.ID, Pool: BucketReserved, Requested: qty, Available: a.ReservedQuantity}
	}
	a.ReservedQuantity -= qty
	a.SiteQuantities = a.SiteQuantities.Ensure()
	a.SiteQuantities.Add(site, qty)
	return nil
}

// deallocateFromSite moves qty out of the site's allocation into dest,
// which must be BucketAvailable or BucketReserved. Losses at a site go
// through recordLoss instead.
func (a *Asset) deallocateFromSite(site SiteID, qty int64, dest Bucket) error {
	if qty <= 0 {
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1, Reason: "quantity must be positive"}
	}
	if allocated := a.SiteQuantities.At(site); qty > allocated {
		return &InsufficientStockError{AssetID: a.ID, Pool: BucketSite, SiteID: site, Requested: qty, Available: allocated}
	}
	a.SiteQuantities.Remove(site, qty)
	switch dest {
	case BucketAvailable:
		a.AvailableQuantity += qty
	case BucketReserved:
		a.ReservedQuantity += qty
	default:
		// Put it back; the caller asked for an impossible destination.
		a.SiteQuantities = a.SiteQuantities.Ensure()
		a.SiteQuantities.Add(site, qty)
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1,
			Reason: "site stock can only move to the available or reserved pool"}
	}
	return nil
}

// recordLoss removes qty from origin (available, reserved, or a site) and
// adds it to the loss counter for kind. Total quantity is unchanged: losses
// permanently shrink usable stock, not the physical count on the books.
func (a *Asset) recordLoss(origin Bucket, site SiteID, qty int64, kind LossKind) error {
	if qty <= 0 {
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1, Reason: "quantity must be positive"}
	}
	switch origin {
	case BucketAvailable:
		if qty > a.AvailableQuantity {
			return &InsufficientStockError{AssetID: a.ID, Pool: BucketAvailable, Requested: qty, Available: a.AvailableQuantity}
		}
		a.AvailableQuantity -= qty
	case BucketReserved:
		if qty > a.ReservedQuantity {
			return &InsufficientStockError{AssetID: a.ID, Pool: BucketReserved, Requested: qty, Available: a.ReservedQuantity}
		}
		a.ReservedQuantity -= qty
	case BucketSite:
		if allocated := a.SiteQuantities.At(site); qty > allocated {
			return &InsufficientStockError{AssetID: a.ID, Pool: BucketSite, SiteID: site, Requested: qty, Available: allocated}
		}
		a.SiteQuantities.Remove(site, qty)
	default:
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1,
			Reason: "loss origin must be available, reserved or a site"}
	}
	if kind == LossMissing {
		a.MissingCount += qty
	} else {
		a.DamagedCount += qty
	}
	return nil
}

// restock adds new physical stock: quantity and available grow together,
// independent of any reservation state. Unit cost becomes the moving
// average of the old stock value and the incoming batch.
func (a *Asset) restock(qty int64, unitCost decimal.Decimal) error {
	if qty <= 0 {
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1, Reason: "quantity must be positive"}
	}
	if unitCost.IsNegative() {
		return &InvalidQuantityError{AssetID: a.ID, Requested: qty, Remaining: -1, Reason: "unit cost cannot be negative"}
	}
	if !unitCost.IsZero() {
		oldValue := a.StockValue()
		newValue := unitCost.Mul(decimal.NewFromInt(qty))
		total := decimal.NewFromInt(a.Quantity + qty)
		a.UnitCost = oldValue.Add(newValue).Div(total)
	}
	a.Quantity += qty
	a.AvailableQuantity += qty
	return nil
}
