/*
Package ledger owns the stock partition for every asset in the depot.

PURPOSE:
  A single asset's physical quantity is partitioned five ways:

    quantity == available + reserved + Σ site allocations + missing + damaged

  Every document in the system (waybill, return, quick checkout) moves stock
  between these buckets and nothing else: total quantity changes only on
  restock or catalog creation, never on reservation. This package holds the
  Asset type, the partition invariant, and the AssetLedger that performs all
  mutations atomically against a transactional store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Asset: The partitioned stock record, the only source of truth for counts
  - Bucket: Which slice of the partition a quantity currently sits in
  - Condition: How stock came back (good, damaged, missing)
  - Typed identifiers for assets, sites, and documents

DESIGN PRINCIPLES:
  1. Counts are integers: physical gear moves in whole units
  2. Money is decimal.Decimal: unit cost and valuation never touch floats
  3. Derived fields are persisted, not recomputed on read - the invariant
     must be auditable from the stored row alone
  4. Only AssetLedger mutates a partitioned asset once a reservation exists

SEE ALSO:
  - ledger.go: Atomic mutation primitives
  - sitemap.go: Per-site allocation bookkeeping
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AssetID string
type SiteID string

// DocumentID identifies the waybill, return bill, or checkout that triggered
// a ledger mutation. The ledger treats it as an opaque reference.
type DocumentID string

type MovementID string

// NewDocumentID returns a ULID-based document identifier. ULIDs sort by
// creation time, so document listings come back in issue order for free.
func NewDocumentID() DocumentID {
	return DocumentID(newULID())
}

func NewMovementID() MovementID {
	return MovementID(newULID())
}

func newULID() string {
	return ulid.Make().String()
}

// =============================================================================
// BUCKETS - The five slices of the partition
// =============================================================================

// Bucket names a slice of an asset's quantity partition.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketReserved  Bucket = "reserved"
	BucketSite      Bucket = "site"
	BucketMissing   Bucket = "missing"
	BucketDamaged   Bucket = "damaged"
)

// =============================================================================
// CONDITION - State of stock coming back from the field
// =============================================================================

// Condition describes the state of returned stock and decides which bucket
// it lands in: good goes back to a usable pool, damaged and missing go to
// the matching loss counter.
type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
	ConditionMissing Condition = "missing"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionMissing:
		return true
	}
	return false
}

// LossKind is the permanent-loss flavor of a non-good condition.
type LossKind string

const (
	LossMissing LossKind = "missing"
	LossDamaged LossKind = "damaged"
)

// LossOf maps a non-good condition to its loss counter.
// Calling it with ConditionGood is a programming error.
func LossOf(c Condition) LossKind {
	if c == ConditionMissing {
		return LossMissing
	}
	return LossDamaged
}

// =============================================================================
// EQUIPMENT METADATA - Catalog fields the ledger carries but never reads
// =============================================================================

// EquipmentInfo holds equipment-specific catalog fields. The ledger persists
// them with the asset and otherwise ignores them entirely.
type EquipmentInfo struct {
	PowerSource         string          // "fuel", "electric", "manual"
	FuelConsumption     decimal.Decimal // liters per hour, zero if n/a
	ElectricConsumption decimal.Decimal // kWh, zero if n/a
}

// =============================================================================
// ASSET - The partitioned stock record
// =============================================================================

// Asset is the stock record for one catalog entry. Quantity is the physical
// count; Available, Reserved, SiteQuantities, MissingCount and DamagedCount
// partition it exactly. All counter fields are persisted as first-class
// columns so the invariant can be audited without replaying history.
type Asset struct {
	ID   AssetID
	Name string

	Quantity          int64 // total physical count, changes only on restock/registration
	AvailableQuantity int64 // in the warehouse, free to reserve
	ReservedQuantity  int64 // committed to open documents, still in the warehouse
	SiteQuantities    SiteAllocationMap
	MissingCount      int64
	DamagedCount      int64

	MinQuantity int64           // low-stock threshold, catalog concern
	UnitCost    decimal.Decimal // moving average cost per unit

	Equipment EquipmentInfo

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsableQuantity is everything not written off: available + reserved + on site.
func (a *Asset) UsableQuantity() int64 {
	return a.AvailableQuantity + a.ReservedQuantity + a.SiteQuantities.Total()
}

// StockValue is UnitCost * Quantity.
func (a *Asset) StockValue() decimal.Decimal {
	return a.UnitCost.Mul(decimal.NewFromInt(a.Quantity))
}

// BelowThreshold reports whether available stock is at or under the
// configured minimum.
func (a *Asset) BelowThreshold() bool {
	return a.MinQuantity > 0 && a.AvailableQuantity <= a.MinQuantity
}

// CheckPartition verifies the ledger invariant:
//
//	quantity == available + reserved + Σ site + missing + damaged
//
// and that no counter went negative. A non-nil result means a ledger bug,
// never user input; callers abort the surrounding transaction.
func (a *Asset) CheckPartition() error {
	siteTotal := a.SiteQuantities.Total()
	ok := a.Quantity == a.AvailableQuantity+a.ReservedQuantity+siteTotal+a.MissingCount+a.DamagedCount &&
		a.AvailableQuantity >= 0 && a.ReservedQuantity >= 0 && siteTotal >= 0 &&
		a.MissingCount >= 0 && a.DamagedCount >= 0 && !a.SiteQuantities.HasNegative()
	if ok {
		return nil
	}
	return &InvariantViolationError{
		AssetID:   a.ID,
		Quantity:  a.Quantity,
		Available: a.AvailableQuantity,
		Reserved:  a.ReservedQuantity,
		SiteTotal: siteTotal,
		Missing:   a.MissingCount,
		Damaged:   a.DamagedCount,
	}
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state outside a transaction.
func (a *Asset) Clone() *Asset {
	cp := *a
	cp.SiteQuantities = a.SiteQuantities.Clone()
	return &cp
}

// =============================================================================
// MOVEMENT - Append-only journal of every partition change
// =============================================================================

// MovementKind names a ledger primitive.
type MovementKind string

const (
	MovementReserve    MovementKind = "reserve"     // available -> reserved
	MovementRelease    MovementKind = "release"     // reserved -> available
	MovementAllocate   MovementKind = "allocate"    // reserved -> site
	MovementDeallocate MovementKind = "deallocate"  // site -> available/reserved
	MovementTransfer   MovementKind = "transfer"    // site -> reserved (return waybill in transit)
	MovementLoss       MovementKind = "loss"        // any usable bucket -> missing/damaged
	MovementRestock    MovementKind = "restock"     // new physical stock
	MovementRecompute  MovementKind = "recompute"   // derived fields rebuilt from documents
)

// Movement is one immutable journal row. Movements are never updated or
// deleted; the journal is the audit trail behind the persisted counters.
type Movement struct {
	ID       MovementID
	AssetID  AssetID
	Kind     MovementKind
	Quantity int64

	From Bucket
	To   Bucket

	// SiteID is set when either end of the move is a site bucket.
	SiteID SiteID

	// DocumentID references the waybill/checkout that triggered the move,
	// empty for restock and recompute.
	DocumentID DocumentID

	Actor     string
	Note      string
	CreatedAt time.Time
}
