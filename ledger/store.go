/*
store.go - Persistence boundary for assets and the movement journal

PURPOSE:
  Defines the interface between the ledger and the database. The ledger
  only ever touches storage through these interfaces, and every mutation
  runs inside WithTx so the asset row, the triggering document, and the
  movement journal commit together or not at all.

KEY INTERFACES:
  Store:   Asset rows + append-only movement journal
  TxStore: Adds the WithTx transaction boundary

OPTIONAL CAPABILITIES:
  Document packages extend the tx-scoped Store by interface assertion:
  inside WithTx, the waybill state machine asserts the Store to its own
  document interface. A store that cannot satisfy the assertion fails the
  operation with ErrStoreCapability - it never half-commits.

SERIALIZATION CONTRACT:
  WithTx must serialize mutations: only one transaction may be in flight at
  a time (the SQLite store holds a process-wide write lock, which is
  stricter than the per-asset exclusion the engine needs). Concurrent
  requests therefore read-validate-write whole partitions atomically.

IMPLEMENTATIONS:
  - store/sqlite: Production single-file store
  - ledger/store: In-memory store for unit tests

SEE ALSO:
  - ledger.go: The only caller of the mutation path
*/
package ledger

import "context"

// =============================================================================
// STORE - Assets and the movement journal
// =============================================================================

// Store persists assets and movements. Asset reads return deep copies;
// mutations become visible only through SaveAsset inside a transaction.
type Store interface {
	// GetAsset returns the asset or (nil, nil) when the id is unknown.
	GetAsset(ctx context.Context, id AssetID) (*Asset, error)

	// SaveAsset upserts the full asset row including every partition counter.
	SaveAsset(ctx context.Context, a *Asset) error

	// ListAssets returns all assets ordered by name.
	ListAssets(ctx context.Context) ([]Asset, error)

	// AppendMovement adds one journal row. The journal is append-only:
	// no update or delete exists on any implementation.
	AppendMovement(ctx context.Context, m Movement) error

	// MovementsByAsset returns the newest limit journal rows for an asset.
	MovementsByAsset(ctx context.Context, id AssetID, limit int) ([]Movement, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with the single transaction boundary every ledger
// operation runs inside.
type TxStore interface {
	Store

	// WithTx executes fn against a transaction-scoped Store. If fn returns
	// an error the transaction rolls back, otherwise it commits. The
	// tx-scoped Store may satisfy further document interfaces (waybill,
	// checkout) via type assertion.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// RESERVATION SOURCE - Open-document truth for the consistency validator
// =============================================================================

// ReservationSource recomputes derived counters from open documents. It is
// implemented by stores that persist waybills and checkouts; the
// ConsistencyValidator asserts for it inside a transaction.
type ReservationSource interface {
	// OpenReservations sums, for one asset, the quantity reserved by open
	// documents and the quantity allocated per site by sent waybills.
	OpenReservations(ctx context.Context, id AssetID) (reserved int64, site map[SiteID]int64, err error)
}
