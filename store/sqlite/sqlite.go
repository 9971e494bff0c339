/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Persists the whole depot in one database file: assets with their
  partitioned counters, the stock movement journal, waybills and their
  line items, return bill receipts, and quick checkouts.

INTERFACES IMPLEMENTED:
  ledger.TxStore:           assets and the movement journal
  ledger.ReservationSource: recompute support, derives holdings from documents
  waybill.Store:            waybills, items, return bills
  checkout.Store:           quick checkouts

KEY TABLES:
  assets:         One row per catalog entry. Counters are first-class
                  columns; per-site quantities ride along as JSON.
  movements:      Append-only journal of every counter change.
  waybills:       Document headers for both waybill and return types.
  waybill_items:  Line items, one per (waybill, asset).
  return_bills:   Receipts written when returns are processed.
  return_items:   Receipt lines with quantity and condition.
  checkouts:      Quick checkouts.

CONCURRENCY:
  A sync.RWMutex serializes writers. Combined with WithTx wrapping every
  mutating operation in a database transaction, two clerks hitting the
  same asset can never interleave a read-modify-write.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block,
  one writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/depot.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.New(store)

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/depot/stock-engine/checkout"
	"github.com/depot/stock-engine/ledger"
	"github.com/depot/stock-engine/waybill"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compile-time capability checks.
var (
	_ ledger.TxStore           = (*Store)(nil)
	_ ledger.ReservationSource = (*Store)(nil)
	_ waybill.Store            = (*Store)(nil)
	_ checkout.Store           = (*Store)(nil)
)

func (s *Store) migrate() error {
	schema := `
	-- Assets: one row per catalog entry, counters as first-class columns
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		available INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		site_quantities TEXT NOT NULL DEFAULT '{}',
		missing INTEGER NOT NULL DEFAULT 0,
		damaged INTEGER NOT NULL DEFAULT 0,
		min_quantity INTEGER NOT NULL DEFAULT 0,
		unit_cost TEXT NOT NULL DEFAULT '0',
		power_source TEXT NOT NULL DEFAULT '',
		fuel_consumption TEXT NOT NULL DEFAULT '0',
		electric_consumption TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Movements (append-only journal)
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		from_bucket TEXT,
		to_bucket TEXT,
		site_id TEXT,
		document_id TEXT,
		actor TEXT,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_asset
		ON movements(asset_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_movements_document
		ON movements(document_id) WHERE document_id IS NOT NULL;

	-- Waybills: headers for both document types
	CREATE TABLE IF NOT EXISTS waybills (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		site_id TEXT NOT NULL,
		status TEXT NOT NULL,
		issued_by TEXT NOT NULL DEFAULT '',
		sent_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_waybills_status ON waybills(status);
	CREATE INDEX IF NOT EXISTS idx_waybills_site ON waybills(site_id);

	-- One line per asset per waybill
	CREATE TABLE IF NOT EXISTS waybill_items (
		waybill_id TEXT NOT NULL REFERENCES waybills(id) ON DELETE CASCADE,
		asset_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		returned INTEGER NOT NULL DEFAULT 0,
		good INTEGER NOT NULL DEFAULT 0,
		damaged INTEGER NOT NULL DEFAULT 0,
		missing INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (waybill_id, asset_id)
	);

	CREATE INDEX IF NOT EXISTS idx_waybill_items_asset
		ON waybill_items(asset_id);

	-- Return bill receipts
	CREATE TABLE IF NOT EXISTS return_bills (
		id TEXT PRIMARY KEY,
		waybill_id TEXT NOT NULL REFERENCES waybills(id) ON DELETE CASCADE,
		received_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_return_bills_waybill
		ON return_bills(waybill_id);

	CREATE TABLE IF NOT EXISTS return_items (
		return_bill_id TEXT NOT NULL REFERENCES return_bills(id) ON DELETE CASCADE,
		asset_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		condition TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_return_items_bill
		ON return_items(return_bill_id);

	-- Quick checkouts
	CREATE TABLE IF NOT EXISTS checkouts (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		returned INTEGER NOT NULL DEFAULT 0,
		missing INTEGER NOT NULL DEFAULT 0,
		damaged INTEGER NOT NULL DEFAULT 0,
		employee TEXT NOT NULL,
		status TEXT NOT NULL,
		due_at TEXT,
		checked_out_at TEXT NOT NULL,
		returned_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_checkouts_status ON checkouts(status);
	CREATE INDEX IF NOT EXISTS idx_checkouts_asset ON checkouts(asset_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer covers *sql.DB and *sql.Tx so the same helpers serve both
// direct calls and WithTx callbacks.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// =============================================================================
// ASSETS (ledger.Store)
// =============================================================================

func (s *Store) GetAsset(ctx context.Context, id ledger.AssetID) (*ledger.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAsset(ctx, s.db, id)
}

func (s *Store) SaveAsset(ctx context.Context, a *ledger.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAsset(ctx, s.db, a)
}

func (s *Store) ListAssets(ctx context.Context) ([]ledger.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAssets(ctx, s.db)
}

func (s *Store) AppendMovement(ctx context.Context, m ledger.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMovement(ctx, s.db, m)
}

func (s *Store) MovementsByAsset(ctx context.Context, id ledger.AssetID, limit int) ([]ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementsByAsset(ctx, s.db, id, limit)
}

const assetColumns = `id, name, quantity, available, reserved, site_quantities,
	missing, damaged, min_quantity, unit_cost, power_source, fuel_consumption,
	electric_consumption, created_at, updated_at`

func (s *Store) getAsset(ctx context.Context, q queryer, id ledger.AssetID) (*ledger.Asset, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) saveAsset(ctx context.Context, q queryer, a *ledger.Asset) error {
	siteJSON, err := json.Marshal(a.SiteQuantities)
	if err != nil {
		return fmt.Errorf("failed to encode site quantities: %w", err)
	}

	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			quantity = excluded.quantity,
			available = excluded.available,
			reserved = excluded.reserved,
			site_quantities = excluded.site_quantities,
			missing = excluded.missing,
			damaged = excluded.damaged,
			min_quantity = excluded.min_quantity,
			unit_cost = excluded.unit_cost,
			power_source = excluded.power_source,
			fuel_consumption = excluded.fuel_consumption,
			electric_consumption = excluded.electric_consumption,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		a.ID, a.Name, a.Quantity, a.AvailableQuantity, a.ReservedQuantity,
		string(siteJSON), a.MissingCount, a.DamagedCount, a.MinQuantity,
		a.UnitCost.String(), a.Equipment.PowerSource,
		a.Equipment.FuelConsumption.String(), a.Equipment.ElectricConsumption.String(),
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
		a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

func (s *Store) listAssets(ctx context.Context, q queryer) ([]ledger.Asset, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []ledger.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func scanAsset(row scannable) (*ledger.Asset, error) {
	var (
		a                ledger.Asset
		siteJSON         string
		unitCost         string
		fuel, electric   string
		created, updated string
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Quantity, &a.AvailableQuantity, &a.ReservedQuantity,
		&siteJSON, &a.MissingCount, &a.DamagedCount, &a.MinQuantity,
		&unitCost, &a.Equipment.PowerSource, &fuel, &electric,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}

	a.SiteQuantities = ledger.SiteAllocationMap{}
	if siteJSON != "" && siteJSON != "{}" {
		if err := json.Unmarshal([]byte(siteJSON), &a.SiteQuantities); err != nil {
			return nil, fmt.Errorf("failed to decode site quantities for %s: %w", a.ID, err)
		}
	}
	if a.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return nil, fmt.Errorf("failed to decode unit cost for %s: %w", a.ID, err)
	}
	if a.Equipment.FuelConsumption, err = decimal.NewFromString(fuel); err != nil {
		return nil, fmt.Errorf("failed to decode fuel consumption for %s: %w", a.ID, err)
	}
	if a.Equipment.ElectricConsumption, err = decimal.NewFromString(electric); err != nil {
		return nil, fmt.Errorf("failed to decode electric consumption for %s: %w", a.ID, err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &a, nil
}

// =============================================================================
// MOVEMENT JOURNAL
// =============================================================================

func (s *Store) appendMovement(ctx context.Context, q queryer, m ledger.Movement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO movements
		(id, asset_id, kind, quantity, from_bucket, to_bucket, site_id, document_id, actor, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AssetID, m.Kind, m.Quantity,
		nullString(string(m.From)), nullString(string(m.To)),
		nullString(string(m.SiteID)), nullString(string(m.DocumentID)),
		nullString(m.Actor), nullString(m.Note),
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

func (s *Store) movementsByAsset(ctx context.Context, q queryer, id ledger.AssetID, limit int) ([]ledger.Movement, error) {
	query := `
		SELECT id, asset_id, kind, quantity, from_bucket, to_bucket, site_id, document_id, actor, note, created_at
		FROM movements
		WHERE asset_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []any{id}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var out []ledger.Movement
	for rows.Next() {
		var (
			m                   ledger.Movement
			from, to, site, doc sql.NullString
			actor, note         sql.NullString
			created             string
		)
		if err := rows.Scan(&m.ID, &m.AssetID, &m.Kind, &m.Quantity,
			&from, &to, &site, &doc, &actor, &note, &created); err != nil {
			return nil, err
		}
		m.From = ledger.Bucket(from.String)
		m.To = ledger.Bucket(to.String)
		m.SiteID = ledger.SiteID(site.String)
		m.DocumentID = ledger.DocumentID(doc.String)
		m.Actor = actor.String
		m.Note = note.String
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// WAYBILLS (waybill.Store)
// =============================================================================

func (s *Store) GetWaybill(ctx context.Context, id ledger.DocumentID) (*waybill.Waybill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWaybill(ctx, s.db, id)
}

func (s *Store) SaveWaybill(ctx context.Context, w *waybill.Waybill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveWaybill(ctx, s.db, w)
}

func (s *Store) DeleteWaybill(ctx context.Context, id ledger.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteWaybill(ctx, s.db, id)
}

func (s *Store) ListWaybills(ctx context.Context) ([]waybill.Waybill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWaybills(ctx, s.db)
}

func (s *Store) SaveReturnBill(ctx context.Context, rb *waybill.ReturnBill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveReturnBill(ctx, s.db, rb)
}

func (s *Store) ReturnBillsByWaybill(ctx context.Context, id ledger.DocumentID) ([]waybill.ReturnBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.returnBillsByWaybill(ctx, s.db, id)
}

func (s *Store) getWaybill(ctx context.Context, q queryer, id ledger.DocumentID) (*waybill.Waybill, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, type, site_id, status, issued_by, sent_at, created_at, updated_at
		FROM waybills WHERE id = ?`, id)

	wb, err := scanWaybill(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if wb.Items, err = s.loadItems(ctx, q, wb.ID); err != nil {
		return nil, err
	}
	return wb, nil
}

func (s *Store) saveWaybill(ctx context.Context, q queryer, w *waybill.Waybill) error {
	var sentAt any
	if w.SentAt != nil {
		sentAt = w.SentAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO waybills (id, type, site_id, status, issued_by, sent_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			sent_at = excluded.sent_at,
			updated_at = excluded.updated_at`,
		w.ID, w.Type, w.SiteID, w.Status, w.IssuedBy, sentAt,
		w.CreatedAt.UTC().Format(time.RFC3339Nano),
		w.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save waybill: %w", err)
	}

	// Replace line items wholesale. Editing can add, change and remove
	// lines; delete-and-insert keeps positions stable.
	if _, err := q.ExecContext(ctx, `DELETE FROM waybill_items WHERE waybill_id = ?`, w.ID); err != nil {
		return fmt.Errorf("failed to clear waybill items: %w", err)
	}
	for i, it := range w.Items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO waybill_items
			(waybill_id, asset_id, quantity, returned, good, damaged, missing, status, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, it.AssetID, it.Quantity, it.ReturnedQuantity,
			it.Breakdown.Good, it.Breakdown.Damaged, it.Breakdown.Missing,
			it.Status, i,
		)
		if err != nil {
			return fmt.Errorf("failed to save waybill item: %w", err)
		}
	}
	return nil
}

func (s *Store) deleteWaybill(ctx context.Context, q queryer, id ledger.DocumentID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM waybills WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete waybill: %w", err)
	}
	return nil
}

func (s *Store) listWaybills(ctx context.Context, q queryer) ([]waybill.Waybill, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, site_id, status, issued_by, sent_at, created_at, updated_at
		FROM waybills ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query waybills: %w", err)
	}
	defer rows.Close()

	var waybills []waybill.Waybill
	for rows.Next() {
		wb, err := scanWaybill(rows)
		if err != nil {
			return nil, err
		}
		waybills = append(waybills, *wb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range waybills {
		if waybills[i].Items, err = s.loadItems(ctx, q, waybills[i].ID); err != nil {
			return nil, err
		}
	}
	return waybills, nil
}

func scanWaybill(row scannable) (*waybill.Waybill, error) {
	var (
		wb               waybill.Waybill
		sentAt           sql.NullString
		created, updated string
	)
	err := row.Scan(&wb.ID, &wb.Type, &wb.SiteID, &wb.Status, &wb.IssuedBy,
		&sentAt, &created, &updated)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, sentAt.String)
		wb.SentAt = &t
	}
	wb.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	wb.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &wb, nil
}

func (s *Store) loadItems(ctx context.Context, q queryer, id ledger.DocumentID) ([]waybill.Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT asset_id, quantity, returned, good, damaged, missing, status
		FROM waybill_items WHERE waybill_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query waybill items: %w", err)
	}
	defer rows.Close()

	var items []waybill.Item
	for rows.Next() {
		var it waybill.Item
		if err := rows.Scan(&it.AssetID, &it.Quantity, &it.ReturnedQuantity,
			&it.Breakdown.Good, &it.Breakdown.Damaged, &it.Breakdown.Missing,
			&it.Status); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) saveReturnBill(ctx context.Context, q queryer, rb *waybill.ReturnBill) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO return_bills (id, waybill_id, received_by, created_at)
		VALUES (?, ?, ?, ?)`,
		rb.ID, rb.WaybillID, rb.ReceivedBy,
		rb.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save return bill: %w", err)
	}
	for i, it := range rb.Items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO return_items (return_bill_id, asset_id, quantity, condition, position)
			VALUES (?, ?, ?, ?, ?)`,
			rb.ID, it.AssetID, it.Quantity, it.Condition, i,
		)
		if err != nil {
			return fmt.Errorf("failed to save return item: %w", err)
		}
	}
	return nil
}

func (s *Store) returnBillsByWaybill(ctx context.Context, q queryer, id ledger.DocumentID) ([]waybill.ReturnBill, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, waybill_id, received_by, created_at
		FROM return_bills WHERE waybill_id = ?
		ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query return bills: %w", err)
	}
	defer rows.Close()

	var bills []waybill.ReturnBill
	for rows.Next() {
		var (
			rb      waybill.ReturnBill
			created string
		)
		if err := rows.Scan(&rb.ID, &rb.WaybillID, &rb.ReceivedBy, &created); err != nil {
			return nil, err
		}
		rb.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		bills = append(bills, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bills {
		if bills[i].Items, err = s.loadReturnItems(ctx, q, bills[i].ID); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

func (s *Store) loadReturnItems(ctx context.Context, q queryer, id ledger.DocumentID) ([]waybill.ReturnItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT asset_id, quantity, condition
		FROM return_items WHERE return_bill_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query return items: %w", err)
	}
	defer rows.Close()

	var items []waybill.ReturnItem
	for rows.Next() {
		var it waybill.ReturnItem
		if err := rows.Scan(&it.AssetID, &it.Quantity, &it.Condition); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// =============================================================================
// CHECKOUTS (checkout.Store)
// =============================================================================

func (s *Store) GetCheckout(ctx context.Context, id ledger.DocumentID) (*checkout.QuickCheckout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCheckout(ctx, s.db, id)
}

func (s *Store) SaveCheckout(ctx context.Context, c *checkout.QuickCheckout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCheckout(ctx, s.db, c)
}

func (s *Store) ListCheckouts(ctx context.Context) ([]checkout.QuickCheckout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCheckouts(ctx, s.db)
}

const checkoutSelect = `
	SELECT id, asset_id, quantity, returned, missing, damaged, employee, status, due_at, checked_out_at, returned_at
	FROM checkouts`

func (s *Store) getCheckout(ctx context.Context, q queryer, id ledger.DocumentID) (*checkout.QuickCheckout, error) {
	row := q.QueryRowContext(ctx, checkoutSelect+` WHERE id = ?`, id)
	c, err := scanCheckout(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) saveCheckout(ctx context.Context, q queryer, c *checkout.QuickCheckout) error {
	var dueAt, returnedAt any
	if c.DueAt != nil {
		dueAt = c.DueAt.UTC().Format(time.RFC3339Nano)
	}
	if c.ReturnedAt != nil {
		returnedAt = c.ReturnedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO checkouts
		(id, asset_id, quantity, returned, missing, damaged, employee, status, due_at, checked_out_at, returned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			returned = excluded.returned,
			missing = excluded.missing,
			damaged = excluded.damaged,
			status = excluded.status,
			returned_at = excluded.returned_at`,
		c.ID, c.AssetID, c.Quantity, c.ReturnedQuantity, c.MissingQuantity,
		c.DamagedQuantity, c.Employee, c.Status, dueAt,
		c.CheckedOutAt.UTC().Format(time.RFC3339Nano), returnedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkout: %w", err)
	}
	return nil
}

func (s *Store) listCheckouts(ctx context.Context, q queryer) ([]checkout.QuickCheckout, error) {
	rows, err := q.QueryContext(ctx, checkoutSelect+` ORDER BY checked_out_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkouts: %w", err)
	}
	defer rows.Close()

	var out []checkout.QuickCheckout
	for rows.Next() {
		c, err := scanCheckout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCheckout(row scannable) (*checkout.QuickCheckout, error) {
	var (
		c                 checkout.QuickCheckout
		dueAt, returnedAt sql.NullString
		checkedOut        string
	)
	err := row.Scan(&c.ID, &c.AssetID, &c.Quantity, &c.ReturnedQuantity,
		&c.MissingQuantity, &c.DamagedQuantity, &c.Employee, &c.Status,
		&dueAt, &checkedOut, &returnedAt)
	if err != nil {
		return nil, err
	}
	if dueAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, dueAt.String)
		c.DueAt = &t
	}
	if returnedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, returnedAt.String)
		c.ReturnedAt = &t
	}
	c.CheckedOutAt, _ = time.Parse(time.RFC3339Nano, checkedOut)
	return &c, nil
}

// =============================================================================
// OPEN RESERVATIONS (ledger.ReservationSource)
// =============================================================================

// OpenReservations derives reserved and per-site holdings for an asset
// from the documents alone:
//
//	reserved = outstanding waybill lines (not yet sent)
//	         + open return waybill lines still in transit
//	         + outstanding checkout remainders
//	site     = remaining lines of every sent waybill, minus the full
//	           quantity every return waybill drew from that site
func (s *Store) OpenReservations(ctx context.Context, id ledger.AssetID) (int64, map[ledger.SiteID]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openReservations(ctx, s.db, id)
}

func (s *Store) openReservations(ctx context.Context, q queryer, id ledger.AssetID) (int64, map[ledger.SiteID]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT w.type, w.status, w.site_id, w.sent_at IS NOT NULL,
		       i.quantity, i.returned
		FROM waybill_items i
		JOIN waybills w ON w.id = i.waybill_id
		WHERE i.asset_id = ?`, id)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query open reservations: %w", err)
	}
	defer rows.Close()

	var reserved int64
	site := make(map[ledger.SiteID]int64)
	for rows.Next() {
		var (
			typ           waybill.Type
			status        waybill.Status
			siteID        ledger.SiteID
			sent          bool
			qty, returned int64
		)
		if err := rows.Scan(&typ, &status, &siteID, &sent, &qty, &returned); err != nil {
			return 0, nil, err
		}
		remaining := qty - returned
		switch typ {
		case waybill.TypeWaybill:
			if !sent {
				if status == waybill.StatusOutstanding {
					reserved += qty
				}
				continue
			}
			site[siteID] += remaining
		case waybill.TypeReturn:
			if status == waybill.StatusOutstanding || status == waybill.StatusPartialReturned {
				reserved += remaining
			}
			site[siteID] -= qty
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	var checkedOut sql.NullInt64
	err = q.QueryRowContext(ctx, `
		SELECT SUM(quantity - returned - missing - damaged)
		FROM checkouts WHERE asset_id = ? AND status = ?`,
		id, checkout.StatusOutstanding,
	).Scan(&checkedOut)
	if err != nil {
		return 0, nil, err
	}
	reserved += checkedOut.Int64

	return reserved, site, nil
}

// =============================================================================
// TRANSACTIONS (ledger.TxStore)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore exposes every capability of the parent against one *sql.Tx.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

var (
	_ ledger.Store             = (*txStore)(nil)
	_ ledger.ReservationSource = (*txStore)(nil)
	_ waybill.Store            = (*txStore)(nil)
	_ checkout.Store           = (*txStore)(nil)
)

func (ts *txStore) GetAsset(ctx context.Context, id ledger.AssetID) (*ledger.Asset, error) {
	return ts.parent.getAsset(ctx, ts.tx, id)
}

func (ts *txStore) SaveAsset(ctx context.Context, a *ledger.Asset) error {
	return ts.parent.saveAsset(ctx, ts.tx, a)
}

func (ts *txStore) ListAssets(ctx context.Context) ([]ledger.Asset, error) {
	return ts.parent.listAssets(ctx, ts.tx)
}

func (ts *txStore) AppendMovement(ctx context.Context, m ledger.Movement) error {
	return ts.parent.appendMovement(ctx, ts.tx, m)
}

func (ts *txStore) MovementsByAsset(ctx context.Context, id ledger.AssetID, limit int) ([]ledger.Movement, error) {
	return ts.parent.movementsByAsset(ctx, ts.tx, id, limit)
}

func (ts *txStore) GetWaybill(ctx context.Context, id ledger.DocumentID) (*waybill.Waybill, error) {
	return ts.parent.getWaybill(ctx, ts.tx, id)
}

func (ts *txStore) SaveWaybill(ctx context.Context, w *waybill.Waybill) error {
	return ts.parent.saveWaybill(ctx, ts.tx, w)
}

func (ts *txStore) DeleteWaybill(ctx context.Context, id ledger.DocumentID) error {
	return ts.parent.deleteWaybill(ctx, ts.tx, id)
}

func (ts *txStore) ListWaybills(ctx context.Context) ([]waybill.Waybill, error) {
	return ts.parent.listWaybills(ctx, ts.tx)
}

func (ts *txStore) SaveReturnBill(ctx context.Context, rb *waybill.ReturnBill) error {
	return ts.parent.saveReturnBill(ctx, ts.tx, rb)
}

func (ts *txStore) ReturnBillsByWaybill(ctx context.Context, id ledger.DocumentID) ([]waybill.ReturnBill, error) {
	return ts.parent.returnBillsByWaybill(ctx, ts.tx, id)
}

func (ts *txStore) GetCheckout(ctx context.Context, id ledger.DocumentID) (*checkout.QuickCheckout, error) {
	return ts.parent.getCheckout(ctx, ts.tx, id)
}

func (ts *txStore) SaveCheckout(ctx context.Context, c *checkout.QuickCheckout) error {
	return ts.parent.saveCheckout(ctx, ts.tx, c)
}

func (ts *txStore) ListCheckouts(ctx context.Context) ([]checkout.QuickCheckout, error) {
	return ts.parent.listCheckouts(ctx, ts.tx)
}

func (ts *txStore) OpenReservations(ctx context.Context, id ledger.AssetID) (int64, map[ledger.SiteID]int64, error) {
	return ts.parent.openReservations(ctx, ts.tx, id)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset wipes every table. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"return_items", "return_bills", "waybill_items", "waybills",
		"checkouts", "movements", "assets",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// Helper functions

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
