/*
Package store provides the in-memory Store implementation used by tests
and by the demo server when no database path is given.

PURPOSE:
  A single mutex-guarded store holding assets, movements, waybills,
  return bills and checkouts. WithTx simulates a transaction with a
  snapshot of every map, restored on error, so callers get the same
  all-or-nothing behavior the SQLite store provides.

CAPABILITIES:
  - ledger.TxStore for the asset ledger
  - ledger.ReservationSource for consistency recomputes
  - waybill.Store and checkout.Store for the document flows

  All reads hand out deep copies and all writes store deep copies, so a
  caller can never mutate stored state through a stale pointer. That is
  also what makes the snapshot cheap: restoring the old maps is enough.
*/
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/depot/stock-engine/checkout"
	"github.com/depot/stock-engine/ledger"
	"github.com/depot/stock-engine/waybill"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	assets      map[ledger.AssetID]*ledger.Asset
	movements   map[ledger.AssetID][]ledger.Movement
	waybills    map[ledger.DocumentID]*waybill.Waybill
	returnBills map[ledger.DocumentID][]waybill.ReturnBill // keyed by waybill ID
	checkouts   map[ledger.DocumentID]*checkout.QuickCheckout
}

func NewMemory() *Memory {
	return &Memory{
		assets:      make(map[ledger.AssetID]*ledger.Asset),
		movements:   make(map[ledger.AssetID][]ledger.Movement),
		waybills:    make(map[ledger.DocumentID]*waybill.Waybill),
		returnBills: make(map[ledger.DocumentID][]waybill.ReturnBill),
		checkouts:   make(map[ledger.DocumentID]*checkout.QuickCheckout),
	}
}

// Compile-time capability checks.
var (
	_ ledger.TxStore           = (*Memory)(nil)
	_ ledger.ReservationSource = (*Memory)(nil)
	_ waybill.Store            = (*Memory)(nil)
	_ checkout.Store           = (*Memory)(nil)
)

// -----------------------------------------------------------------------------
// ledger.Store
// -----------------------------------------------------------------------------

func (m *Memory) GetAsset(_ context.Context, id ledger.AssetID) (*ledger.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAssetLocked(id)
}

func (m *Memory) SaveAsset(_ context.Context, a *ledger.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAssetLocked(a)
}

func (m *Memory) ListAssets(_ context.Context) ([]ledger.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAssetsLocked()
}

func (m *Memory) AppendMovement(_ context.Context, mv ledger.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendMovementLocked(mv)
}

func (m *Memory) MovementsByAsset(_ context.Context, id ledger.AssetID, limit int) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.movementsLocked(id, limit)
}

func (m *Memory) getAssetLocked(id ledger.AssetID) (*ledger.Asset, error) {
	a, ok := m.assets[id]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (m *Memory) saveAssetLocked(a *ledger.Asset) error {
	m.assets[a.ID] = a.Clone()
	return nil
}

func (m *Memory) listAssetsLocked() ([]ledger.Asset, error) {
	out := make([]ledger.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) appendMovementLocked(mv ledger.Movement) error {
	m.movements[mv.AssetID] = append(m.movements[mv.AssetID], mv)
	return nil
}

func (m *Memory) movementsLocked(id ledger.AssetID, limit int) ([]ledger.Movement, error) {
	all := m.movements[id]
	// Newest first.
	out := make([]ledger.Movement, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// waybill.Store
// -----------------------------------------------------------------------------

func (m *Memory) GetWaybill(_ context.Context, id ledger.DocumentID) (*waybill.Waybill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getWaybillLocked(id)
}

func (m *Memory) SaveWaybill(_ context.Context, w *waybill.Waybill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveWaybillLocked(w)
}

func (m *Memory) DeleteWaybill(_ context.Context, id ledger.DocumentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.waybills, id)
	return nil
}

func (m *Memory) ListWaybills(_ context.Context) ([]waybill.Waybill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listWaybillsLocked()
}

func (m *Memory) SaveReturnBill(_ context.Context, rb *waybill.ReturnBill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveReturnBillLocked(rb)
}

func (m *Memory) ReturnBillsByWaybill(_ context.Context, id ledger.DocumentID) ([]waybill.ReturnBill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.returnBillsLocked(id)
}

func (m *Memory) getWaybillLocked(id ledger.DocumentID) (*waybill.Waybill, error) {
	w, ok := m.waybills[id]
	if !ok {
		return nil, nil
	}
	return cloneWaybill(w), nil
}

func (m *Memory) saveWaybillLocked(w *waybill.Waybill) error {
	m.waybills[w.ID] = cloneWaybill(w)
	return nil
}

func (m *Memory) listWaybillsLocked() ([]waybill.Waybill, error) {
	out := make([]waybill.Waybill, 0, len(m.waybills))
	for _, w := range m.waybills {
		out = append(out, *cloneWaybill(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) saveReturnBillLocked(rb *waybill.ReturnBill) error {
	cp := *rb
	cp.Items = append([]waybill.ReturnItem(nil), rb.Items...)
	m.returnBills[rb.WaybillID] = append(m.returnBills[rb.WaybillID], cp)
	return nil
}

func (m *Memory) returnBillsLocked(id ledger.DocumentID) ([]waybill.ReturnBill, error) {
	src := m.returnBills[id]
	out := make([]waybill.ReturnBill, 0, len(src))
	for _, rb := range src {
		cp := rb
		cp.Items = append([]waybill.ReturnItem(nil), rb.Items...)
		out = append(out, cp)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// checkout.Store
// -----------------------------------------------------------------------------

func (m *Memory) GetCheckout(_ context.Context, id ledger.DocumentID) (*checkout.QuickCheckout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCheckoutLocked(id)
}

func (m *Memory) SaveCheckout(_ context.Context, c *checkout.QuickCheckout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCheckoutLocked(c)
}

func (m *Memory) ListCheckouts(_ context.Context) ([]checkout.QuickCheckout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCheckoutsLocked()
}

func (m *Memory) getCheckoutLocked(id ledger.DocumentID) (*checkout.QuickCheckout, error) {
	c, ok := m.checkouts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) saveCheckoutLocked(c *checkout.QuickCheckout) error {
	cp := *c
	m.checkouts[c.ID] = &cp
	return nil
}

func (m *Memory) listCheckoutsLocked() ([]checkout.QuickCheckout, error) {
	out := make([]checkout.QuickCheckout, 0, len(m.checkouts))
	for _, c := range m.checkouts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// ledger.ReservationSource
// -----------------------------------------------------------------------------

// OpenReservations derives the reserved total and per-site totals for an
// asset from the documents alone:
//
//	reserved = outstanding waybill lines (not yet sent)
//	         + open return waybill lines still in transit
//	         + outstanding checkout remainders
//	site     = remaining lines of every sent waybill,
//	           minus the full quantity every return waybill drew from
//	           that site when it was created
func (m *Memory) OpenReservations(_ context.Context, id ledger.AssetID) (int64, map[ledger.SiteID]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openReservationsLocked(id)
}

func (m *Memory) openReservationsLocked(id ledger.AssetID) (int64, map[ledger.SiteID]int64, error) {
	var reserved int64
	site := make(map[ledger.SiteID]int64)

	for _, w := range m.waybills {
		it := w.Item(id)
		if it == nil {
			continue
		}
		switch w.Type {
		case waybill.TypeWaybill:
			if w.SentAt == nil {
				if w.Status == waybill.StatusOutstanding {
					reserved += it.Quantity
				}
				continue
			}
			site[w.SiteID] += it.Remaining()
		case waybill.TypeReturn:
			if w.Status == waybill.StatusOutstanding || w.Status == waybill.StatusPartialReturned {
				reserved += it.Remaining()
			}
			site[w.SiteID] -= it.Quantity
		}
	}
	for _, c := range m.checkouts {
		if c.AssetID == id && c.Status == checkout.StatusOutstanding {
			reserved += c.Remaining()
		}
	}
	return reserved, site, nil
}

// =============================================================================
// TRANSACTIONS - snapshot and restore
// =============================================================================

// WithTx runs fn under the write lock against a view that skips locking.
// On error every map is restored from a snapshot, so partial work never
// becomes visible.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// Reset clears every map. Used by the demo scenario loader.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = make(map[ledger.AssetID]*ledger.Asset)
	m.movements = make(map[ledger.AssetID][]ledger.Movement)
	m.waybills = make(map[ledger.DocumentID]*waybill.Waybill)
	m.returnBills = make(map[ledger.DocumentID][]waybill.ReturnBill)
	m.checkouts = make(map[ledger.DocumentID]*checkout.QuickCheckout)
	return nil
}

type memorySnapshot struct {
	assets      map[ledger.AssetID]*ledger.Asset
	movements   map[ledger.AssetID][]ledger.Movement
	waybills    map[ledger.DocumentID]*waybill.Waybill
	returnBills map[ledger.DocumentID][]waybill.ReturnBill
	checkouts   map[ledger.DocumentID]*checkout.QuickCheckout
}

// snapshot copies the maps, not the records. Writes replace map entries
// with fresh copies and never mutate stored records in place, so the old
// pointers stay valid for rollback.
func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		assets:      make(map[ledger.AssetID]*ledger.Asset, len(m.assets)),
		movements:   make(map[ledger.AssetID][]ledger.Movement, len(m.movements)),
		waybills:    make(map[ledger.DocumentID]*waybill.Waybill, len(m.waybills)),
		returnBills: make(map[ledger.DocumentID][]waybill.ReturnBill, len(m.returnBills)),
		checkouts:   make(map[ledger.DocumentID]*checkout.QuickCheckout, len(m.checkouts)),
	}
	for k, v := range m.assets {
		s.assets[k] = v
	}
	for k, v := range m.movements {
		s.movements[k] = v[:len(v):len(v)]
	}
	for k, v := range m.waybills {
		s.waybills[k] = v
	}
	for k, v := range m.returnBills {
		s.returnBills[k] = v[:len(v):len(v)]
	}
	for k, v := range m.checkouts {
		s.checkouts[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.assets = s.assets
	m.movements = s.movements
	m.waybills = s.waybills
	m.returnBills = s.returnBills
	m.checkouts = s.checkouts
}

// txView is the store handed to WithTx callbacks. The parent's write lock
// is already held, so it calls the locked variants directly.
type txView struct {
	parent *Memory
}

var (
	_ ledger.Store             = (*txView)(nil)
	_ ledger.ReservationSource = (*txView)(nil)
	_ waybill.Store            = (*txView)(nil)
	_ checkout.Store           = (*txView)(nil)
)

func (tv *txView) GetAsset(_ context.Context, id ledger.AssetID) (*ledger.Asset, error) {
	return tv.parent.getAssetLocked(id)
}

func (tv *txView) SaveAsset(_ context.Context, a *ledger.Asset) error {
	return tv.parent.saveAssetLocked(a)
}

func (tv *txView) ListAssets(_ context.Context) ([]ledger.Asset, error) {
	return tv.parent.listAssetsLocked()
}

func (tv *txView) AppendMovement(_ context.Context, mv ledger.Movement) error {
	return tv.parent.appendMovementLocked(mv)
}

func (tv *txView) MovementsByAsset(_ context.Context, id ledger.AssetID, limit int) ([]ledger.Movement, error) {
	return tv.parent.movementsLocked(id, limit)
}

func (tv *txView) GetWaybill(_ context.Context, id ledger.DocumentID) (*waybill.Waybill, error) {
	return tv.parent.getWaybillLocked(id)
}

func (tv *txView) SaveWaybill(_ context.Context, w *waybill.Waybill) error {
	return tv.parent.saveWaybillLocked(w)
}

func (tv *txView) DeleteWaybill(_ context.Context, id ledger.DocumentID) error {
	delete(tv.parent.waybills, id)
	return nil
}

func (tv *txView) ListWaybills(_ context.Context) ([]waybill.Waybill, error) {
	return tv.parent.listWaybillsLocked()
}

func (tv *txView) SaveReturnBill(_ context.Context, rb *waybill.ReturnBill) error {
	return tv.parent.saveReturnBillLocked(rb)
}

func (tv *txView) ReturnBillsByWaybill(_ context.Context, id ledger.DocumentID) ([]waybill.ReturnBill, error) {
	return tv.parent.returnBillsLocked(id)
}

func (tv *txView) GetCheckout(_ context.Context, id ledger.DocumentID) (*checkout.QuickCheckout, error) {
	return tv.parent.getCheckoutLocked(id)
}

func (tv *txView) SaveCheckout(_ context.Context, c *checkout.QuickCheckout) error {
	return tv.parent.saveCheckoutLocked(c)
}

func (tv *txView) ListCheckouts(_ context.Context) ([]checkout.QuickCheckout, error) {
	return tv.parent.listCheckoutsLocked()
}

func (tv *txView) OpenReservations(_ context.Context, id ledger.AssetID) (int64, map[ledger.SiteID]int64, error) {
	return tv.parent.openReservationsLocked(id)
}

func cloneWaybill(w *waybill.Waybill) *waybill.Waybill {
	cp := *w
	cp.Items = append([]waybill.Item(nil), w.Items...)
	if w.SentAt != nil {
		t := *w.SentAt
		cp.SentAt = &t
	}
	return &cp
}
