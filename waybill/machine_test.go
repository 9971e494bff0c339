package waybill_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depot/stock-engine/ledger"
	memstore "github.com/depot/stock-engine/ledger/store"
	"github.com/depot/stock-engine/waybill"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestMachine(t *testing.T) (*waybill.StateMachine, *ledger.AssetLedger, *memstore.Memory) {
	t.Helper()
	store := memstore.NewMemory()
	l := ledger.New(store)
	return waybill.NewStateMachine(l), l, store
}

func seedAsset(t *testing.T, store *memstore.Memory, id string, qty int64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.SaveAsset(context.Background(), &ledger.Asset{
		ID:                ledger.AssetID(id),
		Name:              id,
		Quantity:          qty,
		AvailableQuantity: qty,
		SiteQuantities:    ledger.SiteAllocationMap{},
		UnitCost:          decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))
}

func getAsset(t *testing.T, store *memstore.Memory, id string) *ledger.Asset {
	t.Helper()
	a, err := store.GetAsset(context.Background(), ledger.AssetID(id))
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func outboundDraft(site string, items ...waybill.DraftItem) waybill.Draft {
	return waybill.Draft{
		Type:     waybill.TypeWaybill,
		SiteID:   ledger.SiteID(site),
		Items:    items,
		IssuedBy: "m.petrov",
	}
}

func line(asset string, qty int64) waybill.DraftItem {
	return waybill.DraftItem{AssetID: ledger.AssetID(asset), Quantity: qty}
}

// =============================================================================
// CREATE
// =============================================================================

func TestStateMachine_Create_ReservesEveryLine(t *testing.T) {
	// GIVEN: Two assets with plenty of stock
	// WHEN: Creating a two-line waybill
	// THEN: Both reservations land and the document is outstanding

	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)
	seedAsset(t, store, "mixer", 5)

	w, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4), line("mixer", 2)))
	require.NoError(t, err)
	assert.Equal(t, waybill.StatusOutstanding, w.Status)
	assert.Len(t, w.Items, 2)

	assert.Equal(t, int64(4), getAsset(t, store, "drill").ReservedQuantity)
	assert.Equal(t, int64(2), getAsset(t, store, "mixer").ReservedQuantity)
}

func TestStateMachine_Create_OneShortLine_NothingReserved(t *testing.T) {
	// GIVEN: The second line exceeds availability
	// WHEN: Creating the waybill
	// THEN: The whole creation rolls back, including the first line

	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)
	seedAsset(t, store, "mixer", 1)

	_, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4), line("mixer", 2)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	assert.Equal(t, int64(0), getAsset(t, store, "drill").ReservedQuantity)
	assert.Equal(t, int64(10), getAsset(t, store, "drill").AvailableQuantity)

	waybills, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, waybills)
}

func TestStateMachine_Create_DuplicateAssetLine_Rejected(t *testing.T) {
	m, _, store := newTestMachine(t)
	seedAsset(t, store, "drill", 10)

	_, err := m.Create(context.Background(), outboundDraft("site-a", line("drill", 1), line("drill", 2)))
	assert.ErrorIs(t, err, ledger.ErrDuplicateAsset)
}

func TestStateMachine_Create_EmptyOrInvalidDraft_Rejected(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()

	_, err := m.Create(ctx, outboundDraft("site-a"))
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity, "no items")

	_, err = m.Create(ctx, outboundDraft("site-a", line("drill", 0)))
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity, "zero quantity")

	_, err = m.Create(ctx, waybill.Draft{Type: "shipment", SiteID: "site-a", Items: []waybill.DraftItem{line("drill", 1)}})
	assert.Error(t, err, "unknown type")
}

// =============================================================================
// EDIT
// =============================================================================

func TestStateMachine_Edit_AppliesPerLineDeltas(t *testing.T) {
	// GIVEN: An outstanding waybill with drill=4, mixer=2
	// WHEN: Editing to drill=6 (grow), mixer dropped, helmet=3 (new)
	// THEN: Only the deltas move through the ledger

	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)
	seedAsset(t, store, "mixer", 5)
	seedAsset(t, store, "helmet", 8)

	w, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4), line("mixer", 2)))
	require.NoError(t, err)

	edited, err := m.Edit(ctx, w.ID, []waybill.DraftItem{line("drill", 6), line("helmet", 3)})
	require.NoError(t, err)
	assert.Len(t, edited.Items, 2)

	assert.Equal(t, int64(6), getAsset(t, store, "drill").ReservedQuantity)
	assert.Equal(t, int64(0), getAsset(t, store, "mixer").ReservedQuantity)
	assert.Equal(t, int64(5), getAsset(t, store, "mixer").AvailableQuantity)
	assert.Equal(t, int64(3), getAsset(t, store, "helmet").ReservedQuantity)
}

func TestStateMachine_Edit_IncreaseBeyondStock_LeavesDocumentUnchanged(t *testing.T) {
	// GIVEN: drill has only 10 total, 4 already reserved on the waybill
	// WHEN: Editing the line up to 12
	// THEN: The edit fails atomically; reservation and items stay at 4

	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	w, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)

	_, err = m.Edit(ctx, w.ID, []waybill.DraftItem{line("drill", 12)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	assert.Equal(t, int64(4), getAsset(t, store, "drill").ReservedQuantity)
	reloaded, err := m.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), reloaded.Items[0].Quantity)
}

func TestStateMachine_Edit_SentWaybill_Rejected(t *testing.T) {
	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	w, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)
	_, err = m.SendToSite(ctx, w.ID, time.Now())
	require.NoError(t, err)

	_, err = m.Edit(ctx, w.ID, []waybill.DraftItem{line("drill", 2)})
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

// =============================================================================
// SEND TO SITE
// =============================================================================

func TestStateMachine_SendToSite_AllocatesEveryLine(t *testing.T) {
	// GIVEN: An outstanding two-line waybill
	// WHEN: Sending it to the site
	// THEN: Reserved stock moves to the site allocation and SentAt is stamped

	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)
	seedAsset(t, store, "mixer", 5)

	w, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4), line("mixer", 2)))
	require.NoError(t, err)

	sentDate := time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	sent, err := m.SendToSite(ctx, w.ID, sentDate)
	require.NoError(t, err)
	assert.Equal(t, waybill.StatusSentToSite, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, sentDate, *sent.SentAt)

	drill := getAsset(t, store, "drill")
	assert.Equal(t, int64(0), drill.ReservedQuantity)
	assert.Equal(t, int64(4), drill.SiteQuantities.At("site-a"))
}

func TestStateMachine_SendToSite_Twice_Rejected(t *testing.T) {
	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	w, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)
	_, err = m.SendToSite(ctx, w.ID, time.Now())
	require.NoError(t, err)

	_, err = m.SendToSite(ctx, w.ID, time.Now())
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestStateMachine_SendToSite_ReturnWaybill_Rejected(t *testing.T) {
	// Return waybills have no send step: the stock is already in transit.
	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	out, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)
	_, err = m.SendToSite(ctx, out.ID, time.Now())
	require.NoError(t, err)

	ret, err := m.Create(ctx, waybill.Draft{
		Type: waybill.TypeReturn, SiteID: "site-a",
		Items: []waybill.DraftItem{line("drill", 2)},
	})
	require.NoError(t, err)

	_, err = m.SendToSite(ctx, ret.ID, time.Now())
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

// =============================================================================
// DELETE
// =============================================================================

func TestStateMachine_Delete_ReleasesReservations(t *testing.T) {
	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	w, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, w.ID))

	a := getAsset(t, store, "drill")
	assert.Equal(t, int64(10), a.AvailableQuantity)
	assert.Equal(t, int64(0), a.ReservedQuantity)

	_, err = m.Get(ctx, w.ID)
	assert.True(t, ledger.IsNotFound(err))
}

func TestStateMachine_Delete_SentWaybill_Rejected(t *testing.T) {
	// Sent stock is at the site; the document is the only record of it.
	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	w, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)
	_, err = m.SendToSite(ctx, w.ID, time.Now())
	require.NoError(t, err)

	err = m.Delete(ctx, w.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

// =============================================================================
// RETURN WAYBILLS (site -> warehouse)
// =============================================================================

func TestStateMachine_Create_ReturnWaybill_PullsFromSite(t *testing.T) {
	// GIVEN: 4 drills at site-a from a sent waybill
	// WHEN: Creating a return waybill for 3 of them
	// THEN: 3 move from the site allocation to reserved (in transit back)

	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	out, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)
	_, err = m.SendToSite(ctx, out.ID, time.Now())
	require.NoError(t, err)

	ret, err := m.Create(ctx, waybill.Draft{
		Type: waybill.TypeReturn, SiteID: "site-a",
		Items: []waybill.DraftItem{line("drill", 3)}, IssuedBy: "m.petrov",
	})
	require.NoError(t, err)
	assert.Equal(t, waybill.StatusOutstanding, ret.Status)

	a := getAsset(t, store, "drill")
	assert.Equal(t, int64(1), a.SiteQuantities.At("site-a"))
	assert.Equal(t, int64(3), a.ReservedQuantity)
	assert.NoError(t, a.CheckPartition())
}

func TestStateMachine_Create_ReturnWaybill_OverSiteAllocation_Rejected(t *testing.T) {
	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	out, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)
	_, err = m.SendToSite(ctx, out.ID, time.Now())
	require.NoError(t, err)

	_, err = m.Create(ctx, waybill.Draft{
		Type: waybill.TypeReturn, SiteID: "site-a",
		Items: []waybill.DraftItem{line("drill", 5)},
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

func TestStateMachine_Delete_ReturnWaybill_PutsStockBackOnSite(t *testing.T) {
	m, _, store := newTestMachine(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	out, err := m.Create(ctx, outboundDraft("site-a", line("drill", 4)))
	require.NoError(t, err)
	_, err = m.SendToSite(ctx, out.ID, time.Now())
	require.NoError(t, err)

	ret, err := m.Create(ctx, waybill.Draft{
		Type: waybill.TypeReturn, SiteID: "site-a",
		Items: []waybill.DraftItem{line("drill", 3)},
	})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, ret.ID))

	a := getAsset(t, store, "drill")
	assert.Equal(t, int64(4), a.SiteQuantities.At("site-a"))
	assert.Equal(t, int64(0), a.ReservedQuantity)
}
