package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depot/stock-engine/checkout"
	"github.com/depot/stock-engine/ledger"
	memstore "github.com/depot/stock-engine/ledger/store"
	"github.com/depot/stock-engine/waybill"
)

// =============================================================================
// CONSISTENCY VALIDATOR
// =============================================================================

func TestValidator_Recompute_RebuildsCountersFromDocuments(t *testing.T) {
	// GIVEN: An asset whose stored counters were corrupted by an import,
	//        with a mix of open documents on the books:
	//          wb-1  outbound, not yet sent, 10 units   -> reserved
	//          wb-2  outbound, sent, 20 units, 5 back   -> 15 at site-a
	//          rw-1  return from site-a, 6 units, 2 in  -> 4 reserved, -6 site-a
	//          co-1  checkout, 3 units, 1 back          -> 2 reserved
	// WHEN: Recompute runs
	// THEN: reserved=16, site-a=9, available fills the remainder

	store := memstore.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveAsset(ctx, &ledger.Asset{
		ID: "scaffold", Name: "scaffold",
		Quantity:          100,
		AvailableQuantity: 1, // corrupted
		ReservedQuantity:  99,
		SiteQuantities:    ledger.SiteAllocationMap{},
		MissingCount:      2,
		DamagedCount:      3,
	}))

	require.NoError(t, store.SaveWaybill(ctx, &waybill.Waybill{
		ID: "wb-1", Type: waybill.TypeWaybill, SiteID: "site-b",
		Status: waybill.StatusOutstanding,
		Items:  []waybill.Item{{AssetID: "scaffold", Quantity: 10, Status: waybill.ItemOutstanding}},
	}))
	require.NoError(t, store.SaveWaybill(ctx, &waybill.Waybill{
		ID: "wb-2", Type: waybill.TypeWaybill, SiteID: "site-a",
		Status: waybill.StatusPartialReturned, SentAt: &now,
		Items: []waybill.Item{{AssetID: "scaffold", Quantity: 20, ReturnedQuantity: 5, Status: waybill.ItemPartialReturned}},
	}))
	require.NoError(t, store.SaveWaybill(ctx, &waybill.Waybill{
		ID: "rw-1", Type: waybill.TypeReturn, SiteID: "site-a",
		Status: waybill.StatusPartialReturned,
		Items:  []waybill.Item{{AssetID: "scaffold", Quantity: 6, ReturnedQuantity: 2, Status: waybill.ItemPartialReturned}},
	}))
	require.NoError(t, store.SaveCheckout(ctx, &checkout.QuickCheckout{
		ID: "co-1", AssetID: "scaffold", Quantity: 3, ReturnedQuantity: 1,
		Employee: "k.ivanova", Status: checkout.StatusOutstanding,
	}))

	v := ledger.NewValidator(store)
	a, err := v.Recompute(ctx, "scaffold")
	require.NoError(t, err)

	assert.Equal(t, int64(16), a.ReservedQuantity)
	assert.Equal(t, int64(9), a.SiteQuantities.At("site-a"))
	assert.Equal(t, int64(0), a.SiteQuantities.At("site-b"))
	assert.Equal(t, int64(100-16-9-2-3), a.AvailableQuantity)
	assert.NoError(t, a.CheckPartition())

	// The rebuild is journaled.
	moves, err := store.MovementsByAsset(ctx, "scaffold", 5)
	require.NoError(t, err)
	require.NotEmpty(t, moves)
	assert.Equal(t, ledger.MovementRecompute, moves[0].Kind)
}

func TestValidator_Recompute_OpenDocumentsExceedStock_Refused(t *testing.T) {
	// GIVEN: Open documents claiming more stock than physically exists
	// WHEN: Recompute runs
	// THEN: It refuses to write an impossible partition and leaves the row alone

	store := memstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.SaveAsset(ctx, &ledger.Asset{
		ID: "drill", Name: "drill",
		Quantity:          5,
		AvailableQuantity: 5,
		SiteQuantities:    ledger.SiteAllocationMap{},
	}))
	require.NoError(t, store.SaveWaybill(ctx, &waybill.Waybill{
		ID: "wb-1", Type: waybill.TypeWaybill, SiteID: "site-a",
		Status: waybill.StatusOutstanding,
		Items:  []waybill.Item{{AssetID: "drill", Quantity: 8, Status: waybill.ItemOutstanding}},
	}))

	v := ledger.NewValidator(store)
	_, err := v.Recompute(ctx, "drill")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvariantViolation)

	a, err := store.GetAsset(ctx, "drill")
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.AvailableQuantity, "refused recompute must not write")
}

func TestValidator_Recompute_UnknownAsset(t *testing.T) {
	v := ledger.NewValidator(memstore.NewMemory())
	_, err := v.Recompute(context.Background(), "ghost")
	assert.True(t, ledger.IsNotFound(err))
}

func TestValidator_RecomputeAll_CoversEveryAsset(t *testing.T) {
	store := memstore.NewMemory()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveAsset(ctx, &ledger.Asset{
			ID: ledger.AssetID(id), Name: id,
			Quantity: 10, AvailableQuantity: 4, ReservedQuantity: 6,
			SiteQuantities: ledger.SiteAllocationMap{},
		}))
	}

	v := ledger.NewValidator(store)
	n, err := v.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// No open documents exist, so everything collapses back to available.
	for _, id := range []string{"a", "b", "c"} {
		a, err := store.GetAsset(ctx, ledger.AssetID(id))
		require.NoError(t, err)
		assert.Equal(t, int64(10), a.AvailableQuantity)
		assert.Equal(t, int64(0), a.ReservedQuantity)
	}
}
