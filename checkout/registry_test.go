package checkout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depot/stock-engine/checkout"
	"github.com/depot/stock-engine/ledger"
	memstore "github.com/depot/stock-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRegistry(t *testing.T) (*checkout.Registry, *memstore.Memory) {
	t.Helper()
	store := memstore.NewMemory()
	return checkout.NewRegistry(ledger.New(store)), store
}

func seedAsset(t *testing.T, store *memstore.Memory, id string, qty int64) {
	t.Helper()
	require.NoError(t, store.SaveAsset(context.Background(), &ledger.Asset{
		ID: ledger.AssetID(id), Name: id,
		Quantity: qty, AvailableQuantity: qty,
		SiteQuantities: ledger.SiteAllocationMap{},
	}))
}

func getAsset(t *testing.T, store *memstore.Memory, id string) *ledger.Asset {
	t.Helper()
	a, err := store.GetAsset(context.Background(), ledger.AssetID(id))
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

// =============================================================================
// CHECKOUT
// =============================================================================

func TestRegistry_Checkout_ReservesStock(t *testing.T) {
	// GIVEN: 4 drills available
	// WHEN: An employee checks out 2
	// THEN: They sit in the reserved pool under the checkout document

	r, store := newTestRegistry(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 4)

	c, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 2, Employee: "k.ivanova"})
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusOutstanding, c.Status)
	assert.Equal(t, int64(2), c.Remaining())

	a := getAsset(t, store, "drill")
	assert.Equal(t, int64(2), a.AvailableQuantity)
	assert.Equal(t, int64(2), a.ReservedQuantity)
}

func TestRegistry_Checkout_WithoutEmployee_Rejected(t *testing.T) {
	r, store := newTestRegistry(t)
	seedAsset(t, store, "drill", 4)

	_, err := r.Checkout(context.Background(), checkout.Request{AssetID: "drill", Quantity: 2})
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}

func TestRegistry_Checkout_OverAvailable_Rejected(t *testing.T) {
	r, store := newTestRegistry(t)
	seedAsset(t, store, "drill", 1)

	_, err := r.Checkout(context.Background(), checkout.Request{AssetID: "drill", Quantity: 2, Employee: "k.ivanova"})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	list, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "failed checkout must not persist a document")
}

// =============================================================================
// RETURNS
// =============================================================================

func TestRegistry_Return_Partial_StaysOutstanding(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 4)
	c, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 3, Employee: "k.ivanova"})
	require.NoError(t, err)

	updated, err := r.Return(ctx, c.ID, 1, ledger.ConditionGood)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusOutstanding, updated.Status)
	assert.Equal(t, int64(2), updated.Remaining())
	assert.Nil(t, updated.ReturnedAt)

	a := getAsset(t, store, "drill")
	assert.Equal(t, int64(2), a.AvailableQuantity)
	assert.Equal(t, int64(2), a.ReservedQuantity)
}

func TestRegistry_Return_Final_ResolvesStatus(t *testing.T) {
	// GIVEN: 3 checked out; 2 already came back good
	// WHEN: The last unit returns damaged
	// THEN: The checkout resolves (mixed outcome reads return_completed)

	r, store := newTestRegistry(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 4)
	c, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 3, Employee: "k.ivanova"})
	require.NoError(t, err)

	_, err = r.Return(ctx, c.ID, 2, ledger.ConditionGood)
	require.NoError(t, err)
	updated, err := r.Return(ctx, c.ID, 1, ledger.ConditionDamaged)
	require.NoError(t, err)

	assert.Equal(t, checkout.StatusReturnCompleted, updated.Status)
	require.NotNil(t, updated.ReturnedAt)

	a := getAsset(t, store, "drill")
	assert.Equal(t, int64(3), a.AvailableQuantity)
	assert.Equal(t, int64(0), a.ReservedQuantity)
	assert.Equal(t, int64(1), a.DamagedCount)
	assert.NoError(t, a.CheckPartition())
}

func TestRegistry_Return_EverythingMissing_ReadsLost(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 4)
	c, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 2, Employee: "k.ivanova"})
	require.NoError(t, err)

	updated, err := r.Return(ctx, c.ID, 2, ledger.ConditionMissing)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusLost, updated.Status)
	assert.Equal(t, int64(2), getAsset(t, store, "drill").MissingCount)
}

func TestRegistry_Return_EverythingDamaged_ReadsDamaged(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 4)
	c, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 2, Employee: "k.ivanova"})
	require.NoError(t, err)

	updated, err := r.Return(ctx, c.ID, 2, ledger.ConditionDamaged)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusDamaged, updated.Status)
}

func TestRegistry_Return_OverRemaining_Rejected(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 4)
	c, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 2, Employee: "k.ivanova"})
	require.NoError(t, err)
	_, err = r.Return(ctx, c.ID, 1, ledger.ConditionGood)
	require.NoError(t, err)

	_, err = r.Return(ctx, c.ID, 2, ledger.ConditionGood)
	require.Error(t, err)

	var qtyErr *ledger.InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, int64(1), qtyErr.Remaining)
}

func TestRegistry_Return_ResolvedCheckout_Rejected(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 4)
	c, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 1, Employee: "k.ivanova"})
	require.NoError(t, err)
	_, err = r.Return(ctx, c.ID, 1, ledger.ConditionGood)
	require.NoError(t, err)

	_, err = r.Return(ctx, c.ID, 1, ledger.ConditionGood)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestRegistry_Return_UnknownCheckout(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Return(context.Background(), "ghost", 1, ledger.ConditionGood)
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// OVERDUE
// =============================================================================

func TestRegistry_Overdue_FiltersByDueDateAndStatus(t *testing.T) {
	// GIVEN: One overdue, one due later, one overdue but already resolved
	// WHEN: Listing overdue checkouts
	// THEN: Only the open overdue one comes back

	r, store := newTestRegistry(t)
	ctx := context.Background()
	seedAsset(t, store, "drill", 10)

	now := time.Now().UTC()
	past := now.Add(-72 * time.Hour)
	future := now.Add(48 * time.Hour)

	late, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 1, Employee: "k.ivanova", DueAt: &past})
	require.NoError(t, err)
	_, err = r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 1, Employee: "m.petrov", DueAt: &future})
	require.NoError(t, err)
	resolved, err := r.Checkout(ctx, checkout.Request{AssetID: "drill", Quantity: 1, Employee: "a.novak", DueAt: &past})
	require.NoError(t, err)
	_, err = r.Return(ctx, resolved.ID, 1, ledger.ConditionGood)
	require.NoError(t, err)

	overdue, err := r.Overdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
}

func TestQuickCheckout_Overdue_NoDueDate_NeverOverdue(t *testing.T) {
	c := checkout.QuickCheckout{Quantity: 1, Status: checkout.StatusOutstanding}
	assert.False(t, c.Overdue(time.Now()))
}
