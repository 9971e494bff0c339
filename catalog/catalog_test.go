package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depot/stock-engine/catalog"
	"github.com/depot/stock-engine/ledger"
	memstore "github.com/depot/stock-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*catalog.Service, *memstore.Memory) {
	t.Helper()
	store := memstore.NewMemory()
	return catalog.NewService(ledger.New(store)), store
}

func drillDef() catalog.AssetJSON {
	return catalog.AssetJSON{
		ID:          "drill-dcd796",
		Name:        "DeWalt DCD796 Hammer Drill",
		Quantity:    12,
		MinQuantity: 4,
		UnitCost:    "129.90",
		Equipment: &catalog.EquipmentJSON{
			PowerSource:         "battery",
			ElectricConsumption: "0.06",
		},
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestService_Register_CreatesAssetWithInitialStock(t *testing.T) {
	// GIVEN: A fresh catalog
	// WHEN: Registering a definition with 12 units
	// THEN: All 12 land available and the registration is journaled

	s, store := newTestService(t)
	ctx := context.Background()

	a, err := s.Register(ctx, drillDef())
	require.NoError(t, err)
	assert.Equal(t, int64(12), a.Quantity)
	assert.Equal(t, int64(12), a.AvailableQuantity)
	assert.Equal(t, "battery", a.Equipment.PowerSource)
	assert.True(t, a.UnitCost.Equal(decimal.RequireFromString("129.90")))
	assert.NoError(t, a.CheckPartition())

	moves, err := store.MovementsByAsset(ctx, a.ID, 5)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, ledger.MovementRestock, moves[0].Kind)
	assert.Equal(t, int64(12), moves[0].Quantity)
}

func TestService_Register_DuplicateID_Rejected(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, drillDef())
	require.NoError(t, err)

	_, err = s.Register(ctx, drillDef())
	assert.ErrorIs(t, err, ledger.ErrDuplicateAsset)
}

func TestService_Register_ZeroQuantity_NoMovement(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()

	def := drillDef()
	def.Quantity = 0
	a, err := s.Register(ctx, def)
	require.NoError(t, err)

	moves, err := store.MovementsByAsset(ctx, a.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestService_Register_InvalidDefinition_Rejected(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	for name, def := range map[string]catalog.AssetJSON{
		"missing id":        {Name: "x", Quantity: 1},
		"missing name":      {ID: "x", Quantity: 1},
		"negative quantity": {ID: "x", Name: "x", Quantity: -1},
		"bad unit cost":     {ID: "x", Name: "x", UnitCost: "a lot"},
	} {
		_, err := s.Register(ctx, def)
		assert.Error(t, err, name)
	}
}

// =============================================================================
// THRESHOLDS AND RESTOCK
// =============================================================================

func TestService_UpdateThreshold(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	registered, err := s.Register(ctx, drillDef())
	require.NoError(t, err)

	a, err := s.UpdateThreshold(ctx, "drill-dcd796", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), a.MinQuantity)

	stored, err := store.GetAsset(ctx, "drill-dcd796")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.MinQuantity)
	assert.True(t, stored.UpdatedAt.After(registered.UpdatedAt),
		"a successful threshold write refreshes updated_at")

	_, err = s.UpdateThreshold(ctx, "drill-dcd796", -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	_, err = s.UpdateThreshold(ctx, "ghost", 1)
	assert.True(t, ledger.IsNotFound(err))
}

func TestService_Restock_GrowsAvailableStock(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	_, err := s.Register(ctx, drillDef())
	require.NoError(t, err)

	require.NoError(t, s.Restock(ctx, "drill-dcd796", 8, decimal.RequireFromString("150.00")))

	a, err := store.GetAsset(ctx, "drill-dcd796")
	require.NoError(t, err)
	assert.Equal(t, int64(20), a.Quantity)
	assert.Equal(t, int64(20), a.AvailableQuantity)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestService_LowStock_MostDepletedFirst(t *testing.T) {
	// GIVEN: Three assets, two at or under threshold with different deficits
	// WHEN: Listing low stock
	// THEN: The deeper deficit comes first; healthy stock is excluded

	s, _ := newTestService(t)
	ctx := context.Background()

	for _, def := range []catalog.AssetJSON{
		{ID: "cement", Name: "Cement", Quantity: 2, MinQuantity: 10}, // deficit 8
		{ID: "helmet", Name: "Helmet", Quantity: 4, MinQuantity: 5},  // deficit 1
		{ID: "drill", Name: "Drill", Quantity: 20, MinQuantity: 5},   // healthy
	} {
		_, err := s.Register(ctx, def)
		require.NoError(t, err)
	}

	low, err := s.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, ledger.AssetID("cement"), low[0].ID)
	assert.Equal(t, ledger.AssetID("helmet"), low[1].ID)
}

func TestService_Valuation_SumsStockValue(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, catalog.AssetJSON{ID: "a", Name: "A", Quantity: 10, UnitCost: "2.50"})
	require.NoError(t, err)
	_, err = s.Register(ctx, catalog.AssetJSON{ID: "b", Name: "B", Quantity: 3, UnitCost: "100.00"})
	require.NoError(t, err)
	_, err = s.Register(ctx, catalog.AssetJSON{ID: "c", Name: "C", Quantity: 5}) // no cost on record
	require.NoError(t, err)

	total, err := s.Valuation(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("325.00")), "got %s", total)
}

// =============================================================================
// JSON ROUND-TRIP
// =============================================================================

func TestAssetFactory_ParseAsset_RoundTrip(t *testing.T) {
	f := catalog.NewAssetFactory()

	a, err := f.ParseAsset(`{
		"id": "generator-5kw",
		"name": "Honda 5kW Generator",
		"quantity": 3,
		"min_quantity": 1,
		"unit_cost": "2400.00",
		"equipment": {"power_source": "fuel", "fuel_consumption": "1.9"}
	}`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.AvailableQuantity)
	assert.True(t, a.Equipment.FuelConsumption.Equal(decimal.RequireFromString("1.9")))

	back := f.ToJSON(a)
	assert.Equal(t, "generator-5kw", back.ID)
	assert.Equal(t, "2400", back.UnitCost)
	require.NotNil(t, back.Equipment)
	assert.Equal(t, "fuel", back.Equipment.PowerSource)
	assert.Equal(t, "1.9", back.Equipment.FuelConsumption)
}

func TestAssetFactory_ParseAsset_MaterialWithoutEquipment(t *testing.T) {
	f := catalog.NewAssetFactory()

	a, err := f.ParseAsset(`{"id": "cement-42.5", "name": "Cement 42.5R 25kg", "quantity": 200}`)
	require.NoError(t, err)
	assert.Equal(t, "", a.Equipment.PowerSource)

	back := f.ToJSON(a)
	assert.Nil(t, back.Equipment, "materials round-trip without an equipment block")
}

func TestAssetFactory_ParseAsset_Malformed(t *testing.T) {
	f := catalog.NewAssetFactory()
	_, err := f.ParseAsset(`{"id": `)
	assert.Error(t, err)
}
