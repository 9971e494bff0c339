/*
Package catalog manages the asset master data: what the depot stocks,
reorder thresholds, unit costs, and equipment characteristics.

PURPOSE:
  Converts JSON asset definitions into ledger.Asset records and provides
  the registration, restocking and reporting operations built on them.
  JSON definitions let the warehouse import its catalog from files or an
  admin UI without code changes.

JSON SCHEMA:
  {
    "id": "drill-dcd796",
    "name": "DeWalt DCD796 Hammer Drill",
    "quantity": 12,
    "min_quantity": 4,
    "unit_cost": "129.90",
    "equipment": {
      "power_source": "battery",
      "electric_consumption": "0.06"
    }
  }

KEY FEATURES:
  - Validates definitions before anything touches the ledger
  - Decimal money fields parsed from strings, never floats
  - Round-trips: ToJSON(FromJSON(x)) preserves the definition

SEE ALSO:
  - catalog.go: registration and reporting on top of the definitions
  - ledger/types.go: the Asset record these definitions become
*/
package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/depot/stock-engine/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// AssetJSON is the JSON representation of a catalog entry.
type AssetJSON struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Quantity    int64          `json:"quantity"`
	MinQuantity int64          `json:"min_quantity,omitempty"`
	UnitCost    string         `json:"unit_cost,omitempty"`
	Equipment   *EquipmentJSON `json:"equipment,omitempty"`
}

// EquipmentJSON carries the machinery-specific fields. Plain materials
// (bags of cement, rebar) leave it out entirely.
type EquipmentJSON struct {
	PowerSource         string `json:"power_source,omitempty"`
	FuelConsumption     string `json:"fuel_consumption,omitempty"`
	ElectricConsumption string `json:"electric_consumption,omitempty"`
}

// =============================================================================
// ASSET FACTORY
// =============================================================================

// AssetFactory converts JSON definitions to ledger.Asset records.
type AssetFactory struct{}

func NewAssetFactory() *AssetFactory {
	return &AssetFactory{}
}

// ParseAsset parses a JSON string into an Asset.
func (f *AssetFactory) ParseAsset(jsonStr string) (*ledger.Asset, error) {
	var aj AssetJSON
	if err := json.Unmarshal([]byte(jsonStr), &aj); err != nil {
		return nil, fmt.Errorf("failed to parse asset JSON: %w", err)
	}
	return f.FromJSON(aj)
}

// FromJSON converts an AssetJSON into a fresh Asset. The initial quantity
// lands in the available pool; nothing is reserved or out at a site.
func (f *AssetFactory) FromJSON(aj AssetJSON) (*ledger.Asset, error) {
	if aj.ID == "" {
		return nil, fmt.Errorf("asset definition requires an id")
	}
	if aj.Name == "" {
		return nil, fmt.Errorf("asset definition %q requires a name", aj.ID)
	}
	if aj.Quantity < 0 || aj.MinQuantity < 0 {
		return nil, fmt.Errorf("asset definition %q has negative quantities", aj.ID)
	}

	unitCost := decimal.Zero
	if aj.UnitCost != "" {
		var err error
		unitCost, err = decimal.NewFromString(aj.UnitCost)
		if err != nil {
			return nil, fmt.Errorf("asset definition %q has invalid unit_cost: %w", aj.ID, err)
		}
	}

	now := time.Now().UTC()
	a := &ledger.Asset{
		ID:                ledger.AssetID(aj.ID),
		Name:              aj.Name,
		Quantity:          aj.Quantity,
		AvailableQuantity: aj.Quantity,
		SiteQuantities:    ledger.SiteAllocationMap{},
		MinQuantity:       aj.MinQuantity,
		UnitCost:          unitCost,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if aj.Equipment != nil {
		eq, err := parseEquipment(aj.ID, *aj.Equipment)
		if err != nil {
			return nil, err
		}
		a.Equipment = eq
	}
	return a, nil
}

func hasEquipment(eq ledger.EquipmentInfo) bool {
	return eq.PowerSource != "" || !eq.FuelConsumption.IsZero() || !eq.ElectricConsumption.IsZero()
}

// ToJSON converts an Asset back to its definition form.
func (f *AssetFactory) ToJSON(a *ledger.Asset) AssetJSON {
	aj := AssetJSON{
		ID:          string(a.ID),
		Name:        a.Name,
		Quantity:    a.Quantity,
		MinQuantity: a.MinQuantity,
	}
	if !a.UnitCost.IsZero() {
		aj.UnitCost = a.UnitCost.String()
	}
	if hasEquipment(a.Equipment) {
		ej := EquipmentJSON{PowerSource: a.Equipment.PowerSource}
		if !a.Equipment.FuelConsumption.IsZero() {
			ej.FuelConsumption = a.Equipment.FuelConsumption.String()
		}
		if !a.Equipment.ElectricConsumption.IsZero() {
			ej.ElectricConsumption = a.Equipment.ElectricConsumption.String()
		}
		aj.Equipment = &ej
	}
	return aj
}

func parseEquipment(id string, ej EquipmentJSON) (ledger.EquipmentInfo, error) {
	eq := ledger.EquipmentInfo{PowerSource: ej.PowerSource}
	var err error
	if ej.FuelConsumption != "" {
		eq.FuelConsumption, err = decimal.NewFromString(ej.FuelConsumption)
		if err != nil {
			return ledger.EquipmentInfo{}, fmt.Errorf("asset definition %q has invalid fuel_consumption: %w", id, err)
		}
	}
	if ej.ElectricConsumption != "" {
		eq.ElectricConsumption, err = decimal.NewFromString(ej.ElectricConsumption)
		if err != nil {
			return ledger.EquipmentInfo{}, fmt.Errorf("asset definition %q has invalid electric_consumption: %w", id, err)
		}
	}
	return eq, nil
}
