/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Assets:
    AssetDTO, MovementDTO, RestockRequest, ThresholdRequest

  Waybills:
    WaybillDTO, WaybillItemDTO, CreateWaybillRequest, EditWaybillRequest,
    SendWaybillRequest, ProcessReturnRequest, ReturnBillDTO

  Checkouts:
    CheckoutDTO, CreateCheckoutRequest, ReturnCheckoutRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in the domain layer, not in DTOs. DTOs are pure data
  carriers; handlers only reject bodies that fail to decode.

SEE ALSO:
  - handlers.go: Uses these types
  - catalog/definition.go: AssetJSON, the registration payload
*/
package api

import (
	"time"

	"github.com/depot/stock-engine/checkout"
	"github.com/depot/stock-engine/ledger"
	"github.com/depot/stock-engine/waybill"
)

// =============================================================================
// ASSET TYPES
// =============================================================================

// AssetDTO represents an asset and its counters in API responses.
type AssetDTO struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Quantity    int64            `json:"quantity"`
	Available   int64            `json:"available"`
	Reserved    int64            `json:"reserved"`
	Sites       map[string]int64 `json:"sites,omitempty"`
	Missing     int64            `json:"missing"`
	Damaged     int64            `json:"damaged"`
	MinQuantity int64            `json:"min_quantity,omitempty"`
	UnitCost    string           `json:"unit_cost,omitempty"`
	StockValue  string           `json:"stock_value,omitempty"`
	LowStock    bool             `json:"low_stock"`
	Equipment   *EquipmentDTO    `json:"equipment,omitempty"`
	UpdatedAt   string           `json:"updated_at"`
}

// EquipmentDTO carries machinery fields for equipment assets.
type EquipmentDTO struct {
	PowerSource         string `json:"power_source,omitempty"`
	FuelConsumption     string `json:"fuel_consumption,omitempty"`
	ElectricConsumption string `json:"electric_consumption,omitempty"`
}

// RestockRequest is the request to receive new stock.
type RestockRequest struct {
	Quantity int64  `json:"quantity"`
	UnitCost string `json:"unit_cost,omitempty"`
}

// ThresholdRequest updates the low-stock threshold.
type ThresholdRequest struct {
	MinQuantity int64 `json:"min_quantity"`
}

// MovementDTO represents one journal entry.
type MovementDTO struct {
	ID         string `json:"id"`
	AssetID    string `json:"asset_id"`
	Kind       string `json:"kind"`
	Quantity   int64  `json:"quantity"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	SiteID     string `json:"site_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// ValuationDTO is the catalog-wide stock value.
type ValuationDTO struct {
	TotalValue string `json:"total_value"`
}

// RecomputeRequest narrows a counter rebuild to one asset. An empty body
// rebuilds every asset.
type RecomputeRequest struct {
	AssetID string `json:"asset_id,omitempty"`
}

// =============================================================================
// WAYBILL TYPES
// =============================================================================

// WaybillItemDTO represents one line of a waybill.
type WaybillItemDTO struct {
	AssetID  string `json:"asset_id"`
	Quantity int64  `json:"quantity"`
	Returned int64  `json:"returned"`
	Good     int64  `json:"good,omitempty"`
	Damaged  int64  `json:"damaged,omitempty"`
	Missing  int64  `json:"missing,omitempty"`
	Status   string `json:"status"`
}

// WaybillDTO represents a waybill or return waybill.
type WaybillDTO struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	SiteID    string           `json:"site_id"`
	Status    string           `json:"status"`
	Items     []WaybillItemDTO `json:"items"`
	IssuedBy  string           `json:"issued_by,omitempty"`
	SentAt    *string          `json:"sent_at,omitempty"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
}

// CreateWaybillRequest is the request to draft a new document.
type CreateWaybillRequest struct {
	Type     string             `json:"type"`
	SiteID   string             `json:"site_id"`
	IssuedBy string             `json:"issued_by,omitempty"`
	Items    []WaybillLineInput `json:"items"`
}

// WaybillLineInput is one requested line.
type WaybillLineInput struct {
	AssetID  string `json:"asset_id"`
	Quantity int64  `json:"quantity"`
}

// EditWaybillRequest replaces the item list of an outstanding document.
type EditWaybillRequest struct {
	Items []WaybillLineInput `json:"items"`
}

// SendWaybillRequest marks a waybill as dispatched.
type SendWaybillRequest struct {
	Date string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
}

// ReturnLineInput is one line of a return request.
type ReturnLineInput struct {
	AssetID   string `json:"asset_id"`
	Quantity  int64  `json:"quantity"`
	Condition string `json:"condition"` // good, damaged, missing
}

// ProcessReturnRequest processes returned stock against a waybill.
type ProcessReturnRequest struct {
	ReceivedBy string            `json:"received_by,omitempty"`
	Items      []ReturnLineInput `json:"items"`
}

// ReturnAllRequest closes out a waybill with everything in good condition.
type ReturnAllRequest struct {
	ReceivedBy string `json:"received_by,omitempty"`
}

// ReturnBillDTO is a processed return receipt.
type ReturnBillDTO struct {
	ID         string            `json:"id"`
	WaybillID  string            `json:"waybill_id"`
	Items      []ReturnLineInput `json:"items"`
	ReceivedBy string            `json:"received_by,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

// =============================================================================
// CHECKOUT TYPES
// =============================================================================

// CheckoutDTO represents a quick checkout.
type CheckoutDTO struct {
	ID           string  `json:"id"`
	AssetID      string  `json:"asset_id"`
	Quantity     int64   `json:"quantity"`
	Returned     int64   `json:"returned"`
	Missing      int64   `json:"missing,omitempty"`
	Damaged      int64   `json:"damaged,omitempty"`
	Employee     string  `json:"employee"`
	Status       string  `json:"status"`
	DueAt        *string `json:"due_at,omitempty"`
	CheckedOutAt string  `json:"checked_out_at"`
	ReturnedAt   *string `json:"returned_at,omitempty"`
}

// CreateCheckoutRequest hands stock to an employee.
type CreateCheckoutRequest struct {
	AssetID  string `json:"asset_id"`
	Quantity int64  `json:"quantity"`
	Employee string `json:"employee"`
	DueAt    string `json:"due_at,omitempty"` // YYYY-MM-DD
}

// ReturnCheckoutRequest brings checked-out stock back.
type ReturnCheckoutRequest struct {
	Quantity  int64  `json:"quantity"`
	Condition string `json:"condition"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toAssetDTO(a *ledger.Asset) AssetDTO {
	dto := AssetDTO{
		ID:          string(a.ID),
		Name:        a.Name,
		Quantity:    a.Quantity,
		Available:   a.AvailableQuantity,
		Reserved:    a.ReservedQuantity,
		Missing:     a.MissingCount,
		Damaged:     a.DamagedCount,
		MinQuantity: a.MinQuantity,
		LowStock:    a.BelowThreshold(),
		UpdatedAt:   a.UpdatedAt.Format(time.RFC3339),
	}
	if len(a.SiteQuantities) > 0 {
		dto.Sites = make(map[string]int64, len(a.SiteQuantities))
		for site, qty := range a.SiteQuantities {
			dto.Sites[string(site)] = qty
		}
	}
	if !a.UnitCost.IsZero() {
		dto.UnitCost = a.UnitCost.String()
		dto.StockValue = a.StockValue().String()
	}
	if a.Equipment.PowerSource != "" || !a.Equipment.FuelConsumption.IsZero() || !a.Equipment.ElectricConsumption.IsZero() {
		eq := EquipmentDTO{PowerSource: a.Equipment.PowerSource}
		if !a.Equipment.FuelConsumption.IsZero() {
			eq.FuelConsumption = a.Equipment.FuelConsumption.String()
		}
		if !a.Equipment.ElectricConsumption.IsZero() {
			eq.ElectricConsumption = a.Equipment.ElectricConsumption.String()
		}
		dto.Equipment = &eq
	}
	return dto
}

func toMovementDTO(m ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:         string(m.ID),
		AssetID:    string(m.AssetID),
		Kind:       string(m.Kind),
		Quantity:   m.Quantity,
		From:       string(m.From),
		To:         string(m.To),
		SiteID:     string(m.SiteID),
		DocumentID: string(m.DocumentID),
		Note:       m.Note,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
	}
}

func toWaybillDTO(w *waybill.Waybill) WaybillDTO {
	dto := WaybillDTO{
		ID:        string(w.ID),
		Type:      string(w.Type),
		SiteID:    string(w.SiteID),
		Status:    string(w.Status),
		Items:     make([]WaybillItemDTO, len(w.Items)),
		IssuedBy:  w.IssuedBy,
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
		UpdatedAt: w.UpdatedAt.Format(time.RFC3339),
	}
	for i, it := range w.Items {
		dto.Items[i] = WaybillItemDTO{
			AssetID:  string(it.AssetID),
			Quantity: it.Quantity,
			Returned: it.ReturnedQuantity,
			Good:     it.Breakdown.Good,
			Damaged:  it.Breakdown.Damaged,
			Missing:  it.Breakdown.Missing,
			Status:   string(it.Status),
		}
	}
	if w.SentAt != nil {
		s := w.SentAt.Format(time.RFC3339)
		dto.SentAt = &s
	}
	return dto
}

func toReturnBillDTO(rb waybill.ReturnBill) ReturnBillDTO {
	dto := ReturnBillDTO{
		ID:         string(rb.ID),
		WaybillID:  string(rb.WaybillID),
		Items:      make([]ReturnLineInput, len(rb.Items)),
		ReceivedBy: rb.ReceivedBy,
		CreatedAt:  rb.CreatedAt.Format(time.RFC3339),
	}
	for i, it := range rb.Items {
		dto.Items[i] = ReturnLineInput{
			AssetID:   string(it.AssetID),
			Quantity:  it.Quantity,
			Condition: string(it.Condition),
		}
	}
	return dto
}

func toCheckoutDTO(c *checkout.QuickCheckout) CheckoutDTO {
	dto := CheckoutDTO{
		ID:           string(c.ID),
		AssetID:      string(c.AssetID),
		Quantity:     c.Quantity,
		Returned:     c.ReturnedQuantity,
		Missing:      c.MissingQuantity,
		Damaged:      c.DamagedQuantity,
		Employee:     c.Employee,
		Status:       string(c.Status),
		CheckedOutAt: c.CheckedOutAt.Format(time.RFC3339),
	}
	if c.DueAt != nil {
		s := c.DueAt.Format(time.RFC3339)
		dto.DueAt = &s
	}
	if c.ReturnedAt != nil {
		s := c.ReturnedAt.Format(time.RFC3339)
		dto.ReturnedAt = &s
	}
	return dto
}
