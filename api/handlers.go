/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the stock ledger and document flows via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Assets:
    GET    /api/assets                   List assets with counters
    POST   /api/assets                   Register a catalog asset
    GET    /api/assets/{id}              Get one asset
    POST   /api/assets/{id}/restock      Receive stock
    PUT    /api/assets/{id}/threshold    Update low-stock threshold
    GET    /api/assets/{id}/movements    Movement journal

  Waybills:
    POST   /api/waybills                 Create waybill or return waybill
    GET    /api/waybills[/{id}]          List / fetch
    PUT    /api/waybills/{id}            Edit items (outstanding only)
    DELETE /api/waybills/{id}            Delete (outstanding only)
    POST   /api/waybills/{id}/send       Dispatch to site
    POST   /api/waybills/{id}/returns    Process a return
    POST   /api/waybills/{id}/return-all Return everything in good condition
    GET    /api/waybills/{id}/returns    Return bill history

  Checkouts:
    POST   /api/checkouts                Quick checkout
    GET    /api/checkouts[/{id}]         List / fetch
    GET    /api/checkouts/overdue        Past-due checkouts
    POST   /api/checkouts/{id}/return    Return checked-out stock

  Catalog:
    GET    /api/catalog/low-stock        Assets at/below threshold
    GET    /api/catalog/valuation        Total stock value

  Admin:
    POST   /api/admin/recompute          Rebuild counters (one asset or all)

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Load a demo scenario
    POST   /api/scenarios/reset          Wipe the database

ERROR HANDLING:
  Domain errors map to HTTP status via the ledger error helpers:
  - 400: Malformed request body or parameters
  - 404: Unknown asset or document
  - 409: Business rule rejections (insufficient stock, bad transition)
  - 500: Internal errors, invariant violations

SECURITY NOTE:
  No authentication. The engine fronts a trusted warehouse LAN.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/depot/stock-engine/catalog"
	"github.com/depot/stock-engine/checkout"
	"github.com/depot/stock-engine/ledger"
	"github.com/depot/stock-engine/waybill"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.AssetLedger
	Waybills  *waybill.StateMachine
	Returns   *waybill.ReturnProcessor
	Checkouts *checkout.Registry
	Catalog   *catalog.Service
	Validator *ledger.ConsistencyValidator

	store ledger.TxStore

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires every domain service on top of one transactional store.
func NewHandler(store ledger.TxStore) *Handler {
	l := ledger.New(store)
	return &Handler{
		Ledger:    l,
		Waybills:  waybill.NewStateMachine(l),
		Returns:   waybill.NewReturnProcessor(l),
		Checkouts: checkout.NewRegistry(l),
		Catalog:   catalog.NewService(l),
		Validator: ledger.NewValidator(store),
		store:     store,
	}
}

// =============================================================================
// ASSET HANDLERS
// =============================================================================

// ListAssets returns every asset with its counters.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.ListAssets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assets", err)
		return
	}

	dtos := make([]AssetDTO, len(assets))
	for i := range assets {
		dtos[i] = toAssetDTO(&assets[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAsset returns a single asset.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id := ledger.AssetID(chi.URLParam(r, "id"))

	a, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get asset", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Asset not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(a))
}

// RegisterAsset creates a new catalog asset.
func (h *Handler) RegisterAsset(w http.ResponseWriter, r *http.Request) {
	var def catalog.AssetJSON
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.Catalog.Register(r.Context(), def)
	if err != nil {
		writeDomainError(w, "Failed to register asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetDTO(a))
}

// RestockAsset receives new stock into the available pool.
func (h *Handler) RestockAsset(w http.ResponseWriter, r *http.Request) {
	id := ledger.AssetID(chi.URLParam(r, "id"))

	var req RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	unitCost := decimal.Zero
	if req.UnitCost != "" {
		var err error
		if unitCost, err = decimal.NewFromString(req.UnitCost); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unit_cost", err)
			return
		}
	}

	if err := h.Catalog.Restock(r.Context(), id, req.Quantity, unitCost); err != nil {
		writeDomainError(w, "Failed to restock", err)
		return
	}

	a, err := h.store.GetAsset(r.Context(), id)
	if err != nil || a == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload asset", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(a))
}

// UpdateThreshold changes the low-stock threshold.
func (h *Handler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	id := ledger.AssetID(chi.URLParam(r, "id"))

	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.Catalog.UpdateThreshold(r.Context(), id, req.MinQuantity)
	if err != nil {
		writeDomainError(w, "Failed to update threshold", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(a))
}

// GetMovements returns the movement journal for an asset, newest first.
// Accepts ?limit=N.
func (h *Handler) GetMovements(w http.ResponseWriter, r *http.Request) {
	id := ledger.AssetID(chi.URLParam(r, "id"))

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	a, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get asset", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Asset not found", nil)
		return
	}

	movements, err := h.store.MovementsByAsset(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list movements", err)
		return
	}

	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WAYBILL HANDLERS
// =============================================================================

// CreateWaybill drafts a new waybill or return waybill and reserves stock.
func (h *Handler) CreateWaybill(w http.ResponseWriter, r *http.Request) {
	var req CreateWaybillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	draft := waybill.Draft{
		Type:     waybill.Type(req.Type),
		SiteID:   ledger.SiteID(req.SiteID),
		IssuedBy: req.IssuedBy,
		Items:    toDraftItems(req.Items),
	}
	if draft.Type == "" {
		draft.Type = waybill.TypeWaybill
	}

	wb, err := h.Waybills.Create(r.Context(), draft)
	if err != nil {
		writeDomainError(w, "Failed to create waybill", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWaybillDTO(wb))
}

// ListWaybills returns all documents.
func (h *Handler) ListWaybills(w http.ResponseWriter, r *http.Request) {
	waybills, err := h.Waybills.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list waybills", err)
		return
	}

	dtos := make([]WaybillDTO, len(waybills))
	for i := range waybills {
		dtos[i] = toWaybillDTO(&waybills[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWaybill returns a single document.
func (h *Handler) GetWaybill(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	wb, err := h.Waybills.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get waybill", err)
		return
	}
	writeJSON(w, http.StatusOK, toWaybillDTO(wb))
}

// EditWaybill replaces the item list of an outstanding document.
func (h *Handler) EditWaybill(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	var req EditWaybillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wb, err := h.Waybills.Edit(r.Context(), id, toDraftItems(req.Items))
	if err != nil {
		writeDomainError(w, "Failed to edit waybill", err)
		return
	}
	writeJSON(w, http.StatusOK, toWaybillDTO(wb))
}

// DeleteWaybill removes an outstanding document and releases its stock.
func (h *Handler) DeleteWaybill(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	if err := h.Waybills.Delete(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete waybill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendWaybill dispatches a waybill to its site.
func (h *Handler) SendWaybill(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	var req SendWaybillRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	date := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		date = parsed
	}

	wb, err := h.Waybills.SendToSite(r.Context(), id, date)
	if err != nil {
		writeDomainError(w, "Failed to send waybill", err)
		return
	}
	writeJSON(w, http.StatusOK, toWaybillDTO(wb))
}

// ProcessReturn applies a return against a waybill.
func (h *Handler) ProcessReturn(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	var req ProcessReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]waybill.ReturnLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = waybill.ReturnLine{
			AssetID:   ledger.AssetID(it.AssetID),
			Quantity:  it.Quantity,
			Condition: ledger.Condition(it.Condition),
		}
	}

	wb, err := h.Returns.Process(r.Context(), id, lines, req.ReceivedBy)
	if err != nil {
		writeDomainError(w, "Failed to process return", err)
		return
	}
	writeJSON(w, http.StatusOK, toWaybillDTO(wb))
}

// ReturnAll closes out a waybill with everything back in good condition.
func (h *Handler) ReturnAll(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	var req ReturnAllRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	wb, err := h.Returns.ReturnAll(r.Context(), id, req.ReceivedBy)
	if err != nil {
		writeDomainError(w, "Failed to return all", err)
		return
	}
	writeJSON(w, http.StatusOK, toWaybillDTO(wb))
}

// ListReturnBills returns the receipts recorded against a waybill.
func (h *Handler) ListReturnBills(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	bills, err := h.Returns.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list return bills", err)
		return
	}

	dtos := make([]ReturnBillDTO, len(bills))
	for i, rb := range bills {
		dtos[i] = toReturnBillDTO(rb)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CHECKOUT HANDLERS
// =============================================================================

// CreateCheckout hands stock to an employee.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	co := checkout.Request{
		AssetID:  ledger.AssetID(req.AssetID),
		Quantity: req.Quantity,
		Employee: req.Employee,
	}
	if req.DueAt != "" {
		due, err := time.Parse("2006-01-02", req.DueAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_at format (use YYYY-MM-DD)", err)
			return
		}
		co.DueAt = &due
	}

	c, err := h.Checkouts.Checkout(r.Context(), co)
	if err != nil {
		writeDomainError(w, "Failed to create checkout", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckoutDTO(c))
}

// ListCheckouts returns all checkouts.
func (h *Handler) ListCheckouts(w http.ResponseWriter, r *http.Request) {
	checkouts, err := h.Checkouts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list checkouts", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTOs(checkouts))
}

// ListOverdueCheckouts returns outstanding checkouts past their due date.
func (h *Handler) ListOverdueCheckouts(w http.ResponseWriter, r *http.Request) {
	overdue, err := h.Checkouts.Overdue(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list overdue checkouts", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTOs(overdue))
}

// GetCheckout returns a single checkout.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	c, err := h.Checkouts.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTO(c))
}

// ReturnCheckout brings checked-out stock back.
func (h *Handler) ReturnCheckout(w http.ResponseWriter, r *http.Request) {
	id := ledger.DocumentID(chi.URLParam(r, "id"))

	var req ReturnCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Checkouts.Return(r.Context(), id, req.Quantity, ledger.Condition(req.Condition))
	if err != nil {
		writeDomainError(w, "Failed to return checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTO(c))
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListLowStock returns assets at or below their threshold.
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Catalog.LowStock(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list low stock", err)
		return
	}

	dtos := make([]AssetDTO, len(assets))
	for i := range assets {
		dtos[i] = toAssetDTO(&assets[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetValuation returns the total stock value across the catalog.
func (h *Handler) GetValuation(w http.ResponseWriter, r *http.Request) {
	total, err := h.Catalog.Valuation(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute valuation", err)
		return
	}
	writeJSON(w, http.StatusOK, ValuationDTO{TotalValue: total.String()})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Recompute rebuilds derived counters from open documents. With an
// `{"asset_id": "..."}` body it rebuilds that asset and returns it; with no
// body it rebuilds every asset.
// POST /api/admin/recompute
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	if req.AssetID != "" {
		a, err := h.Validator.Recompute(r.Context(), ledger.AssetID(req.AssetID))
		if err != nil {
			writeDomainError(w, "Recompute failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toAssetDTO(a))
		return
	}

	n, err := h.Validator.RecomputeAll(r.Context())
	if err != nil {
		writeDomainError(w, "Recompute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recomputed": n})
}

// =============================================================================
// HELPERS
// =============================================================================

func toDraftItems(in []WaybillLineInput) []waybill.DraftItem {
	items := make([]waybill.DraftItem, len(in))
	for i, it := range in {
		items[i] = waybill.DraftItem{
			AssetID:  ledger.AssetID(it.AssetID),
			Quantity: it.Quantity,
		}
	}
	return items
}

func toCheckoutDTOs(in []checkout.QuickCheckout) []CheckoutDTO {
	dtos := make([]CheckoutDTO, len(in))
	for i := range in {
		dtos[i] = toCheckoutDTO(&in[i])
	}
	return dtos
}

// writeDomainError maps ledger errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
