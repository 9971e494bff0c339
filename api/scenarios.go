/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	depot data for testing and demos. Each scenario registers assets and
	optionally creates documents that demonstrate specific flows.

AVAILABLE SCENARIOS:

	fresh-depot:   Catalog only, everything in the warehouse
	active-site:   A site build in progress: sent waybill, partial return,
	               a return waybill in transit
	busy-counter:  Quick checkouts including an overdue one, low stock

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register catalog assets
 3. Create documents through the normal domain operations, so every
    counter is the product of real transitions

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "active-site"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Error mapping and shared helpers
  - catalog/definition.go: the asset definitions being registered
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/depot/stock-engine/catalog"
	"github.com/depot/stock-engine/checkout"
	"github.com/depot/stock-engine/ledger"
	"github.com/depot/stock-engine/waybill"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-depot",
		Name:        "Fresh Depot",
		Description: "Catalog registered, all stock available in the warehouse",
	},
	{
		ID:          "active-site",
		Name:        "Active Site",
		Description: "Waybill sent to a site, partial return processed, return waybill in transit",
	},
	{
		ID:          "busy-counter",
		Name:        "Busy Counter",
		Description: "Quick checkouts including an overdue one, low stock on consumables",
	},
}

// resetter is the optional capability the scenario loader needs from the
// store. Both the SQLite and the in-memory store provide it.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:   h.currentScenario,
		Name: h.currentScenario,
	})
}

// LoadScenario wipes the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.resetStore(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-depot":
		err = h.loadFreshDepotScenario(ctx)
	case "active-site":
		err = h.loadActiveSiteScenario(ctx)
	case "busy-counter":
		err = h.loadBusyCounterScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// ResetDatabase wipes everything.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) resetStore(ctx context.Context) error {
	rs, ok := h.store.(resetter)
	if !ok {
		return ledger.ErrStoreCapability
	}
	return rs.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// depotCatalog is the shared asset set every scenario starts from.
var depotCatalog = []catalog.AssetJSON{
	{
		ID: "drill-dcd796", Name: "DeWalt DCD796 Hammer Drill",
		Quantity: 12, MinQuantity: 3, UnitCost: "129.90",
		Equipment: &catalog.EquipmentJSON{PowerSource: "electric", ElectricConsumption: "0.06"},
	},
	{
		ID: "generator-5kw", Name: "Diesel Generator 5kW",
		Quantity: 4, MinQuantity: 1, UnitCost: "1450.00",
		Equipment: &catalog.EquipmentJSON{PowerSource: "fuel", FuelConsumption: "1.8"},
	},
	{
		ID: "mixer-140l", Name: "Concrete Mixer 140L",
		Quantity: 6, MinQuantity: 2, UnitCost: "389.50",
		Equipment: &catalog.EquipmentJSON{PowerSource: "electric", ElectricConsumption: "0.55"},
	},
	{
		ID: "cement-42.5", Name: "Portland Cement 42.5 (bag)",
		Quantity: 200, MinQuantity: 50, UnitCost: "7.20",
	},
	{
		ID: "scaffold-frame", Name: "Scaffolding Frame 2m",
		Quantity: 80, MinQuantity: 20, UnitCost: "42.00",
	},
	{
		ID: "helmet-std", Name: "Safety Helmet",
		Quantity: 40, MinQuantity: 10, UnitCost: "9.80",
	},
}

func (h *Handler) registerCatalog(ctx context.Context) error {
	for _, def := range depotCatalog {
		if _, err := h.Catalog.Register(ctx, def); err != nil {
			return fmt.Errorf("register %s: %w", def.ID, err)
		}
	}
	return nil
}

// loadFreshDepotScenario registers the catalog with everything available.
func (h *Handler) loadFreshDepotScenario(ctx context.Context) error {
	return h.registerCatalog(ctx)
}

// loadActiveSiteScenario walks a waybill through its whole lifecycle:
// drafted, sent, partially returned with one damaged mixer, plus a return
// waybill in transit and a second draft still outstanding.
func (h *Handler) loadActiveSiteScenario(ctx context.Context) error {
	if err := h.registerCatalog(ctx); err != nil {
		return err
	}

	sent, err := h.Waybills.Create(ctx, waybill.Draft{
		Type:     waybill.TypeWaybill,
		SiteID:   "site-riverside",
		IssuedBy: "m.petrov",
		Items: []waybill.DraftItem{
			{AssetID: "mixer-140l", Quantity: 3},
			{AssetID: "scaffold-frame", Quantity: 30},
			{AssetID: "cement-42.5", Quantity: 60},
		},
	})
	if err != nil {
		return err
	}
	if _, err := h.Waybills.SendToSite(ctx, sent.ID, time.Now().UTC().AddDate(0, 0, -14)); err != nil {
		return err
	}
	if _, err := h.Returns.Process(ctx, sent.ID, []waybill.ReturnLine{
		{AssetID: "mixer-140l", Quantity: 1, Condition: ledger.ConditionGood},
		{AssetID: "mixer-140l", Quantity: 1, Condition: ledger.ConditionDamaged},
	}, "m.petrov"); err != nil {
		return err
	}

	// Scaffolding coming back from the site, still on the truck.
	if _, err := h.Waybills.Create(ctx, waybill.Draft{
		Type:     waybill.TypeReturn,
		SiteID:   "site-riverside",
		IssuedBy: "m.petrov",
		Items:    []waybill.DraftItem{{AssetID: "scaffold-frame", Quantity: 10}},
	}); err != nil {
		return err
	}

	// Next delivery drafted but not dispatched.
	_, err = h.Waybills.Create(ctx, waybill.Draft{
		Type:     waybill.TypeWaybill,
		SiteID:   "site-harbor",
		IssuedBy: "a.novak",
		Items: []waybill.DraftItem{
			{AssetID: "generator-5kw", Quantity: 1},
			{AssetID: "helmet-std", Quantity: 8},
		},
	})
	return err
}

// loadBusyCounterScenario creates quick checkouts, one overdue, and runs
// the cement stock down to its threshold.
func (h *Handler) loadBusyCounterScenario(ctx context.Context) error {
	if err := h.registerCatalog(ctx); err != nil {
		return err
	}

	overdueAt := time.Now().UTC().AddDate(0, 0, -3)
	if _, err := h.Checkouts.Checkout(ctx, checkout.Request{
		AssetID: "drill-dcd796", Quantity: 2, Employee: "k.ivanova", DueAt: &overdueAt,
	}); err != nil {
		return err
	}

	dueSoon := time.Now().UTC().AddDate(0, 0, 2)
	if _, err := h.Checkouts.Checkout(ctx, checkout.Request{
		AssetID: "generator-5kw", Quantity: 1, Employee: "p.santos", DueAt: &dueSoon,
	}); err != nil {
		return err
	}

	done, err := h.Checkouts.Checkout(ctx, checkout.Request{
		AssetID: "helmet-std", Quantity: 4, Employee: "j.weber",
	})
	if err != nil {
		return err
	}
	if _, err := h.Checkouts.Return(ctx, done.ID, 4, ledger.ConditionGood); err != nil {
		return err
	}

	// Drain cement to its threshold via a site delivery.
	wb, err := h.Waybills.Create(ctx, waybill.Draft{
		Type:     waybill.TypeWaybill,
		SiteID:   "site-harbor",
		IssuedBy: "a.novak",
		Items:    []waybill.DraftItem{{AssetID: "cement-42.5", Quantity: 150}},
	})
	if err != nil {
		return err
	}
	_, err = h.Waybills.SendToSite(ctx, wb.ID, time.Now().UTC())
	return err
}
