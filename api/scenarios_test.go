package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depot/stock-engine/api"
)

// =============================================================================
// SCENARIO CATALOG
// =============================================================================

func TestScenarios_List(t *testing.T) {
	router := newTestServer(t)

	var list []api.ScenarioDTO
	rec := do(t, router, http.MethodGet, "/api/scenarios", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 3)

	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
		assert.NotEmpty(t, s.Name)
		assert.NotEmpty(t, s.Description)
	}
	assert.ElementsMatch(t, []string{"fresh-depot", "active-site", "busy-counter"}, ids)
}

func TestScenarios_CurrentIsEmptyInitially(t *testing.T) {
	router := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

// =============================================================================
// LOADING
// =============================================================================

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	var res map[string]string
	rec := do(t, router, http.MethodPost, "/api/scenarios/load",
		map[string]any{"scenario_id": id}, &res)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, id, res["loaded"])
}

func TestScenarios_LoadFreshDepot(t *testing.T) {
	router := newTestServer(t)
	loadScenario(t, router, "fresh-depot")

	// Every asset starts fully available, nothing in flight.
	var assets []api.AssetDTO
	rec := do(t, router, http.MethodGet, "/api/assets", nil, &assets)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, assets)
	for _, a := range assets {
		assert.Equal(t, a.Quantity, a.Available, "asset %s", a.ID)
		assert.Zero(t, a.Reserved, "asset %s", a.ID)
		assert.Empty(t, a.Sites, "asset %s", a.ID)
	}

	var wbs []api.WaybillDTO
	do(t, router, http.MethodGet, "/api/waybills", nil, &wbs)
	assert.Empty(t, wbs)
}

func TestScenarios_LoadActiveSite(t *testing.T) {
	router := newTestServer(t)
	loadScenario(t, router, "active-site")

	// Documents exist in every lifecycle stage.
	var wbs []api.WaybillDTO
	rec := do(t, router, http.MethodGet, "/api/waybills", nil, &wbs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, wbs)

	statuses := make(map[string]bool)
	types := make(map[string]bool)
	for _, wb := range wbs {
		statuses[wb.Status] = true
		types[wb.Type] = true
	}
	assert.True(t, statuses["partial_returned"], "expected a partially returned waybill")
	assert.True(t, statuses["outstanding"], "expected an undispatched draft")
	assert.True(t, types["return"], "expected a return waybill in transit")

	// Scenario data must satisfy the ledger partition, so a recompute
	// right after loading is a no-op for the counters.
	var before []api.AssetDTO
	do(t, router, http.MethodGet, "/api/assets", nil, &before)

	rec = do(t, router, http.MethodPost, "/api/admin/recompute", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var after []api.AssetDTO
	do(t, router, http.MethodGet, "/api/assets", nil, &after)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Available, after[i].Available, "asset %s", before[i].ID)
		assert.Equal(t, before[i].Reserved, after[i].Reserved, "asset %s", before[i].ID)
		assert.Equal(t, before[i].Sites, after[i].Sites, "asset %s", before[i].ID)
	}
}

func TestScenarios_LoadBusyCounter(t *testing.T) {
	router := newTestServer(t)
	loadScenario(t, router, "busy-counter")

	// Counter traffic has drained cement down to its threshold.
	var low []api.AssetDTO
	rec := do(t, router, http.MethodGet, "/api/catalog/low-stock", nil, &low)
	require.Equal(t, http.StatusOK, rec.Code)

	lowIDs := make([]string, len(low))
	for i, a := range low {
		lowIDs[i] = a.ID
	}
	assert.Contains(t, lowIDs, "cement-42.5")

	var cos []api.CheckoutDTO
	do(t, router, http.MethodGet, "/api/checkouts", nil, &cos)
	assert.NotEmpty(t, cos)
}

func TestScenarios_LoadReplacesPreviousState(t *testing.T) {
	router := newTestServer(t)
	loadScenario(t, router, "active-site")
	loadScenario(t, router, "fresh-depot")

	var cur api.ScenarioDTO
	rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil, &cur)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh-depot", cur.ID)

	var wbs []api.WaybillDTO
	do(t, router, http.MethodGet, "/api/waybills", nil, &wbs)
	assert.Empty(t, wbs, "previous scenario's documents are gone")
}

func TestScenarios_LoadUnknown_400(t *testing.T) {
	router := newTestServer(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load",
		map[string]any{"scenario_id": "lunar-base"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RESET
// =============================================================================

func TestScenarios_Reset(t *testing.T) {
	router := newTestServer(t)
	loadScenario(t, router, "busy-counter")

	var res map[string]string
	rec := do(t, router, http.MethodPost, "/api/scenarios/reset", nil, &res)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reset", res["status"])

	var assets []api.AssetDTO
	do(t, router, http.MethodGet, "/api/assets", nil, &assets)
	assert.Empty(t, assets)

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}
