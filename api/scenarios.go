/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the catalog with realistic
	construction recipes and, where the scenario calls for it, the demo
	tenant's price list.

AVAILABLE SCENARIOS:

	construction-demo: trench, pipe and surface templates with variants
	                   and a price list that changes on 2024-06-01
	catalog-only:      the same templates without prices, every line
	                   reports a missing price

HOW SCENARIOS WORK:
 1. Reset the catalog (clear all data)
 2. Parse presets via the template factory
 3. Save templates and their variants
 4. Append the demo price list unless the tenant already has one

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "construction-demo"}

NOTE:

	Scenarios reset the catalog. Only use in development/demo environments.

SEE ALSO:
  - construction/presets.go: Template and price list JSON
  - cmd/server/main.go: the seed command
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/recipe-costing/construction"
	"github.com/warp/recipe-costing/factory"
	"github.com/warp/recipe-costing/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	ScenarioConstructionDemo = "construction-demo"
	ScenarioCatalogOnly      = "catalog-only"
)

var scenarios = []ScenarioDTO{
	{
		ID:          ScenarioConstructionDemo,
		Name:        "Construction Demo",
		Description: "Trench, pipe and surface recipes with a dated price list for tenant demo",
		Category:    "construction",
	},
	{
		ID:          ScenarioCatalogOnly,
		Name:        "Catalog Only",
		Description: "The construction recipes without prices; breakdowns list every missing price",
		Category:    "construction",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the catalog and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, "Invalid request body", err)
		return
	}

	var withPrices bool
	switch req.ScenarioID {
	case ScenarioConstructionDemo:
		withPrices = true
	case ScenarioCatalogOnly:
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Catalog.Reset(ctx); err != nil {
		respondErr(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var prices generic.PriceWriter
	if withPrices {
		prices = h.Prices
	}
	if err := Seed(ctx, h.Factory, h.Catalog, prices); err != nil {
		respondErr(w, r, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears the catalog.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Catalog.Reset(r.Context()); err != nil {
		respondErr(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SEEDING
// =============================================================================

// Seed stores the construction presets in catalog. When prices is non-nil
// the demo price list is appended, unless the demo tenant already has
// quotations there (a shared list survives catalog resets).
func Seed(ctx context.Context, f *factory.TemplateFactory, catalog generic.CatalogStore, prices generic.PriceWriter) error {
	for _, js := range construction.TemplatePresets() {
		tpl, variants, err := f.ParseTemplate(js)
		if err != nil {
			return fmt.Errorf("preset: %w", err)
		}
		if err := catalog.SaveTemplate(ctx, *tpl); err != nil {
			return fmt.Errorf("save template %s: %w", tpl.Key, err)
		}
		for _, v := range variants {
			if err := catalog.SaveVariant(ctx, v); err != nil {
				return fmt.Errorf("save variant %s/%s: %w", tpl.Key, v.Key, err)
			}
		}
	}

	if prices == nil {
		return nil
	}
	existing, err := prices.ListPrices(ctx, construction.DemoTenant, "")
	if err != nil {
		return fmt.Errorf("list demo prices: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	recs, err := factory.ParsePriceList(construction.DemoTenant, construction.DemoPriceListJSON())
	if err != nil {
		return fmt.Errorf("demo price list: %w", err)
	}
	for _, rec := range recs {
		if _, err := prices.AppendPrice(ctx, rec); err != nil {
			return fmt.Errorf("append price %s: %w", rec.RefKey, err)
		}
	}
	return nil
}
