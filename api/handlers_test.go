/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Costing endpoints against the seeded construction catalog
- Tenant and reference date handling
- Error status mapping
- Template, variant and price administration
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recipe-costing/construction"
	"github.com/warp/recipe-costing/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestServer(t *testing.T, seed bool) http.Handler {
	t.Helper()
	mem := store.NewMemory()
	engine := construction.NewEngine(mem, mem)
	engine.Now = func() time.Time { return time.Date(2024, 7, 15, 8, 30, 0, 0, time.UTC) }
	h := NewHandler(engine, mem, mem)
	if seed {
		require.NoError(t, Seed(context.Background(), h.Factory, mem, mem))
	}
	return NewRouter(h, RouterOptions{Logger: zerolog.Nop()})
}

type call struct {
	method  string
	path    string
	body    string
	headers map[string]string
}

func do(t *testing.T, srv http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, bytes.NewBufferString(c.body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var demoTenant = map[string]string{TenantHeader: construction.DemoTenant}

// =============================================================================
// COSTING
// =============================================================================

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, false), call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCalculate_PipeLaying(t *testing.T) {
	// GIVEN: the demo catalog and 100 m of pipe before the June price change
	srv := newTestServer(t, true)

	// WHEN
	rec := do(t, srv, call{
		method:  http.MethodPost,
		path:    "/api/templates/pipe-laying/calculate",
		body:    `{"quantity": 100, "reference_date": "2024-05-01"}`,
		headers: demoTenant,
	})

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b := decode[BreakdownDTO](t, rec)
	assert.Equal(t, "3423.00", b.Totals.Net)
	assert.Equal(t, "34.23", b.Totals.NetPerUnit)
	assert.Equal(t, []string{"MAT_FITTING"}, b.MissingPrices)
	assert.False(t, b.Complete)
	assert.Equal(t, "2024-05-01T12:00:00Z", b.Input.ReferenceDate)
	assert.Equal(t, "demo", b.Input.Tenant)
	require.NotEmpty(t, b.Lines)
	assert.Equal(t, "PIPE_DN200", b.Lines[0].RefKey)
	assert.Equal(t, "8.50", b.Lines[0].UnitPrice)
	assert.Equal(t, 102.0, b.Lines[0].Quantity)
	require.NotNil(t, b.Lines[0].Validity)
	require.NotNil(t, b.Lines[0].Validity.To)
	assert.Equal(t, "2024-06-01T00:00:00Z", *b.Lines[0].Validity.To)
}

func TestCalculate_ReferenceDateHeader(t *testing.T) {
	srv := newTestServer(t, true)
	headers := map[string]string{TenantHeader: "demo", "X-Reference-Date": "2024-06-01"}

	rec := do(t, srv, call{method: http.MethodPost, path: "/api/templates/pipe-laying/calculate", body: `{"quantity": 100}`, headers: headers})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "3536.90", decode[BreakdownDTO](t, rec).Totals.Net)

	// the body wins over the header
	rec = do(t, srv, call{method: http.MethodPost, path: "/api/templates/pipe-laying/calculate", body: `{"quantity": 100, "reference_date": "2024-05-01"}`, headers: headers})
	assert.Equal(t, "3423.00", decode[BreakdownDTO](t, rec).Totals.Net)
}

func TestCalculate_NoDateMeansNeutralToday(t *testing.T) {
	srv := newTestServer(t, true)

	rec := do(t, srv, call{method: http.MethodPost, path: "/api/templates/pipe-laying/calculate", headers: demoTenant})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b := decode[BreakdownDTO](t, rec)
	assert.Equal(t, "2024-07-15T12:00:00Z", b.Input.ReferenceDate)
	assert.Equal(t, 1.0, b.Input.Quantity, "missing quantity means 1")
}

func TestCalculate_Deterministic(t *testing.T) {
	srv := newTestServer(t, true)
	c := call{
		method:  http.MethodPost,
		path:    "/api/templates/trench-excavation/calculate",
		body:    `{"quantity": 40, "variant_key": "deep-groundwater", "params": {"distance": 25}, "reference_date": "2024-07-01"}`,
		headers: demoTenant,
	}

	first := do(t, srv, c)
	second := do(t, srv, c)

	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestCalculate_Errors(t *testing.T) {
	srv := newTestServer(t, true)

	cases := []struct {
		name   string
		call   call
		status int
	}{
		{"missing tenant", call{method: http.MethodPost, path: "/api/templates/pipe-laying/calculate", body: `{}`}, http.StatusBadRequest},
		{"negative quantity", call{method: http.MethodPost, path: "/api/templates/pipe-laying/calculate", body: `{"quantity": -1}`, headers: demoTenant}, http.StatusBadRequest},
		{"bad date", call{method: http.MethodPost, path: "/api/templates/pipe-laying/calculate", body: `{"reference_date": "01.05.2024"}`, headers: demoTenant}, http.StatusBadRequest},
		{"bad json", call{method: http.MethodPost, path: "/api/templates/pipe-laying/calculate", body: `{`, headers: demoTenant}, http.StatusBadRequest},
		{"unknown template", call{method: http.MethodPost, path: "/api/templates/nope/calculate", body: `{}`, headers: demoTenant}, http.StatusNotFound},
		{"unknown variant", call{method: http.MethodPost, path: "/api/templates/pipe-laying/calculate", body: `{"variant_key": "dn999"}`, headers: demoTenant}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, tc.call)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestSuggest_DefaultTopN(t *testing.T) {
	srv := newTestServer(t, true)

	rec := do(t, srv, call{
		method: http.MethodPost,
		path:   "/api/templates/trench-excavation/suggest",
		body:   `{"context": {"depth": 2.4, "width": 1.0, "groundwater": true}}`,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decode[SuggestionDTO](t, rec)
	assert.Equal(t, "deep-groundwater", s.Best.VariantKey)
	assert.Len(t, s.Alternatives, DefaultTopN)
	assert.GreaterOrEqual(t, s.Best.Score, s.Alternatives[0].Score)

	rec = do(t, srv, call{
		method: http.MethodPost,
		path:   "/api/templates/trench-excavation/suggest",
		body:   `{"context": {"depth": 2.4}, "top_n": 0}`,
	})
	assert.Empty(t, decode[SuggestionDTO](t, rec).Alternatives)
}

func TestSuggestAndCalculate(t *testing.T) {
	srv := newTestServer(t, true)

	rec := do(t, srv, call{
		method:  http.MethodPost,
		path:    "/api/templates/pipe-laying/suggest-calculate",
		body:    `{"quantity": 50, "context": {"dn": 300, "material": "PE 100"}, "reference_date": "2024-07-01"}`,
		headers: demoTenant,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[SuggestCalculateDTO](t, rec)
	assert.Equal(t, "dn300-pe", res.Suggestion.Best.VariantKey)
	require.NotNil(t, res.Breakdown.Variant)
	assert.Equal(t, "dn300-pe", res.Breakdown.Variant.Key)
	assert.Equal(t, 300.0, res.Breakdown.Input.MergedParams.Get("dn").Float())
}

// =============================================================================
// VARIANTS & TEMPLATES
// =============================================================================

func TestListVariants(t *testing.T) {
	srv := newTestServer(t, true)

	rec := do(t, srv, call{method: http.MethodGet, path: "/api/templates/pipe-laying/variants"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	l := decode[VariantListDTO](t, rec)
	require.Len(t, l.Variants, 4)
	assert.True(t, l.Variants[0].Virtual)
	assert.True(t, l.Variants[0].IsDefault)
	assert.Equal(t, "default", l.Variants[0].Key)
	assert.Equal(t, "DN200 / PN10 / T 1.5 m / PVC-U", l.Variants[0].Label)
	assert.Equal(t, "m", l.Variants[1].Unit)

	rec = do(t, srv, call{method: http.MethodGet, path: "/api/templates/pipe-laying/variants?include_disabled=maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateVariant_RepostKeepsID(t *testing.T) {
	srv := newTestServer(t, true)
	path := "/api/templates/pipe-laying/variants"

	first := do(t, srv, call{method: http.MethodPost, path: path, body: `{"key": "dn250", "params": {"dn": 250}}`})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := decode[VariantDTO](t, first)
	assert.Equal(t, []string{"dn"}, created.ChangedKeys)

	second := do(t, srv, call{method: http.MethodPost, path: path, body: `{"key": "dn250", "params": {"dn": 250}, "enabled": false}`})
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	updated := decode[VariantDTO](t, second)
	assert.Equal(t, created.ID, updated.ID)
	assert.False(t, updated.Enabled)

	rec := do(t, srv, call{method: http.MethodPost, path: "/api/templates/nope/variants", body: `{"key": "x"}`})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTemplate(t *testing.T) {
	srv := newTestServer(t, false)
	body := `{
		"key": "manhole",
		"unit": "pcs",
		"default_params": {"depth": 2},
		"components": [{"type": "LABOR", "ref_key": "CREW", "qty_formula": "qty * depth * 3"}],
		"variants": [{"key": "deep", "params": {"depth": 4}}]
	}`

	rec := do(t, srv, call{method: http.MethodPost, path: "/api/templates", body: body})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, call{method: http.MethodGet, path: "/api/templates/manhole"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "manhole", got["key"])
	assert.Len(t, got["variants"], 1)

	list := do(t, srv, call{method: http.MethodGet, path: "/api/templates"})
	assert.Len(t, decode[[]TemplateSummaryDTO](t, list), 1)

	bad := do(t, srv, call{method: http.MethodPost, path: "/api/templates", body: `{"key": "x", "components": [{"type": "LABOR", "ref_key": "C", "qty_formula": "qty +"}]}`})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Contains(t, decode[ErrorResponse](t, bad).Details, "components[0].qty_formula")
}

// =============================================================================
// PRICES
// =============================================================================

func TestPrices_AppendAndList(t *testing.T) {
	srv := newTestServer(t, false)
	acme := map[string]string{TenantHeader: "acme"}

	rec := do(t, srv, call{method: http.MethodPost, path: "/api/prices", headers: acme,
		body: `{"ref_key": "PIPE_DN200", "price": "8.5", "unit": "m", "valid_from": "2024-01-01"}`})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, call{method: http.MethodPost, path: "/api/prices", headers: acme,
		body: `[{"ref_key": "PIPE_DN200", "price": 9.2, "unit": "m", "valid_from": "2024-06-01"}, {"ref_key": "SAND", "price": "32", "valid_from": "2024-01-01"}]`})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]PriceDTO](t, rec), 2)

	rec = do(t, srv, call{method: http.MethodGet, path: "/api/prices?ref_key=PIPE_DN200", headers: acme})
	require.Equal(t, http.StatusOK, rec.Code)
	prices := decode[[]PriceDTO](t, rec)
	require.Len(t, prices, 2)
	assert.Equal(t, "acme", prices[0].Tenant)
	assert.Less(t, prices[0].Seq, prices[1].Seq)

	// other tenants see nothing
	rec = do(t, srv, call{method: http.MethodGet, path: "/api/prices", headers: map[string]string{TenantHeader: "other"}})
	assert.Empty(t, decode[[]PriceDTO](t, rec))
}

func TestPrices_Validation(t *testing.T) {
	srv := newTestServer(t, false)

	rec := do(t, srv, call{method: http.MethodPost, path: "/api/prices", body: `[]`})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "tenant required")

	rec = do(t, srv, call{method: http.MethodPost, path: "/api/prices", headers: demoTenant,
		body: `[{"ref_key": "K", "price": 1, "valid_from": "2024-01-01"}, {"ref_key": "K", "price": -1, "valid_from": "2024-01-01"}]`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "prices[1].price")

	rec = do(t, srv, call{method: http.MethodGet, path: "/api/prices", headers: demoTenant})
	assert.Empty(t, decode[[]PriceDTO](t, rec), "nothing written when the list is invalid")
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestLoadScenario(t *testing.T) {
	srv := newTestServer(t, false)

	rec := do(t, srv, call{method: http.MethodPost, path: "/api/scenarios/load", body: `{"scenario_id": "construction-demo"}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, call{method: http.MethodGet, path: "/api/scenarios/current"})
	assert.Equal(t, ScenarioConstructionDemo, decode[ScenarioDTO](t, rec).ID)

	rec = do(t, srv, call{method: http.MethodGet, path: "/api/templates"})
	assert.Len(t, decode[[]TemplateSummaryDTO](t, rec), 3)

	rec = do(t, srv, call{method: http.MethodPost, path: "/api/scenarios/load", body: `{"scenario_id": "nope"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
