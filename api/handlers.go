/*
handlers.go - HTTP API handlers for the costing engine

PURPOSE:
  Exposes the costing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine and the catalog store.

ENDPOINTS:
  Templates:
    GET    /api/templates                         List templates
    POST   /api/templates                         Create or replace from JSON
    GET    /api/templates/{key}                   Template with stored variants

  Variants:
    GET    /api/templates/{key}/variants          Virtual default + stored
                                                  (?include_disabled=true)
    POST   /api/templates/{key}/variants          Create or replace a variant

  Costing:
    POST   /api/templates/{key}/suggest           Rank variants for a context
    POST   /api/templates/{key}/calculate         Priced breakdown
    POST   /api/templates/{key}/suggest-calculate Best variant, priced

  Prices:
    GET    /api/prices[?ref_key=]                 Tenant's price list
    POST   /api/prices                            Append one or many quotations

  Scenarios:
    GET    /api/scenarios                         List demo scenarios
    POST   /api/scenarios/load                    Load a demo scenario

TENANT:
  Price-bearing endpoints require the X-Tenant-ID header. It is never
  defaulted.

REFERENCE DATE:
  Body field reference_date, else the X-Reference-Date header, else the
  neutral today.

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with status:
  - 400: Validation errors, invalid input
  - 404: Template or variant not found
  - 409: Duplicate key
  - 500: Store and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/warp/recipe-costing/factory"
	"github.com/warp/recipe-costing/generic"
)

// TenantHeader carries the price list owner.
const TenantHeader = "X-Tenant-ID"

// DefaultTopN is used when neither the request nor the handler sets one.
const DefaultTopN = 3

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *generic.Engine
	Catalog generic.CatalogStore
	Prices  generic.PriceWriter // may differ from Catalog (shared price list)
	Factory *factory.TemplateFactory

	// DefaultTopN caps suggestion alternatives when a request omits top_n.
	DefaultTopN int

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler wires a handler. prices is where quotations are written and
// listed; the engine must read from the same list.
func NewHandler(engine *generic.Engine, catalog generic.CatalogStore, prices generic.PriceWriter) *Handler {
	return &Handler{
		Engine:      engine,
		Catalog:     catalog,
		Prices:      prices,
		Factory:     factory.NewTemplateFactory(),
		DefaultTopN: DefaultTopN,
	}
}

func (h *Handler) now() time.Time {
	if h.Engine.Now != nil {
		return h.Engine.Now()
	}
	return time.Now()
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

// ListTemplates returns all templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Catalog.ListTemplates(r.Context())
	if err != nil {
		respondErr(w, r, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateSummaryDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateSummaryDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTemplate returns a template definition including stored variants.
// GET /api/templates/{key}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	tpl, err := h.Catalog.GetTemplate(ctx, key)
	if err != nil {
		respondErr(w, r, "Failed to get template", err)
		return
	}
	variants, err := h.Catalog.ListVariants(ctx, key)
	if err != nil {
		respondErr(w, r, "Failed to list variants", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(tpl, variants))
}

// CreateTemplate validates a JSON template and stores it with its variants.
// POST /api/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondErr(w, r, "Invalid request body", err)
		return
	}
	tpl, variants, err := h.Factory.ParseTemplate(string(body))
	if err != nil {
		respondErr(w, r, "Invalid template", err)
		return
	}

	ctx := r.Context()
	if existing, err := h.Catalog.GetTemplate(ctx, tpl.Key); err == nil {
		tpl.ID = existing.ID
	} else if !generic.IsNotFound(err) {
		respondErr(w, r, "Failed to look up template", err)
		return
	}
	if err := h.Catalog.SaveTemplate(ctx, *tpl); err != nil {
		respondErr(w, r, "Failed to save template", err)
		return
	}
	for _, v := range variants {
		if err := h.Catalog.SaveVariant(ctx, v); err != nil {
			respondErr(w, r, "Failed to save variant "+v.Key, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, h.Factory.ToJSON(tpl, variants))
}

// =============================================================================
// VARIANT HANDLERS
// =============================================================================

// ListVariants returns the virtual default followed by stored variants.
// GET /api/templates/{key}/variants?include_disabled=true
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	opts := generic.ListOptions{}
	if raw := r.URL.Query().Get("include_disabled"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			respondErr(w, r, "Invalid include_disabled", &generic.ValidationError{Field: "include_disabled", Message: err.Error()})
			return
		}
		opts.IncludeDisabled = b
	}

	listing, err := h.Engine.ListVariants(r.Context(), chi.URLParam(r, "key"), opts)
	if err != nil {
		respondErr(w, r, "Failed to list variants", err)
		return
	}
	writeJSON(w, http.StatusOK, toVariantListDTO(listing))
}

func toVariantListDTO(l *generic.VariantListing) VariantListDTO {
	dto := VariantListDTO{
		Template: toTemplateSummaryDTO(l.Template),
		Variants: make([]VariantDTO, len(l.Variants)),
	}
	for i, vw := range l.Variants {
		dto.Variants[i] = toVariantDTO(l.Template, vw)
	}
	return dto
}

// CreateVariant stores a variant. Re-posting a key keeps its id.
// POST /api/templates/{key}/variants
func (h *Handler) CreateVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	var vj factory.VariantJSON
	if err := decodeJSON(r, &vj); err != nil {
		respondErr(w, r, "Invalid request body", err)
		return
	}
	if vj.ID == "" {
		existing, err := h.Catalog.ListVariants(ctx, key)
		if err != nil {
			respondErr(w, r, "Failed to list variants", err)
			return
		}
		for _, v := range existing {
			if v.Key == strings.TrimSpace(vj.Key) {
				vj.ID = v.ID
			}
		}
	}
	v, err := h.Factory.ParseVariant(key, vj)
	if err != nil {
		respondErr(w, r, "Invalid variant", err)
		return
	}
	if err := h.Catalog.SaveVariant(ctx, v); err != nil {
		respondErr(w, r, "Failed to save variant", err)
		return
	}

	listing, err := h.Engine.ListVariants(ctx, key, generic.ListOptions{IncludeDisabled: true})
	if err != nil {
		respondErr(w, r, "Failed to list variants", err)
		return
	}
	for _, vw := range listing.Variants {
		if vw.Variant.ID == v.ID {
			writeJSON(w, http.StatusCreated, toVariantDTO(listing.Template, vw))
			return
		}
	}
	respondErr(w, r, "Variant not stored", errors.New("saved variant missing from listing"))
}

// =============================================================================
// COSTING HANDLERS
// =============================================================================

// Suggest ranks the variants of a template against an observed context.
// POST /api/templates/{key}/suggest
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, "Invalid request body", err)
		return
	}

	s, err := h.Engine.SuggestVariant(r.Context(), chi.URLParam(r, "key"), req.Context, h.topN(req.TopN))
	if err != nil {
		respondErr(w, r, "Failed to suggest variant", err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestionDTO(s))
}

// Calculate prices a template, optionally through a variant.
// POST /api/templates/{key}/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, "Invalid request body", err)
		return
	}
	tenant, err := tenantFrom(r)
	if err != nil {
		respondErr(w, r, "Missing tenant", err)
		return
	}
	at, err := generic.ResolveReferenceDate(req.ReferenceDate, r.Header.Get(generic.ReferenceDateHeader), h.now())
	if err != nil {
		respondErr(w, r, "Invalid reference date", err)
		return
	}

	b, err := h.Engine.Calculate(r.Context(), generic.CalculateRequest{
		TemplateKey:   chi.URLParam(r, "key"),
		Quantity:      quantityOrOne(req.Quantity),
		VariantKey:    req.VariantKey,
		VariantID:     req.VariantID,
		Params:        req.Params,
		Tenant:        tenant,
		ReferenceDate: at,
	})
	if err != nil {
		respondErr(w, r, "Failed to calculate", err)
		return
	}
	writeJSON(w, http.StatusOK, ToBreakdownDTO(b))
}

// SuggestAndCalculate picks the best variant and prices it.
// POST /api/templates/{key}/suggest-calculate
func (h *Handler) SuggestAndCalculate(w http.ResponseWriter, r *http.Request) {
	var req SuggestCalculateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, "Invalid request body", err)
		return
	}
	tenant, err := tenantFrom(r)
	if err != nil {
		respondErr(w, r, "Missing tenant", err)
		return
	}
	at, err := generic.ResolveReferenceDate(req.ReferenceDate, r.Header.Get(generic.ReferenceDateHeader), h.now())
	if err != nil {
		respondErr(w, r, "Invalid reference date", err)
		return
	}

	res, err := h.Engine.SuggestAndCalculate(r.Context(), generic.SuggestCalculateRequest{
		TemplateKey:   chi.URLParam(r, "key"),
		Quantity:      quantityOrOne(req.Quantity),
		Context:       req.Context,
		TopN:          h.topN(req.TopN),
		Tenant:        tenant,
		ReferenceDate: at,
	})
	if err != nil {
		respondErr(w, r, "Failed to suggest and calculate", err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestCalculateDTO{
		Suggestion: toSuggestionDTO(res.Suggestion),
		Breakdown:  ToBreakdownDTO(res.Breakdown),
	})
}

func (h *Handler) topN(req *int) int {
	if req != nil {
		return *req
	}
	return h.DefaultTopN
}

func quantityOrOne(q *float64) float64 {
	if q == nil {
		return 1
	}
	return *q
}

// =============================================================================
// PRICE HANDLERS
// =============================================================================

// ListPrices returns the tenant's quotations.
// GET /api/prices?ref_key=PIPE_DN200
func (h *Handler) ListPrices(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		respondErr(w, r, "Missing tenant", err)
		return
	}
	recs, err := h.Prices.ListPrices(r.Context(), tenant, r.URL.Query().Get("ref_key"))
	if err != nil {
		respondErr(w, r, "Failed to list prices", err)
		return
	}

	dtos := make([]PriceDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toPriceDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePrices appends a quotation or a JSON array of quotations. The
// whole list is validated before anything is written.
// POST /api/prices
func (h *Handler) CreatePrices(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		respondErr(w, r, "Missing tenant", err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondErr(w, r, "Invalid request body", err)
		return
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		body = append(append([]byte{'['}, trimmed...), ']')
	}

	recs, err := factory.ParsePriceList(tenant, string(body))
	if err != nil {
		respondErr(w, r, "Invalid price list", err)
		return
	}

	stored := make([]PriceDTO, 0, len(recs))
	for _, rec := range recs {
		saved, err := h.Prices.AppendPrice(r.Context(), rec)
		if err != nil {
			respondErr(w, r, "Failed to append price", err)
			return
		}
		stored = append(stored, toPriceDTO(saved))
	}
	writeJSON(w, http.StatusCreated, stored)
}

// =============================================================================
// HELPERS
// =============================================================================

func tenantFrom(r *http.Request) (generic.TenantID, error) {
	tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
	if tenant == "" {
		return "", &generic.ValidationError{Field: TenantHeader, Message: "header required"}
	}
	return generic.TenantID(tenant), nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, &generic.ValidationError{Field: "body", Message: err.Error()}
	}
	return body, nil
}

// decodeJSON treats an empty body as an empty object.
func decodeJSON(r *http.Request, into any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, into); err != nil {
		return &generic.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
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

// respondErr maps engine and store errors to a status code.
func respondErr(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
