/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ROUNDING:
  The engine keeps full precision. Only this layer rounds: money to 2
  decimal places (rendered as a decimal string), quantities to 4.

DETERMINISM:
  Breakdown DTOs carry no wall-clock fields. Maps are rendered by
  encoding/json in key order, so identical inputs give identical bytes.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/template.go: TemplateJSON, the template wire shape
  - factory/price.go: PriceJSON, the quotation wire shape
*/
package api

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/recipe-costing/factory"
	"github.com/warp/recipe-costing/generic"
)

const (
	moneyPlaces    = 2
	quantityPlaces = 4
)

func money(d decimal.Decimal) string {
	return d.Round(moneyPlaces).StringFixed(moneyPlaces)
}

func roundQuantity(q float64) float64 {
	p := math.Pow(10, quantityPlaces)
	return math.Round(q*p) / p
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// TEMPLATES & VARIANTS
// =============================================================================

// TemplateSummaryDTO is a template in list responses.
type TemplateSummaryDTO struct {
	ID             string   `json:"id"`
	Key            string   `json:"key"`
	Title          string   `json:"title"`
	Category       string   `json:"category,omitempty"`
	Unit           string   `json:"unit"`
	Tags           []string `json:"tags,omitempty"`
	ComponentCount int      `json:"component_count"`
}

func toTemplateSummaryDTO(t generic.Template) TemplateSummaryDTO {
	return TemplateSummaryDTO{
		ID:             t.ID,
		Key:            t.Key,
		Title:          t.Title,
		Category:       t.Category,
		Unit:           t.Unit,
		Tags:           t.Tags,
		ComponentCount: len(t.Components),
	}
}

// VariantDTO is a variant annotated against its template.
type VariantDTO struct {
	ID           string         `json:"id"`
	Key          string         `json:"key"`
	Unit         string         `json:"unit"`
	Enabled      bool           `json:"enabled"`
	Virtual      bool           `json:"virtual"`
	IsDefault    bool           `json:"is_default"`
	Label        string         `json:"label"`
	Params       generic.Params `json:"params"`
	MergedParams generic.Params `json:"merged_params"`
	ChangedKeys  []string       `json:"changed_keys"`
}

func toVariantDTO(t generic.Template, vw generic.VariantView) VariantDTO {
	unit := vw.Variant.Unit
	if unit == "" {
		unit = t.Unit
	}
	return VariantDTO{
		ID:           vw.Variant.ID,
		Key:          vw.Variant.Key,
		Unit:         unit,
		Enabled:      vw.Variant.Enabled,
		Virtual:      vw.Variant.Virtual,
		IsDefault:    vw.IsDefault,
		Label:        vw.Label,
		Params:       nonNilParams(vw.Variant.Params),
		MergedParams: nonNilParams(vw.Merged),
		ChangedKeys:  nonNilStrings(vw.ChangedKeys),
	}
}

// VariantListDTO is the response of the variant listing.
type VariantListDTO struct {
	Template TemplateSummaryDTO `json:"template"`
	Variants []VariantDTO       `json:"variants"`
}

// =============================================================================
// SUGGESTION
// =============================================================================

// SuggestRequest is the body of POST /api/templates/{key}/suggest.
type SuggestRequest struct {
	Context generic.Params `json:"context"`
	TopN    *int           `json:"top_n,omitempty"`
}

// RankedDTO is one scored candidate.
type RankedDTO struct {
	VariantID    string         `json:"variant_id"`
	VariantKey   string         `json:"variant_key"`
	Virtual      bool           `json:"virtual"`
	Score        float64        `json:"score"`
	Label        string         `json:"label"`
	ChangedKeys  []string       `json:"changed_keys"`
	MergedParams generic.Params `json:"merged_params"`
}

type SuggestionDTO struct {
	TemplateKey  string         `json:"template_key"`
	Context      generic.Params `json:"context"`
	Best         RankedDTO      `json:"best"`
	Alternatives []RankedDTO    `json:"alternatives"`
}

func toRankedDTO(r generic.Ranked) RankedDTO {
	return RankedDTO{
		VariantID:    r.Variant.ID,
		VariantKey:   r.Variant.Key,
		Virtual:      r.Variant.Virtual,
		Score:        r.Score,
		Label:        r.Label,
		ChangedKeys:  nonNilStrings(r.ChangedKeys),
		MergedParams: nonNilParams(r.MergedParams),
	}
}

func toSuggestionDTO(s *generic.Suggestion) SuggestionDTO {
	alts := make([]RankedDTO, len(s.Alternatives))
	for i, r := range s.Alternatives {
		alts[i] = toRankedDTO(r)
	}
	return SuggestionDTO{
		TemplateKey:  s.TemplateKey,
		Context:      nonNilParams(s.Context),
		Best:         toRankedDTO(s.Best),
		Alternatives: alts,
	}
}

// =============================================================================
// CALCULATION
// =============================================================================

// CalculateRequest is the body of POST /api/templates/{key}/calculate.
// A missing quantity means 1.
type CalculateRequest struct {
	Quantity      *float64       `json:"quantity,omitempty"`
	VariantKey    string         `json:"variant_key,omitempty"`
	VariantID     string         `json:"variant_id,omitempty"`
	Params        generic.Params `json:"params,omitempty"`
	ReferenceDate string         `json:"reference_date,omitempty"`
}

// SuggestCalculateRequest is the body of POST /api/templates/{key}/suggest-calculate.
type SuggestCalculateRequest struct {
	Quantity      *float64       `json:"quantity,omitempty"`
	Context       generic.Params `json:"context"`
	TopN          *int           `json:"top_n,omitempty"`
	ReferenceDate string         `json:"reference_date,omitempty"`
}

type BreakdownDTO struct {
	Template      TemplateRefDTO    `json:"template"`
	Variant       *VariantRefDTO    `json:"variant"`
	Input         InputDTO          `json:"input"`
	Lines         []LineDTO         `json:"lines"`
	Totals        TotalsDTO         `json:"totals"`
	MissingPrices []string          `json:"missing_prices"`
	FormulaErrors []FormulaErrorDTO `json:"formula_errors"`
	Complete      bool              `json:"complete"`
}

type TemplateRefDTO struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
	Unit     string `json:"unit"`
}

type VariantRefDTO struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Unit    string `json:"unit"`
	Virtual bool   `json:"virtual"`
}

type InputDTO struct {
	Quantity      float64        `json:"quantity"`
	Tenant        string         `json:"tenant"`
	ReferenceDate string         `json:"reference_date"`
	Overrides     generic.Params `json:"overrides"`
	MergedParams  generic.Params `json:"merged_params"`
}

type LineDTO struct {
	Index      int          `json:"index"`
	Type       string       `json:"type"`
	RefKey     string       `json:"ref_key"`
	Formula    string       `json:"formula"`
	Quantity   float64      `json:"quantity"`
	FormulaOK  bool         `json:"formula_ok"`
	FormulaErr string       `json:"formula_error,omitempty"`
	UnitPrice  string       `json:"unit_price"`
	PriceUnit  string       `json:"price_unit,omitempty"`
	PriceFound bool         `json:"price_found"`
	PriceID    string       `json:"price_id,omitempty"`
	Validity   *ValidityDTO `json:"validity,omitempty"`
	Net        string       `json:"net"`
	Mandatory  bool         `json:"mandatory"`
	RiskFactor float64      `json:"risk_factor"`
	Note       string       `json:"note,omitempty"`
}

type ValidityDTO struct {
	From string  `json:"from"`
	To   *string `json:"to"`
}

type TotalsDTO struct {
	Net        string            `json:"net"`
	NetPerUnit string            `json:"net_per_unit"`
	ByType     map[string]string `json:"by_type"`
}

type FormulaErrorDTO struct {
	Index   int    `json:"index"`
	RefKey  string `json:"ref_key"`
	Formula string `json:"formula"`
	Message string `json:"message"`
}

// ToBreakdownDTO renders a breakdown with API rounding.
func ToBreakdownDTO(b *generic.Breakdown) BreakdownDTO {
	dto := BreakdownDTO{
		Template: TemplateRefDTO{
			ID:       b.Template.ID,
			Key:      b.Template.Key,
			Title:    b.Template.Title,
			Category: b.Template.Category,
			Unit:     b.Template.Unit,
		},
		Input: InputDTO{
			Quantity:      b.Input.Quantity,
			Tenant:        string(b.Input.Tenant),
			ReferenceDate: formatDate(b.Input.ReferenceDate),
			Overrides:     nonNilParams(b.Input.Overrides),
			MergedParams:  nonNilParams(b.Input.MergedParams),
		},
		Lines: make([]LineDTO, len(b.Lines)),
		Totals: TotalsDTO{
			Net:        money(b.Totals.Net),
			NetPerUnit: money(b.Totals.NetPerUnit),
			ByType:     make(map[string]string, len(b.Totals.ByType)),
		},
		MissingPrices: nonNilStrings(b.MissingPrices),
		FormulaErrors: make([]FormulaErrorDTO, len(b.FormulaErrors)),
		Complete:      b.Complete(),
	}
	if b.Variant != nil {
		dto.Variant = &VariantRefDTO{ID: b.Variant.ID, Key: b.Variant.Key, Unit: b.Variant.Unit, Virtual: b.Variant.Virtual}
	}
	for i, l := range b.Lines {
		line := LineDTO{
			Index:      l.Index,
			Type:       string(l.Type),
			RefKey:     l.RefKey,
			Formula:    l.Formula,
			Quantity:   roundQuantity(l.Quantity),
			FormulaOK:  l.FormulaOK,
			FormulaErr: l.FormulaErr,
			UnitPrice:  money(l.UnitPrice),
			PriceUnit:  l.PriceUnit,
			PriceFound: l.PriceFound,
			PriceID:    l.PriceID,
			Net:        money(l.Net),
			Mandatory:  l.Mandatory,
			RiskFactor: l.RiskFactor,
			Note:       l.Note,
		}
		if l.Validity != nil {
			v := &ValidityDTO{From: formatDate(l.Validity.From)}
			if l.Validity.To != nil {
				to := formatDate(*l.Validity.To)
				v.To = &to
			}
			line.Validity = v
		}
		dto.Lines[i] = line
	}
	for typ, net := range b.Totals.ByType {
		dto.Totals.ByType[string(typ)] = money(net)
	}
	for i, fe := range b.FormulaErrors {
		dto.FormulaErrors[i] = FormulaErrorDTO{Index: fe.Index, RefKey: fe.RefKey, Formula: fe.Formula, Message: fe.Message}
	}
	return dto
}

// SuggestCalculateDTO combines the ranking and the priced best variant.
type SuggestCalculateDTO struct {
	Suggestion SuggestionDTO `json:"suggestion"`
	Breakdown  BreakdownDTO  `json:"breakdown"`
}

// =============================================================================
// PRICES
// =============================================================================

// PriceDTO is a stored quotation.
type PriceDTO struct {
	factory.PriceJSON
	Seq    int64  `json:"seq"`
	Tenant string `json:"tenant"`
}

func toPriceDTO(rec generic.PriceRecord) PriceDTO {
	return PriceDTO{PriceJSON: factory.PriceToJSON(rec), Seq: rec.Seq, Tenant: string(rec.Tenant)}
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func nonNilParams(p generic.Params) generic.Params {
	if p == nil {
		return generic.Params{}
	}
	return p
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
