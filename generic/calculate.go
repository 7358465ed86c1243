/*
calculate.go - The calculation pipeline

PURPOSE:
  Turns (template, optional variant, override params, quantity, tenant,
  reference date) into a priced, line-itemized Breakdown.

PIPELINE:
  1. Validate the request (ValidationError, nothing partially processed)
  2. Load the template, resolve the variant by id then key
  3. merged = defaults ⨁ variant ⨁ overrides (meta keys dropped)
  4. scope  = numeric view of merged + qty/Qty/QTY/quantity aliases
  5. One batched price lookup for every distinct refKey
  6. Per component in Sort order: formula -> quantity, price -> line net
  7. Totals and diagnostics

PARTIAL FAILURE:
  A failing formula yields quantity 0 and a FormulaError entry. A missing
  price yields unit price 0 and a MissingPrices entry. Neither stops the
  pipeline; Complete() tells the caller whether the estimate is reliable.

DETERMINISM:
  No wall-clock values are captured. Identical inputs and price table give
  identical breakdowns.

SEE ALSO:
  - engine.go:   Engine.Calculate entry point
  - resolver.go: price selection
*/
package generic

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/recipe-costing/formula"
)

// QuantityAliases are the scope names under which the requested quantity
// is visible to formulas. They shadow parameters of the same name.
var QuantityAliases = []string{"qty", "Qty", "QTY", "quantity"}

// =============================================================================
// REQUEST
// =============================================================================

type CalculateRequest struct {
	TemplateKey   string
	Quantity      float64
	VariantKey    string
	VariantID     string
	Params        Params // overrides, highest precedence
	Tenant        TenantID
	ReferenceDate time.Time // zero = engine's neutral today
}

// Validate rejects malformed requests before the pipeline runs.
func (r CalculateRequest) Validate() error {
	if strings.TrimSpace(r.TemplateKey) == "" {
		return &ValidationError{Field: "template_key", Message: "required"}
	}
	if strings.TrimSpace(string(r.Tenant)) == "" {
		return &ValidationError{Field: "tenant", Message: "required"}
	}
	if math.IsNaN(r.Quantity) || math.IsInf(r.Quantity, 0) {
		return &ValidationError{Field: "quantity", Message: "must be a finite number"}
	}
	if r.Quantity < 0 {
		return &ValidationError{Field: "quantity", Message: "must not be negative"}
	}
	return nil
}

// =============================================================================
// BREAKDOWN
// =============================================================================

type Breakdown struct {
	Template      TemplateSummary
	Variant       *VariantRef // nil when calculated on the bare template
	Input         InputEcho
	Lines         []LineItem
	Totals        Totals
	MissingPrices []string
	FormulaErrors []FormulaError
}

// Complete returns true if every line had a price and a working formula.
func (b *Breakdown) Complete() bool {
	return len(b.MissingPrices) == 0 && len(b.FormulaErrors) == 0
}

type TemplateSummary struct {
	ID       string
	Key      string
	Title    string
	Category string
	Unit     string
}

type VariantRef struct {
	ID      string
	Key     string
	Unit    string
	Virtual bool
}

type InputEcho struct {
	Quantity      float64
	Tenant        TenantID
	ReferenceDate time.Time
	Overrides     Params
	MergedParams  Params
}

type LineItem struct {
	Index      int
	Type       ComponentType
	RefKey     string
	Formula    string
	Quantity   float64
	FormulaOK  bool
	FormulaErr string
	UnitPrice  decimal.Decimal
	PriceUnit  string
	PriceFound bool
	PriceID    string
	Validity   *Validity
	Net        decimal.Decimal
	Mandatory  bool
	RiskFactor float64
	Note       string
}

type Totals struct {
	Net        decimal.Decimal
	NetPerUnit decimal.Decimal
	ByType     map[ComponentType]decimal.Decimal
}

type FormulaError struct {
	Index   int
	RefKey  string
	Formula string
	Message string
}

// =============================================================================
// SCOPE
// =============================================================================

// BuildScope converts merged params into a formula scope. Non-numeric
// values that cannot be coerced become 0. Meta keys never reach the scope.
func BuildScope(merged Params, quantity float64) formula.Scope {
	scope := make(formula.Scope, len(merged)+len(QuantityAliases))
	for k, v := range merged {
		if IsMetaKey(k) {
			continue
		}
		n, _ := v.Number()
		scope[k] = n
	}
	for _, alias := range QuantityAliases {
		scope[alias] = quantity
	}
	return scope
}

// =============================================================================
// PIPELINE
// =============================================================================

// pricer evaluates the components of one template against one scope.
type pricer struct {
	eval   *formula.Evaluator
	prices map[string]PriceRecord
}

func (p *pricer) price(t *Template, scope formula.Scope, quantity float64) ([]LineItem, Totals, []string, []FormulaError) {
	components := t.OrderedComponents()
	lines := make([]LineItem, 0, len(components))
	totals := Totals{Net: decimal.Zero, NetPerUnit: decimal.Zero, ByType: map[ComponentType]decimal.Decimal{}}
	missing := []string{}
	missingSeen := map[string]struct{}{}
	formulaErrs := []FormulaError{}

	for i, c := range components {
		line := LineItem{
			Index:      i,
			Type:       c.Type,
			RefKey:     c.RefKey,
			Formula:    c.QtyFormula,
			Mandatory:  c.Mandatory,
			RiskFactor: c.RiskFactor,
			Note:       c.Note,
			UnitPrice:  decimal.Zero,
			Net:        decimal.Zero,
		}

		qty, err := p.eval.Evaluate(c.QtyFormula, scope)
		if err != nil {
			line.FormulaErr = err.Error()
			formulaErrs = append(formulaErrs, FormulaError{
				Index: i, RefKey: c.RefKey, Formula: c.QtyFormula, Message: err.Error(),
			})
		} else {
			line.FormulaOK = true
			line.Quantity = qty
		}

		if rec, ok := p.prices[c.RefKey]; ok {
			w := rec.Window()
			line.PriceFound = true
			line.UnitPrice = rec.Price
			line.PriceUnit = rec.Unit
			line.PriceID = rec.ID
			line.Validity = &w
		} else if _, seen := missingSeen[c.RefKey]; !seen {
			missingSeen[c.RefKey] = struct{}{}
			missing = append(missing, c.RefKey)
		}

		line.Net = decimal.NewFromFloat(line.Quantity).Mul(line.UnitPrice)
		totals.Net = totals.Net.Add(line.Net)
		totals.ByType[c.Type] = totals.ByType[c.Type].Add(line.Net)
		lines = append(lines, line)
	}

	totals.NetPerUnit = totals.Net
	if quantity > 0 {
		totals.NetPerUnit = totals.Net.Div(decimal.NewFromFloat(quantity))
	}
	return lines, totals, missing, formulaErrs
}

// calculate runs the pipeline for an already loaded template and variant.
func (e *Engine) calculate(ctx context.Context, t *Template, v *Variant, req CalculateRequest) (*Breakdown, error) {
	var variantParams Params
	if v != nil {
		variantParams = v.Params
	}
	merged := Merge(t.DefaultParams, variantParams, req.Params)
	scope := BuildScope(merged, req.Quantity)

	at := req.ReferenceDate
	if at.IsZero() {
		at = NeutralToday(e.now())
	}
	at = at.UTC()

	resolver := PriceResolver{Store: e.Prices}
	prices, err := resolver.Resolve(ctx, req.Tenant, t.RefKeys(), at)
	if err != nil {
		return nil, err
	}

	p := &pricer{eval: e.Evaluator, prices: prices}
	lines, totals, missing, formulaErrs := p.price(t, scope, req.Quantity)

	b := &Breakdown{
		Template: TemplateSummary{ID: t.ID, Key: t.Key, Title: t.Title, Category: t.Category, Unit: t.Unit},
		Input: InputEcho{
			Quantity:      req.Quantity,
			Tenant:        req.Tenant,
			ReferenceDate: at,
			Overrides:     StripMeta(req.Params),
			MergedParams:  merged,
		},
		Lines:         lines,
		Totals:        totals,
		MissingPrices: missing,
		FormulaErrors: formulaErrs,
	}
	if v != nil {
		unit := v.Unit
		if unit == "" {
			unit = t.Unit
		}
		b.Variant = &VariantRef{ID: v.ID, Key: v.Key, Unit: unit, Virtual: v.Virtual}
	}

	e.logDiagnostics(t, req.Tenant, b)
	return b, nil
}

func (e *Engine) logDiagnostics(t *Template, tenant TenantID, b *Breakdown) {
	for _, fe := range b.FormulaErrors {
		e.Logger.Debug().
			Str("template", t.Key).
			Str("ref_key", fe.RefKey).
			Str("formula", fe.Formula).
			Str("error", fe.Message).
			Msg("formula failed")
	}
	if len(b.MissingPrices) > 0 {
		e.Logger.Warn().
			Str("template", t.Key).
			Str("tenant", string(tenant)).
			Strs("ref_keys", b.MissingPrices).
			Msg("missing prices")
	}
}
