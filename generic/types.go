/*
Package generic provides the core parametric costing engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms that turn
  a recipe template, an optional variant, override parameters, a requested
  quantity and a reference date into a priced, line-itemized breakdown.
  Whether the template describes trench excavation or pipe laying, the same
  engine merges parameters, evaluates quantity formulas, resolves unit
  prices and aggregates totals.

KEY CONCEPTS IN THIS FILE (types.go):
  - Template:    reusable recipe with default parameters and components
  - Component:   one priced line with a quantity formula
  - Variant:     named partial override of a template's parameters
  - PriceRecord: one temporally scoped unit price for a reference key

DESIGN PRINCIPLES:
  1. Purity: every operation is a function of its inputs plus the price
     table and reference date; nothing here holds mutable state
  2. Precision: money uses decimal.Decimal; quantities stay float64 until
     they meet a price
  3. Tolerance: a failing formula or missing price degrades a line, never
     the whole calculation
  4. Vocabulary-free: parameter names, weights and label formats are
     supplied by domain packages (see construction/)

USAGE:
  engine := generic.NewEngine(store, store)
  breakdown, err := engine.Calculate(ctx, generic.CalculateRequest{
      TemplateKey: "pipe-laying",
      Quantity:    1,
      Params:      generic.Params{"length": generic.Number(25)},
      Tenant:      "acme",
  })

SEE ALSO:
  - params.go:    meta keys, diffing, merging
  - resolver.go:  temporal price resolution
  - scoring.go:   variant suggestion
  - calculate.go: the calculation pipeline
*/
package generic

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// TenantID scopes price records. The engine never infers or defaults it.
type TenantID string

// =============================================================================
// COMPONENT TYPE - Closed set of cost line categories
// =============================================================================

type ComponentType string

const (
	ComponentLabor    ComponentType = "LABOR"
	ComponentMachine  ComponentType = "MACHINE"
	ComponentMaterial ComponentType = "MATERIAL"
	ComponentDisposal ComponentType = "DISPOSAL"
	ComponentSurface  ComponentType = "SURFACE"
	ComponentOther    ComponentType = "OTHER"
)

// ComponentTypes lists the closed set in display order.
var ComponentTypes = []ComponentType{
	ComponentLabor, ComponentMachine, ComponentMaterial,
	ComponentDisposal, ComponentSurface, ComponentOther,
}

func (c ComponentType) Valid() bool {
	for _, t := range ComponentTypes {
		if c == t {
			return true
		}
	}
	return false
}

// ParseComponentType accepts any letter case.
func ParseComponentType(s string) (ComponentType, error) {
	c := ComponentType(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown component type %q", s)
	}
	return c, nil
}

// =============================================================================
// TEMPLATE & COMPONENT
// =============================================================================

type Template struct {
	ID            string
	Key           string
	Title         string
	Category      string
	Unit          string
	Description   string
	DefaultParams Params
	Tags          []string
	Components    []Component
}

// Component is one cost line. RefKey is not unique inside a template;
// duplicates are evaluated independently.
type Component struct {
	Type       ComponentType
	RefKey     string
	QtyFormula string
	Mandatory  bool    // informational only
	RiskFactor float64 // carried through, never applied to price
	Sort       int
	Note       string
}

// DefaultRiskFactor is used when a definition omits the risk factor.
const DefaultRiskFactor = 1.0

// OrderedComponents returns the components sorted by Sort, ties kept in
// definition order.
func (t Template) OrderedComponents() []Component {
	out := make([]Component, len(t.Components))
	copy(out, t.Components)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sort < out[j].Sort })
	return out
}

// RefKeys returns the distinct component reference keys, sorted.
func (t Template) RefKeys() []string {
	seen := make(map[string]struct{}, len(t.Components))
	keys := make([]string, 0, len(t.Components))
	for _, c := range t.Components {
		if _, ok := seen[c.RefKey]; ok {
			continue
		}
		seen[c.RefKey] = struct{}{}
		keys = append(keys, c.RefKey)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// VARIANT
// =============================================================================

// Variant overrides a subset of a template's parameters. Only overridden
// keys need be present in Params.
type Variant struct {
	ID          string
	Key         string
	TemplateKey string
	Unit        string // empty = template unit
	Enabled     bool
	Virtual     bool // synthesized, never persisted
	Params      Params
}

// =============================================================================
// PRICE RECORD - Temporally scoped unit price
// =============================================================================

type PriceRecord struct {
	ID        string
	Seq       int64 // store-assigned insertion sequence, breaks ValidFrom ties
	Tenant    TenantID
	RefKey    string
	Price     decimal.Decimal
	Unit      string
	ValidFrom time.Time  // inclusive
	ValidTo   *time.Time // exclusive, nil = open-ended
	Note      string
}

// Window returns the record's validity interval.
func (p PriceRecord) Window() Validity {
	return Validity{From: p.ValidFrom, To: p.ValidTo}
}

// =============================================================================
// VALIDITY - Half-open interval [From, To)
// =============================================================================

type Validity struct {
	From time.Time
	To   *time.Time
}

// Contains returns true if at lies in [From, To).
func (v Validity) Contains(at time.Time) bool {
	if at.Before(v.From) {
		return false
	}
	return v.To == nil || v.To.After(at)
}

func (v Validity) String() string {
	end := "open"
	if v.To != nil {
		end = v.To.UTC().Format(time.RFC3339)
	}
	return "[" + v.From.UTC().Format(time.RFC3339) + ", " + end + ")"
}
