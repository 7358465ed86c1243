/*
Package factory provides JSON to Go template conversion.

PURPOSE:
  Converts JSON recipe definitions into generic.Template, generic.Variant
  and generic.PriceRecord values. Estimators maintain recipes as JSON;
  the factory validates them and fills in defaults so the engine only ever
  sees well-formed definitions.

JSON SCHEMA:
  {
    "key": "pipe-laying",
    "title": "Pipe laying",
    "category": "pipework",
    "unit": "m",
    "default_params": {"dn": 200, "depth": 1.5},
    "tags": ["pipework"],
    "components": [
      {"type": "MATERIAL", "ref_key": "PIPE_DN200", "qty_formula": "qty * 1.02",
       "mandatory": true, "risk_factor": 1.0, "sort": 10, "note": "m"}
    ],
    "variants": [
      {"key": "dn300", "params": {"dn": 300}, "enabled": true}
    ]
  }

DEFAULTS:
  - id:          random UUID when omitted
  - risk_factor: 1.0 when omitted
  - enabled:     true when omitted

VALIDATION:
  - key required, no whitespace
  - component type from the closed set (any letter case)
  - ref_key required
  - qty_formula must compile under the factory's formula limits
  - risk_factor finite and >= 0
  - variant keys required and unique within the template

USAGE:
  f := factory.NewTemplateFactory()
  tpl, variants, err := f.ParseTemplate(construction.PipeLayingJSON())

SEE ALSO:
  - price.go:                  price list parsing
  - construction/presets.go:   JSON presets
*/
package factory

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/recipe-costing/formula"
	"github.com/warp/recipe-costing/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TemplateJSON is the JSON representation of a template.
type TemplateJSON struct {
	ID            string          `json:"id,omitempty"`
	Key           string          `json:"key"`
	Title         string          `json:"title"`
	Category      string          `json:"category,omitempty"`
	Unit          string          `json:"unit"`
	Description   string          `json:"description,omitempty"`
	DefaultParams generic.Params  `json:"default_params"`
	Tags          []string        `json:"tags,omitempty"`
	Components    []ComponentJSON `json:"components"`
	Variants      []VariantJSON   `json:"variants,omitempty"`
}

// ComponentJSON represents one cost line.
type ComponentJSON struct {
	Type       string   `json:"type"`
	RefKey     string   `json:"ref_key"`
	QtyFormula string   `json:"qty_formula"`
	Mandatory  bool     `json:"mandatory,omitempty"`
	RiskFactor *float64 `json:"risk_factor,omitempty"`
	Sort       int      `json:"sort,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// VariantJSON represents a named parameter override.
type VariantJSON struct {
	ID      string         `json:"id,omitempty"`
	Key     string         `json:"key"`
	Unit    string         `json:"unit,omitempty"`
	Enabled *bool          `json:"enabled,omitempty"` // default true
	Params  generic.Params `json:"params"`
}

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// TemplateFactory converts JSON templates to Go structs.
type TemplateFactory struct {
	Evaluator *formula.Evaluator
}

// NewTemplateFactory creates a factory that validates formulas with the
// default limits.
func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{Evaluator: formula.New(formula.DefaultLimits())}
}

// ParseTemplate parses a JSON string into a Template and its variants.
func (f *TemplateFactory) ParseTemplate(jsonStr string) (*generic.Template, []generic.Variant, error) {
	var tj TemplateJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return nil, nil, &generic.ValidationError{Field: "template", Message: fmt.Sprintf("failed to parse JSON: %v", err)}
	}
	return f.FromJSON(tj)
}

// FromJSON validates tj and converts it.
func (f *TemplateFactory) FromJSON(tj TemplateJSON) (*generic.Template, []generic.Variant, error) {
	key := strings.TrimSpace(tj.Key)
	if err := validateKey("key", key); err != nil {
		return nil, nil, err
	}

	t := &generic.Template{
		ID:            tj.ID,
		Key:           key,
		Title:         tj.Title,
		Category:      tj.Category,
		Unit:          tj.Unit,
		Description:   tj.Description,
		DefaultParams: tj.DefaultParams,
		Tags:          tj.Tags,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.DefaultParams == nil {
		t.DefaultParams = generic.Params{}
	}
	if t.Title == "" {
		t.Title = key
	}

	for i, cj := range tj.Components {
		c, err := f.parseComponent(i, cj)
		if err != nil {
			return nil, nil, err
		}
		t.Components = append(t.Components, c)
	}

	variants := make([]generic.Variant, 0, len(tj.Variants))
	seen := map[string]bool{}
	for i, vj := range tj.Variants {
		v, err := f.ParseVariant(key, vj)
		if err != nil {
			var ve *generic.ValidationError
			if asValidation(err, &ve) {
				ve.Field = fmt.Sprintf("variants[%d].%s", i, ve.Field)
			}
			return nil, nil, err
		}
		if seen[v.Key] {
			return nil, nil, &generic.ValidationError{
				Field:   fmt.Sprintf("variants[%d].key", i),
				Message: fmt.Sprintf("duplicate variant key %q", v.Key),
			}
		}
		seen[v.Key] = true
		variants = append(variants, v)
	}

	return t, variants, nil
}

func (f *TemplateFactory) parseComponent(i int, cj ComponentJSON) (generic.Component, error) {
	field := func(name string) string { return fmt.Sprintf("components[%d].%s", i, name) }

	ct, err := generic.ParseComponentType(cj.Type)
	if err != nil {
		return generic.Component{}, &generic.ValidationError{Field: field("type"), Message: err.Error()}
	}
	refKey := strings.TrimSpace(cj.RefKey)
	if refKey == "" {
		return generic.Component{}, &generic.ValidationError{Field: field("ref_key"), Message: "required"}
	}
	if _, err := f.Evaluator.Compile(cj.QtyFormula); err != nil {
		return generic.Component{}, &generic.ValidationError{Field: field("qty_formula"), Message: err.Error()}
	}

	risk := generic.DefaultRiskFactor
	if cj.RiskFactor != nil {
		risk = *cj.RiskFactor
	}
	if math.IsNaN(risk) || math.IsInf(risk, 0) || risk < 0 {
		return generic.Component{}, &generic.ValidationError{Field: field("risk_factor"), Message: "must be a finite number >= 0"}
	}

	return generic.Component{
		Type:       ct,
		RefKey:     refKey,
		QtyFormula: cj.QtyFormula,
		Mandatory:  cj.Mandatory,
		RiskFactor: risk,
		Sort:       cj.Sort,
		Note:       cj.Note,
	}, nil
}

// ParseVariant converts a single variant definition of templateKey.
func (f *TemplateFactory) ParseVariant(templateKey string, vj VariantJSON) (generic.Variant, error) {
	key := strings.TrimSpace(vj.Key)
	if err := validateKey("key", key); err != nil {
		return generic.Variant{}, err
	}
	v := generic.Variant{
		ID:          vj.ID,
		Key:         key,
		TemplateKey: templateKey,
		Unit:        vj.Unit,
		Enabled:     true,
		Params:      vj.Params,
	}
	if vj.Enabled != nil {
		v.Enabled = *vj.Enabled
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Params == nil {
		v.Params = generic.Params{}
	}
	return v, nil
}

// ToJSON converts a template and its variants back to the JSON shape.
func (f *TemplateFactory) ToJSON(t *generic.Template, variants []generic.Variant) TemplateJSON {
	tj := TemplateJSON{
		ID:            t.ID,
		Key:           t.Key,
		Title:         t.Title,
		Category:      t.Category,
		Unit:          t.Unit,
		Description:   t.Description,
		DefaultParams: t.DefaultParams,
		Tags:          t.Tags,
	}
	for _, c := range t.Components {
		risk := c.RiskFactor
		tj.Components = append(tj.Components, ComponentJSON{
			Type:       string(c.Type),
			RefKey:     c.RefKey,
			QtyFormula: c.QtyFormula,
			Mandatory:  c.Mandatory,
			RiskFactor: &risk,
			Sort:       c.Sort,
			Note:       c.Note,
		})
	}
	for _, v := range variants {
		enabled := v.Enabled
		tj.Variants = append(tj.Variants, VariantJSON{
			ID:      v.ID,
			Key:     v.Key,
			Unit:    v.Unit,
			Enabled: &enabled,
			Params:  v.Params,
		})
	}
	return tj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func validateKey(field, key string) error {
	if key == "" {
		return &generic.ValidationError{Field: field, Message: "required"}
	}
	if strings.ContainsAny(key, " \t\r\n/") {
		return &generic.ValidationError{Field: field, Message: fmt.Sprintf("%q must not contain whitespace or '/'", key)}
	}
	return nil
}
