package generic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/recipe-costing/formula"
)

// =============================================================================
// ENGINE - The in-process costing service
// =============================================================================

// Engine wires the stores to the pure algorithms. It holds no mutable
// state of its own and is safe for concurrent use when its stores are.
type Engine struct {
	Templates TemplateStore
	Prices    PriceStore
	Evaluator *formula.Evaluator
	Scorer    *Scorer
	Labels    *LabelBuilder
	Logger    zerolog.Logger
	Now       func() time.Time
}

// NewEngine returns an engine with default formula limits, unit weights,
// no label rules and a silent logger. Domain packages replace Scorer and
// Labels (see construction.NewEngine).
func NewEngine(templates TemplateStore, prices PriceStore) *Engine {
	return &Engine{
		Templates: templates,
		Prices:    prices,
		Evaluator: formula.New(formula.DefaultLimits()),
		Scorer:    NewScorer(nil),
		Labels:    &LabelBuilder{},
		Logger:    zerolog.Nop(),
		Now:       time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// =============================================================================
// LISTING
// =============================================================================

type ListOptions struct {
	IncludeDisabled bool
}

// VariantView is a variant annotated against its template.
type VariantView struct {
	Variant     Variant
	Merged      Params
	ChangedKeys []string
	IsDefault   bool // merged params equal the template defaults
	Label       string
}

type VariantListing struct {
	Template Template
	Variants []VariantView
}

// ListVariants returns the virtual default followed by the stored variants
// in key order. Disabled variants are skipped unless requested.
func (e *Engine) ListVariants(ctx context.Context, templateKey string, opts ListOptions) (*VariantListing, error) {
	t, err := e.loadTemplate(ctx, templateKey)
	if err != nil {
		return nil, err
	}
	stored, err := e.loadVariants(ctx, templateKey)
	if err != nil {
		return nil, err
	}

	listing := &VariantListing{Template: *t}
	listing.Variants = append(listing.Variants, e.view(t, VirtualDefault(*t)))
	for _, v := range stored {
		if !v.Enabled && !opts.IncludeDisabled {
			continue
		}
		listing.Variants = append(listing.Variants, e.view(t, v))
	}
	return listing, nil
}

func (e *Engine) view(t *Template, v Variant) VariantView {
	merged := Merge(t.DefaultParams, v.Params)
	changed := ChangedKeys(t.DefaultParams, merged)
	return VariantView{
		Variant:     v,
		Merged:      merged,
		ChangedKeys: changed,
		IsDefault:   len(changed) == 0,
		Label:       e.Labels.Label(merged, t.DefaultParams, t.Key),
	}
}

// =============================================================================
// SUGGESTION
// =============================================================================

type Suggestion struct {
	TemplateKey  string
	Context      Params
	Best         Ranked
	Alternatives []Ranked
}

// SuggestVariant ranks the virtual default and every enabled stored
// variant against context. topN caps the alternatives: 0 returns none,
// a negative value returns all.
func (e *Engine) SuggestVariant(ctx context.Context, templateKey string, observed Params, topN int) (*Suggestion, error) {
	t, err := e.loadTemplate(ctx, templateKey)
	if err != nil {
		return nil, err
	}
	return e.suggest(ctx, t, observed, topN)
}

func (e *Engine) suggest(ctx context.Context, t *Template, observed Params, topN int) (*Suggestion, error) {
	stored, err := e.loadVariants(ctx, t.Key)
	if err != nil {
		return nil, err
	}

	candidates := []Candidate{e.candidate(t, VirtualDefault(*t))}
	for _, v := range stored {
		if v.Enabled {
			candidates = append(candidates, e.candidate(t, v))
		}
	}

	ranked := e.Scorer.Rank(observed, candidates)
	rest := ranked[1:]
	if topN >= 0 && topN < len(rest) {
		rest = rest[:topN]
	}
	return &Suggestion{
		TemplateKey:  t.Key,
		Context:      StripMeta(observed),
		Best:         ranked[0],
		Alternatives: append([]Ranked{}, rest...),
	}, nil
}

func (e *Engine) candidate(t *Template, v Variant) Candidate {
	vw := e.view(t, v)
	return Candidate{Variant: v, MergedParams: vw.Merged, ChangedKeys: vw.ChangedKeys, Label: vw.Label}
}

// =============================================================================
// CALCULATION
// =============================================================================

// Calculate validates the request, resolves the template and variant and
// runs the pipeline (see calculate.go).
func (e *Engine) Calculate(ctx context.Context, req CalculateRequest) (*Breakdown, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := e.loadTemplate(ctx, req.TemplateKey)
	if err != nil {
		return nil, err
	}
	v, err := e.resolveVariant(ctx, t, req.VariantID, req.VariantKey)
	if err != nil {
		return nil, err
	}
	return e.calculate(ctx, t, v, req)
}

type SuggestCalculateRequest struct {
	TemplateKey   string
	Quantity      float64
	Context       Params
	TopN          int
	Tenant        TenantID
	ReferenceDate time.Time
}

type SuggestCalculateResult struct {
	Suggestion *Suggestion
	Breakdown  *Breakdown
}

// SuggestAndCalculate picks the best variant for the context and prices it.
func (e *Engine) SuggestAndCalculate(ctx context.Context, req SuggestCalculateRequest) (*SuggestCalculateResult, error) {
	calc := CalculateRequest{
		TemplateKey:   req.TemplateKey,
		Quantity:      req.Quantity,
		Tenant:        req.Tenant,
		ReferenceDate: req.ReferenceDate,
	}
	if err := calc.Validate(); err != nil {
		return nil, err
	}
	t, err := e.loadTemplate(ctx, req.TemplateKey)
	if err != nil {
		return nil, err
	}
	s, err := e.suggest(ctx, t, req.Context, req.TopN)
	if err != nil {
		return nil, err
	}

	best := s.Best.Variant
	calc.VariantID = best.ID
	calc.VariantKey = best.Key
	b, err := e.calculate(ctx, t, &best, calc)
	if err != nil {
		return nil, err
	}
	return &SuggestCalculateResult{Suggestion: s, Breakdown: b}, nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (e *Engine) loadTemplate(ctx context.Context, key string) (*Template, error) {
	if strings.TrimSpace(key) == "" {
		return nil, &ValidationError{Field: "template_key", Message: "required"}
	}
	t, err := e.Templates.GetTemplate(ctx, key)
	if errors.Is(err, ErrTemplateNotFound) {
		return nil, &NotFoundError{Kind: "template", Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", key, err)
	}
	return t, nil
}

func (e *Engine) loadVariants(ctx context.Context, templateKey string) ([]Variant, error) {
	vs, err := e.Templates.ListVariants(ctx, templateKey)
	if err != nil {
		return nil, fmt.Errorf("load variants of %q: %w", templateKey, err)
	}
	return vs, nil
}

// resolveVariant looks up by id first, then by key. The virtual default
// answers to its derived id and to the key "default" when no stored
// variant claims it. Disabled variants may be addressed explicitly.
func (e *Engine) resolveVariant(ctx context.Context, t *Template, id, key string) (*Variant, error) {
	if id == "" && key == "" {
		return nil, nil
	}
	stored, err := e.loadVariants(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	virtual := VirtualDefault(*t)

	if id != "" {
		if id == virtual.ID {
			return &virtual, nil
		}
		for i := range stored {
			if stored[i].ID == id {
				return &stored[i], nil
			}
		}
		if key == "" {
			return nil, &NotFoundError{Kind: "variant", Key: id}
		}
	}

	for i := range stored {
		if stored[i].Key == key {
			return &stored[i], nil
		}
	}
	if key == VirtualDefaultKey {
		return &virtual, nil
	}
	return nil, &NotFoundError{Kind: "variant", Key: key}
}
