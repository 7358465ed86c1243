/*
scoring.go - Rank candidate parameter sets against an observation context

PURPOSE:
  Supports "suggest the best variant for this site": the caller supplies
  what it observed (depth 1.8 m, groundwater, DN 200...) and every variant
  of a template is scored by weighted similarity.

PER-KEY PARTIAL SCORE (context value c, candidate value v):
  number/number   1 - min(1, |c-v| / max(eps, |c|+|v|, 1))
  bool/bool       1 if equal, else 0
  string/string   1 if equal ignoring case, else 0
  object/list     1 if stable serializations match, else 0
  null/null       1
  v absent/null   AbsentScore    (no opinion, mild)
  kind mismatch   MismatchScore  (active disagreement, harsher)

AGGREGATE:
  Σ weight·partial / Σ weight over the non-meta context keys; 0 for an
  empty context. Always within [0, 1].

RANKING:
  score desc, then fewer changed keys (closer to the template default),
  then key asc, then virtual before stored.

SEE ALSO:
  - construction/weights.go: the domain weight table
  - engine.go:               SuggestVariant
*/
package generic

import (
	"math"
	"sort"
	"strings"
)

const (
	DefaultAbsentScore   = 0.6
	DefaultMismatchScore = 0.35
	scoreEpsilon         = 1e-9
)

// WeightTable maps parameter names to their importance. Unknown keys and
// non-positive entries weigh 1.
type WeightTable map[string]float64

func (w WeightTable) Weight(key string) float64 {
	if v, ok := w[key]; ok && v > 0 && !math.IsInf(v, 0) {
		return v
	}
	return 1
}

type Scorer struct {
	Weights       WeightTable
	AbsentScore   float64
	MismatchScore float64
}

// NewScorer returns a scorer with the default neutral partial scores.
func NewScorer(weights WeightTable) *Scorer {
	return &Scorer{Weights: weights, AbsentScore: DefaultAbsentScore, MismatchScore: DefaultMismatchScore}
}

// Score returns the weighted similarity of candidate to context in [0, 1].
func (s *Scorer) Score(context, candidate Params) float64 {
	ctx := StripMeta(context)
	if len(ctx) == 0 {
		return 0
	}
	cand := StripMeta(candidate)

	var sum, total float64
	for _, k := range ctx.Keys() {
		w := s.Weights.Weight(k)
		sum += w * s.partial(ctx[k], cand.Get(k))
		total += w
	}
	if total == 0 {
		return 0
	}
	return clamp01(sum / total)
}

func (s *Scorer) partial(c, v Value) float64 {
	if v.IsMissing() || v.Kind() == KindNull {
		if c.Kind() == KindNull && v.Kind() == KindNull {
			return 1
		}
		return s.AbsentScore
	}
	if c.Kind() != v.Kind() {
		return s.MismatchScore
	}
	switch c.Kind() {
	case KindNumber:
		a, b := c.Float(), v.Float()
		denom := math.Max(scoreEpsilon, math.Max(math.Abs(a)+math.Abs(b), 1))
		return 1 - math.Min(1, math.Abs(a-b)/denom)
	case KindBool:
		return boolScore(c.Boolean() == v.Boolean())
	case KindString:
		return boolScore(strings.EqualFold(c.Text(), v.Text()))
	case KindObject, KindList:
		return boolScore(StableSerialize(c) == StableSerialize(v))
	default:
		return s.MismatchScore
	}
}

// =============================================================================
// RANKING
// =============================================================================

// Candidate is one parameter set competing in a suggestion.
type Candidate struct {
	Variant      Variant
	MergedParams Params
	ChangedKeys  []string
	Label        string
}

// Ranked is a scored candidate.
type Ranked struct {
	Candidate
	Score float64
}

// Rank scores every candidate against context and returns them best first.
func (s *Scorer) Rank(context Params, candidates []Candidate) []Ranked {
	out := make([]Ranked, len(candidates))
	for i, c := range candidates {
		out[i] = Ranked{Candidate: c, Score: s.Score(context, c.MergedParams)}
	}
	sort.SliceStable(out, func(i, j int) bool { return rankedBefore(out[i], out[j]) })
	return out
}

func rankedBefore(a, b Ranked) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if len(a.ChangedKeys) != len(b.ChangedKeys) {
		return len(a.ChangedKeys) < len(b.ChangedKeys)
	}
	if a.Variant.Key != b.Variant.Key {
		return a.Variant.Key < b.Variant.Key
	}
	return a.Variant.Virtual && !b.Variant.Virtual
}

func boolScore(eq bool) float64 {
	if eq {
		return 1
	}
	return 0
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
