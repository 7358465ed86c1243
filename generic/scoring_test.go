package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recipe-costing/generic"
)

func TestScore_PartialScores(t *testing.T) {
	s := generic.NewScorer(nil)

	cases := []struct {
		name      string
		ctx, cand generic.Params
		want      float64
	}{
		{"equal numbers", p("dn", generic.Number(200)), p("dn", generic.Number(200)), 1},
		{"near numbers", p("depth", generic.Number(1.5)), p("depth", generic.Number(2.5)), 1 - 1.0/4},
		{"small numbers use floor of 1", p("depth", generic.Number(0.1)), p("depth", generic.Number(0.3)), 0.8},
		{"far numbers clamp to 0", p("dn", generic.Number(100)), p("dn", generic.Number(-100)), 0},
		{"bool equal", p("gw", generic.Bool(true)), p("gw", generic.Bool(true)), 1},
		{"bool differ", p("gw", generic.Bool(true)), p("gw", generic.Bool(false)), 0},
		{"string ignores case", p("soil", generic.String("bk3")), p("soil", generic.String("BK3")), 1},
		{"string differ", p("soil", generic.String("BK3")), p("soil", generic.String("BK5")), 0},
		{"absent candidate", p("dn", generic.Number(200)), generic.Params{}, generic.DefaultAbsentScore},
		{"null candidate", p("dn", generic.Number(200)), p("dn", generic.Null()), generic.DefaultAbsentScore},
		{"null both", p("dn", generic.Null()), p("dn", generic.Null()), 1},
		{"kind mismatch", p("dn", generic.Number(200)), p("dn", generic.String("200")), generic.DefaultMismatchScore},
		{"lists equal", p("l", generic.List(generic.Number(1))), p("l", generic.List(generic.Number(1))), 1},
		{"objects differ", p("o", generic.Object(p("a", generic.Number(1)))), p("o", generic.Object(p("a", generic.Number(2)))), 0},
		{"empty context", generic.Params{}, p("dn", generic.Number(200)), 0},
		{"only meta context", p("_virtual", generic.Bool(true)), p("dn", generic.Number(200)), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, s.Score(tc.ctx, tc.cand), 1e-9)
		})
	}
}

func TestScore_WeightedMean(t *testing.T) {
	// GIVEN: dn weighs 3, fittingCount 1 (unknown keys weigh 1)
	s := generic.NewScorer(generic.WeightTable{"dn": 3, "bad": -2})
	ctx := generic.Params{"dn": generic.Number(200), "fittingCount": generic.Number(4)}
	cand := generic.Params{"dn": generic.Number(200), "fittingCount": generic.Bool(true)}

	// THEN: (3*1 + 1*0.35) / 4
	assert.InDelta(t, (3+0.35)/4, s.Score(ctx, cand), 1e-9)

	assert.Equal(t, 1.0, s.Weights.Weight("bad"), "non-positive weights count as 1")
	assert.Equal(t, 1.0, s.Weights.Weight("unknown"))
}

func TestScore_Bounded(t *testing.T) {
	s := generic.NewScorer(generic.WeightTable{"a": 100, "b": 0.001})
	values := []generic.Value{
		generic.Number(0), generic.Number(-1e300), generic.Number(1e300), generic.Bool(true),
		generic.String(""), generic.Null(), generic.List(), generic.Object(generic.Params{}),
	}
	for _, x := range values {
		for _, y := range values {
			got := s.Score(generic.Params{"a": x, "b": y}, generic.Params{"a": y, "b": x})
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestRank_TieBreaks(t *testing.T) {
	// GIVEN: all candidates score the same against an empty context
	s := generic.NewScorer(nil)
	candidates := []generic.Candidate{
		{Variant: generic.Variant{Key: "b"}, ChangedKeys: []string{"x"}},
		{Variant: generic.Variant{Key: "a"}, ChangedKeys: []string{"x", "y"}},
		{Variant: generic.Variant{Key: "a"}, ChangedKeys: []string{"x"}},
		{Variant: generic.Variant{Key: "a", Virtual: true}, ChangedKeys: []string{"x"}},
	}

	ranked := s.Rank(generic.Params{}, candidates)

	// THEN: fewer changed keys, then key, then virtual first
	require.Len(t, ranked, 4)
	assert.True(t, ranked[0].Variant.Virtual)
	assert.Equal(t, "a", ranked[1].Variant.Key)
	assert.False(t, ranked[1].Variant.Virtual)
	assert.Len(t, ranked[1].ChangedKeys, 1)
	assert.Equal(t, "b", ranked[2].Variant.Key)
	assert.Len(t, ranked[3].ChangedKeys, 2)
}

func TestRank_HigherScoreFirst(t *testing.T) {
	s := generic.NewScorer(nil)
	ctx := generic.Params{"depth": generic.Number(1.8)}
	candidates := []generic.Candidate{
		{Variant: generic.Variant{Key: "shallow"}, MergedParams: p("depth", generic.Number(1.0))},
		{Variant: generic.Variant{Key: "deep"}, MergedParams: p("depth", generic.Number(2.0))},
	}

	ranked := s.Rank(ctx, candidates)

	assert.Equal(t, "deep", ranked[0].Variant.Key)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func p(key string, v generic.Value) generic.Params {
	return generic.Params{key: v}
}
