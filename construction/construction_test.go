package construction_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recipe-costing/construction"
	"github.com/warp/recipe-costing/factory"
	"github.com/warp/recipe-costing/generic"
	"github.com/warp/recipe-costing/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func seededEngine(t *testing.T) *generic.Engine {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	f := factory.NewTemplateFactory()

	for _, js := range construction.TemplatePresets() {
		tpl, variants, err := f.ParseTemplate(js)
		require.NoError(t, err)
		require.NoError(t, mem.SaveTemplate(ctx, *tpl))
		for _, v := range variants {
			require.NoError(t, mem.SaveVariant(ctx, v))
		}
	}

	prices, err := factory.ParsePriceList(construction.DemoTenant, construction.DemoPriceListJSON())
	require.NoError(t, err)
	for _, p := range prices {
		_, err := mem.AppendPrice(ctx, p)
		require.NoError(t, err)
	}
	return construction.NewEngine(mem, mem)
}

// =============================================================================
// LABELS
// =============================================================================

func TestLabels_SiteShorthand(t *testing.T) {
	lb := construction.Labels()

	cases := []struct {
		name   string
		merged generic.Params
		want   string
	}{
		{
			"pipe",
			generic.Params{"dn": generic.Number(200), "pn": generic.Number(10), "material": generic.String("PVC-U")},
			"DN200 / PN10 / PVC-U",
		},
		{
			"trench with groundwater",
			generic.Params{
				"depth": generic.Number(1.5), "width": generic.Number(0.8), "soilClass": generic.Number(3),
				"groundwater": generic.Bool(true), "restrictedAccess": generic.Bool(false),
				"disposalClass": generic.String("Z1.1"), "distance": generic.Number(12),
			},
			"T 1.5 m / B 0.8 m / BK 3 / GW / Z1.1 / 12 km",
		},
		{
			"dry and restricted",
			generic.Params{"groundwater": generic.Bool(false), "restrictedAccess": generic.Bool(true)},
			"no GW / restricted",
		},
		{
			"surface",
			generic.Params{"asphaltThickness": generic.Number(12), "baseThickness": generic.Number(30), "length": generic.String("25,5")},
			"L 25.5 m / asphalt 12 cm / base 30 cm",
		},
		{"nothing known", generic.Params{"colour": generic.String("red")}, "fallback"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, lb.Label(tc.merged, nil, "fallback"))
		})
	}
}

func TestWeights_DiameterOutweighsFittings(t *testing.T) {
	w := construction.Weights()
	assert.Greater(t, w.Weight(construction.ParamDN), w.Weight(construction.ParamFittingCount))
	assert.Equal(t, 1.0, w.Weight("unknownParam"))
	for k, v := range w {
		assert.Greater(t, v, 0.0, k)
	}
}

// =============================================================================
// PRESETS
// =============================================================================

func TestPresets_PipeLayingPricesOverTime(t *testing.T) {
	// GIVEN: the demo price list, 100 m of DN200 pipe
	e := seededEngine(t)
	ctx := context.Background()
	req := generic.CalculateRequest{
		TemplateKey:   construction.TemplatePipeLaying,
		Quantity:      100,
		Tenant:        construction.DemoTenant,
		ReferenceDate: generic.NeutralDay(2024, 5, 1),
	}

	// WHEN: priced before the June price change
	before, err := e.Calculate(ctx, req)
	require.NoError(t, err)

	// THEN: 102 m pipe * 8.50 + 18 m³ sand * 32 + 25 h * 62.40 + 1 test * 420
	assert.True(t, before.Totals.Net.Equal(decimal.RequireFromString("3423")), "total %s", before.Totals.Net)
	assert.True(t, before.Totals.NetPerUnit.Equal(decimal.RequireFromString("34.23")))
	assert.Equal(t, []string{"MAT_FITTING"}, before.MissingPrices)
	assert.Empty(t, before.FormulaErrors)

	// WHEN: priced after it
	req.ReferenceDate = generic.NeutralDay(2024, 6, 1)
	after, err := e.Calculate(ctx, req)
	require.NoError(t, err)

	// THEN: 102 * 9.20 + 576 + 25 * 64.10 + 420
	assert.True(t, after.Totals.Net.Equal(decimal.RequireFromString("3536.9")), "total %s", after.Totals.Net)
}

func TestPresets_AllTemplatesCalculate(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	for _, key := range []string{
		construction.TemplateTrenchExcavation,
		construction.TemplatePipeLaying,
		construction.TemplateSurfaceRestoration,
	} {
		t.Run(key, func(t *testing.T) {
			listing, err := e.ListVariants(ctx, key, generic.ListOptions{})
			require.NoError(t, err)
			require.NotEmpty(t, listing.Variants)

			for _, vw := range listing.Variants {
				b, err := e.Calculate(ctx, generic.CalculateRequest{
					TemplateKey:   key,
					Quantity:      40,
					VariantID:     vw.Variant.ID,
					Tenant:        construction.DemoTenant,
					ReferenceDate: generic.NeutralDay(2024, 7, 1),
				})
				require.NoError(t, err, vw.Variant.Key)
				assert.Empty(t, b.FormulaErrors, vw.Variant.Key)
				assert.True(t, b.Totals.Net.IsPositive(), vw.Variant.Key)
				assert.NotEqual(t, key, vw.Label, "presets always render a label")
			}
		})
	}
}

func TestPresets_SuggestDeepTrenchForGroundwaterSite(t *testing.T) {
	e := seededEngine(t)

	s, err := e.SuggestVariant(context.Background(), construction.TemplateTrenchExcavation, generic.Params{
		"depth":       generic.Number(2.4),
		"width":       generic.Number(1.0),
		"groundwater": generic.Bool(true),
	}, 3)

	require.NoError(t, err)
	assert.Equal(t, "deep-groundwater", s.Best.Variant.Key)
	assert.Contains(t, s.Best.Label, "GW")
	assert.Len(t, s.Alternatives, 3)
}

func TestPresets_DewateringOnlyWithGroundwater(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()
	req := generic.CalculateRequest{
		TemplateKey:   construction.TemplateTrenchExcavation,
		Quantity:      40,
		Tenant:        construction.DemoTenant,
		ReferenceDate: generic.NeutralDay(2024, 7, 1),
	}

	dry, err := e.Calculate(ctx, req)
	require.NoError(t, err)
	req.Params = generic.Params{"groundwater": generic.Bool(true)}
	wet, err := e.Calculate(ctx, req)
	require.NoError(t, err)

	pump := func(b *generic.Breakdown) float64 {
		for _, l := range b.Lines {
			if l.RefKey == "MACH_DEWATERING_PUMP" {
				return l.Quantity
			}
		}
		t.Fatal("dewatering line missing")
		return 0
	}
	assert.Equal(t, 0.0, pump(dry))
	assert.Equal(t, 16.0, pump(wet))
	assert.True(t, wet.Totals.Net.GreaterThan(dry.Totals.Net))
}
