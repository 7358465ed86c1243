package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recipe-costing/construction"
	"github.com/warp/recipe-costing/generic"
	"github.com/warp/recipe-costing/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTemplate() generic.Template {
	return generic.Template{
		Key:   "pipe-laying",
		Title: "Pipe laying",
		Unit:  "m",
		DefaultParams: generic.Params{
			"dn":          generic.Number(200),
			"groundwater": generic.Bool(false),
			"material":    generic.String("PVC-U"),
		},
		Tags: []string{"pipework"},
		Components: []generic.Component{
			{Type: generic.ComponentMaterial, RefKey: "PIPE_DN200", QtyFormula: "qty * 1.02", Mandatory: true, RiskFactor: 1, Sort: 10},
			{Type: generic.ComponentLabor, RefKey: "CREW", QtyFormula: "qty / 4", RiskFactor: 1.2, Sort: 10, Note: "h"},
		},
	}
}

func TestStore_MigratesOnOpen(t *testing.T) {
	s := newStore(t)

	v, err := s.SchemaVersion()

	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestStore_TemplateRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tpl := sampleTemplate()

	require.NoError(t, s.SaveTemplate(ctx, tpl))
	got, err := s.GetTemplate(ctx, "pipe-laying")

	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, tpl.Title, got.Title)
	assert.Equal(t, tpl.DefaultParams, got.DefaultParams)
	assert.Equal(t, tpl.Tags, got.Tags)
	assert.Equal(t, tpl.Components, got.Components, "definition order survives equal sort keys")
}

func TestStore_SaveTemplateReplacesComponentsKeepsVariants(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tpl := sampleTemplate()
	require.NoError(t, s.SaveTemplate(ctx, tpl))
	require.NoError(t, s.SaveVariant(ctx, generic.Variant{TemplateKey: tpl.Key, Key: "dn300", Enabled: true, Params: generic.Params{"dn": generic.Number(300)}}))
	first, err := s.GetTemplate(ctx, tpl.Key)
	require.NoError(t, err)

	// WHEN: the template is saved again with one component
	tpl.Components = tpl.Components[:1]
	require.NoError(t, s.SaveTemplate(ctx, tpl))

	// THEN
	got, err := s.GetTemplate(ctx, tpl.Key)
	require.NoError(t, err)
	assert.Len(t, got.Components, 1)
	assert.Equal(t, first.ID, got.ID)
	variants, err := s.ListVariants(ctx, tpl.Key)
	require.NoError(t, err)
	assert.Len(t, variants, 1)
}

func TestStore_TemplateNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetTemplate(context.Background(), "nope")

	assert.ErrorIs(t, err, generic.ErrTemplateNotFound)
}

func TestStore_Variants(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, sampleTemplate()))

	require.NoError(t, s.SaveVariant(ctx, generic.Variant{TemplateKey: "pipe-laying", Key: "b", Enabled: false, Params: generic.Params{"dn": generic.Number(300)}}))
	require.NoError(t, s.SaveVariant(ctx, generic.Variant{ID: "v-a", TemplateKey: "pipe-laying", Key: "a", Enabled: true, Unit: "km"}))

	vs, err := s.ListVariants(ctx, "pipe-laying")
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "a", vs[0].Key)
	assert.Equal(t, "v-a", vs[0].ID)
	assert.Equal(t, "km", vs[0].Unit)
	assert.True(t, vs[0].Enabled)
	assert.Equal(t, "b", vs[1].Key)
	assert.False(t, vs[1].Enabled)
	assert.Equal(t, 300.0, vs[1].Params.Get("dn").Float())

	// upsert by key keeps the id
	require.NoError(t, s.SaveVariant(ctx, generic.Variant{TemplateKey: "pipe-laying", Key: "b", Enabled: true}))
	again, err := s.ListVariants(ctx, "pipe-laying")
	require.NoError(t, err)
	assert.Equal(t, vs[1].ID, again[1].ID)
	assert.True(t, again[1].Enabled)

	// id reuse under another key
	err = s.SaveVariant(ctx, generic.Variant{ID: "v-a", TemplateKey: "pipe-laying", Key: "c"})
	assert.ErrorIs(t, err, generic.ErrDuplicateKey)

	err = s.SaveVariant(ctx, generic.Variant{TemplateKey: "missing", Key: "x"})
	assert.ErrorIs(t, err, generic.ErrTemplateNotFound)
}

func TestStore_PricesAppendOnlyWithSequence(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	a, err := s.AppendPrice(ctx, generic.PriceRecord{Tenant: "acme", RefKey: "K", Price: decimal.RequireFromString("10.00"), Unit: "m", ValidFrom: from, ValidTo: &to})
	require.NoError(t, err)
	b, err := s.AppendPrice(ctx, generic.PriceRecord{Tenant: "acme", RefKey: "K", Price: decimal.RequireFromString("11"), ValidFrom: from})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Greater(t, b.Seq, a.Seq)

	_, err = s.AppendPrice(ctx, generic.PriceRecord{ID: a.ID, Tenant: "acme", RefKey: "K", ValidFrom: from})
	assert.ErrorIs(t, err, generic.ErrDuplicateKey)

	list, err := s.ListPrices(ctx, "acme", "K")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Price.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, from, list[0].ValidFrom)
	require.NotNil(t, list[0].ValidTo)
	assert.Equal(t, to, *list[0].ValidTo)
	assert.Nil(t, list[1].ValidTo)
}

func TestStore_FindPricesFiltersTenantKeysAndFuture(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	for _, rec := range []generic.PriceRecord{
		{Tenant: "acme", RefKey: "A", Price: decimal.NewFromInt(1), ValidFrom: jan},
		{Tenant: "acme", RefKey: "B", Price: decimal.NewFromInt(2), ValidFrom: jan},
		{Tenant: "acme", RefKey: "C", Price: decimal.NewFromInt(3), ValidFrom: jan},
		{Tenant: "acme", RefKey: "A", Price: decimal.NewFromInt(4), ValidFrom: dec},
		{Tenant: "other", RefKey: "A", Price: decimal.NewFromInt(5), ValidFrom: jan},
	} {
		_, err := s.AppendPrice(ctx, rec)
		require.NoError(t, err)
	}

	got, err := s.FindPrices(ctx, "acme", []string{"A", "B"}, generic.NeutralDay(2024, 5, 1))

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].RefKey)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "B", got[1].RefKey)

	empty, err := s.FindPrices(ctx, "acme", nil, generic.NeutralDay(2024, 5, 1))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_ServesEngine(t *testing.T) {
	// GIVEN: the end-to-end scenario persisted in SQLite
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, generic.Template{
		Key:           "pipe",
		DefaultParams: generic.Params{"length": generic.Number(10)},
		Components:    []generic.Component{{Type: generic.ComponentMaterial, RefKey: "PIPE_DN200", QtyFormula: "length", RiskFactor: 1}},
	}))
	_, err := s.AppendPrice(ctx, generic.PriceRecord{
		Tenant: "acme", RefKey: "PIPE_DN200", Price: decimal.RequireFromString("8.50"),
		ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// WHEN
	b, err := construction.NewEngine(s, s).Calculate(ctx, generic.CalculateRequest{
		TemplateKey: "pipe", Quantity: 1, Tenant: "acme",
		Params:        generic.Params{"length": generic.Number(25)},
		ReferenceDate: generic.NeutralDay(2024, 5, 1),
	})

	// THEN
	require.NoError(t, err)
	assert.True(t, b.Totals.Net.Equal(decimal.RequireFromString("212.50")))
	assert.True(t, b.Complete())
}

func TestStore_Reset(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, sampleTemplate()))
	_, err := s.AppendPrice(ctx, generic.PriceRecord{Tenant: "acme", RefKey: "K", ValidFrom: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	prices, err := s.ListPrices(ctx, "acme", "")
	require.NoError(t, err)
	assert.Empty(t, prices)
}
