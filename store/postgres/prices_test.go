package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recipe-costing/generic"
	"github.com/warp/recipe-costing/store/postgres"
)

// Integration tests need a disposable database.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("COSTING_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("COSTING_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Truncate(ctx))
	t.Cleanup(s.Close)
	return s
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := postgres.New(context.Background(), "")
	assert.True(t, generic.IsClientError(err))
}

func TestStore_AppendAndFind(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	a, err := s.AppendPrice(ctx, generic.PriceRecord{Tenant: "acme", RefKey: "PIPE", Price: decimal.RequireFromString("8.50"), Unit: "m", ValidFrom: jan, ValidTo: &jun})
	require.NoError(t, err)
	b, err := s.AppendPrice(ctx, generic.PriceRecord{Tenant: "acme", RefKey: "PIPE", Price: decimal.RequireFromString("9.20"), Unit: "m", ValidFrom: jun})
	require.NoError(t, err)
	_, err = s.AppendPrice(ctx, generic.PriceRecord{Tenant: "other", RefKey: "PIPE", Price: decimal.NewFromInt(1), ValidFrom: jan})
	require.NoError(t, err)
	assert.Greater(t, b.Seq, a.Seq)

	_, err = s.AppendPrice(ctx, generic.PriceRecord{ID: a.ID, Tenant: "acme", RefKey: "PIPE", ValidFrom: jan})
	assert.ErrorIs(t, err, generic.ErrDuplicateKey)

	got, err := s.FindPrices(ctx, "acme", []string{"PIPE", "SAND"}, generic.NeutralDay(2024, 5, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("8.5")))
	require.NotNil(t, got[0].ValidTo)
	assert.True(t, got[0].ValidTo.Equal(jun))

	all, err := s.ListPrices(ctx, "acme", "PIPE")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// WHEN: resolved through the engine's resolver
	res, err := (&generic.PriceResolver{Store: s}).Resolve(ctx, "acme", []string{"PIPE"}, generic.NeutralDay(2024, 6, 1))
	require.NoError(t, err)
	assert.True(t, res["PIPE"].Price.Equal(decimal.RequireFromString("9.2")))
}
