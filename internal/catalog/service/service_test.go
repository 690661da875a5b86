package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/catalog/repository"
	"github.com/smallbiznis/comanda/internal/catalog/service"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{
		DB:       dbtest.Open(t),
		Log:      zap.NewNop(),
		GenID:    dbtest.Node(t),
		Repo:     repository.Provide(),
		Clock:    clk,
		Settings: config.NewStaticRestaurantHolder(config.DefaultRestaurantConfig()),
	})
	return svc, clk
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{Name: " ", Price: decimal.NewFromInt(10), Category: "food"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Suco", Price: decimal.NewFromInt(10), Category: "dessert"})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Suco", Price: decimal.Zero, Category: "drink"})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Suco", Price: decimal.NewFromInt(-1), Category: "drink"})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	unavailable := false
	resp, err := svc.Create(ctx, domain.CreateRequest{Name: "Suco", Price: decimal.Zero, Category: "DRINK", Available: &unavailable})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryDrink, resp.Category)
	assert.False(t, resp.Available)
}

func TestListOrdersByCategoryThenName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, req := range []domain.CreateRequest{
		{Name: "Refrigerante", Price: decimal.RequireFromString("6.00"), Category: "drink"},
		{Name: "Pirarucu Frito", Price: decimal.RequireFromString("20.00"), Category: "food"},
		{Name: "Agua", Price: decimal.RequireFromString("3.50"), Category: "drink"},
		{Name: "Bife de Figado", Price: decimal.RequireFromString("18.00"), Category: "food"},
	} {
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}

	items, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, items, 4)

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	assert.Equal(t, []string{"Agua", "Refrigerante", "Bife de Figado", "Pirarucu Frito"}, names)
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("3.50")))

	drinks, err := svc.List(ctx, domain.ListRequest{Category: "drink"})
	require.NoError(t, err)
	assert.Len(t, drinks, 2)
}

func TestMenuCacheInvalidatedOnWrite(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{Name: "Carne de Sol", Price: decimal.NewFromInt(18), Category: "food"})
	require.NoError(t, err)

	menu, err := svc.Menu(ctx, "")
	require.NoError(t, err)
	require.Len(t, menu, 1)

	toggled, err := svc.ToggleAvailability(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Available)

	menu, err = svc.Menu(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, menu)

	clk.Advance(time.Minute)
	menu, err = svc.Menu(ctx, "food")
	require.NoError(t, err)
	assert.Empty(t, menu)
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{Name: "Porco Guisado", Price: decimal.NewFromInt(18), Category: "food"})
	require.NoError(t, err)

	price := decimal.RequireFromString("19.90")
	name := "Porco Guisado Especial"
	updated, err := svc.Update(ctx, domain.UpdateRequest{ID: created.ID, Name: &name, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.True(t, updated.Price.Equal(price))

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), domain.ErrNotFound)

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(ctx, "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestSeedDefaultsOnlyWhenEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inserted, err := svc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, inserted)

	inserted, err = svc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, inserted)

	menu, err := svc.Menu(ctx, "food")
	require.NoError(t, err)
	assert.Len(t, menu, 9)
}
