package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/comanda/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/comanda/internal/catalog/service"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/comanda/domain"
	"github.com/smallbiznis/comanda/internal/comanda/repository"
	"github.com/smallbiznis/comanda/internal/comanda/service"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/dbtest"
	"github.com/smallbiznis/comanda/internal/events"
	waiterdomain "github.com/smallbiznis/comanda/internal/waiter/domain"
	waiterrepo "github.com/smallbiznis/comanda/internal/waiter/repository"
	waiterservice "github.com/smallbiznis/comanda/internal/waiter/service"
	"github.com/smallbiznis/comanda/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	catalog catalogdomain.Service
	waiters waiterdomain.Service
	hub     *events.Hub
	clock   *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWithRepo(t, repository.Provide())
}

func newFixtureWithRepo(t *testing.T, repo domain.Repository) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC))
	settings := config.NewStaticRestaurantHolder(config.DefaultRestaurantConfig())
	hub := events.NewHub()

	catalogSvc := catalogservice.New(catalogservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Repo: catalogrepo.Provide(), Clock: clk, Settings: settings,
	})
	waiterSvc := waiterservice.New(waiterservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Repo: waiterrepo.Provide(), Clock: clk,
	})
	svc := service.New(service.Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repo,
		Clock:      clk,
		Settings:   settings,
		CatalogSvc: catalogSvc,
		WaiterSvc:  waiterSvc,
		Events:     hub,
	})
	return fixture{db: conn, svc: svc, catalog: catalogSvc, waiters: waiterSvc, hub: hub, clock: clk}
}

func price(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestOpenFreeTableStartsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 7})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, tab.Status)
	assert.True(t, tab.Total.IsZero())
	assert.Empty(t, tab.Items)
	require.NotNil(t, tab.CustomerName)
	assert.Equal(t, "Mesa 7", *tab.CustomerName)

	_, err = f.svc.Open(ctx, domain.OpenRequest{TableNumber: 7, CustomerName: "Maria"})
	assert.ErrorIs(t, err, domain.ErrTabAlreadyOpen)
}

// staleLookupRepo never sees an open tab, so every open goes straight to the insert.
type staleLookupRepo struct {
	domain.Repository
}

func (staleLookupRepo) FindOpenByTable(context.Context, *gorm.DB, int) (*domain.Comanda, error) {
	return nil, nil
}

func TestSecondOpenRowOnTableViolatesIndex(t *testing.T) {
	conn := dbtest.Open(t)
	node := dbtest.Node(t)
	repo := repository.Provide()
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)

	first := &domain.Comanda{ID: node.Generate(), TableNumber: 8, Status: domain.StatusOpen, CreatedAt: now}
	require.NoError(t, repo.Insert(ctx, conn, first))

	second := &domain.Comanda{ID: node.Generate(), TableNumber: 8, Status: domain.StatusOpen, CreatedAt: now}
	err := repo.Insert(ctx, conn, second)
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err), err.Error())

	// Paid tabs do not hold the table.
	closed := now.Add(time.Hour)
	paid := &domain.Comanda{ID: node.Generate(), TableNumber: 8, Status: domain.StatusPaid, CreatedAt: now, ClosedAt: &closed}
	require.NoError(t, repo.Insert(ctx, conn, paid))
}

func TestOpenMapsDuplicateInsertToTabAlreadyOpen(t *testing.T) {
	f := newFixtureWithRepo(t, staleLookupRepo{Repository: repository.Provide()})
	ctx := context.Background()

	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 8})
	require.NoError(t, err)

	_, err = f.svc.Open(ctx, domain.OpenRequest{TableNumber: 8, CustomerName: "Joana"})
	assert.ErrorIs(t, err, domain.ErrTabAlreadyOpen)

	var open int64
	require.NoError(t, f.db.Model(&domain.Comanda{}).Where("table_number = ? AND status = ?", 8, domain.StatusOpen).Count(&open).Error)
	assert.Equal(t, int64(1), open)

	_, err = f.svc.Settle(ctx, tab.ID)
	require.NoError(t, err)
	_, err = f.svc.Open(ctx, domain.OpenRequest{TableNumber: 8})
	require.NoError(t, err)
}

func TestOpenRejectsTableOutsidePool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidTable)
	_, err = f.svc.Open(ctx, domain.OpenRequest{TableNumber: 21})
	assert.ErrorIs(t, err, domain.ErrInvalidTable)
}

func TestAddItemsAccumulatesTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 3})
	require.NoError(t, err)

	tab, err = f.svc.AddItems(ctx, tab.ID, []domain.LineInput{
		{ProductName: "Costela Guisada", Quantity: 2, Price: price("18.00")},
		{ProductName: "Refrigerante", Quantity: 2, Price: price("7.00")},
	})
	require.NoError(t, err)
	assert.True(t, tab.Total.Equal(price("50.00")), tab.Total.String())

	tab, err = f.svc.AddItems(ctx, tab.ID, []domain.LineInput{
		{ProductName: "Pudim", Quantity: 1, Price: price("10.00")},
	})
	require.NoError(t, err)
	assert.True(t, tab.Total.Equal(price("60.00")), tab.Total.String())
	require.Len(t, tab.Items, 3)
	assert.Equal(t, "Costela Guisada", tab.Items[0].ProductName)
	assert.True(t, tab.Items[0].Total.Equal(price("36.00")))
	assert.Equal(t, domain.ItemPending, tab.Items[2].Status)

	_, err = f.svc.AddItems(ctx, tab.ID, []domain.LineInput{{ProductName: "Agua", Quantity: 0, Price: price("3.00")}})
	assert.ErrorIs(t, err, domain.ErrInvalidItem)
	_, err = f.svc.AddItems(ctx, tab.ID, []domain.LineInput{{ProductName: "Agua", Quantity: 1, Price: decimal.Zero}})
	assert.ErrorIs(t, err, domain.ErrInvalidItem)
}

func TestConcurrentAddItemsKeepsTotalConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 9})
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddItems(ctx, tab.ID, []domain.LineInput{
				{ProductName: "Carne de Sol", Quantity: 1, Price: price("18.00")},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.svc.Get(ctx, tab.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, writers)
	assert.True(t, got.Total.Equal(price("180.00")), got.Total.String())

	result, err := f.svc.Reconcile(ctx, tab.ID)
	require.NoError(t, err)
	assert.True(t, result.Drift.IsZero())
}

func TestRequestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, _, err := f.hub.Subscribe(events.TopicStaff)
	require.NoError(t, err)
	defer sub.Close()

	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 4})
	require.NoError(t, err)

	first, err := f.svc.RequestClose(ctx, tab.ID)
	require.NoError(t, err)
	assert.True(t, first.ClosingRequested)

	second, err := f.svc.RequestClose(ctx, tab.ID)
	require.NoError(t, err)
	assert.True(t, second.ClosingRequested)

	bills, err := f.svc.ListBillRequests(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, 4, bills[0].TableNumber)

	types := make([]string, 0, 3)
	for len(types) < 3 {
		select {
		case evt := <-sub.Events():
			types = append(types, evt.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	assert.Equal(t, []string{events.TypeTabUpdated, events.TypeTabBillRequested, events.TypeTabBillRequested}, types)
}

func TestSettleIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 2})
	require.NoError(t, err)
	_, err = f.svc.AddItems(ctx, tab.ID, []domain.LineInput{{ProductName: "Frango a Passarinho", Quantity: 1, Price: price("18.00")}})
	require.NoError(t, err)

	f.clock.Advance(90 * time.Minute)
	settled, err := f.svc.Settle(ctx, tab.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, settled.Status)
	require.NotNil(t, settled.ClosedAt)

	_, err = f.svc.AddItems(ctx, tab.ID, []domain.LineInput{{ProductName: "Agua", Quantity: 1, Price: price("3.00")}})
	assert.ErrorIs(t, err, domain.ErrTabNotOpen)
	_, err = f.svc.Settle(ctx, tab.ID)
	assert.ErrorIs(t, err, domain.ErrTabNotOpen)
	_, err = f.svc.RequestClose(ctx, tab.ID)
	assert.ErrorIs(t, err, domain.ErrTabNotOpen)

	got, err := f.svc.Get(ctx, tab.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(price("18.00")))

	// The table is free again once the tab is paid.
	open, err := f.svc.FindOpenByTable(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, open)
	_, err = f.svc.Open(ctx, domain.OpenRequest{TableNumber: 2})
	require.NoError(t, err)
}

func TestUpdateItemStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 5})
	require.NoError(t, err)
	tab, err = f.svc.AddItems(ctx, tab.ID, []domain.LineInput{
		{ProductName: "Bife de Figado", Quantity: 1, Price: price("18.00")},
		{ProductName: "Suco", Quantity: 2, Price: price("6.50")},
	})
	require.NoError(t, err)
	require.Len(t, tab.Items, 2)

	tab, err = f.svc.UpdateItemStatus(ctx, tab.ID, tab.Items[0].ID, domain.ItemDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemDelivered, tab.Items[0].Status)

	_, err = f.svc.UpdateItemStatus(ctx, tab.ID, tab.Items[0].ID, domain.ItemCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidItemTransition)

	tab, err = f.svc.UpdateItemStatus(ctx, tab.ID, tab.Items[1].ID, domain.ItemCancelled)
	require.NoError(t, err)
	assert.True(t, tab.Total.Equal(price("18.00")), tab.Total.String())

	_, err = f.svc.UpdateItemStatus(ctx, tab.ID, tab.Items[1].ID, domain.ItemPending)
	assert.ErrorIs(t, err, domain.ErrInvalidItemTransition)
}

func TestAddProductResolvesCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	product, err := f.catalog.Create(ctx, catalogdomain.CreateRequest{Name: "Pirarucu Frito", Price: price("20.00"), Category: "food"})
	require.NoError(t, err)
	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 1})
	require.NoError(t, err)

	tab, err = f.svc.AddProduct(ctx, domain.AddProductRequest{TabID: tab.ID, ProductID: product.ID, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, tab.Items, 1)
	assert.Equal(t, "Pirarucu Frito", tab.Items[0].ProductName)
	assert.True(t, tab.Total.Equal(price("60.00")))

	_, err = f.catalog.ToggleAvailability(ctx, product.ID)
	require.NoError(t, err)
	_, err = f.svc.AddProduct(ctx, domain.AddProductRequest{TabID: tab.ID, ProductID: product.ID, Quantity: 1})
	assert.ErrorIs(t, err, catalogdomain.ErrProductUnavailable)
}

func TestAssignWaiterAndBoard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	waiter, err := f.waiters.Create(ctx, waiterdomain.CreateWaiterRequest{Name: "Joana"})
	require.NoError(t, err)
	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 12})
	require.NoError(t, err)

	tab, err = f.svc.AssignWaiter(ctx, tab.ID, waiter.ID.String())
	require.NoError(t, err)
	require.NotNil(t, tab.WaiterID)
	assert.Equal(t, waiter.ID.String(), *tab.WaiterID)

	_, err = f.waiters.Toggle(ctx, waiter.ID.String())
	require.NoError(t, err)
	_, err = f.svc.AssignWaiter(ctx, tab.ID, waiter.ID.String())
	assert.ErrorIs(t, err, waiterdomain.ErrInactive)

	board, err := f.svc.Board(ctx)
	require.NoError(t, err)
	require.Len(t, board, 20)
	assert.Nil(t, board[0].Tab)
	require.NotNil(t, board[11].Tab)
	assert.Equal(t, tab.ID, board[11].Tab.ID)
}

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tab, err := f.svc.Open(ctx, domain.OpenRequest{TableNumber: 6})
	require.NoError(t, err)
	tab, err = f.svc.AddItems(ctx, tab.ID, []domain.LineInput{{ProductName: "Cozidao de Carne", Quantity: 1, Price: price("18.00")}})
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`UPDATE comandas SET total_cents = 900 WHERE table_number = 6`).Error)

	result, err := f.svc.Reconcile(ctx, tab.ID)
	require.NoError(t, err)
	assert.True(t, result.Drift.Equal(price("-9.00")), result.Drift.String())
	assert.True(t, result.Tab.Total.Equal(price("18.00")))
}

func TestGetUnknownTab(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Get(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
	_, err = f.svc.Settle(ctx, "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
