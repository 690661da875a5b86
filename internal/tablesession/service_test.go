package tablesession_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/cache"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	comandadomain "github.com/smallbiznis/comanda/internal/comanda/domain"
	"github.com/smallbiznis/comanda/internal/events"
	"github.com/smallbiznis/comanda/internal/floortest"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/ratelimit"
	"github.com/smallbiznis/comanda/internal/tablesession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSession(f *floortest.Floor) *tablesession.Service {
	return tablesession.New(tablesession.Params{
		DB:          f.DB,
		Log:         zap.NewNop(),
		Clock:       f.Clock,
		Settings:    f.Settings,
		CatalogSvc:  f.Catalog,
		ComandaSvc:  f.Tabs,
		OrderSvc:    f.Orders,
		CustomerSvc: f.Customers,
		Results:     f.Results,
		Limiter:     &ratelimit.SubmissionLimiter{},
		Events:      f.Hub,
	})
}

func TestSubmitOpensTabOnFreeTable(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)
	ctx := context.Background()

	burger := f.Product(t, "Bacon Burger", "22.90")
	customer := f.Customer(t, "Joana", "joana@example.com")

	result, err := session.Submit(ctx, tablesession.SubmitRequest{
		Table:      5,
		CustomerID: customer.ID.String(),
		Items:      []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.False(t, result.IsAddition)

	tab := result.Tab
	assert.Equal(t, 5, tab.TableNumber)
	assert.True(t, tab.Total.Equal(decimal.RequireFromString("45.80")), tab.Total.String())
	require.Len(t, tab.Items, 1)
	assert.Equal(t, 2, tab.Items[0].Quantity)
	assert.True(t, tab.Items[0].Price.Equal(decimal.RequireFromString("22.90")))
	assert.Equal(t, comandadomain.ItemPending, tab.Items[0].Status)

	ledger, err := f.Orders.List(ctx, orderdomain.ListRequest{Source: string(orderdomain.SourceTable)})
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.True(t, ledger[0].Total.Equal(decimal.RequireFromString("45.80")))
	assert.Equal(t, "Mesa 5", ledger[0].Address)
	assert.Equal(t, orderdomain.PaymentComanda, ledger[0].PaymentMethod)
	require.NotNil(t, ledger[0].Observation)
	assert.Equal(t, "Pedido realizado via QR Code", *ledger[0].Observation)
}

func TestSubmitAppendsToOpenTab(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)
	ctx := context.Background()

	juice := f.Product(t, "Suco de Cupuacu", "10.00")
	customer := f.Customer(t, "Rafael", "rafael@example.com")

	opened, err := f.Tabs.Open(ctx, comandadomain.OpenRequest{TableNumber: 3})
	require.NoError(t, err)
	_, err = f.Tabs.AddItems(ctx, opened.ID, []comandadomain.LineInput{
		{ProductName: "Tambaqui Assado", Quantity: 1, Price: decimal.RequireFromString("50.00")},
	})
	require.NoError(t, err)

	result, err := session.Submit(ctx, tablesession.SubmitRequest{
		Table:      3,
		CustomerID: customer.ID.String(),
		Items:      []tablesession.SubmitItem{{ProductID: juice.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, result.IsAddition)
	assert.Equal(t, opened.ID, result.Tab.ID)
	assert.True(t, result.Tab.Total.Equal(decimal.RequireFromString("60.00")), result.Tab.Total.String())
	require.Len(t, result.Tab.Items, 2)
	assert.Equal(t, "Tambaqui Assado", result.Tab.Items[0].ProductName)
	assert.Equal(t, comandadomain.ItemPending, result.Tab.Items[0].Status)
	assert.True(t, result.Tab.Items[0].Total.Equal(decimal.RequireFromString("50.00")))
}

func TestSubmitMergesRepeatedProducts(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)

	burger := f.Product(t, "Bacon Burger", "22.90")
	customer := f.Customer(t, "Joana", "joana@example.com")

	result, err := session.Submit(context.Background(), tablesession.SubmitRequest{
		Table:      2,
		CustomerID: customer.ID.String(),
		Items: []tablesession.SubmitItem{
			{ProductID: burger.ID, Quantity: 1},
			{ProductID: burger.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Tab.Items, 1)
	assert.Equal(t, 3, result.Tab.Items[0].Quantity)
}

func TestSubmitValidation(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)
	ctx := context.Background()

	burger := f.Product(t, "Bacon Burger", "22.90")
	customer := f.Customer(t, "Joana", "joana@example.com")

	_, err := session.Submit(ctx, tablesession.SubmitRequest{Table: 1, CustomerID: customer.ID.String()})
	assert.ErrorIs(t, err, tablesession.ErrEmptyCart)

	_, err = session.Submit(ctx, tablesession.SubmitRequest{
		Table: 1,
		Items: []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, tablesession.ErrCustomerRequired)

	_, err = session.Submit(ctx, tablesession.SubmitRequest{
		Table:      99,
		CustomerID: customer.ID.String(),
		Items:      []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, comandadomain.ErrInvalidTable)

	_, err = f.Catalog.ToggleAvailability(ctx, burger.ID)
	require.NoError(t, err)
	_, err = session.Submit(ctx, tablesession.SubmitRequest{
		Table:      1,
		CustomerID: customer.ID.String(),
		Items:      []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, catalogdomain.ErrProductUnavailable)

	tab, err := session.Tab(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, tab)
}

func TestSubmitReplaysIdempotencyKey(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)
	ctx := context.Background()

	burger := f.Product(t, "Bacon Burger", "22.90")
	customer := f.Customer(t, "Joana", "joana@example.com")
	req := tablesession.SubmitRequest{
		Table:          4,
		CustomerID:     customer.ID.String(),
		Items:          []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 1}},
		IdempotencyKey: "device-1-batch-1",
	}

	first, err := session.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := session.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	tab, err := session.Tab(ctx, 4)
	require.NoError(t, err)
	require.NotNil(t, tab)
	assert.Len(t, tab.Items, 1)
	assert.True(t, tab.Total.Equal(decimal.RequireFromString("22.90")))
}

func TestSubmitRejectsKeyInFlight(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)
	ctx := context.Background()

	burger := f.Product(t, "Bacon Burger", "22.90")
	customer := f.Customer(t, "Joana", "joana@example.com")

	reserved, err := f.Results.Reserve(ctx, "table:4:busy", f.Settings.Get().IdempotencyTTL)
	require.NoError(t, err)
	require.True(t, reserved)

	_, err = session.Submit(ctx, tablesession.SubmitRequest{
		Table:          4,
		CustomerID:     customer.ID.String(),
		Items:          []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 1}},
		IdempotencyKey: "busy",
	})
	assert.ErrorIs(t, err, cache.ErrInFlight)
}

func TestRequestBillFlagsTab(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)
	ctx := context.Background()

	_, err := session.RequestBill(ctx, 6)
	assert.ErrorIs(t, err, tablesession.ErrNoOpenTab)

	sub, _, err := f.Hub.Subscribe(events.TopicStaff)
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.Tabs.Open(ctx, comandadomain.OpenRequest{TableNumber: 6})
	require.NoError(t, err)
	<-sub.Events()

	tab, err := session.RequestBill(ctx, 6)
	require.NoError(t, err)
	assert.True(t, tab.ClosingRequested)

	evt := <-sub.Events()
	assert.Equal(t, events.TypeTabBillRequested, evt.Type)
	assert.Equal(t, 6, evt.Table)
}

func TestCartMergesByName(t *testing.T) {
	var cart tablesession.Cart
	burger := catalogdomain.Response{ID: "1", Name: "Bacon Burger", Price: decimal.RequireFromString("22.90")}
	juice := catalogdomain.Response{ID: "2", Name: "Suco", Price: decimal.RequireFromString("7.00")}

	cart.Add(burger, 1)
	cart.Add(juice, 1)
	cart.Add(burger, 1)

	lines := cart.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, cart.Total().Equal(decimal.RequireFromString("52.80")))

	assert.True(t, cart.Remove("suco"))
	assert.False(t, cart.Remove("suco"))
	assert.True(t, cart.Total().Equal(decimal.RequireFromString("45.80")))
}

func TestSubmitKeepsEveryRoundOnTheLedger(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)
	ctx := context.Background()

	burger := f.Product(t, "Bacon Burger", "22.90")
	customer := f.Customer(t, "Joana", "joana@example.com")

	for i := 0; i < 3; i++ {
		_, err := session.Submit(ctx, tablesession.SubmitRequest{
			Table:      5,
			CustomerID: customer.ID.String(),
			Items:      []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 1}},
		})
		require.NoError(t, err)
	}

	tab, err := session.Tab(ctx, 5)
	require.NoError(t, err)
	require.Len(t, tab.Items, 3)
	assert.True(t, tab.Total.Equal(decimal.RequireFromString("68.70")), tab.Total.String())

	ledger, err := f.Orders.List(ctx, orderdomain.ListRequest{Source: string(orderdomain.SourceTable)})
	require.NoError(t, err)
	assert.Len(t, ledger, 3)
	for _, entry := range ledger {
		assert.Equal(t, orderdomain.StatusPending, entry.Status)
	}

	history, err := f.Orders.RecentByEmail(ctx, "joana@example.com")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSubmitPublishesToTableAndStaff(t *testing.T) {
	f := floortest.New(t)
	session := newSession(f)
	ctx := context.Background()

	burger := f.Product(t, "Bacon Burger", "22.90")
	customer := f.Customer(t, "Joana", "joana@example.com")

	table, _, err := f.Hub.Subscribe(events.TableTopic(4))
	require.NoError(t, err)
	defer table.Close()
	staff, _, err := f.Hub.Subscribe(events.TopicStaff)
	require.NoError(t, err)
	defer staff.Close()

	_, err = session.Submit(ctx, tablesession.SubmitRequest{
		Table:      4,
		CustomerID: customer.ID.String(),
		Items:      []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	for _, sub := range []*events.Subscription{table, staff} {
		evt := waitForEvent(t, sub, events.TypeOrderCreated)
		assert.Equal(t, 4, evt.Table)
		assert.NotEmpty(t, evt.OrderID)
	}
}

func waitForEvent(t *testing.T, sub *events.Subscription, eventType string) events.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case evt := <-sub.Events():
			if evt.Type == eventType {
				return evt
			}
		case <-timeout:
			t.Fatalf("no %s event", eventType)
			return events.Event{}
		}
	}
}

// racingTabs misses the first open-tab lookup, as if another device opened
// the tab after this round checked for it.
type racingTabs struct {
	comandadomain.Service
	lookups atomic.Int32
}

func (r *racingTabs) FindOpenIn(ctx context.Context, tx *gorm.DB, table int) (*comandadomain.Comanda, error) {
	if r.lookups.Add(1) == 1 {
		return nil, nil
	}
	return r.Service.FindOpenIn(ctx, tx, table)
}

func TestSubmitJoinsTabOpenedConcurrently(t *testing.T) {
	f := floortest.New(t)
	ctx := context.Background()

	burger := f.Product(t, "Bacon Burger", "22.90")
	customer := f.Customer(t, "Joana", "joana@example.com")

	opened, err := f.Tabs.Open(ctx, comandadomain.OpenRequest{TableNumber: 9})
	require.NoError(t, err)

	tabs := &racingTabs{Service: f.Tabs}
	session := tablesession.New(tablesession.Params{
		DB:          f.DB,
		Log:         zap.NewNop(),
		Clock:       f.Clock,
		Settings:    f.Settings,
		CatalogSvc:  f.Catalog,
		ComandaSvc:  tabs,
		OrderSvc:    f.Orders,
		CustomerSvc: f.Customers,
		Results:     f.Results,
		Limiter:     &ratelimit.SubmissionLimiter{},
	})

	result, err := session.Submit(ctx, tablesession.SubmitRequest{
		Table:      9,
		CustomerID: customer.ID.String(),
		Items:      []tablesession.SubmitItem{{ProductID: burger.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, result.IsAddition)
	assert.Equal(t, opened.ID, result.Tab.ID)
	assert.EqualValues(t, 2, tabs.lookups.Load())

	open, err := f.Tabs.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	ledger, err := f.Orders.List(ctx, orderdomain.ListRequest{Source: string(orderdomain.SourceTable)})
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}
