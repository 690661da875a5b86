// Package floortest wires the restaurant services over an in-memory database
// for cross-package tests.
package floortest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/cache"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/comanda/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/comanda/internal/catalog/service"
	"github.com/smallbiznis/comanda/internal/clock"
	comandadomain "github.com/smallbiznis/comanda/internal/comanda/domain"
	comandarepo "github.com/smallbiznis/comanda/internal/comanda/repository"
	comandaservice "github.com/smallbiznis/comanda/internal/comanda/service"
	"github.com/smallbiznis/comanda/internal/config"
	customerdomain "github.com/smallbiznis/comanda/internal/customer/domain"
	customerrepo "github.com/smallbiznis/comanda/internal/customer/repository"
	customerservice "github.com/smallbiznis/comanda/internal/customer/service"
	"github.com/smallbiznis/comanda/internal/dbtest"
	"github.com/smallbiznis/comanda/internal/events"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	orderrepo "github.com/smallbiznis/comanda/internal/order/repository"
	orderservice "github.com/smallbiznis/comanda/internal/order/service"
	waiterdomain "github.com/smallbiznis/comanda/internal/waiter/domain"
	waiterrepo "github.com/smallbiznis/comanda/internal/waiter/repository"
	waiterservice "github.com/smallbiznis/comanda/internal/waiter/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the fake clock start used by Floor, 20:00 in Sao Paulo.
var Epoch = time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)

type Floor struct {
	DB       *gorm.DB
	Node     *snowflake.Node
	Clock    *clock.FakeClock
	Settings *config.RestaurantConfigHolder
	Hub      *events.Hub
	Results  cache.ResultStore

	Catalog   catalogdomain.Service
	Customers customerdomain.Service
	Waiters   waiterdomain.Service
	Tabs      comandadomain.Service
	Orders    orderdomain.Service
}

func New(t testing.TB) *Floor {
	t.Helper()
	return NewWithConfig(t, config.DefaultRestaurantConfig())
}

func NewWithConfig(t testing.TB, cfg config.RestaurantConfig) *Floor {
	t.Helper()

	conn := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(Epoch)
	settings := config.NewStaticRestaurantHolder(cfg)
	hub := events.NewHub()
	log := zap.NewNop()

	catalogSvc := catalogservice.New(catalogservice.Params{
		DB: conn, Log: log, GenID: node, Repo: catalogrepo.Provide(), Clock: clk, Settings: settings,
	})
	customerSvc := customerservice.New(customerservice.Params{
		DB: conn, Log: log, GenID: node, Repo: customerrepo.Provide(), Clock: clk,
	})
	waiterSvc := waiterservice.New(waiterservice.Params{
		DB: conn, Log: log, GenID: node, Repo: waiterrepo.Provide(), Clock: clk,
	})
	tabSvc := comandaservice.New(comandaservice.Params{
		DB:         conn,
		Log:        log,
		GenID:      node,
		Repo:       comandarepo.Provide(),
		Clock:      clk,
		Settings:   settings,
		CatalogSvc: catalogSvc,
		WaiterSvc:  waiterSvc,
		Events:     hub,
	})
	orderSvc := orderservice.New(orderservice.Params{
		DB: conn, Log: log, GenID: node, Repo: orderrepo.Provide(), Clock: clk, Settings: settings,
	})

	return &Floor{
		DB:        conn,
		Node:      node,
		Clock:     clk,
		Settings:  settings,
		Hub:       hub,
		Results:   cache.NewMemoryResultStore(clk.Now),
		Catalog:   catalogSvc,
		Customers: customerSvc,
		Waiters:   waiterSvc,
		Tabs:      tabSvc,
		Orders:    orderSvc,
	}
}

// Product creates an available food item.
func (f *Floor) Product(t testing.TB, name, price string) catalogdomain.Response {
	t.Helper()
	product, err := f.Catalog.Create(context.Background(), catalogdomain.CreateRequest{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: "food",
	})
	if err != nil {
		t.Fatalf("create product %q: %v", name, err)
	}
	return *product
}

func (f *Floor) Customer(t testing.TB, name, email string) customerdomain.Customer {
	t.Helper()
	customer, err := f.Customers.Register(context.Background(), customerdomain.CreateCustomerRequest{
		Name:  name,
		Email: email,
		Phone: "92991234567",
	})
	if err != nil {
		t.Fatalf("register customer %q: %v", email, err)
	}
	return customer
}
