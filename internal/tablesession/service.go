package tablesession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/comanda/internal/cache"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/clock"
	comandadomain "github.com/smallbiznis/comanda/internal/comanda/domain"
	"github.com/smallbiznis/comanda/internal/config"
	customerdomain "github.com/smallbiznis/comanda/internal/customer/domain"
	"github.com/smallbiznis/comanda/internal/events"
	"github.com/smallbiznis/comanda/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/providers/telegram"
	"github.com/smallbiznis/comanda/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sourceTable      = "table"
	tableObservation = "Pedido realizado via QR Code"
)

var (
	ErrEmptyCart        = errors.New("empty_cart")
	ErrCustomerRequired = errors.New("customer_required")
	ErrTableBusy        = errors.New("table_busy")
	ErrNoOpenTab        = errors.New("no_open_tab")
)

type SubmitItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SubmitRequest struct {
	Table          int          `json:"-"`
	CustomerID     string       `json:"customer_id"`
	Items          []SubmitItem `json:"items"`
	IdempotencyKey string       `json:"-"`
}

type SubmitResult struct {
	Tab        *comandadomain.Tab    `json:"tab"`
	Order      *orderdomain.Response `json:"order"`
	IsAddition bool                  `json:"is_addition"`
	Replayed   bool                  `json:"replayed"`
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Settings    *config.RestaurantConfigHolder
	CatalogSvc  catalogdomain.Service
	ComandaSvc  comandadomain.Service
	OrderSvc    orderdomain.Service
	CustomerSvc customerdomain.Service
	Results     cache.ResultStore
	Limiter     *ratelimit.SubmissionLimiter
	Notifier    *telegram.Dispatcher
	Events      events.Publisher `optional:"true"`
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	settings    *config.RestaurantConfigHolder
	catalogSvc  catalogdomain.Service
	comandaSvc  comandadomain.Service
	orderSvc    orderdomain.Service
	customerSvc customerdomain.Service
	results     cache.ResultStore
	limiter     *ratelimit.SubmissionLimiter
	notifier    *telegram.Dispatcher
	events      events.Publisher
	metrics     *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("tablesession"),
		clock:       p.Clock,
		settings:    p.Settings,
		catalogSvc:  p.CatalogSvc,
		comandaSvc:  p.ComandaSvc,
		orderSvc:    p.OrderSvc,
		customerSvc: p.CustomerSvc,
		results:     p.Results,
		limiter:     p.Limiter,
		notifier:    p.Notifier,
		events:      p.Events,
		metrics:     p.Metrics,
	}
}

// Submit appends the cart to the table's tab, opening one when the table is
// free, and mirrors the batch into the order ledger in the same transaction.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := s.validateTable(req.Table); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	customer, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	key := idempotencyKey(req)
	if key != "" {
		if cached, ok, err := s.cachedResult(ctx, key); err != nil || ok {
			return cached, err
		}
		reserved, err := s.results.Reserve(ctx, key, s.settings.Get().IdempotencyTTL)
		if err != nil {
			return nil, err
		}
		if !reserved {
			return nil, cache.ErrInFlight
		}
	}

	result, err := s.submit(ctx, req, customer)
	if err != nil {
		if key != "" {
			if releaseErr := s.results.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.log.Warn("release idempotency key", zap.Error(releaseErr))
			}
		}
		return nil, err
	}

	if key != "" {
		if raw, err := json.Marshal(result); err == nil {
			if err := s.results.Put(ctx, key, raw, s.settings.Get().IdempotencyTTL); err != nil {
				s.log.Warn("store idempotent result", zap.Error(err))
			}
		}
	}
	return result, nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest, customer customerdomain.Customer) (*SubmitResult, error) {
	cart, err := s.buildCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	token, ok, err := s.limiter.TryLockTable(ctx, req.Table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTableBusy
	}
	defer func() {
		if err := s.limiter.ReleaseTable(context.WithoutCancel(ctx), req.Table, token); err != nil {
			s.log.Warn("release table lock", zap.Int("table", req.Table), zap.Error(err))
		}
	}()

	lines := cart.Lines()
	tabLines := make([]comandadomain.LineInput, 0, len(lines))
	ledgerItems := make([]orderdomain.LineItem, 0, len(lines))
	for _, line := range lines {
		tabLines = append(tabLines, comandadomain.LineInput{
			ProductName: line.Name,
			Quantity:    line.Quantity,
			Price:       line.Price,
		})
		ledgerItems = append(ledgerItems, orderdomain.LineItem{
			Name:     line.Name,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}

	tab, order, isAddition, err := s.record(ctx, req, customer, tabLines, ledgerItems)
	if errors.Is(err, comandadomain.ErrTabAlreadyOpen) {
		// Another device opened the tab between our lookup and insert; the
		// round joins that tab instead.
		s.log.Debug("table opened concurrently, retrying as addition", zap.Int("table", req.Table))
		tab, order, isAddition, err = s.record(ctx, req, customer, tabLines, ledgerItems)
	}
	if err != nil {
		return nil, err
	}

	if !isAddition {
		s.metrics.RecordTabOpened(ctx, sourceTable)
	}
	s.metrics.RecordTabItems(ctx, len(tabLines))

	current, err := s.comandaSvc.Get(ctx, tab.ID.String())
	if err != nil {
		return nil, err
	}

	s.log.Info("table order submitted",
		zap.Int("table", req.Table),
		zap.String("tab_id", current.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Bool("addition", isAddition),
	)

	s.publish(events.Event{Type: events.TypeOrderCreated, Table: req.Table, TabID: current.ID, OrderID: order.ID, Payload: order})
	s.publish(events.Event{Type: events.TypeTabUpdated, Table: req.Table, TabID: current.ID, Payload: current})
	s.notifier.Notify(ctx, notification(order, isAddition))

	return &SubmitResult{Tab: current, Order: order, IsAddition: isAddition}, nil
}

// record writes the round to the tab, opening it when the table is free, and
// mirrors it into the ledger in one transaction.
func (s *Service) record(
	ctx context.Context,
	req SubmitRequest,
	customer customerdomain.Customer,
	tabLines []comandadomain.LineInput,
	ledgerItems []orderdomain.LineItem,
) (*comandadomain.Comanda, *orderdomain.Response, bool, error) {
	var (
		tab        *comandadomain.Comanda
		order      *orderdomain.Response
		isAddition bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.comandaSvc.FindOpenIn(ctx, tx, req.Table)
		if err != nil {
			return err
		}
		if existing != nil {
			tab = existing
			isAddition = true
		} else {
			tab, err = s.comandaSvc.OpenIn(ctx, tx, comandadomain.OpenRequest{
				TableNumber:  req.Table,
				CustomerName: customer.Name,
			})
			if err != nil {
				return err
			}
		}

		if _, err := s.comandaSvc.AddItemsIn(ctx, tx, tab.ID, tabLines); err != nil {
			return err
		}

		customerID := customer.ID.Int64()
		order, err = s.orderSvc.CreateIn(ctx, tx, orderdomain.CreateRequest{
			CustomerID:    &customerID,
			CustomerEmail: customer.Email,
			CustomerName:  customer.Name,
			CustomerPhone: customer.Phone,
			Items:         ledgerItems,
			PaymentMethod: orderdomain.PaymentComanda,
			Address:       tableAddress(req.Table),
			Observation:   tableObservation,
			Source:        orderdomain.SourceTable,
		})
		return err
	})
	if err != nil {
		return nil, nil, false, err
	}
	return tab, order, isAddition, nil
}

// Tab returns the open tab of the table, or nil when the table is free.
func (s *Service) Tab(ctx context.Context, table int) (*comandadomain.Tab, error) {
	if err := s.validateTable(table); err != nil {
		return nil, err
	}
	return s.comandaSvc.FindOpenByTable(ctx, table)
}

func (s *Service) RequestBill(ctx context.Context, table int) (*comandadomain.Tab, error) {
	tab, err := s.Tab(ctx, table)
	if err != nil {
		return nil, err
	}
	if tab == nil {
		return nil, ErrNoOpenTab
	}
	return s.comandaSvc.RequestClose(ctx, tab.ID)
}

func (s *Service) buildCart(ctx context.Context, items []SubmitItem) (*Cart, error) {
	cart := &Cart{}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, comandadomain.ErrInvalidItem
		}
		product, err := s.catalogSvc.Get(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.Available {
			return nil, catalogdomain.ErrProductUnavailable
		}
		cart.Add(*product, item.Quantity)
	}
	if cart.Empty() {
		return nil, ErrEmptyCart
	}
	return cart, nil
}

func (s *Service) resolveCustomer(ctx context.Context, id string) (customerdomain.Customer, error) {
	if strings.TrimSpace(id) == "" {
		return customerdomain.Customer{}, ErrCustomerRequired
	}
	customer, err := s.customerSvc.GetByID(ctx, customerdomain.GetCustomerRequest{ID: id})
	if errors.Is(err, customerdomain.ErrNotFound) || errors.Is(err, customerdomain.ErrInvalidID) {
		return customerdomain.Customer{}, ErrCustomerRequired
	}
	return customer, err
}

func (s *Service) cachedResult(ctx context.Context, key string) (*SubmitResult, bool, error) {
	raw, ok, err := s.results.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var result SubmitResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.log.Warn("discarding unreadable idempotent result", zap.Error(err))
		return nil, false, s.results.Release(ctx, key)
	}
	result.Replayed = true
	return &result, true, nil
}

func (s *Service) validateTable(table int) error {
	if table < 1 || table > s.settings.Get().TablePoolSize {
		return comandadomain.ErrInvalidTable
	}
	return nil
}

func (s *Service) publish(evt events.Event) {
	if s.events == nil {
		return
	}
	evt.At = s.clock.Now()
	s.events.PublishTable(evt.Table, evt)
}

func idempotencyKey(req SubmitRequest) string {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return ""
	}
	return fmt.Sprintf("table:%d:%s", req.Table, key)
}

func tableAddress(table int) string {
	return fmt.Sprintf("Mesa %d", table)
}

func notification(order *orderdomain.Response, isAddition bool) telegram.Message {
	msg := telegram.Message{
		OrderNumber: order.OrderNumber,
		PlacedAt:    order.CreatedAt,
		IsAddition:  isAddition,
		Customer: telegram.Customer{
			Name:    order.CustomerName,
			Address: order.Address,
		},
		Payment: telegram.Payment{Method: string(order.PaymentMethod)},
		Total:   order.Total,
	}
	if order.CustomerPhone != nil {
		msg.Customer.Phone = *order.CustomerPhone
	}
	if order.CustomerEmail != nil {
		msg.Customer.Email = *order.CustomerEmail
	}
	if order.Observation != nil {
		msg.Observation = *order.Observation
	}
	for _, item := range order.Items {
		msg.Items = append(msg.Items, telegram.Item{
			Name:     item.Name,
			Quantity: item.Quantity,
			Subtotal: item.Subtotal,
		})
	}
	return msg
}
